package audit

import (
	"context"
	"errors"
	"time"

	"github.com/keithlinneman/ephemera/internal/log"
)

// Sink receives audit events. Implementations must be safe for concurrent use.
type Sink interface {
	Write(ctx context.Context, e Event) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, e Event) error

func (f SinkFunc) Write(ctx context.Context, e Event) error { return f(ctx, e) }

// Auditor builds events and hands them to a Sink.
type Auditor struct {
	sink    Sink
	now     func() time.Time
	onEvent func(Kind)
}

type Option func(*Auditor)

// WithClock replaces time.Now for event timestamps.
func WithClock(now func() time.Time) Option {
	return func(a *Auditor) {
		if now != nil {
			a.now = now
		}
	}
}

// WithOnEvent sets a callback for every emitted event, used for prometheus counters.
func WithOnEvent(fn func(Kind)) Option {
	return func(a *Auditor) {
		a.onEvent = fn
	}
}

// New returns an Auditor writing to sink. A nil sink discards events.
func New(sink Sink, opts ...Option) *Auditor {
	if sink == nil {
		sink = SinkFunc(func(context.Context, Event) error { return nil })
	}
	a := &Auditor{sink: sink, now: time.Now}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Emit stamps e and writes it. Sink failures are logged, never returned.
func (a *Auditor) Emit(ctx context.Context, e Event) {
	if e.Timestamp.IsZero() {
		e.Timestamp = a.now().UTC()
	}
	if e.IP == "" {
		e.IP = "unknown"
	}
	if a.onEvent != nil {
		a.onEvent(e.Kind)
	}
	if err := a.sink.Write(ctx, e); err != nil && !errors.Is(err, ErrQueueFull) {
		log.FromContext(ctx).Warn(ctx, "audit sink write failed", "event", string(e.Kind), "err", err)
	}
}

func (a *Auditor) emit(ctx context.Context, kind Kind, actor Actor, success bool, details map[string]any) {
	a.Emit(ctx, Event{
		Kind:      kind,
		UserID:    actor.UserID,
		IP:        actor.IP,
		UserAgent: actor.UserAgent,
		Details:   details,
		Success:   success,
	})
}

// AuthAttempt records the outcome of a sign-in or sign-up. action is "signin"
// or "signup"; reason is recorded on failure only.
func (a *Auditor) AuthAttempt(ctx context.Context, actor Actor, action, email string, success bool, reason string) {
	kind := Kind("auth." + action + ".failure")
	if success {
		kind = Kind("auth." + action + ".success")
	}
	details := map[string]any{"email": MaskEmail(email)}
	if !success && reason != "" {
		details["error"] = reason
	}
	a.emit(ctx, kind, actor, success, details)
}

// ValidationFailure records a rejected payload. rawInput, when given, is cut
// to a 100 rune preview.
func (a *Auditor) ValidationFailure(ctx context.Context, actor Actor, action, field, reason, rawInput string) {
	details := map[string]any{"action": action}
	if field != "" {
		details["field"] = field
	}
	if reason != "" {
		details["reason"] = reason
	}
	if rawInput != "" {
		details["raw_input_preview"] = truncate(rawInput, validationPreviewLen)
	}
	a.emit(ctx, KindValidationFailure, actor, false, details)
}

// RateLimitExceeded records a denied request.
func (a *Auditor) RateLimitExceeded(ctx context.Context, actor Actor, action, identifier string) {
	a.emit(ctx, KindRateLimitExceeded, actor, false, map[string]any{
		"action":     action,
		"identifier": identifier,
	})
}

// XSSAttempt records suspicious raw input on field. Only an escaped preview
// of the input is kept.
func (a *Auditor) XSSAttempt(ctx context.Context, actor Actor, field, rawInput string) {
	a.emit(ctx, KindXSSAttempt, actor, false, map[string]any{
		"field":         field,
		"input_preview": xssPreview(rawInput),
	})
}

// DataChange records a successful create, update or delete.
func (a *Auditor) DataChange(ctx context.Context, actor Actor, resource Resource, op Op, resourceID string, extra map[string]any) {
	details := make(map[string]any, len(extra)+1)
	for k, v := range extra {
		details[k] = v
	}
	details["resource_id"] = resourceID
	a.emit(ctx, Kind(string(resource)+"."+string(op)), actor, true, details)
}

// SignOut records a sign-out.
func (a *Auditor) SignOut(ctx context.Context, actor Actor) {
	a.emit(ctx, KindSignOut, actor, true, nil)
}
