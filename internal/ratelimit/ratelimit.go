package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"
)

var ErrInvalidConfig = errors.New("ratelimit: limit and window must be positive")

// Config is the budget for one class of action.
type Config struct {
	Limit  int
	Window time.Duration
}

func (c Config) Validate() error {
	if c.Limit <= 0 || c.Window <= 0 {
		return ErrInvalidConfig
	}
	return nil
}

// Presets shared by the request handlers.
var (
	// Auth is strict to slow down credential stuffing.
	Auth   = Config{Limit: 5, Window: 60 * time.Second}
	Create = Config{Limit: 10, Window: 60 * time.Second}
	Modify = Config{Limit: 20, Window: 60 * time.Second}
	Read   = Config{Limit: 100, Window: 60 * time.Second}
)

// Preset returns a preset by name: auth, create, modify or read.
func Preset(name string) (Config, bool) {
	switch name {
	case "auth":
		return Auth, true
	case "create":
		return Create, true
	case "modify":
		return Modify, true
	case "read":
		return Read, true
	}
	return Config{}, false
}

// Result is the outcome of a single check.
type Result struct {
	Success   bool
	Remaining int
	ResetIn   time.Duration
}

// ResetInSeconds rounds ResetIn up to whole seconds.
func (r Result) ResetInSeconds() int {
	if r.ResetIn <= 0 {
		return 0
	}
	return int(math.Ceil(r.ResetIn.Seconds()))
}

// Message is the user-facing text for a denied request.
func Message(resetInSeconds int) string {
	return fmt.Sprintf("Too many requests. Please try again in %d seconds.", resetInSeconds)
}

// Checker is implemented by Limiter and RedisLimiter.
type Checker interface {
	Allow(ctx context.Context, identifier, action string, cfg Config) (Result, error)
}

func key(action, identifier string) string {
	return action + ":" + identifier
}

type entry struct {
	count   int
	resetAt time.Time
}

// Limiter is an in-memory fixed-window limiter. Create one with New.
type Limiter struct {
	mu      sync.Mutex
	entries map[string]*entry

	now           func() time.Time
	sweepInterval time.Duration

	// OnDenied is called on every denied request, outside the lock
	OnDenied func(action, identifier string)
}

type Option func(*Limiter)

// WithSweepInterval sets how often expired entries are purged. Defaults to 5 minutes.
func WithSweepInterval(d time.Duration) Option {
	return func(l *Limiter) {
		if d > 0 {
			l.sweepInterval = d
		}
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) {
		if now != nil {
			l.now = now
		}
	}
}

// WithOnDenied sets a callback for every denied request. used for incrementing prometheus counters
func WithOnDenied(fn func(action, identifier string)) Option {
	return func(l *Limiter) {
		l.OnDenied = fn
	}
}

// New creates a Limiter and starts the sweep goroutine, which stops when ctx is done.
func New(ctx context.Context, opts ...Option) *Limiter {
	l := &Limiter{
		entries:       make(map[string]*entry),
		now:           time.Now,
		sweepInterval: 5 * time.Minute,
	}
	for _, o := range opts {
		o(l)
	}
	go l.sweepLoop(ctx)
	return l
}

// Check counts one request for identifier performing action. The read, decide
// and write happen under a single lock so concurrent requests on the same key
// are never lost. An invalid cfg is denied without touching the table.
func (l *Limiter) Check(identifier, action string, cfg Config) Result {
	if cfg.Validate() != nil {
		return Result{}
	}

	k := key(action, identifier)

	l.mu.Lock()
	now := l.now()
	e, ok := l.entries[k]
	if !ok || !now.Before(e.resetAt) {
		// absent or expired: start a fresh window
		l.entries[k] = &entry{count: 1, resetAt: now.Add(cfg.Window)}
		l.mu.Unlock()
		return Result{Success: true, Remaining: cfg.Limit - 1, ResetIn: cfg.Window}
	}

	resetIn := e.resetAt.Sub(now)
	if e.count >= cfg.Limit {
		l.mu.Unlock()
		if l.OnDenied != nil {
			l.OnDenied(action, identifier)
		}
		return Result{Success: false, Remaining: 0, ResetIn: resetIn}
	}

	e.count++
	remaining := cfg.Limit - e.count
	l.mu.Unlock()

	return Result{Success: true, Remaining: remaining, ResetIn: resetIn}
}

// Allow implements Checker. It never fails for a valid cfg.
func (l *Limiter) Allow(_ context.Context, identifier, action string, cfg Config) (Result, error) {
	if err := cfg.Validate(); err != nil {
		return Result{}, err
	}
	return l.Check(identifier, action, cfg), nil
}

// Reset forgets the counter for one key.
func (l *Limiter) Reset(identifier, action string) {
	l.mu.Lock()
	delete(l.entries, key(action, identifier))
	l.mu.Unlock()
}

// Clear drops every counter. Meant for tests and admin tooling, never the request path.
func (l *Limiter) Clear() {
	l.mu.Lock()
	clear(l.entries)
	l.mu.Unlock()
}

// Len returns the number of tracked keys, expired ones included until swept.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// sweep removes entries whose window ended before now and returns how many it removed.
func (l *Limiter) sweep(now time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for k, e := range l.entries {
		if e.resetAt.Before(now) {
			delete(l.entries, k)
			n++
		}
	}
	return n
}

func (l *Limiter) sweepLoop(ctx context.Context) {
	ticker := time.NewTicker(l.sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.sweep(l.now())
		}
	}
}
