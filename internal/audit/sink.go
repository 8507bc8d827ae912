package audit

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/keithlinneman/ephemera/internal/log"
)

// LogSink writes events through a Logger: warn for failures, info otherwise.
type LogSink struct {
	logger log.Logger
}

func NewLogSink(logger log.Logger) *LogSink {
	if logger == nil {
		logger = log.Nop()
	}
	return &LogSink{logger: logger.With("type", "audit")}
}

func (s *LogSink) Write(ctx context.Context, e Event) error {
	kv := []any{
		"event", string(e.Kind),
		"timestamp", e.Timestamp,
		"ip", e.IP,
		"success", e.Success,
	}
	if e.UserID != "" {
		kv = append(kv, "user_id", e.UserID)
	}
	if e.UserAgent != "" {
		kv = append(kv, "user_agent", e.UserAgent)
	}
	if len(e.Details) > 0 {
		kv = append(kv, "details", e.Details)
	}

	if e.Success {
		s.logger.Info(ctx, "audit", kv...)
	} else {
		s.logger.Warn(ctx, "audit", kv...)
	}
	return nil
}

var (
	ErrQueueFull = errors.New("audit: queue full")
	ErrClosed    = errors.New("audit: sink closed")
)

type queued struct {
	ctx context.Context
	e   Event
}

// AsyncSink decouples the request path from a slower sink. Writes go into a
// bounded queue drained by one goroutine; when the queue is full the event is
// dropped and counted rather than blocking the caller.
type AsyncSink struct {
	next  Sink
	queue chan queued

	mu     sync.RWMutex
	closed bool
	done   chan struct{}

	dropped atomic.Uint64
	onDrop  func()
}

type AsyncOption func(*AsyncSink)

// WithOnDrop sets a callback for every dropped event, used for prometheus counters.
func WithOnDrop(fn func()) AsyncOption {
	return func(s *AsyncSink) {
		s.onDrop = fn
	}
}

// NewAsyncSink starts the worker. size is the queue capacity, minimum 1.
func NewAsyncSink(next Sink, size int, opts ...AsyncOption) *AsyncSink {
	if size < 1 {
		size = 1
	}
	s := &AsyncSink{
		next:  next,
		queue: make(chan queued, size),
		done:  make(chan struct{}),
	}
	for _, o := range opts {
		o(s)
	}
	go s.run()
	return s
}

func (s *AsyncSink) run() {
	defer close(s.done)
	for q := range s.queue {
		if err := s.next.Write(q.ctx, q.e); err != nil {
			log.FromContext(q.ctx).Warn(q.ctx, "audit sink write failed", "event", string(q.e.Kind), "err", err)
		}
	}
}

// Write enqueues e without blocking. The request context is detached from
// its cancellation so the event survives the request finishing.
func (s *AsyncSink) Write(ctx context.Context, e Event) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	select {
	case s.queue <- queued{ctx: context.WithoutCancel(ctx), e: e}:
		return nil
	default:
		s.dropped.Add(1)
		if s.onDrop != nil {
			s.onDrop()
		}
		return ErrQueueFull
	}
}

// Dropped returns how many events were discarded because the queue was full.
func (s *AsyncSink) Dropped() uint64 {
	return s.dropped.Load()
}

// Close stops accepting events and waits for the queue to drain or ctx to end.
func (s *AsyncSink) Close(ctx context.Context) error {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.queue)
	}
	s.mu.Unlock()

	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
