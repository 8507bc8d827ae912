package ratelimit

import (
	"context"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/keithlinneman/ephemera/internal/httpmw"
)

// visitor tracks a single IPs bucket and last activity
type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
	// logged tracks whether we have already emitted the first-denial log
	// resets when the entry is evicted and re-created
	logged bool
}

// FloodGuard holds per-IP token buckets with background eviction. It sits in
// front of the router and catches single-ip flooding before any handler work.
type FloodGuard struct {
	mu       sync.Mutex
	visitors map[string]*visitor

	// rate controls: requests per second and burst ceiling
	perSecond rate.Limit
	burst     int

	// ttl controls how long an idle IP stays in the map before cleanup evicts it
	ttl time.Duration

	// maxVisitors caps the map; unseen IPs are rejected once it is full
	maxVisitors int
	// full is set on the first capacity rejection and cleared once the map
	// has room again
	full bool

	// OnCapacity is called when a new IP is turned away because the map is full
	OnCapacity func(ip string)

	// OnFull is called once each time the map fills up, used for logging
	OnFull func(ip string)

	// OnFirstDenied is called once per visitor when they first get limited
	OnFirstDenied func(ip string)

	// OnDenied is called on every denied request, used for incrementing prometheus counter
	OnDenied func(ip string)
}

type FloodOption func(*FloodGuard)

// WithFloodRate sets the bucket size and refill rate.
// WithFloodRate(10, 50) allows 50 requests at once, then refills at 10 per second.
func WithFloodRate(perSecond float64, burst int) FloodOption {
	return func(g *FloodGuard) {
		g.perSecond = rate.Limit(perSecond)
		g.burst = burst
	}
}

// WithFloodTTL controls how long an idle IP stays in the map before cleanup.
// Non-positive values keep the default.
func WithFloodTTL(d time.Duration) FloodOption {
	return func(g *FloodGuard) {
		if d > 0 {
			g.ttl = d
		}
	}
}

// WithFloodMaxVisitors caps the number of tracked IPs. Requests from IPs not
// already tracked are rejected while the map is full.
func WithFloodMaxVisitors(n int) FloodOption {
	return func(g *FloodGuard) {
		if n > 0 {
			g.maxVisitors = n
		}
	}
}

// WithOnFloodCapacity sets a callback for IPs rejected because the map is full
func WithOnFloodCapacity(fn func(ip string)) FloodOption {
	return func(g *FloodGuard) {
		g.OnCapacity = fn
	}
}

// WithOnFloodFull sets a callback for the first capacity rejection after the
// map fills. It fires again only after cleanup has made room.
func WithOnFloodFull(fn func(ip string)) FloodOption {
	return func(g *FloodGuard) {
		g.OnFull = fn
	}
}

// WithOnFirstFlood sets a callback for the first denial per visitor, used for logging.
// Separate from WithOnFlood so we log once but count every denial.
func WithOnFirstFlood(fn func(ip string)) FloodOption {
	return func(g *FloodGuard) {
		g.OnFirstDenied = fn
	}
}

// WithOnFlood sets a callback for every denied request
func WithOnFlood(fn func(ip string)) FloodOption {
	return func(g *FloodGuard) {
		g.OnDenied = fn
	}
}

// NewFloodGuard creates a FloodGuard and starts the background cleanup goroutine
func NewFloodGuard(ctx context.Context, opts ...FloodOption) *FloodGuard {
	g := &FloodGuard{
		visitors:    make(map[string]*visitor),
		perSecond:   10,
		burst:       30,
		ttl:         5 * time.Minute,
		maxVisitors: 100000,
	}
	for _, o := range opts {
		o(g)
	}
	go g.cleanup(ctx)
	return g
}

// allow reports whether ip still has tokens, creating the visitor on first sight.
func (g *FloodGuard) allow(ip string) bool {
	g.mu.Lock()
	v, exists := g.visitors[ip]
	if !exists {
		if len(g.visitors) >= g.maxVisitors {
			turnedFull := !g.full
			g.full = true
			g.mu.Unlock()
			if turnedFull && g.OnFull != nil {
				g.OnFull(ip)
			}
			if g.OnCapacity != nil {
				g.OnCapacity(ip)
			}
			return false
		}
		v = &visitor{
			limiter: rate.NewLimiter(g.perSecond, g.burst),
		}
		g.visitors[ip] = v
	}
	v.lastSeen = time.Now()
	allowed := v.limiter.Allow()

	first := !allowed && !v.logged
	if first {
		v.logged = true
	}
	// hooks may do slow work, never call them under the lock
	g.mu.Unlock()

	if allowed {
		return true
	}
	if first && g.OnFirstDenied != nil {
		g.OnFirstDenied(ip)
	}
	if g.OnDenied != nil {
		g.OnDenied(ip)
	}
	return false
}

// cleanup evicts visitors idle longer than the TTL, checking every TTL/2.
func (g *FloodGuard) cleanup(ctx context.Context) {
	ticker := time.NewTicker(max(g.ttl/2, time.Millisecond))
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			g.mu.Lock()
			for ip, v := range g.visitors {
				if now.Sub(v.lastSeen) > g.ttl {
					delete(g.visitors, ip)
				}
			}
			if len(g.visitors) < g.maxVisitors {
				g.full = false
			}
			g.mu.Unlock()
		}
	}
}

// Middleware rejects requests over the per-ip budget with 429
func (g *FloodGuard) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := httpmw.ClientIPFromContext(r.Context())

		if !g.allow(ip) {
			w.Header().Set("Content-Type", "application/json; charset=utf-8")
			w.Header().Set("Retry-After", "30")
			w.WriteHeader(http.StatusTooManyRequests)
			// no detail about limits or refill timing
			_, _ = w.Write([]byte(`{"error":"Too many requests. Please try again later."}`))
			return
		}

		next.ServeHTTP(w, r)
	})
}
