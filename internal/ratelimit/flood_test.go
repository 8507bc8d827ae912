package ratelimit

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/keithlinneman/ephemera/internal/httpmw"
)

// newTestGuard creates a guard with a short TTL and cancellable cleanup.
func newTestGuard(opts ...FloodOption) (*FloodGuard, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	defaults := []FloodOption{
		WithFloodRate(10, 5),
		WithFloodTTL(100 * time.Millisecond),
	}
	g := NewFloodGuard(ctx, append(defaults, opts...)...)
	return g, cancel
}

func TestFlood_BurstThenReject(t *testing.T) {
	g, cancel := newTestGuard(WithFloodRate(1, 5))
	defer cancel()

	for i := 0; i < 5; i++ {
		if !g.allow("10.0.0.1") {
			t.Fatalf("request %d should be allowed (within burst)", i+1)
		}
	}
	if g.allow("10.0.0.1") {
		t.Fatal("request 6 should be denied (burst exhausted)")
	}
}

func TestFlood_SeparateIPs(t *testing.T) {
	g, cancel := newTestGuard(WithFloodRate(1, 3))
	defer cancel()

	for i := 0; i < 3; i++ {
		g.allow("10.0.0.1")
	}
	if g.allow("10.0.0.1") {
		t.Fatal("ip1 should be denied after burst")
	}
	if !g.allow("10.0.0.2") {
		t.Fatal("ip2 should be allowed (separate bucket)")
	}
}

func TestFlood_RefillAfterTime(t *testing.T) {
	g, cancel := newTestGuard(WithFloodRate(100, 1))
	defer cancel()

	if !g.allow("10.0.0.1") {
		t.Fatal("first request should be allowed")
	}
	if g.allow("10.0.0.1") {
		t.Fatal("should be denied with empty bucket")
	}

	// at 100/sec, 20ms is 2 tokens
	time.Sleep(20 * time.Millisecond)

	if !g.allow("10.0.0.1") {
		t.Fatal("should be allowed after refill")
	}
}

func TestFlood_Callbacks(t *testing.T) {
	var first, every atomic.Int32
	g, cancel := newTestGuard(
		WithFloodRate(1, 2),
		WithOnFirstFlood(func(string) { first.Add(1) }),
		WithOnFlood(func(string) { every.Add(1) }),
	)
	defer cancel()

	g.allow("10.0.0.1")
	g.allow("10.0.0.1")
	for i := 0; i < 5; i++ {
		g.allow("10.0.0.1")
	}

	if got := first.Load(); got != 1 {
		t.Fatalf("first-denied callback called %d times, want 1", got)
	}
	if got := every.Load(); got != 5 {
		t.Fatalf("denied callback called %d times, want 5", got)
	}
}

func TestFlood_FirstDeniedPerIP(t *testing.T) {
	seen := make(map[string]int)
	var mu sync.Mutex

	g, cancel := newTestGuard(
		WithFloodRate(1, 1),
		WithOnFirstFlood(func(ip string) {
			mu.Lock()
			seen[ip]++
			mu.Unlock()
		}),
	)
	defer cancel()

	g.allow("10.0.0.1")
	g.allow("10.0.0.1")
	g.allow("10.0.0.1")
	g.allow("10.0.0.2")
	g.allow("10.0.0.2")

	mu.Lock()
	defer mu.Unlock()
	if seen["10.0.0.1"] != 1 || seen["10.0.0.2"] != 1 {
		t.Fatalf("first-denied per ip = %v, want one each", seen)
	}
}

func TestFlood_CleanupEvictsIdle(t *testing.T) {
	g, cancel := newTestGuard(WithFloodRate(1, 1), WithFloodTTL(50*time.Millisecond))
	defer cancel()

	g.allow("10.0.0.1")

	// TTL + cleanup interval (TTL/2) + buffer
	time.Sleep(150 * time.Millisecond)

	g.mu.Lock()
	_, exists := g.visitors["10.0.0.1"]
	g.mu.Unlock()
	if exists {
		t.Fatal("visitor should be evicted after TTL")
	}
}

func TestFlood_Defaults(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	g := NewFloodGuard(ctx)
	if g.perSecond != 10 || g.burst != 30 {
		t.Errorf("defaults = %v/%d, want 10/30", g.perSecond, g.burst)
	}
	if g.ttl != 5*time.Minute {
		t.Errorf("default ttl = %v, want 5m", g.ttl)
	}
	if g.maxVisitors != 100000 {
		t.Errorf("default maxVisitors = %d, want 100000", g.maxVisitors)
	}
}

func TestFlood_MaxVisitors(t *testing.T) {
	var rejected atomic.Int32
	g, cancel := newTestGuard(
		WithFloodRate(100, 100),
		WithFloodMaxVisitors(3),
		WithOnFloodCapacity(func(string) { rejected.Add(1) }),
	)
	defer cancel()

	for i := 0; i < 3; i++ {
		ip := fmt.Sprintf("10.0.0.%d", i+1)
		if !g.allow(ip) {
			t.Fatalf("ip %s should be allowed (map not full)", ip)
		}
	}
	if g.allow("10.0.0.99") {
		t.Fatal("new IP should be rejected when map is at capacity")
	}
	if !g.allow("10.0.0.1") {
		t.Fatal("tracked IP should still be served at capacity")
	}
	if got := rejected.Load(); got != 1 {
		t.Fatalf("capacity callback called %d times, want 1", got)
	}
}

func TestFlood_FullReportedOncePerFill(t *testing.T) {
	var rejected, fills atomic.Int32
	g, cancel := newTestGuard(
		WithFloodRate(100, 100),
		WithFloodMaxVisitors(2),
		WithFloodTTL(50*time.Millisecond),
		WithOnFloodCapacity(func(string) { rejected.Add(1) }),
		WithOnFloodFull(func(string) { fills.Add(1) }),
	)
	defer cancel()

	g.allow("10.0.0.1")
	g.allow("10.0.0.2")
	for i := 0; i < 50; i++ {
		g.allow(fmt.Sprintf("192.0.2.%d", i))
	}
	if rejected.Load() != 50 || fills.Load() != 1 {
		t.Fatalf("rejected=%d fills=%d, want 50 and 1", rejected.Load(), fills.Load())
	}

	// idle visitors are evicted, the map fills again and is reported again
	time.Sleep(150 * time.Millisecond)
	g.allow("10.0.1.1")
	g.allow("10.0.1.2")
	g.allow("10.0.1.3")
	if got := fills.Load(); got != 2 {
		t.Fatalf("fills after refill = %d, want 2", got)
	}
}

func TestFlood_NonPositiveTTLKeepsDefault(t *testing.T) {
	for _, d := range []time.Duration{0, -time.Second} {
		ctx, cancel := context.WithCancel(context.Background())
		g := NewFloodGuard(ctx, WithFloodTTL(d))
		cancel()
		if g.ttl != 5*time.Minute {
			t.Errorf("WithFloodTTL(%v): ttl = %v, want default", d, g.ttl)
		}
	}

	// a TTL below the tick floor still starts cleanup
	g, cancel := newTestGuard(WithFloodTTL(time.Nanosecond))
	defer cancel()
	g.allow("10.0.0.1")
}

func makeRequestWithIP(handler http.Handler, clientIP string) *httptest.ResponseRecorder {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r = r.WithContext(httpmw.WithClientIP(r.Context(), clientIP))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, r)
	return w
}

func TestFloodMiddleware_Returns429(t *testing.T) {
	g, cancel := newTestGuard(WithFloodRate(1, 2))
	defer cancel()

	var reached atomic.Int32
	handler := g.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reached.Add(1)
		w.WriteHeader(http.StatusOK)
	}))

	for i := 0; i < 2; i++ {
		if w := makeRequestWithIP(handler, "203.0.113.1"); w.Code != http.StatusOK {
			t.Fatalf("request %d: got %d, want 200", i+1, w.Code)
		}
	}

	w := makeRequestWithIP(handler, "203.0.113.1")
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("request 3: got %d, want 429", w.Code)
	}
	if w.Header().Get("Retry-After") != "30" {
		t.Errorf("Retry-After = %q, want 30", w.Header().Get("Retry-After"))
	}
	if w.Header().Get("Content-Type") != "application/json; charset=utf-8" {
		t.Errorf("Content-Type = %q", w.Header().Get("Content-Type"))
	}
	if got := reached.Load(); got != 2 {
		t.Fatalf("inner handler reached %d times, want 2", got)
	}

	if w := makeRequestWithIP(handler, "203.0.113.2"); w.Code != http.StatusOK {
		t.Fatalf("other ip: got %d, want 200", w.Code)
	}
}
