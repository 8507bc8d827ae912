package opshttp

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/keithlinneman/ephemera/internal/health"
	"github.com/keithlinneman/ephemera/internal/httpmw"
	"github.com/keithlinneman/ephemera/internal/httpserver"
	"github.com/keithlinneman/ephemera/internal/log"
	"github.com/keithlinneman/ephemera/internal/xerrors"
)

// NewHandler builds the admin router: health under both naming conventions,
// /metrics, and /debug/pprof when enabled. Everything sits behind the
// non-public network check.
func NewHandler(L log.Logger, opts Options) http.Handler {
	if L == nil {
		L = log.Nop()
	}

	r := chi.NewRouter()

	// same checks for k8s (/healthz) and the ALB (/-/healthy)
	for _, p := range []string{"/healthz", "/-/healthy"} {
		r.Get(p, health.HealthzHandler(opts.Health))
	}
	for _, p := range []string{"/readyz", "/-/ready"} {
		r.Get(p, health.ReadyzHandler(opts.Readiness))
	}

	if opts.Metrics != nil {
		r.Handle("/metrics", opts.Metrics)
	}

	// disabled pprof falls through to chi's 404
	if opts.EnablePprof {
		r.Mount("/debug", middleware.Profiler())
	}

	var recoverMW func(http.Handler) http.Handler
	if opts.UseRecoverMW {
		recoverMW = httpmw.Recover(L, opts.OnPanic)
	}
	return httpmw.Stack{recoverMW, requireNonPublicNetwork(L)}.Then(r)
}

// Start admin HTTP server.
// Returns stop(ctx) for graceful shutdown
func Start(ctx context.Context, L log.Logger, opts *Options) (func(context.Context) error, error) {
	if L == nil {
		L = log.Nop()
	}
	if opts == nil {
		opts = &Options{}
	}

	port := opts.Port
	if port == 0 {
		port = 9000
	}
	addr := fmt.Sprintf(":%d", port)

	srv := httpserver.NewServer(addr, NewHandler(L, *opts))
	// pprof profile/trace stream for up to 30s by default
	srv.WriteTimeout = 60 * time.Second

	ln, err := (&net.ListenConfig{}).Listen(ctx, "tcp", addr)
	if err != nil {
		return nil, xerrors.Wrapf(err, "could not listen for admin port on addr=%v", addr)
	}

	go func() {
		L.Info(ctx, "ops http server listening", "addr", addr, "pprof", opts.EnablePprof)
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			L.Error(ctx, err, "ops http server error")
		}
	}()

	var once sync.Once
	stop := func(sctx context.Context) (retErr error) {
		once.Do(func() {
			L.Info(sctx, "ops http server shutting down")
			c, cancel := context.WithTimeout(sctx, 5*time.Second)
			defer cancel()
			retErr = srv.Shutdown(c)
		})
		return retErr
	}
	return stop, nil
}

func forbidden(w http.ResponseWriter) {
	http.Error(w, "forbidden", http.StatusForbidden)
}

// requireNonPublicNetwork rejects requests whose peer address is not loopback,
// private or link-local. The admin port should already be firewalled off; this
// keeps pprof and metrics closed if it is not.
func requireNonPublicNetwork(L log.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			host, _, err := net.SplitHostPort(r.RemoteAddr)
			if err != nil {
				L.Warn(r.Context(), "ops request with unparsable remote addr", "remote_addr", r.RemoteAddr)
				forbidden(w)
				return
			}
			ip := net.ParseIP(host)
			if ip == nil {
				L.Warn(r.Context(), "ops request with invalid remote ip", "remote_addr", r.RemoteAddr)
				forbidden(w)
				return
			}
			// ::ffff:a.b.c.d collapses to its IPv4 form before classification
			if v4 := ip.To4(); v4 != nil {
				ip = v4
			}
			if !ip.IsLoopback() && !ip.IsPrivate() && !ip.IsLinkLocalUnicast() {
				L.Warn(r.Context(), "ops request from public network rejected", "remote_ip", ip.String(), "url.path", r.URL.Path)
				forbidden(w)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
