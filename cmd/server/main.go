package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/keithlinneman/ephemera/internal/actions"
	"github.com/keithlinneman/ephemera/internal/baas"
	"github.com/keithlinneman/ephemera/internal/cfg"
	"github.com/keithlinneman/ephemera/internal/health"
	"github.com/keithlinneman/ephemera/internal/httpapi"
	"github.com/keithlinneman/ephemera/internal/httpmw"
	"github.com/keithlinneman/ephemera/internal/httpserver"
	"github.com/keithlinneman/ephemera/internal/log"
	"github.com/keithlinneman/ephemera/internal/metrics"
	"github.com/keithlinneman/ephemera/internal/opshttp"
	"github.com/keithlinneman/ephemera/internal/otelx"
	"github.com/keithlinneman/ephemera/internal/prof"
	"github.com/keithlinneman/ephemera/internal/validate"
	v "github.com/keithlinneman/ephemera/internal/version"
	"github.com/keithlinneman/ephemera/internal/xerrors"
)

func main() {
	vi := v.Get()

	var conf cfg.App
	var showVersion bool
	cfg.Register(flag.CommandLine, &conf)
	flag.BoolVar(&showVersion, "V", false, "Print version+build information and exit")
	flag.Parse()

	if showVersion {
		fmt.Println(vi.String())
		return
	}

	// cli flag > EPHEMERA_* env > default
	cfg.FillFromEnv(flag.CommandLine, "EPHEMERA_", func(format string, args ...any) {
		fmt.Fprintf(os.Stderr, format+"\n", args...)
	})
	if err := cfg.Validate(conf); err != nil {
		fmt.Fprintln(os.Stderr, "config error:", err)
		os.Exit(1)
	}

	lg, err := newLogger(conf, vi)
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger init error:", err)
		os.Exit(1)
	}

	code := 0
	if err := run(conf, vi, lg); err != nil {
		lg.Error(context.Background(), err, "server exited")
		code = 1
	}
	_ = lg.Sync()
	os.Exit(code)
}

func run(conf cfg.App, vi v.Info, lg log.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	L := lg.With("component", "server")
	ctx = log.WithContext(ctx, L)
	L.Info(ctx, "initializing application", startupFields(conf, vi)...)

	stopProf, profErr := prof.Start(ctx, prof.Options{
		Enabled:       conf.EnablePyroscope,
		AppName:       v.AppName,
		ServerAddress: conf.PyroServer,
		TenantID:      conf.PyroTenantID,
		Tags: map[string]string{
			"app":       v.AppName,
			"component": "server",
			"version":   vi.Version,
			"commit":    vi.Commit,
			"build_id":  vi.BuildId,
			"source":    "go-agent",
		},
	})
	if profErr != nil {
		// profiling is optional, keep serving without it
		L.Error(ctx, profErr, "pyroscope start failed", "pyro_server", conf.PyroServer)
	}
	defer stopProf()

	// collector runs on localhost, no TLS
	shutdownOTEL, err := otelx.Init(ctx, otelx.Options{
		Enabled:   conf.EnableTracing,
		Endpoint:  conf.OTLPEndpoint,
		Insecure:  true,
		Sample:    conf.TraceSample,
		Service:   v.AppName,
		Component: "server",
		Version:   vi.Version,
	})
	if err != nil {
		L.Error(ctx, err, "otel init failed")
		shutdownOTEL = func(context.Context) error { return nil }
	}

	m := metrics.New()
	m.SetBuildInfoFromVersion(v.AppName, "server", vi)
	m.SetProfilingActive(conf.EnablePyroscope && profErr == nil)

	var gate health.ShutdownGate
	checks := []health.Checker{gate.Checker()}

	limiter, limiterCheck, closeLimiter := newLimiter(ctx, conf, m)
	defer closeLimiter()
	if limiterCheck != nil {
		checks = append(checks, limiterCheck)
	}
	readiness := health.All(checks...)

	blobs, err := newBlobs(ctx, conf, L)
	if err != nil {
		return err
	}
	auditor, auditSink := newAuditor(conf, lg, m)

	backend := baas.NewMemory(
		baas.WithBcryptCost(conf.BcryptCost),
		baas.WithSessionTTL(conf.SessionTTL),
	)
	svc, err := actions.New(actions.Deps{
		Auth:      backend,
		Store:     backend,
		Blobs:     blobs,
		Limiter:   limiter,
		Validator: validate.New(),
		Auditor:   auditor,
		Logger:    L.With("component", "actions"),
		Recorder:  m,
		MaxUpload: int64(conf.MaxUploadMB) << 20,
	})
	if err != nil {
		return xerrors.Wrap(err, "create action service")
	}
	api := httpapi.NewAPI(svc, L)

	appStop, err := httpserver.Start(ctx, httpserver.Options{
		Port:         conf.HTTPPort,
		Health:       health.Fixed(true, ""),
		Readiness:    readiness,
		APIRoutes:    api.RegisterRoutes,
		Fallback:     http.HandlerFunc(api.NotFound),
		UseRecoverMW: true,
		OnPanic:      m.IncHTTPPanic,
		MetricsMW:    m.Middleware,
		RateLimitMW:  newFloodGuard(ctx, conf, L, m).Middleware,
		ClientIPOpts: httpmw.ClientIPOptions{UseRemoteAddr: conf.TrustRemoteAddr},
		// multipart framing on top of the largest allowed image
		MaxBodyBytes: int64(conf.MaxUploadMB)<<20 + 1<<20,
		Logger:       L,
	})
	if err != nil {
		return xerrors.Wrap(err, "start app http listener")
	}

	// the ops listener also rejects public peers in case the security group
	// or load balancer ever routes traffic to it
	opsStop, err := opshttp.Start(ctx, L, &opshttp.Options{
		Port:         conf.AdminPort,
		Metrics:      m.Handler(),
		EnablePprof:  conf.EnablePprof,
		Health:       health.Fixed(true, ""),
		Readiness:    readiness,
		UseRecoverMW: true,
		OnPanic:      m.IncHTTPPanic,
	})
	if err != nil {
		_ = appStop(context.Background())
		return xerrors.Wrap(err, "start ops http listener")
	}

	if err := notifySystemd(); err != nil {
		// systemd kills the unit after its start timeout at worst
		L.Warn(ctx, "failed to notify systemd of readiness", "error", err)
	}

	<-ctx.Done()
	stop()
	bg := context.Background()
	L.Info(bg, "shutdown signal received")

	gate.Set("draining")
	drain(bg, L, conf.DrainPeriod)

	shutdownCtx, cancel := context.WithTimeout(bg, conf.ShutdownTimeout)
	defer cancel()

	if err := appStop(shutdownCtx); err != nil {
		L.Error(bg, err, "app http server shutdown")
	}
	if err := opsStop(shutdownCtx); err != nil {
		L.Error(bg, err, "ops http server shutdown")
	}
	// listeners are closed, nothing produces audit events past this point
	if err := auditSink.Close(shutdownCtx); err != nil {
		L.Error(bg, err, "audit sink shutdown", "dropped", auditSink.Dropped())
	}
	if err := shutdownOTEL(shutdownCtx); err != nil {
		L.Error(bg, err, "otel shutdown")
	}

	L.Info(bg, "shutdown complete")
	return nil
}

// drain keeps serving while readiness fails so the load balancer stops
// routing here. A second signal cuts it short.
func drain(ctx context.Context, L log.Logger, period time.Duration) {
	if period <= 0 {
		return
	}
	L.Info(ctx, "draining before closing listeners", "drain_period", period.String())

	force := make(chan os.Signal, 1)
	signal.Notify(force, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(force)

	t := time.NewTimer(period)
	defer t.Stop()
	select {
	case <-t.C:
		L.Info(ctx, "drain period complete")
	case <-force:
		L.Warn(ctx, "second signal received, skipping drain")
	}
}
