package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/redis/go-redis/v9"

	"github.com/keithlinneman/ephemera/internal/audit"
	"github.com/keithlinneman/ephemera/internal/baas"
	"github.com/keithlinneman/ephemera/internal/cfg"
	"github.com/keithlinneman/ephemera/internal/health"
	"github.com/keithlinneman/ephemera/internal/log"
	"github.com/keithlinneman/ephemera/internal/metrics"
	"github.com/keithlinneman/ephemera/internal/ratelimit"
	v "github.com/keithlinneman/ephemera/internal/version"
	"github.com/keithlinneman/ephemera/internal/xerrors"
)

func newLogger(conf cfg.App, vi v.Info) (log.Logger, error) {
	lvl, err := log.ParseLevel(conf.LogLevel)
	if err != nil {
		return nil, xerrors.Wrapf(err, "invalid log level %s", conf.LogLevel)
	}
	stackLvl, err := log.ParseLevel(conf.StacktraceLevel)
	if err != nil {
		return nil, xerrors.Wrapf(err, "invalid stacktrace level %s", conf.StacktraceLevel)
	}
	return log.New(log.Options{
		App:               v.AppName,
		Version:           vi.Version,
		Commit:            vi.Commit,
		BuildId:           vi.BuildId,
		Level:             lvl,
		StacktraceLevel:   stackLvl,
		JsonFormat:        conf.LogJSON,
		MaxErrorLinks:     conf.MaxErrorLinks,
		IncludeErrorLinks: conf.IncludeErrorLinks,
	})
}

// startupFields is the config summary logged once at boot. Secrets stay out.
func startupFields(conf cfg.App, vi v.Info) []any {
	return append(vi.LogFields(),
		"http_port", conf.HTTPPort,
		"admin_port", conf.AdminPort,
		"enable_pprof", conf.EnablePprof,
		"enable_pyroscope", conf.EnablePyroscope,
		"enable_tracing", conf.EnableTracing,
		"otlp_endpoint", conf.OTLPEndpoint,
		"pyro_server", conf.PyroServer,
		"trace_sample", conf.TraceSample,
		"ratelimit_backend", conf.RateLimitBackend,
		"redis_addr", conf.RedisAddr,
		"blob_backend", conf.BlobBackend,
		"s3_bucket", conf.S3Bucket,
		"s3_prefix", conf.S3Prefix,
		"max_upload_mb", conf.MaxUploadMB,
		"audit_queue_size", conf.AuditQueueSize,
		"drain_period", conf.DrainPeriod.String(),
	)
}

// newLimiter returns the per-action limiter, a readiness check for its
// backend (nil for memory) and a close func.
func newLimiter(ctx context.Context, conf cfg.App, m *metrics.ServerMetrics) (ratelimit.Checker, health.Checker, func() error) {
	if conf.RateLimitBackend != cfg.BackendRedis {
		lim := ratelimit.New(ctx,
			ratelimit.WithSweepInterval(conf.RateLimitSweep),
			ratelimit.WithOnDenied(m.IncActionRateLimited),
		)
		return lim, nil, func() error { return nil }
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     conf.RedisAddr,
		Password: conf.RedisPassword,
		DB:       conf.RedisDB,
	})
	lim := ratelimit.NewRedis(rdb,
		ratelimit.WithKeyPrefix(conf.RedisKeyPrefix),
		ratelimit.WithRedisOnDenied(m.IncActionRateLimited),
	)
	// the limiter fails open, so a redis outage only shows up here
	check := health.Named("redis", health.WithTimeout(time.Second,
		health.CheckFunc(func(ctx context.Context) error { return rdb.Ping(ctx).Err() }),
	))
	return lim, check, rdb.Close
}

func newBlobs(ctx context.Context, conf cfg.App, L log.Logger) (baas.Blobs, error) {
	if conf.BlobBackend != cfg.BackendS3 {
		L.Warn(ctx, "using in-memory page image storage, images are lost on restart")
		return baas.NewMemoryBlobs(), nil
	}
	awsCfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, xerrors.Wrap(err, "load AWS config")
	}
	blobs, err := baas.NewS3Blobs(s3.NewFromConfig(awsCfg), conf.S3Bucket, conf.S3Prefix)
	if err != nil {
		return nil, xerrors.Wrap(err, "create S3 blob store")
	}
	return blobs, nil
}

// newAuditor sends audit events to the structured log through a bounded
// queue. A slow writer drops events instead of blocking requests.
func newAuditor(conf cfg.App, lg log.Logger, m *metrics.ServerMetrics) (*audit.Auditor, *audit.AsyncSink) {
	sink := audit.NewAsyncSink(
		audit.NewLogSink(lg.With("component", "audit")),
		conf.AuditQueueSize,
		audit.WithOnDrop(m.IncAuditDropped),
	)
	return audit.New(sink, audit.WithOnEvent(func(k audit.Kind) {
		m.IncAuditEvent(string(k))
	})), sink
}

func newFloodGuard(ctx context.Context, conf cfg.App, L log.Logger, m *metrics.ServerMetrics) *ratelimit.FloodGuard {
	return ratelimit.NewFloodGuard(ctx,
		ratelimit.WithFloodRate(conf.FloodRate, conf.FloodBurst),
		ratelimit.WithOnFlood(func(string) { m.IncRateLimitDenied() }),
		// once per ip until its bucket is evicted
		ratelimit.WithOnFirstFlood(func(ip string) {
			L.Warn(ctx, "flood guard triggered", "ip", ip)
		}),
		ratelimit.WithOnFloodCapacity(func(string) { m.IncRateLimitCapacity() }),
		// once per fill, not per rejected visitor
		ratelimit.WithOnFloodFull(func(string) {
			L.Warn(ctx, "flood guard capacity reached, rejecting new visitors until some are evicted")
		}),
	)
}

// notifySystemd reports readiness when started as a Type=notify unit.
func notifySystemd() error {
	addr := os.Getenv("NOTIFY_SOCKET")
	if addr == "" {
		return fmt.Errorf("NOTIFY_SOCKET not set, skipping systemd notify")
	}
	conn, err := net.Dial("unixgram", addr)
	if err != nil {
		return fmt.Errorf("systemd notify failed: dial failed: %w", err)
	}
	defer conn.Close()
	if _, err := conn.Write([]byte("READY=1")); err != nil {
		return fmt.Errorf("systemd notify failed: write failed: %w", err)
	}
	return nil
}
