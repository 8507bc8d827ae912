// Package cfg holds the server configuration. Every field is a flag and may
// also come from an EPHEMERA_ prefixed environment variable.
package cfg

import (
	"errors"
	"flag"
	"fmt"
	"net"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/keithlinneman/ephemera/internal/log"
)

type App struct {
	LogJSON           bool
	LogLevel          string
	HTTPPort          int
	AdminPort         int
	EnablePprof       bool
	EnablePyroscope   bool
	EnableTracing     bool
	PyroServer        string
	PyroTenantID      string
	OTLPEndpoint      string
	TraceSample       float64
	StacktraceLevel   string
	IncludeErrorLinks bool
	MaxErrorLinks     int
	TrustRemoteAddr   bool
	RateLimitBackend  string
	RateLimitSweep    time.Duration
	RedisAddr         string
	RedisPassword     string
	RedisDB           int
	RedisKeyPrefix    string
	FloodRate         float64
	FloodBurst        int
	AuditQueueSize    int
	BlobBackend       string
	S3Bucket          string
	S3Prefix          string
	MaxUploadMB       int
	SessionTTL        time.Duration
	BcryptCost        int
	DrainPeriod       time.Duration
	ShutdownTimeout   time.Duration
}

// Backend names accepted by -ratelimit-backend and -blob-backend.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
	BackendS3     = "s3"
)

// Register binds all config fields to the given FlagSet with defaults inline
func Register(fs *flag.FlagSet, c *App) {
	fs.BoolVar(&c.LogJSON, "log-json", true, "JSON logs (true) or logfmt (false)")
	fs.StringVar(&c.LogLevel, "log-level", "info", "debug|info|warn|error")
	fs.IntVar(&c.HTTPPort, "http-port", 8080, "listen TCP port (1..65535)")
	fs.IntVar(&c.AdminPort, "admin-port", 9000, "admin listen TCP port (1..65535)")
	fs.BoolVar(&c.EnablePprof, "enable-pprof", true, "Enable pprof profiling (on admin port only)")
	fs.BoolVar(&c.EnableTracing, "enable-tracing", false, "Enable OTLP tracing and push to otlp-endpoint")
	fs.BoolVar(&c.EnablePyroscope, "enable-pyroscope", false, "Enable pushing Pyroscope data to server set in -pyro-server")
	fs.BoolVar(&c.IncludeErrorLinks, "include-error-links", true, "Include error links in log messages")
	fs.IntVar(&c.MaxErrorLinks, "max-error-links", 5, "max error chain depth (1..64)")
	fs.Float64Var(&c.TraceSample, "trace-sample", 0.0, "trace sampling ratio (0..1)")
	fs.StringVar(&c.StacktraceLevel, "stacktrace-level", "error", "debug|info|warn|error")
	fs.StringVar(&c.PyroServer, "pyro-server", "", "pyroscope server url to push to")
	fs.StringVar(&c.PyroTenantID, "pyro-tenant", "", "tenant (x-scope-orgid) to use for pyro-server")
	fs.StringVar(&c.OTLPEndpoint, "otlp-endpoint", "", "OTLP endpoint to push to (gRPC) (host:port)")
	fs.BoolVar(&c.TrustRemoteAddr, "trust-remote-addr", false, "Fall back to the peer address when no forwarding header is present")
	fs.StringVar(&c.RateLimitBackend, "ratelimit-backend", BackendMemory, "memory|redis (redis shares windows across instances)")
	fs.DurationVar(&c.RateLimitSweep, "ratelimit-sweep", time.Minute, "how often the memory limiter evicts expired windows")
	fs.StringVar(&c.RedisAddr, "redis-addr", "127.0.0.1:6379", "redis host:port for the redis rate limit backend")
	fs.StringVar(&c.RedisPassword, "redis-password", "", "redis AUTH password")
	fs.IntVar(&c.RedisDB, "redis-db", 0, "redis logical database (0..15)")
	fs.StringVar(&c.RedisKeyPrefix, "redis-key-prefix", "ephemera:rl:", "prefix for rate limit keys in redis")
	fs.Float64Var(&c.FloodRate, "flood-rate", 20, "per-IP request rate (req/s) allowed by the flood guard")
	fs.IntVar(&c.FloodBurst, "flood-burst", 40, "per-IP burst allowed by the flood guard")
	fs.IntVar(&c.AuditQueueSize, "audit-queue-size", 1024, "buffered audit events before new ones are dropped")
	fs.StringVar(&c.BlobBackend, "blob-backend", BackendMemory, "memory|s3 storage for page images")
	fs.StringVar(&c.S3Bucket, "s3-bucket", "", "s3 bucket for page images (blob-backend=s3)")
	fs.StringVar(&c.S3Prefix, "s3-prefix", "page-images", "s3 key prefix for page images")
	fs.IntVar(&c.MaxUploadMB, "max-upload-mb", 10, "max page image size in MiB")
	fs.DurationVar(&c.SessionTTL, "session-ttl", 24*time.Hour, "lifetime of sign-in sessions")
	fs.IntVar(&c.BcryptCost, "bcrypt-cost", 12, "bcrypt cost for stored passwords (10..31)")
	fs.DurationVar(&c.DrainPeriod, "drain-period", 60*time.Second, "time between failing readiness and closing listeners on shutdown")
	fs.DurationVar(&c.ShutdownTimeout, "shutdown-timeout", 10*time.Second, "deadline for in-flight requests once listeners close")
}

// FillFromEnv sets any flag not explicitly passed on the CLI from
// environment variables. Flag "foo-bar" maps to PREFIX_FOO_BAR.
// Precedence: cli flag > env var > default.
func FillFromEnv(fs *flag.FlagSet, prefix string, logf func(string, ...any)) {
	explicit := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { explicit[f.Name] = true })

	fs.VisitAll(func(f *flag.Flag) {
		key := prefix + strings.ReplaceAll(strings.ToUpper(f.Name), "-", "_")
		envVal, envSet := os.LookupEnv(key)
		if !envSet {
			return
		}
		if explicit[f.Name] {
			if logf != nil {
				logf("flag -%s: cli value %q overrides env %s=%q", f.Name, f.Value.String(), key, envVal)
			}
			return
		}
		prev := f.Value.String()
		if err := fs.Set(f.Name, envVal); err != nil {
			fs.Set(f.Name, prev)
			if logf != nil {
				logf("flag -%s: ignoring invalid env %s=%q: %v", f.Name, key, envVal, err)
			}
		}
	})
}

// problems collects every invalid field so one run reports them all.
type problems []error

func (p *problems) addf(format string, args ...any) {
	*p = append(*p, fmt.Errorf(format, args...))
}

func validPort(p int) bool { return p >= 1 && p <= 65535 }

// Validate checks that config values are within expected ranges and formats.
// Returns an error describing all invalid fields, or nil if all valid.
func Validate(c App) error {
	var p problems
	p.listeners(c)
	p.logging(c)
	p.telemetry(c)
	p.limiting(c)
	p.storage(c)
	return errors.Join(p...)
}

func (p *problems) listeners(c App) {
	if !validPort(c.HTTPPort) {
		p.addf("invalid HTTP_PORT %d (must be 1..65535)", c.HTTPPort)
	}
	if !validPort(c.AdminPort) {
		p.addf("invalid ADMIN_PORT %d (must be 1..65535)", c.AdminPort)
	}
	if c.AdminPort == c.HTTPPort {
		p.addf("ADMIN_PORT and HTTP_PORT must differ (both %d)", c.HTTPPort)
	}
	if c.DrainPeriod < 0 {
		p.addf("DRAIN_PERIOD must not be negative (got %s)", c.DrainPeriod)
	}
	if c.ShutdownTimeout <= 0 {
		p.addf("SHUTDOWN_TIMEOUT must be positive (got %s)", c.ShutdownTimeout)
	}
}

func (p *problems) logging(c App) {
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		p.addf("invalid LOG_LEVEL %q: %w", c.LogLevel, err)
	}
	if c.StacktraceLevel != "" {
		if _, err := log.ParseLevel(c.StacktraceLevel); err != nil {
			p.addf("invalid STACKTRACE_LEVEL %q: %w", c.StacktraceLevel, err)
		}
	}
	if c.IncludeErrorLinks && (c.MaxErrorLinks < 1 || c.MaxErrorLinks > 64) {
		p.addf("MAX_ERROR_LINKS must be 1..64 (got %d)", c.MaxErrorLinks)
	}
}

func (p *problems) telemetry(c App) {
	if c.TraceSample < 0 || c.TraceSample > 1 {
		p.addf("invalid TRACE_SAMPLE %.3f (must be 0..1)", c.TraceSample)
	}

	if c.EnablePyroscope {
		if c.PyroServer == "" {
			p.addf("PYRO_SERVER required when ENABLE_PYROSCOPE=true")
		} else if u, err := url.Parse(c.PyroServer); err != nil || u.Scheme == "" || u.Host == "" {
			p.addf("PYRO_SERVER must be a URL (got %q)", c.PyroServer)
		}
		if c.PyroTenantID == "" {
			p.addf("PYRO_TENANT required when ENABLE_PYROSCOPE=true")
		}
	}

	// the grpc exporter wants host:port, no scheme
	if c.EnableTracing {
		if c.OTLPEndpoint == "" {
			p.addf("OTLP_ENDPOINT required when ENABLE_TRACING=true")
		} else if _, _, err := net.SplitHostPort(c.OTLPEndpoint); err != nil {
			p.addf("OTLP_ENDPOINT must be host:port (got %q): %v", c.OTLPEndpoint, err)
		}
	}
}

func (p *problems) limiting(c App) {
	switch c.RateLimitBackend {
	case BackendMemory:
		if c.RateLimitSweep <= 0 {
			p.addf("RATELIMIT_SWEEP must be positive (got %s)", c.RateLimitSweep)
		}
	case BackendRedis:
		if _, _, err := net.SplitHostPort(c.RedisAddr); err != nil {
			p.addf("REDIS_ADDR must be host:port (got %q): %v", c.RedisAddr, err)
		}
		if c.RedisDB < 0 || c.RedisDB > 15 {
			p.addf("REDIS_DB must be 0..15 (got %d)", c.RedisDB)
		}
	default:
		p.addf("invalid RATELIMIT_BACKEND %q (valid backends are memory|redis)", c.RateLimitBackend)
	}

	if c.FloodRate <= 0 || c.FloodBurst < 1 {
		p.addf("FLOOD_RATE and FLOOD_BURST must be positive (got %.2f, %d)", c.FloodRate, c.FloodBurst)
	}
	if c.AuditQueueSize < 1 {
		p.addf("AUDIT_QUEUE_SIZE must be at least 1 (got %d)", c.AuditQueueSize)
	}
	if c.BcryptCost < 10 || c.BcryptCost > 31 {
		p.addf("BCRYPT_COST must be 10..31 (got %d)", c.BcryptCost)
	}
	if c.SessionTTL < time.Minute {
		p.addf("SESSION_TTL must be at least 1m (got %s)", c.SessionTTL)
	}
}

func (p *problems) storage(c App) {
	switch c.BlobBackend {
	case BackendMemory:
	case BackendS3:
		if c.S3Bucket == "" {
			p.addf("S3_BUCKET required when BLOB_BACKEND=s3")
		}
	default:
		p.addf("invalid BLOB_BACKEND %q (valid backends are memory|s3)", c.BlobBackend)
	}
	if c.MaxUploadMB < 1 || c.MaxUploadMB > 100 {
		p.addf("MAX_UPLOAD_MB must be 1..100 (got %d)", c.MaxUploadMB)
	}
}
