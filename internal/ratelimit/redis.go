package ratelimit

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/keithlinneman/ephemera/internal/xerrors"
)

// fixedWindowScript performs the whole check-and-increment server side.
// A denied request leaves the counter untouched, same as Limiter.
// Returns {allowed, count, pttl_ms}.
var fixedWindowScript = redis.NewScript(`
local limit = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local count = tonumber(redis.call("GET", KEYS[1]) or "0")
if count >= limit then
  return {0, count, redis.call("PTTL", KEYS[1])}
end
count = redis.call("INCR", KEYS[1])
if count == 1 then
  redis.call("PEXPIRE", KEYS[1], window)
end
local ttl = redis.call("PTTL", KEYS[1])
if ttl < 0 then
  redis.call("PEXPIRE", KEYS[1], window)
  ttl = window
end
return {1, count, ttl}
`)

// RedisLimiter is a fixed-window limiter whose counters live in Redis, so every
// instance of the service shares them.
type RedisLimiter struct {
	client redis.UniversalClient
	prefix string

	// OnDenied is called on every denied request
	OnDenied func(action, identifier string)
}

type RedisOption func(*RedisLimiter)

// WithKeyPrefix namespaces keys, default "ratelimit:".
func WithKeyPrefix(p string) RedisOption {
	return func(r *RedisLimiter) {
		r.prefix = p
	}
}

// WithRedisOnDenied sets a callback for every denied request.
func WithRedisOnDenied(fn func(action, identifier string)) RedisOption {
	return func(r *RedisLimiter) {
		r.OnDenied = fn
	}
}

func NewRedis(client redis.UniversalClient, opts ...RedisOption) *RedisLimiter {
	r := &RedisLimiter{client: client, prefix: "ratelimit:"}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Allow implements Checker.
func (r *RedisLimiter) Allow(ctx context.Context, identifier, action string, cfg Config) (Result, error) {
	if err := cfg.Validate(); err != nil {
		return Result{}, err
	}

	vals, err := fixedWindowScript.Run(ctx, r.client,
		[]string{r.prefix + key(action, identifier)},
		cfg.Limit, cfg.Window.Milliseconds(),
	).Int64Slice()
	if err != nil {
		return Result{}, xerrors.Wrapf(err, "ratelimit: redis check %s", action)
	}
	if len(vals) != 3 {
		return Result{}, xerrors.Newf("ratelimit: unexpected script reply of %d values", len(vals))
	}

	resetIn := time.Duration(max(vals[2], 0)) * time.Millisecond
	if vals[0] == 0 {
		if r.OnDenied != nil {
			r.OnDenied(action, identifier)
		}
		return Result{Success: false, Remaining: 0, ResetIn: resetIn}, nil
	}

	remaining := cfg.Limit - int(vals[1])
	return Result{Success: true, Remaining: max(remaining, 0), ResetIn: resetIn}, nil
}

// Reset deletes the counter for one key.
func (r *RedisLimiter) Reset(ctx context.Context, identifier, action string) error {
	if err := r.client.Del(ctx, r.prefix+key(action, identifier)).Err(); err != nil {
		return xerrors.Wrap(err, "ratelimit: redis reset")
	}
	return nil
}

// Ping checks connectivity, used by the readiness check.
func (r *RedisLimiter) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
