// Package ratelimit throttles requests per (action, identifier).
//
// Limiter is a fixed-window counter held in process memory. Each key
// "action:identifier" gets limit requests per window; the window starts at the
// first request and the counter resets entirely when it elapses. A background
// sweep drops expired entries, but correctness of the window boundary is
// decided at check time, so sweep cadence only bounds memory.
//
// # Per-process, not global
//
// A Limiter counts only the requests this process sees. Behind a load balancer
// with N instances a client effectively gets N times the limit. Deployments
// that scale horizontally should use RedisLimiter, which keeps the counter in
// Redis and performs the check-and-increment in one Lua script.
//
// FloodGuard is separate, coarse protection for the whole HTTP surface: a
// per-IP token bucket that runs before routing. It does not protect against
// distributed attacks, and inbound data is already accepted by the time it
// runs.
package ratelimit
