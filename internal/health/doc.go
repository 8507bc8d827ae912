// Package health holds the liveness and readiness checks served on /-/healthy
// and /-/ready by both listeners.
//
// Readiness is the AND ([All]) of the [ShutdownGate] and, when the rate
// limiter runs on redis, a [Named] and [WithTimeout] bounded ping. Setting the
// gate at shutdown fails readiness first so load balancers stop routing before
// the listeners drain.
package health
