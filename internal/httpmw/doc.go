// Package httpmw provides HTTP middleware for the public-facing server.
//
// Middleware is composed in a specific order in httpserver.NewHandler:
// security headers, panic recovery, request ID, client identifier
// extraction, the flood guard, OTEL tracing, metrics, structured logging,
// and chi router.
//
// Each middleware is an independent function that can be tested, reordered,
// or removed individually. User-supplied data (query params, user-agent,
// headers) is intentionally excluded from access logs to prevent PII leaks
// and log injection. The user-agent is kept in the request context for the
// audit trail only.
package httpmw
