// Package actions implements the mutating operations of the service.
//
// Every action runs the same pipeline:
//
//	rate limit -> sanitize -> detect -> validate -> backend -> audit
//
// The XSS detector runs on the raw input and only records what it sees; the
// sanitizers and the schema decide what is accepted. Failures are returned
// as *Error values whose Message is safe to show to users.
package actions
