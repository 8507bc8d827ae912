package httpmw

import (
	"context"
	"net/http"

	"go.opentelemetry.io/otel/trace"
)

// DefaultTraceHeader is the response header ExposeTrace uses when none is given.
const DefaultTraceHeader = "X-Trace-Id"

// Correlation holds the ids a client can quote back when reporting a
// failed request. A field is empty when its middleware did not run.
type Correlation struct {
	RequestID string `json:"request_id,omitempty"`
	TraceID   string `json:"trace_id,omitempty"`
}

// CorrelationFromContext collects the request id set by RequestID and the
// trace id of the active span.
func CorrelationFromContext(ctx context.Context) Correlation {
	c := Correlation{RequestID: RequestIDFromContext(ctx)}
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		c.TraceID = sc.TraceID().String()
	}
	return c
}

// ExposeTrace echoes the active trace id under header so that a response,
// including its JSON error body, can be looked up in the trace backend.
// It must run inside the tracing middleware.
func ExposeTrace(header string) func(http.Handler) http.Handler {
	if header == "" {
		header = DefaultTraceHeader
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if id := CorrelationFromContext(r.Context()).TraceID; id != "" {
				w.Header().Set(header, id)
			}
			next.ServeHTTP(w, r)
		})
	}
}
