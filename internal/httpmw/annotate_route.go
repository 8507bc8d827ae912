package httpmw

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// unmatchedSpanRoute names spans for requests no route claimed. Raw paths
// from scanners would otherwise give every scanned path its own span name.
const unmatchedSpanRoute = "unmatched"

// AnnotateHTTPRoute renames the recording span to "METHOD pattern" once chi
// has matched, and sets http.route. Runs after next so the pattern is final.
func AnnotateHTTPRoute(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		next.ServeHTTP(w, r)

		ctx := r.Context()
		span := trace.SpanFromContext(ctx)
		if !span.IsRecording() {
			return
		}

		pattern := ""
		if rc := chi.RouteContext(ctx); rc != nil {
			pattern = rc.RoutePattern()
		}
		if pattern == "" || pattern == "/*" {
			span.SetName(r.Method + " " + unmatchedSpanRoute)
			return
		}
		span.SetAttributes(attribute.String("http.route", pattern))
		span.SetName(r.Method + " " + pattern)
	})
}
