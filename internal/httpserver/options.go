package httpserver

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/keithlinneman/ephemera/internal/health"
	"github.com/keithlinneman/ephemera/internal/httpmw"
	"github.com/keithlinneman/ephemera/internal/log"
)

// DefaultMaxBodyBytes covers the largest page image plus multipart framing.
const DefaultMaxBodyBytes = 11 << 20

type Options struct {
	Logger       log.Logger
	Port         int
	UseRecoverMW bool
	OnPanic      func() // Optional callback for when panics are recovered, e.g. to increment prometheus counters
	MetricsMW    func(http.Handler) http.Handler
	RateLimitMW  func(http.Handler) http.Handler
	ClientIPOpts httpmw.ClientIPOptions
	MaxBodyBytes int64 // 0 = DefaultMaxBodyBytes
	Health       health.Checker
	Readiness    health.Checker

	// APIRoutes registers application routes on the root router.
	APIRoutes func(chi.Router)

	// Fallback serves unmatched paths and methods; nil keeps chi's defaults.
	Fallback http.Handler
}
