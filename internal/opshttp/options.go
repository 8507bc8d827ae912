package opshttp

import (
	"net/http"

	"github.com/keithlinneman/ephemera/internal/health"
)

// Options configures the admin listener. Zero values are usable: port 9000,
// no metrics route, no pprof.
type Options struct {
	Port         int
	Metrics      http.Handler
	EnablePprof  bool
	Health       health.Checker
	Readiness    health.Checker
	UseRecoverMW bool
	OnPanic      func() // e.g. bump the panic counter
}
