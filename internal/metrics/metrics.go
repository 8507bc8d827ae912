// Package metrics owns the Prometheus registry for the ephemera server: HTTP
// request metrics, limiter outcomes and action pipeline counters. Every
// label set is bounded. Raw paths and caller identifiers never become labels.
package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/keithlinneman/ephemera/internal/version"
)

type ServerMetrics struct {
	reg     *prometheus.Registry
	handler http.Handler

	http    httpCollectors
	limiter limiterCollectors
	actions actionCollectors

	buildInfo       *prometheus.GaugeVec
	profilingActive prometheus.Gauge
}

// New builds an isolated registry with the Go and process collectors plus
// everything ServerMetrics records.
func New() *ServerMetrics {
	m := &ServerMetrics{
		reg:     prometheus.NewRegistry(),
		http:    newHTTPCollectors(),
		limiter: newLimiterCollectors(),
		actions: newActionCollectors(),
		buildInfo: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "build_info",
			Help: "Build metadata (value is always 1)",
		}, []string{"app", "component", "version", "commit", "commit_date", "build_id", "build_date", "vcs_dirty", "go_version"}),
		profilingActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "profiling_active",
			Help: "Whether continuous profiling is active (1) or disabled/failed (0)",
		}),
	}

	m.reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.buildInfo,
		m.profilingActive,
	)
	m.reg.MustRegister(m.http.all()...)
	m.reg.MustRegister(m.limiter.all()...)
	m.reg.MustRegister(m.actions.all()...)

	m.handler = promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{EnableOpenMetrics: true})
	return m
}

func (m *ServerMetrics) Handler() http.Handler {
	return m.handler
}

// SetBuildInfoFromVersion is called once at startup.
func (m *ServerMetrics) SetBuildInfoFromVersion(app, component string, vi version.Info) {
	dirty := "unknown"
	if vi.VCSDirty != nil {
		dirty = strconv.FormatBool(*vi.VCSDirty)
	}
	m.buildInfo.With(prometheus.Labels{
		"app":         app,
		"component":   component,
		"version":     vi.Version,
		"commit":      vi.Commit,
		"commit_date": vi.CommitDate,
		"build_id":    vi.BuildId,
		"build_date":  vi.BuildDate,
		"go_version":  vi.GoVersion,
		"vcs_dirty":   dirty,
	}).Set(1)
}

func (m *ServerMetrics) SetProfilingActive(active bool) {
	v := 0.0
	if active {
		v = 1
	}
	m.profilingActive.Set(v)
}
