package metrics

import "github.com/prometheus/client_golang/prometheus"

type limiterCollectors struct {
	denied   prometheus.Counter
	capacity prometheus.Counter
	actions  *prometheus.CounterVec
}

func newLimiterCollectors() limiterCollectors {
	return limiterCollectors{
		denied: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "http_requests_rate_limited_total",
			Help: "Total requests rejected by the flood guard",
		}),
		capacity: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "http_requests_rate_limited_capacity_total",
			Help: "Total times the flood guard hit its tracked-client capacity",
		}),
		actions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ephemera_action_rate_limited_total",
			Help: "Total actions denied by the per-action rate limiter",
		}, []string{"action"}),
	}
}

func (c limiterCollectors) all() []prometheus.Collector {
	return []prometheus.Collector{c.denied, c.capacity, c.actions}
}

type actionCollectors struct {
	validation   *prometheus.CounterVec
	xss          *prometheus.CounterVec
	audit        *prometheus.CounterVec
	auditDropped prometheus.Counter
}

func newActionCollectors() actionCollectors {
	return actionCollectors{
		validation: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ephemera_validation_failures_total",
			Help: "Total inputs rejected by schema validation, by schema",
		}, []string{"schema"}),
		xss: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ephemera_xss_detections_total",
			Help: "Total raw inputs matching an XSS pattern, by field",
		}, []string{"field"}),
		audit: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ephemera_audit_events_total",
			Help: "Total audit events emitted, by kind",
		}, []string{"kind"}),
		auditDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ephemera_audit_dropped_total",
			Help: "Total audit events dropped because the sink queue was full",
		}),
	}
}

func (c actionCollectors) all() []prometheus.Collector {
	return []prometheus.Collector{c.validation, c.xss, c.audit, c.auditDropped}
}

func (m *ServerMetrics) IncRateLimitDenied()   { m.limiter.denied.Inc() }
func (m *ServerMetrics) IncRateLimitCapacity() { m.limiter.capacity.Inc() }

// IncActionRateLimited matches ratelimit.WithOnDenied. The identifier is
// not used as a label.
func (m *ServerMetrics) IncActionRateLimited(action, _ string) {
	m.limiter.actions.WithLabelValues(action).Inc()
}

func (m *ServerMetrics) IncValidationFailure(schema string) {
	m.actions.validation.WithLabelValues(schema).Inc()
}

func (m *ServerMetrics) IncXSSDetection(field string) {
	m.actions.xss.WithLabelValues(field).Inc()
}

func (m *ServerMetrics) IncAuditEvent(kind string) { m.actions.audit.WithLabelValues(kind).Inc() }
func (m *ServerMetrics) IncAuditDropped()          { m.actions.auditDropped.Inc() }
