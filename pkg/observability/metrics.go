package observability

import (
	"database/sql"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const metricsNamespace = "vision"

// Metrics are the Prometheus collectors of the service. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPInFlight        prometheus.Gauge

	MembershipMutationsTotal   *prometheus.CounterVec
	MembershipMutationDuration *prometheus.HistogramVec
	AuthorizationDenialsTotal  *prometheus.CounterVec
	AuditFailuresTotal         prometheus.Counter
	RateLimitedTotal           *prometheus.CounterVec

	// DBConnections is labelled by state: in_use, idle or max_open
	DBConnections *prometheus.GaugeVec
}

// NewMetrics registers the collectors with registry
func NewMetrics(registry *prometheus.Registry) *Metrics {
	f := promauto.With(registry)
	return &Metrics{
		HTTPRequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace, Subsystem: "http", Name: "requests_total",
			Help: "HTTP requests by route template and status.",
		}, []string{"method", "route", "status"}),
		HTTPRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace, Subsystem: "http", Name: "request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		HTTPInFlight: f.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace, Subsystem: "http", Name: "requests_in_flight",
			Help: "HTTP requests currently being served.",
		}),

		MembershipMutationsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace, Subsystem: "membership", Name: "mutations_total",
			Help: "Membership mutations by scope, action and outcome (success, denied, error).",
		}, []string{"scope", "action", "outcome"}),
		MembershipMutationDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace, Subsystem: "membership", Name: "mutation_duration_seconds",
			Help:    "Membership mutation latency including the transaction.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2.5, 10),
		}, []string{"scope", "action"}),
		AuthorizationDenialsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace, Name: "authorization_denials_total",
			Help: "Denied membership operations by reason code.",
		}, []string{"scope", "action", "reason"}),
		AuditFailuresTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace, Name: "audit_failures_total",
			Help: "Audit entries that could not be written.",
		}),
		RateLimitedTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace, Name: "rate_limited_total",
			Help: "Requests rejected by a rate limiter.",
		}, []string{"limiter"}),

		DBConnections: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: metricsNamespace, Subsystem: "db", Name: "connections",
			Help: "Database pool connections by state.",
		}, []string{"state"}),
	}
}

// RecordMutation records the outcome and latency of a membership mutation
func (m *Metrics) RecordMutation(scope, action, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.MembershipMutationsTotal.WithLabelValues(scope, action, outcome).Inc()
	m.MembershipMutationDuration.WithLabelValues(scope, action).Observe(duration.Seconds())
}

// RecordDenial counts a denied membership operation
func (m *Metrics) RecordDenial(scope, action, reason string) {
	if m == nil {
		return
	}
	m.AuthorizationDenialsTotal.WithLabelValues(scope, action, reason).Inc()
}

// RecordAuditFailure counts an audit entry that was lost
func (m *Metrics) RecordAuditFailure() {
	if m == nil {
		return
	}
	m.AuditFailuresTotal.Inc()
}

// RecordRateLimited counts a request rejected by the named limiter
func (m *Metrics) RecordRateLimited(limiter string) {
	if m == nil {
		return
	}
	m.RateLimitedTotal.WithLabelValues(limiter).Inc()
}

// ObserveDBStats publishes a pool snapshot
func (m *Metrics) ObserveDBStats(stats sql.DBStats) {
	if m == nil {
		return
	}
	m.DBConnections.WithLabelValues("in_use").Set(float64(stats.InUse))
	m.DBConnections.WithLabelValues("idle").Set(float64(stats.Idle))
	m.DBConnections.WithLabelValues("max_open").Set(float64(stats.MaxOpenConnections))
}

// statusRecorder remembers the first status written
type statusRecorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (r *statusRecorder) WriteHeader(code int) {
	if !r.wroteHeader {
		r.status = code
		r.wroteHeader = true
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// routeLabel is the mux path template so ids do not become label values
func routeLabel(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tmpl, err := route.GetPathTemplate(); err == nil {
			return tmpl
		}
	}
	return "unmatched"
}

// HTTPMetricsMiddleware counts and times requests per route template
func HTTPMetricsMiddleware(metrics *Metrics) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			metrics.HTTPInFlight.Inc()
			defer metrics.HTTPInFlight.Dec()

			began := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)

			route := routeLabel(r)
			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(rec.status)).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(began).Seconds())
		})
	}
}

// MetricsHandler serves the registry in the Prometheus exposition format
func MetricsHandler(registry *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry})
}
