package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Authorization metrics
	AuthzDecisionsTotal      *prometheus.CounterVec
	FallbackLookupsTotal     *prometheus.CounterVec
	FallbackDuration         prometheus.Histogram
	RateLimitRejectionsTotal *prometheus.CounterVec
	MalformedClaimsTotal     prometheus.Counter

	// Database metrics
	DBConnectionsActive prometheus.Gauge
	DBConnectionsIdle   prometheus.Gauge

	registry *prometheus.Registry
}

// NewMetrics creates and registers all Prometheus metrics. A nil registry
// gets a fresh one.
func NewMetrics(registry *prometheus.Registry) *Metrics {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "assembly_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "assembly_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),

		AuthzDecisionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "assembly_authz_decisions_total",
				Help: "Total number of authorization decisions",
			},
			[]string{"operation", "allowed", "reason", "source"},
		),
		FallbackLookupsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "assembly_authz_fallback_lookups_total",
				Help: "Total number of membership store fallback lookups",
			},
			[]string{"outcome"},
		),
		FallbackDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "assembly_authz_fallback_duration_seconds",
				Help:    "Membership store fallback lookup duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
		),
		RateLimitRejectionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "assembly_authz_ratelimit_rejections_total",
				Help: "Total number of decisions overridden by the rate limiter",
			},
			[]string{"operation"},
		),
		MalformedClaimsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "assembly_authz_malformed_claims_total",
				Help: "Total number of malformed token claim entries skipped",
			},
		),

		DBConnectionsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "assembly_db_connections_active",
				Help: "Number of active database connections",
			},
		),
		DBConnectionsIdle: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "assembly_db_connections_idle",
				Help: "Number of idle database connections",
			},
		),

		registry: registry,
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.AuthzDecisionsTotal,
		m.FallbackLookupsTotal,
		m.FallbackDuration,
		m.RateLimitRejectionsTotal,
		m.MalformedClaimsTotal,
		m.DBConnectionsActive,
		m.DBConnectionsIdle,
	)

	return m
}

// Handler returns an HTTP handler serving the metrics endpoint
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// statusRecorder captures the response status code for metrics
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// HTTPMiddleware instruments HTTP handlers with request metrics
func (m *Metrics) HTTPMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		m.HTTPRequestsTotal.WithLabelValues(r.Method, r.URL.Path, strconv.Itoa(rec.status)).Inc()
		m.HTTPRequestDuration.WithLabelValues(r.Method, r.URL.Path).Observe(time.Since(start).Seconds())
	})
}
