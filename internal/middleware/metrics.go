package middleware

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metric names exported by the middleware.
const (
	MetricRateLimitDecisions    = "rate_limit_decisions_total"
	MetricRateLimitStoreErrors  = "rate_limit_store_errors_total"
	MetricHTTPRequestDuration   = "http_request_duration_seconds"
	MetricHTTPRequestsTotal     = "http_requests_total"
	MetricHTTPRequestSizeBytes  = "http_request_size_bytes"
	MetricHTTPResponseSizeBytes = "http_response_size_bytes"
)

// Rate limit decision outcomes, used as the "outcome" label.
const (
	OutcomeAllowed = "allowed"
	OutcomeBlocked = "blocked"
)

var (
	httpLabels = []string{"method", "path", "status"}
	// Search responses with full ranking factors run to hundreds of KB.
	sizeBuckets = prometheus.ExponentialBuckets(128, 8, 7)
	// Ranking a full candidate window takes tens of milliseconds.
	latencyBuckets = []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5}
)

// Metrics holds the HTTP and rate-limit collectors. Safe for concurrent use.
type Metrics struct {
	rateLimitDecisions   *prometheus.CounterVec
	rateLimitStoreErrors *prometheus.CounterVec
	requestDuration      *prometheus.HistogramVec
	requestsTotal        *prometheus.CounterVec
	requestSize          *prometheus.HistogramVec
	responseSize         *prometheus.HistogramVec
}

// NewMetrics creates unregistered middleware metrics; see Register.
func NewMetrics() *Metrics {
	return &Metrics{
		rateLimitDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricRateLimitDecisions,
			Help: "Rate limit decisions by endpoint, key type and outcome",
		}, []string{"endpoint", "key_type", "outcome"}),
		rateLimitStoreErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricRateLimitStoreErrors,
			Help: "Rate limit store failures that let the request through",
		}, []string{"store"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    MetricHTTPRequestDuration,
			Help:    "HTTP request latency in seconds",
			Buckets: latencyBuckets,
		}, httpLabels),
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricHTTPRequestsTotal,
			Help: "HTTP requests served",
		}, httpLabels),
		requestSize: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    MetricHTTPRequestSizeBytes,
			Help:    "HTTP request body size in bytes",
			Buckets: sizeBuckets,
		}, httpLabels),
		responseSize: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    MetricHTTPResponseSizeBytes,
			Help:    "HTTP response body size in bytes",
			Buckets: sizeBuckets,
		}, httpLabels),
	}
}

// Register registers every collector with reg, stopping at the first error.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range m.Collectors() {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// ObserveRateLimit counts one rate limit decision.
func (m *Metrics) ObserveRateLimit(endpoint, keyType string, allowed bool) {
	outcome := OutcomeAllowed
	if !allowed {
		outcome = OutcomeBlocked
	}
	m.rateLimitDecisions.WithLabelValues(endpoint, keyType, outcome).Inc()
}

// IncRateLimitStoreError counts a failed-open store call.
func (m *Metrics) IncRateLimitStoreError(store string) {
	m.rateLimitStoreErrors.WithLabelValues(store).Inc()
}

// ObserveHTTPRequest records one completed request. path must already be
// normalized to keep label cardinality bounded.
func (m *Metrics) ObserveHTTPRequest(method, path, status string, duration float64, requestSize, responseSize int64) {
	labels := prometheus.Labels{"method": method, "path": path, "status": status}
	m.requestDuration.With(labels).Observe(duration)
	m.requestsTotal.With(labels).Inc()
	m.requestSize.With(labels).Observe(float64(requestSize))
	m.responseSize.With(labels).Observe(float64(responseSize))
}

// Collectors returns every collector owned by m.
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.rateLimitDecisions,
		m.rateLimitStoreErrors,
		m.requestDuration,
		m.requestsTotal,
		m.requestSize,
		m.responseSize,
	}
}
