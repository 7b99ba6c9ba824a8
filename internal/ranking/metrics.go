package ranking

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics names as constants for consistency.
const (
	MetricRankingBatchesTotal          = "ranking_batches_total"
	MetricRankingBatchSize             = "ranking_batch_size"
	MetricRankingDuration              = "ranking_duration_seconds"
	MetricRankingRadiusExcluded        = "ranking_radius_excluded_total"
	MetricRankingDegradedProductsTotal = "ranking_degraded_products_total"
)

// Metrics contains Prometheus metrics for ranking batches.
// All operations are thread-safe.
type Metrics struct {
	batchesTotal     prometheus.Counter
	batchSize        prometheus.Histogram
	duration         prometheus.Histogram
	radiusExcluded   prometheus.Counter
	degradedProducts prometheus.Counter
}

// NewMetrics creates and returns a new Metrics instance with all collectors initialized.
// The metrics are not registered; call Register to register them with a registry.
func NewMetrics() *Metrics {
	return &Metrics{
		batchesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricRankingBatchesTotal,
			Help: "Total number of ranked batches",
		}),
		batchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    MetricRankingBatchSize,
			Help:    "Number of products per ranked batch",
			Buckets: prometheus.ExponentialBuckets(1, 4, 8), // 1 to ~16k products
		}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    MetricRankingDuration,
			Help:    "Histogram of ranking duration in seconds",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
		}),
		radiusExcluded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricRankingRadiusExcluded,
			Help: "Total number of products dropped by the radius filter",
		}),
		degradedProducts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricRankingDegradedProductsTotal,
			Help: "Total number of products ranked with zero factors after a scoring failure",
		}),
	}
}

// Register registers all metrics with the given registry.
// Returns an error if registration fails.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range m.Collectors() {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// ObserveBatch records one ranked batch of size products taking seconds.
func (m *Metrics) ObserveBatch(size int, seconds float64) {
	m.batchesTotal.Inc()
	m.batchSize.Observe(float64(size))
	m.duration.Observe(seconds)
}

// AddRadiusExcluded adds n to the radius-excluded counter.
func (m *Metrics) AddRadiusExcluded(n int) {
	if n > 0 {
		m.radiusExcluded.Add(float64(n))
	}
}

// AddDegradedProducts adds n to the degraded products counter.
func (m *Metrics) AddDegradedProducts(n int) {
	if n > 0 {
		m.degradedProducts.Add(float64(n))
	}
}

// Collectors returns all Prometheus collectors for testing.
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.batchesTotal,
		m.batchSize,
		m.duration,
		m.radiusExcluded,
		m.degradedProducts,
	}
}
