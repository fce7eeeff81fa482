package verification

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metric names as constants for consistency.
const (
	MetricVerifyTotal       = "verification_verify_total"
	MetricVerifyDuration    = "verification_verify_duration_seconds"
	MetricCacheHits         = "verification_cache_hits_total"
	MetricAuthorityErrors   = "verification_authority_errors_total"
	MetricFallbackTotal     = "verification_fallback_total"
)

// Metrics contains Prometheus metrics for barcode verification.
// All operations are thread-safe.
type Metrics struct {
	verifyTotal     *prometheus.CounterVec
	verifyDuration  prometheus.Histogram
	cacheHits       prometheus.Counter
	authorityErrors *prometheus.CounterVec
	fallbackTotal   prometheus.Counter
}

// NewMetrics creates and returns a new Metrics instance with all collectors
// initialized. The metrics are not registered; call Register to register
// them with a registry.
func NewMetrics() *Metrics {
	return &Metrics{
		verifyTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricVerifyTotal,
			Help: "Total number of barcode verification requests by result source",
		}, []string{"source"}),
		verifyDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    MetricVerifyDuration,
			Help:    "Histogram of barcode verification duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
		}),
		cacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricCacheHits,
			Help: "Total number of verification requests answered from the cache",
		}),
		authorityErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricAuthorityErrors,
			Help: "Total number of failed certification authority queries by authority",
		}, []string{"authority"}),
		fallbackTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricFallbackTotal,
			Help: "Total number of verifications answered from the local fallback source",
		}),
	}
}

// Collectors returns all metric collectors for registration.
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.verifyTotal,
		m.verifyDuration,
		m.cacheHits,
		m.authorityErrors,
		m.fallbackTotal,
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

// ObserveVerify records a completed verification with its source and duration.
func (m *Metrics) ObserveVerify(source Source, seconds float64) {
	m.verifyTotal.WithLabelValues(string(source)).Inc()
	m.verifyDuration.Observe(seconds)
	switch source {
	case SourceCache:
		m.cacheHits.Inc()
	case SourceFallback:
		m.fallbackTotal.Inc()
	}
}

// IncAuthorityError records a failed authority query.
func (m *Metrics) IncAuthorityError(authority string) {
	m.authorityErrors.WithLabelValues(authority).Inc()
}
