package compliance

import "github.com/prometheus/client_golang/prometheus"

// SummaryMetrics tracks compliance summary computation.
type SummaryMetrics struct {
	summariesTotal prometheus.Counter
	alertsTotal    *prometheus.CounterVec
	complianceRate prometheus.Histogram
}

// NewSummaryMetrics creates compliance metrics collectors.
func NewSummaryMetrics() *SummaryMetrics {
	return &SummaryMetrics{
		summariesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "compliance_summaries_total",
			Help: "Total number of compliance summaries computed.",
		}),
		alertsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "compliance_alerts_total",
			Help: "Compliance alerts generated by kind.",
		}, []string{"kind"}),
		complianceRate: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "compliance_rate_percent",
			Help:    "Distribution of computed compliance rates.",
			Buckets: []float64{0, 25, 50, 75, 90, 100},
		}),
	}
}

// Collectors returns all metrics for registration.
func (m *SummaryMetrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{m.summariesTotal, m.alertsTotal, m.complianceRate}
}

// Register registers all metrics with the given registry.
func (m *SummaryMetrics) Register(reg prometheus.Registerer) error {
	for _, c := range m.Collectors() {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// ObserveSummary records one computed summary.
func (m *SummaryMetrics) ObserveSummary(s *Summary) {
	m.summariesTotal.Inc()
	m.complianceRate.Observe(s.Metrics.ComplianceRate)
	for _, alert := range s.Alerts {
		m.alertsTotal.WithLabelValues(string(alert.Kind)).Inc()
	}
}
