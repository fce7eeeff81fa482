package logbook

import "github.com/prometheus/client_golang/prometheus"

const (
	outcomeOK    = "ok"
	outcomeError = "error"
)

// Metrics tracks logbook service activity.
type Metrics struct {
	operations *prometheus.CounterVec
	auditSize  prometheus.Histogram
}

// NewMetrics creates logbook metrics collectors.
func NewMetrics() *Metrics {
	return &Metrics{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "logbook_operations_total",
			Help: "Logbook operations by operation and outcome.",
		}, []string{"operation", "outcome"}),
		auditSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "logbook_audit_trail_events",
			Help:    "Audit trail length of mutated entries.",
			Buckets: []float64{1, 2, 5, 10, 25, 50, 100},
		}),
	}
}

// Collectors returns all metrics for registration.
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{m.operations, m.auditSize}
}

// Register registers all metrics with the given registry.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range m.Collectors() {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// IncOperation counts one service operation.
func (m *Metrics) IncOperation(operation, outcome string) {
	m.operations.WithLabelValues(operation, outcome).Inc()
}

// ObserveAuditTrail records the audit trail length after a mutation.
func (m *Metrics) ObserveAuditTrail(events int) {
	m.auditSize.Observe(float64(events))
}
