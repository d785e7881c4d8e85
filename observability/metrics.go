package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"listchain/native/escrow"
)

type escrowMetrics struct {
	transitions *prometheus.CounterVec
	failures    *prometheus.CounterVec
}

var (
	escrowMetricsOnce sync.Once
	escrowRegistry    *escrowMetrics
)

// EscrowMetrics returns the lazily-initialised escrow metrics registry used
// to record state-machine activity.
func EscrowMetrics() *escrowMetrics {
	escrowMetricsOnce.Do(func() {
		escrowRegistry = &escrowMetrics{
			transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "listchain",
				Subsystem: "escrow",
				Name:      "transitions_total",
				Help:      "Total escrow operations segmented by operation and outcome.",
			}, []string{"operation", "outcome"}),
			failures: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "listchain",
				Subsystem: "escrow",
				Name:      "failures_total",
				Help:      "Total guard failures segmented by operation and error identifier.",
			}, []string{"operation", "error"}),
		}
		prometheus.MustRegister(escrowRegistry.transitions, escrowRegistry.failures)
	})
	return escrowRegistry
}

// ObserveTransition records the outcome of an escrow operation.
func (m *escrowMetrics) ObserveTransition(operation string, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
		identifier := escrow.Identifier(err)
		if identifier == "" {
			identifier = "internal"
		}
		m.failures.WithLabelValues(operation, identifier).Inc()
	}
	m.transitions.WithLabelValues(operation, outcome).Inc()
}
