package core

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the Prometheus collectors for the status events of
// spec.md §6, grounded on the teacher's internal/middleware/monitoring.go
// Metrics struct (a plain field-per-collector bag registered once at
// construction, rather than package-level globals).
type Metrics struct {
	DecisionsTotal          *prometheus.CounterVec
	QueryLatencySeconds     prometheus.Histogram
	MemoryActionsTotal      *prometheus.CounterVec
	WebSessionRequestsTotal *prometheus.CounterVec
}

// NewMetrics creates and registers the core's Prometheus collectors
// against reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		DecisionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rag_decisions_total",
				Help: "Total number of RAG decisions, labeled by whether retrieval was needed.",
			},
			[]string{"needs_retrieval"},
		),
		QueryLatencySeconds: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "rag_query_latency_seconds",
				Help:    "End-to-end processRagQuery latency in seconds.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
			},
		),
		MemoryActionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "memory_consolidation_actions_total",
				Help: "Total number of memory consolidation outcomes, labeled by action.",
			},
			[]string{"action"},
		),
		WebSessionRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "websession_requests_total",
				Help: "Total number of web-session send attempts, labeled by outcome status.",
			},
			[]string{"status"},
		),
	}

	reg.MustRegister(m.DecisionsTotal, m.QueryLatencySeconds, m.MemoryActionsTotal, m.WebSessionRequestsTotal)
	return m
}
