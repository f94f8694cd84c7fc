package queue

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/linnemanlabs/carequeue/internal/triage"
)

// Metrics holds Prometheus metrics for the case queue.
type Metrics struct {
	CasesCreatedTotal    *prometheus.CounterVec
	CaseTransitionsTotal *prometheus.CounterVec
	QueuedCases          *prometheus.GaugeVec
}

// NewMetrics registers and returns queue metrics on the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		CasesCreatedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "carequeue_cases_created_total",
			Help: "Cases queued by assigned priority.",
		}, []string{"priority"}),
		CaseTransitionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "carequeue_case_transitions_total",
			Help: "Case close attempts by target status and result.",
		}, []string{"status", "result"}),
		QueuedCases: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "carequeue_queued_cases",
			Help: "Cases currently waiting, by priority. Refreshed on stats reads.",
		}, []string{"priority"}),
	}

	reg.MustRegister(
		m.CasesCreatedTotal,
		m.CaseTransitionsTotal,
		m.QueuedCases,
	)

	return m
}

// Hooks returns queue Hooks that update the counters.
func (m *Metrics) Hooks() Hooks {
	return Hooks{
		OnCreate: func(p triage.Priority) {
			m.CasesCreatedTotal.WithLabelValues(p.String()).Inc()
		},
		OnTransition: func(to Status, result string) {
			m.CaseTransitionsTotal.WithLabelValues(string(to), result).Inc()
		},
		OnStats: func(counts map[triage.Priority]int) {
			for p, n := range counts {
				m.QueuedCases.WithLabelValues(p.String()).Set(float64(n))
			}
		},
	}
}
