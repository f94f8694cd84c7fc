package triage

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds Prometheus metrics for classification.
type Metrics struct {
	ClassificationsTotal *prometheus.CounterVec
	ScorerCallsTotal     *prometheus.CounterVec
	ScorerDuration       prometheus.Histogram
}

// NewMetrics registers and returns classifier metrics on the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ClassificationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "carequeue_classifications_total",
			Help: "Symptom classifications by priority and deciding stage.",
		}, []string{"priority", "source"}),
		ScorerCallsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "carequeue_scorer_calls_total",
			Help: "Secondary scorer consultations by outcome.",
		}, []string{"outcome"}),
		ScorerDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "carequeue_scorer_duration_seconds",
			Help:    "Duration of secondary scorer consultations.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 8), // 50ms .. ~6.4s
		}),
	}

	reg.MustRegister(
		m.ClassificationsTotal,
		m.ScorerCallsTotal,
		m.ScorerDuration,
	)

	return m
}

// Hooks returns ClassifierHooks that update the metrics.
func (m *Metrics) Hooks() ClassifierHooks {
	return ClassifierHooks{
		OnClassify: func(p Priority, src Source) {
			m.ClassificationsTotal.WithLabelValues(p.String(), string(src)).Inc()
		},
		OnScorer: func(outcome string, duration float64) {
			m.ScorerCallsTotal.WithLabelValues(outcome).Inc()
			m.ScorerDuration.Observe(duration)
		},
	}
}
