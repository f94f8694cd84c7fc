package notify

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds Prometheus collectors for notification delivery.
type Metrics struct {
	deliveries *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	retries    *prometheus.CounterVec
}

// NewMetrics creates and registers notification metrics with the given registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "carequeue_notifications_total",
			Help: "Notification delivery attempts by channel and final status.",
		}, []string{"channel", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "carequeue_notification_delivery_seconds",
			Help:    "Time spent in a delivery channel.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"channel"}),
		retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "carequeue_notification_retries_total",
			Help: "Notification retries by result.",
		}, []string{"result"}),
	}
	reg.MustRegister(m.deliveries, m.duration, m.retries)
	return m
}

// Hooks returns dispatcher hooks that record metrics.
func (m *Metrics) Hooks() Hooks {
	return Hooks{
		OnDelivery: func(channel string, status Status, seconds float64) {
			m.deliveries.WithLabelValues(channel, string(status)).Inc()
			m.duration.WithLabelValues(channel).Observe(seconds)
		},
		OnRetry: func(result string) {
			m.retries.WithLabelValues(result).Inc()
		},
	}
}
