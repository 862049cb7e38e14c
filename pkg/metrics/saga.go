package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/wayfare/wayfare/pkg/hub"
)

// initSagaMetrics initializes saga-related metrics.
func (m *Manager) initSagaMetrics(cfg Config) {
	m.sagaSubmissions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "saga_submissions_total",
			Help: "Total number of saga submissions by orchestration",
		},
		[]string{"orchestration"},
	)

	m.sagaDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "saga_duration_seconds",
			Help:    "Saga execution duration in seconds",
			Buckets: cfg.SagaDurationBuckets,
		},
		[]string{"orchestration", "status"},
	)

	m.sagaActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "saga_active_count",
			Help: "Current number of running saga instances",
		},
	)

	m.registry.MustRegister(m.sagaSubmissions)
	m.registry.MustRegister(m.sagaDuration)
	m.registry.MustRegister(m.sagaActive)
}

// RecordSubmission records a saga submission event.
func (m *Manager) RecordSubmission(orchestration string) {
	if !m.enabled {
		return
	}
	m.sagaSubmissions.WithLabelValues(orchestration).Inc()
	m.sagaActive.Inc()
}

// RecordOrchestration records a finished orchestration turn.
func (m *Manager) RecordOrchestration(orchestration string, status hub.Status, duration time.Duration) {
	if !m.enabled {
		return
	}
	m.sagaDuration.WithLabelValues(orchestration, string(status)).Observe(duration.Seconds())
	if status.IsTerminal() {
		m.sagaActive.Dec()
	}
}
