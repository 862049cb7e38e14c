package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// initActivityMetrics initializes activity-related metrics.
func (m *Manager) initActivityMetrics(cfg Config) {
	m.activityExecutions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "activity_executions_total",
			Help: "Total number of activity executions by activity and outcome",
		},
		[]string{"activity", "outcome"},
	)

	m.activityDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "activity_duration_seconds",
			Help:    "Activity execution duration in seconds",
			Buckets: cfg.ActivityDurationBuckets,
		},
		[]string{"activity"},
	)

	m.activityRetries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "activity_retries_total",
			Help: "Total number of activity retry attempts",
		},
		[]string{"activity"},
	)

	m.registry.MustRegister(m.activityExecutions)
	m.registry.MustRegister(m.activityDuration)
	m.registry.MustRegister(m.activityRetries)
}

// RecordActivity records one activity execution attempt.
func (m *Manager) RecordActivity(name, outcome string, duration time.Duration) {
	if !m.enabled {
		return
	}
	m.activityExecutions.WithLabelValues(name, outcome).Inc()
	m.activityDuration.WithLabelValues(name).Observe(duration.Seconds())
}

// RecordActivityRetry records an activity retry attempt.
func (m *Manager) RecordActivityRetry(name string) {
	if !m.enabled {
		return
	}
	m.activityRetries.WithLabelValues(name).Inc()
}
