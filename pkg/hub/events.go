package hub

import "time"

// InstanceEvent announces a lifecycle change of an orchestration
// instance to registered listeners.
type InstanceEvent struct {
	InstanceID    string    `json:"instance_id"`
	Orchestration string    `json:"orchestration"`
	Status        Status    `json:"status"`
	Reason        string    `json:"reason,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

// Listener receives instance lifecycle events. Listeners must not
// block; slow consumers should hand off to their own queue.
type Listener func(event InstanceEvent)

// MetricsRecorder receives execution measurements from the worker.
type MetricsRecorder interface {
	RecordOrchestration(orchestration string, status Status, duration time.Duration)
	RecordActivity(name, outcome string, duration time.Duration)
	RecordActivityRetry(name string)
}

type nopMetrics struct{}

func (nopMetrics) RecordOrchestration(string, Status, time.Duration) {}
func (nopMetrics) RecordActivity(string, string, time.Duration)      {}
func (nopMetrics) RecordActivityRetry(string)                        {}

// NopMetrics returns a recorder that discards all measurements.
func NopMetrics() MetricsRecorder {
	return nopMetrics{}
}
