package hub

import (
	"errors"
	"fmt"
)

// ErrInstanceNotFound is returned when an instance id is unknown.
var ErrInstanceNotFound = errors.New("orchestration instance not found")

// ErrAwaitTimeout is returned when a completion wait expires. The
// orchestration itself keeps running in the background.
var ErrAwaitTimeout = errors.New("orchestration await timed out")

// ErrHubUnavailable is returned when work cannot be enqueued.
var ErrHubUnavailable = errors.New("dispatch hub unavailable")

// ErrNotRegistered is returned when an orchestration or activity name
// has no registered function.
var ErrNotRegistered = errors.New("function not registered")

// ErrQueueClosed is returned by queue operations after shutdown.
var ErrQueueClosed = errors.New("work queue closed")

// NondeterminismError reports a divergence between orchestrator code and
// recorded history, which means the orchestrator is not deterministic.
type NondeterminismError struct {
	InstanceID string
	TaskID     string
	Recorded   string
	Requested  string
}

func (e *NondeterminismError) Error() string {
	return fmt.Sprintf(
		"non-deterministic orchestrator: instance %s task %s recorded %q but code requested %q",
		e.InstanceID, e.TaskID, e.Recorded, e.Requested,
	)
}

// TaskFailure carries a recorded task failure back through replay.
type TaskFailure struct {
	TaskID string
	Name   string
	Reason string
}

func (e *TaskFailure) Error() string {
	return fmt.Sprintf("task %s (%s) failed: %s", e.TaskID, e.Name, e.Reason)
}
