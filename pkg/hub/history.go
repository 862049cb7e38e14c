package hub

import (
	"encoding/json"
	"time"
)

// EventType identifies one history event kind.
type EventType string

const (
	EventOrchestrationStarted   EventType = "orchestration_started"
	EventTaskScheduled          EventType = "task_scheduled"
	EventTaskCompleted          EventType = "task_completed"
	EventTaskFailed             EventType = "task_failed"
	EventSubOrchestrationDone   EventType = "suborchestration_completed"
	EventSubOrchestrationFailed EventType = "suborchestration_failed"
	EventOrchestrationCompleted EventType = "orchestration_completed"
	EventOrchestrationFailed    EventType = "orchestration_failed"
)

// HistoryEvent is one append-only record of orchestration progress.
// Sequence numbers are per-instance and assigned by the store.
type HistoryEvent struct {
	Sequence   uint64          `json:"sequence"`
	InstanceID string          `json:"instance_id"`
	Type       EventType       `json:"type"`
	TaskID     string          `json:"task_id,omitempty"`
	Name       string          `json:"name,omitempty"`
	Attempt    int             `json:"attempt,omitempty"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	Reason     string          `json:"reason,omitempty"`
	Timestamp  time.Time       `json:"timestamp"`
}

// replayTable indexes recorded task outcomes by task id for replay.
type replayTable struct {
	outcomes map[string]*HistoryEvent
}

func buildReplayTable(events []HistoryEvent) *replayTable {
	table := &replayTable{outcomes: make(map[string]*HistoryEvent, len(events))}
	for i := range events {
		event := &events[i]
		switch event.Type {
		case EventTaskCompleted, EventTaskFailed,
			EventSubOrchestrationDone, EventSubOrchestrationFailed:
			table.outcomes[event.TaskID] = event
		}
	}
	return table
}

// lookup returns the recorded outcome for a task id, if any.
func (t *replayTable) lookup(taskID string) (*HistoryEvent, bool) {
	event, ok := t.outcomes[taskID]
	return event, ok
}
