// Package hub implements the durable dispatch substrate: instance
// records, append-only history, a work queue, and workers that drive
// deterministic orchestrators over recorded history.
package hub

import (
	"encoding/json"
	"fmt"
	"time"
)

// Status is the lifecycle state of an orchestration instance.
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// IsTerminal reports whether the status is terminal.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

var validTransitions = map[Status]map[Status]struct{}{
	StatusRunning: {
		StatusCompleted: {},
		StatusFailed:    {},
	},
}

// ValidateTransition validates instance status transitions.
func ValidateTransition(current, next Status) error {
	if current == next {
		return nil
	}
	if _, ok := validTransitions[current][next]; !ok {
		return fmt.Errorf("invalid instance status transition: %s -> %s", current, next)
	}
	return nil
}

// Instance is one durable record of an orchestration execution.
type Instance struct {
	ID            string          `json:"id"`
	Orchestration string          `json:"orchestration"`
	Status        Status          `json:"status"`
	Input         json.RawMessage `json:"input,omitempty"`
	Output        json.RawMessage `json:"output,omitempty"`
	FailureReason string          `json:"failure_reason,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
	CompletedAt   *time.Time      `json:"completed_at,omitempty"`
}

// NewInstance creates a running instance record.
func NewInstance(id, orchestration string, input json.RawMessage) *Instance {
	now := time.Now().UTC()
	return &Instance{
		ID:            id,
		Orchestration: orchestration,
		Status:        StatusRunning,
		Input:         input,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// Complete transitions the instance to a terminal success.
func (i *Instance) Complete(output json.RawMessage) error {
	if err := ValidateTransition(i.Status, StatusCompleted); err != nil {
		return err
	}
	now := time.Now().UTC()
	i.Status = StatusCompleted
	i.Output = output
	i.UpdatedAt = now
	i.CompletedAt = &now
	return nil
}

// Fail transitions the instance to a terminal failure.
func (i *Instance) Fail(reason string) error {
	if err := ValidateTransition(i.Status, StatusFailed); err != nil {
		return err
	}
	now := time.Now().UTC()
	i.Status = StatusFailed
	i.FailureReason = reason
	i.UpdatedAt = now
	i.CompletedAt = &now
	return nil
}

func cloneInstance(instance *Instance) *Instance {
	if instance == nil {
		return nil
	}
	clone := *instance
	clone.Input = append(json.RawMessage(nil), instance.Input...)
	clone.Output = append(json.RawMessage(nil), instance.Output...)
	if instance.CompletedAt != nil {
		done := *instance.CompletedAt
		clone.CompletedAt = &done
	}
	return &clone
}
