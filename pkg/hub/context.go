package hub

import (
	"context"
	"encoding/json"
	"fmt"
)

// activityRunner executes one activity attempt loop on behalf of an
// orchestration turn. Supplied by the worker so rate limiting, retry,
// tracing, and metrics stay out of replay logic.
type activityRunner func(ctx context.Context, inv ActivityInvocation) (json.RawMessage, error)

// OrchestrationContext is the deterministic facade handed to
// orchestrator functions. Each call to an activity or sub-orchestration
// consumes the next task id; calls whose outcome is already recorded in
// history are replayed from the record instead of re-executed.
type OrchestrationContext struct {
	ctx      context.Context
	instance *Instance
	store    Store
	registry *Registry
	table    *replayTable
	run      activityRunner

	// prefix namespaces task ids of a sub-orchestration frame under the
	// parent task that spawned it.
	prefix  string
	counter int
	input   json.RawMessage
}

// InstanceID returns the id of the running instance.
func (c *OrchestrationContext) InstanceID() string {
	return c.instance.ID
}

// UnmarshalInput decodes the orchestration input into v.
func (c *OrchestrationContext) UnmarshalInput(v any) error {
	if len(c.input) == 0 {
		return nil
	}
	return json.Unmarshal(c.input, v)
}

func (c *OrchestrationContext) nextTaskID() string {
	c.counter++
	return fmt.Sprintf("%s%d", c.prefix, c.counter)
}

// CallActivity invokes a named activity, suspending until its result is
// available, and decodes the result into output (which may be nil).
// A recorded completion replays without re-executing the activity.
func (c *OrchestrationContext) CallActivity(name string, input, output any) error {
	taskID := c.nextTaskID()

	if recorded, ok := c.table.lookup(taskID); ok {
		if recorded.Name != name {
			return &NondeterminismError{
				InstanceID: c.instance.ID,
				TaskID:     taskID,
				Recorded:   recorded.Name,
				Requested:  name,
			}
		}
		switch recorded.Type {
		case EventTaskCompleted:
			return decodeInto(recorded.Payload, output)
		case EventTaskFailed:
			return &TaskFailure{TaskID: taskID, Name: name, Reason: recorded.Reason}
		default:
			return fmt.Errorf("unexpected recorded event %s for task %s", recorded.Type, taskID)
		}
	}

	payload, err := json.Marshal(input)
	if err != nil {
		return fmt.Errorf("marshal activity input: %w", err)
	}

	if _, err := c.store.AppendEvent(c.ctx, HistoryEvent{
		InstanceID: c.instance.ID,
		Type:       EventTaskScheduled,
		TaskID:     taskID,
		Name:       name,
		Payload:    payload,
	}); err != nil {
		return err
	}

	result, runErr := c.run(c.ctx, ActivityInvocation{
		InstanceID: c.instance.ID,
		TaskID:     taskID,
		Name:       name,
		Input:      payload,
	})
	if runErr != nil {
		// A cancelled turn is abandoned, not failed: the task outcome
		// stays unrecorded so a recovering worker re-executes it.
		if c.ctx.Err() != nil {
			return fmt.Errorf("turn interrupted: %w", c.ctx.Err())
		}
		if _, err := c.store.AppendEvent(c.ctx, HistoryEvent{
			InstanceID: c.instance.ID,
			Type:       EventTaskFailed,
			TaskID:     taskID,
			Name:       name,
			Reason:     runErr.Error(),
		}); err != nil {
			return err
		}
		return &TaskFailure{TaskID: taskID, Name: name, Reason: runErr.Error()}
	}

	if _, err := c.store.AppendEvent(c.ctx, HistoryEvent{
		InstanceID: c.instance.ID,
		Type:       EventTaskCompleted,
		TaskID:     taskID,
		Name:       name,
		Payload:    result,
	}); err != nil {
		return err
	}

	return decodeInto(result, output)
}

// CallSubOrchestrator runs a named orchestrator as a child frame,
// suspending until it completes, and decodes its result into output.
// The child's own task ids live under this call's task id, so a
// partially executed child replays correctly after a restart.
func (c *OrchestrationContext) CallSubOrchestrator(name string, input, output any) error {
	taskID := c.nextTaskID()

	if recorded, ok := c.table.lookup(taskID); ok {
		if recorded.Name != name {
			return &NondeterminismError{
				InstanceID: c.instance.ID,
				TaskID:     taskID,
				Recorded:   recorded.Name,
				Requested:  name,
			}
		}
		switch recorded.Type {
		case EventSubOrchestrationDone:
			return decodeInto(recorded.Payload, output)
		case EventSubOrchestrationFailed:
			return &TaskFailure{TaskID: taskID, Name: name, Reason: recorded.Reason}
		default:
			return fmt.Errorf("unexpected recorded event %s for task %s", recorded.Type, taskID)
		}
	}

	fn, err := c.registry.Orchestrator(name)
	if err != nil {
		return err
	}

	childInput, err := json.Marshal(input)
	if err != nil {
		return fmt.Errorf("marshal sub-orchestration input: %w", err)
	}

	child := &OrchestrationContext{
		ctx:      c.ctx,
		instance: c.instance,
		store:    c.store,
		registry: c.registry,
		table:    c.table,
		run:      c.run,
		prefix:   taskID + ".",
		input:    childInput,
	}

	result, runErr := fn(child)
	if runErr != nil {
		if c.ctx.Err() != nil {
			return fmt.Errorf("turn interrupted: %w", c.ctx.Err())
		}
		if _, err := c.store.AppendEvent(c.ctx, HistoryEvent{
			InstanceID: c.instance.ID,
			Type:       EventSubOrchestrationFailed,
			TaskID:     taskID,
			Name:       name,
			Reason:     runErr.Error(),
		}); err != nil {
			return err
		}
		return &TaskFailure{TaskID: taskID, Name: name, Reason: runErr.Error()}
	}

	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal sub-orchestration result: %w", err)
	}

	if _, err := c.store.AppendEvent(c.ctx, HistoryEvent{
		InstanceID: c.instance.ID,
		Type:       EventSubOrchestrationDone,
		TaskID:     taskID,
		Name:       name,
		Payload:    payload,
	}); err != nil {
		return err
	}

	return decodeInto(payload, output)
}

func decodeInto(payload json.RawMessage, v any) error {
	if v == nil || len(payload) == 0 {
		return nil
	}
	return json.Unmarshal(payload, v)
}
