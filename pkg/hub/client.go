package hub

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/wayfare/wayfare/pkg/logger"
)

// Client submits orchestrations and queries their state.
type Client struct {
	store        Store
	queue        Queue
	registry     *Registry
	log          logger.Logger
	pollInterval time.Duration
}

// NewClient creates a client over the given store and queue. The
// registry is used to reject submissions of unknown orchestrations
// before anything is persisted.
func NewClient(store Store, queue Queue, registry *Registry, log logger.Logger, pollInterval time.Duration) *Client {
	if pollInterval <= 0 {
		pollInterval = 100 * time.Millisecond
	}
	return &Client{
		store:        store,
		queue:        queue,
		registry:     registry,
		log:          log,
		pollInterval: pollInterval,
	}
}

// Schedule durably records a new instance of the named orchestration
// and enqueues it for execution, returning the instance id. The
// instance record and its start event are persisted before the work
// item is enqueued, so a crash between the two is recoverable.
func (c *Client) Schedule(ctx context.Context, orchestration string, input any) (string, error) {
	if !c.registry.HasOrchestrator(orchestration) {
		return "", fmt.Errorf("orchestration %q: %w", orchestration, ErrNotRegistered)
	}

	payload, err := json.Marshal(input)
	if err != nil {
		return "", fmt.Errorf("marshal orchestration input: %w", err)
	}

	instance := NewInstance(uuid.NewString(), orchestration, payload)
	if err := c.store.SaveInstance(ctx, instance); err != nil {
		return "", fmt.Errorf("save instance: %w", err)
	}
	if _, err := c.store.AppendEvent(ctx, HistoryEvent{
		InstanceID: instance.ID,
		Type:       EventOrchestrationStarted,
		Name:       orchestration,
		Payload:    payload,
	}); err != nil {
		return "", fmt.Errorf("append start event: %w", err)
	}

	item := WorkItem{InstanceID: instance.ID, Orchestration: orchestration}
	if err := c.queue.Enqueue(ctx, item); err != nil {
		return "", fmt.Errorf("enqueue instance %s: %w: %v", instance.ID, ErrHubUnavailable, err)
	}

	c.log.InfoContext(ctx, "orchestration scheduled",
		"instance_id", instance.ID, "orchestration", orchestration)
	return instance.ID, nil
}

// Status returns the current instance record.
func (c *Client) Status(ctx context.Context, id string) (*Instance, error) {
	return c.store.GetInstance(ctx, id)
}

// History returns the recorded history of an instance.
func (c *Client) History(ctx context.Context, id string) ([]HistoryEvent, error) {
	if _, err := c.store.GetInstance(ctx, id); err != nil {
		return nil, err
	}
	return c.store.History(ctx, id)
}

// List returns instances matching the filter plus the total match count.
func (c *Client) List(ctx context.Context, filter ListFilter) ([]*Instance, int, error) {
	return c.store.ListInstances(ctx, filter)
}

// Await blocks until the instance reaches a terminal status or the
// timeout elapses, returning the terminal record or ErrAwaitTimeout.
func (c *Client) Await(ctx context.Context, id string, timeout time.Duration) (*Instance, error) {
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		instance, err := c.store.GetInstance(ctx, id)
		if err != nil {
			return nil, err
		}
		if instance.Status.IsTerminal() {
			return instance, nil
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("instance %s still %s after %s: %w",
				id, instance.Status, timeout, ErrAwaitTimeout)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
