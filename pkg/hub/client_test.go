package hub

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/wayfare/wayfare/pkg/logger"
)

func TestClientScheduleUnknownOrchestration(t *testing.T) {
	h := newHarness(t, WorkerConfig{})

	_, err := h.client.Schedule(context.Background(), "no_such_saga", nil)
	if !errors.Is(err, ErrNotRegistered) {
		t.Fatalf("expected ErrNotRegistered, got %v", err)
	}
}

func TestClientSchedulePersistsBeforeEnqueue(t *testing.T) {
	// Worker not started: the instance and its start event must already
	// be durable from Schedule alone.
	h := newHarness(t, WorkerConfig{})

	if err := h.registry.RegisterOrchestrator("pending", func(octx *OrchestrationContext) (any, error) {
		return nil, nil
	}); err != nil {
		t.Fatalf("RegisterOrchestrator failed: %v", err)
	}

	ctx := context.Background()
	id, err := h.client.Schedule(ctx, "pending", map[string]string{"city": "Lisbon"})
	if err != nil {
		t.Fatalf("Schedule failed: %v", err)
	}

	instance, err := h.client.Status(ctx, id)
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if instance.Status != StatusRunning {
		t.Errorf("expected running, got %s", instance.Status)
	}
	if instance.Orchestration != "pending" {
		t.Errorf("unexpected orchestration %q", instance.Orchestration)
	}

	events, err := h.client.History(ctx, id)
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if len(events) != 1 || events[0].Type != EventOrchestrationStarted {
		t.Errorf("expected single orchestration_started event, got %+v", events)
	}
}

func TestClientScheduleEnqueueFailure(t *testing.T) {
	store := NewMemoryStore()
	queue := NewChannelQueue(1)
	registry := NewRegistry()
	if err := registry.RegisterOrchestrator("stuck", func(octx *OrchestrationContext) (any, error) {
		return nil, nil
	}); err != nil {
		t.Fatalf("RegisterOrchestrator failed: %v", err)
	}
	client := NewClient(store, queue, registry, logger.Nop(), time.Millisecond)

	queue.Close()

	_, err := client.Schedule(context.Background(), "stuck", nil)
	if !errors.Is(err, ErrHubUnavailable) {
		t.Fatalf("expected ErrHubUnavailable, got %v", err)
	}
}

func TestClientStatusNotFound(t *testing.T) {
	h := newHarness(t, WorkerConfig{})

	_, err := h.client.Status(context.Background(), "missing")
	if !errors.Is(err, ErrInstanceNotFound) {
		t.Fatalf("expected ErrInstanceNotFound, got %v", err)
	}

	_, err = h.client.History(context.Background(), "missing")
	if !errors.Is(err, ErrInstanceNotFound) {
		t.Fatalf("expected ErrInstanceNotFound for history, got %v", err)
	}
}

func TestClientAwaitTimeout(t *testing.T) {
	// No worker running, so the instance never reaches a terminal state.
	h := newHarness(t, WorkerConfig{})

	if err := h.registry.RegisterOrchestrator("forever", func(octx *OrchestrationContext) (any, error) {
		return nil, nil
	}); err != nil {
		t.Fatalf("RegisterOrchestrator failed: %v", err)
	}

	ctx := context.Background()
	id, err := h.client.Schedule(ctx, "forever", nil)
	if err != nil {
		t.Fatalf("Schedule failed: %v", err)
	}

	_, err = h.client.Await(ctx, id, 30*time.Millisecond)
	if !errors.Is(err, ErrAwaitTimeout) {
		t.Fatalf("expected ErrAwaitTimeout, got %v", err)
	}
}

func TestClientAwaitRespectsContext(t *testing.T) {
	h := newHarness(t, WorkerConfig{})

	if err := h.registry.RegisterOrchestrator("forever", func(octx *OrchestrationContext) (any, error) {
		return nil, nil
	}); err != nil {
		t.Fatalf("RegisterOrchestrator failed: %v", err)
	}

	id, err := h.client.Schedule(context.Background(), "forever", nil)
	if err != nil {
		t.Fatalf("Schedule failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = h.client.Await(ctx, id, time.Second)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestClientList(t *testing.T) {
	h := newHarness(t, WorkerConfig{})

	if err := h.registry.RegisterOrchestrator("listed", func(octx *OrchestrationContext) (any, error) {
		return nil, nil
	}); err != nil {
		t.Fatalf("RegisterOrchestrator failed: %v", err)
	}

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if _, err := h.client.Schedule(ctx, "listed", nil); err != nil {
			t.Fatalf("Schedule failed: %v", err)
		}
	}

	instances, total, err := h.client.List(ctx, ListFilter{Status: StatusRunning})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if total != 3 || len(instances) != 3 {
		t.Errorf("expected 3 running instances, got total=%d len=%d", total, len(instances))
	}
}
