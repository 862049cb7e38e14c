package hub

import (
	"context"
	"encoding/json"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/wayfare/wayfare/pkg/logger"
)

type testHarness struct {
	store    Store
	queue    Queue
	registry *Registry
	worker   *Worker
	client   *Client
}

func newHarness(t *testing.T, cfg WorkerConfig) *testHarness {
	t.Helper()
	store := NewMemoryStore()
	queue := NewChannelQueue(16)
	registry := NewRegistry()
	log := logger.Nop()
	worker := NewWorker(store, queue, registry, log, cfg)
	client := NewClient(store, queue, registry, log, 5*time.Millisecond)
	t.Cleanup(func() {
		worker.Stop()
		queue.Close()
	})
	return &testHarness{store: store, queue: queue, registry: registry, worker: worker, client: client}
}

func (h *testHarness) start(t *testing.T) {
	t.Helper()
	h.worker.Start(context.Background())
}

func TestWorkerCompletesOrchestration(t *testing.T) {
	h := newHarness(t, WorkerConfig{Workers: 1})
	var executions atomic.Int64

	if err := h.registry.RegisterActivity("greet", func(_ context.Context, inv ActivityInvocation) (any, error) {
		executions.Add(1)
		var name string
		if err := inv.UnmarshalInput(&name); err != nil {
			return nil, err
		}
		return "hello " + name, nil
	}); err != nil {
		t.Fatalf("RegisterActivity failed: %v", err)
	}
	if err := h.registry.RegisterOrchestrator("greeting", func(octx *OrchestrationContext) (any, error) {
		var name, out string
		if err := octx.UnmarshalInput(&name); err != nil {
			return nil, err
		}
		if err := octx.CallActivity("greet", name, &out); err != nil {
			return nil, err
		}
		return out, nil
	}); err != nil {
		t.Fatalf("RegisterOrchestrator failed: %v", err)
	}
	h.start(t)

	ctx := context.Background()
	id, err := h.client.Schedule(ctx, "greeting", "world")
	if err != nil {
		t.Fatalf("Schedule failed: %v", err)
	}

	instance, err := h.client.Await(ctx, id, 2*time.Second)
	if err != nil {
		t.Fatalf("Await failed: %v", err)
	}
	if instance.Status != StatusCompleted {
		t.Fatalf("expected completed, got %s (%s)", instance.Status, instance.FailureReason)
	}
	var output string
	if err := json.Unmarshal(instance.Output, &output); err != nil {
		t.Fatalf("decoding output failed: %v", err)
	}
	if output != "hello world" {
		t.Errorf("unexpected output %q", output)
	}
	if executions.Load() != 1 {
		t.Errorf("expected 1 activity execution, got %d", executions.Load())
	}
	if instance.CompletedAt == nil {
		t.Error("CompletedAt not set on terminal instance")
	}
}

func TestWorkerRecordsOrchestratorFailure(t *testing.T) {
	h := newHarness(t, WorkerConfig{Workers: 1})

	if err := h.registry.RegisterOrchestrator("doomed", func(octx *OrchestrationContext) (any, error) {
		return nil, &TaskFailure{TaskID: "1", Name: "charge", Reason: "provider unreachable"}
	}); err != nil {
		t.Fatalf("RegisterOrchestrator failed: %v", err)
	}
	h.start(t)

	ctx := context.Background()
	id, err := h.client.Schedule(ctx, "doomed", nil)
	if err != nil {
		t.Fatalf("Schedule failed: %v", err)
	}

	instance, err := h.client.Await(ctx, id, 2*time.Second)
	if err != nil {
		t.Fatalf("Await failed: %v", err)
	}
	if instance.Status != StatusFailed {
		t.Fatalf("expected failed, got %s", instance.Status)
	}
	if !strings.Contains(instance.FailureReason, "provider unreachable") {
		t.Errorf("failure reason not surfaced: %q", instance.FailureReason)
	}

	events, err := h.store.History(ctx, id)
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	last := events[len(events)-1]
	if last.Type != EventOrchestrationFailed {
		t.Errorf("expected orchestration_failed terminal event, got %s", last.Type)
	}
}

func TestWorkerRecoversFromPanic(t *testing.T) {
	h := newHarness(t, WorkerConfig{Workers: 1})

	if err := h.registry.RegisterOrchestrator("panicky", func(octx *OrchestrationContext) (any, error) {
		panic("nil map write")
	}); err != nil {
		t.Fatalf("RegisterOrchestrator failed: %v", err)
	}
	h.start(t)

	ctx := context.Background()
	id, err := h.client.Schedule(ctx, "panicky", nil)
	if err != nil {
		t.Fatalf("Schedule failed: %v", err)
	}

	instance, err := h.client.Await(ctx, id, 2*time.Second)
	if err != nil {
		t.Fatalf("Await failed: %v", err)
	}
	if instance.Status != StatusFailed {
		t.Fatalf("expected failed, got %s", instance.Status)
	}
	if !strings.Contains(instance.FailureReason, "nil map write") {
		t.Errorf("panic message not captured: %q", instance.FailureReason)
	}
}

func TestWorkerRetriesActivities(t *testing.T) {
	h := newHarness(t, WorkerConfig{Workers: 1, MaxAttempts: 3, RetryBackoff: time.Millisecond})
	var attempts atomic.Int64

	if err := h.registry.RegisterActivity("shaky", func(context.Context, ActivityInvocation) (any, error) {
		if attempts.Add(1) < 3 {
			return nil, context.DeadlineExceeded
		}
		return "eventually", nil
	}); err != nil {
		t.Fatalf("RegisterActivity failed: %v", err)
	}
	if err := h.registry.RegisterOrchestrator("persistent", func(octx *OrchestrationContext) (any, error) {
		var out string
		if err := octx.CallActivity("shaky", nil, &out); err != nil {
			return nil, err
		}
		return out, nil
	}); err != nil {
		t.Fatalf("RegisterOrchestrator failed: %v", err)
	}
	h.start(t)

	ctx := context.Background()
	id, err := h.client.Schedule(ctx, "persistent", nil)
	if err != nil {
		t.Fatalf("Schedule failed: %v", err)
	}

	instance, err := h.client.Await(ctx, id, 2*time.Second)
	if err != nil {
		t.Fatalf("Await failed: %v", err)
	}
	if instance.Status != StatusCompleted {
		t.Fatalf("expected completed after retries, got %s (%s)", instance.Status, instance.FailureReason)
	}
	if attempts.Load() != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts.Load())
	}
}

func TestWorkerSkipsTerminalInstances(t *testing.T) {
	h := newHarness(t, WorkerConfig{Workers: 1})
	var executions atomic.Int64

	if err := h.registry.RegisterActivity("once", func(context.Context, ActivityInvocation) (any, error) {
		executions.Add(1)
		return "done", nil
	}); err != nil {
		t.Fatalf("RegisterActivity failed: %v", err)
	}
	if err := h.registry.RegisterOrchestrator("single", func(octx *OrchestrationContext) (any, error) {
		var out string
		if err := octx.CallActivity("once", nil, &out); err != nil {
			return nil, err
		}
		return out, nil
	}); err != nil {
		t.Fatalf("RegisterOrchestrator failed: %v", err)
	}
	h.start(t)

	ctx := context.Background()
	id, err := h.client.Schedule(ctx, "single", nil)
	if err != nil {
		t.Fatalf("Schedule failed: %v", err)
	}
	if _, err := h.client.Await(ctx, id, 2*time.Second); err != nil {
		t.Fatalf("Await failed: %v", err)
	}

	// Duplicate delivery of the same work item must be a no-op.
	if err := h.queue.Enqueue(ctx, WorkItem{InstanceID: id}); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	time.Sleep(50 * time.Millisecond)

	if executions.Load() != 1 {
		t.Errorf("duplicate delivery re-ran activity: %d executions", executions.Load())
	}

	events, err := h.store.History(ctx, id)
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	var completed int
	for _, event := range events {
		if event.Type == EventOrchestrationCompleted {
			completed++
		}
	}
	if completed != 1 {
		t.Errorf("expected exactly 1 orchestration_completed event, got %d", completed)
	}
}

func TestWorkerResumesAfterRestart(t *testing.T) {
	// First worker crashes mid-orchestration; a fresh worker picks up the
	// recorded history and finishes without re-running completed tasks.
	store := NewMemoryStore()
	registry := NewRegistry()
	log := logger.Nop()
	var firstRuns, secondRuns atomic.Int64

	if err := registry.RegisterActivity("first", func(context.Context, ActivityInvocation) (any, error) {
		firstRuns.Add(1)
		return "a", nil
	}); err != nil {
		t.Fatalf("RegisterActivity failed: %v", err)
	}

	crash := make(chan struct{})
	if err := registry.RegisterActivity("second", func(ctx context.Context, _ ActivityInvocation) (any, error) {
		select {
		case <-crash:
			secondRuns.Add(1)
			return "b", nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}); err != nil {
		t.Fatalf("RegisterActivity failed: %v", err)
	}
	if err := registry.RegisterOrchestrator("two_step", func(octx *OrchestrationContext) (any, error) {
		var a, b string
		if err := octx.CallActivity("first", nil, &a); err != nil {
			return nil, err
		}
		if err := octx.CallActivity("second", nil, &b); err != nil {
			return nil, err
		}
		return a + b, nil
	}); err != nil {
		t.Fatalf("RegisterOrchestrator failed: %v", err)
	}

	ctx := context.Background()

	queue1 := NewChannelQueue(4)
	worker1 := NewWorker(store, queue1, registry, log, WorkerConfig{Workers: 1})
	client1 := NewClient(store, queue1, registry, log, 5*time.Millisecond)
	worker1.Start(ctx)

	id, err := client1.Schedule(ctx, "two_step", nil)
	if err != nil {
		t.Fatalf("Schedule failed: %v", err)
	}

	// Wait until the first activity has been durably recorded.
	deadline := time.Now().Add(2 * time.Second)
	for {
		events, err := store.History(ctx, id)
		if err != nil {
			t.Fatalf("History failed: %v", err)
		}
		var done bool
		for _, event := range events {
			if event.Type == EventTaskCompleted && event.Name == "first" {
				done = true
			}
		}
		if done {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("first activity never completed")
		}
		time.Sleep(5 * time.Millisecond)
	}

	// Kill the first worker while "second" is blocked.
	worker1.Stop()
	close(crash)

	queue2 := NewChannelQueue(4)
	worker2 := NewWorker(store, queue2, registry, log, WorkerConfig{Workers: 1})
	client2 := NewClient(store, queue2, registry, log, 5*time.Millisecond)
	defer worker2.Stop()
	defer queue2.Close()

	recovered, err := worker2.RecoverPending(ctx)
	if err != nil {
		t.Fatalf("RecoverPending failed: %v", err)
	}
	if recovered != 1 {
		t.Fatalf("expected 1 recovered instance, got %d", recovered)
	}
	worker2.Start(ctx)

	instance, err := client2.Await(ctx, id, 2*time.Second)
	if err != nil {
		t.Fatalf("Await after restart failed: %v", err)
	}
	if instance.Status != StatusCompleted {
		t.Fatalf("expected completed, got %s (%s)", instance.Status, instance.FailureReason)
	}
	var output string
	if err := json.Unmarshal(instance.Output, &output); err != nil {
		t.Fatalf("decoding output failed: %v", err)
	}
	if output != "ab" {
		t.Errorf("unexpected output %q", output)
	}
	if firstRuns.Load() != 1 {
		t.Errorf("first activity re-executed after restart: %d runs", firstRuns.Load())
	}
}

func TestWorkerEmitsInstanceEvents(t *testing.T) {
	h := newHarness(t, WorkerConfig{Workers: 1})

	if err := h.registry.RegisterOrchestrator("noop", func(octx *OrchestrationContext) (any, error) {
		return "ok", nil
	}); err != nil {
		t.Fatalf("RegisterOrchestrator failed: %v", err)
	}

	events := make(chan InstanceEvent, 4)
	h.worker.AddListener(func(event InstanceEvent) {
		events <- event
	})
	h.start(t)

	ctx := context.Background()
	id, err := h.client.Schedule(ctx, "noop", nil)
	if err != nil {
		t.Fatalf("Schedule failed: %v", err)
	}
	if _, err := h.client.Await(ctx, id, 2*time.Second); err != nil {
		t.Fatalf("Await failed: %v", err)
	}

	select {
	case event := <-events:
		if event.InstanceID != id || event.Status != StatusCompleted {
			t.Errorf("unexpected event %+v", event)
		}
		if event.Orchestration != "noop" {
			t.Errorf("unexpected orchestration %q", event.Orchestration)
		}
	case <-time.After(time.Second):
		t.Fatal("no instance event emitted")
	}
}
