package hub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"
)

// runStoreSuite exercises the Store contract against any implementation.
func runStoreSuite(t *testing.T, newStore func(t *testing.T) Store) {
	t.Run("SaveAndGetInstance", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		instance := NewInstance("inst-1", "trip_booking", json.RawMessage(`{"destination":"Lisbon"}`))
		if err := store.SaveInstance(ctx, instance); err != nil {
			t.Fatalf("SaveInstance failed: %v", err)
		}

		got, err := store.GetInstance(ctx, "inst-1")
		if err != nil {
			t.Fatalf("GetInstance failed: %v", err)
		}
		if got.ID != "inst-1" || got.Orchestration != "trip_booking" {
			t.Errorf("unexpected instance: %+v", got)
		}
		if got.Status != StatusRunning {
			t.Errorf("expected running status, got %s", got.Status)
		}
		if string(got.Input) != `{"destination":"Lisbon"}` {
			t.Errorf("unexpected input: %s", got.Input)
		}
	})

	t.Run("GetMissingInstance", func(t *testing.T) {
		store := newStore(t)

		_, err := store.GetInstance(context.Background(), "nope")
		if !errors.Is(err, ErrInstanceNotFound) {
			t.Errorf("expected ErrInstanceNotFound, got %v", err)
		}
	})

	t.Run("UpdateTerminalStatus", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		instance := NewInstance("inst-2", "flight_booking", nil)
		if err := store.SaveInstance(ctx, instance); err != nil {
			t.Fatalf("SaveInstance failed: %v", err)
		}
		if err := instance.Complete(json.RawMessage(`{"status":"success"}`)); err != nil {
			t.Fatalf("Complete failed: %v", err)
		}
		if err := store.SaveInstance(ctx, instance); err != nil {
			t.Fatalf("SaveInstance update failed: %v", err)
		}

		got, err := store.GetInstance(ctx, "inst-2")
		if err != nil {
			t.Fatalf("GetInstance failed: %v", err)
		}
		if got.Status != StatusCompleted {
			t.Errorf("expected completed, got %s", got.Status)
		}
		if got.CompletedAt == nil {
			t.Error("expected CompletedAt to be set")
		}
		if string(got.Output) != `{"status":"success"}` {
			t.Errorf("unexpected output: %s", got.Output)
		}
	})

	t.Run("ListByStatus", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		for i := 0; i < 5; i++ {
			instance := NewInstance(fmt.Sprintf("list-%d", i), "trip_booking", nil)
			instance.CreatedAt = instance.CreatedAt.Add(time.Duration(i) * time.Millisecond)
			if i%2 == 1 {
				if err := instance.Fail("boom"); err != nil {
					t.Fatalf("Fail failed: %v", err)
				}
			}
			if err := store.SaveInstance(ctx, instance); err != nil {
				t.Fatalf("SaveInstance failed: %v", err)
			}
		}

		running, total, err := store.ListInstances(ctx, ListFilter{Status: StatusRunning})
		if err != nil {
			t.Fatalf("ListInstances failed: %v", err)
		}
		if total != 3 || len(running) != 3 {
			t.Errorf("expected 3 running, got total=%d len=%d", total, len(running))
		}
		for _, instance := range running {
			if instance.Status != StatusRunning {
				t.Errorf("unexpected status %s in filtered list", instance.Status)
			}
		}
	})

	t.Run("ListPagination", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		base := time.Now().UTC()
		for i := 0; i < 10; i++ {
			instance := NewInstance(fmt.Sprintf("page-%02d", i), "trip_booking", nil)
			instance.CreatedAt = base.Add(time.Duration(i) * time.Second)
			if err := store.SaveInstance(ctx, instance); err != nil {
				t.Fatalf("SaveInstance failed: %v", err)
			}
		}

		page, total, err := store.ListInstances(ctx, ListFilter{Limit: 3, Offset: 4})
		if err != nil {
			t.Fatalf("ListInstances failed: %v", err)
		}
		if total != 10 {
			t.Errorf("expected total 10, got %d", total)
		}
		if len(page) != 3 {
			t.Fatalf("expected 3 results, got %d", len(page))
		}
		if page[0].ID != "page-04" {
			t.Errorf("expected page-04 first, got %s", page[0].ID)
		}

		past, _, err := store.ListInstances(ctx, ListFilter{Limit: 3, Offset: 100})
		if err != nil {
			t.Fatalf("ListInstances failed: %v", err)
		}
		if len(past) != 0 {
			t.Errorf("expected empty page past the end, got %d", len(past))
		}
	})

	t.Run("DeleteInstance", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		instance := NewInstance("del-1", "trip_booking", nil)
		if err := store.SaveInstance(ctx, instance); err != nil {
			t.Fatalf("SaveInstance failed: %v", err)
		}
		if _, err := store.AppendEvent(ctx, HistoryEvent{InstanceID: "del-1", Type: EventOrchestrationStarted}); err != nil {
			t.Fatalf("AppendEvent failed: %v", err)
		}

		if err := store.DeleteInstance(ctx, "del-1"); err != nil {
			t.Fatalf("DeleteInstance failed: %v", err)
		}
		if _, err := store.GetInstance(ctx, "del-1"); !errors.Is(err, ErrInstanceNotFound) {
			t.Errorf("expected ErrInstanceNotFound after delete, got %v", err)
		}
		events, err := store.History(ctx, "del-1")
		if err != nil {
			t.Fatalf("History failed: %v", err)
		}
		if len(events) != 0 {
			t.Errorf("expected history wiped, got %d events", len(events))
		}

		if err := store.DeleteInstance(ctx, "del-1"); !errors.Is(err, ErrInstanceNotFound) {
			t.Errorf("expected ErrInstanceNotFound on second delete, got %v", err)
		}
	})

	t.Run("AppendEventSequence", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		for i := 1; i <= 3; i++ {
			seq, err := store.AppendEvent(ctx, HistoryEvent{
				InstanceID: "seq-1",
				Type:       EventTaskCompleted,
				TaskID:     fmt.Sprintf("%d", i),
				Name:       "book_flight",
			})
			if err != nil {
				t.Fatalf("AppendEvent failed: %v", err)
			}
			if seq != uint64(i) {
				t.Errorf("expected sequence %d, got %d", i, seq)
			}
		}

		// Sequences are per instance.
		seq, err := store.AppendEvent(ctx, HistoryEvent{InstanceID: "seq-2", Type: EventOrchestrationStarted})
		if err != nil {
			t.Fatalf("AppendEvent failed: %v", err)
		}
		if seq != 1 {
			t.Errorf("expected sequence 1 for fresh instance, got %d", seq)
		}

		events, err := store.History(ctx, "seq-1")
		if err != nil {
			t.Fatalf("History failed: %v", err)
		}
		if len(events) != 3 {
			t.Fatalf("expected 3 events, got %d", len(events))
		}
		for i, event := range events {
			if event.Sequence != uint64(i+1) {
				t.Errorf("event %d: expected sequence %d, got %d", i, i+1, event.Sequence)
			}
			if event.Timestamp.IsZero() {
				t.Errorf("event %d: timestamp not assigned", i)
			}
		}
	})

	t.Run("HistoryPayloadRoundTrip", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		payload := json.RawMessage(`{"succeeded":true,"confirmation_id":"FL-abc123"}`)
		if _, err := store.AppendEvent(ctx, HistoryEvent{
			InstanceID: "pay-1",
			Type:       EventTaskCompleted,
			TaskID:     "1",
			Name:       "book_flight",
			Payload:    payload,
		}); err != nil {
			t.Fatalf("AppendEvent failed: %v", err)
		}

		events, err := store.History(ctx, "pay-1")
		if err != nil {
			t.Fatalf("History failed: %v", err)
		}
		if len(events) != 1 {
			t.Fatalf("expected 1 event, got %d", len(events))
		}
		if string(events[0].Payload) != string(payload) {
			t.Errorf("payload mismatch: %s", events[0].Payload)
		}
	})
}

func TestMemoryStoreSuite(t *testing.T) {
	runStoreSuite(t, func(t *testing.T) Store {
		return NewMemoryStore()
	})
}

func TestMemoryStoreCloneIsolation(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	instance := NewInstance("iso-1", "trip_booking", json.RawMessage(`{}`))
	if err := store.SaveInstance(ctx, instance); err != nil {
		t.Fatalf("SaveInstance failed: %v", err)
	}

	got, err := store.GetInstance(ctx, "iso-1")
	if err != nil {
		t.Fatalf("GetInstance failed: %v", err)
	}
	got.Orchestration = "mutated"

	again, err := store.GetInstance(ctx, "iso-1")
	if err != nil {
		t.Fatalf("GetInstance failed: %v", err)
	}
	if again.Orchestration != "trip_booking" {
		t.Error("store returned aliased instance data")
	}
}
