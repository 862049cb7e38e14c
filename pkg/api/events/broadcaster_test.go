package events

import (
	"testing"
	"time"

	"github.com/wayfare/wayfare/pkg/hub"
)

func TestBroadcastReachesAllSubscribers(t *testing.T) {
	b := NewBroadcaster()
	defer b.Close()

	first := b.Subscribe(4)
	second := b.Subscribe(4)

	b.Broadcast(Event{Type: "saga.status_changed", Payload: "x"})

	for i, ch := range []chan Event{first, second} {
		select {
		case event := <-ch:
			if event.Type != "saga.status_changed" {
				t.Errorf("subscriber %d: unexpected type %q", i, event.Type)
			}
			if event.Timestamp.IsZero() {
				t.Errorf("subscriber %d: timestamp not stamped", i)
			}
		case <-time.After(time.Second):
			t.Fatalf("subscriber %d received nothing", i)
		}
	}
}

func TestBroadcastDropsOnOverflow(t *testing.T) {
	b := NewBroadcaster()
	defer b.Close()

	ch := b.Subscribe(1)
	b.Broadcast(Event{Type: "first"})
	b.Broadcast(Event{Type: "dropped"})

	event := <-ch
	if event.Type != "first" {
		t.Errorf("unexpected event %q", event.Type)
	}
	select {
	case extra := <-ch:
		t.Errorf("overflow event was delivered: %q", extra.Type)
	default:
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	b := NewBroadcaster()
	defer b.Close()

	ch := b.Subscribe(1)
	b.Unsubscribe(ch)

	if _, open := <-ch; open {
		t.Error("channel still open after unsubscribe")
	}

	// Double unsubscribe must not panic on the closed channel.
	b.Unsubscribe(ch)
	b.Broadcast(Event{Type: "after"})
}

func TestBroadcastInstanceEvent(t *testing.T) {
	b := NewBroadcaster()
	defer b.Close()

	ch := b.Subscribe(1)
	b.BroadcastInstanceEvent(hub.InstanceEvent{
		InstanceID:    "inst-1",
		Orchestration: "trip_booking",
		Status:        hub.StatusFailed,
		Reason:        "hotel booking failed",
		Timestamp:     time.Now().UTC(),
	})

	select {
	case event := <-ch:
		if event.Type != "saga.status_changed" {
			t.Fatalf("unexpected type %q", event.Type)
		}
		payload, ok := event.Payload.(map[string]any)
		if !ok {
			t.Fatalf("payload has type %T", event.Payload)
		}
		if payload["instance_id"] != "inst-1" || payload["status"] != "failed" {
			t.Errorf("unexpected payload %v", payload)
		}
		if payload["reason"] != "hotel booking failed" {
			t.Errorf("reason missing from payload %v", payload)
		}
	case <-time.After(time.Second):
		t.Fatal("no event delivered")
	}
}

func TestCloseTerminatesSubscribers(t *testing.T) {
	b := NewBroadcaster()
	ch := b.Subscribe(1)
	b.Close()

	if _, open := <-ch; open {
		t.Error("channel still open after Close")
	}
	// Broadcasting after Close must not panic.
	b.Broadcast(Event{Type: "late"})
}
