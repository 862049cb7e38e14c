// Package events fans saga lifecycle events out to in-process
// subscribers such as the websocket handler.
package events

import (
	"sync"
	"time"

	"github.com/wayfare/wayfare/pkg/hub"
)

// Event is the canonical event payload broadcast to subscribers.
type Event struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload"`
}

// Broadcaster broadcasts events to in-process subscribers.
type Broadcaster struct {
	mu          sync.RWMutex
	subscribers map[chan Event]struct{}
}

// NewBroadcaster creates a broadcaster instance.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		subscribers: make(map[chan Event]struct{}),
	}
}

// Subscribe subscribes to events with a buffered channel.
func (b *Broadcaster) Subscribe(buffer int) chan Event {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan Event, buffer)
	b.mu.Lock()
	b.subscribers[ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes a subscription and closes its channel.
func (b *Broadcaster) Unsubscribe(ch chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subscribers[ch]; !ok {
		return
	}
	delete(b.subscribers, ch)
	close(ch)
}

// Broadcast delivers an event to all subscribers, dropping on
// overflow so publishers never block.
func (b *Broadcaster) Broadcast(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	b.mu.RLock()
	subs := make([]chan Event, 0, len(b.subscribers))
	for ch := range b.subscribers {
		subs = append(subs, ch)
	}
	b.mu.RUnlock()

	for _, ch := range subs {
		select {
		case ch <- event:
		default:
		}
	}
}

// BroadcastInstanceEvent emits a saga instance lifecycle event. It
// satisfies hub.Listener when used as a method value.
func (b *Broadcaster) BroadcastInstanceEvent(event hub.InstanceEvent) {
	payload := map[string]any{
		"instance_id":   event.InstanceID,
		"orchestration": event.Orchestration,
		"status":        string(event.Status),
		"timestamp":     event.Timestamp.UTC().Format(time.RFC3339Nano),
	}
	if event.Reason != "" {
		payload["reason"] = event.Reason
	}

	b.Broadcast(Event{
		Type:      "saga.status_changed",
		Timestamp: event.Timestamp,
		Payload:   payload,
	})
}

// Close closes all subscriber channels.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subscribers {
		close(ch)
		delete(b.subscribers, ch)
	}
}
