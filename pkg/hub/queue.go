package hub

import (
	"context"
	"sync"
)

// WorkItem is one unit of orchestration work.
type WorkItem struct {
	InstanceID    string `json:"instance_id"`
	Orchestration string `json:"orchestration"`
}

// Queue delivers work items to workers with at-least-once semantics.
type Queue interface {
	Enqueue(ctx context.Context, item WorkItem) error
	// Dequeue blocks until an item is available, the queue closes
	// (ErrQueueClosed), or the context is cancelled.
	Dequeue(ctx context.Context) (WorkItem, error)
	Close() error
}

// ChannelQueue is an in-process buffered queue.
type ChannelQueue struct {
	items     chan WorkItem
	closeOnce sync.Once
	closed    chan struct{}
}

// NewChannelQueue creates a channel queue with the given capacity.
func NewChannelQueue(size int) *ChannelQueue {
	if size <= 0 {
		size = 1024
	}
	return &ChannelQueue{
		items:  make(chan WorkItem, size),
		closed: make(chan struct{}),
	}
}

// Enqueue adds one work item.
func (q *ChannelQueue) Enqueue(ctx context.Context, item WorkItem) error {
	select {
	case <-q.closed:
		return ErrQueueClosed
	default:
	}
	select {
	case q.items <- item:
		return nil
	case <-q.closed:
		return ErrQueueClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Dequeue removes one work item, blocking until available.
func (q *ChannelQueue) Dequeue(ctx context.Context) (WorkItem, error) {
	select {
	case item := <-q.items:
		return item, nil
	case <-q.closed:
		// Drain remaining buffered items before reporting closed.
		select {
		case item := <-q.items:
			return item, nil
		default:
			return WorkItem{}, ErrQueueClosed
		}
	case <-ctx.Done():
		return WorkItem{}, ctx.Err()
	}
}

// Close shuts the queue down.
func (q *ChannelQueue) Close() error {
	q.closeOnce.Do(func() { close(q.closed) })
	return nil
}
