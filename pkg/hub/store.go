package hub

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// ListFilter controls instance list queries.
type ListFilter struct {
	Status Status
	Limit  int
	Offset int
}

// Store persists instance records and history events.
type Store interface {
	SaveInstance(ctx context.Context, instance *Instance) error
	GetInstance(ctx context.Context, id string) (*Instance, error)
	ListInstances(ctx context.Context, filter ListFilter) ([]*Instance, int, error)
	DeleteInstance(ctx context.Context, id string) error

	// AppendEvent assigns the next per-instance sequence number, persists
	// the event, and returns it.
	AppendEvent(ctx context.Context, event HistoryEvent) (uint64, error)
	History(ctx context.Context, instanceID string) ([]HistoryEvent, error)

	Close() error
}

// MemoryStore is an in-memory Store implementation.
type MemoryStore struct {
	mu        sync.RWMutex
	instances map[string]*Instance
	histories map[string][]HistoryEvent
}

// NewMemoryStore creates an in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		instances: make(map[string]*Instance),
		histories: make(map[string][]HistoryEvent),
	}
}

// SaveInstance saves one instance record.
func (s *MemoryStore) SaveInstance(_ context.Context, instance *Instance) error {
	if instance == nil {
		return fmt.Errorf("instance cannot be nil")
	}
	s.mu.Lock()
	s.instances[instance.ID] = cloneInstance(instance)
	s.mu.Unlock()
	return nil
}

// GetInstance loads one instance record by id.
func (s *MemoryStore) GetInstance(_ context.Context, id string) (*Instance, error) {
	s.mu.RLock()
	instance, ok := s.instances[id]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrInstanceNotFound
	}
	return cloneInstance(instance), nil
}

// ListInstances lists instances with optional status filter and pagination.
func (s *MemoryStore) ListInstances(_ context.Context, filter ListFilter) ([]*Instance, int, error) {
	s.mu.RLock()
	all := make([]*Instance, 0, len(s.instances))
	for _, instance := range s.instances {
		if filter.Status != "" && instance.Status != filter.Status {
			continue
		}
		all = append(all, cloneInstance(instance))
	}
	s.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool {
		if all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].ID < all[j].ID
		}
		return all[i].CreatedAt.Before(all[j].CreatedAt)
	})

	total := len(all)
	offset, end := pageBounds(total, filter.Offset, filter.Limit)
	return all[offset:end], total, nil
}

// DeleteInstance removes one instance and its history.
func (s *MemoryStore) DeleteInstance(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.instances[id]; !ok {
		return ErrInstanceNotFound
	}
	delete(s.instances, id)
	delete(s.histories, id)
	return nil
}

// AppendEvent appends one history event with the next sequence number.
func (s *MemoryStore) AppendEvent(_ context.Context, event HistoryEvent) (uint64, error) {
	if event.InstanceID == "" {
		return 0, fmt.Errorf("history event instance_id cannot be empty")
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	event.Sequence = uint64(len(s.histories[event.InstanceID])) + 1
	s.histories[event.InstanceID] = append(s.histories[event.InstanceID], event)
	return event.Sequence, nil
}

// History returns all events for one instance in sequence order.
func (s *MemoryStore) History(_ context.Context, instanceID string) ([]HistoryEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	events := make([]HistoryEvent, len(s.histories[instanceID]))
	copy(events, s.histories[instanceID])
	return events, nil
}

// Close is a no-op for the memory store.
func (s *MemoryStore) Close() error { return nil }

func pageBounds(total, offset, limit int) (int, int) {
	if offset < 0 {
		offset = 0
	}
	if offset > total {
		offset = total
	}
	end := total
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return offset, end
}
