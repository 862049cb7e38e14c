package hub

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// OrchestratorFunc is deterministic control flow driven over recorded
// history. It must not read clocks, random sources, or other ambient
// state; all non-determinism belongs in activities.
type OrchestratorFunc func(ctx *OrchestrationContext) (any, error)

// ActivityInvocation carries one activity call's identity and input.
type ActivityInvocation struct {
	InstanceID string
	TaskID     string
	Name       string
	Attempt    int
	Input      json.RawMessage
}

// UnmarshalInput decodes the invocation input into v.
func (inv ActivityInvocation) UnmarshalInput(v any) error {
	if len(inv.Input) == 0 {
		return nil
	}
	return json.Unmarshal(inv.Input, v)
}

// ActivityFunc executes one effectful unit of work. A returned error is
// an infrastructure fault subject to the hub's retry budget; business
// rejections belong in the returned value.
type ActivityFunc func(ctx context.Context, inv ActivityInvocation) (any, error)

// Registry maps orchestration and activity names to functions.
type Registry struct {
	mu            sync.RWMutex
	orchestrators map[string]OrchestratorFunc
	activities    map[string]ActivityFunc
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		orchestrators: make(map[string]OrchestratorFunc),
		activities:    make(map[string]ActivityFunc),
	}
}

// RegisterOrchestrator registers an orchestrator function by name.
func (r *Registry) RegisterOrchestrator(name string, fn OrchestratorFunc) error {
	if name == "" || fn == nil {
		return fmt.Errorf("orchestrator name and function are required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.orchestrators[name]; exists {
		return fmt.Errorf("orchestrator %q already registered", name)
	}
	r.orchestrators[name] = fn
	return nil
}

// RegisterActivity registers an activity function by name.
func (r *Registry) RegisterActivity(name string, fn ActivityFunc) error {
	if name == "" || fn == nil {
		return fmt.Errorf("activity name and function are required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.activities[name]; exists {
		return fmt.Errorf("activity %q already registered", name)
	}
	r.activities[name] = fn
	return nil
}

// Orchestrator resolves an orchestrator by name.
func (r *Registry) Orchestrator(name string) (OrchestratorFunc, error) {
	r.mu.RLock()
	fn, ok := r.orchestrators[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: orchestrator %q", ErrNotRegistered, name)
	}
	return fn, nil
}

// Activity resolves an activity by name.
func (r *Registry) Activity(name string) (ActivityFunc, error) {
	r.mu.RLock()
	fn, ok := r.activities[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: activity %q", ErrNotRegistered, name)
	}
	return fn, nil
}

// HasOrchestrator reports whether an orchestrator name is registered.
func (r *Registry) HasOrchestrator(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.orchestrators[name]
	return ok
}
