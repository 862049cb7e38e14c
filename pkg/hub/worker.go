package hub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/wayfare/wayfare/pkg/logger"
)

// WorkerConfig tunes the worker pool.
type WorkerConfig struct {
	// Workers is the number of concurrent turn executors.
	Workers int

	// MaxAttempts is the per-task activity attempt budget. Values
	// below 1 are treated as 1.
	MaxAttempts int

	// RetryBackoff is the pause between activity attempts.
	RetryBackoff time.Duration

	// RateLimit caps activity executions per second across the pool.
	// Zero disables limiting.
	RateLimit float64
}

// Worker drains the work queue and drives orchestration turns: load
// the instance and its history, replay the orchestrator over recorded
// outcomes, execute whatever is not yet recorded, and persist the
// terminal result.
type Worker struct {
	store    Store
	queue    Queue
	registry *Registry
	log      logger.Logger
	tracer   trace.Tracer

	workers      int
	maxAttempts  int
	retryBackoff time.Duration
	limiter      *rate.Limiter
	metrics      MetricsRecorder

	mu        sync.Mutex
	listeners []Listener

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// NewWorker creates a worker pool over the given store and queue.
func NewWorker(store Store, queue Queue, registry *Registry, log logger.Logger, cfg WorkerConfig) *Worker {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 100 * time.Millisecond
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RateLimit > 0 {
		burst := int(cfg.RateLimit)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}
	return &Worker{
		store:        store,
		queue:        queue,
		registry:     registry,
		log:          log,
		tracer:       otel.Tracer("wayfare/hub"),
		workers:      cfg.Workers,
		maxAttempts:  cfg.MaxAttempts,
		retryBackoff: cfg.RetryBackoff,
		limiter:      limiter,
		metrics:      NopMetrics(),
	}
}

// SetMetrics installs a metrics recorder. Call before Start.
func (w *Worker) SetMetrics(m MetricsRecorder) {
	if m != nil {
		w.metrics = m
	}
}

// AddListener registers a lifecycle event listener. Call before Start.
func (w *Worker) AddListener(l Listener) {
	w.mu.Lock()
	w.listeners = append(w.listeners, l)
	w.mu.Unlock()
}

// RecoverPending re-enqueues every non-terminal instance. Run once at
// startup so work interrupted by a crash resumes from its history.
func (w *Worker) RecoverPending(ctx context.Context) (int, error) {
	instances, _, err := w.store.ListInstances(ctx, ListFilter{Status: StatusRunning})
	if err != nil {
		return 0, fmt.Errorf("list pending instances: %w", err)
	}
	recovered := 0
	for _, instance := range instances {
		item := WorkItem{InstanceID: instance.ID, Orchestration: instance.Orchestration}
		if err := w.queue.Enqueue(ctx, item); err != nil {
			return recovered, fmt.Errorf("re-enqueue instance %s: %w", instance.ID, err)
		}
		recovered++
	}
	if recovered > 0 {
		w.log.InfoContext(ctx, "recovered pending instances", "count", recovered)
	}
	return recovered, nil
}

// Start launches the worker pool.
func (w *Worker) Start(ctx context.Context) {
	ctx, w.cancel = context.WithCancel(ctx)
	for i := 0; i < w.workers; i++ {
		w.wg.Add(1)
		go func(id int) {
			defer w.wg.Done()
			w.loop(ctx, id)
		}(i)
	}
	w.log.InfoContext(ctx, "worker pool started", "workers", w.workers)
}

// Stop cancels the pool and waits for in-flight turns to finish.
func (w *Worker) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
}

func (w *Worker) loop(ctx context.Context, id int) {
	for {
		item, err := w.queue.Dequeue(ctx)
		if err != nil {
			if errors.Is(err, ErrQueueClosed) || ctx.Err() != nil {
				return
			}
			w.log.WarnContext(ctx, "dequeue failed", "worker", id, "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}
		w.runTurn(ctx, item)
	}
}

func (w *Worker) runTurn(ctx context.Context, item WorkItem) {
	ctx, span := w.tracer.Start(ctx, "hub.turn", trace.WithAttributes(
		attribute.String("instance.id", item.InstanceID),
		attribute.String("orchestration", item.Orchestration),
	))
	defer span.End()

	started := time.Now()

	instance, err := w.store.GetInstance(ctx, item.InstanceID)
	if err != nil {
		w.log.ErrorContext(ctx, "load instance failed", "instance_id", item.InstanceID, "error", err)
		span.SetStatus(codes.Error, err.Error())
		return
	}
	if instance.Status.IsTerminal() {
		w.log.DebugContext(ctx, "skipping terminal instance", "instance_id", instance.ID, "status", instance.Status)
		return
	}

	history, err := w.store.History(ctx, instance.ID)
	if err != nil {
		w.log.ErrorContext(ctx, "load history failed", "instance_id", instance.ID, "error", err)
		span.SetStatus(codes.Error, err.Error())
		return
	}

	output, runErr := w.execute(ctx, instance, history)

	if runErr != nil && ctx.Err() != nil {
		// Shutdown interrupted the turn. The instance stays running and
		// is re-enqueued by RecoverPending on the next start.
		w.log.WarnContext(ctx, "turn interrupted", "instance_id", instance.ID, "error", runErr)
		span.SetStatus(codes.Error, "turn interrupted")
		return
	}

	if runErr != nil {
		var ndErr *NondeterminismError
		if errors.As(runErr, &ndErr) {
			w.log.ErrorContext(ctx, "nondeterministic orchestrator",
				"instance_id", instance.ID, "task_id", ndErr.TaskID,
				"recorded", ndErr.Recorded, "requested", ndErr.Requested)
		}
		w.finishFailed(ctx, instance, runErr.Error())
		span.SetStatus(codes.Error, runErr.Error())
	} else {
		w.finishCompleted(ctx, instance, output)
	}

	w.metrics.RecordOrchestration(instance.Orchestration, instance.Status, time.Since(started))
	w.emit(InstanceEvent{
		InstanceID:    instance.ID,
		Orchestration: instance.Orchestration,
		Status:        instance.Status,
		Reason:        instance.FailureReason,
		Timestamp:     time.Now().UTC(),
	})
}

// execute runs one full orchestrator pass over recorded history.
// Panics inside orchestrator code surface as turn failures.
func (w *Worker) execute(ctx context.Context, instance *Instance, history []HistoryEvent) (output json.RawMessage, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("orchestrator panic: %v", r)
		}
	}()

	fn, err := w.registry.Orchestrator(instance.Orchestration)
	if err != nil {
		return nil, err
	}

	octx := &OrchestrationContext{
		ctx:      ctx,
		instance: instance,
		store:    w.store,
		registry: w.registry,
		table:    buildReplayTable(history),
		run:      w.runActivity,
		input:    instance.Input,
	}

	result, err := fn(octx)
	if err != nil {
		return nil, err
	}
	payload, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("marshal orchestration output: %w", err)
	}
	return payload, nil
}

func (w *Worker) runActivity(ctx context.Context, inv ActivityInvocation) (json.RawMessage, error) {
	fn, err := w.registry.Activity(inv.Name)
	if err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 1; attempt <= w.maxAttempts; attempt++ {
		if err := w.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		inv.Attempt = attempt
		actCtx, span := w.tracer.Start(ctx, "hub.activity", trace.WithAttributes(
			attribute.String("activity", inv.Name),
			attribute.String("task.id", inv.TaskID),
			attribute.Int("attempt", attempt),
		))

		started := time.Now()
		result, runErr := fn(actCtx, inv)
		duration := time.Since(started)

		if runErr == nil {
			w.metrics.RecordActivity(inv.Name, "ok", duration)
			span.End()
			payload, err := json.Marshal(result)
			if err != nil {
				return nil, fmt.Errorf("marshal activity result: %w", err)
			}
			return payload, nil
		}

		w.metrics.RecordActivity(inv.Name, "error", duration)
		span.SetStatus(codes.Error, runErr.Error())
		span.End()
		lastErr = runErr

		w.log.WarnContext(ctx, "activity attempt failed",
			"activity", inv.Name, "task_id", inv.TaskID,
			"attempt", attempt, "error", runErr)

		if attempt < w.maxAttempts {
			w.metrics.RecordActivityRetry(inv.Name)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(w.retryBackoff):
			}
		}
	}
	return nil, lastErr
}

func (w *Worker) finishCompleted(ctx context.Context, instance *Instance, output json.RawMessage) {
	if _, err := w.store.AppendEvent(ctx, HistoryEvent{
		InstanceID: instance.ID,
		Type:       EventOrchestrationCompleted,
		Payload:    output,
	}); err != nil {
		w.log.ErrorContext(ctx, "append completion event failed", "instance_id", instance.ID, "error", err)
		return
	}
	if err := instance.Complete(output); err != nil {
		w.log.ErrorContext(ctx, "complete instance failed", "instance_id", instance.ID, "error", err)
		return
	}
	if err := w.store.SaveInstance(ctx, instance); err != nil {
		w.log.ErrorContext(ctx, "save completed instance failed", "instance_id", instance.ID, "error", err)
		return
	}
	w.log.InfoContext(ctx, "orchestration completed",
		"instance_id", instance.ID, "orchestration", instance.Orchestration)
}

func (w *Worker) finishFailed(ctx context.Context, instance *Instance, reason string) {
	if _, err := w.store.AppendEvent(ctx, HistoryEvent{
		InstanceID: instance.ID,
		Type:       EventOrchestrationFailed,
		Reason:     reason,
	}); err != nil {
		w.log.ErrorContext(ctx, "append failure event failed", "instance_id", instance.ID, "error", err)
		return
	}
	if err := instance.Fail(reason); err != nil {
		w.log.ErrorContext(ctx, "fail instance failed", "instance_id", instance.ID, "error", err)
		return
	}
	if err := w.store.SaveInstance(ctx, instance); err != nil {
		w.log.ErrorContext(ctx, "save failed instance failed", "instance_id", instance.ID, "error", err)
		return
	}
	w.log.WarnContext(ctx, "orchestration failed",
		"instance_id", instance.ID, "orchestration", instance.Orchestration, "reason", reason)
}

func (w *Worker) emit(event InstanceEvent) {
	w.mu.Lock()
	listeners := make([]Listener, len(w.listeners))
	copy(listeners, w.listeners)
	w.mu.Unlock()
	for _, l := range listeners {
		l(event)
	}
}
