// Copyright 2025 The TaskExec Authors
// SPDX-License-Identifier: Apache-2.0

package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/taskstream/taskexec"
)

// ErrEngineClosed is returned by Execute after Shutdown has started.
var ErrEngineClosed = errors.New("executor: engine shut down")

// FrameObserver is called for every frame an execution emits, before the
// frame is handed to the transport. Observers must not block; slow sinks
// should buffer internally.
type FrameObserver func(ctx context.Context, frame *taskexec.Frame)

// Engine drives task executions: it resolves the handler, tracks per-task
// state, interleaves cooperative-cancellation checks with handler-produced
// progress, and emits exactly one terminal frame per execution.
type Engine struct {
	registry  *Registry
	store     *Store
	queueSize int
	observers []FrameObserver
	logger    *slog.Logger
	tracer    trace.Tracer

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// Option configures an [Engine].
type Option func(*Engine)

// WithLogger sets the logger for the Engine.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithTracer sets the tracer for the Engine.
func WithTracer(tracer trace.Tracer) Option {
	return func(e *Engine) {
		e.tracer = tracer
	}
}

// WithQueueSize sets the per-execution progress queue capacity.
func WithQueueSize(size int) Option {
	return func(e *Engine) {
		e.queueSize = size
	}
}

// WithObserver adds a frame observer.
func WithObserver(obs FrameObserver) Option {
	return func(e *Engine) {
		e.observers = append(e.observers, obs)
	}
}

// New creates an Engine serving the handlers in registry.
func New(registry *Registry, opts ...Option) *Engine {
	e := &Engine{
		registry:  registry,
		store:     NewStore(),
		queueSize: DefaultQueueSize,
		logger:    slog.Default(),
		tracer:    otel.GetTracerProvider().Tracer("github.com/taskstream/taskexec/executor"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Store exposes the task state store, primarily for introspection.
func (e *Engine) Store() *Store {
	return e.store
}

// Execute starts an execution and returns the frame stream. The returned
// channel carries zero or more progress frames followed by exactly one
// terminal frame, then closes. ctx is the transport-level cancellation
// signal: when it fires, the execution stops consuming the handler and
// terminates with a cancelled result.
//
// A validation failure or a shut-down engine is reported as an error before
// any stream exists; it is the transport's problem, not a frame.
func (e *Engine) Execute(ctx context.Context, req *taskexec.ExecuteRequest) (<-chan *taskexec.Frame, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil, ErrEngineClosed
	}
	e.wg.Add(1)
	e.mu.Unlock()

	out := make(chan *taskexec.Frame, 1)
	go e.run(ctx, req, out)
	return out, nil
}

// run is one execution: STARTED -> DISPATCHING -> RUNNING ->
// {COMPLETING, CANCELLING, FAILING} -> TERMINATED.
func (e *Engine) run(ctx context.Context, req *taskexec.ExecuteRequest, out chan<- *taskexec.Frame) {
	defer e.wg.Done()
	defer close(out)

	ctx, span := e.tracer.Start(ctx, "taskexec.engine.Execute",
		trace.WithAttributes(
			attribute.String("taskexec.task_id", req.TaskID),
			attribute.String("taskexec.method", req.Method),
		))
	defer span.End()

	task, err := e.store.Create(req.TaskID)
	if err != nil {
		e.logger.WarnContext(ctx, "duplicate task id rejected", "task_id", req.TaskID)
		e.emit(ctx, out, taskexec.NewErrorFrame(&taskexec.ErrorDetail{
			Code:      taskexec.CodeAlreadyExists,
			Message:   fmt.Sprintf("task %s already active", req.TaskID),
			Retryable: false,
		}))
		return
	}
	// Cleanup runs on every terminal branch, including panics recovered in
	// invoke: after this, the id is free again.
	defer e.store.Remove(req.TaskID)

	handler, ok := e.registry.Lookup(req.Method)
	if !ok {
		e.logger.ErrorContext(ctx, "unknown method", "task_id", req.TaskID, "method", req.Method)
		e.emit(ctx, out, taskexec.NewErrorFrame(&taskexec.ErrorDetail{
			Code:      taskexec.CodeUnknownMethod,
			Message:   fmt.Sprintf("unknown method: %s", req.Method),
			Retryable: false,
		}))
		return
	}

	e.logger.InfoContext(ctx, "task executing", "task_id", req.TaskID, "method", req.Method)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	queue := newProgressQueue(e.queueSize)
	defer queue.close()

	errc := make(chan error, 1)
	go func() {
		defer close(queue.updates)
		errc <- e.invoke(runCtx, handler, req, task, queue)
	}()

	for {
		select {
		case <-ctx.Done():
			// Transport cancellation delivered while awaiting the next
			// handler frame.
			e.cancelled(ctx, out, req.TaskID)
			return

		case p, ok := <-queue.updates:
			if !ok {
				e.finish(ctx, out, req, task, <-errc)
				return
			}
			// Checked before forwarding, so a cancel lands after at most
			// one more frame already in flight.
			if ctx.Err() != nil || task.Cancelled() {
				e.cancelled(ctx, out, req.TaskID)
				return
			}
			e.emit(ctx, out, taskexec.NewProgressFrame(p))
		}
	}
}

// finish emits the terminal frame once the handler has returned.
func (e *Engine) finish(ctx context.Context, out chan<- *taskexec.Frame, req *taskexec.ExecuteRequest, task *TaskState, err error) {
	switch {
	case err != nil && !isCancellation(err):
		detail := Classify(err)
		e.logger.ErrorContext(ctx, "task failed",
			"task_id", req.TaskID, "method", req.Method,
			"code", detail.Code, "retryable", detail.Retryable, "error", err)
		e.emit(ctx, out, taskexec.NewErrorFrame(detail))

	case err != nil, task.Cancelled(), ctx.Err() != nil:
		e.cancelled(ctx, out, req.TaskID)

	default:
		durationMs := time.Since(task.StartTime()).Milliseconds()
		e.logger.InfoContext(ctx, "task completed", "task_id", req.TaskID, "duration_ms", durationMs)
		e.emit(ctx, out, taskexec.NewResultFrame(&taskexec.Result{
			TaskID:     req.TaskID,
			Status:     taskexec.TaskStatusCompleted,
			DurationMs: durationMs,
		}))
	}
}

// cancelled emits the CANCELLED terminal frame. No duration is computed for
// cancelled executions.
func (e *Engine) cancelled(ctx context.Context, out chan<- *taskexec.Frame, taskID string) {
	e.logger.WarnContext(ctx, "task cancelled", "task_id", taskID)
	e.emit(ctx, out, taskexec.NewResultFrame(&taskexec.Result{
		TaskID: taskID,
		Status: taskexec.TaskStatusCancelled,
	}))
}

// invoke runs the handler, converting a panic into an ordinary failure so it
// is classified instead of tearing down the stream.
func (e *Engine) invoke(ctx context.Context, handler Handler, req *taskexec.ExecuteRequest, task *TaskState, queue *ProgressQueue) (err error) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.ErrorContext(ctx, "handler panic",
				"task_id", req.TaskID, "method", req.Method,
				"panic", r, "stack", string(debug.Stack()))
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return handler.Execute(ctx, req, task, queue)
}

// emit delivers a frame to observers and the transport. Observers run before
// the handoff and see every produced frame, whether or not the transport
// still delivers it; the mirrors they feed exist precisely for consumers not
// holding the stream open. If the transport has stopped reading, emit tries
// a bounded handoff and otherwise drops the frame; the consumer is gone, so
// ordering is preserved trivially.
func (e *Engine) emit(ctx context.Context, out chan<- *taskexec.Frame, frame *taskexec.Frame) {
	for _, obs := range e.observers {
		obs(ctx, frame)
	}
	select {
	case out <- frame:
		return
	default:
	}
	select {
	case out <- frame:
	case <-ctx.Done():
		e.logger.DebugContext(ctx, "frame dropped, transport gone", "kind", string(frame.Kind()))
	}
}

// isCancellation reports whether the handler's failure is the engine's own
// cancellation interrupt rather than a real error.
func isCancellation(err error) bool {
	return errors.Is(err, context.Canceled)
}

// Cancel flips the cancellation flag of an active execution. Advisory: the
// running execution observes the flag on its next frame-production step.
func (e *Engine) Cancel(ctx context.Context, req *taskexec.CancelRequest) (*taskexec.CancelResponse, error) {
	ctx, span := e.tracer.Start(ctx, "taskexec.engine.Cancel",
		trace.WithAttributes(attribute.String("taskexec.task_id", req.TaskID)))
	defer span.End()

	if err := req.Validate(); err != nil {
		return nil, err
	}

	if e.store.MarkCancelled(req.TaskID) {
		e.logger.InfoContext(ctx, "task cancel requested", "task_id", req.TaskID, "reason", req.Reason)
		return &taskexec.CancelResponse{
			Success: true,
			Message: fmt.Sprintf("task %s cancellation requested", req.TaskID),
		}, nil
	}

	return &taskexec.CancelResponse{
		Success: false,
		Message: fmt.Sprintf("task %s not found or already completed", req.TaskID),
	}, nil
}

// Health returns a read-only snapshot of the engine state. Safe to call
// concurrently with everything else.
func (e *Engine) Health(ctx context.Context) *taskexec.HealthResponse {
	_, span := e.tracer.Start(ctx, "taskexec.engine.Health")
	defer span.End()

	return &taskexec.HealthResponse{
		Status:  taskexec.HealthStatusHealthy,
		Message: "service is healthy",
		Details: map[string]string{
			taskexec.HealthDetailActiveTasks:        strconv.Itoa(e.store.Len()),
			taskexec.HealthDetailRegisteredHandlers: strconv.Itoa(e.registry.Len()),
			taskexec.HealthDetailHandlers:           strings.Join(e.registry.Methods(), ","),
		},
	}
}

// ActiveTasks returns the number of in-flight executions.
func (e *Engine) ActiveTasks() int {
	return e.store.Len()
}

// Shutdown stops accepting new executions, requests cancellation of every
// in-flight task and waits for them to drain or for ctx to expire.
func (e *Engine) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()

	for _, id := range e.store.IDs() {
		e.store.MarkCancelled(id)
	}

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
