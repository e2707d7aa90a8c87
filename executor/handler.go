// Copyright 2025 The TaskExec Authors
// SPDX-License-Identifier: Apache-2.0

package executor

import (
	"context"
	"sync"

	"github.com/taskstream/taskexec"
)

// Handler is the business-logic unit bound to a method name. Execute
// produces progress updates by putting them on the queue and returns when
// the task is done; a nil return means the task completed, a non-nil return
// is classified into a terminal error frame by the engine.
//
// Cancellation is cooperative. Handlers must poll task.Cancelled() or honor
// ctx between units of work; a handler that never yields control cannot be
// stopped.
type Handler interface {
	Execute(ctx context.Context, req *taskexec.ExecuteRequest, task *TaskState, queue *ProgressQueue) error
}

// HandlerFunc adapts a plain function to the Handler interface.
type HandlerFunc func(ctx context.Context, req *taskexec.ExecuteRequest, task *TaskState, queue *ProgressQueue) error

// Execute calls fn.
func (fn HandlerFunc) Execute(ctx context.Context, req *taskexec.ExecuteRequest, task *TaskState, queue *ProgressQueue) error {
	return fn(ctx, req, task, queue)
}

// DefaultQueueSize is the default capacity of a progress queue.
const DefaultQueueSize = 64

// ProgressQueue is the bounded channel a handler produces progress updates
// into and the engine consumes from. Closed by the engine once the handler
// returns.
type ProgressQueue struct {
	updates   chan *taskexec.Progress
	done      chan struct{}
	closeOnce sync.Once
}

func newProgressQueue(size int) *ProgressQueue {
	if size <= 0 {
		size = DefaultQueueSize
	}
	return &ProgressQueue{
		updates: make(chan *taskexec.Progress, size),
		done:    make(chan struct{}),
	}
}

// Put enqueues a progress update. It blocks while the queue is full and
// returns ctx.Err() once the context is done or the consuming execution has
// stopped, so a blocked handler unwinds instead of leaking.
func (q *ProgressQueue) Put(ctx context.Context, p *taskexec.Progress) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-q.done:
		return context.Canceled
	case q.updates <- p:
		return nil
	}
}

func (q *ProgressQueue) close() {
	q.closeOnce.Do(func() {
		close(q.done)
	})
}
