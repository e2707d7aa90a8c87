// Copyright 2025 The TaskExec Authors
// SPDX-License-Identifier: Apache-2.0

// Package handlers provides the built-in example task handlers: demo, chat
// and backtest. They are payload producers, not part of the execution core,
// and double as reference implementations of the cooperative-cancellation
// contract.
package handlers

import (
	"context"
	"time"

	"github.com/taskstream/taskexec/executor"
)

// Method names of the built-in handlers.
const (
	MethodDemo     = "demo"
	MethodChat     = "chat"
	MethodBacktest = "backtest"
)

// RegisterAll registers the built-in handlers on registry with their default
// step delays.
func RegisterAll(registry *executor.Registry) {
	registry.Register(MethodDemo, &Demo{})
	registry.Register(MethodChat, &Chat{})
	registry.Register(MethodBacktest, &Backtest{})
}

// sleep waits for d, returning early with an error when the context is done
// or the task has been cancelled. The poll keeps long delays responsive to
// flag-based cancellation.
func sleep(ctx context.Context, task *executor.TaskState, d time.Duration) error {
	const poll = 50 * time.Millisecond

	deadline := time.Now().Add(d)
	for {
		if task.Cancelled() {
			return context.Canceled
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil
		}
		if remaining > poll {
			remaining = poll
		}
		timer := time.NewTimer(remaining)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
