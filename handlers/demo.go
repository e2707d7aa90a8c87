// Copyright 2025 The TaskExec Authors
// SPDX-License-Identifier: Apache-2.0

package handlers

import (
	"context"
	"fmt"
	"time"

	"github.com/taskstream/taskexec"
	"github.com/taskstream/taskexec/executor"
)

// Demo simulates work in a configurable number of steps, reporting progress
// after each. Payload keys: "message" (string), "count" (int).
type Demo struct {
	// Delay is the simulated work per step. Zero means 500ms.
	Delay time.Duration
}

// Execute implements [executor.Handler].
func (h *Demo) Execute(ctx context.Context, req *taskexec.ExecuteRequest, task *executor.TaskState, queue *executor.ProgressQueue) error {
	message := req.Payload.String("message", "Hello")
	count := req.Payload.Int("count", 5)
	if count < 1 {
		count = 1
	}

	delay := h.Delay
	if delay == 0 {
		delay = 500 * time.Millisecond
	}

	for i := 0; i < count; i++ {
		if err := sleep(ctx, task, delay); err != nil {
			return err
		}

		p := taskexec.NewProgress(
			req.TaskID,
			int32((i+1)*100/count),
			"processing",
			fmt.Sprintf("Step %d/%d: %s", i+1, count, message),
		)
		if err := queue.Put(ctx, p); err != nil {
			return err
		}
	}

	return nil
}
