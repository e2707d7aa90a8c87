// Copyright 2025 The TaskExec Authors
// SPDX-License-Identifier: Apache-2.0

package handlers

import (
	"context"
	"time"

	"github.com/taskstream/taskexec"
	"github.com/taskstream/taskexec/executor"
)

// Backtest simulates a trading-strategy backtest run through its fixed
// pipeline stages. Payload keys: "strategy_id" (string), "start_date"
// (string, YYYY-MM-DD).
type Backtest struct {
	// Delay is the simulated work per stage. Zero means 1s.
	Delay time.Duration
}

var backtestStages = []struct {
	stage   string
	message string
}{
	{"loading_data", "Loading historical data..."},
	{"preprocessing", "Preprocessing data..."},
	{"running_backtest", "Running backtest simulation..."},
	{"calculating_metrics", "Calculating performance metrics..."},
	{"generating_report", "Generating report..."},
}

// Execute implements [executor.Handler].
func (h *Backtest) Execute(ctx context.Context, req *taskexec.ExecuteRequest, task *executor.TaskState, queue *executor.ProgressQueue) error {
	strategyID := req.Payload.String("strategy_id", "unknown")
	startDate := req.Payload.String("start_date", "2024-01-01")

	delay := h.Delay
	if delay == 0 {
		delay = time.Second
	}

	for i, s := range backtestStages {
		if err := sleep(ctx, task, delay); err != nil {
			return err
		}

		p := taskexec.NewProgress(
			req.TaskID,
			int32((i+1)*100/len(backtestStages)),
			s.stage,
			s.message,
		)
		p.Metadata = map[string]string{
			"strategy_id": strategyID,
			"start_date":  startDate,
		}
		if err := queue.Put(ctx, p); err != nil {
			return err
		}
	}

	return nil
}
