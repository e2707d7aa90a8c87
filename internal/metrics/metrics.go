// Copyright 2025 The TaskExec Authors
// SPDX-License-Identifier: Apache-2.0

// Package metrics defines the Prometheus instrumentation for the
// task-execution service.
package metrics

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/taskstream/taskexec"
	"github.com/taskstream/taskexec/executor"
)

var (
	// FramesProduced counts frames as the engine produces them, before
	// transport delivery: a frame dropped because the client went away is
	// still counted.
	FramesProduced = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "taskexec",
			Name:      "frames_produced_total",
			Help:      "Total number of response frames produced, including frames dropped by a departed transport",
		},
		[]string{"kind"},
	)

	TasksTerminated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "taskexec",
			Name:      "tasks_terminated_total",
			Help:      "Total number of executions by terminal outcome",
		},
		[]string{"outcome"},
	)

	TaskDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "taskexec",
			Name:      "task_duration_seconds",
			Help:      "Duration of completed executions in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 15),
		},
	)
)

// RegisterActiveTasks exposes the in-flight execution count as a gauge.
func RegisterActiveTasks(engine *executor.Engine) {
	promauto.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: "taskexec",
			Name:      "active_tasks",
			Help:      "Number of in-flight executions",
		},
		func() float64 { return float64(engine.ActiveTasks()) },
	)
}

// FrameObserver returns the engine observer feeding the counters above.
func FrameObserver() executor.FrameObserver {
	return func(_ context.Context, frame *taskexec.Frame) {
		kind := frame.Kind()
		FramesProduced.WithLabelValues(string(kind)).Inc()

		switch kind {
		case taskexec.FrameKindResult:
			TasksTerminated.WithLabelValues(string(frame.Result.Status)).Inc()
			if frame.Result.Status == taskexec.TaskStatusCompleted {
				TaskDuration.Observe(float64(frame.Result.DurationMs) / 1000)
			}
		case taskexec.FrameKindError:
			TasksTerminated.WithLabelValues("FAILED").Inc()
		}
	}
}
