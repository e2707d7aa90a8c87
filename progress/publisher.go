// Copyright 2025 The TaskExec Authors
// SPDX-License-Identifier: Apache-2.0

// Package progress mirrors execution frames to Redis Streams so interested
// consumers (dashboards, pollers) can follow a task without holding the
// execution stream open. Mirroring is best effort and never blocks or fails
// an execution.
package progress

import (
	"context"
	"log/slog"
	"time"

	"github.com/go-json-experiment/json"
	"github.com/redis/go-redis/v9"

	"github.com/taskstream/taskexec"
	"github.com/taskstream/taskexec/executor"
)

// StreamKey returns the Redis Stream key for a task's progress entries.
func StreamKey(taskID string) string {
	return "progress:" + taskID
}

// CompletionKey returns the key holding a task's terminal status.
func CompletionKey(taskID string) string {
	return "progress:done:" + taskID
}

// StreamOptions bound the mirrored data.
type StreamOptions struct {
	// MaxLen trims each stream to approximately this many entries.
	MaxLen int64

	// TTL expires streams and completion keys after the task is done with
	// them. In-flight state lives in the engine; this data is a convenience
	// view, not a system of record.
	TTL time.Duration
}

// DefaultOptions returns the default stream bounds.
func DefaultOptions() StreamOptions {
	return StreamOptions{
		MaxLen: 1000,
		TTL:    time.Hour,
	}
}

// Publisher writes frames to Redis.
type Publisher struct {
	redis   *redis.Client
	logger  *slog.Logger
	options StreamOptions
}

// NewPublisher creates a Publisher on redisClient.
func NewPublisher(redisClient *redis.Client, logger *slog.Logger, opts ...StreamOptions) *Publisher {
	opt := DefaultOptions()
	if len(opts) > 0 {
		opt = opts[0]
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Publisher{
		redis:   redisClient,
		logger:  logger,
		options: opt,
	}
}

// Publish appends a progress update to the task's stream.
func (p *Publisher) Publish(ctx context.Context, prog *taskexec.Progress) error {
	key := StreamKey(prog.TaskID)

	values := map[string]any{
		"task_id":      prog.TaskID,
		"percentage":   prog.Percentage,
		"stage":        prog.Stage,
		"message":      prog.Message,
		"timestamp_ms": prog.TimestampMs,
	}
	if len(prog.Metadata) > 0 {
		if meta, err := json.Marshal(prog.Metadata); err == nil {
			values["metadata"] = string(meta)
		}
	}

	args := &redis.XAddArgs{
		Stream: key,
		Values: values,
	}
	if p.options.MaxLen > 0 {
		args.MaxLen = p.options.MaxLen
		args.Approx = true
	}

	if err := p.redis.XAdd(ctx, args).Err(); err != nil {
		return err
	}
	if p.options.TTL > 0 {
		p.redis.Expire(ctx, key, p.options.TTL)
	}
	return nil
}

// Complete records the terminal status of a task.
func (p *Publisher) Complete(ctx context.Context, taskID string, status string) error {
	return p.redis.Set(ctx, CompletionKey(taskID), status, p.options.TTL).Err()
}

// Observer adapts the publisher to the engine's frame observer hook. Errors
// are logged and swallowed: the execution stream is authoritative and must
// not couple to Redis availability.
func (p *Publisher) Observer() executor.FrameObserver {
	return func(ctx context.Context, frame *taskexec.Frame) {
		switch frame.Kind() {
		case taskexec.FrameKindProgress:
			if err := p.Publish(ctx, frame.Progress); err != nil {
				p.logger.WarnContext(ctx, "progress mirror failed",
					"task_id", frame.Progress.TaskID, "error", err)
			}
		case taskexec.FrameKindResult:
			if err := p.Complete(ctx, frame.Result.TaskID, string(frame.Result.Status)); err != nil {
				p.logger.WarnContext(ctx, "completion mirror failed",
					"task_id", frame.Result.TaskID, "error", err)
			}
		case taskexec.FrameKindError:
			// Error frames carry no task id on the wire; the stream TTL
			// reaps the orphaned entries.
		}
	}
}
