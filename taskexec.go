// Copyright 2025 The TaskExec Authors
// SPDX-License-Identifier: Apache-2.0

// Package taskexec provides the wire types for a streaming task-execution
// protocol: a task request is dispatched to a named handler, which streams
// back progress frames followed by exactly one terminal result or error
// frame, with support for cooperative cancellation.
package taskexec

// Version is the current version of the task-execution protocol.
const Version = "0.1.0"

// TaskStatus represents the terminal status of an execution.
type TaskStatus string

const (
	// TaskStatusCompleted indicates the handler's sequence was exhausted
	// without cancellation or error.
	TaskStatusCompleted TaskStatus = "COMPLETED"

	// TaskStatusCancelled indicates the execution was stopped by a
	// cooperative cancellation signal before completion.
	TaskStatusCancelled TaskStatus = "CANCELLED"
)

// HealthStatus represents the health of the service.
type HealthStatus string

// HealthStatusHealthy indicates the service is accepting executions.
const HealthStatusHealthy HealthStatus = "HEALTHY"

// Error codes carried on terminal error frames.
const (
	// CodeUnknownMethod indicates no handler is registered for the
	// requested method. Never retryable.
	CodeUnknownMethod = "UNKNOWN_METHOD"

	// CodeExecutionError indicates the handler raised a failure; the
	// retryable hint is decided by the error classifier.
	CodeExecutionError = "EXECUTION_ERROR"

	// CodeAlreadyExists indicates an execution with the same task id is
	// still active. Never retryable: resubmitting the same id cannot
	// succeed until the running execution terminates.
	CodeAlreadyExists = "ALREADY_EXISTS"

	// CodeInvalidRequest indicates the execute request failed validation.
	CodeInvalidRequest = "INVALID_REQUEST"
)

// Details map keys used in the health response.
const (
	HealthDetailActiveTasks        = "active_tasks"
	HealthDetailRegisteredHandlers = "registered_handlers"
	HealthDetailHandlers           = "handlers"
)
