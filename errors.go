// Copyright 2025 The TaskExec Authors
// SPDX-License-Identifier: Apache-2.0

package taskexec

import (
	"errors"
	"fmt"
)

// Protocol-level sentinel errors.
var (
	// ErrTaskNotFound is returned when no active execution matches a task id.
	ErrTaskNotFound = errors.New("taskexec: task not found")

	// ErrTaskExists is returned when an execution is submitted under a task
	// id that is still active.
	ErrTaskExists = errors.New("taskexec: task already exists")

	// ErrUnknownMethod is returned when no handler is registered for a method.
	ErrUnknownMethod = errors.New("taskexec: unknown method")

	// ErrTimeout marks a failure as timeout-category, which the classifier
	// treats as retryable.
	ErrTimeout = errors.New("taskexec: operation timed out")
)

// TaskError wraps a handler failure with the task identity it occurred under.
type TaskError struct {
	TaskID  string
	Method  string
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *TaskError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("task %s (%s): %s: %v", e.TaskID, e.Method, e.Message, e.Cause)
	}
	return fmt.Sprintf("task %s (%s): %s", e.TaskID, e.Method, e.Message)
}

// Unwrap returns the underlying cause.
func (e *TaskError) Unwrap() error {
	return e.Cause
}

// NewTaskError creates a TaskError.
func NewTaskError(taskID, method, message string, cause error) *TaskError {
	return &TaskError{
		TaskID:  taskID,
		Method:  method,
		Message: message,
		Cause:   cause,
	}
}

// RetryableError marks a failure as safe to retry regardless of its category.
type RetryableError struct {
	Cause error
}

// Error implements the error interface.
func (e *RetryableError) Error() string {
	return fmt.Sprintf("retryable: %v", e.Cause)
}

// Unwrap returns the underlying cause.
func (e *RetryableError) Unwrap() error {
	return e.Cause
}

// Retryable wraps err so the classifier marks it retryable.
func Retryable(err error) *RetryableError {
	return &RetryableError{Cause: err}
}

// IsRetryableMarked reports whether err carries an explicit retryable marker.
// The full retryability policy, including timeout and transport categories,
// lives in the executor's classifier.
func IsRetryableMarked(err error) bool {
	var re *RetryableError
	return errors.As(err, &re)
}
