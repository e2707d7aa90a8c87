// Copyright 2025 The TaskExec Authors
// SPDX-License-Identifier: Apache-2.0

package taskexec

import (
	"fmt"
	"time"
)

// Progress reports partial completion of a running task.
type Progress struct {
	TaskID      string            `json:"task_id"`
	Percentage  int32             `json:"percentage"`
	Stage       string            `json:"stage,omitzero"`
	Message     string            `json:"message,omitzero"`
	TimestampMs int64             `json:"timestamp_ms"`
	Metadata    map[string]string `json:"metadata,omitzero"`
}

// NewProgress creates a Progress with the timestamp set to now.
func NewProgress(taskID string, percentage int32, stage, message string) *Progress {
	return &Progress{
		TaskID:      taskID,
		Percentage:  percentage,
		Stage:       stage,
		Message:     message,
		TimestampMs: time.Now().UnixMilli(),
	}
}

// Validate ensures the Progress is valid.
func (p *Progress) Validate() error {
	if p.TaskID == "" {
		return fmt.Errorf("progress task id cannot be empty")
	}
	if p.Percentage < 0 || p.Percentage > 100 {
		return fmt.Errorf("progress percentage must be in [0, 100], got %d", p.Percentage)
	}
	return nil
}

// Result is the terminal frame of a successful or cancelled execution.
// DurationMs is only populated for completed executions.
type Result struct {
	TaskID     string     `json:"task_id"`
	Status     TaskStatus `json:"status"`
	DurationMs int64      `json:"duration_ms,omitzero"`
}

// ErrorDetail is the terminal frame of a failed execution. Retryable hints
// that the caller may safely resubmit the same request.
type ErrorDetail struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}

// Error implements the error interface so an ErrorDetail received from the
// wire can be returned directly by clients.
func (e *ErrorDetail) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// FrameKind discriminates the variant carried by a Frame.
type FrameKind string

const (
	FrameKindProgress FrameKind = "progress"
	FrameKindResult   FrameKind = "result"
	FrameKindError    FrameKind = "error"
)

// Frame is one unit of the streamed execution response. Exactly one of
// Progress, Result or Error is populated.
type Frame struct {
	Progress *Progress    `json:"progress,omitzero"`
	Result   *Result      `json:"result,omitzero"`
	Error    *ErrorDetail `json:"error,omitzero"`
}

// NewProgressFrame wraps a Progress in a Frame.
func NewProgressFrame(p *Progress) *Frame {
	return &Frame{Progress: p}
}

// NewResultFrame wraps a Result in a Frame.
func NewResultFrame(r *Result) *Frame {
	return &Frame{Result: r}
}

// NewErrorFrame wraps an ErrorDetail in a Frame.
func NewErrorFrame(e *ErrorDetail) *Frame {
	return &Frame{Error: e}
}

// Kind returns the populated variant, or "" for a malformed frame.
func (f *Frame) Kind() FrameKind {
	switch {
	case f.Progress != nil && f.Result == nil && f.Error == nil:
		return FrameKindProgress
	case f.Result != nil && f.Progress == nil && f.Error == nil:
		return FrameKindResult
	case f.Error != nil && f.Progress == nil && f.Result == nil:
		return FrameKindError
	default:
		return ""
	}
}

// Terminal reports whether the frame ends the stream.
func (f *Frame) Terminal() bool {
	k := f.Kind()
	return k == FrameKindResult || k == FrameKindError
}

// Validate ensures exactly one variant is populated.
func (f *Frame) Validate() error {
	if f.Kind() == "" {
		return fmt.Errorf("frame must carry exactly one of progress, result or error")
	}
	if f.Progress != nil {
		return f.Progress.Validate()
	}
	return nil
}

// ExecuteRequest asks the service to run the named method as a new task.
type ExecuteRequest struct {
	TaskID  string  `json:"task_id"`
	Method  string  `json:"method"`
	Payload Payload `json:"payload,omitzero"`
}

// Validate ensures the ExecuteRequest is valid.
func (r *ExecuteRequest) Validate() error {
	if r.TaskID == "" {
		return fmt.Errorf("execute request task id cannot be empty")
	}
	if r.Method == "" {
		return fmt.Errorf("execute request method cannot be empty")
	}
	return nil
}

// CancelRequest asks the service to cancel a running task. Cancellation is
// advisory: it flips a flag the execution observes cooperatively.
type CancelRequest struct {
	TaskID string `json:"task_id"`
	Reason string `json:"reason,omitzero"`
}

// Validate ensures the CancelRequest is valid.
func (r *CancelRequest) Validate() error {
	if r.TaskID == "" {
		return fmt.Errorf("cancel request task id cannot be empty")
	}
	return nil
}

// CancelResponse reports whether the cancellation flag was set.
type CancelResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// HealthResponse is a read-only snapshot of the service state. All detail
// values are serialized as strings.
type HealthResponse struct {
	Status  HealthStatus      `json:"status"`
	Message string            `json:"message"`
	Details map[string]string `json:"details,omitzero"`
}
