// Copyright 2025 The TaskExec Authors
// SPDX-License-Identifier: Apache-2.0

// Package client provides an HTTP client for the task-execution service:
// Execute consumes the SSE frame stream, Cancel and Health are plain JSON
// calls with retry driven by the retryable hint.
package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-json-experiment/json"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/taskstream/taskexec"
)

// Client talks to a task-execution server.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
	tracer     trace.Tracer
	retry      *RetryConfig
	authToken  string
}

// New creates a Client for the server at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("base URL cannot be empty")
	}

	c := &Client{
		baseURL:    baseURL,
		httpClient: http.DefaultClient,
		logger:     slog.Default(),
		tracer:     otel.GetTracerProvider().Tracer("github.com/taskstream/taskexec/client"),
		retry:      DefaultRetryConfig(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Execute submits a task and returns the frame stream. The channel carries
// progress frames followed by exactly one terminal frame, then closes.
// Cancelling ctx tears down the connection, which the server treats as the
// transport-level cancellation signal.
//
// A missing task id is filled in with a generated UUID; the effective id is
// readable from the frames.
func (c *Client) Execute(ctx context.Context, req *taskexec.ExecuteRequest) (<-chan *taskexec.Frame, error) {
	if req.TaskID == "" {
		req.TaskID = uuid.NewString()
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	ctx, span := c.tracer.Start(ctx, "taskexec.client.Execute",
		trace.WithAttributes(
			attribute.String("taskexec.task_id", req.TaskID),
			attribute.String("taskexec.method", req.Method),
		))

	resp, err := c.post(ctx, "/v1/tasks/execute", req, "text/event-stream")
	if err != nil {
		span.End()
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		defer span.End()
		defer resp.Body.Close()
		return nil, c.responseError(resp)
	}

	frames := make(chan *taskexec.Frame, 16)
	go func() {
		defer span.End()
		defer close(frames)
		defer resp.Body.Close()
		c.readFrames(ctx, resp.Body, frames)
	}()
	return frames, nil
}

// Cancel requests cancellation of a running task. The call is retried on
// transport failures; a Success=false response is a definitive answer, not
// an error.
func (c *Client) Cancel(ctx context.Context, req *taskexec.CancelRequest) (*taskexec.CancelResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	ctx, span := c.tracer.Start(ctx, "taskexec.client.Cancel",
		trace.WithAttributes(attribute.String("taskexec.task_id", req.TaskID)))
	defer span.End()

	var out taskexec.CancelResponse
	err := c.withRetry(ctx, "cancel", func(ctx context.Context) error {
		return c.call(ctx, "/v1/tasks/cancel", req, &out)
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Health fetches the service health snapshot.
func (c *Client) Health(ctx context.Context) (*taskexec.HealthResponse, error) {
	ctx, span := c.tracer.Start(ctx, "taskexec.client.Health")
	defer span.End()

	var out taskexec.HealthResponse
	err := c.withRetry(ctx, "health", func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/health", nil)
		if err != nil {
			return err
		}
		c.setHeaders(req, "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return c.responseError(resp)
		}
		return json.UnmarshalRead(resp.Body, &out)
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// call posts req as JSON and decodes the response into out.
func (c *Client) call(ctx context.Context, path string, req, out any) error {
	resp, err := c.post(ctx, path, req, "application/json")
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return c.responseError(resp)
	}
	return json.UnmarshalRead(resp.Body, out)
}

func (c *Client) post(ctx context.Context, path string, body any, accept string) (*http.Response, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	c.setHeaders(req, accept)

	return c.httpClient.Do(req)
}

func (c *Client) setHeaders(req *http.Request, accept string) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", accept)
	if c.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}
}

// responseError converts a non-200 response into an *HTTPError, preserving
// the structured error body when the server sent one.
func (c *Client) responseError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	var parsed struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	herr := &HTTPError{StatusCode: resp.StatusCode}
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Error.Code != "" {
		herr.Code = parsed.Error.Code
		herr.Message = parsed.Error.Message
	} else {
		herr.Message = string(body)
	}
	return herr
}

// HTTPError is a non-200 response from the server.
type HTTPError struct {
	StatusCode int
	Code       string
	Message    string
}

// Error implements the error interface.
func (e *HTTPError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("HTTP %d: %s: %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

// Retryable reports whether the request may be resubmitted unchanged.
func (e *HTTPError) Retryable() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
}
