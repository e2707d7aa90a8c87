// Copyright 2025 The TaskExec Authors
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net"
	"time"
)

// RetryConfig controls retry behavior for unary calls.
type RetryConfig struct {
	// MaxAttempts is the total number of tries, including the first.
	MaxAttempts int

	// InitialDelay is the delay before the first retry.
	InitialDelay time.Duration

	// MaxDelay caps the exponential backoff.
	MaxDelay time.Duration

	// Multiplier grows the delay between attempts.
	Multiplier float64
}

// DefaultRetryConfig returns the default retry policy.
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxAttempts:  3,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     2 * time.Second,
		Multiplier:   2.0,
	}
}

// withRetry executes fn with exponential backoff and jitter. Only failures
// the server hints as retryable, plus transport-level errors, are retried.
func (c *Client) withRetry(ctx context.Context, operation string, fn func(context.Context) error) error {
	config := c.retry
	if config == nil || config.MaxAttempts <= 1 {
		return fn(ctx)
	}

	var lastErr error
	delay := config.InitialDelay

	for attempt := 0; attempt < config.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if !retryableError(err) {
			return err
		}
		if attempt == config.MaxAttempts-1 {
			break
		}

		c.logger.WarnContext(ctx, "retrying", "operation", operation, "attempt", attempt+1, "error", err)

		// 10% jitter so synchronized clients spread out.
		jitter := time.Duration(rand.Float64() * float64(delay) * 0.1)
		select {
		case <-time.After(delay + jitter):
		case <-ctx.Done():
			return ctx.Err()
		}

		delay = time.Duration(float64(delay) * config.Multiplier)
		if delay > config.MaxDelay {
			delay = config.MaxDelay
		}
	}

	return fmt.Errorf("operation %s failed after %d attempts: %w", operation, config.MaxAttempts, lastErr)
}

// retryableError reports whether a unary call failure is worth retrying.
func retryableError(err error) bool {
	var herr *HTTPError
	if errors.As(err, &herr) {
		return herr.Retryable()
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return false
}
