// Copyright 2025 The TaskExec Authors
// SPDX-License-Identifier: Apache-2.0

package executor

import (
	"context"
	"errors"
	"net"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/taskstream/taskexec"
)

// Classify maps a handler failure to a terminal error frame payload. It is a
// pure function of the error's category: transient-network and timeout
// categories are retryable, everything else is not.
func Classify(err error) *taskexec.ErrorDetail {
	if errors.Is(err, taskexec.ErrUnknownMethod) {
		return &taskexec.ErrorDetail{
			Code:      taskexec.CodeUnknownMethod,
			Message:   err.Error(),
			Retryable: false,
		}
	}
	if errors.Is(err, taskexec.ErrTaskExists) {
		return &taskexec.ErrorDetail{
			Code:      taskexec.CodeAlreadyExists,
			Message:   err.Error(),
			Retryable: false,
		}
	}
	return &taskexec.ErrorDetail{
		Code:      taskexec.CodeExecutionError,
		Message:   err.Error(),
		Retryable: retryable(err),
	}
}

// retryable reports whether the failure category is transient.
func retryable(err error) bool {
	if taskexec.IsRetryableMarked(err) {
		return true
	}
	if errors.Is(err, taskexec.ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	// Handlers calling downstream gRPC services surface status errors;
	// classify those by code.
	if st, ok := status.FromError(err); ok && st.Code() != codes.OK && st.Code() != codes.Unknown {
		return retryableCode(st.Code())
	}
	return false
}

func retryableCode(code codes.Code) bool {
	switch code {
	case codes.Unavailable,
		codes.ResourceExhausted,
		codes.Aborted,
		codes.DeadlineExceeded:
		return true
	default:
		return false
	}
}
