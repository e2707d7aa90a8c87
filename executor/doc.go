// Copyright 2025 The TaskExec Authors
// SPDX-License-Identifier: Apache-2.0

// Package executor implements the runtime core of the task-execution
// protocol: handler registry, per-task state, the execution engine state
// machine, cooperative cancellation and error-retryability classification.
//
// The engine is transport-agnostic. A transport hands it an
// [taskexec.ExecuteRequest] and consumes the returned frame channel until it
// is closed; the engine guarantees the last frame on the channel is the only
// terminal frame of the execution.
package executor
