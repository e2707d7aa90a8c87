// Copyright 2025 The TaskExec Authors
// SPDX-License-Identifier: Apache-2.0

package executor

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/taskstream/taskexec"
)

// TaskState is the mutable record for one in-flight execution. The engine
// owns creation and removal; the cancelled flag is additionally written from
// the cancellation path, so it is atomic.
type TaskState struct {
	taskID    string
	startTime time.Time
	cancelled atomic.Bool
}

// TaskID returns the task id.
func (s *TaskState) TaskID() string {
	return s.taskID
}

// StartTime returns the instant the execution was accepted.
func (s *TaskState) StartTime() time.Time {
	return s.startTime
}

// Cancelled reports whether cancellation has been requested. The flag is
// monotonic: once true it never reverts. Handlers poll it between units of
// work.
func (s *TaskState) Cancelled() bool {
	return s.cancelled.Load()
}

func (s *TaskState) markCancelled() {
	s.cancelled.Store(true)
}

// Store holds the state records of all in-flight executions, keyed by task
// id. Inserts and deletes come from execution-lifecycle code; the cancel
// flag is flipped from cancellation-request code, concurrently.
type Store struct {
	mu    sync.RWMutex
	tasks map[string]*TaskState
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{
		tasks: make(map[string]*TaskState),
	}
}

// Create inserts a fresh record with cancelled=false and startTime=now.
// It returns [taskexec.ErrTaskExists] if an execution under the same id is
// still active.
func (s *Store) Create(taskID string) (*TaskState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tasks[taskID]; ok {
		return nil, taskexec.ErrTaskExists
	}

	state := &TaskState{
		taskID:    taskID,
		startTime: time.Now(),
	}
	s.tasks[taskID] = state
	return state, nil
}

// Get returns the record for taskID, if active.
func (s *Store) Get(taskID string) (*TaskState, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	state, ok := s.tasks[taskID]
	return state, ok
}

// MarkCancelled sets the cancellation flag and reports whether a record was
// found. An unknown id is not an error: the execution may have already
// completed, and cancellations racing completion are silently absorbed.
func (s *Store) MarkCancelled(taskID string) bool {
	s.mu.RLock()
	state, ok := s.tasks[taskID]
	s.mu.RUnlock()

	if !ok {
		return false
	}
	state.markCancelled()
	return true
}

// IsCancelled reads the current flag value. Unknown ids read as false.
func (s *Store) IsCancelled(taskID string) bool {
	s.mu.RLock()
	state, ok := s.tasks[taskID]
	s.mu.RUnlock()

	return ok && state.Cancelled()
}

// Remove deletes the record. Idempotent.
func (s *Store) Remove(taskID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.tasks, taskID)
}

// Len returns the number of in-flight executions.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.tasks)
}

// IDs returns the active task ids, sorted.
func (s *Store) IDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.tasks))
	for id := range s.tasks {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
