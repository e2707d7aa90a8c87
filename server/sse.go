// Copyright 2025 The TaskExec Authors
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/bytedance/sonic"

	"github.com/taskstream/taskexec"
	"github.com/taskstream/taskexec/executor"
)

// handleExecute serves POST /v1/tasks/execute. The response is an SSE stream
// of frames; the event name is the frame kind and the data is the frame
// JSON. The stream always ends with a terminal frame unless the client
// disconnects first, in which case the request context doubles as the
// transport-level cancellation signal for the execution.
func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, taskexec.CodeInvalidRequest, "streaming unsupported")
		return
	}

	var req taskexec.ExecuteRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, taskexec.CodeInvalidRequest, err.Error())
		return
	}

	frames, err := s.engine.Execute(r.Context(), &req)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, executor.ErrEngineClosed) {
			status = http.StatusServiceUnavailable
		}
		writeError(w, status, taskexec.CodeInvalidRequest, err.Error())
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable Nginx buffering
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	s.streamFrames(w, flusher, frames)
}

// streamFrames forwards frames to the SSE connection until the engine closes
// the channel. Write failures mean the client is gone; the engine notices
// through the request context, so the loop just stops.
func (s *Server) streamFrames(w http.ResponseWriter, flusher http.Flusher, frames <-chan *taskexec.Frame) {
	var heartbeat <-chan time.Time
	if s.heartbeat > 0 {
		ticker := time.NewTicker(s.heartbeat)
		defer ticker.Stop()
		heartbeat = ticker.C
	}

	for {
		select {
		case <-heartbeat:
			if _, err := fmt.Fprint(w, ": heartbeat\n\n"); err != nil {
				return
			}
			flusher.Flush()

		case frame, ok := <-frames:
			if !ok {
				return
			}
			if err := writeSSEFrame(w, flusher, frame); err != nil {
				return
			}
		}
	}
}

// writeSSEFrame writes one frame as an SSE event. sonic keeps the marshal
// cheap on the per-frame hot path.
func writeSSEFrame(w http.ResponseWriter, flusher http.Flusher, frame *taskexec.Frame) error {
	data, err := sonic.ConfigDefault.Marshal(frame)
	if err != nil {
		return fmt.Errorf("failed to marshal frame: %w", err)
	}

	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", frame.Kind(), data); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}
