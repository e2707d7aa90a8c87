// Copyright 2025 The TaskExec Authors
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"bufio"
	"context"
	"io"
	"strings"

	"github.com/go-json-experiment/json"

	"github.com/taskstream/taskexec"
)

// readFrames parses the SSE stream into frames until the terminal frame,
// the body ends, or ctx is done. Heartbeat comments and unknown events are
// skipped.
func (c *Client) readFrames(ctx context.Context, body io.Reader, frames chan<- *taskexec.Frame) {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var data strings.Builder
	for scanner.Scan() {
		line := scanner.Text()

		switch {
		case strings.HasPrefix(line, ":"):
			// Comment (heartbeat).
		case strings.HasPrefix(line, "event:"):
			// The frame itself is self-discriminating; the event name is
			// redundant on the read side.
		case strings.HasPrefix(line, "data:"):
			data.WriteString(strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		case line == "":
			if data.Len() == 0 {
				continue
			}
			frame, err := parseFrame(data.String())
			data.Reset()
			if err != nil {
				c.logger.WarnContext(ctx, "skipping malformed frame", "error", err)
				continue
			}

			select {
			case frames <- frame:
			case <-ctx.Done():
				return
			}

			if frame.Terminal() {
				return
			}
		}
	}

	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		c.logger.WarnContext(ctx, "frame stream ended", "error", err)
	}
}

func parseFrame(data string) (*taskexec.Frame, error) {
	var frame taskexec.Frame
	if err := json.Unmarshal([]byte(data), &frame); err != nil {
		return nil, err
	}
	if err := frame.Validate(); err != nil {
		return nil, err
	}
	return &frame, nil
}
