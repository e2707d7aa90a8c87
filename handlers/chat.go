// Copyright 2025 The TaskExec Authors
// SPDX-License-Identifier: Apache-2.0

package handlers

import (
	"context"
	"strconv"
	"time"

	"github.com/taskstream/taskexec"
	"github.com/taskstream/taskexec/executor"
)

// Chat simulates a streaming LLM response, emitting one progress frame per
// token with the token carried in the message field and its index in the
// metadata. Payload keys: "prompt" (string), "max_tokens" (int).
type Chat struct {
	// Delay is the simulated generation time per token. Zero means 100ms.
	Delay time.Duration

	// Tokens overrides the simulated response, mainly for tests.
	Tokens []string
}

var defaultTokens = []string{
	"Hello", " there", "!", " I'm", " a", " simulated",
	" LLM", " response", " for", " testing", ".",
}

// Execute implements [executor.Handler].
func (h *Chat) Execute(ctx context.Context, req *taskexec.ExecuteRequest, task *executor.TaskState, queue *executor.ProgressQueue) error {
	tokens := h.Tokens
	if len(tokens) == 0 {
		tokens = defaultTokens
	}
	if maxTokens := req.Payload.Int("max_tokens", len(tokens)); maxTokens > 0 && maxTokens < len(tokens) {
		tokens = tokens[:maxTokens]
	}

	delay := h.Delay
	if delay == 0 {
		delay = 100 * time.Millisecond
	}

	for i, token := range tokens {
		if err := sleep(ctx, task, delay); err != nil {
			return err
		}

		p := taskexec.NewProgress(
			req.TaskID,
			int32((i+1)*100/len(tokens)),
			"generating",
			token,
		)
		p.Metadata = map[string]string{"token_index": strconv.Itoa(i)}
		if err := queue.Put(ctx, p); err != nil {
			return err
		}
	}

	return nil
}
