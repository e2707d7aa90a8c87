// Copyright 2025 The TaskExec Authors
// SPDX-License-Identifier: Apache-2.0

package taskexec

import (
	"strings"
	"testing"

	"github.com/go-json-experiment/json"
)

func TestFrameKind(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		frame        Frame
		wantKind     FrameKind
		wantTerminal bool
	}{
		"progress": {
			frame:    Frame{Progress: &Progress{TaskID: "t1", Percentage: 50}},
			wantKind: FrameKindProgress,
		},
		"result": {
			frame:        Frame{Result: &Result{TaskID: "t1", Status: TaskStatusCompleted}},
			wantKind:     FrameKindResult,
			wantTerminal: true,
		},
		"error": {
			frame:        Frame{Error: &ErrorDetail{Code: CodeExecutionError}},
			wantKind:     FrameKindError,
			wantTerminal: true,
		},
		"empty": {
			frame:    Frame{},
			wantKind: "",
		},
		"two variants": {
			frame: Frame{
				Progress: &Progress{TaskID: "t1"},
				Result:   &Result{TaskID: "t1", Status: TaskStatusCompleted},
			},
			wantKind: "",
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			if got := tt.frame.Kind(); got != tt.wantKind {
				t.Errorf("Kind() = %q, want %q", got, tt.wantKind)
			}
			if got := tt.frame.Terminal(); got != tt.wantTerminal {
				t.Errorf("Terminal() = %v, want %v", got, tt.wantTerminal)
			}
		})
	}
}

func TestFrameValidate(t *testing.T) {
	t.Parallel()

	if err := NewProgressFrame(NewProgress("t1", 33, "processing", "step 1")).Validate(); err != nil {
		t.Errorf("Validate() on valid progress frame returned %v", err)
	}
	if err := (&Frame{}).Validate(); err == nil {
		t.Error("Validate() on empty frame returned nil, want error")
	}
	if err := NewProgressFrame(&Progress{TaskID: "t1", Percentage: 101}).Validate(); err == nil {
		t.Error("Validate() with percentage 101 returned nil, want error")
	}
	if err := NewProgressFrame(&Progress{Percentage: 10}).Validate(); err == nil {
		t.Error("Validate() with empty task id returned nil, want error")
	}
}

func TestFrameJSONExactlyOneField(t *testing.T) {
	t.Parallel()

	data, err := json.Marshal(NewResultFrame(&Result{TaskID: "t1", Status: TaskStatusCancelled}))
	if err != nil {
		t.Fatalf("Marshal() error: %v", err)
	}

	s := string(data)
	if !strings.Contains(s, `"result"`) {
		t.Errorf("marshaled frame missing result field: %s", s)
	}
	for _, absent := range []string{`"progress"`, `"error"`, `"duration_ms"`} {
		if strings.Contains(s, absent) {
			t.Errorf("marshaled frame unexpectedly contains %s: %s", absent, s)
		}
	}
}

func TestExecuteRequestValidate(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		req     ExecuteRequest
		wantErr bool
	}{
		"valid":          {req: ExecuteRequest{TaskID: "t1", Method: "demo"}},
		"missing id":     {req: ExecuteRequest{Method: "demo"}, wantErr: true},
		"missing method": {req: ExecuteRequest{TaskID: "t1"}, wantErr: true},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			err := tt.req.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
