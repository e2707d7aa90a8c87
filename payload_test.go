// Copyright 2025 The TaskExec Authors
// SPDX-License-Identifier: Apache-2.0

package taskexec

import "testing"

func TestPayloadString(t *testing.T) {
	t.Parallel()

	p := Payload{"message": "hello", "count": 3}

	if got := p.String("message", "def"); got != "hello" {
		t.Errorf("String(message) = %q, want %q", got, "hello")
	}
	if got := p.String("missing", "def"); got != "def" {
		t.Errorf("String(missing) = %q, want default", got)
	}
	if got := p.String("count", "def"); got != "def" {
		t.Errorf("String(count) = %q, want default for non-string value", got)
	}
}

func TestPayloadInt(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		payload Payload
		key     string
		want    int
	}{
		"int":            {Payload{"n": 7}, "n", 7},
		"json float":     {Payload{"n": float64(5)}, "n", 5},
		"numeric string": {Payload{"n": "12"}, "n", 12},
		"bad string":     {Payload{"n": "twelve"}, "n", 42},
		"missing":        {Payload{}, "n", 42},
		"wrong type":     {Payload{"n": true}, "n", 42},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			if got := tt.payload.Int(tt.key, 42); got != tt.want {
				t.Errorf("Int(%q) = %d, want %d", tt.key, got, tt.want)
			}
		})
	}
}

func TestPayloadBoolAndHas(t *testing.T) {
	t.Parallel()

	p := Payload{"flag": true}

	if !p.Bool("flag", false) {
		t.Error("Bool(flag) = false, want true")
	}
	if p.Bool("missing", false) {
		t.Error("Bool(missing) = true, want default false")
	}
	if !p.Has("flag") || p.Has("missing") {
		t.Error("Has() misreported key presence")
	}
}
