// Copyright 2025 The TaskExec Authors
// SPDX-License-Identifier: Apache-2.0

package taskexec

import (
	"strconv"
)

// Payload is the structured key-value document attached to an execute
// request. The keys a handler understands are part of its contract; unknown
// keys are ignored.
type Payload map[string]any

// String returns the string value for key, or def if the key is absent or
// not a string.
func (p Payload) String(key, def string) string {
	v, ok := p[key]
	if !ok {
		return def
	}
	s, ok := v.(string)
	if !ok {
		return def
	}
	return s
}

// Int returns the integer value for key, or def if the key is absent or not
// convertible. JSON numbers decode as float64, so that representation is
// accepted alongside integer types and numeric strings.
func (p Payload) Int(key string, def int) int {
	v, ok := p[key]
	if !ok {
		return def
	}
	switch n := v.(type) {
	case int:
		return n
	case int32:
		return int(n)
	case int64:
		return int(n)
	case float64:
		return int(n)
	case string:
		i, err := strconv.Atoi(n)
		if err != nil {
			return def
		}
		return i
	default:
		return def
	}
}

// Bool returns the boolean value for key, or def if the key is absent or
// not a boolean.
func (p Payload) Bool(key string, def bool) bool {
	v, ok := p[key]
	if !ok {
		return def
	}
	b, ok := v.(bool)
	if !ok {
		return def
	}
	return b
}

// Has reports whether the key is present.
func (p Payload) Has(key string) bool {
	_, ok := p[key]
	return ok
}
