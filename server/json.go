// Copyright 2025 The TaskExec Authors
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"fmt"
	"net/http"

	"github.com/go-json-experiment/json"
)

// errorBody is the JSON shape of non-stream error responses.
type errorBody struct {
	Error errorDetailBody `json:"error"`
}

type errorDetailBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func readJSON(r *http.Request, v any) error {
	if err := json.UnmarshalRead(r.Body, v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.MarshalWrite(w, v); err != nil {
		// Headers are gone; nothing more to do.
		return
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorBody{Error: errorDetailBody{Code: code, Message: message}})
}
