// Copyright 2025 The TaskExec Authors
// SPDX-License-Identifier: Apache-2.0

package executor

import (
	"log/slog"
	"sort"
	"sync"
)

// Registry maps method names to handlers. Registration is a setup-time
// operation; during serving the registry is only read. The lock keeps late
// registration safe anyway.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
	logger   *slog.Logger
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		handlers: make(map[string]Handler),
		logger:   slog.Default(),
	}
}

// WithLogger sets the logger for the Registry.
func (r *Registry) WithLogger(logger *slog.Logger) *Registry {
	r.logger = logger
	return r
}

// Register stores the mapping, overwriting any prior registration for the
// same method.
func (r *Registry) Register(method string, handler Handler) {
	r.mu.Lock()
	r.handlers[method] = handler
	r.mu.Unlock()

	r.logger.Info("registered handler", "method", method)
}

// RegisterFunc registers a plain function as a handler.
func (r *Registry) RegisterFunc(method string, fn HandlerFunc) {
	r.Register(method, fn)
}

// Lookup returns the handler for method, if registered.
func (r *Registry) Lookup(method string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	h, ok := r.handlers[method]
	return h, ok
}

// Methods returns the registered method names, sorted.
func (r *Registry) Methods() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	methods := make([]string, 0, len(r.handlers))
	for m := range r.handlers {
		methods = append(methods, m)
	}
	sort.Strings(methods)
	return methods
}

// Len returns the number of registered handlers.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.handlers)
}
