// Copyright 2025 The TaskExec Authors
// SPDX-License-Identifier: Apache-2.0

// Package server exposes the execution engine over HTTP: execute requests
// stream frames back as Server-Sent Events or over a WebSocket, cancel and
// health are plain JSON endpoints, and Prometheus metrics are served on
// /metrics.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/taskstream/taskexec"
	"github.com/taskstream/taskexec/executor"
)

// Route paths served by the Server.
const (
	ExecutePath   = "/v1/tasks/execute"
	WebSocketPath = "/v1/tasks/ws"
	CancelPath    = "/v1/tasks/cancel"
	HealthPath    = "/v1/health"
	MetricsPath   = "/metrics"
)

// Server serves the task-execution protocol over HTTP.
type Server struct {
	engine     *executor.Engine
	logger     *slog.Logger
	authSecret []byte
	heartbeat  time.Duration
	httpServer *http.Server
}

// Option configures a [Server].
type Option func(*Server)

// WithLogger sets the logger for the Server.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithAuthSecret enables JWT bearer authentication on all task endpoints,
// verified with the given HMAC secret.
func WithAuthSecret(secret []byte) Option {
	return func(s *Server) {
		s.authSecret = secret
	}
}

// WithHeartbeat sets the SSE heartbeat interval. Zero disables heartbeats.
func WithHeartbeat(d time.Duration) Option {
	return func(s *Server) {
		s.heartbeat = d
	}
}

// New creates a Server for engine.
func New(engine *executor.Engine, opts ...Option) *Server {
	s := &Server{
		engine:    engine,
		logger:    slog.Default(),
		heartbeat: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the fully wired http.Handler, h2c-enabled so gRPC-style
// HTTP/2 clients can connect without TLS.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	chain := func(h http.Handler) http.Handler {
		h = requestLogging(s.logger)(h)
		if len(s.authSecret) > 0 {
			h = bearerAuth(s.authSecret, s.logger)(h)
		}
		return recovery(s.logger)(h)
	}

	mux.Handle("POST "+ExecutePath, chain(http.HandlerFunc(s.handleExecute)))
	mux.Handle(WebSocketPath, chain(http.HandlerFunc(s.handleWebSocket)))
	mux.Handle("POST "+CancelPath, chain(http.HandlerFunc(s.handleCancel)))
	mux.Handle("GET "+HealthPath, recovery(s.logger)(http.HandlerFunc(s.handleHealth)))
	mux.Handle("GET "+MetricsPath, promhttp.Handler())

	return h2c.NewHandler(mux, &http2.Server{})
}

// ListenAndServe starts serving on addr and blocks until the listener fails
// or Shutdown is called.
func (s *Server) ListenAndServe(addr string) error {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(l)
}

// Serve starts serving on l.
func (s *Server) Serve(l net.Listener) error {
	s.httpServer = &http.Server{
		Handler: s.Handler(),
	}
	s.logger.Info("server listening", "addr", l.Addr().String())

	if err := s.httpServer.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the service: in-flight executions are cancelled and given
// until ctx expires to emit their terminal frames, then the HTTP server is
// drained. The engine goes first: streaming handlers hold their connections
// open until the engine closes the frame channel, so an HTTP drain ahead of
// the engine drain would sit on those connections for the whole grace
// period.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.engine.Shutdown(ctx)
	if s.httpServer != nil {
		if herr := s.httpServer.Shutdown(ctx); herr != nil && err == nil {
			err = herr
		}
	}
	return err
}

// handleCancel serves POST /v1/tasks/cancel.
func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	var req taskexec.CancelRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, taskexec.CodeInvalidRequest, err.Error())
		return
	}

	resp, err := s.engine.Cancel(r.Context(), &req)
	if err != nil {
		writeError(w, http.StatusBadRequest, taskexec.CodeInvalidRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleHealth serves GET /v1/health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.Health(r.Context()))
}
