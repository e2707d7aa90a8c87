// Copyright 2025 The TaskExec Authors
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/taskstream/taskexec"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// The protocol carries its own auth; origin checks belong to a
		// fronting proxy.
		return true
	},
}

const wsWriteTimeout = 10 * time.Second

// handleWebSocket serves /v1/tasks/ws. The client sends one ExecuteRequest
// as a JSON text message; the server answers with one JSON frame per
// message and closes the connection after the terminal frame. Closing the
// connection early cancels the execution through the request context.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	var req taskexec.ExecuteRequest
	if err := conn.ReadJSON(&req); err != nil {
		s.writeWSClose(conn, websocket.ClosePolicyViolation, "invalid execute request")
		return
	}

	// A hijacked connection does not cancel the request context on client
	// close, so wire the close into the execution's cancellation signal
	// explicitly.
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	frames, err := s.engine.Execute(ctx, &req)
	if err != nil {
		s.writeWSClose(conn, websocket.ClosePolicyViolation, err.Error())
		return
	}

	go func() {
		for {
			if _, _, err := conn.NextReader(); err != nil {
				cancel()
				return
			}
		}
	}()

	for frame := range frames {
		conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		if err := conn.WriteJSON(frame); err != nil {
			return
		}
	}

	s.writeWSClose(conn, websocket.CloseNormalClosure, "stream completed")
}

func (s *Server) writeWSClose(conn *websocket.Conn, code int, reason string) {
	deadline := time.Now().Add(wsWriteTimeout)
	msg := websocket.FormatCloseMessage(code, reason)
	if err := conn.WriteControl(websocket.CloseMessage, msg, deadline); err != nil {
		s.logger.Debug("websocket close write failed", "error", err)
	}
}
