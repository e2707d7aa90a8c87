// Copyright 2025 The TaskExec Authors
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"bufio"
	"context"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-json-experiment/json"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/go-cmp/cmp"
	"github.com/gorilla/websocket"

	"github.com/taskstream/taskexec"
	"github.com/taskstream/taskexec/executor"
	"github.com/taskstream/taskexec/handlers"
)

func newTestServer(t *testing.T, opts ...Option) *httptest.Server {
	t.Helper()

	reg := executor.NewRegistry()
	handlers.RegisterAll(reg)
	reg.Register("steps", executor.HandlerFunc(func(ctx context.Context, req *taskexec.ExecuteRequest, task *executor.TaskState, queue *executor.ProgressQueue) error {
		for i := 1; i <= 2; i++ {
			p := taskexec.NewProgress(req.TaskID, int32(i*50), "working", "")
			if err := queue.Put(ctx, p); err != nil {
				return err
			}
		}
		return nil
	}))
	engine := executor.New(reg, executor.WithLogger(slog.New(slog.DiscardHandler)))

	opts = append(opts, WithLogger(slog.New(slog.DiscardHandler)))
	srv := httptest.NewServer(New(engine, opts...).Handler())
	t.Cleanup(srv.Close)
	return srv
}

// readSSEFrames consumes an SSE body until EOF and decodes every data line
// into a frame.
func readSSEFrames(t *testing.T, body *bufio.Scanner) []*taskexec.Frame {
	t.Helper()

	var got []*taskexec.Frame
	for body.Scan() {
		line := body.Text()
		data, ok := strings.CutPrefix(line, "data: ")
		if !ok {
			continue
		}
		var frame taskexec.Frame
		if err := json.Unmarshal([]byte(data), &frame); err != nil {
			t.Fatalf("unmarshal frame %q: %v", data, err)
		}
		got = append(got, &frame)
	}
	if err := body.Err(); err != nil {
		t.Fatalf("read stream: %v", err)
	}
	return got
}

func postExecute(t *testing.T, srv *httptest.Server, reqBody string) *http.Response {
	t.Helper()

	resp, err := http.Post(srv.URL+ExecutePath, "application/json", strings.NewReader(reqBody))
	if err != nil {
		t.Fatalf("POST %s: %v", ExecutePath, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestExecuteSSE(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t)
	resp := postExecute(t, srv, `{"task_id":"t1","method":"steps"}`)

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("Content-Type = %q, want text/event-stream", ct)
	}

	got := readSSEFrames(t, bufio.NewScanner(resp.Body))
	if len(got) != 3 {
		t.Fatalf("got %d frames, want 2 progress + 1 result", len(got))
	}
	if p := got[0].Progress; p == nil || p.Percentage != 50 {
		t.Errorf("first frame = %+v, want progress 50", got[0])
	}
	res := got[2].Result
	if res == nil || res.Status != taskexec.TaskStatusCompleted || res.TaskID != "t1" {
		t.Errorf("terminal frame = %+v, want COMPLETED for t1", got[2])
	}
}

func TestExecuteSSEUnknownMethod(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t)
	resp := postExecute(t, srv, `{"task_id":"t1","method":"nope"}`)

	// Dispatch failures are stream frames, not HTTP errors.
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	got := readSSEFrames(t, bufio.NewScanner(resp.Body))
	if len(got) != 1 || got[0].Error == nil || got[0].Error.Code != taskexec.CodeUnknownMethod {
		t.Fatalf("frames = %+v, want single UNKNOWN_METHOD error", got)
	}
}

func TestExecuteBadRequest(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t)

	tests := map[string]string{
		"malformed json": `{"task_id":`,
		"missing method": `{"task_id":"t1"}`,
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			resp := postExecute(t, srv, body)
			if resp.StatusCode != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", resp.StatusCode)
			}
		})
	}
}

func TestCancelEndpoint(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t)

	// No such task yet.
	resp, err := http.Post(srv.URL+CancelPath, "application/json", strings.NewReader(`{"task_id":"ghost"}`))
	if err != nil {
		t.Fatalf("POST %s: %v", CancelPath, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var cr taskexec.CancelResponse
	if err := json.UnmarshalRead(resp.Body, &cr); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if cr.Success {
		t.Error("Success = true for unknown task")
	}
}

func TestCancelDuringExecution(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t)

	// Backtest's default stage delay is 1s, leaving a wide cancel window.
	resp := postExecute(t, srv, `{"task_id":"bt1","method":"backtest"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	time.Sleep(50 * time.Millisecond)
	cancelResp, err := http.Post(srv.URL+CancelPath, "application/json", strings.NewReader(`{"task_id":"bt1","reason":"test"}`))
	if err != nil {
		t.Fatalf("POST %s: %v", CancelPath, err)
	}
	defer cancelResp.Body.Close()
	var cr taskexec.CancelResponse
	if err := json.UnmarshalRead(cancelResp.Body, &cr); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !cr.Success {
		t.Fatalf("cancel failed: %s", cr.Message)
	}

	got := readSSEFrames(t, bufio.NewScanner(resp.Body))
	last := got[len(got)-1]
	if last.Result == nil || last.Result.Status != taskexec.TaskStatusCancelled {
		t.Errorf("terminal frame = %+v, want CANCELLED result", last)
	}
}

func TestHealthEndpoint(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t)

	resp, err := http.Get(srv.URL + HealthPath)
	if err != nil {
		t.Fatalf("GET %s: %v", HealthPath, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var hr taskexec.HealthResponse
	if err := json.UnmarshalRead(resp.Body, &hr); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if hr.Status != taskexec.HealthStatusHealthy {
		t.Errorf("Status = %q, want %q", hr.Status, taskexec.HealthStatusHealthy)
	}
	if hr.Details[taskexec.HealthDetailActiveTasks] != "0" {
		t.Errorf("active_tasks = %q, want 0", hr.Details[taskexec.HealthDetailActiveTasks])
	}
	wantHandlers := strings.Join([]string{"backtest", "chat", "demo", "steps"}, ",")
	if diff := cmp.Diff(wantHandlers, hr.Details[taskexec.HealthDetailHandlers]); diff != "" {
		t.Errorf("handlers mismatch (-want +got):\n%s", diff)
	}
}

func TestBearerAuth(t *testing.T) {
	t.Parallel()

	secret := []byte("test-secret")
	srv := newTestServer(t, WithAuthSecret(secret))

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "tester",
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString(secret)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	wrong, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "tester",
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte("other-secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}

	tests := map[string]struct {
		header     string
		wantStatus int
	}{
		"no token":      {header: "", wantStatus: http.StatusUnauthorized},
		"garbage token": {header: "Bearer not-a-jwt", wantStatus: http.StatusUnauthorized},
		"wrong secret":  {header: "Bearer " + wrong, wantStatus: http.StatusUnauthorized},
		"valid token":   {header: "Bearer " + token, wantStatus: http.StatusOK},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			req, err := http.NewRequest(http.MethodPost, srv.URL+CancelPath, strings.NewReader(`{"task_id":"x"}`))
			if err != nil {
				t.Fatalf("build request: %v", err)
			}
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				t.Fatalf("POST %s: %v", CancelPath, err)
			}
			defer resp.Body.Close()

			if resp.StatusCode != tc.wantStatus {
				t.Errorf("status = %d, want %d", resp.StatusCode, tc.wantStatus)
			}
		})
	}
}

func TestHealthSkipsAuth(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, WithAuthSecret([]byte("test-secret")))

	resp, err := http.Get(srv.URL + HealthPath)
	if err != nil {
		t.Fatalf("GET %s: %v", HealthPath, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200 without a token", resp.StatusCode)
	}
}

func TestWebSocketExecute(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t)
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + WebSocketPath

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", wsURL, err)
	}
	defer conn.Close()

	if err := conn.WriteJSON(&taskexec.ExecuteRequest{TaskID: "t1", Method: "steps"}); err != nil {
		t.Fatalf("write request: %v", err)
	}

	var got []*taskexec.Frame
	for {
		var frame taskexec.Frame
		if err := conn.ReadJSON(&frame); err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				break
			}
			t.Fatalf("read frame: %v", err)
		}
		got = append(got, &frame)
		if frame.Terminal() {
			break
		}
	}

	if len(got) != 3 {
		t.Fatalf("got %d frames, want 3", len(got))
	}
	if res := got[2].Result; res == nil || res.Status != taskexec.TaskStatusCompleted {
		t.Errorf("terminal frame = %+v, want COMPLETED result", got[2])
	}
}

func TestShutdownCancelsActiveStreams(t *testing.T) {
	t.Parallel()

	reg := executor.NewRegistry()
	handlers.RegisterAll(reg)
	engine := executor.New(reg, executor.WithLogger(slog.New(slog.DiscardHandler)))
	srv := New(engine, WithLogger(slog.New(slog.DiscardHandler)))

	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- srv.Serve(l)
	}()

	// Backtest's default stage delay is 1s, so the stream stays open well
	// past the shutdown below.
	resp, err := http.Post("http://"+l.Addr().String()+ExecutePath, "application/json",
		strings.NewReader(`{"task_id":"t1","method":"backtest"}`))
	if err != nil {
		t.Fatalf("POST %s: %v", ExecutePath, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	// The SSE headers arrive before the execution goroutine registers the
	// task; wait for it so the shutdown provably races an active stream.
	waitDeadline := time.Now().Add(5 * time.Second)
	for engine.ActiveTasks() == 0 {
		if time.Now().After(waitDeadline) {
			t.Fatal("task never became active")
		}
		time.Sleep(5 * time.Millisecond)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	start := time.Now()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		t.Fatalf("Shutdown() error: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 3*time.Second {
		t.Errorf("Shutdown() took %v, want well under the grace deadline", elapsed)
	}

	got := readSSEFrames(t, bufio.NewScanner(resp.Body))
	if len(got) == 0 {
		t.Fatal("stream closed without a terminal frame")
	}
	last := got[len(got)-1]
	if last.Result == nil || last.Result.Status != taskexec.TaskStatusCancelled {
		t.Errorf("terminal frame = %+v, want CANCELLED result", last)
	}

	if err := <-serveErr; err != nil {
		t.Errorf("Serve() returned %v after shutdown, want nil", err)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t)

	resp, err := http.Get(srv.URL + MetricsPath)
	if err != nil {
		t.Fatalf("GET %s: %v", MetricsPath, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
}
