package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

// testResponseWriter wraps ResponseRecorder and reports every write
type testResponseWriter struct {
	*httptest.ResponseRecorder
	writes chan string
}

func newTestResponseWriter() *testResponseWriter {
	return &testResponseWriter{
		ResponseRecorder: httptest.NewRecorder(),
		writes:           make(chan string, 16),
	}
}

func (w *testResponseWriter) Write(data []byte) (int, error) {
	w.writes <- string(data)
	return len(data), nil
}

func (w *testResponseWriter) Flush() {}

func (w *testResponseWriter) next(t *testing.T) string {
	t.Helper()
	select {
	case s := <-w.writes:
		return s
	case <-time.After(time.Second):
		t.Fatal("Timeout waiting for SSE write")
	}
	return ""
}

func startEvents(t *testing.T, handler *EventsHandler) (*testResponseWriter, context.CancelFunc, chan struct{}) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/api/events", nil).WithContext(ctx)
	rr := newTestResponseWriter()

	done := make(chan struct{})
	go func() {
		defer close(done)
		handler.HandleEvents(rr, req)
	}()
	return rr, cancel, done
}

func TestEventsHandler_SSEHeaders(t *testing.T) {
	handler := NewEventsHandler(NewEventBroadcaster(nil), nil, discardLogger())
	rr, cancel, done := startEvents(t, handler)
	defer func() {
		cancel()
		<-done
	}()

	rr.next(t)

	if ct := rr.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Expected Content-Type 'text/event-stream', got '%s'", ct)
	}
	if cc := rr.Header().Get("Cache-Control"); cc != "no-cache" {
		t.Errorf("Expected Cache-Control 'no-cache', got '%s'", cc)
	}
	if conn := rr.Header().Get("Connection"); conn != "keep-alive" {
		t.Errorf("Expected Connection 'keep-alive', got '%s'", conn)
	}
}

func TestEventsHandler_SendsSnapshotThenEvents(t *testing.T) {
	broadcaster := NewEventBroadcaster(nil)
	env := newTestEnv(t)
	handler := NewEventsHandler(broadcaster, env.manager, discardLogger())

	rr, cancel, done := startEvents(t, handler)
	defer func() {
		cancel()
		<-done
	}()

	if got := rr.next(t); !strings.HasPrefix(got, "event: connected\n") {
		t.Errorf("Expected connected event first, got %q", got)
	}
	snapshot := rr.next(t)
	if !strings.HasPrefix(snapshot, "event: snapshot\n") {
		t.Errorf("Expected snapshot event, got %q", snapshot)
	}
	if !strings.Contains(snapshot, `"state":"idle"`) {
		t.Errorf("Expected idle state in snapshot, got %q", snapshot)
	}

	broadcaster.Warning("token expiring")
	if got := rr.next(t); got != "event: warning\ndata: {\"message\":\"token expiring\"}\n\n" {
		t.Errorf("Unexpected warning event %q", got)
	}
}

func TestEventsHandler_UnsubscribesOnDisconnect(t *testing.T) {
	broadcaster := NewEventBroadcaster(nil)
	handler := NewEventsHandler(broadcaster, nil, discardLogger())

	rr, cancel, done := startEvents(t, handler)
	rr.next(t)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Handler did not return after client disconnect")
	}
	if broadcaster.ClientCount() != 0 {
		t.Errorf("Expected 0 clients after disconnect, got %d", broadcaster.ClientCount())
	}
}
