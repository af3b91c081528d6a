// ABOUTME: Tests for the dual-channel SSE transport against a live test server.
// ABOUTME: Verifies the endpoint event, stream-only result delivery, and unknown-session rejection.

package transport

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/2389/clinic-gateway/internal/dispatch"
)

type sseEvent struct {
	name string
	data string
}

// readEvents parses SSE frames off the stream into a channel.
func readEvents(t *testing.T, body *bufio.Reader) <-chan sseEvent {
	t.Helper()
	events := make(chan sseEvent, 8)
	go func() {
		defer close(events)
		var cur sseEvent
		for {
			line, err := body.ReadString('\n')
			if err != nil {
				return
			}
			line = strings.TrimRight(line, "\n")
			switch {
			case strings.HasPrefix(line, "event: "):
				cur.name = strings.TrimPrefix(line, "event: ")
			case strings.HasPrefix(line, "data: "):
				cur.data = strings.TrimPrefix(line, "data: ")
			case line == "":
				if cur.name != "" {
					events <- cur
					cur = sseEvent{}
				}
			}
		}
	}()
	return events
}

func nextEvent(t *testing.T, events <-chan sseEvent) sseEvent {
	t.Helper()
	select {
	case ev, ok := <-events:
		if !ok {
			t.Fatal("stream closed before expected event")
		}
		return ev
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for event")
		return sseEvent{}
	}
}

func newSSEServer(t *testing.T) (*httptest.Server, *Manager) {
	t.Helper()
	sessions := NewManager(time.Minute, testLogger())
	t.Cleanup(sessions.Stop)

	sse := NewSSE(sessions, newTestDispatcher(t), "/messages", testLogger())
	mux := http.NewServeMux()
	mux.HandleFunc("/sse", sse.HandleStream)
	mux.HandleFunc("/messages", sse.HandleMessages)

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, sessions
}

// openStream connects to the stream and returns the announced message URL
// plus the event channel.
func openStream(t *testing.T, srv *httptest.Server) (string, <-chan sseEvent) {
	t.Helper()
	resp, err := http.Get(srv.URL + "/sse")
	if err != nil {
		t.Fatalf("opening stream: %v", err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("Content-Type = %q", ct)
	}

	events := readEvents(t, bufio.NewReader(resp.Body))
	first := nextEvent(t, events)
	if first.name != "endpoint" {
		t.Fatalf("first event = %q, want endpoint", first.name)
	}
	if !strings.HasPrefix(first.data, "/messages?session_id=") {
		t.Fatalf("endpoint event data = %q", first.data)
	}
	return srv.URL + first.data, events
}

func TestSSE_EndpointEventFirst(t *testing.T) {
	srv, sessions := newSSEServer(t)

	msgURL, _ := openStream(t, srv)
	sessionID := strings.TrimPrefix(msgURL, srv.URL+"/messages?session_id=")
	if !sessions.Known(sessionID) {
		t.Error("announced session id not registered")
	}
}

func TestSSE_ResultArrivesOnStream(t *testing.T) {
	srv, _ := newSSEServer(t)
	msgURL, events := openStream(t, srv)

	resp, err := http.Post(msgURL, "application/json",
		strings.NewReader(`{"jsonrpc":"2.0","id":42,"method":"tools/list"}`))
	if err != nil {
		t.Fatalf("posting message: %v", err)
	}
	defer resp.Body.Close()

	// The POST only acknowledges; the result must not be in its body.
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("POST status = %d, want 202", resp.StatusCode)
	}

	ev := nextEvent(t, events)
	if ev.name != "message" {
		t.Fatalf("event = %q, want message", ev.name)
	}
	var rpcResp dispatch.Response
	if err := json.Unmarshal([]byte(ev.data), &rpcResp); err != nil {
		t.Fatalf("decoding event data: %v", err)
	}
	if string(rpcResp.ID) != "42" {
		t.Errorf("correlation id = %s, want 42", rpcResp.ID)
	}
	if rpcResp.Error != nil {
		t.Errorf("tools/list error: %+v", rpcResp.Error)
	}
}

func TestSSE_InitializeOverStream(t *testing.T) {
	srv, _ := newSSEServer(t)
	msgURL, events := openStream(t, srv)

	resp, err := http.Post(msgURL, "application/json",
		strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"initialize"}`))
	if err != nil {
		t.Fatalf("posting initialize: %v", err)
	}
	resp.Body.Close()

	ev := nextEvent(t, events)
	var rpcResp dispatch.Response
	if err := json.Unmarshal([]byte(ev.data), &rpcResp); err != nil {
		t.Fatalf("decoding event data: %v", err)
	}
	result, ok := rpcResp.Result.(map[string]any)
	if !ok || result["protocolVersion"] != latestProtocolVersion {
		t.Errorf("initialize result = %+v", rpcResp.Result)
	}
}

func TestSSE_UnknownSession(t *testing.T) {
	srv, _ := newSSEServer(t)

	resp, err := http.Post(srv.URL+"/messages?session_id=bogus", "application/json",
		strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"tools/list"}`))
	if err != nil {
		t.Fatalf("posting message: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestSSE_MissingSessionID(t *testing.T) {
	srv, _ := newSSEServer(t)

	resp, err := http.Post(srv.URL+"/messages", "application/json",
		strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"tools/list"}`))
	if err != nil {
		t.Fatalf("posting message: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestSSE_DisconnectClosesSession(t *testing.T) {
	srv, sessions := newSSEServer(t)

	resp, err := http.Get(srv.URL + "/sse")
	if err != nil {
		t.Fatalf("opening stream: %v", err)
	}
	events := readEvents(t, bufio.NewReader(resp.Body))
	first := nextEvent(t, events)
	sessionID := strings.TrimPrefix(first.data, "/messages?session_id=")

	resp.Body.Close()

	deadline := time.After(5 * time.Second)
	for sessions.Known(sessionID) {
		select {
		case <-deadline:
			t.Fatal("session still live after client disconnect")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestSSE_ResultsArriveInSubmissionOrder(t *testing.T) {
	// A client that waits for each 202 before submitting its next call must
	// see results in exactly that order on the stream.
	srv, _ := newSSEServer(t)
	msgURL, events := openStream(t, srv)

	const calls = 10
	for i := 1; i <= calls; i++ {
		body := fmt.Sprintf(`{"jsonrpc":"2.0","id":%d,"method":"tools/call","params":{"name":"echo","arguments":{"n":%d}}}`, i, i)
		resp, err := http.Post(msgURL, "application/json", strings.NewReader(body))
		if err != nil {
			t.Fatalf("posting call %d: %v", i, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusAccepted {
			t.Fatalf("call %d status = %d, want 202", i, resp.StatusCode)
		}
	}

	for want := 1; want <= calls; want++ {
		ev := nextEvent(t, events)
		var rpcResp dispatch.Response
		if err := json.Unmarshal([]byte(ev.data), &rpcResp); err != nil {
			t.Fatalf("decoding event: %v", err)
		}
		if got := string(rpcResp.ID); got != fmt.Sprintf("%d", want) {
			t.Fatalf("event %d carries id %s, want %d", want, got, want)
		}
	}
}

func TestSSE_MultipleCallsCorrelated(t *testing.T) {
	srv, _ := newSSEServer(t)
	msgURL, events := openStream(t, srv)

	const calls = 5
	for i := 1; i <= calls; i++ {
		body := fmt.Sprintf(`{"jsonrpc":"2.0","id":%d,"method":"tools/call","params":{"name":"echo","arguments":{"n":%d}}}`, i, i)
		resp, err := http.Post(msgURL, "application/json", strings.NewReader(body))
		if err != nil {
			t.Fatalf("posting call %d: %v", i, err)
		}
		resp.Body.Close()
	}

	seen := make(map[string]bool)
	for range calls {
		ev := nextEvent(t, events)
		var rpcResp dispatch.Response
		if err := json.Unmarshal([]byte(ev.data), &rpcResp); err != nil {
			t.Fatalf("decoding event: %v", err)
		}
		seen[string(rpcResp.ID)] = true
	}
	for i := 1; i <= calls; i++ {
		if !seen[fmt.Sprintf("%d", i)] {
			t.Errorf("no response for call %d", i)
		}
	}
}
