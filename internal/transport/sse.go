// ABOUTME: Dual-channel transport: a long-lived SSE stream plus a message POST path.
// ABOUTME: Results never return on the POST; they arrive as events on the owning stream.

package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/2389/clinic-gateway/internal/dispatch"
)

// SSE serves the two-channel transport. GET on the stream path opens a
// session and announces the message path as the first event; POST on the
// message path submits calls whose responses are delivered on the stream,
// correlated by JSON-RPC id.
type SSE struct {
	sessions     *Manager
	dispatcher   *dispatch.Dispatcher
	messagesPath string
	logger       *slog.Logger
}

// NewSSE creates the dual-channel transport. messagesPath is the path
// announced in the endpoint event, e.g. "/messages".
func NewSSE(sessions *Manager, dispatcher *dispatch.Dispatcher, messagesPath string, logger *slog.Logger) *SSE {
	if logger == nil {
		logger = slog.Default()
	}
	return &SSE{
		sessions:     sessions,
		dispatcher:   dispatcher,
		messagesPath: messagesPath,
		logger:       logger,
	}
}

// HandleStream serves the long-lived GET. The connection stays open until
// the client disconnects or the session is swept.
func (s *SSE) HandleStream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.logger.Error("streaming not supported")
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	sess := s.sessions.Open(KindDualChannel, bearerCredential(r))
	defer s.sessions.Close(sess.ID)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	endpoint := fmt.Sprintf("%s?session_id=%s", s.messagesPath, sess.ID)
	writeSSEEvent(w, "endpoint", []byte(endpoint))
	flusher.Flush()

	s.logger.Info("session created", "session_id", sess.ID, "kind", sess.Kind)

	for {
		select {
		case <-r.Context().Done():
			return
		case resp, open := <-sess.Events():
			if !open {
				return
			}
			data, err := json.Marshal(resp)
			if err != nil {
				s.logger.Error("failed to marshal event", "error", err)
				continue
			}
			writeSSEEvent(w, "message", data)
			flusher.Flush()
		}
	}
}

// HandleMessages serves the POST path. The call is acknowledged with 202 and
// dispatched asynchronously; the response goes out on the session's stream.
func (s *SSE) HandleMessages(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}

	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		http.Error(w, "Bad Request: missing session_id", http.StatusBadRequest)
		return
	}
	sess, err := s.sessions.Resolve(sessionID)
	if err != nil {
		http.Error(w, "Not Found: unknown session", http.StatusNotFound)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, dispatch.MaxMessageSize+1))
	if err != nil || int64(len(body)) > dispatch.MaxMessageSize {
		http.Error(w, "Bad Request: unreadable or oversized body", http.StatusBadRequest)
		return
	}

	var req dispatch.Request
	if err := json.Unmarshal(body, &req); err != nil {
		http.Error(w, "Bad Request: invalid JSON", http.StatusBadRequest)
		return
	}

	if req.IsNotification() {
		w.WriteHeader(http.StatusAccepted)
		return
	}

	// The POST returns immediately, so detach from its cancellation while
	// keeping request values such as the caller identity. Enqueue before
	// acknowledging: a client that waits for each 202 before sending its
	// next call gets strict arrival-order processing.
	ctx := context.WithoutCancel(r.Context())
	if err := sess.Enqueue(func() { s.dispatch(ctx, sess, &req) }); err != nil {
		if errors.Is(err, ErrSessionClosed) {
			http.Error(w, "Not Found: unknown session", http.StatusNotFound)
			return
		}
		http.Error(w, "Service Unavailable: session backlogged", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// dispatch runs one queued call and delivers the result on the stream. The
// session's drainer invokes it sequentially, so results leave in enqueue
// order. A session closed mid-flight drops the result whole; nothing is ever
// partially written.
func (s *SSE) dispatch(ctx context.Context, sess *Session, req *dispatch.Request) {
	var resp *dispatch.Response
	if req.Method == "initialize" {
		resp = dispatch.NewResult(req.ID, initializeResult())
	} else {
		resp = s.dispatcher.Handle(ctx, req)
	}
	if resp == nil {
		return
	}
	if err := sess.Deliver(resp); err != nil {
		s.logger.Debug("dropping result for closed session", "session_id", sess.ID, "error", err)
	}
}

// writeSSEEvent emits one event frame.
func writeSSEEvent(w http.ResponseWriter, event string, data []byte) {
	fmt.Fprintf(w, "event: %s\n", event)
	fmt.Fprintf(w, "data: %s\n\n", data)
}
