// ABOUTME: Single-endpoint streamable HTTP transport.
// ABOUTME: Sessions are minted on initialize and echoed back via the Mcp-Session-Id header.

package transport

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/2389/clinic-gateway/internal/dispatch"
)

// Streamable serves JSON-RPC over a single HTTP endpoint. POST carries
// messages, DELETE terminates the session. Session errors are rejected with
// an HTTP status at this boundary; only dispatch and domain errors travel as
// JSON-RPC envelopes.
type Streamable struct {
	sessions   *Manager
	dispatcher *dispatch.Dispatcher
	logger     *slog.Logger
}

// NewStreamable creates the single-endpoint transport.
func NewStreamable(sessions *Manager, dispatcher *dispatch.Dispatcher, logger *slog.Logger) *Streamable {
	if logger == nil {
		logger = slog.Default()
	}
	return &Streamable{sessions: sessions, dispatcher: dispatcher, logger: logger}
}

// ServeHTTP handles the single endpoint.
func (s *Streamable) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handlePost(w, r)
	case http.MethodDelete:
		s.handleDelete(w, r)
	default:
		w.Header().Set("Allow", "POST, DELETE")
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Streamable) handlePost(w http.ResponseWriter, r *http.Request) {
	sessionID := r.Header.Get("Mcp-Session-Id")
	protoVersion := r.Header.Get("Mcp-Protocol-Version")

	body, err := io.ReadAll(io.LimitReader(r.Body, dispatch.MaxMessageSize+1))
	if err != nil {
		writeResponse(w, s.logger, dispatch.NewError(nil, dispatch.CodeParseError, "failed to read request body"))
		return
	}
	if int64(len(body)) > dispatch.MaxMessageSize {
		writeResponse(w, s.logger, dispatch.NewError(nil, dispatch.CodeInvalidRequest, "request body too large"))
		return
	}

	var req dispatch.Request
	if err := json.Unmarshal(body, &req); err != nil {
		writeResponse(w, s.logger, dispatch.NewError(nil, dispatch.CodeParseError, "invalid JSON"))
		return
	}

	isInitialize := req.Method == "initialize"

	if !isInitialize && protoVersion != "" && !supportedProtocolVersions[protoVersion] {
		http.Error(w, "Bad Request: unsupported Mcp-Protocol-Version", http.StatusBadRequest)
		return
	}

	if isInitialize {
		s.handleInitialize(w, r, &req, sessionID)
		return
	}

	if sessionID == "" {
		http.Error(w, "Bad Request: missing Mcp-Session-Id", http.StatusBadRequest)
		return
	}
	sess, err := s.sessions.Resolve(sessionID)
	if err != nil {
		if errors.Is(err, ErrUnknownSession) {
			http.Error(w, "Not Found: unknown session", http.StatusNotFound)
			return
		}
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	if req.IsNotification() {
		if !strings.HasPrefix(req.Method, "notifications/") {
			s.logger.Warn("notification for non-notification method", "method", req.Method)
		}
		w.WriteHeader(http.StatusAccepted)
		return
	}

	var resp *dispatch.Response
	sess.Serialize(func() {
		resp = s.dispatcher.Handle(r.Context(), &req)
	})
	writeResponse(w, s.logger, resp)
}

// handleInitialize mints a session. A handshake bearing an already-live id is
// rejected at the boundary rather than silently rotating the session.
func (s *Streamable) handleInitialize(w http.ResponseWriter, r *http.Request, req *dispatch.Request, sessionID string) {
	if sessionID != "" && s.sessions.Known(sessionID) {
		http.Error(w, "Conflict: "+ErrSessionAlreadyInitialized.Error(), http.StatusConflict)
		return
	}
	if req.IsNotification() {
		w.WriteHeader(http.StatusAccepted)
		return
	}

	sess := s.sessions.Open(KindSingleEndpoint, bearerCredential(r))
	s.logger.Info("session created", "session_id", sess.ID, "kind", sess.Kind)

	w.Header().Set("Mcp-Session-Id", sess.ID)
	writeResponse(w, s.logger, dispatch.NewResult(req.ID, initializeResult()))
}

// handleDelete terminates a session. The caller must present the same bearer
// credential the session was opened with.
func (s *Streamable) handleDelete(w http.ResponseWriter, r *http.Request) {
	sessionID := r.Header.Get("Mcp-Session-Id")
	if sessionID == "" {
		http.Error(w, "Bad Request: missing Mcp-Session-Id", http.StatusBadRequest)
		return
	}

	sess, err := s.sessions.Resolve(sessionID)
	if err != nil {
		http.Error(w, "Not Found: unknown session", http.StatusNotFound)
		return
	}

	if sess.Owner != "" && bearerCredential(r) != sess.Owner {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}

	s.sessions.Close(sessionID)
	s.logger.Info("session terminated", "session_id", sessionID)
	w.WriteHeader(http.StatusNoContent)
}

// bearerCredential extracts the raw bearer token, or empty when absent.
func bearerCredential(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimPrefix(authHeader, "Bearer ")
	}
	return ""
}

func writeResponse(w http.ResponseWriter, logger *slog.Logger, resp *dispatch.Response) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		logger.Warn("failed to encode response", "error", err)
	}
}
