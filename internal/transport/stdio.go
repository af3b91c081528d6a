// ABOUTME: Local pipe transport speaking newline-delimited JSON-RPC.
// ABOUTME: Runs a sequential read-dispatch-write loop with no auth gate.

package transport

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/2389/clinic-gateway/internal/dispatch"
)

// Stdio serves JSON-RPC over a reader/writer pair, one message per line.
// The pipe is trusted: a caller who can spawn the process already has full
// access, so there is no gate on this transport.
type Stdio struct {
	dispatcher *dispatch.Dispatcher
	logger     *slog.Logger
}

// NewStdio creates a stdio transport over the given dispatcher.
func NewStdio(dispatcher *dispatch.Dispatcher, logger *slog.Logger) *Stdio {
	if logger == nil {
		logger = slog.Default()
	}
	return &Stdio{dispatcher: dispatcher, logger: logger}
}

// Run reads messages from r until EOF or ctx cancellation, writing each
// response to w. Messages are processed strictly in arrival order.
func (s *Stdio) Run(ctx context.Context, r io.Reader, w io.Writer) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), dispatch.MaxMessageSize)
	enc := json.NewEncoder(w)

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		resp := s.handleLine(ctx, line)
		if resp == nil {
			continue
		}
		if err := enc.Encode(resp); err != nil {
			return fmt.Errorf("writing response: %w", err)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading input: %w", err)
	}
	return nil
}

func (s *Stdio) handleLine(ctx context.Context, line []byte) *dispatch.Response {
	var req dispatch.Request
	if err := json.Unmarshal(line, &req); err != nil {
		s.logger.Debug("unparseable message", "error", err)
		return dispatch.NewError(nil, dispatch.CodeParseError, "invalid JSON")
	}

	if req.Method == "initialize" {
		if req.IsNotification() {
			return nil
		}
		return dispatch.NewResult(req.ID, initializeResult())
	}

	return s.dispatcher.Handle(ctx, &req)
}
