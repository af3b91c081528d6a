// ABOUTME: Transport-independent JSON-RPC dispatcher for tools/list and tools/call.
// ABOUTME: Maps handler errors to typed envelopes and contains panics from tool code.

package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
)

// Dispatcher routes parsed JSON-RPC requests to registered tool handlers.
// Every transport feeds it the same way; identity and cancellation travel in
// the request context, never in dispatcher state.
type Dispatcher struct {
	registry *Registry
	logger   *slog.Logger
}

// NewDispatcher creates a dispatcher over the given registry.
func NewDispatcher(registry *Registry, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{registry: registry, logger: logger}
}

// Handle processes a single request and returns the response to send back on
// the same channel. Notifications return nil.
func (d *Dispatcher) Handle(ctx context.Context, req *Request) *Response {
	if req.IsNotification() {
		d.logger.Debug("notification accepted", "method", req.Method)
		return nil
	}
	if req.JSONRPC != "2.0" {
		return NewError(req.ID, CodeInvalidRequest, "invalid JSON-RPC version")
	}

	switch req.Method {
	case "tools/list":
		return NewResult(req.ID, ListToolsResult{Tools: d.registry.List()})
	case "tools/call":
		return d.handleToolsCall(ctx, req)
	default:
		return NewError(req.ID, CodeMethodNotFound, "method not found")
	}
}

func (d *Dispatcher) handleToolsCall(ctx context.Context, req *Request) *Response {
	var params CallToolParams
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return NewError(req.ID, CodeInvalidParams, "invalid params")
		}
	}
	if params.Name == "" {
		return NewError(req.ID, CodeInvalidParams, "tool name is required")
	}

	tool, ok := d.registry.Get(params.Name)
	if !ok {
		return NewError(req.ID, CodeInvalidParams, "tool not found")
	}

	args := params.Arguments
	if len(args) == 0 || string(args) == "null" {
		args = json.RawMessage("{}")
	}

	result, err := d.callTool(ctx, tool, args)
	if err != nil {
		return d.errorResponse(req.ID, params.Name, err)
	}

	payload, err := TextResult(result)
	if err != nil {
		d.logger.Error("tool result encoding failed", "tool", params.Name, "error", err)
		return NewError(req.ID, CodeInternalError, "internal error")
	}
	return NewResult(req.ID, payload)
}

// callTool invokes the handler with panic containment. A panicking tool must
// not take the transport loop down with it.
func (d *Dispatcher) callTool(ctx context.Context, tool Tool, args json.RawMessage) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("tool handler panicked", "tool", tool.Name, "panic", r)
			err = &Error{Code: CodeInternalError, Message: "internal error"}
		}
	}()
	return tool.Handler(ctx, args)
}

// errorResponse converts a handler error into a typed envelope. *Error values
// pass through with their code; anything else becomes a bare internal error
// so no storage or runtime detail leaks to the client.
func (d *Dispatcher) errorResponse(id json.RawMessage, toolName string, err error) *Response {
	var rpcErr *Error
	if errors.As(err, &rpcErr) {
		d.logger.Debug("tool call failed", "tool", toolName, "code", rpcErr.Code, "error", rpcErr.Message)
		return &Response{JSONRPC: "2.0", ID: id, Error: rpcErr}
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return NewError(id, CodeInternalError, "tool execution timed out")
	case errors.Is(err, context.Canceled):
		return NewError(id, CodeInternalError, "request cancelled")
	}

	d.logger.Warn("tool call failed", "tool", toolName, "error", err)
	return NewError(id, CodeInternalError, "internal error")
}
