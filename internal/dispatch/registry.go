// ABOUTME: Immutable tool registry built once at startup.
// ABOUTME: Maps tool names to handlers and serves the tools/list view.

package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
)

// Handler executes a tool call. Arguments are the raw JSON params; the
// returned value is JSON-encoded into the result. Domain failures should be
// returned as *Error so they reach the client with their code intact.
type Handler func(ctx context.Context, args json.RawMessage) (any, error)

// Tool is a named operation exposed over tools/list and tools/call.
type Tool struct {
	Name        string
	Description string
	InputSchema json.RawMessage
	Handler     Handler
}

// Registry is an immutable name-to-tool map. Build it with NewRegistry;
// it is safe for concurrent use without locking.
type Registry struct {
	tools map[string]Tool
	names []string
}

// NewRegistry builds a registry from the given tools. Duplicate or empty
// names and nil handlers are rejected.
func NewRegistry(tools []Tool) (*Registry, error) {
	r := &Registry{tools: make(map[string]Tool, len(tools))}
	for _, t := range tools {
		if t.Name == "" {
			return nil, fmt.Errorf("tool with empty name")
		}
		if t.Handler == nil {
			return nil, fmt.Errorf("tool %q has no handler", t.Name)
		}
		if _, dup := r.tools[t.Name]; dup {
			return nil, fmt.Errorf("duplicate tool name %q", t.Name)
		}
		r.tools[t.Name] = t
		r.names = append(r.names, t.Name)
	}
	sort.Strings(r.names)
	return r, nil
}

// Get returns the tool with the given name.
func (r *Registry) Get(name string) (Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// List returns all tool descriptions, sorted by name.
func (r *Registry) List() []ToolInfo {
	infos := make([]ToolInfo, 0, len(r.names))
	for _, name := range r.names {
		t := r.tools[name]
		schema := t.InputSchema
		if len(schema) == 0 {
			schema = json.RawMessage(`{"type":"object"}`)
		}
		infos = append(infos, ToolInfo{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: schema,
		})
	}
	return infos
}
