// Package dispatch implements the transport-independent JSON-RPC 2.0 core:
// envelope types, the immutable tool registry, and the dispatcher that routes
// tools/list and tools/call to registered handlers.
//
// # Envelope
//
// Request and Response follow JSON-RPC 2.0. Error doubles as a Go error so
// tool handlers can return domain failures with a code in the reserved
// server-error range (-32001 through -32006); the dispatcher passes those
// through verbatim and collapses every other error into -32603 with no
// internal detail.
//
// # Registry
//
// The registry is built once at startup from the full tool set and never
// mutated, so it needs no locking. tools/list is served directly from it.
//
// # Dispatcher
//
// Handle processes one request at a time. Callers provide ordering; the
// session layer serializes calls per session, so the dispatcher itself holds
// no per-client state. Panics in handlers are contained and reported as
// internal errors.
package dispatch
