// Package gateway wires the clinic server together: the SQLite store feeds
// the booking engine, the engine's tools populate the dispatch registry, and
// the configured transport carries calls to the dispatcher.
//
// With the stdio transport the process serves a single ungated pipe. With the
// HTTP transport one mux serves /health (allowlisted liveness), the
// streamable endpoint, and the SSE endpoint pair, all behind the auth gate
// when a JWT secret is configured and enforcement is on.
//
// Shutdown order: HTTP server drains, sessions close (dropping any
// undelivered stream results whole), then the store closes.
package gateway
