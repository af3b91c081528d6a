// Package transport carries JSON-RPC messages between clients and the
// dispatcher over three interchangeable channels.
//
// # Stdio
//
// A newline-delimited loop over a local pipe. Sequential, ungated, and
// sessionless; initialize is answered inline.
//
// # Streamable HTTP
//
// One endpoint. initialize mints a session whose id is returned in the
// Mcp-Session-Id header and must be echoed on every later call. Missing ids
// are rejected with 400, unknown ids with 404, and re-initializing a live id
// with 409. DELETE closes the session if the caller presents the credential
// it was opened with.
//
// # SSE
//
// Two paths. GET opens the event stream; the first event names the message
// path with the session id as a query parameter. POSTs to that path are
// acknowledged with 202 and their responses delivered as message events on
// the owning stream, correlated by JSON-RPC id.
//
// # Sessions
//
// The Manager owns every session. Resolve extends the idle deadline; a
// background sweeper closes sessions idle past the configured timeout.
// Calls within one session are serialized, so responses leave in arrival
// order; across sessions there is no ordering.
package transport
