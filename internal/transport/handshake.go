// ABOUTME: Shared handshake pieces: protocol versions and the initialize result.
// ABOUTME: Every transport answers initialize itself; the dispatcher never sees it.

package transport

// Supported protocol versions
var supportedProtocolVersions = map[string]bool{
	"2025-03-26": true,
	"2025-11-25": true,
}

// latestProtocolVersion is the version advertised in initialize responses
const latestProtocolVersion = "2025-11-25"

// serverName identifies this server in initialize responses.
const serverName = "clinic-gateway"

// serverVersion is reported alongside serverName.
const serverVersion = "1.0.0"

// initializeResult is the handshake response payload common to all transports.
func initializeResult() map[string]any {
	return map[string]any{
		"protocolVersion": latestProtocolVersion,
		"capabilities": map[string]any{
			"tools": map[string]any{},
		},
		"serverInfo": map[string]any{
			"name":    serverName,
			"version": serverVersion,
		},
	}
}
