// Package config handles configuration loading for clinic-gateway.
//
// # Overview
//
// Configuration is loaded from YAML files with environment variable expansion.
// The package provides validation and sensible defaults.
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	auth:
//	  jwt_secret: "${CLINIC_JWT_SECRET}"
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax:
//
//	auth:
//	  token_ttl: "24h"
//	  leeway: "0s"
//	sessions:
//	  idle_timeout: "300s"
//
// # Configuration Sections
//
// Server settings:
//
//	server:
//	  transport: "http"            # http or stdio
//	  http_addr: "127.0.0.1:8080"
//	  mcp_path: "/mcp"             # streamable endpoint
//	  sse_path: "/sse"             # event-stream endpoint
//
// Database:
//
//	database:
//	  path: "/var/lib/clinic/clinic.db"
//
// Authentication:
//
//	auth:
//	  jwt_secret: "${CLINIC_JWT_SECRET}"
//	  enforced: true               # network transports only; stdio is never gated
//	  allowlist_paths: ["/health"]
//	  audience: ""                 # validated only when set
//	  issuer: ""                   # validated only when set
//
// Logging:
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
package config
