// ABOUTME: Tests for configuration loading and parsing
// ABOUTME: Covers YAML loading, env var expansion, defaults, and duration parsing

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatalf("writing config file: %v", err)
	}
	return configPath
}

func TestLoad_ValidConfig(t *testing.T) {
	configPath := writeConfig(t, `
server:
  transport: "http"
  http_addr: "0.0.0.0:8080"

database:
  path: "./test.db"

auth:
  jwt_secret: "test-secret-for-config-loading"
  token_ttl: "12h"
  leeway: "30s"
  allowlist_paths:
    - "/health"
    - "/metrics"

sessions:
  idle_timeout: "2m"

logging:
  level: "debug"
  format: "json"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.HTTPAddr != "0.0.0.0:8080" {
		t.Errorf("HTTPAddr = %q, want %q", cfg.Server.HTTPAddr, "0.0.0.0:8080")
	}
	if cfg.Auth.TokenTTL != 12*time.Hour {
		t.Errorf("TokenTTL = %v, want %v", cfg.Auth.TokenTTL, 12*time.Hour)
	}
	if cfg.Auth.Leeway != 30*time.Second {
		t.Errorf("Leeway = %v, want %v", cfg.Auth.Leeway, 30*time.Second)
	}
	if cfg.Sessions.IdleTimeout != 2*time.Minute {
		t.Errorf("IdleTimeout = %v, want %v", cfg.Sessions.IdleTimeout, 2*time.Minute)
	}
	if len(cfg.Auth.AllowlistPaths) != 2 {
		t.Errorf("AllowlistPaths = %v, want 2 entries", cfg.Auth.AllowlistPaths)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "json" {
		t.Errorf("Logging = %+v, want debug/json", cfg.Logging)
	}
}

func TestLoad_Defaults(t *testing.T) {
	configPath := writeConfig(t, `
database:
  path: "./test.db"
auth:
  jwt_secret: "test-secret-for-config-loading"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Transport != TransportHTTP {
		t.Errorf("Transport = %q, want %q", cfg.Server.Transport, TransportHTTP)
	}
	if cfg.Server.MCPPath != DefaultMCPPath {
		t.Errorf("MCPPath = %q, want %q", cfg.Server.MCPPath, DefaultMCPPath)
	}
	if cfg.Server.SSEPath != DefaultSSEPath {
		t.Errorf("SSEPath = %q, want %q", cfg.Server.SSEPath, DefaultSSEPath)
	}
	if cfg.Auth.TokenTTL != DefaultTokenTTL {
		t.Errorf("TokenTTL = %v, want %v", cfg.Auth.TokenTTL, DefaultTokenTTL)
	}
	if cfg.Auth.Leeway != 0 {
		t.Errorf("Leeway = %v, want 0", cfg.Auth.Leeway)
	}
	if cfg.Sessions.IdleTimeout != DefaultIdleTimeout {
		t.Errorf("IdleTimeout = %v, want %v", cfg.Sessions.IdleTimeout, DefaultIdleTimeout)
	}
	if !cfg.Auth.IsEnforced() {
		t.Error("IsEnforced() = false, want true by default")
	}
	if len(cfg.Auth.AllowlistPaths) != 1 || cfg.Auth.AllowlistPaths[0] != "/health" {
		t.Errorf("AllowlistPaths = %v, want [/health]", cfg.Auth.AllowlistPaths)
	}
}

func TestLoad_EnvExpansion(t *testing.T) {
	t.Setenv("CLINIC_TEST_SECRET", "secret-from-environment")

	configPath := writeConfig(t, `
database:
  path: "./test.db"
auth:
  jwt_secret: "${CLINIC_TEST_SECRET}"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Auth.JWTSecret != "secret-from-environment" {
		t.Errorf("JWTSecret = %q, want expanded env value", cfg.Auth.JWTSecret)
	}
}

func TestLoad_EnforcedRequiresSecret(t *testing.T) {
	configPath := writeConfig(t, `
database:
  path: "./test.db"
`)

	_, err := Load(configPath)
	if err == nil {
		t.Fatal("Load() should fail when auth is enforced without a secret")
	}
	if !strings.Contains(err.Error(), "jwt_secret") {
		t.Errorf("error = %v, want mention of jwt_secret", err)
	}
}

func TestLoad_EnforcedOffWithoutSecret(t *testing.T) {
	configPath := writeConfig(t, `
database:
  path: "./test.db"
auth:
  enforced: false
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Auth.IsEnforced() {
		t.Error("IsEnforced() = true, want false")
	}
}

func TestLoad_InvalidTransport(t *testing.T) {
	configPath := writeConfig(t, `
server:
  transport: "carrier-pigeon"
database:
  path: "./test.db"
auth:
  jwt_secret: "test-secret"
`)

	_, err := Load(configPath)
	if err == nil {
		t.Fatal("Load() should reject unknown transport")
	}
}

func TestLoad_InvalidDuration(t *testing.T) {
	configPath := writeConfig(t, `
database:
  path: "./test.db"
auth:
  jwt_secret: "test-secret"
sessions:
  idle_timeout: "five minutes"
`)

	_, err := Load(configPath)
	if err == nil {
		t.Fatal("Load() should reject malformed durations")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err == nil {
		t.Fatal("Load() should fail for a missing file")
	}
}
