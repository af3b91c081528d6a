// ABOUTME: Configuration loading and parsing for clinic-gateway
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Transport kinds accepted by server.transport.
const (
	TransportStdio = "stdio"
	TransportHTTP  = "http"
)

// Config represents the complete clinic-gateway configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Auth     AuthConfig     `yaml:"auth"`
	Sessions SessionsConfig `yaml:"sessions"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig holds transport and address configuration
type ServerConfig struct {
	// Transport selects "stdio" or "http". The HTTP transport serves both the
	// streamable endpoint and the SSE endpoint pair on the same address.
	Transport string `yaml:"transport"`
	HTTPAddr  string `yaml:"http_addr"`
	MCPPath   string `yaml:"mcp_path"`
	SSEPath   string `yaml:"sse_path"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// AuthConfig holds bearer token configuration.
// Enforcement applies to network transports only; stdio never authenticates.
type AuthConfig struct {
	JWTSecret      string   `yaml:"jwt_secret"`
	Enforced       *bool    `yaml:"enforced"`
	AllowlistPaths []string `yaml:"allowlist_paths"`
	Audience       string   `yaml:"audience"`
	Issuer         string   `yaml:"issuer"`

	TokenTTL    time.Duration `yaml:"-"`
	Leeway      time.Duration `yaml:"-"`
	TokenTTLRaw string        `yaml:"token_ttl"`
	LeewayRaw   string        `yaml:"leeway"`
}

// SessionsConfig holds session lifecycle configuration
type SessionsConfig struct {
	IdleTimeout    time.Duration `yaml:"-"`
	IdleTimeoutRaw string        `yaml:"idle_timeout"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Defaults applied by Load when the file leaves fields unset.
const (
	DefaultHTTPAddr    = "127.0.0.1:8080"
	DefaultMCPPath     = "/mcp"
	DefaultSSEPath     = "/sse"
	DefaultTokenTTL    = 24 * time.Hour
	DefaultIdleTimeout = 300 * time.Second
)

// Load reads a configuration file from the given path and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw YAML content
	expandedData := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.applyDefaults()

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// Default returns a configuration with all defaults applied and no file read.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	cfg.Auth.TokenTTL = DefaultTokenTTL
	cfg.Sessions.IdleTimeout = DefaultIdleTimeout
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Server.Transport == "" {
		c.Server.Transport = TransportHTTP
	}
	if c.Server.HTTPAddr == "" {
		c.Server.HTTPAddr = DefaultHTTPAddr
	}
	if c.Server.MCPPath == "" {
		c.Server.MCPPath = DefaultMCPPath
	}
	if c.Server.SSEPath == "" {
		c.Server.SSEPath = DefaultSSEPath
	}
	if c.Auth.AllowlistPaths == nil {
		c.Auth.AllowlistPaths = []string{"/health"}
	}
	if c.Database.Path == "" {
		c.Database.Path = "clinic.db"
	}
}

// IsEnforced reports whether bearer auth is required on network transports.
// Unset defaults to true: network transports are enforced unless explicitly
// switched off.
func (a AuthConfig) IsEnforced() bool {
	if a.Enforced == nil {
		return true
	}
	return *a.Enforced
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	switch c.Server.Transport {
	case TransportStdio, TransportHTTP:
	default:
		return fmt.Errorf("server.transport must be %q or %q, got %q",
			TransportStdio, TransportHTTP, c.Server.Transport)
	}

	if c.Server.Transport == TransportHTTP {
		if c.Server.HTTPAddr == "" {
			return fmt.Errorf("server.http_addr is required for the http transport")
		}
		if c.Auth.IsEnforced() && c.Auth.JWTSecret == "" {
			return fmt.Errorf("auth.jwt_secret is required when auth is enforced")
		}
	}

	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	cfg.Auth.TokenTTL = DefaultTokenTTL
	if cfg.Auth.TokenTTLRaw != "" {
		cfg.Auth.TokenTTL, err = time.ParseDuration(cfg.Auth.TokenTTLRaw)
		if err != nil {
			return fmt.Errorf("parsing token_ttl %q: %w", cfg.Auth.TokenTTLRaw, err)
		}
	}

	if cfg.Auth.LeewayRaw != "" {
		cfg.Auth.Leeway, err = time.ParseDuration(cfg.Auth.LeewayRaw)
		if err != nil {
			return fmt.Errorf("parsing leeway %q: %w", cfg.Auth.LeewayRaw, err)
		}
	}

	cfg.Sessions.IdleTimeout = DefaultIdleTimeout
	if cfg.Sessions.IdleTimeoutRaw != "" {
		cfg.Sessions.IdleTimeout, err = time.ParseDuration(cfg.Sessions.IdleTimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing idle_timeout %q: %w", cfg.Sessions.IdleTimeoutRaw, err)
		}
	}

	return nil
}
