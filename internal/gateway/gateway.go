// ABOUTME: Gateway orchestrator wiring store, engine, dispatcher, sessions, and transports.
// ABOUTME: Manages the HTTP server lifecycle and graceful shutdown.

package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/2389/clinic-gateway/internal/auth"
	"github.com/2389/clinic-gateway/internal/clinic"
	"github.com/2389/clinic-gateway/internal/config"
	"github.com/2389/clinic-gateway/internal/dispatch"
	"github.com/2389/clinic-gateway/internal/store"
	"github.com/2389/clinic-gateway/internal/transport"
)

// Gateway assembles the clinic server: one store, one engine, one dispatcher,
// and whichever transport the configuration selects.
type Gateway struct {
	config     *config.Config
	store      store.Store
	engine     *clinic.Engine
	dispatcher *dispatch.Dispatcher
	sessions   *transport.Manager
	httpServer *http.Server
	logger     *slog.Logger

	// stdin/stdout are swappable for tests of the stdio transport.
	stdin  io.Reader
	stdout io.Writer
}

// initStore creates the store from config, honoring the CLINIC_DB_PATH
// override.
func initStore(cfg *config.Config) (store.Store, error) {
	dbPath := cfg.Database.Path
	if envPath := os.Getenv("CLINIC_DB_PATH"); envPath != "" {
		dbPath = envPath
	}
	s, err := store.NewSQLiteStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("initializing store: %w", err)
	}
	return s, nil
}

// buildVerifier constructs the token verifier from auth config, or nil when
// no secret is configured.
func buildVerifier(cfg *config.Config) auth.TokenVerifier {
	if cfg.Auth.JWTSecret == "" {
		return nil
	}
	var opts []auth.Option
	if cfg.Auth.Audience != "" {
		opts = append(opts, auth.WithAudience(cfg.Auth.Audience))
	}
	if cfg.Auth.Issuer != "" {
		opts = append(opts, auth.WithIssuer(cfg.Auth.Issuer))
	}
	if cfg.Auth.Leeway > 0 {
		opts = append(opts, auth.WithLeeway(cfg.Auth.Leeway))
	}
	return auth.NewTokenService([]byte(cfg.Auth.JWTSecret), opts...)
}

// New creates a Gateway from the given configuration.
func New(cfg *config.Config, logger *slog.Logger) (*Gateway, error) {
	if logger == nil {
		logger = slog.Default()
	}

	s, err := initStore(cfg)
	if err != nil {
		return nil, err
	}

	engine := clinic.NewEngine(s, logger.With("component", "engine"))
	registry, err := dispatch.NewRegistry(clinic.Tools(engine))
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("building tool registry: %w", err)
	}
	dispatcher := dispatch.NewDispatcher(registry, logger.With("component", "dispatch"))
	sessions := transport.NewManager(cfg.Sessions.IdleTimeout, logger.With("component", "sessions"))

	gw := &Gateway{
		config:     cfg,
		store:      s,
		engine:     engine,
		dispatcher: dispatcher,
		sessions:   sessions,
		logger:     logger.With("component", "gateway"),
		stdin:      os.Stdin,
		stdout:     os.Stdout,
	}

	if cfg.Server.Transport == config.TransportHTTP {
		gw.httpServer = &http.Server{
			Addr:              cfg.Server.HTTPAddr,
			Handler:           gw.buildHandler(),
			ReadHeaderTimeout: 10 * time.Second,
		}
	}

	return gw, nil
}

// buildHandler assembles the HTTP mux and wraps it with the auth gate.
func (g *Gateway) buildHandler() http.Handler {
	cfg := g.config

	streamable := transport.NewStreamable(g.sessions, g.dispatcher, g.logger.With("component", "streamable"))
	sse := transport.NewSSE(g.sessions, g.dispatcher, "/messages", g.logger.With("component", "sse"))

	mux := http.NewServeMux()
	mux.HandleFunc("/health", g.handleHealth)
	mux.Handle(cfg.Server.MCPPath, streamable)
	mux.HandleFunc(cfg.Server.SSEPath, sse.HandleStream)
	mux.HandleFunc("/messages", sse.HandleMessages)

	verifier := buildVerifier(cfg)
	if verifier == nil {
		g.logger.Warn("auth disabled - no jwt_secret configured")
		return mux
	}

	gate := auth.NewGate(verifier, cfg.Auth.IsEnforced(), cfg.Auth.AllowlistPaths, g.logger.With("component", "gate"))
	if cfg.Auth.IsEnforced() {
		g.logger.Info("auth gate enabled", "allowlist", cfg.Auth.AllowlistPaths)
	} else {
		g.logger.Warn("auth gate constructed but enforcement is off")
	}
	return gate.Middleware(mux)
}

// Run starts the configured transport and blocks until the context is
// cancelled or the server fails.
func (g *Gateway) Run(ctx context.Context) error {
	g.sessions.Start(ctx)

	if g.config.Server.Transport == config.TransportStdio {
		g.logger.Info("serving on stdio")
		err := transport.NewStdio(g.dispatcher, g.logger.With("component", "stdio")).Run(ctx, g.stdin, g.stdout)
		closeErr := g.closeResources()
		if err != nil {
			return err
		}
		return closeErr
	}

	ln, err := net.Listen("tcp", g.config.Server.HTTPAddr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", g.config.Server.HTTPAddr, err)
	}

	errCh := make(chan error, 1)
	go func() {
		g.logger.Info("HTTP server listening", "addr", ln.Addr().String())
		if err := g.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
	}()

	var serverErr error
	select {
	case <-ctx.Done():
		g.logger.Info("context canceled, initiating shutdown")
	case serverErr = <-errCh:
		g.logger.Error("server error", "error", serverErr)
	}

	shutdownErr := g.gracefulShutdown()
	if serverErr != nil {
		return serverErr
	}
	return shutdownErr
}

// gracefulShutdown runs Shutdown with a fresh context, since the run context
// is already cancelled by the time we get here.
func (g *Gateway) gracefulShutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return g.Shutdown(ctx)
}

// Shutdown stops the HTTP server, closes every session, and releases the
// store.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.logger.Info("shutting down gateway")

	var errs []error
	if g.httpServer != nil {
		if err := g.httpServer.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("HTTP shutdown: %w", err))
		}
	}
	if err := g.closeResources(); err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %v", errs)
	}
	return nil
}

func (g *Gateway) closeResources() error {
	g.sessions.Stop()
	if err := g.store.Close(); err != nil {
		return fmt.Errorf("store close: %w", err)
	}
	return nil
}

// handleHealth is the allowlisted liveness endpoint.
func (g *Gateway) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
