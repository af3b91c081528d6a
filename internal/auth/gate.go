// ABOUTME: Per-request authorization gate for network transports
// ABOUTME: Combines enforcement toggle, path allowlist, and bearer token verification

package auth

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
)

// ErrMissingCredential is returned when an enforced request carries no usable
// bearer header.
var ErrMissingCredential = errors.New("missing bearer credential")

// Decision is the outcome of a gate check. Identity is non-nil only when a
// token was verified; an allowlisted or unenforced request passes without one.
type Decision struct {
	Allowed  bool
	Identity *Identity
	Err      error
}

// Gate decides allow/deny per request from the path and Authorization header.
// The gate produces decisions only; the transport turns a denial into a
// protocol-appropriate rejection before the dispatcher is reached.
type Gate struct {
	verifier  TokenVerifier
	enforced  bool
	allowlist map[string]struct{}
	logger    *slog.Logger
}

// NewGate creates a gate. When enforced is false every request passes.
// Allowlisted paths pass without a header regardless of enforcement.
func NewGate(verifier TokenVerifier, enforced bool, allowlist []string, logger *slog.Logger) *Gate {
	if logger == nil {
		logger = slog.Default()
	}
	paths := make(map[string]struct{}, len(allowlist))
	for _, p := range allowlist {
		paths[p] = struct{}{}
	}
	return &Gate{
		verifier:  verifier,
		enforced:  enforced,
		allowlist: paths,
		logger:    logger.With("component", "authgate"),
	}
}

// Check runs the per-request decision: Unchecked -> {Allowed, Denied}.
func (g *Gate) Check(path, authHeader string) Decision {
	if !g.enforced {
		// Unenforced deployments still verify a presented token best-effort
		// so handlers see the caller identity when one is available. A bad
		// token never blocks the request here.
		d := Decision{Allowed: true}
		if token, errMsg := extractBearerToken(authHeader); errMsg == "" && g.verifier != nil {
			if identity, err := g.verifier.Verify(token); err == nil {
				d.Identity = identity
			}
		}
		return d
	}
	if _, ok := g.allowlist[path]; ok {
		return Decision{Allowed: true}
	}

	token, errMsg := extractBearerToken(authHeader)
	if errMsg != "" {
		return Decision{Err: ErrMissingCredential}
	}

	identity, err := g.verifier.Verify(token)
	if err != nil {
		return Decision{Err: err}
	}
	return Decision{Allowed: true, Identity: identity}
}

// Middleware adapts the gate to net/http. Denied requests are rejected with a
// 401 JSON body before reaching the wrapped handler; allowed requests carry
// the verified Identity in the request context when one was produced.
func (g *Gate) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		decision := g.Check(r.URL.Path, r.Header.Get("Authorization"))
		if !decision.Allowed {
			g.logger.Debug("request denied", "path", r.URL.Path, "reason", decision.Err)
			writeAuthError(w, decision.Err)
			return
		}
		if decision.Identity != nil {
			r = r.WithContext(WithIdentity(r.Context(), decision.Identity))
		}
		next.ServeHTTP(w, r)
	})
}

// extractBearerToken extracts a bearer token from the Authorization header.
// Returns the token and an error message (empty if successful).
func extractBearerToken(authHeader string) (string, string) {
	if authHeader == "" {
		return "", "missing authorization header"
	}
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", "invalid authorization header format"
	}
	token := strings.TrimPrefix(authHeader, "Bearer ")
	if token == "" {
		return "", "empty token"
	}
	return token, ""
}

// writeAuthError maps a denial to its HTTP rejection. All auth failures are
// 401; the body names the rejection kind without leaking verification detail.
func writeAuthError(w http.ResponseWriter, err error) {
	msg := "unauthorized"
	switch {
	case errors.Is(err, ErrMissingCredential):
		msg = "missing bearer token"
	case errors.Is(err, ErrExpiredToken):
		msg = "token expired"
	case errors.Is(err, ErrBadSignature),
		errors.Is(err, ErrMalformedToken),
		errors.Is(err, ErrAudienceMismatch),
		errors.Is(err, ErrIssuerMismatch):
		msg = "invalid token"
	}
	w.Header().Set("Content-Type", "application/json")
	http.Error(w, `{"error":"`+msg+`"}`, http.StatusUnauthorized)
}
