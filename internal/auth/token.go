// ABOUTME: JWT token issuance and verification for clinic-gateway callers
// ABOUTME: Uses HS256 signing with configurable secret, audience, issuer, and leeway

package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Token errors. Verification failures map onto exactly one of these so callers
// can surface distinct rejection kinds.
var (
	ErrMalformedToken   = errors.New("malformed token")
	ErrBadSignature     = errors.New("bad token signature")
	ErrExpiredToken     = errors.New("token expired")
	ErrAudienceMismatch = errors.New("token audience mismatch")
	ErrIssuerMismatch   = errors.New("token issuer mismatch")
	ErrMissingClaim     = errors.New("missing required claim")
)

// Identity is the verified caller identity extracted from a token.
type Identity struct {
	Subject   string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// TokenVerifier defines the interface for token verification
type TokenVerifier interface {
	Verify(tokenString string) (*Identity, error)
}

// TokenService issues and verifies HS256 signed JWTs over a shared secret.
// It holds no persistent state; replay within the validity window is accepted
// by design (no revocation).
type TokenService struct {
	secret   []byte
	audience string
	issuer   string
	leeway   time.Duration
}

// Option configures optional claim constraints on a TokenService.
type Option func(*TokenService)

// WithAudience makes issued tokens carry the audience claim and verification
// require it to match.
func WithAudience(aud string) Option {
	return func(s *TokenService) { s.audience = aud }
}

// WithIssuer makes issued tokens carry the issuer claim and verification
// require it to match.
func WithIssuer(iss string) Option {
	return func(s *TokenService) { s.issuer = iss }
}

// WithLeeway sets the clock skew tolerance applied to expiry checks.
// Default is zero.
func WithLeeway(d time.Duration) Option {
	return func(s *TokenService) { s.leeway = d }
}

// NewTokenService creates a token service signing with the given secret.
func NewTokenService(secret []byte, opts ...Option) *TokenService {
	s := &TokenService{secret: secret}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Issue creates a new signed token for the given subject with expiry now+ttl.
func (s *TokenService) Issue(subject string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub": subject,
		"iat": now.Unix(),
		"exp": now.Add(ttl).Unix(),
	}
	if s.audience != "" {
		claims["aud"] = s.audience
	}
	if s.issuer != "" {
		claims["iss"] = s.issuer
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// Verify validates the token and extracts the caller identity.
// Expiry is checked before the signature so an expired token always fails
// with ErrExpiredToken regardless of signature validity.
func (s *TokenService) Verify(tokenString string) (*Identity, error) {
	claims, err := s.peekClaims(tokenString)
	if err != nil {
		return nil, err
	}

	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return nil, fmt.Errorf("%w: exp", ErrMissingClaim)
	}
	if !time.Now().Before(exp.Time.Add(s.leeway)) {
		return nil, ErrExpiredToken
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithLeeway(s.leeway),
	}
	if s.audience != "" {
		opts = append(opts, jwt.WithAudience(s.audience))
	}
	if s.issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.issuer))
	}

	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	}, opts...)
	if err != nil {
		return nil, mapJWTError(err)
	}
	if !token.Valid {
		return nil, ErrBadSignature
	}

	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return nil, fmt.Errorf("%w: sub", ErrMissingClaim)
	}

	identity := &Identity{Subject: sub, ExpiresAt: exp.Time}
	if iat, err := claims.GetIssuedAt(); err == nil && iat != nil {
		identity.IssuedAt = iat.Time
	}
	return identity, nil
}

// peekClaims decodes claims without signature verification, for the
// expiry-before-signature check.
func (s *TokenService) peekClaims(tokenString string) (jwt.MapClaims, error) {
	parser := jwt.NewParser()
	token, _, err := parser.ParseUnverified(tokenString, jwt.MapClaims{})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrMalformedToken
	}
	return claims, nil
}

// mapJWTError translates library errors into the package's sentinel errors.
func mapJWTError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrExpiredToken
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return ErrBadSignature
	case errors.Is(err, jwt.ErrTokenInvalidAudience):
		return ErrAudienceMismatch
	case errors.Is(err, jwt.ErrTokenInvalidIssuer):
		return ErrIssuerMismatch
	case errors.Is(err, jwt.ErrTokenMalformed):
		return fmt.Errorf("%w: %v", ErrMalformedToken, err)
	default:
		return fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}
}
