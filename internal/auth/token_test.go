// ABOUTME: Unit tests for JWT token issuance and verification
// ABOUTME: Tests valid tokens, expiry precedence, signature, audience, and issuer checks

package auth

import (
	"errors"
	"testing"
	"time"
)

func TestTokenService_ValidToken(t *testing.T) {
	secret := []byte("test-secret-key-for-jwt-signing")
	svc := NewTokenService(secret)

	subject := "user-123"
	token, err := svc.Issue(subject, time.Hour)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	identity, err := svc.Verify(token)
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}

	if identity.Subject != subject {
		t.Errorf("Subject = %q, want %q", identity.Subject, subject)
	}
	if identity.ExpiresAt.Before(time.Now()) {
		t.Errorf("ExpiresAt = %v, want in the future", identity.ExpiresAt)
	}
}

func TestTokenService_MalformedTokens(t *testing.T) {
	svc := NewTokenService([]byte("test-secret-key-for-jwt-signing"))

	tests := []struct {
		name  string
		token string
	}{
		{name: "empty token", token: ""},
		{name: "garbage token", token: "not-a-jwt-token"},
		{name: "undecodable parts", token: "x.y.z"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Verify(tt.token)
			if !errors.Is(err, ErrMalformedToken) {
				t.Errorf("Verify() error = %v, want ErrMalformedToken", err)
			}
		})
	}
}

func TestTokenService_BadSignature(t *testing.T) {
	svc := NewTokenService([]byte("test-secret-key-for-jwt-signing"))
	other := NewTokenService([]byte("a-completely-different-secret"))

	token, err := other.Issue("user-123", time.Hour)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	_, err = svc.Verify(token)
	if !errors.Is(err, ErrBadSignature) {
		t.Errorf("Verify() error = %v, want ErrBadSignature", err)
	}
}

func TestTokenService_ExpiredToken(t *testing.T) {
	svc := NewTokenService([]byte("test-secret-key-for-jwt-signing"))

	token, err := svc.Issue("user-123", -time.Minute)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	_, err = svc.Verify(token)
	if !errors.Is(err, ErrExpiredToken) {
		t.Errorf("Verify() error = %v, want ErrExpiredToken", err)
	}
}

func TestTokenService_ZeroTTLIsImmediatelyExpired(t *testing.T) {
	svc := NewTokenService([]byte("test-secret-key-for-jwt-signing"))

	token, err := svc.Issue("user-123", 0)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	// exp == iat, so by the time verification runs the token is in the past.
	time.Sleep(1100 * time.Millisecond)
	_, err = svc.Verify(token)
	if !errors.Is(err, ErrExpiredToken) {
		t.Errorf("Verify() error = %v, want ErrExpiredToken", err)
	}
}

func TestTokenService_ExpiryCheckedBeforeSignature(t *testing.T) {
	// An expired token signed with the wrong secret must still report expiry.
	other := NewTokenService([]byte("a-completely-different-secret"))
	token, err := other.Issue("user-123", -time.Minute)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	svc := NewTokenService([]byte("test-secret-key-for-jwt-signing"))
	_, err = svc.Verify(token)
	if !errors.Is(err, ErrExpiredToken) {
		t.Errorf("Verify() error = %v, want ErrExpiredToken", err)
	}
}

func TestTokenService_Leeway(t *testing.T) {
	secret := []byte("test-secret-key-for-jwt-signing")
	strict := NewTokenService(secret)
	lenient := NewTokenService(secret, WithLeeway(time.Hour))

	token, err := strict.Issue("user-123", -time.Minute)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	if _, err := strict.Verify(token); !errors.Is(err, ErrExpiredToken) {
		t.Errorf("strict Verify() error = %v, want ErrExpiredToken", err)
	}
	if _, err := lenient.Verify(token); err != nil {
		t.Errorf("lenient Verify() error = %v, want success within leeway", err)
	}
}

func TestTokenService_AudienceMismatch(t *testing.T) {
	secret := []byte("test-secret-key-for-jwt-signing")
	issuing := NewTokenService(secret, WithAudience("other-deployment"))
	verifying := NewTokenService(secret, WithAudience("clinic"))

	token, err := issuing.Issue("user-123", time.Hour)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	_, err = verifying.Verify(token)
	if !errors.Is(err, ErrAudienceMismatch) {
		t.Errorf("Verify() error = %v, want ErrAudienceMismatch", err)
	}
}

func TestTokenService_IssuerMismatch(t *testing.T) {
	secret := []byte("test-secret-key-for-jwt-signing")
	issuing := NewTokenService(secret, WithIssuer("somewhere-else"))
	verifying := NewTokenService(secret, WithIssuer("clinic-gateway"))

	token, err := issuing.Issue("user-123", time.Hour)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	_, err = verifying.Verify(token)
	if !errors.Is(err, ErrIssuerMismatch) {
		t.Errorf("Verify() error = %v, want ErrIssuerMismatch", err)
	}
}

func TestTokenService_UnconfiguredClaimsNotValidated(t *testing.T) {
	secret := []byte("test-secret-key-for-jwt-signing")
	issuing := NewTokenService(secret, WithAudience("clinic"), WithIssuer("clinic-gateway"))
	verifying := NewTokenService(secret)

	token, err := issuing.Issue("user-123", time.Hour)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	if _, err := verifying.Verify(token); err != nil {
		t.Errorf("Verify() error = %v, want success when aud/iss unconfigured", err)
	}
}
