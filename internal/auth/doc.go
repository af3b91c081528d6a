// Package auth provides authentication and authorization for clinic-gateway.
//
// # Token Service
//
// Bearer tokens are HS256 signed JWTs over a shared secret:
//
//	svc := auth.NewTokenService(secret, auth.WithAudience("clinic"))
//	token, err := svc.Issue("demo-user", 24*time.Hour)
//	identity, err := svc.Verify(token)
//
// Verification is pure and side-effect-free. Failures map onto sentinel
// errors (ErrMalformedToken, ErrBadSignature, ErrExpiredToken,
// ErrAudienceMismatch, ErrIssuerMismatch) so transports can reject with a
// precise kind. Expiry is checked before the signature: an expired token is
// reported as expired even when its signature is also wrong. There is no
// token storage; replay within the validity window is a stated non-goal.
//
// # Gate
//
// The Gate makes the per-request allow/deny decision for network transports:
//
//   - enforcement off -> allowed
//   - path on the allowlist -> allowed, no header needed
//   - missing/malformed bearer header -> denied (ErrMissingCredential)
//   - otherwise the token is verified and the decision carries the Identity
//
// Gate.Middleware turns denials into 401 responses before the dispatcher is
// reached. The stdio transport constructs no gate at all.
//
// # Identity Propagation
//
// Handlers receive the verified identity explicitly via the request context
// (WithIdentity / IdentityFromContext); there is no ambient current-user
// state anywhere in the process.
package auth
