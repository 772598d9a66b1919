// Package auth issues and verifies identity tokens and enforces per-operation
// permissions for authgate.
//
// # Key Material
//
// A P-256 ECDSA keypair is generated once at startup:
//
//	keys, err := auth.GenerateKeyPair() // fatal on error
//
// Keys live only in memory. Restarting the process invalidates every token
// issued before the restart. The public key can be exported (PublicKeyBase64,
// PublicKeyPEM) for verification in other trust domains.
//
// # Tokens
//
// Tokens are compact ES256 JWTs with claims sub, iat, exp, jti, optional iss,
// and one of two grant claims:
//
//   - authorities: general user token built from the user's roles
//   - permissions: narrower capability token, e.g. ["order"]
//
// Issue and verify:
//
//	issuer := auth.NewIssuer(keys, "authgate")
//	token, err := issuer.IssuePermissions("alice", []string{"order"}, time.Hour)
//
//	verifier := auth.NewVerifier(keys.PublicKey(), auth.VerifierConfig{})
//	id, err := verifier.Verify(token) // id.Username == "alice"
//
// Every verification error wraps ErrUnauthenticated.
//
// # Enforcement
//
// Protected operations are registered together with their RequiredPermissions.
// The Guard extracts the token through the configured TokenBinding (cookie or
// header), verifies it, stores the Identity in a call-scoped RequestScope,
// checks that every required permission is present and then runs the
// operation. The identity is cleared when the call returns, whatever the
// outcome:
//
//	guard := auth.NewGuard(verifier, auth.CookieBinding("SESSIONID"), logger)
//	mux.Handle("GET /orders", guard.Protect(auth.Require("order"), handler))
//
// gRPC services use UnaryInterceptor/StreamInterceptor with a MethodPolicy.
//
// An operation declared with an empty permission set rejects every caller.
// Public operations are registered without the guard.
package auth
