// ABOUTME: ES256 JWT issuance and verification for gateway identities
// ABOUTME: Tokens carry a subject plus an authorities or permissions claim

package auth

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Claim names for the two token flavors.
const (
	ClaimAuthorities = "authorities"
	ClaimPermissions = "permissions"
)

// ErrInvalidIssueRequest is returned when Issue is called with an empty
// subject or a non-positive lifetime.
var ErrInvalidIssueRequest = errors.New("invalid issue request")

// TokenVerifier defines the interface for token verification
type TokenVerifier interface {
	Verify(tokenString string) (*Identity, error)
}

// Issuer signs tokens with the process keypair.
type Issuer struct {
	keys   *KeyPair
	issuer string
	now    func() time.Time
}

// NewIssuer creates an issuer. The issuer name is written to the "iss"
// claim when non-empty.
func NewIssuer(keys *KeyPair, issuer string) *Issuer {
	return &Issuer{keys: keys, issuer: issuer, now: time.Now}
}

// Issue creates a general-purpose user token carrying role authorities.
func (i *Issuer) Issue(subject string, authorities []string, ttl time.Duration) (string, error) {
	return i.sign(subject, ClaimAuthorities, authorities, ttl)
}

// IssuePermissions creates a capability token carrying an explicit
// permission list, e.g. ["order"].
func (i *Issuer) IssuePermissions(subject string, permissions []string, ttl time.Duration) (string, error) {
	return i.sign(subject, ClaimPermissions, permissions, ttl)
}

func (i *Issuer) sign(subject, claim string, values []string, ttl time.Duration) (string, error) {
	if subject == "" {
		return "", fmt.Errorf("%w: empty subject", ErrInvalidIssueRequest)
	}
	if ttl <= 0 {
		return "", fmt.Errorf("%w: ttl must be positive, got %s", ErrInvalidIssueRequest, ttl)
	}

	// Always encode the array, even when empty, so verification can tell an
	// empty grant from a missing claim.
	list := make([]string, len(values))
	copy(list, values)

	now := i.now()
	claims := jwt.MapClaims{
		"sub": subject,
		"iat": now.Unix(),
		"exp": now.Add(ttl).Unix(),
		"jti": uuid.New().String(),
		claim: list,
	}
	if i.issuer != "" {
		claims["iss"] = i.issuer
	}

	return jwt.NewWithClaims(jwt.SigningMethodES256, claims).SignedString(i.keys.private)
}

// VerifierConfig holds optional verification settings.
type VerifierConfig struct {
	Issuer string        // required "iss" value, empty to skip the check
	Leeway time.Duration // clock skew tolerance on exp/iat
}

// Verifier implements TokenVerifier for ES256 tokens signed by a KeyPair.
// It holds no mutable state and is safe for concurrent use.
type Verifier struct {
	public *ecdsa.PublicKey
	cfg    VerifierConfig
	now    func() time.Time
}

// NewVerifier creates a verifier for the given public key.
func NewVerifier(public *ecdsa.PublicKey, cfg VerifierConfig) *Verifier {
	return &Verifier{public: public, cfg: cfg, now: time.Now}
}

// Verify validates the signature and lifetime of the token and decodes the
// caller identity. Every error wraps ErrUnauthenticated.
func (v *Verifier) Verify(tokenString string) (*Identity, error) {
	if tokenString == "" {
		return nil, ErrMissingToken
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodES256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(v.now),
	}
	if v.cfg.Leeway > 0 {
		opts = append(opts, jwt.WithLeeway(v.cfg.Leeway))
	}
	if v.cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.cfg.Issuer))
	}

	token, err := jwt.NewParser(opts...).Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodECDSA); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return v.public, nil
	})
	if err != nil {
		return nil, classifyParseError(err)
	}
	if !token.Valid {
		return nil, ErrInvalidSignature
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrMalformedToken
	}
	return identityFromClaims(claims)
}

// classifyParseError maps golang-jwt errors onto the package taxonomy.
// Signature checks run before claim validation, so a forged expired token
// reports the signature failure.
func classifyParseError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenMalformed):
		return fmt.Errorf("%w: %v", ErrMalformedToken, err)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrExpiredToken
	case errors.Is(err, jwt.ErrTokenUsedBeforeIssued), errors.Is(err, jwt.ErrTokenNotValidYet):
		return ErrTokenNotYetValid
	case errors.Is(err, jwt.ErrTokenRequiredClaimMissing):
		return fmt.Errorf("%w: %v", ErrMissingClaim, err)
	default:
		return fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}
}

func identityFromClaims(claims jwt.MapClaims) (*Identity, error) {
	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return nil, fmt.Errorf("%w: sub", ErrMissingClaim)
	}

	perms, found, err := stringListClaim(claims, ClaimPermissions)
	if err != nil {
		return nil, err
	}
	if !found {
		perms, found, err = stringListClaim(claims, ClaimAuthorities)
		if err != nil {
			return nil, err
		}
	}
	if !found {
		return nil, fmt.Errorf("%w: %s or %s", ErrMissingClaim, ClaimPermissions, ClaimAuthorities)
	}

	return &Identity{Username: sub, Permissions: perms}, nil
}

// stringListClaim reads a JSON array of strings. A JSON null counts as absent.
func stringListClaim(claims jwt.MapClaims, name string) ([]string, bool, error) {
	raw, ok := claims[name]
	if !ok || raw == nil {
		return nil, false, nil
	}
	items, ok := raw.([]interface{})
	if !ok {
		return nil, false, fmt.Errorf("%w: %s is not an array", ErrMalformedToken, name)
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		s, ok := item.(string)
		if !ok {
			return nil, false, fmt.Errorf("%w: %s contains a non-string value", ErrMalformedToken, name)
		}
		out = append(out, s)
	}
	return out, true, nil
}
