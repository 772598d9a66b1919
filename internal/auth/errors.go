// ABOUTME: Error taxonomy shared by token verification and permission checks
// ABOUTME: Maps Unauthenticated/Forbidden to HTTP statuses and gRPC codes

package auth

import (
	"errors"
	"fmt"
	"net/http"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Top-level classes. Every verification error wraps ErrUnauthenticated.
var (
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrForbidden       = errors.New("insufficient permissions")
)

// Verification errors
var (
	ErrMissingToken     = fmt.Errorf("%w: no token found", ErrUnauthenticated)
	ErrMalformedToken   = fmt.Errorf("%w: malformed token", ErrUnauthenticated)
	ErrInvalidSignature = fmt.Errorf("%w: invalid token signature", ErrUnauthenticated)
	ErrExpiredToken     = fmt.Errorf("%w: token expired", ErrUnauthenticated)
	ErrTokenNotYetValid = fmt.Errorf("%w: token not valid yet", ErrUnauthenticated)
	ErrMissingClaim     = fmt.Errorf("%w: missing required claim", ErrUnauthenticated)
)

// StatusFor returns the HTTP status for an error produced by this package.
func StatusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// GRPCStatus converts auth errors to gRPC status errors. Errors that are not
// auth failures are returned unchanged.
func GRPCStatus(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrUnauthenticated):
		return status.Error(codes.Unauthenticated, err.Error())
	case errors.Is(err, ErrForbidden):
		return status.Error(codes.PermissionDenied, err.Error())
	default:
		return err
	}
}

// failureReason is the short label written to auth failure logs.
func failureReason(err error) string {
	switch {
	case errors.Is(err, ErrMissingToken):
		return "missing_token"
	case errors.Is(err, ErrMalformedToken):
		return "malformed_token"
	case errors.Is(err, ErrInvalidSignature):
		return "invalid_signature"
	case errors.Is(err, ErrExpiredToken):
		return "expired_token"
	case errors.Is(err, ErrTokenNotYetValid):
		return "token_not_yet_valid"
	case errors.Is(err, ErrMissingClaim):
		return "missing_claim"
	case errors.Is(err, ErrForbidden):
		return "insufficient_permissions"
	case errors.Is(err, ErrUnauthenticated):
		return "unauthenticated"
	default:
		return "internal"
	}
}
