// ABOUTME: Permission enforcement state machine wrapped around protected operations
// ABOUTME: verify -> populate identity -> authorize -> proceed, always clearing the identity

package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// Guard enforces RequiredPermissions for one transport binding. It has no
// mutable state and is shared by all calls.
type Guard struct {
	verifier TokenVerifier
	binding  TokenBinding
	logger   *slog.Logger
}

// NewGuard creates a guard. The optional logger enables auth failure logging
// for security monitoring.
func NewGuard(verifier TokenVerifier, binding TokenBinding, logger *slog.Logger) *Guard {
	return &Guard{verifier: verifier, binding: binding, logger: logger}
}

// Binding returns the transport binding the guard extracts tokens with.
func (g *Guard) Binding() TokenBinding {
	return g.binding
}

// Enforce runs op only if token verifies and carries every required
// permission. The identity is visible through FromContext(ctx) inside op and
// is cleared before Enforce returns, on every path including panics.
//
// Verification failures return an error wrapping ErrUnauthenticated and
// permission failures one wrapping ErrForbidden. Errors from op are returned
// unchanged. Nothing is retried. attrs are added to failure logs.
func (g *Guard) Enforce(ctx context.Context, token string, required RequiredPermissions, op func(context.Context) error, attrs ...any) error {
	ctx, scope := NewRequestScope(ctx)
	defer scope.Clear()

	if token == "" {
		g.logFailure(ctx, ErrMissingToken, required, attrs...)
		return ErrMissingToken
	}

	identity, err := g.verifier.Verify(token)
	if err != nil {
		if !errors.Is(err, ErrUnauthenticated) {
			err = fmt.Errorf("%w: %v", ErrUnauthenticated, err)
		}
		g.logFailure(ctx, err, required, attrs...)
		return err
	}
	if identity == nil {
		err := fmt.Errorf("%w: verifier returned no identity", ErrUnauthenticated)
		g.logFailure(ctx, err, required, attrs...)
		return err
	}

	if err := scope.Set(identity); err != nil {
		return fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}

	if !required.Satisfied(identity.Permissions) {
		err := fmt.Errorf("%w: %q lacks %s", ErrForbidden, identity.Username, required)
		g.logFailure(ctx, err, required, append(attrs, "subject", identity.Username)...)
		return err
	}

	return op(ctx)
}

// logFailure logs an authentication or authorization failure. The token
// itself is never logged.
func (g *Guard) logFailure(ctx context.Context, err error, required RequiredPermissions, attrs ...any) {
	if g.logger == nil {
		return
	}
	baseAttrs := []any{"reason", failureReason(err), "required", required.String(), "error", err.Error()}
	baseAttrs = append(baseAttrs, attrs...)
	g.logger.WarnContext(ctx, "auth failure", baseAttrs...)
}
