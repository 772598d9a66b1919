// ABOUTME: HTTP middleware applying the permission guard to protected routes
// ABOUTME: Responds 401 for unauthenticated callers and 403 for insufficient permissions

package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
)

// Middleware returns HTTP middleware that enforces required on every request.
// The permission set is fixed when the route is registered.
func (g *Guard) Middleware(required RequiredPermissions) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := g.binding.FromRequest(r)
			err := g.Enforce(r.Context(), token, required, func(ctx context.Context) error {
				next.ServeHTTP(w, r.WithContext(ctx))
				return nil
			}, "method", r.Method, "path", r.URL.Path, "remote_addr", r.RemoteAddr)
			if err != nil {
				writeAuthError(w, err)
			}
		})
	}
}

// Protect wraps a single handler, for registering a route together with its
// required permissions: mux.Handle("GET /orders", guard.Protect(auth.Require("order"), h)).
func (g *Guard) Protect(required RequiredPermissions, h http.HandlerFunc) http.Handler {
	return g.Middleware(required)(h)
}

// writeAuthError writes the JSON error body for an auth failure. Details of
// why verification failed stay in the server log.
func writeAuthError(w http.ResponseWriter, err error) {
	msg := "internal error"
	switch {
	case errors.Is(err, ErrMissingToken):
		msg = "no session found"
	case errors.Is(err, ErrUnauthenticated):
		msg = "invalid or expired token"
	case errors.Is(err, ErrForbidden):
		msg = "insufficient permissions"
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(StatusFor(err))
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
