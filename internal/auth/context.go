// ABOUTME: Call-scoped caller identity carried through request handlers
// ABOUTME: A RequestScope slot is set once after verification and cleared when the call ends

package auth

import (
	"context"
	"errors"
	"slices"
	"sync/atomic"
)

// ErrIdentityAlreadySet is returned when Set is called twice on one scope.
var ErrIdentityAlreadySet = errors.New("identity already set for this call")

// Identity is the verified caller of a single inbound call.
type Identity struct {
	Username    string
	Permissions []string
}

// Has reports whether the identity carries the given permission.
func (i *Identity) Has(permission string) bool {
	return slices.Contains(i.Permissions, permission)
}

// RequestScope is the identity slot of one inbound call. It is created per
// call and never shared: a handler sees only the identity of its own call.
type RequestScope struct {
	identity atomic.Pointer[Identity]
	set      atomic.Bool
}

// scopeContextKey is the key type for storing the RequestScope in context.Context.
type scopeContextKey struct{}

// NewRequestScope returns a context carrying a fresh, empty identity slot.
func NewRequestScope(ctx context.Context) (context.Context, *RequestScope) {
	scope := &RequestScope{}
	return context.WithValue(ctx, scopeContextKey{}, scope), scope
}

// Set stores the caller identity. It succeeds once per scope.
func (s *RequestScope) Set(identity *Identity) error {
	if !s.set.CompareAndSwap(false, true) {
		return ErrIdentityAlreadySet
	}
	s.identity.Store(identity)
	return nil
}

// Get returns the identity if the call has been verified and not yet finished.
func (s *RequestScope) Get() (*Identity, bool) {
	id := s.identity.Load()
	return id, id != nil
}

// Clear drops the identity. Safe to call more than once.
func (s *RequestScope) Clear() {
	s.identity.Store(nil)
}

// FromContext retrieves the current caller, returning nil if the call has no
// verified identity (never verified, or already finished).
func FromContext(ctx context.Context) *Identity {
	scope, ok := ctx.Value(scopeContextKey{}).(*RequestScope)
	if !ok || scope == nil {
		return nil
	}
	id, _ := scope.Get()
	return id
}

// MustFromContext retrieves the current caller, panicking if not present.
func MustFromContext(ctx context.Context) *Identity {
	id := FromContext(ctx)
	if id == nil {
		panic("auth: identity not found in context")
	}
	return id
}
