// ABOUTME: Required-permission sets declared by protected operations
// ABOUTME: Authorization is a flat all-of membership test that fails closed

package auth

import (
	"slices"
	"strings"
)

// RequiredPermissions is the fixed permission set an operation declares when
// it is registered. The zero value requires nothing and therefore never
// authorizes anyone.
type RequiredPermissions struct {
	perms []string
}

// Require declares the permissions an operation needs. The input is copied.
func Require(perms ...string) RequiredPermissions {
	return RequiredPermissions{perms: slices.Clone(perms)}
}

// List returns a copy of the declared permissions.
func (r RequiredPermissions) List() []string {
	return slices.Clone(r.perms)
}

// Len returns the number of declared permissions.
func (r RequiredPermissions) Len() int {
	return len(r.perms)
}

// Satisfied reports whether have contains every required permission.
//
// An empty requirement or an empty grant is never satisfied. Operations that
// should be public are registered without the guard instead of with an
// empty set.
func (r RequiredPermissions) Satisfied(have []string) bool {
	if len(r.perms) == 0 || len(have) == 0 {
		return false
	}
	for _, p := range r.perms {
		if !slices.Contains(have, p) {
			return false
		}
	}
	return true
}

func (r RequiredPermissions) String() string {
	return "[" + strings.Join(r.perms, ",") + "]"
}
