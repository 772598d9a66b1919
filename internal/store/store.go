// ABOUTME: Store interface and data types for authgate persistence
// ABOUTME: Defines the User account struct and the UserStore interface

package store

import (
	"context"
	"errors"
	"time"
)

// ErrUserNotFound is returned when a user doesn't exist.
var ErrUserNotFound = errors.New("user not found")

// ErrUsernameExists is returned when trying to create a user with an existing username.
var ErrUsernameExists = errors.New("username already exists")

// User is a login account. Roles become the authorities claim of the
// user's tokens.
type User struct {
	ID           string
	Username     string
	PasswordHash string // bcrypt hash
	Roles        []string
	CreatedAt    time.Time
}

// UserStore defines the interface for account persistence
type UserStore interface {
	// Users
	CreateUser(ctx context.Context, user *User) error
	GetUserByUsername(ctx context.Context, username string) (*User, error)
	ListUsers(ctx context.Context) ([]*User, error)
	CountUsers(ctx context.Context) (int, error)

	// Roles
	AddRole(ctx context.Context, userID, role string) error
	RemoveRole(ctx context.Context, userID, role string) error
	ListRoles(ctx context.Context, userID string) ([]string, error)

	// Close releases any resources held by the store
	Close() error
}
