// Package store provides persistent account storage for the gateway using SQLite.
//
// # Architecture
//
// UserStore is the interface the login service depends on. Two
// implementations exist:
//
//   - SQLiteStore: modernc.org/sqlite (pure Go, no cgo), WAL mode
//   - MockStore: in-memory, for tests
//
// # Data Models
//
//   - User: login account with a bcrypt password hash and a list of roles
//
// Roles are free-form names (RoleUser for self-registered accounts). They are
// copied into the authorities claim of the user's tokens at login.
//
// # Schema
//
//	users(id, username UNIQUE, password_hash, created_at)
//	user_roles(user_id -> users.id, role, created_at)
//
// The schema is created on open. Timestamps are stored as RFC 3339 text.
//
// # Errors
//
//   - ErrUserNotFound: no user with that username or ID
//   - ErrUsernameExists: username already taken
//
// # Usage
//
//	s, err := store.NewSQLiteStore("/var/lib/authgate/users.db")
//	if err != nil {
//	    return err
//	}
//	defer s.Close()
//
//	user, err := s.GetUserByUsername(ctx, "user")
package store
