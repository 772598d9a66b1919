// ABOUTME: Role store methods for user accounts
// ABOUTME: Roles are free-form names such as USER, carried into tokens as authorities

package store

import (
	"context"
	"fmt"
	"time"
)

// RoleUser is the role granted to self-registered accounts.
const RoleUser = "USER"

// AddRole adds a role to a user. This operation is idempotent - adding an
// existing role succeeds silently. Returns ErrUserNotFound for unknown users.
func (s *SQLiteStore) AddRole(ctx context.Context, userID, role string) error {
	query := `
		INSERT OR IGNORE INTO user_roles (user_id, role, created_at)
		SELECT id, ?, ? FROM users WHERE id = ?
	`

	result, err := s.db.ExecContext(ctx, query,
		role,
		time.Now().UTC().Format(time.RFC3339),
		userID,
	)
	if err != nil {
		return fmt.Errorf("adding role: %w", err)
	}

	if n, err := result.RowsAffected(); err == nil && n == 0 {
		exists, err := s.userExists(ctx, userID)
		if err != nil {
			return err
		}
		if !exists {
			return ErrUserNotFound
		}
	}

	s.logger.Debug("added role", "user_id", userID, "role", role)
	return nil
}

// RemoveRole removes a role from a user. This operation is idempotent -
// removing a non-existent role succeeds silently.
func (s *SQLiteStore) RemoveRole(ctx context.Context, userID, role string) error {
	query := `DELETE FROM user_roles WHERE user_id = ? AND role = ?`

	_, err := s.db.ExecContext(ctx, query, userID, role)
	if err != nil {
		return fmt.Errorf("removing role: %w", err)
	}

	s.logger.Debug("removed role", "user_id", userID, "role", role)
	return nil
}

// ListRoles returns all roles assigned to a user. Returns an empty slice
// if the user has no roles.
func (s *SQLiteStore) ListRoles(ctx context.Context, userID string) ([]string, error) {
	query := `
		SELECT role FROM user_roles
		WHERE user_id = ?
		ORDER BY role
	`

	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("listing roles: %w", err)
	}
	defer rows.Close()

	roles := []string{}
	for rows.Next() {
		var role string
		if err := rows.Scan(&role); err != nil {
			return nil, fmt.Errorf("scanning role: %w", err)
		}
		roles = append(roles, role)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating roles: %w", err)
	}

	return roles, nil
}

func (s *SQLiteStore) userExists(ctx context.Context, userID string) (bool, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM users WHERE id = ?", userID).Scan(&count); err != nil {
		return false, fmt.Errorf("checking user: %w", err)
	}
	return count > 0, nil
}
