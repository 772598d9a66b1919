// ABOUTME: Mock UserStore implementation for testing
// ABOUTME: Allows tests to run without SQLite

package store

import (
	"context"
	"slices"
	"sort"
	"sync"
)

// MockStore is an in-memory UserStore implementation for testing.
type MockStore struct {
	mu         sync.RWMutex
	users      map[string]*User // keyed by user ID
	byUsername map[string]string
}

// Ensure MockStore implements UserStore.
var _ UserStore = (*MockStore)(nil)

// NewMockStore creates a new MockStore.
func NewMockStore() *MockStore {
	return &MockStore{
		users:      make(map[string]*User),
		byUsername: make(map[string]string),
	}
}

// CreateUser stores a new user.
func (m *MockStore) CreateUser(ctx context.Context, user *User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.byUsername[user.Username]; exists {
		return ErrUsernameExists
	}

	// Make a copy to avoid external modification
	u := *user
	u.Roles = uniqueSorted(user.Roles)
	m.users[u.ID] = &u
	m.byUsername[u.Username] = u.ID
	return nil
}

// GetUserByUsername retrieves a user by username.
func (m *MockStore) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.byUsername[username]
	if !ok {
		return nil, ErrUserNotFound
	}
	return copyUser(m.users[id]), nil
}

// ListUsers returns all users ordered by creation time.
func (m *MockStore) ListUsers(ctx context.Context) ([]*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	users := make([]*User, 0, len(m.users))
	for _, u := range m.users {
		users = append(users, copyUser(u))
	}
	sort.Slice(users, func(i, j int) bool {
		if users[i].CreatedAt.Equal(users[j].CreatedAt) {
			return users[i].Username < users[j].Username
		}
		return users[i].CreatedAt.Before(users[j].CreatedAt)
	})
	return users, nil
}

// CountUsers returns the number of users.
func (m *MockStore) CountUsers(ctx context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.users), nil
}

// AddRole adds a role to a user.
func (m *MockStore) AddRole(ctx context.Context, userID, role string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[userID]
	if !ok {
		return ErrUserNotFound
	}
	u.Roles = uniqueSorted(append(u.Roles, role))
	return nil
}

// RemoveRole removes a role from a user.
func (m *MockStore) RemoveRole(ctx context.Context, userID, role string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if u, ok := m.users[userID]; ok {
		u.Roles = slices.DeleteFunc(u.Roles, func(r string) bool { return r == role })
	}
	return nil
}

// ListRoles returns the roles of a user, empty for unknown users.
func (m *MockStore) ListRoles(ctx context.Context, userID string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	u, ok := m.users[userID]
	if !ok {
		return []string{}, nil
	}
	return slices.Clone(u.Roles), nil
}

// Close is a no-op for MockStore.
func (m *MockStore) Close() error {
	return nil
}

func copyUser(u *User) *User {
	c := *u
	c.Roles = slices.Clone(u.Roles)
	if c.Roles == nil {
		c.Roles = []string{}
	}
	return &c
}

func uniqueSorted(roles []string) []string {
	out := slices.Clone(roles)
	slices.Sort(out)
	out = slices.Compact(out)
	if out == nil {
		out = []string{}
	}
	return out
}
