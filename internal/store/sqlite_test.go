// ABOUTME: Tests for SQLite store implementation
// ABOUTME: Covers store creation, user CRUD, and role loading

package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestNewSQLiteStore(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	store, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	defer store.Close()

	// Verify the database file was created
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("database file was not created")
	}
}

func TestNewSQLiteStore_CreatesDirectory(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "subdir", "nested", "test.db")

	store, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	defer store.Close()

	// Verify the database file was created in the nested directory
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("database file was not created in nested directory")
	}
}

func TestNewSQLiteStore_Memory(t *testing.T) {
	store, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	if err := store.CreateUser(ctx, testUser("u-1", "alice", RoleUser)); err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}
	users, err := store.ListUsers(ctx)
	if err != nil {
		t.Fatalf("ListUsers failed: %v", err)
	}
	if len(users) != 1 || len(users[0].Roles) != 1 {
		t.Errorf("ListUsers = %+v, want one user with one role", users)
	}
}

func TestNewSQLiteStore_Reopen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")
	ctx := context.Background()

	store, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	if err := store.CreateUser(ctx, testUser("u-1", "alice", RoleUser)); err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}
	store.Close()

	reopened, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("reopening store failed: %v", err)
	}
	defer reopened.Close()

	got, err := reopened.GetUserByUsername(ctx, "alice")
	if err != nil {
		t.Fatalf("GetUserByUsername after reopen failed: %v", err)
	}
	if got.ID != "u-1" {
		t.Errorf("ID = %q, want u-1", got.ID)
	}
}

func TestCreateAndGetUser(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()

	ctx := context.Background()
	user := testUser("u-123", "alice", RoleUser, "ADMIN")

	if err := store.CreateUser(ctx, user); err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}

	got, err := store.GetUserByUsername(ctx, "alice")
	if err != nil {
		t.Fatalf("GetUserByUsername failed: %v", err)
	}

	if got.ID != user.ID {
		t.Errorf("ID mismatch: got %q, want %q", got.ID, user.ID)
	}
	if got.PasswordHash != user.PasswordHash {
		t.Errorf("PasswordHash mismatch: got %q, want %q", got.PasswordHash, user.PasswordHash)
	}
	if !got.CreatedAt.Equal(user.CreatedAt) {
		t.Errorf("CreatedAt mismatch: got %v, want %v", got.CreatedAt, user.CreatedAt)
	}
	if len(got.Roles) != 2 || got.Roles[0] != "ADMIN" || got.Roles[1] != RoleUser {
		t.Errorf("Roles = %v, want [ADMIN USER]", got.Roles)
	}
}

func TestGetUserByUsername_NotFound(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()

	_, err := store.GetUserByUsername(context.Background(), "nobody")
	if err != ErrUserNotFound {
		t.Errorf("expected ErrUserNotFound, got %v", err)
	}
}

func TestCreateUser_Duplicate(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()

	ctx := context.Background()
	if err := store.CreateUser(ctx, testUser("u-1", "alice", RoleUser)); err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}

	err := store.CreateUser(ctx, testUser("u-2", "alice", "ADMIN"))
	if err != ErrUsernameExists {
		t.Fatalf("expected ErrUsernameExists, got %v", err)
	}

	// The failed insert must not leave roles behind
	roles, err := store.ListRoles(ctx, "u-2")
	if err != nil {
		t.Fatalf("ListRoles failed: %v", err)
	}
	if len(roles) != 0 {
		t.Errorf("roles for rejected user = %v, want none", roles)
	}
}

func TestListAndCountUsers(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()

	ctx := context.Background()
	count, err := store.CountUsers(ctx)
	if err != nil {
		t.Fatalf("CountUsers failed: %v", err)
	}
	if count != 0 {
		t.Errorf("CountUsers = %d, want 0", count)
	}

	base := time.Now().UTC().Truncate(time.Second)
	for i, name := range []string{"carol", "alice", "bob"} {
		u := testUser("u-"+name, name, RoleUser)
		u.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		if err := store.CreateUser(ctx, u); err != nil {
			t.Fatalf("CreateUser(%s) failed: %v", name, err)
		}
	}

	users, err := store.ListUsers(ctx)
	if err != nil {
		t.Fatalf("ListUsers failed: %v", err)
	}
	if len(users) != 3 {
		t.Fatalf("ListUsers len = %d, want 3", len(users))
	}
	for i, want := range []string{"carol", "alice", "bob"} {
		if users[i].Username != want {
			t.Errorf("users[%d] = %q, want %q", i, users[i].Username, want)
		}
		if len(users[i].Roles) != 1 {
			t.Errorf("users[%d].Roles = %v, want [USER]", i, users[i].Roles)
		}
	}

	count, err = store.CountUsers(ctx)
	if err != nil {
		t.Fatalf("CountUsers failed: %v", err)
	}
	if count != 3 {
		t.Errorf("CountUsers = %d, want 3", count)
	}
}

func testUser(id, username string, roles ...string) *User {
	return &User{
		ID:           id,
		Username:     username,
		PasswordHash: "$2a$10$abcdefghijklmnopqrstuu" + id,
		Roles:        roles,
		CreatedAt:    time.Now().UTC().Truncate(time.Second),
	}
}

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	store, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}

	return store
}
