// ABOUTME: Username/password login that exchanges credentials for signed tokens
// ABOUTME: Handles bcrypt verification, self-registration, and startup account seeding

package login

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/2389/authgate/internal/auth"
	"github.com/2389/authgate/internal/store"
)

// PermissionOrder is the capability granted by an order-user login.
const PermissionOrder = "order"

// Username limits
const (
	MaxUsernameLength = 64
	MinPasswordLength = 8
)

var (
	// ErrInvalidCredentials is returned for an unknown user or a wrong password.
	// The two cases are deliberately indistinguishable to callers.
	ErrInvalidCredentials = errors.New("invalid username or password")

	// ErrInvalidRegistration is returned when a registration request fails validation.
	ErrInvalidRegistration = errors.New("invalid registration")
)

// dummyHash is compared against when the user doesn't exist so that unknown
// usernames take as long as wrong passwords.
const dummyHash = "$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy"

// Config holds token lifetimes for issued tokens.
type Config struct {
	TokenTTL      time.Duration
	OrderTokenTTL time.Duration
	BcryptCost    int // zero means bcrypt.DefaultCost
}

// Token is the result of a successful login.
type Token struct {
	Value       string
	Subject     string
	Permissions []string
	ExpiresIn   time.Duration
}

// Account is a user to create at startup if missing.
type Account struct {
	Username string
	Password string
	Roles    []string
}

// Service authenticates users against a UserStore and issues tokens.
type Service struct {
	users  store.UserStore
	issuer *auth.Issuer
	cfg    Config
	logger *slog.Logger
	now    func() time.Time
}

// NewService creates a login service.
func NewService(users store.UserStore, issuer *auth.Issuer, cfg Config, logger *slog.Logger) *Service {
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = bcrypt.DefaultCost
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		users:  users,
		issuer: issuer,
		cfg:    cfg,
		logger: logger.With("component", "login"),
		now:    time.Now,
	}
}

// Authenticate checks a username and password and returns the user.
func (s *Service) Authenticate(ctx context.Context, username, password string) (*store.User, error) {
	if username == "" || password == "" {
		_ = bcrypt.CompareHashAndPassword([]byte(dummyHash), []byte(password))
		return nil, ErrInvalidCredentials
	}

	user, err := s.users.GetUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			// Do a dummy bcrypt comparison to maintain constant timing
			_ = bcrypt.CompareHashAndPassword([]byte(dummyHash), []byte(password))
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("looking up user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return user, nil
}

// LoginNormal authenticates and issues a general-purpose token whose
// authorities are the user's roles.
func (s *Service) LoginNormal(ctx context.Context, username, password string) (*Token, error) {
	user, err := s.Authenticate(ctx, username, password)
	if err != nil {
		s.logFailure(username, err)
		return nil, err
	}

	value, err := s.issuer.Issue(user.Username, user.Roles, s.cfg.TokenTTL)
	if err != nil {
		return nil, fmt.Errorf("issuing token: %w", err)
	}

	s.logger.Info("login", "username", user.Username, "kind", "normal")
	return &Token{Value: value, Subject: user.Username, Permissions: user.Roles, ExpiresIn: s.cfg.TokenTTL}, nil
}

// LoginOrder authenticates and issues a capability token granting only
// the order permission.
func (s *Service) LoginOrder(ctx context.Context, username, password string) (*Token, error) {
	user, err := s.Authenticate(ctx, username, password)
	if err != nil {
		s.logFailure(username, err)
		return nil, err
	}

	perms := []string{PermissionOrder}
	value, err := s.issuer.IssuePermissions(user.Username, perms, s.cfg.OrderTokenTTL)
	if err != nil {
		return nil, fmt.Errorf("issuing token: %w", err)
	}

	s.logger.Info("login", "username", user.Username, "kind", "order")
	return &Token{Value: value, Subject: user.Username, Permissions: perms, ExpiresIn: s.cfg.OrderTokenTTL}, nil
}

// Register creates a new account. Roles default to RoleUser.
func (s *Service) Register(ctx context.Context, username, password string, roles []string) (*store.User, error) {
	if err := validateUsername(username); err != nil {
		return nil, err
	}
	if len(password) < MinPasswordLength {
		return nil, fmt.Errorf("%w: password must be at least %d characters", ErrInvalidRegistration, MinPasswordLength)
	}
	if len(roles) == 0 {
		roles = []string{store.RoleUser}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cfg.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hashing password: %w", err)
	}

	user := &store.User{
		ID:           uuid.New().String(),
		Username:     username,
		PasswordHash: string(hash),
		Roles:        roles,
		CreatedAt:    s.now().UTC(),
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		if errors.Is(err, store.ErrUsernameExists) {
			return nil, err
		}
		return nil, fmt.Errorf("creating user: %w", err)
	}
	return user, nil
}

// Seed creates each account that does not exist yet. Existing accounts are
// left unchanged, so seeding is safe on every start. Returns the number of
// accounts created.
func (s *Service) Seed(ctx context.Context, accounts []Account) (int, error) {
	created := 0
	for _, a := range accounts {
		_, err := s.Register(ctx, a.Username, a.Password, a.Roles)
		switch {
		case err == nil:
			created++
			s.logger.Info("seeded user", "username", a.Username)
		case errors.Is(err, store.ErrUsernameExists):
			s.logger.Debug("seed user already exists", "username", a.Username)
		default:
			return created, fmt.Errorf("seeding user %q: %w", a.Username, err)
		}
	}
	return created, nil
}

// logFailure logs a failed login. Unknown users and wrong passwords share a
// reason so logs don't become a username oracle either.
func (s *Service) logFailure(username string, err error) {
	if errors.Is(err, ErrInvalidCredentials) {
		s.logger.Warn("login failed", "username", username, "reason", "invalid_credentials")
		return
	}
	s.logger.Error("login error", "username", username, "error", err)
}

func validateUsername(username string) error {
	if username == "" {
		return fmt.Errorf("%w: username is required", ErrInvalidRegistration)
	}
	if len(username) > MaxUsernameLength {
		return fmt.Errorf("%w: username longer than %d characters", ErrInvalidRegistration, MaxUsernameLength)
	}
	if strings.IndexFunc(username, func(r rune) bool { return unicode.IsSpace(r) || unicode.IsControl(r) }) >= 0 {
		return fmt.Errorf("%w: username must not contain whitespace", ErrInvalidRegistration)
	}
	return nil
}
