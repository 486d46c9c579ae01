// Package auth - service.go composes password verification, token generation, the session
// store and permission resolution into Login, Validate and Logout. It performs no HTTP
// work; handlers own the cookie transport.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/YASSERRMD/nexusERP/internal/db/models"
	"github.com/YASSERRMD/nexusERP/internal/telemetry"
)

const (
	// DefaultSessionTTL is how long a login stays valid
	DefaultSessionTTL = 24 * time.Hour

	// DefaultLookupTimeout bounds the session store read on every authenticated request
	DefaultLookupTimeout = 5 * time.Second
)

var (
	// ErrInvalidCredentials is returned for an unknown email, an inactive user or a
	// wrong password. Callers must not learn which.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrOrganizationRequired is returned when the credentials match accounts in more
	// than one organization and no organization slug was supplied.
	ErrOrganizationRequired = errors.New("organization required")
)

// SessionStore persists sessions keyed by token.
type SessionStore interface {
	Create(ctx context.Context, session *models.Session) error
	// FindByToken returns the session with its user, roles and permissions, or nil when absent.
	FindByToken(ctx context.Context, token string) (*models.SessionWithUser, error)
	// Delete removes the session; deleting an unknown token is not an error.
	Delete(ctx context.Context, token string) error
}

// UserStore looks up login candidates.
type UserStore interface {
	// FindActiveByEmail returns every active user with the email, limited to the
	// organization with orgSlug when it is non-empty.
	FindActiveByEmail(ctx context.Context, email, orgSlug string) ([]*models.UserWithRoles, error)
	UpdateLastLogin(ctx context.Context, userID string, at time.Time) error
}

// ServiceConfig holds tunables for Service. Zero values select defaults.
type ServiceConfig struct {
	SessionTTL         time.Duration
	LookupTimeout      time.Duration
	PasswordIterations int
}

// LoginRequest carries the credentials and request metadata for one login attempt
type LoginRequest struct {
	Email     string
	Password  string
	OrgSlug   string
	IPAddress string
	UserAgent string
}

// LoginResult is returned on a successful login
type LoginResult struct {
	Token     string
	ExpiresAt time.Time
	User      *UserSession
}

// Service authenticates credentials and validates session tokens
type Service struct {
	sessions      SessionStore
	users         UserStore
	hasher        *PasswordHasher
	ttl           time.Duration
	lookupTimeout time.Duration
	dummyHash     string
	now           func() time.Time
}

// NewService creates a new auth service
func NewService(sessions SessionStore, users UserStore, cfg ServiceConfig) *Service {
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = DefaultSessionTTL
	}
	if cfg.LookupTimeout <= 0 {
		cfg.LookupTimeout = DefaultLookupTimeout
	}

	hasher := NewPasswordHasher(cfg.PasswordIterations)
	// Verified against when no user matches so both paths cost one derivation.
	dummy, err := hasher.Hash(uuid.New().String())
	if err != nil {
		slog.Warn("failed to prepare dummy password hash", "error", err)
	}

	return &Service{
		sessions:      sessions,
		users:         users,
		hasher:        hasher,
		ttl:           cfg.SessionTTL,
		lookupTimeout: cfg.LookupTimeout,
		dummyHash:     dummy,
		now:           time.Now,
	}
}

// SessionTTL returns the configured session lifetime
func (s *Service) SessionTTL() time.Duration {
	return s.ttl
}

// Hasher returns the password hasher used for verification
func (s *Service) Hasher() *PasswordHasher {
	return s.hasher
}

// Validate resolves a token to its principal. A missing, unknown, expired or
// cross-tenant token yields (nil, nil); only store failures return an error.
// Expired sessions are left in place for the reaper.
func (s *Service) Validate(ctx context.Context, token string) (*UserSession, error) {
	if token == "" {
		telemetry.AuthSessionValidationsTotal.WithLabelValues("missing").Inc()
		return nil, nil
	}

	lookupCtx, cancel := context.WithTimeout(ctx, s.lookupTimeout)
	defer cancel()

	rec, err := s.sessions.FindByToken(lookupCtx, token)
	if err != nil {
		telemetry.AuthSessionValidationsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("failed to look up session: %w", err)
	}
	if rec == nil {
		telemetry.AuthSessionValidationsTotal.WithLabelValues("unknown").Inc()
		return nil, nil
	}

	if rec.IsExpired(s.now()) {
		telemetry.AuthSessionValidationsTotal.WithLabelValues("expired").Inc()
		return nil, nil
	}

	if rec.OrgID != rec.User.OrgID {
		slog.Warn("session organization does not match user organization",
			"session_id", rec.ID, "user_id", rec.UserID)
		telemetry.AuthSessionValidationsTotal.WithLabelValues("invalid").Inc()
		return nil, nil
	}

	if !rec.User.IsActive {
		telemetry.AuthSessionValidationsTotal.WithLabelValues("invalid").Inc()
		return nil, nil
	}

	telemetry.AuthSessionValidationsTotal.WithLabelValues("valid").Inc()
	return NewUserSession(&rec.User, rec.Roles), nil
}

// Login verifies credentials and creates a session.
func (s *Service) Login(ctx context.Context, req LoginRequest) (*LoginResult, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	orgSlug := strings.TrimSpace(req.OrgSlug)
	if email == "" || req.Password == "" {
		telemetry.AuthLoginAttemptsTotal.WithLabelValues("invalid").Inc()
		return nil, ErrInvalidCredentials
	}

	candidates, err := s.users.FindActiveByEmail(ctx, email, orgSlug)
	if err != nil {
		telemetry.AuthLoginAttemptsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}

	if len(candidates) == 0 {
		s.hasher.Verify(req.Password, s.dummyHash)
		telemetry.AuthLoginAttemptsTotal.WithLabelValues("invalid").Inc()
		return nil, ErrInvalidCredentials
	}

	var matched []*models.UserWithRoles
	for _, u := range candidates {
		if s.hasher.Verify(req.Password, u.PasswordHash) {
			matched = append(matched, u)
		}
	}

	if len(matched) == 0 {
		telemetry.AuthLoginAttemptsTotal.WithLabelValues("invalid").Inc()
		return nil, ErrInvalidCredentials
	}
	if len(candidates) > 1 && orgSlug == "" {
		telemetry.AuthLoginAttemptsTotal.WithLabelValues("ambiguous").Inc()
		return nil, ErrOrganizationRequired
	}

	user := matched[0]

	token, err := GenerateSessionToken()
	if err != nil {
		telemetry.AuthLoginAttemptsTotal.WithLabelValues("error").Inc()
		return nil, err
	}

	now := s.now()
	session := &models.Session{
		ID:        uuid.New().String(),
		Token:     token,
		UserID:    user.ID,
		OrgID:     user.OrgID,
		ExpiresAt: now.Add(s.ttl),
		IPAddress: optionalString(req.IPAddress),
		UserAgent: optionalString(req.UserAgent),
		CreatedAt: now,
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		telemetry.AuthLoginAttemptsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	if err := s.users.UpdateLastLogin(ctx, user.ID, now); err != nil {
		slog.Warn("failed to record last login", "user_id", user.ID, "error", err)
	}

	telemetry.AuthLoginAttemptsTotal.WithLabelValues("success").Inc()
	return &LoginResult{
		Token:     token,
		ExpiresAt: session.ExpiresAt,
		User:      NewUserSession(&user.User, user.Roles),
	}, nil
}

// Logout deletes the session for token. An empty or unknown token is not an error.
func (s *Service) Logout(ctx context.Context, token string) error {
	telemetry.AuthLogoutsTotal.Inc()
	if token == "" {
		return nil
	}
	if err := s.sessions.Delete(ctx, token); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
