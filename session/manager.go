package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/MrEthical07/jobAuth/internal/autherr"
	"github.com/MrEthical07/jobAuth/store"
	"github.com/MrEthical07/jobAuth/token"
)

// DefaultTTL is the refresh session lifetime when Config.TTL is zero.
const DefaultTTL = 30 * 24 * time.Hour

// Signer issues access tokens for a rotated session.
type Signer interface {
	CreateAccess(userID, email string) (string, error)
}

// Config tunes a Manager.
type Config struct {
	TTL time.Duration
	Now func() time.Time
}

// Client describes the device a session is created for.
type Client struct {
	IP        string
	UserAgent string
}

// Issued is returned once by Create.
type Issued struct {
	SessionID    string
	RefreshToken string
	CSRFToken    string
	ExpiresAt    time.Time
}

// Rotation is returned once by Refresh.
type Rotation struct {
	SessionID    string
	UserID       string
	AccessToken  string
	RefreshToken string
	CSRFToken    string
	ExpiresAt    time.Time
}

// Manager creates, rotates, validates and revokes sessions.
type Manager struct {
	store  store.Store
	signer Signer
	ttl    time.Duration
	now    func() time.Time
}

// NewManager returns a Manager over st that signs access tokens with signer.
func NewManager(st store.Store, signer Signer, cfg Config) *Manager {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Manager{store: st, signer: signer, ttl: cfg.TTL, now: cfg.Now}
}

// TTL returns the refresh session lifetime.
func (m *Manager) TTL() time.Duration {
	return m.ttl
}

// Create starts a new session for userID. Existing sessions of the user are untouched.
// When repos is nil the store is used directly.
func (m *Manager) Create(ctx context.Context, repos store.Repositories, userID string, client Client) (*Issued, error) {
	if repos == nil {
		repos = m.store
	}
	refresh, err := token.Generate(token.RefreshBytes)
	if err != nil {
		return nil, fmt.Errorf("session: generate refresh token: %w", err)
	}
	csrf, err := token.Generate(token.CSRFBytes)
	if err != nil {
		return nil, fmt.Errorf("session: generate csrf token: %w", err)
	}

	now := m.now()
	s := &store.Session{
		ID:               uuid.NewString(),
		UserID:           userID,
		RefreshTokenHash: token.Hash(refresh),
		CSRFTokenHash:    token.Hash(csrf),
		ExpiresAt:        now.Add(m.ttl),
		LastUsedAt:       now,
		CreatedAt:        now,
		IP:               client.IP,
		UserAgent:        client.UserAgent,
	}
	if err := repos.Sessions().Create(ctx, s); err != nil {
		return nil, fmt.Errorf("session: create: %w", err)
	}

	return &Issued{
		SessionID:    s.ID,
		RefreshToken: refresh,
		CSRFToken:    csrf,
		ExpiresAt:    s.ExpiresAt,
	}, nil
}

// GetActive resolves a raw refresh token. Missing, revoked and expired sessions all
// return nil with a nil error.
func (m *Manager) GetActive(ctx context.Context, refreshToken string) (*store.Session, error) {
	if refreshToken == "" {
		return nil, nil
	}
	s, err := m.store.Sessions().GetByRefreshHash(ctx, token.Hash(refreshToken))
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("session: lookup: %w", err)
	}
	if !s.Active(m.now()) {
		return nil, nil
	}
	return s, nil
}

// Refresh validates the session and its CSRF token, rotates both tokens and signs a
// new access token.
func (m *Manager) Refresh(ctx context.Context, refreshToken, csrfToken string) (*Rotation, error) {
	s, err := m.GetActive(ctx, refreshToken)
	if err != nil {
		return nil, err
	}
	if s == nil {
		return nil, autherr.ErrInvalidSession
	}
	if !token.Matches(csrfToken, s.CSRFTokenHash) {
		return nil, autherr.ErrInvalidCsrf
	}

	user, err := m.store.Users().GetByID(ctx, s.UserID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, autherr.ErrInvalidSession
	}
	if err != nil {
		return nil, fmt.Errorf("session: load user: %w", err)
	}

	nextRefresh, err := token.Generate(token.RefreshBytes)
	if err != nil {
		return nil, fmt.Errorf("session: generate refresh token: %w", err)
	}
	nextCSRF, err := token.Generate(token.CSRFBytes)
	if err != nil {
		return nil, fmt.Errorf("session: generate csrf token: %w", err)
	}

	err = m.store.Sessions().Rotate(ctx, s.ID, s.RefreshTokenHash, token.Hash(nextRefresh), token.Hash(nextCSRF), m.now())
	if errors.Is(err, store.ErrConflict) {
		return nil, autherr.ErrInvalidSession
	}
	if err != nil {
		return nil, fmt.Errorf("session: rotate: %w", err)
	}

	access, err := m.signer.CreateAccess(user.ID, user.Email)
	if err != nil {
		return nil, fmt.Errorf("session: sign access token: %w", err)
	}

	return &Rotation{
		SessionID:    s.ID,
		UserID:       user.ID,
		AccessToken:  access,
		RefreshToken: nextRefresh,
		CSRFToken:    nextCSRF,
		ExpiresAt:    s.ExpiresAt,
	}, nil
}

// Logout revokes the session. Without an active session it succeeds silently; with
// one, the CSRF token must match.
func (m *Manager) Logout(ctx context.Context, refreshToken, csrfToken string) (*store.Session, error) {
	s, err := m.GetActive(ctx, refreshToken)
	if err != nil || s == nil {
		return nil, err
	}
	if !token.Matches(csrfToken, s.CSRFTokenHash) {
		return nil, autherr.ErrInvalidCsrf
	}
	if err := m.store.Sessions().Revoke(ctx, s.ID, m.now()); err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("session: revoke: %w", err)
	}
	return s, nil
}

// BootstrapCSRF rotates only the CSRF half of an active session. LastUsedAt moves,
// ExpiresAt does not. It returns "" when there is no active session.
func (m *Manager) BootstrapCSRF(ctx context.Context, refreshToken string) (string, error) {
	s, err := m.GetActive(ctx, refreshToken)
	if err != nil || s == nil {
		return "", err
	}
	csrf, err := token.Generate(token.CSRFBytes)
	if err != nil {
		return "", fmt.Errorf("session: generate csrf token: %w", err)
	}
	err = m.store.Sessions().RotateCSRF(ctx, s.ID, s.RefreshTokenHash, token.Hash(csrf), m.now())
	if errors.Is(err, store.ErrConflict) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("session: rotate csrf: %w", err)
	}
	return csrf, nil
}

// RevokeAllForUser revokes every active session of userID through repos, which is
// normally the caller's transaction.
func (m *Manager) RevokeAllForUser(ctx context.Context, repos store.Repositories, userID string) (int, error) {
	if repos == nil {
		repos = m.store
	}
	n, err := repos.Sessions().RevokeAllForUser(ctx, userID, m.now())
	if err != nil {
		return 0, fmt.Errorf("session: revoke all: %w", err)
	}
	return n, nil
}
