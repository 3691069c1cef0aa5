// Package store defines the credential store consumed by the authentication engine:
// users, refresh sessions, single-use capability tokens, per-user lockout state and
// audit entries.
//
// Implementations must make every method of a Repositories value obtained inside
// WithTx part of one atomic unit. Compare-and-swap style updates report a lost race
// with ErrConflict instead of silently writing.
package store

import (
	"context"
	"errors"
	"strings"
	"time"
)

var (
	// ErrNotFound is returned when a lookup matches no row.
	ErrNotFound = errors.New("store: not found")
	// ErrDuplicate is returned when a unique constraint (email, token hash) is violated.
	ErrDuplicate = errors.New("store: duplicate")
	// ErrConflict is returned when a conditional update matched no row.
	ErrConflict = errors.New("store: conditional update lost")
)

// TokenKind separates the two single-use token families.
type TokenKind string

const (
	TokenEmailVerification TokenKind = "email_verification"
	TokenPasswordReset     TokenKind = "password_reset"
)

// Valid reports whether k is a known kind.
func (k TokenKind) Valid() bool {
	return k == TokenEmailVerification || k == TokenPasswordReset
}

// User is the identity anchor. Email is stored normalized.
type User struct {
	ID              string
	Email           string
	PasswordHash    string
	Name            string
	EmailVerifiedAt *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Session is one logged-in client. Only hashes of the refresh and CSRF tokens are kept.
type Session struct {
	ID               string
	UserID           string
	RefreshTokenHash string
	CSRFTokenHash    string
	ExpiresAt        time.Time
	RevokedAt        *time.Time
	LastUsedAt       time.Time
	CreatedAt        time.Time
	IP               string
	UserAgent        string
}

// Active reports whether the session is neither revoked nor expired at now.
func (s *Session) Active(now time.Time) bool {
	return s != nil && s.RevokedAt == nil && s.ExpiresAt.After(now)
}

// OneTimeToken is an email-verification or password-reset capability.
type OneTimeToken struct {
	ID         string
	UserID     string
	Kind       TokenKind
	TokenHash  string
	ExpiresAt  time.Time
	ConsumedAt *time.Time
	CreatedAt  time.Time
}

// Usable reports whether the token is unconsumed and unexpired at now.
func (t *OneTimeToken) Usable(now time.Time) bool {
	return t != nil && t.ConsumedAt == nil && t.ExpiresAt.After(now)
}

// UserSecurity is the per-user lockout record. LockoutUntil nil with IsLocked true is a
// manual-only lock.
type UserSecurity struct {
	UserID                   string
	IsLocked                 bool
	LockoutCount             int
	LockoutUntil             *time.Time
	LastLockoutReason        string
	LastFailedAt             *time.Time
	ForcePasswordReset       bool
	ForcePasswordResetReason string
	UnlockedBy               string
	UnlockReason             string
	UpdatedAt                time.Time
}

// AuditEntry is a persisted audit event.
type AuditEntry struct {
	ID        string
	EventType string
	UserID    string
	ActorID   string
	SessionID string
	IP        string
	Success   bool
	Error     string
	Metadata  map[string]string
	CreatedAt time.Time
}

// AuditFilter narrows ListAudit results. Zero fields do not filter.
type AuditFilter struct {
	UserID    string
	EventType string
	Since     time.Time
	Limit     int
}

// SecurityCounts aggregates lockout state for reporting.
type SecurityCounts struct {
	LockedAccounts      int
	ManualLocks         int
	PendingForcedResets int
}

// UserRepository persists users.
type UserRepository interface {
	Create(ctx context.Context, u *User) error
	GetByID(ctx context.Context, id string) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	UpdatePasswordHash(ctx context.Context, id, hash string, at time.Time) error
	MarkEmailVerified(ctx context.Context, id string, at time.Time) error
}

// SessionRepository persists refresh sessions.
type SessionRepository interface {
	Create(ctx context.Context, s *Session) error
	GetByRefreshHash(ctx context.Context, hash string) (*Session, error)
	// Rotate replaces both hashes only if the stored refresh hash still equals expected.
	Rotate(ctx context.Context, id, expected, newRefreshHash, newCSRFHash string, at time.Time) error
	// RotateCSRF replaces the CSRF hash only if the stored refresh hash still equals expected.
	RotateCSRF(ctx context.Context, id, expected, newCSRFHash string, at time.Time) error
	Revoke(ctx context.Context, id string, at time.Time) error
	RevokeAllForUser(ctx context.Context, userID string, at time.Time) (int, error)
	CountActive(ctx context.Context, now time.Time) (int, error)
}

// TokenRepository persists one kind of single-use token.
type TokenRepository interface {
	// InvalidateForUser marks every usable token of the user consumed at at.
	InvalidateForUser(ctx context.Context, userID string, at time.Time) (int, error)
	Create(ctx context.Context, t *OneTimeToken) error
	GetByHash(ctx context.Context, hash string) (*OneTimeToken, error)
	// Consume marks the token consumed only if it is still unconsumed.
	Consume(ctx context.Context, id string, at time.Time) error
}

// SecurityRepository persists lockout state.
type SecurityRepository interface {
	// Get returns ErrNotFound when no record exists yet.
	Get(ctx context.Context, userID string) (*UserSecurity, error)
	// GetForUpdate is Get with a row lock when running inside a transaction.
	GetForUpdate(ctx context.Context, userID string) (*UserSecurity, error)
	// Ensure inserts a zero record for userID unless one exists. It never overwrites.
	Ensure(ctx context.Context, userID string, at time.Time) error
	Upsert(ctx context.Context, s *UserSecurity) error
	ListLocked(ctx context.Context) ([]UserSecurity, error)
	Counts(ctx context.Context) (SecurityCounts, error)
}

// AuditRepository persists audit entries.
type AuditRepository interface {
	Append(ctx context.Context, e *AuditEntry) error
	List(ctx context.Context, f AuditFilter) ([]AuditEntry, error)
	CountSince(ctx context.Context, eventType string, since time.Time) (int, error)
}

// Repositories groups the repositories of one connection or transaction.
type Repositories interface {
	Users() UserRepository
	Sessions() SessionRepository
	Tokens(kind TokenKind) TokenRepository
	Security() SecurityRepository
	AuditLogs() AuditRepository
}

// Store is the injected credential store.
type Store interface {
	Repositories
	// WithTx runs fn inside one transaction. A non-nil error from fn rolls back every
	// write made through the Repositories passed to fn.
	WithTx(ctx context.Context, fn func(ctx context.Context, tx Repositories) error) error
	Close() error
}

// NormalizeEmail lower-cases and trims an address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
