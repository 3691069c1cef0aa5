package jobAuth

import (
	"time"

	"github.com/MrEthical07/jobAuth/internal/audit"
	"github.com/MrEthical07/jobAuth/internal/limiters"
	"github.com/MrEthical07/jobAuth/store"
)

// User is the public view of an account. It never carries the password hash.
type User struct {
	ID              string     `json:"id"`
	Email           string     `json:"email"`
	Name            string     `json:"name"`
	EmailVerified   bool       `json:"emailVerified"`
	EmailVerifiedAt *time.Time `json:"emailVerifiedAt,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
}

func publicUser(u *store.User) User {
	return User{
		ID:              u.ID,
		Email:           u.Email,
		Name:            u.Name,
		EmailVerified:   u.EmailVerifiedAt != nil,
		EmailVerifiedAt: u.EmailVerifiedAt,
		CreatedAt:       u.CreatedAt,
	}
}

// RegisterRequest is the input of [Engine.Register].
type RegisterRequest struct {
	Email    string
	Password string
	Name     string
}

// AuthResponse is returned by Register, Login and LoginWithProvider. It holds raw
// secrets: hand RefreshToken to the cookie writer and serialize only
// [ToSafeAuthResponse].
type AuthResponse struct {
	User         User
	AccessToken  string
	RefreshToken string
	CSRFToken    string
	ExpiresAt    time.Time
	SessionID    string
}

// SafeAuthResponse is the JSON body of a successful login or registration. The CSRF
// token is included on purpose: the client echoes it in X-CSRF-Token.
type SafeAuthResponse struct {
	User        User   `json:"user"`
	AccessToken string `json:"accessToken"`
	CSRFToken   string `json:"csrfToken"`
}

// ToSafeAuthResponse projects r onto the fields that may be serialized.
func ToSafeAuthResponse(r *AuthResponse) SafeAuthResponse {
	if r == nil {
		return SafeAuthResponse{}
	}
	return SafeAuthResponse{User: r.User, AccessToken: r.AccessToken, CSRFToken: r.CSRFToken}
}

// RefreshResponse is returned by [Engine.Refresh].
type RefreshResponse struct {
	AccessToken  string
	RefreshToken string
	CSRFToken    string
	ExpiresAt    time.Time
}

// SafeRefreshResponse is the JSON body of a successful refresh.
type SafeRefreshResponse struct {
	AccessToken string `json:"accessToken"`
	CSRFToken   string `json:"csrfToken"`
}

// ToSafeRefreshResponse projects r onto the fields that may be serialized.
func ToSafeRefreshResponse(r *RefreshResponse) SafeRefreshResponse {
	if r == nil {
		return SafeRefreshResponse{}
	}
	return SafeRefreshResponse{AccessToken: r.AccessToken, CSRFToken: r.CSRFToken}
}

// Identity is the result of validating an access token.
type Identity struct {
	UserID    string
	Email     string
	ExpiresAt time.Time
}

// LockedAccount is one row of the admin locked-accounts listing.
type LockedAccount struct {
	UserID             string     `json:"userId"`
	Email              string     `json:"email,omitempty"`
	LockedUntil        *time.Time `json:"lockedUntil,omitempty"`
	ManualOnly         bool       `json:"manualOnly"`
	FailedAttempts     int        `json:"failedAttempts"`
	Reason             string     `json:"reason,omitempty"`
	ForcePasswordReset bool       `json:"forcePasswordReset"`
}

// AuditEvent is one audit record.
type AuditEvent = audit.Event

// AuditSink receives audit events.
type AuditSink = audit.Sink

// AuditQuery filters [Engine.GetAuditLogs]. Zero fields do not filter; Limit defaults
// to 100 and is capped at 1000.
type AuditQuery struct {
	UserID    string
	EventType string
	Since     time.Time
	Limit     int
}

// SuspicionReport is the result of [Engine.CheckSuspiciousActivity].
type SuspicionReport = limiters.SuspicionReport

// SecurityStatistics is the admin security overview.
type SecurityStatistics struct {
	GeneratedAt         time.Time      `json:"generatedAt"`
	LockedAccounts      int            `json:"lockedAccounts"`
	ManualLocks         int            `json:"manualLocks"`
	PendingForcedResets int            `json:"pendingForcedResets"`
	ActiveSessions      int            `json:"activeSessions"`
	FailedLogins24h     int            `json:"failedLogins24h"`
	Lockouts24h         int            `json:"lockouts24h"`
	SuspiciousFlags24h  int            `json:"suspiciousFlags24h"`
	Counters            map[string]int `json:"counters,omitempty"`
	Policy              SecurityPolicy `json:"policy"`
}

// SecurityPolicy reports the effective configuration relevant to security review.
type SecurityPolicy struct {
	SigningAlgorithm   string        `json:"signingAlgorithm"`
	AccessTTL          time.Duration `json:"accessTtl"`
	RefreshTTL         time.Duration `json:"refreshTtl"`
	VerificationTTL    time.Duration `json:"verificationTtl"`
	PasswordResetTTL   time.Duration `json:"passwordResetTtl"`
	LockoutEnabled     bool          `json:"lockoutEnabled"`
	LockoutTiers       []LockoutTier `json:"lockoutTiers"`
	SuspiciousWindow   time.Duration `json:"suspiciousWindow"`
	SuspiciousMaxIPs   int           `json:"suspiciousMaxIps"`
	RateLimitingActive bool          `json:"rateLimitingActive"`
	Argon2             Argon2Report  `json:"argon2"`
}

// Argon2Report lists the password hashing costs.
type Argon2Report struct {
	Memory      uint32 `json:"memoryKb"`
	Time        uint32 `json:"time"`
	Parallelism uint8  `json:"parallelism"`
	SaltLength  uint32 `json:"saltLength"`
	KeyLength   uint32 `json:"keyLength"`
}
