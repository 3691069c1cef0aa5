package jobAuth

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/MrEthical07/jobAuth/internal/limiters"
	"github.com/MrEthical07/jobAuth/jwt"
)

// Config holds every engine policy. Start from [DefaultConfig] and override fields.
//
// Config instances are intended to be configured during initialization and then treated as immutable.
type Config struct {
	JWT               JWTConfig
	Session           SessionConfig
	Password          PasswordConfig
	EmailVerification EmailVerificationConfig
	PasswordReset     PasswordResetConfig
	Lockout           LockoutConfig
	Suspicious        SuspiciousConfig
	RateLimit         RateLimitConfig
	Email             EmailConfig
	Audit             AuditConfig
	Metrics           MetricsConfig
}

/*
====================================
JWT CONFIG
====================================
*/

// JWTConfig configures access tokens.
type JWTConfig struct {
	AccessTTL     time.Duration
	SigningMethod string // "hs256" (default) or "ed25519"
	PrivateKey    []byte // HMAC secret for hs256
	PublicKey     []byte
	Issuer        string
	Audience      string
	Leeway        time.Duration
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig configures refresh sessions.
type SessionConfig struct {
	RefreshTTL time.Duration
}

/*
====================================
PASSWORD CONFIG
====================================
*/

// PasswordConfig holds Argon2id costs and the length policy.
type PasswordConfig struct {
	Memory         uint32 // in KB
	Time           uint32
	Parallelism    uint8
	SaltLength     uint32
	KeyLength      uint32
	MinLength      int
	MaxLength      int
	UpgradeOnLogin bool
}

/*
====================================
SINGLE-USE TOKEN CONFIG
====================================
*/

// EmailVerificationConfig configures verification tokens.
type EmailVerificationConfig struct {
	TTL time.Duration
}

// PasswordResetConfig configures reset tokens.
type PasswordResetConfig struct {
	TTL time.Duration
}

/*
====================================
LOCKOUT CONFIG
====================================
*/

// LockoutTier locks an account for Duration once its cumulative failure count
// reaches Threshold. Duration zero means the lock only ends by admin unlock.
type LockoutTier = limiters.Tier

// LockoutConfig configures progressive lockout.
type LockoutConfig struct {
	Enabled bool
	Tiers   []LockoutTier
	// SuspiciousWeight is how many failures one attempt counts for while the account
	// is flagged for multi-IP activity.
	SuspiciousWeight int
}

// SuspiciousConfig configures multi-IP detection.
type SuspiciousConfig struct {
	Enabled        bool
	Window         time.Duration
	MaxDistinctIPs int
}

/*
====================================
RATE LIMIT CONFIG
====================================
*/

// RateLimitRule is a fixed-window budget; Max zero disables it.
type RateLimitRule struct {
	Max    int
	Window time.Duration
}

// RateLimitConfig configures the Redis-backed throttles. They are skipped when no
// Redis client is configured.
type RateLimitConfig struct {
	LoginPerIP         RateLimitRule
	LoginPerEmail      RateLimitRule
	ForgotPassword     RateLimitRule
	ResendVerification RateLimitRule
}

/*
====================================
EMAIL CONFIG
====================================
*/

// EmailConfig configures outbound account email.
type EmailConfig struct {
	AppName string
	// BaseURL is the frontend origin links point to.
	BaseURL    string
	VerifyPath string
	ResetPath  string
	// Async sends after the response path returns, detached from request cancellation.
	Async       bool
	SendTimeout time.Duration
}

/*
====================================
AUDIT / METRICS CONFIG
====================================
*/

// AuditConfig configures audit delivery.
type AuditConfig struct {
	Enabled    bool
	Async      bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig toggles in-process counters.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns the production defaults. JWT.PrivateKey is left empty and
// must be supplied.
func DefaultConfig() Config {
	return Config{
		JWT: JWTConfig{
			AccessTTL:     time.Hour,
			SigningMethod: string(jwt.MethodHS256),
		},
		Session: SessionConfig{
			RefreshTTL: 30 * 24 * time.Hour,
		},
		Password: PasswordConfig{
			Memory:         65536,
			Time:           3,
			Parallelism:    2,
			SaltLength:     16,
			KeyLength:      32,
			MinLength:      8,
			MaxLength:      256,
			UpgradeOnLogin: true,
		},
		EmailVerification: EmailVerificationConfig{
			TTL: 24 * time.Hour,
		},
		PasswordReset: PasswordResetConfig{
			TTL: time.Hour,
		},
		Lockout: LockoutConfig{
			Enabled:          true,
			Tiers:            limiters.DefaultTiers(),
			SuspiciousWeight: 2,
		},
		Suspicious: SuspiciousConfig{
			Enabled:        true,
			Window:         time.Hour,
			MaxDistinctIPs: 3,
		},
		RateLimit: RateLimitConfig{
			LoginPerIP:         RateLimitRule{Max: 30, Window: 15 * time.Minute},
			LoginPerEmail:      RateLimitRule{Max: 10, Window: 15 * time.Minute},
			ForgotPassword:     RateLimitRule{Max: 3, Window: time.Hour},
			ResendVerification: RateLimitRule{Max: 3, Window: time.Hour},
		},
		Email: EmailConfig{
			AppName:     "Job Tracker",
			BaseURL:     "http://localhost:3000",
			VerifyPath:  "/verify-email",
			ResetPath:   "/reset-password",
			Async:       true,
			SendTimeout: 15 * time.Second,
		},
		Audit: AuditConfig{
			Enabled:    true,
			Async:      true,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 true,
			EnableLatencyHistograms: true,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.PrivateKey = cloneBytes(cfg.JWT.PrivateKey)
	out.JWT.PublicKey = cloneBytes(cfg.JWT.PublicKey)
	out.Lockout.Tiers = append([]LockoutTier(nil), cfg.Lockout.Tiers...)
	return out
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

// Validate checks internal consistency. Missing signing keys are reported by Build as
// ErrMissingSecret rather than here.
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	switch jwt.SigningMethod(c.JWT.SigningMethod) {
	case jwt.MethodHS256, jwt.MethodEd25519:
	default:
		add("jwt signing method %q is not supported", c.JWT.SigningMethod)
	}
	if c.JWT.AccessTTL <= 0 {
		add("jwt access TTL must be positive")
	}
	if c.JWT.Leeway < 0 || c.JWT.Leeway > time.Minute {
		add("jwt leeway must be within [0, 1m]")
	}
	if c.Session.RefreshTTL <= c.JWT.AccessTTL {
		add("refresh TTL must exceed access TTL")
	}
	if c.EmailVerification.TTL <= 0 {
		add("email verification TTL must be positive")
	}
	if c.PasswordReset.TTL <= 0 {
		add("password reset TTL must be positive")
	}
	if c.PasswordReset.TTL > 24*time.Hour {
		add("password reset TTL must not exceed 24h")
	}

	if c.Lockout.Enabled {
		if len(c.Lockout.Tiers) == 0 {
			add("lockout enabled without tiers")
		}
		if err := limiters.ValidateTiers(c.Lockout.Tiers); err != nil {
			errs = append(errs, err)
		}
		if c.Lockout.SuspiciousWeight < 1 {
			add("lockout suspicious weight must be >= 1")
		}
	}
	if c.Suspicious.Enabled && (c.Suspicious.Window <= 0 || c.Suspicious.MaxDistinctIPs < 1) {
		add("suspicious detection needs a positive window and threshold")
	}

	for name, r := range map[string]RateLimitRule{
		"login per IP":        c.RateLimit.LoginPerIP,
		"login per email":     c.RateLimit.LoginPerEmail,
		"forgot password":     c.RateLimit.ForgotPassword,
		"resend verification": c.RateLimit.ResendVerification,
	} {
		if r.Max < 0 || (r.Max > 0 && r.Window <= 0) {
			add("rate limit %s needs a positive window", name)
		}
	}

	if c.Email.BaseURL != "" {
		if u, err := url.Parse(c.Email.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
			add("email base URL %q must be absolute", c.Email.BaseURL)
		}
	}
	if c.Email.Async && c.Email.SendTimeout <= 0 {
		add("async email needs a positive send timeout")
	}
	if c.Audit.Enabled && c.Audit.Async && c.Audit.BufferSize <= 0 {
		add("async audit needs a positive buffer size")
	}

	return errors.Join(errs...)
}
