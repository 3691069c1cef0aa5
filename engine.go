package jobAuth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/MrEthical07/jobAuth/internal/audit"
	"github.com/MrEthical07/jobAuth/internal/autherr"
	"github.com/MrEthical07/jobAuth/internal/flows"
	"github.com/MrEthical07/jobAuth/internal/limiters"
	"github.com/MrEthical07/jobAuth/internal/rate"
	"github.com/MrEthical07/jobAuth/jwt"
	"github.com/MrEthical07/jobAuth/mailer"
	"github.com/MrEthical07/jobAuth/oauth"
	"github.com/MrEthical07/jobAuth/password"
	"github.com/MrEthical07/jobAuth/session"
	"github.com/MrEthical07/jobAuth/store"
)

// Engine orchestrates the authentication flows. It is safe for concurrent use.
type Engine struct {
	config    Config
	store     store.Store
	jwt       *jwt.Manager
	hasher    *password.Hasher
	sessions  *session.Manager
	verify    *flows.TokenFlow
	reset     *flows.TokenFlow
	lockout   *limiters.LockoutGuard
	suspicion *limiters.SuspicionTracker
	limiter   *rate.Limiter
	mailer    mailer.Sender
	templates mailer.Templates
	providers *oauth.Registry
	audit     *audit.Dispatcher
	metrics   *Metrics
	validate  *validator.Validate
	log       zerolog.Logger
	now       func() time.Time

	mailWG    sync.WaitGroup
	closeOnce sync.Once
}

// Close waits for pending async emails and drains the audit buffer. The store is
// owned by the caller and stays open. Close is idempotent.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	e.closeOnce.Do(func() {
		e.mailWG.Wait()
		if e.audit != nil {
			e.audit.Close()
		}
	})
}

// AuditDropped reports audit events discarded because the buffer was full.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func storeErr(err error) error {
	return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
}

// passthrough keeps classified errors and wraps the rest as store failures.
func passthrough(err error) error {
	var ae *AuthError
	if errors.As(err, &ae) {
		return err
	}
	return storeErr(err)
}

func (e *Engine) clientFromContext(ctx context.Context) session.Client {
	return session.Client{IP: clientIPFromContext(ctx), UserAgent: userAgentFromContext(ctx)}
}

func (e *Engine) checkEmail(email string) error {
	if err := e.validate.Var(email, "required,email,max=254"); err != nil {
		return &AuthError{Kind: KindInvalidInput, Message: "a valid email address is required"}
	}
	return nil
}

func (e *Engine) checkPassword(pw string) error {
	if err := e.hasher.CheckPolicy(pw); err != nil {
		return &AuthError{Kind: KindPasswordPolicy, Message: err.Error()}
	}
	return nil
}

// Register creates an account, sends the verification email and starts a session.
func (e *Engine) Register(ctx context.Context, req RegisterRequest) (*AuthResponse, error) {
	email := store.NormalizeEmail(req.Email)
	if err := e.checkEmail(email); err != nil {
		return nil, err
	}
	if err := e.checkPassword(req.Password); err != nil {
		return nil, err
	}
	name := strings.TrimSpace(req.Name)

	hash, err := e.hasher.Hash(req.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	now := e.now()
	user := &store.User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: hash,
		Name:         name,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	var (
		issued   *session.Issued
		verifyTk *flows.IssuedToken
	)
	err = e.store.WithTx(ctx, func(ctx context.Context, tx store.Repositories) error {
		if _, err := tx.Users().GetByEmail(ctx, email); err == nil {
			return ErrEmailInUse
		} else if !errors.Is(err, store.ErrNotFound) {
			return err
		}
		if err := tx.Users().Create(ctx, user); err != nil {
			if errors.Is(err, store.ErrDuplicate) {
				return ErrEmailInUse
			}
			return err
		}
		if err := tx.Security().Ensure(ctx, user.ID, user.CreatedAt); err != nil {
			return err
		}
		var err error
		if verifyTk, err = e.verify.Issue(ctx, tx, user.ID); err != nil {
			return err
		}
		issued, err = e.sessions.Create(ctx, tx, user.ID, e.clientFromContext(ctx))
		return err
	})
	if errors.Is(err, ErrEmailInUse) {
		e.metricInc(MetricRegisterDuplicate)
		return nil, ErrEmailInUse
	}
	if err != nil {
		return nil, storeErr(err)
	}

	e.metricInc(MetricRegisterSuccess)
	e.metricInc(MetricSessionCreated)
	e.emitAudit(ctx, audit.Event{EventType: audit.EventRegister, UserID: user.ID, SessionID: issued.SessionID, Success: true})
	e.sendVerification(ctx, user, verifyTk)

	return e.authResponse(user, issued)
}

func (e *Engine) authResponse(user *store.User, issued *session.Issued) (*AuthResponse, error) {
	access, err := e.jwt.CreateAccess(user.ID, user.Email)
	if err != nil {
		return nil, fmt.Errorf("sign access token: %w", err)
	}
	return &AuthResponse{
		User:         publicUser(user),
		AccessToken:  access,
		RefreshToken: issued.RefreshToken,
		CSRFToken:    issued.CSRFToken,
		ExpiresAt:    issued.ExpiresAt,
		SessionID:    issued.SessionID,
	}, nil
}

// Login authenticates by email and password. Unknown email and wrong password both
// return ErrInvalidCredentials; a locked account returns an AccountLocked error with
// RetryAfter set, even for the correct password.
func (e *Engine) Login(ctx context.Context, email, pw string) (*AuthResponse, error) {
	email = store.NormalizeEmail(email)
	ip := clientIPFromContext(ctx)

	if err := e.throttleLogin(ctx, ip, email); err != nil {
		return nil, err
	}

	user, err := e.store.Users().GetByEmail(ctx, email)
	if errors.Is(err, store.ErrNotFound) {
		e.hasher.BurnTime(pw)
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, audit.Event{
			EventType: audit.EventLoginFailure,
			Error:     KindInvalidCredentials.String(),
			Metadata:  map[string]string{"reason": "unknown_email"},
		})
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, storeErr(err)
	}

	status, err := e.lockout.Status(ctx, user.ID)
	if err != nil {
		return nil, storeErr(err)
	}
	if status.Locked {
		e.metricInc(MetricLoginLocked)
		e.emitAudit(ctx, audit.Event{EventType: audit.EventLoginLocked, UserID: user.ID, Error: KindAccountLocked.String()})
		return nil, autherr.Locked(status.Remaining)
	}

	e.observeIP(ctx, user.ID, ip)

	if !e.hasher.Matches(pw, user.PasswordHash) {
		e.loginFailed(ctx, user, ip)
		return nil, ErrInvalidCredentials
	}

	if err := e.lockout.RecordSuccess(ctx, user.ID); err != nil {
		return nil, storeErr(err)
	}
	if e.limiter != nil {
		if err := e.limiter.Reset(ctx, rate.LoginEmailKey(email)); err != nil {
			e.log.Warn().Err(err).Msg("jobAuth: reset login throttle")
		}
	}

	if status.ForcePasswordReset {
		e.metricInc(MetricLoginResetRequired)
		e.emitAudit(ctx, audit.Event{EventType: audit.EventPasswordResetRequired, UserID: user.ID, Error: KindPasswordResetRequired.String()})
		return nil, ErrPasswordResetRequired
	}

	e.maybeRehash(ctx, user, pw)

	issued, err := e.sessions.Create(ctx, nil, user.ID, e.clientFromContext(ctx))
	if err != nil {
		return nil, storeErr(err)
	}

	e.metricInc(MetricLoginSuccess)
	e.metricInc(MetricSessionCreated)
	e.emitAudit(ctx, audit.Event{EventType: audit.EventLoginSuccess, UserID: user.ID, SessionID: issued.SessionID, Success: true})

	return e.authResponse(user, issued)
}

type throttle struct {
	key    string
	policy rate.Policy
}

func (e *Engine) throttleLogin(ctx context.Context, ip, email string) error {
	if e.limiter == nil {
		return nil
	}
	checks := make([]throttle, 0, 2)
	if ip != "" {
		checks = append(checks, throttle{rate.LoginIPKey(ip), policyOf(e.config.RateLimit.LoginPerIP)})
	}
	checks = append(checks, throttle{rate.LoginEmailKey(email), policyOf(e.config.RateLimit.LoginPerEmail)})

	for _, c := range checks {
		err := e.limiter.Take(ctx, c.key, c.policy)
		if errors.Is(err, rate.ErrRateLimited) {
			e.metricInc(MetricLoginRateLimited)
			e.metricInc(MetricRateLimitHit)
			e.emitAudit(ctx, audit.Event{EventType: audit.EventLoginRateLimited, Error: KindRateLimited.String()})
			return ErrRateLimited
		}
		if err != nil {
			e.log.Warn().Err(err).Msg("jobAuth: login throttle unavailable")
			return nil
		}
	}
	return nil
}

func policyOf(r RateLimitRule) rate.Policy {
	return rate.Policy{Max: r.Max, Window: r.Window}
}

func (e *Engine) observeIP(ctx context.Context, userID, ip string) {
	if err := e.suspicion.Observe(ctx, userID, ip); err != nil {
		e.log.Warn().Err(err).Str("user_id", userID).Msg("jobAuth: record login IP")
	}
}

// loginFailed weighs the failure, applies lockout and performs the lock side effects.
func (e *Engine) loginFailed(ctx context.Context, user *store.User, ip string) {
	e.metricInc(MetricLoginFailure)
	e.emitAudit(ctx, audit.Event{EventType: audit.EventLoginFailure, UserID: user.ID, Error: KindInvalidCredentials.String()})

	weight := 1
	var recent []string
	if ip != "" {
		recent = []string{ip}
	}
	report, err := e.suspicion.Check(ctx, user.ID, recent)
	if err != nil {
		e.log.Warn().Err(err).Str("user_id", user.ID).Msg("jobAuth: suspicious activity check")
	}
	if report.Suspicious {
		weight = e.config.Lockout.SuspiciousWeight
		e.metricInc(MetricSuspiciousActivity)
		e.emitAudit(ctx, audit.Event{
			EventType: audit.EventSuspiciousActivity,
			UserID:    user.ID,
			Metadata: map[string]string{
				"distinct_ips": fmt.Sprint(report.DistinctIPs),
				"window":       report.Window.String(),
			},
		})
	}

	res, err := e.lockout.RecordFailure(ctx, user.ID, weight)
	if err != nil {
		e.log.Warn().Err(err).Str("user_id", user.ID).Msg("jobAuth: record failed login")
		return
	}
	if !res.NewlyLocked {
		return
	}

	e.metricInc(MetricAccountLocked)
	meta := map[string]string{
		"failed_attempts": fmt.Sprint(res.Count),
		"tier":            fmt.Sprint(res.Tier),
	}
	if res.Status.Until != nil {
		meta["locked_until"] = res.Status.Until.UTC().Format(time.RFC3339)
	} else {
		meta["locked_until"] = "manual"
	}
	e.emitAudit(ctx, audit.Event{EventType: audit.EventAccountLocked, UserID: user.ID, Success: true, Metadata: meta})
	e.notifyLocked(ctx, user, res.Count, res.Status.Until)
}

func (e *Engine) maybeRehash(ctx context.Context, user *store.User, pw string) {
	if !e.config.Password.UpgradeOnLogin {
		return
	}
	stale, err := e.hasher.NeedsRehash(user.PasswordHash)
	if err != nil || !stale {
		return
	}
	hash, err := e.hasher.Hash(pw)
	if err != nil {
		return
	}
	if err := e.store.Users().UpdatePasswordHash(ctx, user.ID, hash, e.now()); err != nil {
		e.log.Warn().Err(err).Str("user_id", user.ID).Msg("jobAuth: upgrade password hash")
	}
}

// Refresh rotates the session's refresh and CSRF tokens and signs a new access token.
// Every earlier refresh token of the session stops working.
func (e *Engine) Refresh(ctx context.Context, refreshToken, csrfToken string) (*RefreshResponse, error) {
	start := time.Now()
	rot, err := e.sessions.Refresh(ctx, refreshToken, csrfToken)
	if e.metrics.LatencyEnabled() {
		e.metrics.Observe(MetricRefreshLatency, time.Since(start))
	}
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidCsrf):
			e.metricInc(MetricRefreshCSRFMismatch)
		case errors.Is(err, ErrInvalidSession):
			e.metricInc(MetricRefreshFailure)
		default:
			e.metricInc(MetricRefreshFailure)
			return nil, storeErr(err)
		}
		e.emitAudit(ctx, audit.Event{EventType: audit.EventRefreshInvalid, Error: KindOf(err).String()})
		return nil, err
	}

	e.metricInc(MetricRefreshSuccess)
	e.emitAudit(ctx, audit.Event{EventType: audit.EventRefreshSuccess, UserID: rot.UserID, SessionID: rot.SessionID, Success: true})

	return &RefreshResponse{
		AccessToken:  rot.AccessToken,
		RefreshToken: rot.RefreshToken,
		CSRFToken:    rot.CSRFToken,
		ExpiresAt:    rot.ExpiresAt,
	}, nil
}

// Logout revokes the session. It succeeds when there is no active session and fails
// with ErrInvalidCsrf only when a session exists and the CSRF token does not match.
func (e *Engine) Logout(ctx context.Context, refreshToken, csrfToken string) error {
	s, err := e.sessions.Logout(ctx, refreshToken, csrfToken)
	if err != nil {
		return passthrough(err)
	}
	if s != nil {
		e.metricInc(MetricLogout)
		e.emitAudit(ctx, audit.Event{EventType: audit.EventLogout, UserID: s.UserID, SessionID: s.ID, Success: true})
	}
	return nil
}

// BootstrapCSRF issues a fresh CSRF token for the session behind refreshToken. It
// returns "" with a nil error when there is no active session.
func (e *Engine) BootstrapCSRF(ctx context.Context, refreshToken string) (string, error) {
	csrf, err := e.sessions.BootstrapCSRF(ctx, refreshToken)
	if err != nil {
		return "", storeErr(err)
	}
	return csrf, nil
}

// ValidateAccess verifies an access token. Every failure is ErrInvalidToken.
func (e *Engine) ValidateAccess(_ context.Context, accessToken string) (*Identity, error) {
	claims, err := e.jwt.ParseAccess(accessToken)
	if err != nil {
		return nil, ErrInvalidToken
	}
	id := &Identity{UserID: claims.UserID(), Email: claims.Email}
	if claims.ExpiresAt != nil {
		id.ExpiresAt = claims.ExpiresAt.Time
	}
	return id, nil
}

// GetUser returns the public view of a user.
func (e *Engine) GetUser(ctx context.Context, userID string) (*User, error) {
	u, err := e.store.Users().GetByID(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, storeErr(err)
	}
	pub := publicUser(u)
	return &pub, nil
}
