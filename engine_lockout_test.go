package jobAuth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MrEthical07/jobAuth/mailer"
)

func failLogins(t *testing.T, e *Engine, ctx context.Context, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		_, err := e.Login(ctx, testEmail, "wrong-password-123")
		if !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("attempt %d: expected ErrInvalidCredentials, got %v", i+1, err)
		}
	}
}

func TestLoginLockedOnSixthAttempt(t *testing.T) {
	env := newTestEnv(t, testOptions{})
	env.register(t, testEmail)
	ctx := context.Background()

	failLogins(t, env.engine, ctx, 5)

	_, err := env.engine.Login(ctx, testEmail, testPassword)
	if !errors.Is(err, ErrAccountLocked) {
		t.Fatalf("expected ErrAccountLocked with the correct password, got %v", err)
	}
	var ae *AuthError
	if !errors.As(err, &ae) || ae.RetryAfter != 15*time.Minute {
		t.Fatalf("expected 15m retry-after, got %+v", ae)
	}
	if HTTPStatus(err) != 403 {
		t.Fatalf("expected 403, got %d", HTTPStatus(err))
	}
	if n := env.mail.Count(testEmail, mailer.KindAccountLocked); n != 1 {
		t.Fatalf("expected one lock notice, got %d", n)
	}
}

func TestLockoutProgression(t *testing.T) {
	env := newTestEnv(t, testOptions{mutate: func(c *Config) {
		c.Lockout.Tiers = []LockoutTier{
			{Threshold: 5, Duration: 15 * time.Minute},
			{Threshold: 10, Duration: time.Hour},
		}
	}})
	env.register(t, testEmail)
	ctx := context.Background()

	failLogins(t, env.engine, ctx, 5)
	env.clock.Advance(15*time.Minute + time.Second)

	failLogins(t, env.engine, ctx, 4)
	_, err := env.engine.Login(ctx, testEmail, "wrong-password-123")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("10th attempt: expected ErrInvalidCredentials, got %v", err)
	}

	_, err = env.engine.Login(ctx, testEmail, testPassword)
	var ae *AuthError
	if !errors.As(err, &ae) || ae.Kind != KindAccountLocked || ae.RetryAfter != time.Hour {
		t.Fatalf("expected a one hour lock, got %v", err)
	}

	env.clock.Advance(time.Hour + time.Second)
	if _, err := env.engine.Login(ctx, testEmail, testPassword); err != nil {
		t.Fatalf("login after lock expiry: %v", err)
	}
}

func TestSuccessfulLoginResetsFailureCount(t *testing.T) {
	env := newTestEnv(t, testOptions{})
	env.register(t, testEmail)
	ctx := context.Background()

	failLogins(t, env.engine, ctx, 4)
	if _, err := env.engine.Login(ctx, testEmail, testPassword); err != nil {
		t.Fatalf("Login: %v", err)
	}
	failLogins(t, env.engine, ctx, 4)
	if _, err := env.engine.Login(ctx, testEmail, testPassword); err != nil {
		t.Fatalf("count should have been reset, got %v", err)
	}
}

func TestSuspiciousFailuresWeighMore(t *testing.T) {
	env := newTestEnv(t, testOptions{
		withRedis: true,
		mutate: func(c *Config) {
			c.Suspicious.MaxDistinctIPs = 1
		},
	})
	env.register(t, testEmail)

	failLogins(t, env.engine, ipContext("192.0.2.1"), 1)
	failLogins(t, env.engine, ipContext("192.0.2.2"), 2)

	_, err := env.engine.Login(ipContext("192.0.2.1"), testEmail, testPassword)
	if !errors.Is(err, ErrAccountLocked) {
		t.Fatalf("expected lock after 1+2+2 weighted failures, got %v", err)
	}
	if got := env.engine.MetricsSnapshot().Counters[MetricSuspiciousActivity]; got != 2 {
		t.Fatalf("expected 2 suspicious flags, got %d", got)
	}
}

func TestLoginRateLimitedPerEmail(t *testing.T) {
	env := newTestEnv(t, testOptions{
		withRedis: true,
		mutate: func(c *Config) {
			c.RateLimit.LoginPerEmail = RateLimitRule{Max: 3, Window: time.Minute}
		},
	})
	env.register(t, testEmail)
	ctx := ipContext("192.0.2.50")

	failLogins(t, env.engine, ctx, 3)
	_, err := env.engine.Login(ctx, testEmail, testPassword)
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
	if HTTPStatus(err) != 429 {
		t.Fatalf("expected 429, got %d", HTTPStatus(err))
	}

	env.redis.FastForward(time.Minute + time.Second)
	if _, err := env.engine.Login(ctx, testEmail, testPassword); err != nil {
		t.Fatalf("login after window: %v", err)
	}
}

func TestLoginFailsOpenWhenRedisDown(t *testing.T) {
	env := newTestEnv(t, testOptions{withRedis: true})
	env.register(t, testEmail)
	env.redis.Close()

	if _, err := env.engine.Login(ipContext("192.0.2.9"), testEmail, testPassword); err != nil {
		t.Fatalf("expected login without throttle, got %v", err)
	}
}

func TestAdminUnlockAccount(t *testing.T) {
	env := newTestEnv(t, testOptions{})
	resp := env.register(t, testEmail)
	ctx := context.Background()

	failLogins(t, env.engine, ctx, 5)

	locked, err := env.engine.ListLockedAccounts(ctx)
	if err != nil {
		t.Fatalf("ListLockedAccounts: %v", err)
	}
	if len(locked) != 1 || locked[0].UserID != resp.User.ID || locked[0].Email != testEmail {
		t.Fatalf("unexpected locked list %+v", locked)
	}
	if locked[0].FailedAttempts != 5 || locked[0].ManualOnly {
		t.Fatalf("unexpected lock details %+v", locked[0])
	}

	if err := env.engine.UnlockAccount(ctx, resp.User.ID, "verified by phone", "admin-1"); err != nil {
		t.Fatalf("UnlockAccount: %v", err)
	}
	if _, err := env.engine.Login(ctx, testEmail, testPassword); err != nil {
		t.Fatalf("login after unlock: %v", err)
	}
	if n := env.mail.Count(testEmail, mailer.KindAccountUnlocked); n != 1 {
		t.Fatalf("expected unlock notice, got %d", n)
	}

	events, err := env.engine.GetAuditLogs(ctx, AuditQuery{EventType: "account_unlocked"})
	if err != nil {
		t.Fatalf("GetAuditLogs: %v", err)
	}
	if len(events) != 1 || events[0].ActorID != "admin-1" || events[0].Metadata["reason"] != "verified by phone" {
		t.Fatalf("unexpected unlock audit %+v", events)
	}

	if err := env.engine.UnlockAccount(ctx, "missing", "", "admin-1"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestManualOnlyTierNeedsAdmin(t *testing.T) {
	env := newTestEnv(t, testOptions{mutate: func(c *Config) {
		c.Lockout.Tiers = []LockoutTier{{Threshold: 3, Duration: 0}}
	}})
	resp := env.register(t, testEmail)
	ctx := context.Background()

	failLogins(t, env.engine, ctx, 3)
	env.clock.Advance(30 * 24 * time.Hour)

	_, err := env.engine.Login(ctx, testEmail, testPassword)
	var ae *AuthError
	if !errors.As(err, &ae) || ae.Kind != KindAccountLocked || ae.RetryAfter != 0 {
		t.Fatalf("expected manual lock without retry-after, got %v", err)
	}
	if err := env.engine.UnlockAccount(ctx, resp.User.ID, "", "admin-1"); err != nil {
		t.Fatalf("UnlockAccount: %v", err)
	}
	if _, err := env.engine.Login(ctx, testEmail, testPassword); err != nil {
		t.Fatalf("login after manual unlock: %v", err)
	}
}

func TestAdminForcePasswordReset(t *testing.T) {
	env := newTestEnv(t, testOptions{})
	resp := env.register(t, testEmail)
	ctx := context.Background()

	if err := env.engine.ForcePasswordReset(ctx, resp.User.ID, "credential leak", "admin-1"); err != nil {
		t.Fatalf("ForcePasswordReset: %v", err)
	}
	if _, err := env.engine.Refresh(ctx, resp.RefreshToken, resp.CSRFToken); !errors.Is(err, ErrInvalidSession) {
		t.Fatalf("sessions should be revoked, got %v", err)
	}
	if _, err := env.engine.Login(ctx, testEmail, testPassword); !errors.Is(err, ErrPasswordResetRequired) {
		t.Fatalf("expected ErrPasswordResetRequired, got %v", err)
	}

	tok := env.mailToken(t, testEmail, mailer.KindPasswordReset)
	if err := env.engine.ResetPassword(ctx, tok, "brand-new-password-456"); err != nil {
		t.Fatalf("ResetPassword: %v", err)
	}
	if _, err := env.engine.Login(ctx, testEmail, "brand-new-password-456"); err != nil {
		t.Fatalf("login after forced reset: %v", err)
	}

	stats, err := env.engine.GetSecurityStatistics(ctx)
	if err != nil {
		t.Fatalf("GetSecurityStatistics: %v", err)
	}
	if stats.PendingForcedResets != 0 {
		t.Fatalf("forced reset should be cleared, got %d", stats.PendingForcedResets)
	}
}

func TestSecurityStatistics(t *testing.T) {
	env := newTestEnv(t, testOptions{})
	env.register(t, testEmail)
	env.register(t, "bob@example.com")
	ctx := context.Background()

	failLogins(t, env.engine, ctx, 5)

	stats, err := env.engine.GetSecurityStatistics(ctx)
	if err != nil {
		t.Fatalf("GetSecurityStatistics: %v", err)
	}
	if stats.LockedAccounts != 1 || stats.ManualLocks != 0 {
		t.Fatalf("unexpected lock counts %+v", stats)
	}
	if stats.ActiveSessions != 2 {
		t.Fatalf("expected 2 active sessions, got %d", stats.ActiveSessions)
	}
	if stats.FailedLogins24h != 5 || stats.Lockouts24h != 1 {
		t.Fatalf("unexpected 24h counts: failed=%d lockouts=%d", stats.FailedLogins24h, stats.Lockouts24h)
	}
	if stats.Counters[MetricLoginFailure.String()] != 5 {
		t.Fatalf("expected counters to include login failures, got %v", stats.Counters)
	}
	if len(stats.Policy.LockoutTiers) != 3 || stats.Policy.SigningAlgorithm != "hs256" {
		t.Fatalf("unexpected policy %+v", stats.Policy)
	}

	env.clock.Advance(25 * time.Hour)
	stats, err = env.engine.GetSecurityStatistics(ctx)
	if err != nil {
		t.Fatalf("GetSecurityStatistics: %v", err)
	}
	if stats.FailedLogins24h != 0 || stats.LockedAccounts != 0 {
		t.Fatalf("expected old failures and expired lock to drop out, got %+v", stats)
	}
}

func TestCheckSuspiciousActivity(t *testing.T) {
	env := newTestEnv(t, testOptions{withRedis: true})
	resp := env.register(t, testEmail)
	ctx := context.Background()

	report, err := env.engine.CheckSuspiciousActivity(ctx, resp.User.ID, []string{"10.0.0.1", "10.0.0.2"})
	if err != nil {
		t.Fatalf("CheckSuspiciousActivity: %v", err)
	}
	if report.Suspicious {
		t.Fatalf("two IPs should not be suspicious: %+v", report)
	}

	for _, ip := range []string{"10.0.0.1", "10.0.0.2", "10.0.0.3"} {
		if _, err := env.engine.Login(ipContext(ip), testEmail, testPassword); err != nil {
			t.Fatalf("Login from %s: %v", ip, err)
		}
	}
	report, err = env.engine.CheckSuspiciousActivity(ctx, resp.User.ID, []string{"10.0.0.4"})
	if err != nil {
		t.Fatalf("CheckSuspiciousActivity: %v", err)
	}
	if !report.Suspicious || report.DistinctIPs != 4 {
		t.Fatalf("expected 4 distinct IPs flagged, got %+v", report)
	}

	if _, err := env.engine.CheckSuspiciousActivity(ctx, "missing", nil); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestForcePasswordResetIsAtomic(t *testing.T) {
	faults := &faultStore{}
	env := newTestEnv(t, testOptions{faults: faults})
	resp := env.register(t, testEmail)
	ctx := context.Background()

	faults.failTokenCreate.Store(true)
	err := env.engine.ForcePasswordReset(ctx, resp.User.ID, "credential leak", "admin-1")
	if !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
	faults.failTokenCreate.Store(false)

	if _, ok := env.mail.Last(testEmail, mailer.KindPasswordReset); ok {
		t.Fatal("no reset email may be sent for a rolled back force reset")
	}
	if _, err := env.engine.Refresh(ctx, resp.RefreshToken, resp.CSRFToken); err != nil {
		t.Fatalf("session should still be active: %v", err)
	}
	if _, err := env.engine.Login(ctx, testEmail, testPassword); err != nil {
		t.Fatalf("forced reset flag should not be set: %v", err)
	}
	stats, err := env.engine.GetSecurityStatistics(ctx)
	if err != nil {
		t.Fatalf("GetSecurityStatistics: %v", err)
	}
	if stats.PendingForcedResets != 0 {
		t.Fatalf("expected no pending forced reset, got %d", stats.PendingForcedResets)
	}
}

func TestLoginFailsWhenCountersCannotReset(t *testing.T) {
	faults := &faultStore{}
	env := newTestEnv(t, testOptions{faults: faults})
	env.register(t, testEmail)
	ctx := context.Background()

	failLogins(t, env.engine, ctx, 4)

	faults.failSecurityUpsert.Store(true)
	if _, err := env.engine.Login(ctx, testEmail, testPassword); !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
	faults.failSecurityUpsert.Store(false)

	stats, err := env.engine.GetSecurityStatistics(ctx)
	if err != nil {
		t.Fatalf("GetSecurityStatistics: %v", err)
	}
	if got := stats.ActiveSessions; got != 1 {
		t.Fatalf("no session may be issued without a counter reset, got %d active", got)
	}

	failLogins(t, env.engine, ctx, 1)
	if _, err := env.engine.Login(ctx, testEmail, testPassword); !errors.Is(err, ErrAccountLocked) {
		t.Fatalf("count should have survived the failed login, got %v", err)
	}
}
