package jobAuth

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/MrEthical07/jobAuth/internal/audit"
	"github.com/MrEthical07/jobAuth/internal/flows"
	"github.com/MrEthical07/jobAuth/store"
)

const (
	defaultAuditLimit = 100
	maxAuditLimit     = 1000
)

func (e *Engine) requireUser(ctx context.Context, userID string) (*store.User, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, ErrInvalidInput
	}
	u, err := e.store.Users().GetByID(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, storeErr(err)
	}
	return u, nil
}

// ListLockedAccounts returns every account whose lock is in effect, soonest expiry
// first and manual locks last.
func (e *Engine) ListLockedAccounts(ctx context.Context) ([]LockedAccount, error) {
	recs, err := e.lockout.ListLocked(ctx)
	if err != nil {
		return nil, storeErr(err)
	}
	out := make([]LockedAccount, 0, len(recs))
	for _, r := range recs {
		acc := LockedAccount{
			UserID:             r.UserID,
			LockedUntil:        r.LockoutUntil,
			ManualOnly:         r.LockoutUntil == nil,
			FailedAttempts:     r.LockoutCount,
			Reason:             r.LastLockoutReason,
			ForcePasswordReset: r.ForcePasswordReset,
		}
		if u, err := e.store.Users().GetByID(ctx, r.UserID); err == nil {
			acc.Email = u.Email
		}
		out = append(out, acc)
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].LockedUntil, out[j].LockedUntil
		switch {
		case a == nil:
			return false
		case b == nil:
			return true
		default:
			return a.Before(*b)
		}
	})
	return out, nil
}

// UnlockAccount clears the lock and failure count of userID and notifies the owner
// when a lock was actually lifted.
func (e *Engine) UnlockAccount(ctx context.Context, userID, reason, actorID string) error {
	user, err := e.requireUser(ctx, userID)
	if err != nil {
		return err
	}
	wasLocked, err := e.lockout.Unlock(ctx, user.ID, reason, actorID)
	if err != nil {
		return storeErr(err)
	}

	e.metricInc(MetricAccountUnlocked)
	e.emitAudit(ctx, audit.Event{
		EventType: audit.EventAccountUnlocked,
		UserID:    user.ID,
		ActorID:   actorID,
		Success:   true,
		Metadata:  map[string]string{"reason": reason, "was_locked": fmt.Sprint(wasLocked)},
	})
	e.emitAudit(ctx, audit.Event{
		EventType: audit.EventAdminSecurityAction,
		UserID:    user.ID,
		ActorID:   actorID,
		Success:   true,
		Metadata:  map[string]string{"action": "unlock", "reason": reason},
	})
	if wasLocked {
		e.notifyUnlocked(ctx, user)
	}
	return nil
}

// ForcePasswordReset flags userID so login stops issuing sessions, revokes every
// session and emails a reset link.
func (e *Engine) ForcePasswordReset(ctx context.Context, userID, reason, actorID string) error {
	user, err := e.requireUser(ctx, userID)
	if err != nil {
		return err
	}

	var (
		revoked int
		tk      *flows.IssuedToken
	)
	err = e.store.WithTx(ctx, func(ctx context.Context, tx store.Repositories) error {
		if err := e.lockout.ForcePasswordReset(ctx, tx, user.ID, reason); err != nil {
			return err
		}
		var err error
		if revoked, err = e.sessions.RevokeAllForUser(ctx, tx, user.ID); err != nil {
			return err
		}
		tk, err = e.reset.Issue(ctx, tx, user.ID)
		return err
	})
	if err != nil {
		return storeErr(err)
	}

	e.metricInc(MetricForcedPasswordReset)
	if e.metrics != nil {
		e.metrics.Add(MetricSessionsRevoked, revoked)
	}
	e.emitAudit(ctx, audit.Event{
		EventType: audit.EventAdminSecurityAction,
		UserID:    user.ID,
		ActorID:   actorID,
		Success:   true,
		Metadata: map[string]string{
			"action":           "force_password_reset",
			"reason":           reason,
			"sessions_revoked": fmt.Sprint(revoked),
		},
	})
	e.sendPasswordReset(ctx, user, tk)
	return nil
}

// GetAuditLogs returns persisted audit events, newest first.
func (e *Engine) GetAuditLogs(ctx context.Context, q AuditQuery) ([]AuditEvent, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = defaultAuditLimit
	}
	if limit > maxAuditLimit {
		limit = maxAuditLimit
	}
	entries, err := e.store.AuditLogs().List(ctx, store.AuditFilter{
		UserID:    q.UserID,
		EventType: q.EventType,
		Since:     q.Since,
		Limit:     limit,
	})
	if err != nil {
		return nil, storeErr(err)
	}
	out := make([]AuditEvent, 0, len(entries))
	for _, en := range entries {
		out = append(out, AuditEvent{
			Timestamp: en.CreatedAt,
			EventType: en.EventType,
			UserID:    en.UserID,
			ActorID:   en.ActorID,
			SessionID: en.SessionID,
			IP:        en.IP,
			Success:   en.Success,
			Error:     en.Error,
			Metadata:  en.Metadata,
		})
	}
	return out, nil
}

// CheckSuspiciousActivity reports whether userID logged in from more distinct IPs than
// allowed within the trailing window. recentIPs are merged with the recorded ones.
func (e *Engine) CheckSuspiciousActivity(ctx context.Context, userID string, recentIPs []string) (*SuspicionReport, error) {
	if _, err := e.requireUser(ctx, userID); err != nil {
		return nil, err
	}
	report, err := e.suspicion.Check(ctx, userID, recentIPs)
	if err != nil {
		return nil, err
	}
	if report.Suspicious {
		e.metricInc(MetricSuspiciousActivity)
		e.emitAudit(ctx, audit.Event{
			EventType: audit.EventSuspiciousActivity,
			UserID:    userID,
			Metadata: map[string]string{
				"distinct_ips": fmt.Sprint(report.DistinctIPs),
				"source":       "admin_check",
			},
		})
	}
	return &report, nil
}

// GetSecurityStatistics aggregates store counts, the last day of audit history, the
// in-process counters and the effective policy.
func (e *Engine) GetSecurityStatistics(ctx context.Context) (*SecurityStatistics, error) {
	now := e.now()
	since := now.Add(-24 * time.Hour)

	counts, err := e.store.Security().Counts(ctx)
	if err != nil {
		return nil, storeErr(err)
	}
	locked, err := e.lockout.ListLocked(ctx)
	if err != nil {
		return nil, storeErr(err)
	}
	manual := 0
	for _, r := range locked {
		if r.LockoutUntil == nil {
			manual++
		}
	}
	active, err := e.store.Sessions().CountActive(ctx, now)
	if err != nil {
		return nil, storeErr(err)
	}

	stats := &SecurityStatistics{
		GeneratedAt:         now,
		LockedAccounts:      len(locked),
		ManualLocks:         manual,
		PendingForcedResets: counts.PendingForcedResets,
		ActiveSessions:      active,
		Counters:            map[string]int{},
		Policy:              e.SecurityPolicy(),
	}

	for _, c := range []struct {
		event string
		dst   *int
	}{
		{audit.EventLoginFailure, &stats.FailedLogins24h},
		{audit.EventAccountLocked, &stats.Lockouts24h},
		{audit.EventSuspiciousActivity, &stats.SuspiciousFlags24h},
	} {
		n, err := e.store.AuditLogs().CountSince(ctx, c.event, since)
		if err != nil {
			return nil, storeErr(err)
		}
		*c.dst = n
	}

	for id, v := range e.MetricsSnapshot().Counters {
		if v > 0 {
			stats.Counters[id.String()] = int(v)
		}
	}
	return stats, nil
}
