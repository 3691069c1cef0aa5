package limiters

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/jobAuth/store"
)

// Tier locks the account for Duration once the cumulative failure count reaches
// Threshold. A zero Duration is a manual-only lock.
type Tier struct {
	Threshold int
	Duration  time.Duration
}

// DefaultTiers returns 5 -> 15m, 10 -> 30m, 15 -> 60m.
func DefaultTiers() []Tier {
	return []Tier{
		{Threshold: 5, Duration: 15 * time.Minute},
		{Threshold: 10, Duration: 30 * time.Minute},
		{Threshold: 15, Duration: 60 * time.Minute},
	}
}

// ValidateTiers requires strictly increasing thresholds and non-decreasing durations,
// with a manual-only tier allowed only last.
func ValidateTiers(tiers []Tier) error {
	for i, t := range tiers {
		if t.Threshold <= 0 {
			return fmt.Errorf("lockout tier %d: threshold must be positive", i)
		}
		if t.Duration < 0 {
			return fmt.Errorf("lockout tier %d: duration must not be negative", i)
		}
		if t.Duration == 0 && i != len(tiers)-1 {
			return fmt.Errorf("lockout tier %d: only the last tier may be manual-only", i)
		}
		if i == 0 {
			continue
		}
		prev := tiers[i-1]
		if t.Threshold <= prev.Threshold {
			return fmt.Errorf("lockout tier %d: thresholds must increase", i)
		}
		if t.Duration != 0 && t.Duration < prev.Duration {
			return fmt.Errorf("lockout tier %d: durations must not decrease", i)
		}
	}
	return nil
}

// LockoutConfig configures a LockoutGuard.
type LockoutConfig struct {
	Enabled bool
	Tiers   []Tier
	Now     func() time.Time
}

// LockStatus is the effective lock state at a point in time.
type LockStatus struct {
	Locked             bool
	Manual             bool
	Until              *time.Time
	Remaining          time.Duration
	FailedAttempts     int
	ForcePasswordReset bool
}

// LockoutResult reports the outcome of RecordFailure.
type LockoutResult struct {
	Count       int
	NewlyLocked bool // the lock was set or extended by this failure
	Tier        int
	Status      LockStatus
}

// LockoutGuard applies progressive lockout over store.SecurityRepository.
type LockoutGuard struct {
	store   store.Store
	enabled bool
	tiers   []Tier
	now     func() time.Time
}

// NewLockoutGuard validates the tiers and returns a guard.
func NewLockoutGuard(st store.Store, cfg LockoutConfig) (*LockoutGuard, error) {
	if err := ValidateTiers(cfg.Tiers); err != nil {
		return nil, err
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	tiers := append([]Tier(nil), cfg.Tiers...)
	return &LockoutGuard{store: st, enabled: cfg.Enabled && len(tiers) > 0, tiers: tiers, now: cfg.Now}, nil
}

// Tiers returns a copy of the configured tiers.
func (g *LockoutGuard) Tiers() []Tier {
	return append([]Tier(nil), g.tiers...)
}

func activeLock(s *store.UserSecurity, now time.Time) bool {
	return s.IsLocked && (s.LockoutUntil == nil || s.LockoutUntil.After(now))
}

func statusOf(s *store.UserSecurity, now time.Time) LockStatus {
	st := LockStatus{FailedAttempts: s.LockoutCount, ForcePasswordReset: s.ForcePasswordReset}
	if !activeLock(s, now) {
		return st
	}
	st.Locked = true
	if s.LockoutUntil == nil {
		st.Manual = true
		return st
	}
	until := *s.LockoutUntil
	st.Until = &until
	st.Remaining = until.Sub(now)
	return st
}

// loadForUpdate locks the record of userID, creating it first when missing so that
// concurrent first failures serialize on the same row.
func loadForUpdate(ctx context.Context, repos store.Repositories, userID string, now time.Time) (*store.UserSecurity, error) {
	sec, err := repos.Security().GetForUpdate(ctx, userID)
	if !errors.Is(err, store.ErrNotFound) {
		return sec, err
	}
	if err := repos.Security().Ensure(ctx, userID, now); err != nil {
		return nil, err
	}
	return repos.Security().GetForUpdate(ctx, userID)
}

// crossedTier returns the index of the highest tier whose threshold lies in (prev, next].
func (g *LockoutGuard) crossedTier(prev, next int) int {
	idx := -1
	for i, t := range g.tiers {
		if prev < t.Threshold && t.Threshold <= next {
			idx = i
		}
	}
	return idx
}

// RecordFailure adds weight failed attempts for userID and applies the tier that the
// new count crosses. Past the last threshold every failure made while unlocked
// re-applies the last tier. A lock is never shortened.
func (g *LockoutGuard) RecordFailure(ctx context.Context, userID string, weight int) (LockoutResult, error) {
	var res LockoutResult
	if !g.enabled || userID == "" {
		return res, nil
	}
	if weight < 1 {
		weight = 1
	}

	err := g.store.WithTx(ctx, func(ctx context.Context, tx store.Repositories) error {
		now := g.now()
		sec, err := loadForUpdate(ctx, tx, userID, now)
		if err != nil {
			return err
		}

		locked := activeLock(sec, now)
		if sec.IsLocked && !locked {
			sec.IsLocked = false
			sec.LockoutUntil = nil
		}

		prev := sec.LockoutCount
		next := prev + weight
		tier := g.crossedTier(prev, next)
		last := len(g.tiers) - 1
		if tier < 0 && next > g.tiers[last].Threshold && !locked {
			tier = last
		}

		if tier >= 0 {
			applyTier(sec, g.tiers[tier], next, now, &res)
			res.Tier = tier + 1
		}

		sec.LockoutCount = next
		sec.LastFailedAt = &now
		sec.UpdatedAt = now
		if err := tx.Security().Upsert(ctx, sec); err != nil {
			return err
		}

		res.Count = next
		res.Status = statusOf(sec, now)
		return nil
	})
	if err != nil {
		return LockoutResult{}, fmt.Errorf("lockout: record failure: %w", err)
	}
	return res, nil
}

func applyTier(sec *store.UserSecurity, t Tier, count int, now time.Time, res *LockoutResult) {
	wasLocked := activeLock(sec, now)
	if wasLocked && sec.LockoutUntil == nil {
		return
	}

	var until *time.Time
	if t.Duration > 0 {
		u := now.Add(t.Duration)
		until = &u
	}
	if wasLocked && until != nil && !until.After(*sec.LockoutUntil) {
		return
	}

	sec.IsLocked = true
	sec.LockoutUntil = until
	sec.LastLockoutReason = fmt.Sprintf("%d failed login attempts", count)
	res.NewlyLocked = true
}

// Status returns the effective lock state. An elapsed timed lock is cleared in the
// store as a side effect; the cumulative count is kept.
func (g *LockoutGuard) Status(ctx context.Context, userID string) (LockStatus, error) {
	now := g.now()
	sec, err := g.store.Security().Get(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return LockStatus{}, nil
	}
	if err != nil {
		return LockStatus{}, fmt.Errorf("lockout: load: %w", err)
	}
	if !sec.IsLocked || activeLock(sec, now) {
		return statusOf(sec, now), nil
	}

	var status LockStatus
	err = g.store.WithTx(ctx, func(ctx context.Context, tx store.Repositories) error {
		cur, err := loadForUpdate(ctx, tx, userID, now)
		if err != nil {
			return err
		}
		if cur.IsLocked && !activeLock(cur, now) {
			cur.IsLocked = false
			cur.LockoutUntil = nil
			cur.UpdatedAt = now
			if err := tx.Security().Upsert(ctx, cur); err != nil {
				return err
			}
		}
		status = statusOf(cur, now)
		return nil
	})
	if err != nil {
		return statusOf(sec, now), fmt.Errorf("lockout: clear expired lock: %w", err)
	}
	return status, nil
}

// RecordSuccess resets the failure count and clears any lock.
func (g *LockoutGuard) RecordSuccess(ctx context.Context, userID string) error {
	sec, err := g.store.Security().Get(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("lockout: load: %w", err)
	}
	if sec.LockoutCount == 0 && !sec.IsLocked {
		return nil
	}
	return g.store.WithTx(ctx, func(ctx context.Context, tx store.Repositories) error {
		now := g.now()
		cur, err := loadForUpdate(ctx, tx, userID, now)
		if err != nil {
			return err
		}
		cur.LockoutCount = 0
		cur.IsLocked = false
		cur.LockoutUntil = nil
		cur.UpdatedAt = now
		return tx.Security().Upsert(ctx, cur)
	})
}

// Unlock clears the lock and the failure count, recording who did it and why. It
// reports whether the account was locked.
func (g *LockoutGuard) Unlock(ctx context.Context, userID, reason, actorID string) (bool, error) {
	wasLocked := false
	err := g.store.WithTx(ctx, func(ctx context.Context, tx store.Repositories) error {
		now := g.now()
		sec, err := loadForUpdate(ctx, tx, userID, now)
		if err != nil {
			return err
		}
		wasLocked = activeLock(sec, now)
		sec.IsLocked = false
		sec.LockoutUntil = nil
		sec.LockoutCount = 0
		sec.UnlockedBy = actorID
		sec.UnlockReason = reason
		sec.UpdatedAt = now
		return tx.Security().Upsert(ctx, sec)
	})
	if err != nil {
		return false, fmt.Errorf("lockout: unlock: %w", err)
	}
	return wasLocked, nil
}

// ForcePasswordReset flags the account through repos, normally the caller's
// transaction, so that login refuses to issue a session until the password has been
// reset.
func (g *LockoutGuard) ForcePasswordReset(ctx context.Context, repos store.Repositories, userID, reason string) error {
	now := g.now()
	sec, err := loadForUpdate(ctx, repos, userID, now)
	if err != nil {
		return fmt.Errorf("lockout: force password reset: %w", err)
	}
	sec.ForcePasswordReset = true
	sec.ForcePasswordResetReason = reason
	sec.UpdatedAt = now
	if err := repos.Security().Upsert(ctx, sec); err != nil {
		return fmt.Errorf("lockout: force password reset: %w", err)
	}
	return nil
}

// CompletePasswordReset clears the forced-reset flag, the lock and the failure count
// through repos, normally the reset transaction.
func (g *LockoutGuard) CompletePasswordReset(ctx context.Context, repos store.Repositories, userID string) error {
	now := g.now()
	sec, err := loadForUpdate(ctx, repos, userID, now)
	if err != nil {
		return err
	}
	if !sec.ForcePasswordReset && !sec.IsLocked && sec.LockoutCount == 0 {
		return nil
	}
	sec.ForcePasswordReset = false
	sec.ForcePasswordResetReason = ""
	sec.IsLocked = false
	sec.LockoutUntil = nil
	sec.LockoutCount = 0
	sec.UpdatedAt = now
	return repos.Security().Upsert(ctx, sec)
}

// ListLocked returns the records whose lock is still in effect.
func (g *LockoutGuard) ListLocked(ctx context.Context) ([]store.UserSecurity, error) {
	all, err := g.store.Security().ListLocked(ctx)
	if err != nil {
		return nil, fmt.Errorf("lockout: list: %w", err)
	}
	now := g.now()
	out := all[:0]
	for _, s := range all {
		if activeLock(&s, now) {
			out = append(out, s)
		}
	}
	return out, nil
}
