package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/MrEthical07/jobAuth/store"
)

type securityRepo struct {
	db DBTX
}

const securityColumns = `user_id, is_locked, lockout_count, lockout_until, last_lockout_reason, last_failed_at,
	force_password_reset, force_password_reset_reason, unlocked_by, unlock_reason, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSecurity(row rowScanner) (*store.UserSecurity, error) {
	var (
		s          store.UserSecurity
		until      sql.NullTime
		lastFailed sql.NullTime
	)
	err := row.Scan(&s.UserID, &s.IsLocked, &s.LockoutCount, &until, &s.LastLockoutReason, &lastFailed,
		&s.ForcePasswordReset, &s.ForcePasswordResetReason, &s.UnlockedBy, &s.UnlockReason, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	s.LockoutUntil = timeOrNil(until)
	s.LastFailedAt = timeOrNil(lastFailed)
	return &s, nil
}

func (r *securityRepo) Get(ctx context.Context, userID string) (*store.UserSecurity, error) {
	s, err := scanSecurity(r.db.QueryRowContext(ctx, `SELECT `+securityColumns+` FROM user_security WHERE user_id = $1`, userID))
	return s, mapErr(err)
}

func (r *securityRepo) GetForUpdate(ctx context.Context, userID string) (*store.UserSecurity, error) {
	s, err := scanSecurity(r.db.QueryRowContext(ctx, `SELECT `+securityColumns+` FROM user_security WHERE user_id = $1 FOR UPDATE`, userID))
	return s, mapErr(err)
}

func (r *securityRepo) Ensure(ctx context.Context, userID string, at time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO user_security (user_id, updated_at) VALUES ($1, $2) ON CONFLICT (user_id) DO NOTHING`,
		userID, at)
	if err != nil {
		return fmt.Errorf("ensure user security: %w", mapErr(err))
	}
	return nil
}

func (r *securityRepo) Upsert(ctx context.Context, s *store.UserSecurity) error {
	query := `
		INSERT INTO user_security (` + securityColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (user_id) DO UPDATE SET
			is_locked = EXCLUDED.is_locked,
			lockout_count = EXCLUDED.lockout_count,
			lockout_until = EXCLUDED.lockout_until,
			last_lockout_reason = EXCLUDED.last_lockout_reason,
			last_failed_at = EXCLUDED.last_failed_at,
			force_password_reset = EXCLUDED.force_password_reset,
			force_password_reset_reason = EXCLUDED.force_password_reset_reason,
			unlocked_by = EXCLUDED.unlocked_by,
			unlock_reason = EXCLUDED.unlock_reason,
			updated_at = EXCLUDED.updated_at
	`
	_, err := r.db.ExecContext(ctx, query,
		s.UserID, s.IsLocked, s.LockoutCount, nullTime(s.LockoutUntil), s.LastLockoutReason, nullTime(s.LastFailedAt),
		s.ForcePasswordReset, s.ForcePasswordResetReason, s.UnlockedBy, s.UnlockReason, s.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert user security: %w", mapErr(err))
	}
	return nil
}

func (r *securityRepo) ListLocked(ctx context.Context) ([]store.UserSecurity, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+securityColumns+` FROM user_security WHERE is_locked ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list locked: %w", err)
	}
	defer rows.Close()

	var out []store.UserSecurity
	for rows.Next() {
		s, err := scanSecurity(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

func (r *securityRepo) Counts(ctx context.Context) (store.SecurityCounts, error) {
	query := `
		SELECT
			COUNT(*) FILTER (WHERE is_locked),
			COUNT(*) FILTER (WHERE is_locked AND lockout_until IS NULL),
			COUNT(*) FILTER (WHERE force_password_reset)
		FROM user_security
	`
	var c store.SecurityCounts
	err := r.db.QueryRowContext(ctx, query).Scan(&c.LockedAccounts, &c.ManualLocks, &c.PendingForcedResets)
	return c, mapErr(err)
}
