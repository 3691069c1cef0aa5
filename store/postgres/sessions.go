package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/MrEthical07/jobAuth/store"
)

type sessionRepo struct {
	db DBTX
}

func (r *sessionRepo) Create(ctx context.Context, s *store.Session) error {
	query := `
		INSERT INTO auth_sessions (id, user_id, refresh_token_hash, csrf_token_hash, expires_at, last_used_at, created_at, ip, user_agent)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := r.db.ExecContext(ctx, query,
		s.ID, s.UserID, s.RefreshTokenHash, s.CSRFTokenHash, s.ExpiresAt, s.LastUsedAt, s.CreatedAt, s.IP, s.UserAgent)
	if err != nil {
		return fmt.Errorf("insert session: %w", mapErr(err))
	}
	return nil
}

func (r *sessionRepo) GetByRefreshHash(ctx context.Context, hash string) (*store.Session, error) {
	query := `
		SELECT id, user_id, refresh_token_hash, csrf_token_hash, expires_at, revoked_at, last_used_at, created_at, ip, user_agent
		FROM auth_sessions
		WHERE refresh_token_hash = $1
	`
	var (
		s       store.Session
		revoked sql.NullTime
	)
	err := r.db.QueryRowContext(ctx, query, hash).Scan(
		&s.ID, &s.UserID, &s.RefreshTokenHash, &s.CSRFTokenHash, &s.ExpiresAt, &revoked, &s.LastUsedAt, &s.CreatedAt, &s.IP, &s.UserAgent)
	if err != nil {
		return nil, mapErr(err)
	}
	s.RevokedAt = timeOrNil(revoked)
	return &s, nil
}

func (r *sessionRepo) Rotate(ctx context.Context, id, expected, newRefreshHash, newCSRFHash string, at time.Time) error {
	query := `
		UPDATE auth_sessions
		SET refresh_token_hash = $3, csrf_token_hash = $4, last_used_at = $5
		WHERE id = $1 AND refresh_token_hash = $2 AND revoked_at IS NULL
	`
	res, err := r.db.ExecContext(ctx, query, id, expected, newRefreshHash, newCSRFHash, at)
	return expectOne(res, err, store.ErrConflict)
}

func (r *sessionRepo) RotateCSRF(ctx context.Context, id, expected, newCSRFHash string, at time.Time) error {
	query := `
		UPDATE auth_sessions
		SET csrf_token_hash = $3, last_used_at = $4
		WHERE id = $1 AND refresh_token_hash = $2 AND revoked_at IS NULL
	`
	res, err := r.db.ExecContext(ctx, query, id, expected, newCSRFHash, at)
	return expectOne(res, err, store.ErrConflict)
}

func (r *sessionRepo) Revoke(ctx context.Context, id string, at time.Time) error {
	query := `
		UPDATE auth_sessions
		SET revoked_at = COALESCE(revoked_at, $2), last_used_at = $2
		WHERE id = $1
	`
	res, err := r.db.ExecContext(ctx, query, id, at)
	return expectOne(res, err, store.ErrNotFound)
}

func (r *sessionRepo) RevokeAllForUser(ctx context.Context, userID string, at time.Time) (int, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE auth_sessions SET revoked_at = $2 WHERE user_id = $1 AND revoked_at IS NULL`, userID, at)
	if err != nil {
		return 0, fmt.Errorf("revoke sessions: %w", err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (r *sessionRepo) CountActive(ctx context.Context, now time.Time) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM auth_sessions WHERE revoked_at IS NULL AND expires_at > $1`, now).Scan(&n)
	return n, mapErr(err)
}
