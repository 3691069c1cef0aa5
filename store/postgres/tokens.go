package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/MrEthical07/jobAuth/store"
)

type tokenRepo struct {
	db   DBTX
	kind store.TokenKind
}

func (r *tokenRepo) InvalidateForUser(ctx context.Context, userID string, at time.Time) (int, error) {
	query := `
		UPDATE one_time_tokens
		SET consumed_at = $3
		WHERE user_id = $1 AND kind = $2 AND consumed_at IS NULL
	`
	res, err := r.db.ExecContext(ctx, query, userID, string(r.kind), at)
	if err != nil {
		return 0, fmt.Errorf("invalidate tokens: %w", err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (r *tokenRepo) Create(ctx context.Context, t *store.OneTimeToken) error {
	query := `
		INSERT INTO one_time_tokens (id, user_id, kind, token_hash, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	if _, err := r.db.ExecContext(ctx, query, t.ID, t.UserID, string(r.kind), t.TokenHash, t.ExpiresAt, t.CreatedAt); err != nil {
		return fmt.Errorf("insert token: %w", mapErr(err))
	}
	return nil
}

func (r *tokenRepo) GetByHash(ctx context.Context, hash string) (*store.OneTimeToken, error) {
	query := `
		SELECT id, user_id, token_hash, expires_at, consumed_at, created_at
		FROM one_time_tokens
		WHERE token_hash = $1 AND kind = $2
	`
	var (
		t        store.OneTimeToken
		consumed sql.NullTime
	)
	err := r.db.QueryRowContext(ctx, query, hash, string(r.kind)).
		Scan(&t.ID, &t.UserID, &t.TokenHash, &t.ExpiresAt, &consumed, &t.CreatedAt)
	if err != nil {
		return nil, mapErr(err)
	}
	t.Kind = r.kind
	t.ConsumedAt = timeOrNil(consumed)
	return &t, nil
}

func (r *tokenRepo) Consume(ctx context.Context, id string, at time.Time) error {
	query := `
		UPDATE one_time_tokens
		SET consumed_at = $3
		WHERE id = $1 AND kind = $2 AND consumed_at IS NULL
	`
	res, err := r.db.ExecContext(ctx, query, id, string(r.kind), at)
	return expectOne(res, err, store.ErrConflict)
}
