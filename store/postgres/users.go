package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/MrEthical07/jobAuth/store"
)

type userRepo struct {
	db DBTX
}

const userColumns = `id, email, password_hash, name, email_verified_at, created_at, updated_at`

func (r *userRepo) Create(ctx context.Context, u *store.User) error {
	query := `
		INSERT INTO users (` + userColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := r.db.ExecContext(ctx, query,
		u.ID, store.NormalizeEmail(u.Email), u.PasswordHash, u.Name, nullTime(u.EmailVerifiedAt), u.CreatedAt, u.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert user: %w", mapErr(err))
	}
	return nil
}

func (r *userRepo) GetByID(ctx context.Context, id string) (*store.User, error) {
	return r.get(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
}

func (r *userRepo) GetByEmail(ctx context.Context, email string) (*store.User, error) {
	return r.get(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, store.NormalizeEmail(email))
}

func (r *userRepo) get(ctx context.Context, query string, arg string) (*store.User, error) {
	var (
		u        store.User
		verified sql.NullTime
	)
	err := r.db.QueryRowContext(ctx, query, arg).
		Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Name, &verified, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, mapErr(err)
	}
	u.EmailVerifiedAt = timeOrNil(verified)
	return &u, nil
}

func (r *userRepo) UpdatePasswordHash(ctx context.Context, id, hash string, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `UPDATE users SET password_hash = $2, updated_at = $3 WHERE id = $1`, id, hash, at)
	return expectOne(res, err, store.ErrNotFound)
}

func (r *userRepo) MarkEmailVerified(ctx context.Context, id string, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `UPDATE users SET email_verified_at = $2, updated_at = $2 WHERE id = $1`, id, at)
	return expectOne(res, err, store.ErrNotFound)
}
