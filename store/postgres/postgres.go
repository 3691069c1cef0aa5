// Package postgres implements store.Store on PostgreSQL through the pgx database/sql
// driver. Schema changes ship as embedded goose migrations.
package postgres

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/MrEthical07/jobAuth/store"
	"github.com/MrEthical07/jobAuth/store/postgres/migrations"
)

// Store is a PostgreSQL backed store.Store.
type Store struct {
	db *sql.DB
}

// Open connects with the pgx driver and verifies the connection.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return New(db), nil
}

// New wraps an existing *sql.DB.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// DB exposes the underlying handle for health checks.
func (s *Store) DB() *sql.DB {
	return s.db
}

// gooseUpContext is a seam for tests.
var gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
	return goose.UpContext(ctx, db, dir, opts...)
}

// Migrate applies the embedded migrations.
func (s *Store) Migrate(ctx context.Context) error {
	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect("pgx"); err != nil {
		return err
	}
	if err := gooseUpContext(ctx, s.db, "."); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

type repos struct{ db DBTX }

func (r repos) Users() store.UserRepository { return &userRepo{db: r.db} }
func (r repos) Sessions() store.SessionRepository { return &sessionRepo{db: r.db} }
func (r repos) Security() store.SecurityRepository { return &securityRepo{db: r.db} }
func (r repos) AuditLogs() store.AuditRepository { return &auditRepo{db: r.db} }
func (r repos) Tokens(kind store.TokenKind) store.TokenRepository {
	return &tokenRepo{db: r.db, kind: kind}
}

func (s *Store) Users() store.UserRepository { return repos{s.db}.Users() }
func (s *Store) Sessions() store.SessionRepository { return repos{s.db}.Sessions() }
func (s *Store) Security() store.SecurityRepository { return repos{s.db}.Security() }
func (s *Store) AuditLogs() store.AuditRepository { return repos{s.db}.AuditLogs() }
func (s *Store) Tokens(kind store.TokenKind) store.TokenRepository {
	return repos{s.db}.Tokens(kind)
}

// WithTx runs fn in a READ COMMITTED transaction. Lockout updates take row locks
// through SecurityRepository.GetForUpdate.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context, tx store.Repositories) error) error {
	return withTx(ctx, s.db, &sql.TxOptions{Isolation: sql.LevelReadCommitted}, func(ctx context.Context, tx DBTX) error {
		return fn(ctx, repos{tx})
	})
}

// Close closes the pool.
func (s *Store) Close() error {
	return s.db.Close()
}

var _ store.Store = (*Store)(nil)
