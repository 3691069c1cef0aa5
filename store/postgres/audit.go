package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/MrEthical07/jobAuth/store"
)

type auditRepo struct {
	db DBTX
}

func (r *auditRepo) Append(ctx context.Context, e *store.AuditEntry) error {
	var meta []byte
	if len(e.Metadata) > 0 {
		var err error
		if meta, err = json.Marshal(e.Metadata); err != nil {
			return fmt.Errorf("encode audit metadata: %w", err)
		}
	}
	query := `
		INSERT INTO audit_logs (id, event_type, user_id, actor_id, session_id, ip, success, error, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := r.db.ExecContext(ctx, query,
		e.ID, e.EventType, e.UserID, e.ActorID, e.SessionID, e.IP, e.Success, e.Error, meta, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

func (r *auditRepo) List(ctx context.Context, f store.AuditFilter) ([]store.AuditEntry, error) {
	var (
		where []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, strings.Replace(cond, "?", "$"+strconv.Itoa(len(args)), 1))
	}
	if f.UserID != "" {
		add("user_id = ?", f.UserID)
	}
	if f.EventType != "" {
		add("event_type = ?", f.EventType)
	}
	if !f.Since.IsZero() {
		add("created_at >= ?", f.Since)
	}

	query := `SELECT id, event_type, user_id, actor_id, session_id, ip, success, error, metadata, created_at FROM audit_logs`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC"
	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += " LIMIT $" + strconv.Itoa(len(args))
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list audit entries: %w", err)
	}
	defer rows.Close()

	var out []store.AuditEntry
	for rows.Next() {
		var (
			e    store.AuditEntry
			meta []byte
		)
		if err := rows.Scan(&e.ID, &e.EventType, &e.UserID, &e.ActorID, &e.SessionID, &e.IP, &e.Success, &e.Error, &meta, &e.CreatedAt); err != nil {
			return nil, err
		}
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &e.Metadata); err != nil {
				return nil, fmt.Errorf("decode audit metadata: %w", err)
			}
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *auditRepo) CountSince(ctx context.Context, eventType string, since time.Time) (int, error) {
	var n sql.NullInt64
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM audit_logs WHERE event_type = $1 AND created_at >= $2`, eventType, since).Scan(&n)
	if err != nil {
		return 0, err
	}
	return int(n.Int64), nil
}
