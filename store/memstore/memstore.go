// Package memstore is an in-process store.Store used by tests and local development.
// Transactions hold a single mutex and restore a snapshot on rollback.
package memstore

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/MrEthical07/jobAuth/store"
)

// ErrClosed is returned by every operation after Close.
var ErrClosed = errors.New("memstore: closed")

type state struct {
	users         map[string]store.User
	userByEmail   map[string]string
	sessions      map[string]store.Session
	sessionByHash map[string]string
	tokens        map[string]store.OneTimeToken
	tokenByHash   map[string]string
	security      map[string]store.UserSecurity
	audit         []store.AuditEntry
}

func newState() *state {
	return &state{
		users:         map[string]store.User{},
		userByEmail:   map[string]string{},
		sessions:      map[string]store.Session{},
		sessionByHash: map[string]string{},
		tokens:        map[string]store.OneTimeToken{},
		tokenByHash:   map[string]string{},
		security:      map[string]store.UserSecurity{},
	}
}

// clone copies maps by value; pointer fields inside records are never mutated in
// place, they are replaced, so sharing them between snapshots is safe.
func (s *state) clone() *state {
	c := &state{
		users:         make(map[string]store.User, len(s.users)),
		userByEmail:   make(map[string]string, len(s.userByEmail)),
		sessions:      make(map[string]store.Session, len(s.sessions)),
		sessionByHash: make(map[string]string, len(s.sessionByHash)),
		tokens:        make(map[string]store.OneTimeToken, len(s.tokens)),
		tokenByHash:   make(map[string]string, len(s.tokenByHash)),
		security:      make(map[string]store.UserSecurity, len(s.security)),
		audit:         append([]store.AuditEntry(nil), s.audit...),
	}
	for k, v := range s.users {
		c.users[k] = v
	}
	for k, v := range s.userByEmail {
		c.userByEmail[k] = v
	}
	for k, v := range s.sessions {
		c.sessions[k] = v
	}
	for k, v := range s.sessionByHash {
		c.sessionByHash[k] = v
	}
	for k, v := range s.tokens {
		c.tokens[k] = v
	}
	for k, v := range s.tokenByHash {
		c.tokenByHash[k] = v
	}
	for k, v := range s.security {
		c.security[k] = v
	}
	return c
}

// Store is a mutex guarded in-memory store.Store.
type Store struct {
	mu     sync.Mutex
	st     *state
	closed bool
}

// New returns an empty store.
func New() *Store {
	return &Store{st: newState()}
}

type view struct {
	m    *Store
	inTx bool
}

func (v view) do(fn func(st *state) error) error {
	if !v.inTx {
		v.m.mu.Lock()
		defer v.m.mu.Unlock()
	}
	if v.m.closed {
		return ErrClosed
	}
	return fn(v.m.st)
}

type repos struct{ v view }

func (r repos) Users() store.UserRepository { return users{r.v} }
func (r repos) Sessions() store.SessionRepository { return sessions{r.v} }
func (r repos) Security() store.SecurityRepository { return security{r.v} }
func (r repos) AuditLogs() store.AuditRepository { return auditLogs{r.v} }
func (r repos) Tokens(kind store.TokenKind) store.TokenRepository {
	return tokens{v: r.v, kind: kind}
}

func (m *Store) Users() store.UserRepository { return repos{view{m: m}}.Users() }
func (m *Store) Sessions() store.SessionRepository { return repos{view{m: m}}.Sessions() }
func (m *Store) Security() store.SecurityRepository { return repos{view{m: m}}.Security() }
func (m *Store) AuditLogs() store.AuditRepository { return repos{view{m: m}}.AuditLogs() }
func (m *Store) Tokens(kind store.TokenKind) store.TokenRepository {
	return repos{view{m: m}}.Tokens(kind)
}

// WithTx serializes fn against every other store call and restores the pre-call state
// when fn returns an error or panics.
func (m *Store) WithTx(ctx context.Context, fn func(ctx context.Context, tx store.Repositories) error) (err error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	snapshot := m.st.clone()
	committed := false
	defer func() {
		if !committed {
			m.st = snapshot
		}
		m.mu.Unlock()
	}()

	if err = ctx.Err(); err != nil {
		return err
	}
	if err = fn(ctx, repos{view{m: m, inTx: true}}); err != nil {
		return err
	}
	committed = true
	return nil
}

// Close marks the store closed.
func (m *Store) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func timePtr(t time.Time) *time.Time {
	return &t
}

type users struct{ v view }

func (r users) Create(_ context.Context, u *store.User) error {
	return r.v.do(func(st *state) error {
		email := store.NormalizeEmail(u.Email)
		if _, ok := st.userByEmail[email]; ok {
			return store.ErrDuplicate
		}
		if _, ok := st.users[u.ID]; ok {
			return store.ErrDuplicate
		}
		rec := *u
		rec.Email = email
		st.users[rec.ID] = rec
		st.userByEmail[email] = rec.ID
		return nil
	})
}

func (r users) GetByID(_ context.Context, id string) (*store.User, error) {
	var out *store.User
	err := r.v.do(func(st *state) error {
		u, ok := st.users[id]
		if !ok {
			return store.ErrNotFound
		}
		out = &u
		return nil
	})
	return out, err
}

func (r users) GetByEmail(_ context.Context, email string) (*store.User, error) {
	var out *store.User
	err := r.v.do(func(st *state) error {
		id, ok := st.userByEmail[store.NormalizeEmail(email)]
		if !ok {
			return store.ErrNotFound
		}
		u := st.users[id]
		out = &u
		return nil
	})
	return out, err
}

func (r users) UpdatePasswordHash(_ context.Context, id, hash string, at time.Time) error {
	return r.v.do(func(st *state) error {
		u, ok := st.users[id]
		if !ok {
			return store.ErrNotFound
		}
		u.PasswordHash = hash
		u.UpdatedAt = at
		st.users[id] = u
		return nil
	})
}

func (r users) MarkEmailVerified(_ context.Context, id string, at time.Time) error {
	return r.v.do(func(st *state) error {
		u, ok := st.users[id]
		if !ok {
			return store.ErrNotFound
		}
		u.EmailVerifiedAt = timePtr(at)
		u.UpdatedAt = at
		st.users[id] = u
		return nil
	})
}

type sessions struct{ v view }

func (r sessions) Create(_ context.Context, s *store.Session) error {
	return r.v.do(func(st *state) error {
		if _, ok := st.sessionByHash[s.RefreshTokenHash]; ok {
			return store.ErrDuplicate
		}
		st.sessions[s.ID] = *s
		st.sessionByHash[s.RefreshTokenHash] = s.ID
		return nil
	})
}

func (r sessions) GetByRefreshHash(_ context.Context, hash string) (*store.Session, error) {
	var out *store.Session
	err := r.v.do(func(st *state) error {
		id, ok := st.sessionByHash[hash]
		if !ok {
			return store.ErrNotFound
		}
		s := st.sessions[id]
		out = &s
		return nil
	})
	return out, err
}

func (r sessions) Rotate(_ context.Context, id, expected, newRefreshHash, newCSRFHash string, at time.Time) error {
	return r.v.do(func(st *state) error {
		s, ok := st.sessions[id]
		if !ok || s.RefreshTokenHash != expected || s.RevokedAt != nil {
			return store.ErrConflict
		}
		if _, taken := st.sessionByHash[newRefreshHash]; taken {
			return store.ErrDuplicate
		}
		delete(st.sessionByHash, s.RefreshTokenHash)
		s.RefreshTokenHash = newRefreshHash
		s.CSRFTokenHash = newCSRFHash
		s.LastUsedAt = at
		st.sessions[id] = s
		st.sessionByHash[newRefreshHash] = id
		return nil
	})
}

func (r sessions) RotateCSRF(_ context.Context, id, expected, newCSRFHash string, at time.Time) error {
	return r.v.do(func(st *state) error {
		s, ok := st.sessions[id]
		if !ok || s.RefreshTokenHash != expected || s.RevokedAt != nil {
			return store.ErrConflict
		}
		s.CSRFTokenHash = newCSRFHash
		s.LastUsedAt = at
		st.sessions[id] = s
		return nil
	})
}

func (r sessions) Revoke(_ context.Context, id string, at time.Time) error {
	return r.v.do(func(st *state) error {
		s, ok := st.sessions[id]
		if !ok {
			return store.ErrNotFound
		}
		if s.RevokedAt == nil {
			s.RevokedAt = timePtr(at)
		}
		s.LastUsedAt = at
		st.sessions[id] = s
		return nil
	})
}

func (r sessions) RevokeAllForUser(_ context.Context, userID string, at time.Time) (int, error) {
	n := 0
	err := r.v.do(func(st *state) error {
		for id, s := range st.sessions {
			if s.UserID != userID || s.RevokedAt != nil {
				continue
			}
			s.RevokedAt = timePtr(at)
			st.sessions[id] = s
			n++
		}
		return nil
	})
	return n, err
}

func (r sessions) CountActive(_ context.Context, now time.Time) (int, error) {
	n := 0
	err := r.v.do(func(st *state) error {
		for _, s := range st.sessions {
			if s.Active(now) {
				n++
			}
		}
		return nil
	})
	return n, err
}

type tokens struct {
	v    view
	kind store.TokenKind
}

func (r tokens) InvalidateForUser(_ context.Context, userID string, at time.Time) (int, error) {
	n := 0
	err := r.v.do(func(st *state) error {
		for id, t := range st.tokens {
			if t.Kind != r.kind || t.UserID != userID || t.ConsumedAt != nil {
				continue
			}
			t.ConsumedAt = timePtr(at)
			st.tokens[id] = t
			n++
		}
		return nil
	})
	return n, err
}

func (r tokens) Create(_ context.Context, t *store.OneTimeToken) error {
	return r.v.do(func(st *state) error {
		if _, ok := st.tokenByHash[t.TokenHash]; ok {
			return store.ErrDuplicate
		}
		rec := *t
		rec.Kind = r.kind
		st.tokens[rec.ID] = rec
		st.tokenByHash[rec.TokenHash] = rec.ID
		return nil
	})
}

func (r tokens) GetByHash(_ context.Context, hash string) (*store.OneTimeToken, error) {
	var out *store.OneTimeToken
	err := r.v.do(func(st *state) error {
		id, ok := st.tokenByHash[hash]
		if !ok {
			return store.ErrNotFound
		}
		t := st.tokens[id]
		if t.Kind != r.kind {
			return store.ErrNotFound
		}
		out = &t
		return nil
	})
	return out, err
}

func (r tokens) Consume(_ context.Context, id string, at time.Time) error {
	return r.v.do(func(st *state) error {
		t, ok := st.tokens[id]
		if !ok || t.Kind != r.kind || t.ConsumedAt != nil {
			return store.ErrConflict
		}
		t.ConsumedAt = timePtr(at)
		st.tokens[id] = t
		return nil
	})
}

type security struct{ v view }

func (r security) Get(_ context.Context, userID string) (*store.UserSecurity, error) {
	var out *store.UserSecurity
	err := r.v.do(func(st *state) error {
		s, ok := st.security[userID]
		if !ok {
			return store.ErrNotFound
		}
		out = &s
		return nil
	})
	return out, err
}

func (r security) GetForUpdate(ctx context.Context, userID string) (*store.UserSecurity, error) {
	return r.Get(ctx, userID)
}

func (r security) Ensure(_ context.Context, userID string, at time.Time) error {
	return r.v.do(func(st *state) error {
		if _, ok := st.security[userID]; !ok {
			st.security[userID] = store.UserSecurity{UserID: userID, UpdatedAt: at}
		}
		return nil
	})
}

func (r security) Upsert(_ context.Context, s *store.UserSecurity) error {
	return r.v.do(func(st *state) error {
		st.security[s.UserID] = *s
		return nil
	})
}

func (r security) ListLocked(_ context.Context) ([]store.UserSecurity, error) {
	var out []store.UserSecurity
	err := r.v.do(func(st *state) error {
		for _, s := range st.security {
			if s.IsLocked {
				out = append(out, s)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, err
}

func (r security) Counts(_ context.Context) (store.SecurityCounts, error) {
	var c store.SecurityCounts
	err := r.v.do(func(st *state) error {
		for _, s := range st.security {
			if s.IsLocked {
				c.LockedAccounts++
				if s.LockoutUntil == nil {
					c.ManualLocks++
				}
			}
			if s.ForcePasswordReset {
				c.PendingForcedResets++
			}
		}
		return nil
	})
	return c, err
}

type auditLogs struct{ v view }

func (r auditLogs) Append(_ context.Context, e *store.AuditEntry) error {
	return r.v.do(func(st *state) error {
		rec := *e
		if e.Metadata != nil {
			rec.Metadata = make(map[string]string, len(e.Metadata))
			for k, v := range e.Metadata {
				rec.Metadata[k] = v
			}
		}
		st.audit = append(st.audit, rec)
		return nil
	})
}

func (r auditLogs) List(_ context.Context, f store.AuditFilter) ([]store.AuditEntry, error) {
	var out []store.AuditEntry
	err := r.v.do(func(st *state) error {
		for i := len(st.audit) - 1; i >= 0; i-- {
			e := st.audit[i]
			if f.UserID != "" && e.UserID != f.UserID {
				continue
			}
			if f.EventType != "" && e.EventType != f.EventType {
				continue
			}
			if !f.Since.IsZero() && e.CreatedAt.Before(f.Since) {
				continue
			}
			out = append(out, e)
			if f.Limit > 0 && len(out) == f.Limit {
				break
			}
		}
		return nil
	})
	return out, err
}

func (r auditLogs) CountSince(_ context.Context, eventType string, since time.Time) (int, error) {
	n := 0
	err := r.v.do(func(st *state) error {
		for _, e := range st.audit {
			if e.EventType == eventType && !e.CreatedAt.Before(since) {
				n++
			}
		}
		return nil
	})
	return n, err
}

var _ store.Store = (*Store)(nil)
