package flows

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/MrEthical07/jobAuth/internal/autherr"
	"github.com/MrEthical07/jobAuth/store"
	"github.com/MrEthical07/jobAuth/token"
)

// TokenConfig configures one token family.
type TokenConfig struct {
	Kind    store.TokenKind
	TTL     time.Duration
	ByteLen int
	Now     func() time.Time
}

// IssuedToken carries the raw token for the outbound email link.
type IssuedToken struct {
	Token       string
	ExpiresAt   time.Time
	Invalidated int
}

// TokenFlow issues and consumes tokens of a single kind.
type TokenFlow struct {
	kind    store.TokenKind
	ttl     time.Duration
	byteLen int
	now     func() time.Time
}

// NewTokenFlow validates cfg.
func NewTokenFlow(cfg TokenConfig) (*TokenFlow, error) {
	if !cfg.Kind.Valid() {
		return nil, fmt.Errorf("flows: unknown token kind %q", cfg.Kind)
	}
	if cfg.TTL <= 0 {
		return nil, errors.New("flows: token TTL must be positive")
	}
	if cfg.ByteLen == 0 {
		cfg.ByteLen = token.VerificationBytes
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &TokenFlow{kind: cfg.Kind, ttl: cfg.TTL, byteLen: cfg.ByteLen, now: cfg.Now}, nil
}

// Kind returns the token family.
func (f *TokenFlow) Kind() store.TokenKind {
	return f.kind
}

// TTL returns the token lifetime.
func (f *TokenFlow) TTL() time.Duration {
	return f.ttl
}

// Issue invalidates every usable token of this kind for userID and stores a new one.
func (f *TokenFlow) Issue(ctx context.Context, repos store.Repositories, userID string) (*IssuedToken, error) {
	raw, err := token.Generate(f.byteLen)
	if err != nil {
		return nil, fmt.Errorf("flows: generate %s token: %w", f.kind, err)
	}

	now := f.now()
	tokens := repos.Tokens(f.kind)

	n, err := tokens.InvalidateForUser(ctx, userID, now)
	if err != nil {
		return nil, fmt.Errorf("flows: invalidate prior %s tokens: %w", f.kind, err)
	}

	rec := &store.OneTimeToken{
		ID:        uuid.NewString(),
		UserID:    userID,
		Kind:      f.kind,
		TokenHash: token.Hash(raw),
		ExpiresAt: now.Add(f.ttl),
		CreatedAt: now,
	}
	if err := tokens.Create(ctx, rec); err != nil {
		return nil, fmt.Errorf("flows: store %s token: %w", f.kind, err)
	}

	return &IssuedToken{Token: raw, ExpiresAt: rec.ExpiresAt, Invalidated: n}, nil
}

// Resolve returns the usable token row for raw. Missing, expired and consumed tokens
// all yield autherr.ErrInvalidOrExpiredToken.
func (f *TokenFlow) Resolve(ctx context.Context, repos store.Repositories, raw string) (*store.OneTimeToken, error) {
	if raw == "" {
		return nil, autherr.ErrInvalidOrExpiredToken
	}
	t, err := repos.Tokens(f.kind).GetByHash(ctx, token.Hash(raw))
	if errors.Is(err, store.ErrNotFound) {
		return nil, autherr.ErrInvalidOrExpiredToken
	}
	if err != nil {
		return nil, fmt.Errorf("flows: lookup %s token: %w", f.kind, err)
	}
	if !t.Usable(f.now()) {
		return nil, autherr.ErrInvalidOrExpiredToken
	}
	return t, nil
}

// Consume resolves raw and marks it consumed. A concurrent consumer that got there
// first turns this call into autherr.ErrInvalidOrExpiredToken.
func (f *TokenFlow) Consume(ctx context.Context, repos store.Repositories, raw string) (*store.OneTimeToken, error) {
	t, err := f.Resolve(ctx, repos, raw)
	if err != nil {
		return nil, err
	}
	now := f.now()
	err = repos.Tokens(f.kind).Consume(ctx, t.ID, now)
	if errors.Is(err, store.ErrConflict) {
		return nil, autherr.ErrInvalidOrExpiredToken
	}
	if err != nil {
		return nil, fmt.Errorf("flows: consume %s token: %w", f.kind, err)
	}
	t.ConsumedAt = &now
	return t, nil
}
