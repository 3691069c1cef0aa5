package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/jobAuth/internal/autherr"
	"github.com/MrEthical07/jobAuth/jwt"
	"github.com/MrEthical07/jobAuth/store"
	"github.com/MrEthical07/jobAuth/store/memstore"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestManager(t *testing.T) (*Manager, *memstore.Store, *testClock) {
	t.Helper()
	st := memstore.New()
	if err := st.Users().Create(context.Background(), &store.User{ID: "u1", Email: "a@example.com"}); err != nil {
		t.Fatalf("seed user: %v", err)
	}
	signer, err := jwt.NewManager(jwt.Config{PrivateKey: []byte("0123456789abcdef0123456789abcdef")})
	if err != nil {
		t.Fatalf("jwt manager: %v", err)
	}
	clock := &testClock{now: time.Now()}
	return NewManager(st, signer, Config{Now: clock.Now}), st, clock
}

func TestCreatePersistsOnlyHashes(t *testing.T) {
	m, st, clock := newTestManager(t)
	ctx := context.Background()

	issued, err := m.Create(ctx, nil, "u1", Client{IP: "10.0.0.1"})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if !issued.ExpiresAt.Equal(clock.Now().Add(DefaultTTL)) {
		t.Fatalf("expected 30 day expiry, got %v", issued.ExpiresAt)
	}
	if _, err := st.Sessions().GetByRefreshHash(ctx, issued.RefreshToken); !errors.Is(err, store.ErrNotFound) {
		t.Fatal("raw refresh token must not be a lookup key")
	}
	s, err := m.GetActive(ctx, issued.RefreshToken)
	if err != nil || s == nil {
		t.Fatalf("expected active session, got %v err=%v", s, err)
	}
	if s.RefreshTokenHash == issued.RefreshToken || s.CSRFTokenHash == issued.CSRFToken {
		t.Fatal("raw tokens leaked into storage")
	}
}

func TestMultipleSessionsCoexist(t *testing.T) {
	m, _, _ := newTestManager(t)
	ctx := context.Background()

	a, _ := m.Create(ctx, nil, "u1", Client{})
	b, _ := m.Create(ctx, nil, "u1", Client{})

	for _, tok := range []string{a.RefreshToken, b.RefreshToken} {
		if s, _ := m.GetActive(ctx, tok); s == nil {
			t.Fatal("expected both sessions to stay active")
		}
	}
}

func TestRefreshRotationInvariant(t *testing.T) {
	m, _, _ := newTestManager(t)
	ctx := context.Background()

	issued, err := m.Create(ctx, nil, "u1", Client{})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	seen := []string{issued.RefreshToken}
	refresh, csrf := issued.RefreshToken, issued.CSRFToken
	for i := 0; i < 5; i++ {
		rot, err := m.Refresh(ctx, refresh, csrf)
		if err != nil {
			t.Fatalf("Refresh %d failed: %v", i, err)
		}
		if rot.AccessToken == "" || rot.UserID != "u1" {
			t.Fatalf("unexpected rotation %+v", rot)
		}
		refresh, csrf = rot.RefreshToken, rot.CSRFToken
		seen = append(seen, refresh)
	}

	for i, tok := range seen {
		s, err := m.GetActive(ctx, tok)
		if err != nil {
			t.Fatalf("GetActive failed: %v", err)
		}
		latest := i == len(seen)-1
		if latest && s == nil {
			t.Fatal("latest refresh token must be active")
		}
		if !latest && s != nil {
			t.Fatalf("refresh token %d must be rejected after rotation", i)
		}
	}
}

func TestRefreshRejectsBadCSRFAndInactive(t *testing.T) {
	m, _, clock := newTestManager(t)
	ctx := context.Background()

	issued, _ := m.Create(ctx, nil, "u1", Client{})

	if _, err := m.Refresh(ctx, issued.RefreshToken, "wrong"); !errors.Is(err, autherr.ErrInvalidCsrf) {
		t.Fatalf("expected ErrInvalidCsrf, got %v", err)
	}
	if _, err := m.Refresh(ctx, "unknown", issued.CSRFToken); !errors.Is(err, autherr.ErrInvalidSession) {
		t.Fatalf("expected ErrInvalidSession, got %v", err)
	}

	clock.Advance(DefaultTTL + time.Second)
	if _, err := m.Refresh(ctx, issued.RefreshToken, issued.CSRFToken); !errors.Is(err, autherr.ErrInvalidSession) {
		t.Fatalf("expected expired session to be invalid, got %v", err)
	}
}

func TestConcurrentRefreshOnlyOneWins(t *testing.T) {
	m, _, _ := newTestManager(t)
	ctx := context.Background()
	issued, _ := m.Create(ctx, nil, "u1", Client{})

	const racers = 8
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		success int
	)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := m.Refresh(ctx, issued.RefreshToken, issued.CSRFToken)
			if err == nil {
				mu.Lock()
				success++
				mu.Unlock()
				return
			}
			if !errors.Is(err, autherr.ErrInvalidSession) {
				t.Errorf("loser must fail with ErrInvalidSession, got %v", err)
			}
		}()
	}
	wg.Wait()

	if success != 1 {
		t.Fatalf("expected exactly one winning refresh, got %d", success)
	}
}

func TestLogoutIsIdempotentAndChecksCSRF(t *testing.T) {
	m, _, _ := newTestManager(t)
	ctx := context.Background()

	if _, err := m.Logout(ctx, "no-such-session", "anything"); err != nil {
		t.Fatalf("logout without session must succeed, got %v", err)
	}

	issued, _ := m.Create(ctx, nil, "u1", Client{})
	if _, err := m.Logout(ctx, issued.RefreshToken, "wrong"); !errors.Is(err, autherr.ErrInvalidCsrf) {
		t.Fatalf("expected ErrInvalidCsrf, got %v", err)
	}
	if _, err := m.Logout(ctx, issued.RefreshToken, issued.CSRFToken); err != nil {
		t.Fatalf("Logout failed: %v", err)
	}
	if s, _ := m.GetActive(ctx, issued.RefreshToken); s != nil {
		t.Fatal("session must be revoked after logout")
	}
	if _, err := m.Logout(ctx, issued.RefreshToken, issued.CSRFToken); err != nil {
		t.Fatalf("repeated logout must succeed, got %v", err)
	}
}

func TestBootstrapCSRFRotatesOnlyCSRF(t *testing.T) {
	m, _, clock := newTestManager(t)
	ctx := context.Background()

	issued, _ := m.Create(ctx, nil, "u1", Client{})
	clock.Advance(time.Hour)

	csrf, err := m.BootstrapCSRF(ctx, issued.RefreshToken)
	if err != nil || csrf == "" {
		t.Fatalf("expected fresh csrf, got %q err=%v", csrf, err)
	}

	s, _ := m.GetActive(ctx, issued.RefreshToken)
	if s == nil {
		t.Fatal("refresh token must still be active")
	}
	if !s.ExpiresAt.Equal(issued.ExpiresAt) {
		t.Fatal("bootstrap must not extend expiry")
	}
	if !s.LastUsedAt.Equal(clock.Now()) {
		t.Fatal("bootstrap must touch lastUsedAt")
	}

	if _, err := m.Refresh(ctx, issued.RefreshToken, issued.CSRFToken); !errors.Is(err, autherr.ErrInvalidCsrf) {
		t.Fatalf("old csrf must be rejected, got %v", err)
	}
	if _, err := m.Refresh(ctx, issued.RefreshToken, csrf); err != nil {
		t.Fatalf("new csrf must be accepted, got %v", err)
	}

	if got, err := m.BootstrapCSRF(ctx, "missing"); err != nil || got != "" {
		t.Fatalf("expected empty result without session, got %q err=%v", got, err)
	}
}

func TestRevokeAllForUser(t *testing.T) {
	m, st, _ := newTestManager(t)
	ctx := context.Background()

	a, _ := m.Create(ctx, nil, "u1", Client{})
	b, _ := m.Create(ctx, nil, "u1", Client{})

	err := st.WithTx(ctx, func(ctx context.Context, tx store.Repositories) error {
		n, err := m.RevokeAllForUser(ctx, tx, "u1")
		if n != 2 {
			t.Errorf("expected two sessions revoked, got %d", n)
		}
		return err
	})
	if err != nil {
		t.Fatalf("WithTx failed: %v", err)
	}
	for _, tok := range []string{a.RefreshToken, b.RefreshToken} {
		if s, _ := m.GetActive(ctx, tok); s != nil {
			t.Fatal("all sessions must be revoked")
		}
	}
}
