package jobAuth

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/MrEthical07/jobAuth/store/memstore"
)

func TestBuildRequiresSigningSecret(t *testing.T) {
	cfg := testConfig()
	cfg.JWT.PrivateKey = nil

	_, err := New().WithConfig(cfg).WithStore(memstore.New()).Build()
	if !errors.Is(err, ErrMissingSecret) {
		t.Fatalf("expected ErrMissingSecret, got %v", err)
	}
	if KindOf(err) != KindMissingSecret {
		t.Fatalf("expected missing_secret kind, got %s", KindOf(err))
	}
}

func TestBuildRequiresStore(t *testing.T) {
	if _, err := New().WithConfig(testConfig()).Build(); err == nil {
		t.Fatal("expected error without store")
	}
}

func TestBuilderSingleUse(t *testing.T) {
	b := New().WithConfig(testConfig()).WithStore(memstore.New())
	e, err := b.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer e.Close()
	if _, err := b.Build(); err == nil {
		t.Fatal("expected second Build to fail")
	}
}

func TestRegisterIssuesSession(t *testing.T) {
	env := newTestEnv(t, testOptions{})

	resp := env.register(t, "  Alice@Example.com ")
	if resp.User.Email != testEmail {
		t.Fatalf("expected normalized email, got %q", resp.User.Email)
	}
	if resp.User.EmailVerified {
		t.Fatal("new account must not be verified")
	}
	if resp.AccessToken == "" || resp.RefreshToken == "" || resp.CSRFToken == "" {
		t.Fatalf("missing tokens in %+v", resp)
	}

	id, err := env.engine.ValidateAccess(context.Background(), resp.AccessToken)
	if err != nil {
		t.Fatalf("ValidateAccess: %v", err)
	}
	if id.UserID != resp.User.ID || id.Email != testEmail {
		t.Fatalf("unexpected identity %+v", id)
	}
}

func TestRegisterCreatesSecurityRecord(t *testing.T) {
	env := newTestEnv(t, testOptions{})
	resp := env.register(t, testEmail)

	sec, err := env.store.Security().Get(context.Background(), resp.User.ID)
	if err != nil {
		t.Fatalf("security record should exist after Register: %v", err)
	}
	if sec.LockoutCount != 0 || sec.IsLocked {
		t.Fatalf("unexpected record %+v", sec)
	}
}

func TestRegisterDuplicateEmail(t *testing.T) {
	env := newTestEnv(t, testOptions{})
	env.register(t, testEmail)

	_, err := env.engine.Register(context.Background(), RegisterRequest{Email: "ALICE@example.com", Password: testPassword})
	if !errors.Is(err, ErrEmailInUse) {
		t.Fatalf("expected ErrEmailInUse, got %v", err)
	}
	if got := env.engine.MetricsSnapshot().Counters[MetricRegisterDuplicate]; got != 1 {
		t.Fatalf("expected duplicate counter 1, got %d", got)
	}
}

func TestRegisterRejectsBadInput(t *testing.T) {
	env := newTestEnv(t, testOptions{})
	ctx := context.Background()

	if _, err := env.engine.Register(ctx, RegisterRequest{Email: "not-an-email", Password: testPassword}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	_, err := env.engine.Register(ctx, RegisterRequest{Email: testEmail, Password: "short"})
	if !errors.Is(err, ErrPasswordPolicy) {
		t.Fatalf("expected ErrPasswordPolicy, got %v", err)
	}
	if HTTPStatus(err) != 400 {
		t.Fatalf("expected 400, got %d", HTTPStatus(err))
	}
}

func TestLoginDoesNotRevealAccounts(t *testing.T) {
	env := newTestEnv(t, testOptions{})
	env.register(t, testEmail)
	ctx := context.Background()

	_, unknown := env.engine.Login(ctx, "nobody@example.com", testPassword)
	_, wrong := env.engine.Login(ctx, testEmail, "wrong-password-123")

	if !errors.Is(unknown, ErrInvalidCredentials) || !errors.Is(wrong, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for both, got %v and %v", unknown, wrong)
	}
	if unknown.Error() != wrong.Error() {
		t.Fatalf("error messages differ: %q vs %q", unknown, wrong)
	}
}

func TestLoginSuccess(t *testing.T) {
	env := newTestEnv(t, testOptions{})
	env.register(t, testEmail)

	resp, err := env.engine.Login(ipContext("203.0.113.7"), testEmail, testPassword)
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if resp.SessionID == "" {
		t.Fatal("expected a session id")
	}
	if got := env.engine.MetricsSnapshot().Counters[MetricLoginSuccess]; got != 1 {
		t.Fatalf("expected login success counter 1, got %d", got)
	}
}

func TestRefreshRotatesTokens(t *testing.T) {
	env := newTestEnv(t, testOptions{})
	ctx := context.Background()
	first := env.register(t, testEmail)

	second, err := env.engine.Refresh(ctx, first.RefreshToken, first.CSRFToken)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if second.RefreshToken == first.RefreshToken || second.CSRFToken == first.CSRFToken {
		t.Fatal("refresh must rotate both tokens")
	}

	if _, err := env.engine.Refresh(ctx, first.RefreshToken, first.CSRFToken); !errors.Is(err, ErrInvalidSession) {
		t.Fatalf("expected ErrInvalidSession for rotated token, got %v", err)
	}
	if _, err := env.engine.Refresh(ctx, second.RefreshToken, first.CSRFToken); !errors.Is(err, ErrInvalidCsrf) {
		t.Fatalf("expected ErrInvalidCsrf for stale csrf, got %v", err)
	}
	third, err := env.engine.Refresh(ctx, second.RefreshToken, second.CSRFToken)
	if err != nil {
		t.Fatalf("Refresh with current tokens: %v", err)
	}
	if _, err := env.engine.ValidateAccess(ctx, third.AccessToken); err != nil {
		t.Fatalf("rotated access token invalid: %v", err)
	}
}

func TestRefreshConcurrencySingleWinner(t *testing.T) {
	env := newTestEnv(t, testOptions{})
	resp := env.register(t, testEmail)

	const n = 16
	var wg sync.WaitGroup
	results := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.engine.Refresh(context.Background(), resp.RefreshToken, resp.CSRFToken)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	success := 0
	for err := range results {
		if err == nil {
			success++
			continue
		}
		if !errors.Is(err, ErrInvalidSession) {
			t.Fatalf("unexpected refresh error: %v", err)
		}
	}
	if success != 1 {
		t.Fatalf("expected exactly one refresh success, got %d", success)
	}
}

func TestLogout(t *testing.T) {
	env := newTestEnv(t, testOptions{})
	ctx := context.Background()
	resp := env.register(t, testEmail)

	if err := env.engine.Logout(ctx, "", ""); err != nil {
		t.Fatalf("logout without session: %v", err)
	}
	if err := env.engine.Logout(ctx, resp.RefreshToken, "wrong"); !errors.Is(err, ErrInvalidCsrf) {
		t.Fatalf("expected ErrInvalidCsrf, got %v", err)
	}
	if err := env.engine.Logout(ctx, resp.RefreshToken, resp.CSRFToken); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if _, err := env.engine.Refresh(ctx, resp.RefreshToken, resp.CSRFToken); !errors.Is(err, ErrInvalidSession) {
		t.Fatalf("expected revoked session, got %v", err)
	}
	if err := env.engine.Logout(ctx, resp.RefreshToken, resp.CSRFToken); err != nil {
		t.Fatalf("second logout should be a no-op, got %v", err)
	}
}

func TestBootstrapCSRF(t *testing.T) {
	env := newTestEnv(t, testOptions{})
	ctx := context.Background()
	resp := env.register(t, testEmail)

	csrf, err := env.engine.BootstrapCSRF(ctx, resp.RefreshToken)
	if err != nil {
		t.Fatalf("BootstrapCSRF: %v", err)
	}
	if csrf == "" || csrf == resp.CSRFToken {
		t.Fatalf("expected a fresh csrf token, got %q", csrf)
	}
	if _, err := env.engine.Refresh(ctx, resp.RefreshToken, resp.CSRFToken); !errors.Is(err, ErrInvalidCsrf) {
		t.Fatalf("old csrf should be replaced, got %v", err)
	}
	if _, err := env.engine.Refresh(ctx, resp.RefreshToken, csrf); err != nil {
		t.Fatalf("refresh with bootstrapped csrf: %v", err)
	}

	none, err := env.engine.BootstrapCSRF(ctx, "unknown")
	if err != nil || none != "" {
		t.Fatalf("expected empty token without session, got %q, %v", none, err)
	}
}

func TestValidateAccessRejectsGarbage(t *testing.T) {
	env := newTestEnv(t, testOptions{})
	if _, err := env.engine.ValidateAccess(context.Background(), "not.a.jwt"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestSafeAuthResponseOmitsRefreshToken(t *testing.T) {
	env := newTestEnv(t, testOptions{})
	resp := env.register(t, testEmail)

	raw, err := json.Marshal(ToSafeAuthResponse(resp))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	body := string(raw)
	if strings.Contains(body, resp.RefreshToken) || strings.Contains(strings.ToLower(body), "refresh") {
		t.Fatalf("refresh token leaked: %s", body)
	}
	if strings.Contains(strings.ToLower(body), "expiresat") {
		t.Fatalf("expiry leaked: %s", body)
	}
	if !strings.Contains(body, resp.CSRFToken) || !strings.Contains(body, resp.AccessToken) {
		t.Fatalf("expected access and csrf tokens in %s", body)
	}
	if strings.Contains(strings.ToLower(body), "hash") {
		t.Fatalf("password hash leaked: %s", body)
	}
}

func TestGetUser(t *testing.T) {
	env := newTestEnv(t, testOptions{})
	resp := env.register(t, testEmail)

	u, err := env.engine.GetUser(context.Background(), resp.User.ID)
	if err != nil {
		t.Fatalf("GetUser: %v", err)
	}
	if u.Email != testEmail {
		t.Fatalf("unexpected user %+v", u)
	}
	if _, err := env.engine.GetUser(context.Background(), "missing"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestAuditTrailRecordsRegisterAndLogin(t *testing.T) {
	env := newTestEnv(t, testOptions{})
	resp := env.register(t, testEmail)
	if _, err := env.engine.Login(ipContext("198.51.100.4"), testEmail, testPassword); err != nil {
		t.Fatalf("Login: %v", err)
	}

	events, err := env.engine.GetAuditLogs(context.Background(), AuditQuery{UserID: resp.User.ID})
	if err != nil {
		t.Fatalf("GetAuditLogs: %v", err)
	}
	if len(events) == 0 || events[0].EventType != "login_success" {
		t.Fatalf("expected newest event login_success, got %+v", events)
	}
	if events[0].IP != "198.51.100.4" {
		t.Fatalf("expected client IP on audit event, got %q", events[0].IP)
	}
	found := false
	for _, ev := range events {
		if ev.EventType == "register" {
			found = true
		}
	}
	if !found {
		t.Fatal("register event missing")
	}
}
