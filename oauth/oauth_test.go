package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"golang.org/x/oauth2"

	"github.com/MrEthical07/jobAuth/internal/autherr"
)

func newProviderServer(t *testing.T, userinfoPath string, userinfo map[string]any) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil || r.Form.Get("code") != "good-code" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"at-123","token_type":"Bearer","expires_in":3600}`))
	})
	mux.HandleFunc(userinfoPath, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer at-123" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(userinfo)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func testEndpoint(srv *httptest.Server) *oauth2.Endpoint {
	return &oauth2.Endpoint{
		AuthURL:   srv.URL + "/auth",
		TokenURL:  srv.URL + "/token",
		AuthStyle: oauth2.AuthStyleInParams,
	}
}

func TestGoogleExchange(t *testing.T) {
	srv := newProviderServer(t, "/oauth2/v2/userinfo", map[string]any{
		"id": "g-1", "email": "ann@example.com", "verified_email": true, "name": "Ann",
	})
	p := NewGoogleProvider(GoogleConfig{
		ClientID:     "cid",
		ClientSecret: "secret",
		RedirectURL:  "http://localhost/callback",
		Endpoint:     testEndpoint(srv),
		APIEndpoint:  srv.URL + "/",
	})

	id, err := p.ExchangeCode(context.Background(), "good-code")
	if err != nil {
		t.Fatalf("ExchangeCode: %v", err)
	}
	if id.Provider != "google" || id.Subject != "g-1" || id.Email != "ann@example.com" || !id.EmailVerified {
		t.Fatalf("unexpected identity %+v", id)
	}

	if _, err := p.ExchangeCode(context.Background(), "bad-code"); err == nil {
		t.Fatal("expected exchange failure")
	}
	if _, err := p.ExchangeCode(context.Background(), ""); !errors.Is(err, ErrMissingCode) {
		t.Fatalf("expected ErrMissingCode, got %v", err)
	}
}

func TestGoogleUnverifiedEmail(t *testing.T) {
	srv := newProviderServer(t, "/oauth2/v2/userinfo", map[string]any{
		"id": "g-2", "email": "bob@example.com", "verified_email": false,
	})
	p := NewGoogleProvider(GoogleConfig{ClientID: "cid", Endpoint: testEndpoint(srv), APIEndpoint: srv.URL + "/"})
	if _, err := p.ExchangeCode(context.Background(), "good-code"); !errors.Is(err, ErrUnverifiedEmail) {
		t.Fatalf("expected ErrUnverifiedEmail, got %v", err)
	}
}

func TestLinkedInExchange(t *testing.T) {
	srv := newProviderServer(t, "/v2/userinfo", map[string]any{
		"sub": "li-7", "email": "cy@example.com", "email_verified": true, "name": "Cy",
	})
	p := NewLinkedInProvider(LinkedInConfig{
		ClientID:    "cid",
		Endpoint:    testEndpoint(srv),
		UserinfoURL: srv.URL + "/v2/userinfo",
	})

	id, err := p.ExchangeCode(context.Background(), "good-code")
	if err != nil {
		t.Fatalf("ExchangeCode: %v", err)
	}
	if id.Provider != "linkedin" || id.Subject != "li-7" || id.Name != "Cy" {
		t.Fatalf("unexpected identity %+v", id)
	}
}

func TestRegistry(t *testing.T) {
	r := NewRegistry(NewGoogleProvider(GoogleConfig{}), NewLinkedInProvider(LinkedInConfig{}), nil)

	if _, err := r.Get("GOOGLE"); err != nil {
		t.Fatalf("lookup should ignore case: %v", err)
	}
	if _, err := r.Get("github"); !errors.Is(err, autherr.ErrUnknownProvider) {
		t.Fatalf("expected ErrUnknownProvider, got %v", err)
	}
	names := r.Names()
	if len(names) != 2 || names[0] != "google" || names[1] != "linkedin" {
		t.Fatalf("unexpected names %v", names)
	}

	var nilRegistry *Registry
	if _, err := nilRegistry.Get("google"); !errors.Is(err, autherr.ErrUnknownProvider) {
		t.Fatal("nil registry should report unknown provider")
	}
}
