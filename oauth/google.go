package oauth

import (
	"context"
	"fmt"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	oauth2v2 "google.golang.org/api/oauth2/v2"
	"google.golang.org/api/option"
)

// GoogleConfig configures the Google provider. Endpoint and APIEndpoint are only
// overridden in tests.
type GoogleConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Endpoint     *oauth2.Endpoint
	APIEndpoint  string
}

// GoogleProvider exchanges Google authorization codes and reads the userinfo API.
type GoogleProvider struct {
	oauth       oauth2.Config
	apiEndpoint string
}

func NewGoogleProvider(cfg GoogleConfig) *GoogleProvider {
	endpoint := google.Endpoint
	if cfg.Endpoint != nil {
		endpoint = *cfg.Endpoint
	}
	return &GoogleProvider{
		oauth: oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Endpoint:     endpoint,
			Scopes:       []string{oauth2v2.UserinfoEmailScope, oauth2v2.UserinfoProfileScope},
		},
		apiEndpoint: cfg.APIEndpoint,
	}
}

func (p *GoogleProvider) Name() string { return "google" }

func (p *GoogleProvider) AuthCodeURL(state string) string {
	return p.oauth.AuthCodeURL(state, oauth2.AccessTypeOnline)
}

func (p *GoogleProvider) ExchangeCode(ctx context.Context, code string) (Identity, error) {
	if code == "" {
		return Identity{}, ErrMissingCode
	}
	tok, err := p.oauth.Exchange(ctx, code)
	if err != nil {
		return Identity{}, fmt.Errorf("oauth: google exchange: %w", err)
	}

	opts := []option.ClientOption{option.WithHTTPClient(p.oauth.Client(ctx, tok))}
	if p.apiEndpoint != "" {
		opts = append(opts, option.WithEndpoint(p.apiEndpoint))
	}
	svc, err := oauth2v2.NewService(ctx, opts...)
	if err != nil {
		return Identity{}, fmt.Errorf("oauth: google service: %w", err)
	}
	info, err := svc.Userinfo.Get().Context(ctx).Do()
	if err != nil {
		return Identity{}, fmt.Errorf("oauth: google userinfo: %w", err)
	}

	verified := info.VerifiedEmail != nil && *info.VerifiedEmail
	if info.Email == "" || !verified {
		return Identity{}, ErrUnverifiedEmail
	}
	return Identity{
		Provider:      p.Name(),
		Subject:       info.Id,
		Email:         info.Email,
		EmailVerified: verified,
		Name:          info.Name,
	}, nil
}
