// Package serverconfig loads the jobauth-server settings from the environment.
package serverconfig

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"

	jobAuth "github.com/MrEthical07/jobAuth"
	"github.com/MrEthical07/jobAuth/mailer"
	"github.com/MrEthical07/jobAuth/oauth"
)

// OAuthClient is one provider's credentials. A client without an ID is disabled.
type OAuthClient struct {
	ClientID     string `env:"CLIENT_ID"`
	ClientSecret string `env:"CLIENT_SECRET"`
	RedirectURL  string `env:"REDIRECT_URL"`
}

func (c OAuthClient) enabled() bool { return c.ClientID != "" }

// Config is the full process configuration.
type Config struct {
	Addr            string        `env:"ADDR" envDefault:":8080"`
	MetricsAddr     string        `env:"METRICS_ADDR"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"15s"`
	Production      bool          `env:"PRODUCTION"`
	TrustProxy      bool          `env:"TRUST_PROXY"`
	LogLevel        string        `env:"LOG_LEVEL" envDefault:"info"`

	DatabaseURL   string `env:"DATABASE_URL"`
	MigrateOnBoot bool   `env:"MIGRATE_ON_BOOT" envDefault:"true"`
	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB"`

	JWTSecret  string        `env:"JWT_SECRET"`
	JWTIssuer  string        `env:"JWT_ISSUER" envDefault:"jobauth"`
	AccessTTL  time.Duration `env:"ACCESS_TTL" envDefault:"1h"`
	RefreshTTL time.Duration `env:"REFRESH_TTL" envDefault:"720h"`

	AppName     string   `env:"APP_NAME" envDefault:"Job Tracker"`
	FrontendURL string   `env:"FRONTEND_URL" envDefault:"http://localhost:3000"`
	AdminEmails []string `env:"ADMIN_EMAILS" envSeparator:","`

	SMTP     mailer.SMTPConfig `envPrefix:"SMTP_"`
	Google   OAuthClient       `envPrefix:"GOOGLE_"`
	LinkedIn OAuthClient       `envPrefix:"LINKEDIN_"`
	// OAuthRedirect is where the browser lands after a provider callback.
	OAuthRedirect string `env:"OAUTH_SUCCESS_REDIRECT"`
}

// Load parses the process environment.
func Load() (Config, error) {
	return LoadFrom(nil)
}

// LoadFrom parses environ instead of the process environment when it is non-nil.
func LoadFrom(environ map[string]string) (Config, error) {
	opts := env.Options{Prefix: "JOBAUTH_"}
	if environ != nil {
		opts.Environment = environ
	}
	cfg, err := env.ParseAsWithOptions[Config](opts)
	if err != nil {
		return Config{}, fmt.Errorf("serverconfig: parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the settings the server cannot start without.
func (c Config) Validate() error {
	var errs []error
	if c.DatabaseURL == "" {
		errs = append(errs, errors.New("serverconfig: JOBAUTH_DATABASE_URL is required"))
	}
	if len(c.JWTSecret) < 32 {
		errs = append(errs, errors.New("serverconfig: JOBAUTH_JWT_SECRET must be at least 32 bytes"))
	}
	if c.Production && c.RedisAddr == "" {
		errs = append(errs, errors.New("serverconfig: JOBAUTH_REDIS_ADDR is required in production"))
	}
	if c.Production && !strings.HasPrefix(c.FrontendURL, "https://") {
		errs = append(errs, errors.New("serverconfig: JOBAUTH_FRONTEND_URL must be https in production"))
	}
	for _, p := range []struct {
		name string
		c    OAuthClient
	}{{"GOOGLE", c.Google}, {"LINKEDIN", c.LinkedIn}} {
		if p.c.enabled() && (p.c.ClientSecret == "" || p.c.RedirectURL == "") {
			errs = append(errs, fmt.Errorf("serverconfig: JOBAUTH_%s_CLIENT_SECRET and _REDIRECT_URL are required with a client id", p.name))
		}
	}
	return errors.Join(errs...)
}

// Engine maps the settings onto the engine defaults.
func (c Config) Engine() jobAuth.Config {
	cfg := jobAuth.DefaultConfig()
	cfg.JWT.PrivateKey = []byte(c.JWTSecret)
	cfg.JWT.Issuer = c.JWTIssuer
	cfg.JWT.AccessTTL = c.AccessTTL
	cfg.Session.RefreshTTL = c.RefreshTTL
	cfg.Email.AppName = c.AppName
	cfg.Email.BaseURL = strings.TrimRight(c.FrontendURL, "/")
	return cfg
}

// Providers returns the OAuth providers that have credentials.
func (c Config) Providers() []oauth.Provider {
	var out []oauth.Provider
	if c.Google.enabled() {
		out = append(out, oauth.NewGoogleProvider(oauth.GoogleConfig{
			ClientID:     c.Google.ClientID,
			ClientSecret: c.Google.ClientSecret,
			RedirectURL:  c.Google.RedirectURL,
		}))
	}
	if c.LinkedIn.enabled() {
		out = append(out, oauth.NewLinkedInProvider(oauth.LinkedInConfig{
			ClientID:     c.LinkedIn.ClientID,
			ClientSecret: c.LinkedIn.ClientSecret,
			RedirectURL:  c.LinkedIn.RedirectURL,
		}))
	}
	return out
}
