package serverconfig

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func baseEnv() map[string]string {
	return map[string]string{
		"JOBAUTH_DATABASE_URL": "postgres://jobauth@localhost/jobauth",
		"JOBAUTH_JWT_SECRET":   "0123456789abcdef0123456789abcdef",
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := LoadFrom(baseEnv())
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, 15*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.True(t, cfg.MigrateOnBoot)
	assert.Equal(t, 587, cfg.SMTP.Port)
	assert.False(t, cfg.SMTP.Configured())
	assert.Empty(t, cfg.Providers())

	engine := cfg.Engine()
	require.NoError(t, engine.Validate())
	assert.Equal(t, time.Hour, engine.JWT.AccessTTL)
	assert.Equal(t, 720*time.Hour, engine.Session.RefreshTTL)
	assert.Equal(t, "jobauth", engine.JWT.Issuer)
}

func TestLoadNestedPrefixes(t *testing.T) {
	environ := baseEnv()
	environ["JOBAUTH_SMTP_HOST"] = "smtp.example.com"
	environ["JOBAUTH_SMTP_FROM"] = "no-reply@example.com"
	environ["JOBAUTH_SMTP_PORT"] = "2525"
	environ["JOBAUTH_GOOGLE_CLIENT_ID"] = "gid"
	environ["JOBAUTH_GOOGLE_CLIENT_SECRET"] = "gsecret"
	environ["JOBAUTH_GOOGLE_REDIRECT_URL"] = "https://api.example.com/auth/oauth/google/callback"
	environ["JOBAUTH_ADMIN_EMAILS"] = "a@example.com,b@example.com"
	environ["JOBAUTH_FRONTEND_URL"] = "https://jobs.example.com/"

	cfg, err := LoadFrom(environ)
	require.NoError(t, err)

	assert.True(t, cfg.SMTP.Configured())
	assert.Equal(t, 2525, cfg.SMTP.Port)
	assert.Equal(t, []string{"a@example.com", "b@example.com"}, cfg.AdminEmails)

	providers := cfg.Providers()
	require.Len(t, providers, 1)
	assert.Equal(t, "google", providers[0].Name())
	assert.Equal(t, "https://jobs.example.com", cfg.Engine().Email.BaseURL)
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(map[string]string)
		want   string
	}{
		{"missing database", func(m map[string]string) { delete(m, "JOBAUTH_DATABASE_URL") }, "DATABASE_URL"},
		{"short secret", func(m map[string]string) { m["JOBAUTH_JWT_SECRET"] = "short" }, "JWT_SECRET"},
		{"production without redis", func(m map[string]string) { m["JOBAUTH_PRODUCTION"] = "true" }, "REDIS_ADDR"},
		{"production over http", func(m map[string]string) {
			m["JOBAUTH_PRODUCTION"] = "true"
			m["JOBAUTH_REDIS_ADDR"] = "localhost:6379"
		}, "https"},
		{"partial oauth client", func(m map[string]string) { m["JOBAUTH_LINKEDIN_CLIENT_ID"] = "lid" }, "LINKEDIN"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			environ := baseEnv()
			tc.mutate(environ)
			_, err := LoadFrom(environ)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestBadDurationIsParseError(t *testing.T) {
	environ := baseEnv()
	environ["JOBAUTH_ACCESS_TTL"] = "soon"
	_, err := LoadFrom(environ)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse env")
}
