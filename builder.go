package jobAuth

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/MrEthical07/jobAuth/internal/audit"
	"github.com/MrEthical07/jobAuth/internal/flows"
	"github.com/MrEthical07/jobAuth/internal/limiters"
	"github.com/MrEthical07/jobAuth/internal/rate"
	"github.com/MrEthical07/jobAuth/jwt"
	"github.com/MrEthical07/jobAuth/mailer"
	"github.com/MrEthical07/jobAuth/oauth"
	"github.com/MrEthical07/jobAuth/password"
	"github.com/MrEthical07/jobAuth/session"
	"github.com/MrEthical07/jobAuth/store"
	"github.com/MrEthical07/jobAuth/token"
)

// Builder assembles an [Engine]. It is single-use.
type Builder struct {
	config    Config
	store     store.Store
	redis     redis.UniversalClient
	mailer    mailer.Sender
	sinks     []AuditSink
	log       zerolog.Logger
	providers []oauth.Provider
	now       func() time.Time

	built bool
}

// New returns a Builder seeded with [DefaultConfig].
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
		log:    zerolog.Nop(),
	}
}

// WithConfig replaces the whole configuration. The value is copied.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithStore sets the credential store. Required.
func (b *Builder) WithStore(st store.Store) *Builder {
	b.store = st
	return b
}

// WithRedis enables the login/forgot/resend throttles and multi-IP tracking.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithMailer sets the email sender. Without one, messages are only logged.
func (b *Builder) WithMailer(sender mailer.Sender) *Builder {
	b.mailer = sender
	return b
}

// WithAuditSink adds a sink next to the store sink that backs GetAuditLogs.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	if sink != nil {
		b.sinks = append(b.sinks, sink)
	}
	return b
}

func (b *Builder) WithLogger(log zerolog.Logger) *Builder {
	b.log = log
	return b
}

// WithOAuthProvider registers a provider for LoginWithProvider.
func (b *Builder) WithOAuthProvider(p oauth.Provider) *Builder {
	if p != nil {
		b.providers = append(b.providers, p)
	}
	return b
}

// WithClock overrides time.Now for every component. Tests only.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

// Build validates the configuration and wires the engine. A missing signing key is
// reported as ErrMissingSecret.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}
	if b.store == nil {
		return nil, errors.New("credential store required")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	now := b.now
	if now == nil {
		now = time.Now
	}

	jm, err := jwt.NewManager(jwt.Config{
		AccessTTL:     cfg.JWT.AccessTTL,
		SigningMethod: jwt.SigningMethod(cfg.JWT.SigningMethod),
		PrivateKey:    cloneBytes(cfg.JWT.PrivateKey),
		PublicKey:     cloneBytes(cfg.JWT.PublicKey),
		Issuer:        cfg.JWT.Issuer,
		Audience:      cfg.JWT.Audience,
		Leeway:        cfg.JWT.Leeway,
		Now:           now,
	})
	if errors.Is(err, jwt.ErrMissingSecret) {
		return nil, fmt.Errorf("%w: %v", ErrMissingSecret, err)
	}
	if err != nil {
		return nil, err
	}

	ph, err := password.NewHasher(password.Config{
		Memory:      cfg.Password.Memory,
		Time:        cfg.Password.Time,
		Parallelism: cfg.Password.Parallelism,
		SaltLength:  cfg.Password.SaltLength,
		KeyLength:   cfg.Password.KeyLength,
		MinLength:   cfg.Password.MinLength,
		MaxLength:   cfg.Password.MaxLength,
	})
	if err != nil {
		return nil, err
	}

	verify, err := flows.NewTokenFlow(flows.TokenConfig{
		Kind:    store.TokenEmailVerification,
		TTL:     cfg.EmailVerification.TTL,
		ByteLen: token.VerificationBytes,
		Now:     now,
	})
	if err != nil {
		return nil, err
	}
	reset, err := flows.NewTokenFlow(flows.TokenConfig{
		Kind:    store.TokenPasswordReset,
		TTL:     cfg.PasswordReset.TTL,
		ByteLen: token.ResetBytes,
		Now:     now,
	})
	if err != nil {
		return nil, err
	}

	guard, err := limiters.NewLockoutGuard(b.store, limiters.LockoutConfig{
		Enabled: cfg.Lockout.Enabled,
		Tiers:   cfg.Lockout.Tiers,
		Now:     now,
	})
	if err != nil {
		return nil, err
	}

	log := b.log.With().Str("component", "jobauth").Logger()

	sender := b.mailer
	if sender == nil {
		sender = mailer.LogSender{Log: log}
	}

	sinks := append(audit.MultiSink{audit.NewStoreSink(b.store.AuditLogs(), log)}, b.sinks...)

	engine := &Engine{
		config:    cfg,
		store:     b.store,
		jwt:       jm,
		hasher:    ph,
		sessions:  session.NewManager(b.store, jm, session.Config{TTL: cfg.Session.RefreshTTL, Now: now}),
		verify:    verify,
		reset:     reset,
		lockout:   guard,
		suspicion: limiters.NewSuspicionTracker(b.redis, limiters.SuspicionConfig{
			Enabled:        cfg.Suspicious.Enabled,
			Window:         cfg.Suspicious.Window,
			MaxDistinctIPs: cfg.Suspicious.MaxDistinctIPs,
			Now:            now,
		}),
		mailer:    sender,
		templates: mailer.Templates{AppName: cfg.Email.AppName},
		providers: oauth.NewRegistry(b.providers...),
		audit: audit.NewDispatcher(audit.Config{
			Enabled:    cfg.Audit.Enabled,
			Async:      cfg.Audit.Async,
			BufferSize: cfg.Audit.BufferSize,
			DropIfFull: cfg.Audit.DropIfFull,
		}, sinks),
		metrics:  NewMetrics(cfg.Metrics),
		validate: validator.New(validator.WithRequiredStructEnabled()),
		log:      log,
		now:      now,
	}
	if b.redis != nil {
		engine.limiter = rate.New(b.redis)
	}

	b.built = true

	return engine, nil
}
