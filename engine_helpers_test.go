package jobAuth

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/jobAuth/mailer"
	"github.com/MrEthical07/jobAuth/store"
	"github.com/MrEthical07/jobAuth/store/memstore"
)

const (
	testEmail    = "alice@example.com"
	testPassword = "correct-password-123"
)

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type testEnv struct {
	engine *Engine
	store  *memstore.Store
	mail   *mailer.Recorder
	clock  *testClock
	redis  *miniredis.Miniredis
}

type testOptions struct {
	mutate    func(*Config)
	withRedis bool
	mail      *mailer.Recorder
	builder   func(*Builder)
	faults    *faultStore
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.JWT.PrivateKey = []byte(strings.Repeat("k", 32))
	cfg.Password.Memory = 8192
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	cfg.Email.Async = false
	cfg.Audit.Async = false
	return cfg
}

func newTestEnv(t *testing.T, opts testOptions) *testEnv {
	t.Helper()

	cfg := testConfig()
	if opts.mutate != nil {
		opts.mutate(&cfg)
	}
	env := &testEnv{
		store: memstore.New(),
		mail:  opts.mail,
		clock: &testClock{t: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)},
	}
	if env.mail == nil {
		env.mail = &mailer.Recorder{}
	}

	var st store.Store = env.store
	if opts.faults != nil {
		opts.faults.Store = env.store
		st = opts.faults
	}

	b := New().
		WithConfig(cfg).
		WithStore(st).
		WithMailer(env.mail).
		WithClock(env.clock.Now)
	if opts.withRedis {
		env.redis = miniredis.RunT(t)
		rdb := redis.NewClient(&redis.Options{Addr: env.redis.Addr()})
		t.Cleanup(func() { _ = rdb.Close() })
		b.WithRedis(rdb)
	}
	if opts.builder != nil {
		opts.builder(b)
	}

	engine, err := b.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	t.Cleanup(engine.Close)
	env.engine = engine
	return env
}

func (env *testEnv) register(t *testing.T, email string) *AuthResponse {
	t.Helper()
	resp, err := env.engine.Register(context.Background(), RegisterRequest{Email: email, Password: testPassword, Name: "Alice"})
	if err != nil {
		t.Fatalf("Register(%s): %v", email, err)
	}
	return resp
}

// mailToken extracts the token query parameter from the latest message of kind.
func (env *testEnv) mailToken(t *testing.T, addr string, kind mailer.Kind) string {
	t.Helper()
	msg, ok := env.mail.Last(addr, kind)
	if !ok {
		t.Fatalf("no %s email to %s", kind, addr)
	}
	i := strings.Index(msg.Text, "http")
	if i < 0 {
		t.Fatalf("no link in %s email: %q", kind, msg.Text)
	}
	u, err := url.Parse(strings.TrimSpace(msg.Text[i:]))
	if err != nil {
		t.Fatalf("parse link: %v", err)
	}
	tok := u.Query().Get("token")
	if tok == "" {
		t.Fatalf("link without token: %s", u)
	}
	return tok
}

func ipContext(ip string) context.Context {
	return WithUserAgent(WithClientIP(context.Background(), ip), "jobauth-test")
}

var errDiskFull = errors.New("disk full")

// faultStore wraps a memstore and fails selected writes on demand, inside and outside
// transactions alike.
type faultStore struct {
	*memstore.Store
	failTokenCreate    atomic.Bool
	failSecurityUpsert atomic.Bool
}

func (s *faultStore) Tokens(kind store.TokenKind) store.TokenRepository {
	return faultTokens{TokenRepository: s.Store.Tokens(kind), f: s}
}

func (s *faultStore) Security() store.SecurityRepository {
	return faultSecurity{SecurityRepository: s.Store.Security(), f: s}
}

func (s *faultStore) WithTx(ctx context.Context, fn func(ctx context.Context, tx store.Repositories) error) error {
	return s.Store.WithTx(ctx, func(ctx context.Context, tx store.Repositories) error {
		return fn(ctx, faultRepos{Repositories: tx, f: s})
	})
}

type faultRepos struct {
	store.Repositories
	f *faultStore
}

func (r faultRepos) Tokens(kind store.TokenKind) store.TokenRepository {
	return faultTokens{TokenRepository: r.Repositories.Tokens(kind), f: r.f}
}

func (r faultRepos) Security() store.SecurityRepository {
	return faultSecurity{SecurityRepository: r.Repositories.Security(), f: r.f}
}

type faultTokens struct {
	store.TokenRepository
	f *faultStore
}

func (t faultTokens) Create(ctx context.Context, tok *store.OneTimeToken) error {
	if t.f.failTokenCreate.Load() {
		return errDiskFull
	}
	return t.TokenRepository.Create(ctx, tok)
}

type faultSecurity struct {
	store.SecurityRepository
	f *faultStore
}

func (s faultSecurity) Upsert(ctx context.Context, sec *store.UserSecurity) error {
	if s.f.failSecurityUpsert.Load() {
		return errDiskFull
	}
	return s.SecurityRepository.Upsert(ctx, sec)
}
