// Command jobauth-server serves the job tracker authentication API.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	jobAuth "github.com/MrEthical07/jobAuth"
	"github.com/MrEthical07/jobAuth/httpapi"
	"github.com/MrEthical07/jobAuth/internal/serverconfig"
	"github.com/MrEthical07/jobAuth/mailer"
	"github.com/MrEthical07/jobAuth/metrics/export/prometheus"
	"github.com/MrEthical07/jobAuth/middleware"
	"github.com/MrEthical07/jobAuth/store/postgres"
)

func main() {
	log := zerolog.New(os.Stdout).With().Timestamp().Str("service", "jobauth").Logger()

	cfg, err := serverconfig.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	if lvl, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		log = log.Level(lvl)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
}

func run(ctx context.Context, cfg serverconfig.Config, log zerolog.Logger) error {
	st, err := postgres.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer st.Close()
	if cfg.MigrateOnBoot {
		if err := st.Migrate(ctx); err != nil {
			return err
		}
	}

	var sender mailer.Sender = mailer.LogSender{Log: log}
	if cfg.SMTP.Configured() {
		smtp, err := mailer.NewSMTPSender(cfg.SMTP)
		if err != nil {
			return err
		}
		sender = smtp
	} else {
		log.Warn().Msg("SMTP not configured, account emails are logged only")
	}

	b := jobAuth.New().
		WithConfig(cfg.Engine()).
		WithStore(st).
		WithMailer(sender).
		WithLogger(log)

	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			// Throttles fail open, so a cold Redis only weakens rate limiting.
			log.Warn().Err(err).Msg("redis unreachable at startup")
		}
		b.WithRedis(rdb)
	} else {
		log.Warn().Msg("no Redis configured, rate limiting disabled")
	}
	for _, p := range cfg.Providers() {
		b.WithOAuthProvider(p)
	}

	engine, err := b.Build()
	if err != nil {
		return err
	}
	defer engine.Close()

	cookie := httpapi.DefaultCookieConfig(cfg.Production)
	router, err := httpapi.NewRouter(engine, httpapi.Options{
		Cookie:        cookie,
		IsAdmin:       middleware.AdminEmails(cfg.AdminEmails...),
		TrustProxy:    cfg.TrustProxy,
		OAuthRedirect: cfg.OAuthRedirect,
		Logger:        log,
	})
	if err != nil {
		return err
	}

	mux := http.NewServeMux()
	mux.Handle("/", router)
	metrics := prometheus.NewPrometheusExporter(engine).Handler()

	servers := []*http.Server{{Addr: cfg.Addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}}
	if cfg.MetricsAddr != "" {
		m := http.NewServeMux()
		m.Handle("/metrics", metrics)
		servers = append(servers, &http.Server{Addr: cfg.MetricsAddr, Handler: m, ReadHeaderTimeout: 10 * time.Second})
	} else {
		mux.Handle("/metrics", metrics)
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, srv := range servers {
		g.Go(func() error {
			log.Info().Str("addr", srv.Addr).Strs("oauth", engine.OAuthProviders()).Msg("listening")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		var errs []error
		for _, srv := range servers {
			errs = append(errs, srv.Shutdown(shutdownCtx))
		}
		log.Info().Msg("shutdown complete")
		return errors.Join(errs...)
	})
	return g.Wait()
}
