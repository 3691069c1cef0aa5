package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	jobAuth "github.com/MrEthical07/jobAuth"
	"github.com/MrEthical07/jobAuth/middleware"
)

// Options configures the router.
type Options struct {
	Cookie CookieConfig
	// IsAdmin decides access to /admin routes. Nil denies everyone.
	IsAdmin func(*jobAuth.Identity) bool
	// TrustProxy takes the client IP from X-Forwarded-For.
	TrustProxy bool
	// OAuthRedirect, when set, is where the OAuth callback redirects after setting the
	// refresh cookie. Otherwise the callback answers with JSON.
	OAuthRedirect string
	Logger        zerolog.Logger
	Now           func() time.Time
}

type handler struct {
	engine *jobAuth.Engine
	cookie CookieConfig
	rv     *requestValidator
	log    zerolog.Logger
	opts   Options
	now    func() time.Time
}

// NewRouter mounts the /auth and /admin/security routes.
func NewRouter(engine *jobAuth.Engine, opts Options) (http.Handler, error) {
	rv, err := newRequestValidator()
	if err != nil {
		return nil, err
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	h := &handler{
		engine: engine,
		cookie: opts.Cookie.withDefaults(),
		rv:     rv,
		log:    opts.Logger,
		opts:   opts,
		now:    now,
	}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(requestLogger(opts.Logger))
	r.Use(middleware.ClientInfo(opts.TrustProxy))

	r.Route("/auth", func(r chi.Router) {
		r.Post("/register", h.register)
		r.Post("/login", h.login)
		r.Post("/refresh", h.refresh)
		r.Post("/logout", h.logout)
		r.Get("/csrf", h.bootstrapCSRF)
		r.Post("/verify-email", h.verifyEmail)
		r.Post("/resend-verification", h.resendVerification)
		r.Post("/forgot-password", h.forgotPassword)
		r.Post("/reset-password", h.resetPassword)
		r.Get("/oauth/{provider}", h.oauthStart)
		r.Get("/oauth/{provider}/callback", h.oauthCallback)

		r.With(middleware.RequireAuth(engine)).Get("/me", h.me)
	})

	r.Route("/admin/security", func(r chi.Router) {
		r.Use(middleware.RequireAuth(engine))
		r.Use(middleware.RequireAdmin(opts.IsAdmin))

		r.Get("/locked", h.listLocked)
		r.Post("/users/{userID}/unlock", h.unlock)
		r.Post("/users/{userID}/force-reset", h.forceReset)
		r.Post("/users/{userID}/suspicious", h.checkSuspicious)
		r.Get("/audit-logs", h.auditLogs)
		r.Get("/stats", h.stats)
	})

	return r, nil
}

func requestLogger(log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			ev := log.Info()
			if ww.Status() >= http.StatusInternalServerError {
				ev = log.Error()
			}
			ev.Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Int("bytes", ww.BytesWritten()).
				Dur("duration", time.Since(start)).
				Str("request_id", chimw.GetReqID(r.Context())).
				Msg("http request")
		})
	}
}
