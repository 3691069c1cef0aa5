package middleware

import (
	"context"
	"net/http"
	"strings"

	jobAuth "github.com/MrEthical07/jobAuth"
)

type identityContextKey struct{}

// IdentityFromContext returns the identity stored by RequireAuth.
func IdentityFromContext(ctx context.Context) (*jobAuth.Identity, bool) {
	id, ok := ctx.Value(identityContextKey{}).(*jobAuth.Identity)
	return id, ok
}

// WithIdentity stores id in ctx. Handlers normally rely on RequireAuth instead.
func WithIdentity(ctx context.Context, id *jobAuth.Identity) context.Context {
	return context.WithValue(ctx, identityContextKey{}, id)
}

// RequireAuth rejects requests without a valid bearer access token.
func RequireAuth(engine *jobAuth.Engine) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				WriteError(w, jobAuth.ErrInvalidToken)
				return
			}

			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				WriteError(w, jobAuth.ErrInvalidToken)
				return
			}

			id, err := engine.ValidateAccess(r.Context(), token)
			if err != nil {
				WriteError(w, err)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
		})
	}
}

// RequireAdmin lets through identities accepted by isAdmin. It must run after
// RequireAuth.
func RequireAdmin(isAdmin func(*jobAuth.Identity) bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := IdentityFromContext(r.Context())
			if !ok {
				WriteError(w, jobAuth.ErrInvalidToken)
				return
			}
			if isAdmin == nil || !isAdmin(id) {
				writeJSONError(w, http.StatusForbidden, "forbidden", "admin access required")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// AdminEmails returns a predicate accepting the listed addresses, case-insensitively.
func AdminEmails(emails ...string) func(*jobAuth.Identity) bool {
	set := make(map[string]struct{}, len(emails))
	for _, e := range emails {
		if e = strings.ToLower(strings.TrimSpace(e)); e != "" {
			set[e] = struct{}{}
		}
	}
	return func(id *jobAuth.Identity) bool {
		if id == nil {
			return false
		}
		_, ok := set[strings.ToLower(id.Email)]
		return ok
	}
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if len(value) < len(bearer) || !strings.EqualFold(value[:len(bearer)], bearer) {
		return "", false
	}

	token := strings.TrimSpace(value[len(bearer):])
	if token == "" {
		return "", false
	}

	return token, true
}
