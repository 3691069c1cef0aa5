package jobAuth

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"

	"github.com/MrEthical07/jobAuth/internal/audit"
	"github.com/MrEthical07/jobAuth/internal/autherr"
	"github.com/MrEthical07/jobAuth/oauth"
	"github.com/MrEthical07/jobAuth/store"
)

// AuthCodeURL returns the consent URL of the named provider.
func (e *Engine) AuthCodeURL(provider, state string) (string, error) {
	p, err := e.providers.Get(provider)
	if err != nil {
		return "", err
	}
	return p.AuthCodeURL(state), nil
}

// OAuthProviders lists the registered provider names.
func (e *Engine) OAuthProviders() []string {
	return e.providers.Names()
}

// LoginWithProvider completes an OAuth callback. The provider-verified email is matched
// to an existing account, or a password-less account is created, and a normal session
// is issued. Lock and forced-reset state apply exactly as for password login.
func (e *Engine) LoginWithProvider(ctx context.Context, provider, code string) (*AuthResponse, error) {
	p, err := e.providers.Get(provider)
	if err != nil {
		return nil, err
	}

	ident, err := p.ExchangeCode(ctx, code)
	if err != nil {
		e.log.Warn().Err(err).Str("provider", p.Name()).Msg("jobAuth: oauth exchange")
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, audit.Event{
			EventType: audit.EventOAuthLogin,
			Error:     KindInvalidCredentials.String(),
			Metadata:  map[string]string{"provider": p.Name()},
		})
		return nil, ErrInvalidCredentials
	}
	if !ident.EmailVerified {
		return nil, ErrInvalidCredentials
	}
	email := store.NormalizeEmail(ident.Email)
	if err := e.checkEmail(email); err != nil {
		return nil, ErrInvalidCredentials
	}

	user, created, err := e.findOrCreateOAuthUser(ctx, email, ident)
	if err != nil {
		return nil, passthrough(err)
	}

	status, err := e.lockout.Status(ctx, user.ID)
	if err != nil {
		return nil, storeErr(err)
	}
	if status.Locked {
		e.metricInc(MetricLoginLocked)
		e.emitAudit(ctx, audit.Event{EventType: audit.EventLoginLocked, UserID: user.ID, Error: KindAccountLocked.String()})
		return nil, autherr.Locked(status.Remaining)
	}
	if status.ForcePasswordReset {
		e.metricInc(MetricLoginResetRequired)
		return nil, ErrPasswordResetRequired
	}

	e.observeIP(ctx, user.ID, clientIPFromContext(ctx))

	issued, err := e.sessions.Create(ctx, nil, user.ID, e.clientFromContext(ctx))
	if err != nil {
		return nil, storeErr(err)
	}

	if created {
		e.metricInc(MetricRegisterSuccess)
		e.emitAudit(ctx, audit.Event{
			EventType: audit.EventRegister,
			UserID:    user.ID,
			Success:   true,
			Metadata:  map[string]string{"provider": ident.Provider},
		})
	}
	e.metricInc(MetricOAuthLogin)
	e.metricInc(MetricSessionCreated)
	e.emitAudit(ctx, audit.Event{
		EventType: audit.EventOAuthLogin,
		UserID:    user.ID,
		SessionID: issued.SessionID,
		Success:   true,
		Metadata:  map[string]string{"provider": ident.Provider},
	})

	return e.authResponse(user, issued)
}

func (e *Engine) findOrCreateOAuthUser(ctx context.Context, email string, ident oauth.Identity) (*store.User, bool, error) {
	var (
		user    *store.User
		created bool
	)
	err := e.store.WithTx(ctx, func(ctx context.Context, tx store.Repositories) error {
		now := e.now()
		u, err := tx.Users().GetByEmail(ctx, email)
		switch {
		case err == nil:
			if u.EmailVerifiedAt == nil {
				if err := tx.Users().MarkEmailVerified(ctx, u.ID, now); err != nil {
					return err
				}
				u.EmailVerifiedAt = &now
			}
			user = u
			return nil
		case !errors.Is(err, store.ErrNotFound):
			return err
		}

		user = &store.User{
			ID:              uuid.NewString(),
			Email:           email,
			Name:            strings.TrimSpace(ident.Name),
			EmailVerifiedAt: &now,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		if err := tx.Users().Create(ctx, user); err != nil {
			return err
		}
		if err := tx.Security().Ensure(ctx, user.ID, now); err != nil {
			return err
		}
		created = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return user, created, nil
}
