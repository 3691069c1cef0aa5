package jobAuth

import (
	"context"
	"errors"

	"github.com/MrEthical07/jobAuth/internal/audit"
	"github.com/MrEthical07/jobAuth/internal/flows"
	"github.com/MrEthical07/jobAuth/internal/rate"
	"github.com/MrEthical07/jobAuth/store"
)

// VerifyEmail consumes a verification token and marks the owner verified. Verifying an
// already verified account is a no-op that still consumes the token.
func (e *Engine) VerifyEmail(ctx context.Context, rawToken string) error {
	var user *store.User
	err := e.store.WithTx(ctx, func(ctx context.Context, tx store.Repositories) error {
		t, err := e.verify.Consume(ctx, tx, rawToken)
		if err != nil {
			return err
		}
		if user, err = tx.Users().GetByID(ctx, t.UserID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return ErrInvalidOrExpiredToken
			}
			return err
		}
		if user.EmailVerifiedAt != nil {
			return nil
		}
		now := e.now()
		if err := tx.Users().MarkEmailVerified(ctx, user.ID, now); err != nil {
			return err
		}
		user.EmailVerifiedAt = &now
		return nil
	})
	if err != nil {
		e.metricInc(MetricEmailVerificationFailure)
		if errors.Is(err, ErrInvalidOrExpiredToken) {
			e.emitAudit(ctx, audit.Event{EventType: audit.EventEmailVerified, Error: KindInvalidOrExpiredToken.String()})
			return ErrInvalidOrExpiredToken
		}
		return storeErr(err)
	}

	e.metricInc(MetricEmailVerificationSuccess)
	e.emitAudit(ctx, audit.Event{EventType: audit.EventEmailVerified, UserID: user.ID, Success: true})
	return nil
}

// ResendVerification issues a fresh verification token, invalidating earlier ones, and
// emails it. Unknown and already verified addresses return nil without sending, as does
// a throttled request.
func (e *Engine) ResendVerification(ctx context.Context, email string) error {
	email = store.NormalizeEmail(email)
	if err := e.checkEmail(email); err != nil {
		return err
	}
	e.metricInc(MetricEmailVerificationRequest)

	if !e.takeQuiet(ctx, rate.ResendVerifyKey(email), policyOf(e.config.RateLimit.ResendVerification)) {
		return nil
	}

	user, err := e.store.Users().GetByEmail(ctx, email)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return storeErr(err)
	}
	if user.EmailVerifiedAt != nil {
		return nil
	}

	var tk *flows.IssuedToken
	err = e.store.WithTx(ctx, func(ctx context.Context, tx store.Repositories) error {
		var err error
		tk, err = e.verify.Issue(ctx, tx, user.ID)
		return err
	})
	if err != nil {
		return storeErr(err)
	}
	e.sendVerification(ctx, user, tk)
	return nil
}

// takeQuiet applies a throttle whose denial the caller hides. It reports whether the
// request may proceed; an unreachable Redis lets it through.
func (e *Engine) takeQuiet(ctx context.Context, key string, p rate.Policy) bool {
	if e.limiter == nil {
		return true
	}
	err := e.limiter.Take(ctx, key, p)
	if errors.Is(err, rate.ErrRateLimited) {
		e.metricInc(MetricRateLimitHit)
		return false
	}
	if err != nil {
		e.log.Warn().Err(err).Msg("jobAuth: throttle unavailable")
	}
	return true
}
