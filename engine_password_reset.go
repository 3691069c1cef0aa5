package jobAuth

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrEthical07/jobAuth/internal/audit"
	"github.com/MrEthical07/jobAuth/internal/flows"
	"github.com/MrEthical07/jobAuth/internal/rate"
	"github.com/MrEthical07/jobAuth/store"
)

// ForgotPassword emails a reset link when the address belongs to an account. It
// returns nil for unknown addresses and throttled requests alike.
func (e *Engine) ForgotPassword(ctx context.Context, email string) error {
	email = store.NormalizeEmail(email)
	if err := e.checkEmail(email); err != nil {
		return err
	}
	e.metricInc(MetricPasswordResetRequest)

	if !e.takeQuiet(ctx, rate.ForgotPasswordKey(email), policyOf(e.config.RateLimit.ForgotPassword)) {
		return nil
	}

	user, err := e.store.Users().GetByEmail(ctx, email)
	if errors.Is(err, store.ErrNotFound) {
		e.emitAudit(ctx, audit.Event{
			EventType: audit.EventPasswordResetRequested,
			Metadata:  map[string]string{"reason": "unknown_email"},
		})
		return nil
	}
	if err != nil {
		return storeErr(err)
	}

	var tk *flows.IssuedToken
	err = e.store.WithTx(ctx, func(ctx context.Context, tx store.Repositories) error {
		var err error
		tk, err = e.reset.Issue(ctx, tx, user.ID)
		return err
	})
	if err != nil {
		return storeErr(err)
	}
	e.emitAudit(ctx, audit.Event{EventType: audit.EventPasswordResetRequested, UserID: user.ID, Success: true})
	e.sendPasswordReset(ctx, user, tk)
	return nil
}

// ResetPassword sets a new password using a reset token, clears any lockout on the
// account and revokes every session. Reusing the current password returns
// ErrSamePassword and leaves the token usable.
func (e *Engine) ResetPassword(ctx context.Context, rawToken, newPassword string) error {
	if err := e.checkPassword(newPassword); err != nil {
		return err
	}

	t, err := e.reset.Resolve(ctx, e.store, rawToken)
	if err != nil {
		e.metricInc(MetricPasswordResetFailure)
		return passthrough(err)
	}
	user, err := e.store.Users().GetByID(ctx, t.UserID)
	if errors.Is(err, store.ErrNotFound) {
		e.metricInc(MetricPasswordResetFailure)
		return ErrInvalidOrExpiredToken
	}
	if err != nil {
		return storeErr(err)
	}

	if user.PasswordHash != "" && e.hasher.Matches(newPassword, user.PasswordHash) {
		e.metricInc(MetricPasswordResetSameRejected)
		return ErrSamePassword
	}

	hash, err := e.hasher.Hash(newPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	var revoked int
	err = e.store.WithTx(ctx, func(ctx context.Context, tx store.Repositories) error {
		if _, err := e.reset.Consume(ctx, tx, rawToken); err != nil {
			return err
		}
		if err := tx.Users().UpdatePasswordHash(ctx, user.ID, hash, e.now()); err != nil {
			return err
		}
		if err := e.lockout.CompletePasswordReset(ctx, tx, user.ID); err != nil {
			return err
		}
		var err error
		revoked, err = e.sessions.RevokeAllForUser(ctx, tx, user.ID)
		return err
	})
	if err != nil {
		e.metricInc(MetricPasswordResetFailure)
		return passthrough(err)
	}

	if err := e.suspicion.Forget(ctx, user.ID); err != nil {
		e.log.Warn().Err(err).Str("user_id", user.ID).Msg("jobAuth: clear login IP history")
	}

	e.metricInc(MetricPasswordResetSuccess)
	if e.metrics != nil {
		e.metrics.Add(MetricSessionsRevoked, revoked)
	}
	e.emitAudit(ctx, audit.Event{
		EventType: audit.EventPasswordResetCompleted,
		UserID:    user.ID,
		Success:   true,
		Metadata:  map[string]string{"sessions_revoked": fmt.Sprint(revoked)},
	})
	return nil
}
