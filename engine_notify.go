package jobAuth

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/MrEthical07/jobAuth/internal/audit"
	"github.com/MrEthical07/jobAuth/internal/flows"
	"github.com/MrEthical07/jobAuth/mailer"
	"github.com/MrEthical07/jobAuth/store"
)

func (e *Engine) link(path, raw string) string {
	return strings.TrimRight(e.config.Email.BaseURL, "/") + path + "?token=" + url.QueryEscape(raw)
}

// deliver sends msg. Failures never reach the caller of the flow that produced the
// message; they are logged, counted and audited.
func (e *Engine) deliver(ctx context.Context, msg mailer.Message, userID string) {
	msg.UserID = userID

	send := func(ctx context.Context) {
		if timeout := e.config.Email.SendTimeout; timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}
		if err := e.mailer.Send(ctx, msg); err != nil {
			e.metricInc(MetricEmailSendFailure)
			e.log.Error().Err(err).
				Str("user_id", userID).
				Str("kind", string(msg.Kind)).
				Msg("jobAuth: send email")
			e.emitAudit(ctx, audit.Event{
				EventType: audit.EventEmailSendFailed,
				UserID:    userID,
				Error:     err.Error(),
				Metadata:  map[string]string{"kind": string(msg.Kind)},
			})
		}
	}

	if !e.config.Email.Async {
		send(ctx)
		return
	}

	detached := context.WithoutCancel(ctx)
	e.mailWG.Add(1)
	go func() {
		defer e.mailWG.Done()
		send(detached)
	}()
}

func (e *Engine) sendVerification(ctx context.Context, user *store.User, tk *flows.IssuedToken) {
	msg, err := e.templates.Verification(user.Email, user.Name, e.link(e.config.Email.VerifyPath, tk.Token), e.verify.TTL())
	if err != nil {
		e.log.Error().Err(err).Msg("jobAuth: render verification email")
		return
	}
	e.deliver(ctx, msg, user.ID)
	e.emitAudit(ctx, audit.Event{EventType: audit.EventEmailVerificationSent, UserID: user.ID, Success: true})
}

func (e *Engine) sendPasswordReset(ctx context.Context, user *store.User, tk *flows.IssuedToken) {
	msg, err := e.templates.PasswordReset(user.Email, user.Name, e.link(e.config.Email.ResetPath, tk.Token), e.reset.TTL())
	if err != nil {
		e.log.Error().Err(err).Msg("jobAuth: render password reset email")
		return
	}
	e.deliver(ctx, msg, user.ID)
}

func (e *Engine) notifyLocked(ctx context.Context, user *store.User, attempts int, until *time.Time) {
	msg, err := e.templates.AccountLocked(user.Email, user.Name, attempts, until)
	if err != nil {
		e.log.Error().Err(err).Msg("jobAuth: render lock notice")
		return
	}
	e.deliver(ctx, msg, user.ID)
}

func (e *Engine) notifyUnlocked(ctx context.Context, user *store.User) {
	msg, err := e.templates.AccountUnlocked(user.Email, user.Name)
	if err != nil {
		e.log.Error().Err(err).Msg("jobAuth: render unlock notice")
		return
	}
	e.deliver(ctx, msg, user.ID)
}
