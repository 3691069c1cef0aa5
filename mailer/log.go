package mailer

import (
	"context"

	"github.com/rs/zerolog"
)

// LogSender logs messages instead of delivering them. The body is never logged
// because it carries single-use tokens.
type LogSender struct {
	Log zerolog.Logger
}

func (s LogSender) Send(_ context.Context, msg Message) error {
	if msg.To == "" {
		return ErrNoRecipient
	}
	s.Log.Info().
		Str("to", msg.To).
		Str("kind", string(msg.Kind)).
		Str("user_id", msg.UserID).
		Str("subject", msg.Subject).
		Msg("mailer: email not delivered, no SMTP relay configured")
	return nil
}
