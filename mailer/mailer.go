// Package mailer delivers the account emails the engine sends: verification links,
// reset links and lock notices.
package mailer

import (
	"context"
	"errors"
	"sync"
)

// Kind tags a message with the flow that produced it.
type Kind string

const (
	KindEmailVerification Kind = "email_verification"
	KindPasswordReset     Kind = "password_reset"
	KindAccountLocked     Kind = "account_locked"
	KindAccountUnlocked   Kind = "account_unlocked"
)

// Message is one outbound email.
type Message struct {
	To      string
	Subject string
	HTML    string
	Text    string
	Kind    Kind
	UserID  string
}

// ErrNoRecipient is returned for a message without a To address.
var ErrNoRecipient = errors.New("mailer: no recipient")

// Sender delivers messages. Implementations must honour ctx cancellation.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// SenderFunc adapts a function to Sender.
type SenderFunc func(ctx context.Context, msg Message) error

func (f SenderFunc) Send(ctx context.Context, msg Message) error { return f(ctx, msg) }

// Recorder keeps every message in memory. It is safe for concurrent use.
type Recorder struct {
	mu       sync.Mutex
	messages []Message
	// Err, when set, is returned by Send after recording.
	Err error
}

func (r *Recorder) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	r.messages = append(r.messages, msg)
	err := r.Err
	r.mu.Unlock()
	return err
}

// Messages returns a copy of everything sent so far.
func (r *Recorder) Messages() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Message(nil), r.messages...)
}

// Last returns the most recent message of kind sent to addr.
func (r *Recorder) Last(addr string, kind Kind) (Message, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.messages) - 1; i >= 0; i-- {
		m := r.messages[i]
		if m.To == addr && m.Kind == kind {
			return m, true
		}
	}
	return Message{}, false
}

// Count returns how many messages of kind were sent to addr.
func (r *Recorder) Count(addr string, kind Kind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, m := range r.messages {
		if m.To == addr && m.Kind == kind {
			n++
		}
	}
	return n
}
