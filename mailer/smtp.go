package mailer

import (
	"context"
	"errors"
	"fmt"

	"gopkg.in/gomail.v2"
)

// SMTPConfig holds SMTP connection settings.
type SMTPConfig struct {
	Host     string `env:"HOST"`
	Port     int    `env:"PORT" envDefault:"587"`
	Username string `env:"USERNAME"`
	Password string `env:"PASSWORD"`
	From     string `env:"FROM"`
}

// Configured reports whether enough is set to dial a server.
func (c SMTPConfig) Configured() bool {
	return c.Host != "" && c.From != ""
}

func (c SMTPConfig) validate() error {
	if c.Host == "" {
		return errors.New("mailer: missing SMTP host")
	}
	if c.Port == 0 {
		return errors.New("mailer: missing SMTP port")
	}
	if c.From == "" {
		return errors.New("mailer: missing SMTP from address")
	}
	return nil
}

// SMTPSender sends through an SMTP relay with gomail.
type SMTPSender struct {
	from string
	send func(*gomail.Message) error
}

// NewSMTPSender validates cfg and returns a sender that dials per message.
func NewSMTPSender(cfg SMTPConfig) (*SMTPSender, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	dialer := gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	send := func(m *gomail.Message) error { return dialer.DialAndSend(m) }
	return &SMTPSender{from: cfg.From, send: send}, nil
}

// Send builds the MIME message and delivers it. gomail has no context support, so
// cancellation abandons the wait rather than the dial.
func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	if msg.To == "" {
		return ErrNoRecipient
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	m := s.build(msg)
	done := make(chan error, 1)
	go func() { done <- s.send(m) }()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("mailer: send %s: %w", msg.Kind, err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *SMTPSender) build(msg Message) *gomail.Message {
	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", msg.To)
	m.SetHeader("Subject", msg.Subject)
	if msg.Kind != "" {
		m.SetHeader("X-Mail-Kind", string(msg.Kind))
	}

	if msg.HTML != "" {
		m.SetBody("text/html", msg.HTML)
		if msg.Text != "" {
			m.AddAlternative("text/plain", msg.Text)
		}
	} else {
		m.SetBody("text/plain", msg.Text)
	}
	return m
}
