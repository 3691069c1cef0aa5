package mailer

import (
	"bytes"
	"context"
	"errors"
	"net"
	"strings"
	"testing"
	"time"

	"gopkg.in/gomail.v2"
)

func TestSMTPSenderBuildsMessage(t *testing.T) {
	var sent *gomail.Message
	s := &SMTPSender{from: "noreply@example.com", send: func(m *gomail.Message) error {
		sent = m
		return nil
	}}

	err := s.Send(context.Background(), Message{
		To:      "a@example.com",
		Subject: "Verify your email address",
		HTML:    "<p>hi</p>",
		Text:    "hi",
		Kind:    KindEmailVerification,
	})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if got := sent.GetHeader("To"); len(got) != 1 || got[0] != "a@example.com" {
		t.Fatalf("unexpected To header %v", got)
	}
	if got := sent.GetHeader("X-Mail-Kind"); len(got) != 1 || got[0] != "email_verification" {
		t.Fatalf("unexpected kind header %v", got)
	}

	var buf bytes.Buffer
	if _, err := sent.WriteTo(&buf); err != nil {
		t.Fatalf("WriteTo: %v", err)
	}
	if !strings.Contains(buf.String(), "text/html") || !strings.Contains(buf.String(), "text/plain") {
		t.Fatal("expected an HTML body with a plain-text alternative")
	}
}

func TestSMTPSenderErrors(t *testing.T) {
	boom := errors.New("dial failed")
	s := &SMTPSender{from: "noreply@example.com", send: func(*gomail.Message) error { return boom }}

	if err := s.Send(context.Background(), Message{}); !errors.Is(err, ErrNoRecipient) {
		t.Fatalf("expected ErrNoRecipient, got %v", err)
	}
	if err := s.Send(context.Background(), Message{To: "a@example.com"}); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped dial error, got %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := s.Send(ctx, Message{To: "a@example.com"}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestNewSMTPSenderValidates(t *testing.T) {
	if _, err := NewSMTPSender(SMTPConfig{Port: 587, From: "x@example.com"}); err == nil {
		t.Fatal("expected error without host")
	}
	if _, err := NewSMTPSender(SMTPConfig{Host: "smtp.example.com", Port: 587, From: "x@example.com"}); err != nil {
		t.Fatalf("NewSMTPSender: %v", err)
	}
}

func TestNewSMTPSenderDialsRelay(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	_ = ln.Close()

	s, err := NewSMTPSender(SMTPConfig{Host: "127.0.0.1", Port: port, From: "x@example.com"})
	if err != nil {
		t.Fatalf("NewSMTPSender: %v", err)
	}
	err = s.Send(context.Background(), Message{To: "a@example.com", Subject: "hi", Text: "body", Kind: KindEmailVerification})
	if err == nil {
		t.Fatal("expected dial error from a closed port")
	}
	if !strings.Contains(err.Error(), "mailer: send") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestTemplatesEscapeAndLink(t *testing.T) {
	tpl := Templates{AppName: "Tracker"}
	msg, err := tpl.Verification("a@example.com", "<b>Ann</b>", "https://app.example.com/verify-email?token=abc", 24*time.Hour)
	if err != nil {
		t.Fatalf("Verification: %v", err)
	}
	if strings.Contains(msg.HTML, "<b>Ann</b>") {
		t.Fatal("name must be HTML-escaped")
	}
	if !strings.Contains(msg.HTML, "token=abc") || msg.Kind != KindEmailVerification {
		t.Fatalf("unexpected message %+v", msg)
	}

	locked, err := tpl.AccountLocked("a@example.com", "Ann", 5, nil)
	if err != nil {
		t.Fatalf("AccountLocked: %v", err)
	}
	if !strings.Contains(locked.HTML, "Contact support") {
		t.Fatal("manual lock should point at support")
	}
}

func TestRecorder(t *testing.T) {
	var r Recorder
	ctx := context.Background()
	_ = r.Send(ctx, Message{To: "a@example.com", Kind: KindPasswordReset, Text: "first"})
	_ = r.Send(ctx, Message{To: "a@example.com", Kind: KindPasswordReset, Text: "second"})

	if r.Count("a@example.com", KindPasswordReset) != 2 {
		t.Fatal("expected two reset messages")
	}
	last, ok := r.Last("a@example.com", KindPasswordReset)
	if !ok || last.Text != "second" {
		t.Fatalf("unexpected last message %+v", last)
	}
}
