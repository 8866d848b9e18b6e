package mail

import (
	"bytes"
	"context"
	"strings"
	"testing"
)

func TestNewSMTPValidation(t *testing.T) {
	if _, err := NewSMTP(SMTPConfig{Port: 587, FromAddress: "noreply@example.com"}); err == nil {
		t.Fatal("expected missing host to be rejected")
	}
	if _, err := NewSMTP(SMTPConfig{Host: "smtp.example.com", Port: 587}); err == nil {
		t.Fatal("expected missing from address to be rejected")
	}
	if _, err := NewSMTP(SMTPConfig{Host: "smtp.example.com", Port: 587, FromAddress: "noreply@example.com"}); err != nil {
		t.Fatalf("NewSMTP failed: %v", err)
	}
}

func TestSMTPMessageHeaders(t *testing.T) {
	s, err := NewSMTP(SMTPConfig{
		Host:        "smtp.example.com",
		Port:        587,
		FromAddress: "noreply@example.com",
		FromName:    "Ident",
	})
	if err != nil {
		t.Fatalf("NewSMTP failed: %v", err)
	}

	var buf bytes.Buffer
	m := s.message("alice@example.com", "Verify your email address", "https://example.com/verify?token=x")
	if _, err := m.WriteTo(&buf); err != nil {
		t.Fatalf("WriteTo failed: %v", err)
	}

	raw := buf.String()
	for _, want := range []string{
		"To: alice@example.com",
		"Subject: Verify your email address",
		"noreply@example.com",
	} {
		if !strings.Contains(raw, want) {
			t.Fatalf("message missing %q:\n%s", want, raw)
		}
	}
}

func TestLoggerSend(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(&buf)

	if err := l.Send(context.Background(), "bob@example.com", "Reset your password", "link"); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if !strings.Contains(buf.String(), "bob@example.com") {
		t.Fatalf("log output missing recipient: %s", buf.String())
	}
}

func TestLoggerSendCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var buf bytes.Buffer
	if err := NewLogger(&buf).Send(ctx, "a@b.c", "s", "b"); err == nil {
		t.Fatal("expected cancelled context error")
	}
}
