package ident

import (
	"context"
	"strings"
	"testing"
	"time"
)

func TestRequestPasswordResetUnknownEmailIsSilent(t *testing.T) {
	h := newTestEngine(t)

	if err := h.engine.RequestPasswordReset(context.Background(), "ghost@example.com"); err != nil {
		t.Fatalf("expected indistinguishable success, got %v", err)
	}
	if h.notifier.count() != 0 {
		t.Fatal("no mail may be sent for unknown addresses")
	}
}

func TestResetPasswordFlow(t *testing.T) {
	h := newTestEngine(t)
	ctx := context.Background()
	account := h.registerVerified(t, "alice", "alice@example.com", "old-password-123")

	if err := h.engine.RequestPasswordReset(ctx, "alice@example.com"); err != nil {
		t.Fatalf("RequestPasswordReset failed: %v", err)
	}
	token, _ := h.store.snapshot(t, account.ID).Token(TokenReset)
	if token == "" {
		t.Fatal("expected reset token issued")
	}
	if !strings.Contains(h.notifier.last(t).body, token) {
		t.Fatal("reset mail must carry the token link")
	}

	if err := h.engine.ResetPassword(ctx, token, "new-password-456"); err != nil {
		t.Fatalf("ResetPassword failed: %v", err)
	}

	_, err := h.engine.Login(ctx, "alice", "old-password-123")
	mustBeSentinel(t, err, ErrInvalidCredentials)

	if _, err := h.engine.Login(ctx, "alice", "new-password-456"); err != nil {
		t.Fatalf("login with new password failed: %v", err)
	}

	// Consumed tokens are gone.
	err = h.engine.ResetPassword(ctx, token, "another-password-789")
	mustBeSentinel(t, err, ErrTokenInvalid)
}

func TestResetPasswordExpiredToken(t *testing.T) {
	h := newTestEngine(t)
	ctx := context.Background()
	account := h.registerVerified(t, "alice", "alice@example.com", "old-password-123")

	if err := h.engine.RequestPasswordReset(ctx, "alice@example.com"); err != nil {
		t.Fatalf("RequestPasswordReset failed: %v", err)
	}
	token, _ := h.store.snapshot(t, account.ID).Token(TokenReset)

	h.store.mutate(t, account.ID, func(a *Account) {
		a.ResetExpiry = time.Now().UTC().Add(-time.Minute)
	})

	err := h.engine.ResetPassword(ctx, token, "new-password-456")
	mustBeSentinel(t, err, ErrTokenExpired)

	if _, err := h.engine.Login(ctx, "alice", "old-password-123"); err != nil {
		t.Fatalf("old password must survive an expired reset attempt: %v", err)
	}
}

func TestResetPasswordPolicyCheckedBeforeConsume(t *testing.T) {
	h := newTestEngine(t, func(cfg *Config) {
		cfg.Password.MinLength = 12
	})
	ctx := context.Background()
	account := h.registerVerified(t, "alice", "alice@example.com", "old-password-123")

	if err := h.engine.RequestPasswordReset(ctx, "alice@example.com"); err != nil {
		t.Fatalf("RequestPasswordReset failed: %v", err)
	}
	token, _ := h.store.snapshot(t, account.ID).Token(TokenReset)

	err := h.engine.ResetPassword(ctx, token, "short")
	mustBeSentinel(t, err, ErrPasswordPolicy)

	// The rejected attempt must not burn the token.
	if err := h.engine.ResetPassword(ctx, token, "long-enough-password"); err != nil {
		t.Fatalf("token must survive a policy rejection: %v", err)
	}
}

func TestResetPasswordInvalidToken(t *testing.T) {
	h := newTestEngine(t)

	err := h.engine.ResetPassword(context.Background(), "no-such-token", "new-password-456")
	mustBeSentinel(t, err, ErrTokenInvalid)
}

func TestRequestPasswordResetReplacesOutstandingToken(t *testing.T) {
	h := newTestEngine(t)
	ctx := context.Background()
	account := h.registerVerified(t, "alice", "alice@example.com", "old-password-123")

	if err := h.engine.RequestPasswordReset(ctx, "alice@example.com"); err != nil {
		t.Fatalf("first request failed: %v", err)
	}
	first, _ := h.store.snapshot(t, account.ID).Token(TokenReset)

	if err := h.engine.RequestPasswordReset(ctx, "alice@example.com"); err != nil {
		t.Fatalf("second request failed: %v", err)
	}
	second, _ := h.store.snapshot(t, account.ID).Token(TokenReset)
	if first == second {
		t.Fatal("each request must mint a fresh token")
	}

	err := h.engine.ResetPassword(ctx, first, "new-password-456")
	mustBeSentinel(t, err, ErrTokenInvalid)

	if err := h.engine.ResetPassword(ctx, second, "new-password-456"); err != nil {
		t.Fatalf("latest token must work: %v", err)
	}
}

func TestChangePassword(t *testing.T) {
	h := newTestEngine(t)
	ctx := context.Background()
	account := h.registerVerified(t, "alice", "alice@example.com", "old-password-123")

	if err := h.engine.ChangePassword(ctx, account.ID, "old-password-123", "new-password-456"); err != nil {
		t.Fatalf("ChangePassword failed: %v", err)
	}

	_, err := h.engine.Login(ctx, "alice", "old-password-123")
	mustBeSentinel(t, err, ErrInvalidCredentials)

	if _, err := h.engine.Login(ctx, "alice", "new-password-456"); err != nil {
		t.Fatalf("login with new password failed: %v", err)
	}
}

func TestChangePasswordWrongCurrent(t *testing.T) {
	h := newTestEngine(t)
	account := h.registerVerified(t, "alice", "alice@example.com", "old-password-123")

	err := h.engine.ChangePassword(context.Background(), account.ID, "wrong", "new-password-456")
	mustBeSentinel(t, err, ErrInvalidCredentials)
}

func TestChangePasswordUnknownAccount(t *testing.T) {
	h := newTestEngine(t)

	err := h.engine.ChangePassword(context.Background(), "ghost", "old", "new-password-456")
	mustBeSentinel(t, err, ErrAccountNotFound)
}

func TestChangePasswordPolicy(t *testing.T) {
	h := newTestEngine(t, func(cfg *Config) {
		cfg.Password.MinLength = 12
	})
	account := h.registerVerified(t, "alice", "alice@example.com", "old-password-123")

	err := h.engine.ChangePassword(context.Background(), account.ID, "old-password-123", "short")
	mustBeSentinel(t, err, ErrPasswordPolicy)
}
