package ident

import (
	"context"
	"testing"
)

func TestLoginWithEmail(t *testing.T) {
	h := newTestEngine(t)
	account := h.registerVerified(t, "alice", "alice@example.com", "correct-horse-battery")

	result, err := h.engine.Login(context.Background(), "alice@example.com", "correct-horse-battery")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if result.TwoFactorRequired {
		t.Fatal("no second factor enrolled, none may be demanded")
	}
	if result.AccountID != account.ID {
		t.Fatalf("wrong account: %q", result.AccountID)
	}
	if result.SessionToken != "sess-"+account.ID {
		t.Fatalf("unexpected session token %q", result.SessionToken)
	}
}

func TestLoginWithUsername(t *testing.T) {
	h := newTestEngine(t)
	h.registerVerified(t, "alice", "alice@example.com", "correct-horse-battery")

	if _, err := h.engine.Login(context.Background(), "alice", "correct-horse-battery"); err != nil {
		t.Fatalf("Login by username failed: %v", err)
	}
}

func TestLoginWrongPassword(t *testing.T) {
	h := newTestEngine(t)
	h.registerVerified(t, "alice", "alice@example.com", "correct-horse-battery")

	_, err := h.engine.Login(context.Background(), "alice", "wrong-password")
	mustBeSentinel(t, err, ErrInvalidCredentials)
}

func TestLoginUnknownIdentifierHidesExistence(t *testing.T) {
	h := newTestEngine(t)

	// Unknown identifiers and inactive accounts must be indistinguishable.
	_, err := h.engine.Login(context.Background(), "ghost@example.com", "whatever")
	mustBeSentinel(t, err, ErrAccountNotActive)
}

func TestLoginInactiveRejectedBeforePasswordCheck(t *testing.T) {
	h := newTestEngine(t)
	ctx := context.Background()

	if _, err := h.engine.Register(ctx, "alice", "alice@example.com", "correct-horse-battery"); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	// Correct and incorrect passwords must produce the same error while the
	// account is not yet active.
	_, err := h.engine.Login(ctx, "alice", "correct-horse-battery")
	mustBeSentinel(t, err, ErrAccountNotActive)

	_, err = h.engine.Login(ctx, "alice", "wrong-password")
	mustBeSentinel(t, err, ErrAccountNotActive)
}

func TestLoginFederatedOnlyAccountHasNoPassword(t *testing.T) {
	h := newTestEngine(t)
	ctx := context.Background()

	result, err := h.engine.FederatedLogin(ctx, FederatedIdentity{
		Provider:   ProviderGoogle,
		ExternalID: "g-1",
		Email:      "alice@example.com",
		Username:   "alice",
	})
	if err != nil {
		t.Fatalf("FederatedLogin failed: %v", err)
	}

	_, err = h.engine.Login(ctx, "alice@example.com", "anything")
	mustBeSentinel(t, err, ErrInvalidCredentials)

	if _, err := h.engine.Profile(ctx, result.AccountID); err != nil {
		t.Fatalf("Profile failed: %v", err)
	}
}

func TestLoginMissingFields(t *testing.T) {
	h := newTestEngine(t)

	_, err := h.engine.Login(context.Background(), "", "pw")
	mustBeSentinel(t, err, ErrMissingFields)

	_, err = h.engine.Login(context.Background(), "alice", "")
	mustBeSentinel(t, err, ErrMissingFields)
}

func TestLoginRequiresSecondFactorWhenEnabled(t *testing.T) {
	h := newTestEngine(t)
	account := h.registerVerified(t, "alice", "alice@example.com", "correct-horse-battery")
	h.enableTwoFactor(t, account.ID)

	result, err := h.engine.Login(context.Background(), "alice", "correct-horse-battery")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if !result.TwoFactorRequired {
		t.Fatal("expected second factor challenge")
	}
	if result.SessionToken != "" {
		t.Fatal("no session may be issued before the second factor")
	}
}

func TestCompleteTwoFactorWithTOTP(t *testing.T) {
	h := newTestEngine(t)
	account := h.registerVerified(t, "alice", "alice@example.com", "correct-horse-battery")
	secret, _ := h.enableTwoFactor(t, account.ID)

	result, err := h.engine.CompleteTwoFactor(context.Background(), account.ID, h.totpCodeNow(t, secret))
	if err != nil {
		t.Fatalf("CompleteTwoFactor failed: %v", err)
	}
	if result.SessionToken != "sess-"+account.ID {
		t.Fatalf("unexpected session token %q", result.SessionToken)
	}
}

func TestCompleteTwoFactorWithBackupCode(t *testing.T) {
	h := newTestEngine(t)
	ctx := context.Background()
	account := h.registerVerified(t, "alice", "alice@example.com", "correct-horse-battery")
	_, codes := h.enableTwoFactor(t, account.ID)

	result, err := h.engine.CompleteTwoFactor(ctx, account.ID, codes[0])
	if err != nil {
		t.Fatalf("CompleteTwoFactor with backup code failed: %v", err)
	}
	if result.SessionToken == "" {
		t.Fatal("expected session after backup code")
	}

	// Each backup code works exactly once.
	_, err = h.engine.CompleteTwoFactor(ctx, account.ID, codes[0])
	mustBeSentinel(t, err, ErrTwoFactorCodeInvalid)

	profile, err := h.engine.Profile(ctx, account.ID)
	if err != nil {
		t.Fatalf("Profile failed: %v", err)
	}
	if profile.BackupCodesRemaining != len(codes)-1 {
		t.Fatalf("expected %d codes remaining, got %d", len(codes)-1, profile.BackupCodesRemaining)
	}
}

func TestCompleteTwoFactorWrongCode(t *testing.T) {
	h := newTestEngine(t)
	account := h.registerVerified(t, "alice", "alice@example.com", "correct-horse-battery")
	h.enableTwoFactor(t, account.ID)

	_, err := h.engine.CompleteTwoFactor(context.Background(), account.ID, "000000")
	mustBeSentinel(t, err, ErrTwoFactorCodeInvalid)
}

func TestCompleteTwoFactorNotProvisioned(t *testing.T) {
	h := newTestEngine(t)
	account := h.registerVerified(t, "alice", "alice@example.com", "correct-horse-battery")

	_, err := h.engine.CompleteTwoFactor(context.Background(), account.ID, "123456")
	mustBeSentinel(t, err, ErrTwoFactorNotProvisioned)
}

func TestCompleteTwoFactorUnknownAccount(t *testing.T) {
	h := newTestEngine(t)

	_, err := h.engine.CompleteTwoFactor(context.Background(), "ghost", "123456")
	mustBeSentinel(t, err, ErrAccountNotActive)
}

func TestLoginWithoutSessionIssuer(t *testing.T) {
	store := newMemStore()
	engine, err := New().
		WithConfig(fastTestConfig()).
		WithStore(store).
		WithNotifier(&fakeNotifier{}).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)

	ctx := context.Background()
	account, err := engine.Register(ctx, "alice", "alice@example.com", "correct-horse-battery")
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if _, err := engine.VerifyEmail(ctx, account.VerificationToken); err != nil {
		t.Fatalf("VerifyEmail failed: %v", err)
	}

	result, err := engine.Login(ctx, "alice", "correct-horse-battery")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if result.SessionToken != "" {
		t.Fatal("engines without a session issuer return an empty token")
	}
}
