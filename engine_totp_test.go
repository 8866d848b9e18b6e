package ident

import (
	"context"
	"strings"
	"testing"
)

func TestProvisionTwoFactor(t *testing.T) {
	h := newTestEngine(t)
	ctx := context.Background()
	account := h.registerVerified(t, "alice", "alice@example.com", "correct-horse-battery")

	setup, err := h.engine.ProvisionTwoFactor(ctx, account.ID)
	if err != nil {
		t.Fatalf("ProvisionTwoFactor failed: %v", err)
	}
	if setup.Secret == "" {
		t.Fatal("expected a generated secret")
	}
	if !strings.HasPrefix(setup.URI, "otpauth://totp/") {
		t.Fatalf("unexpected provisioning URI %q", setup.URI)
	}
	if !strings.Contains(setup.URI, "secret="+setup.Secret) {
		t.Fatal("URI must carry the secret")
	}

	stored := h.store.snapshot(t, account.ID)
	if stored.TwoFactorEnabled {
		t.Fatal("provisioning must not enable the factor before confirmation")
	}
	if stored.TwoFactorSecret != setup.Secret {
		t.Fatal("staged secret not persisted")
	}

	// Login stays single-step until the factor is confirmed.
	result, err := h.engine.Login(ctx, "alice", "correct-horse-battery")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if result.TwoFactorRequired {
		t.Fatal("unconfirmed provisioning must not gate login")
	}
}

func TestProvisionTwoFactorAlreadyEnabled(t *testing.T) {
	h := newTestEngine(t)
	account := h.registerVerified(t, "alice", "alice@example.com", "correct-horse-battery")
	h.enableTwoFactor(t, account.ID)

	_, err := h.engine.ProvisionTwoFactor(context.Background(), account.ID)
	mustBeSentinel(t, err, ErrTwoFactorAlreadyEnabled)
}

func TestProvisionTwoFactorUnknownAccount(t *testing.T) {
	h := newTestEngine(t)

	_, err := h.engine.ProvisionTwoFactor(context.Background(), "ghost")
	mustBeSentinel(t, err, ErrAccountNotFound)
}

func TestConfirmTwoFactorEnablesAndIssuesBackupCodes(t *testing.T) {
	h := newTestEngine(t)
	ctx := context.Background()
	account := h.registerVerified(t, "alice", "alice@example.com", "correct-horse-battery")

	setup, err := h.engine.ProvisionTwoFactor(ctx, account.ID)
	if err != nil {
		t.Fatalf("ProvisionTwoFactor failed: %v", err)
	}

	codes, err := h.engine.ConfirmTwoFactor(ctx, account.ID, h.totpCodeNow(t, setup.Secret))
	if err != nil {
		t.Fatalf("ConfirmTwoFactor failed: %v", err)
	}
	if len(codes) != DefaultConfig().TwoFactor.BackupCodeCount {
		t.Fatalf("expected %d backup codes, got %d", DefaultConfig().TwoFactor.BackupCodeCount, len(codes))
	}

	seen := make(map[string]bool, len(codes))
	for _, code := range codes {
		if seen[code] {
			t.Fatalf("duplicate backup code %q", code)
		}
		seen[code] = true
	}

	stored := h.store.snapshot(t, account.ID)
	if !stored.TwoFactorEnabled {
		t.Fatal("confirmation must enable the factor")
	}
	if len(stored.BackupCodes) != len(codes) {
		t.Fatalf("expected %d stored hashes, got %d", len(codes), len(stored.BackupCodes))
	}
}

func TestConfirmTwoFactorWrongCode(t *testing.T) {
	h := newTestEngine(t)
	ctx := context.Background()
	account := h.registerVerified(t, "alice", "alice@example.com", "correct-horse-battery")

	if _, err := h.engine.ProvisionTwoFactor(ctx, account.ID); err != nil {
		t.Fatalf("ProvisionTwoFactor failed: %v", err)
	}

	_, err := h.engine.ConfirmTwoFactor(ctx, account.ID, "000000")
	mustBeSentinel(t, err, ErrTwoFactorCodeInvalid)

	if h.store.snapshot(t, account.ID).TwoFactorEnabled {
		t.Fatal("failed confirmation must not enable the factor")
	}
}

func TestConfirmTwoFactorWithoutProvisioning(t *testing.T) {
	h := newTestEngine(t)
	account := h.registerVerified(t, "alice", "alice@example.com", "correct-horse-battery")

	_, err := h.engine.ConfirmTwoFactor(context.Background(), account.ID, "123456")
	mustBeSentinel(t, err, ErrTwoFactorNotProvisioned)
}

func TestDisableTwoFactorWipesState(t *testing.T) {
	h := newTestEngine(t)
	ctx := context.Background()
	account := h.registerVerified(t, "alice", "alice@example.com", "correct-horse-battery")
	h.enableTwoFactor(t, account.ID)

	if err := h.engine.DisableTwoFactor(ctx, account.ID); err != nil {
		t.Fatalf("DisableTwoFactor failed: %v", err)
	}

	stored := h.store.snapshot(t, account.ID)
	if stored.TwoFactorEnabled || stored.TwoFactorSecret != "" || len(stored.BackupCodes) != 0 {
		t.Fatalf("disable must wipe all second-factor state: %+v", stored)
	}

	result, err := h.engine.Login(ctx, "alice", "correct-horse-battery")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if result.TwoFactorRequired {
		t.Fatal("login must be single-step again after disable")
	}
}

func TestDisableTwoFactorIdempotent(t *testing.T) {
	h := newTestEngine(t)
	account := h.registerVerified(t, "alice", "alice@example.com", "correct-horse-battery")

	if err := h.engine.DisableTwoFactor(context.Background(), account.ID); err != nil {
		t.Fatalf("disable on non-enrolled account failed: %v", err)
	}
}
