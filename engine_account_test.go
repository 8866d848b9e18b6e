package ident

import (
	"context"
	"testing"
)

func TestProfile(t *testing.T) {
	h := newTestEngine(t)
	ctx := context.Background()
	account := h.registerVerified(t, "alice", "alice@example.com", "correct-horse-battery")
	h.enableTwoFactor(t, account.ID)

	if err := h.engine.LinkProvider(ctx, account.ID, googleIdentity("g-1")); err != nil {
		t.Fatalf("LinkProvider failed: %v", err)
	}

	profile, err := h.engine.Profile(ctx, account.ID)
	if err != nil {
		t.Fatalf("Profile failed: %v", err)
	}
	if profile.AccountID != account.ID || profile.Username != "alice" || profile.Email != "alice@example.com" {
		t.Fatalf("unexpected profile: %+v", profile)
	}
	if !profile.Active || !profile.EmailVerified || !profile.TwoFactorEnabled {
		t.Fatalf("unexpected status flags: %+v", profile)
	}
	if profile.BackupCodesRemaining != DefaultConfig().TwoFactor.BackupCodeCount {
		t.Fatalf("unexpected backup code count %d", profile.BackupCodesRemaining)
	}
	if len(profile.LinkedProviders) != 1 || profile.LinkedProviders[0] != ProviderGoogle {
		t.Fatalf("unexpected linked providers: %+v", profile.LinkedProviders)
	}
}

func TestProfileUnknownAccount(t *testing.T) {
	h := newTestEngine(t)

	_, err := h.engine.Profile(context.Background(), "ghost")
	mustBeSentinel(t, err, ErrAccountNotFound)
}
