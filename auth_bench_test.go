package ident

import (
	"context"
	"testing"
	"time"
)

func newBenchmarkEngine(b *testing.B) (*Engine, *Account) {
	b.Helper()

	cfg := fastTestConfig()
	engine, err := New().
		WithConfig(cfg).
		WithStore(newMemStore()).
		WithNotifier(&fakeNotifier{}).
		WithSessionIssuer(&fakeSessions{}).
		Build()
	if err != nil {
		b.Fatalf("Build failed: %v", err)
	}
	b.Cleanup(engine.Close)

	ctx := context.Background()
	account, err := engine.Register(ctx, "alice", "alice@example.com", "correct-password-123")
	if err != nil {
		b.Fatalf("Register failed: %v", err)
	}
	verified, err := engine.VerifyEmail(ctx, account.VerificationToken)
	if err != nil {
		b.Fatalf("VerifyEmail failed: %v", err)
	}
	return engine, verified
}

func BenchmarkLogin(b *testing.B) {
	engine, _ := newBenchmarkEngine(b)

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := engine.Login(context.Background(), "alice", "correct-password-123"); err != nil {
			b.Fatalf("login failed: %v", err)
		}
	}
}

func BenchmarkProfile(b *testing.B) {
	engine, account := newBenchmarkEngine(b)

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := engine.Profile(context.Background(), account.ID); err != nil {
			b.Fatalf("profile failed: %v", err)
		}
	}
}

func BenchmarkTOTPVerify(b *testing.B) {
	m := newTOTPManager(TwoFactorConfig{
		Issuer:    "ident",
		Digits:    6,
		Period:    30,
		Algorithm: "SHA1",
		Skew:      1,
	})
	secret := base32NoPad.EncodeToString([]byte("12345678901234567890"))
	now := time.Unix(1234567890, 0)
	code, err := m.currentCode(secret, now)
	if err != nil {
		b.Fatalf("currentCode failed: %v", err)
	}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		ok, err := m.VerifyCode(secret, code, now)
		if err != nil || !ok {
			b.Fatalf("verify failed, ok=%v err=%v", ok, err)
		}
	}
}
