package ident

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Config defines a public type used by ident APIs.
//
// Config instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Config struct {
	Password  PasswordConfig
	Tokens    TokenConfig
	TwoFactor TwoFactorConfig
	Providers []Provider
	Mail      MailConfig
	Audit     AuditConfig
	Metrics   MetricsConfig
}

// PasswordConfig carries the argon2id parameters for the credential vault plus
// the local password policy. MinLength of zero disables the length check;
// the vault itself never enforces policy.
type PasswordConfig struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
	MinLength   int
}

// TokenConfig defines a public type used by ident APIs.
//
// TokenConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type TokenConfig struct {
	// VerificationTTL bounds email-verification tokens (default 24h).
	VerificationTTL time.Duration
	// ResetTTL bounds password-reset tokens (default 1h).
	ResetTTL time.Duration
	// IssueAttempts caps retries when the store reports a token collision.
	IssueAttempts int
}

// TTL returns the configured lifetime for the token class.
func (c TokenConfig) TTL(class TokenClass) time.Duration {
	if class == TokenReset {
		return c.ResetTTL
	}
	return c.VerificationTTL
}

// TwoFactorConfig defines a public type used by ident APIs.
//
// TwoFactorConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type TwoFactorConfig struct {
	// Issuer is the label embedded in provisioning URIs.
	Issuer string
	Digits int
	Period int
	// Skew is the clock-drift tolerance in time steps on either side of now.
	Skew int
	// Algorithm selects the HMAC hash: SHA1 (default), SHA256 or SHA512.
	// Most authenticator apps only honour SHA1.
	Algorithm string

	BackupCodeCount  int
	BackupCodeLength int
}

// MailConfig holds the link prefixes embedded in outbound messages. The token
// is appended verbatim; the boundary layer owns the routes behind them.
type MailConfig struct {
	VerificationURL string
	ResetURL        string
}

// AuditConfig defines a public type used by ident APIs.
//
// AuditConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig defines a public type used by ident APIs.
//
// MetricsConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type MetricsConfig struct {
	Enabled bool
}

// DefaultConfig returns the baseline configuration: OWASP-aligned argon2id
// parameters, spec TTLs (24h verification, 1h reset), six-digit TOTP with a
// one-step skew window, ten ten-character backup codes, and the google/github
// provider set.
func DefaultConfig() Config {
	return Config{
		Password: PasswordConfig{
			Memory:      19 * 1024,
			Time:        2,
			Parallelism: 1,
			SaltLength:  16,
			KeyLength:   32,
			MinLength:   0,
		},
		Tokens: TokenConfig{
			VerificationTTL: 24 * time.Hour,
			ResetTTL:        time.Hour,
			IssueAttempts:   4,
		},
		TwoFactor: TwoFactorConfig{
			Issuer:           "ident",
			Digits:           6,
			Period:           30,
			Skew:             1,
			Algorithm:        "SHA1",
			BackupCodeCount:  10,
			BackupCodeLength: 10,
		},
		Providers: []Provider{ProviderGoogle, ProviderGitHub},
		Mail: MailConfig{
			VerificationURL: "http://localhost:8080/verify-email/",
			ResetURL:        "http://localhost:8080/reset-password/",
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled: false,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	if cfg.Providers != nil {
		out.Providers = make([]Provider, len(cfg.Providers))
		copy(out.Providers, cfg.Providers)
	}
	return out
}

// Validate checks the configuration for values the engine cannot operate
// with. It is called by the builder before any component is constructed.
func (c *Config) Validate() error {
	cfg := *c
	if cfg.Tokens.VerificationTTL <= 0 {
		return errors.New("verification token TTL must be positive")
	}
	if cfg.Tokens.ResetTTL <= 0 {
		return errors.New("reset token TTL must be positive")
	}
	if cfg.Tokens.IssueAttempts < 1 {
		return errors.New("token issue attempts must be >= 1")
	}
	if cfg.TwoFactor.Issuer == "" {
		return errors.New("two-factor issuer label must be set")
	}
	if cfg.TwoFactor.Digits < 6 || cfg.TwoFactor.Digits > 8 {
		return errors.New("two-factor digits must be between 6 and 8")
	}
	if cfg.TwoFactor.Period < 15 {
		return errors.New("two-factor period must be >= 15 seconds")
	}
	if cfg.TwoFactor.Skew < 0 || cfg.TwoFactor.Skew > 2 {
		return errors.New("two-factor skew must be between 0 and 2 steps")
	}
	switch strings.ToUpper(cfg.TwoFactor.Algorithm) {
	case "", "SHA1", "SHA256", "SHA512":
	default:
		return fmt.Errorf("unsupported two-factor algorithm %q", cfg.TwoFactor.Algorithm)
	}
	if cfg.TwoFactor.BackupCodeCount < 1 {
		return errors.New("backup code count must be >= 1")
	}
	if cfg.TwoFactor.BackupCodeLength < 8 {
		return errors.New("backup code length must be >= 8")
	}
	if len(cfg.Providers) == 0 {
		return errors.New("at least one federated provider must be configured")
	}
	seen := make(map[Provider]struct{}, len(cfg.Providers))
	for _, p := range cfg.Providers {
		if p == "" {
			return errors.New("provider name must not be empty")
		}
		if _, dup := seen[p]; dup {
			return fmt.Errorf("provider %q configured twice", p)
		}
		seen[p] = struct{}{}
	}
	if cfg.Audit.Enabled && cfg.Audit.BufferSize < 1 {
		return errors.New("audit buffer size must be >= 1 when audit is enabled")
	}
	return nil
}

func (cfg Config) providerSupported(p Provider) bool {
	for _, known := range cfg.Providers {
		if known == p {
			return true
		}
	}
	return false
}
