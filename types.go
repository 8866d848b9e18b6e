package ident

import (
	"context"
	"time"
)

// Store is the credential store consumed by the engine. Callers implement it
// over their database of choice; [github.com/keelhouse/ident/store.Redis] is
// the shipped implementation.
//
// Implementations must enforce the uniqueness invariants of [Account]
// (returning [ErrDuplicate] on violation), return [ErrNotFound] for misses,
// and execute ConsumeToken and ConsumeBackupCode as single atomic
// read-modify-write operations: two concurrent consumers of the same token or
// code must not both succeed.
type Store interface {
	GetByID(ctx context.Context, id string) (*Account, error)
	GetByUsername(ctx context.Context, username string) (*Account, error)
	GetByEmail(ctx context.Context, email string) (*Account, error)
	GetByProviderIdentity(ctx context.Context, provider Provider, externalID string) (*Account, error)
	Create(ctx context.Context, account *Account) error
	Update(ctx context.Context, account *Account) error

	// ConsumeToken looks up the account holding the token of the given class
	// and atomically clears the token and expiry fields. It returns
	// [ErrTokenNotFound] when no account holds the token, and [ErrTokenExpired]
	// (without clearing anything) when now is past the stored expiry.
	ConsumeToken(ctx context.Context, class TokenClass, token string, now time.Time) (*Account, error)

	// ConsumeBackupCode atomically removes the backup code with the given hash
	// from the account and reports whether it was present.
	ConsumeBackupCode(ctx context.Context, accountID string, hash [32]byte) (bool, error)
}

// Notifier delivers outbound mail. Delivery is best-effort: the engine commits
// state before calling Send and never fails a workflow on a Send error (the
// error is logged and audited instead).
type Notifier interface {
	Send(ctx context.Context, to, subject, body string) error
}

// SessionIssuer turns a fully authenticated account into session material.
// It is an explicitly injected capability: the engine invokes it only on an
// authenticated outcome, never on the intermediate two-factor state. Engines
// built without one return authenticated results with an empty SessionToken.
type SessionIssuer interface {
	IssueSession(ctx context.Context, accountID string) (string, error)
}

// LoginResult is returned by [Engine.Login], [Engine.CompleteTwoFactor], and
// [Engine.FederatedLogin].
//
// When TwoFactorRequired is true the password step succeeded but no session
// exists yet; the result carries only the account identifier needed to call
// CompleteTwoFactor. Otherwise the login is authenticated and SessionToken
// holds the issuer's session material (empty when no issuer is configured).
type LoginResult struct {
	AccountID         string
	TwoFactorRequired bool
	SessionToken      string
}

// TwoFactorSetup holds the base32 secret and otpauth:// URI returned by
// [Engine.ProvisionTwoFactor] for presentation as an enrollment artifact.
type TwoFactorSetup struct {
	Secret string
	URI    string
}

// FederatedIdentity is the validated result of an upstream provider handshake.
// The engine trusts that the provider verified the identity (and its email)
// out-of-band; Username must already be resolved to a unique value by the
// caller, since the engine does not rename on collision.
type FederatedIdentity struct {
	Provider   Provider
	ExternalID string
	Email      string
	Username   string
}

// Profile is a read-only account snapshot safe to expose to the account
// holder. Backup codes appear only as a remaining count; the plaintext is
// returned exactly once, at generation time.
type Profile struct {
	AccountID            string
	Username             string
	Email                string
	EmailVerified        bool
	Active               bool
	TwoFactorEnabled     bool
	BackupCodesRemaining int
	PrimaryProvider      Provider
	LinkedProviders      []Provider
	CreatedAt            time.Time
}
