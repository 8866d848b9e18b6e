package ident

import "time"

// Provider names a federated identity provider ("google", "github", ...).
// The supported set is configured per engine; unknown providers are rejected
// at the boundary of the identity linker.
type Provider string

const (
	// ProviderGoogle is an exported constant or variable used by the identity engine.
	ProviderGoogle Provider = "google"
	// ProviderGitHub is an exported constant or variable used by the identity engine.
	ProviderGitHub Provider = "github"
)

// TokenClass distinguishes the two single-use token kinds carried on an
// Account. Both share the same mechanics; only the TTL and the effect applied
// on consumption differ.
type TokenClass uint8

const (
	// TokenVerification is an exported constant or variable used by the identity engine.
	TokenVerification TokenClass = iota
	// TokenReset is an exported constant or variable used by the identity engine.
	TokenReset
)

// String returns the wire label for the token class.
func (c TokenClass) String() string {
	switch c {
	case TokenVerification:
		return "verification"
	case TokenReset:
		return "reset"
	default:
		return "unknown"
	}
}

// BackupCodeRecord stores the SHA-256 hash of a single backup code.
// The plaintext is never persisted.
type BackupCodeRecord struct {
	Hash [32]byte
}

// Account is the single durable entity of the engine. All workflows mutate an
// Account through the [Store]; the engine itself holds no state between calls.
//
// Invariants maintained by the engine and enforced by Store implementations:
// Username and Email are unique; Username is immutable after creation; a
// provider/external-ID pair belongs to at most one account; a non-empty token
// always has a non-zero expiry and is cleared exactly once; EmailVerified
// implies Active; BackupCodes is non-empty only while TwoFactorEnabled.
type Account struct {
	ID       string
	Username string
	Email    string

	// PasswordHash is empty for accounts created through a federated login
	// that never set a local password.
	PasswordHash string

	Active        bool
	EmailVerified bool

	VerificationToken  string
	VerificationExpiry time.Time
	ResetToken         string
	ResetExpiry        time.Time

	TwoFactorEnabled bool
	TwoFactorSecret  string
	BackupCodes      []BackupCodeRecord

	Identities      map[Provider]string
	PrimaryProvider Provider

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Clone returns a deep copy. Store implementations hand out clones so callers
// can mutate freely before the next Update.
func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	out := *a
	if a.BackupCodes != nil {
		out.BackupCodes = make([]BackupCodeRecord, len(a.BackupCodes))
		copy(out.BackupCodes, a.BackupCodes)
	}
	if a.Identities != nil {
		out.Identities = make(map[Provider]string, len(a.Identities))
		for p, id := range a.Identities {
			out.Identities[p] = id
		}
	}
	return &out
}

// Token returns the stored token and expiry for the given class.
func (a *Account) Token(class TokenClass) (string, time.Time) {
	if class == TokenReset {
		return a.ResetToken, a.ResetExpiry
	}
	return a.VerificationToken, a.VerificationExpiry
}

// SetToken overwrites any prior token of the class.
func (a *Account) SetToken(class TokenClass, token string, expiry time.Time) {
	if class == TokenReset {
		a.ResetToken = token
		a.ResetExpiry = expiry
		return
	}
	a.VerificationToken = token
	a.VerificationExpiry = expiry
}

// ClearToken removes the token and expiry of the class.
func (a *Account) ClearToken(class TokenClass) {
	a.SetToken(class, "", time.Time{})
}

// LinkedProviders lists the providers currently associated with the account,
// in unspecified order.
func (a *Account) LinkedProviders() []Provider {
	if len(a.Identities) == 0 {
		return nil
	}
	out := make([]Provider, 0, len(a.Identities))
	for p := range a.Identities {
		out = append(out, p)
	}
	return out
}

// Touch bumps UpdatedAt. Every mutation routed through the engine calls it
// before the store write.
func (a *Account) Touch(now time.Time) {
	a.UpdatedAt = now
}
