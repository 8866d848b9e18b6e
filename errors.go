package ident

import "errors"

// Store-level sentinels. Store implementations return these; the Engine maps
// them onto the workflow errors below before anything reaches the caller.
var (
	// ErrNotFound is returned by a Store when no record matches the lookup.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate is returned by a Store when a write violates a uniqueness
	// constraint (username, email, token, or provider identity).
	ErrDuplicate = errors.New("duplicate record")
	// ErrTokenNotFound is returned by Store.ConsumeToken when no account holds
	// the presented token.
	ErrTokenNotFound = errors.New("token not found")
)

// Workflow sentinels returned from Engine methods.
var (
	// ErrEngineNotReady is an exported constant or variable used by the identity engine.
	ErrEngineNotReady = errors.New("engine not initialized")
	// ErrMissingFields is an exported constant or variable used by the identity engine.
	ErrMissingFields = errors.New("missing required fields")
	// ErrAccountExists is an exported constant or variable used by the identity engine.
	ErrAccountExists = errors.New("account already exists")
	// ErrAccountNotFound is an exported constant or variable used by the identity engine.
	ErrAccountNotFound = errors.New("account not found")
	// ErrAccountNotActive is an exported constant or variable used by the identity engine.
	ErrAccountNotActive = errors.New("account not active")
	// ErrAlreadyVerified is an exported constant or variable used by the identity engine.
	ErrAlreadyVerified = errors.New("email already verified")
	// ErrInvalidCredentials is an exported constant or variable used by the identity engine.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrPasswordPolicy is an exported constant or variable used by the identity engine.
	ErrPasswordPolicy = errors.New("password policy violation")
	// ErrTokenInvalid is an exported constant or variable used by the identity engine.
	ErrTokenInvalid = errors.New("invalid token")
	// ErrTokenExpired is an exported constant or variable used by the identity engine.
	ErrTokenExpired = errors.New("token expired")
	// ErrTwoFactorNotProvisioned is an exported constant or variable used by the identity engine.
	ErrTwoFactorNotProvisioned = errors.New("second factor not provisioned")
	// ErrTwoFactorAlreadyEnabled is an exported constant or variable used by the identity engine.
	ErrTwoFactorAlreadyEnabled = errors.New("second factor already enabled")
	// ErrTwoFactorCodeInvalid is an exported constant or variable used by the identity engine.
	ErrTwoFactorCodeInvalid = errors.New("invalid second-factor code")
	// ErrUnsupportedProvider is an exported constant or variable used by the identity engine.
	ErrUnsupportedProvider = errors.New("unsupported identity provider")
	// ErrProviderAlreadyLinked is an exported constant or variable used by the identity engine.
	ErrProviderAlreadyLinked = errors.New("provider identity already linked")
	// ErrProviderNotLinked is an exported constant or variable used by the identity engine.
	ErrProviderNotLinked = errors.New("provider identity not linked")
	// ErrLastCredential is an exported constant or variable used by the identity engine.
	ErrLastCredential = errors.New("cannot remove the only remaining credential")
	// ErrTokenIssueFailed is an exported constant or variable used by the identity engine.
	ErrTokenIssueFailed = errors.New("token issuance failed")
	// ErrSessionIssueFailed is an exported constant or variable used by the identity engine.
	ErrSessionIssueFailed = errors.New("session issuance failed")
	// ErrStoreUnavailable is an exported constant or variable used by the identity engine.
	ErrStoreUnavailable = errors.New("credential store unavailable")
)
