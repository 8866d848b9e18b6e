// Package ident is an identity and credential lifecycle engine: account
// registration, email verification, two-step login (password plus an optional
// TOTP second factor with single-use backup codes), time-bounded password
// reset tokens, and federated-identity linking.
//
// The package is designed for concurrent server workloads: Engine methods are
// safe to call from multiple goroutines after initialization through
// [Builder.Build].
//
// # Architecture boundaries
//
// ident is the public surface. It exposes [Engine], [Builder], [Config], the
// [Account] entity, and the collaborator interfaces [Store], [Notifier], and
// [SessionIssuer]. Transport concerns (HTTP routing, JSON shapes, cookies) and
// schema migration belong to the caller; the engine returns decision outcomes
// and sentinel errors that the boundary layer maps to its wire format.
//
// # What this package must NOT do
//
//   - Establish sessions implicitly: session material is produced only by an
//     injected [SessionIssuer], and only on a fully authenticated outcome.
//   - Let a notification failure roll back or fail a committed state change.
//   - Expose whether an account exists on the login or password-reset paths.
package ident
