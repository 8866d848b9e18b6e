// Package store provides the Redis-backed persistence layer for identity
// accounts.
//
// Layout and guarantees:
//
//   - Account records are JSON documents keyed by account id.
//   - Username, email, lifecycle-token, and provider-identity uniqueness is
//     enforced through index keys, never by scanning.
//   - Token consumption and backup-code consumption are compare-and-clear
//     operations under WATCH, so a value shared by two racing callers is
//     honored at most once.
//
// What this package must NOT do:
//
//   - It must not interpret passwords, TOTP secrets, or token lifetimes.
//     Policy lives in the ident package; this package only persists state
//     and enforces uniqueness and single-use atomicity.
//   - It must not silently treat an expired lifecycle token as missing.
//     Expired consumes return ident.ErrTokenExpired and leave the stored
//     token in place.
package store
