// Package internal contains helper utilities that are intentionally private to ident,
// currently secure random generation for single-use tokens and backup codes.
//
// # What this package must NOT do
//
//   - Export types that appear in the public ident API.
//   - Be imported by any package outside the ident module.
package internal
