// Package mail provides ident.Notifier implementations.
//
// SMTP delivers lifecycle messages (verification links, reset links, change
// confirmations) through an SMTP relay; Logger writes them to a log for
// local development.
//
// What this package must NOT do:
//
//   - It must not compose lifecycle URLs or tokens. The engine owns message
//     content; this package only delivers it.
//   - It must not retry. Delivery failures surface to the engine, which
//     records them without failing the triggering operation.
package mail
