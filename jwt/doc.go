// Package jwt manages session-token issuance and verification using configured signing keys
// and strict validation semantics. The Manager satisfies the engine's SessionIssuer interface.
package jwt
