// Package authn implements the identity authenticator: credential
// verification, token issuance, and lifecycle operations over identity
// records.
//
// It owns the business rules above the identity.Store boundary. Uniqueness is
// ultimately enforced by the store's atomic check-and-insert; the advisory
// UsernameAvailable pre-check here is an early exit, not the source of truth.
package authn
