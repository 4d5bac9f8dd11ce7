// Package identity implements brink-auth's identity foundation.
//
// It contains the Identity data model, the Store persistence boundary with
// Postgres, SQLite and in-memory implementations, and the ID/password
// primitives shared by the authenticator and HTTP layers.
//
// This package is intentionally dependency-light and security-first.
package identity
