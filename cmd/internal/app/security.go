package app

import (
	"errors"

	"github.com/lohmander/brink-auth/cmd/security/token"
)

// ValidateSecurityConfig enforces the startup security policy.
//
// Fail-fast is intentional: a service that signs tokens with a missing or
// weak secret must refuse to start rather than degrade silently.
func ValidateSecurityConfig() error {
	// Minimum 32 bytes per HMAC-SHA256 guidance; bytes, not runes, because
	// the secret is used as raw key material.
	if _, err := token.SecretFromEnv(32); err != nil {
		switch {
		case errors.Is(err, token.ErrSecretMissing):
			return errors.New("security policy: " + token.SecretEnvKey + " is not set")
		case errors.Is(err, token.ErrSecretTooShort):
			return errors.New("security policy: " + token.SecretEnvKey + " is too short (min 32 bytes)")
		default:
			return err
		}
	}
	return nil
}
