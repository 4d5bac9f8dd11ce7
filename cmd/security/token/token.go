package token

import (
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	// SecretEnvKey is the env var name for the token signing secret.
	// #nosec G101 -- not a credential; it's an environment variable name.
	SecretEnvKey = "BRINK_TOKEN_SECRET"

	// TTLEnvKey is the env var name for the token lifetime.
	TTLEnvKey = "BRINK_TOKEN_TTL"

	// DefaultTTL matches the service's historical 24-hour token lifetime.
	DefaultTTL = 24 * time.Hour
)

// Claims is the signed token payload: the identity's id plus the registered
// exp claim. Nothing else is embedded.
type Claims struct {
	ID string `json:"id"`
	jwt.RegisteredClaims
}

// Signer issues and verifies HS256-signed identity tokens.
type Signer struct {
	secret []byte
	ttl    time.Duration
}

// NewSigner constructs a Signer. The secret must be at least 32 bytes
// (HMAC-SHA256 guidance); ttl <= 0 falls back to DefaultTTL.
func NewSigner(secret []byte, ttl time.Duration) (*Signer, error) {
	if len(secret) == 0 {
		return nil, ErrSecretMissing
	}
	if len(secret) < 32 {
		return nil, ErrSecretTooShort
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Signer{secret: secret, ttl: ttl}, nil
}

// NewSignerFromEnv constructs a Signer from BRINK_TOKEN_SECRET and
// BRINK_TOKEN_TTL. The secret is required; an unset or invalid TTL falls back
// to DefaultTTL.
func NewSignerFromEnv() (*Signer, error) {
	secret, err := SecretFromEnv(32)
	if err != nil {
		return nil, err
	}

	ttl := DefaultTTL
	if v := strings.TrimSpace(os.Getenv(TTLEnvKey)); v != "" {
		d, err := time.ParseDuration(v)
		if err == nil && d > 0 {
			ttl = d
		}
	}

	return NewSigner(secret, ttl)
}

// SecretFromEnv returns the configured signing secret bytes (trimmed),
// enforcing a minimum byte length.
// If the env var is missing/blank -> ErrSecretMissing.
// If too short -> ErrSecretTooShort.
func SecretFromEnv(minBytes int) ([]byte, error) {
	raw := strings.TrimSpace(os.Getenv(SecretEnvKey))
	if raw == "" {
		return nil, ErrSecretMissing
	}
	b := []byte(raw)
	if minBytes > 0 && len(b) < minBytes {
		return nil, ErrSecretTooShort
	}
	return b, nil
}

// TTL reports the configured token lifetime.
func (s *Signer) TTL() time.Duration { return s.ttl }

// Issue signs a token embedding id with an absolute expiration of now + TTL.
// It returns the compact token string and its expiration instant so callers
// can hand both to clients for offline caching.
func (s *Signer) Issue(id string, now time.Time) (string, time.Time, error) {
	if now.IsZero() {
		now = time.Now().UTC()
	}
	exp := now.Add(s.ttl)

	claims := &Claims{
		ID: id,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}

	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

// Verify parses and validates a token, enforcing the HS256 method and
// expiration relative to now. All failures collapse into ErrInvalidToken.
func (s *Signer) Verify(tokenStr string, now time.Time) (Claims, error) {
	if now.IsZero() {
		now = time.Now().UTC()
	}

	parsed, err := jwt.ParseWithClaims(tokenStr, &Claims{},
		func(t *jwt.Token) (any, error) { return s.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(func() time.Time { return now }),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return Claims{}, ErrInvalidToken
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || claims.ID == "" {
		return Claims{}, ErrInvalidToken
	}
	return *claims, nil
}
