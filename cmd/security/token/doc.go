// Package token issues and verifies brink-auth's signed authentication tokens.
//
// It is the single source of truth for token format and signing behavior.
//
// Design goals:
//   - Tokens are HS256 JWTs carrying exactly {id, exp}: the identity's id and
//     an absolute expiration instant. Any verifier holding the same secret can
//     validate authenticity and expiration offline, without contacting the store.
//   - The signing secret is process-wide configuration loaded once at startup,
//     never a hardcoded literal.
//
// Environment:
//   - BRINK_TOKEN_SECRET: the HMAC signing secret (required, min 32 bytes).
//   - BRINK_TOKEN_TTL: token lifetime (default 24h).
package token
