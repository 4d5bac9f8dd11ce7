package authn

import (
	"context"
	"iter"
	"log/slog"
	"strings"
	"time"

	"github.com/lohmander/brink-auth/cmd/identity"
)

// TokenIssuer signs identity tokens. Satisfied by *token.Signer.
type TokenIssuer interface {
	Issue(id string, now time.Time) (token string, exp time.Time, err error)
	TTL() time.Duration
}

// IssuedToken is the result of issuing a token: the compact signed string and
// its absolute expiration instant, returned together so clients can cache.
type IssuedToken struct {
	Token     string
	ExpiresAt time.Time
}

// CreateInput describes a new identity registration request.
type CreateInput struct {
	Username string
	Password string
}

// Service implements the high-level identity operations for brink-auth.
//
// It verifies credentials, issues signed expiring tokens, enforces the
// advisory username availability check, and applies partial-update semantics.
// All persistence goes through the identity.Store boundary; the service holds
// only transient in-memory copies during a request's lifetime.
type Service struct {
	store  identity.Store
	signer TokenIssuer
	log    *slog.Logger

	// dummyHash is verified against when a username is unknown, so that
	// lookup misses and password mismatches take comparable time.
	dummyHash string
}

// NewService constructs a Service over the given store and token signer.
func NewService(store identity.Store, signer TokenIssuer, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}

	s := &Service{store: store, signer: signer, log: log}

	if hash, err := identity.HashPassword("dummy-password-for-timing-only", identity.DefaultArgon2idParams()); err == nil {
		s.dummyHash = hash
	}

	return s
}

// Authenticate verifies the supplied credentials against the stored record.
//
// Unknown usernames and wrong passwords fail identically with
// identity.ErrUnauthorized, so callers cannot enumerate usernames. On success
// the stored identity is returned with its password hash stripped.
func (s *Service) Authenticate(ctx context.Context, username, password string) (identity.Identity, error) {
	const op = "authn.Authenticate"

	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return identity.Identity{}, unauthorized(op)
	}

	rec, err := s.store.GetByUsername(ctx, username)
	if err != nil {
		if identity.IsNotFound(err) {
			// Timing resistance: perform a dummy verify when the user is missing.
			if s.dummyHash != "" {
				_, _ = identity.VerifyPassword(password, s.dummyHash)
			}
			return identity.Identity{}, unauthorized(op)
		}
		return identity.Identity{}, err
	}

	ok, err := identity.VerifyPassword(password, rec.PasswordHash)
	if err != nil || !ok {
		return identity.Identity{}, unauthorized(op)
	}

	rec.PasswordHash = ""
	return rec, nil
}

// IssueToken produces a signed token embedding the identity's id, expiring at
// now plus the signer's TTL (24 hours by default).
func (s *Service) IssueToken(rec identity.Identity, now time.Time) (IssuedToken, error) {
	if now.IsZero() {
		now = time.Now().UTC()
	}

	tok, exp, err := s.signer.Issue(rec.ID, now)
	if err != nil {
		return IssuedToken{}, err
	}
	return IssuedToken{Token: tok, ExpiresAt: exp}, nil
}

// UsernameAvailable reports whether no live record holds username.
//
// This check-then-create sequence is inherently racy; the store's Create
// performs the definitive uniqueness enforcement atomically. This check is an
// optimization/early-exit only.
func (s *Service) UsernameAvailable(ctx context.Context, username string) (bool, error) {
	_, err := s.store.GetByUsername(ctx, username)
	if err != nil {
		if identity.IsNotFound(err) {
			return true, nil
		}
		return false, err
	}
	return false, nil
}

// CreateIdentity validates the payload, hashes the password, and persists a
// new record. The returned record has its password hash stripped.
func (s *Service) CreateIdentity(ctx context.Context, in CreateInput) (identity.Identity, error) {
	const op = "authn.CreateIdentity"

	username := strings.TrimSpace(in.Username)
	if username == "" {
		return identity.Identity{}, invalid(op, "username is required")
	}
	if in.Password == "" {
		return identity.Identity{}, invalid(op, "password is required")
	}

	available, err := s.UsernameAvailable(ctx, username)
	if err != nil {
		return identity.Identity{}, err
	}
	if !available {
		return identity.Identity{}, identity.ConflictError{Op: op, Field: "username"}
	}

	hash, err := identity.HashPassword(in.Password, identity.DefaultArgon2idParams())
	if err != nil {
		return identity.Identity{}, invalid(op, err.Error())
	}

	rec, err := s.store.Create(ctx, identity.CreateInput{
		Username:     username,
		PasswordHash: hash,
		Now:          time.Now().UTC(),
	})
	if err != nil {
		// The advisory check above may have raced; the store's constraint wins.
		return identity.Identity{}, err
	}

	rec.PasswordHash = ""
	return rec, nil
}

// GetIdentity fetches a single record by id with its password hash stripped.
func (s *Service) GetIdentity(ctx context.Context, id string) (identity.Identity, error) {
	const op = "authn.GetIdentity"

	if strings.TrimSpace(id) == "" {
		return identity.Identity{}, invalid(op, "id is required")
	}

	rec, err := s.store.Get(ctx, id)
	if err != nil {
		return identity.Identity{}, err
	}

	rec.PasswordHash = ""
	return rec, nil
}

// UpdateIdentity overlays the present fields of p onto the record identified
// by id and persists the result. A supplied p.ID re-specifies the record id
// (the deliberate overwrite path).
//
// Username uniqueness is NOT re-checked here; the original service skipped it
// on update. The storage layer's unique index still rejects collisions, which
// surface as ConflictError.
func (s *Service) UpdateIdentity(ctx context.Context, id string, p identity.Partial) (identity.Identity, error) {
	const op = "authn.UpdateIdentity"

	if strings.TrimSpace(id) == "" {
		return identity.Identity{}, invalid(op, "id is required")
	}

	changes := identity.UpdateChanges{
		ID:       p.ID,
		Username: p.Username,
	}
	if p.Password != nil {
		if *p.Password == "" {
			return identity.Identity{}, invalid(op, "password must not be empty")
		}
		hash, err := identity.HashPassword(*p.Password, identity.DefaultArgon2idParams())
		if err != nil {
			return identity.Identity{}, invalid(op, err.Error())
		}
		changes.PasswordHash = &hash
	}

	rec, err := s.store.Update(ctx, id, changes)
	if err != nil {
		return identity.Identity{}, err
	}

	rec.PasswordHash = ""
	return rec, nil
}

// DeleteIdentity removes the record; deleting an absent id succeeds.
// There are no cascading side effects.
func (s *Service) DeleteIdentity(ctx context.Context, id string) error {
	const op = "authn.DeleteIdentity"

	if strings.TrimSpace(id) == "" {
		return invalid(op, "id is required")
	}
	return s.store.Delete(ctx, id)
}

// ListIdentities yields all records with password hashes stripped. The
// sequence is restartable (each range re-reads the store).
func (s *Service) ListIdentities(ctx context.Context) iter.Seq2[identity.Identity, error] {
	return func(yield func(identity.Identity, error) bool) {
		for rec, err := range s.store.List(ctx) {
			if err != nil {
				yield(identity.Identity{}, err)
				return
			}
			rec.PasswordHash = ""
			if !yield(rec, nil) {
				return
			}
		}
	}
}

func unauthorized(op string) error {
	return identity.OpError{Op: op, Kind: identity.ErrUnauthorized, Msg: "incorrect username or password"}
}

func invalid(op, msg string) error {
	return identity.OpError{Op: op, Kind: identity.ErrInvalidInput, Msg: msg}
}
