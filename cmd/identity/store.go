package identity

import (
	"context"
	"iter"
	"strings"
	"time"
)

// Identity is brink-auth's canonical account record.
//
// PasswordHash is the Argon2id PHC string; the cleartext password is never
// persisted. Callers that hand records to a serialization boundary must strip
// PasswordHash first (the HTTP layer owns response shapes without it).
type Identity struct {
	ID           string
	Username     string
	UsernameNorm string
	PasswordHash string

	CreatedAt time.Time
}

// Partial is an explicit partial representation of an Identity, one optional
// field per mutable attribute. A nil field means "leave unchanged".
//
// ID is included deliberately: the update operation allows the caller to
// re-specify the record id, which is then persisted as part of the record.
// This is an unusual overwrite path kept on purpose.
type Partial struct {
	ID       *string
	Username *string
	Password *string
}

// CreateInput describes a new identity record. The password has already been
// hashed by the authenticator; stores never see cleartext.
type CreateInput struct {
	Username     string
	PasswordHash string
	Now          time.Time
}

// UpdateChanges carries the hashed form of a Partial for persistence.
// Present fields replace the stored values; absent fields are untouched.
type UpdateChanges struct {
	ID           *string
	Username     *string
	PasswordHash *string
}

// Store is the identity persistence boundary.
//
// Uniqueness contract: Create performs the definitive, atomic username
// uniqueness enforcement (unique index or equivalent). Any advisory
// availability pre-check at a higher layer is an optimization only;
// two concurrent Create calls for the same username must resolve so that
// exactly one succeeds and the other observes ConflictError.
type Store interface {
	// Create persists a new record and returns it with its assigned id.
	// Returns ConflictError{Field: "username"} if the username is taken.
	Create(ctx context.Context, in CreateInput) (Identity, error)

	// Get returns the record for id, or an error matching ErrNotFound.
	Get(ctx context.Context, id string) (Identity, error)

	// GetByUsername returns the record holding username (case-insensitive),
	// or an error matching ErrNotFound. Used for credential lookup and the
	// advisory availability check.
	GetByUsername(ctx context.Context, username string) (Identity, error)

	// List yields all records. The sequence is lazy and restartable:
	// each range over it re-reads the store. Order is not guaranteed.
	// A store I/O fault surfaces as a single (zero Identity, err) element.
	List(ctx context.Context) iter.Seq2[Identity, error]

	// Update overlays the present fields of changes onto the record
	// identified by id and persists the result. Returns NotFoundError if the
	// target is absent, and ConflictError if a username change collides.
	Update(ctx context.Context, id string, changes UpdateChanges) (Identity, error)

	// Delete removes the record. Deleting an absent id is a no-op success.
	Delete(ctx context.Context, id string) error
}

// trimPtr trims a string pointer, returning nil if the result is empty.
// All store backends use it to turn blank overlay fields into absent ones.
func trimPtr(p *string) *string {
	if p == nil {
		return nil
	}
	s := strings.TrimSpace(*p)
	if s == "" {
		return nil
	}
	return &s
}
