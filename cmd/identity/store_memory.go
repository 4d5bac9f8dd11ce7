package identity

import (
	"context"
	"iter"
	"strings"
	"sync"
	"time"
)

var _ Store = (*MemoryStore)(nil)

// MemoryStore is a dev/test fallback when no database is configured.
//
// The username index is maintained under the same mutex as the record map,
// so check-and-insert is atomic and concurrent Create calls for the same
// username resolve to exactly one winner, matching the SQL stores.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]Identity // id -> record
	byNorm  map[string]string   // username_norm -> id
}

// NewMemoryStore constructs an empty in-memory Store implementation.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]Identity),
		byNorm:  make(map[string]string),
	}
}

// Create persists a new record, enforcing username uniqueness atomically.
func (s *MemoryStore) Create(ctx context.Context, in CreateInput) (Identity, error) {
	const op = "identity.Create"

	if err := ctx.Err(); err != nil {
		return Identity{}, err
	}

	username := strings.TrimSpace(in.Username)
	if username == "" {
		return Identity{}, OpError{Op: op, Kind: ErrInvalidInput, Msg: "username is required"}
	}
	if strings.TrimSpace(in.PasswordHash) == "" {
		return Identity{}, OpError{Op: op, Kind: ErrInvalidInput, Msg: "password hash is required"}
	}

	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	id, err := NewULID(now)
	if err != nil {
		return Identity{}, err
	}
	norm := NormalizeUsername(username)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.byNorm[norm]; taken {
		return Identity{}, ConflictError{Op: op, Field: "username"}
	}

	rec := Identity{
		ID:           id,
		Username:     username,
		UsernameNorm: norm,
		PasswordHash: in.PasswordHash,
		CreatedAt:    now,
	}
	s.records[id] = rec
	s.byNorm[norm] = id

	return rec, nil
}

// Get returns the record for id.
func (s *MemoryStore) Get(ctx context.Context, id string) (Identity, error) {
	const op = "identity.Get"

	if err := ctx.Err(); err != nil {
		return Identity{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[strings.TrimSpace(id)]
	if !ok {
		return Identity{}, NotFoundError{Op: op, Resource: "identity"}
	}
	return rec, nil
}

// GetByUsername returns the record holding username (case-insensitive).
func (s *MemoryStore) GetByUsername(ctx context.Context, username string) (Identity, error) {
	const op = "identity.GetByUsername"

	if err := ctx.Err(); err != nil {
		return Identity{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byNorm[NormalizeUsername(username)]
	if !ok {
		return Identity{}, NotFoundError{Op: op, Resource: "identity"}
	}
	return s.records[id], nil
}

// List yields a snapshot of all records. Each range re-snapshots the store,
// which keeps the sequence restartable. Map iteration order applies, so
// insertion order is not guaranteed.
func (s *MemoryStore) List(ctx context.Context) iter.Seq2[Identity, error] {
	return func(yield func(Identity, error) bool) {
		if err := ctx.Err(); err != nil {
			yield(Identity{}, err)
			return
		}

		s.mu.Lock()
		snapshot := make([]Identity, 0, len(s.records))
		for _, rec := range s.records {
			snapshot = append(snapshot, rec)
		}
		s.mu.Unlock()

		for _, rec := range snapshot {
			if !yield(rec, nil) {
				return
			}
		}
	}
}

// Update overlays the present fields of changes onto the record identified by
// id, including a re-specified id.
func (s *MemoryStore) Update(ctx context.Context, id string, changes UpdateChanges) (Identity, error) {
	const op = "identity.Update"

	if err := ctx.Err(); err != nil {
		return Identity{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id = strings.TrimSpace(id)
	rec, ok := s.records[id]
	if !ok {
		return Identity{}, NotFoundError{Op: op, Resource: "identity"}
	}

	// Stage the overlay and validate every change before touching the maps,
	// so a rejected update leaves the store exactly as it was.
	next := rec
	if u := trimPtr(changes.Username); u != nil {
		norm := NormalizeUsername(*u)
		if holder, taken := s.byNorm[norm]; taken && holder != id {
			return Identity{}, ConflictError{Op: op, Field: "username"}
		}
		next.Username = *u
		next.UsernameNorm = norm
	}
	if h := changes.PasswordHash; h != nil {
		next.PasswordHash = *h
	}
	if n := trimPtr(changes.ID); n != nil && *n != id {
		if _, taken := s.records[*n]; taken {
			return Identity{}, ConflictError{Op: op, Field: "id"}
		}
		next.ID = *n
	}

	delete(s.records, id)
	delete(s.byNorm, rec.UsernameNorm)
	s.records[next.ID] = next
	s.byNorm[next.UsernameNorm] = next.ID

	return next, nil
}

// Delete removes the record; deleting an absent id is a no-op success.
func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[strings.TrimSpace(id)]
	if !ok {
		return nil
	}
	delete(s.records, rec.ID)
	delete(s.byNorm, rec.UsernameNorm)
	return nil
}
