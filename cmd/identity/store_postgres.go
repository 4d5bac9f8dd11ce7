package identity

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var _ Store = (*PostgresStore)(nil)

// PostgresStore implements identity persistence over PostgreSQL.
//
// Design notes:
// - The pgx pool is owned by the caller; this store must NOT close it.
// - Schema/table identifiers are safely quoted to avoid SQL injection via identifiers.
// - Username uniqueness is enforced by a unique index on username_norm; the
//   store classifies 23505 violations into ConflictError so the check-and-insert
//   is atomic at the database, never a read-then-write at a higher layer.
// - Errors are mapped to identity sentinel kinds where appropriate.
type PostgresStore struct {
	pool   *pgxpool.Pool
	schema string
}

// PostgresOption configures the store.
type PostgresOption func(*PostgresStore) error

var pgIdentRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// WithSchema sets the Postgres schema used by the identity store (default "brink").
// The schema name is validated to be a legal PostgreSQL identifier.
func WithSchema(schema string) PostgresOption {
	return func(s *PostgresStore) error {
		schema = strings.TrimSpace(schema)
		if schema == "" {
			return fmt.Errorf("identity: empty schema")
		}
		if !pgIdentRe.MatchString(schema) {
			return fmt.Errorf("identity: invalid schema identifier")
		}
		s.schema = schema
		return nil
	}
}

// NewPostgresStore constructs a PostgresStore with secure defaults.
func NewPostgresStore(pool *pgxpool.Pool, opts ...PostgresOption) (*PostgresStore, error) {
	st := &PostgresStore{
		pool:   pool,
		schema: "brink",
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(st); err != nil {
			return nil, err
		}
	}
	if st.pool == nil {
		return nil, fmt.Errorf("identity: nil pool")
	}
	return st, nil
}

const identityColumns = `id, username, username_norm, password_hash, created_at`

// Create persists a new identity row. Username uniqueness is enforced by the
// database; a violation maps to ConflictError{Field: "username"}.
func (s *PostgresStore) Create(ctx context.Context, in CreateInput) (Identity, error) {
	const op = "identity.Create"

	if s == nil || s.pool == nil {
		return Identity{}, OpError{Op: op, Kind: ErrInvalidInput, Msg: "nil store"}
	}
	if err := ctx.Err(); err != nil {
		return Identity{}, err
	}

	username := strings.TrimSpace(in.Username)
	if username == "" {
		return Identity{}, pgInvalid(op, "username is required")
	}
	if strings.TrimSpace(in.PasswordHash) == "" {
		return Identity{}, pgInvalid(op, "password hash is required")
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
	identities := pgIdent(s.schema, "identities")

	_, err = s.pool.Exec(ctx,
		`INSERT INTO `+identities+` (
		     id, username, username_norm, password_hash, created_at
		   ) VALUES ($1, $2, $3, $4, $5)`,
		id, username, norm, in.PasswordHash, now,
	)
	if err != nil {
		if field, ok := pgClassifyUniqueViolation(err); ok {
			return Identity{}, ConflictError{Op: op, Field: field}
		}
		return Identity{}, err
	}

	return Identity{
		ID:           id,
		Username:     username,
		UsernameNorm: norm,
		PasswordHash: in.PasswordHash,
		CreatedAt:    now,
	}, nil
}

// Get loads an identity row by id.
func (s *PostgresStore) Get(ctx context.Context, id string) (Identity, error) {
	const op = "identity.Get"

	if s == nil || s.pool == nil {
		return Identity{}, OpError{Op: op, Kind: ErrInvalidInput, Msg: "nil store"}
	}
	if err := ctx.Err(); err != nil {
		return Identity{}, err
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return Identity{}, pgInvalid(op, "missing id")
	}

	identities := pgIdent(s.schema, "identities")

	var out Identity
	err := s.pool.QueryRow(ctx,
		`SELECT `+identityColumns+` FROM `+identities+` WHERE id = $1`,
		id,
	).Scan(&out.ID, &out.Username, &out.UsernameNorm, &out.PasswordHash, &out.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Identity{}, NotFoundError{Op: op, Resource: "identity"}
		}
		return Identity{}, err
	}
	return out, nil
}

// GetByUsername loads an identity row by its normalized username.
func (s *PostgresStore) GetByUsername(ctx context.Context, username string) (Identity, error) {
	const op = "identity.GetByUsername"

	if s == nil || s.pool == nil {
		return Identity{}, OpError{Op: op, Kind: ErrInvalidInput, Msg: "nil store"}
	}
	if err := ctx.Err(); err != nil {
		return Identity{}, err
	}
	norm := NormalizeUsername(username)
	if norm == "" {
		return Identity{}, pgInvalid(op, "missing username")
	}

	identities := pgIdent(s.schema, "identities")

	var out Identity
	err := s.pool.QueryRow(ctx,
		`SELECT `+identityColumns+` FROM `+identities+` WHERE username_norm = $1`,
		norm,
	).Scan(&out.ID, &out.Username, &out.UsernameNorm, &out.PasswordHash, &out.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Identity{}, NotFoundError{Op: op, Resource: "identity"}
		}
		return Identity{}, err
	}
	return out, nil
}

// List yields all identity rows. Each range over the returned sequence runs a
// fresh query, which makes the sequence restartable. Insertion order is not
// guaranteed.
func (s *PostgresStore) List(ctx context.Context) iter.Seq2[Identity, error] {
	return func(yield func(Identity, error) bool) {
		if s == nil || s.pool == nil {
			yield(Identity{}, OpError{Op: "identity.List", Kind: ErrInvalidInput, Msg: "nil store"})
			return
		}

		identities := pgIdent(s.schema, "identities")

		rows, err := s.pool.Query(ctx,
			`SELECT `+identityColumns+` FROM `+identities)
		if err != nil {
			yield(Identity{}, err)
			return
		}
		defer rows.Close()

		for rows.Next() {
			var out Identity
			if err := rows.Scan(&out.ID, &out.Username, &out.UsernameNorm, &out.PasswordHash, &out.CreatedAt); err != nil {
				yield(Identity{}, err)
				return
			}
			if !yield(out, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(Identity{}, err)
		}
	}
}

// Update overlays the present fields of changes onto the row identified by id.
// The id itself may be re-specified via changes.ID (deliberate overwrite path).
// Returns NotFoundError if the target row is absent.
func (s *PostgresStore) Update(ctx context.Context, id string, changes UpdateChanges) (Identity, error) {
	const op = "identity.Update"

	if s == nil || s.pool == nil {
		return Identity{}, OpError{Op: op, Kind: ErrInvalidInput, Msg: "nil store"}
	}
	if err := ctx.Err(); err != nil {
		return Identity{}, err
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return Identity{}, pgInvalid(op, "missing id")
	}

	newID := trimPtr(changes.ID)
	username := trimPtr(changes.Username)
	var norm *string
	if username != nil {
		n := NormalizeUsername(*username)
		norm = &n
	}

	identities := pgIdent(s.schema, "identities")

	var out Identity
	err := s.pool.QueryRow(ctx,
		`UPDATE `+identities+`
		    SET id            = COALESCE($2, id),
		        username      = COALESCE($3, username),
		        username_norm = COALESCE($4, username_norm),
		        password_hash = COALESCE($5, password_hash)
		  WHERE id = $1
		  RETURNING `+identityColumns,
		id, newID, username, norm, changes.PasswordHash,
	).Scan(&out.ID, &out.Username, &out.UsernameNorm, &out.PasswordHash, &out.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Identity{}, NotFoundError{Op: op, Resource: "identity"}
		}
		if field, ok := pgClassifyUniqueViolation(err); ok {
			return Identity{}, ConflictError{Op: op, Field: field}
		}
		return Identity{}, err
	}
	return out, nil
}

// Delete removes an identity row. Deleting an absent id is a no-op success.
func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	const op = "identity.Delete"

	if s == nil || s.pool == nil {
		return OpError{Op: op, Kind: ErrInvalidInput, Msg: "nil store"}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return pgInvalid(op, "missing id")
	}

	identities := pgIdent(s.schema, "identities")

	_, err := s.pool.Exec(ctx,
		`DELETE FROM `+identities+` WHERE id = $1`,
		id,
	)
	return err
}

// ---- helpers ----

// pgInvalid standardizes invalid input errors.
func pgInvalid(op, msg string) error {
	return OpError{Op: op, Kind: ErrInvalidInput, Msg: msg}
}

// pgIdent safely quotes a schema-qualified identifier: "schema"."name".
func pgIdent(schema, name string) string {
	return pgx.Identifier{schema, name}.Sanitize()
}

func pgClassifyUniqueViolation(err error) (field string, ok bool) {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return "", false
	}
	if pgErr.Code != "23505" { // unique_violation
		return "", false
	}

	// Prefer the stable schema constraint name. Fall back to heuristic
	// substring matching for hand-managed schemas.
	c := strings.ToLower(strings.TrimSpace(pgErr.ConstraintName))

	switch {
	case c == "uq_identities_username_norm":
		return "username", true
	case strings.Contains(c, "username"):
		return "username", true
	case strings.Contains(c, "id") && strings.Contains(c, "pkey"):
		return "id", true
	default:
		return "unique", true
	}
}
