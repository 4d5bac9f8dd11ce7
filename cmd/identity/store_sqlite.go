package identity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"iter"
	"strings"
	"time"

	sqlite "modernc.org/sqlite"
)

// SQLiteDB holds dual reader/writer connections with WAL mode enabled.
// The writer connection is limited to a single connection to avoid
// "database is locked" errors; the reader pool allows concurrent readers.
type SQLiteDB struct {
	Writer *sql.DB
	Reader *sql.DB
	path   string
}

// NewSQLiteDB opens a dual-connection SQLite database with WAL mode, busy
// timeout, synchronous NORMAL, and foreign keys enabled, then applies the
// identity migrations.
func NewSQLiteDB(dbPath string) (*SQLiteDB, error) {
	dsn := fmt.Sprintf(
		"file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(ON)",
		dbPath,
	)

	writer, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open writer: %w", err)
	}
	writer.SetMaxOpenConns(1)

	if err := writer.Ping(); err != nil {
		_ = writer.Close()
		return nil, fmt.Errorf("ping writer: %w", err)
	}

	reader, err := sql.Open("sqlite", dsn)
	if err != nil {
		_ = writer.Close()
		return nil, fmt.Errorf("open reader: %w", err)
	}
	reader.SetMaxOpenConns(4)

	if err := reader.Ping(); err != nil {
		_ = reader.Close()
		_ = writer.Close()
		return nil, fmt.Errorf("ping reader: %w", err)
	}

	db := &SQLiteDB{Writer: writer, Reader: reader, path: dbPath}

	if err := RunSQLiteMigrations(writer); err != nil {
		_ = db.Close()
		return nil, err
	}

	return db, nil
}

// Close closes both connections. Returns the first error encountered.
func (db *SQLiteDB) Close() error {
	var firstErr error

	if err := db.Reader.Close(); err != nil {
		firstErr = fmt.Errorf("close reader: %w", err)
	}
	if err := db.Writer.Close(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("close writer: %w", err)
	}
	return firstErr
}

var _ Store = (*SQLiteStore)(nil)

// SQLiteStore implements identity persistence over an embedded SQLite file.
// It is the standalone/dev-mode counterpart of PostgresStore; the unique
// index on username_norm provides the same atomic check-and-insert guarantee.
type SQLiteStore struct {
	db *SQLiteDB
}

// NewSQLiteStore constructs a SQLiteStore over the given database.
func NewSQLiteStore(db *SQLiteDB) (*SQLiteStore, error) {
	if db == nil {
		return nil, fmt.Errorf("identity: nil sqlite db")
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteTimeFormat = time.RFC3339Nano

// Create persists a new identity row. A unique-constraint violation maps to
// ConflictError{Field: "username"}.
func (s *SQLiteStore) Create(ctx context.Context, in CreateInput) (Identity, error) {
	const op = "identity.Create"

	if s == nil || s.db == nil {
		return Identity{}, OpError{Op: op, Kind: ErrInvalidInput, Msg: "nil store"}
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

	const query = `INSERT INTO identities (id, username, username_norm, password_hash, created_at)
	               VALUES (?, ?, ?, ?, ?)`
	_, err = s.db.Writer.ExecContext(ctx, query, id, username, norm, in.PasswordHash, now.Format(sqliteTimeFormat))
	if err != nil {
		if field, ok := sqliteClassifyUniqueViolation(err); ok {
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
func (s *SQLiteStore) Get(ctx context.Context, id string) (Identity, error) {
	const op = "identity.Get"

	id = strings.TrimSpace(id)
	if id == "" {
		return Identity{}, pgInvalid(op, "missing id")
	}

	const query = `SELECT id, username, username_norm, password_hash, created_at
	                 FROM identities WHERE id = ?`
	return s.scanOne(ctx, op, query, id)
}

// GetByUsername loads an identity row by its normalized username.
func (s *SQLiteStore) GetByUsername(ctx context.Context, username string) (Identity, error) {
	const op = "identity.GetByUsername"

	norm := NormalizeUsername(username)
	if norm == "" {
		return Identity{}, pgInvalid(op, "missing username")
	}

	const query = `SELECT id, username, username_norm, password_hash, created_at
	                 FROM identities WHERE username_norm = ?`
	return s.scanOne(ctx, op, query, norm)
}

// List yields all identity rows; each range runs a fresh query.
func (s *SQLiteStore) List(ctx context.Context) iter.Seq2[Identity, error] {
	return func(yield func(Identity, error) bool) {
		const query = `SELECT id, username, username_norm, password_hash, created_at FROM identities`

		rows, err := s.db.Reader.QueryContext(ctx, query)
		if err != nil {
			yield(Identity{}, err)
			return
		}
		defer func() { _ = rows.Close() }()

		for rows.Next() {
			out, err := scanIdentityRow(rows)
			if err != nil {
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
func (s *SQLiteStore) Update(ctx context.Context, id string, changes UpdateChanges) (Identity, error) {
	const op = "identity.Update"

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

	const query = `UPDATE identities
	                  SET id            = COALESCE(?, id),
	                      username      = COALESCE(?, username),
	                      username_norm = COALESCE(?, username_norm),
	                      password_hash = COALESCE(?, password_hash)
	                WHERE id = ?
	                RETURNING id, username, username_norm, password_hash, created_at`

	row := s.db.Writer.QueryRowContext(ctx, query, newID, username, norm, changes.PasswordHash, id)
	out, err := scanIdentityRow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Identity{}, NotFoundError{Op: op, Resource: "identity"}
		}
		if field, ok := sqliteClassifyUniqueViolation(err); ok {
			return Identity{}, ConflictError{Op: op, Field: field}
		}
		return Identity{}, err
	}
	return out, nil
}

// Delete removes an identity row. Deleting an absent id is a no-op success.
func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	const op = "identity.Delete"

	id = strings.TrimSpace(id)
	if id == "" {
		return pgInvalid(op, "missing id")
	}

	_, err := s.db.Writer.ExecContext(ctx, `DELETE FROM identities WHERE id = ?`, id)
	return err
}

// ---- helpers ----

type rowScanner interface {
	Scan(dest ...any) error
}

func scanIdentityRow(row rowScanner) (Identity, error) {
	var out Identity
	var createdAt string
	if err := row.Scan(&out.ID, &out.Username, &out.UsernameNorm, &out.PasswordHash, &createdAt); err != nil {
		return Identity{}, err
	}
	ts, err := time.Parse(sqliteTimeFormat, createdAt)
	if err != nil {
		return Identity{}, fmt.Errorf("parse created_at: %w", err)
	}
	out.CreatedAt = ts
	return out, nil
}

func (s *SQLiteStore) scanOne(ctx context.Context, op, query string, arg any) (Identity, error) {
	if s == nil || s.db == nil {
		return Identity{}, OpError{Op: op, Kind: ErrInvalidInput, Msg: "nil store"}
	}

	row := s.db.Reader.QueryRowContext(ctx, query, arg)
	out, err := scanIdentityRow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Identity{}, NotFoundError{Op: op, Resource: "identity"}
		}
		return Identity{}, err
	}
	return out, nil
}

// sqliteClassifyUniqueViolation maps SQLITE_CONSTRAINT_UNIQUE (and primary key
// constraint) failures to a stable logical field name.
func sqliteClassifyUniqueViolation(err error) (field string, ok bool) {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return "", false
	}
	if se.Code()&0xff != 19 { // SQLITE_CONSTRAINT
		return "", false
	}

	msg := strings.ToLower(se.Error())
	switch {
	case strings.Contains(msg, "username"):
		return "username", true
	case strings.Contains(msg, "identities.id"):
		return "id", true
	default:
		return "unique", true
	}
}
