// Package sqlstore implements storage.Store on database/sql.
//
// Two deployments share this code: the local/demo store runs on
// embedded SQLite (ncruces/go-sqlite3, pure Go, WAL mode), and the
// online store runs on Postgres through the pgx stdlib driver. The
// only dialect differences are the placeholder style and the DSN; the
// guarded-update SQL is identical because both engines support
// UPDATE ... WHERE ... RETURNING.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/openrescue/roadsync/internal/fault"
	"github.com/openrescue/roadsync/internal/storage"
)

// Dialect selects placeholder style for generated SQL.
type Dialect int

const (
	// DialectSQLite uses ? placeholders.
	DialectSQLite Dialect = iota
	// DialectPostgres uses $1..$n placeholders.
	DialectPostgres
)

// Store is a database/sql implementation of storage.Store.
type Store struct {
	db      *sql.DB
	dialect Dialect
	path    string
}

// Open opens (or creates) the embedded SQLite store at path.
//
// The caller must Close() the store when done. Schema creation is
// separate (InitSchema) so tests can provision divergent schemas.
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create store directory: %w", err)
	}

	db, err := sql.Open("sqlite3", "file:"+path)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping store: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply %s: %w", pragma, err)
		}
	}

	return &Store{db: db, dialect: DialectSQLite, path: path}, nil
}

// OpenPostgres connects to the online Postgres deployment at url.
func OpenPostgres(url string) (*Store, error) {
	db, err := sql.Open("pgx", url)
	if err != nil {
		return nil, fmt.Errorf("open postgres store: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres store: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	return &Store{db: db, dialect: DialectPostgres}, nil
}

// RawDB returns the underlying connection pool for callers that need
// direct statements (tests provisioning nonstandard schemas).
func (s *Store) RawDB() *sql.DB {
	return s.db
}

// Path returns the SQLite file path, or "" for Postgres stores.
func (s *Store) Path() string {
	return s.path
}

// Close closes the connection pool. SQLite stores are checkpointed
// first so the WAL is folded back into the main file.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	if s.dialect == DialectSQLite {
		_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	}
	return s.db.Close()
}

// schema is the preferred column set. Local/demo deployments are
// always provisioned with this shape; older remote deployments may
// lack the assigned_* columns or the request_notes table, which is
// exactly what the engine's legacy fallback covers.
const schema = `
CREATE TABLE IF NOT EXISTS requests (
    id                      TEXT PRIMARY KEY,
    created_at              TEXT NOT NULL,
    updated_at              TEXT NOT NULL,
    user_id                 TEXT NOT NULL DEFAULT '',
    user_email              TEXT NOT NULL DEFAULT '',
    vehicle                 TEXT NOT NULL DEFAULT '{}',
    issue_description       TEXT NOT NULL DEFAULT '',
    contact                 TEXT NOT NULL DEFAULT '{}',
    location                TEXT,
    status                  TEXT NOT NULL DEFAULT 'open',
    assigned_mechanic_id    TEXT,
    assigned_mechanic_email TEXT,
    claimed_at              TEXT,
    completed_at            TEXT,
    notes                   TEXT NOT NULL DEFAULT '[]'
);

CREATE INDEX IF NOT EXISTS idx_requests_status ON requests(status);
CREATE INDEX IF NOT EXISTS idx_requests_assignee ON requests(assigned_mechanic_id);

CREATE TABLE IF NOT EXISTS request_notes (
    id         TEXT PRIMARY KEY,
    request_id TEXT NOT NULL REFERENCES requests(id) ON DELETE CASCADE,
    created_at TEXT NOT NULL,
    author     TEXT NOT NULL DEFAULT '',
    body       TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_request_notes_request ON request_notes(request_id, created_at);

CREATE TABLE IF NOT EXISTS profiles (
    id            TEXT PRIMARY KEY,
    email         TEXT NOT NULL UNIQUE,
    password_hash TEXT NOT NULL DEFAULT '',
    role          TEXT NOT NULL DEFAULT 'user',
    approval      TEXT NOT NULL DEFAULT 'pending',
    name          TEXT NOT NULL DEFAULT '',
    service_area  TEXT NOT NULL DEFAULT '',
    created_at    TEXT NOT NULL
);
`

// InitSchema creates the preferred schema. Idempotent.
func (s *Store) InitSchema(ctx context.Context) error {
	for _, stmt := range strings.Split(schema, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	return nil
}

// placeholder renders the n-th (1-based) placeholder for the dialect.
func (s *Store) placeholder(n int) string {
	if s.dialect == DialectPostgres {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

// buildWhere renders conditions as SQL, continuing placeholder
// numbering from argn. Column names are caller-controlled constants
// (engine schema profiles), never user input.
func (s *Store) buildWhere(conds []storage.Cond, argn int) (string, []any) {
	var parts []string
	var args []any
	for _, c := range conds {
		switch c.Op {
		case storage.OpIsNull:
			parts = append(parts, c.Column+" IS NULL")
		case storage.OpIn:
			ph := make([]string, len(c.Values))
			for i, v := range c.Values {
				argn++
				ph[i] = s.placeholder(argn)
				args = append(args, v)
			}
			parts = append(parts, c.Column+" IN ("+strings.Join(ph, ", ")+")")
		default:
			argn++
			parts = append(parts, c.Column+" = "+s.placeholder(argn))
			args = append(args, c.Value)
		}
	}
	return strings.Join(parts, " AND "), args
}

// sortedColumns returns the row's columns in deterministic order.
func sortedColumns(row storage.Row) []string {
	cols := make([]string, 0, len(row))
	for c := range row {
		cols = append(cols, c)
	}
	sort.Strings(cols)
	return cols
}

// scanRows reads every result row into a storage.Row keyed by the
// result column names.
func scanRows(rows *sql.Rows) ([]storage.Row, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("columns: %w", err)
	}
	var out []storage.Row
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		row := make(storage.Row, len(cols))
		for i, c := range cols {
			row[c] = vals[i]
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// InsertRequest implements storage.Store.
func (s *Store) InsertRequest(ctx context.Context, row storage.Row) (storage.Row, error) {
	cols := sortedColumns(row)
	ph := make([]string, len(cols))
	args := make([]any, len(cols))
	for i, c := range cols {
		ph[i] = s.placeholder(i + 1)
		args[i] = row[c]
	}
	query := fmt.Sprintf(
		"INSERT INTO requests (%s) VALUES (%s) RETURNING *",
		strings.Join(cols, ", "), strings.Join(ph, ", "),
	)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("insert request: %w", err)
	}
	defer rows.Close()
	out, err := scanRows(rows)
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("insert request: no row returned")
	}
	return out[0], nil
}

// GetRequest implements storage.Store.
func (s *Store) GetRequest(ctx context.Context, id string) (storage.Row, error) {
	query := "SELECT * FROM requests WHERE id = " + s.placeholder(1)
	rows, err := s.db.QueryContext(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("get request: %w", err)
	}
	defer rows.Close()
	out, err := scanRows(rows)
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, fault.Newf(fault.NotFound, "request %s not found", id)
	}
	return out[0], nil
}

// ListRequests implements storage.Store.
func (s *Store) ListRequests(ctx context.Context, conds ...storage.Cond) ([]storage.Row, error) {
	query := "SELECT * FROM requests"
	where, args := s.buildWhere(conds, 0)
	if where != "" {
		query += " WHERE " + where
	}
	query += " ORDER BY created_at DESC, id DESC"
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list requests: %w", err)
	}
	defer rows.Close()
	out, err := scanRows(rows)
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []storage.Row{}
	}
	return out, nil
}

// UpdateRequestWhere implements storage.Store. The guard conditions
// are rendered into the UPDATE's WHERE clause so the precondition and
// the write are a single atomic statement.
func (s *Store) UpdateRequestWhere(ctx context.Context, id string, set storage.Row, guards ...storage.Cond) (storage.Row, bool, error) {
	cols := sortedColumns(set)
	assigns := make([]string, len(cols))
	args := make([]any, 0, len(cols)+1+len(guards))
	argn := 0
	for i, c := range cols {
		argn++
		assigns[i] = c + " = " + s.placeholder(argn)
		args = append(args, set[c])
	}
	argn++
	where := "id = " + s.placeholder(argn)
	args = append(args, id)
	if guardSQL, guardArgs := s.buildWhere(guards, argn); guardSQL != "" {
		where += " AND " + guardSQL
		args = append(args, guardArgs...)
	}

	query := fmt.Sprintf(
		"UPDATE requests SET %s WHERE %s RETURNING *",
		strings.Join(assigns, ", "), where,
	)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, false, fmt.Errorf("guarded update: %w", err)
	}
	defer rows.Close()
	out, err := scanRows(rows)
	if err != nil {
		return nil, false, err
	}
	if len(out) == 0 {
		return nil, false, nil
	}
	return out[0], true, nil
}

// InsertNote implements storage.Store.
func (s *Store) InsertNote(ctx context.Context, requestID string, note storage.Row) error {
	row := note.Clone()
	row["request_id"] = requestID
	cols := sortedColumns(row)
	ph := make([]string, len(cols))
	args := make([]any, len(cols))
	for i, c := range cols {
		ph[i] = s.placeholder(i + 1)
		args[i] = row[c]
	}
	query := fmt.Sprintf(
		"INSERT INTO request_notes (%s) VALUES (%s)",
		strings.Join(cols, ", "), strings.Join(ph, ", "),
	)
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert note: %w", err)
	}
	return nil
}

// ListNotes implements storage.Store.
func (s *Store) ListNotes(ctx context.Context, requestID string) ([]storage.Row, error) {
	query := "SELECT * FROM request_notes WHERE request_id = " + s.placeholder(1) +
		" ORDER BY created_at ASC, id ASC"
	rows, err := s.db.QueryContext(ctx, query, requestID)
	if err != nil {
		return nil, fmt.Errorf("list notes: %w", err)
	}
	defer rows.Close()
	out, err := scanRows(rows)
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []storage.Row{}
	}
	return out, nil
}

const profileColumns = "id, email, password_hash, role, approval, name, service_area, created_at"

func (s *Store) scanProfile(row *sql.Row) (*storage.ProfileRecord, error) {
	var rec storage.ProfileRecord
	var created string
	err := row.Scan(&rec.ID, &rec.Email, &rec.PasswordHash, &rec.Role,
		&rec.Approval, &rec.Name, &rec.ServiceArea, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fault.New(fault.NotFound, "profile not found")
	}
	if err != nil {
		return nil, fmt.Errorf("scan profile: %w", err)
	}
	if t, perr := time.Parse(time.RFC3339Nano, created); perr == nil {
		rec.CreatedAt = t
	}
	return &rec, nil
}

// GetProfile implements storage.Store.
func (s *Store) GetProfile(ctx context.Context, id string) (*storage.ProfileRecord, error) {
	query := "SELECT " + profileColumns + " FROM profiles WHERE id = " + s.placeholder(1)
	return s.scanProfile(s.db.QueryRowContext(ctx, query, id))
}

// GetProfileByEmail implements storage.Store. Lookup is
// case-insensitive to match how people type their email.
func (s *Store) GetProfileByEmail(ctx context.Context, email string) (*storage.ProfileRecord, error) {
	query := "SELECT " + profileColumns + " FROM profiles WHERE lower(email) = lower(" + s.placeholder(1) + ")"
	return s.scanProfile(s.db.QueryRowContext(ctx, query, email))
}

// CreateProfile implements storage.Store.
func (s *Store) CreateProfile(ctx context.Context, rec *storage.ProfileRecord) error {
	query := fmt.Sprintf(
		"INSERT INTO profiles (%s) VALUES (%s, %s, %s, %s, %s, %s, %s, %s)",
		profileColumns,
		s.placeholder(1), s.placeholder(2), s.placeholder(3), s.placeholder(4),
		s.placeholder(5), s.placeholder(6), s.placeholder(7), s.placeholder(8),
	)
	_, err := s.db.ExecContext(ctx, query,
		rec.ID, rec.Email, rec.PasswordHash, rec.Role,
		rec.Approval, rec.Name, rec.ServiceArea,
		rec.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("create profile: %w", err)
	}
	return nil
}

// UpdateProfileFields implements storage.Store.
func (s *Store) UpdateProfileFields(ctx context.Context, id string, set storage.Row) error {
	cols := sortedColumns(set)
	assigns := make([]string, len(cols))
	args := make([]any, 0, len(cols)+1)
	for i, c := range cols {
		assigns[i] = c + " = " + s.placeholder(i+1)
		args = append(args, set[c])
	}
	args = append(args, id)
	query := fmt.Sprintf(
		"UPDATE profiles SET %s WHERE id = %s",
		strings.Join(assigns, ", "), s.placeholder(len(cols)+1),
	)
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update profile: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fault.Newf(fault.NotFound, "profile %s not found", id)
	}
	return nil
}

var _ storage.Store = (*Store)(nil)
