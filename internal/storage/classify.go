package storage

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/openrescue/roadsync/internal/fault"
)

// Postgres SQLSTATE codes that matter to the fallback logic.
const (
	pgUndefinedColumn   = "42703"
	pgUndefinedTable    = "42P01"
	pgInsufficientPrivs = "42501"
)

// Classify maps a raw storage error onto a fault kind.
//
// Postgres reports structured SQLSTATE codes, so the online path is
// exact. SQLite and other embedded engines only give message text, so
// the remaining matching is a best-effort heuristic; it is kept here,
// and only here, so the engine branches on kinds rather than strings.
func Classify(err error) fault.Kind {
	if err == nil {
		return fault.Unknown
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return fault.Timeout
	}
	if errors.Is(err, sql.ErrNoRows) {
		return fault.NotFound
	}

	// Already classified somewhere below us.
	var fe *fault.Error
	if errors.As(err, &fe) {
		return fe.Kind
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUndefinedColumn:
			return fault.SchemaMismatch
		case pgUndefinedTable:
			return fault.MissingRelation
		case pgInsufficientPrivs:
			return fault.PermissionDenied
		}
	}

	msg := strings.ToLower(err.Error())
	switch {
	// SQLite phrases a missing column differently per statement:
	// SELECT/UPDATE say "no such column", INSERT says "table X has no
	// column named Y".
	case strings.Contains(msg, "no such column"),
		strings.Contains(msg, "has no column named"),
		strings.Contains(msg, "does not exist") && strings.Contains(msg, "column"):
		return fault.SchemaMismatch
	case strings.Contains(msg, "no such table"),
		strings.Contains(msg, "does not exist") && strings.Contains(msg, "relation"),
		strings.Contains(msg, "schema cache"):
		return fault.MissingRelation
	case strings.Contains(msg, "row level security"),
		strings.Contains(msg, "permission denied"):
		return fault.PermissionDenied
	case strings.Contains(msg, "timeout"),
		strings.Contains(msg, "deadline exceeded"):
		return fault.Timeout
	}
	return fault.Unknown
}
