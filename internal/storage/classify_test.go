package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/openrescue/roadsync/internal/fault"
)

// TestClassify_PostgresCodes verifies that structured SQLSTATE codes
// map to the right kinds.
func TestClassify_PostgresCodes(t *testing.T) {
	tests := []struct {
		code string
		want fault.Kind
	}{
		{pgUndefinedColumn, fault.SchemaMismatch},
		{pgUndefinedTable, fault.MissingRelation},
		{pgInsufficientPrivs, fault.PermissionDenied},
		{"23505", fault.Unknown},
	}
	for _, tt := range tests {
		err := &pgconn.PgError{Code: tt.code, Message: "boom"}
		if got := Classify(err); got != tt.want {
			t.Errorf("Classify(SQLSTATE %s) = %v, want %v", tt.code, got, tt.want)
		}
	}
}

// TestClassify_MessageHeuristics verifies the text matching used for
// engines that do not report structured codes.
func TestClassify_MessageHeuristics(t *testing.T) {
	tests := []struct {
		msg  string
		want fault.Kind
	}{
		{"SQL logic error: no such column: assigned_mechanic_id", fault.SchemaMismatch},
		{"sqlite3: SQL logic error: table requests has no column named updated_at", fault.SchemaMismatch},
		{`column requests.vehicle_plate does not exist`, fault.SchemaMismatch},
		{"SQL logic error: no such table: request_notes", fault.MissingRelation},
		{`relation "request_notes" does not exist`, fault.MissingRelation},
		{"could not find the table in the schema cache", fault.MissingRelation},
		{"new row violates row level security policy", fault.PermissionDenied},
		{"permission denied for table requests", fault.PermissionDenied},
		{"i/o timeout", fault.Timeout},
		{"something else entirely", fault.Unknown},
	}
	for _, tt := range tests {
		if got := Classify(errors.New(tt.msg)); got != tt.want {
			t.Errorf("Classify(%q) = %v, want %v", tt.msg, got, tt.want)
		}
	}
}

// TestClassify_WrappedAndSentinel verifies unwrap behavior for
// context deadlines, sql.ErrNoRows, and pre-classified faults.
func TestClassify_WrappedAndSentinel(t *testing.T) {
	if got := Classify(fmt.Errorf("query: %w", context.DeadlineExceeded)); got != fault.Timeout {
		t.Errorf("deadline = %v, want Timeout", got)
	}
	if got := Classify(fmt.Errorf("scan: %w", sql.ErrNoRows)); got != fault.NotFound {
		t.Errorf("no rows = %v, want NotFound", got)
	}
	wrapped := fmt.Errorf("outer: %w", fault.New(fault.AlreadyAssigned, "taken"))
	if got := Classify(wrapped); got != fault.AlreadyAssigned {
		t.Errorf("pre-classified = %v, want AlreadyAssigned", got)
	}
	if got := Classify(nil); got != fault.Unknown {
		t.Errorf("nil = %v, want Unknown", got)
	}
}
