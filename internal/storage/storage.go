// Package storage defines the contract between the transition engine
// and whichever relational store a deployment provides.
//
// The engine speaks in raw rows (column name -> value) and guard
// conditions; it never sees SQL. Rows flow out of the store exactly as
// the deployment persisted them and are converted to the canonical
// shape by the normalize package, which is what makes the engine
// tolerant of divergent column sets.
package storage

import (
	"context"

	"github.com/openrescue/roadsync/internal/model"
)

// Row is a raw persisted record: column or key name mapped to value.
// Values keep whatever dynamic type the driver produced ([]byte,
// string, int64, float64, time.Time, nil).
type Row map[string]any

// Clone returns a shallow copy of the row.
func (r Row) Clone() Row {
	out := make(Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// CondOp is the comparison used by a guard condition.
type CondOp int

const (
	// OpEq matches column = value.
	OpEq CondOp = iota
	// OpIsNull matches column IS NULL.
	OpIsNull
	// OpIn matches column IN (values...).
	OpIn
)

// Cond is one guard condition of a conditional write or a list filter.
type Cond struct {
	Column string
	Op     CondOp
	Value  any
	Values []string
}

// Eq builds an equality condition.
func Eq(column string, value any) Cond {
	return Cond{Column: column, Op: OpEq, Value: value}
}

// IsNull builds an IS NULL condition.
func IsNull(column string) Cond {
	return Cond{Column: column, Op: OpIsNull}
}

// In builds a membership condition.
func In(column string, values ...string) Cond {
	return Cond{Column: column, Op: OpIn, Values: values}
}

// ProfileRecord is a profile row plus its credential hash. The hash
// stays inside the session package; it is never part of model.Profile.
type ProfileRecord struct {
	model.Profile
	PasswordHash string
}

// Store is the row-level CRUD surface the engine runs on.
//
// UpdateRequestWhere is the single correctness primitive: the guard
// conditions are part of the same atomic statement as the update, so
// two racing writers cannot both observe the precondition as true.
type Store interface {
	// InsertRequest persists a new request row and returns the stored
	// row (with any generated columns filled in).
	InsertRequest(ctx context.Context, row Row) (Row, error)

	// GetRequest returns the raw row for id, or a NotFound fault.
	GetRequest(ctx context.Context, id string) (Row, error)

	// ListRequests returns raw rows matching all conditions, newest
	// first by created_at.
	ListRequests(ctx context.Context, conds ...Cond) ([]Row, error)

	// UpdateRequestWhere applies set to the request row with the given
	// id, but only if every guard condition holds at the moment of the
	// write. It returns the updated row, or (nil, false, nil) when no
	// row satisfied id plus guards; the caller re-reads to distinguish
	// a missing row from a failed guard.
	UpdateRequestWhere(ctx context.Context, id string, set Row, guards ...Cond) (Row, bool, error)

	// InsertNote appends a note row to the dedicated notes relation.
	// Deployments without that relation fail with a MissingRelation
	// fault, which callers translate into the embedded-list fallback.
	InsertNote(ctx context.Context, requestID string, note Row) error

	// ListNotes returns the dedicated-relation notes for a request in
	// chronological order.
	ListNotes(ctx context.Context, requestID string) ([]Row, error)

	// GetProfile returns the profile with the given id.
	GetProfile(ctx context.Context, id string) (*ProfileRecord, error)

	// GetProfileByEmail returns the profile with the given email.
	GetProfileByEmail(ctx context.Context, email string) (*ProfileRecord, error)

	// CreateProfile persists a new profile.
	CreateProfile(ctx context.Context, rec *ProfileRecord) error

	// UpdateProfileFields applies the given column updates to a profile.
	UpdateProfileFields(ctx context.Context, id string, set Row) error

	// Close releases the underlying connections.
	Close() error
}
