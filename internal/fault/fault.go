// Package fault defines the error taxonomy shared by the engine, the
// storage layer, and the session gate.
//
// Every failure that crosses a package boundary carries a Kind so that
// callers branch on typed kinds instead of matching message strings.
// The one deliberate exception is storage.Classify, which contains the
// string matching needed to derive a Kind from raw driver errors.
package fault

import (
	"errors"
	"fmt"
)

// Kind identifies a category of failure.
type Kind int

const (
	// Unknown wraps errors that fit no other kind.
	Unknown Kind = iota

	// Unauthenticated means no session is established.
	Unauthenticated

	// Forbidden means the actor's role does not permit the operation.
	Forbidden

	// PendingApproval means the mechanic account has not been approved yet.
	PendingApproval

	// NotFound means the referenced record does not exist.
	NotFound

	// AlreadyAssigned means a claim guard failed because another
	// mechanic holds the assignment.
	AlreadyAssigned

	// InvalidTransition means a start/complete guard failed because the
	// request is not in the required state for this actor.
	InvalidTransition

	// SchemaMismatch means a statement referenced a column that does not
	// exist in this deployment. It triggers the legacy-schema retry and
	// must never surface past the engine.
	SchemaMismatch

	// MissingRelation means a statement referenced a table that does not
	// exist in this deployment. It triggers the embedded-notes fallback.
	MissingRelation

	// Timeout means a backend call exceeded its deadline. Retryable.
	Timeout

	// PermissionDenied means the backend's authorization policy rejected
	// the statement (for example a row-level security policy).
	PermissionDenied
)

// String returns a stable identifier for the kind.
func (k Kind) String() string {
	switch k {
	case Unauthenticated:
		return "unauthenticated"
	case Forbidden:
		return "forbidden"
	case PendingApproval:
		return "pending_approval"
	case NotFound:
		return "not_found"
	case AlreadyAssigned:
		return "already_assigned"
	case InvalidTransition:
		return "invalid_transition"
	case SchemaMismatch:
		return "schema_mismatch"
	case MissingRelation:
		return "missing_relation"
	case Timeout:
		return "timeout"
	case PermissionDenied:
		return "permission_denied"
	default:
		return "unknown"
	}
}

// Error is a failure with a Kind and a human-readable message.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil && e.Msg != "" {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Msg
}

// Unwrap returns the wrapped cause, if any.
func (e *Error) Unwrap() error {
	return e.Err
}

// New creates an error of the given kind with a message.
func New(kind Kind, msg string) error {
	return &Error{Kind: kind, Msg: msg}
}

// Newf creates an error of the given kind with a formatted message.
func Newf(kind Kind, format string, args ...any) error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind and message to an underlying error.
// A nil err returns nil.
func Wrap(kind Kind, msg string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// KindOf returns the kind carried by err, walking the wrap chain.
// Errors without a kind report Unknown.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return Unknown
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
