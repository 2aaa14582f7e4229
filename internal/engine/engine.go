// Package engine executes guarded request-lifecycle transitions
// against the storage layer.
//
// Every transition (claim, start, complete, cancel) is one guarded
// conditional write: the precondition is part of the same atomic
// UPDATE as the state change, which is the only correctness mechanism
// against concurrent mechanics. There is no client-side lock and no
// read-then-write window.
//
// The engine is also where schema divergence is absorbed. Each write
// is built from a schema profile (column names plus status token
// spellings); the preferred profile is tried first, and when the
// store reports that a referenced column does not exist in this
// deployment the same guard semantics are retried once against the
// legacy profile. Only that specific condition triggers the retry;
// guard misses, permission errors, and timeouts surface immediately.
package engine

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/openrescue/roadsync/internal/fault"
	"github.com/openrescue/roadsync/internal/model"
	"github.com/openrescue/roadsync/internal/normalize"
	"github.com/openrescue/roadsync/internal/status"
	"github.com/openrescue/roadsync/internal/storage"
)

// Config holds engine tunables.
type Config struct {
	// Logger for engine activity. Defaults to stderr with an [engine]
	// prefix.
	Logger *log.Logger

	// ReadTimeout bounds list/get calls to the backend.
	ReadTimeout time.Duration

	// WriteTimeout bounds transition writes to the backend.
	WriteTimeout time.Duration

	// Notify, when set, is called after every successful state change
	// with the action name and request id. The caller typically wires
	// this to the change propagation bus.
	Notify func(action, requestID string)
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Logger:       log.New(os.Stderr, "[engine] ", log.LstdFlags),
		ReadTimeout:  8 * time.Second,
		WriteTimeout: 15 * time.Second,
	}
}

// Engine coordinates gate checks, guarded writes, audit notes, and
// change notification for request transitions.
type Engine struct {
	store        storage.Store
	logger       *log.Logger
	readTimeout  time.Duration
	writeTimeout time.Duration
	notify       func(action, requestID string)

	// Overridable for tests.
	now   func() time.Time
	newID func() string
}

// New creates an engine over the given store.
func New(store storage.Store, cfg *Config) *Engine {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	e := &Engine{
		store:        store,
		logger:       cfg.Logger,
		readTimeout:  cfg.ReadTimeout,
		writeTimeout: cfg.WriteTimeout,
		notify:       cfg.Notify,
		now:          time.Now,
		newID:        uuid.NewString,
	}
	if e.logger == nil {
		e.logger = log.New(os.Stderr, "[engine] ", log.LstdFlags)
	}
	if e.readTimeout <= 0 {
		e.readTimeout = 8 * time.Second
	}
	if e.writeTimeout <= 0 {
		e.writeTimeout = 15 * time.Second
	}
	return e
}

// schemaProfile is one column/token convention observed across
// deployments. An empty column name means the profile does not carry
// that column and the corresponding value is skipped.
type schemaProfile struct {
	name          string
	assigneeID    string
	assigneeEmail string
	claimedAt     string
	completedAt   string
	updatedAt     string

	// writeToken is the status spelling this convention persists.
	writeToken map[status.Status]string
}

var preferredSchema = schemaProfile{
	name:          "preferred",
	assigneeID:    "assigned_mechanic_id",
	assigneeEmail: "assigned_mechanic_email",
	claimedAt:     "claimed_at",
	completedAt:   "completed_at",
	updatedAt:     "updated_at",
	writeToken: map[status.Status]string{
		status.Open:       "open",
		status.Assigned:   "assigned",
		status.InProgress: "in_progress",
		status.Completed:  "completed",
		status.Cancelled:  "cancelled",
	},
}

var legacySchema = schemaProfile{
	name:       "legacy",
	assigneeID: "mechanic_id",
	writeToken: map[status.Status]string{
		status.Open:       "Submitted",
		status.Assigned:   "Accepted",
		status.InProgress: "Working",
		status.Completed:  "Completed",
		status.Cancelled:  "Cancelled",
	},
}

// profiles is the fallback order: preferred first, legacy second.
var profiles = []*schemaProfile{&preferredSchema, &legacySchema}

// guardedWrite attempts the guarded update built from the preferred
// profile, retrying once with the legacy profile when (and only when)
// the store reports a missing column.
func (e *Engine) guardedWrite(ctx context.Context, requestID string, build func(p *schemaProfile) (storage.Row, []storage.Cond)) (storage.Row, bool, error) {
	var lastErr error
	for i, p := range profiles {
		set, guards := build(p)
		row, ok, err := e.store.UpdateRequestWhere(ctx, requestID, set, guards...)
		if err == nil {
			return row, ok, nil
		}
		if storage.Classify(err) == fault.SchemaMismatch && i < len(profiles)-1 {
			e.logger.Printf("request %s: %s columns missing, retrying %s schema",
				requestID, p.name, profiles[i+1].name)
			lastErr = err
			continue
		}
		return nil, false, e.mapStorageErr(err)
	}
	return nil, false, e.mapStorageErr(lastErr)
}

// listWithFallback runs a filtered list with the same preferred→legacy
// retry as guardedWrite, since filter columns diverge the same way.
func (e *Engine) listWithFallback(ctx context.Context, build func(p *schemaProfile) []storage.Cond) ([]storage.Row, error) {
	var lastErr error
	for i, p := range profiles {
		rows, err := e.store.ListRequests(ctx, build(p)...)
		if err == nil {
			return rows, nil
		}
		if storage.Classify(err) == fault.SchemaMismatch && i < len(profiles)-1 {
			lastErr = err
			continue
		}
		return nil, e.mapStorageErr(err)
	}
	return nil, e.mapStorageErr(lastErr)
}

// mapStorageErr converts a raw storage error into the caller-facing
// taxonomy. SchemaMismatch reaching this point means both column
// conventions were rejected, which is an unsupported deployment, not
// something the caller can retry around.
func (e *Engine) mapStorageErr(err error) error {
	if err == nil {
		return nil
	}
	switch storage.Classify(err) {
	case fault.NotFound:
		return err
	case fault.Timeout:
		return fault.Wrap(fault.Timeout, "the operation timed out; please try again", err)
	case fault.PermissionDenied:
		return fault.Wrap(fault.PermissionDenied, "permission denied; please contact an admin", err)
	case fault.SchemaMismatch, fault.MissingRelation:
		return fault.Wrap(fault.Unknown, "this deployment's request schema is not supported", err)
	default:
		return fault.Wrap(fault.Unknown, "storage error", err)
	}
}

// rawGet reads and normalizes a request without gate checks.
func (e *Engine) rawGet(ctx context.Context, requestID string) (*model.Request, error) {
	row, err := e.store.GetRequest(ctx, requestID)
	if err != nil {
		return nil, e.mapStorageErr(err)
	}
	return normalize.Request(row), nil
}

func (e *Engine) readCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, e.readTimeout)
}

func (e *Engine) writeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, e.writeTimeout)
}

func (e *Engine) emit(action, requestID string) {
	if e.notify != nil {
		e.notify(action, requestID)
	}
}

// timestamp renders t the way rows are persisted.
func timestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// encodeJSON marshals v for a JSON text column. Marshal of the model
// types cannot fail; the error branch guards future shapes.
func encodeJSON(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return "{}"
	}
	return string(data)
}
