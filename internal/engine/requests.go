package engine

import (
	"context"
	"strings"

	"github.com/openrescue/roadsync/internal/fault"
	"github.com/openrescue/roadsync/internal/model"
	"github.com/openrescue/roadsync/internal/normalize"
	"github.com/openrescue/roadsync/internal/session"
	"github.com/openrescue/roadsync/internal/status"
	"github.com/openrescue/roadsync/internal/storage"
)

// CreateRequestInput is the caller-supplied part of a new request.
type CreateRequestInput struct {
	Vehicle          model.Vehicle
	IssueDescription string
	Contact          model.Contact
	Location         *model.Location
}

// CreateRequest files a new breakdown request for the acting user.
// Any authenticated actor may file one; the mechanic-only gating
// applies to transitions, not to intake.
func (e *Engine) CreateRequest(ctx context.Context, actor *session.Actor, in CreateRequestInput) (*model.Request, error) {
	if err := session.RequireActor(actor); err != nil {
		return nil, err
	}
	if strings.TrimSpace(in.IssueDescription) == "" {
		return nil, fault.New(fault.Unknown, "an issue description is required")
	}
	ctx, cancel := e.writeCtx(ctx)
	defer cancel()

	id := e.newID()
	now := timestamp(e.now())

	insert := func(p *schemaProfile) (storage.Row, error) {
		row := storage.Row{
			"id":                id,
			"created_at":        now,
			"user_id":           actor.ID,
			"user_email":        actor.Email,
			"vehicle":           encodeJSON(in.Vehicle),
			"issue_description": in.IssueDescription,
			"contact":           encodeJSON(in.Contact),
			"status":            p.writeToken[status.Open],
			"notes":             "[]",
		}
		if p.updatedAt != "" {
			row[p.updatedAt] = now
		}
		if in.Location != nil {
			row["location"] = encodeJSON(in.Location)
		}
		return e.store.InsertRequest(ctx, row)
	}

	row, err := insert(&preferredSchema)
	if err != nil && storage.Classify(err) == fault.SchemaMismatch {
		e.logger.Printf("request %s: preferred insert columns missing, retrying legacy schema", id)
		row, err = insert(&legacySchema)
	}
	if err != nil {
		return nil, e.mapStorageErr(err)
	}

	e.emit("created", id)
	return normalize.Request(row), nil
}

// Get returns one request in canonical shape, audit notes included.
func (e *Engine) Get(ctx context.Context, actor *session.Actor, requestID string) (*model.Request, error) {
	if err := session.RequireActor(actor); err != nil {
		return nil, err
	}
	ctx, cancel := e.readCtx(ctx)
	defer cancel()

	req, err := e.rawGet(ctx, requestID)
	if err != nil {
		return nil, err
	}
	return e.withNotes(ctx, req), nil
}

// ListOpen returns unassigned requests, newest first. Mechanics may
// browse while still pending approval; only transitions require the
// full gate.
func (e *Engine) ListOpen(ctx context.Context, actor *session.Actor) ([]*model.Request, error) {
	if err := session.RequireActor(actor); err != nil {
		return nil, err
	}
	if err := session.RequireRole(actor, model.RoleMechanic, model.RoleAdmin); err != nil {
		return nil, err
	}
	ctx, cancel := e.readCtx(ctx)
	defer cancel()

	rows, err := e.listWithFallback(ctx, func(p *schemaProfile) []storage.Cond {
		return []storage.Cond{storage.IsNull(p.assigneeID)}
	})
	if err != nil {
		return nil, err
	}

	out := make([]*model.Request, 0, len(rows))
	for _, row := range rows {
		req := normalize.Request(row)
		// Unassigned but cancelled rows are not claimable work.
		if req.Status != status.Open {
			continue
		}
		out = append(out, req)
	}
	return out, nil
}

// ListMine returns the actor's current assignments, newest first.
func (e *Engine) ListMine(ctx context.Context, actor *session.Actor) ([]*model.Request, error) {
	if err := session.RequireActor(actor); err != nil {
		return nil, err
	}
	if err := session.RequireRole(actor, model.RoleMechanic); err != nil {
		return nil, err
	}
	ctx, cancel := e.readCtx(ctx)
	defer cancel()

	rows, err := e.listWithFallback(ctx, func(p *schemaProfile) []storage.Cond {
		return []storage.Cond{storage.Eq(p.assigneeID, actor.ID)}
	})
	if err != nil {
		return nil, err
	}

	out := make([]*model.Request, 0, len(rows))
	for _, row := range rows {
		out = append(out, normalize.Request(row))
	}
	return out, nil
}

// UpdateMyProfile lets a mechanic edit their own display name and
// service area. Role and approval transitions belong to the external
// approval authority and are not reachable from here.
func (e *Engine) UpdateMyProfile(ctx context.Context, actor *session.Actor, name, serviceArea string) error {
	if err := session.RequireActor(actor); err != nil {
		return err
	}
	if err := session.RequireRole(actor, model.RoleMechanic); err != nil {
		return err
	}
	ctx, cancel := e.writeCtx(ctx)
	defer cancel()

	err := e.store.UpdateProfileFields(ctx, actor.ID, storage.Row{
		"name":         name,
		"service_area": serviceArea,
	})
	if err != nil {
		if fault.Is(err, fault.NotFound) {
			return err
		}
		return e.mapStorageErr(err)
	}
	return nil
}
