package engine

import (
	"context"

	"github.com/openrescue/roadsync/internal/fault"
	"github.com/openrescue/roadsync/internal/model"
	"github.com/openrescue/roadsync/internal/normalize"
	"github.com/openrescue/roadsync/internal/session"
	"github.com/openrescue/roadsync/internal/status"
	"github.com/openrescue/roadsync/internal/storage"
)

// Claim assigns an open request to the acting mechanic.
//
// The guard is "unassigned and still open", so of two racing claims
// exactly one write lands, and terminal requests stay terminal.
// Re-claiming a request the actor already holds is a no-op success
// and appends no duplicate note.
func (e *Engine) Claim(ctx context.Context, actor *session.Actor, requestID string) (*model.Request, error) {
	if err := session.Authorize(actor, model.RoleMechanic); err != nil {
		return nil, err
	}
	ctx, cancel := e.writeCtx(ctx)
	defer cancel()

	now := timestamp(e.now())
	row, ok, err := e.guardedWrite(ctx, requestID, func(p *schemaProfile) (storage.Row, []storage.Cond) {
		set := storage.Row{
			p.assigneeID: actor.ID,
			"status":     p.writeToken[status.Assigned],
		}
		if p.assigneeEmail != "" {
			set[p.assigneeEmail] = actor.Email
		}
		if p.claimedAt != "" {
			set[p.claimedAt] = now
		}
		if p.updatedAt != "" {
			set[p.updatedAt] = now
		}
		guards := []storage.Cond{
			storage.IsNull(p.assigneeID),
			storage.In("status", status.Spellings(status.Open)...),
		}
		return set, guards
	})
	if err != nil {
		return nil, err
	}

	if !ok {
		req, err := e.rawGet(ctx, requestID)
		if err != nil {
			return nil, err
		}
		if req.AssignedMechanicID == actor.ID {
			// Idempotent re-claim by the current holder.
			return e.withNotes(ctx, req), nil
		}
		if req.Assigned() {
			return nil, fault.New(fault.AlreadyAssigned,
				"this request was already assigned to another mechanic")
		}
		return nil, fault.New(fault.InvalidTransition,
			"this request can no longer be claimed")
	}

	req := normalize.Request(row)
	e.appendNote(ctx, req, actor, "Accepted request.")
	e.emit("claimed", requestID)
	return e.withNotes(ctx, req), nil
}

// Start moves the actor's assigned request into in-progress work.
func (e *Engine) Start(ctx context.Context, actor *session.Actor, requestID string) (*model.Request, error) {
	if err := session.Authorize(actor, model.RoleMechanic); err != nil {
		return nil, err
	}
	ctx, cancel := e.writeCtx(ctx)
	defer cancel()

	now := timestamp(e.now())
	row, ok, err := e.guardedWrite(ctx, requestID, func(p *schemaProfile) (storage.Row, []storage.Cond) {
		set := storage.Row{"status": p.writeToken[status.InProgress]}
		if p.updatedAt != "" {
			set[p.updatedAt] = now
		}
		guards := []storage.Cond{
			storage.Eq(p.assigneeID, actor.ID),
			storage.In("status", status.Spellings(status.Assigned)...),
		}
		return set, guards
	})
	if err != nil {
		return nil, err
	}

	if !ok {
		req, derr := e.diagnoseMiss(ctx, actor, requestID, status.InProgress,
			"start this request")
		if derr != nil {
			return nil, derr
		}
		return e.withNotes(ctx, req), nil
	}

	req := normalize.Request(row)
	e.appendNote(ctx, req, actor, "Status changed to "+status.Label(status.InProgress)+".")
	e.emit("started", requestID)
	return e.withNotes(ctx, req), nil
}

// Complete finishes the actor's in-progress request, setting the
// completion timestamp atomically with the status write. noteText,
// when non-empty, becomes the audit note body.
func (e *Engine) Complete(ctx context.Context, actor *session.Actor, requestID, noteText string) (*model.Request, error) {
	if err := session.Authorize(actor, model.RoleMechanic); err != nil {
		return nil, err
	}
	ctx, cancel := e.writeCtx(ctx)
	defer cancel()

	now := timestamp(e.now())
	row, ok, err := e.guardedWrite(ctx, requestID, func(p *schemaProfile) (storage.Row, []storage.Cond) {
		set := storage.Row{"status": p.writeToken[status.Completed]}
		if p.completedAt != "" {
			set[p.completedAt] = now
		}
		if p.updatedAt != "" {
			set[p.updatedAt] = now
		}
		guards := []storage.Cond{
			storage.Eq(p.assigneeID, actor.ID),
			storage.In("status", status.Spellings(status.InProgress)...),
		}
		return set, guards
	})
	if err != nil {
		return nil, err
	}

	if !ok {
		req, derr := e.diagnoseMiss(ctx, actor, requestID, status.Completed,
			"complete this request")
		if derr != nil {
			return nil, derr
		}
		return e.withNotes(ctx, req), nil
	}

	req := normalize.Request(row)
	if noteText == "" {
		noteText = "Status changed to " + status.Label(status.Completed) + "."
	}
	e.appendNote(ctx, req, actor, noteText)
	e.emit("completed", requestID)
	return e.withNotes(ctx, req), nil
}

// Cancel withdraws a request from any non-terminal state. This is the
// administrative action; the mechanic-facing flows never call it, but
// the guard table stays total over the state machine.
func (e *Engine) Cancel(ctx context.Context, actor *session.Actor, requestID, reason string) (*model.Request, error) {
	if err := session.Authorize(actor, model.RoleAdmin); err != nil {
		return nil, err
	}
	ctx, cancel := e.writeCtx(ctx)
	defer cancel()

	nonTerminal := append(status.Spellings(status.Open), status.Spellings(status.Assigned)...)
	nonTerminal = append(nonTerminal, status.Spellings(status.InProgress)...)

	now := timestamp(e.now())
	row, ok, err := e.guardedWrite(ctx, requestID, func(p *schemaProfile) (storage.Row, []storage.Cond) {
		set := storage.Row{"status": p.writeToken[status.Cancelled]}
		if p.updatedAt != "" {
			set[p.updatedAt] = now
		}
		return set, []storage.Cond{storage.In("status", nonTerminal...)}
	})
	if err != nil {
		return nil, err
	}

	if !ok {
		req, err := e.rawGet(ctx, requestID)
		if err != nil {
			return nil, err
		}
		if req.Status == status.Cancelled {
			return e.withNotes(ctx, req), nil
		}
		return nil, fault.Newf(fault.InvalidTransition,
			"a %s request cannot be cancelled", status.Label(req.Status))
	}

	req := normalize.Request(row)
	if reason == "" {
		reason = "Request cancelled."
	}
	e.appendNote(ctx, req, actor, reason)
	e.emit("cancelled", requestID)
	return e.withNotes(ctx, req), nil
}

// diagnoseMiss explains a failed start/complete guard. The distinction
// matters to the user: "claim it first" and "someone else has it" call
// for different actions. When the request already reached the target
// state under this actor, the transition is treated as an idempotent
// success and the request is returned with a nil error.
func (e *Engine) diagnoseMiss(ctx context.Context, actor *session.Actor, requestID string, target status.Status, verb string) (*model.Request, error) {
	req, err := e.rawGet(ctx, requestID)
	if err != nil {
		return nil, err
	}
	switch {
	case !req.Assigned():
		return nil, fault.Newf(fault.InvalidTransition,
			"this request has not been claimed; claim it before you %s", verb)
	case req.AssignedMechanicID != actor.ID:
		return nil, fault.New(fault.InvalidTransition,
			"this request is assigned to another mechanic")
	case req.Status == target:
		// The transition already happened; nothing left to do.
		return req, nil
	case target == status.Completed && req.Status == status.Assigned:
		return nil, fault.New(fault.InvalidTransition,
			"start this request before completing it")
	default:
		return nil, fault.Newf(fault.InvalidTransition,
			"cannot %s while it is %s", verb, status.Label(req.Status))
	}
}
