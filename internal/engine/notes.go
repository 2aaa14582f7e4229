package engine

import (
	"context"
	"sort"

	"github.com/openrescue/roadsync/internal/fault"
	"github.com/openrescue/roadsync/internal/model"
	"github.com/openrescue/roadsync/internal/normalize"
	"github.com/openrescue/roadsync/internal/session"
	"github.com/openrescue/roadsync/internal/storage"
)

// appendNote records an audit entry for a transition that already
// succeeded. It prefers the dedicated append-only request_notes
// relation; deployments without that relation fall back to
// read-modify-append on the request's embedded notes list, using the
// freshest snapshot available.
//
// Note appends are best-effort by contract: a failure here is logged
// and never fails the transition that triggered it. The embedded
// fallback is lossy under concurrent appends; the dedicated relation
// is not, which is why it is always tried first.
func (e *Engine) appendNote(ctx context.Context, snapshot *model.Request, actor *session.Actor, text string) {
	note := model.Note{
		ID:   e.newID(),
		At:   e.now().UTC(),
		By:   noteAuthor(actor),
		Text: text,
	}

	err := e.store.InsertNote(ctx, snapshot.ID, storage.Row{
		"id":         note.ID,
		"created_at": timestamp(note.At),
		"author":     note.By,
		"body":       note.Text,
	})
	if err == nil {
		e.emit("note", snapshot.ID)
		return
	}
	if storage.Classify(err) != fault.MissingRelation {
		e.logger.Printf("request %s: note append failed: %v", snapshot.ID, err)
		return
	}

	// Embedded fallback: append to the snapshot's list and write the
	// whole column back.
	merged := append(append([]model.Note{}, snapshot.Notes...), note)
	_, ok, uerr := e.store.UpdateRequestWhere(ctx, snapshot.ID, storage.Row{
		"notes": encodeJSON(merged),
	})
	if uerr != nil {
		e.logger.Printf("request %s: embedded note append failed: %v", snapshot.ID, uerr)
		return
	}
	if !ok {
		e.logger.Printf("request %s: embedded note append found no row", snapshot.ID)
		return
	}
	snapshot.Notes = merged
	e.emit("note", snapshot.ID)
}

// withNotes overlays the dedicated-relation notes onto the request's
// embedded list, deduplicated by note id and ordered chronologically.
// Deployments without the relation just keep the embedded list.
func (e *Engine) withNotes(ctx context.Context, req *model.Request) *model.Request {
	rows, err := e.store.ListNotes(ctx, req.ID)
	if err != nil {
		if storage.Classify(err) != fault.MissingRelation {
			e.logger.Printf("request %s: list notes failed: %v", req.ID, err)
		}
		return req
	}

	seen := make(map[string]struct{}, len(req.Notes))
	for _, n := range req.Notes {
		seen[n.ID] = struct{}{}
	}
	merged := append([]model.Note{}, req.Notes...)
	for _, row := range rows {
		items := normalize.Notes([]any{map[string]any(row)})
		for _, n := range items {
			if _, dup := seen[n.ID]; dup {
				continue
			}
			seen[n.ID] = struct{}{}
			merged = append(merged, n)
		}
	}
	sort.SliceStable(merged, func(i, j int) bool {
		if merged[i].At.Equal(merged[j].At) {
			return merged[i].ID < merged[j].ID
		}
		return merged[i].At.Before(merged[j].At)
	})
	req.Notes = merged
	return req
}

// noteAuthor renders the audit author: the actor's email when known,
// otherwise the role tag.
func noteAuthor(actor *session.Actor) string {
	if actor == nil {
		return "system"
	}
	if actor.Email != "" {
		return actor.Email
	}
	return actor.Role
}
