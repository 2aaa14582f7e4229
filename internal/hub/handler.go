package hub

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/openrescue/roadsync/internal/bus"
	"github.com/openrescue/roadsync/internal/normalize"
	"github.com/openrescue/roadsync/internal/status"
	"github.com/openrescue/roadsync/internal/storage"
)

// Handler bridges bus events into hub broadcasts. It enriches each
// event with the request's current state and keeps clients' aggregate
// statistics fresh.
type Handler struct {
	server *Server
	store  storage.Store
	logger *log.Logger
}

// NewHandler creates a handler broadcasting through server and
// reading request state from store.
func NewHandler(server *Server, store storage.Store, logger *log.Logger) *Handler {
	if logger == nil {
		logger = log.Default()
	}
	return &Handler{server: server, store: store, logger: logger}
}

// Run consumes bus events until the channel closes or ctx is
// cancelled.
func (h *Handler) Run(ctx context.Context, events <-chan bus.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			h.handle(ctx, ev)
		}
	}
}

// handle translates one bus event into broadcasts.
func (h *Handler) handle(ctx context.Context, ev bus.Event) {
	switch ev.Action {
	case "note":
		h.send(MessageTypeNoteAdded, NoteAddedData{RequestID: ev.RequestID})

	case "changed":
		// Coarse feed events carry no request identity; clients get
		// fresh stats and refetch their views.
		h.broadcastStats(ctx)

	default:
		data := RequestUpdateData{RequestID: ev.RequestID, Action: ev.Action}
		if row, err := h.store.GetRequest(ctx, ev.RequestID); err == nil {
			req := normalize.Request(row)
			data.Status = string(req.Status)
			data.Assignee = req.AssignedMechanicEmail
			if data.Assignee == "" {
				data.Assignee = req.AssignedMechanicID
			}
		} else {
			h.logger.Printf("request %s: state lookup for broadcast failed: %v", ev.RequestID, err)
		}
		h.send(MessageTypeRequestUpdate, data)
		h.broadcastStats(ctx)
	}
}

// broadcastStats recounts requests by canonical status and broadcasts
// the aggregate.
func (h *Handler) broadcastStats(ctx context.Context) {
	rows, err := h.store.ListRequests(ctx)
	if err != nil {
		h.logger.Printf("stats refresh failed: %v", err)
		return
	}

	stats := StatsData{ByStatus: make(map[string]int)}
	for _, row := range rows {
		req := normalize.Request(row)
		stats.Total++
		stats.ByStatus[string(req.Status)]++
		switch req.Status {
		case status.Open:
			stats.Open++
		case status.Assigned, status.InProgress:
			stats.Active++
		}
	}
	h.send(MessageTypeStats, stats)
}

// send marshals and broadcasts one message.
func (h *Handler) send(typ MessageType, data any) {
	payload, err := json.Marshal(data)
	if err != nil {
		h.logger.Printf("marshal %s: %v", typ, err)
		return
	}
	h.server.Broadcast(Message{
		Type:      typ,
		Timestamp: time.Now().UTC(),
		Data:      payload,
	})
}

// encodeMessage builds the wire form of one message.
func encodeMessage(typ MessageType, data any) ([]byte, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Message{
		Type:      typ,
		Timestamp: time.Now().UTC(),
		Data:      payload,
	})
}
