package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/alanyoungcy/parimutuel/internal/domain"
	"github.com/alanyoungcy/parimutuel/internal/service"
)

// StreamReader reads the durable event stream.
type StreamReader interface {
	StreamRead(ctx context.Context, stream string, lastID string, count int) ([]domain.StreamMessage, error)
}

// EventHandler serves recent events for clients that missed the WebSocket
// feed.
type EventHandler struct {
	stream StreamReader
	logger *slog.Logger
}

// NewEventHandler creates an EventHandler.
func NewEventHandler(stream StreamReader, logger *slog.Logger) *EventHandler {
	return &EventHandler{stream: stream, logger: logger}
}

type streamEvent struct {
	ID    string          `json:"id"`
	Event json.RawMessage `json:"event"`
}

// ListEvents returns events recorded after the given stream id.
// GET /api/events?after=<id>&limit=100
func (h *EventHandler) ListEvents(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = min(n, 1000)
		}
	}
	after := r.URL.Query().Get("after")

	msgs, err := h.stream.StreamRead(r.Context(), service.EventStream, after, limit)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "failed to read events")
		return
	}
	out := make([]streamEvent, 0, len(msgs))
	for _, m := range msgs {
		if !json.Valid(m.Payload) {
			continue
		}
		out = append(out, streamEvent{ID: m.ID, Event: m.Payload})
	}
	next := after
	if len(msgs) > 0 {
		next = msgs[len(msgs)-1].ID
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": out, "next": next})
}
