package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/parimutuel/internal/domain"
)

// Poller is what the refresh handler drives.
type Poller interface {
	Trigger()
	Watch(wallet domain.Address) bool
}

// RefreshHandler serves the on-demand refresh endpoint.
type RefreshHandler struct {
	poller Poller
	logger *slog.Logger
}

// NewRefreshHandler creates a RefreshHandler. poller may be nil, in which
// case refreshes are rejected (replay mode).
func NewRefreshHandler(poller Poller, logger *slog.Logger) *RefreshHandler {
	return &RefreshHandler{poller: poller, logger: logger}
}

// Refresh starts a poll cycle without waiting for the next tick. An
// optional wallet query parameter adds that wallet to the polling set first.
// POST /api/refresh?wallet=<address>
func (h *RefreshHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	if h.poller == nil {
		writeError(w, http.StatusConflict, "refresh is disabled in this mode")
		return
	}

	var watched bool
	if r.URL.Query().Get("wallet") != "" {
		wallet, err := addressParam(r, "wallet")
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		watched = h.poller.Watch(wallet)
	}

	h.logger.InfoContext(r.Context(), "handler: refresh requested", slog.Bool("new_wallet", watched))
	h.poller.Trigger()
	writeJSON(w, http.StatusAccepted, map[string]any{
		"status":       "accepted",
		"new_wallet":   watched,
		"requested_at": time.Now().UTC().Format(time.RFC3339),
	})
}
