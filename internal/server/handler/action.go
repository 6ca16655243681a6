package handler

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/alanyoungcy/parimutuel/internal/domain"
)

// ActionTracker is the pending-action state machine.
type ActionTracker interface {
	Submit(kind domain.ActionKind, target, wallet domain.Address) (domain.PendingAction, error)
	Confirm(id, signature string) (domain.PendingAction, error)
	Fail(id, reason string) (domain.PendingAction, error)
	Get(id string) (domain.PendingAction, error)
	List() []domain.PendingAction
}

// ActionHandler lets the external wallet collaborator report the progress
// of the writes it performs.
type ActionHandler struct {
	tracker ActionTracker
	logger  *slog.Logger
}

// NewActionHandler creates an ActionHandler.
func NewActionHandler(tracker ActionTracker, logger *slog.Logger) *ActionHandler {
	return &ActionHandler{tracker: tracker, logger: logger}
}

type submitActionRequest struct {
	Kind   domain.ActionKind `json:"kind"`
	Target domain.Address    `json:"target"`
	Wallet domain.Address    `json:"wallet"`
}

// SubmitAction records a write that has been handed to the wallet.
// POST /api/actions
func (h *ActionHandler) SubmitAction(w http.ResponseWriter, r *http.Request) {
	var req submitActionRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !domain.ValidActionKind(req.Kind) {
		writeError(w, http.StatusBadRequest, "unknown action kind")
		return
	}
	a, err := h.tracker.Submit(req.Kind, req.Target, req.Wallet)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "failed to submit action")
		return
	}
	writeJSON(w, http.StatusCreated, a)
}

type confirmActionRequest struct {
	Signature string `json:"signature"`
}

// ConfirmAction marks a submitted write confirmed.
// POST /api/actions/{id}/confirm
func (h *ActionHandler) ConfirmAction(w http.ResponseWriter, r *http.Request) {
	var req confirmActionRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Signature) == "" {
		writeError(w, http.StatusBadRequest, "missing signature")
		return
	}
	a, err := h.tracker.Confirm(r.PathValue("id"), req.Signature)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "failed to confirm action")
		return
	}
	writeJSON(w, http.StatusOK, a)
}

type failActionRequest struct {
	Error string `json:"error"`
}

// FailAction marks a submitted write failed.
// POST /api/actions/{id}/fail
func (h *ActionHandler) FailAction(w http.ResponseWriter, r *http.Request) {
	var req failActionRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	a, err := h.tracker.Fail(r.PathValue("id"), req.Error)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "failed to fail action")
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// GetAction returns one tracked action.
// GET /api/actions/{id}
func (h *ActionHandler) GetAction(w http.ResponseWriter, r *http.Request) {
	a, err := h.tracker.Get(r.PathValue("id"))
	if err != nil {
		writeServiceError(w, r, h.logger, err, "failed to get action")
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// ListActions returns every tracked action, oldest first.
// GET /api/actions
func (h *ActionHandler) ListActions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"actions": h.tracker.List()})
}
