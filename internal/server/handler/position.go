package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/parimutuel/internal/domain"
	"github.com/alanyoungcy/parimutuel/internal/service"
)

// PortfolioService is what the position and portfolio handlers need from the
// service layer.
type PortfolioService interface {
	Positions(ctx context.Context, wallet domain.Address, tab domain.Tab) ([]service.PositionView, error)
	Portfolio(ctx context.Context, wallet domain.Address) (service.PortfolioView, error)
	PortfolioHistory(ctx context.Context, wallet domain.Address, opts domain.ListOpts) ([]domain.PortfolioSnapshot, error)
}

// PositionHandler serves position and portfolio endpoints.
type PositionHandler struct {
	svc    PortfolioService
	logger *slog.Logger
}

// NewPositionHandler creates a PositionHandler.
func NewPositionHandler(svc PortfolioService, logger *slog.Logger) *PositionHandler {
	return &PositionHandler{svc: svc, logger: logger}
}

type listPositionsResponse struct {
	Wallet    domain.Address         `json:"wallet"`
	Tab       domain.Tab             `json:"tab"`
	Positions []service.PositionView `json:"positions"`
}

// ListPositions returns a wallet's positions in one tab.
// GET /api/positions?wallet=<address>&tab=all|active|resolved|claimable
func (h *PositionHandler) ListPositions(w http.ResponseWriter, r *http.Request) {
	wallet, err := addressParam(r, "wallet")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	tab, err := domain.ParseTab(r.URL.Query().Get("tab"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	positions, err := h.svc.Positions(r.Context(), wallet, tab)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "failed to list positions")
		return
	}
	writeJSON(w, http.StatusOK, listPositionsResponse{Wallet: wallet, Tab: tab, Positions: positions})
}

// GetPortfolio returns a wallet's statistics and tab counts.
// GET /api/portfolio?wallet=<address>
func (h *PositionHandler) GetPortfolio(w http.ResponseWriter, r *http.Request) {
	wallet, err := addressParam(r, "wallet")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	pv, err := h.svc.Portfolio(r.Context(), wallet)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "failed to load portfolio")
		return
	}
	writeJSON(w, http.StatusOK, pv)
}

type historyEntry struct {
	Stats      domain.PortfolioStats `json:"stats"`
	Counts     domain.TabCounts      `json:"counts"`
	ObservedAt time.Time             `json:"observed_at"`
}

// PortfolioHistory returns recorded statistics of a wallet, newest first.
// GET /api/portfolio/history?wallet=<address>
func (h *PositionHandler) PortfolioHistory(w http.ResponseWriter, r *http.Request) {
	wallet, err := addressParam(r, "wallet")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	opts, err := parseListOpts(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	snaps, err := h.svc.PortfolioHistory(r.Context(), wallet, opts)
	if err != nil {
		if errors.Is(err, service.ErrHistoryDisabled) {
			writeError(w, http.StatusNotImplemented, "portfolio history is not configured")
			return
		}
		writeServiceError(w, r, h.logger, err, "failed to list portfolio history")
		return
	}
	entries := make([]historyEntry, len(snaps))
	for i, s := range snaps {
		entries[i] = historyEntry{Stats: s.Stats, Counts: s.Counts, ObservedAt: s.ObservedAt}
	}
	writeJSON(w, http.StatusOK, map[string]any{"wallet": wallet, "history": entries})
}
