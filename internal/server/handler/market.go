package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/parimutuel/internal/domain"
	"github.com/alanyoungcy/parimutuel/internal/service"
)

// MarketService is what the market handler needs from the service layer.
type MarketService interface {
	Markets() []service.MarketView
	Market(addr domain.Address) (service.MarketView, error)
	MarketHistory(ctx context.Context, addr domain.Address, opts domain.ListOpts) ([]domain.MarketObservation, error)
}

// MarketHandler serves market endpoints.
type MarketHandler struct {
	markets MarketService
	logger  *slog.Logger
}

// NewMarketHandler creates a MarketHandler.
func NewMarketHandler(markets MarketService, logger *slog.Logger) *MarketHandler {
	return &MarketHandler{markets: markets, logger: logger}
}

type listMarketsResponse struct {
	Markets []service.MarketView `json:"markets"`
	Total   int                  `json:"total"`
	Limit   int                  `json:"limit"`
	Offset  int                  `json:"offset"`
}

// ListMarkets returns markets ordered by resolution time, latest first.
// GET /api/markets?phase=open&limit=50&offset=0
func (h *MarketHandler) ListMarkets(w http.ResponseWriter, r *http.Request) {
	opts, err := parseListOpts(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	all := h.markets.Markets()
	if phase := domain.MarketPhase(r.URL.Query().Get("phase")); phase != "" {
		filtered := all[:0:0]
		for _, m := range all {
			if m.Phase == phase {
				filtered = append(filtered, m)
			}
		}
		all = filtered
	}

	page := all[min(opts.Offset, len(all)):]
	page = page[:min(opts.Limit, len(page))]
	writeJSON(w, http.StatusOK, listMarketsResponse{
		Markets: page,
		Total:   len(all),
		Limit:   opts.Limit,
		Offset:  opts.Offset,
	})
}

// GetMarket returns one market.
// GET /api/markets/{address}
func (h *MarketHandler) GetMarket(w http.ResponseWriter, r *http.Request) {
	addr, err := addressParam(r, "address")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	m, err := h.markets.Market(addr)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "failed to get market")
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// MarketHistory returns recorded states of one market, newest first.
// GET /api/markets/{address}/history
func (h *MarketHandler) MarketHistory(w http.ResponseWriter, r *http.Request) {
	addr, err := addressParam(r, "address")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	opts, err := parseListOpts(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	obs, err := h.markets.MarketHistory(r.Context(), addr, opts)
	if err != nil {
		if errors.Is(err, service.ErrHistoryDisabled) {
			writeError(w, http.StatusNotImplemented, "market history is not configured")
			return
		}
		writeServiceError(w, r, h.logger, err, "failed to list market history")
		return
	}
	if obs == nil {
		obs = []domain.MarketObservation{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"market": addr, "history": obs})
}
