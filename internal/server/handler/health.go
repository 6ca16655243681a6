package handler

import (
	"context"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/alanyoungcy/parimutuel/internal/pipeline"
)

// Check probes one dependency.
type Check func(ctx context.Context) error

// PollStatus reports the poller's last cycle.
type PollStatus interface {
	Status() pipeline.PollStatus
}

// HealthHandler serves the health-check endpoint.
type HealthHandler struct {
	mode    string
	started time.Time
	poller  PollStatus
	checks  map[string]Check
	logger  *slog.Logger
}

// NewHealthHandler creates a HealthHandler. poller may be nil.
func NewHealthHandler(mode string, poller PollStatus, checks map[string]Check, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{
		mode:    mode,
		started: time.Now(),
		poller:  poller,
		checks:  checks,
		logger:  logger,
	}
}

type healthResponse struct {
	Status    string               `json:"status"`
	Mode      string               `json:"mode"`
	Timestamp string               `json:"timestamp"`
	Uptime    string               `json:"uptime"`
	Checks    map[string]string    `json:"checks,omitempty"`
	Poll      *pipeline.PollStatus `json:"poll,omitempty"`
}

// HealthCheck runs every dependency probe. Any failure reports "degraded"
// with status 503.
// GET /api/health
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	resp := healthResponse{
		Status:    "ok",
		Mode:      h.mode,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Uptime:    time.Since(h.started).Truncate(time.Second).String(),
	}

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)
	if len(names) > 0 {
		resp.Checks = make(map[string]string, len(names))
	}
	for _, name := range names {
		if err := h.checks[name](ctx); err != nil {
			resp.Status = "degraded"
			resp.Checks[name] = err.Error()
			h.logger.WarnContext(ctx, "handler: health check failed",
				slog.String("check", name),
				slog.String("error", err.Error()),
			)
			continue
		}
		resp.Checks[name] = "ok"
	}

	if h.poller != nil {
		st := h.poller.Status()
		resp.Poll = &st
	}

	status := http.StatusOK
	if resp.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}
