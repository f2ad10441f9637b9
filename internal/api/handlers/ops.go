package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"rainwatch/internal/core"
	"rainwatch/internal/engine"
)

// CycleRunner triggers an immediate evaluation sweep. Implementations must
// refuse with a conflict error when a cycle is already in flight rather
// than queueing the request.
type CycleRunner interface {
	TryRunCycle(ctx context.Context) (engine.CycleStats, error)
}

// OpsHandler exposes operational endpoints for manual intervention.
type OpsHandler struct {
	runner CycleRunner
	logger *slog.Logger
}

// NewOpsHandler creates an OpsHandler with the provided dependencies.
func NewOpsHandler(runner CycleRunner, l *slog.Logger) *OpsHandler {
	if l == nil {
		l = slog.Default()
	}
	return &OpsHandler{runner: runner, logger: l}
}

// RegisterRoutes mounts operational routes on the provided chi.Router.
func (h *OpsHandler) RegisterRoutes(r chi.Router) {
	r.Route("/ops", func(r chi.Router) {
		r.Post("/run-check", h.RunCheck)
	})
}

// RunCheck handles POST /v1/ops/run-check. It runs one evaluation cycle
// synchronously and returns its statistics; a sweep already in flight
// yields 409.
func (h *OpsHandler) RunCheck(w http.ResponseWriter, r *http.Request) {
	stats, err := h.runner.TryRunCycle(r.Context())
	if err != nil {
		core.Error(w, r, err)
		return
	}

	h.logger.InfoContext(r.Context(), "manual evaluation cycle complete",
		"evaluated", stats.Evaluated,
		"triggered", stats.Triggered,
	)

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: stats})
}
