package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/botfolio/riskengine/internal/domain"
)

// PerformanceHandler serves per-bot performance rollups.
type PerformanceHandler struct {
	rollups domain.PerformanceStore
	logger  *slog.Logger
}

// NewPerformanceHandler creates a PerformanceHandler.
func NewPerformanceHandler(rollups domain.PerformanceStore, logger *slog.Logger) *PerformanceHandler {
	return &PerformanceHandler{rollups: rollups, logger: logger}
}

// Get returns the stored performance rollup for a bot.
// GET /api/bots/{id}/performance
func (h *PerformanceHandler) Get(w http.ResponseWriter, r *http.Request) {
	botID := pathParam(r, "id")

	perf, err := h.rollups.Get(r.Context(), botID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "no performance data for bot")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: get performance failed",
			slog.String("bot_id", botID),
			slog.Any("error", err),
		)
		writeError(w, http.StatusInternalServerError, "failed to get performance")
		return
	}

	writeJSON(w, http.StatusOK, perf)
}
