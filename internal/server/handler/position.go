package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/botfolio/riskengine/internal/domain"
)

// PositionCloser executes a manual close. It races the monitor through the
// same single-transition guard, so whichever actor commits first wins and
// the other sees ErrConflict.
type PositionCloser interface {
	Close(ctx context.Context, pos domain.Position, reason domain.ExitReason, markPrice float64) (domain.Position, error)
}

// PositionHandler serves position endpoints.
type PositionHandler struct {
	positions domain.PositionStore
	gateway   domain.ExchangeGateway
	closer    PositionCloser
	logger    *slog.Logger
}

// NewPositionHandler creates a PositionHandler.
func NewPositionHandler(positions domain.PositionStore, gateway domain.ExchangeGateway, closer PositionCloser, logger *slog.Logger) *PositionHandler {
	return &PositionHandler{
		positions: positions,
		gateway:   gateway,
		closer:    closer,
		logger:    logger,
	}
}

// listPositionsResponse wraps the list positions response.
type listPositionsResponse struct {
	Positions []domain.Position `json:"positions"`
}

// ListOpen returns open positions, optionally scoped to one bot.
// GET /api/positions?bot_id=...
func (h *PositionHandler) ListOpen(w http.ResponseWriter, r *http.Request) {
	botID := r.URL.Query().Get("bot_id")

	positions, err := h.positions.ListOpen(r.Context(), botID)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list open positions failed",
			slog.String("bot_id", botID),
			slog.Any("error", err),
		)
		writeError(w, http.StatusInternalServerError, "failed to list positions")
		return
	}
	if positions == nil {
		positions = []domain.Position{}
	}

	writeJSON(w, http.StatusOK, listPositionsResponse{Positions: positions})
}

// Get returns one position by ID.
// GET /api/positions/{id}
func (h *PositionHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")

	pos, err := h.positions.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "position not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: get position failed",
			slog.String("position_id", id),
			slog.Any("error", err),
		)
		writeError(w, http.StatusInternalServerError, "failed to get position")
		return
	}

	writeJSON(w, http.StatusOK, pos)
}

// Close manually closes an open position at market.
// POST /api/positions/{id}/close
func (h *PositionHandler) Close(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")

	pos, err := h.positions.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "position not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: load position for close failed",
			slog.String("position_id", id),
			slog.Any("error", err),
		)
		writeError(w, http.StatusInternalServerError, "failed to load position")
		return
	}
	if !pos.IsOpen() {
		writeError(w, http.StatusConflict, "position already closed")
		return
	}

	mark, err := h.gateway.GetMarkPrice(r.Context(), pos.Symbol)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: mark price for manual close failed",
			slog.String("position_id", id),
			slog.String("symbol", pos.Symbol),
			slog.Any("error", err),
		)
		writeError(w, http.StatusBadGateway, "failed to read mark price")
		return
	}

	closed, err := h.closer.Close(r.Context(), pos, domain.ExitReasonManual, mark)
	if err != nil {
		if errors.Is(err, domain.ErrConflict) {
			writeError(w, http.StatusConflict, "position already closed")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: manual close failed",
			slog.String("position_id", id),
			slog.Any("error", err),
		)
		writeError(w, http.StatusInternalServerError, "failed to close position")
		return
	}

	writeJSON(w, http.StatusOK, closed)
}
