package handlers

import (
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/kozaktomas/face-id/internal/constants"
	"github.com/kozaktomas/face-id/internal/database"
)

// AttemptsHandler exposes the persisted attempt log.
type AttemptsHandler struct {
	log    database.AttemptLogReader
	logger *zap.Logger
}

// NewAttemptsHandler creates a new attempts handler. A nil log answers 503.
func NewAttemptsHandler(log database.AttemptLogReader, logger *zap.Logger) *AttemptsHandler {
	return &AttemptsHandler{log: log, logger: logger}
}

// List returns the most recent attempts (?limit=, default 50).
func (h *AttemptsHandler) List(w http.ResponseWriter, r *http.Request) {
	if h.log == nil {
		respondError(w, http.StatusServiceUnavailable, "attempt log not configured")
		return
	}

	limit := constants.DefaultAttemptListLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			respondError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	attempts, err := h.log.ListAttempts(r.Context(), limit)
	if err != nil {
		h.logger.Error("failed to list attempts", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "failed to list attempts")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"attempts": attempts,
		"count":    len(attempts),
	})
}

// Stats returns the persisted attempt counts per status.
func (h *AttemptsHandler) Stats(w http.ResponseWriter, r *http.Request) {
	if h.log == nil {
		respondError(w, http.StatusServiceUnavailable, "attempt log not configured")
		return
	}

	breakdown, err := h.log.FailureBreakdown(r.Context())
	if err != nil {
		h.logger.Error("failed to load attempt breakdown", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "failed to load attempt statistics")
		return
	}
	total := 0
	for _, c := range breakdown {
		total += c.Count
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"statuses": breakdown,
		"total":    total,
	})
}
