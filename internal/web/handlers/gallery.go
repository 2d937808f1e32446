package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/kozaktomas/face-id/internal/database"
	"github.com/kozaktomas/face-id/internal/facematch"
	"github.com/kozaktomas/face-id/internal/failure"
)

// GalleryHandler handles gallery inspection and removal.
type GalleryHandler struct {
	service FaceService
	logger  *zap.Logger
}

// NewGalleryHandler creates a new gallery handler.
func NewGalleryHandler(service FaceService, logger *zap.Logger) *GalleryHandler {
	return &GalleryHandler{service: service, logger: logger}
}

// StatsResponse represents the gallery statistics response
type StatsResponse struct {
	Gallery    database.Statistics   `json:"gallery"`
	Consistent bool                  `json:"consistent"`
	Failures   []failure.StatusCount `json:"failures"`
}

// Stats returns the gallery statistics and the failure counts since start.
func (h *GalleryHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats := h.service.Statistics()
	respondJSON(w, http.StatusOK, StatsResponse{
		Gallery:    stats,
		Consistent: stats.Consistent(),
		Failures:   h.service.FailureStatistics(),
	})
}

// Entries lists gallery entries, optionally filtered by ?identity_id= or ?name=.
func (h *GalleryHandler) Entries(w http.ResponseWriter, r *http.Request) {
	entries := h.service.Entries()

	if id := r.URL.Query().Get("identity_id"); id != "" {
		var filtered []database.Entry
		for _, e := range entries {
			if e.IdentityID == id {
				filtered = append(filtered, e)
			}
		}
		entries = filtered
	}
	if name := r.URL.Query().Get("name"); name != "" {
		entries = facematch.FilterByName(entries, name)
	}
	if entries == nil {
		entries = []database.Entry{}
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"entries": entries,
		"count":   len(entries),
	})
}

// RemoveIdentity deletes every entry of the identity in the path.
func (h *GalleryHandler) RemoveIdentity(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		respondError(w, http.StatusBadRequest, "identity id is required")
		return
	}

	removed, err := h.service.RemoveIdentity(r.Context(), id)
	if err != nil {
		h.logger.Error("failed to remove identity", zap.String("identity_id", sanitizeForLog(id)), zap.Error(err))
		respondError(w, http.StatusInternalServerError, "failed to remove identity")
		return
	}
	if removed == 0 {
		respondError(w, http.StatusNotFound, "identity not found")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"identity_id": id,
		"removed":     removed,
	})
}
