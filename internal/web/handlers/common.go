package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/kozaktomas/face-id/internal/database"
	"github.com/kozaktomas/face-id/internal/failure"
	"github.com/kozaktomas/face-id/internal/pipeline"
)

// FaceService is the pipeline as seen by the handlers. *pipeline.Pipeline implements it.
type FaceService interface {
	Enroll(ctx context.Context, req pipeline.EnrollRequest) *pipeline.EnrollResult
	Identify(ctx context.Context, photo []byte, topK int, threshold float64) *pipeline.IdentifyResult
	Verify(ctx context.Context, photo []byte, claimedID string) *pipeline.VerifyResult
	RemoveIdentity(ctx context.Context, identityID string) (int, error)
	Statistics() database.Statistics
	Entries() []database.Entry
	FailureStatistics() []failure.StatusCount
	Options() pipeline.Options
}

// sanitizeForLog removes newlines and carriage returns to prevent log injection.
func sanitizeForLog(s string) string {
	return strings.NewReplacer("\n", "", "\r", "").Replace(s)
}

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// respondError sends an error response.
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// HealthCheck handles the health check endpoint.
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}
