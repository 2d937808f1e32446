package database

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// AttemptRecord is one identification or verification attempt, kept for auditing.
type AttemptRecord struct {
	ID                uuid.UUID `json:"id"`
	Operation         string    `json:"operation"`                     // "identify" or "verify"
	IdentityID        string    `json:"identity_id,omitempty"`         // Best match identity (empty when nothing matched)
	ClaimedIdentityID string    `json:"claimed_identity_id,omitempty"` // Verify only
	Similarity        *float64  `json:"similarity,omitempty"`
	Threshold         float64   `json:"threshold"`
	Success           bool      `json:"success"`
	Status            string    `json:"status"` // failure status, "matched" on success
	FaceDetected      bool      `json:"face_detected"`
	FaceConfidence    float64   `json:"face_confidence"`
	QualityScore      float64   `json:"quality_score"`
	DetectionSeconds  float64   `json:"detection_seconds"`
	EnhanceSeconds    float64   `json:"enhance_seconds"`
	EmbeddingSeconds  float64   `json:"embedding_seconds"`
	SearchSeconds     float64   `json:"search_seconds"`
	TotalSeconds      float64   `json:"total_seconds"`
	CreatedAt         time.Time `json:"created_at"`
}

// StatusCount is the number of attempts that ended with a given status.
type StatusCount struct {
	Status string `json:"status"`
	Count  int    `json:"count"`
}

// StoredSignature is an enrolled identity's signature as archived outside the gallery files.
type StoredSignature struct {
	IdentityID string
	Signature  []float32
	Metadata   Metadata
	PhotoCount int
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// AttemptLogReader provides read access to recorded attempts
type AttemptLogReader interface {
	// ListAttempts returns the most recent attempts, newest first
	ListAttempts(ctx context.Context, limit int) ([]AttemptRecord, error)
	// FailureBreakdown counts attempts per status
	FailureBreakdown(ctx context.Context) ([]StatusCount, error)
}

// AttemptLogWriter records identification attempts
type AttemptLogWriter interface {
	AttemptLogReader

	// SaveAttempt stores one attempt
	SaveAttempt(ctx context.Context, rec AttemptRecord) error
	// DeleteAllAttempts clears the log and returns the number of deleted rows
	DeleteAllAttempts(ctx context.Context) (int64, error)
}

// SignatureArchive keeps the enrolled signatures so the gallery can be rebuilt from scratch
type SignatureArchive interface {
	// SaveSignature stores (or replaces) the signature of an identity
	SaveSignature(ctx context.Context, sig StoredSignature) error
	// DeleteSignature removes an identity's signature
	DeleteSignature(ctx context.Context, identityID string) error
	// ListSignatures returns every archived signature ordered by creation time
	ListSignatures(ctx context.Context) ([]StoredSignature, error)
	// CountSignatures returns the number of archived identities
	CountSignatures(ctx context.Context) (int, error)
}
