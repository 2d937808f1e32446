package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/kozaktomas/face-id/internal/database"
)

// AttemptRepository provides PostgreSQL-backed storage of identification attempts
type AttemptRepository struct {
	pool *Pool
}

// NewAttemptRepository creates a new PostgreSQL attempt repository
func NewAttemptRepository(pool *Pool) *AttemptRepository {
	return &AttemptRepository{pool: pool}
}

// SaveAttempt stores one attempt. A missing ID is generated.
func (r *AttemptRepository) SaveAttempt(ctx context.Context, rec database.AttemptRecord) error {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}

	query := `
		INSERT INTO identification_attempts (
			id, operation, identity_id, claimed_identity_id, similarity, threshold, success, status,
			face_detected, face_confidence, quality_score,
			detection_seconds, enhance_seconds, embedding_seconds, search_seconds, total_seconds
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`

	var similarity sql.NullFloat64
	if rec.Similarity != nil {
		similarity = sql.NullFloat64{Float64: *rec.Similarity, Valid: true}
	}

	_, err := r.pool.Exec(ctx, query,
		rec.ID, rec.Operation, rec.IdentityID, rec.ClaimedIdentityID, similarity, rec.Threshold,
		rec.Success, rec.Status, rec.FaceDetected, rec.FaceConfidence, rec.QualityScore,
		rec.DetectionSeconds, rec.EnhanceSeconds, rec.EmbeddingSeconds, rec.SearchSeconds, rec.TotalSeconds,
	)
	if err != nil {
		return fmt.Errorf("save attempt: %w", err)
	}
	return nil
}

// ListAttempts returns the most recent attempts, newest first
func (r *AttemptRepository) ListAttempts(ctx context.Context, limit int) ([]database.AttemptRecord, error) {
	query := `
		SELECT id, operation, identity_id, claimed_identity_id, similarity, threshold, success, status,
		       face_detected, face_confidence, quality_score,
		       detection_seconds, enhance_seconds, embedding_seconds, search_seconds, total_seconds, created_at
		FROM identification_attempts
		ORDER BY created_at DESC
		LIMIT $1
	`

	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}
	defer rows.Close()

	var out []database.AttemptRecord
	for rows.Next() {
		var rec database.AttemptRecord
		var similarity sql.NullFloat64
		if err := rows.Scan(
			&rec.ID, &rec.Operation, &rec.IdentityID, &rec.ClaimedIdentityID, &similarity, &rec.Threshold,
			&rec.Success, &rec.Status, &rec.FaceDetected, &rec.FaceConfidence, &rec.QualityScore,
			&rec.DetectionSeconds, &rec.EnhanceSeconds, &rec.EmbeddingSeconds, &rec.SearchSeconds,
			&rec.TotalSeconds, &rec.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan attempt: %w", err)
		}
		if similarity.Valid {
			s := similarity.Float64
			rec.Similarity = &s
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate attempts: %w", err)
	}
	return out, nil
}

// FailureBreakdown counts attempts per status, most frequent first
func (r *AttemptRepository) FailureBreakdown(ctx context.Context) ([]database.StatusCount, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT status, COUNT(*)
		FROM identification_attempts
		GROUP BY status
		ORDER BY COUNT(*) DESC, status
	`)
	if err != nil {
		return nil, fmt.Errorf("failure breakdown: %w", err)
	}
	defer rows.Close()

	var out []database.StatusCount
	for rows.Next() {
		var sc database.StatusCount
		if err := rows.Scan(&sc.Status, &sc.Count); err != nil {
			return nil, fmt.Errorf("scan status count: %w", err)
		}
		out = append(out, sc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate status counts: %w", err)
	}
	return out, nil
}

// DeleteAllAttempts clears the attempt log and returns the number of deleted rows
func (r *AttemptRepository) DeleteAllAttempts(ctx context.Context) (int64, error) {
	result, err := r.pool.Exec(ctx, "DELETE FROM identification_attempts")
	if err != nil {
		return 0, fmt.Errorf("delete attempts: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("get rows affected: %w", err)
	}
	return n, nil
}

var _ database.AttemptLogWriter = (*AttemptRepository)(nil)
