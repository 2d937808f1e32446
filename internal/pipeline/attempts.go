package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kozaktomas/face-id/internal/database"
	"github.com/kozaktomas/face-id/internal/failure"
)

const (
	attemptIdentify = "identify"
	attemptVerify   = "verify"

	statusMatched  = "matched"
	statusMismatch = "mismatch"
)

func (p *Pipeline) newAttempt(id uuid.UUID, operation string, m Metrics) database.AttemptRecord {
	return database.AttemptRecord{
		ID:               id,
		Operation:        operation,
		Status:           statusMatched,
		FaceDetected:     m.FaceDetected,
		FaceConfidence:   m.FaceConfidence,
		QualityScore:     m.QualityScore,
		DetectionSeconds: m.DetectionSeconds,
		EnhanceSeconds:   m.EnhancementSeconds,
		EmbeddingSeconds: m.EmbeddingSeconds,
		SearchSeconds:    m.SearchSeconds,
		TotalSeconds:     m.TotalSeconds,
		CreatedAt:        time.Now(),
	}
}

// recordAttempt tallies the failure, logs the outcome and writes the attempt log.
func (p *Pipeline) recordAttempt(ctx context.Context, rec database.AttemptRecord, report *failure.Report) {
	if report != nil {
		rec.Status = string(report.Status)
		p.tally.Record(*report)
	}

	fields := []zap.Field{
		zap.String("attempt_id", rec.ID.String()),
		zap.String("operation", rec.Operation),
		zap.String("status", rec.Status),
		zap.Float64("total_seconds", rec.TotalSeconds),
	}
	if rec.IdentityID != "" {
		fields = append(fields, zap.String("identity_id", rec.IdentityID))
	}
	if rec.Similarity != nil {
		fields = append(fields, zap.Float64("similarity", *rec.Similarity))
	}
	p.logger.Info("attempt finished", fields...)

	if p.attempts == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := p.attempts.SaveAttempt(ctx, rec); err != nil {
		p.logger.Error("failed to record attempt", zap.String("attempt_id", rec.ID.String()), zap.Error(err))
	}
}
