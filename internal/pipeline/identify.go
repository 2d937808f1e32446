package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kozaktomas/face-id/internal/database"
	"github.com/kozaktomas/face-id/internal/failure"
)

// IdentifyResult is the outcome of a 1:N identification.
type IdentifyResult struct {
	AttemptID uuid.UUID        `json:"attempt_id"`
	Success   bool             `json:"success"`
	Matches   []database.Match `json:"matches"`
	BestMatch *database.Match  `json:"best_match,omitempty"`
	Threshold float64          `json:"threshold"`
	Failure   *failure.Report  `json:"failure,omitempty"`
	Metrics   Metrics          `json:"metrics"`
}

// VerifyResult is the outcome of a 1:1 verification against a claimed identity.
type VerifyResult struct {
	AttemptID         uuid.UUID       `json:"attempt_id"`
	Verified          bool            `json:"verified"`
	ClaimedIdentityID string          `json:"claimed_identity_id"`
	BestMatch         *database.Match `json:"best_match,omitempty"`
	Threshold         float64         `json:"threshold"`
	Failure           *failure.Report `json:"failure,omitempty"`
	Metrics           Metrics         `json:"metrics"`
}

// Identify finds the gallery identities matching the face in photo. A non-positive topK
// uses the configured default.
func (p *Pipeline) Identify(ctx context.Context, photo []byte, topK int, threshold float64) (res *IdentifyResult) {
	start := time.Now()
	res = &IdentifyResult{AttemptID: uuid.New(), Threshold: threshold, Matches: []database.Match{}}
	var similarity *float64
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("identify panicked", zap.Any("panic", r), zap.Stack("stack"))
			report := p.classifier.Describe(failure.StatusUnknown)
			res.Success, res.Matches, res.BestMatch, res.Failure = false, []database.Match{}, nil, &report
		}
		res.Metrics.TotalSeconds = since(start)

		rec := p.newAttempt(res.AttemptID, attemptIdentify, res.Metrics)
		rec.Threshold = res.Threshold
		rec.Success = res.Success
		rec.Similarity = similarity
		if res.BestMatch != nil {
			rec.IdentityID = res.BestMatch.IdentityID
		}
		p.recordAttempt(ctx, rec, res.Failure)
	}()

	if topK <= 0 {
		topK = p.opts.TopK
	}

	ex, err := p.extract(ctx, photo)
	res.Metrics = ex.metrics
	if err != nil {
		report := p.classify(ex, err)
		res.Failure = &report
		return res
	}

	m, err := p.matcher.Identify(ex.signature, threshold, topK)
	if err != nil {
		p.logger.Error("gallery search failed", zap.Error(err))
		report := p.classifier.Describe(failure.StatusUnknown)
		res.Failure = &report
		return res
	}
	res.Metrics.SearchSeconds = m.Timing.SearchSeconds
	res.Success, res.Matches, res.BestMatch = m.Success, m.Matches, m.BestMatch

	if m.Success {
		similarity = &m.BestMatch.Score
		return res
	}
	similarity = p.bestSimilarity(ex.signature)
	ex.attempt.Similarity = similarity
	ex.attempt.Threshold = threshold
	report := p.classifier.Classify(ex.attempt)
	res.Failure = &report
	return res
}

// Verify checks whether the face in photo belongs to claimedID. It runs identification
// with k=1 at the verification threshold.
func (p *Pipeline) Verify(ctx context.Context, photo []byte, claimedID string) (res *VerifyResult) {
	start := time.Now()
	threshold := p.opts.VerifyThreshold
	res = &VerifyResult{AttemptID: uuid.New(), ClaimedIdentityID: claimedID, Threshold: threshold}
	var similarity *float64
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("verify panicked", zap.Any("panic", r), zap.Stack("stack"))
			report := p.classifier.Describe(failure.StatusUnknown)
			res.Verified, res.BestMatch, res.Failure = false, nil, &report
		}
		res.Metrics.TotalSeconds = since(start)

		rec := p.newAttempt(res.AttemptID, attemptVerify, res.Metrics)
		rec.ClaimedIdentityID = claimedID
		rec.Threshold = threshold
		rec.Success = res.Verified
		rec.Similarity = similarity
		if res.BestMatch != nil {
			rec.IdentityID = res.BestMatch.IdentityID
			if !res.Verified {
				rec.Status = statusMismatch
			}
		}
		p.recordAttempt(ctx, rec, res.Failure)
	}()

	ex, err := p.extract(ctx, photo)
	res.Metrics = ex.metrics
	if err != nil {
		report := p.classify(ex, err)
		res.Failure = &report
		return res
	}

	v, err := p.matcher.Verify(ex.signature, claimedID, threshold)
	if err != nil {
		p.logger.Error("verification failed", zap.Error(err))
		report := p.classifier.Describe(failure.StatusUnknown)
		res.Failure = &report
		return res
	}
	res.Metrics.SearchSeconds = v.Timing.SearchSeconds
	res.Verified, res.BestMatch = v.Verified, v.BestMatch

	if v.BestMatch != nil {
		similarity = &v.BestMatch.Score
		return res
	}
	similarity = p.bestSimilarity(ex.signature)
	ex.attempt.Similarity = similarity
	ex.attempt.Threshold = threshold
	report := p.classifier.Classify(ex.attempt)
	res.Failure = &report
	return res
}

// bestSimilarity returns the top gallery score for sig regardless of threshold,
// or nil for an empty gallery.
func (p *Pipeline) bestSimilarity(sig []float32) *float64 {
	hits, err := p.index.Search(sig, 1)
	if err != nil || len(hits) == 0 {
		return nil
	}
	return &hits[0].Score
}
