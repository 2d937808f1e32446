package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"time"

	"github.com/kozaktomas/face-id/internal/database"
	"github.com/kozaktomas/face-id/internal/enhance"
	"github.com/kozaktomas/face-id/internal/facematch"
	"github.com/kozaktomas/face-id/internal/failure"
	"github.com/kozaktomas/face-id/internal/quality"
	"github.com/kozaktomas/face-id/internal/vision"
)

// Metrics describes what happened to one photo. Durations are in seconds.
type Metrics struct {
	FaceDetected       bool                   `json:"face_detected"`
	FaceConfidence     float64                `json:"face_confidence,omitempty"`
	FaceWidth          int                    `json:"face_width,omitempty"`
	FaceHeight         int                    `json:"face_height,omitempty"`
	QualityScore       float64                `json:"quality_score,omitempty"`
	EnhancementNeeded  bool                   `json:"enhancement_needed"`
	Enhanced           bool                   `json:"enhanced"`
	SuperResolved      bool                   `json:"super_resolved"`
	Enhancement        []enhance.StageOutcome `json:"enhancement,omitempty"`
	QualityAfter       *float64               `json:"quality_after,omitempty"`
	QualityImprovement *float64               `json:"quality_improvement,omitempty"`
	DetectionSeconds   float64                `json:"detection_seconds"`
	QualitySeconds     float64                `json:"quality_seconds"`
	EnhancementSeconds float64                `json:"enhancement_seconds"`
	EmbeddingSeconds   float64                `json:"embedding_seconds"`
	SearchSeconds      float64                `json:"search_seconds"`
	TotalSeconds       float64                `json:"total_seconds"`
}

// extraction is the result of running one photo up to its signature.
// It is returned even on failure, carrying what is known for classification.
type extraction struct {
	signature []float32 // unit length, nil on failure
	metrics   Metrics
	attempt   failure.Attempt
}

func since(t time.Time) float64 { return time.Since(t).Seconds() }

// extract decodes, locates, gates, crops, enhances and embeds one photo.
func (p *Pipeline) extract(ctx context.Context, photo []byte) (*extraction, error) {
	ex := &extraction{}
	start := time.Now()
	defer func() { ex.metrics.TotalSeconds = since(start) }()

	img, err := vision.Decode(photo)
	if err != nil {
		ex.attempt.ImageInvalid = true
		return ex, err
	}

	t := time.Now()
	detector, err := p.providers.Detector(ctx)
	if err != nil {
		return ex, fmt.Errorf("%w: detector: %w", errUnclassified, err)
	}
	detections, err := detector.Detect(ctx, img)
	ex.metrics.DetectionSeconds = since(t)
	if err != nil {
		return ex, fmt.Errorf("%w: detection: %w", errUnclassified, err)
	}
	face, ok := vision.Locate(detections)
	if !ok {
		return ex, ErrNoFaceDetected
	}

	w, h := face.BBox.Dx(), face.BBox.Dy()
	ex.attempt.FaceDetected = true
	ex.attempt.FaceWidth, ex.attempt.FaceHeight = w, h
	ex.metrics.FaceDetected = true
	ex.metrics.FaceConfidence = face.Confidence
	ex.metrics.FaceWidth, ex.metrics.FaceHeight = w, h

	t = time.Now()
	assessment, err := p.gate.Assess(quality.Observation{Image: img, BBox: face.BBox, Confidence: face.Confidence})
	ex.metrics.QualitySeconds = since(t)
	if err != nil {
		if errors.Is(err, quality.ErrFaceTooSmall) {
			return ex, err
		}
		return ex, fmt.Errorf("%w: %w", errUnclassified, err)
	}
	ex.metrics.QualityScore = assessment.Score
	ex.metrics.EnhancementNeeded = assessment.EnhancementNeeded

	crop := vision.Crop(img, facematch.ExpandRect(face.BBox, p.opts.CropMargin, img.Bounds()))

	t = time.Now()
	enhanced, err := p.enhancer.Enhance(ctx, crop, assessment.EnhancementNeeded)
	ex.metrics.EnhancementSeconds = since(t)
	if err != nil {
		return ex, err
	}
	ex.metrics.Enhanced = enhanced.Enhanced
	ex.metrics.SuperResolved = enhanced.SuperResolved
	ex.metrics.Enhancement = enhanced.Outcomes
	if enhanced.Enhanced {
		after := p.gate.Rescore(assessment, enhanced.Image)
		improvement := after.Score - assessment.Score
		ex.metrics.QualityAfter = &after.Score
		ex.metrics.QualityImprovement = &improvement
	}

	t = time.Now()
	raw, err := p.embed(ctx, enhanced.Image)
	ex.metrics.EmbeddingSeconds = since(t)
	if err != nil {
		return ex, fmt.Errorf("%w: %w", ErrEmbeddingFailed, err)
	}
	ex.attempt.Embedding = raw

	if norm := database.L2Norm(raw); norm < p.opts.NormEpsilon {
		return ex, fmt.Errorf("%w: signature norm %g: %w", ErrEmbeddingFailed, norm, database.ErrDegenerateSignature)
	}
	sig, err := database.Normalize(raw)
	if err != nil {
		return ex, fmt.Errorf("%w: %w", ErrEmbeddingFailed, err)
	}
	ex.signature = sig
	return ex, nil
}

// embed runs the embedder on an aligned face. An empty signature is an error.
func (p *Pipeline) embed(ctx context.Context, face *image.RGBA) ([]float32, error) {
	embedder, err := p.providers.Embedder(ctx)
	if err != nil {
		return nil, err
	}
	raw, err := embedder.Embed(ctx, face)
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, errors.New("embedder returned no signature")
	}
	return raw, nil
}

// classify maps an extraction failure to a report.
func (p *Pipeline) classify(ex *extraction, err error) failure.Report {
	switch {
	case errors.Is(err, errUnclassified):
		return p.classifier.Describe(failure.StatusUnknown)
	case errors.Is(err, enhance.ErrNoUsableFace):
		r := p.classifier.Describe(failure.StatusUnknown)
		r.Reason = "No usable face region."
		return r
	default:
		return p.classifier.Classify(ex.attempt)
	}
}
