// Package quality scores a located face and decides whether enhancement should run.
package quality

import (
	"errors"
	"fmt"
	"image"

	"github.com/kozaktomas/face-id/internal/constants"
	"github.com/kozaktomas/face-id/internal/vision"
)

// ErrFaceTooSmall is returned for a face whose box is narrower or shorter than the minimum.
var ErrFaceTooSmall = errors.New("face too small")

// Observation is one located face within its source image.
type Observation struct {
	Image      image.Image
	BBox       image.Rectangle
	Confidence float64
}

// Assessment is the quality verdict for an observation. Every sub-score is in [0,1].
type Assessment struct {
	Score             float64 `json:"quality_score"`
	Confidence        float64 `json:"confidence"`
	Size              float64 `json:"size"`
	Sharpness         float64 `json:"sharpness"`
	Brightness        float64 `json:"brightness"`
	EnhancementNeeded bool    `json:"enhancement_needed"`
}

// Gate scores observations against a fixed threshold.
type Gate struct {
	threshold   float64
	minFaceSize int
}

// NewGate creates a gate. Scores below threshold require enhancement; boxes below
// minFaceSize pixels in either dimension are rejected.
func NewGate(threshold float64, minFaceSize int) *Gate {
	return &Gate{threshold: threshold, minFaceSize: minFaceSize}
}

// CheckSize rejects a box below the minimum face size.
func (g *Gate) CheckSize(bbox image.Rectangle) error {
	if bbox.Dx() < g.minFaceSize || bbox.Dy() < g.minFaceSize {
		return fmt.Errorf("%w: %dx%d, minimum %dpx", ErrFaceTooSmall, bbox.Dx(), bbox.Dy(), g.minFaceSize)
	}
	return nil
}

// Assess scores obs. The size check runs before scoring.
func (g *Gate) Assess(obs Observation) (Assessment, error) {
	if obs.Image == nil {
		return Assessment{}, errors.New("observation has no image")
	}
	if err := g.CheckSize(obs.BBox); err != nil {
		return Assessment{}, err
	}

	bounds := obs.Image.Bounds()
	region := obs.BBox.Intersect(bounds)
	if region.Empty() {
		return Assessment{}, fmt.Errorf("face box %v lies outside the image %v", obs.BBox, bounds)
	}

	a := Assessment{
		Confidence: clamp01(obs.Confidence),
		Size:       sizeScore(obs.BBox, bounds),
	}
	a.Sharpness, a.Brightness = regionScores(obs.Image, region)
	return g.finish(a), nil
}

// Rescore re-evaluates the pixel-derived sub-scores on an enhanced face, keeping the
// detector confidence and size of the original assessment.
func (g *Gate) Rescore(before Assessment, face image.Image) Assessment {
	a := Assessment{Confidence: before.Confidence, Size: before.Size}
	a.Sharpness, a.Brightness = regionScores(face, face.Bounds())
	return g.finish(a)
}

func (g *Gate) finish(a Assessment) Assessment {
	a.Score = clamp01((a.Confidence + a.Size + a.Sharpness + a.Brightness) / 4)
	a.EnhancementNeeded = a.Score < g.threshold
	return a
}

// sizeScore is the face-to-image area ratio, capped and rescaled to [0,1].
func sizeScore(bbox, bounds image.Rectangle) float64 {
	imageArea := float64(bounds.Dx() * bounds.Dy())
	if imageArea == 0 {
		return 0
	}
	ratio := float64(bbox.Dx()*bbox.Dy()) / imageArea
	return clamp01(min(ratio, constants.MaxAreaRatio) / constants.MaxAreaRatio)
}

func regionScores(img image.Image, region image.Rectangle) (sharpness, brightness float64) {
	sharpness = clamp01(LaplacianVariance(vision.Grayscale(img, region)) / constants.SharpnessCap)
	brightness = clamp01(1 - abs(MeanIntensity(img, region)-constants.BrightnessTarget)/constants.BrightnessTarget)
	return sharpness, brightness
}

func clamp01(v float64) float64 {
	switch {
	case v != v: // NaN
		return 0
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
