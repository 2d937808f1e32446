// Package enhance conditionally runs super-resolution and restoration on a face crop.
// Every stage is best-effort: a failing stage falls back to its input and the outcome
// records why.
package enhance

import (
	"context"
	"errors"
	"fmt"
	"image"
	"time"

	"go.uber.org/zap"

	"github.com/kozaktomas/face-id/internal/vision"
)

// ErrNoUsableFace is returned when the crop left after enhancement is not a valid face image.
var ErrNoUsableFace = errors.New("no usable face region")

// Stage names an enhancement step.
type Stage string

const (
	StageSuperResolution Stage = "super_resolution"
	StageRestoration     Stage = "restoration"
)

// Skip reasons.
const (
	ReasonNotNeeded   = "quality above threshold"
	ReasonDisabled    = "enhancement disabled"
	ReasonLargeEnough = "crop large enough"
	ReasonUnavailable = "unavailable"
)

// StageOutcome describes what happened in one stage. Exactly one of Applied, FellBack
// and Skipped is set.
type StageOutcome struct {
	Stage    Stage         `json:"stage"`
	Applied  bool          `json:"applied"`
	FellBack bool          `json:"fell_back"`
	Skipped  bool          `json:"skipped"`
	Reason   string        `json:"reason,omitempty"`
	Duration time.Duration `json:"duration"`
}

func (s StageOutcome) String() string {
	switch {
	case s.Applied:
		return fmt.Sprintf("%s: applied", s.Stage)
	case s.FellBack:
		return fmt.Sprintf("%s: fell back (%s)", s.Stage, s.Reason)
	default:
		return fmt.Sprintf("%s: skipped: %s", s.Stage, s.Reason)
	}
}

// Result is the enhanced face at canonical size plus per-stage outcomes.
type Result struct {
	Image         *image.RGBA
	Outcomes      []StageOutcome
	Enhanced      bool // at least one stage applied
	SuperResolved bool
}

// Providers supplies the enhancement capabilities.
type Providers interface {
	Restorer(ctx context.Context) (vision.Restorer, error)
	SuperResolver(ctx context.Context) (vision.SuperResolver, error)
}

type Options struct {
	Enabled             bool
	FaceSize            int     // canonical output width and height
	SmallImageThreshold int     // super-resolution runs when the crop's smaller side is below this
	UpscaleFactor       int     // scale requested from super-resolution
	RestorationWeight   float64 // 0 keeps the input, 1 keeps the restored face
}

type Orchestrator struct {
	providers Providers
	opts      Options
	logger    *zap.Logger
}

func NewOrchestrator(providers Providers, opts Options, logger *zap.Logger) *Orchestrator {
	return &Orchestrator{providers: providers, opts: opts, logger: logger}
}

// Enhance returns the crop at canonical size, enhanced when needed is set.
// Stage failures never fail the call; only an unusable final image does.
func (o *Orchestrator) Enhance(ctx context.Context, crop image.Image, needed bool) (*Result, error) {
	if crop == nil || crop.Bounds().Empty() {
		return nil, fmt.Errorf("%w: empty crop", ErrNoUsableFace)
	}

	res := &Result{}
	current := crop

	switch {
	case !o.opts.Enabled:
		res.Outcomes = skipAll(ReasonDisabled)
	case !needed:
		res.Outcomes = skipAll(ReasonNotNeeded)
	default:
		var sr StageOutcome
		current, sr = o.superResolve(ctx, current)
		var rs StageOutcome
		current, rs = o.restore(ctx, current)
		res.Outcomes = []StageOutcome{sr, rs}
		res.SuperResolved = sr.Applied
		res.Enhanced = sr.Applied || rs.Applied
	}

	res.Image = canonical(current, o.opts.FaceSize)
	if err := vision.ValidateFace(res.Image, o.opts.FaceSize); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNoUsableFace, err)
	}
	return res, nil
}

func (o *Orchestrator) superResolve(ctx context.Context, in image.Image) (image.Image, StageOutcome) {
	out := StageOutcome{Stage: StageSuperResolution}
	if vision.MinSide(in) >= o.opts.SmallImageThreshold {
		out.Skipped, out.Reason = true, ReasonLargeEnough
		return in, out
	}

	sr, err := o.providers.SuperResolver(ctx)
	if err != nil {
		o.logger.Debug("super-resolution unavailable", zap.Error(err))
		out.Skipped, out.Reason = true, ReasonUnavailable
		return in, out
	}

	start := time.Now()
	upscaled, err := guard(func() (image.Image, error) { return sr.Upscale(ctx, in, o.opts.UpscaleFactor) })
	out.Duration = time.Since(start)
	if err == nil {
		b := in.Bounds()
		err = checkShape(upscaled, b.Dx()*o.opts.UpscaleFactor, b.Dy()*o.opts.UpscaleFactor)
	}
	if err != nil {
		return in, o.fellBack(out, err)
	}

	out.Applied = true
	return vision.Resize(upscaled, o.opts.FaceSize, o.opts.FaceSize), out
}

func (o *Orchestrator) restore(ctx context.Context, in image.Image) (image.Image, StageOutcome) {
	out := StageOutcome{Stage: StageRestoration}

	rs, err := o.providers.Restorer(ctx)
	if err != nil {
		o.logger.Debug("restoration unavailable", zap.Error(err))
		out.Skipped, out.Reason = true, ReasonUnavailable
		return in, out
	}

	face := canonical(in, o.opts.FaceSize)
	start := time.Now()
	restored, err := guard(func() (image.Image, error) { return rs.Restore(ctx, face, o.opts.RestorationWeight) })
	out.Duration = time.Since(start)
	if err == nil {
		err = checkShape(restored, o.opts.FaceSize, o.opts.FaceSize)
	}
	if err != nil {
		return in, o.fellBack(out, err)
	}

	out.Applied = true
	return restored, out
}

func (o *Orchestrator) fellBack(out StageOutcome, err error) StageOutcome {
	o.logger.Warn("enhancement stage failed, keeping previous image",
		zap.String("stage", string(out.Stage)),
		zap.Error(err),
	)
	out.FellBack = true
	out.Reason = err.Error()
	return out
}

func skipAll(reason string) []StageOutcome {
	return []StageOutcome{
		{Stage: StageSuperResolution, Skipped: true, Reason: reason},
		{Stage: StageRestoration, Skipped: true, Reason: reason},
	}
}

// guard converts a provider panic into an error.
func guard(call func() (image.Image, error)) (img image.Image, err error) {
	defer func() {
		if r := recover(); r != nil {
			img, err = nil, fmt.Errorf("provider panicked: %v", r)
		}
	}()
	return call()
}

func checkShape(img image.Image, width, height int) error {
	if img == nil {
		return errors.New("provider returned no image")
	}
	b := img.Bounds()
	if b.Empty() {
		return errors.New("provider returned an empty image")
	}
	if b.Dx() != width || b.Dy() != height {
		return fmt.Errorf("provider returned %dx%d, want %dx%d", b.Dx(), b.Dy(), width, height)
	}
	return nil
}

// canonical returns img as an RGBA image of size×size.
func canonical(img image.Image, size int) *image.RGBA {
	b := img.Bounds()
	if rgba, ok := img.(*image.RGBA); ok && b.Min == (image.Point{}) && b.Dx() == size && b.Dy() == size {
		return rgba
	}
	if b.Dx() == size && b.Dy() == size {
		return vision.Crop(img, b)
	}
	return vision.Resize(img, size, size)
}
