package enhance

import (
	"context"
	"errors"
	"image"
	"image/color"
	"testing"

	"go.uber.org/zap"

	"github.com/kozaktomas/face-id/internal/vision"
)

type fakeUpscaler struct {
	calls int
	fn    func(face image.Image, scale int) (image.Image, error)
}

func (f *fakeUpscaler) Upscale(_ context.Context, face image.Image, scale int) (image.Image, error) {
	f.calls++
	if f.fn != nil {
		return f.fn(face, scale)
	}
	b := face.Bounds()
	return solid(b.Dx()*scale, b.Dy()*scale, color.White), nil
}

type fakeRestorer struct {
	calls  int
	weight float64
	fn     func(face image.Image) (image.Image, error)
}

func (f *fakeRestorer) Restore(_ context.Context, face image.Image, weight float64) (image.Image, error) {
	f.calls++
	f.weight = weight
	if f.fn != nil {
		return f.fn(face)
	}
	b := face.Bounds()
	return solid(b.Dx(), b.Dy(), color.Black), nil
}

type fakeProviders struct {
	restorer vision.Restorer
	upscaler vision.SuperResolver
}

func (p fakeProviders) Restorer(context.Context) (vision.Restorer, error) {
	if p.restorer == nil {
		return nil, vision.ErrProviderUnavailable
	}
	return p.restorer, nil
}

func (p fakeProviders) SuperResolver(context.Context) (vision.SuperResolver, error) {
	if p.upscaler == nil {
		return nil, vision.ErrProviderUnavailable
	}
	return p.upscaler, nil
}

func solid(width, height int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := range height {
		for x := range width {
			img.Set(x, y, c)
		}
	}
	return img
}

// near tolerates resampling rounding.
func near(got, want uint32) bool {
	return got+2 >= want && got <= want+2
}

func defaultOptions() Options {
	return Options{
		Enabled:             true,
		FaceSize:            112,
		SmallImageThreshold: 64,
		UpscaleFactor:       2,
		RestorationWeight:   0.5,
	}
}

func newOrchestrator(p Providers) *Orchestrator {
	return NewOrchestrator(p, defaultOptions(), zap.NewNop())
}

func outcome(t *testing.T, res *Result, stage Stage) StageOutcome {
	t.Helper()
	for _, o := range res.Outcomes {
		if o.Stage == stage {
			return o
		}
	}
	t.Fatalf("no outcome for stage %s", stage)
	return StageOutcome{}
}

func TestEnhanceNotNeeded(t *testing.T) {
	up, rs := &fakeUpscaler{}, &fakeRestorer{}
	o := newOrchestrator(fakeProviders{restorer: rs, upscaler: up})

	res, err := o.Enhance(context.Background(), solid(40, 40, color.Gray{Y: 50}), false)
	if err != nil {
		t.Fatalf("Enhance failed: %v", err)
	}
	if up.calls+rs.calls != 0 {
		t.Errorf("providers called %d times, want 0", up.calls+rs.calls)
	}
	if res.Enhanced {
		t.Error("Enhanced = true, want false")
	}
	if b := res.Image.Bounds(); b.Dx() != 112 || b.Dy() != 112 {
		t.Errorf("image bounds = %v, want 112x112", b)
	}
	if got := outcome(t, res, StageRestoration); !got.Skipped || got.Reason != ReasonNotNeeded {
		t.Errorf("restoration outcome = %v", got)
	}
}

func TestEnhanceSmallCrop(t *testing.T) {
	up, rs := &fakeUpscaler{}, &fakeRestorer{}
	o := newOrchestrator(fakeProviders{restorer: rs, upscaler: up})

	res, err := o.Enhance(context.Background(), solid(40, 50, color.Gray{Y: 50}), true)
	if err != nil {
		t.Fatalf("Enhance failed: %v", err)
	}
	if up.calls != 1 || rs.calls != 1 {
		t.Errorf("upscale calls = %d, restore calls = %d; want 1, 1", up.calls, rs.calls)
	}
	if rs.weight != 0.5 {
		t.Errorf("restoration weight = %v, want 0.5", rs.weight)
	}
	if !res.Enhanced || !res.SuperResolved {
		t.Errorf("Enhanced, SuperResolved = %v, %v; want true, true", res.Enhanced, res.SuperResolved)
	}
	if r, _, _, _ := res.Image.At(56, 56).RGBA(); r != 0 {
		t.Errorf("final image is not the restored output (red = %d)", r)
	}
}

func TestEnhanceLargeCropSkipsSuperResolution(t *testing.T) {
	up, rs := &fakeUpscaler{}, &fakeRestorer{}
	o := newOrchestrator(fakeProviders{restorer: rs, upscaler: up})

	res, err := o.Enhance(context.Background(), solid(150, 150, color.Gray{Y: 50}), true)
	if err != nil {
		t.Fatalf("Enhance failed: %v", err)
	}
	if up.calls != 0 {
		t.Errorf("upscale calls = %d, want 0", up.calls)
	}
	if got := outcome(t, res, StageSuperResolution); !got.Skipped || got.Reason != ReasonLargeEnough {
		t.Errorf("super-resolution outcome = %v", got)
	}
	if got := outcome(t, res, StageRestoration); !got.Applied {
		t.Errorf("restoration outcome = %v, want applied", got)
	}
}

func TestEnhanceFallsBack(t *testing.T) {
	input := solid(40, 40, color.RGBA{R: 200, G: 10, B: 10, A: 255})

	tests := []struct {
		name     string
		upscale  func(image.Image, int) (image.Image, error)
		restore  func(image.Image) (image.Image, error)
		wantSR   func(StageOutcome) bool
		wantRest func(StageOutcome) bool
	}{
		{
			name:     "both fail",
			upscale:  func(image.Image, int) (image.Image, error) { return nil, errors.New("gpu out of memory") },
			restore:  func(image.Image) (image.Image, error) { return nil, errors.New("model crashed") },
			wantSR:   func(o StageOutcome) bool { return o.FellBack && o.Reason == "gpu out of memory" },
			wantRest: func(o StageOutcome) bool { return o.FellBack },
		},
		{
			name:     "empty outputs",
			upscale:  func(image.Image, int) (image.Image, error) { return image.NewRGBA(image.Rectangle{}), nil },
			restore:  func(image.Image) (image.Image, error) { return nil, nil },
			wantSR:   func(o StageOutcome) bool { return o.FellBack },
			wantRest: func(o StageOutcome) bool { return o.FellBack },
		},
		{
			name:     "wrong shape",
			upscale:  func(image.Image, int) (image.Image, error) { return solid(33, 90, color.White), nil },
			restore:  func(image.Image) (image.Image, error) { return solid(100, 100, color.White), nil },
			wantSR:   func(o StageOutcome) bool { return o.FellBack },
			wantRest: func(o StageOutcome) bool { return o.FellBack },
		},
		{
			name:     "panics",
			upscale:  func(image.Image, int) (image.Image, error) { panic("segfault in provider") },
			restore:  func(image.Image) (image.Image, error) { panic("segfault in provider") },
			wantSR:   func(o StageOutcome) bool { return o.FellBack },
			wantRest: func(o StageOutcome) bool { return o.FellBack },
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			o := newOrchestrator(fakeProviders{
				upscaler: &fakeUpscaler{fn: tc.upscale},
				restorer: &fakeRestorer{fn: tc.restore},
			})
			res, err := o.Enhance(context.Background(), input, true)
			if err != nil {
				t.Fatalf("Enhance failed: %v", err)
			}
			if res.Enhanced {
				t.Error("Enhanced = true after every stage failed")
			}
			if got := outcome(t, res, StageSuperResolution); !tc.wantSR(got) {
				t.Errorf("super-resolution outcome = %v", got)
			}
			if got := outcome(t, res, StageRestoration); !tc.wantRest(got) {
				t.Errorf("restoration outcome = %v", got)
			}
			// The pre-enhancement crop, resized, is returned.
			if r, g, _, _ := res.Image.At(56, 56).RGBA(); !near(r>>8, 200) || !near(g>>8, 10) {
				t.Errorf("final pixel = (%d,%d), want original (200,10)", r>>8, g>>8)
			}
		})
	}
}

func TestEnhanceUnavailableProviders(t *testing.T) {
	o := newOrchestrator(fakeProviders{})

	res, err := o.Enhance(context.Background(), solid(40, 40, color.White), true)
	if err != nil {
		t.Fatalf("Enhance failed: %v", err)
	}
	for _, got := range res.Outcomes {
		if !got.Skipped || got.Reason != ReasonUnavailable {
			t.Errorf("outcome = %v, want skipped: unavailable", got)
		}
	}
	if got := res.Outcomes[0].String(); got != "super_resolution: skipped: unavailable" {
		t.Errorf("String() = %q", got)
	}
}

func TestEnhanceDisabled(t *testing.T) {
	rs := &fakeRestorer{}
	opts := defaultOptions()
	opts.Enabled = false
	o := NewOrchestrator(fakeProviders{restorer: rs}, opts, zap.NewNop())

	res, err := o.Enhance(context.Background(), solid(80, 80, color.White), true)
	if err != nil {
		t.Fatalf("Enhance failed: %v", err)
	}
	if rs.calls != 0 {
		t.Errorf("restore calls = %d, want 0", rs.calls)
	}
	if res.Outcomes[1].Reason != ReasonDisabled {
		t.Errorf("reason = %q, want %q", res.Outcomes[1].Reason, ReasonDisabled)
	}
}

func TestEnhanceRejectsUnusableCrop(t *testing.T) {
	o := newOrchestrator(fakeProviders{})

	for _, crop := range []image.Image{nil, image.NewRGBA(image.Rectangle{})} {
		if _, err := o.Enhance(context.Background(), crop, false); !errors.Is(err, ErrNoUsableFace) {
			t.Errorf("Enhance(%v) error = %v, want ErrNoUsableFace", crop, err)
		}
	}
}
