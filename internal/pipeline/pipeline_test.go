package pipeline

import (
	"context"
	"errors"
	"image"
	"image/color"
	"math"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/kozaktomas/face-id/internal/config"
	"github.com/kozaktomas/face-id/internal/database"
	"github.com/kozaktomas/face-id/internal/database/mock"
	"github.com/kozaktomas/face-id/internal/failure"
	"github.com/kozaktomas/face-id/internal/vision"
)

const testDim = 4

// Photos are solid images whose red channel selects the signature the fake embedder returns.
const (
	redAlice = 200
	redBob   = 100
	redCarol = 40
	redBlank = 0 // the fake detector finds no face in a black photo
)

var palette = map[uint8][]float32{
	redAlice: {1, 0, 0, 0},
	redBob:   {0, 1, 0, 0},
	redCarol: {0, 0, 3, 4},
}

type fakeDetector struct {
	bbox image.Rectangle
	err  error
}

func (d *fakeDetector) Detect(_ context.Context, img image.Image) ([]vision.Detection, error) {
	if d.err != nil {
		return nil, d.err
	}
	b := img.Bounds()
	if r, g, bl, _ := img.At(b.Dx()/2, b.Dy()/2).RGBA(); r == 0 && g == 0 && bl == 0 {
		return nil, nil
	}
	return []vision.Detection{{BBox: d.bbox, Confidence: 0.99}}, nil
}

type fakeEmbedder struct {
	override func() ([]float32, error)
}

func (e *fakeEmbedder) Embed(_ context.Context, face image.Image) ([]float32, error) {
	if e.override != nil {
		return e.override()
	}
	b := face.Bounds()
	r, _, _, _ := face.At(b.Min.X+b.Dx()/2, b.Min.Y+b.Dy()/2).RGBA()
	red := int(r >> 8)

	// Nearest palette entry tolerates resampling rounding.
	best, bestDist := uint8(0), math.MaxInt
	for key := range palette {
		if d := abs(int(key) - red); d < bestDist {
			best, bestDist = key, d
		}
	}
	return append([]float32(nil), palette[best]...), nil
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

func photo(t *testing.T, red uint8) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 200, 200))
	c := color.RGBA{R: red, G: 120, B: 120, A: 255}
	if red == redBlank {
		c = color.RGBA{A: 255}
	}
	for y := range 200 {
		for x := range 200 {
			img.Set(x, y, c)
		}
	}
	data, err := vision.EncodePNG(img)
	if err != nil {
		t.Fatalf("EncodePNG failed: %v", err)
	}
	return data
}

func testConfig(dir string) *config.Config {
	return &config.Config{
		Gallery: config.GalleryConfig{
			VectorPath:   filepath.Join(dir, "gallery.vec"),
			MetadataPath: filepath.Join(dir, "gallery.json"),
			Dimension:    testDim,
			Metric:       "cosine",
			Backend:      "flat",
		},
		Recognition: config.RecognitionConfig{
			Threshold:       0.9,
			VerifyThreshold: 0.9,
			TopK:            5,
			NormEpsilon:     1e-3,
		},
		Enhancement: config.EnhancementConfig{
			Enabled:             true,
			QualityThreshold:    0.7,
			MinFaceSize:         50,
			SmallImageThreshold: 64,
			FaceSize:            112,
			RestorationWeight:   0.5,
			UpscaleFactor:       2,
			CropMargin:          0.2,
		},
		Vision: config.VisionConfig{EnrollWorkers: 2},
	}
}

type fixture struct {
	p        *Pipeline
	cfg      *config.Config
	detector *fakeDetector
	embedder *fakeEmbedder
	attempts *mock.MockAttemptLog
	archive  *mock.MockSignatureArchive
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cfg := testConfig(t.TempDir())
	index, err := database.NewIndex(testDim, database.MetricCosine, database.BackendFlat)
	if err != nil {
		t.Fatalf("NewIndex failed: %v", err)
	}
	f := &fixture{
		cfg:      cfg,
		detector: &fakeDetector{bbox: image.Rect(50, 50, 150, 150)},
		embedder: &fakeEmbedder{},
		attempts: mock.NewMockAttemptLog(),
		archive:  mock.NewMockSignatureArchive(),
	}
	providers := vision.NewStaticProviders(f.detector, f.embedder, nil, nil)
	f.p = New(cfg, providers, index, zap.NewNop(), WithAttemptLog(f.attempts), WithSignatureArchive(f.archive))
	return f
}

func (f *fixture) enroll(t *testing.T, id string, reds ...uint8) *EnrollResult {
	t.Helper()
	photos := make([][]byte, len(reds))
	for i, r := range reds {
		photos[i] = photo(t, r)
	}
	return f.p.Enroll(context.Background(), EnrollRequest{
		IdentityID: id,
		Photos:     photos,
		Metadata:   database.Metadata{"name": database.String(id)},
	})
}

func approxEqual(a, b []float32, tol float64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if math.Abs(float64(a[i]-b[i])) > tol {
			return false
		}
	}
	return true
}

func TestEnrollSinglePhotoIsNormalizedEmbedding(t *testing.T) {
	f := newFixture(t)

	res := f.enroll(t, "carol", redCarol)
	if !res.Success {
		t.Fatalf("Enroll failed: %s", res.FailureReason)
	}
	if res.SignatureCountUsed != 1 || res.Position != 0 {
		t.Errorf("SignatureCountUsed, Position = %d, %d; want 1, 0", res.SignatureCountUsed, res.Position)
	}

	entries := f.p.Index().Entries()
	if len(entries) != 1 {
		t.Fatalf("gallery has %d entries, want 1", len(entries))
	}
	if want := []float32{0, 0, 0.6, 0.8}; !approxEqual(entries[0].Signature, want, 1e-6) {
		t.Errorf("stored signature = %v, want %v", entries[0].Signature, want)
	}
	if n, _ := entries[0].Metadata[PhotosUsedKey].Num(); n != 1 {
		t.Errorf("%s = %v, want 1", PhotosUsedKey, n)
	}
	if _, ok := f.archive.Get("carol"); !ok {
		t.Error("signature was not archived")
	}
}

func TestEnrollAveragesSurvivors(t *testing.T) {
	f := newFixture(t)

	photos := [][]byte{photo(t, redAlice), []byte("corrupt"), photo(t, redBlank), photo(t, redBob)}
	res := f.p.Enroll(context.Background(), EnrollRequest{IdentityID: "mixed", Photos: photos})
	if !res.Success {
		t.Fatalf("Enroll failed: %s", res.FailureReason)
	}
	if res.SignatureCountUsed != 2 {
		t.Errorf("SignatureCountUsed = %d, want 2", res.SignatureCountUsed)
	}
	used := 0
	for _, o := range res.Photos {
		if o.Used {
			used++
		} else if o.Reason == "" {
			t.Errorf("photo %d discarded without a reason", o.Index)
		}
	}
	if used != 2 || len(res.Photos) != 4 {
		t.Errorf("photo outcomes = %+v", res.Photos)
	}

	s := float32(1 / math.Sqrt2)
	got := f.p.Index().Entries()[0].Signature
	if !approxEqual(got, []float32{s, s, 0, 0}, 1e-6) {
		t.Errorf("aggregated signature = %v, want [%v %v 0 0]", got, s, s)
	}
}

func TestEnrollNoValidPhotos(t *testing.T) {
	f := newFixture(t)

	res := f.p.Enroll(context.Background(), EnrollRequest{
		IdentityID: "ghost",
		Photos:     [][]byte{[]byte("not an image"), photo(t, redBlank)},
	})
	if res.Success {
		t.Fatal("Enroll succeeded with no valid photos")
	}
	if res.FailureReason != NoFaceInAnyPhoto {
		t.Errorf("FailureReason = %q, want %q", res.FailureReason, NoFaceInAnyPhoto)
	}
	if n := f.p.Statistics().TotalEntries; n != 0 {
		t.Errorf("gallery has %d entries, want 0", n)
	}
	if _, ok := f.archive.Get("ghost"); ok {
		t.Error("failed enrollment was archived")
	}
}

func TestEnrollValidation(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name string
		req  EnrollRequest
	}{
		{"missing identity", EnrollRequest{Photos: [][]byte{photo(t, redAlice)}}},
		{"no photos", EnrollRequest{IdentityID: "alice"}},
		{"invalid metadata", EnrollRequest{IdentityID: "alice", Photos: [][]byte{photo(t, redAlice)}, Metadata: database.Metadata{"": database.Bool(true)}}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			res := f.p.Enroll(context.Background(), tc.req)
			if res.Success || res.FailureReason == "" {
				t.Errorf("Enroll() = %+v, want failure with reason", res)
			}
		})
	}
}

func TestEnrollReplace(t *testing.T) {
	f := newFixture(t)

	if res := f.enroll(t, "alice", redAlice); !res.Success {
		t.Fatalf("Enroll failed: %s", res.FailureReason)
	}
	f.enroll(t, "bob", redBob)

	dup := f.enroll(t, "alice", redCarol)
	if dup.Success || !strings.Contains(dup.FailureReason, "already enrolled") {
		t.Errorf("duplicate Enroll() = %+v, want already enrolled failure", dup)
	}

	res := f.p.Enroll(context.Background(), EnrollRequest{
		IdentityID: "alice",
		Photos:     [][]byte{photo(t, redCarol)},
		Replace:    true,
	})
	if !res.Success || res.Replaced != 1 {
		t.Fatalf("replace Enroll() = %+v", res)
	}

	entries := f.p.Index().Entries()
	if len(entries) != 2 {
		t.Fatalf("gallery has %d entries, want 2", len(entries))
	}
	if entries[0].IdentityID != "bob" || entries[1].IdentityID != "alice" {
		t.Errorf("gallery order = %s, %s; want bob, alice", entries[0].IdentityID, entries[1].IdentityID)
	}
	if !approxEqual(entries[1].Signature, []float32{0, 0, 0.6, 0.8}, 1e-6) {
		t.Errorf("replaced signature = %v", entries[1].Signature)
	}
}

func TestEnrollReplaceFailureKeepsExistingEntry(t *testing.T) {
	f := newFixture(t)
	if res := f.enroll(t, "alice", redAlice); !res.Success {
		t.Fatalf("Enroll failed: %s", res.FailureReason)
	}

	// A misconfigured embedder yields signatures of the wrong dimension.
	f.embedder.override = func() ([]float32, error) { return []float32{1, 2, 3}, nil }
	res := f.p.Enroll(context.Background(), EnrollRequest{
		IdentityID: "alice",
		Photos:     [][]byte{photo(t, redCarol)},
		Replace:    true,
	})
	if res.Success {
		t.Fatalf("replace Enroll() succeeded with a wrong-dimension signature: %+v", res)
	}

	entries := f.p.Index().Entries()
	if len(entries) != 1 || entries[0].IdentityID != "alice" {
		t.Fatalf("gallery entries = %+v, want the original alice entry", entries)
	}
	if !approxEqual(entries[0].Signature, []float32{1, 0, 0, 0}, 1e-6) {
		t.Errorf("alice signature = %v, want the original", entries[0].Signature)
	}
	if sig, ok := f.archive.Get("alice"); !ok || !approxEqual(sig.Signature, []float32{1, 0, 0, 0}, 1e-6) {
		t.Errorf("archived alice = %+v (found %v), want the original signature", sig, ok)
	}
}

func TestIdentifyMatches(t *testing.T) {
	f := newFixture(t)
	f.enroll(t, "alice", redAlice)
	f.enroll(t, "bob", redBob)
	f.enroll(t, "carol", redCarol)

	res := f.p.Identify(context.Background(), photo(t, redBob), 5, 0.9)
	if !res.Success {
		t.Fatalf("Identify failed: %+v", res.Failure)
	}
	if len(res.Matches) != 1 || res.BestMatch.IdentityID != "bob" {
		t.Fatalf("Identify matches = %+v, want only bob", res.Matches)
	}
	if math.Abs(res.BestMatch.Score-1) > 1e-6 {
		t.Errorf("best score = %v, want ~1", res.BestMatch.Score)
	}
	if name, _ := res.BestMatch.Metadata["name"].Str(); name != "bob" {
		t.Errorf("best match name = %q, want bob", name)
	}
	if !res.Metrics.FaceDetected || res.Metrics.QualityScore <= 0 || res.Metrics.TotalSeconds <= 0 {
		t.Errorf("metrics not populated: %+v", res.Metrics)
	}
	if res.Failure != nil {
		t.Errorf("Failure = %+v on success", res.Failure)
	}
}

func TestIdentifyFailures(t *testing.T) {
	tests := []struct {
		name       string
		setup      func(f *fixture)
		photo      func(t *testing.T) []byte
		wantStatus failure.Status
		wantReason string
	}{
		{
			name:       "invalid image",
			photo:      func(*testing.T) []byte { return []byte("\x00\x01garbage") },
			wantStatus: failure.StatusInvalidImage,
		},
		{
			name:       "no face",
			photo:      func(t *testing.T) []byte { return photo(t, redBlank) },
			wantStatus: failure.StatusNoFace,
		},
		{
			name:       "face too small",
			setup:      func(f *fixture) { f.detector.bbox = image.Rect(10, 10, 40, 50) },
			photo:      func(t *testing.T) []byte { return photo(t, redAlice) },
			wantStatus: failure.StatusFaceTooSmall,
			wantReason: "30×40",
		},
		{
			name: "embedding failed",
			setup: func(f *fixture) {
				f.embedder.override = func() ([]float32, error) { return nil, errors.New("model error") }
			},
			photo:      func(t *testing.T) []byte { return photo(t, redAlice) },
			wantStatus: failure.StatusEmbeddingFailed,
		},
		{
			name: "degenerate embedding",
			setup: func(f *fixture) {
				f.embedder.override = func() ([]float32, error) { return []float32{1e-6, 0, 0, 0}, nil }
			},
			photo:      func(t *testing.T) []byte { return photo(t, redAlice) },
			wantStatus: failure.StatusEmbeddingFailed,
			wantReason: "norm too low",
		},
		{
			name:       "low similarity",
			photo:      func(t *testing.T) []byte { return photo(t, redCarol) },
			wantStatus: failure.StatusLowSimilarity,
			wantReason: "similarity (0.000) below threshold (0.900)",
		},
		{
			name: "detector unavailable",
			setup: func(f *fixture) {
				f.detector.err = errors.New("connection refused")
			},
			photo:      func(t *testing.T) []byte { return photo(t, redAlice) },
			wantStatus: failure.StatusUnknown,
		},
		{
			name: "embedder panics",
			setup: func(f *fixture) {
				f.embedder.override = func() ([]float32, error) { panic("native crash") }
			},
			photo:      func(t *testing.T) []byte { return photo(t, redAlice) },
			wantStatus: failure.StatusUnknown,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			f.enroll(t, "alice", redAlice)
			if tc.setup != nil {
				tc.setup(f)
			}

			res := f.p.Identify(context.Background(), tc.photo(t), 5, 0.9)
			if res.Success {
				t.Fatal("Identify succeeded, want failure")
			}
			if res.Failure == nil {
				t.Fatal("Failure = nil")
			}
			if res.Failure.Status != tc.wantStatus {
				t.Errorf("status = %s, want %s (%s)", res.Failure.Status, tc.wantStatus, res.Failure.Reason)
			}
			if !strings.Contains(res.Failure.Reason, tc.wantReason) {
				t.Errorf("reason = %q, want it to contain %q", res.Failure.Reason, tc.wantReason)
			}
			if res.Failure.Advice == "" {
				t.Error("advice is empty")
			}

			attempts := f.attempts.Attempts()
			if len(attempts) != 1 || attempts[0].Status != string(tc.wantStatus) {
				t.Errorf("recorded attempts = %+v", attempts)
			}
		})
	}
}

func TestIdentifyEmptyGalleryIsUnknown(t *testing.T) {
	f := newFixture(t)

	res := f.p.Identify(context.Background(), photo(t, redAlice), 0, 0.35)
	if res.Success || res.Failure == nil || res.Failure.Status != failure.StatusUnknown {
		t.Errorf("Identify on empty gallery = %+v", res)
	}
}

func TestVerify(t *testing.T) {
	f := newFixture(t)
	f.enroll(t, "alice", redAlice)
	f.enroll(t, "bob", redBob)

	res := f.p.Verify(context.Background(), photo(t, redAlice), "alice")
	if !res.Verified || res.Failure != nil {
		t.Errorf("Verify(alice, alice) = %+v, want verified", res)
	}

	res = f.p.Verify(context.Background(), photo(t, redAlice), "bob")
	if res.Verified {
		t.Error("Verify(alice photo, bob) verified")
	}
	if res.BestMatch == nil || res.BestMatch.IdentityID != "alice" {
		t.Errorf("BestMatch = %+v, want alice", res.BestMatch)
	}
	if res.Failure != nil {
		t.Errorf("Failure = %+v, want nil for a mismatch", res.Failure)
	}

	res = f.p.Verify(context.Background(), photo(t, redCarol), "alice")
	if res.Verified || res.Failure == nil || res.Failure.Status != failure.StatusLowSimilarity {
		t.Errorf("Verify(carol photo) = %+v, want low_similarity", res)
	}

	var statuses []string
	for _, a := range f.attempts.Attempts() {
		if a.Operation != attemptVerify {
			t.Errorf("operation = %q, want verify", a.Operation)
		}
		statuses = append(statuses, a.Status)
	}
	if got := strings.Join(statuses, ","); got != "matched,mismatch,low_similarity" {
		t.Errorf("recorded statuses = %s", got)
	}
}

func TestRemoveIdentity(t *testing.T) {
	f := newFixture(t)
	f.enroll(t, "alice", redAlice)
	f.enroll(t, "bob", redBob)

	removed, err := f.p.RemoveIdentity(context.Background(), "alice")
	if err != nil {
		t.Fatalf("RemoveIdentity failed: %v", err)
	}
	if removed != 1 {
		t.Errorf("removed = %d, want 1", removed)
	}
	if _, ok := f.archive.Get("alice"); ok {
		t.Error("archived signature not deleted")
	}
	stats := f.p.Statistics()
	if stats.TotalEntries != 1 || !stats.Consistent() {
		t.Errorf("Statistics() = %+v", stats)
	}

	res := f.p.Identify(context.Background(), photo(t, redBob), 5, 0.9)
	if !res.Success || res.BestMatch.Position != 0 {
		t.Errorf("bob after removal = %+v, want position 0", res.BestMatch)
	}
}

func TestAutoSave(t *testing.T) {
	f := newFixture(t)
	f.p.opts.AutoSave = true

	f.enroll(t, "alice", redAlice)

	loaded, err := database.Open(f.cfg.Gallery.VectorPath, f.cfg.Gallery.MetadataPath, testDim, database.MetricCosine, database.BackendFlat)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if got := loaded.Statistics().TotalEntries; got != 1 {
		t.Errorf("persisted entries = %d, want 1", got)
	}
}

func TestFailureStatistics(t *testing.T) {
	f := newFixture(t)
	f.enroll(t, "alice", redAlice)

	f.p.Identify(context.Background(), photo(t, redBlank), 5, 0.9)
	f.p.Identify(context.Background(), photo(t, redBlank), 5, 0.9)
	f.p.Identify(context.Background(), photo(t, redCarol), 5, 0.9)
	f.p.Identify(context.Background(), photo(t, redAlice), 5, 0.9)

	stats := f.p.FailureStatistics()
	if len(stats) != 2 {
		t.Fatalf("FailureStatistics() = %+v, want 2 statuses", stats)
	}
	if stats[0].Status != failure.StatusNoFace || stats[0].Count != 2 {
		t.Errorf("top status = %+v, want no_face x2", stats[0])
	}
}
