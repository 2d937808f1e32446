// Package pipeline runs photos through detection, quality gating, enhancement and
// embedding, and turns the resulting signatures into enrollments and match decisions.
// The public calls never return errors: every failure is mapped to a failure report.
package pipeline

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/kozaktomas/face-id/internal/config"
	"github.com/kozaktomas/face-id/internal/database"
	"github.com/kozaktomas/face-id/internal/enhance"
	"github.com/kozaktomas/face-id/internal/facematch"
	"github.com/kozaktomas/face-id/internal/failure"
	"github.com/kozaktomas/face-id/internal/quality"
	"github.com/kozaktomas/face-id/internal/vision"
)

var (
	ErrInvalidImage    = vision.ErrInvalidImage
	ErrNoFaceDetected  = errors.New("no face detected")
	ErrEmbeddingFailed = errors.New("embedding failed")

	// errUnclassified marks failures outside the taxonomy, such as an unreachable provider.
	errUnclassified = errors.New("pipeline failure")
)

// Providers supplies the capability providers. *vision.Providers implements it.
type Providers interface {
	Detector(ctx context.Context) (vision.Detector, error)
	Embedder(ctx context.Context) (vision.Embedder, error)
	enhance.Providers
}

// Options are the pipeline settings derived from configuration.
type Options struct {
	Threshold       float64
	VerifyThreshold float64
	TopK            int
	NormEpsilon     float64
	CropMargin      float64
	EnrollWorkers   int
	AutoSave        bool
	VectorPath      string
	MetadataPath    string
}

// OptionsFromConfig extracts pipeline options from cfg.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Threshold:       cfg.Recognition.Threshold,
		VerifyThreshold: cfg.Recognition.VerifyThreshold,
		TopK:            cfg.Recognition.TopK,
		NormEpsilon:     cfg.Recognition.NormEpsilon,
		CropMargin:      cfg.Enhancement.CropMargin,
		EnrollWorkers:   cfg.Vision.EnrollWorkers,
		AutoSave:        cfg.Gallery.AutoSave,
		VectorPath:      cfg.Gallery.VectorPath,
		MetadataPath:    cfg.Gallery.MetadataPath,
	}
}

// Pipeline is the service container for one gallery. It is safe for concurrent use.
type Pipeline struct {
	opts       Options
	providers  Providers
	gate       *quality.Gate
	enhancer   *enhance.Orchestrator
	index      *database.Index
	matcher    *facematch.Matcher
	classifier *failure.Classifier
	tally      *failure.Tally
	attempts   database.AttemptLogWriter
	archive    database.SignatureArchive
	logger     *zap.Logger

	// enrollMu serializes the check-remove-add sequence of enrollments and removals.
	enrollMu sync.Mutex
}

// Option configures optional collaborators.
type Option func(*Pipeline)

// WithAttemptLog records every identify and verify attempt.
func WithAttemptLog(w database.AttemptLogWriter) Option {
	return func(p *Pipeline) { p.attempts = w }
}

// WithSignatureArchive archives enrolled signatures so the gallery can be rebuilt.
func WithSignatureArchive(a database.SignatureArchive) Option {
	return func(p *Pipeline) { p.archive = a }
}

// New builds the pipeline from configuration, shared providers and the loaded gallery.
func New(cfg *config.Config, providers Providers, index *database.Index, logger *zap.Logger, options ...Option) *Pipeline {
	enhancer := enhance.NewOrchestrator(providers, enhance.Options{
		Enabled:             cfg.Enhancement.Enabled,
		FaceSize:            cfg.Enhancement.FaceSize,
		SmallImageThreshold: cfg.Enhancement.SmallImageThreshold,
		UpscaleFactor:       cfg.Enhancement.UpscaleFactor,
		RestorationWeight:   cfg.Enhancement.RestorationWeight,
	}, logger.Named("enhance"))

	p := &Pipeline{
		opts:       OptionsFromConfig(cfg),
		providers:  providers,
		gate:       quality.NewGate(cfg.Enhancement.QualityThreshold, cfg.Enhancement.MinFaceSize),
		enhancer:   enhancer,
		index:      index,
		matcher:    facematch.NewMatcher(index),
		classifier: failure.NewClassifier(cfg.Enhancement.MinFaceSize, cfg.Recognition.NormEpsilon),
		tally:      failure.NewTally(),
		logger:     logger,
	}
	for _, opt := range options {
		opt(p)
	}
	return p
}

// Index returns the gallery.
func (p *Pipeline) Index() *database.Index { return p.index }

// Options returns the effective settings.
func (p *Pipeline) Options() Options { return p.opts }

// Statistics returns the gallery statistics.
func (p *Pipeline) Statistics() database.Statistics { return p.index.Statistics() }

// Entries returns a snapshot of the gallery entries.
func (p *Pipeline) Entries() []database.Entry { return p.index.Entries() }

// FailureStatistics returns the in-process failure counts since start.
func (p *Pipeline) FailureStatistics() []failure.StatusCount { return p.tally.Snapshot() }

// Save persists the gallery to the configured paths.
func (p *Pipeline) Save() error {
	return p.index.Save(p.opts.VectorPath, p.opts.MetadataPath)
}

// autoSave persists the gallery after a mutation when enabled. Failures are logged;
// the in-memory gallery stays authoritative.
func (p *Pipeline) autoSave() {
	if !p.opts.AutoSave {
		return
	}
	if err := p.Save(); err != nil {
		p.logger.Error("failed to save gallery", zap.Error(err))
	}
}
