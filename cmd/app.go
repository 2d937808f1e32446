package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kozaktomas/face-id/internal/config"
	"github.com/kozaktomas/face-id/internal/database"
	"github.com/kozaktomas/face-id/internal/database/postgres"
	"github.com/kozaktomas/face-id/internal/logging"
	"github.com/kozaktomas/face-id/internal/pipeline"
	"github.com/kozaktomas/face-id/internal/vision"
)

// app holds everything a command needs. Close releases it.
type app struct {
	cfg       *config.Config
	logger    *zap.Logger
	index     *database.Index
	providers *vision.Providers
	pool      *postgres.Pool
	attempts  *postgres.AttemptRepository
	archive   *postgres.SignatureRepository
	pipeline  *pipeline.Pipeline
}

// loadConfig reads and validates configuration and builds the logger.
func loadConfig(cmd *cobra.Command) (*config.Config, *zap.Logger, error) {
	cfg := config.Load()
	if mustGetBool(cmd, "debug") {
		cfg.Log.Debug = true
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}
	logger, err := logging.New(cfg.Log.Debug)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create logger: %w", err)
	}
	return cfg, logger, nil
}

// openGallery loads the persisted gallery pair (or starts empty).
func openGallery(cfg *config.Config) (*database.Index, error) {
	metric, err := database.ParseMetric(cfg.Gallery.Metric)
	if err != nil {
		return nil, err
	}
	backend, err := database.ParseBackend(cfg.Gallery.Backend)
	if err != nil {
		return nil, err
	}
	index, err := database.Open(cfg.Gallery.VectorPath, cfg.Gallery.MetadataPath, cfg.Gallery.Dimension, metric, backend)
	if err != nil {
		return nil, fmt.Errorf("failed to open gallery: %w", err)
	}
	return index, nil
}

// openDatabase connects to PostgreSQL when DATABASE_URL is set. A nil pool means no database.
func openDatabase(ctx context.Context, cfg *config.Config) (*postgres.Pool, error) {
	if cfg.Database.URL == "" {
		return nil, nil
	}
	pool, err := postgres.Open(ctx, &cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize PostgreSQL: %w", err)
	}
	return pool, nil
}

// newApp wires configuration, gallery, optional database, providers and the pipeline.
func newApp(cmd *cobra.Command) (*app, error) {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}

	index, err := openGallery(cfg)
	if err != nil {
		return nil, err
	}
	logger.Debug("gallery loaded",
		zap.Int("entries", index.Statistics().TotalEntries),
		zap.String("vector_path", cfg.Gallery.VectorPath),
	)

	a := &app{cfg: cfg, logger: logger, index: index}

	a.pool, err = openDatabase(cmd.Context(), cfg)
	if err != nil {
		return nil, err
	}

	var options []pipeline.Option
	if a.pool != nil {
		a.attempts = postgres.NewAttemptRepository(a.pool)
		a.archive = postgres.NewSignatureRepository(a.pool)
		options = append(options, pipeline.WithAttemptLog(a.attempts), pipeline.WithSignatureArchive(a.archive))
	}

	a.providers = vision.NewProviders(cfg.Vision, cfg.Enhancement.FaceSize, cfg.Gallery.Dimension, logger.Named("vision"))
	a.pipeline = pipeline.New(cfg, a.providers, index, logger.Named("pipeline"), options...)
	return a, nil
}

// attemptLog returns the attempt log as a reader, or an untyped nil without a database.
func (a *app) attemptLog() database.AttemptLogReader {
	if a.attempts == nil {
		return nil
	}
	return a.attempts
}

// persist saves the gallery unless auto-save already did.
func (a *app) persist() error {
	if a.cfg.Gallery.AutoSave {
		return nil
	}
	return a.pipeline.Save()
}

func (a *app) Close() {
	if a.providers != nil {
		if err := a.providers.Close(); err != nil {
			a.logger.Warn("failed to close providers", zap.Error(err))
		}
	}
	if a.pool != nil {
		a.pool.Close()
	}
	_ = a.logger.Sync()
}
