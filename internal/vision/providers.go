package vision

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kozaktomas/face-id/internal/config"
)

// ErrProviderUnavailable is returned for a capability that is disabled or not configured.
var ErrProviderUnavailable = errors.New("provider unavailable")

// Providers is the process-wide set of capability providers. Each provider is
// created on first use and shared afterwards.
type Providers struct {
	detector *Lazy[Detector]
	embedder *Lazy[Embedder]
	restorer *Lazy[Restorer]
	upscaler *Lazy[SuperResolver]
	onnx     *Lazy[*ONNXEmbedder]
}

// NewProviders wires providers from configuration. Nothing is contacted or loaded
// until a provider is first requested.
func NewProviders(cfg config.VisionConfig, faceSize, dimension int, logger *zap.Logger) *Providers {
	server := NewLazy(func(ctx context.Context) (*Client, error) {
		start := time.Now()
		c := NewClient(cfg.URL, cfg.Timeout)
		if err := c.Ping(ctx); err != nil {
			return nil, err
		}
		logger.Info("vision server ready", zap.String("url", c.baseURL), zap.Duration("took", time.Since(start)))
		return c, nil
	})

	p := &Providers{
		detector: NewLazy(func(ctx context.Context) (Detector, error) { return server.Get(ctx) }),
		restorer: NewLazy(func(ctx context.Context) (Restorer, error) {
			if cfg.DisableRestore {
				return nil, fmt.Errorf("restoration: %w", ErrProviderUnavailable)
			}
			return server.Get(ctx)
		}),
		upscaler: NewLazy(func(ctx context.Context) (SuperResolver, error) {
			if cfg.DisableUpscale {
				return nil, fmt.Errorf("super-resolution: %w", ErrProviderUnavailable)
			}
			return server.Get(ctx)
		}),
	}

	switch cfg.Embedder {
	case "onnx":
		p.onnx = NewLazy(func(context.Context) (*ONNXEmbedder, error) {
			start := time.Now()
			e, err := NewONNXEmbedder(cfg.ONNXModelPath, cfg.ONNXLibrary, faceSize, dimension)
			if err != nil {
				return nil, err
			}
			logger.Info("onnx embedder loaded", zap.String("model", cfg.ONNXModelPath), zap.Duration("took", time.Since(start)))
			return e, nil
		})
		p.embedder = NewLazy(func(ctx context.Context) (Embedder, error) { return p.onnx.Get(ctx) })
	default:
		p.embedder = NewLazy(func(ctx context.Context) (Embedder, error) { return server.Get(ctx) })
	}
	return p
}

// NewStaticProviders wraps already constructed providers. A nil restorer or super-resolver
// is reported as unavailable.
func NewStaticProviders(det Detector, emb Embedder, res Restorer, sr SuperResolver) *Providers {
	p := &Providers{
		detector: Ready(det),
		embedder: Ready(emb),
		restorer: Ready(res),
		upscaler: Ready(sr),
	}
	if res == nil {
		p.restorer = NewLazy(func(context.Context) (Restorer, error) {
			return nil, fmt.Errorf("restoration: %w", ErrProviderUnavailable)
		})
	}
	if sr == nil {
		p.upscaler = NewLazy(func(context.Context) (SuperResolver, error) {
			return nil, fmt.Errorf("super-resolution: %w", ErrProviderUnavailable)
		})
	}
	return p
}

func (p *Providers) Detector(ctx context.Context) (Detector, error) {
	return p.detector.Get(ctx)
}

func (p *Providers) Embedder(ctx context.Context) (Embedder, error) {
	return p.embedder.Get(ctx)
}

func (p *Providers) Restorer(ctx context.Context) (Restorer, error) {
	return p.restorer.Get(ctx)
}

func (p *Providers) SuperResolver(ctx context.Context) (SuperResolver, error) {
	return p.upscaler.Get(ctx)
}

// Close releases providers holding native resources.
func (p *Providers) Close() error {
	if p.onnx == nil {
		return nil
	}
	if e, ok := p.onnx.Peek(); ok {
		return e.Close()
	}
	return nil
}
