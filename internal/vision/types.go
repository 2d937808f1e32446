// Package vision holds the capability providers the pipeline consumes: face detection,
// embedding, restoration and super-resolution. Providers are opaque; this package only
// defines their contracts, adapts them to a provider server or a local ONNX model, and
// initializes them once per process.
package vision

import (
	"context"
	"image"
)

// Detection is one face located by a Detector.
type Detection struct {
	BBox       image.Rectangle // pixel coordinates within the source image
	Confidence float64         // detector confidence in [0,1]
}

// Detector locates faces in an image.
type Detector interface {
	Detect(ctx context.Context, img image.Image) ([]Detection, error)
}

// Embedder turns an aligned face crop into a raw (not necessarily normalized) signature.
type Embedder interface {
	Embed(ctx context.Context, face image.Image) ([]float32, error)
}

// Restorer cleans up a face crop. weight blends input (0) and restored output (1).
type Restorer interface {
	Restore(ctx context.Context, face image.Image, weight float64) (image.Image, error)
}

// SuperResolver upscales a small face crop by scale.
type SuperResolver interface {
	Upscale(ctx context.Context, face image.Image, scale int) (image.Image, error)
}
