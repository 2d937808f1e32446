// Package constants provides shared constants used across the codebase.
// Centralizing these values ensures consistency and makes them easier to modify.
package constants

// Gallery constants
const (
	// DefaultEmbeddingDim is the dimension of face signatures produced by the embedder
	DefaultEmbeddingDim = 512

	// DefaultMetric is the similarity metric of a freshly created gallery
	DefaultMetric = "cosine"

	// DefaultBackend is the vector store backend ("flat" is exact, "hnsw" is approximate)
	DefaultBackend = "flat"

	// DefaultVectorPath is where the gallery vectors are persisted
	DefaultVectorPath = "data/gallery.vec"

	// DefaultMetadataPath is where the gallery metadata sidecar is persisted
	DefaultMetadataPath = "data/gallery.json"
)

// Recognition constants
const (
	// DefaultSimilarityThreshold is the minimum similarity score for a match.
	// Higher values = stricter matching
	DefaultSimilarityThreshold = 0.35

	// DefaultTopK is the default number of ranked matches returned by identify
	DefaultTopK = 5

	// EmbeddingNormEpsilon is the norm below which a signature is considered degenerate
	EmbeddingNormEpsilon = 1e-3
)

// Quality gate constants
const (
	// QualityThreshold is the score below which enhancement is applied
	QualityThreshold = 0.7

	// MinFaceSize is the minimum face bounding box width and height in pixels
	MinFaceSize = 50

	// MaxAreaRatio caps the face-to-image area ratio before rescaling to [0,1]
	MaxAreaRatio = 0.5

	// SharpnessCap is the Laplacian variance that maps to a sharpness score of 1
	SharpnessCap = 500.0

	// BrightnessTarget is the mean brightness that maps to a brightness score of 1
	BrightnessTarget = 128.0
)

// Enhancement constants
const (
	// FaceSize is the canonical width and height of an aligned face crop
	FaceSize = 112

	// SmallImageThreshold is the minimum crop dimension below which super-resolution runs
	SmallImageThreshold = 64

	// UpscaleFactor is the scale requested from the super-resolution provider
	UpscaleFactor = 2

	// RestorationWeight blends the restored face with the input (0 = input, 1 = restored)
	RestorationWeight = 0.5

	// CropMargin is the margin added around the detected box, relative to its size
	CropMargin = 0.2
)

// Processing constants
const (
	// EnrollWorkers is the default number of photos processed in parallel during enrollment
	EnrollWorkers = 4

	// ProviderTimeoutSeconds bounds a single call to the vision provider server
	ProviderTimeoutSeconds = 60
)
