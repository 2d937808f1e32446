package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/kozaktomas/face-id/internal/constants"
)

type Config struct {
	Gallery     GalleryConfig
	Recognition RecognitionConfig
	Enhancement EnhancementConfig
	Vision      VisionConfig
	Database    DatabaseConfig
	Log         LogConfig
}

type GalleryConfig struct {
	VectorPath   string // Path of the persisted vector store
	MetadataPath string // Path of the persisted metadata sidecar
	Dimension    int    // Signature dimension (default 512)
	Metric       string // "cosine" or "euclidean"
	Backend      string // "flat" (exact) or "hnsw" (approximate candidates, exact rescoring)
	AutoSave     bool   // Persist the gallery after every enroll/remove
}

type RecognitionConfig struct {
	Threshold       float64 // Minimum similarity for a match
	VerifyThreshold float64 // Threshold used by verify, defaults to Threshold
	TopK            int
	NormEpsilon     float64 // Signatures with a smaller norm are degenerate
}

type EnhancementConfig struct {
	Enabled             bool
	QualityThreshold    float64
	MinFaceSize         int
	SmallImageThreshold int
	FaceSize            int
	RestorationWeight   float64
	UpscaleFactor       int
	CropMargin          float64
}

type VisionConfig struct {
	URL            string        // Vision provider server (detect, embed, restore, upscale)
	Embedder       string        // "http" or "onnx"
	ONNXModelPath  string        // Face recognition model used by the onnx embedder
	ONNXLibrary    string        // Optional path to the onnxruntime shared library
	Timeout        time.Duration // Per-request timeout for the provider server
	EnrollWorkers  int           // Photos extracted in parallel during enrollment
	DisableRestore bool
	DisableUpscale bool
}

type DatabaseConfig struct {
	URL          string // PostgreSQL connection URL (optional, enables attempt log and signature archive)
	MaxOpenConns int    // Maximum open connections (default 25)
	MaxIdleConns int    // Maximum idle connections (default 5)
}

type LogConfig struct {
	Debug bool
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

// envFloat reads an environment variable as a float64.
// Returns the default value if the env var is unset, empty, or invalid.
func envFloat(key string, defaultVal float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return defaultVal
}

func envBool(key string, defaultVal bool) bool {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if b, err := strconv.ParseBool(s); err == nil {
		return b
	}
	return defaultVal
}

func envString(key, defaultVal string) string {
	if s := strings.TrimSpace(os.Getenv(key)); s != "" {
		return s
	}
	return defaultVal
}

func Load() *Config {
	threshold := envFloat("SIMILARITY_THRESHOLD", constants.DefaultSimilarityThreshold)

	return &Config{
		Gallery: GalleryConfig{
			VectorPath:   envString("GALLERY_VECTOR_PATH", constants.DefaultVectorPath),
			MetadataPath: envString("GALLERY_METADATA_PATH", constants.DefaultMetadataPath),
			Dimension:    envInt("EMBEDDING_DIM", constants.DefaultEmbeddingDim),
			Metric:       strings.ToLower(envString("GALLERY_METRIC", constants.DefaultMetric)),
			Backend:      strings.ToLower(envString("GALLERY_BACKEND", constants.DefaultBackend)),
			AutoSave:     envBool("GALLERY_AUTOSAVE", true),
		},
		Recognition: RecognitionConfig{
			Threshold:       threshold,
			VerifyThreshold: envFloat("VERIFY_THRESHOLD", threshold),
			TopK:            envInt("TOP_K", constants.DefaultTopK),
			NormEpsilon:     envFloat("EMBEDDING_NORM_EPSILON", constants.EmbeddingNormEpsilon),
		},
		Enhancement: EnhancementConfig{
			Enabled:             envBool("ENHANCEMENT_ENABLED", true),
			QualityThreshold:    envFloat("QUALITY_THRESHOLD", constants.QualityThreshold),
			MinFaceSize:         envInt("MIN_FACE_SIZE", constants.MinFaceSize),
			SmallImageThreshold: envInt("SMALL_IMAGE_THRESHOLD", constants.SmallImageThreshold),
			FaceSize:            envInt("FACE_SIZE", constants.FaceSize),
			RestorationWeight:   envFloat("RESTORATION_WEIGHT", constants.RestorationWeight),
			UpscaleFactor:       envInt("UPSCALE_FACTOR", constants.UpscaleFactor),
			CropMargin:          envFloat("CROP_MARGIN", constants.CropMargin),
		},
		Vision: VisionConfig{
			URL:            os.Getenv("VISION_URL"),
			Embedder:       strings.ToLower(envString("EMBEDDER", "http")),
			ONNXModelPath:  os.Getenv("ONNX_MODEL_PATH"),
			ONNXLibrary:    os.Getenv("ONNX_LIBRARY_PATH"),
			Timeout:        time.Duration(envInt("VISION_TIMEOUT_SECONDS", constants.ProviderTimeoutSeconds)) * time.Second,
			EnrollWorkers:  envInt("ENROLL_WORKERS", constants.EnrollWorkers),
			DisableRestore: envBool("DISABLE_RESTORATION", false),
			DisableUpscale: envBool("DISABLE_SUPER_RESOLUTION", false),
		},
		Database: DatabaseConfig{
			URL:          os.Getenv("DATABASE_URL"),
			MaxOpenConns: envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns: envInt("DATABASE_MAX_IDLE_CONNS", 5),
		},
		Log: LogConfig{
			Debug: envBool("DEBUG", false),
		},
	}
}

// Validate reports configuration values the pipeline cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.Gallery.Dimension <= 0 {
		errs = append(errs, fmt.Errorf("embedding dimension must be positive, got %d", c.Gallery.Dimension))
	}
	switch c.Gallery.Metric {
	case "cosine", "euclidean", "l2":
	default:
		errs = append(errs, fmt.Errorf("unknown gallery metric %q", c.Gallery.Metric))
	}
	switch c.Gallery.Backend {
	case "flat", "hnsw":
	default:
		errs = append(errs, fmt.Errorf("unknown gallery backend %q", c.Gallery.Backend))
	}
	if c.Gallery.VectorPath == c.Gallery.MetadataPath {
		errs = append(errs, errors.New("gallery vector and metadata paths must differ"))
	}
	for name, t := range map[string]float64{
		"similarity threshold": c.Recognition.Threshold,
		"verify threshold":     c.Recognition.VerifyThreshold,
	} {
		if t < -1 || t > 1 {
			errs = append(errs, fmt.Errorf("%s must be within [-1, 1], got %v", name, t))
		}
	}
	if w := c.Enhancement.RestorationWeight; w < 0 || w > 1 {
		errs = append(errs, fmt.Errorf("restoration weight must be within [0, 1], got %v", w))
	}
	switch c.Vision.Embedder {
	case "http", "onnx":
	default:
		errs = append(errs, fmt.Errorf("unknown embedder %q", c.Vision.Embedder))
	}
	if c.Vision.Embedder == "onnx" && c.Vision.ONNXModelPath == "" {
		errs = append(errs, errors.New("ONNX_MODEL_PATH is required when EMBEDDER=onnx"))
	}
	return errors.Join(errs...)
}
