package database

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrDimensionMismatch is returned when a signature does not match the index dimension.
	ErrDimensionMismatch = errors.New("dimension mismatch")

	// ErrIndexIntegrity is returned when the vector store and metadata sidecar disagree.
	ErrIndexIntegrity = errors.New("index integrity error")

	// ErrPositionOutOfRange is returned when removing a position that does not exist.
	ErrPositionOutOfRange = errors.New("position out of range")
)

// Metric is the similarity metric of an index.
type Metric string

const (
	MetricCosine    Metric = "cosine"
	MetricEuclidean Metric = "euclidean"
)

// ParseMetric accepts "cosine", "ip", "euclidean" and "l2".
func ParseMetric(s string) (Metric, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "cosine", "ip":
		return MetricCosine, nil
	case "euclidean", "l2":
		return MetricEuclidean, nil
	default:
		return "", fmt.Errorf("unknown metric %q", s)
	}
}

// Backend selects the vector store implementation behind an index.
type Backend string

const (
	// BackendFlat scores every stored vector exactly.
	BackendFlat Backend = "flat"
	// BackendHNSW generates candidates from an HNSW graph and rescores them exactly.
	BackendHNSW Backend = "hnsw"
)

// ParseBackend accepts "flat" and "hnsw".
func ParseBackend(s string) (Backend, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "flat":
		return BackendFlat, nil
	case "hnsw":
		return BackendHNSW, nil
	default:
		return "", fmt.Errorf("unknown backend %q", s)
	}
}

// Hit is a raw search result.
type Hit struct {
	Position int     `json:"position"`
	Score    float64 `json:"score"`
}

// Match is a search result that passed the threshold, with its owner and metadata snapshot.
type Match struct {
	IdentityID string   `json:"identity_id"`
	Score      float64  `json:"score"`
	Position   int      `json:"position"`
	Metadata   Metadata `json:"metadata,omitempty"`
}

// Entry is a snapshot of an index entry.
type Entry struct {
	Position   int       `json:"position"`
	IdentityID string    `json:"identity_id"`
	Signature  []float32 `json:"-"`
	Metadata   Metadata  `json:"metadata,omitempty"`
}

// Statistics summarizes an index for consistency checks.
type Statistics struct {
	TotalEntries    int     `json:"total_entries"`
	Dimension       int     `json:"dimension"`
	Metric          Metric  `json:"metric"`
	MetadataEntries int     `json:"metadata_entries"`
	Identities      int     `json:"identities"`
	Backend         Backend `json:"backend"`
}

// Consistent reports whether the vector and metadata counts agree.
func (s Statistics) Consistent() bool {
	return s.TotalEntries == s.MetadataEntries
}

// entryRecord is the metadata record stored in parallel with each vector.
type entryRecord struct {
	IdentityID string   `json:"identity_id"`
	Metadata   Metadata `json:"metadata"`
}
