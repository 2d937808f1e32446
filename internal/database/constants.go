package database

// HNSW index parameters for 512-dim face embeddings
const (
	// HNSWMaxNeighbors (M) is the maximum number of neighbors per node.
	// Higher values improve recall but increase memory and build time.
	HNSWMaxNeighbors = 16

	// HNSWLevelFactor (Ml) is the level generation factor, 1/ln(M).
	HNSWLevelFactor = 0.36

	// HNSWEfSearch is the search candidate pool size.
	// Higher values improve recall but slow down search.
	HNSWEfSearch = 200

	// HNSWSearchMultiplier is the factor to request more candidates from HNSW
	// so exact rescoring and position tie-breaking see enough neighbors.
	HNSWSearchMultiplier = 4

	// HNSWMinCandidates is the minimum number of candidates requested from HNSW.
	HNSWMinCandidates = 200
)

// Persistence constants
const (
	// vectorFileVersion is bumped when the vector file layout changes
	vectorFileVersion = 1

	// filePerm is the permission used for gallery files
	filePerm = 0600
)
