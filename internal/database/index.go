package database

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"sync"
)

// Index is the gallery: an append-only similarity store over fixed-dimension signatures
// with a parallel metadata record per position.
//
// Mutations (Add, AddBatch, Remove*, ReplaceIdentity, Save, Load) take the write lock; searches share the
// read lock. Removal builds a fresh store and swaps it in, so a failed rebuild leaves the
// index untouched.
type Index struct {
	mu      sync.RWMutex
	dim     int
	metric  Metric
	backend Backend
	store   vectorStore
	records []entryRecord // position-indexed, always len(records) == store.len()
}

// NewIndex creates an empty index.
func NewIndex(dim int, metric Metric, backend Backend) (*Index, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("index dimension must be positive, got %d", dim)
	}
	if metric != MetricCosine && metric != MetricEuclidean {
		return nil, fmt.Errorf("unknown metric %q", metric)
	}
	if backend == "" {
		backend = BackendFlat
	}
	if backend != BackendFlat && backend != BackendHNSW {
		return nil, fmt.Errorf("unknown backend %q", backend)
	}
	return &Index{
		dim:     dim,
		metric:  metric,
		backend: backend,
		store:   newStore(backend, metric),
	}, nil
}

// Dimension returns the fixed signature dimension.
func (ix *Index) Dimension() int { return ix.dim }

// Metric returns the similarity metric.
func (ix *Index) Metric() Metric { return ix.metric }

// prepare validates a signature and returns the copy that will be stored or queried.
func (ix *Index) prepare(sig []float32) ([]float32, error) {
	if len(sig) != ix.dim {
		return nil, fmt.Errorf("%w: got %d, index dimension is %d", ErrDimensionMismatch, len(sig), ix.dim)
	}
	if ix.metric == MetricCosine {
		return Normalize(sig)
	}
	return slices.Clone(sig), nil
}

// Add appends a signature and returns its position.
func (ix *Index) Add(sig []float32, identityID string, md Metadata) (int, error) {
	positions, err := ix.AddBatch([][]float32{sig}, []string{identityID}, []Metadata{md})
	if err != nil {
		return -1, err
	}
	return positions[0], nil
}

// AddBatch appends signatures as one unit: either all are added at contiguous positions
// in input order, or none are.
func (ix *Index) AddBatch(sigs [][]float32, identityIDs []string, mds []Metadata) ([]int, error) {
	if len(sigs) != len(identityIDs) {
		return nil, fmt.Errorf("batch has %d signatures but %d identity ids", len(sigs), len(identityIDs))
	}
	if mds != nil && len(mds) != len(sigs) {
		return nil, fmt.Errorf("batch has %d signatures but %d metadata maps", len(sigs), len(mds))
	}

	vectors := make([][]float32, len(sigs))
	records := make([]entryRecord, len(sigs))
	for i, sig := range sigs {
		if identityIDs[i] == "" {
			return nil, fmt.Errorf("batch item %d: identity id is required", i)
		}
		v, err := ix.prepare(sig)
		if err != nil {
			return nil, fmt.Errorf("batch item %d: %w", i, err)
		}
		var md Metadata
		if mds != nil {
			if err := mds[i].Validate(); err != nil {
				return nil, fmt.Errorf("batch item %d: %w", i, err)
			}
			md = mds[i].Clone()
		}
		vectors[i] = v
		records[i] = entryRecord{IdentityID: identityIDs[i], Metadata: md}
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()

	start := ix.store.len()
	ix.store.add(vectors...)
	ix.records = append(ix.records, records...)

	positions := make([]int, len(vectors))
	for i := range positions {
		positions[i] = start + i
	}
	return positions, nil
}

// Search returns up to k hits ordered by descending score, ties by ascending position.
func (ix *Index) Search(query []float32, k int) ([]Hit, error) {
	q, err := ix.prepare(query)
	if err != nil {
		return nil, err
	}

	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.store.search(q, k, math.Inf(-1)), nil
}

// SearchWithThreshold returns at most k matches whose score is at least threshold.
func (ix *Index) SearchWithThreshold(query []float32, threshold float64, k int) ([]Match, error) {
	q, err := ix.prepare(query)
	if err != nil {
		return nil, err
	}

	ix.mu.RLock()
	defer ix.mu.RUnlock()

	hits := ix.store.search(q, k, threshold)
	matches := make([]Match, 0, len(hits))
	for _, h := range hits {
		if h.Score < threshold {
			continue
		}
		rec := ix.records[h.Position]
		matches = append(matches, Match{
			IdentityID: rec.IdentityID,
			Score:      h.Score,
			Position:   h.Position,
			Metadata:   rec.Metadata.Clone(),
		})
	}
	return matches, nil
}

// Remove deletes one position. It rebuilds the whole store; use RemoveBatch for several.
func (ix *Index) Remove(pos int) error {
	return ix.RemoveBatch([]int{pos})
}

// RemoveBatch deletes the given positions with a single rebuild. Remaining entries are
// renumbered from 0 in their original relative order. Cost is O(n) in the index size.
func (ix *Index) RemoveBatch(positions []int) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	drop := make(map[int]struct{}, len(positions))
	for _, p := range positions {
		if p < 0 || p >= ix.store.len() {
			return fmt.Errorf("%w: %d (index has %d entries)", ErrPositionOutOfRange, p, ix.store.len())
		}
		drop[p] = struct{}{}
	}
	if len(drop) == 0 {
		return nil
	}
	ix.rebuildLocked(func(pos int) bool {
		_, gone := drop[pos]
		return !gone
	})
	return nil
}

// RemoveIdentity deletes every entry owned by identityID and returns how many were removed.
func (ix *Index) RemoveIdentity(identityID string) (int, error) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	removed := 0
	for _, rec := range ix.records {
		if rec.IdentityID == identityID {
			removed++
		}
	}
	if removed == 0 {
		return 0, nil
	}
	ix.rebuildLocked(func(pos int) bool {
		return ix.records[pos].IdentityID != identityID
	})
	return removed, nil
}

// ReplaceIdentity drops every entry owned by identityID and appends sig in its place as one
// unit. The signature and metadata are validated before anything changes, so a failed call
// leaves the index untouched. Returns the new position and how many entries were dropped.
func (ix *Index) ReplaceIdentity(identityID string, sig []float32, md Metadata) (pos, replaced int, err error) {
	if identityID == "" {
		return -1, 0, errors.New("identity id is required")
	}
	v, err := ix.prepare(sig)
	if err != nil {
		return -1, 0, err
	}
	if err := md.Validate(); err != nil {
		return -1, 0, err
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()

	for _, rec := range ix.records {
		if rec.IdentityID == identityID {
			replaced++
		}
	}
	if replaced > 0 {
		ix.rebuildLocked(func(pos int) bool {
			return ix.records[pos].IdentityID != identityID
		})
	}
	pos = ix.store.len()
	ix.store.add(v)
	ix.records = append(ix.records, entryRecord{IdentityID: identityID, Metadata: md.Clone()})
	return pos, replaced, nil
}

// rebuildLocked reconstructs the store from the entries keep accepts and swaps it in.
func (ix *Index) rebuildLocked(keep func(pos int) bool) {
	store := newStore(ix.backend, ix.metric)
	records := make([]entryRecord, 0, len(ix.records))
	vectors := make([][]float32, 0, len(ix.records))
	for pos := range ix.records {
		if !keep(pos) {
			continue
		}
		vectors = append(vectors, ix.store.vector(pos))
		records = append(records, ix.records[pos])
	}
	store.add(vectors...)

	ix.store = store
	ix.records = records
}

// Contains reports whether identityID owns at least one entry.
func (ix *Index) Contains(identityID string) bool {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	for _, rec := range ix.records {
		if rec.IdentityID == identityID {
			return true
		}
	}
	return false
}

// Entries returns a snapshot of every entry in position order.
func (ix *Index) Entries() []Entry {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	entries := make([]Entry, len(ix.records))
	for pos, rec := range ix.records {
		entries[pos] = Entry{
			Position:   pos,
			IdentityID: rec.IdentityID,
			Signature:  slices.Clone(ix.store.vector(pos)),
			Metadata:   rec.Metadata.Clone(),
		}
	}
	return entries
}

// Statistics returns entry counts, dimension and metric.
func (ix *Index) Statistics() Statistics {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	identities := make(map[string]struct{})
	for _, rec := range ix.records {
		identities[rec.IdentityID] = struct{}{}
	}
	return Statistics{
		TotalEntries:    ix.store.len(),
		Dimension:       ix.dim,
		Metric:          ix.metric,
		MetadataEntries: len(ix.records),
		Identities:      len(identities),
		Backend:         ix.backend,
	}
}

// Replace swaps the index contents for entries (in order) as one unit.
// Used to repopulate the gallery from the signature archive.
func (ix *Index) Replace(entries []Entry) error {
	vectors := make([][]float32, len(entries))
	records := make([]entryRecord, len(entries))
	for i, e := range entries {
		if e.IdentityID == "" {
			return errors.New("entry identity id is required")
		}
		v, err := ix.prepare(e.Signature)
		if err != nil {
			return fmt.Errorf("entry %s: %w", e.IdentityID, err)
		}
		vectors[i] = v
		records[i] = entryRecord{IdentityID: e.IdentityID, Metadata: e.Metadata.Clone()}
	}

	store := newStore(ix.backend, ix.metric)
	store.add(vectors...)

	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.store = store
	ix.records = records
	return nil
}
