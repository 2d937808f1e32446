package database

import (
	"cmp"
	"slices"
)

// vectorStore is the append-only storage behind an Index. Positions are dense from 0
// in insertion order. Implementations are not safe for concurrent use; Index serializes access.
type vectorStore interface {
	add(vectors ...[]float32)
	// search returns up to k hits. Backends that generate candidates approximately must
	// fall back to an exact scan when their best hit scores below floor.
	search(query []float32, k int, floor float64) []Hit
	vector(pos int) []float32
	len() int
}

func newStore(backend Backend, metric Metric) vectorStore {
	if backend == BackendHNSW {
		return newHNSWStore(metric)
	}
	return &flatStore{metric: metric}
}

// score maps a vector pair to a similarity where higher is better for every metric.
func score(metric Metric, query, stored []float32) float64 {
	if metric == MetricEuclidean {
		return 1 / (1 + EuclideanDistance(query, stored))
	}
	return InnerProduct(query, stored)
}

// rankHits orders hits by descending score, ties by ascending position, and keeps the first k.
func rankHits(hits []Hit, k int) []Hit {
	slices.SortFunc(hits, func(a, b Hit) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		return cmp.Compare(a.Position, b.Position)
	})
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits
}

// flatStore scores every stored vector exactly.
type flatStore struct {
	metric  Metric
	vectors [][]float32
}

func (s *flatStore) add(vectors ...[]float32) {
	s.vectors = append(s.vectors, vectors...)
}

func (s *flatStore) search(query []float32, k int, _ float64) []Hit {
	if k <= 0 || len(s.vectors) == 0 {
		return nil
	}
	hits := make([]Hit, len(s.vectors))
	for pos, v := range s.vectors {
		hits[pos] = Hit{Position: pos, Score: score(s.metric, query, v)}
	}
	return rankHits(hits, k)
}

func (s *flatStore) vector(pos int) []float32 {
	return s.vectors[pos]
}

func (s *flatStore) len() int {
	return len(s.vectors)
}
