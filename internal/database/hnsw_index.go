package database

import (
	"encoding/binary"
	"math"

	"github.com/coder/hnsw"
)

// hnswStore keeps signatures in an HNSW graph keyed by position for candidate generation.
// The graph only proposes neighbors; scores come from the shadow vectors so ranking and
// tie-breaking match the flat store. The graph is never mutated by deletion: removal
// rebuilds a fresh store.
//
// The graph search is greedy and can miss entries, so two things back it up: stored
// vectors identical to the query are always candidates, and a search whose best candidate
// scores below the caller's floor falls back to an exact scan.
type hnswStore struct {
	metric  Metric
	graph   *hnsw.Graph[int]
	vectors [][]float32
	exact   map[string][]int // vector bits -> positions
}

func newHNSWStore(metric Metric) *hnswStore {
	g := hnsw.NewGraph[int]()
	g.M = HNSWMaxNeighbors
	g.Ml = HNSWLevelFactor
	g.EfSearch = HNSWEfSearch
	g.Distance = hnsw.CosineDistance
	if metric == MetricEuclidean {
		g.Distance = hnsw.EuclideanDistance
	}
	return &hnswStore{metric: metric, graph: g, exact: make(map[string][]int)}
}

func vectorKey(v []float32) string {
	buf := make([]byte, 0, 4*len(v))
	for _, x := range v {
		buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(x))
	}
	return string(buf)
}

func (s *hnswStore) add(vectors ...[]float32) {
	nodes := make([]hnsw.Node[int], len(vectors))
	for i, v := range vectors {
		pos := len(s.vectors)
		s.vectors = append(s.vectors, v)
		key := vectorKey(v)
		s.exact[key] = append(s.exact[key], pos)
		nodes[i] = hnsw.MakeNode(pos, v)
	}
	if len(nodes) > 0 {
		s.graph.Add(nodes...)
	}
}

func (s *hnswStore) search(query []float32, k int, floor float64) []Hit {
	if k <= 0 || len(s.vectors) == 0 {
		return nil
	}

	candidates := max(k*HNSWSearchMultiplier, HNSWMinCandidates)
	if candidates >= len(s.vectors) {
		// Small gallery: the graph cannot beat an exact scan.
		return s.scan(query, k)
	}

	seen := make(map[int]struct{}, candidates)
	hits := make([]Hit, 0, candidates)
	propose := func(pos int) {
		if _, dup := seen[pos]; dup {
			return
		}
		seen[pos] = struct{}{}
		hits = append(hits, Hit{Position: pos, Score: score(s.metric, query, s.vectors[pos])})
	}
	for _, pos := range s.exact[vectorKey(query)] {
		propose(pos)
	}
	for _, n := range s.graph.Search(query, candidates) {
		propose(n.Key)
	}

	hits = rankHits(hits, k)
	if len(hits) == 0 || hits[0].Score < floor {
		return s.scan(query, k)
	}
	return hits
}

func (s *hnswStore) scan(query []float32, k int) []Hit {
	hits := make([]Hit, len(s.vectors))
	for pos, v := range s.vectors {
		hits[pos] = Hit{Position: pos, Score: score(s.metric, query, v)}
	}
	return rankHits(hits, k)
}

func (s *hnswStore) vector(pos int) []float32 {
	return s.vectors[pos]
}

func (s *hnswStore) len() int {
	return len(s.vectors)
}
