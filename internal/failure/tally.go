package failure

import (
	"sort"
	"sync"
)

// Tally counts reports by status. It is safe for concurrent use.
type Tally struct {
	mu     sync.Mutex
	counts map[Status]int
	total  int
}

// NewTally creates an empty tally.
func NewTally() *Tally {
	return &Tally{counts: make(map[Status]int)}
}

// Record counts one report.
func (t *Tally) Record(r Report) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.counts[r.Status]++
	t.total++
}

// StatusCount is one line of a tally snapshot.
type StatusCount struct {
	Status  Status  `json:"status"`
	Count   int     `json:"count"`
	Percent float64 `json:"percent"`
}

// Snapshot returns the counts, most frequent first.
func (t *Tally) Snapshot() []StatusCount {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]StatusCount, 0, len(t.counts))
	for status, n := range t.counts {
		out = append(out, StatusCount{
			Status:  status,
			Count:   n,
			Percent: 100 * float64(n) / float64(t.total),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Status < out[j].Status
	})
	return out
}

// Total returns the number of recorded reports.
func (t *Tally) Total() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.total
}
