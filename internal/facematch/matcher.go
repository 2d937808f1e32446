package facematch

import (
	"errors"
	"fmt"
	"time"

	"github.com/kozaktomas/face-id/internal/database"
)

// Searcher is the part of the gallery the matcher needs.
type Searcher interface {
	SearchWithThreshold(query []float32, threshold float64, k int) ([]database.Match, error)
}

// Matcher applies a similarity threshold to gallery searches.
type Matcher struct {
	index Searcher
}

// NewMatcher creates a matcher over index.
func NewMatcher(index Searcher) *Matcher {
	return &Matcher{index: index}
}

// Identify returns up to k matches scoring at least threshold. It succeeds iff at least
// one match passes; the best match is the highest scoring one.
func (m *Matcher) Identify(query []float32, threshold float64, k int) (*IdentifyResult, error) {
	if k <= 0 {
		return nil, fmt.Errorf("k must be positive, got %d", k)
	}

	start := time.Now()
	matches, err := m.index.SearchWithThreshold(query, threshold, k)
	if err != nil {
		return nil, fmt.Errorf("searching gallery: %w", err)
	}

	res := &IdentifyResult{
		Success:   len(matches) > 0,
		Matches:   matches,
		Threshold: threshold,
		Timing:    Timing{SearchSeconds: time.Since(start).Seconds()},
	}
	if res.Success {
		best := matches[0]
		res.BestMatch = &best
	}
	return res, nil
}

// Verify runs Identify with k=1 and checks the best match belongs to claimedID.
// The same threshold as identification applies.
func (m *Matcher) Verify(query []float32, claimedID string, threshold float64) (*VerifyResult, error) {
	if claimedID == "" {
		return nil, errors.New("claimed identity id is required")
	}

	res, err := m.Identify(query, threshold, 1)
	if err != nil {
		return nil, err
	}
	return &VerifyResult{
		Verified:          res.Success && res.BestMatch.IdentityID == claimedID,
		ClaimedIdentityID: claimedID,
		BestMatch:         res.BestMatch,
		Threshold:         threshold,
		Timing:            res.Timing,
	}, nil
}
