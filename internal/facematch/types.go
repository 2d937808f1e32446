// Package facematch turns query signatures into match decisions against the gallery.
// It also holds the face box geometry and name normalization shared by the pipeline,
// the CLI and the web handlers.
package facematch

import "github.com/kozaktomas/face-id/internal/database"

// IdentifyResult is the outcome of a thresholded gallery search.
type IdentifyResult struct {
	Success   bool             `json:"success"`
	Matches   []database.Match `json:"matches"`
	BestMatch *database.Match  `json:"best_match,omitempty"`
	Threshold float64          `json:"threshold"`
	Timing    Timing           `json:"timing"`
}

// VerifyResult is the outcome of a 1:1 check against a claimed identity.
type VerifyResult struct {
	Verified          bool            `json:"verified"`
	ClaimedIdentityID string          `json:"claimed_identity_id"`
	BestMatch         *database.Match `json:"best_match,omitempty"`
	Threshold         float64         `json:"threshold"`
	Timing            Timing          `json:"timing"`
}

// Timing is the time spent in the matcher.
type Timing struct {
	SearchSeconds float64 `json:"search_seconds"`
}
