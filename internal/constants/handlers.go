// Package constants provides shared constants used across the codebase.
package constants

// Handler limits
const (
	// MaxUploadBytes is the maximum size of a multipart request body accepted by the API
	MaxUploadBytes = 64 << 20

	// MaxEnrollPhotos is the maximum number of photos accepted by a single enroll request
	MaxEnrollPhotos = 20

	// MaxTopK is the upper bound on top_k accepted from API callers
	MaxTopK = 100

	// DefaultAttemptListLimit is the default number of attempts listed by the CLI
	DefaultAttemptListLimit = 50
)
