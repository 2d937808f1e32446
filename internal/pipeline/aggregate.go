package pipeline

import (
	"errors"
	"fmt"

	"github.com/kozaktomas/face-id/internal/database"
)

// ErrNoSignatures is returned when there is nothing to aggregate.
var ErrNoSignatures = errors.New("no signatures to aggregate")

// Aggregate combines signatures into one unit-length signature: the element-wise mean,
// renormalized. A single signature is only normalized.
func Aggregate(signatures [][]float32) ([]float32, error) {
	switch len(signatures) {
	case 0:
		return nil, ErrNoSignatures
	case 1:
		return database.Normalize(signatures[0])
	}

	dim := len(signatures[0])
	for i, s := range signatures[1:] {
		if len(s) != dim {
			return nil, fmt.Errorf("%w: signature %d has dimension %d, want %d", database.ErrDimensionMismatch, i+1, len(s), dim)
		}
	}
	return database.Normalize(database.Mean(signatures))
}
