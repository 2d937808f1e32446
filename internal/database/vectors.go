package database

import (
	"errors"
	"math"
)

// ErrDegenerateSignature is returned when a signature has a zero (or non-finite) norm
// and therefore cannot be normalized.
var ErrDegenerateSignature = errors.New("degenerate signature")

// InnerProduct returns the dot product of two equal-length vectors, accumulated in float64.
func InnerProduct(a, b []float32) float64 {
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot
}

// EuclideanDistance returns the L2 distance between two equal-length vectors.
func EuclideanDistance(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}

// L2Norm returns the Euclidean length of v.
func L2Norm(v []float32) float64 {
	return math.Sqrt(InnerProduct(v, v))
}

// Normalize returns a unit-length copy of v.
func Normalize(v []float32) ([]float32, error) {
	norm := L2Norm(v)
	if norm == 0 || math.IsNaN(norm) || math.IsInf(norm, 0) {
		return nil, ErrDegenerateSignature
	}
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out, nil
}

// Mean returns the element-wise arithmetic mean of equal-length vectors.
func Mean(vectors [][]float32) []float32 {
	if len(vectors) == 0 {
		return nil
	}
	sum := make([]float64, len(vectors[0]))
	for _, v := range vectors {
		for i, x := range v {
			sum[i] += float64(x)
		}
	}
	out := make([]float32, len(sum))
	n := float64(len(vectors))
	for i, s := range sum {
		out[i] = float32(s / n)
	}
	return out
}
