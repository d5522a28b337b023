// Package vector provides the small amount of float math the matching
// engine needs: normalization, weighted combination, arithmetic mean and
// cosine similarity over float32 slices.
package vector

import (
	"fmt"
	"math"
)

// Norm returns the Euclidean length of v.
func Norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

// Normalize returns a unit-length copy of v. A zero vector is returned
// unchanged rather than producing NaNs.
func Normalize(v []float32) []float32 {
	n := Norm(v)
	out := make([]float32, len(v))
	if n == 0 {
		copy(out, v)
		return out
	}
	for i, x := range v {
		out[i] = float32(float64(x) / n)
	}
	return out
}

// Cosine returns the cosine similarity of a and b, in [-1, 1].
// Returns 0 when either vector is zero-length or empty.
func Cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	na, nb := Norm(a), Norm(b)
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (na * nb)
}

// Mean returns the element-wise arithmetic mean of the given vectors.
// All vectors must share the same dimension.
func Mean(vs [][]float32) ([]float32, error) {
	if len(vs) == 0 {
		return nil, fmt.Errorf("vector: mean of zero vectors")
	}
	dim := len(vs[0])
	sum := make([]float64, dim)
	for _, v := range vs {
		if len(v) != dim {
			return nil, fmt.Errorf("vector: dimension mismatch %d vs %d", len(v), dim)
		}
		for i, x := range v {
			sum[i] += float64(x)
		}
	}
	out := make([]float32, dim)
	for i, s := range sum {
		out[i] = float32(s / float64(len(vs)))
	}
	return out, nil
}

// Combine fuses two vectors as a weighted sum and normalizes the result
// to unit length.
func Combine(a, b []float32, wa, wb float64) ([]float32, error) {
	if len(a) != len(b) {
		return nil, fmt.Errorf("vector: dimension mismatch %d vs %d", len(a), len(b))
	}
	out := make([]float32, len(a))
	for i := range a {
		out[i] = float32(wa*float64(a[i]) + wb*float64(b[i]))
	}
	return Normalize(out), nil
}
