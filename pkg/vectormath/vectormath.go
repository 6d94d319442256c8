// Package vectormath provides the numeric primitives shared by retrieval and
// scoring: cosine similarity over fixed-length embedding vectors and
// half-life time decay.
//
// All functions are pure and safe for concurrent use.
package vectormath

import (
	"errors"
	"fmt"
	"math"
)

// Predefined errors for invalid vector inputs.
var (
	// ErrDimensionMismatch indicates that two vectors have different lengths.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")

	// ErrEmptyVector indicates that a zero-length vector was supplied.
	ErrEmptyVector = errors.New("empty vector")
)

// Similarity calculates the cosine similarity between two vectors.
//
// The result is in [-1, 1], where 1 means the vectors point in the same
// direction. Vectors must be non-empty and of equal length:
//   - ErrEmptyVector is returned if either vector has length 0
//   - ErrDimensionMismatch is returned if the lengths differ
//
// A zero vector (all components 0) has no defined angle; its similarity to
// anything is reported as 0 rather than dividing by zero.
func Similarity(a, b []float64) (float64, error) {
	if len(a) == 0 || len(b) == 0 {
		return 0, ErrEmptyVector
	}
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: %d vs %d", ErrDimensionMismatch, len(a), len(b))
	}

	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}

	if normA == 0 || normB == 0 {
		return 0, nil
	}

	sim := dot / (math.Sqrt(normA) * math.Sqrt(normB))

	// Floating point can push the ratio marginally outside [-1, 1].
	if sim > 1 {
		sim = 1
	}
	if sim < -1 {
		sim = -1
	}
	return sim, nil
}

// Decay calculates exponential half-life decay for an elapsed age.
//
// The formula is 0.5^(age/halfLife): the result is 1 at age 0 and halves
// every halfLife. It is monotonically decreasing in age and saturates
// toward 0 for very large ages without ever going negative or NaN.
//
// Non-positive ages return 1 (a record from the future is simply fresh).
// A non-positive half-life disables decay entirely and returns 1.
func Decay(age, halfLife float64) float64 {
	if age <= 0 || halfLife <= 0 {
		return 1
	}

	d := math.Exp2(-age / halfLife)
	if d < 0 || math.IsNaN(d) {
		return 0
	}
	if d > 1 {
		return 1
	}
	return d
}
