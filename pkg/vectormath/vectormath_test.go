package vectormath_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/recallhq/memlayer-go/pkg/vectormath"
)

func TestSimilarityIdentity(t *testing.T) {
	vectors := [][]float64{
		{1, 0, 0},
		{0.3, 0.7, 0.2, 0.9},
		{-1, -2, -3},
	}

	for _, v := range vectors {
		sim, err := vectormath.Similarity(v, v)
		require.NoError(t, err)
		assert.InDelta(t, 1.0, sim, 1e-9, "a vector is always identical to itself")
	}
}

func TestSimilarityOpposite(t *testing.T) {
	a := []float64{1, 2, 3}
	b := []float64{-1, -2, -3}

	sim, err := vectormath.Similarity(a, b)
	require.NoError(t, err)
	assert.InDelta(t, -1.0, sim, 1e-9)
}

func TestSimilarityOrthogonal(t *testing.T) {
	sim, err := vectormath.Similarity([]float64{1, 0}, []float64{0, 1})
	require.NoError(t, err)
	assert.InDelta(t, 0.0, sim, 1e-9)
}

func TestSimilarityDimensionMismatch(t *testing.T) {
	_, err := vectormath.Similarity([]float64{1, 2}, []float64{1, 2, 3})
	assert.ErrorIs(t, err, vectormath.ErrDimensionMismatch)
}

func TestSimilarityEmptyVector(t *testing.T) {
	_, err := vectormath.Similarity(nil, []float64{1})
	assert.ErrorIs(t, err, vectormath.ErrEmptyVector)

	_, err = vectormath.Similarity([]float64{1}, []float64{})
	assert.ErrorIs(t, err, vectormath.ErrEmptyVector)
}

func TestSimilarityZeroVector(t *testing.T) {
	// A zero vector has no angle; similarity is 0, never a division by zero.
	sim, err := vectormath.Similarity([]float64{0, 0, 0}, []float64{1, 2, 3})
	require.NoError(t, err)
	assert.Equal(t, 0.0, sim)
}

func TestDecayAtZeroAge(t *testing.T) {
	assert.Equal(t, 1.0, vectormath.Decay(0, 3600))
	assert.Equal(t, 1.0, vectormath.Decay(-10, 3600))
}

func TestDecayHalfLife(t *testing.T) {
	halfLife := 86400.0

	assert.InDelta(t, 0.5, vectormath.Decay(halfLife, halfLife), 1e-9)
	assert.InDelta(t, 0.25, vectormath.Decay(2*halfLife, halfLife), 1e-9)
}

func TestDecayMonotonic(t *testing.T) {
	halfLife := 3600.0
	prev := vectormath.Decay(0, halfLife)
	for age := 100.0; age < 1e6; age *= 3 {
		d := vectormath.Decay(age, halfLife)
		assert.Less(t, d, prev, "decay must decrease with age")
		prev = d
	}
}

func TestDecayLargeAgeStable(t *testing.T) {
	d := vectormath.Decay(1e18, 60)
	assert.False(t, math.IsNaN(d))
	assert.GreaterOrEqual(t, d, 0.0)
	assert.LessOrEqual(t, d, 1e-9)
}

func TestDecayDisabled(t *testing.T) {
	// Non-positive half-life disables decay.
	assert.Equal(t, 1.0, vectormath.Decay(1000, 0))
	assert.Equal(t, 1.0, vectormath.Decay(1000, -1))
}
