package mock_test

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/recallhq/memlayer-go/pkg/embedder/mock"
	"github.com/recallhq/memlayer-go/pkg/vectormath"
)

func TestEmbedDeterministic(t *testing.T) {
	provider := mock.NewProvider(64)
	ctx := context.Background()

	first, err := provider.Embed(ctx, "the same text")
	require.NoError(t, err)
	second, err := provider.Embed(ctx, "the same text")
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestEmbedDistinctTexts(t *testing.T) {
	provider := mock.NewProvider(64)
	ctx := context.Background()

	a, err := provider.Embed(ctx, "alpha")
	require.NoError(t, err)
	b, err := provider.Embed(ctx, "beta")
	require.NoError(t, err)

	similarity, err := vectormath.Similarity(a, b)
	require.NoError(t, err)
	assert.Less(t, similarity, 0.999, "distinct texts must not collide")
}

func TestEmbedUnitLength(t *testing.T) {
	provider := mock.NewProvider(128)

	vector, err := provider.Embed(context.Background(), "normalize me")
	require.NoError(t, err)
	require.Len(t, vector, 128)

	var norm float64
	for _, v := range vector {
		norm += v * v
	}
	assert.InDelta(t, 1.0, math.Sqrt(norm), 1e-9)
}

func TestEmbedBatchMatchesEmbed(t *testing.T) {
	provider := mock.NewProvider(32)
	ctx := context.Background()

	texts := []string{"one", "two", "three"}
	batch, err := provider.EmbedBatch(ctx, texts)
	require.NoError(t, err)
	require.Len(t, batch, len(texts))

	for i, text := range texts {
		single, err := provider.Embed(ctx, text)
		require.NoError(t, err)
		assert.Equal(t, single, batch[i])
	}
}

func TestEmbedHonorsCancellation(t *testing.T) {
	provider := mock.NewProvider(16)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := provider.Embed(ctx, "text")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDimensionsDefault(t *testing.T) {
	assert.Equal(t, 1536, mock.NewProvider(0).Dimensions())
	assert.Equal(t, 256, mock.NewProvider(256).Dimensions())
}
