// Package mock implements a deterministic, offline embedder.Provider.
//
// The same text always produces the same unit-length vector, so tests and
// examples can exercise similarity ranking without network access or API
// keys. The vectors carry no semantic meaning.
package mock

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"math"
)

// Provider is a deterministic embedding provider for tests and examples.
type Provider struct {
	dimensions int
}

// NewProvider creates a mock provider producing vectors of the given
// dimensionality. A non-positive value falls back to 1536.
func NewProvider(dimensions int) *Provider {
	if dimensions <= 0 {
		dimensions = 1536
	}
	return &Provider{dimensions: dimensions}
}

// Embed derives a unit vector from the SHA-256 of the text.
//
// Each component is seeded from the digest and the component index, so
// distinct texts produce distinct directions while identical texts always
// map to the identical vector.
func (p *Provider) Embed(ctx context.Context, text string) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	digest := sha256.Sum256([]byte(text))
	vector := make([]float64, p.dimensions)

	var norm float64
	for i := range vector {
		var seed [sha256.Size + 8]byte
		copy(seed[:], digest[:])
		binary.BigEndian.PutUint64(seed[sha256.Size:], uint64(i))
		component := sha256.Sum256(seed[:])

		// Map the first 8 digest bytes to (-1, 1).
		raw := binary.BigEndian.Uint64(component[:8])
		vector[i] = float64(raw)/float64(math.MaxUint64)*2 - 1
		norm += vector[i] * vector[i]
	}

	norm = math.Sqrt(norm)
	if norm > 0 {
		for i := range vector {
			vector[i] /= norm
		}
	}

	return vector, nil
}

// EmbedBatch embeds each text independently.
func (p *Provider) EmbedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	embeddings := make([][]float64, len(texts))
	for i, text := range texts {
		embedding, err := p.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		embeddings[i] = embedding
	}
	return embeddings, nil
}

// Dimensions returns the vector dimensions.
func (p *Provider) Dimensions() int {
	return p.dimensions
}

// Close is a no-op.
func (p *Provider) Close() error {
	return nil
}
