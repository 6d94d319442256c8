// Package retrieval ranks candidate records against a query embedding.
//
// Ranking combines vector similarity, time decay, and the importance score
// already stored on each candidate. The combination function is a pluggable
// CompositeScorer so the weighting can be tuned and tested independently of
// the ranking mechanics.
package retrieval

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/recallhq/memlayer-go/pkg/storage"
	"github.com/recallhq/memlayer-go/pkg/vectormath"
)

// ErrInvalidTopK indicates a non-positive top-k was requested.
var ErrInvalidTopK = errors.New("top_k must be positive")

// DefaultHalfLife is the default decay half-life applied to candidate age.
const DefaultHalfLife = 24 * time.Hour

// RankedResult is one candidate with its ranking breakdown.
type RankedResult struct {
	// Record is the ranked candidate.
	Record *storage.Record

	// Score is the composite value the ranking is sorted by.
	Score float64

	// Similarity is the raw cosine similarity to the query, in [-1, 1].
	Similarity float64

	// Decay is the time-decay factor for the candidate's age, in (0, 1].
	Decay float64
}

// Retriever ranks candidates for a query.
//
// A Retriever holds only immutable configuration; each Rank call computes
// from scratch with no cached state, so concurrent calls are safe.
type Retriever struct {
	scorer   CompositeScorer
	halfLife time.Duration
}

// Option customizes a Retriever.
type Option func(*Retriever)

// WithCompositeScorer replaces the default weighted composite scorer.
func WithCompositeScorer(scorer CompositeScorer) Option {
	return func(r *Retriever) {
		r.scorer = scorer
	}
}

// WithHalfLife overrides the decay half-life. A non-positive value
// disables decay (every candidate gets decay 1).
func WithHalfLife(halfLife time.Duration) Option {
	return func(r *Retriever) {
		r.halfLife = halfLife
	}
}

// NewRetriever creates a Retriever with the default composite scorer and
// half-life.
func NewRetriever(opts ...Option) *Retriever {
	r := &Retriever{
		scorer:   DefaultScorer(),
		halfLife: DefaultHalfLife,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Rank scores the candidates against the query embedding and returns the
// top-k results, best first, evaluated at the current time.
func (r *Retriever) Rank(queryEmbedding []float64, candidates []*storage.Record, topK int) ([]RankedResult, error) {
	return r.RankAt(queryEmbedding, candidates, topK, time.Now())
}

// RankAt is Rank with an explicit evaluation time.
//
// For each candidate whose embedding status is completed:
//   - similarity = cosine(query, candidate embedding)
//   - decay = half-life decay of (now - candidate.CreatedAt)
//   - score = CompositeScorer.Combine(similarity, decay, importance)
//
// Candidates without a completed embedding are excluded before scoring,
// never scored against a default vector. Results are sorted by score
// descending; ties break by CreatedAt descending (most recent wins), then
// by ID descending so the order is fully deterministic. The result is
// truncated to topK.
//
// Returns ErrInvalidTopK for topK <= 0. A dimension mismatch between the
// query and a candidate embedding is a caller bug and fails the whole call.
func (r *Retriever) RankAt(queryEmbedding []float64, candidates []*storage.Record, topK int, now time.Time) ([]RankedResult, error) {
	if topK <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidTopK, topK)
	}
	if len(queryEmbedding) == 0 {
		return nil, vectormath.ErrEmptyVector
	}

	results := make([]RankedResult, 0, len(candidates))
	for _, candidate := range candidates {
		if candidate.EmbeddingStatus != storage.EmbeddingCompleted || candidate.Embedding == nil {
			continue
		}

		similarity, err := vectormath.Similarity(queryEmbedding, candidate.Embedding)
		if err != nil {
			return nil, fmt.Errorf("rank candidate %d: %w", candidate.ID, err)
		}

		age := now.Sub(candidate.CreatedAt).Seconds()
		decay := vectormath.Decay(age, r.halfLife.Seconds())

		results = append(results, RankedResult{
			Record:     candidate,
			Score:      r.scorer.Combine(similarity, decay, candidate.ImportanceScore),
			Similarity: similarity,
			Decay:      decay,
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		if !results[i].Record.CreatedAt.Equal(results[j].Record.CreatedAt) {
			return results[i].Record.CreatedAt.After(results[j].Record.CreatedAt)
		}
		return results[i].Record.ID > results[j].Record.ID
	})

	if len(results) > topK {
		results = results[:topK]
	}

	return results, nil
}
