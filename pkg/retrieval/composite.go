package retrieval

import "fmt"

// CompositeScorer combines a candidate's similarity, decay, and importance
// into the single value the ranking is sorted by.
//
// Implementations must be pure: the same inputs always produce the same
// output. similarity is the raw cosine value in [-1, 1]; decay and
// importance are in [0, 1].
type CompositeScorer interface {
	Combine(similarity, decay, importance float64) float64
}

// WeightedScorer is the default CompositeScorer: a normalized weighted sum
// with similarity dominant.
//
// The cosine similarity is first mapped from [-1, 1] to [0, 1] so all three
// components share a scale, then combined as
//
//	w_sim*sim + w_decay*decay + w_importance*importance
//
// with the weight triple normalized at construction.
type WeightedScorer struct {
	similarity float64
	decay      float64
	importance float64
}

// Default composite weights: similarity dominates, decay and importance act
// as secondary terms.
const (
	DefaultSimilarityWeight = 0.6
	DefaultDecayWeight      = 0.2
	DefaultImportanceWeight = 0.2
)

// NewWeightedScorer creates a WeightedScorer from raw component weights.
//
// Weights must be non-negative with a positive sum; they are normalized so
// the composite score stays in [0, 1].
func NewWeightedScorer(similarity, decay, importance float64) (*WeightedScorer, error) {
	if similarity < 0 || decay < 0 || importance < 0 {
		return nil, fmt.Errorf("composite weights must be non-negative, got similarity=%v decay=%v importance=%v",
			similarity, decay, importance)
	}

	total := similarity + decay + importance
	if total == 0 {
		return nil, fmt.Errorf("composite weights must not all be zero")
	}

	return &WeightedScorer{
		similarity: similarity / total,
		decay:      decay / total,
		importance: importance / total,
	}, nil
}

// DefaultScorer returns a WeightedScorer with the default weights.
func DefaultScorer() *WeightedScorer {
	s, _ := NewWeightedScorer(DefaultSimilarityWeight, DefaultDecayWeight, DefaultImportanceWeight)
	return s
}

// Combine implements CompositeScorer.
func (s *WeightedScorer) Combine(similarity, decay, importance float64) float64 {
	sim01 := (similarity + 1) / 2
	return sim01*s.similarity + decay*s.decay + importance*s.importance
}
