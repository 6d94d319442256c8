// Package scoring turns record attributes into a normalized importance score.
//
// The score combines three components: how recent the record is, how much
// weight its speaker role carries, and an optional explicit hint supplied by
// the caller. The scorer is a pure function of its inputs and its immutable
// configuration, and is safe for concurrent use.
package scoring

import (
	"fmt"
	"time"
)

// Speaker roles with configured weights. Unknown roles fall back to a
// default weight.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Weights is the component weight triple for the importance score.
//
// The raw weights are normalized at construction time so they sum to 1,
// unless their sum is 0, in which case they are left as-is and every score
// comes out 0.
type Weights struct {
	// Recency weights the linear time-decay component.
	Recency float64 `json:"recency"`

	// Role weights the per-role component.
	Role float64 `json:"role"`

	// Explicit weights the caller-supplied hint component.
	Explicit float64 `json:"explicit"`
}

// DefaultWeights returns the default component weights.
func DefaultWeights() Weights {
	return Weights{Recency: 0.4, Role: 0.2, Explicit: 0.4}
}

// Validate checks that every raw weight is non-negative.
//
// A negative weight fails fast here, at configuration load, never at
// scoring time.
func (w Weights) Validate() error {
	if w.Recency < 0 || w.Role < 0 || w.Explicit < 0 {
		return fmt.Errorf("importance weights must be non-negative, got recency=%v role=%v explicit=%v",
			w.Recency, w.Role, w.Explicit)
	}
	return nil
}

// Normalized returns the weights divided by their sum.
//
// A zero sum is the degenerate case: the weights are returned unchanged.
func (w Weights) Normalized() Weights {
	total := w.Recency + w.Role + w.Explicit
	if total == 0 {
		return w
	}
	return Weights{
		Recency:  w.Recency / total,
		Role:     w.Role / total,
		Explicit: w.Explicit / total,
	}
}

// DefaultRoleWeights returns the default per-role weights.
func DefaultRoleWeights() map[string]float64 {
	return map[string]float64{
		RoleSystem:    0.9,
		RoleUser:      0.7,
		RoleAssistant: 0.5,
	}
}

// defaultUnknownRoleWeight is used for roles without a configured weight.
const defaultUnknownRoleWeight = 0.5

// DefaultRecencyWindow is the default linear decay window: a record's
// recency component reaches 0 once it is a full day old.
const DefaultRecencyWindow = 24 * time.Hour

// Scorer computes importance scores for records.
//
// Construct with NewScorer; the zero value is not usable.
type Scorer struct {
	weights     Weights
	roleWeights map[string]float64
	window      time.Duration
}

// Option customizes a Scorer.
type Option func(*Scorer)

// WithRoleWeights overrides the per-role weights.
func WithRoleWeights(roleWeights map[string]float64) Option {
	return func(s *Scorer) {
		s.roleWeights = roleWeights
	}
}

// WithRecencyWindow overrides the linear recency decay window.
func WithRecencyWindow(window time.Duration) Option {
	return func(s *Scorer) {
		s.window = window
	}
}

// NewScorer creates an importance scorer with the given component weights.
//
// The weights are validated and normalized once here. Returns an error if
// any raw weight is negative or the recency window is not positive.
func NewScorer(weights Weights, opts ...Option) (*Scorer, error) {
	if err := weights.Validate(); err != nil {
		return nil, err
	}

	s := &Scorer{
		weights:     weights.Normalized(),
		roleWeights: DefaultRoleWeights(),
		window:      DefaultRecencyWindow,
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.window <= 0 {
		return nil, fmt.Errorf("recency window must be positive, got %v", s.window)
	}
	for role, w := range s.roleWeights {
		if w < 0 {
			return nil, fmt.Errorf("role weight for %q must be non-negative, got %v", role, w)
		}
	}

	return s, nil
}

// Score computes the importance of a record created at createdAt with the
// given role and optional explicit hint, evaluated against the current time.
//
// The result is always in [0, 1].
func (s *Scorer) Score(createdAt time.Time, role string, explicitHint *float64) float64 {
	return s.ScoreAt(createdAt, role, explicitHint, time.Now())
}

// ScoreAt is Score with an explicit evaluation time, for deterministic use.
//
// The algorithm:
//   - recency = max(0, 1 - age/window), a linear decay clamped at 0 for
//     anything older than the window
//   - role = configured per-role weight (unknown roles score 0.5)
//   - explicit = the hint if provided, else 0
//
// The final score is the weighted sum of the three components using the
// normalized weight triple, clamped to [0, 1].
func (s *Scorer) ScoreAt(createdAt time.Time, role string, explicitHint *float64, now time.Time) float64 {
	age := now.Sub(createdAt).Seconds()
	recency := 1 - age/s.window.Seconds()
	if recency < 0 {
		recency = 0
	}
	if recency > 1 {
		recency = 1
	}

	roleWeight, ok := s.roleWeights[role]
	if !ok {
		roleWeight = defaultUnknownRoleWeight
	}

	explicit := 0.0
	if explicitHint != nil {
		explicit = *explicitHint
	}

	score := recency*s.weights.Recency + roleWeight*s.weights.Role + explicit*s.weights.Explicit

	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}
