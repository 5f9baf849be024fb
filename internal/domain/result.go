package domain

import (
	"sort"
	"time"
)

// ResultType classifies the outcome of an aggregation cycle.
type ResultType string

// Aggregation outcome classes. The string values are part of the result
// contract consumed by the orchestration layer.
const (
	// ResultConsensus is emitted when disagreement is at or below the
	// configured threshold; the result collapses to a single answer.
	ResultConsensus ResultType = "Consensus"

	// ResultUncertainty is emitted when disagreement exceeds the
	// threshold; alternative positions are preserved.
	ResultUncertainty ResultType = "Disagreement"

	// ResultNoConsensus distinguishes "no valid feedback" from a
	// computed zero-confidence consensus.
	ResultNoConsensus ResultType = "No Consensus"

	// ResultError marks not-found and unsupported-type failures.
	ResultError ResultType = "Error"
)

// Supporter identifies one evaluator backing a position and the
// authority they contributed to it.
type Supporter struct {
	UserID    int64   `json:"user_id"`
	Username  string  `json:"username"`
	Authority float64 `json:"authority"`
}

// Position is one distinct stance within a task's feedback population.
// Key is the canonical form used for equality; Answer is the
// presentation form shown to consumers.
type Position struct {
	Key        string      `json:"key"`
	Answer     any         `json:"answer"`
	Weight     float64     `json:"weight"`
	Supporters []Supporter `json:"supporters,omitempty"`
}

// Aggregate is a handler's raw aggregation output: the consensus answer
// plus the weighted-position map the engine measures disagreement over.
// OK is false when no feedback carried the fields the handler requires;
// that case must stay distinguishable from an empty-but-successful
// aggregation.
type Aggregate struct {
	OK        bool
	Consensus any
	Positions map[string]Position
}

// WeightedPositions projects the position map to key -> weight for
// disagreement measurement.
func (a Aggregate) WeightedPositions() map[string]float64 {
	weights := make(map[string]float64, len(a.Positions))
	for key, pos := range a.Positions {
		weights[key] = pos.Weight
	}
	return weights
}

// TotalWeight sums the authority weight across all positions.
func (a Aggregate) TotalWeight() float64 {
	var total float64
	for _, pos := range a.Positions {
		total += pos.Weight
	}
	return total
}

// EvaluatorCount counts distinct supporters across all positions.
func (a Aggregate) EvaluatorCount() int {
	seen := make(map[int64]struct{})
	for _, pos := range a.Positions {
		for _, s := range pos.Supporters {
			seen[s.UserID] = struct{}{}
		}
	}
	return len(seen)
}

// Leading returns the highest-weighted position. Ties break on the
// lexically smaller key so aggregation stays deterministic.
func (a Aggregate) Leading() (Position, bool) {
	var best Position
	found := false
	for _, pos := range a.Positions {
		if !found || pos.Weight > best.Weight || (pos.Weight == best.Weight && pos.Key < best.Key) {
			best = pos
			found = true
		}
	}
	return best, found
}

// Ranked returns all positions ordered by descending weight, ties broken
// by key.
func (a Aggregate) Ranked() []Position {
	ranked := make([]Position, 0, len(a.Positions))
	for _, pos := range a.Positions {
		ranked = append(ranked, pos)
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Weight != ranked[j].Weight {
			return ranked[i].Weight > ranked[j].Weight
		}
		return ranked[i].Key < ranked[j].Key
	})
	return ranked
}

// NoValidFeedback is the distinguished Aggregate a handler returns when
// no feedback contains its required fields.
func NoValidFeedback() Aggregate { return Aggregate{OK: false} }

// AlternativePosition is a non-primary stance preserved in an
// uncertainty result, annotated with its supporters and support share.
type AlternativePosition struct {
	Answer         any         `json:"answer"`
	SupportPercent float64     `json:"support_percentage"`
	Supporters     []Supporter `json:"supporters,omitempty"`
}

// AggregationResult is the engine's final output for one aggregation
// cycle. Consensus-shaped results carry no Alternatives; uncertainty
// results must preserve every non-primary position so expert dissent is
// never silently erased.
type AggregationResult struct {
	ID     string     `json:"id"`
	TaskID int64      `json:"task_id"`
	Type   ResultType `json:"type"`

	PrimaryAnswer any     `json:"primary_answer,omitempty"`
	Confidence    float64 `json:"confidence_level"`
	Disagreement  float64 `json:"disagreement"`

	Alternatives []AlternativePosition `json:"alternative_positions,omitempty"`

	// Transparency metadata.
	EvaluatorCount int     `json:"evaluator_count"`
	TotalWeight    float64 `json:"total_authority_weight"`

	// Err describes error- and no-consensus-typed results.
	Err string `json:"error,omitempty"`

	ComputedAt time.Time `json:"computed_at"`
}

// IsConsensus reports whether the result collapsed to a single answer.
func (r AggregationResult) IsConsensus() bool { return r.Type == ResultConsensus }

// IsError reports whether the result carries a not-found or
// unsupported-type failure rather than an aggregation outcome.
func (r AggregationResult) IsError() bool { return r.Type == ResultError }
