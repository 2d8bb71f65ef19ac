package gate

import (
	"context"
	"math"
	"time"
)

// Gate defines the interface for quality gates.
//
// Run never fails: every outcome, including a degraded one, is expressed
// as a Result.
type Gate interface {
	// Run evaluates code against the gate's criteria.
	Run(ctx context.Context, code string, genCtx map[string]any) Result

	// Name returns the gate identifier.
	Name() string
}

// Gate identifiers, in pipeline order.
const (
	NameContract = "contract_validation"
	NameCoverage = "unit_coverage"
	NameMutation = "mutation_testing"
	NameSecurity = "security_scan"
	NameReview   = "llm_review"
)

// Result contains the outcome of one gate on one code sample.
type Result struct {
	Name      string         `json:"name"`
	Passed    bool           `json:"passed"`
	Score     float64        `json:"score"`
	Threshold float64        `json:"threshold"`
	Details   map[string]any `json:"details"`
	Duration  time.Duration  `json:"duration"`
	Cost      float64        `json:"cost"`
}

// newResult derives Passed from score and threshold so the two can never
// disagree. Scores are clamped to [0, 1].
func newResult(name string, score, threshold float64, details map[string]any, start time.Time, cost float64) Result {
	score = clampScore(score)
	if details == nil {
		details = map[string]any{}
	}
	if cost < 0 {
		cost = 0
	}
	return Result{
		Name:      name,
		Passed:    score >= threshold,
		Score:     score,
		Threshold: threshold,
		Details:   details,
		Duration:  time.Since(start),
		Cost:      cost,
	}
}

// Thresholder is implemented by gates that expose their pass threshold.
type Thresholder interface {
	Threshold() float64
}

// ThresholdOf returns g's threshold, or 1 when g does not report one.
func ThresholdOf(g Gate) float64 {
	if t, ok := g.(Thresholder); ok && t.Threshold() > 0 {
		return t.Threshold()
	}
	return 1
}

// Failed builds a zero-score result for a gate that could not evaluate.
// threshold must be positive for the result to fail.
func Failed(name string, threshold float64, err error, start time.Time) Result {
	return newResult(name, 0, threshold, map[string]any{
		"error":   err.Error(),
		"message": "gate evaluation failed",
	}, start, 0)
}

func clampScore(score float64) float64 {
	if math.IsNaN(score) || score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}
