package gate

import (
	"context"
	"fmt"
	"strings"
	"time"
)

const (
	MutationThreshold = 0.70
	mutationResilient = 0.75
	mutationFragile   = 0.60
	// minEdgeCaseBranches is the number of conditionals that counts as
	// edge-case handling.
	minEdgeCaseBranches = 3
)

// MutationGate estimates mutation resilience from assertions and branching.
type MutationGate struct{}

// NewMutationGate creates a mutation testing gate.
func NewMutationGate() *MutationGate {
	return &MutationGate{}
}

// Threshold returns the minimum passing score.
func (g *MutationGate) Threshold() float64 {
	return MutationThreshold
}

// Name returns the gate identifier.
func (g *MutationGate) Name() string {
	return NameMutation
}

// Run scores 0.75 when the code asserts and has at least three
// conditionals, 0.60 otherwise.
func (g *MutationGate) Run(_ context.Context, code string, _ map[string]any) Result {
	start := time.Now()

	hasAssertions := strings.Contains(code, "assert")
	branches := strings.Count(code, "if ")

	score := mutationFragile
	if hasAssertions && branches >= minEdgeCaseBranches {
		score = mutationResilient
	}

	return newResult(g.Name(), score, MutationThreshold, map[string]any{
		"mutation_score": percent(score),
		"threshold":      percent(MutationThreshold),
		"has_assertions": hasAssertions,
		"branches":       branches,
		"message":        fmt.Sprintf("Mutation score %.1f%%", percent(score)),
	}, start, 0)
}
