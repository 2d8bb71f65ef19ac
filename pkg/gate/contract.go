package gate

import (
	"context"
	"strings"
	"time"
)

// ContractThreshold is the fraction of contract checks that must hold.
const ContractThreshold = 0.75

// ContractGate checks generated code for the elements of a usable
// contract: docstrings, type annotations, error handling and validation.
type ContractGate struct{}

// NewContractGate creates a contract validation gate.
func NewContractGate() *ContractGate {
	return &ContractGate{}
}

// Threshold returns the minimum passing score.
func (g *ContractGate) Threshold() float64 {
	return ContractThreshold
}

// Name returns the gate identifier.
func (g *ContractGate) Name() string {
	return NameContract
}

// Run scores the fraction of the four contract checks that hold.
func (g *ContractGate) Run(_ context.Context, code string, _ map[string]any) Result {
	start := time.Now()

	checks := map[string]bool{
		"has_docstrings":     hasDocstring(code),
		"has_type_hints":     strings.Contains(code, ": ") && strings.Contains(code, "->"),
		"has_error_handling": strings.Contains(code, "try:") || strings.Contains(code, "except"),
		"has_validation":     strings.Contains(code, "if ") || strings.Contains(code, "assert"),
	}

	held := 0
	for _, ok := range checks {
		if ok {
			held++
		}
	}
	score := float64(held) / float64(len(checks))

	message := "Contract validation failed"
	if score >= ContractThreshold {
		message = "Contract validation passed"
	}
	return newResult(g.Name(), score, ContractThreshold, map[string]any{
		"checks":    checks,
		"threshold": ContractThreshold,
		"message":   message,
	}, start, 0)
}

func hasDocstring(code string) bool {
	return strings.Contains(code, `"""`) || strings.Contains(code, "'''")
}
