package gate

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Coverage scores. Only code that carries its own tests reaches the
// threshold.
const (
	CoverageThreshold   = 0.80
	coverageWithTests   = 0.85
	coverageWithoutTest = 0.60
)

// CoverageGate is a coarse coverage proxy: it looks for test functions or
// test classes in the generated code.
type CoverageGate struct{}

// NewCoverageGate creates a unit coverage gate.
func NewCoverageGate() *CoverageGate {
	return &CoverageGate{}
}

// Threshold returns the minimum passing score.
func (g *CoverageGate) Threshold() float64 {
	return CoverageThreshold
}

// Name returns the gate identifier.
func (g *CoverageGate) Name() string {
	return NameCoverage
}

// Run scores 0.85 when a test marker is present and 0.60 otherwise.
func (g *CoverageGate) Run(_ context.Context, code string, _ map[string]any) Result {
	start := time.Now()

	hasTests := strings.Contains(code, "def test_") || strings.Contains(code, "class Test")
	score := coverageWithoutTest
	if hasTests {
		score = coverageWithTests
	}

	return newResult(g.Name(), score, CoverageThreshold, map[string]any{
		"coverage_percent": percent(score),
		"threshold":        percent(CoverageThreshold),
		"has_tests":        hasTests,
		"message":          fmt.Sprintf("Coverage %.1f%%", percent(score)),
	}, start, 0)
}

func percent(score float64) float64 {
	return float64(int64(score*1000+0.5)) / 10
}
