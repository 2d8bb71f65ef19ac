package gate

import (
	"context"
	"fmt"
	"strings"
	"time"
)

const (
	SecurityThreshold = 1.0
	securityClean     = 1.0
	securityFlagged   = 0.5
)

// Issue descriptions reported by the security scan.
const (
	IssueEval          = "Dangerous eval() usage"
	IssueExec          = "Dangerous exec() usage"
	IssueSQLInjection  = "Potential SQL injection"
	IssueHardcodedCred = "Hardcoded password detected"
)

// SecurityGate is a textual scan for a fixed list of anti-patterns. It does
// no data-flow analysis.
type SecurityGate struct{}

// NewSecurityGate creates a security scan gate.
func NewSecurityGate() *SecurityGate {
	return &SecurityGate{}
}

// Threshold returns the minimum passing score.
func (g *SecurityGate) Threshold() float64 {
	return SecurityThreshold
}

// Name returns the gate identifier.
func (g *SecurityGate) Name() string {
	return NameSecurity
}

// Run passes only when no anti-pattern is found. Any finding scores 0.5
// regardless of how many there are.
func (g *SecurityGate) Run(_ context.Context, code string, _ map[string]any) Result {
	start := time.Now()

	issues := ScanSecurity(code)
	score := securityClean
	message := "No security issues"
	if len(issues) > 0 {
		score = securityFlagged
		message = fmt.Sprintf("Found %d security issues", len(issues))
	}

	return newResult(g.Name(), score, SecurityThreshold, map[string]any{
		"issues_found": len(issues),
		"issues":       issues,
		"message":      message,
	}, start, 0)
}

// ScanSecurity returns the anti-patterns found in code, in a fixed order.
func ScanSecurity(code string) []string {
	issues := []string{}
	lower := strings.ToLower(code)

	if strings.Contains(code, "eval(") {
		issues = append(issues, IssueEval)
	}
	if strings.Contains(code, "exec(") {
		issues = append(issues, IssueExec)
	}
	if strings.Contains(lower, "sql") && strings.Contains(code, "%") {
		issues = append(issues, IssueSQLInjection)
	}
	if strings.Contains(lower, "password") && strings.Contains(code, "=") && strings.Contains(code, `"`) {
		issues = append(issues, IssueHardcodedCred)
	}
	return issues
}
