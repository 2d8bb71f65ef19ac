package pipeline

import (
	"fmt"
	"time"

	"github.com/zen-systems/flowengine/pkg/gate"
)

// Report aggregates one pass of every gate over one code sample.
type Report struct {
	ID            string        `json:"id"`
	TotalGates    int           `json:"total_gates"`
	PassedGates   int           `json:"passed_gates"`
	FailedGates   int           `json:"failed_gates"`
	Gates         []gate.Result `json:"gates"`
	TotalDuration time.Duration `json:"total_duration"`
	TotalCost     float64       `json:"total_cost"`
	AllPassed     bool          `json:"all_passed"`
	SuccessRate   float64       `json:"success_rate"`
}

// NewReport computes the aggregates from gate results in execution order.
func NewReport(results []gate.Result) *Report {
	r := &Report{
		TotalGates: len(results),
		Gates:      append([]gate.Result{}, results...),
	}
	for _, res := range results {
		r.TotalDuration += res.Duration
		r.TotalCost += res.Cost
		if res.Passed {
			r.PassedGates++
		} else {
			r.FailedGates++
		}
	}
	r.AllPassed = r.TotalGates > 0 && r.PassedGates == r.TotalGates
	if r.TotalGates > 0 {
		r.SuccessRate = float64(r.PassedGates) / float64(r.TotalGates)
	}
	return r
}

// Summary returns "<passed>/<total> gates passed".
func (r *Report) Summary() string {
	return fmt.Sprintf("%d/%d gates passed", r.PassedGates, r.TotalGates)
}

// Gate returns the result for the named gate.
func (r *Report) Gate(name string) (gate.Result, bool) {
	for _, res := range r.Gates {
		if res.Name == name {
			return res, true
		}
	}
	return gate.Result{}, false
}
