package orchestrator

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/zen-systems/flowengine/pkg/adapter"
)

// ErrAllProvidersFailed is matched by the error of a round where no
// provider produced usable code.
var ErrAllProvidersFailed = errors.New("all providers failed")

// AllProvidersFailedError lists the failure reason of every provider.
type AllProvidersFailedError struct {
	Failures []adapter.Result
}

func (e *AllProvidersFailedError) Error() string {
	if len(e.Failures) == 0 {
		return "no providers configured"
	}
	parts := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		parts = append(parts, fmt.Sprintf("%s: %s", f.Provider, f.Error))
	}
	return fmt.Sprintf("%s: %s", ErrAllProvidersFailed, strings.Join(parts, "; "))
}

func (e *AllProvidersFailedError) Is(target error) bool {
	return target == ErrAllProvidersFailed
}

// Report is the aggregate result of one generation round.
type Report struct {
	ID          string           `json:"id"`
	Success     bool             `json:"success"`
	Code        string           `json:"code,omitempty"`
	Winner      string           `json:"winner,omitempty"`
	WinnerModel string           `json:"winner_model,omitempty"`
	Succeeded   []string         `json:"succeeded"`
	Failed      []string         `json:"failed"`
	Duration    time.Duration    `json:"duration"`
	TotalCost   float64          `json:"total_cost"`
	Results     []adapter.Result `json:"results"`
	Error       string           `json:"error,omitempty"`
}

// NewReport aggregates provider results, given in completion order, into a
// Report. The primary provider wins whenever it succeeded; otherwise the
// earliest completed success wins. elapsed is the wall-clock time of the
// whole round.
func NewReport(results []adapter.Result, primary string, elapsed time.Duration) *Report {
	report := &Report{
		Succeeded: []string{},
		Failed:    []string{},
		Duration:  elapsed,
		Results:   append([]adapter.Result{}, results...),
	}

	var winner *adapter.Result
	var failures []adapter.Result
	for i := range report.Results {
		r := &report.Results[i]
		if !r.Success() {
			report.Failed = append(report.Failed, r.Provider)
			failures = append(failures, *r)
			continue
		}
		report.Succeeded = append(report.Succeeded, r.Provider)
		report.TotalCost += r.Cost
		if winner == nil || (r.Provider == primary && winner.Provider != primary) {
			winner = r
		}
	}

	if winner == nil {
		report.TotalCost = 0
		report.Error = (&AllProvidersFailedError{Failures: failures}).Error()
		return report
	}

	report.Success = true
	report.Code = winner.Code
	report.Winner = winner.Provider
	report.WinnerModel = winner.Model
	return report
}

// Err returns an *AllProvidersFailedError when the round failed.
func (r *Report) Err() error {
	if r == nil || r.Success {
		return nil
	}
	var failures []adapter.Result
	for _, res := range r.Results {
		if !res.Success() {
			failures = append(failures, res)
		}
	}
	return &AllProvidersFailedError{Failures: failures}
}

// Result returns the audit record for provider, if it took part in the round.
func (r *Report) Result(provider string) (adapter.Result, bool) {
	if r == nil {
		return adapter.Result{}, false
	}
	for _, res := range r.Results {
		if res.Provider == provider {
			return res, true
		}
	}
	return adapter.Result{}, false
}
