package adapter

import (
	"context"
	"fmt"
	"time"
)

// MockCode is the sample block returned by a default MockAdapter.
const MockCode = `def process_block(data: dict) -> dict:
    """Process a block of input data."""
    if not data:
        raise ValueError("Data cannot be empty")

    try:
        result = {"processed": True, "data": data}
        assert result is not None
        return result
    except Exception as exc:
        raise RuntimeError(f"Processing failed: {exc}")
`

// MockAdapter returns deterministic responses for local runs and tests.
type MockAdapter struct {
	name     string
	response string
	err      error
	delay    time.Duration
	usage    Usage
	cost     float64
}

// MockOption configures a MockAdapter.
type MockOption func(*MockAdapter)

// WithMockResponse sets the generated text.
func WithMockResponse(response string) MockOption {
	return func(a *MockAdapter) { a.response = response }
}

// WithMockError makes every call fail with err.
func WithMockError(err error) MockOption {
	return func(a *MockAdapter) { a.err = err }
}

// WithMockDelay delays every call, honoring context cancellation.
func WithMockDelay(d time.Duration) MockOption {
	return func(a *MockAdapter) { a.delay = d }
}

// WithMockCost sets the usage and cost reported on success.
func WithMockCost(usage Usage, cost float64) MockOption {
	return func(a *MockAdapter) {
		a.usage = usage
		a.cost = cost
	}
}

// NewMockAdapter creates a mock adapter. An empty name defaults to "mock".
func NewMockAdapter(name string, opts ...MockOption) *MockAdapter {
	if name == "" {
		name = ProviderMock
	}
	a := &MockAdapter{name: name, response: MockCode}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Name returns the adapter identifier.
func (a *MockAdapter) Name() string {
	return a.name
}

// Model returns the mock model name.
func (a *MockAdapter) Model() string {
	return DefaultMockModel
}

// Generate returns the configured response or failure.
func (a *MockAdapter) Generate(ctx context.Context, prompt string, _ map[string]any) Result {
	start := time.Now()
	if a.delay > 0 {
		timer := time.NewTimer(a.delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return NewFailure(a.name, DefaultMockModel, fmt.Errorf("mock call interrupted: %w", ctx.Err()), time.Since(start))
		case <-timer.C:
		}
	}
	if a.err != nil {
		return NewFailure(a.name, DefaultMockModel, a.err, time.Since(start))
	}
	usage := a.usage
	if usage == (Usage{}) {
		usage = EstimateUsage(prompt, a.response)
	}
	return NewSuccess(a.name, DefaultMockModel, a.response, usage, a.cost, time.Since(start))
}
