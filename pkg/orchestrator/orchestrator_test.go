package orchestrator

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/zen-systems/flowengine/pkg/adapter"
	"github.com/zen-systems/flowengine/pkg/metrics"
)

type fakeProvider struct {
	name  string
	code  string
	cost  float64
	err   error
	delay time.Duration
	calls atomic.Int32
}

func (p *fakeProvider) Name() string  { return p.name }
func (p *fakeProvider) Model() string { return p.name + "-model" }

func (p *fakeProvider) Generate(ctx context.Context, prompt string, _ map[string]any) adapter.Result {
	p.calls.Add(1)
	start := time.Now()
	if p.delay > 0 {
		select {
		case <-ctx.Done():
			return adapter.NewFailure(p.name, p.Model(), ctx.Err(), time.Since(start))
		case <-time.After(p.delay):
		}
	}
	if p.err != nil {
		return adapter.NewFailure(p.name, p.Model(), p.err, time.Since(start))
	}
	code := p.code
	if code == "" {
		code = p.name + " code block"
	}
	return adapter.NewSuccess(p.name, p.Model(), code, adapter.Usage{InputTokens: 100, OutputTokens: 200}, p.cost, time.Since(start))
}

type panicProvider struct{}

func (panicProvider) Name() string  { return "panicky" }
func (panicProvider) Model() string { return "panicky-model" }
func (panicProvider) Generate(context.Context, string, map[string]any) adapter.Result {
	panic("boom")
}

// barrierProvider blocks until every barrier participant has started.
type barrierProvider struct {
	name    string
	started *sync.WaitGroup
}

func (p *barrierProvider) Name() string  { return p.name }
func (p *barrierProvider) Model() string { return "barrier" }
func (p *barrierProvider) Generate(ctx context.Context, _ string, _ map[string]any) adapter.Result {
	p.started.Done()
	done := make(chan struct{})
	go func() {
		p.started.Wait()
		close(done)
	}()
	select {
	case <-done:
		return adapter.NewSuccess(p.name, "barrier", "code", adapter.Usage{}, 0, 0)
	case <-ctx.Done():
		return adapter.NewFailure(p.name, "barrier", ctx.Err(), 0)
	}
}

var testRequest = Request{Family: "compliance", BlockType: "policy", Repo: "repo-1"}

func TestProvidersKeepsSubmissionOrder(t *testing.T) {
	o := New([]adapter.Provider{
		&fakeProvider{name: "google"},
		&fakeProvider{name: "anthropic"},
		&fakeProvider{name: "openai"},
	})
	assert.Equal(t, []string{"google", "anthropic", "openai"}, o.Providers())
	assert.Empty(t, New(nil).Providers())
}

func TestGenerateParallelPrefersPrimary(t *testing.T) {
	// The primary finishes last but still wins.
	primary := &fakeProvider{name: "anthropic", cost: 0.01, delay: 30 * time.Millisecond}
	openai := &fakeProvider{name: "openai", cost: 0.01}
	google := &fakeProvider{name: "google", cost: 0.01}

	report := New([]adapter.Provider{primary, openai, google}).GenerateParallel(context.Background(), testRequest)

	require.True(t, report.Success)
	assert.Equal(t, "anthropic", report.Winner)
	assert.Equal(t, "anthropic code block", report.Code)
	assert.ElementsMatch(t, []string{"anthropic", "openai", "google"}, report.Succeeded)
	assert.Empty(t, report.Failed)
	assert.InDelta(t, 0.03, report.TotalCost, 1e-9)
	assert.NotEmpty(t, report.ID)
	assert.Len(t, report.Results, 3)
	assert.Equal(t, "anthropic", report.Results[2].Provider, "results are in completion order")
}

func TestGenerateParallelFallsBackToFirstCompletedSuccess(t *testing.T) {
	primary := &fakeProvider{name: "anthropic", err: errors.New("invalid x-api-key")}
	openai := &fakeProvider{name: "openai", cost: 0.02}
	google := &fakeProvider{name: "google", cost: 0.01, delay: 50 * time.Millisecond}

	report := New([]adapter.Provider{primary, google, openai}).GenerateParallel(context.Background(), testRequest)

	require.True(t, report.Success)
	assert.Equal(t, "openai", report.Winner)
	assert.Equal(t, "openai-model", report.WinnerModel)
	assert.Contains(t, report.Failed, "anthropic")
	assert.InDelta(t, 0.03, report.TotalCost, 1e-9)
	assert.NoError(t, report.Err())
}

func TestGenerateParallelReportsTotalFailure(t *testing.T) {
	providers := []adapter.Provider{
		&fakeProvider{name: "anthropic", err: errors.New("anthropic down")},
		&fakeProvider{name: "openai", err: errors.New("openai down")},
		&fakeProvider{name: "google", err: errors.New("google down")},
	}

	report := New(providers).GenerateParallel(context.Background(), testRequest)

	assert.False(t, report.Success)
	assert.Empty(t, report.Code)
	assert.Empty(t, report.Winner)
	assert.Zero(t, report.TotalCost)
	assert.ElementsMatch(t, []string{"anthropic", "openai", "google"}, report.Failed)
	assert.Contains(t, report.Error, "all providers failed")
	for _, reason := range []string{"anthropic down", "openai down", "google down"} {
		assert.Contains(t, report.Error, reason)
	}

	err := report.Err()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAllProvidersFailed)
	var failed *AllProvidersFailedError
	require.ErrorAs(t, err, &failed)
	assert.Len(t, failed.Failures, 3)
}

func TestGenerateParallelStartsAllProvidersAtOnce(t *testing.T) {
	var started sync.WaitGroup
	started.Add(3)
	providers := []adapter.Provider{
		&barrierProvider{name: "a", started: &started},
		&barrierProvider{name: "b", started: &started},
		&barrierProvider{name: "c", started: &started},
	}

	o := New(providers, WithProviderTimeout(2*time.Second), WithPrimary("a"))
	report := o.GenerateParallel(context.Background(), testRequest)

	require.True(t, report.Success, report.Error)
	assert.Len(t, report.Succeeded, 3)
	assert.Equal(t, "a", report.Winner)
}

func TestGenerateParallelTimeoutIsOrdinaryFailure(t *testing.T) {
	slow := &fakeProvider{name: "anthropic", delay: time.Minute}
	fast := &fakeProvider{name: "openai", cost: 0.01}

	start := time.Now()
	report := New([]adapter.Provider{slow, fast}, WithProviderTimeout(20*time.Millisecond)).
		GenerateParallel(context.Background(), testRequest)

	assert.Less(t, time.Since(start), 10*time.Second)
	require.True(t, report.Success)
	assert.Equal(t, "openai", report.Winner)
	assert.Equal(t, []string{"anthropic"}, report.Failed)

	res, ok := report.Result("anthropic")
	require.True(t, ok)
	assert.True(t, res.Transient)
	assert.Zero(t, res.Cost)
}

func TestGenerateParallelRecoversProviderPanic(t *testing.T) {
	ok := &fakeProvider{name: "openai"}

	report := New([]adapter.Provider{panicProvider{}, ok}).GenerateParallel(context.Background(), testRequest)

	require.True(t, report.Success)
	res, found := report.Result("panicky")
	require.True(t, found)
	assert.Contains(t, res.Error, "provider panicked")
}

func TestGenerateParallelWithoutProviders(t *testing.T) {
	report := New(nil).GenerateParallel(context.Background(), testRequest)

	assert.False(t, report.Success)
	assert.Equal(t, "no providers configured", report.Error)
	assert.NotNil(t, report.Succeeded)
	assert.NotNil(t, report.Failed)
}

func TestGenerateParallelSendsSamePromptToEveryProvider(t *testing.T) {
	providers := []*fakeProvider{{name: "anthropic"}, {name: "openai"}, {name: "google"}}
	list := make([]adapter.Provider, 0, len(providers))
	for _, p := range providers {
		list = append(list, p)
	}

	New(list).GenerateParallel(context.Background(), testRequest)

	for _, p := range providers {
		assert.Equal(t, int32(1), p.calls.Load(), p.name)
	}
}

func TestGenerateParallelRecordsSpansAndMetrics(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	m := metrics.New(prometheus.NewRegistry())

	providers := []adapter.Provider{
		&fakeProvider{name: "anthropic"},
		&fakeProvider{name: "openai", err: errors.New("down")},
	}
	New(providers, WithTracer(tp.Tracer("test")), WithMetrics(m)).GenerateParallel(context.Background(), testRequest)

	names := map[string]int{}
	for _, s := range recorder.Ended() {
		names[s.Name()]++
	}
	assert.Equal(t, 1, names["orchestrator.generate_parallel"])
	assert.Equal(t, 2, names["provider.generate"])
}

func TestGenerateParallelWithMockAdapters(t *testing.T) {
	providers := []adapter.Provider{
		adapter.NewMockAdapter("anthropic", adapter.WithMockCost(adapter.Usage{InputTokens: 1}, 0.01)),
		adapter.NewMockAdapter("openai", adapter.WithMockCost(adapter.Usage{InputTokens: 1}, 0.02)),
		adapter.NewMockAdapter("google", adapter.WithMockError(errors.New("quota"))),
	}

	report := New(providers).GenerateParallel(context.Background(), testRequest)

	require.True(t, report.Success)
	assert.Equal(t, "anthropic", report.Winner)
	assert.InDelta(t, 0.03, report.TotalCost, 1e-9)
}
