package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/zen-systems/flowengine/pkg/adapter"
	"github.com/zen-systems/flowengine/pkg/logging"
	"github.com/zen-systems/flowengine/pkg/metrics"
)

const (
	// DefaultPrimary is the provider preferred as winner whenever it succeeds.
	DefaultPrimary = adapter.ProviderAnthropic
	// DefaultProviderTimeout bounds a single provider call.
	DefaultProviderTimeout = 120 * time.Second

	tracerName = "github.com/zen-systems/flowengine/pkg/orchestrator"
)

// Orchestrator fans a generation prompt out to several providers at once.
type Orchestrator struct {
	providers []adapter.Provider
	primary   string
	timeout   time.Duration
	logger    *zap.Logger
	metrics   *metrics.Metrics
	tracer    trace.Tracer
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithPrimary sets the preferred provider.
func WithPrimary(name string) Option {
	return func(o *Orchestrator) {
		o.primary = name
	}
}

// WithProviderTimeout sets the per-call timeout. Zero disables it.
func WithProviderTimeout(timeout time.Duration) Option {
	return func(o *Orchestrator) {
		o.timeout = timeout
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = logging.OrNop(logger)
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Orchestrator) {
		o.metrics = m
	}
}

// WithTracer sets the tracer used for round and provider spans.
func WithTracer(tracer trace.Tracer) Option {
	return func(o *Orchestrator) {
		if tracer != nil {
			o.tracer = tracer
		}
	}
}

// New creates an Orchestrator over providers.
func New(providers []adapter.Provider, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		providers: append([]adapter.Provider{}, providers...),
		primary:   DefaultPrimary,
		timeout:   DefaultProviderTimeout,
		logger:    zap.NewNop(),
		tracer:    otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Providers returns the configured provider names in submission order.
func (o *Orchestrator) Providers() []string {
	names := make([]string, 0, len(o.providers))
	for _, p := range o.providers {
		names = append(names, p.Name())
	}
	return names
}

// GenerateParallel sends one shared prompt to every provider concurrently,
// waits for all of them, and aggregates the outcomes. A failing or slow
// provider never prevents the others' results from being collected, and
// the returned report is always complete.
func (o *Orchestrator) GenerateParallel(ctx context.Context, req Request) *Report {
	roundID := uuid.NewString()
	prompt := BuildPrompt(req.Family, req.BlockType, req.Repo)
	logger := o.logger.With(zap.String(logging.RoundKey, roundID))

	ctx, span := o.tracer.Start(ctx, "orchestrator.generate_parallel", trace.WithAttributes(
		attribute.String("flow.family", req.Family),
		attribute.String("flow.block_type", req.BlockType),
		attribute.String("flow.repo", req.Repo),
		attribute.Int("flow.providers", len(o.providers)),
	))
	defer span.End()

	start := time.Now()
	results := o.fanOut(ctx, prompt, req.Context, logger)
	report := NewReport(results, o.primary, time.Since(start))
	report.ID = roundID

	o.metrics.RecordRound(report.Success)
	span.SetAttributes(
		attribute.Bool("flow.success", report.Success),
		attribute.Float64("flow.total_cost", report.TotalCost),
	)
	if !report.Success {
		span.SetStatus(codes.Error, report.Error)
		logger.Error("generation round failed",
			zap.Strings("failed", report.Failed),
			zap.String("error", report.Error),
		)
		return report
	}

	logger.Info("generation round complete",
		zap.String("winner", report.Winner),
		zap.Strings("succeeded", report.Succeeded),
		zap.Strings("failed", report.Failed),
		zap.Int64(logging.DurationKey, report.Duration.Milliseconds()),
		zap.Float64(logging.CostKey, report.TotalCost),
	)
	return report
}

// fanOut runs every provider as its own task and returns the results in
// completion order. Tasks never return errors, so no task cancels another.
func (o *Orchestrator) fanOut(ctx context.Context, prompt string, genCtx map[string]any, logger *zap.Logger) []adapter.Result {
	if len(o.providers) == 0 {
		return nil
	}

	results := make(chan adapter.Result, len(o.providers))
	var g errgroup.Group
	g.SetLimit(len(o.providers))

	for _, p := range o.providers {
		p := p
		g.Go(func() error {
			results <- o.call(ctx, p, prompt, genCtx, logger)
			return nil
		})
	}

	_ = g.Wait()
	close(results)

	collected := make([]adapter.Result, 0, len(o.providers))
	for r := range results {
		collected = append(collected, r)
	}
	return collected
}

// call invokes one provider with its own timeout and converts a panic into
// a failed result.
func (o *Orchestrator) call(ctx context.Context, p adapter.Provider, prompt string, genCtx map[string]any, logger *zap.Logger) (result adapter.Result) {
	name := p.Name()
	ctx, span := o.tracer.Start(ctx, "provider.generate", trace.WithAttributes(
		attribute.String("provider.name", name),
		attribute.String("provider.model", p.Model()),
	))
	defer span.End()

	if o.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}

	start := time.Now()
	defer func() {
		if rec := recover(); rec != nil {
			result = adapter.NewFailure(name, p.Model(), fmt.Errorf("provider panicked: %v", rec), time.Since(start))
		}
		o.observe(span, result, logger)
	}()

	result = p.Generate(ctx, prompt, genCtx)
	if result.Provider == "" {
		result.Provider = name
	}
	return result
}

func (o *Orchestrator) observe(span trace.Span, r adapter.Result, logger *zap.Logger) {
	status := "success"
	switch {
	case r.Success():
	case r.Transient:
		status = "transient"
	default:
		status = "failure"
	}
	o.metrics.RecordProviderCall(r.Provider, status, r.Duration, r.Cost)

	span.SetAttributes(
		attribute.Bool("provider.success", r.Success()),
		attribute.Int64("provider.input_tokens", r.Usage.InputTokens),
		attribute.Int64("provider.output_tokens", r.Usage.OutputTokens),
		attribute.Bool("provider.tokens_estimated", r.Usage.Estimated),
		attribute.Float64("provider.cost", r.Cost),
	)

	fields := []zap.Field{
		zap.String(logging.ProviderKey, r.Provider),
		zap.String(logging.ModelKey, r.Model),
		zap.Int64(logging.DurationKey, r.Duration.Milliseconds()),
	}
	if !r.Success() {
		span.SetStatus(codes.Error, r.Error)
		logger.Warn("provider call failed", append(fields,
			zap.String("error", r.Error),
			zap.Bool("transient", r.Transient),
		)...)
		return
	}
	logger.Debug("provider call succeeded", append(fields,
		zap.Float64(logging.CostKey, r.Cost),
		zap.Int64("input_tokens", r.Usage.InputTokens),
		zap.Int64("output_tokens", r.Usage.OutputTokens),
		zap.Bool("tokens_estimated", r.Usage.Estimated),
	)...)
}
