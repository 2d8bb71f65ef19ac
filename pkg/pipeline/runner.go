package pipeline

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

	"github.com/zen-systems/flowengine/pkg/adapter"
	"github.com/zen-systems/flowengine/pkg/config"
	"github.com/zen-systems/flowengine/pkg/gate"
	"github.com/zen-systems/flowengine/pkg/logging"
	"github.com/zen-systems/flowengine/pkg/metrics"
)

const tracerName = "github.com/zen-systems/flowengine/pkg/pipeline"

// Runner evaluates code against a fixed, ordered list of gates.
type Runner struct {
	gates   []gate.Gate
	logger  *zap.Logger
	metrics *metrics.Metrics
	tracer  trace.Tracer
}

// Option configures a Runner.
type Option func(*Runner)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(r *Runner) {
		r.logger = logging.OrNop(logger)
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Runner) {
		r.metrics = m
	}
}

// WithTracer sets the tracer used for run and gate spans.
func WithTracer(tracer trace.Tracer) Option {
	return func(r *Runner) {
		if tracer != nil {
			r.tracer = tracer
		}
	}
}

// NewRunner assembles contract validation, unit coverage, mutation testing
// and security scan, followed by review.
func NewRunner(review gate.Gate, opts ...Option) *Runner {
	return newRunner(standardGates(review), opts...)
}

func standardGates(review gate.Gate) []gate.Gate {
	return []gate.Gate{
		gate.NewContractGate(),
		gate.NewCoverageGate(),
		gate.NewMutationGate(),
		gate.NewSecurityGate(),
		review,
	}
}

func newRunner(gates []gate.Gate, opts ...Option) *Runner {
	r := &Runner{
		gates:  gates,
		logger: zap.NewNop(),
		tracer: otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// DefaultRunner builds a Runner whose reviewer uses the Anthropic
// credential, model and timeout from cfg.
func DefaultRunner(cfg *config.Config, opts ...Option) *Runner {
	r := newRunner(nil, opts...)
	review := gate.NewReviewGate(cfg.AnthropicAPIKey,
		gate.WithReviewModel(cfg.ResolveModel(cfg.ReviewModel)),
		gate.WithReviewTimeout(cfg.ReviewTimeout),
		gate.WithReviewPricing(cfg.PricingFor(adapter.ProviderAnthropic)),
		gate.WithReviewLogger(r.logger.Named("review")),
		gate.WithReviewMetrics(r.metrics),
	)
	r.gates = standardGates(review)
	return r
}

// Gates returns the gate names in execution order.
func (r *Runner) Gates() []string {
	names := make([]string, 0, len(r.gates))
	for _, g := range r.gates {
		names = append(names, g.Name())
	}
	return names
}

// RunAll evaluates code with every gate in order. A failing gate never
// stops the run, so the report always covers all gates.
func (r *Runner) RunAll(ctx context.Context, code string, genCtx map[string]any) *Report {
	runID := uuid.NewString()
	logger := r.logger.With(zap.String(logging.RunKey, runID))

	ctx, span := r.tracer.Start(ctx, "pipeline.run_all", trace.WithAttributes(
		attribute.Int("pipeline.gates", len(r.gates)),
		attribute.Int("pipeline.code_bytes", len(code)),
	))
	defer span.End()

	results := make([]gate.Result, 0, len(r.gates))
	for _, g := range r.gates {
		results = append(results, r.runGate(ctx, g, code, genCtx, logger))
	}

	report := NewReport(results)
	report.ID = runID

	span.SetAttributes(
		attribute.Int("pipeline.passed", report.PassedGates),
		attribute.Bool("pipeline.all_passed", report.AllPassed),
		attribute.Float64("pipeline.total_cost", report.TotalCost),
	)
	logger.Info("quality gates complete",
		zap.String("summary", report.Summary()),
		zap.Bool("all_passed", report.AllPassed),
		zap.Int64(logging.DurationKey, report.TotalDuration.Milliseconds()),
		zap.Float64(logging.CostKey, report.TotalCost),
	)
	return report
}

// runGate evaluates one gate, converting a panic into a failed result.
func (r *Runner) runGate(ctx context.Context, g gate.Gate, code string, genCtx map[string]any, logger *zap.Logger) (result gate.Result) {
	name := g.Name()
	ctx, span := r.tracer.Start(ctx, "gate.run", trace.WithAttributes(
		attribute.String("gate.name", name),
	))
	defer span.End()

	start := time.Now()
	defer func() {
		if rec := recover(); rec != nil {
			result = gate.Failed(name, gate.ThresholdOf(g), fmt.Errorf("gate panicked: %v", rec), start)
		}
		if result.Name == "" {
			result.Name = name
		}
		r.observe(span, result, logger)
	}()

	return g.Run(ctx, code, genCtx)
}

func (r *Runner) observe(span trace.Span, res gate.Result, logger *zap.Logger) {
	r.metrics.RecordGate(res.Name, res.Passed, res.Score)

	span.SetAttributes(
		attribute.Bool("gate.passed", res.Passed),
		attribute.Float64("gate.score", res.Score),
		attribute.Float64("gate.cost", res.Cost),
	)
	if !res.Passed {
		span.SetStatus(codes.Error, "gate failed")
	}

	logger.Debug("gate evaluated",
		zap.String(logging.GateKey, res.Name),
		zap.Bool("passed", res.Passed),
		zap.Float64("score", res.Score),
		zap.Float64("threshold", res.Threshold),
		zap.Int64(logging.DurationKey, res.Duration.Milliseconds()),
		zap.Float64(logging.CostKey, res.Cost),
	)
}
