package gate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/zen-systems/flowengine/pkg/adapter"
	"github.com/zen-systems/flowengine/pkg/logging"
	"github.com/zen-systems/flowengine/pkg/metrics"
	"go.uber.org/zap"
)

const (
	ReviewThreshold      = 0.70
	DefaultReviewTimeout = 60 * time.Second
	// defaultReviewScore is used when the reviewer omits a score.
	defaultReviewScore = 0.5
)

// Fallback reasons reported in the fallback_reason detail.
const (
	FallbackMissingCredential = "missing_credential"
	FallbackClientError       = "client_error"
	FallbackRemoteError       = "remote_error"
	FallbackMalformed         = "malformed_response"
)

// ErrMalformedReview is returned when a reviewer response cannot be used.
var ErrMalformedReview = errors.New("malformed review response")

// ReviewResponse is the raw answer from a remote reviewer.
type ReviewResponse struct {
	Text         string
	InputTokens  int64
	OutputTokens int64
}

// ReviewClient sends a review prompt to a remote model.
type ReviewClient interface {
	Review(ctx context.Context, prompt string) (ReviewResponse, error)
}

// ReviewClientFactory builds a ReviewClient from a credential.
type ReviewClientFactory func(apiKey string) (ReviewClient, error)

// ReviewGate scores code with a remote reviewer and falls back to
// HeuristicScore when the reviewer is unavailable or answers badly.
//
// A missing credential or a client that cannot be built puts the gate in
// heuristic mode for the rest of its life. A failed call only affects
// that call.
type ReviewGate struct {
	apiKey  string
	model   string
	timeout time.Duration
	pricing adapter.Pricing
	factory ReviewClientFactory
	logger  *zap.Logger
	metrics *metrics.Metrics

	mu       sync.Mutex
	client   ReviewClient
	degraded string
}

// ReviewOption configures a ReviewGate.
type ReviewOption func(*ReviewGate)

// WithReviewModel sets the reviewer model.
func WithReviewModel(model string) ReviewOption {
	return func(g *ReviewGate) {
		if model != "" {
			g.model = model
		}
	}
}

// WithReviewTimeout bounds each remote review call.
func WithReviewTimeout(d time.Duration) ReviewOption {
	return func(g *ReviewGate) {
		if d > 0 {
			g.timeout = d
		}
	}
}

// WithReviewLogger sets the logger.
func WithReviewLogger(l *zap.Logger) ReviewOption {
	return func(g *ReviewGate) { g.logger = logging.OrNop(l) }
}

// WithReviewMetrics records fallbacks on m.
func WithReviewMetrics(m *metrics.Metrics) ReviewOption {
	return func(g *ReviewGate) { g.metrics = m }
}

// WithReviewPricing overrides the per-million token prices.
func WithReviewPricing(p adapter.Pricing) ReviewOption {
	return func(g *ReviewGate) { g.pricing = p }
}

// WithReviewClientFactory replaces the default Anthropic client.
func WithReviewClientFactory(f ReviewClientFactory) ReviewOption {
	return func(g *ReviewGate) { g.factory = f }
}

// NewReviewGate creates the remote review gate. The client is built on the
// first Run.
func NewReviewGate(apiKey string, opts ...ReviewOption) *ReviewGate {
	g := &ReviewGate{
		apiKey:  apiKey,
		model:   adapter.DefaultAnthropicModel,
		timeout: DefaultReviewTimeout,
		pricing: adapter.AnthropicPricing,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.factory == nil {
		model := g.model
		g.factory = func(apiKey string) (ReviewClient, error) {
			return NewAnthropicReviewer(apiKey, model), nil
		}
	}
	return g
}

// Threshold returns the minimum passing score.
func (g *ReviewGate) Threshold() float64 {
	return ReviewThreshold
}

// Name returns the gate identifier.
func (g *ReviewGate) Name() string {
	return NameReview
}

// Degraded returns the reason the gate is in heuristic mode, or "".
func (g *ReviewGate) Degraded() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.degraded
}

// getClient returns the reviewer client, or nil and the reason the gate
// is degraded.
func (g *ReviewGate) getClient() (ReviewClient, string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.client != nil {
		return g.client, ""
	}
	if g.degraded != "" {
		return nil, g.degraded
	}
	if g.apiKey == "" {
		g.degraded = FallbackMissingCredential
		g.logger.Warn("review credential not set, using heuristic scoring")
		return nil, g.degraded
	}
	client, err := g.factory(g.apiKey)
	if err != nil || client == nil {
		if err == nil {
			err = errors.New("factory returned no client")
		}
		g.degraded = FallbackClientError
		g.logger.Warn("review client init failed, using heuristic scoring", zap.Error(err))
		return nil, g.degraded
	}
	g.client = client
	return g.client, ""
}

// Run reviews code remotely, or heuristically when that is not possible.
func (g *ReviewGate) Run(ctx context.Context, code string, _ map[string]any) Result {
	start := time.Now()

	client, reason := g.getClient()
	if client == nil {
		return g.heuristic(code, reason, nil, start)
	}

	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	resp, err := client.Review(callCtx, ReviewPrompt(code))
	if err != nil {
		g.logger.Warn("remote review failed, using heuristic scoring",
			zap.String(logging.ModelKey, g.model), zap.Error(err))
		return g.heuristic(code, FallbackRemoteError, err, start)
	}

	score, reasoning, err := parseReview(resp.Text)
	if err != nil {
		g.logger.Warn("remote review unusable, using heuristic scoring",
			zap.String(logging.ModelKey, g.model), zap.Error(err))
		return g.heuristic(code, FallbackMalformed, err, start)
	}

	usage := adapter.Usage{InputTokens: resp.InputTokens, OutputTokens: resp.OutputTokens}
	return newResult(g.Name(), score, ReviewThreshold, map[string]any{
		"score":     score,
		"reasoning": reasoning,
		"threshold": ReviewThreshold,
		"llm_model": g.model,
		"tokens": map[string]int64{
			"input":  usage.InputTokens,
			"output": usage.OutputTokens,
		},
		"message": fmt.Sprintf("LLM review score: %.2f - %s", score, reasoning),
	}, start, g.pricing.Cost(usage))
}

func (g *ReviewGate) heuristic(code, reason string, cause error, start time.Time) Result {
	g.metrics.RecordReviewFallback(reason)

	score, components := HeuristicScore(code)
	details := map[string]any{
		"score":           score,
		"components":      components,
		"threshold":       ReviewThreshold,
		"fallback":        true,
		"fallback_reason": reason,
		"message":         fmt.Sprintf("Heuristic review score: %.2f (fallback - LLM unavailable)", score),
	}
	if cause != nil {
		details["error"] = cause.Error()
	}
	return newResult(g.Name(), score, ReviewThreshold, details, start, 0)
}

// ReviewPrompt builds the rubric prompt for code.
func ReviewPrompt(code string) string {
	return fmt.Sprintf(`You are a code quality reviewer. Review the following Python code and provide a quality score from 0 to 1.

Code to review:
`+"```python"+`
%s
`+"```"+`

Evaluate based on:
1. Code structure and organization (30%%)
2. Error handling and validation (25%%)
3. Code clarity and readability (20%%)
4. Performance and efficiency (15%%)
5. Best practices adherence (10%%)

Respond with ONLY a JSON object in this exact format:
{"score": 0.85, "reasoning": "Brief explanation of the score"}

Do not include any other text, markdown formatting, or code blocks. Just the JSON object.`, code)
}

// parseReview extracts score and reasoning from a reviewer answer. The
// answer may be wrapped in a single ``` or ```json fence.
func parseReview(text string) (float64, string, error) {
	text = stripFence(strings.TrimSpace(text))

	var payload map[string]any
	if err := json.Unmarshal([]byte(text), &payload); err != nil {
		return 0, "", fmt.Errorf("%w: %v", ErrMalformedReview, err)
	}

	score := defaultReviewScore
	if raw, ok := payload["score"]; ok && raw != nil {
		v, err := toFloat(raw)
		if err != nil {
			return 0, "", fmt.Errorf("%w: score: %v", ErrMalformedReview, err)
		}
		score = v
	}
	if math.IsNaN(score) || math.IsInf(score, 0) || score < 0 || score > 1 {
		return 0, "", fmt.Errorf("%w: score %v out of range", ErrMalformedReview, score)
	}

	reasoning := "No reasoning provided"
	if s, ok := payload["reasoning"].(string); ok {
		reasoning = s
	}
	return score, reasoning, nil
}

// stripFence unwraps one level of ``` fencing and drops any language tag
// on the opening line.
func stripFence(text string) string {
	_, after, ok := strings.Cut(text, "```")
	if !ok {
		return text
	}
	body, _, _ := strings.Cut(after, "```")
	if tag, rest, ok := strings.Cut(body, "\n"); ok && !strings.Contains(tag, "{") {
		body = rest
	}
	return strings.TrimSpace(body)
}

func toFloat(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case string:
		return strconv.ParseFloat(strings.TrimSpace(n), 64)
	default:
		return 0, fmt.Errorf("unexpected type %T", v)
	}
}
