package gate

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zen-systems/flowengine/pkg/adapter"
	"github.com/zen-systems/flowengine/pkg/metrics"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type reply struct {
	resp ReviewResponse
	err  error
}

// scriptedClient returns its replies in order and repeats the last one.
type scriptedClient struct {
	mu      sync.Mutex
	replies []reply
	prompts []string
}

func (c *scriptedClient) Review(_ context.Context, prompt string) (ReviewResponse, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.prompts = append(c.prompts, prompt)
	r := c.replies[0]
	if len(c.replies) > 1 {
		c.replies = c.replies[1:]
	}
	return r.resp, r.err
}

func staticFactory(client ReviewClient, calls *int) ReviewClientFactory {
	return func(string) (ReviewClient, error) {
		*calls++
		return client, nil
	}
}

func textReply(text string) reply {
	return reply{resp: ReviewResponse{Text: text, InputTokens: 1000, OutputTokens: 2000}}
}

func TestReviewGateRemoteScore(t *testing.T) {
	client := &scriptedClient{replies: []reply{textReply(`{"score": 0.9, "reasoning": "clean"}`)}}
	var calls int
	g := NewReviewGate("key", WithReviewClientFactory(staticFactory(client, &calls)))

	r := g.Run(context.Background(), adapter.MockCode, nil)

	assert.Equal(t, NameReview, r.Name)
	assert.True(t, r.Passed)
	assert.InDelta(t, 0.9, r.Score, 1e-9)
	assert.InDelta(t, 0.003+0.03, r.Cost, 1e-12)
	assert.Equal(t, "clean", r.Details["reasoning"])
	assert.Equal(t, adapter.DefaultAnthropicModel, r.Details["llm_model"])
	assert.Equal(t, map[string]int64{"input": 1000, "output": 2000}, r.Details["tokens"])
	assert.NotContains(t, r.Details, "fallback")
	require.Len(t, client.prompts, 1)
	assert.Contains(t, client.prompts[0], adapter.MockCode)
	assert.Contains(t, client.prompts[0], "Code structure and organization (30%)")
	assert.Equal(t, 1, calls)
}

func TestReviewGateWithoutCredentialUsesHeuristic(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	reg := prometheus.NewRegistry()
	var calls int
	g := NewReviewGate("",
		WithReviewLogger(zap.New(core)),
		WithReviewMetrics(metrics.New(reg)),
		WithReviewClientFactory(staticFactory(&scriptedClient{}, &calls)),
	)

	first := g.Run(context.Background(), adapter.MockCode, nil)
	second := g.Run(context.Background(), adapter.MockCode, nil)

	for _, r := range []Result{first, second} {
		assert.Zero(t, r.Cost)
		assert.Equal(t, true, r.Details["fallback"])
		assert.Equal(t, FallbackMissingCredential, r.Details["fallback_reason"])
		assert.InDelta(t, 0.94, r.Score, 1e-9)
		assert.True(t, r.Passed)
	}
	assert.Zero(t, calls)
	assert.Equal(t, 1, logs.Len())
	assert.Equal(t, FallbackMissingCredential, g.Degraded())

	expected := `
# HELP flowengine_review_fallbacks_total Reviews answered by the heuristic scorer
# TYPE flowengine_review_fallbacks_total counter
flowengine_review_fallbacks_total{reason="missing_credential"} 2
`
	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "flowengine_review_fallbacks_total"))
}

func TestReviewGateClientInitFailureIsSticky(t *testing.T) {
	var calls int
	g := NewReviewGate("key", WithReviewClientFactory(func(string) (ReviewClient, error) {
		calls++
		return nil, errors.New("bad proxy settings")
	}))

	for i := 0; i < 3; i++ {
		r := g.Run(context.Background(), adapter.MockCode, nil)
		assert.Equal(t, FallbackClientError, r.Details["fallback_reason"])
	}
	assert.Equal(t, 1, calls)
}

func TestReviewGateMalformedResponseFallsBackOnce(t *testing.T) {
	client := &scriptedClient{replies: []reply{
		textReply("I think this code is quite good."),
		textReply(`{"score": 0.8, "reasoning": "ok"}`),
	}}
	var calls int
	g := NewReviewGate("key", WithReviewClientFactory(staticFactory(client, &calls)))

	first := g.Run(context.Background(), adapter.MockCode, nil)
	assert.Equal(t, true, first.Details["fallback"])
	assert.Equal(t, FallbackMalformed, first.Details["fallback_reason"])
	assert.Zero(t, first.Cost)

	second := g.Run(context.Background(), adapter.MockCode, nil)
	assert.NotContains(t, second.Details, "fallback")
	assert.InDelta(t, 0.8, second.Score, 1e-9)
	assert.Empty(t, g.Degraded())
}

func TestReviewGateRemoteErrorFallsBack(t *testing.T) {
	client := &scriptedClient{replies: []reply{{err: errors.New("overloaded")}}}
	var calls int
	g := NewReviewGate("key", WithReviewClientFactory(staticFactory(client, &calls)))

	r := g.Run(context.Background(), adapter.MockCode, nil)

	assert.Equal(t, FallbackRemoteError, r.Details["fallback_reason"])
	assert.Equal(t, "overloaded", r.Details["error"])
	assert.Empty(t, g.Degraded())
}

type blockingClient struct{}

func (blockingClient) Review(ctx context.Context, _ string) (ReviewResponse, error) {
	<-ctx.Done()
	return ReviewResponse{}, ctx.Err()
}

func TestReviewGateTimeoutFallsBack(t *testing.T) {
	var calls int
	g := NewReviewGate("key",
		WithReviewTimeout(10*time.Millisecond),
		WithReviewClientFactory(staticFactory(blockingClient{}, &calls)),
	)

	r := g.Run(context.Background(), adapter.MockCode, nil)
	assert.Equal(t, FallbackRemoteError, r.Details["fallback_reason"])
	assert.Less(t, r.Duration, 5*time.Second)
}

func TestParseReview(t *testing.T) {
	tests := []struct {
		name      string
		text      string
		score     float64
		reasoning string
		wantErr   bool
	}{
		{"plain", `{"score": 0.72, "reasoning": "fine"}`, 0.72, "fine", false},
		{"json fence", "```json\n{\"score\": 0.6, \"reasoning\": \"meh\"}\n```", 0.6, "meh", false},
		{"bare fence", "Here you go:\n```\n{\"score\": 1, \"reasoning\": \"great\"}\n```", 1, "great", false},
		{"upper-case tag", "```JSON\n{\"score\": 0.4, \"reasoning\": \"thin\"}\n```", 0.4, "thin", false},
		{"other tag", "```python\n{\"score\": 0.8, \"reasoning\": \"fine\"}\n```", 0.8, "fine", false},
		{"single-line fence", "```{\"score\": 0.3, \"reasoning\": \"weak\"}```", 0.3, "weak", false},
		{"missing score", `{"reasoning": "no number"}`, 0.5, "no number", false},
		{"missing reasoning", `{"score": 0.3}`, 0.3, "No reasoning provided", false},
		{"string score", `{"score": "0.75"}`, 0.75, "No reasoning provided", false},
		{"out of range", `{"score": 1.5}`, 0, "", true},
		{"negative", `{"score": -0.1}`, 0, "", true},
		{"not json", "great code", 0, "", true},
		{"bad score type", `{"score": [1]}`, 0, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			score, reasoning, err := parseReview(tt.text)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrMalformedReview)
				return
			}
			require.NoError(t, err)
			assert.InDelta(t, tt.score, score, 1e-9)
			assert.Equal(t, tt.reasoning, reasoning)
		})
	}
}

func TestAnthropicReviewer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "msg_1",
			"type": "message",
			"role": "assistant",
			"model": "claude-sonnet-4-20250514",
			"content": [{"type": "text", "text": " {\"score\": 0.9, \"reasoning\": \"ok\"} "}],
			"stop_reason": "end_turn",
			"usage": {"input_tokens": 12, "output_tokens": 7}
		}`))
	}))
	defer srv.Close()

	reviewer := NewAnthropicReviewer("key", adapter.DefaultAnthropicModel, option.WithBaseURL(srv.URL))
	resp, err := reviewer.Review(context.Background(), "review this")

	require.NoError(t, err)
	assert.Equal(t, `{"score": 0.9, "reasoning": "ok"}`, resp.Text)
	assert.Equal(t, int64(12), resp.InputTokens)
	assert.Equal(t, int64(7), resp.OutputTokens)
}

func TestAnthropicReviewerCallsOnceOnServerError(t *testing.T) {
	var hits int32
	var mu sync.Mutex
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		hits++
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"type":"error","error":{"type":"overloaded_error","message":"overloaded"}}`))
	}))
	defer srv.Close()

	reviewer := NewAnthropicReviewer("key", adapter.DefaultAnthropicModel, option.WithBaseURL(srv.URL))
	_, err := reviewer.Review(context.Background(), "review this")

	require.Error(t, err)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, int32(1), hits)
}
