package adapter

import (
	"errors"
	"time"
)

// Usage captures token usage for one provider call.
type Usage struct {
	InputTokens  int64 `json:"input"`
	OutputTokens int64 `json:"output"`
	// Estimated is set when the provider did not report authoritative
	// counts and the numbers were approximated from text length.
	Estimated bool `json:"estimated,omitempty"`
}

// Total returns input plus output tokens.
func (u Usage) Total() int64 {
	return u.InputTokens + u.OutputTokens
}

// EstimateTokens approximates a token count as one token per four bytes.
func EstimateTokens(text string) int64 {
	return int64(len(text) / 4)
}

// EstimateUsage builds an estimated Usage from prompt and completion text.
func EstimateUsage(prompt, completion string) Usage {
	return Usage{
		InputTokens:  EstimateTokens(prompt),
		OutputTokens: EstimateTokens(completion),
		Estimated:    true,
	}
}

// Result is the outcome of calling one provider once.
//
// Build it with NewSuccess or NewFailure; they keep the success flag,
// failure reason and cost consistent.
type Result struct {
	Provider  string        `json:"provider"`
	Model     string        `json:"model"`
	Code      string        `json:"code,omitempty"`
	Duration  time.Duration `json:"duration"`
	Cost      float64       `json:"cost"`
	Usage     Usage         `json:"usage"`
	Error     string        `json:"error,omitempty"`
	Transient bool          `json:"transient,omitempty"`
}

// errEmptyResponse marks a call that returned no text.
var errEmptyResponse = errors.New("empty response")

// NewSuccess records a call that produced text. An empty text is recorded
// as a failure because it cannot be used as generated code.
func NewSuccess(provider, model, code string, usage Usage, cost float64, duration time.Duration) Result {
	if code == "" {
		return NewFailure(provider, model, errEmptyResponse, duration)
	}
	if cost < 0 {
		cost = 0
	}
	return Result{
		Provider: provider,
		Model:    model,
		Code:     code,
		Duration: duration,
		Cost:     cost,
		Usage:    usage,
	}
}

// NewFailure records a call that did not produce usable code. Failed
// calls carry no cost.
func NewFailure(provider, model string, err error, duration time.Duration) Result {
	if err == nil {
		err = errors.New("unknown failure")
	}
	return Result{
		Provider:  provider,
		Model:     model,
		Duration:  duration,
		Error:     err.Error(),
		Transient: IsTransient(err),
	}
}

// Success reports whether the call produced usable code.
func (r Result) Success() bool {
	return r.Error == "" && r.Code != ""
}

// Pricing holds per-million-token prices in USD.
type Pricing struct {
	InputPerMillion  float64 `json:"input_per_million" yaml:"input_per_million"`
	OutputPerMillion float64 `json:"output_per_million" yaml:"output_per_million"`
}

// Cost computes the USD cost of the given usage.
func (p Pricing) Cost(usage Usage) float64 {
	cost := float64(usage.InputTokens)/1_000_000*p.InputPerMillion +
		float64(usage.OutputTokens)/1_000_000*p.OutputPerMillion
	if cost < 0 {
		return 0
	}
	return cost
}

// Default pricing tables.
var (
	AnthropicPricing = Pricing{InputPerMillion: 3, OutputPerMillion: 15}
	OpenAIPricing    = Pricing{InputPerMillion: 10, OutputPerMillion: 30}
	GooglePricing    = Pricing{InputPerMillion: 0.5, OutputPerMillion: 1.5}
	DeepSeekPricing  = Pricing{InputPerMillion: 0.27, OutputPerMillion: 1.10}
)

// Default models.
const (
	DefaultAnthropicModel = "claude-sonnet-4-20250514"
	DefaultOpenAIModel    = "gpt-4-turbo-preview"
	DefaultGoogleModel    = "gemini-pro"
	DefaultDeepSeekModel  = "deepseek-coder"
	DefaultMockModel      = "mock-1"
)
