package adapter

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// AnthropicAdapter implements the Provider interface for Claude models.
type AnthropicAdapter struct {
	apiKey  string
	model   string
	pricing Pricing
	opts    []option.RequestOption

	mu     sync.Mutex
	client *anthropic.Client
}

// NewAnthropicAdapter creates a new Anthropic adapter. The SDK client is
// built on first use; an empty apiKey surfaces as a failed Result.
func NewAnthropicAdapter(apiKey, model string, pricing Pricing, opts ...option.RequestOption) *AnthropicAdapter {
	if model == "" {
		model = DefaultAnthropicModel
	}
	return &AnthropicAdapter{apiKey: apiKey, model: model, pricing: pricing, opts: opts}
}

// Name returns the adapter identifier.
func (a *AnthropicAdapter) Name() string {
	return ProviderAnthropic
}

// Model returns the Claude model used for generation.
func (a *AnthropicAdapter) Model() string {
	return a.model
}

func (a *AnthropicAdapter) getClient() (*anthropic.Client, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.client != nil {
		return a.client, nil
	}
	if a.apiKey == "" {
		return nil, missingKey(a.Name())
	}
	opts := append([]option.RequestOption{option.WithMaxRetries(0), option.WithAPIKey(a.apiKey)}, a.opts...)
	client := anthropic.NewClient(opts...)
	a.client = &client
	return a.client, nil
}

// Generate sends a prompt to Claude and returns the outcome.
func (a *AnthropicAdapter) Generate(ctx context.Context, prompt string, _ map[string]any) Result {
	start := time.Now()

	client, err := a.getClient()
	if err != nil {
		return NewFailure(a.Name(), a.model, err, time.Since(start))
	}

	resp, err := client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(a.model),
		MaxTokens: maxOutputTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return NewFailure(a.Name(), a.model, classifyAnthropic(err), time.Since(start))
	}

	var content strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			content.WriteString(block.Text)
		}
	}

	usage := Usage{
		InputTokens:  resp.Usage.InputTokens,
		OutputTokens: resp.Usage.OutputTokens,
	}
	return NewSuccess(a.Name(), a.model, content.String(), usage, a.pricing.Cost(usage), time.Since(start))
}

func classifyAnthropic(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return &AdapterError{
			Provider: ProviderAnthropic,
			Status:   apiErr.StatusCode,
			Err:      fmt.Errorf("anthropic API error: %w", err),
		}
	}
	return fmt.Errorf("anthropic API error: %w", err)
}
