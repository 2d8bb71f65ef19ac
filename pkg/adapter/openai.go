package adapter

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// OpenAIAdapter implements the Provider interface for OpenAI models.
type OpenAIAdapter struct {
	apiKey  string
	model   string
	pricing Pricing
	opts    []option.RequestOption

	mu     sync.Mutex
	client *openai.Client
}

// NewOpenAIAdapter creates a new OpenAI adapter with a lazily built client.
func NewOpenAIAdapter(apiKey, model string, pricing Pricing, opts ...option.RequestOption) *OpenAIAdapter {
	if model == "" {
		model = DefaultOpenAIModel
	}
	return &OpenAIAdapter{apiKey: apiKey, model: model, pricing: pricing, opts: opts}
}

// Name returns the adapter identifier.
func (a *OpenAIAdapter) Name() string {
	return ProviderOpenAI
}

// Model returns the OpenAI model used for generation.
func (a *OpenAIAdapter) Model() string {
	return a.model
}

func (a *OpenAIAdapter) getClient() (*openai.Client, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.client != nil {
		return a.client, nil
	}
	if a.apiKey == "" {
		return nil, missingKey(a.Name())
	}
	opts := append([]option.RequestOption{option.WithMaxRetries(0), option.WithAPIKey(a.apiKey)}, a.opts...)
	client := openai.NewClient(opts...)
	a.client = &client
	return a.client, nil
}

// Generate sends a prompt to OpenAI and returns the outcome.
func (a *OpenAIAdapter) Generate(ctx context.Context, prompt string, _ map[string]any) Result {
	start := time.Now()

	client, err := a.getClient()
	if err != nil {
		return NewFailure(a.Name(), a.model, err, time.Since(start))
	}

	resp, err := client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(a.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
		MaxCompletionTokens: openai.Int(maxOutputTokens),
		Temperature:         openai.Float(0.7),
	})
	if err != nil {
		return NewFailure(a.Name(), a.model, classifyOpenAI(err), time.Since(start))
	}

	if len(resp.Choices) == 0 {
		return NewFailure(a.Name(), a.model, fmt.Errorf("openai returned no choices"), time.Since(start))
	}

	usage := Usage{
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
	}
	content := resp.Choices[0].Message.Content
	return NewSuccess(a.Name(), a.model, content, usage, a.pricing.Cost(usage), time.Since(start))
}

func classifyOpenAI(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return &AdapterError{
			Provider: ProviderOpenAI,
			Status:   apiErr.StatusCode,
			Err:      fmt.Errorf("openai API error: %w", err),
		}
	}
	return fmt.Errorf("openai API error: %w", err)
}
