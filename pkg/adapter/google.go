package adapter

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"google.golang.org/genai"
)

// GoogleAdapter implements the Provider interface for Gemini models.
//
// The Gemini call path does not feed usage back into cost reporting;
// token counts are estimated from text length and flagged as such.
type GoogleAdapter struct {
	apiKey  string
	model   string
	pricing Pricing
	http    genai.HTTPOptions

	mu     sync.Mutex
	client *genai.Client
}

// NewGoogleAdapter creates a new Google Gemini adapter.
func NewGoogleAdapter(apiKey, model string, pricing Pricing) *GoogleAdapter {
	if model == "" {
		model = DefaultGoogleModel
	}
	return &GoogleAdapter{apiKey: apiKey, model: model, pricing: pricing}
}

// WithHTTPOptions overrides the transport settings of the Gemini client,
// such as its base URL. It must be called before the first Generate.
func (a *GoogleAdapter) WithHTTPOptions(opts genai.HTTPOptions) *GoogleAdapter {
	a.http = opts
	return a
}

// Name returns the adapter identifier.
func (a *GoogleAdapter) Name() string {
	return ProviderGoogle
}

// Model returns the Gemini model used for generation.
func (a *GoogleAdapter) Model() string {
	return a.model
}

func (a *GoogleAdapter) getClient(ctx context.Context) (*genai.Client, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.client != nil {
		return a.client, nil
	}
	if a.apiKey == "" {
		return nil, missingKey(a.Name())
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      a.apiKey,
		Backend:     genai.BackendGeminiAPI,
		HTTPOptions: a.http,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create google client: %w", err)
	}
	a.client = client
	return a.client, nil
}

// Generate sends a prompt to Gemini and returns the outcome.
func (a *GoogleAdapter) Generate(ctx context.Context, prompt string, _ map[string]any) Result {
	start := time.Now()

	client, err := a.getClient(ctx)
	if err != nil {
		return NewFailure(a.Name(), a.model, err, time.Since(start))
	}

	resp, err := client.Models.GenerateContent(ctx, a.model, genai.Text(prompt), &genai.GenerateContentConfig{
		MaxOutputTokens: maxOutputTokens,
	})
	if err != nil {
		return NewFailure(a.Name(), a.model, fmt.Errorf("google API error: %w", err), time.Since(start))
	}

	if resp == nil || len(resp.Candidates) == 0 {
		return NewFailure(a.Name(), a.model, fmt.Errorf("google returned no candidates"), time.Since(start))
	}

	var content strings.Builder
	if resp.Candidates[0].Content != nil {
		for _, part := range resp.Candidates[0].Content.Parts {
			if part != nil && part.Text != "" {
				content.WriteString(part.Text)
			}
		}
	}

	code := content.String()
	usage := EstimateUsage(prompt, code)
	return NewSuccess(a.Name(), a.model, code, usage, a.pricing.Cost(usage), time.Since(start))
}
