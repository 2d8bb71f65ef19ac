package adapter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const deepseekBaseURL = "https://api.deepseek.com/v1"

// DeepSeekAdapter implements the Provider interface for DeepSeek models.
// DeepSeek uses an OpenAI-compatible API format.
type DeepSeekAdapter struct {
	apiKey     string
	model      string
	pricing    Pricing
	baseURL    string
	httpClient *http.Client
}

// deepseekRequest represents the OpenAI-compatible request format.
type deepseekRequest struct {
	Model       string            `json:"model"`
	Messages    []deepseekMessage `json:"messages"`
	MaxTokens   int               `json:"max_tokens,omitempty"`
	Temperature float64           `json:"temperature,omitempty"`
}

type deepseekMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// deepseekResponse represents the OpenAI-compatible response format.
type deepseekResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int64 `json:"prompt_tokens"`
		CompletionTokens int64 `json:"completion_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code"`
	} `json:"error,omitempty"`
}

// NewDeepSeekAdapter creates a new DeepSeek adapter.
func NewDeepSeekAdapter(apiKey, model string, pricing Pricing) *DeepSeekAdapter {
	if model == "" {
		model = DefaultDeepSeekModel
	}
	return &DeepSeekAdapter{
		apiKey:     apiKey,
		model:      model,
		pricing:    pricing,
		baseURL:    deepseekBaseURL,
		httpClient: &http.Client{},
	}
}

// WithBaseURL points the adapter at a different OpenAI-compatible endpoint.
func (a *DeepSeekAdapter) WithBaseURL(baseURL string) *DeepSeekAdapter {
	a.baseURL = baseURL
	return a
}

// Name returns the adapter identifier.
func (a *DeepSeekAdapter) Name() string {
	return ProviderDeepSeek
}

// Model returns the DeepSeek model used for generation.
func (a *DeepSeekAdapter) Model() string {
	return a.model
}

// Generate sends a prompt to DeepSeek and returns the outcome.
func (a *DeepSeekAdapter) Generate(ctx context.Context, prompt string, _ map[string]any) Result {
	start := time.Now()

	code, usage, err := a.complete(ctx, prompt)
	if err != nil {
		return NewFailure(a.Name(), a.model, err, time.Since(start))
	}
	return NewSuccess(a.Name(), a.model, code, usage, a.pricing.Cost(usage), time.Since(start))
}

func (a *DeepSeekAdapter) complete(ctx context.Context, prompt string) (string, Usage, error) {
	if a.apiKey == "" {
		return "", Usage{}, missingKey(a.Name())
	}

	jsonBody, err := json.Marshal(deepseekRequest{
		Model:     a.model,
		Messages:  []deepseekMessage{{Role: "user", Content: prompt}},
		MaxTokens: maxOutputTokens,
	})
	if err != nil {
		return "", Usage{}, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/chat/completions", bytes.NewReader(jsonBody))
	if err != nil {
		return "", Usage{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+a.apiKey)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return "", Usage{}, fmt.Errorf("deepseek API request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", Usage{}, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", Usage{}, &AdapterError{
			Provider: ProviderDeepSeek,
			Status:   resp.StatusCode,
			Err:      fmt.Errorf("deepseek API returned status %d: %s", resp.StatusCode, string(body)),
		}
	}

	var deepseekResp deepseekResponse
	if err := json.Unmarshal(body, &deepseekResp); err != nil {
		return "", Usage{}, fmt.Errorf("failed to parse response: %w", err)
	}
	if deepseekResp.Error != nil {
		return "", Usage{}, fmt.Errorf("deepseek API error: %s (type: %s, code: %s)",
			deepseekResp.Error.Message, deepseekResp.Error.Type, deepseekResp.Error.Code)
	}
	if len(deepseekResp.Choices) == 0 {
		return "", Usage{}, fmt.Errorf("deepseek returned no choices")
	}

	usage := Usage{
		InputTokens:  deepseekResp.Usage.PromptTokens,
		OutputTokens: deepseekResp.Usage.CompletionTokens,
	}
	return deepseekResp.Choices[0].Message.Content, usage, nil
}
