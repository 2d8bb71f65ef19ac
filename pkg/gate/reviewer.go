package gate

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const reviewMaxTokens = 500

// AnthropicReviewer is the default ReviewClient, backed by Claude.
type AnthropicReviewer struct {
	client anthropic.Client
	model  string
}

// NewAnthropicReviewer creates a reviewer for model.
func NewAnthropicReviewer(apiKey, model string, opts ...option.RequestOption) *AnthropicReviewer {
	opts = append([]option.RequestOption{option.WithMaxRetries(0), option.WithAPIKey(apiKey)}, opts...)
	return &AnthropicReviewer{
		client: anthropic.NewClient(opts...),
		model:  model,
	}
}

// Review sends prompt and returns the text of the reply with its usage.
func (r *AnthropicReviewer) Review(ctx context.Context, prompt string) (ReviewResponse, error) {
	resp, err := r.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(r.model),
		MaxTokens: reviewMaxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return ReviewResponse{}, fmt.Errorf("review request: %w", err)
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	return ReviewResponse{
		Text:         strings.TrimSpace(text.String()),
		InputTokens:  resp.Usage.InputTokens,
		OutputTokens: resp.Usage.OutputTokens,
	}, nil
}
