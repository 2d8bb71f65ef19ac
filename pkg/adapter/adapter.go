package adapter

import "context"

// Provider defines the interface for code-generation provider adapters.
//
// Generate never returns an error. Transport, authentication and parsing
// failures are captured in the returned Result so that one provider can
// never abort a generation round.
type Provider interface {
	// Generate sends a prompt to the provider and returns the outcome.
	Generate(ctx context.Context, prompt string, genCtx map[string]any) Result

	// Name returns the provider identifier.
	Name() string

	// Model returns the model the provider calls.
	Model() string
}

// ProviderInfo holds metadata about a provider.
type ProviderInfo struct {
	Name       string  `json:"name"`
	Model      string  `json:"model"`
	Pricing    Pricing `json:"pricing"`
	Configured bool    `json:"configured"`
}

// Default provider identifiers.
const (
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
	ProviderGoogle    = "google"
	ProviderDeepSeek  = "deepseek"
	ProviderMock      = "mock"
)

// maxOutputTokens caps completion length for every remote provider.
const maxOutputTokens = 4096
