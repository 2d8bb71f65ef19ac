package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/zen-systems/flowengine/pkg/adapter"
	"github.com/zen-systems/flowengine/pkg/logging"
)

// Default timeouts.
const (
	DefaultProviderTimeout = 120 * time.Second
	DefaultReviewTimeout   = 60 * time.Second
)

// Environment variables holding provider credentials.
var apiKeyEnv = map[string]string{
	adapter.ProviderAnthropic: "ANTHROPIC_API_KEY",
	adapter.ProviderOpenAI:    "OPENAI_API_KEY",
	adapter.ProviderGoogle:    "GOOGLE_API_KEY",
	adapter.ProviderDeepSeek:  "DEEPSEEK_API_KEY",
}

// Config holds the application configuration.
type Config struct {
	AnthropicAPIKey string `yaml:"-"`
	OpenAIAPIKey    string `yaml:"-"`
	GoogleAPIKey    string `yaml:"-"`
	DeepSeekAPIKey  string `yaml:"-"`

	// Providers are queried in this order on every generation round.
	Providers []string `yaml:"providers" validate:"required,min=1,unique,dive,oneof=anthropic openai google deepseek mock"`
	// Primary is preferred as winner whenever it succeeds.
	Primary string `yaml:"primary" validate:"required"`
	// Models overrides the default model per provider. Values may be aliases.
	Models map[string]string `yaml:"models"`
	// Aliases maps short names to canonical model identifiers.
	Aliases map[string]string `yaml:"aliases"`
	// Pricing overrides the per-million token prices per provider.
	Pricing map[string]adapter.Pricing `yaml:"pricing"`

	ProviderTimeout time.Duration `yaml:"provider_timeout" validate:"gte=0"`
	ReviewTimeout   time.Duration `yaml:"review_timeout" validate:"gte=0"`
	ReviewModel     string        `yaml:"review_model"`

	Log logging.Config `yaml:"log"`

	ConfigDir string `yaml:"-"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Providers:       []string{adapter.ProviderAnthropic, adapter.ProviderOpenAI, adapter.ProviderGoogle},
		Primary:         adapter.ProviderAnthropic,
		ProviderTimeout: DefaultProviderTimeout,
		ReviewTimeout:   DefaultReviewTimeout,
		ReviewModel:     adapter.DefaultAnthropicModel,
	}
}

// Load reads ~/.flowengine/config.yaml if present and the provider
// credentials from the environment. API keys are never read from the file.
func Load() (*Config, error) {
	configDir, err := getConfigDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get config directory: %w", err)
	}

	path := filepath.Join(configDir, "config.yaml")
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		cfg := Default()
		cfg.ConfigDir = configDir
		cfg.loadEnv()
		return cfg, nil
	}

	cfg, err := LoadFile(path)
	if err != nil {
		return nil, err
	}
	cfg.ConfigDir = configDir
	return cfg, nil
}

// LoadFile reads configuration from a specific YAML file.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	cfg.ConfigDir = filepath.Dir(path)
	cfg.loadEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks provider names, the primary and timeouts.
func (c *Config) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fmt.Sprintf("%s (%s)", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid fields: %s", strings.Join(fields, ", "))
		}
		return err
	}
	if !slices.Contains(c.Providers, c.Primary) {
		return fmt.Errorf("primary %q is not among providers %v", c.Primary, c.Providers)
	}
	for _, p := range c.Pricing {
		if p.InputPerMillion < 0 || p.OutputPerMillion < 0 {
			return fmt.Errorf("pricing must not be negative")
		}
	}
	return nil
}

func (c *Config) loadEnv() {
	c.AnthropicAPIKey = os.Getenv(apiKeyEnv[adapter.ProviderAnthropic])
	c.OpenAIAPIKey = os.Getenv(apiKeyEnv[adapter.ProviderOpenAI])
	c.GoogleAPIKey = os.Getenv(apiKeyEnv[adapter.ProviderGoogle])
	c.DeepSeekAPIKey = os.Getenv(apiKeyEnv[adapter.ProviderDeepSeek])

	c.Log.Level = getEnvOrDefault("FLOWENGINE_LOG_LEVEL", c.Log.Level)
	c.Log.Format = getEnvOrDefault("FLOWENGINE_LOG_FORMAT", c.Log.Format)
}

// APIKey returns the credential for a provider, or "".
func (c *Config) APIKey(name string) string {
	switch name {
	case adapter.ProviderAnthropic:
		return c.AnthropicAPIKey
	case adapter.ProviderOpenAI:
		return c.OpenAIAPIKey
	case adapter.ProviderGoogle:
		return c.GoogleAPIKey
	case adapter.ProviderDeepSeek:
		return c.DeepSeekAPIKey
	default:
		return ""
	}
}

// HasProvider returns true if the API key for the given provider is configured.
func (c *Config) HasProvider(name string) bool {
	return c.APIKey(name) != ""
}

// APIKeyEnv returns the environment variable that holds a provider's key.
func APIKeyEnv(name string) string {
	return apiKeyEnv[name]
}

// ResolveModel returns the canonical model name for an alias.
// If the input is not an alias, it returns the input unchanged.
func (c *Config) ResolveModel(modelOrAlias string) string {
	if canonical, ok := c.Aliases[modelOrAlias]; ok {
		return canonical
	}
	return modelOrAlias
}

// ModelFor returns the configured model for a provider, or "" to use the
// adapter default.
func (c *Config) ModelFor(name string) string {
	return c.ResolveModel(c.Models[name])
}

// PricingFor returns the configured pricing for a provider, falling back to
// the built-in list prices.
func (c *Config) PricingFor(name string) adapter.Pricing {
	if p, ok := c.Pricing[name]; ok {
		return p
	}
	return DefaultPricing(name)
}

// DefaultPricing returns the built-in price list for a provider.
func DefaultPricing(name string) adapter.Pricing {
	switch name {
	case adapter.ProviderAnthropic:
		return adapter.AnthropicPricing
	case adapter.ProviderOpenAI:
		return adapter.OpenAIPricing
	case adapter.ProviderGoogle:
		return adapter.GooglePricing
	case adapter.ProviderDeepSeek:
		return adapter.DeepSeekPricing
	default:
		return adapter.Pricing{}
	}
}

// getEnvOrDefault returns the environment variable value if set,
// otherwise returns the default value.
func getEnvOrDefault(envVar, defaultValue string) string {
	if val := os.Getenv(envVar); val != "" {
		return val
	}
	return defaultValue
}

func getConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".flowengine"), nil
}
