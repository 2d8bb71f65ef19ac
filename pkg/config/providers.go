package config

import (
	"fmt"

	"github.com/zen-systems/flowengine/pkg/adapter"
)

// NewProviders builds the configured providers in order. Providers without
// a credential are still built; their calls fail until a key is set.
// With mock set every provider is replaced by a MockAdapter of the same name.
func (c *Config) NewProviders(mock bool) ([]adapter.Provider, error) {
	providers := make([]adapter.Provider, 0, len(c.Providers))
	for _, name := range c.Providers {
		if mock {
			providers = append(providers, adapter.NewMockAdapter(name))
			continue
		}
		p, err := c.newProvider(name)
		if err != nil {
			return nil, err
		}
		providers = append(providers, p)
	}
	return providers, nil
}

func (c *Config) newProvider(name string) (adapter.Provider, error) {
	key, model, pricing := c.APIKey(name), c.ModelFor(name), c.PricingFor(name)
	switch name {
	case adapter.ProviderAnthropic:
		return adapter.NewAnthropicAdapter(key, model, pricing), nil
	case adapter.ProviderOpenAI:
		return adapter.NewOpenAIAdapter(key, model, pricing), nil
	case adapter.ProviderGoogle:
		return adapter.NewGoogleAdapter(key, model, pricing), nil
	case adapter.ProviderDeepSeek:
		return adapter.NewDeepSeekAdapter(key, model, pricing), nil
	case adapter.ProviderMock:
		return adapter.NewMockAdapter(name), nil
	default:
		return nil, fmt.Errorf("unknown provider: %s", name)
	}
}

// Describe reports model, pricing and credential status for each
// configured provider.
func (c *Config) Describe() []adapter.ProviderInfo {
	infos := make([]adapter.ProviderInfo, 0, len(c.Providers))
	for _, name := range c.Providers {
		p, err := c.newProvider(name)
		if err != nil {
			continue
		}
		infos = append(infos, adapter.ProviderInfo{
			Name:       name,
			Model:      p.Model(),
			Pricing:    c.PricingFor(name),
			Configured: name == adapter.ProviderMock || c.HasProvider(name),
		})
	}
	return infos
}
