package llmclient

import (
	"fmt"
	"time"
)

// ProviderConfig selects and parameterizes the Backend, the same
// Config -> concrete-type resolver shape as nevindra-oasis's
// provider/resolve package.
type ProviderConfig struct {
	Provider       string // "openai" | "mock"
	APIKey         string
	BaseURL        string
	RequestTimeout time.Duration
}

// ResolveBackend builds the Backend named by cfg.Provider.
func ResolveBackend(cfg ProviderConfig) (Backend, error) {
	switch cfg.Provider {
	case "", "openai":
		return NewOpenAIBackend(defaultBaseURL(cfg), cfg.APIKey, cfg.RequestTimeout), nil
	case "mock":
		return &MockBackend{}, nil
	default:
		return nil, fmt.Errorf("llmclient: unsupported provider %q", cfg.Provider)
	}
}

func defaultBaseURL(cfg ProviderConfig) string {
	if cfg.BaseURL != "" {
		return cfg.BaseURL
	}
	return "https://api.openai.com/v1"
}
