package llm

import (
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"
)

const (
	// EnvAgentMode is the environment variable name for mode selection.
	EnvAgentMode = "AGENT_MODE"
	// ModeMock indicates mock mode should be used.
	ModeMock = "MOCK"

	// DefaultLiteLLMBaseURL is the OpenAI-compatible route of a local LiteLLM proxy.
	DefaultLiteLLMBaseURL = "http://localhost:4000/v1/"
)

// ProviderConfig selects and configures one provider.
type ProviderConfig struct {
	Provider string // openai, anthropic, litellm, mock
	Model    string
	APIKey   string
	BaseURL  string
	Timeout  time.Duration
}

// NewLLMClient creates a client for primary, chained with fallback when its
// Provider is set. AGENT_MODE=MOCK forces the mock client.
func NewLLMClient(primary, fallback ProviderConfig, logger *zap.Logger) (LLMClient, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if os.Getenv(EnvAgentMode) == ModeMock {
		logger.Info("AGENT_MODE=MOCK detected, using mock LLM client")
		return NewMockClient(), nil
	}

	client, err := newProvider(primary)
	if err != nil {
		return nil, err
	}
	if fallback.Provider == "" {
		return client, nil
	}
	backup, err := newProvider(fallback)
	if err != nil {
		return nil, fmt.Errorf("fallback provider: %w", err)
	}
	return NewFallbackClient(logger, client, backup), nil
}

func newProvider(cfg ProviderConfig) (LLMClient, error) {
	switch cfg.Provider {
	case "openai", "openrouter", "local":
		return NewOpenAIClient(OpenAIConfig{
			APIKey:  cfg.APIKey,
			BaseURL: cfg.BaseURL,
			Model:   cfg.Model,
			Timeout: cfg.Timeout,
		}), nil
	case "anthropic":
		return NewAnthropicClient(AnthropicConfig{
			APIKey:  cfg.APIKey,
			BaseURL: cfg.BaseURL,
			Model:   cfg.Model,
			Timeout: cfg.Timeout,
		}), nil
	case "litellm":
		baseURL := cfg.BaseURL
		if baseURL == "" {
			baseURL = DefaultLiteLLMBaseURL
		}
		return NewOpenAIClient(OpenAIConfig{
			Name:    "litellm",
			APIKey:  cfg.APIKey,
			BaseURL: baseURL,
			Model:   cfg.Model,
			Timeout: cfg.Timeout,
		}), nil
	case "mock":
		return NewMockClient(), nil
	default:
		return nil, fmt.Errorf("unknown LLM provider: %q", cfg.Provider)
	}
}
