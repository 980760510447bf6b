package llm

import (
	"context"
	"fmt"
	"strings"
)

// Supported provider names
const (
	ProviderDeepSeek  = "deepseek"
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderGemini    = "gemini"
	ProviderOllama    = "ollama"
	ProviderCustom    = "custom"
)

// ProviderConfig selects and configures one provider
type ProviderConfig struct {
	Provider string
	APIKey   string
	Model    string
	BaseURL  string
}

// KnownProvider reports whether name is a supported provider
func KnownProvider(name string) bool {
	switch strings.ToLower(name) {
	case ProviderDeepSeek, ProviderOpenAI, ProviderAnthropic, ProviderGemini, ProviderOllama, ProviderCustom:
		return true
	}
	return false
}

// DefaultModel returns the model used when none is configured
func DefaultModel(provider string) string {
	switch strings.ToLower(provider) {
	case ProviderOpenAI:
		return "gpt-4o-mini"
	case ProviderAnthropic:
		return "claude-3-5-sonnet-20241022"
	case ProviderGemini:
		return "gemini-2.0-flash"
	case ProviderOllama:
		return "llama3.1"
	default:
		return "deepseek-chat"
	}
}

// NewCapability builds the provider named by cfg. The caller owns the result
// and passes it to whoever needs it.
func NewCapability(ctx context.Context, cfg ProviderConfig) (Capability, error) {
	provider := strings.ToLower(strings.TrimSpace(cfg.Provider))
	model := cfg.Model
	if model == "" {
		model = DefaultModel(provider)
	}

	var (
		capability Capability
		err        error
	)
	switch provider {
	case ProviderDeepSeek:
		capability, err = NewOpenAIProvider(provider, cfg.APIKey, model, firstNonEmpty(cfg.BaseURL, DeepSeekBaseURL))
	case ProviderOpenAI:
		capability, err = NewOpenAIProvider(provider, cfg.APIKey, model, cfg.BaseURL)
	case ProviderOllama:
		// Ollama ignores the key but the client insists on one
		capability, err = NewOpenAIProvider(provider, firstNonEmpty(cfg.APIKey, "ollama"), model, firstNonEmpty(cfg.BaseURL, OllamaBaseURL))
	case ProviderCustom:
		if cfg.BaseURL == "" {
			return nil, fmt.Errorf("custom provider requires a base URL")
		}
		capability, err = NewOpenAIProvider(provider, cfg.APIKey, model, cfg.BaseURL)
	case ProviderAnthropic:
		capability, err = NewAnthropicProvider(cfg.APIKey, model)
	case ProviderGemini:
		capability, err = NewGeminiProvider(ctx, cfg.APIKey, model)
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", cfg.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create %s provider: %w", provider, err)
	}
	return capability, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
