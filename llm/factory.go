// AI Provider Factory.
//
// Quick Start:
//
//	// Simplest: use defaults, read API key from environment
//	claude, err := llm.ProviderAnthropic.FromEnv()
//
//	// With custom model
//	opus, err := llm.ProviderAnthropic.Model(llm.ModelClaudeOpus).FromEnv()
//
//	// With explicit API key
//	provider, err := llm.ProviderOpenAI.Model(llm.ModelGPT4o).APIKey("sk-...")

package llm

import (
	"fmt"
	"os"
	"strings"
)

// ProviderType represents supported AI providers.
type ProviderType int

const (
	// ProviderAnthropic is the Anthropic provider (Claude models).
	ProviderAnthropic ProviderType = iota
	// ProviderOpenAI is the OpenAI provider (GPT models).
	ProviderOpenAI
	// ProviderGemini is the Google Gemini provider.
	ProviderGemini
	// ProviderGrok is the xAI Grok provider.
	ProviderGrok
	// ProviderDeepSeek is the DeepSeek provider.
	ProviderDeepSeek
)

// AllProviderTypes lists every supported provider in default priority order.
var AllProviderTypes = []ProviderType{
	ProviderAnthropic,
	ProviderOpenAI,
	ProviderGemini,
	ProviderGrok,
	ProviderDeepSeek,
}

// String returns the string representation of the provider type.
func (p ProviderType) String() string {
	switch p {
	case ProviderAnthropic:
		return "anthropic"
	case ProviderOpenAI:
		return "openai"
	case ProviderGemini:
		return "gemini"
	case ProviderGrok:
		return "grok"
	case ProviderDeepSeek:
		return "deepseek"
	default:
		return "unknown"
	}
}

// EnvVars returns the environment variable names checked, in order, for
// this provider's API key. Several providers accept legacy aliases.
func (p ProviderType) EnvVars() []string {
	switch p {
	case ProviderAnthropic:
		return []string{"ANTHROPIC_API_KEY", "CLAUDE_API_KEY"}
	case ProviderOpenAI:
		return []string{"OPENAI_API_KEY"}
	case ProviderGemini:
		return []string{"GEMINI_API_KEY", "GOOGLE_API_KEY"}
	case ProviderGrok:
		return []string{"GROK_API_KEY", "XAI_API_KEY"}
	case ProviderDeepSeek:
		return []string{"DEEPSEEK_API_KEY"}
	default:
		return nil
	}
}

// KeyFromEnv returns the first non-empty API key from the provider's
// environment variables, or "" when none is set.
func (p ProviderType) KeyFromEnv() string {
	for _, name := range p.EnvVars() {
		if key := os.Getenv(name); key != "" {
			return key
		}
	}
	return ""
}

// DefaultModel returns the default model for this provider.
func (p ProviderType) DefaultModel() string {
	switch p {
	case ProviderAnthropic:
		return ModelClaudeSonnet
	case ProviderOpenAI:
		return ModelGPT4o
	case ProviderGemini:
		return ModelGemini15Pro
	case ProviderGrok:
		return ModelGrokBeta
	case ProviderDeepSeek:
		return ModelDeepSeekChat
	default:
		return ""
	}
}

// ParseProviderType parses a provider from string (case-insensitive).
func ParseProviderType(s string) (ProviderType, error) {
	switch strings.ToLower(s) {
	case "anthropic", "claude":
		return ProviderAnthropic, nil
	case "openai", "gpt":
		return ProviderOpenAI, nil
	case "gemini", "google":
		return ProviderGemini, nil
	case "grok", "xai":
		return ProviderGrok, nil
	case "deepseek":
		return ProviderDeepSeek, nil
	default:
		return 0, fmt.Errorf("unknown provider: %s", s)
	}
}

// FromEnv creates a provider with defaults, reading the API key from
// the environment.
func (p ProviderType) FromEnv() (Provider, error) {
	return NewProviderBuilder(p).FromEnv()
}

// Model starts configuring this provider with a specific model.
func (p ProviderType) Model(model string) *ProviderBuilder {
	return NewProviderBuilder(p).Model(model)
}

// APIKey creates a provider with an explicit API key.
func (p ProviderType) APIKey(key string) (Provider, error) {
	return NewProviderBuilder(p).APIKey(key)
}

// ProviderBuilder is a builder for configuring AI providers.
type ProviderBuilder struct {
	providerType ProviderType
	model        string
	maxTokens    uint32
	temperature  *float32
}

// NewProviderBuilder creates a new builder for the given provider.
func NewProviderBuilder(providerType ProviderType) *ProviderBuilder {
	return &ProviderBuilder{
		providerType: providerType,
	}
}

// Model sets the model to use.
func (b *ProviderBuilder) Model(model string) *ProviderBuilder {
	b.model = model
	return b
}

// MaxTokens sets maximum tokens for responses.
func (b *ProviderBuilder) MaxTokens(tokens uint32) *ProviderBuilder {
	b.maxTokens = tokens
	return b
}

// Temperature sets temperature (0.0 = deterministic, 1.0 = creative).
func (b *ProviderBuilder) Temperature(temp float32) *ProviderBuilder {
	b.temperature = &temp
	return b
}

// FromEnv builds the provider, reading the API key from the environment.
func (b *ProviderBuilder) FromEnv() (Provider, error) {
	apiKey := b.providerType.KeyFromEnv()
	if apiKey == "" {
		return nil, fmt.Errorf("%s: none of %s set", b.providerType,
			strings.Join(b.providerType.EnvVars(), ", "))
	}
	return b.build(apiKey)
}

// APIKey builds the provider with an explicit API key.
func (b *ProviderBuilder) APIKey(key string) (Provider, error) {
	return b.build(key)
}

func (b *ProviderBuilder) build(apiKey string) (Provider, error) {
	model := b.model
	if model == "" {
		model = b.providerType.DefaultModel()
	}

	maxTokens := b.maxTokens
	if maxTokens == 0 {
		maxTokens = 4000
	}

	temperature := float32(0.3) // analysis output favors determinism
	if b.temperature != nil {
		temperature = *b.temperature
	}

	switch b.providerType {
	case ProviderAnthropic:
		return NewAnthropicProvider(apiKey, model, maxTokens, temperature), nil
	case ProviderOpenAI:
		return NewOpenAIProvider(apiKey, model, maxTokens, temperature), nil
	case ProviderGemini:
		return NewGeminiProvider(apiKey, model, maxTokens, temperature), nil
	case ProviderGrok:
		return NewGrokProvider(apiKey, model, maxTokens, temperature), nil
	case ProviderDeepSeek:
		return NewDeepSeekProvider(apiKey, model, maxTokens, temperature), nil
	default:
		return nil, fmt.Errorf("unknown provider type: %v", b.providerType)
	}
}

// Model identifier constants for all supported providers.

// OpenAI model identifiers
const (
	// ModelGPT4o is GPT-4o: current general model.
	ModelGPT4o = "gpt-4o"
	// ModelGPT4 is GPT-4: legacy model.
	ModelGPT4 = "gpt-4"
)

// Anthropic model identifiers
const (
	// ModelClaudeSonnet is Claude 3.5 Sonnet: balanced reverse engineering analysis.
	ModelClaudeSonnet = "claude-3-5-sonnet-20241022"
	// ModelClaudeOpus is Claude 3 Opus: deepest analysis, highest cost.
	ModelClaudeOpus = "claude-3-opus-20240229"
)

// Google Gemini model identifiers
const (
	// ModelGemini15Pro is Gemini 1.5 Pro: large context window.
	ModelGemini15Pro = "gemini-1.5-pro"
	// ModelGeminiPro is Gemini Pro: legacy model.
	ModelGeminiPro = "gemini-pro"
)

// xAI model identifiers
const (
	// ModelGrokBeta is the Grok public beta model.
	ModelGrokBeta = "grok-beta"
)

// DeepSeek model identifiers
const (
	// ModelDeepSeekChat is the DeepSeek general chat model.
	ModelDeepSeekChat = "deepseek-chat"
)
