// Grok Provider implementation using go-openai library.
//
// Information Hiding:
// - Uses the xAI OpenAI-compatible API with a different base URL
// - Supports grok-beta and grok-2 models

package llm

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
)

const grokBaseURL = "https://api.x.ai/v1"

// GrokProvider implements the Provider interface for xAI Grok.
type GrokProvider struct {
	client      *openai.Client
	model       string
	maxTokens   int
	temperature float32
}

// NewGrokProvider creates a new Grok provider.
func NewGrokProvider(apiKey, model string, maxTokens uint32, temperature float32) *GrokProvider {
	config := openai.DefaultConfig(apiKey)
	config.BaseURL = grokBaseURL

	return &GrokProvider{
		client:      openai.NewClientWithConfig(config),
		model:       model,
		maxTokens:   int(maxTokens),
		temperature: temperature,
	}
}

// Name returns the provider name.
func (p *GrokProvider) Name() string {
	return "grok"
}

// Model returns the current model.
func (p *GrokProvider) Model() string {
	return p.model
}

// Chat sends an analysis completion request.
func (p *GrokProvider) Chat(ctx context.Context, messages []ChatMessage) (LLMResponse, error) {
	req := openai.ChatCompletionRequest{
		Model:       p.model,
		Messages:    convertToOpenAIMessages(messages),
		MaxTokens:   p.maxTokens,
		Temperature: p.temperature,
	}

	resp, err := p.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return LLMResponse{}, fmt.Errorf("chat completion failed: %w", err)
	}

	content := ""
	if len(resp.Choices) > 0 {
		content = resp.Choices[0].Message.Content
	}

	usage := &TokenUsage{
		PromptTokens:     uint32(resp.Usage.PromptTokens),
		CompletionTokens: uint32(resp.Usage.CompletionTokens),
		TotalTokens:      uint32(resp.Usage.TotalTokens),
	}

	return LLMResponse{Content: content, Usage: usage}, nil
}

// Verify GrokProvider implements Provider
var _ Provider = (*GrokProvider)(nil)
