// Package llm provides AI provider abstractions for analysis queries.
//
// Each provider implementation hides:
// - API client initialization and authentication
// - Request/response format conversion
// - Provider-specific error handling
package llm

import (
	"context"
)

// Provider defines the abstract interface for AI providers.
// Implementations hide provider-specific details while exposing
// a consistent interface for analysis completions.
type Provider interface {
	// Name returns the provider name (for logging and attribution).
	Name() string

	// Model returns the current model being used.
	Model() string

	// Chat sends an analysis completion request.
	Chat(ctx context.Context, messages []ChatMessage) (LLMResponse, error)
}
