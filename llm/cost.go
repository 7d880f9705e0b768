// Model pricing tables for usage cost estimation.

package llm

// Pricing holds per-1k-token rates in USD for a model.
type Pricing struct {
	InputPer1K  float64
	OutputPer1K float64
}

// modelPricing maps model identifiers to their published rates.
// Unknown models estimate at zero cost.
var modelPricing = map[string]Pricing{
	// OpenAI
	ModelGPT4o: {InputPer1K: 0.005, OutputPer1K: 0.015},
	ModelGPT4:  {InputPer1K: 0.03, OutputPer1K: 0.06},

	// Anthropic
	ModelClaudeSonnet: {InputPer1K: 0.003, OutputPer1K: 0.015},
	ModelClaudeOpus:   {InputPer1K: 0.015, OutputPer1K: 0.075},

	// Google
	ModelGeminiPro:   {InputPer1K: 0.00025, OutputPer1K: 0.0005},
	ModelGemini15Pro: {InputPer1K: 0.00125, OutputPer1K: 0.005},

	// xAI
	ModelGrokBeta: {InputPer1K: 0.005, OutputPer1K: 0.015},

	// DeepSeek
	ModelDeepSeekChat: {InputPer1K: 0.00014, OutputPer1K: 0.00028},
}

// PricingFor returns the pricing for a model and whether it is known.
func PricingFor(model string) (Pricing, bool) {
	p, ok := modelPricing[model]
	return p, ok
}

// EstimateCost computes the estimated USD cost of a completion from its
// token usage. Returns 0 for unknown models or nil usage.
func EstimateCost(model string, usage *TokenUsage) float64 {
	if usage == nil {
		return 0
	}
	pricing, ok := modelPricing[model]
	if !ok {
		return 0
	}
	in := float64(usage.PromptTokens) / 1000 * pricing.InputPer1K
	out := float64(usage.CompletionTokens) / 1000 * pricing.OutputPer1K
	return in + out
}
