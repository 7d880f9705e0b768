package llm

import (
	"os"
	"testing"
)

func TestParseProviderType(t *testing.T) {
	cases := []struct {
		in   string
		want ProviderType
	}{
		{"anthropic", ProviderAnthropic},
		{"Claude", ProviderAnthropic},
		{"openai", ProviderOpenAI},
		{"GPT", ProviderOpenAI},
		{"gemini", ProviderGemini},
		{"google", ProviderGemini},
		{"grok", ProviderGrok},
		{"xai", ProviderGrok},
		{"deepseek", ProviderDeepSeek},
	}
	for _, tc := range cases {
		got, err := ParseProviderType(tc.in)
		if err != nil {
			t.Errorf("ParseProviderType(%q) returned error: %v", tc.in, err)
			continue
		}
		if got != tc.want {
			t.Errorf("ParseProviderType(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}

	if _, err := ParseProviderType("ollama"); err == nil {
		t.Error("expected error for unsupported provider")
	}
}

func TestKeyFromEnvAliases(t *testing.T) {
	os.Unsetenv("ANTHROPIC_API_KEY")
	os.Setenv("CLAUDE_API_KEY", "sk-alias-key")
	defer os.Unsetenv("CLAUDE_API_KEY")

	if key := ProviderAnthropic.KeyFromEnv(); key != "sk-alias-key" {
		t.Errorf("expected alias key, got %q", key)
	}

	// Primary variable wins over the alias.
	os.Setenv("ANTHROPIC_API_KEY", "sk-primary-key")
	defer os.Unsetenv("ANTHROPIC_API_KEY")
	if key := ProviderAnthropic.KeyFromEnv(); key != "sk-primary-key" {
		t.Errorf("expected primary key, got %q", key)
	}
}

func TestFromEnvMissingKey(t *testing.T) {
	os.Unsetenv("DEEPSEEK_API_KEY")

	_, err := ProviderDeepSeek.FromEnv()
	if err == nil {
		t.Fatal("expected error when no key is set")
	}
}

func TestBuilderDefaults(t *testing.T) {
	provider, err := ProviderOpenAI.APIKey("sk-test")
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	if provider.Name() != "openai" {
		t.Errorf("unexpected name %q", provider.Name())
	}
	if provider.Model() != ModelGPT4o {
		t.Errorf("expected default model %q, got %q", ModelGPT4o, provider.Model())
	}
}

func TestBuilderCustomModel(t *testing.T) {
	provider, err := ProviderAnthropic.Model(ModelClaudeOpus).APIKey("sk-test")
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	if provider.Model() != ModelClaudeOpus {
		t.Errorf("expected %q, got %q", ModelClaudeOpus, provider.Model())
	}
}

func TestEstimateCost(t *testing.T) {
	usage := &TokenUsage{PromptTokens: 2000, CompletionTokens: 1000, TotalTokens: 3000}

	got := EstimateCost(ModelClaudeSonnet, usage)
	want := 2.0*0.003 + 1.0*0.015
	if diff := got - want; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("EstimateCost = %f, want %f", got, want)
	}

	if cost := EstimateCost("unknown-model", usage); cost != 0 {
		t.Errorf("unknown model should cost 0, got %f", cost)
	}
	if cost := EstimateCost(ModelGPT4o, nil); cost != 0 {
		t.Errorf("nil usage should cost 0, got %f", cost)
	}
}

func TestConvertToOpenAIMessages(t *testing.T) {
	messages := []ChatMessage{
		SystemMessage("you are a reverse engineer"),
		UserMessage("analyze this binary"),
	}
	converted := convertToOpenAIMessages(messages)
	if len(converted) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(converted))
	}
	if converted[0].Role != "system" || converted[1].Role != "user" {
		t.Errorf("roles not preserved: %+v", converted)
	}
}

func TestConvertToAnthropicMessages(t *testing.T) {
	messages := []ChatMessage{
		SystemMessage("you are a reverse engineer"),
		UserMessage("analyze this binary"),
	}
	converted, system := convertToAnthropicMessages(messages)
	if system != "you are a reverse engineer" {
		t.Errorf("system prompt not extracted: %q", system)
	}
	if len(converted) != 1 {
		t.Errorf("expected 1 non-system message, got %d", len(converted))
	}
}
