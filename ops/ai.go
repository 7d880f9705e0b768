// AI-assisted operations: disassembler interpretation, pattern search,
// and direct expert queries. None of these are cacheable; completions
// legitimately vary between runs.

package ops

import (
	"context"
	"errors"
	"fmt"

	"github.com/halverson/binwise/bintool"
	"github.com/halverson/binwise/gate"
	"github.com/halverson/binwise/ghidra"
	"github.com/halverson/binwise/llm"
	"github.com/halverson/binwise/model"
	"github.com/halverson/binwise/orchestrate"
	"github.com/halverson/binwise/registry"
)

// maxContextBytes caps how much disassembler output is fed to a model.
const maxContextBytes = 8000

func clip(s string) string {
	if len(s) <= maxContextBytes {
		return s
	}
	return s[:maxContextBytes] + "\n... (truncated)"
}

func aiQuery(operation string, req Request, system, user string) orchestrate.Query {
	return orchestrate.Query{
		Operation: operation,
		Messages: []llm.ChatMessage{
			llm.SystemMessage(system),
			llm.UserMessage(user),
		},
		Requirements: registry.Requirements{PinnedProvider: req.PinnedProvider},
	}
}

// aiEnvelope wraps a completed orchestration outcome.
func aiEnvelope(out orchestrate.Outcome, summary string) *model.Envelope {
	env := &model.Envelope{
		Metadata: model.Metadata{
			ProviderUsed: out.Provider,
			Attempts:     out.Attempts,
		},
		Summary:  summary,
		Findings: map[string]interface{}{"analysis": out.Content},
	}
	if out.Usage != nil {
		env.Findings["tokens_used"] = out.Usage.TotalTokens
		env.Findings["estimated_cost_usd"] = out.Cost
	}
	return env
}

// degradedEnvelope preserves local findings when every provider failed.
func degradedEnvelope(summary string, attempts []model.ProviderAttempt, artifacts map[string]string) *model.Envelope {
	return &model.Envelope{
		Metadata: model.Metadata{
			ProviderUsed: "local-fallback",
			Degraded:     true,
			Attempts:     attempts,
		},
		Summary:   summary,
		Findings:  map[string]interface{}{},
		Artifacts: artifacts,
		Recommendations: []string{
			"Interpretive analysis unavailable; retry once a provider recovers or review the raw output directly",
		},
	}
}

// ghidraArtifacts wraps disassembler output for the envelope; no
// artifact is attached when the backend produced nothing.
func ghidraArtifacts(disasm string) map[string]string {
	if disasm == "" {
		return nil
	}
	return map[string]string{"ghidra_output": clip(disasm)}
}

// runGhidra executes the disassembler step, reporting availability in
// the dependency matrix. A missing or contended backend degrades to
// AI-only analysis instead of failing the operation. The subprocess
// lease is held only for the headless run itself, never across the
// provider fallback chain that follows.
func runGhidra(ctx context.Context, b *Backends, run func(context.Context) (string, error)) (string, map[string]string) {
	if b.Ghidra == nil || !b.Ghidra.Available() {
		return "", map[string]string{"ghidra": "unavailable"}
	}
	if b.Gate != nil {
		lease, err := b.Gate.Acquire(ctx, gate.ClassSubprocess)
		if err != nil {
			return "", map[string]string{"ghidra": "busy: " + err.Error()}
		}
		defer lease.Release()
	}
	out, err := run(ctx)
	if err != nil {
		if errors.Is(err, ghidra.ErrBackendUnavailable) {
			return "", map[string]string{"ghidra": "unavailable"}
		}
		return "", map[string]string{"ghidra": "failed: " + err.Error()}
	}
	return out, map[string]string{"ghidra": "ok"}
}

type ghidraBinaryOp struct{}

func (ghidraBinaryOp) Spec() Spec {
	return Spec{
		Name:        "ghidra_binary",
		Description: "Full disassembler analysis of a binary with AI interpretation",
		NeedsFile:   true,
		Params: []ParamSpec{
			{Name: "depth", Kind: KindString, Default: "standard", Enum: Depths,
				Description: "Analysis depth"},
			{Name: "focus", Kind: KindString,
				Description: "Free-text area to emphasize, e.g. \"network protocol parsing\""},
		},
	}
}

func (ghidraBinaryOp) Execute(ctx context.Context, b *Backends, req Request) (*model.Envelope, error) {
	disasm, deps := runGhidra(ctx, b, func(ctx context.Context) (string, error) {
		return b.Ghidra.AnalyzeBinary(ctx, req.File.Path)
	})

	user := fmt.Sprintf("Analyze this binary: %s\n\n", req.File.Path)
	if disasm != "" {
		user += "Disassembler output:\n" + clip(disasm)
	} else {
		// No disassembler: fall back to what local triage can see.
		info, err := bintool.FileInfo(req.File.Path)
		if err == nil {
			user += fmt.Sprintf("No disassembler output is available. File triage: %s, %d bytes, %s.\nAdvise on analysis strategy for this binary.",
				info.DetectedType, info.SizeBytes, info.Details)
		} else {
			user += "No disassembler output is available. Advise on analysis strategy for this binary."
		}
	}

	depth := req.Params.String("depth")
	system := analysisSystemPrompt(req.Profile, depth, req.Params.String("focus"))
	out, err := b.AI.Execute(ctx, aiQuery("ghidra_binary", req, system, user))
	if err != nil {
		if errors.Is(err, orchestrate.ErrProvidersExhausted) || errors.Is(err, orchestrate.ErrNoProviders) {
			summary := "disassembly completed without AI interpretation"
			if disasm == "" {
				summary = "no disassembler backend and no reachable provider"
			}
			env := degradedEnvelope(summary, out.Attempts, ghidraArtifacts(disasm))
			env.Metadata.Dependencies = deps
			return env, nil
		}
		return nil, err
	}

	env := aiEnvelope(out, fmt.Sprintf("%s analysis of %s", depth, req.File.Path))
	env.Metadata.Dependencies = deps
	if disasm != "" {
		env.Artifacts = map[string]string{"ghidra_output": clip(disasm)}
	} else {
		env.Metadata.Degraded = true
	}
	return env, nil
}

type ghidraFunctionOp struct{}

func (ghidraFunctionOp) Spec() Spec {
	return Spec{
		Name:        "ghidra_function",
		Description: "Decompile one function and explain its behavior",
		NeedsFile:   true,
		Params: []ParamSpec{
			{Name: "function_address", Kind: KindString, Required: true,
				Description: "Address of the function to decompile, e.g. 0x401000 or main"},
		},
	}
}

func (ghidraFunctionOp) Execute(ctx context.Context, b *Backends, req Request) (*model.Envelope, error) {
	addr := req.Params.String("function_address")
	decomp, deps := runGhidra(ctx, b, func(ctx context.Context) (string, error) {
		return b.Ghidra.AnalyzeFunction(ctx, req.File.Path, addr)
	})
	if decomp == "" {
		env := model.FailureEnvelope("ghidra_function", req.Profile, model.FailBackendUnavailable,
			"function decompilation requires the disassembler backend: "+deps["ghidra"])
		env.Metadata.Dependencies = deps
		return env, nil
	}

	system := analysisSystemPrompt(req.Profile, "deep", "the decompiled function at "+addr)
	user := fmt.Sprintf("Explain the decompiled function at %s in %s:\n\n%s", addr, req.File.Path, clip(decomp))
	out, err := b.AI.Execute(ctx, aiQuery("ghidra_function", req, system, user))
	if err != nil {
		if errors.Is(err, orchestrate.ErrProvidersExhausted) || errors.Is(err, orchestrate.ErrNoProviders) {
			env := degradedEnvelope("decompilation completed without AI interpretation", out.Attempts,
				map[string]string{"decompiled_function": clip(decomp)})
			env.Metadata.Dependencies = deps
			return env, nil
		}
		return nil, err
	}

	env := aiEnvelope(out, "function analysis at "+addr)
	env.Metadata.Dependencies = deps
	env.Artifacts = map[string]string{"decompiled_function": clip(decomp)}
	return env, nil
}

type patternSearchOp struct{}

func (patternSearchOp) Spec() Spec {
	return Spec{
		Name:        "pattern_search",
		Description: "Search disassembler output for a code or data pattern with AI triage",
		NeedsFile:   true,
		Params: []ParamSpec{
			{Name: "search_pattern", Kind: KindString, Required: true,
				Description: "Pattern to look for, e.g. strcpy, AES S-box, format string"},
			{Name: "pattern_type", Kind: KindString, Default: "vulnerability_patterns", Enum: PatternTypes,
				Description: "Pattern category"},
		},
	}
}

func (patternSearchOp) Execute(ctx context.Context, b *Backends, req Request) (*model.Envelope, error) {
	pattern := req.Params.String("search_pattern")
	patternType := req.Params.String("pattern_type")

	disasm, deps := runGhidra(ctx, b, func(ctx context.Context) (string, error) {
		return b.Ghidra.AnalyzeBinary(ctx, req.File.Path)
	})
	user := fmt.Sprintf("Search for %q (%s) in %s.\n\n", pattern, patternType, req.File.Path)
	if disasm != "" {
		user += "Disassembler output:\n" + clip(disasm)
	} else {
		// Strings triage still gives the model something concrete.
		strs, err := bintool.ExtractStrings(req.File.Path, 4, bintool.EncodingAll)
		if err == nil {
			user += fmt.Sprintf("No disassembler output. Extracted strings sample (%d total): %v",
				strs.Count, strs.Patterns)
		} else {
			user += "No disassembler output is available."
		}
	}

	out, err := b.AI.Execute(ctx, aiQuery("pattern_search", req, patternSystemPrompt(pattern, patternType), user))
	if err != nil {
		if errors.Is(err, orchestrate.ErrProvidersExhausted) || errors.Is(err, orchestrate.ErrNoProviders) {
			summary := "pattern search completed without AI triage"
			if disasm == "" {
				summary = "pattern search needs a disassembler backend or a reachable provider"
			}
			env := degradedEnvelope(summary, out.Attempts, ghidraArtifacts(disasm))
			env.Metadata.Dependencies = deps
			return env, nil
		}
		return nil, err
	}

	env := aiEnvelope(out, fmt.Sprintf("%s search for %q", patternType, pattern))
	env.Metadata.Dependencies = deps
	env.Findings["search_pattern"] = pattern
	env.Findings["pattern_type"] = patternType
	if disasm != "" {
		env.Artifacts = map[string]string{"ghidra_output": clip(disasm)}
	} else {
		env.Metadata.Degraded = true
	}
	return env, nil
}

type reQueryOp struct{}

func (reQueryOp) Spec() Spec {
	return Spec{
		Name:        "re_query",
		Description: "Direct reverse engineering question to an expert model, no file required",
		Params: []ParamSpec{
			{Name: "query", Kind: KindString, Required: true,
				Description: "The question to ask"},
			{Name: "context", Kind: KindString,
				Description: "Optional code, disassembly, or notes to ground the answer"},
			{Name: "specialization", Kind: KindString, Default: "reverse_engineering", Enum: Specializations,
				Description: "Expert persona to answer as"},
		},
	}
}

func (reQueryOp) Execute(ctx context.Context, b *Backends, req Request) (*model.Envelope, error) {
	spec := req.Params.String("specialization")
	user := req.Params.String("query")
	if extra := req.Params.String("context"); extra != "" {
		user += "\n\nContext:\n" + clip(extra)
	}

	out, err := b.AI.Execute(ctx, aiQuery("re_query", req, querySystemPrompt(spec), user))
	if err != nil {
		if errors.Is(err, orchestrate.ErrProvidersExhausted) || errors.Is(err, orchestrate.ErrNoProviders) {
			env := model.FailureEnvelope("re_query", req.Profile, model.FailProvidersExhausted,
				"every configured provider failed; see provider_attempts")
			env.Metadata.Attempts = out.Attempts
			return env, nil
		}
		return nil, err
	}

	env := aiEnvelope(out, spec+" query answered")
	env.Findings["specialization"] = spec
	return env, nil
}
