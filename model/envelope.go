// Package model provides domain types shared across packages.
package model

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Failure is a typed error carried inside an envelope. Operations never
// surface a bare error to the caller; even exhausted-fallback and validation
// failures arrive wrapped in a well-formed envelope.
type Failure struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// Failure kinds mirrored in envelope errors.
const (
	FailValidation         = "validation_error"
	FailProvidersExhausted = "providers_exhausted"
	FailBackendUnavailable = "backend_unavailable"
	FailInternal           = "internal_error"
)

// ProviderAttempt records one provider try during fallback, kept in envelope
// metadata so callers can see which providers were tried and why each failed.
type ProviderAttempt struct {
	Provider string `json:"provider"`
	Outcome  string `json:"outcome"` // success | transient | permanent | skipped
	Error    string `json:"error,omitempty"`
}

// Metadata describes how a result was produced.
type Metadata struct {
	ToolName        string            `json:"tool_name"`
	ProviderUsed    string            `json:"provider_used"` // provider id, "cache" or "local-fallback"
	AnalysisProfile string            `json:"analysis_profile"`
	CacheHit        bool              `json:"cache_hit"`
	// CacheLookup is "hit", "miss" or "expired" for cacheable
	// operations, empty otherwise. An expired entry re-executes like a
	// miss but is distinguishable here.
	CacheLookup string `json:"cache_lookup,omitempty"`
	Degraded        bool              `json:"degraded,omitempty"`
	SandboxWarning  string            `json:"sandbox_warning,omitempty"`
	Dependencies    map[string]string `json:"dependency_matrix,omitempty"`
	Attempts        []ProviderAttempt `json:"provider_attempts,omitempty"`
}

// Envelope is the uniform result of every operation.
type Envelope struct {
	Metadata        Metadata               `json:"metadata"`
	Summary         string                 `json:"summary"`
	Findings        map[string]interface{} `json:"findings"`
	Artifacts       map[string]string      `json:"artifacts,omitempty"`
	Recommendations []string               `json:"recommendations,omitempty"`
	Error           *Failure               `json:"error,omitempty"`
}

// FailureEnvelope builds a terminal failure envelope for an operation.
func FailureEnvelope(tool, profile, kind, message string) *Envelope {
	return &Envelope{
		Metadata: Metadata{
			ToolName:        tool,
			ProviderUsed:    "none",
			AnalysisProfile: profile,
		},
		Summary:  message,
		Findings: map[string]interface{}{},
		Error:    &Failure{Kind: kind, Message: message},
	}
}

// Clone returns a deep copy. Cached envelopes are handed out as clones so a
// caller cannot mutate shared cache state.
func (e *Envelope) Clone() *Envelope {
	raw, err := json.Marshal(e)
	if err != nil {
		// Envelopes are built from JSON-safe values only; a marshal failure
		// here is a programming error worth failing loudly on.
		panic(fmt.Sprintf("model: envelope not JSON-serializable: %v", err))
	}
	var copied Envelope
	if err := json.Unmarshal(raw, &copied); err != nil {
		panic(fmt.Sprintf("model: envelope roundtrip failed: %v", err))
	}
	return &copied
}

// JSON renders the envelope as indented JSON.
func (e *Envelope) JSON() (string, error) {
	raw, err := json.MarshalIndent(e, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal envelope: %w", err)
	}
	return string(raw), nil
}

// Text renders a human-readable report for output_format=text.
func (e *Envelope) Text() string {
	var b strings.Builder
	fmt.Fprintf(&b, "=== %s ===\n", strings.ToUpper(e.Metadata.ToolName))
	fmt.Fprintf(&b, "provider: %s  profile: %s  cache_hit: %t\n",
		e.Metadata.ProviderUsed, e.Metadata.AnalysisProfile, e.Metadata.CacheHit)
	if e.Metadata.Degraded {
		b.WriteString("degraded: interpretive analysis unavailable\n")
	}
	if e.Metadata.SandboxWarning != "" {
		fmt.Fprintf(&b, "warning: %s\n", e.Metadata.SandboxWarning)
	}
	if e.Summary != "" {
		fmt.Fprintf(&b, "\n%s\n", e.Summary)
	}
	if len(e.Findings) > 0 {
		b.WriteString("\nFindings:\n")
		keys := make([]string, 0, len(e.Findings))
		for k := range e.Findings {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, "  %s: %v\n", k, e.Findings[k])
		}
	}
	for _, rec := range e.Recommendations {
		fmt.Fprintf(&b, "- %s\n", rec)
	}
	if e.Error != nil {
		fmt.Fprintf(&b, "\nerror (%s): %s\n", e.Error.Kind, e.Error.Message)
	}
	return b.String()
}
