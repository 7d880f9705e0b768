package orchestrate

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/halverson/binwise/gate"
	"github.com/halverson/binwise/ledger"
	"github.com/halverson/binwise/llm"
	"github.com/halverson/binwise/registry"
)

// scriptedProvider returns canned responses or errors in sequence,
// repeating the last entry once the script runs out.
type scriptedProvider struct {
	name   string
	script []error // nil entry means success
	calls  int32
}

func (p *scriptedProvider) Name() string  { return p.name }
func (p *scriptedProvider) Model() string { return "test-model" }

func (p *scriptedProvider) Chat(_ context.Context, _ []llm.ChatMessage) (llm.LLMResponse, error) {
	n := int(atomic.AddInt32(&p.calls, 1)) - 1
	if n >= len(p.script) {
		n = len(p.script) - 1
	}
	if err := p.script[n]; err != nil {
		return llm.LLMResponse{}, err
	}
	return llm.LLMResponse{
		Content: "analysis from " + p.name,
		Usage:   &llm.TokenUsage{PromptTokens: 100, CompletionTokens: 50, TotalTokens: 150},
	}, nil
}

func testHarness(t *testing.T, providers ...*scriptedProvider) (*Orchestrator, *ledger.MemoryLedger, *registry.Registry) {
	t.Helper()
	reg := registry.New(registry.Options{})
	for i, p := range providers {
		reg.Register(registry.Descriptor{
			ID:         p.name,
			Provider:   p,
			CostWeight: float64(i + 1), // registration order is fallback order
			Priority:   i,
		})
	}
	g, err := gate.New(gate.Limits{gate.ClassNetwork: 4}, time.Second)
	if err != nil {
		t.Fatal(err)
	}
	led := ledger.NewMemory()
	policy := RetryPolicy{MaxRetries: 2, BaseDelay: time.Millisecond, MaxDelay: 4 * time.Millisecond}
	return New(reg, g, led, policy, nil), led, reg
}

func TestExecuteFirstProviderSucceeds(t *testing.T) {
	a := &scriptedProvider{name: "alpha", script: []error{nil}}
	b := &scriptedProvider{name: "beta", script: []error{nil}}
	o, led, _ := testHarness(t, a, b)

	out, err := o.Execute(context.Background(), Query{Operation: "re_query"})
	if err != nil {
		t.Fatalf("execute failed: %v", err)
	}
	if out.Provider != "alpha" {
		t.Errorf("expected alpha, got %s", out.Provider)
	}
	if atomic.LoadInt32(&b.calls) != 0 {
		t.Error("second provider should not be invoked")
	}

	recs, _ := led.Records(context.Background())
	if len(recs) != 1 || !recs[0].Success {
		t.Errorf("expected one successful record, got %v", recs)
	}
	if recs[0].EstimatedCost != 0 {
		// test-model is not in the pricing table
		t.Errorf("unknown model should record zero cost, got %f", recs[0].EstimatedCost)
	}
}

func TestFallbackOrderOnTransientExhaustion(t *testing.T) {
	transient := &TransientError{Err: errors.New("rate limited")}
	a := &scriptedProvider{name: "alpha", script: []error{transient}}
	b := &scriptedProvider{name: "beta", script: []error{nil}}
	o, led, _ := testHarness(t, a, b)

	out, err := o.Execute(context.Background(), Query{Operation: "re_query"})
	if err != nil {
		t.Fatalf("execute failed: %v", err)
	}
	if out.Provider != "beta" {
		t.Errorf("expected fallback to beta, got %s", out.Provider)
	}
	// alpha gets its full retry budget (1 + 2 retries) before failover.
	if got := atomic.LoadInt32(&a.calls); got != 3 {
		t.Errorf("alpha calls = %d, want 3", got)
	}

	recs, _ := led.Records(context.Background())
	if len(recs) != 4 {
		t.Fatalf("expected 4 usage records (3 failed + 1 success), got %d", len(recs))
	}
	for _, rec := range recs[:3] {
		if rec.Provider != "alpha" || rec.Success {
			t.Errorf("expected failed alpha record, got %+v", rec)
		}
	}
	if recs[3].Provider != "beta" || !recs[3].Success {
		t.Errorf("expected successful beta record, got %+v", recs[3])
	}

	// Attempt trail mirrors the ledger for the envelope metadata.
	if len(out.Attempts) != 2 {
		t.Fatalf("expected 2 attempt entries, got %v", out.Attempts)
	}
	if out.Attempts[0].Provider != "alpha" || out.Attempts[0].Outcome != "transient" {
		t.Errorf("unexpected first attempt: %+v", out.Attempts[0])
	}
	if out.Attempts[1].Outcome != "success" {
		t.Errorf("unexpected second attempt: %+v", out.Attempts[1])
	}
}

func TestPermanentFailureSkipsRetries(t *testing.T) {
	permanent := &PermanentError{Err: errors.New("invalid api key")}
	a := &scriptedProvider{name: "alpha", script: []error{permanent}}
	b := &scriptedProvider{name: "beta", script: []error{nil}}
	o, _, _ := testHarness(t, a, b)

	out, err := o.Execute(context.Background(), Query{Operation: "re_query"})
	if err != nil {
		t.Fatalf("execute failed: %v", err)
	}
	if out.Provider != "beta" {
		t.Errorf("expected beta, got %s", out.Provider)
	}
	if got := atomic.LoadInt32(&a.calls); got != 1 {
		t.Errorf("permanent failure should not retry, alpha calls = %d", got)
	}
}

func TestAllProvidersExhausted(t *testing.T) {
	boom := &PermanentError{Err: errors.New("unauthorized")}
	a := &scriptedProvider{name: "alpha", script: []error{boom}}
	b := &scriptedProvider{name: "beta", script: []error{boom}}
	o, _, _ := testHarness(t, a, b)

	out, err := o.Execute(context.Background(), Query{Operation: "re_query"})
	if !errors.Is(err, ErrProvidersExhausted) {
		t.Fatalf("expected ErrProvidersExhausted, got %v", err)
	}
	if len(out.Attempts) != 2 {
		t.Fatalf("attempt trail incomplete: %v", out.Attempts)
	}
	for _, a := range out.Attempts {
		if a.Outcome != "permanent" || a.Error == "" {
			t.Errorf("attempt should carry failure detail: %+v", a)
		}
	}
}

func TestNoCandidates(t *testing.T) {
	o, _, _ := testHarness(t)
	_, err := o.Execute(context.Background(), Query{Operation: "re_query"})
	if !errors.Is(err, ErrNoProviders) {
		t.Fatalf("expected ErrNoProviders, got %v", err)
	}
}

func TestRepeatedFailuresDegradeProvider(t *testing.T) {
	transient := &TransientError{Err: errors.New("503 service unavailable")}
	a := &scriptedProvider{name: "alpha", script: []error{transient}}
	b := &scriptedProvider{name: "beta", script: []error{nil}}
	o, _, reg := testHarness(t, a, b)

	for i := 0; i < 3; i++ {
		if _, err := o.Execute(context.Background(), Query{Operation: "re_query"}); err != nil {
			t.Fatalf("execute %d failed: %v", i, err)
		}
	}
	if h := reg.HealthOf("alpha"); h == registry.Available {
		t.Errorf("alpha should be degraded after repeated failures, got %s", h)
	}
}

func TestClassifyHeuristics(t *testing.T) {
	cases := []struct {
		err  error
		want FailureClass
	}{
		{errors.New("429 Too Many Requests"), Transient},
		{errors.New("connection reset by peer"), Transient},
		{fmt.Errorf("chat completion failed: %w", context.DeadlineExceeded), Transient},
		{gate.ErrGateTimeout, Transient},
		{errors.New("401 Unauthorized"), Permanent},
		{errors.New("invalid_api_key provided"), Permanent},
		{errors.New("something entirely novel"), Transient},
	}
	for _, tc := range cases {
		if got := Classify(tc.err); got != tc.want {
			t.Errorf("Classify(%q) = %s, want %s", tc.err, got, tc.want)
		}
	}
}
