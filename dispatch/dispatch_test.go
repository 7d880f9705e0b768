package dispatch

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/halverson/binwise/cache"
	"github.com/halverson/binwise/gate"
	"github.com/halverson/binwise/ledger"
	"github.com/halverson/binwise/model"
	"github.com/halverson/binwise/ops"
	"github.com/halverson/binwise/orchestrate"
	"github.com/halverson/binwise/sandbox"
)

type stubAI struct {
	out       orchestrate.Outcome
	err       error
	lastQuery orchestrate.Query
}

func (s *stubAI) Execute(_ context.Context, q orchestrate.Query) (orchestrate.Outcome, error) {
	s.lastQuery = q
	return s.out, s.err
}

type harness struct {
	dispatcher *Dispatcher
	cache      *cache.Cache
	ledger     *ledger.MemoryLedger
	ai         *stubAI
	root       string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	return newHarnessTTL(t, time.Hour)
}

func newHarnessTTL(t *testing.T, ttl time.Duration) *harness {
	t.Helper()
	root, err := filepath.EvalSymlinks(t.TempDir())
	if err != nil {
		t.Fatalf("resolve temp dir: %v", err)
	}
	log := logrus.New()
	log.SetOutput(io.Discard)

	g, err := gate.New(gate.Limits{
		gate.ClassSubprocess: 2,
		gate.ClassNetwork:    2,
	}, time.Second)
	if err != nil {
		t.Fatalf("gate: %v", err)
	}

	h := &harness{
		cache:  cache.New(cache.Options{TTL: ttl, MaxEntries: 50}),
		ledger: ledger.NewMemory(),
		ai:     &stubAI{},
		root:   root,
	}
	h.dispatcher = New(Options{
		Guard: sandbox.NewGuard(sandbox.Config{AllowedRoots: []string{root}}),
		Cache: h.cache,
		Backends: &ops.Backends{
			AI:     h.ai,
			Gate:   g,
			Ledger: h.ledger,
			Log:    log,
		},
		Log: log,
	})
	return h
}

func (h *harness) writeBinary(t *testing.T, name string, content []byte) string {
	t.Helper()
	path := filepath.Join(h.root, name)
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func (h *harness) ledgerCount(t *testing.T) int {
	t.Helper()
	recs, err := h.ledger.Records(context.Background())
	if err != nil {
		t.Fatalf("Records: %v", err)
	}
	return len(recs)
}

func TestDispatchCachesRepeatedRequests(t *testing.T) {
	h := newHarness(t)
	path := h.writeBinary(t, "a.bin", []byte("hello world sample"))
	args := map[string]interface{}{"binary_path": path}

	first, err := h.dispatcher.Dispatch(context.Background(), "file_info", args)
	if err != nil {
		t.Fatalf("first dispatch: %v", err)
	}
	if first.Error != nil {
		t.Fatalf("first dispatch failed: %+v", first.Error)
	}
	if first.Metadata.CacheHit {
		t.Error("first request must not be a cache hit")
	}
	if first.Metadata.ProviderUsed != "local-fallback" {
		t.Errorf("provider = %q", first.Metadata.ProviderUsed)
	}
	if got := h.ledgerCount(t); got != 1 {
		t.Fatalf("ledger records after first run = %d, want 1", got)
	}

	second, err := h.dispatcher.Dispatch(context.Background(), "file_info", args)
	if err != nil {
		t.Fatalf("second dispatch: %v", err)
	}
	if !second.Metadata.CacheHit {
		t.Error("second identical request should hit the cache")
	}
	if second.Metadata.ProviderUsed != "cache" {
		t.Errorf("provider = %q", second.Metadata.ProviderUsed)
	}
	if second.Findings["detected_type"] != first.Findings["detected_type"] {
		t.Error("cached findings should match the original")
	}
	if got := h.ledgerCount(t); got != 1 {
		t.Errorf("cache hit appended a usage record: %d", got)
	}
}

func TestDispatchFileInfoZeroFile(t *testing.T) {
	h := newHarness(t)
	path := h.writeBinary(t, "zeros.bin", make([]byte, 10))
	args := map[string]interface{}{"binary_path": path}

	first, err := h.dispatcher.Dispatch(context.Background(), "file_info", args)
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if got := first.Findings["size_bytes"]; got != float64(10) {
		t.Errorf("size_bytes = %v (%T), want 10", got, got)
	}
	if first.Metadata.CacheHit {
		t.Error("first call must report cache_hit = false")
	}

	second, err := h.dispatcher.Dispatch(context.Background(), "file_info", args)
	if err != nil {
		t.Fatalf("repeat dispatch: %v", err)
	}
	if !second.Metadata.CacheHit {
		t.Error("immediate repeat must report cache_hit = true")
	}
}

func TestDispatchReportsCacheLookupStates(t *testing.T) {
	h := newHarnessTTL(t, 30*time.Millisecond)
	path := h.writeBinary(t, "a.bin", []byte("lookup state sample"))
	args := map[string]interface{}{"binary_path": path}

	dispatchOnce := func() *model.Envelope {
		t.Helper()
		env, err := h.dispatcher.Dispatch(context.Background(), "file_info", args)
		if err != nil {
			t.Fatalf("dispatch: %v", err)
		}
		return env
	}

	first := dispatchOnce()
	if first.Metadata.CacheLookup != "miss" {
		t.Errorf("cold call cache_lookup = %q, want miss", first.Metadata.CacheLookup)
	}

	second := dispatchOnce()
	if second.Metadata.CacheLookup != "hit" || !second.Metadata.CacheHit {
		t.Errorf("repeat call metadata = %+v, want hit", second.Metadata)
	}

	time.Sleep(50 * time.Millisecond)
	third := dispatchOnce()
	if third.Metadata.CacheLookup != "expired" {
		t.Errorf("post-TTL cache_lookup = %q, want expired", third.Metadata.CacheLookup)
	}
	if third.Metadata.CacheHit {
		t.Error("expired entry must re-execute, not hit")
	}
	if third.Metadata.ProviderUsed != "local-fallback" {
		t.Errorf("expired entry should re-execute locally, got %q", third.Metadata.ProviderUsed)
	}
}

func TestDispatchDistinctParamsMissCache(t *testing.T) {
	h := newHarness(t)
	path := h.writeBinary(t, "a.bin", []byte("stringsample\x00another\x00"))

	for _, minLen := range []int{4, 6} {
		env, err := h.dispatcher.Dispatch(context.Background(), "strings_scan",
			map[string]interface{}{"binary_path": path, "min_length": minLen})
		if err != nil {
			t.Fatalf("dispatch min_length=%d: %v", minLen, err)
		}
		if env.Metadata.CacheHit {
			t.Errorf("min_length=%d should not hit a cache entry for different params", minLen)
		}
	}
	if h.cache.Len() != 2 {
		t.Errorf("cache entries = %d, want 2", h.cache.Len())
	}
}

func TestDispatchTraversalLeavesNoState(t *testing.T) {
	h := newHarness(t)
	env, err := h.dispatcher.Dispatch(context.Background(), "file_info",
		map[string]interface{}{"binary_path": "../../etc/passwd"})
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if env.Error == nil || env.Error.Kind != model.FailValidation {
		t.Fatalf("error = %+v, want validation_error", env.Error)
	}
	if !strings.Contains(env.Error.Message, "traversal") {
		t.Errorf("message = %q", env.Error.Message)
	}
	if h.cache.Len() != 0 {
		t.Errorf("rejected request wrote %d cache entries", h.cache.Len())
	}
	if got := h.ledgerCount(t); got != 0 {
		t.Errorf("rejected request wrote %d usage records", got)
	}
}

func TestDispatchDeniedPathRejected(t *testing.T) {
	h := newHarness(t)
	other := t.TempDir()
	path := filepath.Join(other, "outside.bin")
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	env, err := h.dispatcher.Dispatch(context.Background(), "file_info",
		map[string]interface{}{"binary_path": path})
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if env.Error == nil || env.Error.Kind != model.FailValidation {
		t.Fatalf("error = %+v, want validation_error for out-of-root path", env.Error)
	}
}

func TestDispatchUnknownTool(t *testing.T) {
	h := newHarness(t)
	env, err := h.dispatcher.Dispatch(context.Background(), "decompile_everything", nil)
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if env.Error == nil || env.Error.Kind != model.FailValidation {
		t.Fatalf("error = %+v", env.Error)
	}
}

func TestDispatchSchemaViolations(t *testing.T) {
	h := newHarness(t)
	path := h.writeBinary(t, "a.bin", []byte("content"))

	cases := []struct {
		name string
		tool string
		args map[string]interface{}
	}{
		{"unknown param", "strings_scan", map[string]interface{}{"binary_path": path, "casing": "upper"}},
		{"missing binary_path", "strings_scan", map[string]interface{}{}},
		{"missing required", "re_query", map[string]interface{}{}},
		{"bad enum", "ghidra_binary", map[string]interface{}{"binary_path": path, "depth": "extreme"}},
		{"bad profile", "file_info", map[string]interface{}{"binary_path": path, "analysis_profile": "forensics"}},
		{"file param on fileless op", "re_query", map[string]interface{}{"query": "q", "binary_path": path}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			env, err := h.dispatcher.Dispatch(context.Background(), tc.tool, tc.args)
			if err != nil {
				t.Fatalf("dispatch: %v", err)
			}
			if env.Error == nil || env.Error.Kind != model.FailValidation {
				t.Fatalf("error = %+v, want validation_error", env.Error)
			}
		})
	}
}

func TestDispatchClampsHexdumpLength(t *testing.T) {
	h := newHarness(t)
	path := h.writeBinary(t, "tiny.bin", []byte("0123456789"))

	env, err := h.dispatcher.Dispatch(context.Background(), "hexdump",
		map[string]interface{}{"binary_path": path})
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if env.Error != nil {
		t.Fatalf("default-length dump of a small file failed: %+v", env.Error)
	}
	if got := env.Findings["length"]; got != float64(10) && got != 10 && got != int64(10) {
		t.Errorf("length = %v (%T), want 10", got, got)
	}

	env, err = h.dispatcher.Dispatch(context.Background(), "hexdump",
		map[string]interface{}{"binary_path": path, "offset": 100})
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if env.Error == nil || env.Error.Kind != model.FailValidation {
		t.Fatalf("offset past EOF should fail validation, got %+v", env.Error)
	}
}

func TestDispatchRoutesProviderPin(t *testing.T) {
	h := newHarness(t)
	h.ai.out = orchestrate.Outcome{Content: "answer", Provider: "deepseek"}

	env, err := h.dispatcher.Dispatch(context.Background(), "re_query",
		map[string]interface{}{"query": "what is a GOT overwrite?", "provider": "deepseek"})
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if env.Error != nil {
		t.Fatalf("dispatch failed: %+v", env.Error)
	}
	if h.ai.lastQuery.Requirements.PinnedProvider != "deepseek" {
		t.Errorf("pinned provider = %q", h.ai.lastQuery.Requirements.PinnedProvider)
	}
	if env.Metadata.ToolName != "re_query" || env.Metadata.AnalysisProfile != "pentest" {
		t.Errorf("metadata = %+v", env.Metadata)
	}
}

func TestDispatchAIOpsNotCached(t *testing.T) {
	h := newHarness(t)
	h.ai.out = orchestrate.Outcome{Content: "answer", Provider: "anthropic"}
	args := map[string]interface{}{"query": "same question"}

	for i := 0; i < 2; i++ {
		env, err := h.dispatcher.Dispatch(context.Background(), "re_query", args)
		if err != nil {
			t.Fatalf("dispatch %d: %v", i, err)
		}
		if env.Metadata.CacheHit {
			t.Error("interpretive results must never be cache hits")
		}
	}
	if h.cache.Len() != 0 {
		t.Errorf("interpretive result was cached: %d entries", h.cache.Len())
	}
}

func TestDispatchDegradedResultNotCached(t *testing.T) {
	h := newHarness(t)
	h.ai.err = orchestrate.ErrProvidersExhausted
	path := h.writeBinary(t, "a.bin", []byte("\x7fELF\x02\x01\x01\x00"))

	env, err := h.dispatcher.Dispatch(context.Background(), "ghidra_binary",
		map[string]interface{}{"binary_path": path})
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if !env.Metadata.Degraded {
		t.Fatal("exhausted providers should yield a degraded envelope")
	}
	if h.cache.Len() != 0 {
		t.Errorf("degraded result was cached: %d entries", h.cache.Len())
	}
}

func TestDispatchMalwareProfileWarns(t *testing.T) {
	h := newHarness(t)
	path := h.writeBinary(t, "dropper.bin", []byte("MZ\x90\x00"))

	env, err := h.dispatcher.Dispatch(context.Background(), "file_info",
		map[string]interface{}{"binary_path": path, "analysis_profile": "malware"})
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if env.Metadata.SandboxWarning == "" {
		t.Error("malware profile should set a sandbox warning")
	}
}

func TestDispatchProfileReachesPrompt(t *testing.T) {
	h := newHarness(t)
	h.ai.out = orchestrate.Outcome{Content: "flag logic at 0x4011c0", Provider: "openai"}
	path := h.writeBinary(t, "chal.bin", []byte("\x7fELF"))

	env, err := h.dispatcher.Dispatch(context.Background(), "ghidra_binary",
		map[string]interface{}{"binary_path": path, "analysis_profile": "ctf", "depth": "quick"})
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if env.Metadata.AnalysisProfile != "ctf" {
		t.Errorf("profile = %q", env.Metadata.AnalysisProfile)
	}
	system := h.ai.lastQuery.Messages[0].Content
	if !strings.Contains(system, "CTF challenge") {
		t.Errorf("system prompt should carry the ctf profile, got %q", system)
	}
}
