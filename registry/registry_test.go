package registry

import (
	"testing"
	"time"
)

func testRegistry(t *testing.T) (*Registry, *time.Time) {
	t.Helper()
	r := New(Options{
		FailureThreshold: 2,
		FailureWindow:    time.Minute,
		Cooldown:         time.Minute,
	})
	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return clock }
	return r, &clock
}

func registerThree(r *Registry) {
	r.Register(Descriptor{ID: "deepseek", Capabilities: []string{CapCodeAnalysis}, CostWeight: 0.00028, Priority: 4})
	r.Register(Descriptor{ID: "gemini", Capabilities: []string{CapCodeAnalysis, CapLongContext}, CostWeight: 0.005, Priority: 2})
	r.Register(Descriptor{ID: "anthropic", Capabilities: []string{CapCodeAnalysis}, CostWeight: 0.015, Priority: 0})
}

func TestCandidatesCostOrdering(t *testing.T) {
	r, _ := testRegistry(t)
	registerThree(r)

	got := r.Candidates(Requirements{})
	if len(got) != 3 {
		t.Fatalf("expected 3 candidates, got %d", len(got))
	}
	want := []string{"deepseek", "gemini", "anthropic"}
	for i, id := range want {
		if got[i].ID != id {
			t.Errorf("position %d: got %s, want %s", i, got[i].ID, id)
		}
	}
}

func TestCandidatesCapabilityFilter(t *testing.T) {
	r, _ := testRegistry(t)
	registerThree(r)

	got := r.Candidates(Requirements{Capabilities: []string{CapLongContext}})
	if len(got) != 1 || got[0].ID != "gemini" {
		t.Fatalf("expected only gemini, got %v", got)
	}
}

func TestCandidatesPinned(t *testing.T) {
	r, _ := testRegistry(t)
	registerThree(r)

	got := r.Candidates(Requirements{PinnedProvider: "anthropic"})
	if len(got) != 1 || got[0].ID != "anthropic" {
		t.Fatalf("expected only anthropic, got %v", got)
	}
}

func TestCandidatesPreferred(t *testing.T) {
	r, _ := testRegistry(t)
	registerThree(r)

	got := r.Candidates(Requirements{Preferred: "anthropic"})
	if len(got) != 3 {
		t.Fatalf("expected 3 candidates, got %d", len(got))
	}
	if got[0].ID != "anthropic" {
		t.Errorf("expected preferred provider first, got %s", got[0].ID)
	}
	if got[1].ID != "deepseek" || got[2].ID != "gemini" {
		t.Errorf("remaining order not preserved: %v", got)
	}
}

func TestFailureThresholdDegrades(t *testing.T) {
	r, _ := testRegistry(t)
	registerThree(r)

	r.ReportFailure("gemini")
	if h := r.HealthOf("gemini"); h != Available {
		t.Errorf("single failure should not degrade, got %s", h)
	}
	r.ReportFailure("gemini")
	if h := r.HealthOf("gemini"); h != Degraded {
		t.Errorf("expected degraded after threshold, got %s", h)
	}
	// Degraded providers stay in the candidate list, after healthy ones.
	got := r.Candidates(Requirements{})
	if len(got) != 3 {
		t.Fatalf("degraded provider should remain a candidate, got %d", len(got))
	}
	if got[2].ID != "gemini" {
		t.Errorf("degraded provider should sort last, got %v", []string{got[0].ID, got[1].ID, got[2].ID})
	}
}

func TestRepeatedFailuresUnavailableThenCooldownProbe(t *testing.T) {
	r, clock := testRegistry(t)
	registerThree(r)

	for i := 0; i < 4; i++ {
		r.ReportFailure("gemini")
	}
	if h := r.HealthOf("gemini"); h != Unavailable {
		t.Fatalf("expected unavailable, got %s", h)
	}
	for _, d := range r.Candidates(Requirements{}) {
		if d.ID == "gemini" {
			t.Fatal("unavailable provider must be skipped during cooldown")
		}
	}

	// After the cooldown the provider is re-admitted, at the back, as a probe.
	*clock = clock.Add(2 * time.Minute)
	got := r.Candidates(Requirements{})
	if len(got) != 3 {
		t.Fatalf("expected probe re-admission, got %d candidates", len(got))
	}
	if got[len(got)-1].ID != "gemini" {
		t.Errorf("probe candidate should be last, got order %v", got)
	}
}

func TestSuccessResetsHealth(t *testing.T) {
	r, _ := testRegistry(t)
	registerThree(r)

	for i := 0; i < 4; i++ {
		r.ReportFailure("anthropic")
	}
	r.ReportSuccess("anthropic")
	if h := r.HealthOf("anthropic"); h != Available {
		t.Errorf("expected available after success, got %s", h)
	}
	if got := r.Candidates(Requirements{}); len(got) != 3 {
		t.Errorf("recovered provider missing from candidates: %v", got)
	}
}

func TestFailureWindowSlides(t *testing.T) {
	r, clock := testRegistry(t)
	registerThree(r)

	r.ReportFailure("deepseek")
	*clock = clock.Add(2 * time.Minute) // first failure ages out
	r.ReportFailure("deepseek")
	if h := r.HealthOf("deepseek"); h != Available {
		t.Errorf("failures outside window should not count, got %s", h)
	}
}

func TestSnapshot(t *testing.T) {
	r, _ := testRegistry(t)
	registerThree(r)
	r.ReportFailure("gemini")
	r.ReportFailure("gemini")

	snap := r.Snapshot()
	if len(snap) != 3 {
		t.Fatalf("expected 3 statuses, got %d", len(snap))
	}
	if snap[0].ID != "deepseek" {
		t.Errorf("snapshot not cost-ordered: %v", snap[0].ID)
	}
	for _, s := range snap {
		if s.ID == "gemini" {
			if s.Health != Degraded || s.Failures != 2 {
				t.Errorf("gemini status wrong: %+v", s)
			}
		}
	}
}
