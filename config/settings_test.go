package config

import (
	"os"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	for _, name := range []string{
		"BINWISE_CACHE_TTL", "BINWISE_CACHE_MAX_ENTRIES", "BINWISE_MAX_FILE_SIZE",
		"BINWISE_SUBPROCESS_SLOTS", "BINWISE_NETWORK_SLOTS", "BINWISE_GATE_WAIT",
		"BINWISE_PROFILE",
	} {
		os.Unsetenv(name)
	}

	settings, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if settings.Cache.TTL != DefaultCacheTTL {
		t.Errorf("expected default TTL %v, got %v", DefaultCacheTTL, settings.Cache.TTL)
	}
	if settings.Cache.MaxEntries != DefaultCacheMaxEntries {
		t.Errorf("expected default max entries %d, got %d", DefaultCacheMaxEntries, settings.Cache.MaxEntries)
	}
	if settings.Sandbox.MaxFileSize != DefaultMaxFileSize {
		t.Errorf("expected default max file size %d, got %d", int64(DefaultMaxFileSize), settings.Sandbox.MaxFileSize)
	}
	if settings.DefaultProfile != DefaultProfile {
		t.Errorf("expected profile %q, got %q", DefaultProfile, settings.DefaultProfile)
	}
}

func TestLoadDurationAsSeconds(t *testing.T) {
	os.Setenv("BINWISE_CACHE_TTL", "90")
	defer os.Unsetenv("BINWISE_CACHE_TTL")

	settings, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if settings.Cache.TTL != 90*time.Second {
		t.Errorf("expected 90s TTL, got %v", settings.Cache.TTL)
	}
}

func TestLoadDurationGoSyntax(t *testing.T) {
	os.Setenv("BINWISE_GATE_WAIT", "1m30s")
	defer os.Unsetenv("BINWISE_GATE_WAIT")

	settings, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if settings.Gate.AcquireWait != 90*time.Second {
		t.Errorf("expected 90s wait, got %v", settings.Gate.AcquireWait)
	}
}

func TestLoadInvalidInt(t *testing.T) {
	os.Setenv("BINWISE_CACHE_MAX_ENTRIES", "lots")
	defer os.Unsetenv("BINWISE_CACHE_MAX_ENTRIES")

	if _, err := Load(); err == nil {
		t.Error("expected error for non-numeric max entries")
	}
}

func TestSplitPathList(t *testing.T) {
	roots := splitPathList("/srv/samples:/home/analyst/ctf")
	if len(roots) != 2 {
		t.Fatalf("expected 2 roots, got %d", len(roots))
	}
	if roots[0] != "/srv/samples" || roots[1] != "/home/analyst/ctf" {
		t.Errorf("unexpected roots: %v", roots)
	}
	if splitPathList("") != nil {
		t.Error("expected nil for empty list")
	}
}

func TestDetectGhidraPathOverride(t *testing.T) {
	os.Setenv("GHIDRA_HEADLESS_PATH", "/custom/ghidra/support/analyzeHeadless")
	defer os.Unsetenv("GHIDRA_HEADLESS_PATH")

	if got := detectGhidraPath(); got != "/custom/ghidra/support/analyzeHeadless" {
		t.Errorf("expected override path, got %q", got)
	}
}
