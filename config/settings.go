// Package config provides application settings loaded from environment variables.
//
// Settings are created via Load() which handles:
// - Environment variable parsing with validation
// - Default value application
// - Provider credential lookup with alias variables
// - Ghidra headless install auto-discovery

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Default limits. Overridable through the environment.
const (
	DefaultMaxFileSize     = 100 * 1024 * 1024 // 100 MiB
	DefaultCacheTTL        = time.Hour
	DefaultCacheMaxEntries = 100
	DefaultSubprocessSlots = 2
	DefaultNetworkSlots    = 4
	DefaultGateWait        = 30 * time.Second
	DefaultProfile         = "pentest"
)

// Settings holds all configuration consumed by the orchestration core.
type Settings struct {
	Cache   CacheConfig
	Sandbox SandboxConfig
	Gate    GateConfig
	Ghidra  GhidraConfig
	Ledger  LedgerConfig

	// PreferredProvider pins a provider for interpretive operations when set.
	PreferredProvider string

	// DefaultProfile is the analysis profile applied when a request omits one.
	DefaultProfile string
}

// CacheConfig controls the analysis result cache.
type CacheConfig struct {
	Dir        string // empty disables disk persistence
	TTL        time.Duration
	MaxEntries int
}

// SandboxConfig controls input staging and validation.
type SandboxConfig struct {
	// AllowedRoots are directories a raw input path may resolve into.
	// Empty means any path not on the deny list is accepted.
	AllowedRoots []string

	// StagingDir is where sandbox copies are created. Empty uses os.TempDir.
	StagingDir string

	MaxFileSize int64
}

// GateConfig bounds concurrent backend invocations per resource class.
type GateConfig struct {
	SubprocessSlots int
	NetworkSlots    int
	AcquireWait     time.Duration
}

// GhidraConfig locates the headless analyzer.
type GhidraConfig struct {
	HeadlessPath string // empty means not installed
	ProjectDir   string
}

// LedgerConfig controls usage record persistence.
type LedgerConfig struct {
	// Path to the sqlite database file. Empty keeps records in memory only.
	Path string
}

// ghidraSearchPaths are the well-known analyzeHeadless install locations,
// checked in order when GHIDRA_HEADLESS_PATH is unset.
var ghidraSearchPaths = []string{
	"/usr/share/ghidra/support/analyzeHeadless",
	"/opt/ghidra/support/analyzeHeadless",
	"/usr/local/ghidra/support/analyzeHeadless",
	"/usr/local/share/ghidra/support/analyzeHeadless",
}

// Load builds settings from the environment. Returns an error when a set
// variable holds an invalid value; unset variables fall back to defaults.
func Load() (Settings, error) {
	ttl, err := getEnvDuration("BINWISE_CACHE_TTL", DefaultCacheTTL)
	if err != nil {
		return Settings{}, err
	}

	maxEntries, err := getEnvInt("BINWISE_CACHE_MAX_ENTRIES", DefaultCacheMaxEntries)
	if err != nil {
		return Settings{}, err
	}

	maxFileSize, err := getEnvInt64("BINWISE_MAX_FILE_SIZE", DefaultMaxFileSize)
	if err != nil {
		return Settings{}, err
	}

	subprocSlots, err := getEnvInt("BINWISE_SUBPROCESS_SLOTS", DefaultSubprocessSlots)
	if err != nil {
		return Settings{}, err
	}

	netSlots, err := getEnvInt("BINWISE_NETWORK_SLOTS", DefaultNetworkSlots)
	if err != nil {
		return Settings{}, err
	}

	gateWait, err := getEnvDuration("BINWISE_GATE_WAIT", DefaultGateWait)
	if err != nil {
		return Settings{}, err
	}

	profile := os.Getenv("BINWISE_PROFILE")
	if profile == "" {
		profile = DefaultProfile
	}

	return Settings{
		Cache: CacheConfig{
			Dir:        os.Getenv("BINWISE_CACHE_DIR"),
			TTL:        ttl,
			MaxEntries: maxEntries,
		},
		Sandbox: SandboxConfig{
			AllowedRoots: splitPathList(os.Getenv("BINWISE_ALLOWED_ROOTS")),
			StagingDir:   os.Getenv("BINWISE_STAGING_DIR"),
			MaxFileSize:  maxFileSize,
		},
		Gate: GateConfig{
			SubprocessSlots: subprocSlots,
			NetworkSlots:    netSlots,
			AcquireWait:     gateWait,
		},
		Ghidra: GhidraConfig{
			HeadlessPath: detectGhidraPath(),
			ProjectDir:   getEnvDefault("GHIDRA_PROJECT_DIR", filepath.Join(os.TempDir(), "binwise_ghidra")),
		},
		Ledger: LedgerConfig{
			Path: os.Getenv("BINWISE_LEDGER_PATH"),
		},
		PreferredProvider: os.Getenv("BINWISE_PROVIDER_PREFERENCE"),
		DefaultProfile:    profile,
	}, nil
}

// MustLoad builds settings and panics on invalid environment values.
// Use only when configuration errors should be fatal.
func MustLoad() Settings {
	settings, err := Load()
	if err != nil {
		panic(fmt.Sprintf("config: %v", err))
	}
	return settings
}

// detectGhidraPath resolves the headless analyzer, preferring the environment
// override and falling back to the well-known install locations. Returns ""
// when no executable is found; the backend then reports itself unavailable.
func detectGhidraPath() string {
	if path := os.Getenv("GHIDRA_HEADLESS_PATH"); path != "" {
		return path
	}
	for _, path := range ghidraSearchPaths {
		info, err := os.Stat(path)
		if err == nil && !info.IsDir() && info.Mode()&0o111 != 0 {
			return path
		}
	}
	return ""
}

func splitPathList(value string) []string {
	if value == "" {
		return nil
	}
	var roots []string
	for _, part := range strings.Split(value, string(os.PathListSeparator)) {
		part = strings.TrimSpace(part)
		if part != "" {
			roots = append(roots, part)
		}
	}
	return roots
}

func getEnvDefault(name, fallback string) string {
	if value := os.Getenv(name); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(name string, fallback int) (int, error) {
	value := os.Getenv(name)
	if value == "" {
		return fallback, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %q", name, value)
	}
	return parsed, nil
}

func getEnvInt64(name string, fallback int64) (int64, error) {
	value := os.Getenv(name)
	if value == "" {
		return fallback, nil
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %q", name, value)
	}
	return parsed, nil
}

// getEnvDuration accepts Go duration syntax ("90s", "1h") or a bare number
// of seconds.
func getEnvDuration(name string, fallback time.Duration) (time.Duration, error) {
	value := os.Getenv(name)
	if value == "" {
		return fallback, nil
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		return time.Duration(seconds) * time.Second, nil
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %q", name, value)
	}
	return parsed, nil
}
