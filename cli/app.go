// Component wiring for CLI commands.
//
// Information Hiding:
// - Construction order and defaults hidden behind NewApp
// - Ledger backend selection (sqlite vs memory) hidden

package cli

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/halverson/binwise/cache"
	"github.com/halverson/binwise/config"
	"github.com/halverson/binwise/dispatch"
	"github.com/halverson/binwise/gate"
	"github.com/halverson/binwise/ghidra"
	"github.com/halverson/binwise/ledger"
	"github.com/halverson/binwise/ops"
	"github.com/halverson/binwise/orchestrate"
	"github.com/halverson/binwise/registry"
	"github.com/halverson/binwise/sandbox"
)

// App bundles the assembled orchestration core.
type App struct {
	Settings   config.Settings
	Dispatcher *dispatch.Dispatcher
	Registry   *registry.Registry
	Cache      *cache.Cache
	Ledger     ledger.Ledger
	Log        *logrus.Logger
}

// NewApp assembles every component from settings. Providers come from
// whatever API keys the environment carries; zero providers is fine for
// local-only analysis.
func NewApp(settings config.Settings, verbose bool) (*App, error) {
	log := logrus.New()
	if verbose {
		log.SetLevel(logrus.DebugLevel)
	}

	g, err := gate.New(gate.Limits{
		gate.ClassSubprocess: int64(settings.Gate.SubprocessSlots),
		gate.ClassNetwork:    int64(settings.Gate.NetworkSlots),
	}, settings.Gate.AcquireWait)
	if err != nil {
		return nil, fmt.Errorf("build gate: %w", err)
	}

	var led ledger.Ledger
	if settings.Ledger.Path != "" {
		sq, err := ledger.OpenSqlite(settings.Ledger.Path)
		if err != nil {
			return nil, fmt.Errorf("open usage ledger: %w", err)
		}
		led = sq
	} else {
		led = ledger.NewMemory()
	}

	reg := registry.New(registry.Options{Log: log})
	if n := registry.BuildFromEnv(reg, log); n == 0 {
		log.Warn("no provider API keys configured; interpretive operations will fail over to local analysis")
	}

	backends := &ops.Backends{
		Ghidra: ghidra.New(ghidra.Options{
			HeadlessPath: settings.Ghidra.HeadlessPath,
			ProjectDir:   settings.Ghidra.ProjectDir,
			Log:          log,
		}),
		AI:       orchestrate.New(reg, g, led, orchestrate.DefaultRetryPolicy(), log),
		Gate:     g,
		Registry: reg,
		Ledger:   led,
		Log:      log,
	}

	resultCache := cache.New(cache.Options{
		Dir:        settings.Cache.Dir,
		TTL:        settings.Cache.TTL,
		MaxEntries: settings.Cache.MaxEntries,
	})

	dispatcher := dispatch.New(dispatch.Options{
		Guard: sandbox.NewGuard(sandbox.Config{
			AllowedRoots: settings.Sandbox.AllowedRoots,
			StagingDir:   settings.Sandbox.StagingDir,
			MaxFileSize:  settings.Sandbox.MaxFileSize,
			Stage:        true,
		}),
		Cache:             resultCache,
		Backends:          backends,
		DefaultProfile:    settings.DefaultProfile,
		PreferredProvider: settings.PreferredProvider,
		Log:               log,
	})

	return &App{
		Settings:   settings,
		Dispatcher: dispatcher,
		Registry:   reg,
		Cache:      resultCache,
		Ledger:     led,
		Log:        log,
	}, nil
}

// Close releases persistent resources.
func (a *App) Close() error {
	return a.Ledger.Close()
}
