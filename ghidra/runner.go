// Package ghidra runs the Ghidra headless analyzer as a subprocess
// backend for deep binary analysis.
//
// Each run imports the target into a throwaway project with a
// randomized name and deletes the project afterwards, so concurrent
// analyses never collide and no state accumulates under the project
// directory.
package ghidra

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// ErrBackendUnavailable reports that no headless executable is
// configured or discoverable. Callers surface it as a degraded
// capability, not a hard failure.
var ErrBackendUnavailable = errors.New("ghidra: headless analyzer not available")

const defaultRunTimeout = 5 * time.Minute

// Runner invokes analyzeHeadless.
type Runner struct {
	headlessPath string
	projectDir   string
	timeout      time.Duration
	log          *logrus.Logger
}

// Options configures a Runner.
type Options struct {
	// HeadlessPath is the analyzeHeadless executable. Empty means the
	// backend is unavailable; construction still succeeds so AI-only
	// operations keep working.
	HeadlessPath string
	// ProjectDir holds throwaway analysis projects.
	ProjectDir string
	// Timeout bounds one headless run.
	Timeout time.Duration

	Log *logrus.Logger
}

// New creates a runner. The headless path is not probed here; Available
// reports the live state.
func New(opts Options) *Runner {
	if opts.ProjectDir == "" {
		opts.ProjectDir = filepath.Join(os.TempDir(), "binwise-ghidra")
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultRunTimeout
	}
	log := opts.Log
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Runner{
		headlessPath: opts.HeadlessPath,
		projectDir:   opts.ProjectDir,
		timeout:      opts.Timeout,
		log:          log,
	}
}

// Available reports whether the headless executable exists and is
// runnable right now.
func (r *Runner) Available() bool {
	if r.headlessPath == "" {
		return false
	}
	info, err := os.Stat(r.headlessPath)
	if err != nil || info.IsDir() {
		return false
	}
	return info.Mode()&0o111 != 0
}

// HeadlessPath returns the configured executable path, which may be
// empty.
func (r *Runner) HeadlessPath() string { return r.headlessPath }

// AnalyzeBinary imports the binary into a fresh project, runs full
// auto-analysis, and returns the analyzer's stdout.
func (r *Runner) AnalyzeBinary(ctx context.Context, binaryPath string) (string, error) {
	return r.run(ctx, binaryPath, nil)
}

// AnalyzeFunction runs auto-analysis plus a generated post-script that
// decompiles the function at the given address.
func (r *Runner) AnalyzeFunction(ctx context.Context, binaryPath, functionAddress string) (string, error) {
	scriptPath, cleanup, err := r.writeFunctionScript(functionAddress)
	if err != nil {
		return "", err
	}
	defer cleanup()
	return r.run(ctx, binaryPath, []string{"-postScript", scriptPath})
}

func (r *Runner) run(ctx context.Context, binaryPath string, extraArgs []string) (string, error) {
	if !r.Available() {
		return "", ErrBackendUnavailable
	}
	if _, err := os.Stat(binaryPath); err != nil {
		return "", fmt.Errorf("ghidra: binary not found: %w", err)
	}
	if err := os.MkdirAll(r.projectDir, 0o755); err != nil {
		return "", fmt.Errorf("ghidra: failed to create project dir: %w", err)
	}

	projectName := "binwise_" + uuid.NewString()[:8]
	projectPath := filepath.Join(r.projectDir, projectName)

	args := []string{
		projectPath,
		projectName,
		"-import", binaryPath,
		"-analyzeAll",
		"-deleteProject",
	}
	args = append(args, extraArgs...)

	runCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	r.log.WithFields(logrus.Fields{
		"binary":  binaryPath,
		"project": projectName,
	}).Info("running ghidra headless analysis")

	cmd := exec.CommandContext(runCtx, r.headlessPath, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if runCtx.Err() == context.DeadlineExceeded {
		return "", fmt.Errorf("ghidra: analysis timed out after %s", r.timeout)
	}
	if err != nil {
		return "", fmt.Errorf("ghidra: analysis failed: %w\n%s", err, truncate(stderr.String(), 2048))
	}
	return stdout.String(), nil
}

// writeFunctionScript generates a throwaway decompilation post-script.
func (r *Runner) writeFunctionScript(functionAddress string) (string, func(), error) {
	if err := os.MkdirAll(r.projectDir, 0o755); err != nil {
		return "", nil, fmt.Errorf("ghidra: failed to create project dir: %w", err)
	}
	script := fmt.Sprintf(`# Decompile a single function and print its signature and body.
from ghidra.app.decompiler import DecompInterface

addr = toAddr("%s")
fm = currentProgram.getFunctionManager()
func = fm.getFunctionAt(addr)
if func is None:
    func = fm.getFunctionContaining(addr)
if func is None:
    print("No function found at %s")
else:
    print("Function: %%s at %%s" %% (func.getName(), func.getEntryPoint()))
    print("Parameters: %%d" %% func.getParameterCount())
    ifc = DecompInterface()
    ifc.openProgram(currentProgram)
    result = ifc.decompileFunction(func, 60, monitor)
    if result.decompileCompleted():
        print(result.getDecompiledFunction().getC())
    else:
        print("Decompilation failed")
`, functionAddress, functionAddress)

	path := filepath.Join(r.projectDir, "decompile_"+uuid.NewString()[:8]+".py")
	if err := os.WriteFile(path, []byte(script), 0o600); err != nil {
		return "", nil, fmt.Errorf("ghidra: failed to write post-script: %w", err)
	}
	cleanup := func() { _ = os.Remove(path) }
	return path, cleanup, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
