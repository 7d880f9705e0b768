// Package sandbox validates and stages input files before any backend sees them.
//
// Information Hiding:
// - Path canonicalization and deny-list checks hidden behind Validate
// - Staging copy lifecycle owned by FileReference
// - Fingerprint derivation internalized
package sandbox

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// ErrorKind classifies a validation failure.
type ErrorKind string

const (
	PathTraversal ErrorKind = "path_traversal"
	DeniedPath    ErrorKind = "denied_path"
	SizeExceeded  ErrorKind = "size_exceeded"
	RangeInvalid  ErrorKind = "range_invalid"
	NotFound      ErrorKind = "not_found"
)

// ValidationError reports why an input path was rejected. It is always
// recoverable: no partial state is left behind.
type ValidationError struct {
	Kind   ErrorKind
	Path   string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed (%s): %s: %s", e.Kind, e.Path, e.Reason)
}

// AsValidation returns the ValidationError inside err, if any.
func AsValidation(err error) (*ValidationError, bool) {
	var verr *ValidationError
	if err == nil {
		return nil, false
	}
	if v, ok := err.(*ValidationError); ok {
		verr = v
	}
	return verr, verr != nil
}

// deniedPrefixes are system locations never handed to a backend, regardless
// of allow-listed roots.
var deniedPrefixes = []string{
	"/etc", "/proc", "/sys", "/dev", "/boot", "/root",
	"/bin", "/sbin", "/usr/bin", "/usr/sbin",
}

// Config controls guard behavior.
type Config struct {
	// AllowedRoots restricts inputs to these directories when non-empty.
	AllowedRoots []string

	// StagingDir receives read-only sandbox copies. Empty uses os.TempDir.
	StagingDir string

	MaxFileSize int64

	// Stage toggles copying inputs into the staging dir so backends never
	// see the caller's original path.
	Stage bool
}

// Guard validates raw input paths into FileReferences.
type Guard struct {
	cfg          Config
	allowedRoots []string // canonicalized
	selfDir      string   // process install dir, always denied
}

// NewGuard creates a guard. Allow-listed roots that cannot be resolved are
// dropped silently; an unresolvable root can never match anyway.
func NewGuard(cfg Config) *Guard {
	g := &Guard{cfg: cfg}
	for _, root := range cfg.AllowedRoots {
		if abs, err := filepath.Abs(root); err == nil {
			g.allowedRoots = append(g.allowedRoots, abs)
		}
	}
	if exe, err := os.Executable(); err == nil {
		g.selfDir = filepath.Dir(exe)
	}
	return g
}

// FileReference is the validated, immutable handle for one input file. It is
// owned by the request that created it; Close removes the staging copy.
type FileReference struct {
	// OriginalPath is the canonical path the caller supplied.
	OriginalPath string

	// Path is what backends receive: the staging copy when staged,
	// otherwise the canonical path.
	Path string

	Size        int64
	Fingerprint string

	staged string
}

// Close removes the staging copy, if one was made. Safe to call more than once.
func (r *FileReference) Close() error {
	if r.staged == "" {
		return nil
	}
	path := r.staged
	r.staged = ""
	// Copies are created read-only; make them deletable first.
	_ = os.Chmod(path, 0o600)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove sandbox copy: %w", err)
	}
	return nil
}

// Validate canonicalizes rawPath, applies the deny and allow lists, enforces
// the size cap, fingerprints the content and (when configured) stages a
// read-only copy. On any failure nothing is left on disk.
func (g *Guard) Validate(rawPath string) (*FileReference, error) {
	if rawPath == "" {
		return nil, &ValidationError{Kind: NotFound, Path: rawPath, Reason: "empty path"}
	}
	if containsTraversal(rawPath) {
		return nil, &ValidationError{Kind: PathTraversal, Path: rawPath, Reason: "path contains traversal sequence"}
	}

	abs, err := filepath.Abs(rawPath)
	if err != nil {
		return nil, &ValidationError{Kind: NotFound, Path: rawPath, Reason: err.Error()}
	}
	canonical, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, &ValidationError{Kind: NotFound, Path: rawPath, Reason: "path does not resolve"}
	}

	if reason := g.denied(canonical); reason != "" {
		return nil, &ValidationError{Kind: DeniedPath, Path: canonical, Reason: reason}
	}
	if len(g.allowedRoots) > 0 && !underAny(canonical, g.allowedRoots) {
		return nil, &ValidationError{Kind: DeniedPath, Path: canonical, Reason: "outside allow-listed roots"}
	}

	info, err := os.Stat(canonical)
	if err != nil {
		return nil, &ValidationError{Kind: NotFound, Path: canonical, Reason: err.Error()}
	}
	if info.IsDir() {
		return nil, &ValidationError{Kind: NotFound, Path: canonical, Reason: "not a regular file"}
	}
	if g.cfg.MaxFileSize > 0 && info.Size() > g.cfg.MaxFileSize {
		return nil, &ValidationError{
			Kind:   SizeExceeded,
			Path:   canonical,
			Reason: fmt.Sprintf("%d bytes exceeds limit %d", info.Size(), g.cfg.MaxFileSize),
		}
	}

	fingerprint, err := FingerprintFile(canonical, info)
	if err != nil {
		return nil, &ValidationError{Kind: NotFound, Path: canonical, Reason: err.Error()}
	}

	ref := &FileReference{
		OriginalPath: canonical,
		Path:         canonical,
		Size:         info.Size(),
		Fingerprint:  fingerprint,
	}

	if g.cfg.Stage {
		staged, err := g.stage(canonical)
		if err != nil {
			return nil, err
		}
		ref.Path = staged
		ref.staged = staged
	}

	return ref, nil
}

// CheckRange verifies an offset/length byte range lies inside the file.
func (r *FileReference) CheckRange(offset, length int64) error {
	if offset < 0 || length < 0 {
		return &ValidationError{Kind: RangeInvalid, Path: r.OriginalPath, Reason: "negative offset or length"}
	}
	if offset+length > r.Size {
		return &ValidationError{
			Kind:   RangeInvalid,
			Path:   r.OriginalPath,
			Reason: fmt.Sprintf("range [%d,%d) exceeds file size %d", offset, offset+length, r.Size),
		}
	}
	return nil
}

func (g *Guard) denied(canonical string) string {
	for _, prefix := range deniedPrefixes {
		if canonical == prefix || strings.HasPrefix(canonical, prefix+"/") {
			return "resolves under denied system location " + prefix
		}
	}
	if g.selfDir != "" && strings.HasPrefix(canonical, g.selfDir+"/") {
		return "resolves inside the process installation directory"
	}
	return ""
}

// stage copies the input into the staging dir under a randomized name with
// read-only permissions.
func (g *Guard) stage(canonical string) (string, error) {
	dir := g.cfg.StagingDir
	if dir == "" {
		dir = filepath.Join(os.TempDir(), "binwise_staging")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("create staging dir: %w", err)
	}

	name := uuid.NewString() + filepath.Ext(canonical)
	dest := filepath.Join(dir, name)

	src, err := os.Open(canonical)
	if err != nil {
		return "", fmt.Errorf("open input: %w", err)
	}
	defer src.Close()

	out, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return "", fmt.Errorf("create sandbox copy: %w", err)
	}
	if _, err := io.Copy(out, src); err != nil {
		out.Close()
		os.Remove(dest)
		return "", fmt.Errorf("copy into sandbox: %w", err)
	}
	if err := out.Close(); err != nil {
		os.Remove(dest)
		return "", fmt.Errorf("close sandbox copy: %w", err)
	}
	if err := os.Chmod(dest, 0o400); err != nil {
		os.Remove(dest)
		return "", fmt.Errorf("set sandbox copy read-only: %w", err)
	}

	logrus.WithFields(logrus.Fields{"source": canonical, "copy": dest}).Debug("input staged")
	return dest, nil
}

// containsTraversal reports whether any element of the raw, unresolved path
// is "..". Checked before resolution so a traversal attempt is rejected even
// when it would resolve somewhere harmless.
func containsTraversal(raw string) bool {
	for _, part := range strings.Split(filepath.ToSlash(raw), "/") {
		if part == ".." {
			return true
		}
	}
	return false
}

func underAny(path string, roots []string) bool {
	for _, root := range roots {
		if path == root || strings.HasPrefix(path, root+string(os.PathSeparator)) {
			return true
		}
	}
	return false
}
