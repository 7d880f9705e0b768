// Package dispatch routes validated tool requests through the sandbox,
// cache, concurrency gate, and operation catalog.
//
// Information Hiding:
// - Request lifecycle staging (validate, cache check, execute, store)
//   is internal; callers see one Dispatch call returning an envelope
// - Cache key derivation is internalized
// - Every failure leaves through a well-formed envelope, never a bare error
package dispatch

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/halverson/binwise/cache"
	"github.com/halverson/binwise/gate"
	"github.com/halverson/binwise/ledger"
	"github.com/halverson/binwise/model"
	"github.com/halverson/binwise/ops"
	"github.com/halverson/binwise/sandbox"
)

// schemaVersion participates in cache keys so envelope format changes
// invalidate stale entries across upgrades.
const schemaVersion = "1"

// Reserved request keys handled here rather than by operation schemas.
const (
	keyBinaryPath = "binary_path"
	keyProfile    = "analysis_profile"
	keyProvider   = "provider"
)

// Options configures a Dispatcher.
type Options struct {
	Guard    *sandbox.Guard
	Cache    *cache.Cache
	Backends *ops.Backends

	// DefaultProfile applies when a request names no analysis_profile.
	DefaultProfile string

	// PreferredProvider pins interpretive operations to one provider
	// unless the request overrides it.
	PreferredProvider string

	Log *logrus.Logger
}

// Dispatcher executes catalog operations with uniform request hygiene.
type Dispatcher struct {
	guard    *sandbox.Guard
	cache    *cache.Cache
	catalog  map[string]ops.Operation
	backends *ops.Backends

	defaultProfile    string
	preferredProvider string
	log               *logrus.Logger
}

// New builds a dispatcher over the full operation catalog.
func New(opts Options) *Dispatcher {
	log := opts.Log
	if log == nil {
		log = logrus.StandardLogger()
	}
	profile := opts.DefaultProfile
	if profile == "" {
		profile = ops.DefaultProfile
	}
	return &Dispatcher{
		guard:             opts.Guard,
		cache:             opts.Cache,
		catalog:           ops.Catalog(),
		backends:          opts.Backends,
		defaultProfile:    profile,
		preferredProvider: opts.PreferredProvider,
		log:               log,
	}
}

// Tools returns the sorted names of dispatchable operations.
func (d *Dispatcher) Tools() []string { return ops.Names() }

// Operation returns the catalog entry for name, if any.
func (d *Dispatcher) Operation(name string) (ops.Operation, bool) {
	op, ok := d.catalog[name]
	return op, ok
}

// Dispatch runs one tool request end to end. The returned envelope is
// always well-formed; validation and execution failures are reported
// inside it. The error return is reserved for context cancellation.
func (d *Dispatcher) Dispatch(ctx context.Context, tool string, raw map[string]interface{}) (*model.Envelope, error) {
	log := d.log.WithFields(logrus.Fields{"tool": tool, "stage": "received"})

	op, ok := d.catalog[tool]
	if !ok {
		return model.FailureEnvelope(tool, d.defaultProfile, model.FailValidation,
			fmt.Sprintf("unknown tool %q", tool)), nil
	}
	spec := op.Spec()

	profile, binaryPath, pinned, params, verr := d.splitReserved(spec, raw)
	if verr != nil {
		return model.FailureEnvelope(tool, d.defaultProfile, model.FailValidation, verr.Error()), nil
	}

	validated, err := spec.Validate(params)
	if err != nil {
		return model.FailureEnvelope(tool, profile, model.FailValidation, err.Error()), nil
	}

	req := ops.Request{Params: validated, Profile: profile, PinnedProvider: pinned}
	if spec.NeedsFile {
		ref, err := d.guard.Validate(binaryPath)
		if err != nil {
			if verr, ok := sandbox.AsValidation(err); ok {
				return model.FailureEnvelope(tool, profile, model.FailValidation, verr.Error()), nil
			}
			return model.FailureEnvelope(tool, profile, model.FailInternal, err.Error()), nil
		}
		defer ref.Close()
		req.File = ref

		// Byte-range parameters are bounds-checked against the real file
		// before anything reads it. A length running past EOF is clamped;
		// an offset outside the file is rejected.
		if _, hasOff := validated["offset"]; hasOff {
			off, length := validated.Int("offset"), validated.Int("length")
			if off <= ref.Size && off+length > ref.Size {
				length = ref.Size - off
				validated["length"] = length
			}
			if err := ref.CheckRange(off, length); err != nil {
				return model.FailureEnvelope(tool, profile, model.FailValidation, err.Error()), nil
			}
		}
	}
	log = log.WithField("stage", "validated")

	var key string
	var lookup cache.LookupResult
	if spec.Cacheable && d.cache != nil {
		key = cacheKey(tool, profile, validated, req.File)
		env, result := d.cache.Lookup(key)
		lookup = result
		if result == cache.Hit {
			env.Metadata.ToolName = tool
			env.Metadata.AnalysisProfile = profile
			env.Metadata.CacheHit = true
			env.Metadata.CacheLookup = string(result)
			env.Metadata.ProviderUsed = "cache"
			log.WithField("stage", "cache_hit").Debug("served from cache")
			return env, nil
		}
	}

	if spec.ResourceClass != "" && d.backends.Gate != nil {
		lease, err := d.backends.Gate.Acquire(ctx, spec.ResourceClass)
		if err != nil {
			if errors.Is(err, gate.ErrGateTimeout) {
				return model.FailureEnvelope(tool, profile, model.FailBackendUnavailable,
					"too many concurrent "+spec.ResourceClass+" analyses; try again shortly"), nil
			}
			return nil, err
		}
		defer lease.Release()
	}

	log.WithField("stage", "executing").Debug("running operation")
	start := time.Now()
	env, err := op.Execute(ctx, d.backends, req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if verr, ok := sandbox.AsValidation(err); ok {
			return model.FailureEnvelope(tool, profile, model.FailValidation, verr.Error()), nil
		}
		log.WithError(err).Error("operation failed")
		return model.FailureEnvelope(tool, profile, model.FailInternal, err.Error()), nil
	}

	env.Metadata.ToolName = tool
	env.Metadata.AnalysisProfile = profile
	env.Metadata.CacheHit = false
	env.Metadata.CacheLookup = string(lookup)
	if profile == "malware" && req.File != nil {
		env.Metadata.SandboxWarning = "input treated as hostile: analyzed from a read-only sandbox copy, never executed"
	}

	d.recordLocal(ctx, tool, env, time.Since(start))

	if spec.Cacheable && d.cache != nil && env.Error == nil && !env.Metadata.Degraded {
		d.cache.Store(key, env, 0)
		log = log.WithField("stage", "stored")
	}
	log.WithField("stage", "done").Debug("request complete")
	return env, nil
}

// splitReserved pulls dispatcher-level keys out of the raw arguments,
// leaving only operation parameters behind.
func (d *Dispatcher) splitReserved(spec ops.Spec, raw map[string]interface{}) (profile, binaryPath, pinned string, params map[string]interface{}, err error) {
	profile = d.defaultProfile
	pinned = d.preferredProvider
	params = make(map[string]interface{}, len(raw))

	for k, v := range raw {
		switch k {
		case keyProfile:
			str, ok := v.(string)
			if !ok || !validProfile(str) {
				return "", "", "", nil, fmt.Errorf("analysis_profile must be one of %v", ops.Profiles)
			}
			profile = str
		case keyBinaryPath:
			str, ok := v.(string)
			if !ok {
				return "", "", "", nil, fmt.Errorf("binary_path must be a string")
			}
			binaryPath = str
		case keyProvider:
			str, ok := v.(string)
			if !ok {
				return "", "", "", nil, fmt.Errorf("provider must be a string")
			}
			pinned = str
		default:
			params[k] = v
		}
	}

	if spec.NeedsFile && binaryPath == "" {
		return "", "", "", nil, fmt.Errorf("%s: missing required parameter %q", spec.Name, keyBinaryPath)
	}
	if !spec.NeedsFile && binaryPath != "" {
		return "", "", "", nil, fmt.Errorf("%s does not accept %q", spec.Name, keyBinaryPath)
	}
	return profile, binaryPath, pinned, params, nil
}

func validProfile(p string) bool {
	for _, known := range ops.Profiles {
		if p == known {
			return true
		}
	}
	return false
}

// cacheKey derives a stable fingerprint for one request: operation name,
// normalized parameters, file content fingerprint, and profile. JSON
// marshalling sorts map keys, so parameter order cannot split entries.
func cacheKey(tool, profile string, params ops.Params, file *sandbox.FileReference) string {
	canonical, err := json.Marshal(params)
	if err != nil {
		canonical = []byte(fmt.Sprintf("%v", params))
	}
	h := sha256.New()
	fmt.Fprintf(h, "%s|%s|%s|%s|", schemaVersion, tool, profile, canonical)
	if file != nil {
		h.Write([]byte(file.Fingerprint))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// recordLocal appends a usage record for operations that ran without a
// provider; AI-backed attempts are accounted per attempt elsewhere.
func (d *Dispatcher) recordLocal(ctx context.Context, tool string, env *model.Envelope, latency time.Duration) {
	if d.backends.Ledger == nil || env.Metadata.ProviderUsed != ledger.ProviderLocalFallback {
		return
	}
	rec := ledger.Record{
		Operation: tool,
		Provider:  ledger.ProviderLocalFallback,
		Latency:   latency,
		Success:   env.Error == nil,
	}
	if err := d.backends.Ledger.Append(context.WithoutCancel(ctx), rec); err != nil {
		d.log.WithError(err).Warn("usage record append failed")
	}
}
