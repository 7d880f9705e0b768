// Package ops defines the closed operation catalog: every analysis the
// dispatcher can run, each with a declared parameter schema and
// execution contract.
//
// Operations never touch raw user paths; they receive a validated file
// reference from the sandbox layer. Deterministic, read-only operations
// are flagged cacheable; anything involving an AI completion is not,
// since its phrasing may legitimately vary between runs.
package ops

import (
	"context"
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/halverson/binwise/gate"
	"github.com/halverson/binwise/ghidra"
	"github.com/halverson/binwise/ledger"
	"github.com/halverson/binwise/model"
	"github.com/halverson/binwise/orchestrate"
	"github.com/halverson/binwise/registry"
	"github.com/halverson/binwise/sandbox"
)

// ParamKind is the wire type of a parameter.
type ParamKind int

const (
	KindString ParamKind = iota
	KindInt
	KindBool
)

// ParamSpec declares one operation parameter.
type ParamSpec struct {
	Name        string
	Kind        ParamKind
	Required    bool
	Description string
	// Enum restricts string values when non-empty.
	Enum []string
	// Min/Max bound int values when HasRange is set.
	HasRange bool
	Min, Max int64
	// Default fills the parameter when absent.
	Default interface{}
}

// Spec declares an operation's contract.
type Spec struct {
	Name        string
	Description string
	// Cacheable marks deterministic read-only operations.
	Cacheable bool
	// NeedsFile adds a required binary_path parameter handled by the
	// sandbox layer before execution.
	NeedsFile bool
	// ResourceClass names the gate class held for this operation's
	// whole execution ("" for none). Operations that mix a subprocess
	// step with provider calls lease the subprocess class themselves,
	// scoped to the subprocess step only.
	ResourceClass string
	Params        []ParamSpec
}

// Params is a validated parameter set.
type Params map[string]interface{}

// String returns a string parameter ("" when absent).
func (p Params) String(name string) string {
	v, _ := p[name].(string)
	return v
}

// Int returns an int parameter (0 when absent).
func (p Params) Int(name string) int64 {
	switch v := p[name].(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case float64:
		return int64(v)
	}
	return 0
}

// Bool returns a bool parameter (false when absent).
func (p Params) Bool(name string) bool {
	v, _ := p[name].(bool)
	return v
}

// Validate checks raw parameters against the schema, applies defaults,
// and returns the normalized set. Unknown parameters are rejected so
// typos fail loudly.
func (s Spec) Validate(raw map[string]interface{}) (Params, error) {
	known := make(map[string]ParamSpec, len(s.Params))
	for _, ps := range s.Params {
		known[ps.Name] = ps
	}
	for name := range raw {
		if _, ok := known[name]; !ok {
			return nil, fmt.Errorf("%s: unknown parameter %q", s.Name, name)
		}
	}

	out := make(Params, len(s.Params))
	for _, ps := range s.Params {
		v, present := raw[ps.Name]
		if !present {
			if ps.Required {
				return nil, fmt.Errorf("%s: missing required parameter %q", s.Name, ps.Name)
			}
			if ps.Default != nil {
				out[ps.Name] = ps.Default
			}
			continue
		}
		normalized, err := ps.normalize(v)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", s.Name, err)
		}
		out[ps.Name] = normalized
	}
	return out, nil
}

func (ps ParamSpec) normalize(v interface{}) (interface{}, error) {
	switch ps.Kind {
	case KindString:
		str, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("parameter %q must be a string", ps.Name)
		}
		if len(ps.Enum) > 0 {
			for _, allowed := range ps.Enum {
				if str == allowed {
					return str, nil
				}
			}
			return nil, fmt.Errorf("parameter %q must be one of %v, got %q", ps.Name, ps.Enum, str)
		}
		return str, nil
	case KindInt:
		var n int64
		switch num := v.(type) {
		case int:
			n = int64(num)
		case int64:
			n = num
		case float64:
			if num != float64(int64(num)) {
				return nil, fmt.Errorf("parameter %q must be an integer", ps.Name)
			}
			n = int64(num)
		default:
			return nil, fmt.Errorf("parameter %q must be an integer", ps.Name)
		}
		if ps.HasRange && (n < ps.Min || n > ps.Max) {
			return nil, fmt.Errorf("parameter %q must be between %d and %d, got %d", ps.Name, ps.Min, ps.Max, n)
		}
		return n, nil
	case KindBool:
		b, ok := v.(bool)
		if !ok {
			return nil, fmt.Errorf("parameter %q must be a boolean", ps.Name)
		}
		return b, nil
	}
	return nil, fmt.Errorf("parameter %q has unsupported kind", ps.Name)
}

// AIExecutor runs an analysis query through the provider fallback
// chain. Satisfied by *orchestrate.Orchestrator.
type AIExecutor interface {
	Execute(ctx context.Context, q orchestrate.Query) (orchestrate.Outcome, error)
}

// Backends bundles the execution resources operations draw on.
type Backends struct {
	Ghidra   *ghidra.Runner
	AI       AIExecutor
	Gate     *gate.Gate
	Registry *registry.Registry
	Ledger   ledger.Ledger
	Log      *logrus.Logger
}

// Request is one validated invocation of an operation.
type Request struct {
	// File is the sandboxed reference for NeedsFile operations, nil
	// otherwise.
	File    *sandbox.FileReference
	Params  Params
	Profile string
	// PinnedProvider restricts AI execution to one provider.
	PinnedProvider string
}

// Operation is one catalog entry.
type Operation interface {
	Spec() Spec
	Execute(ctx context.Context, b *Backends, req Request) (*model.Envelope, error)
}

// Catalog returns the closed operation set keyed by name.
func Catalog() map[string]Operation {
	catalog := map[string]Operation{}
	for _, op := range []Operation{
		fileInfoOp{},
		stringsScanOp{},
		hexdumpOp{},
		objdumpScanOp{},
		readelfScanOp{},
		ghidraBinaryOp{},
		ghidraFunctionOp{},
		patternSearchOp{},
		reQueryOp{},
		providerStatusOp{},
	} {
		catalog[op.Spec().Name] = op
	}
	return catalog
}

// Names returns the sorted catalog names.
func Names() []string {
	catalog := Catalog()
	names := make([]string, 0, len(catalog))
	for name := range catalog {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
