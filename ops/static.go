// Deterministic local extraction operations. All of these are
// cacheable: their findings depend only on file content and
// parameters.

package ops

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/halverson/binwise/bintool"
	"github.com/halverson/binwise/gate"
	"github.com/halverson/binwise/model"
)

// findingsOf flattens a typed result into envelope findings.
func findingsOf(v interface{}) map[string]interface{} {
	raw, err := json.Marshal(v)
	if err != nil {
		return map[string]interface{}{"error": err.Error()}
	}
	out := map[string]interface{}{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return map[string]interface{}{"error": err.Error()}
	}
	return out
}

func localEnvelope(summary string, findings map[string]interface{}) *model.Envelope {
	return &model.Envelope{
		Metadata: model.Metadata{ProviderUsed: "local-fallback"},
		Summary:  summary,
		Findings: findings,
	}
}

type fileInfoOp struct{}

func (fileInfoOp) Spec() Spec {
	return Spec{
		Name:        "file_info",
		Description: "Identify a binary from magic bytes and stat data without executing it",
		Cacheable:   true,
		NeedsFile:   true,
	}
}

func (fileInfoOp) Execute(_ context.Context, _ *Backends, req Request) (*model.Envelope, error) {
	info, err := bintool.FileInfo(req.File.Path)
	if err != nil {
		return nil, err
	}
	summary := fmt.Sprintf("%s, %d bytes", info.DetectedType, info.SizeBytes)
	if info.Details != "" {
		summary += " (" + info.Details + ")"
	}
	return localEnvelope(summary, findingsOf(info)), nil
}

type stringsScanOp struct{}

func (stringsScanOp) Spec() Spec {
	return Spec{
		Name:        "strings_scan",
		Description: "Extract printable strings with pattern triage (URLs, crypto, suspicious keywords)",
		Cacheable:   true,
		NeedsFile:   true,
		Params: []ParamSpec{
			{Name: "min_length", Kind: KindInt, HasRange: true, Min: 1, Max: 64, Default: int64(4),
				Description: "Minimum string length to report"},
			{Name: "encoding", Kind: KindString, Default: bintool.EncodingAll,
				Enum:        []string{bintool.EncodingASCII, bintool.EncodingUTF16, bintool.EncodingAll},
				Description: "String encoding to scan for"},
		},
	}
}

func (stringsScanOp) Execute(_ context.Context, _ *Backends, req Request) (*model.Envelope, error) {
	res, err := bintool.ExtractStrings(req.File.Path, int(req.Params.Int("min_length")), req.Params.String("encoding"))
	if err != nil {
		return nil, err
	}
	summary := fmt.Sprintf("%d strings extracted", res.Count)
	if res.Truncated {
		summary += " (truncated)"
	}
	env := localEnvelope(summary, findingsOf(res))
	if len(res.Patterns.Suspicious) > 0 {
		env.Recommendations = append(env.Recommendations,
			"Suspicious strings present; follow up with ghidra_binary for behavioral confirmation")
	}
	if len(res.Patterns.URLs) > 0 {
		env.Recommendations = append(env.Recommendations,
			"Embedded URLs found; check them against threat intelligence before visiting")
	}
	return env, nil
}

type hexdumpOp struct{}

func (hexdumpOp) Spec() Spec {
	return Spec{
		Name:        "hexdump",
		Description: "Canonical hex dump of a byte range with entropy and magic-signature analysis",
		Cacheable:   true,
		NeedsFile:   true,
		Params: []ParamSpec{
			{Name: "offset", Kind: KindInt, HasRange: true, Min: 0, Max: 1 << 40, Default: int64(0),
				Description: "Byte offset to start dumping from"},
			{Name: "length", Kind: KindInt, HasRange: true, Min: 1, Max: 64 * 1024, Default: int64(512),
				Description: "Number of bytes to dump"},
		},
	}
}

func (hexdumpOp) Execute(_ context.Context, _ *Backends, req Request) (*model.Envelope, error) {
	res, err := bintool.Hexdump(req.File.Path, req.Params.Int("offset"), int(req.Params.Int("length")))
	if err != nil {
		return nil, err
	}
	summary := fmt.Sprintf("%d bytes at offset %d, entropy %.2f", res.Length, res.Offset, res.Patterns.EntropyEstimate)
	env := localEnvelope(summary, findingsOf(res))
	if res.Patterns.EntropyEstimate > 7.5 {
		env.Recommendations = append(env.Recommendations,
			"High entropy suggests packed or encrypted content; try pattern_search with packer_signatures")
	}
	return env, nil
}

type objdumpScanOp struct{}

func (objdumpScanOp) Spec() Spec {
	return Spec{
		Name:          "objdump_scan",
		Description:   "Run objdump section, symbol, and disassembly analysis",
		Cacheable:     true,
		NeedsFile:     true,
		ResourceClass: gate.ClassSubprocess,
		Params: []ParamSpec{
			{Name: "kind", Kind: KindString, Default: "all", Enum: bintool.ObjdumpKinds(),
				Description: "Analysis kind to run"},
			{Name: "architecture", Kind: KindString,
				Description: "Target architecture override for disassembly"},
		},
	}
}

func (objdumpScanOp) Execute(ctx context.Context, _ *Backends, req Request) (*model.Envelope, error) {
	res, err := bintool.Objdump(ctx, req.File.Path, req.Params.String("kind"), req.Params.String("architecture"))
	if err != nil {
		return nil, err
	}
	return localEnvelope(fmt.Sprintf("objdump %s analysis complete", req.Params.String("kind")), findingsOf(res)), nil
}

type readelfScanOp struct{}

func (readelfScanOp) Spec() Spec {
	return Spec{
		Name:          "readelf_scan",
		Description:   "Run readelf header, section, and symbol analysis on ELF binaries",
		Cacheable:     true,
		NeedsFile:     true,
		ResourceClass: gate.ClassSubprocess,
		Params: []ParamSpec{
			{Name: "kind", Kind: KindString, Default: "all", Enum: bintool.ReadelfKinds(),
				Description: "Analysis kind to run"},
		},
	}
}

func (readelfScanOp) Execute(ctx context.Context, _ *Backends, req Request) (*model.Envelope, error) {
	res, err := bintool.Readelf(ctx, req.File.Path, req.Params.String("kind"))
	if err != nil {
		return nil, err
	}
	return localEnvelope(fmt.Sprintf("readelf %s analysis complete", req.Params.String("kind")), findingsOf(res)), nil
}
