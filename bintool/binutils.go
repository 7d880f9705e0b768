// Wrappers for the binutils inspectors (objdump, readelf).
//
// These shell out rather than reimplementing object-file parsing; the
// wrappers own command construction, timeouts, and output summaries so
// callers only see structured results.

package bintool

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

const inspectorTimeout = 120 * time.Second

// SectionResult is the output of one inspector invocation.
type SectionResult struct {
	Output  string         `json:"output"`
	Summary map[string]int `json:"summary,omitempty"`
}

// InspectResult groups the requested analyses.
type InspectResult struct {
	Tool    string                   `json:"tool"`
	Results map[string]SectionResult `json:"results"`
}

var objdumpFlags = map[string]string{
	"headers":     "-h",
	"disassemble": "-d",
	"symbols":     "-t",
	"sections":    "-h",
	"relocs":      "-r",
	"dynamic":     "-T",
}

var readelfFlags = map[string]string{
	"headers":  "-h",
	"sections": "-S",
	"symbols":  "-s",
	"relocs":   "-r",
	"dynamic":  "-d",
	"notes":    "-n",
}

// ObjdumpKinds lists the supported objdump analysis kinds.
func ObjdumpKinds() []string { return kinds(objdumpFlags) }

// ReadelfKinds lists the supported readelf analysis kinds.
func ReadelfKinds() []string { return kinds(readelfFlags) }

func kinds(m map[string]string) []string {
	out := make([]string, 0, len(m)+1)
	out = append(out, "all")
	for k := range m {
		out = append(out, k)
	}
	return out
}

// Objdump runs the requested analysis kind ("all" runs every kind).
func Objdump(ctx context.Context, path, kind, architecture string) (*InspectResult, error) {
	result := &InspectResult{Tool: "objdump", Results: map[string]SectionResult{}}
	for _, k := range selectKinds(objdumpFlags, kind) {
		args := []string{objdumpFlags[k]}
		if architecture != "" {
			args = append(args, "-m", architecture)
		}
		args = append(args, path)

		out, err := runInspector(ctx, "objdump", args)
		if err != nil {
			return nil, err
		}
		result.Results[k] = SectionResult{Output: out, Summary: summarizeObjdump(k, out)}
	}
	if len(result.Results) == 0 {
		return nil, fmt.Errorf("bintool: unknown objdump analysis kind %q", kind)
	}
	return result, nil
}

// Readelf runs the requested analysis kind ("all" runs every kind).
func Readelf(ctx context.Context, path, kind string) (*InspectResult, error) {
	result := &InspectResult{Tool: "readelf", Results: map[string]SectionResult{}}
	for _, k := range selectKinds(readelfFlags, kind) {
		out, err := runInspector(ctx, "readelf", []string{readelfFlags[k], path})
		if err != nil {
			return nil, err
		}
		result.Results[k] = SectionResult{Output: out, Summary: summarizeReadelf(k, out)}
	}
	if len(result.Results) == 0 {
		return nil, fmt.Errorf("bintool: unknown readelf analysis kind %q", kind)
	}
	return result, nil
}

func selectKinds(flags map[string]string, kind string) []string {
	if kind == "" || kind == "all" {
		return kinds(flags)[1:]
	}
	if _, ok := flags[kind]; ok {
		return []string{kind}
	}
	return nil
}

func runInspector(ctx context.Context, tool string, args []string) (string, error) {
	if _, err := exec.LookPath(tool); err != nil {
		return "", fmt.Errorf("bintool: %s not installed: %w", tool, err)
	}

	runCtx, cancel := context.WithTimeout(ctx, inspectorTimeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, tool, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("bintool: %s failed: %w: %s", tool, err, firstLine(stderr.String()))
	}
	return stdout.String(), nil
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

func summarizeObjdump(kind, output string) map[string]int {
	lines := strings.Split(output, "\n")
	switch kind {
	case "headers", "sections":
		count := 0
		for _, line := range lines {
			trimmed := strings.TrimSpace(line)
			if trimmed != "" && !strings.HasPrefix(trimmed, "Idx") && !strings.HasPrefix(trimmed, "Section") {
				count++
			}
		}
		return map[string]int{"section_count": count}
	case "symbols":
		symbols, external := 0, 0
		for _, line := range lines {
			if strings.TrimSpace(line) == "" || strings.HasPrefix(line, "SYMBOL") {
				continue
			}
			symbols++
			if strings.Contains(line, "*UND*") {
				external++
			}
		}
		return map[string]int{"symbol_count": symbols, "external_symbols": external}
	case "disassemble":
		instructions := 0
		for _, line := range lines {
			if strings.Contains(line, ":") && strings.ContainsAny(line, "0123456789") {
				instructions++
			}
		}
		return map[string]int{"instruction_count": instructions}
	}
	return nil
}

func summarizeReadelf(kind, output string) map[string]int {
	lines := strings.Split(output, "\n")
	switch kind {
	case "sections":
		count := 0
		for _, line := range lines {
			if strings.HasPrefix(line, "  [") {
				count++
			}
		}
		return map[string]int{"section_count": count}
	case "symbols":
		count := 0
		for _, line := range lines {
			trimmed := strings.TrimSpace(line)
			if trimmed != "" && trimmed[0] >= '0' && trimmed[0] <= '9' {
				count++
			}
		}
		return map[string]int{"symbol_count": count}
	}
	return nil
}
