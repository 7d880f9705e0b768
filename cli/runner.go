// Command execution for CLI commands.
//
// Information Hiding:
// - Argument parsing (key=value and JSON forms) hidden
// - Output formatting hidden

package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/halverson/binwise/ops"
)

// RunOptions controls a one-shot tool invocation.
type RunOptions struct {
	// ArgsJSON is a JSON object of tool arguments; merged under KeyValues.
	ArgsJSON string
	// KeyValues are key=value argument pairs from the command line.
	KeyValues []string
	// OutputText renders the human report instead of JSON.
	OutputText bool
}

// RunTool executes one catalog operation and prints its envelope.
func (a *App) RunTool(ctx context.Context, tool string, opts RunOptions) error {
	args, err := parseArgs(opts)
	if err != nil {
		return err
	}

	env, err := a.Dispatcher.Dispatch(ctx, tool, args)
	if err != nil {
		return err
	}

	if opts.OutputText {
		fmt.Println(env.Text())
	} else {
		rendered, err := env.JSON()
		if err != nil {
			return err
		}
		fmt.Println(rendered)
	}

	if env.Error != nil {
		return fmt.Errorf("%s failed: %s", tool, env.Error.Message)
	}
	return nil
}

// PrintTools lists the catalog with parameter summaries.
func (a *App) PrintTools() {
	catalog := ops.Catalog()
	names := make([]string, 0, len(catalog))
	for name := range catalog {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		spec := catalog[name].Spec()
		fmt.Printf("%-18s %s\n", name, spec.Description)
		if spec.NeedsFile {
			fmt.Println("    binary_path (string, required)")
		}
		for _, ps := range spec.Params {
			fmt.Printf("    %s%s\n", ps.Name, paramSummary(ps))
		}
	}
}

func paramSummary(ps ops.ParamSpec) string {
	var parts []string
	switch ps.Kind {
	case ops.KindInt:
		parts = append(parts, "int")
		if ps.HasRange {
			parts = append(parts, fmt.Sprintf("%d..%d", ps.Min, ps.Max))
		}
	case ops.KindBool:
		parts = append(parts, "bool")
	default:
		parts = append(parts, "string")
		if len(ps.Enum) > 0 {
			parts = append(parts, strings.Join(ps.Enum, "|"))
		}
	}
	if ps.Required {
		parts = append(parts, "required")
	}
	if ps.Default != nil {
		parts = append(parts, fmt.Sprintf("default %v", ps.Default))
	}
	return " (" + strings.Join(parts, ", ") + ")"
}

// parseArgs merges the JSON object form with key=value pairs, the pairs
// winning on conflict. Values that parse as integers or booleans are
// passed through typed; everything else stays a string.
func parseArgs(opts RunOptions) (map[string]interface{}, error) {
	args := map[string]interface{}{}
	if opts.ArgsJSON != "" {
		if err := json.Unmarshal([]byte(opts.ArgsJSON), &args); err != nil {
			return nil, fmt.Errorf("parse --json: %w", err)
		}
	}
	for _, pair := range opts.KeyValues {
		key, value, found := strings.Cut(pair, "=")
		if !found || key == "" {
			return nil, fmt.Errorf("argument %q is not key=value", pair)
		}
		args[key] = coerce(value)
	}
	return args, nil
}

func coerce(value string) interface{} {
	if n, err := strconv.ParseInt(value, 10, 64); err == nil {
		return n
	}
	if b, err := strconv.ParseBool(value); err == nil {
		return b
	}
	return value
}

// PrintStatus reports provider health and accumulated usage.
func (a *App) PrintStatus(ctx context.Context) error {
	env, err := a.Dispatcher.Dispatch(ctx, "provider_status", nil)
	if err != nil {
		return err
	}
	fmt.Println(env.Text())
	if env.Error != nil {
		os.Exit(1)
	}
	return nil
}
