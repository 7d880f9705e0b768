// Package main provides the binwise CLI entry point.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/halverson/binwise/cli"
	"github.com/halverson/binwise/config"
	"github.com/halverson/binwise/mcpserv"
)

var verbose bool

func main() {
	// Load .env file if present (ignore "file not found" errors)
	if err := godotenv.Load(); err != nil {
		if !os.IsNotExist(err) {
			fmt.Fprintf(os.Stderr, "Warning: failed to load .env file: %v\n", err)
		}
	}

	rootCmd := &cobra.Command{
		Use:   "binwise",
		Short: "AI-assisted binary analysis with provider fallback",
		Long: `Binary analysis orchestration over sandboxed local tooling and a
chain of AI providers.

Local extraction (strings, hexdump, objdump, readelf, Ghidra headless)
runs first; interpretive analysis falls back across every configured
provider in cost order, with results cached by file fingerprint.`,
	}

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Show debug output")

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(toolsCmd())
	rootCmd.AddCommand(statusCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newApp() (*cli.App, error) {
	settings, err := config.Load()
	if err != nil {
		return nil, err
	}
	return cli.NewApp(settings, verbose)
}

func serveCmd() *cobra.Command {
	var transport string
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the analysis tools over the Model Context Protocol",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp()
			if err != nil {
				return err
			}
			defer app.Close()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			app.Cache.StartSweeper(ctx, 5*time.Minute)

			srv := mcpserv.New(app.Dispatcher, app.Log)
			switch transport {
			case "stdio":
				return srv.ServeStdio()
			case "sse":
				return srv.ServeSSE(addr)
			default:
				return fmt.Errorf("unknown transport %q (stdio or sse)", transport)
			}
		},
	}

	cmd.Flags().StringVar(&transport, "transport", "stdio", "Transport: stdio or sse")
	cmd.Flags().StringVar(&addr, "addr", "localhost:8080", "Listen address for the SSE transport")
	return cmd
}

func runCmd() *cobra.Command {
	var argsJSON string
	var kvArgs []string
	var text bool

	cmd := &cobra.Command{
		Use:   "run [tool]",
		Short: "Run one analysis tool and print the result",
		Example: `  binwise run file_info --arg binary_path=./target.bin
  binwise run strings_scan --arg binary_path=./target.bin --arg min_length=6
  binwise run re_query --json '{"query": "explain this ROP chain", "specialization": "binary_exploitation"}'`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp()
			if err != nil {
				return err
			}
			defer app.Close()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return app.RunTool(ctx, args[0], cli.RunOptions{
				ArgsJSON:   argsJSON,
				KeyValues:  kvArgs,
				OutputText: text,
			})
		},
	}

	cmd.Flags().StringVar(&argsJSON, "json", "", "Tool arguments as a JSON object")
	cmd.Flags().StringArrayVar(&kvArgs, "arg", nil, "Tool argument as key=value (repeatable)")
	cmd.Flags().BoolVar(&text, "text", false, "Render a human-readable report instead of JSON")
	return cmd
}

func toolsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tools",
		Short: "List available analysis tools and their parameters",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp()
			if err != nil {
				return err
			}
			defer app.Close()
			app.PrintTools()
			return nil
		},
	}
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show provider health and usage statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp()
			if err != nil {
				return err
			}
			defer app.Close()
			return app.PrintStatus(context.Background())
		},
	}
}
