// Package mcpserv exposes the operation catalog over the Model Context
// Protocol, on stdio or SSE transport.
package mcpserv

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/sirupsen/logrus"

	"github.com/halverson/binwise/dispatch"
	"github.com/halverson/binwise/ops"
)

// Version is stamped at build time.
var Version = "dev"

// keyOutputFormat selects envelope rendering, handled at this layer.
const keyOutputFormat = "output_format"

// Server wraps an MCP server around a dispatcher.
type Server struct {
	mcp        *server.MCPServer
	dispatcher *dispatch.Dispatcher
	log        *logrus.Logger
}

// New registers every catalog operation as an MCP tool.
func New(d *dispatch.Dispatcher, log *logrus.Logger) *Server {
	if log == nil {
		log = logrus.StandardLogger()
	}
	s := &Server{
		mcp: server.NewMCPServer(
			"binwise binary analysis server",
			Version,
			server.WithToolCapabilities(true),
		),
		dispatcher: d,
		log:        log,
	}
	for _, name := range d.Tools() {
		op, ok := d.Operation(name)
		if !ok {
			continue
		}
		s.mcp.AddTool(toolFor(op.Spec()), s.handler(name))
	}
	return s
}

// ServeStdio blocks serving the stdio transport.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// ServeSSE blocks serving the SSE transport on addr.
func (s *Server) ServeSSE(addr string) error {
	sse := server.NewSSEServer(
		s.mcp,
		server.WithBaseURL("http://"+addr),
		server.WithKeepAlive(true),
	)
	s.log.WithField("addr", addr).Info("SSE endpoints ready at /sse and /message")
	return sse.Start(addr)
}

// toolFor translates an operation schema into an MCP tool declaration.
func toolFor(spec ops.Spec) mcp.Tool {
	opts := []mcp.ToolOption{
		mcp.WithDescription(spec.Description),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(spec.Cacheable),
	}

	if spec.NeedsFile {
		opts = append(opts, mcp.WithString("binary_path",
			mcp.Description("Path to the binary to analyze"),
			mcp.Required(),
		))
	}
	for _, ps := range spec.Params {
		opts = append(opts, paramOption(ps))
	}
	opts = append(opts,
		mcp.WithString("analysis_profile",
			mcp.Description("Analysis perspective to adopt"),
			mcp.Enum(ops.Profiles...),
		),
		mcp.WithString("provider",
			mcp.Description("Pin execution to one provider id, e.g. anthropic"),
		),
		mcp.WithString(keyOutputFormat,
			mcp.Description("Result rendering"),
			mcp.Enum("json", "text"),
		),
	)
	return mcp.NewTool(spec.Name, opts...)
}

func paramOption(ps ops.ParamSpec) mcp.ToolOption {
	switch ps.Kind {
	case ops.KindInt:
		props := []mcp.PropertyOption{mcp.Description(ps.Description)}
		if ps.Required {
			props = append(props, mcp.Required())
		}
		if ps.HasRange {
			props = append(props, mcp.Min(float64(ps.Min)), mcp.Max(float64(ps.Max)))
		}
		if def, ok := ps.Default.(int64); ok {
			props = append(props, mcp.DefaultNumber(float64(def)))
		}
		return mcp.WithNumber(ps.Name, props...)
	case ops.KindBool:
		props := []mcp.PropertyOption{mcp.Description(ps.Description)}
		if ps.Required {
			props = append(props, mcp.Required())
		}
		return mcp.WithBoolean(ps.Name, props...)
	default:
		props := []mcp.PropertyOption{mcp.Description(ps.Description)}
		if ps.Required {
			props = append(props, mcp.Required())
		}
		if len(ps.Enum) > 0 {
			props = append(props, mcp.Enum(ps.Enum...))
		}
		if def, ok := ps.Default.(string); ok {
			props = append(props, mcp.DefaultString(def))
		}
		return mcp.WithString(ps.Name, props...)
	}
}

// handler adapts one tool name onto the dispatcher. Failures inside the
// envelope render as tool output; only transport-level problems surface
// as protocol errors.
func (s *Server) handler(name string) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := request.GetArguments()
		format := "json"
		if f, ok := args[keyOutputFormat].(string); ok && f != "" {
			format = f
			delete(args, keyOutputFormat)
		}

		env, err := s.dispatcher.Dispatch(ctx, name, args)
		if err != nil {
			return nil, err
		}

		if format == "text" {
			return mcp.NewToolResultText(env.Text()), nil
		}
		rendered, err := env.JSON()
		if err != nil {
			return nil, fmt.Errorf("render result: %w", err)
		}
		return mcp.NewToolResultStructured(env, rendered), nil
	}
}
