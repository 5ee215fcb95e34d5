// Package mcpserve exposes registered spells as MCP tools over stdio, the
// daemon's line-oriented transport. Logging stays on stderr; stdout carries
// only protocol frames.
package mcpserve

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/metakeyai/spelld/pkg/llm"
	"github.com/metakeyai/spelld/pkg/spell"
)

const serverVersion = "0.2.0"

// CastArgs is the input schema shared by every spell tool.
type CastArgs struct {
	Input string `json:"input" jsonschema:"text passed to the spell"`
}

// QuickEditArgs is the input schema for the quick_edit tool.
type QuickEditArgs struct {
	Text string `json:"text" jsonschema:"text to improve"`
}

// Server bridges the spell registry onto an MCP stdio session.
type Server struct {
	registry *spell.Registry
	loader   *spell.Loader
	client   *llm.Switcher
	logger   *zap.Logger
}

// New wires the bridge.
func New(registry *spell.Registry, loader *spell.Loader, client *llm.Switcher, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{registry: registry, loader: loader, client: client, logger: logger}
}

// Run serves MCP over stdio until ctx is cancelled or the peer disconnects.
func (s *Server) Run(ctx context.Context) error {
	srv := s.build()
	s.logger.Info("mcp stdio transport ready", zap.Int("tools", s.registry.Len()+1))
	return srv.Run(ctx, &mcp.StdioTransport{})
}

// build assembles the MCP server with one tool per registered spell plus the
// quick_edit tool.
func (s *Server) build() *mcp.Server {
	srv := mcp.NewServer(&mcp.Implementation{Name: "spelld", Version: serverVersion}, nil)
	for _, desc := range s.registry.List() {
		s.addSpellTool(srv, desc)
	}
	s.addQuickEditTool(srv)
	return srv
}

func (s *Server) addSpellTool(srv *mcp.Server, desc spell.Descriptor) {
	description := desc.Description
	if description == "" {
		description = fmt.Sprintf("Cast the %s spell on the given text.", desc.Name)
	}
	mcp.AddTool(srv, &mcp.Tool{Name: desc.ID, Description: description},
		func(ctx context.Context, req *mcp.CallToolRequest, args CastArgs) (*mcp.CallToolResult, any, error) {
			unit, err := s.loader.LoadQuiet(desc.ScriptPath)
			if err != nil {
				return toolError(err), nil, nil
			}
			res := s.loader.Invoke(ctx, unit, args.Input)
			if res.Err != nil {
				return toolError(res.Err), nil, nil
			}
			return toolText(res.Output), nil, nil
		})
}

func (s *Server) addQuickEditTool(srv *mcp.Server) {
	mcp.AddTool(srv, &mcp.Tool{Name: "quick_edit", Description: "Improve a piece of text with the configured language model."},
		func(ctx context.Context, req *mcp.CallToolRequest, args QuickEditArgs) (*mcp.CallToolResult, any, error) {
			return toolText(llm.QuickEdit(ctx, s.client, args.Text)), nil, nil
		})
}

func toolText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}
}

func toolError(err error) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{&mcp.TextContent{Text: err.Error()}},
	}
}
