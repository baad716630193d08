// Package mcp exposes the retrieval tools over the Model Context
// Protocol, so external MCP clients (editors, agents) can search course
// content and fetch course outlines against the same stores the chat
// loop uses.
//
// Tool failures are data, not protocol errors: a failed search comes
// back as a CallToolResult with IsError set and the reason as text,
// matching how the conversation loop reports tool failures to the model.
package mcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/lecternhq/lectern/internal/tools"
)

// Server wraps the MCP SDK server and the retrieval tools it exposes.
type Server struct {
	mcpServer *mcp.Server
	search    *tools.SearchTool
	outline   *tools.OutlineTool
	logger    *slog.Logger
}

// Config holds MCP server configuration.
type Config struct {
	Name    string
	Version string
	Search  *tools.SearchTool
	Outline *tools.OutlineTool
	Logger  *slog.Logger
}

func (c *Config) validate() error {
	if c.Name == "" {
		return errors.New("server name is required")
	}
	if c.Version == "" {
		return errors.New("server version is required")
	}
	if c.Search == nil {
		return errors.New("search tool is required")
	}
	if c.Outline == nil {
		return errors.New("outline tool is required")
	}
	if c.Logger == nil {
		return errors.New("logger is required")
	}
	return nil
}

// NewServer creates an MCP server with both retrieval tools registered.
func NewServer(cfg Config) (*Server, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid mcp config: %w", err)
	}

	s := &Server{
		mcpServer: mcp.NewServer(&mcp.Implementation{
			Name:    cfg.Name,
			Version: cfg.Version,
		}, nil),
		search:  cfg.Search,
		outline: cfg.Outline,
		logger:  cfg.Logger,
	}

	if err := s.registerTools(); err != nil {
		return nil, fmt.Errorf("registering tools: %w", err)
	}
	return s, nil
}

// Run serves the MCP protocol on the given transport. Blocks until the
// transport closes or ctx is canceled.
func (s *Server) Run(ctx context.Context, transport mcp.Transport) error {
	return s.mcpServer.Run(ctx, transport)
}

func (s *Server) registerTools() error {
	searchSchema, err := jsonschema.For[tools.SearchInput](nil)
	if err != nil {
		return fmt.Errorf("schema for %s: %w", tools.SearchToolName, err)
	}
	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        tools.SearchToolName,
		Description: s.search.Definition().Description,
		InputSchema: searchSchema,
	}, s.searchContent)

	outlineSchema, err := jsonschema.For[tools.OutlineInput](nil)
	if err != nil {
		return fmt.Errorf("schema for %s: %w", tools.OutlineToolName, err)
	}
	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        tools.OutlineToolName,
		Description: s.outline.Definition().Description,
		InputSchema: outlineSchema,
	}, s.courseOutline)

	return nil
}

// searchContent handles the search_course_content MCP tool call.
func (s *Server) searchContent(ctx context.Context, _ *mcp.CallToolRequest, in tools.SearchInput) (*mcp.CallToolResult, any, error) {
	return resultToMCP(s.search.Run(ctx, in), s.logger), nil, nil
}

// courseOutline handles the get_course_outline MCP tool call.
func (s *Server) courseOutline(ctx context.Context, _ *mcp.CallToolRequest, in tools.OutlineInput) (*mcp.CallToolResult, any, error) {
	return resultToMCP(s.outline.Run(ctx, in), s.logger), nil, nil
}
