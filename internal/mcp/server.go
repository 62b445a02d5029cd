// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Grimoire Contributors

// Package mcp exposes each active tool as a callable MCP search tool over
// stdio or streamable HTTP.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/grimoire-dev/grimoire/internal/search"
	"github.com/grimoire-dev/grimoire/internal/store"
	grimerr "github.com/grimoire-dev/grimoire/pkg/errors"
)

// Searcher is the slice of the search engine the handlers need.
type Searcher interface {
	Search(ctx context.Context, toolName, query string, k int) ([]search.Result, error)
}

// Server maps the tool catalog onto MCP tools. The dispatch table is built
// once from the active tools; catalog changes take effect on the next start.
type Server struct {
	mcpServer    *server.MCPServer
	registry     store.ToolRegistry
	searcher     Searcher
	defaultLimit int
	logger       *slog.Logger
}

// NewServer builds an MCP server shell. Call RegisterTools before serving.
func NewServer(version string, registry store.ToolRegistry, searcher Searcher, defaultLimit int, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	mcpServer := server.NewMCPServer(
		"Grimoire",
		version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
	)

	return &Server{
		mcpServer:    mcpServer,
		registry:     registry,
		searcher:     searcher,
		defaultLimit: defaultLimit,
		logger:       logger,
	}
}

// RegisterTools enumerates the active tools and registers one search_<name>
// MCP tool per entry. It returns how many tools were registered.
func (s *Server) RegisterTools(ctx context.Context) (int, error) {
	tools, err := s.registry.List(ctx, false)
	if err != nil {
		return 0, err
	}

	for _, t := range tools {
		name := "search_" + t.Name
		description := t.Description
		if description == "" {
			description = "Search the " + t.Name + " document collection"
		}

		tool := mcp.NewTool(name,
			mcp.WithDescription(description),
			mcp.WithString("query",
				mcp.Required(),
				mcp.Description("Free-text query to match against the stored documents"),
			),
			mcp.WithNumber("limit",
				mcp.Description(fmt.Sprintf("Maximum number of results to return (default %d)", s.defaultLimit)),
			),
		)

		s.mcpServer.AddTool(tool, s.searchHandler(t.Name))
		s.logger.Debug("registered MCP tool",
			slog.String("tool", name),
			slog.Int64("tool_id", t.ID))
	}

	s.logger.Info("MCP dispatch table built",
		slog.Int("tools", len(tools)))
	return len(tools), nil
}

// searchHandler returns the handler closure for one tool. Argument errors and
// search failures come back as tool results so the client sees them inline.
func (s *Server) searchHandler(toolName string) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query, err := request.RequireString("query")
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("missing 'query' parameter: %v", err)), nil
		}

		limit := request.GetInt("limit", s.defaultLimit)

		results, err := s.searcher.Search(ctx, toolName, query, limit)
		if err != nil {
			s.logger.Warn("search tool call failed",
				slog.String("tool", toolName),
				slog.String("error", err.Error()))
			return mcp.NewToolResultError(err.Error()), nil
		}

		data, err := json.MarshalIndent(results, "", "  ")
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("encoding results: %v", err)), nil
		}

		return mcp.NewToolResultText(string(data)), nil
	}
}

// ServeStdio serves MCP over stdin/stdout and blocks until the client closes
// the stream.
func (s *Server) ServeStdio() error {
	s.logger.Info("serving MCP over stdio")

	if err := server.ServeStdio(s.mcpServer); err != nil {
		return grimerr.Wrap(err, grimerr.CodeMCPServeFailure, "stdio transport failed")
	}
	return nil
}

// ServeHTTP serves MCP over the streamable HTTP transport on addr and blocks
// until the listener fails or is shut down.
func (s *Server) ServeHTTP(addr string) error {
	s.logger.Info("serving MCP over streamable HTTP",
		slog.String("addr", addr))

	httpServer := server.NewStreamableHTTPServer(s.mcpServer)
	if err := httpServer.Start(addr); err != nil {
		return grimerr.Wrap(err, grimerr.CodeMCPServeFailure, "http transport failed on "+addr)
	}
	return nil
}
