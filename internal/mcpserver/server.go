// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes beamline tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/beamline/internal/apperr"
	"github.com/starford/beamline/internal/service"
)

const rulesURI = "beamline://transform-rules"

// Server wraps the MCP server with beamline tools.
type Server struct {
	mcp *server.MCPServer
	svc *service.Service
}

// New creates a new MCP server with all beamline tools registered.
func New(svc *service.Service, version string) *Server {
	s := &Server{svc: svc}

	s.mcp = server.NewMCPServer(
		"Beamline",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("recent_runs",
		mcp.WithDescription("List the most recent processing runs, newest first."),
		mcp.WithNumber("limit", mcp.Description("Maximum number of runs (default 20)")),
		mcp.WithString("path", mcp.Description("Only runs on this absolute path")),
	), s.recentRuns)

	s.mcp.AddTool(mcp.NewTool("normalize_identifier",
		mcp.WithDescription("Show the rich and legacy normalization of a piece identifier."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Identifier such as W8722-B012-A007")),
	), s.normalizeIdentifier)

	s.mcp.AddTool(mcp.NewTool("process_file",
		mcp.WithDescription("Queue a .nc1 or .idstv file inside a watched folder for processing."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Absolute path of the file")),
	), s.processFile)

	s.mcp.AddTool(mcp.NewTool("list_folders",
		mcp.WithDescription("List the folders beamline watches."),
	), s.listFolders)

	s.mcp.AddResource(
		mcp.NewResource(rulesURI, "Transform Rules",
			mcp.WithResourceDescription("What beamline changes in records and metadata documents."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readRulesResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func (s *Server) recentRuns(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	runs, err := s.svc.RecentRuns(ctx, req.GetInt("limit", 20), req.GetString("path", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, _ := json.MarshalIndent(runs, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) normalizeIdentifier(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, _ := json.MarshalIndent(service.NormalizeIdentifier(id), "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) processFile(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := s.svc.ProcessFile(ctx, path); err != nil {
		switch {
		case errors.Is(err, apperr.ErrOutsideRoots):
			return mcp.NewToolResultError("path is outside the watched folders: " + path), nil
		case errors.Is(err, apperr.ErrNotFound):
			return mcp.NewToolResultError("not found: " + path), nil
		case errors.Is(err, apperr.ErrUnsupported):
			return mcp.NewToolResultError("not a .nc1 or .idstv file: " + path), nil
		}
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText("queued: " + path), nil
}

func (s *Server) listFolders(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(strings.Join(s.svc.Folders(ctx), "\n")), nil
}

func (s *Server) readRulesResource(_ context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      rulesURI,
			MIMEType: "text/markdown",
			Text:     TransformRules,
		},
	}, nil
}
