// Package mcpserver exposes the query engine, saved views and database
// connections to agents over the Model Context Protocol.
package mcpserver

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"condorview/internal/pipeline"
	"condorview/internal/service"
	"condorview/internal/storage"
)

// Server is the condorview MCP server.
type Server struct {
	mcp      *server.MCPServer
	log      *zap.Logger
	approval *ApprovalQueue

	runner   *pipeline.Runner
	views    *service.ViewService
	database *service.DatabaseService

	previewRows int
}

// Deps holds everything the tools call into.
type Deps struct {
	Logger   *zap.Logger
	Runner   *pipeline.Runner
	Views    *service.ViewService
	Database *service.DatabaseService

	// Approvals backs the approval queue for destructive tools.
	Approvals       *storage.ApprovalStore
	AutoApprove     bool
	ApprovalTimeout time.Duration

	// PreviewRows caps the rows returned inline by run_query. Zero means 200.
	PreviewRows int
}

// New creates and configures a new MCP server with all tools, resources and prompts.
func New(deps Deps) *Server {
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}
	s := &Server{
		log:      log,
		approval: NewApprovalQueue(deps.Approvals, log, deps.AutoApprove, deps.ApprovalTimeout),
		runner:   deps.Runner,
		views:    deps.Views,
		database: deps.Database,
	}
	s.previewRows = deps.PreviewRows
	if s.previewRows <= 0 {
		s.previewRows = 200
	}

	s.mcp = server.NewMCPServer(
		"condorview-mcp",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(true, false),
		server.WithPromptCapabilities(true),
	)

	s.registerQueryTools()
	if s.views != nil {
		s.registerViewTools()
	}
	if s.database != nil {
		s.registerDatabaseTools()
	}
	s.registerResources()
	s.registerPrompts()
	return s
}

// MCP returns the underlying protocol server.
func (s *Server) MCP() *server.MCPServer { return s.mcp }

// ServeStdio serves on stdin/stdout until the client disconnects.
func (s *Server) ServeStdio() error {
	s.log.Info("starting MCP stdio server")
	return server.ServeStdio(s.mcp)
}

// ── Helpers ────────────────────────────────────────────────

func boolPtr(v bool) *bool { return &v }

// textResult creates a simple text tool result.
func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

// jsonResult serializes v to JSON and wraps it in a text tool result.
func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal result: %w", err)
	}
	return textResult(string(data)), nil
}

// errorResult reports a failure to the agent as tool output rather than a
// protocol error, so it can correct the query and retry.
func errorResult(err error) *mcp.CallToolResult {
	return mcp.NewToolResultError(err.Error())
}

func getFloat(args map[string]any, key string, fallback float64) float64 {
	if v, ok := args[key].(float64); ok {
		return v
	}
	return fallback
}

func getBool(args map[string]any, key string) bool {
	v, _ := args[key].(bool)
	return v
}
