package mcpserver

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
)

func (s *Server) registerDatabaseTools() {
	s.mcp.AddTool(mcp.NewTool("list_db_connections",
		mcp.WithDescription("List saved database connections usable as db://<connection>/<query> sources"),
	), s.handleListDBConnections)

	s.mcp.AddTool(mcp.NewTool("introspect_database",
		mcp.WithDescription("Get schema information (tables and columns) of a database connection"),
		mcp.WithString("connection", mcp.Description("Connection name or ID"), mcp.Required()),
	), s.handleIntrospectDatabase)

	s.mcp.AddTool(mcp.NewTool("test_db_connection",
		mcp.WithDescription("Check that a database connection can be reached"),
		mcp.WithString("connection", mcp.Description("Connection name or ID"), mcp.Required()),
	), s.handleTestDBConnection)

	s.mcp.AddTool(mcp.NewTool("delete_db_connection",
		mcp.WithDescription("Delete a saved database connection and its stored password. 🛑 Requires user approval."),
		mcp.WithString("connection", mcp.Description("Connection name or ID"), mcp.Required()),
		mcp.WithToolAnnotation(mcp.ToolAnnotation{DestructiveHint: boolPtr(true)}),
	), s.handleDeleteDBConnection)
}

func (s *Server) handleListDBConnections(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	conns, err := s.database.ListConnections()
	if err != nil {
		return nil, fmt.Errorf("list connections: %w", err)
	}
	return jsonResult(conns)
}

func (s *Server) handleIntrospectDatabase(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ref := req.GetString("connection", "")
	if ref == "" {
		return nil, fmt.Errorf("connection is required")
	}
	schema, err := s.database.Introspect(ctx, ref)
	if err != nil {
		return errorResult(fmt.Errorf("introspect: %w", err)), nil
	}
	return jsonResult(schema)
}

func (s *Server) handleTestDBConnection(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ref := req.GetString("connection", "")
	if err := s.database.TestConnection(ctx, ref); err != nil {
		return errorResult(err), nil
	}
	return textResult(fmt.Sprintf("Connection %s OK", ref)), nil
}

func (s *Server) handleDeleteDBConnection(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ref := req.GetString("connection", "")
	if ref == "" {
		return nil, fmt.Errorf("connection is required")
	}
	if err := s.approval.Request(ctx, "delete_db_connection", fmt.Sprintf("Delete database connection %s", ref)); err != nil {
		return errorResult(err), nil
	}
	if err := s.database.DeleteConnection(ref); err != nil {
		return errorResult(err), nil
	}
	return textResult(fmt.Sprintf("Deleted connection %s", ref)), nil
}
