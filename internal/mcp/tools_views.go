package mcpserver

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"condorview/internal/service"
)

func (s *Server) registerViewTools() {
	s.mcp.AddTool(mcp.NewTool("list_views",
		mcp.WithDescription("List saved views with their trigger and last refresh status"),
	), s.handleListViews)

	s.mcp.AddTool(mcp.NewTool("save_view",
		mcp.WithDescription("Create or update (by name) a saved view. triggerType is manual, schedule "+
			"(triggerConfig is a cron expression such as \"*/5 * * * *\") or file_watch (triggerConfig is a path)."),
		mcp.WithString("name", mcp.Description("View name"), mcp.Required()),
		mcp.WithString("query", mcp.Description("Query string"), mcp.Required()),
		mcp.WithString("triggerType", mcp.Description("manual, schedule or file_watch")),
		mcp.WithString("triggerConfig", mcp.Description("Cron expression or watched path")),
		mcp.WithBoolean("enabled", mcp.Description("Whether the trigger is active (default true)")),
	), s.handleSaveView)

	s.mcp.AddTool(mcp.NewTool("run_view",
		mcp.WithDescription("Refresh a saved view now and return its rendered output"),
		mcp.WithString("view", mcp.Description("View name or ID"), mcp.Required()),
	), s.handleRunView)

	s.mcp.AddTool(mcp.NewTool("view_runs",
		mcp.WithDescription("Show the most recent refreshes of a saved view"),
		mcp.WithString("view", mcp.Description("View name or ID"), mcp.Required()),
		mcp.WithNumber("limit", mcp.Description("Number of runs (default 10)")),
	), s.handleViewRuns)

	s.mcp.AddTool(mcp.NewTool("delete_view",
		mcp.WithDescription("Delete a saved view and its run history. 🛑 Requires user approval."),
		mcp.WithString("view", mcp.Description("View name or ID"), mcp.Required()),
		mcp.WithToolAnnotation(mcp.ToolAnnotation{DestructiveHint: boolPtr(true)}),
	), s.handleDeleteView)
}

func (s *Server) handleListViews(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	views, err := s.views.ListViews()
	if err != nil {
		return nil, fmt.Errorf("list views: %w", err)
	}
	return jsonResult(views)
}

func (s *Server) handleSaveView(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	enabled := true
	if v, ok := args["enabled"].(bool); ok {
		enabled = v
	}
	v, err := s.views.SaveView(ctx, service.SaveViewInput{
		Name:          req.GetString("name", ""),
		Query:         req.GetString("query", ""),
		TriggerType:   req.GetString("triggerType", ""),
		TriggerConfig: req.GetString("triggerConfig", ""),
		Enabled:       enabled,
	})
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(v)
}

func (s *Server) handleRunView(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ref := req.GetString("view", "")
	if ref == "" {
		return nil, fmt.Errorf("view is required")
	}
	res, err := s.views.RunView(ctx, ref, service.TriggerByManual)
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(res.Output)
}

func (s *Server) handleViewRuns(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ref := req.GetString("view", "")
	limit := int(getFloat(req.GetArguments(), "limit", 10))
	logs, err := s.views.ListRunLogs(ref, limit)
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(logs)
}

func (s *Server) handleDeleteView(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ref := req.GetString("view", "")
	v, err := s.views.GetView(ref)
	if err != nil {
		return errorResult(err), nil
	}
	if err := s.approval.Request(ctx, "delete_view", fmt.Sprintf("Delete view %q (%s)", v.Name, v.Query)); err != nil {
		return errorResult(err), nil
	}
	if err := s.views.DeleteView(ctx, v.ID); err != nil {
		return nil, fmt.Errorf("delete view: %w", err)
	}
	return textResult(fmt.Sprintf("Deleted view %q", v.Name)), nil
}
