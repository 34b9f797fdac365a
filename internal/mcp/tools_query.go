package mcpserver

import (
	"bytes"
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"condorview/internal/etl"
	"condorview/internal/grid"
	"condorview/internal/ops"
	"condorview/internal/pipeline"
	"condorview/internal/query"
)

func (s *Server) registerQueryTools() {
	s.mcp.AddTool(mcp.NewTool("run_query",
		mcp.WithDescription("Fetch one or more data sources and run operators over the merged table. "+
			"The query is a key=value&... string: url= names a source (repeatable), every other key "+
			"is an operator applied in order, e.g. url=jobs.json&filter=state=run&group=user;sum(jobs)&order=-jobs."),
		mcp.WithString("query", mcp.Description("Query string"), mcp.Required()),
		mcp.WithString("component", mcp.Description("Cache key; runs of the same component reuse loaded data while the url= list is unchanged")),
		mcp.WithBoolean("trace", mcp.Description("Include per-stage timings and row counts")),
		mcp.WithNumber("maxRows", mcp.Description("Rows to return inline (default 200)")),
		mcp.WithToolAnnotation(mcp.ToolAnnotation{ReadOnlyHint: boolPtr(true)}),
	), s.handleRunQuery)

	s.mcp.AddTool(mcp.NewTool("render_query",
		mcp.WithDescription("Run a query through the chart renderer and return the DataTable and chart options. "+
			"chart=type,opt=value picks the chart; without chart= the result is an HTML table."),
		mcp.WithString("query", mcp.Description("Query string"), mcp.Required()),
		mcp.WithToolAnnotation(mcp.ToolAnnotation{ReadOnlyHint: boolPtr(true)}),
	), s.handleRenderQuery)

	s.mcp.AddTool(mcp.NewTool("export_csv",
		mcp.WithDescription("Run a query and return the whole resulting table as CSV"),
		mcp.WithString("query", mcp.Description("Query string"), mcp.Required()),
		mcp.WithToolAnnotation(mcp.ToolAnnotation{ReadOnlyHint: boolPtr(true)}),
	), s.handleExportCSV)

	s.mcp.AddTool(mcp.NewTool("list_operators",
		mcp.WithDescription("List the table operators a query may use, with argument syntax"),
	), s.handleListOperators)

	s.mcp.AddTool(mcp.NewTool("list_sources",
		mcp.WithDescription("List the data source types url= can point at"),
	), s.handleListSources)
}

// queryResult is the run_query payload.
type queryResult struct {
	Grid      *grid.Grid `json:"grid"`
	Rows      int        `json:"rows"`
	Truncated bool       `json:"truncated,omitempty"`
	Stages    []string   `json:"stages"`
	Failures  []string   `json:"failures,omitempty"`
	Trace     []string   `json:"trace,omitempty"`
}

func (s *Server) run(ctx context.Context, req mcp.CallToolRequest, entry pipeline.Entry) (*pipeline.Result, error) {
	raw := req.GetString("query", "")
	if raw == "" {
		return nil, fmt.Errorf("query is required")
	}
	q, err := query.Parse(raw)
	if err != nil {
		return nil, err
	}
	var opts []pipeline.RunOption
	if getBool(req.GetArguments(), "trace") || q.Trace() {
		opts = append(opts, pipeline.WithTrace())
	}
	component := req.GetString("component", "")
	if component == "" {
		return s.runner.Engine().Run(ctx, q, entry, opts...)
	}
	return s.runner.Run(ctx, component, q, entry, opts...)
}

func (s *Server) handleRunQuery(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	res, err := s.run(ctx, req, pipeline.EntryTransform)
	if err != nil {
		return errorResult(err), nil
	}
	limit := int(getFloat(req.GetArguments(), "maxRows", float64(s.previewRows)))
	preview := res.Grid
	if limit >= 0 && preview.NumRows() > limit {
		preview = preview.Head(limit)
	}
	out := queryResult{
		Grid:      preview,
		Rows:      res.Grid.NumRows(),
		Truncated: preview.NumRows() < res.Grid.NumRows(),
		Stages:    res.Stages,
	}
	for _, f := range res.Failures {
		out.Failures = append(out.Failures, f.Error())
	}
	for _, t := range res.Trace {
		out.Trace = append(out.Trace, t.String())
	}
	return jsonResult(out)
}

func (s *Server) handleRenderQuery(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	res, err := s.run(ctx, req, pipeline.EntryRender)
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(res.Output)
}

func (s *Server) handleExportCSV(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	res, err := s.run(ctx, req, pipeline.EntryTransform)
	if err != nil {
		return errorResult(err), nil
	}
	var buf bytes.Buffer
	if err := grid.EncodeCSV(&buf, res.Grid); err != nil {
		return nil, fmt.Errorf("encode csv: %w", err)
	}
	return textResult(buf.String()), nil
}

type operatorInfo struct {
	Name  string `json:"name"`
	Usage string `json:"usage"`
}

func operatorList() []operatorInfo {
	all := ops.All()
	out := make([]operatorInfo, len(all))
	for i, op := range all {
		out[i] = operatorInfo{Name: op.String(), Usage: op.Usage()}
	}
	return out
}

func (s *Server) handleListOperators(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(operatorList())
}

func (s *Server) handleListSources(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(etl.ListSources())
}
