package mcpserver

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
)

func (s *Server) registerPrompts() {
	s.mcp.AddPrompt(mcp.NewPrompt("explore_source",
		mcp.WithPromptDescription("Look at a data source and summarize its columns and interesting groupings"),
		mcp.WithArgument("url",
			mcp.ArgumentDescription("Source location (http URL, file path or db://connection/query)"),
			mcp.RequiredArgument(),
		),
	), s.handleExploreSourcePrompt)

	s.mcp.AddPrompt(mcp.NewPrompt("build_view",
		mcp.WithPromptDescription("Turn a question about a data source into a saved, charted view"),
		mcp.WithArgument("url",
			mcp.ArgumentDescription("Source location"),
			mcp.RequiredArgument(),
		),
		mcp.WithArgument("question",
			mcp.ArgumentDescription("What the view should answer"),
			mcp.RequiredArgument(),
		),
	), s.handleBuildViewPrompt)
}

func userPrompt(description, text string) *mcp.GetPromptResult {
	return &mcp.GetPromptResult{
		Description: description,
		Messages: []mcp.PromptMessage{
			{
				Role:    mcp.RoleUser,
				Content: mcp.TextContent{Type: "text", Text: text},
			},
		},
	}
}

func (s *Server) handleExploreSourcePrompt(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	url := req.Params.Arguments["url"]
	return userPrompt(fmt.Sprintf("Explore %s", url), fmt.Sprintf(`Explore the data at %s. Follow these steps:

1. Use run_query with "url=%s&limit=20" to see the column names, inferred types and a sample
2. For each string column, use run_query with group=<column> to count distinct values
3. For numeric columns, try group=<key>;sum(<col>),avg(<col>),max(<col>) over the most useful key
4. Summarize what each column means and which groupings look worth charting

Use list_operators if you are unsure of an operator's argument syntax.`, url, url)), nil
}

func (s *Server) handleBuildViewPrompt(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	url := req.Params.Arguments["url"]
	question := req.Params.Arguments["question"]
	return userPrompt(fmt.Sprintf("Build a view answering: %s", question), fmt.Sprintf(`Build a saved view over %s that answers: "%s". Follow these steps:

1. Use run_query with "url=%s" and trace=true to learn the columns
2. Add operators one at a time (filter, group, pivot, order, limit) until the table answers the question
3. Pick a chart with chart=<type> (pie for shares, stacked or area for time series, column for ranked counts, tree for hierarchies) and check it with render_query
4. Save it with save_view, giving it a short name and a title= in the query

Operators run in the order they appear in the query, so filter before group when the filter is on a raw column.`, url, question, url)), nil
}
