package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"condorview/internal/etl"
)

const (
	viewsURI     = "condorview://views"
	operatorsURI = "condorview://operators"
	sourcesURI   = "condorview://sources"
	viewResultRE = "condorview://view/{id}/result"
)

func (s *Server) registerResources() {
	s.mcp.AddResource(mcp.NewResource(
		operatorsURI,
		"Query Operators",
		mcp.WithMIMEType("application/json"),
	), s.staticResource(operatorsURI, func() any { return operatorList() }))

	s.mcp.AddResource(mcp.NewResource(
		sourcesURI,
		"Data Source Types",
		mcp.WithMIMEType("application/json"),
	), s.staticResource(sourcesURI, func() any { return etl.ListSources() }))

	if s.views == nil {
		return
	}

	s.mcp.AddResource(mcp.NewResource(
		viewsURI,
		"Saved Views",
		mcp.WithMIMEType("application/json"),
	), s.handleViewsResource)

	// ── condorview://view/{id}/result ──────────────────
	s.mcp.AddResourceTemplate(
		mcp.NewResourceTemplate(
			viewResultRE,
			"Last Refresh of a View",
		),
		s.handleViewResultResource,
	)
}

func (s *Server) staticResource(uri string, fn func() any) func(context.Context, mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		return jsonContents(uri, fn())
	}
}

func (s *Server) handleViewsResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	views, err := s.views.ListViews()
	if err != nil {
		return nil, err
	}

	type viewSummary struct {
		ID     string `json:"id"`
		Name   string `json:"name"`
		Query  string `json:"query"`
		Status string `json:"lastStatus,omitempty"`
	}
	summaries := make([]viewSummary, len(views))
	for i, v := range views {
		summaries[i] = viewSummary{ID: v.ID, Name: v.Name, Query: v.Query, Status: string(v.LastStatus)}
	}
	return jsonContents(viewsURI, summaries)
}

func (s *Server) handleViewResultResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	uri := req.Params.URI
	ref := viewRefFromURI(uri)
	if ref == "" {
		return nil, fmt.Errorf("could not extract view id from URI: %s", uri)
	}
	v, err := s.views.GetView(ref)
	if err != nil {
		return nil, err
	}
	res := s.views.LastResult(v.ID)
	if res == nil {
		return nil, fmt.Errorf("view %q has not been refreshed since the server started", v.Name)
	}
	return jsonContents(uri, res.Output)
}

// viewRefFromURI extracts {id} from condorview://view/{id}/result.
func viewRefFromURI(uri string) string {
	rest, ok := strings.CutPrefix(uri, "condorview://view/")
	if !ok {
		return ""
	}
	ref, ok := strings.CutSuffix(rest, "/result")
	if !ok {
		return ""
	}
	return ref
}

func jsonContents(uri string, v any) ([]mcp.ResourceContents, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, err
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}
