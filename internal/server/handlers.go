package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"condorview/internal/etl"
	"condorview/internal/grid"
	"condorview/internal/ops"
	"condorview/internal/pipeline"
	"condorview/internal/query"
	"condorview/internal/service"
	"condorview/internal/storage"
)

// ── Errors ─────────────────────────────────────────────────

// statusFor maps engine and store errors onto HTTP statuses.
func statusFor(err error) int {
	var (
		argErr   *ops.UnknownOperatorArgumentError
		colErr   *ops.UnknownColumnError
		aggErr   *ops.UnknownAggregationFunctionError
		allErr   *etl.AllSourcesFailedError
		fetchErr *etl.SourceFetchError
	)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.As(err, &allErr), errors.As(err, &fetchErr):
		return http.StatusBadGateway
	case errors.As(err, &argErr), errors.As(err, &colErr), errors.As(err, &aggErr):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrViewRunning):
		return http.StatusConflict
	}
	var se *pipeline.StageError
	if errors.As(err, &se) {
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

func fail(c *gin.Context, err error) {
	_ = c.Error(err)
	body := gin.H{"error": err.Error()}
	var se *pipeline.StageError
	if errors.As(err, &se) {
		body["stage"] = se.Stage
	}
	c.JSON(statusFor(err), body)
}

// ── Queries ────────────────────────────────────────────────

type queryRequest struct {
	Query     string `json:"query" binding:"required"`
	Component string `json:"component"`
	Trace     bool   `json:"trace"`
	Render    bool   `json:"render"`
}

type queryResponse struct {
	Grid     *grid.Grid   `json:"grid"`
	Rows     int          `json:"rows"`
	Stages   []string     `json:"stages"`
	Failures []string     `json:"failures,omitempty"`
	Trace    []traceStage `json:"trace,omitempty"`
	Output   any          `json:"output,omitempty"`
}

// traceStage is one trace entry with its grid preview and display heading.
type traceStage struct {
	Heading string `json:"heading"`
	pipeline.TraceEntry
}

func (s *Server) registerQueryRoutes(api *gin.RouterGroup) {
	api.GET("/query", s.handleQuery(pipeline.EntryTransform))
	api.GET("/query.csv", s.handleQueryCSV)
	api.GET("/render", s.handleQuery(pipeline.EntryRender))
	api.GET("/components/:component/render", s.handleQuery(pipeline.EntryRender))
	api.POST("/query", s.handlePostQuery)

	api.GET("/operators", func(c *gin.Context) {
		type operator struct {
			Name  string `json:"name"`
			Usage string `json:"usage"`
		}
		var out []operator
		for _, op := range ops.All() {
			out = append(out, operator{Name: op.String(), Usage: op.Usage()})
		}
		c.JSON(http.StatusOK, out)
	})
	api.GET("/sources", func(c *gin.Context) {
		c.JSON(http.StatusOK, etl.ListSources())
	})
}

func (s *Server) execute(ctx context.Context, raw, component string, entry pipeline.Entry, trace bool) (*pipeline.Result, error) {
	q, err := query.Parse(raw)
	if err != nil {
		return nil, err
	}
	var opts []pipeline.RunOption
	if trace {
		opts = append(opts, pipeline.WithTrace())
	}
	if component != "" {
		return s.runner.Run(ctx, component, q, entry, opts...)
	}
	return s.runner.Engine().Run(ctx, q, entry, opts...)
}

func respond(c *gin.Context, res *pipeline.Result, entry pipeline.Entry) {
	if entry == pipeline.EntryRender {
		c.JSON(http.StatusOK, res.Output)
		return
	}
	out := queryResponse{Grid: res.Grid, Rows: res.Grid.NumRows(), Stages: res.Stages}
	for _, f := range res.Failures {
		out.Failures = append(out.Failures, f.Error())
	}
	for _, t := range res.Trace {
		out.Trace = append(out.Trace, traceStage{Heading: t.String(), TraceEntry: t})
	}
	c.JSON(http.StatusOK, out)
}

// handleQuery takes the engine query straight from the URL query string,
// the way report pages link to it.
func (s *Server) handleQuery(entry pipeline.Entry) gin.HandlerFunc {
	return func(c *gin.Context) {
		res, err := s.execute(c.Request.Context(), c.Request.URL.RawQuery, c.Param("component"), entry, false)
		if err != nil {
			fail(c, err)
			return
		}
		respond(c, res, entry)
	}
}

func (s *Server) handlePostQuery(c *gin.Context) {
	var req queryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	entry := pipeline.EntryTransform
	if req.Render {
		entry = pipeline.EntryRender
	}
	res, err := s.execute(c.Request.Context(), req.Query, req.Component, entry, req.Trace)
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, res, entry)
}

func (s *Server) handleQueryCSV(c *gin.Context) {
	res, err := s.execute(c.Request.Context(), c.Request.URL.RawQuery, "", pipeline.EntryTransform, false)
	if err != nil {
		fail(c, err)
		return
	}
	c.Header("Content-Type", "text/csv; charset=utf-8")
	c.Header("Content-Disposition", `attachment; filename="condorview.csv"`)
	c.Status(http.StatusOK)
	if err := grid.EncodeCSV(c.Writer, res.Grid); err != nil {
		_ = c.Error(err)
	}
}

// ── Views ──────────────────────────────────────────────────

func (s *Server) registerViewRoutes(g *gin.RouterGroup) {
	g.GET("", func(c *gin.Context) {
		views, err := s.views.ListViews()
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, views)
	})
	g.POST("", func(c *gin.Context) {
		var input service.SaveViewInput
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		v, err := s.views.SaveView(c.Request.Context(), input)
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, v)
	})
	g.GET("/:ref", func(c *gin.Context) {
		v, err := s.views.GetView(c.Param("ref"))
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, v)
	})
	g.DELETE("/:ref", func(c *gin.Context) {
		if err := s.views.DeleteView(c.Request.Context(), c.Param("ref")); err != nil {
			fail(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	})
	g.POST("/:ref/run", func(c *gin.Context) {
		res, err := s.views.RunView(c.Request.Context(), c.Param("ref"), service.TriggerByManual)
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, res.Output)
	})
	g.GET("/:ref/runs", func(c *gin.Context) {
		limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
		logs, err := s.views.ListRunLogs(c.Param("ref"), limit)
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, logs)
	})
	g.GET("/:ref/result", func(c *gin.Context) {
		v, err := s.views.GetView(c.Param("ref"))
		if err != nil {
			fail(c, err)
			return
		}
		res := s.views.LastResult(v.ID)
		if res == nil {
			// Not refreshed since startup: refresh now.
			if res, err = s.views.RunView(c.Request.Context(), v.ID, service.TriggerByManual); err != nil {
				fail(c, err)
				return
			}
		}
		c.JSON(http.StatusOK, res.Output)
	})
}

// ── Connections ────────────────────────────────────────────

func (s *Server) registerConnectionRoutes(g *gin.RouterGroup) {
	g.GET("", func(c *gin.Context) {
		conns, err := s.database.ListConnections()
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, conns)
	})
	g.POST("/:ref/test", func(c *gin.Context) {
		if err := s.database.TestConnection(c.Request.Context(), c.Param("ref")); err != nil {
			c.JSON(http.StatusOK, gin.H{"ok": false, "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})
	g.GET("/:ref/schema", func(c *gin.Context) {
		schema, err := s.database.Introspect(c.Request.Context(), c.Param("ref"))
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, schema)
	})
}

// ── Approvals ──────────────────────────────────────────────

func (s *Server) registerApprovalRoutes(g *gin.RouterGroup) {
	g.GET("", func(c *gin.Context) {
		pending, err := s.approvals.ListPendingApprovals()
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, pending)
	})
	g.POST("/:id", func(c *gin.Context) {
		var body struct {
			Approved bool `json:"approved"`
		}
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if err := s.approvals.ResolveApproval(c.Param("id"), body.Approved); err != nil {
			fail(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	})
}
