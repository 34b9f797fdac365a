package app

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	mcpserver "condorview/internal/mcp"
	"condorview/internal/server"
)

var (
	serveListen  string
	mcpAutoApply bool
)

// serveCmd runs the report HTTP server with view triggers armed
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve queries, exports and saved views over HTTP",
	Long: `Starts the HTTP server and arms the schedule and file_watch triggers of
saved views. Report pages call:

  GET  /api/query?<query>        grid JSON
  GET  /api/query.csv?<query>    CSV export
  GET  /api/render?<query>       DataTable and chart options
  GET  /api/views/:view/result   last refresh of a saved view
  GET  /metrics                  Prometheus metrics`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *App) error {
			if cfg.Logging.Level != "debug" {
				gin.SetMode(gin.ReleaseMode)
			}
			listen := cfg.HTTP.Listen
			if serveListen != "" {
				listen = serveListen
			}
			a.StartWatchers(ctx)
			srv := server.New(server.Options{
				Listen:       listen,
				RateLimit:    cfg.HTTP.RateLimit,
				RateBurst:    cfg.HTTP.RateBurst,
				ReadTimeout:  cfg.ReadTimeout(),
				WriteTimeout: cfg.WriteTimeout(),
				CORSOrigin:   cfg.HTTP.CORSOrigin,
				Logger:       a.log.Named("http"),
				Runner:       a.runner,
				Views:        a.views,
				Database:     a.database,
				Approvals:    a.approvals,
			})
			return srv.ListenAndServe(ctx)
		})
	},
}

// mcpCmd serves the MCP tools on stdin/stdout
var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Run as a Model Context Protocol server on stdin/stdout",
	Long: `Runs an MCP stdio server exposing run_query, render_query, export_csv,
saved view and database connection tools to an agent.

Destructive tools (delete_view, delete_db_connection) wait for approval,
given with "condorview approve" or POST /api/approvals/:id, unless
--auto-approve is set.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *App) error {
			srv := mcpserver.New(mcpserver.Deps{
				Logger:      a.log.Named("mcp"),
				Runner:      a.runner,
				Views:       a.views,
				Database:    a.database,
				Approvals:   a.approvals,
				AutoApprove: mcpAutoApply,
			})
			return srv.ServeStdio()
		})
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveListen, "listen", "", "listen address (overrides http.listen)")
	mcpCmd.Flags().BoolVar(&mcpAutoApply, "auto-approve", false, "approve destructive tools without asking")
}
