// Package server serves the query engine and saved views over HTTP for
// report pages: JSON grids, CSV exports and rendered DataTables.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"condorview/internal/metrics"
	"condorview/internal/pipeline"
	"condorview/internal/service"
	"condorview/internal/storage"
)

// Options configures a Server. Views, Database and Approvals are optional;
// their routes are only mounted when set.
type Options struct {
	Listen       string
	RateLimit    float64
	RateBurst    int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	CORSOrigin   string

	Logger    *zap.Logger
	Runner    *pipeline.Runner
	Views     *service.ViewService
	Database  *service.DatabaseService
	Approvals *storage.ApprovalStore
}

// Server is the report HTTP server.
type Server struct {
	router *gin.Engine
	http   *http.Server
	log    *zap.Logger

	runner    *pipeline.Runner
	views     *service.ViewService
	database  *service.DatabaseService
	approvals *storage.ApprovalStore
}

// New builds the router.
func New(o Options) *Server {
	log := o.Logger
	if log == nil {
		log = zap.NewNop()
	}
	s := &Server{
		log:       log,
		runner:    o.Runner,
		views:     o.Views,
		database:  o.Database,
		approvals: o.Approvals,
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(MetricsMiddleware())
	router.Use(LoggerMiddleware(log))
	router.Use(CORSMiddleware(o.CORSOrigin))

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	api := router.Group("/api")
	api.Use(RateLimitMiddleware(o.RateLimit, o.RateBurst))
	s.registerQueryRoutes(api)
	if s.views != nil {
		s.registerViewRoutes(api.Group("/views"))
	}
	if s.database != nil {
		s.registerConnectionRoutes(api.Group("/connections"))
	}
	if s.approvals != nil {
		s.registerApprovalRoutes(api.Group("/approvals"))
	}

	s.router = router
	s.http = &http.Server{
		Addr:         o.Listen,
		Handler:      router,
		ReadTimeout:  o.ReadTimeout,
		WriteTimeout: o.WriteTimeout,
	}
	return s
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler { return s.router }

// ListenAndServe serves until ctx is canceled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("http server listening", zap.String("addr", s.http.Addr))
		errCh <- s.http.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	s.log.Info("http server stopped")
	return nil
}
