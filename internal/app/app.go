// Package app wires configuration, storage, sources, the query engine and
// the services together, and exposes them as the condorview command line.
package app

import (
	"context"
	"fmt"
	"net/http"
	"path/filepath"

	"go.uber.org/zap"

	"condorview/internal/config"
	"condorview/internal/etl"
	"condorview/internal/etl/sources"
	"condorview/internal/grid"
	"condorview/internal/logging"
	"condorview/internal/pipeline"
	"condorview/internal/render"
	"condorview/internal/secret"
	"condorview/internal/service"
	"condorview/internal/storage"
)

// App holds the long-lived pieces one command needs.
type App struct {
	cfg *config.Config
	log *zap.Logger

	db        *storage.DB
	views     *service.ViewService
	database  *service.DatabaseService
	approvals *storage.ApprovalStore

	engine *pipeline.Engine
	runner *pipeline.Runner
}

// New opens the store and builds the engine and services from cfg.
func New(cfg *config.Config, log *zap.Logger) (*App, error) {
	log = logging.OrNop(log)

	db, err := storage.New(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	secrets := secret.NewFileStore(filepath.Join(cfg.DataDir, "secrets.yaml"))
	database := service.NewDatabaseService(storage.NewConnectionStore(db), secrets, log.Named("db"), cfg.Engine.MaxQueryRows)

	// Sources are process-wide; the last App built configures them.
	sources.SetHTTPOptions(sources.HTTPOptions{
		Client:     &http.Client{Timeout: cfg.FetchTimeout()},
		UserAgent:  cfg.Sources.UserAgent,
		AuthTokens: cfg.Sources.AuthTokens,
	})
	sources.SetFileRoot(cfg.DataDir)
	sources.SetDBProvider(database)

	engine := pipeline.New(pipeline.Options{
		Logger: log.Named("pipeline"),
		Fetcher: &etl.Fetcher{
			Logger:        log.Named("fetch"),
			Timeout:       cfg.FetchTimeout(),
			MaxConcurrent: cfg.Sources.MaxConcurrent,
		},
		Adapter: &grid.Adapter{MaxDatacubeRows: cfg.Engine.MaxDatacubeRows},
		Renderer: render.New(render.Options{
			NumPattern: cfg.Engine.NumPattern,
			IntPattern: cfg.Engine.IntPattern,
		}),
		TracePreviewRows: cfg.Engine.TracePreviewRows,
	})

	views := service.NewViewService(storage.NewViewStore(db), engine, service.ViewServiceOptions{
		Logger:     log.Named("views"),
		Emitter:    service.NewLogEmitter(log.Named("events")),
		RunTimeout: cfg.RunTimeout(),
	})

	return &App{
		cfg:       cfg,
		log:       log,
		db:        db,
		views:     views,
		database:  database,
		approvals: storage.NewApprovalStore(db),
		engine:    engine,
		runner:    pipeline.NewRunner(engine),
	}, nil
}

// StartWatchers arms the schedule and file_watch triggers of saved views.
func (a *App) StartWatchers(ctx context.Context) {
	a.views.RestartWatchers(ctx)
}

// Close stops triggers and waits for in-flight refreshes, then releases
// connectors and the store.
func (a *App) Close() {
	a.views.Stop()
	a.views.WaitRunning(context.Background())
	a.database.Close()
	if err := a.db.Close(); err != nil {
		a.log.Warn("close database", zap.Error(err))
	}
}
