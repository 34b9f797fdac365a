package service

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"condorview/internal/domain"
	"condorview/internal/metrics"
	"condorview/internal/pipeline"
	"condorview/internal/query"
	"condorview/internal/storage"
)

// ─────────────────────────────────────────────────────────────
// View Service: saved views, their refresh triggers and run logs
// ─────────────────────────────────────────────────────────────

// Trigger names recorded in run logs and metrics.
const (
	TriggerByManual   = "manual"
	TriggerByCron     = "schedule"
	TriggerByFile     = "file_watch"
	fileWatchDebounce = 500 * time.Millisecond
)

// ErrViewRunning is returned when a refresh of the same view is in flight.
var ErrViewRunning = errors.New("view is already running")

// ViewService manages saved views, scheduling, and file watching.
type ViewService struct {
	store       *storage.ViewStore
	engine      *pipeline.Engine
	emitter     EventEmitter
	log         *zap.Logger
	runTimeout  time.Duration
	running     runGuard

	resultsMu sync.RWMutex
	results   map[string]*pipeline.Result

	// watcher / cron lifecycle. Triggered runs derive from base, never from
	// the context of the call that rebuilt the watchers.
	lifecycle   sync.Mutex
	base        context.Context
	baseCancel  context.CancelFunc
	watchCancel context.CancelFunc
	watchDone   chan struct{}
	watcher     *fsnotify.Watcher
	cronSched   *cron.Cron
}

// ViewServiceOptions configures a ViewService.
type ViewServiceOptions struct {
	Logger     *zap.Logger
	Emitter    EventEmitter
	RunTimeout time.Duration
}

// NewViewService creates a ViewService ready for use.
func NewViewService(store *storage.ViewStore, engine *pipeline.Engine, o ViewServiceOptions) *ViewService {
	log := o.Logger
	if log == nil {
		log = zap.NewNop()
	}
	emitter := o.Emitter
	if emitter == nil {
		emitter = NewLogEmitter(log)
	}
	base, cancel := context.WithCancel(context.Background())
	return &ViewService{
		store:      store,
		engine:     engine,
		emitter:    emitter,
		log:        log,
		runTimeout: o.RunTimeout,
		results:    map[string]*pipeline.Result{},
		base:       base,
		baseCancel: cancel,
	}
}

// ── View CRUD ──────────────────────────────────────────────

// SaveViewInput creates or replaces a view.
type SaveViewInput struct {
	Name          string `json:"name"`
	Query         string `json:"query"`
	TriggerType   string `json:"triggerType"`
	TriggerConfig string `json:"triggerConfig"`
	Enabled       bool   `json:"enabled"`
}

// SaveView creates the named view, or updates it when it exists.
func (s *ViewService) SaveView(ctx context.Context, input SaveViewInput) (*domain.View, error) {
	if _, err := query.Parse(input.Query); err != nil {
		return nil, fmt.Errorf("view %q: %w", input.Name, err)
	}
	if input.TriggerType == string(domain.TriggerSchedule) {
		if _, err := cron.ParseStandard(input.TriggerConfig); err != nil {
			return nil, fmt.Errorf("view %q: invalid schedule %q: %w", input.Name, input.TriggerConfig, err)
		}
	}

	v, err := s.store.GetViewByName(input.Name)
	switch {
	case err == nil:
		v.Query = input.Query
		v.TriggerType = domain.TriggerType(input.TriggerType)
		v.TriggerConfig = input.TriggerConfig
		v.Enabled = input.Enabled
		if v.TriggerType == "" {
			v.TriggerType = domain.TriggerManual
		}
		if err := s.store.UpdateView(v); err != nil {
			return nil, fmt.Errorf("update view: %w", err)
		}
	case isNotFound(err):
		v = &domain.View{
			Name:          input.Name,
			Query:         input.Query,
			TriggerType:   domain.TriggerType(input.TriggerType),
			TriggerConfig: input.TriggerConfig,
			Enabled:       input.Enabled,
		}
		if err := s.store.CreateView(v); err != nil {
			return nil, fmt.Errorf("create view: %w", err)
		}
	default:
		return nil, err
	}
	s.rebuildWatchers()
	return v, nil
}

func (s *ViewService) GetView(ref string) (*domain.View, error) {
	return s.store.Resolve(ref)
}

func (s *ViewService) ListViews() ([]domain.View, error) {
	return s.store.ListViews()
}

func (s *ViewService) DeleteView(ctx context.Context, ref string) error {
	v, err := s.store.Resolve(ref)
	if err != nil {
		return err
	}
	if err := s.store.DeleteView(v.ID); err != nil {
		return err
	}
	s.resultsMu.Lock()
	delete(s.results, v.ID)
	s.resultsMu.Unlock()
	s.rebuildWatchers()
	return nil
}

// ListRunLogs returns the last run logs of a view, newest first.
func (s *ViewService) ListRunLogs(ref string, limit int) ([]domain.RunLog, error) {
	v, err := s.store.Resolve(ref)
	if err != nil {
		return nil, err
	}
	return s.store.ListRunLogs(v.ID, limit)
}

// LastResult returns the result of the last successful refresh, or nil.
func (s *ViewService) LastResult(id string) *pipeline.Result {
	s.resultsMu.RLock()
	defer s.resultsMu.RUnlock()
	return s.results[id]
}

// ── Run ────────────────────────────────────────────────────

// RunView refreshes a view: it runs the full pipeline, records a run log
// and updates the view status.
func (s *ViewService) RunView(ctx context.Context, ref, trigger string) (*pipeline.Result, error) {
	v, err := s.store.Resolve(ref)
	if err != nil {
		return nil, err
	}
	// Prevent concurrent execution of the same view.
	if !s.running.TryLock(v.ID) {
		return nil, fmt.Errorf("view %s: %w", v.Name, ErrViewRunning)
	}
	defer s.running.Unlock(v.ID)

	if err := s.store.UpdateViewStatus(v.ID, domain.RunStatusRunning, v.LastRows, ""); err != nil {
		s.log.Warn("update view status", zap.String("view", v.Name), zap.Error(err))
	}

	runCtx := ctx
	if s.runTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, s.runTimeout)
		defer cancel()
	}

	start := time.Now()
	res, runErr := s.run(runCtx, v)

	runLog := &domain.RunLog{
		ViewID:     v.ID,
		Trigger:    trigger,
		StartedAt:  start,
		FinishedAt: time.Now(),
		Status:     domain.RunStatusSuccess,
	}
	rows := 0
	if runErr != nil {
		runLog.Status = domain.RunStatusError
		runLog.Error = runErr.Error()
	} else {
		rows = res.Grid.NumRows()
		runLog.Rows = rows
		runLog.Stages = len(res.Stages)
	}
	if err := s.store.CreateRunLog(runLog); err != nil {
		s.log.Warn("write run log", zap.String("view", v.Name), zap.Error(err))
	}
	if err := s.store.UpdateViewStatus(v.ID, runLog.Status, rows, runLog.Error); err != nil {
		s.log.Warn("update view status", zap.String("view", v.Name), zap.Error(err))
	}
	metrics.ViewRefreshes.WithLabelValues(trigger, metrics.StatusOf(runErr)).Inc()

	if runErr != nil {
		s.log.Warn("view refresh failed", zap.String("view", v.Name), zap.String("trigger", trigger), zap.Error(runErr))
		return nil, runErr
	}

	s.resultsMu.Lock()
	s.results[v.ID] = res
	s.resultsMu.Unlock()

	s.log.Info("view refreshed",
		zap.String("view", v.Name),
		zap.String("trigger", trigger),
		zap.Int("rows", rows),
		zap.Int("failedSources", len(res.Failures)),
		zap.Duration("elapsed", runLog.FinishedAt.Sub(start)))
	s.emitter.Emit(ctx, "view:refreshed", map[string]any{
		"viewId": v.ID,
		"name":   v.Name,
		"rows":   rows,
	})
	return res, nil
}

func (s *ViewService) run(ctx context.Context, v *domain.View) (*pipeline.Result, error) {
	q, err := query.Parse(v.Query)
	if err != nil {
		return nil, err
	}
	return s.engine.Render(ctx, q)
}

// ── Watchers (cron + file_watch) ──────────────────────────

// RestartWatchers makes ctx the parent of every triggered run, then tears
// down the current watcher/cron and rebuilds them from scratch. ctx should
// live as long as the process serves; Stop cancels it.
func (s *ViewService) RestartWatchers(ctx context.Context) {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()
	s.baseCancel()
	s.base, s.baseCancel = context.WithCancel(ctx)
	s.startWatchers()
}

// rebuildWatchers picks up view changes, keeping the current base context.
func (s *ViewService) rebuildWatchers() {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()
	s.startWatchers()
}

func (s *ViewService) startWatchers() {
	s.stopWatchers()
	ctx := s.base
	if ctx.Err() != nil {
		return
	}

	views, err := s.store.ListTriggeredViews()
	if err != nil {
		s.log.Warn("view watcher: list views", zap.Error(err))
		return
	}

	// ── Cron jobs ──
	var c *cron.Cron
	scheduled := 0
	for _, v := range views {
		if v.TriggerType != domain.TriggerSchedule {
			continue
		}
		if c == nil {
			c = cron.New()
		}
		id, name := v.ID, v.Name
		_, err := c.AddFunc(v.TriggerConfig, func() {
			s.log.Debug("view cron: running", zap.String("view", name))
			if _, err := s.RunView(ctx, id, TriggerByCron); err != nil {
				s.log.Warn("view cron: run failed", zap.String("view", name), zap.Error(err))
			}
		})
		if err != nil {
			s.log.Warn("view cron: invalid expression", zap.String("view", name), zap.String("expr", v.TriggerConfig), zap.Error(err))
			continue
		}
		scheduled++
	}
	if c != nil {
		c.Start()
		s.cronSched = c
		s.log.Info("view cron: scheduled", zap.Int("views", scheduled))
	}

	// ── File watchers ──
	pathToViews := make(map[string][]string)
	for _, v := range views {
		if v.TriggerType != domain.TriggerFileWatch {
			continue
		}
		absPath, err := filepath.Abs(v.TriggerConfig)
		if err != nil {
			s.log.Warn("view watcher: bad path", zap.String("path", v.TriggerConfig), zap.Error(err))
			continue
		}
		pathToViews[absPath] = append(pathToViews[absPath], v.ID)
	}
	if len(pathToViews) == 0 {
		return
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		s.log.Warn("view watcher: create", zap.Error(err))
		return
	}
	s.watcher = watcher

	// Editors replace files, so watch the directory rather than the file.
	watchedDirs := make(map[string]bool)
	for path := range pathToViews {
		dir := filepath.Dir(path)
		if watchedDirs[dir] {
			continue
		}
		if err := watcher.Add(dir); err != nil {
			s.log.Warn("view watcher: watch dir", zap.String("dir", dir), zap.Error(err))
			continue
		}
		watchedDirs[dir] = true
	}

	watchCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	s.watchCancel = cancel
	s.watchDone = done

	go func() {
		defer close(done)
		timers := make(map[string]*time.Timer)
		defer func() {
			for _, t := range timers {
				t.Stop()
			}
		}()
		for {
			select {
			case <-watchCtx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
					continue
				}
				absPath, _ := filepath.Abs(event.Name)
				for _, id := range pathToViews[absPath] {
					if t, exists := timers[id]; exists {
						t.Stop()
					}
					vid := id
					timers[id] = time.AfterFunc(fileWatchDebounce, func() {
						s.log.Debug("view watcher: file changed", zap.String("path", absPath), zap.String("view", vid))
						if _, err := s.RunView(ctx, vid, TriggerByFile); err != nil {
							s.log.Warn("view watcher: run failed", zap.String("view", vid), zap.Error(err))
						}
					})
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				s.log.Warn("view watcher: error", zap.Error(err))
			}
		}
	}()

	s.log.Info("view watcher: watching", zap.Int("files", len(pathToViews)))
}

// WaitRunning blocks until all running views finish or ctx is cancelled.
// Used for graceful shutdown.
func (s *ViewService) WaitRunning(ctx context.Context) {
	s.running.WaitAll(ctx)
}

// Stop tears down all watchers and schedulers and cancels triggered runs.
func (s *ViewService) Stop() {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()
	s.baseCancel()
	s.stopWatchers()
}

func (s *ViewService) stopWatchers() {
	if s.watchCancel != nil {
		s.watchCancel()
		s.watchCancel = nil
	}
	if s.watcher != nil {
		s.watcher.Close()
		s.watcher = nil
	}
	if s.watchDone != nil {
		<-s.watchDone
		s.watchDone = nil
	}
	if s.cronSched != nil {
		<-s.cronSched.Stop().Done()
		s.cronSched = nil
	}
}

// Running lists the ids of views being refreshed.
func (s *ViewService) Running() []string {
	return s.running.Running()
}
