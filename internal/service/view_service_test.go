package service_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"condorview/internal/domain"
	_ "condorview/internal/etl/sources"
	"condorview/internal/pipeline"
	"condorview/internal/render"
	"condorview/internal/service"
	"condorview/internal/storage"
)

// ─────────────────────────────────────────────────────────────
// ViewService tests over a real store and json file sources
// ─────────────────────────────────────────────────────────────

type fixture struct {
	svc     *service.ViewService
	store   *storage.ViewStore
	emitter *service.MockEmitter
	dir     string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	db, err := storage.New(filepath.Join(dir, "state.db"))
	require.NoError(t, err)

	store := storage.NewViewStore(db)
	emitter := &service.MockEmitter{}
	engine := pipeline.New(pipeline.Options{Renderer: render.New(render.Options{})})
	svc := service.NewViewService(store, engine, service.ViewServiceOptions{
		Emitter:    emitter,
		RunTimeout: 10 * time.Second,
	})
	t.Cleanup(func() {
		svc.Stop()
		db.Close()
	})
	return &fixture{svc: svc, store: store, emitter: emitter, dir: dir}
}

func (f *fixture) writeJobs(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(f.dir, "jobs.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestViewService_SaveAndRun(t *testing.T) {
	f := newFixture(t)
	path := f.writeJobs(t, `[["user","jobs"],["alice",3],["bob",7]]`)
	ctx := context.Background()

	v, err := f.svc.SaveView(ctx, service.SaveViewInput{Name: "busy", Query: "url=" + path + "&order=-jobs&limit=1"})
	require.NoError(t, err)
	assert.Equal(t, domain.TriggerManual, v.TriggerType)

	res, err := f.svc.RunView(ctx, "busy", service.TriggerByManual)
	require.NoError(t, err)
	assert.Equal(t, [][]any{{"bob", 7.0}}, res.Grid.Data)
	chart, ok := res.Output.(*render.Chart)
	require.True(t, ok)
	assert.Equal(t, "Table", chart.Class)
	assert.Same(t, res, f.svc.LastResult(v.ID))

	got, err := f.svc.GetView(v.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusSuccess, got.LastStatus)
	assert.Equal(t, 1, got.LastRows)

	logs, err := f.svc.ListRunLogs("busy", 10)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "manual", logs[0].Trigger)
	assert.Equal(t, 6, logs[0].Stages)

	events := f.emitter.Snapshot()
	require.Len(t, events, 1)
	assert.Equal(t, "view:refreshed", events[0].Event)
}

func TestViewService_SaveUpdatesByName(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.svc.SaveView(ctx, service.SaveViewInput{Name: "pool", Query: "url=a.json"})
	require.NoError(t, err)
	second, err := f.svc.SaveView(ctx, service.SaveViewInput{Name: "pool", Query: "url=b.json"})
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	views, err := f.svc.ListViews()
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, "url=b.json", views[0].Query)

	require.NoError(t, f.svc.DeleteView(ctx, "pool"))
	_, err = f.svc.GetView("pool")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestViewService_SaveRejectsBadInput(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.SaveView(ctx, service.SaveViewInput{Name: "x", Query: "explode=1"})
	assert.ErrorContains(t, err, "unknown query key")

	_, err = f.svc.SaveView(ctx, service.SaveViewInput{Name: "x", Query: "url=a", TriggerType: "schedule", TriggerConfig: "every tuesday"})
	assert.ErrorContains(t, err, "invalid schedule")
}

func TestViewService_FailedRunIsLogged(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.SaveView(ctx, service.SaveViewInput{Name: "gone", Query: "url=" + filepath.Join(f.dir, "missing.json")})
	require.NoError(t, err)

	_, err = f.svc.RunView(ctx, "gone", service.TriggerByManual)
	var se *pipeline.StageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "get data", se.Stage)

	v, err := f.svc.GetView("gone")
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusError, v.LastStatus)
	assert.NotEmpty(t, v.LastError)
	assert.Nil(t, f.svc.LastResult(v.ID))
	assert.Empty(t, f.emitter.Snapshot())
}

func TestViewService_FileWatchTrigger(t *testing.T) {
	f := newFixture(t)
	path := f.writeJobs(t, `[["user","jobs"],["alice",3]]`)
	ctx := context.Background()

	v, err := f.svc.SaveView(ctx, service.SaveViewInput{
		Name:          "watched",
		Query:         "url=" + path,
		TriggerType:   "file_watch",
		TriggerConfig: path,
		Enabled:       true,
	})
	require.NoError(t, err)

	f.writeJobs(t, `[["user","jobs"],["alice",3],["bob",1]]`)

	require.Eventually(t, func() bool {
		logs, err := f.store.ListRunLogs(v.ID, 5)
		return err == nil && len(logs) > 0 && logs[0].Rows == 2
	}, 5*time.Second, 50*time.Millisecond)

	f.svc.WaitRunning(ctx)
	logs, err := f.store.ListRunLogs(v.ID, 5)
	require.NoError(t, err)
	assert.Equal(t, "file_watch", logs[0].Trigger)
}

func TestViewService_ScheduleOutlivesSaveContext(t *testing.T) {
	f := newFixture(t)
	path := f.writeJobs(t, `[["user","jobs"],["alice",3]]`)

	// Saved from a request whose context ends right after the call.
	reqCtx, cancel := context.WithCancel(context.Background())
	v, err := f.svc.SaveView(reqCtx, service.SaveViewInput{
		Name:          "every-second",
		Query:         "url=" + path,
		TriggerType:   "schedule",
		TriggerConfig: "@every 1s",
		Enabled:       true,
	})
	require.NoError(t, err)
	cancel()

	require.Eventually(t, func() bool {
		logs, err := f.store.ListRunLogs(v.ID, 5)
		return err == nil && len(logs) > 0 && logs[0].Status != domain.RunStatusRunning
	}, 5*time.Second, 50*time.Millisecond)

	logs, err := f.store.ListRunLogs(v.ID, 5)
	require.NoError(t, err)
	assert.Equal(t, "schedule", logs[0].Trigger)
	assert.Equal(t, domain.RunStatusSuccess, logs[0].Status, logs[0].Error)
	assert.Equal(t, 1, logs[0].Rows)
}

func TestViewService_StopCancelsTriggers(t *testing.T) {
	f := newFixture(t)
	path := f.writeJobs(t, `[["user","jobs"],["alice",3]]`)
	f.svc.RestartWatchers(context.Background())
	f.svc.Stop()

	// A save after Stop must not arm the schedule again.
	v, err := f.svc.SaveView(context.Background(), service.SaveViewInput{
		Name:          "stopped",
		Query:         "url=" + path,
		TriggerType:   "schedule",
		TriggerConfig: "@every 1s",
		Enabled:       true,
	})
	require.NoError(t, err)
	time.Sleep(1500 * time.Millisecond)
	logs, err := f.store.ListRunLogs(v.ID, 5)
	require.NoError(t, err)
	assert.Empty(t, logs)
}

func TestViewService_StopIsIdempotent(t *testing.T) {
	f := newFixture(t)
	f.svc.Stop()
	f.svc.Stop()
}
