package pipeline_test

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"condorview/internal/etl"
	"condorview/internal/grid"
	"condorview/internal/ops"
	"condorview/internal/pipeline"
	"condorview/internal/query"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// payloadSource serves canned payloads keyed by url.
type payloadSource struct {
	payloads map[string]any
	fetches  atomic.Int32
}

func (s *payloadSource) Spec() etl.SourceSpec { return etl.SourceSpec{Type: "canned"} }

func (s *payloadSource) Match(*etl.Location) bool { return true }

func (s *payloadSource) Fetch(_ context.Context, loc *etl.Location) (any, error) {
	s.fetches.Add(1)
	p, ok := s.payloads[loc.Raw]
	if !ok {
		return nil, fmt.Errorf("no payload for %s", loc.Raw)
	}
	return p, nil
}

func jobsPayload() any {
	return []any{
		[]any{"user", "jobs"},
		[]any{"alice", 3.0},
		[]any{"bob", 7.0},
		[]any{"carol", 1.0},
	}
}

func newEngine(src *payloadSource, r pipeline.Renderer) *pipeline.Engine {
	return pipeline.New(pipeline.Options{
		Fetcher: &etl.Fetcher{
			MaxConcurrent: 2,
			Resolve:       func(*etl.Location) (etl.Source, error) { return src, nil },
		},
		Renderer: r,
	})
}

func TestTransform_AppliesOperatorsInOrder(t *testing.T) {
	src := &payloadSource{payloads: map[string]any{"jobs.json": jobsPayload()}}
	res, err := newEngine(src, nil).Transform(context.Background(), query.MustParse("url=jobs.json&order=-jobs&limit=2"))
	require.NoError(t, err)

	assert.Equal(t, []string{"get data", "parse", "order=-jobs", "limit=2"}, res.Stages)
	want := [][]any{{"bob", 7.0}, {"alice", 3.0}}
	if diff := cmp.Diff(want, res.Grid.Data); diff != "" {
		t.Errorf("grid mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, 3, res.Loaded.NumRows())
}

func TestLoad_StopsAfterParse(t *testing.T) {
	src := &payloadSource{payloads: map[string]any{"jobs.json": jobsPayload()}}
	res, err := newEngine(src, nil).Load(context.Background(), query.MustParse("url=jobs.json&limit=1"))
	require.NoError(t, err)
	assert.Equal(t, []string{"get data", "parse"}, res.Stages)
	assert.Equal(t, 3, res.Grid.NumRows())
}

func TestRun_StartDataSkipsAcquisition(t *testing.T) {
	src := &payloadSource{}
	res, err := newEngine(src, nil).Transform(context.Background(), query.MustParse("limit=1"),
		pipeline.WithStartData(jobsPayload()))
	require.NoError(t, err)
	assert.Equal(t, []string{"init data", "parse", "limit=1"}, res.Stages)
	assert.Equal(t, 1, res.Grid.NumRows())
	assert.Zero(t, src.fetches.Load())
}

func TestRun_MergesSourcesAndKeepsFailures(t *testing.T) {
	src := &payloadSource{payloads: map[string]any{
		"a.json": []any{[]any{"user", "jobs"}, []any{"alice", 3.0}},
		"b.json": []any{[]any{"user", "idle"}, []any{"bob", 2.0}},
	}}
	res, err := newEngine(src, nil).Load(context.Background(), query.MustParse("url=a.json&url=missing.json&url=b.json"))
	require.NoError(t, err)
	assert.Equal(t, []string{"user", "jobs", "idle"}, res.Grid.Headers)
	assert.Equal(t, 2, res.Grid.NumRows())
	require.Len(t, res.Failures, 1)
	assert.Equal(t, "missing.json", res.Failures[0].URL)
}

func TestRun_AllSourcesFail(t *testing.T) {
	src := &payloadSource{}
	_, err := newEngine(src, nil).Load(context.Background(), query.MustParse("url=x.json"))

	var se *pipeline.StageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "get data", se.Stage)
	var all *etl.AllSourcesFailedError
	assert.ErrorAs(t, err, &all)
}

func TestRun_OperatorFailureNamesStage(t *testing.T) {
	src := &payloadSource{payloads: map[string]any{"jobs.json": jobsPayload()}}
	res, err := newEngine(src, nil).Transform(context.Background(), query.MustParse("url=jobs.json&order=nosuch"))
	assert.Nil(t, res)

	var se *pipeline.StageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "order=nosuch", se.Stage)
	assert.Equal(t, "nosuch", se.Arg)
	var uce *ops.UnknownColumnError
	assert.ErrorAs(t, err, &uce)
}

func TestRun_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := newEngine(&payloadSource{}, nil).Transform(ctx, query.MustParse("limit=1"), pipeline.WithStartData(jobsPayload()))
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestRun_Trace(t *testing.T) {
	src := &payloadSource{payloads: map[string]any{"jobs.json": jobsPayload()}}
	res, err := newEngine(src, nil).Transform(context.Background(), query.MustParse("url=jobs.json&limit=2&trace"))
	require.NoError(t, err)
	require.Len(t, res.Trace, 3)

	assert.Equal(t, "get data", res.Trace[0].Name)
	assert.Nil(t, res.Trace[0].Preview)
	assert.Equal(t, 3, res.Trace[1].Preview.NumRows())
	assert.Equal(t, 2, res.Trace[2].Rows)
	assert.Contains(t, res.Trace[2].String(), "Step 3 (")
	assert.Contains(t, res.Trace[2].String(), "limit=2")
}

// ── Render stages ──────────────────────────────────────────

type recordingRenderer struct {
	options map[string]any
	grid    *grid.Grid
}

func (r *recordingRenderer) Prepare(g *grid.Grid, _ *query.Query, options map[string]any) (*grid.Grid, any, error) {
	r.grid, r.options = g, options
	return g, "prepared", nil
}

func (r *recordingRenderer) Render(_ context.Context, chart any) (any, error) {
	return chart.(string) + "+drawn", nil
}

func TestRender_GenTableAndChartStage(t *testing.T) {
	payload := []any{
		[]any{"user", "share"},
		[]any{"alice", 0.1 + 0.2},
		[]any{nil, nil},
	}
	r := &recordingRenderer{}
	res, err := newEngine(&payloadSource{}, r).Render(context.Background(),
		query.MustParse("chart=pie,is3D=true&title=Share"), pipeline.WithStartData(payload))
	require.NoError(t, err)

	assert.Equal(t, []string{"init data", "parse", "gentable", "chart=pie,is3D=true"}, res.Stages)
	assert.Equal(t, "prepared+drawn", res.Output)
	assert.Equal(t, map[string]any{"is3D": true, "title": "Share"}, r.options)
	assert.Equal(t, [][]any{{"alice", 0.3}, {ops.UndefinedString, 0.0}}, r.grid.Data)
}

func TestRender_WithoutRendererReturnsGrid(t *testing.T) {
	res, err := newEngine(&payloadSource{}, nil).Render(context.Background(), query.MustParse("limit=5"),
		pipeline.WithStartData(jobsPayload()))
	require.NoError(t, err)
	assert.Equal(t, "view", res.Stages[len(res.Stages)-1])
	assert.Same(t, res.Grid, res.Output)
}

// ── Runner ─────────────────────────────────────────────────

func TestRunner_ReusesLoadedGrid(t *testing.T) {
	src := &payloadSource{payloads: map[string]any{"jobs.json": jobsPayload()}}
	r := pipeline.NewRunner(newEngine(src, nil))
	ctx := context.Background()

	first, err := r.Run(ctx, "main", query.MustParse("url=jobs.json&limit=1"), pipeline.EntryTransform)
	require.NoError(t, err)
	assert.Equal(t, 1, first.Grid.NumRows())

	second, err := r.Run(ctx, "main", query.MustParse("url=jobs.json&limit=2"), pipeline.EntryTransform)
	require.NoError(t, err)
	assert.Equal(t, 2, second.Grid.NumRows())
	assert.Equal(t, "init data", second.Stages[0])
	assert.EqualValues(t, 1, src.fetches.Load())
	assert.Equal(t, 1, r.Hits())

	// A different component key or a forgotten memo fetches again.
	_, err = r.Run(ctx, "total", query.MustParse("url=jobs.json"), pipeline.EntryLoad)
	require.NoError(t, err)
	r.Forget("main")
	_, err = r.Run(ctx, "main", query.MustParse("url=jobs.json"), pipeline.EntryLoad)
	require.NoError(t, err)
	assert.EqualValues(t, 3, src.fetches.Load())
}
