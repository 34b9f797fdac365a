// Package pipeline turns a parsed query into an ordered list of stages and
// runs them one at a time: acquisition, parsing, one stage per operator and
// optionally table generation and rendering.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strings"
	"time"

	"go.uber.org/zap"

	"condorview/internal/etl"
	"condorview/internal/grid"
	"condorview/internal/metrics"
	"condorview/internal/ops"
	"condorview/internal/query"
)

// DefaultTracePreviewRows bounds the grid preview kept per trace entry.
const DefaultTracePreviewRows = 1000

// Entry selects how far a run goes.
type Entry int

const (
	// EntryLoad acquires and merges the sources.
	EntryLoad Entry = iota
	// EntryTransform also applies every operator.
	EntryTransform
	// EntryRender also builds the table and hands it to the renderer.
	EntryRender
)

func (e Entry) String() string {
	switch e {
	case EntryLoad:
		return "load"
	case EntryTransform:
		return "transform"
	case EntryRender:
		return "render"
	}
	return fmt.Sprintf("entry(%d)", int(e))
}

// Renderer turns the final grid into a chart description.
type Renderer interface {
	// Prepare may reshape g, tree charts for example, and returns the grid
	// it kept together with the prepared chart.
	Prepare(g *grid.Grid, q *query.Query, options map[string]any) (*grid.Grid, any, error)
	// Render delivers a prepared chart and returns what the caller receives.
	Render(ctx context.Context, chart any) (any, error)
}

// State is threaded through the stages of one run.
type State struct {
	Query    *query.Query
	Raw      []any
	URLs     []string
	Failures []*etl.SourceFetchError
	Grid     *grid.Grid
	Loaded   *grid.Grid
	Options  map[string]any
	Chart    any
	Output   any

	colors *ops.Context
}

// Stage is one step of a run.
type Stage struct {
	Name string
	Arg  string
	Run  func(ctx context.Context, st *State) error

	// metric is the stage label used for latency metrics; operator stages
	// share their operator name so labels stay bounded.
	metric string
}

// StageError is the terminal failure of a run.
type StageError struct {
	Stage string
	Arg   string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %q: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// TraceEntry records the grid after one stage.
type TraceEntry struct {
	Step      int           `json:"step"`
	Total     int           `json:"total"`
	Name      string        `json:"name"`
	Elapsed   time.Duration `json:"elapsed"`
	Preview   *grid.Grid    `json:"preview,omitempty"`
	Rows      int           `json:"rows"`
	Unchanged bool          `json:"unchanged,omitempty"`
}

// String is the trace heading shown above each preview.
func (t TraceEntry) String() string {
	s := fmt.Sprintf("Step %d (%dms): %s", t.Step, t.Elapsed.Milliseconds(), t.Name)
	if t.Unchanged {
		s += " (unchanged)"
	}
	return s
}

// Result is what a successful run returns.
type Result struct {
	Grid     *grid.Grid
	Loaded   *grid.Grid
	Options  map[string]any
	Chart    any
	Output   any
	Failures []*etl.SourceFetchError
	Stages   []string
	Trace    []TraceEntry
}

// Options configures an Engine.
type Options struct {
	Logger           *zap.Logger
	Fetcher          *etl.Fetcher
	Adapter          *grid.Adapter
	Renderer         Renderer
	Trace            bool
	TracePreviewRows int
}

// Engine builds and runs stage lists.
type Engine struct {
	log      *zap.Logger
	fetcher  *etl.Fetcher
	adapter  *grid.Adapter
	renderer Renderer
	trace    bool
	preview  int
}

// New returns an Engine. A nil Fetcher uses the source registry.
func New(o Options) *Engine {
	log := o.Logger
	if log == nil {
		log = zap.NewNop()
	}
	f := o.Fetcher
	if f == nil {
		f = &etl.Fetcher{Logger: log}
	}
	a := o.Adapter
	if a == nil {
		a = &grid.Adapter{}
	}
	preview := o.TracePreviewRows
	if preview <= 0 {
		preview = DefaultTracePreviewRows
	}
	return &Engine{log: log, fetcher: f, adapter: a, renderer: o.Renderer, trace: o.Trace, preview: preview}
}

// RunOption adjusts one run.
type RunOption func(*runConfig)

type runConfig struct {
	start    []any
	hasStart bool
	grid     *grid.Grid
	trace    bool
}

// WithStartData replaces acquisition with the given payloads.
func WithStartData(payloads ...any) RunOption {
	return func(c *runConfig) {
		c.start = payloads
		c.hasStart = true
	}
}

// WithStartGrid skips acquisition and parsing and starts from a copy of g.
func WithStartGrid(g *grid.Grid) RunOption {
	return func(c *runConfig) { c.grid = g }
}

// WithTrace enables the stage trace for this run.
func WithTrace() RunOption {
	return func(c *runConfig) { c.trace = true }
}

// Load acquires and merges the sources of q.
func (e *Engine) Load(ctx context.Context, q *query.Query, opts ...RunOption) (*Result, error) {
	return e.Run(ctx, q, EntryLoad, opts...)
}

// Transform acquires, merges and applies every operator of q.
func (e *Engine) Transform(ctx context.Context, q *query.Query, opts ...RunOption) (*Result, error) {
	return e.Run(ctx, q, EntryTransform, opts...)
}

// Render runs the whole pipeline including the renderer.
func (e *Engine) Render(ctx context.Context, q *query.Query, opts ...RunOption) (*Result, error) {
	return e.Run(ctx, q, EntryRender, opts...)
}

// Stages returns the stage list a run of q would execute.
func (e *Engine) Stages(q *query.Query, entry Entry, opts ...RunOption) []Stage {
	var cfg runConfig
	for _, o := range opts {
		o(&cfg)
	}
	return e.build(q, entry, &cfg)
}

// Run executes the stages of q up to entry. Stages run strictly in order;
// the scheduler yields between them and stops when ctx is done.
func (e *Engine) Run(ctx context.Context, q *query.Query, entry Entry, opts ...RunOption) (res *Result, err error) {
	var cfg runConfig
	for _, o := range opts {
		o(&cfg)
	}
	stages := e.build(q, entry, &cfg)
	tracing := e.trace || cfg.trace || q.Trace()

	st := &State{Query: q, colors: ops.NewContext()}
	res = &Result{}
	defer func() {
		rows := 0
		if st.Grid != nil {
			rows = st.Grid.NumRows()
		}
		metrics.ObserveRun(entry.String(), rows, err)
	}()

	for i, stage := range stages {
		if i > 0 {
			runtime.Gosched()
		}
		if err := ctx.Err(); err != nil {
			return nil, &StageError{Stage: stage.Name, Arg: stage.Arg, Err: err}
		}

		before := st.Grid
		e.log.Debug("stage start", zap.Int("step", i+1), zap.Int("total", len(stages)), zap.String("stage", stage.Name))
		started := time.Now()
		if err := stage.Run(ctx, st); err != nil {
			e.log.Warn("stage failed", zap.String("stage", stage.Name), zap.Error(err))
			var se *StageError
			if errors.As(err, &se) {
				return nil, se
			}
			return nil, &StageError{Stage: stage.Name, Arg: stage.Arg, Err: err}
		}
		elapsed := time.Since(started)
		metrics.ObserveStage(stage.metric, elapsed)
		e.log.Debug("stage done", zap.String("stage", stage.Name), zap.Duration("elapsed", elapsed))

		res.Stages = append(res.Stages, stage.Name)
		if tracing {
			res.Trace = append(res.Trace, e.traceEntry(i+1, len(stages), stage.Name, elapsed, before, st.Grid))
		}
	}

	res.Grid = st.Grid
	res.Loaded = st.Loaded
	res.Options = st.Options
	res.Chart = st.Chart
	res.Output = st.Output
	res.Failures = st.Failures
	return res, nil
}

func (e *Engine) traceEntry(step, total int, name string, elapsed time.Duration, before, after *grid.Grid) TraceEntry {
	t := TraceEntry{Step: step, Total: total, Name: name, Elapsed: elapsed}
	if after == nil {
		return t
	}
	t.Rows = after.NumRows()
	if before != nil && before == after {
		t.Unchanged = true
		return t
	}
	t.Preview = after.Head(e.preview)
	return t
}

// ── Stage construction ─────────────────────────────────────

func (e *Engine) build(q *query.Query, entry Entry, cfg *runConfig) []Stage {
	var stages []Stage

	switch {
	case cfg.grid != nil:
		g := cfg.grid
		stages = append(stages, Stage{Name: "init data", metric: "init data", Run: func(_ context.Context, st *State) error {
			st.Grid = g.Clone()
			st.Loaded = st.Grid
			return nil
		}})
	default:
		if cfg.hasStart {
			start := cfg.start
			stages = append(stages, Stage{Name: "init data", metric: "init data", Run: func(_ context.Context, st *State) error {
				st.Raw = start
				return nil
			}})
		} else {
			stages = append(stages, Stage{Name: "get data", metric: "get data", Run: e.getData})
		}
		stages = append(stages, Stage{Name: "parse", metric: "parse", Run: e.parse})
	}

	if entry == EntryLoad {
		return stages
	}

	for _, step := range q.Steps() {
		step := step
		stages = append(stages, Stage{
			Name:   step.Name(),
			Arg:    step.Arg,
			metric: step.Op.String(),
			Run: func(_ context.Context, st *State) error {
				g, err := ops.Apply(step.Op, st.Grid, step.Arg, st.colors)
				if err != nil {
					return err
				}
				st.Grid = g
				return nil
			},
		})
	}

	if entry == EntryTransform {
		return stages
	}

	stages = append(stages, Stage{Name: "gentable", metric: "gentable", Run: e.genTable})
	name := "view"
	if chart, ok := q.Lookup(query.KeyChart); ok {
		name = query.KeyChart + "=" + chart
	}
	stages = append(stages, Stage{Name: name, metric: "render", Run: e.render})
	return stages
}

func (e *Engine) getData(ctx context.Context, st *State) error {
	fetched, err := e.fetcher.Acquire(ctx, st.Query.URLs())
	if err != nil {
		return err
	}
	st.Raw = fetched.Payloads
	st.URLs = fetched.URLs
	st.Failures = fetched.Failures
	return nil
}

func (e *Engine) parse(_ context.Context, st *State) error {
	g, err := e.adapter.FromPayloads(st.Raw)
	if err != nil {
		return err
	}
	st.Grid = g
	st.Loaded = g
	st.Raw = nil
	return nil
}

func (e *Engine) genTable(_ context.Context, st *State) error {
	g := ops.FillNulls(st.Grid)
	options := st.Query.ChartOptions()
	if st.Query.ChartType() != "" {
		g = ops.LimitPrecision(g)
	}
	st.Options = options
	if e.renderer == nil {
		st.Grid = g
		st.Chart = g
		return nil
	}
	kept, chart, err := e.renderer.Prepare(g, st.Query, options)
	if err != nil {
		return err
	}
	st.Grid = kept
	st.Chart = chart
	return nil
}

func (e *Engine) render(ctx context.Context, st *State) error {
	if e.renderer == nil {
		st.Output = st.Chart
		return nil
	}
	out, err := e.renderer.Render(ctx, st.Chart)
	if err != nil {
		return err
	}
	st.Output = out
	return nil
}

// StageNames lists the names of stages, handy for logging.
func StageNames(stages []Stage) string {
	names := make([]string, len(stages))
	for i, s := range stages {
		names[i] = s.Name
	}
	return strings.Join(names, ", ")
}
