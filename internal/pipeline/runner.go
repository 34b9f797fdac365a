package pipeline

import (
	"context"
	"sync"

	"condorview/internal/grid"
	"condorview/internal/query"
)

// ── Runner ─────────────────────────────────────────────────
// A dashboard shows several views of the same sources. The Runner keeps the
// loaded grid per component key so a view whose sources did not change
// skips acquisition and starts from a copy of the cached grid.

type memo struct {
	sourceKey string
	loaded    *grid.Grid
}

// Runner wraps an Engine with a per-component load cache.
type Runner struct {
	engine *Engine

	mu    sync.Mutex
	memos map[string]memo
	hits  int
}

// NewRunner returns a Runner over e.
func NewRunner(e *Engine) *Runner {
	return &Runner{engine: e, memos: map[string]memo{}}
}

// Engine returns the wrapped engine.
func (r *Runner) Engine() *Engine { return r.engine }

// Run executes q for the component named key. When the previous run of key
// loaded the same sources the cached grid is reused.
func (r *Runner) Run(ctx context.Context, key string, q *query.Query, entry Entry, opts ...RunOption) (*Result, error) {
	sourceKey := q.SourceKey()

	r.mu.Lock()
	m, ok := r.memos[key]
	if ok && m.sourceKey == sourceKey {
		r.hits++
	}
	r.mu.Unlock()

	if ok && m.sourceKey == sourceKey {
		opts = append(opts, WithStartGrid(m.loaded))
	}
	res, err := r.engine.Run(ctx, q, entry, opts...)
	if err != nil {
		return nil, err
	}
	if res.Loaded != nil {
		r.mu.Lock()
		r.memos[key] = memo{sourceKey: sourceKey, loaded: res.Loaded.Clone()}
		r.mu.Unlock()
	}
	return res, nil
}

// Forget drops the cached grid of key, or every cached grid when key is "".
func (r *Runner) Forget(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if key == "" {
		r.memos = map[string]memo{}
		return
	}
	delete(r.memos, key)
}

// Hits reports how many runs reused a cached grid.
func (r *Runner) Hits() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.hits
}
