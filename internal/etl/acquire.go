package etl

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"condorview/internal/logging"
	"condorview/internal/metrics"
)

// ── Acquisition ────────────────────────────────────────────
// Every url= of a query is fetched concurrently; results are then
// evaluated in declaration order. One success is enough; each failure is
// kept as a SourceFetchError.

// ErrNoSources is returned when a query names no data location.
var ErrNoSources = errors.New("missing url= in query")

// SourceFetchError records one failed location.
type SourceFetchError struct {
	URL string
	Err error
}

func (e *SourceFetchError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *SourceFetchError) Unwrap() error { return e.Err }

// AllSourcesFailedError is returned when no location could be fetched.
type AllSourcesFailedError struct {
	Failures []*SourceFetchError
}

func (e *AllSourcesFailedError) Error() string {
	msgs := make([]string, len(e.Failures))
	for i, f := range e.Failures {
		msgs[i] = f.Error()
	}
	return fmt.Sprintf("all %d data sources failed: %s", len(e.Failures), strings.Join(msgs, "; "))
}

func (e *AllSourcesFailedError) Unwrap() []error {
	errs := make([]error, len(e.Failures))
	for i, f := range e.Failures {
		errs[i] = f
	}
	return errs
}

// Fetched is the outcome of an acquisition: the decoded payloads of the
// locations that succeeded, in declaration order, and the failures.
type Fetched struct {
	Payloads []any
	URLs     []string
	Failures []*SourceFetchError
}

// Fetcher acquires the locations of a query.
type Fetcher struct {
	Logger        *zap.Logger
	Timeout       time.Duration // per location, 0 for none
	MaxConcurrent int           // 0 for unlimited

	// Resolve picks the source for a location; ResolveSource by default.
	Resolve func(*Location) (Source, error)
}

type fetchOutcome struct {
	payload any
	err     error
}

// Acquire fetches every url. It fails with ErrNoSources for an empty list
// and with *AllSourcesFailedError when nothing could be fetched.
func (f *Fetcher) Acquire(ctx context.Context, urls []string) (*Fetched, error) {
	if len(urls) == 0 {
		return nil, ErrNoSources
	}
	log := logging.OrNop(f.Logger)
	resolve := f.Resolve
	if resolve == nil {
		resolve = ResolveSource
	}

	outcomes := make([]fetchOutcome, len(urls))
	var g errgroup.Group
	if f.MaxConcurrent > 0 {
		g.SetLimit(f.MaxConcurrent)
	}
	for i, raw := range urls {
		g.Go(func() error {
			outcomes[i] = f.fetchOne(ctx, log, resolve, raw)
			return nil
		})
	}
	_ = g.Wait()

	out := &Fetched{}
	for i, o := range outcomes {
		if o.err != nil {
			out.Failures = append(out.Failures, &SourceFetchError{URL: urls[i], Err: o.err})
			continue
		}
		out.Payloads = append(out.Payloads, o.payload)
		out.URLs = append(out.URLs, urls[i])
	}
	if len(out.Payloads) == 0 {
		return nil, &AllSourcesFailedError{Failures: out.Failures}
	}
	return out, nil
}

func (f *Fetcher) fetchOne(ctx context.Context, log *zap.Logger, resolve func(*Location) (Source, error), raw string) fetchOutcome {
	loc, err := ParseLocation(raw)
	if err != nil {
		return fetchOutcome{err: err}
	}
	src, err := resolve(loc)
	if err != nil {
		return fetchOutcome{err: err}
	}
	if f.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.Timeout)
		defer cancel()
	}

	start := time.Now()
	payload, err := src.Fetch(ctx, loc)
	elapsed := time.Since(start)
	metrics.ObserveFetch(src.Spec().Type, elapsed, err)
	if err != nil {
		log.Warn("source fetch failed",
			zap.String("source", src.Spec().Type),
			zap.String("url", loc.Redacted()),
			zap.Error(err))
		return fetchOutcome{err: err}
	}
	log.Debug("source fetched",
		zap.String("source", src.Spec().Type),
		zap.String("url", loc.Redacted()),
		zap.Duration("elapsed", elapsed))
	return fetchOutcome{payload: payload}
}
