package etl_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"condorview/internal/etl"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// ── Location ───────────────────────────────────────────────

func TestParseLocation(t *testing.T) {
	tests := []struct {
		raw    string
		scheme string
		want   string
		isFile bool
	}{
		{"//collector.example/jobs.json", "https", "https://collector.example/jobs.json", false},
		{"http://h/q?a=1?b=2", "http", "http://h/q?a=1&b=2", false},
		{"  data/jobs.json ", "", "data/jobs.json", true},
		{"file:///srv/usage.csv", "file", "file:///srv/usage.csv", true},
		{"db://history?q=SELECT%201", "db", "db://history?q=SELECT%201", false},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			loc, err := etl.ParseLocation(tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.scheme, loc.Scheme())
			assert.Equal(t, tt.want, loc.String())
			assert.Equal(t, tt.isFile, loc.IsFile())
		})
	}
}

func TestParseLocation_Rejects(t *testing.T) {
	for _, raw := range []string{"", "   ", `http://h/"><script>`, "http://h/a'b"} {
		_, err := etl.ParseLocation(raw)
		assert.Error(t, err, raw)
	}
}

func TestLocationRedacted(t *testing.T) {
	loc, err := etl.ParseLocation("https://user:pw@h/jobs?auth=s3cret&x=1")
	require.NoError(t, err)
	red := loc.Redacted()
	assert.NotContains(t, red, "s3cret")
	assert.NotContains(t, red, "pw@")
	assert.Contains(t, red, "x=1")
}

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain array", `[[1,2]]`, `[[1,2]]`},
		{"object kept", `{"table":{}}`, `{"table":{}}`},
		{"jsonp", `jsonp([["a"],[1]]);`, `[["a"],[1]]`},
		{"jsonp without semicolon", "jsonp({\"a\":1})\n", `{"a":1}`},
		{"record run", `{"a":1},{"a":2},`, `[{"a":1},{"a":2}]`},
		{"empty", "  ", `[]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, string(etl.ExtractJSON([]byte(tt.in))))
		})
	}
}

// ── Acquisition ────────────────────────────────────────────

type stubSource struct {
	delay   time.Duration
	fail    map[string]bool
	fetches atomic.Int32
}

func (s *stubSource) Spec() etl.SourceSpec { return etl.SourceSpec{Type: "stub"} }

func (s *stubSource) Match(*etl.Location) bool { return true }

func (s *stubSource) Fetch(ctx context.Context, loc *etl.Location) (any, error) {
	s.fetches.Add(1)
	// Later urls finish first so ordering is not an accident of timing.
	if strings.HasSuffix(loc.Raw, "a") {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if s.fail[loc.Raw] {
		return nil, fmt.Errorf("boom %s", loc.Raw)
	}
	return loc.Raw, nil
}

func stubFetcher(src *stubSource) *etl.Fetcher {
	return &etl.Fetcher{
		MaxConcurrent: 2,
		Resolve:       func(*etl.Location) (etl.Source, error) { return src, nil },
	}
}

func TestAcquire_KeepsDeclarationOrder(t *testing.T) {
	src := &stubSource{delay: 20 * time.Millisecond}
	got, err := stubFetcher(src).Acquire(context.Background(), []string{"u/a", "u/b", "u/c"})
	require.NoError(t, err)
	assert.Equal(t, []any{"u/a", "u/b", "u/c"}, got.Payloads)
	assert.Equal(t, []string{"u/a", "u/b", "u/c"}, got.URLs)
	assert.Empty(t, got.Failures)
	assert.EqualValues(t, 3, src.fetches.Load())
}

func TestAcquire_PartialFailure(t *testing.T) {
	src := &stubSource{fail: map[string]bool{"u/b": true}}
	got, err := stubFetcher(src).Acquire(context.Background(), []string{"u/a", "u/b", "u/c"})
	require.NoError(t, err)
	assert.Equal(t, []any{"u/a", "u/c"}, got.Payloads)
	require.Len(t, got.Failures, 1)
	assert.Equal(t, "u/b", got.Failures[0].URL)
}

func TestAcquire_AllFail(t *testing.T) {
	src := &stubSource{fail: map[string]bool{"u/a": true, "u/b": true}}
	_, err := stubFetcher(src).Acquire(context.Background(), []string{"u/a", "u/b"})

	var all *etl.AllSourcesFailedError
	require.ErrorAs(t, err, &all)
	require.Len(t, all.Failures, 2)
	assert.Equal(t, "u/a", all.Failures[0].URL)
	assert.Equal(t, "u/b", all.Failures[1].URL)

	var one *etl.SourceFetchError
	assert.ErrorAs(t, err, &one)
}

func TestAcquire_NoSources(t *testing.T) {
	_, err := (&etl.Fetcher{}).Acquire(context.Background(), nil)
	assert.ErrorIs(t, err, etl.ErrNoSources)
}

func TestAcquire_BadURLIsAFailure(t *testing.T) {
	src := &stubSource{}
	got, err := stubFetcher(src).Acquire(context.Background(), []string{`x"y`, "u/b"})
	require.NoError(t, err)
	assert.Equal(t, []any{"u/b"}, got.Payloads)
	require.Len(t, got.Failures, 1)
}

func TestAcquire_Timeout(t *testing.T) {
	src := &stubSource{delay: time.Second}
	f := stubFetcher(src)
	f.Timeout = 10 * time.Millisecond
	_, err := f.Acquire(context.Background(), []string{"u/a"})
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

// ── Registry ───────────────────────────────────────────────

type namedSource struct {
	stubSource
	typ    string
	scheme string
}

func (s *namedSource) Spec() etl.SourceSpec { return etl.SourceSpec{Type: s.typ} }

func (s *namedSource) Match(loc *etl.Location) bool { return loc.Scheme() == s.scheme }

func TestRegistry(t *testing.T) {
	etl.RegisterSource(&namedSource{typ: "zz_test", scheme: "zz"})

	src, err := etl.GetSource("zz_test")
	require.NoError(t, err)
	assert.Equal(t, "zz_test", src.Spec().Type)

	loc, err := etl.ParseLocation("zz://anything")
	require.NoError(t, err)
	resolved, err := etl.ResolveSource(loc)
	require.NoError(t, err)
	assert.Equal(t, "zz_test", resolved.Spec().Type)

	loc, err = etl.ParseLocation("nope://anything")
	require.NoError(t, err)
	_, err = etl.ResolveSource(loc)
	assert.Error(t, err)

	_, err = etl.GetSource("missing")
	assert.Error(t, err)
}
