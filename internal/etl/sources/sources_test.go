package sources_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"condorview/internal/etl"
	"condorview/internal/etl/sources"
	"condorview/internal/grid"
)

func fetch(t *testing.T, raw string) (any, error) {
	t.Helper()
	loc, err := etl.ParseLocation(raw)
	require.NoError(t, err)
	src, err := etl.ResolveSource(loc)
	require.NoError(t, err)
	return src.Fetch(context.Background(), loc)
}

func TestListSources(t *testing.T) {
	var types []string
	for _, s := range etl.ListSources() {
		types = append(types, s.Type)
	}
	assert.Subset(t, types, []string{"csv_file", "database", "http", "json_file"})
}

// ── HTTP ───────────────────────────────────────────────────

func TestHTTPSource_JSONPWithAuth(t *testing.T) {
	var gotQuery, gotAgent string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		gotAgent = r.UserAgent()
		w.Write([]byte(`jsonp([["user","jobs"],["alice",3]]);`))
	}))
	defer srv.Close()

	sources.SetHTTPOptions(sources.HTTPOptions{
		Client:     srv.Client(),
		UserAgent:  "condorview-test",
		AuthTokens: map[string]string{srv.URL: "tok"},
	})
	defer sources.SetHTTPOptions(sources.HTTPOptions{})

	payload, err := fetch(t, srv.URL+"/jobs.json")
	require.NoError(t, err)
	assert.Equal(t, "auth=tok&callback=jsonp&jsonp=jsonp", gotQuery)
	assert.Equal(t, "condorview-test", gotAgent)

	g, err := grid.FromPayload(payload)
	require.NoError(t, err)
	assert.Equal(t, []string{"user", "jobs"}, g.Headers)
	assert.Equal(t, []grid.Type{grid.String, grid.Number}, g.Types)
}

func TestHTTPSource_CSV(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.URL.Query().Get("callback"))
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.Write([]byte("pool,slots\ncm1,40\n"))
	}))
	defer srv.Close()
	sources.SetHTTPOptions(sources.HTTPOptions{Client: srv.Client()})
	defer sources.SetHTTPOptions(sources.HTTPOptions{})

	payload, err := fetch(t, srv.URL+"/pool.csv")
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"pool", "slots"}, {"cm1", "40"}}, payload)
}

func TestHTTPSource_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "collector down", http.StatusBadGateway)
	}))
	defer srv.Close()
	sources.SetHTTPOptions(sources.HTTPOptions{Client: srv.Client()})
	defer sources.SetHTTPOptions(sources.HTTPOptions{})

	_, err := fetch(t, srv.URL+"/jobs")
	var dpe *grid.DataProviderError
	require.ErrorAs(t, err, &dpe)
	assert.Contains(t, dpe.Message, "502")
	assert.Contains(t, dpe.Message, "collector down")
}

// ── Files ──────────────────────────────────────────────────

func TestJSONFileSource_Fragment(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "report.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"result":{"rows":[{"a":1},{"a":2}]}}`), 0644))

	payload, err := fetch(t, "file://"+filepath.ToSlash(path)+"#result.rows")
	require.NoError(t, err)
	g, err := grid.FromPayload(payload)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, g.Headers)
	assert.Equal(t, 2, g.NumRows())

	_, err = fetch(t, "file://"+filepath.ToSlash(path)+"#result.missing")
	assert.ErrorContains(t, err, "not found")
}

func TestJSONFileSource_RelativeToRoot(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "jobs.json"), []byte(`[["x"],[1]]`), 0644))
	sources.SetFileRoot(dir)
	defer sources.SetFileRoot("")

	payload, err := fetch(t, "jobs.json")
	require.NoError(t, err)
	assert.Len(t, payload, 2)
}

func TestCSVFileSource(t *testing.T) {
	dir := t.TempDir()
	csvPath := filepath.Join(dir, "usage.csv")
	tsvPath := filepath.Join(dir, "usage.tsv")
	require.NoError(t, os.WriteFile(csvPath, []byte("user,hours\nalice,1.5\n"), 0644))
	require.NoError(t, os.WriteFile(tsvPath, []byte("user\thours\nbob\t2\n"), 0644))

	payload, err := fetch(t, csvPath)
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"user", "hours"}, {"alice", "1.5"}}, payload)

	payload, err = fetch(t, tsvPath)
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"user", "hours"}, {"bob", "2"}}, payload)

	empty := filepath.Join(dir, "empty.csv")
	require.NoError(t, os.WriteFile(empty, nil, 0644))
	_, err = fetch(t, empty)
	assert.ErrorContains(t, err, "empty csv")
}

// ── Database ───────────────────────────────────────────────

type stubProvider struct {
	conn, query string
}

func (p *stubProvider) QueryPayload(_ context.Context, connRef, query string) (any, error) {
	p.conn, p.query = connRef, query
	if connRef == "down" {
		return nil, errors.New("connection refused")
	}
	return []any{[]any{"n"}, []any{1.0}}, nil
}

func TestDatabaseSource(t *testing.T) {
	_, err := fetch(t, "db://history?q=SELECT%201")
	assert.ErrorContains(t, err, "not initialized")

	p := &stubProvider{}
	sources.SetDBProvider(p)
	defer sources.SetDBProvider(nil)

	payload, err := fetch(t, "db://history?q=SELECT%20n%20FROM%20t")
	require.NoError(t, err)
	assert.Equal(t, "history", p.conn)
	assert.Equal(t, "SELECT n FROM t", p.query)
	assert.Len(t, payload, 2)

	_, err = fetch(t, "db://history")
	assert.ErrorContains(t, err, "no q=")
	_, err = fetch(t, "db://down?q=x")
	assert.ErrorContains(t, err, "refused")
}
