package sources

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"sync"

	"condorview/internal/etl"
	"condorview/internal/grid"
)

// ── HTTP Source ─────────────────────────────────────────────
// Fetches a data URL over http(s). Bodies are JSON, JSONP or loose record
// runs, or CSV when the server says so or the path ends in .csv.

// HTTPOptions configures the http source.
type HTTPOptions struct {
	Client    *http.Client
	UserAgent string

	// AuthTokens maps "scheme://host" to a token sent as the auth= parameter.
	AuthTokens map[string]string
}

var (
	httpMu   sync.RWMutex
	httpOpts = HTTPOptions{Client: http.DefaultClient}
)

// SetHTTPOptions is called by the app at startup.
func SetHTTPOptions(o HTTPOptions) {
	if o.Client == nil {
		o.Client = http.DefaultClient
	}
	httpMu.Lock()
	httpOpts = o
	httpMu.Unlock()
}

func currentHTTPOptions() HTTPOptions {
	httpMu.RLock()
	defer httpMu.RUnlock()
	return httpOpts
}

type httpSource struct{}

func init() { etl.RegisterSource(&httpSource{}) }

func (s *httpSource) Spec() etl.SourceSpec {
	return etl.SourceSpec{
		Type:    "http",
		Label:   "HTTP",
		Schemes: []string{"http", "https"},
		Example: "url=//collector.example/condor/jobs.json",
		Help:    "JSON, JSONP or CSV over http(s); protocol-relative URLs use https",
	}
}

func (s *httpSource) Match(loc *etl.Location) bool {
	switch loc.Scheme() {
	case "http", "https":
		return true
	}
	return false
}

func (s *httpSource) Fetch(ctx context.Context, loc *etl.Location) (any, error) {
	opts := currentHTTPOptions()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, extendDataURL(loc, opts.AuthTokens), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if opts.UserAgent != "" {
		req.Header.Set("User-Agent", opts.UserAgent)
	}
	req.Header.Set("Accept", "application/json, text/csv;q=0.9, */*;q=0.5")

	resp, err := opts.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, &grid.DataProviderError{Message: fmt.Sprintf("http %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))}
	}

	if isCSVResponse(resp, loc) {
		records, err := grid.ReadCSVRecords(resp.Body, ',')
		if err != nil {
			return nil, err
		}
		return records, nil
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	payload, err := grid.DecodeJSONBytes(etl.ExtractJSON(data))
	if err != nil {
		return nil, &grid.UnrecognizedFormatError{Reason: err.Error()}
	}
	if frag := loc.URL.Fragment; frag != "" {
		v, ok := navigatePath(payload, frag)
		if !ok {
			return nil, fmt.Errorf("data path %q not found in response", frag)
		}
		return v, nil
	}
	return payload, nil
}

// extendDataURL asks the server for a jsonp wrapper and adds the auth
// token configured for the host, unless the URL already carries them. CSV
// paths get only the token.
func extendDataURL(loc *etl.Location, tokens map[string]string) string {
	u := *loc.URL
	q := u.Query()
	if !isCSVPath(u.Path) && !q.Has("callback") {
		q.Set("callback", "jsonp")
		q.Set("jsonp", "jsonp")
	}
	if tok, ok := tokens[u.Scheme+"://"+u.Host]; ok && tok != "" && !q.Has("auth") {
		q.Set("auth", tok)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

func isCSVResponse(resp *http.Response, loc *etl.Location) bool {
	if mt, _, err := mime.ParseMediaType(resp.Header.Get("Content-Type")); err == nil {
		switch mt {
		case "text/csv", "application/csv":
			return true
		}
	}
	return isCSVPath(loc.URL.Path)
}

func isCSVPath(p string) bool {
	return strings.HasSuffix(strings.ToLower(p), ".csv")
}
