package etl

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
)

// ── Location ───────────────────────────────────────────────
// A url= value names a data location: an http(s) URL, a file:// URL or
// plain path, or a db://<connection>?q=<query> reference.

// Location is a normalized url= value.
type Location struct {
	Raw string   `json:"raw"`
	URL *url.URL `json:"-"`
}

// ParseLocation normalizes raw and parses it. Protocol-relative URLs get
// https:, and any "?" after the first one becomes "&".
func ParseLocation(raw string) (*Location, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return nil, fmt.Errorf("empty data url")
	}
	if strings.ContainsAny(s, `<>"'`) {
		return nil, fmt.Errorf("unsafe data url %q", raw)
	}
	if strings.HasPrefix(s, "//") {
		s = "https:" + s
	}
	if i := strings.IndexByte(s, '?'); i >= 0 {
		s = s[:i+1] + strings.ReplaceAll(s[i+1:], "?", "&")
	}
	u, err := url.Parse(s)
	if err != nil {
		return nil, fmt.Errorf("parse data url %q: %w", raw, err)
	}
	return &Location{Raw: raw, URL: u}, nil
}

// Scheme returns the lower-cased URL scheme, "" for a bare path.
func (l *Location) Scheme() string {
	return strings.ToLower(l.URL.Scheme)
}

// IsFile reports whether the location names a local file.
func (l *Location) IsFile() bool {
	s := l.Scheme()
	return s == "" || s == "file"
}

// FilePath returns the filesystem path of a file location.
func (l *Location) FilePath() string {
	return filepath.FromSlash(l.URL.Path)
}

// Ext returns the lower-cased extension of the location's path.
func (l *Location) Ext() string {
	return strings.ToLower(filepath.Ext(l.URL.Path))
}

// String returns the normalized URL.
func (l *Location) String() string {
	return l.URL.String()
}

// Redacted returns the URL with any password and auth parameter masked,
// for logs and error messages.
func (l *Location) Redacted() string {
	u := *l.URL
	q := u.Query()
	if q.Has("auth") {
		q.Set("auth", "xxxxx")
		u.RawQuery = q.Encode()
	}
	return u.Redacted()
}

// ── JSONP ──────────────────────────────────────────────────

// ExtractJSON turns a loose response body into JSON text: a jsonp(...)
// wrapper is stripped, a trailing comma is dropped, and a run of records
// that is not a JSON value on its own is wrapped in [ ].
func ExtractJSON(body []byte) []byte {
	data := bytes.TrimSpace(body)
	if start := bytes.Index(data, []byte("jsonp(")); start >= 0 {
		inner := data[start+len("jsonp("):]
		inner = bytes.TrimSuffix(bytes.TrimSpace(inner), []byte(";"))
		inner = bytes.TrimSuffix(bytes.TrimSpace(inner), []byte(")"))
		data = bytes.TrimSpace(inner)
	}
	data = bytes.TrimSpace(bytes.TrimSuffix(data, []byte(",")))
	if len(data) == 0 || (data[0] != '[' && !json.Valid(data)) {
		wrapped := make([]byte, 0, len(data)+2)
		wrapped = append(wrapped, '[')
		wrapped = append(wrapped, data...)
		data = append(wrapped, ']')
	}
	return data
}
