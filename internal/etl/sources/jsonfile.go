package sources

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"condorview/internal/etl"
	"condorview/internal/grid"
)

// ── JSON File Source ────────────────────────────────────────
// Reads a local JSON, JSONP or loose record file. A URL fragment names a
// dot-separated path to the part of the document holding the data
// (file:///srv/jobs.json#result.rows).

var (
	fileRootMu sync.RWMutex
	fileRoot   string
)

// SetFileRoot sets the directory relative file paths resolve against.
// Called by the app at startup; empty means the working directory.
func SetFileRoot(dir string) {
	fileRootMu.Lock()
	fileRoot = dir
	fileRootMu.Unlock()
}

func resolveFilePath(loc *etl.Location) (string, error) {
	p := loc.FilePath()
	if p == "" {
		return "", fmt.Errorf("file path is required")
	}
	if filepath.IsAbs(p) {
		return p, nil
	}
	fileRootMu.RLock()
	root := fileRoot
	fileRootMu.RUnlock()
	if root == "" {
		return p, nil
	}
	return filepath.Join(root, p), nil
}

type jsonFileSource struct{}

func init() { etl.RegisterSource(&jsonFileSource{}) }

func (s *jsonFileSource) Spec() etl.SourceSpec {
	return etl.SourceSpec{
		Type:    "json_file",
		Label:   "JSON File",
		Schemes: []string{"file", ""},
		Example: "url=file:///var/lib/condorview/submitters.json",
		Help:    "Local JSON or JSONP file; #a.b selects a nested value",
	}
}

func (s *jsonFileSource) Match(loc *etl.Location) bool {
	if !loc.IsFile() {
		return false
	}
	switch loc.Ext() {
	case ".csv", ".tsv":
		return false
	}
	return true
}

func (s *jsonFileSource) Fetch(ctx context.Context, loc *etl.Location) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path, err := resolveFilePath(loc)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	payload, err := grid.DecodeJSONBytes(etl.ExtractJSON(data))
	if err != nil {
		return nil, &grid.UnrecognizedFormatError{Reason: err.Error()}
	}
	if frag := loc.URL.Fragment; frag != "" {
		v, ok := navigatePath(payload, frag)
		if !ok {
			return nil, fmt.Errorf("data path %q not found in %s", frag, path)
		}
		return v, nil
	}
	return payload, nil
}

// navigatePath walks a dot-separated path into nested objects.
func navigatePath(v any, path string) (any, bool) {
	current := v
	for _, part := range strings.Split(path, ".") {
		obj, ok := current.(*grid.Object)
		if !ok {
			return nil, false
		}
		if current, ok = obj.Get(part); !ok {
			return nil, false
		}
	}
	return current, true
}
