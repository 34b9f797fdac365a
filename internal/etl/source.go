package etl

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// ── Source ──────────────────────────────────────────────────
// A Source fetches one data location and decodes it into a payload the
// grid adapters understand (decoded JSON, a 2-D table, or a datacube).
// Implementations live in etl/sources/, one file per source type.

// SourceSpec describes a source type and the locations it accepts.
type SourceSpec struct {
	Type    string   `json:"type"`
	Label   string   `json:"label"`
	Schemes []string `json:"schemes"`
	Example string   `json:"example,omitempty"`
	Help    string   `json:"help,omitempty"`
}

// Source is the interface every data source must implement.
type Source interface {
	// Spec returns metadata about this source type.
	Spec() SourceSpec

	// Match reports whether the source can fetch loc.
	Match(loc *Location) bool

	// Fetch retrieves loc and returns its decoded payload.
	Fetch(ctx context.Context, loc *Location) (any, error)
}

// ── Source Registry ────────────────────────────────────────
// Compile-time registration via init() in each source file. Resolution
// tries sources in registration order.

var (
	registryMu sync.RWMutex
	registry   []Source
)

// RegisterSource registers a source, replacing one of the same type.
// Called from init() in each source implementation file.
func RegisterSource(s Source) {
	registryMu.Lock()
	defer registryMu.Unlock()
	for i, have := range registry {
		if have.Spec().Type == s.Spec().Type {
			registry[i] = s
			return
		}
	}
	registry = append(registry, s)
}

// GetSource returns a registered source by type, or an error if not found.
func GetSource(typ string) (Source, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	for _, s := range registry {
		if s.Spec().Type == typ {
			return s, nil
		}
	}
	return nil, fmt.Errorf("unknown source type: %q", typ)
}

// ResolveSource returns the first registered source that matches loc.
func ResolveSource(loc *Location) (Source, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	for _, s := range registry {
		if s.Match(loc) {
			return s, nil
		}
	}
	return nil, fmt.Errorf("no source handles %q", loc.Raw)
}

// ListSources returns the specs of all registered sources, sorted by type.
func ListSources() []SourceSpec {
	registryMu.RLock()
	defer registryMu.RUnlock()
	specs := make([]SourceSpec, 0, len(registry))
	for _, s := range registry {
		specs = append(specs, s.Spec())
	}
	sort.Slice(specs, func(i, j int) bool { return specs[i].Type < specs[j].Type })
	return specs
}
