// Package query parses the flat key=value query strings that describe a
// pipeline: which sources to fetch, which operators to run and how to chart
// the result.
package query

import (
	"fmt"
	"net/url"
	"sort"
	"strings"

	"condorview/internal/ops"
)

// ── Pairs ──────────────────────────────────────────────────

// Pair is one decoded key=value item, in request order.
type Pair struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Query is an ordered, non-deduplicated list of pairs.
type Query struct {
	Pairs []Pair `json:"pairs"`
}

// Kind classifies what a key does in a pipeline.
type Kind int

const (
	KindOperator Kind = iota + 1
	KindControl
	KindChartOption
)

// Control keys drive acquisition and rendering instead of transforming data.
const (
	KeyURL       = "url"
	KeyTitle     = "title"
	KeyChart     = "chart"
	KeyTrace     = "trace"
	KeyEditLink  = "editlink"
	KeyIntensify = "intensify"
)

var controlKeys = map[string]bool{
	KeyURL:       true,
	KeyTitle:     true,
	KeyChart:     true,
	KeyTrace:     true,
	KeyEditLink:  true,
	KeyIntensify: true,
}

// chartOptionKeys are undotted chart options passed through to the renderer.
var chartOptionKeys = map[string]bool{
	"help_url":        true,
	"width":           true,
	"height":          true,
	"colors":          true,
	"legend":          true,
	"isStacked":       true,
	"hAxis":           true,
	"vAxis":           true,
	"chartArea":       true,
	"backgroundColor": true,
	"fontSize":        true,
	"fontName":        true,
	"pointSize":       true,
	"lineWidth":       true,
	"curveType":       true,
	"theme":           true,
	"explorer":        true,
	"series":          true,
	"is3D":            true,
	"pieHole":         true,
	"maxDepth":        true,
	"maxPostDepth":    true,
	"showScale":       true,
	"num_pattern":     true,
	"inum_pattern":    true,
	"allowHtml":       true,
	"page":            true,
	"pageSize":        true,
	"sortColumn":      true,
	"sortAscending":   true,
	"focusTarget":     true,
	"orientation":     true,
}

// Classify reports the kind of key. ok is false for keys no pipeline
// understands.
func Classify(key string) (Kind, bool) {
	if _, isOp := ops.Lookup(key); isOp {
		return KindOperator, true
	}
	if controlKeys[key] {
		return KindControl, true
	}
	if chartOptionKeys[key] || strings.Contains(key, ".") {
		return KindChartOption, true
	}
	return 0, false
}

// ChartOptionKeys returns the undotted chart option keys, sorted.
func ChartOptionKeys() []string {
	out := make([]string, 0, len(chartOptionKeys))
	for k := range chartOptionKeys {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// ── Parsing ────────────────────────────────────────────────

// Parse decodes "key=value&key=value". A leading "?" or "#" is ignored and
// empty segments are skipped.
func Parse(s string) (*Query, error) {
	s = strings.TrimPrefix(strings.TrimPrefix(s, "?"), "#")
	if s == "" {
		return &Query{}, nil
	}
	return ParseList(strings.Split(s, "&"))
}

// ParseList decodes pre-split "key=value" items. Percent escapes are
// decoded; "+" stays a plus sign so regexp arguments survive.
func ParseList(items []string) (*Query, error) {
	q := &Query{Pairs: make([]Pair, 0, len(items))}
	for _, item := range items {
		if item == "" {
			continue
		}
		rawKey, rawValue, _ := strings.Cut(item, "=")
		key, err := url.PathUnescape(rawKey)
		if err != nil {
			return nil, fmt.Errorf("decode key %q: %w", rawKey, err)
		}
		value, err := url.PathUnescape(rawValue)
		if err != nil {
			return nil, fmt.Errorf("decode value of %q: %w", key, err)
		}
		if _, ok := Classify(key); !ok {
			return nil, &ops.UnknownOperatorArgumentError{Op: key, Arg: value, Reason: "unknown query key"}
		}
		q.Pairs = append(q.Pairs, Pair{Key: key, Value: value})
	}
	return q, nil
}

// MustParse is Parse for literals; it panics on error.
func MustParse(s string) *Query {
	q, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return q
}

// ── Accessors ──────────────────────────────────────────────

// Get returns the last value of key, or "".
func (q *Query) Get(key string) string {
	v, _ := q.Lookup(key)
	return v
}

// Lookup returns the last value of key and whether it was present.
func (q *Query) Lookup(key string) (string, bool) {
	for i := len(q.Pairs) - 1; i >= 0; i-- {
		if q.Pairs[i].Key == key {
			return q.Pairs[i].Value, true
		}
	}
	return "", false
}

// All returns every value of key in order.
func (q *Query) All(key string) []string {
	var out []string
	for _, p := range q.Pairs {
		if p.Key == key {
			out = append(out, p.Value)
		}
	}
	return out
}

// URLs returns the source locations in request order.
func (q *Query) URLs() []string { return q.All(KeyURL) }

// Title returns the title= value.
func (q *Query) Title() string { return q.Get(KeyTitle) }

// Trace reports whether stage tracing was requested. A bare "trace" or any
// value other than 0/false enables it.
func (q *Query) Trace() bool {
	v, ok := q.Lookup(KeyTrace)
	if !ok {
		return false
	}
	switch strings.ToLower(v) {
	case "0", "false", "no", "off":
		return false
	}
	return true
}

// Intensify returns the requested heat-map mode; an empty value means "xy".
func (q *Query) Intensify() (string, bool) {
	v, ok := q.Lookup(KeyIntensify)
	if !ok {
		return "", false
	}
	if v == "" {
		v = "xy"
	}
	return v, true
}

// Step is one operator invocation.
type Step struct {
	Op  ops.Op
	Arg string
}

// Name is the stage label of the step, "key=value".
func (s Step) Name() string { return s.Op.String() + "=" + s.Arg }

// Steps returns the operator pairs in request order.
func (q *Query) Steps() []Step {
	var out []Step
	for _, p := range q.Pairs {
		if op, ok := ops.Lookup(p.Key); ok {
			out = append(out, Step{Op: op, Arg: p.Value})
		}
	}
	return out
}

// String re-encodes the query. Parsing the result yields the same pairs.
func (q *Query) String() string {
	var b strings.Builder
	for i, p := range q.Pairs {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(escape(p.Key))
		b.WriteByte('=')
		b.WriteString(escape(p.Value))
	}
	return b.String()
}

func escape(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}

// Without returns a copy of q minus every pair whose key is listed.
func (q *Query) Without(keys ...string) *Query {
	drop := map[string]bool{}
	for _, k := range keys {
		drop[k] = true
	}
	out := &Query{}
	for _, p := range q.Pairs {
		if !drop[p.Key] {
			out.Pairs = append(out.Pairs, p)
		}
	}
	return out
}

// SourceKey identifies the acquisition part of the query: the url pairs
// in order. Two queries with the same SourceKey load the same data.
func (q *Query) SourceKey() string {
	return strings.Join(q.URLs(), "\n")
}
