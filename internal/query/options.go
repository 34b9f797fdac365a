package query

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// ── Chart options ──────────────────────────────────────────
// chart=type[,key=value...] names the chart; every chart option key and
// title= is collected into one nested option map. A dotted key such as
// vAxis.title=x nests: {"vAxis": {"title": "x"}}.

// ChartType returns the chart type named by chart=, or "" for a table.
func (q *Query) ChartType() string {
	typ, _, _ := strings.Cut(q.Get(KeyChart), ",")
	return strings.TrimSpace(typ)
}

// ChartOptions builds the nested option map handed to a renderer.
func (q *Query) ChartOptions() map[string]any {
	out := map[string]any{}
	for _, p := range q.Pairs {
		kind, _ := Classify(p.Key)
		if kind == KindChartOption || p.Key == KeyTitle {
			SetOption(out, p.Key, p.Value)
		}
	}
	if _, extra, ok := strings.Cut(q.Get(KeyChart), ","); ok {
		for _, kv := range strings.Split(extra, ",") {
			k, v, _ := strings.Cut(kv, "=")
			if k = strings.TrimSpace(k); k != "" {
				SetOption(out, k, strings.TrimSpace(v))
			}
		}
	}
	return out
}

// SetOption stores value under a possibly dotted key, creating nested maps
// on the way. A scalar in the path is replaced by a map.
func SetOption(options map[string]any, key, value string) {
	head, rest, dotted := strings.Cut(key, ".")
	if !dotted {
		options[key] = optionValue(value)
		return
	}
	sub, ok := options[head].(map[string]any)
	if !ok {
		sub = map[string]any{}
		options[head] = sub
	}
	SetOption(sub, rest, value)
}

// MaybeSetOption stores value only when key is not already set.
func MaybeSetOption(options map[string]any, key string, value any) {
	if _, ok := options[key]; !ok {
		options[key] = value
	}
}

// optionValue reads "true"/"false" as booleans and plain numbers as
// float64; anything else stays a string.
func optionValue(s string) any {
	switch s {
	case "true":
		return true
	case "false":
		return false
	}
	if plainNumberRE.MatchString(s) {
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f
		}
	}
	return s
}

var plainNumberRE = regexp.MustCompile(`^-?\d+(\.\d+)?$`)

// FlattenOptions returns the leaves of a nested option map keyed by their
// dotted path, sorted by key.
func FlattenOptions(options map[string]any) []Pair {
	var out []Pair
	var walk func(prefix string, m map[string]any)
	walk = func(prefix string, m map[string]any) {
		for k, v := range m {
			path := k
			if prefix != "" {
				path = prefix + "." + k
			}
			if sub, ok := v.(map[string]any); ok {
				walk(path, sub)
				continue
			}
			out = append(out, Pair{Key: path, Value: optionString(v)})
		}
	}
	walk("", options)
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

func optionString(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case bool:
		return strconv.FormatBool(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case int:
		return strconv.Itoa(x)
	}
	return ""
}
