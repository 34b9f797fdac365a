package query_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"condorview/internal/ops"
	"condorview/internal/query"
)

func TestParse_OrderAndDecoding(t *testing.T) {
	q, err := query.Parse("?url=https%3A%2F%2Fa%2Fx.json&filter=Count%3E%3D4&url=b.csv&title=Jobs%20per%20pool&order=-Count")
	require.NoError(t, err)

	want := []query.Pair{
		{Key: "url", Value: "https://a/x.json"},
		{Key: "filter", Value: "Count>=4"},
		{Key: "url", Value: "b.csv"},
		{Key: "title", Value: "Jobs per pool"},
		{Key: "order", Value: "-Count"},
	}
	assert.Equal(t, want, q.Pairs)
	assert.Equal(t, []string{"https://a/x.json", "b.csv"}, q.URLs())
	assert.Equal(t, "Jobs per pool", q.Title())
}

func TestParse_FirstEqualsSplits(t *testing.T) {
	q, err := query.Parse("rename=old=new&extract_regexp=host=(\\w+)%40&trace")
	require.NoError(t, err)
	assert.Equal(t, "old=new", q.Get("rename"))
	assert.Equal(t, `host=(\w+)@`, q.Get("extract_regexp"))
	assert.True(t, q.Trace())
}

func TestParse_EmptySegments(t *testing.T) {
	q, err := query.Parse("#limit=3&&limit=5&")
	require.NoError(t, err)
	assert.Len(t, q.Pairs, 2)
	assert.Equal(t, "5", q.Get("limit"))
	assert.Equal(t, []string{"3", "5"}, q.All("limit"))

	empty, err := query.Parse("")
	require.NoError(t, err)
	assert.Empty(t, empty.Pairs)
}

func TestParse_UnknownKey(t *testing.T) {
	_, err := query.Parse("group=a&explode=b")
	var argErr *ops.UnknownOperatorArgumentError
	require.True(t, errors.As(err, &argErr))
	assert.Equal(t, "explode", argErr.Op)
}

func TestParse_BadEscape(t *testing.T) {
	_, err := query.Parse("filter=a%zz")
	assert.Error(t, err)
}

func TestParseList(t *testing.T) {
	q, err := query.ParseList([]string{"url=x.json", "group=a;sum(b)", "vAxis.title=jobs"})
	require.NoError(t, err)
	assert.Equal(t, "a;sum(b)", q.Get("group"))
	assert.Equal(t, "jobs", q.Get("vAxis.title"))
}

func TestClassify(t *testing.T) {
	tests := []struct {
		key  string
		kind query.Kind
		ok   bool
	}{
		{"group", query.KindOperator, true},
		{"cumulative_integral", query.KindOperator, true},
		{"url", query.KindControl, true},
		{"intensify", query.KindControl, true},
		{"isStacked", query.KindChartOption, true},
		{"hAxis.gridlines.color", query.KindChartOption, true},
		{"bogus", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			kind, ok := query.Classify(tt.key)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.kind, kind)
		})
	}
}

func TestSteps(t *testing.T) {
	q := query.MustParse("url=x&group=a&title=t&limit=2&chart=line")
	steps := q.Steps()
	require.Len(t, steps, 2)
	assert.Equal(t, ops.OpGroup, steps[0].Op)
	assert.Equal(t, "limit=2", steps[1].Name())
}

func TestTrace(t *testing.T) {
	assert.False(t, query.MustParse("limit=1").Trace())
	assert.False(t, query.MustParse("trace=0").Trace())
	assert.True(t, query.MustParse("trace=1").Trace())
}

func TestIntensify(t *testing.T) {
	mode, ok := query.MustParse("intensify=").Intensify()
	assert.True(t, ok)
	assert.Equal(t, "xy", mode)

	_, ok = query.MustParse("limit=1").Intensify()
	assert.False(t, ok)
}

func TestStringRoundTrip(t *testing.T) {
	q := query.MustParse("url=http%3A%2F%2Fh%2Fa%3Fb%3Dc&filter=x%3D1%2C2&title=a+b")
	assert.Equal(t, "a+b", q.Get("title"), "plus is not a space")
	assert.Equal(t, "http://h/a?b=c", q.Get("url"))
	again, err := query.Parse(q.String())
	require.NoError(t, err)
	assert.Equal(t, q.Pairs, again.Pairs)
}

func TestWithoutAndSourceKey(t *testing.T) {
	q := query.MustParse("url=a&url=b&group=x&trace=1")
	assert.Equal(t, "a\nb", q.SourceKey())
	stripped := q.Without("trace", "url")
	assert.Equal(t, []query.Pair{{Key: "group", Value: "x"}}, stripped.Pairs)
	assert.Len(t, q.Pairs, 4)
}

func TestChartOptions(t *testing.T) {
	q := query.MustParse("chart=line,pointSize=3,curveType=function&title=Load&vAxis.title=jobs&vAxis.minValue=0&isStacked=true&group=a")
	assert.Equal(t, "line", q.ChartType())

	want := map[string]any{
		"title":     "Load",
		"vAxis":     map[string]any{"title": "jobs", "minValue": 0.0},
		"isStacked": true,
		"pointSize": 3.0,
		"curveType": "function",
	}
	assert.Equal(t, want, q.ChartOptions())
}

func TestSetOption_ScalarReplacedByMap(t *testing.T) {
	opts := map[string]any{}
	query.SetOption(opts, "legend", "none")
	query.SetOption(opts, "legend.position", "bottom")
	assert.Equal(t, map[string]any{"legend": map[string]any{"position": "bottom"}}, opts)

	query.MaybeSetOption(opts, "legend", "x")
	query.MaybeSetOption(opts, "maxDepth", 3)
	assert.Equal(t, 3, opts["maxDepth"])
	assert.IsType(t, map[string]any{}, opts["legend"])
}

func TestFlattenOptions(t *testing.T) {
	opts := map[string]any{}
	query.SetOption(opts, "hAxis.gridlines.color", "none")
	query.SetOption(opts, "theme", "maximized")
	query.SetOption(opts, "pointSize", "2")

	want := []query.Pair{
		{Key: "hAxis.gridlines.color", Value: "none"},
		{Key: "pointSize", Value: "2"},
		{Key: "theme", Value: "maximized"},
	}
	assert.Equal(t, want, query.FlattenOptions(opts))
}
