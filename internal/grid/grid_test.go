package grid_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"condorview/internal/grid"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ── Inference ──────────────────────────────────────────────

func TestInferTypes(t *testing.T) {
	tests := []struct {
		name   string
		column []any
		want   grid.Type
	}{
		{"zero one strings", []any{"0", "1"}, grid.Boolean},
		{"true false", []any{"true", "False", nil}, grid.Boolean},
		{"dates", []any{"2020-01-01", "2020-02-01"}, grid.Date},
		{"mixed date and time", []any{"2020-01-01 10:00", "2020-01-02"}, grid.DateTime},
		{"fractional seconds", []any{"2020-01-01 00:00:00.500", "2020-01-02"}, grid.DateTime},
		{"datetime and junk", []any{"2020-01-01 10:00", "x"}, grid.String},
		{"numbers", []any{"1.5", 2.0, ""}, grid.Number},
		{"date literal", []any{"Date(2014,0,1)"}, grid.Date},
		{"words", []any{"alpha", "beta"}, grid.String},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := make([][]any, len(tt.column))
			for i, c := range tt.column {
				data[i] = []any{c}
			}
			got := grid.InferTypes(data, 1)
			assert.Equal(t, []grid.Type{tt.want}, got)
		})
	}
}

func TestParseDate(t *testing.T) {
	tests := []struct {
		in   string
		want time.Time
		ok   bool
	}{
		{"2020-01-02", day(2020, 1, 2), true},
		{"2020/01/02 03:04:05", time.Date(2020, 1, 2, 3, 4, 5, 0, time.UTC), true},
		{"12/25/2020", day(2020, 12, 25), true},
		{"2020-01-01T10:00:00.5Z", time.Date(2020, 1, 1, 10, 0, 0, 500*int(time.Millisecond), time.UTC), true},
		{"Date(2014,0,1,2,3,4)", time.Date(2014, 1, 1, 2, 3, 4, 0, time.UTC), true},
		{"2020-02-30", time.Time{}, false},
		{"12-12-12", time.Time{}, false},
		{"hello", time.Time{}, false},
	}
	for _, tt := range tests {
		got, ok := grid.ParseDate(tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
		if tt.ok {
			assert.True(t, tt.want.Equal(got), "%s: got %v want %v", tt.in, got, tt.want)
		}
	}
}

func TestCoerceCell(t *testing.T) {
	assert.Equal(t, 1.0, grid.CoerceCell("True", grid.Boolean))
	assert.Equal(t, 0.0, grid.CoerceCell("0", grid.Boolean))
	assert.Equal(t, 2.5, grid.CoerceCell("2.5", grid.Number))
	assert.Nil(t, grid.CoerceCell("", grid.Number))
	assert.Equal(t, "3", grid.CoerceCell(3.0, grid.String))
	assert.Equal(t, day(2021, 3, 4), grid.CoerceCell("2021-03-04", grid.Date))
}

// ── Adapters ───────────────────────────────────────────────

func TestFromPayload_TwoDimensional(t *testing.T) {
	payload := []any{
		[]any{"Date", "Count"},
		[]any{"2020-01-01", 5.0},
		[]any{"2020-01-02", 3.0},
	}
	g, err := grid.FromPayload(payload)
	require.NoError(t, err)
	require.NoError(t, g.Validate())

	assert.Equal(t, []string{"Date", "Count"}, g.Headers)
	assert.Equal(t, []grid.Type{grid.Date, grid.Number}, g.Types)
	want := [][]any{
		{day(2020, 1, 1), 5.0},
		{day(2020, 1, 2), 3.0},
	}
	if diff := cmp.Diff(want, g.Data); diff != "" {
		t.Errorf("data mismatch (-want +got):\n%s", diff)
	}
}

func TestFromPayload_GvizTable(t *testing.T) {
	payload, err := grid.DecodeJSONBytes([]byte(`{
		"table": {
			"cols": [{"id": "a", "label": "Host"}, {"id": "jobs"}],
			"rows": [
				{"c": [{"v": "node1"}, {"v": 4}]},
				{"c": [{"v": "node2"}, null]}
			]
		}
	}`))
	require.NoError(t, err)

	g, err := grid.FromPayload(payload)
	require.NoError(t, err)
	assert.Equal(t, []string{"Host", "jobs"}, g.Headers)
	assert.Equal(t, []grid.Type{grid.String, grid.Number}, g.Types)
	assert.Equal(t, []any{"node2", nil}, g.Data[1])
}

func TestFromPayload_DataCols(t *testing.T) {
	payload, err := grid.DecodeJSONBytes([]byte(`{
		"cols": [{"caption": "when"}, "n"],
		"data": [["2020-01-01", 1], ["2020-01-02", 7]]
	}`))
	require.NoError(t, err)

	g, err := grid.FromPayload(payload)
	require.NoError(t, err)
	assert.Equal(t, []string{"when", "n"}, g.Headers)
	assert.Equal(t, []grid.Type{grid.Date, grid.Number}, g.Types)
}

func TestFromPayload_GridPassThrough(t *testing.T) {
	payload, err := grid.DecodeJSONBytes([]byte(`{
		"headers": ["d", "flag"],
		"types": ["date", "boolean"],
		"data": [["2020-05-06", 1]]
	}`))
	require.NoError(t, err)

	g, err := grid.FromPayload(payload)
	require.NoError(t, err)
	assert.Equal(t, []grid.Type{grid.Date, grid.Boolean}, g.Types)
	assert.Equal(t, []any{day(2020, 5, 6), 1.0}, g.Data[0])
}

func TestFromPayload_ErrorEnvelope(t *testing.T) {
	payload, err := grid.DecodeJSONBytes([]byte(`{"errors": [{"message": "boom", "detailed_message": "disk full"}]}`))
	require.NoError(t, err)

	_, err = grid.FromPayload(payload)
	var dpe *grid.DataProviderError
	require.True(t, errors.As(err, &dpe))
	assert.Equal(t, "boom: disk full", dpe.Message)

	_, err = grid.FromPayload(map[string]any{"error": "denied"})
	require.True(t, errors.As(err, &dpe))
	assert.Equal(t, "denied", dpe.Message)
}

func TestFromPayload_Unrecognized(t *testing.T) {
	for _, payload := range []any{"just a string", 42.0, map[string]any{"rows": 1}} {
		_, err := grid.FromPayload(payload)
		var ufe *grid.UnrecognizedFormatError
		assert.True(t, errors.As(err, &ufe), "payload %v", payload)
	}
}

func TestFromPayload_Datacube(t *testing.T) {
	payload, err := grid.DecodeJSONBytes([]byte(`[
		{"host": "a", "meta": {"pool": "p1"}, "jobs": [{"id": 1}, {"id": 2}]},
		{"host": "b", "meta": {"pool": "p2"}, "jobs": [{"id": 3}]}
	]`))
	require.NoError(t, err)

	g, err := grid.FromPayload(payload)
	require.NoError(t, err)
	assert.Equal(t, []string{"host", "pool", "id"}, g.Headers)
	want := [][]any{
		{"a", "p1", 1.0},
		{"a", "p1", 2.0},
		{"b", "p2", 3.0},
	}
	if diff := cmp.Diff(want, g.Data); diff != "" {
		t.Errorf("datacube mismatch (-want +got):\n%s", diff)
	}
}

func TestFromPayload_DatacubeCeiling(t *testing.T) {
	payload, err := grid.DecodeJSONBytes([]byte(`[
		{"host": "a", "jobs": [{"id": 1}, {"id": 2}]},
		{"host": "b", "jobs": [{"id": 3}]}
	]`))
	require.NoError(t, err)

	a := &grid.Adapter{MaxDatacubeRows: 2}
	_, err = a.FromPayload(payload)
	var ufe *grid.UnrecognizedFormatError
	require.True(t, errors.As(err, &ufe))
	assert.Contains(t, ufe.Reason, "more than 2 rows")
}

// ── Merge ──────────────────────────────────────────────────

func TestMerge_UnionOfColumns(t *testing.T) {
	a := grid.New([]string{"A", "B"}, []grid.Type{grid.Number, grid.String})
	a.Data = [][]any{{1.0, "x"}}
	b := grid.New([]string{"B", "C"}, []grid.Type{grid.String, grid.Date})
	b.Data = [][]any{{"y", day(2020, 1, 1)}}

	m := grid.Merge(a, b)
	require.NoError(t, m.Validate())
	assert.Equal(t, []string{"A", "B", "C"}, m.Headers)
	require.Len(t, m.Data, 2)

	assert.Equal(t, grid.Epoch, m.Data[0][2])
	assert.True(t, math.IsNaN(m.Data[1][0].(float64)))
	assert.Equal(t, "y", m.Data[1][1])

	assert.Len(t, a.Headers, 2, "input grid must not change")
	assert.Len(t, a.Data[0], 2)
}

func TestMerge_TypeMismatchAppends(t *testing.T) {
	a := grid.New([]string{"v"}, []grid.Type{grid.Number})
	a.Data = [][]any{{1.0}}
	b := grid.New([]string{"v"}, []grid.Type{grid.String})
	b.Data = [][]any{{"one"}}

	m := grid.Merge(a, b)
	require.NoError(t, m.Validate())
	assert.Equal(t, []string{"v", "v_2"}, m.Headers)
	assert.Equal(t, []grid.Type{grid.Number, grid.String}, m.Types)
	assert.Equal(t, "", m.Data[0][1])
}

func TestMergeAll_Empty(t *testing.T) {
	g := grid.MergeAll(nil)
	assert.Equal(t, 0, g.NumCols())
	assert.Equal(t, 0, g.NumRows())
}

// ── CSV / JSON ─────────────────────────────────────────────

func TestEscapeCSV(t *testing.T) {
	tests := map[string]string{
		"plain":       "plain",
		"a,b":         `"a,b"`,
		`say "hi"`:    `"say ""hi"""`,
		" lead":       `" lead"`,
		"trail\t":     "\"trail\t\"",
		"line\nbreak": "\"line\nbreak\"",
		"inner space": "inner space",
	}
	for in, want := range tests {
		assert.Equal(t, want, grid.EscapeCSV(in), in)
	}
}

func TestEncodeCSV(t *testing.T) {
	g := grid.New([]string{"when", "name", "n"}, []grid.Type{grid.Date, grid.String, grid.Number})
	g.Data = [][]any{
		{day(2020, 1, 1), "a,b", 1.5},
		{day(2020, 1, 2), "plain", math.NaN()},
	}
	var buf bytes.Buffer
	require.NoError(t, grid.EncodeCSV(&buf, g))
	want := "when,name,n\n2020-01-01,\"a,b\",1.5\n2020-01-02,plain,\n"
	assert.Equal(t, want, buf.String())
}

func TestCSVRoundTrip(t *testing.T) {
	g := grid.New([]string{"name", "n"}, []grid.Type{grid.String, grid.Number})
	g.Data = [][]any{
		{" padded", 1.0},
		{`quote "q"`, 2.25},
		{"comma, here", 300.0},
	}
	var buf bytes.Buffer
	require.NoError(t, grid.EncodeCSV(&buf, g))

	back, err := grid.DecodeCSV(strings.NewReader(buf.String()))
	require.NoError(t, err)
	if diff := cmp.Diff(g, back); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestMarshalJSON(t *testing.T) {
	g := grid.New([]string{"d", "n"}, []grid.Type{grid.DateTime, grid.Number})
	g.Data = [][]any{{time.Date(2020, 1, 1, 1, 2, 3, 0, time.UTC), math.NaN()}}
	b, err := json.Marshal(g)
	require.NoError(t, err)
	assert.JSONEq(t, `{"headers":["d","n"],"types":["datetime","number"],"data":[["2020-01-01 01:02:03",null]]}`, string(b))
}

func TestStringify(t *testing.T) {
	assert.Equal(t, "2020-01-02", grid.Stringify(day(2020, 1, 2), grid.Date))
	assert.Equal(t, "2020-01-02 00:00:00.250",
		grid.Stringify(day(2020, 1, 2).Add(250*time.Millisecond), grid.DateTime))
	assert.Equal(t, "(none)", grid.Stringify(nil, grid.String))
	assert.Equal(t, "12", grid.Stringify(12.0, grid.Number))
}

func TestCloneIsolated(t *testing.T) {
	g := grid.New([]string{"a"}, []grid.Type{grid.Number})
	g.Data = [][]any{{1.0}}
	c := g.Clone()
	c.Data[0][0] = 2.0
	c.Headers[0] = "b"
	assert.Equal(t, 1.0, g.Data[0][0])
	assert.Equal(t, "a", g.Headers[0])
}
