package ops_test

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"condorview/internal/grid"
	"condorview/internal/ops"
)

func day(d int) time.Time {
	return time.Date(2020, 1, d, 0, 0, 0, 0, time.UTC)
}

func countsGrid() *grid.Grid {
	g := grid.New([]string{"Date", "Count"}, []grid.Type{grid.Date, grid.Number})
	g.Data = [][]any{{day(1), 5.0}, {day(2), 3.0}}
	return g
}

func jobsGrid() *grid.Grid {
	g := grid.New(
		[]string{"pool", "user", "state", "jobs"},
		[]grid.Type{grid.String, grid.String, grid.String, grid.Number},
	)
	g.Data = [][]any{
		{"p1", "alice", "run", 2.0},
		{"p1", "bob", "idle", 3.0},
		{"p1", "alice", "idle", 1.0},
		{"p2", "carol", "run", 4.0},
	}
	return g
}

func apply(t *testing.T, op ops.Op, g *grid.Grid, arg string) *grid.Grid {
	t.Helper()
	out, err := ops.Apply(op, g, arg, ops.NewContext())
	require.NoError(t, err)
	return out
}

func TestLookup(t *testing.T) {
	op, ok := ops.Lookup("extract_regexp")
	require.True(t, ok)
	assert.Equal(t, ops.OpExtractRegexp, op)
	assert.Equal(t, "extract_regexp", op.String())

	_, ok = ops.Lookup("explode")
	assert.False(t, ok)
	assert.Len(t, ops.All(), 26)
}

// ── group / pivot ──────────────────────────────────────────

func TestGroup_ExplicitSum(t *testing.T) {
	out := apply(t, ops.OpGroup, countsGrid(), "Date;sum(Count)")
	assert.Equal(t, []string{"Date", "sumCount"}, out.Headers)
	assert.Equal(t, []grid.Type{grid.Date, grid.Number}, out.Types)
	if diff := cmp.Diff([][]any{{day(1), 5.0}, {day(2), 3.0}}, out.Data); diff != "" {
		t.Errorf("group mismatch (-want +got):\n%s", diff)
	}
}

func TestGroup_DefaultValues(t *testing.T) {
	out := apply(t, ops.OpGroup, jobsGrid(), "pool")
	assert.Equal(t, []string{"pool", "user", "state", "jobs"}, out.Headers)
	assert.Equal(t, []grid.Type{grid.String, grid.Number, grid.Number, grid.Number}, out.Types)
	want := [][]any{
		{"p1", 2.0, 2.0, 6.0},
		{"p2", 1.0, 1.0, 4.0},
	}
	if diff := cmp.Diff(want, out.Data); diff != "" {
		t.Errorf("group mismatch (-want +got):\n%s", diff)
	}
}

func TestGroup_CountStarAndExpansion(t *testing.T) {
	out := apply(t, ops.OpGroup, jobsGrid(), "pool;count(*),*")
	assert.Equal(t, []string{"pool", "_count", "user", "state", "jobs"}, out.Headers)
	assert.Equal(t, []any{"p1", 3.0, 2.0, 2.0, 6.0}, out.Data[0])
}

func TestGroup_Aggregations(t *testing.T) {
	g := grid.New([]string{"k", "v"}, []grid.Type{grid.String, grid.Number})
	g.Data = [][]any{{"a", 1.0}, {"a", 3.0}, {"a", 0.0}, {"a", nil}, {"a", 8.0}}

	tests := []struct {
		fn   string
		want any
	}{
		{"min", 0.0},
		{"max", 8.0},
		{"avg", 3.0},
		{"count", 4.0},
		{"count_nz", 3.0},
		{"count_distinct", 4.0},
		{"median", 3.0},
		{"first", 1.0},
		{"last", 8.0},
		{"cat", "1 3 0 8"},
		{"stddev", math.Sqrt(9.5)},
	}
	for _, tt := range tests {
		t.Run(tt.fn, func(t *testing.T) {
			out := apply(t, ops.OpGroup, g, "k;"+tt.fn+"(v)")
			assert.Equal(t, tt.want, out.Data[0][1])
		})
	}
}

func TestGroup_Errors(t *testing.T) {
	_, err := ops.Apply(ops.OpGroup, jobsGrid(), "pool;explode(jobs)", nil)
	var aggErr *ops.UnknownAggregationFunctionError
	require.True(t, errors.As(err, &aggErr))
	assert.Equal(t, "explode", aggErr.Name)

	_, err = ops.Apply(ops.OpGroup, jobsGrid(), "nope", nil)
	var colErr *ops.UnknownColumnError
	require.True(t, errors.As(err, &colErr))
	assert.Equal(t, "nope", colErr.Column)

	_, err = ops.Apply(ops.OpGroup, jobsGrid(), "pool;only(user)", nil)
	assert.Error(t, err)
}

func TestColorAggregation_RunScoped(t *testing.T) {
	ctx := ops.NewContext()
	out, err := ops.Apply(ops.OpGroup, jobsGrid(), "user;color(pool)", ctx)
	require.NoError(t, err)
	assert.Equal(t, []any{"alice", 1.0}, out.Data[0])
	assert.Equal(t, []any{"bob", 1.0}, out.Data[1])
	assert.Equal(t, []any{"carol", 2.0}, out.Data[2])

	fresh, err := ops.Apply(ops.OpGroup, jobsGrid(), "pool;color(pool)", ops.NewContext())
	require.NoError(t, err)
	assert.Equal(t, 1.0, fresh.Data[0][1])
}

func TestPivot(t *testing.T) {
	out := apply(t, ops.OpPivot, jobsGrid(), "pool;state;jobs")
	assert.Equal(t, []string{"pool", "run", "idle"}, out.Headers)
	want := [][]any{
		{"p1", 2.0, 4.0},
		{"p2", 4.0, nil},
	}
	if diff := cmp.Diff(want, out.Data); diff != "" {
		t.Errorf("pivot mismatch (-want +got):\n%s", diff)
	}
}

func TestPivot_SeveralValues(t *testing.T) {
	out := apply(t, ops.OpPivot, jobsGrid(), "pool;state;jobs,count(user)")
	assert.Equal(t, []string{"pool", "run jobs", "run count(user)", "idle jobs", "idle count(user)"}, out.Headers)
	assert.Len(t, out.Data, 2)
	assert.Equal(t, 5, out.NumCols())
}

// ── tree ───────────────────────────────────────────────────

func TestTreeGroupFinishCrack(t *testing.T) {
	tg := apply(t, ops.OpTreeGroup, jobsGrid(), "pool,user;jobs")
	assert.Equal(t, []string{"_tree", "jobs"}, tg.Headers)
	assert.Equal(t, []any{"p1|alice", 3.0}, tg.Data[0])

	ft := apply(t, ops.OpFinishTree, tg, "")
	var paths []string
	for _, row := range ft.Data {
		paths = append(paths, row[0].(string))
	}
	assert.Equal(t, []string{"p1|alice", "p1|bob", "p2|carol", "p1", "", "p2"}, paths)
	assert.Nil(t, ft.Data[3][1], "synthesized rows carry only keys")

	ct := apply(t, ops.OpCrackTree, ft, "")
	assert.Equal(t, []string{"_id", "_parent", "jobs"}, ct.Headers)
	assert.Equal(t, []any{"p1|alice", "p1", 3.0}, ct.Data[0])
	assert.Equal(t, []any{"p1", "ALL", nil}, ct.Data[3])
	assert.Equal(t, []any{"ALL", "", nil}, ct.Data[4])
}

func TestInvertTree(t *testing.T) {
	g := grid.New([]string{"_tree"}, []grid.Type{grid.String})
	g.Data = [][]any{{"a|b|c"}, {"x"}}
	out := apply(t, ops.OpInvertTree, g, "")
	assert.Equal(t, [][]any{{"c|b|a"}, {"x"}}, out.Data)
}

// ── filters ────────────────────────────────────────────────

func TestFilter(t *testing.T) {
	out := apply(t, ops.OpFilter, countsGrid(), "Count>=4")
	assert.Equal(t, [][]any{{day(1), 5.0}}, out.Data)

	out = apply(t, ops.OpFilter, countsGrid(), "Date=2020-01-02")
	assert.Equal(t, [][]any{{day(2), 3.0}}, out.Data)

	out = apply(t, ops.OpFilter, jobsGrid(), "user=alice,carol")
	assert.Len(t, out.Data, 3)

	out = apply(t, ops.OpFilter, jobsGrid(), "state<>run")
	assert.Len(t, out.Data, 2)
}

func TestFilter_Idempotent(t *testing.T) {
	once := apply(t, ops.OpFilter, jobsGrid(), "jobs>1")
	twice := apply(t, ops.OpFilter, once, "jobs>1")
	if diff := cmp.Diff(once, twice); diff != "" {
		t.Errorf("filter not idempotent (-once +twice):\n%s", diff)
	}
}

func TestFilter_NilNeverOrders(t *testing.T) {
	g := grid.New([]string{"n"}, []grid.Type{grid.Number})
	g.Data = [][]any{{nil}, {2.0}}
	out := apply(t, ops.OpFilter, g, "n>=-1")
	assert.Equal(t, [][]any{{2.0}}, out.Data)
}

func TestFilter_BadExpression(t *testing.T) {
	_, err := ops.Apply(ops.OpFilter, jobsGrid(), "jobs", nil)
	var argErr *ops.UnknownOperatorArgumentError
	require.True(t, errors.As(err, &argErr))
	assert.Equal(t, "filter", argErr.Op)
}

func TestQueryWords(t *testing.T) {
	out := apply(t, ops.OpQuery, jobsGrid(), "alice")
	assert.Len(t, out.Data, 2)

	out = apply(t, ops.OpQuery, jobsGrid(), "!idle")
	assert.Len(t, out.Data, 2)

	out = apply(t, ops.OpQuery, jobsGrid(), "p1,-bob")
	assert.Len(t, out.Data, 2)
}

func TestLimit(t *testing.T) {
	out := apply(t, ops.OpLimit, jobsGrid(), "2")
	assert.Len(t, out.Data, 2)

	_, err := ops.Apply(ops.OpLimit, jobsGrid(), "two", nil)
	var argErr *ops.UnknownOperatorArgumentError
	assert.True(t, errors.As(err, &argErr))
}

func TestUnselect(t *testing.T) {
	out := apply(t, ops.OpUnselect, jobsGrid(), "user,missing")
	assert.Equal(t, []string{"pool", "state", "jobs"}, out.Headers)
	assert.Equal(t, []any{"p1", "run", 2.0}, out.Data[0])
}

func TestOrder(t *testing.T) {
	out := apply(t, ops.OpOrder, countsGrid(), "Count")
	assert.Equal(t, 3.0, out.Data[0][1])

	desc := apply(t, ops.OpOrder, out, "-Count")
	assert.Equal(t, []any{5.0, 3.0}, []any{desc.Data[0][1], desc.Data[1][1]})

	again := apply(t, ops.OpOrder, desc, "-Count")
	if diff := cmp.Diff(desc, again); diff != "" {
		t.Errorf("order not idempotent (-first +second):\n%s", diff)
	}
}

func TestOrder_Stable(t *testing.T) {
	out := apply(t, ops.OpOrder, jobsGrid(), "pool")
	var users []any
	for _, row := range out.Data {
		users = append(users, row[1])
	}
	assert.Equal(t, []any{"alice", "bob", "alice", "carol"}, users)
}

// ── column transforms ──────────────────────────────────────

func TestDelta(t *testing.T) {
	g := grid.New([]string{"t", "c"}, []grid.Type{grid.Number, grid.Number})
	g.Data = [][]any{{1.0, 10.0}, {2.0, 15.0}, {3.0, 15.0}, {4.0, 4.0}, {5.0, 6.0}}
	out := apply(t, ops.OpDelta, g, "c")
	var got []any
	for _, row := range out.Data {
		got = append(got, row[1])
	}
	// The reset to 4 is blanked, not kept or negated.
	assert.Equal(t, []any{10.0, 5.0, nil, nil, 2.0}, got)
}

func TestExtractRegexp(t *testing.T) {
	g := grid.New([]string{"host"}, []grid.Type{grid.String})
	g.Data = [][]any{{"slot1@node7.example"}, {"bare"}}
	out := apply(t, ops.OpExtractRegexp, g, `host=@(\w+)\.`)
	assert.Equal(t, [][]any{{"node7"}, {""}}, out.Data)

	_, err := ops.Apply(ops.OpExtractRegexp, g, "host=node", nil)
	var argErr *ops.UnknownOperatorArgumentError
	assert.True(t, errors.As(err, &argErr))
}

func TestQuantize(t *testing.T) {
	g := grid.New([]string{"Count"}, []grid.Type{grid.Number})
	g.Data = [][]any{{5.0}, {15.0}, {25.0}}
	out := apply(t, ops.OpQuantize, g, "Count=10")
	assert.Equal(t, [][]any{{0.0}, {10.0}, {20.0}}, out.Data)

	out = apply(t, ops.OpQuantize, g, "Count=10,20")
	assert.Equal(t, [][]any{{"<10"}, {"10-20"}, {"20+"}}, out.Data)
	assert.Equal(t, grid.String, out.Types[0])

	_, err := ops.Apply(ops.OpQuantize, g, "Count=0", nil)
	var argErr *ops.UnknownOperatorArgumentError
	assert.True(t, errors.As(err, &argErr))

	_, err = ops.Apply(ops.OpQuantize, g, "Count=10,big", nil)
	assert.True(t, errors.As(err, &argErr))
}

func TestRenameAndSetVal(t *testing.T) {
	out := apply(t, ops.OpRename, jobsGrid(), "jobs=Jobs")
	assert.Equal(t, "Jobs", out.Headers[3])

	same := apply(t, ops.OpRename, jobsGrid(), "missing=x")
	assert.Equal(t, jobsGrid().Headers, same.Headers)

	out = apply(t, ops.OpSetVal, jobsGrid(), "jobs=n/a")
	assert.Equal(t, "n/a", out.Data[2][3])
	assert.Equal(t, grid.String, out.Types[3])

	_, err := ops.Apply(ops.OpSetVal, jobsGrid(), "nope=1", nil)
	var colErr *ops.UnknownColumnError
	assert.True(t, errors.As(err, &colErr))
}

func TestYSpread(t *testing.T) {
	g := grid.New([]string{"k", "a", "b"}, []grid.Type{grid.String, grid.Number, grid.Number})
	g.Data = [][]any{{"x", 1.0, -3.0}, {"y", 0.0, 0.0}}
	out := apply(t, ops.OpYSpread, g, "")
	assert.Equal(t, []any{"x", 0.25, -0.75}, out.Data[0])
	assert.Equal(t, []any{"y", 0.0, 0.0}, out.Data[1])

	_, err := ops.Apply(ops.OpYSpread, g, "a", nil)
	var argErr *ops.UnknownOperatorArgumentError
	assert.True(t, errors.As(err, &argErr))
}

func TestTranspose(t *testing.T) {
	g := grid.New([]string{"cpu", "mem"}, []grid.Type{grid.Number, grid.Number})
	g.Data = [][]any{{1.0, 2.0}, {3.0, 4.0}}
	out := apply(t, ops.OpTranspose, g, "metric,first")
	assert.Equal(t, []string{"metric", "first", "col2"}, out.Headers)
	assert.Equal(t, []grid.Type{grid.String, grid.Number, grid.Number}, out.Types)
	assert.Equal(t, [][]any{{"cpu", 1.0, 3.0}, {"mem", 2.0, 4.0}}, out.Data)
}

func TestCumulativeIntegral(t *testing.T) {
	base := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	g := grid.New([]string{"when", "rate"}, []grid.Type{grid.DateTime, grid.Number})
	g.Data = [][]any{
		{base, 7.0},
		{base.Add(2 * time.Hour), 3.0},
		{base.Add(3 * time.Hour), 4.0},
	}
	out := apply(t, ops.OpCumulativeIntegral, g, "")
	assert.Equal(t, []any{base, 0.0}, out.Data[0])
	assert.Equal(t, 6.0, out.Data[1][1])
	assert.Equal(t, 10.0, out.Data[2][1])

	_, err := ops.Apply(ops.OpCumulativeIntegral, jobsGrid(), "", nil)
	assert.Error(t, err)
}

func TestMakeURL(t *testing.T) {
	g := grid.New([]string{"host"}, []grid.Type{grid.String})
	g.Data = [][]any{{"node1"}}
	out := apply(t, ops.OpMakeURL, g, "host=https://x/?h=*&a=b")
	assert.Equal(t, "https://x/?h=node1&a=b|node1", out.Data[0][0])
}

func TestArithmetic(t *testing.T) {
	g := grid.New([]string{"a", "b"}, []grid.Type{grid.Number, grid.Number})
	g.Data = [][]any{{6.0, 2.0}, {math.NaN(), 1.0}}

	out := apply(t, ops.OpDiv, g, "a,b,ratio")
	assert.Equal(t, []string{"a", "b", "ratio"}, out.Headers)
	assert.Equal(t, 3.0, out.Data[0][2])

	out = apply(t, ops.OpMult, g, "a,10,big")
	assert.Equal(t, 60.0, out.Data[0][2])

	out = apply(t, ops.OpNanToZero, g, "a,a")
	assert.Equal(t, []string{"a", "b"}, out.Headers)
	assert.Equal(t, 0.0, out.Data[1][0])

	out = apply(t, ops.OpCeil, g, "b,c")
	assert.Equal(t, 2.0, out.Data[0][2])
}

func TestApply_DoesNotMutateInput(t *testing.T) {
	in := jobsGrid()
	before := in.Clone()
	for _, step := range []struct {
		op  ops.Op
		arg string
	}{
		{ops.OpSetVal, "user=x"},
		{ops.OpOrder, "-jobs"},
		{ops.OpQuantize, "jobs=2"},
		{ops.OpRename, "pool=P"},
		{ops.OpAdd, "jobs,1,jobs"},
	} {
		_, err := ops.Apply(step.op, in, step.arg, nil)
		require.NoError(t, err)
	}
	if diff := cmp.Diff(before, in); diff != "" {
		t.Errorf("input mutated (-before +after):\n%s", diff)
	}
}

func TestFillNullsAndPrecision(t *testing.T) {
	g := grid.New([]string{"s", "n"}, []grid.Type{grid.String, grid.Number})
	g.Data = [][]any{{nil, nil}, {"a", 0.1 + 0.2}}

	filled := ops.FillNulls(g)
	assert.Equal(t, []any{ops.UndefinedString, 0.0}, filled.Data[0])
	assert.Nil(t, g.Data[0][0])

	limited := ops.LimitPrecision(g)
	assert.Equal(t, 0.3, limited.Data[1][1])
}
