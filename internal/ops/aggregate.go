package ops

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"condorview/internal/grid"
)

// ── Aggregation functions ──────────────────────────────────
// Each reduces the non-nil cells of one group bucket. A result type of ""
// keeps the type of the aggregated column.

type aggregation struct {
	fn     func(vals []any, t grid.Type, ctx *Context) (any, error)
	result grid.Type
}

var aggregations = map[string]aggregation{
	"first":          {aggFirst, ""},
	"last":           {aggLast, ""},
	"only":           {aggOnly, ""},
	"min":            {aggMin, ""},
	"max":            {aggMax, ""},
	"median":         {aggMedian, ""},
	"cat":            {aggCat, grid.String},
	"count":          {aggCount, grid.Number},
	"count_nz":       {aggCountNZ, grid.Number},
	"count_distinct": {aggCountDistinct, grid.Number},
	"sum":            {aggSum, grid.Number},
	"avg":            {aggAvg, grid.Number},
	"stddev":         {aggStddev, grid.Number},
	"color":          {aggColor, grid.Number},
}

// Aggregations returns the names of the aggregation functions, sorted.
func Aggregations() []string {
	out := make([]string, 0, len(aggregations))
	for name := range aggregations {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// defaultAggregation picks the reduction used when a value column names no
// function.
func defaultAggregation(t grid.Type) string {
	switch t {
	case grid.Number, grid.Boolean:
		return "sum"
	case grid.String:
		return "count_distinct"
	}
	return "count"
}

func aggFirst(vals []any, _ grid.Type, _ *Context) (any, error) {
	if len(vals) == 0 {
		return nil, nil
	}
	return vals[0], nil
}

func aggLast(vals []any, _ grid.Type, _ *Context) (any, error) {
	if len(vals) == 0 {
		return nil, nil
	}
	return vals[len(vals)-1], nil
}

func aggOnly(vals []any, t grid.Type, _ *Context) (any, error) {
	switch len(vals) {
	case 0:
		return nil, nil
	case 1:
		return vals[0], nil
	}
	parts := make([]string, len(vals))
	for i, v := range vals {
		parts[i] = cellText(v, t)
	}
	return nil, fmt.Errorf("cell has more than one value: only(%s)", strings.Join(parts, ","))
}

func aggMin(vals []any, _ grid.Type, _ *Context) (any, error) {
	var out any
	for _, v := range vals {
		if out == nil || cellLess(v, out) {
			out = v
		}
	}
	return out, nil
}

func aggMax(vals []any, _ grid.Type, _ *Context) (any, error) {
	var out any
	for _, v := range vals {
		if out == nil || cellLess(out, v) {
			out = v
		}
	}
	return out, nil
}

func aggCat(vals []any, t grid.Type, _ *Context) (any, error) {
	parts := make([]string, len(vals))
	for i, v := range vals {
		parts[i] = cellText(v, t)
	}
	return strings.Join(parts, " "), nil
}

func aggCount(vals []any, _ grid.Type, _ *Context) (any, error) {
	return float64(len(vals)), nil
}

func aggCountNZ(vals []any, _ grid.Type, _ *Context) (any, error) {
	n := 0
	for _, v := range vals {
		if f, ok := v.(float64); ok && f == 0 {
			continue
		}
		n++
	}
	return float64(n), nil
}

func aggCountDistinct(vals []any, _ grid.Type, _ *Context) (any, error) {
	seen := map[string]bool{}
	for _, v := range vals {
		seen[rowKey([]any{v})] = true
	}
	return float64(len(seen)), nil
}

func sumOf(vals []any) float64 {
	acc := 0.0
	for _, v := range vals {
		if f := numericValue(v); !math.IsNaN(f) {
			acc += f
		}
	}
	return acc
}

func aggSum(vals []any, _ grid.Type, _ *Context) (any, error) {
	if len(vals) == 0 {
		return nil, nil
	}
	return sumOf(vals), nil
}

func aggAvg(vals []any, _ grid.Type, _ *Context) (any, error) {
	if len(vals) == 0 {
		return nil, nil
	}
	return sumOf(vals) / float64(len(vals)), nil
}

// aggStddev is the population standard deviation; non-numeric cells are
// skipped in the squared deviations but still count toward the mean.
func aggStddev(vals []any, _ grid.Type, _ *Context) (any, error) {
	if len(vals) == 0 {
		return nil, nil
	}
	avg := sumOf(vals) / float64(len(vals))
	sumsq := 0.0
	for _, v := range vals {
		d := numericValue(v) - avg
		if !math.IsNaN(d) {
			sumsq += d * d
		}
	}
	return math.Sqrt(sumsq / float64(len(vals))), nil
}

func aggMedian(vals []any, _ grid.Type, _ *Context) (any, error) {
	if len(vals) == 0 {
		return nil, nil
	}
	sorted := append([]any(nil), vals...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return compareFalsyZero(sorted[i], sorted[j]) < 0
	})
	return sorted[len(sorted)/2], nil
}

func aggColor(vals []any, t grid.Type, ctx *Context) (any, error) {
	if len(vals) == 0 {
		return nil, nil
	}
	return ctx.Color(cellText(vals[0], t)), nil
}

// ── Cell comparison ────────────────────────────────────────

// numericValue reads a cell as a number for summing; dates and
// unparseable text are NaN.
func numericValue(v any) float64 {
	switch x := v.(type) {
	case float64:
		return x
	case string:
		return parseFloatLoose(x)
	}
	return math.NaN()
}

// cellLess orders two cells of the same column.
func cellLess(a, b any) bool {
	switch x := a.(type) {
	case float64:
		if y, ok := b.(float64); ok {
			return x < y
		}
	case time.Time:
		if y, ok := b.(time.Time); ok {
			return x.Before(y)
		}
	case string:
		if y, ok := b.(string); ok {
			return x < y
		}
	}
	return grid.CellString(a) < grid.CellString(b)
}

// compareFalsyZero compares two cells after mapping blank, zero and NaN
// values to zero, so those sort together.
func compareFalsyZero(a, b any) int {
	ka, kb := sortKey(a), sortKey(b)
	if ka.isNum && kb.isNum {
		switch {
		case ka.num < kb.num:
			return -1
		case ka.num > kb.num:
			return 1
		}
		return 0
	}
	return strings.Compare(ka.String(), kb.String())
}

type sortable struct {
	isNum bool
	num   float64
	str   string
}

func (s sortable) String() string {
	if s.isNum {
		return grid.FormatNumber(s.num)
	}
	return s.str
}

func sortKey(v any) sortable {
	switch x := v.(type) {
	case nil:
		return sortable{isNum: true}
	case float64:
		if math.IsNaN(x) {
			return sortable{isNum: true}
		}
		return sortable{isNum: true, num: x}
	case time.Time:
		return sortable{isNum: true, num: float64(x.UnixMilli())}
	case string:
		if x == "" {
			return sortable{isNum: true}
		}
		return sortable{str: x}
	}
	return sortable{str: grid.CellString(v)}
}
