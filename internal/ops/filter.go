package ops

import (
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"condorview/internal/grid"
)

// ── Row filters ────────────────────────────────────────────

// Two-character operators come first so ">=" is not read as ">".
var filterOps = []string{">=", "<=", "==", "!=", "<>", ">", "<", "="}

func filter(g *grid.Grid, arg string, _ *Context) (*grid.Grid, error) {
	for _, op := range filterOps {
		col, rest, ok := splitOne(arg, op)
		if !ok {
			continue
		}
		return filterBy(g, col, op, strings.Split(rest, ","))
	}
	return nil, badArg(OpFilter, arg, "unknown filter operation")
}

// filterValue is one wanted value, pre-converted to the column's
// comparison domain.
type filterValue struct {
	num   float64
	str   string
	valid bool
}

func filterBy(g *grid.Grid, key, op string, values []string) (*grid.Grid, error) {
	col, err := keyCol(g, key)
	if err != nil {
		return nil, err
	}
	t := g.Types[col]

	wants := make([]filterValue, len(values))
	for i, v := range values {
		switch {
		case t.IsNumeric():
			wants[i] = filterValue{num: parseFloatLoose(v), valid: true}
		case t.IsTemporal():
			if d, ok := grid.ParseDate(v); ok {
				wants[i] = filterValue{str: grid.DateTimeString(d), valid: true}
			}
		default:
			wants[i] = filterValue{str: v, valid: true}
		}
	}

	kept := g.Data[:0:0]
	for _, row := range g.Data {
		cell := row[col]
		for _, w := range wants {
			if matchFilter(cell, t, op, w) {
				kept = append(kept, row)
				break
			}
		}
	}
	g.Data = kept
	return g, nil
}

func matchFilter(cell any, t grid.Type, op string, w filterValue) bool {
	negated := op == "!=" || op == "<>"
	if cell == nil || !w.valid {
		return negated
	}
	var c int
	if t.IsNumeric() {
		f, ok := cell.(float64)
		if !ok || math.IsNaN(f) || math.IsNaN(w.num) {
			return negated
		}
		c = compareFloat(f, w.num)
	} else {
		var s string
		if tm, ok := cell.(time.Time); ok {
			s = grid.DateTimeString(tm)
		} else {
			s = grid.CellString(cell)
		}
		c = strings.Compare(s, w.str)
	}
	switch op {
	case "=", "==":
		return c == 0
	case "!=", "<>":
		return c != 0
	case ">=":
		return c >= 0
	case "<=":
		return c <= 0
	case ">":
		return c > 0
	case "<":
		return c < 0
	}
	return false
}

func compareFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// queryWords keeps rows where a positive word occurs in some cell, and
// drops rows where a word prefixed by ! or - occurs. With only negated
// words every row without them is kept.
func queryWords(g *grid.Grid, arg string, _ *Context) (*grid.Grid, error) {
	var positive, negative []string
	for _, w := range strings.Split(arg, ",") {
		if strings.HasPrefix(w, "!") || strings.HasPrefix(w, "-") {
			negative = append(negative, w[1:])
			continue
		}
		positive = append(positive, w)
	}

	kept := g.Data[:0:0]
	for _, row := range g.Data {
		texts := make([]string, 0, len(row))
		for i, cell := range row {
			if cell != nil {
				texts = append(texts, cellText(cell, g.Types[i]))
			}
		}
		if containsAny(texts, negative) {
			continue
		}
		if len(positive) == 0 || containsAny(texts, positive) {
			kept = append(kept, row)
		}
	}
	g.Data = kept
	return g, nil
}

func containsAny(texts, words []string) bool {
	for _, w := range words {
		for _, t := range texts {
			if strings.Contains(t, w) {
				return true
			}
		}
	}
	return false
}

func limit(g *grid.Grid, arg string, _ *Context) (*grid.Grid, error) {
	n, err := strconv.Atoi(strings.TrimSpace(arg))
	if err != nil || n < 0 {
		return nil, badArg(OpLimit, arg, "limit must be a non-negative integer")
	}
	if len(g.Data) > n {
		g.Data = g.Data[:n]
	}
	return g, nil
}

// unselect drops the named columns; names the grid lacks are ignored.
func unselect(g *grid.Grid, arg string, _ *Context) (*grid.Grid, error) {
	drop := map[int]bool{}
	for _, k := range strings.Split(arg, ",") {
		if c := g.ColIndex(k); c >= 0 {
			drop[c] = true
		}
	}
	if len(drop) == 0 {
		return g, nil
	}
	out := grid.Empty()
	for i := range g.Headers {
		if !drop[i] {
			out.Headers = append(out.Headers, g.Headers[i])
			out.Types = append(out.Types, g.Types[i])
		}
	}
	for _, row := range g.Data {
		nr := make([]any, 0, len(out.Headers))
		for i, cell := range row {
			if !drop[i] {
				nr = append(nr, cell)
			}
		}
		out.Data = append(out.Data, nr)
	}
	return out, nil
}

// order sorts rows stably. A leading "-" reverses a key. Blank, zero and
// NaN cells compare as 0.
func order(g *grid.Grid, arg string, _ *Context) (*grid.Grid, error) {
	type sortCol struct {
		col    int
		invert int
	}
	var cols []sortCol
	for _, k := range strings.Split(arg, ",") {
		invert := 1
		if strings.HasPrefix(k, "-") {
			invert = -1
			k = k[1:]
		}
		c, err := keyCol(g, k)
		if err != nil {
			return nil, err
		}
		cols = append(cols, sortCol{c, invert})
	}

	sort.SliceStable(g.Data, func(i, j int) bool {
		a, b := g.Data[i], g.Data[j]
		for _, sc := range cols {
			av, bv := a[sc.col], b[sc.col]
			if g.Types[sc.col] == grid.Number {
				av, bv = numericValue(av), numericValue(bv)
			}
			if c := compareFalsyZero(av, bv); c != 0 {
				return c*sc.invert < 0
			}
		}
		return false
	})
	return g, nil
}
