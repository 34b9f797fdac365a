package ops

import (
	"strings"

	"condorview/internal/grid"
)

// ── group / treegroup / pivot ──────────────────────────────

func group(g *grid.Grid, arg string, ctx *Context) (*grid.Grid, error) {
	parts := splitLimit(arg, ";", 2)
	keys := splitNoEmpty(parts[0], ",")
	var values []string
	if len(parts) >= 2 {
		for _, v := range splitNoEmpty(parts[1], ",") {
			if v != "*" {
				values = append(values, v)
				continue
			}
			rest, err := keysOtherThan(g, append(append([]string(nil), keys...), values...))
			if err != nil {
				return nil, err
			}
			values = append(values, rest...)
		}
	} else {
		var err error
		if values, err = keysOtherThan(g, keys); err != nil {
			return nil, err
		}
	}
	return groupBy(g, keys, values, ctx)
}

func treeGroup(g *grid.Grid, arg string, ctx *Context) (*grid.Grid, error) {
	parts := splitLimit(arg, ";", 2)
	keys := splitNoEmpty(parts[0], ",")
	var values []string
	if len(parts) >= 2 {
		values = splitNoEmpty(parts[1], ",")
	} else {
		var err error
		if values, err = keysOtherThan(g, keys); err != nil {
			return nil, err
		}
	}
	out, err := groupBy(g, keys, values, ctx)
	if err != nil {
		return nil, err
	}
	return treeJoinKeys(out, len(keys)), nil
}

func pivot(g *grid.Grid, arg string, ctx *Context) (*grid.Grid, error) {
	parts := splitLimit(arg, ";", 3)
	rowKeys := splitNoEmpty(parts[0], ",")
	var colKeys []string
	if len(parts) >= 2 {
		colKeys = splitNoEmpty(parts[1], ",")
	}
	allKeys := append(append([]string(nil), rowKeys...), colKeys...)
	var values []string
	if len(parts) >= 3 {
		values = splitNoEmpty(parts[2], ",")
	} else {
		var err error
		if values, err = keysOtherThan(g, allKeys); err != nil {
			return nil, err
		}
	}

	// One row per rowkeys+colkeys combination, so each pivot cell gets
	// exactly one value.
	tmp, err := groupBy(g, allKeys, values, ctx)
	if err != nil {
		return nil, err
	}
	return pivotBy(tmp, rowKeys, colKeys, values)
}

// groupLoop buckets rows by their key cells in first-seen order. newRow
// builds the output row for a new bucket, put folds each input row in.
type groupLoop struct {
	out   *grid.Grid
	index map[string]int
}

func newGroupLoop(in *grid.Grid, keyCols []int) *groupLoop {
	out := grid.Empty()
	for _, c := range keyCols {
		out.Headers = append(out.Headers, in.Headers[c])
		out.Types = append(out.Types, in.Types[c])
	}
	return &groupLoop{out: out, index: map[string]int{}}
}

func (l *groupLoop) run(in *grid.Grid, keyCols []int, put func(orow int, row []any)) {
	ncols := len(l.out.Headers)
	key := make([]any, len(keyCols))
	for _, row := range in.Data {
		for i, c := range keyCols {
			key[i] = row[c]
		}
		k := rowKey(key)
		orow, ok := l.index[k]
		if !ok {
			nr := make([]any, ncols)
			copy(nr, key)
			l.out.Data = append(l.out.Data, nr)
			orow = len(l.out.Data) - 1
			l.index[k] = orow
		}
		put(orow, row)
	}
}

func groupBy(in *grid.Grid, keys, values []string, ctx *Context) (*grid.Grid, error) {
	kcols, err := keyCols(in, keys)
	if err != nil {
		return nil, err
	}
	loop := newGroupLoop(in, kcols)

	vcols := make([]int, len(values))
	aggs := make([]aggregation, len(values))
	for i, v := range values {
		field := v
		var fname string
		if m := funcRE.FindStringSubmatch(v); m != nil {
			fname, field = m[1], m[2]
			if _, ok := aggregations[fname]; !ok {
				return nil, &UnknownAggregationFunctionError{Name: fname}
			}
		}
		col, err := keyCol(in, field)
		if err != nil {
			return nil, err
		}
		header := in.Headers[col]
		if fname != "" {
			header = fname + header
		} else {
			fname = defaultAggregation(in.Types[col])
		}
		if field == "*" {
			header = "_count"
		}
		agg := aggregations[fname]
		t := agg.result
		if t == "" {
			t = in.Types[col]
		}
		vcols[i], aggs[i] = col, agg
		loop.out.Headers = append(loop.out.Headers, header)
		loop.out.Types = append(loop.out.Types, t)
	}

	buckets := [][][]any{}
	loop.run(in, kcols, func(orow int, row []any) {
		if orow == len(buckets) {
			buckets = append(buckets, make([][]any, len(values)))
		}
		for i, c := range vcols {
			if cell := row[c]; cell != nil {
				buckets[orow][i] = append(buckets[orow][i], cell)
			}
		}
	})

	for r, row := range loop.out.Data {
		for i, agg := range aggs {
			v, err := agg.fn(buckets[r][i], in.Types[vcols[i]], ctx)
			if err != nil {
				return nil, err
			}
			row[len(kcols)+i] = v
		}
	}
	return loop.out, nil
}

func pivotBy(in *grid.Grid, rowKeys, colKeys, valKeys []string) (*grid.Grid, error) {
	rcols, err := keyCols(in, rowKeys)
	if err != nil {
		return nil, err
	}
	ccols, err := keyCols(in, colKeys)
	if err != nil {
		return nil, err
	}
	loop := newGroupLoop(in, rcols)

	colKeyOf := func(row []any) []string {
		ck := make([]string, len(ccols))
		for i, c := range ccols {
			ck[i] = grid.Stringify(row[c], in.Types[c])
		}
		return ck
	}

	outCol := map[string]int{}
	valueCol := map[string]int{}
	for _, row := range in.Data {
		ck := colKeyOf(row)
		for i, vk := range valKeys {
			xk := strings.Join(append(append([]string(nil), ck...), vk), "\x1f")
			if _, ok := outCol[xk]; ok {
				continue
			}
			name := strings.Join(ck, " ")
			if len(valKeys) > 1 {
				name = strings.Join(append(append([]string(nil), ck...), vk), " ")
			}
			vc := len(rowKeys) + len(colKeys) + i
			outCol[xk] = len(loop.out.Headers)
			valueCol[xk] = vc
			loop.out.Headers = append(loop.out.Headers, name)
			loop.out.Types = append(loop.out.Types, in.Types[vc])
		}
	}

	loop.run(in, rcols, func(orow int, row []any) {
		ck := colKeyOf(row)
		for _, vk := range valKeys {
			xk := strings.Join(append(append([]string(nil), ck...), vk), "\x1f")
			loop.out.Data[orow][outCol[xk]] = row[valueCol[xk]]
		}
	})
	return loop.out, nil
}

// treeJoinKeys replaces the first n columns with one _tree column holding
// their stringified values joined by "|".
func treeJoinKeys(in *grid.Grid, n int) *grid.Grid {
	out := &grid.Grid{
		Headers: append([]string{"_tree"}, in.Headers[n:]...),
		Types:   append([]grid.Type{grid.String}, in.Types[n:]...),
		Data:    make([][]any, 0, len(in.Data)),
	}
	for _, row := range in.Data {
		segs := make([]string, n)
		for i := 0; i < n; i++ {
			segs[i] = grid.Stringify(row[i], in.Types[i])
		}
		out.Data = append(out.Data, append([]any{strings.Join(segs, "|")}, row[n:]...))
	}
	return out
}
