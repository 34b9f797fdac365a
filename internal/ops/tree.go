package ops

import (
	"strings"

	"condorview/internal/grid"
)

// ── Tree paths ─────────────────────────────────────────────
// A tree path is a "|"-joined string; "a|b|c" is a child of "a|b".

const defaultTreeKey = "_tree"

// finishTree adds a row for every ancestor path that has none. With
// several keys the last one is the path; the leading keys are copied from
// the row that first needed the ancestor.
func finishTree(g *grid.Grid, arg string, _ *Context) (*grid.Grid, error) {
	keys := splitNoEmpty(arg, ",")
	if len(keys) == 0 {
		keys = []string{defaultTreeKey}
	}
	kcols, err := keyCols(g, keys)
	if err != nil {
		return nil, err
	}
	treeCol := kcols[len(kcols)-1]
	leading := kcols[:len(kcols)-1]

	type need struct {
		path []string
		row  []any
	}
	seen := map[string]bool{}
	needed := map[string]need{}
	var order []string

	keyOf := func(row []any, path string) string {
		cells := make([]any, 0, len(leading)+1)
		for _, c := range leading {
			cells = append(cells, row[c])
		}
		return rowKey(append(cells, path))
	}

	for _, row := range g.Data {
		path := grid.CellString(row[treeCol])
		k := keyOf(row, path)
		seen[k] = true
		delete(needed, k)

		segs := strings.Split(path, "|")
		for len(segs) > 0 {
			segs = segs[:len(segs)-1]
			pk := keyOf(row, strings.Join(segs, "|"))
			if _, ok := needed[pk]; ok || seen[pk] {
				break
			}
			needed[pk] = need{path: append([]string(nil), segs...), row: row}
			order = append(order, pk)
		}
	}

	for _, k := range order {
		n, ok := needed[k]
		if !ok {
			continue
		}
		delete(needed, k)
		out := make([]any, g.NumCols())
		for _, c := range leading {
			out[c] = n.row[c]
		}
		out[treeCol] = strings.Join(n.path, "|")
		g.Data = append(g.Data, out)
	}
	return g, nil
}

func invertTree(g *grid.Grid, arg string, _ *Context) (*grid.Grid, error) {
	key := defaultTreeKey
	if keys := splitNoEmpty(arg, ","); len(keys) > 0 {
		key = keys[0]
	}
	col, err := keyCol(g, key)
	if err != nil {
		return nil, err
	}
	for _, row := range g.Data {
		segs := strings.Split(grid.CellString(row[col]), "|")
		for i, j := 0, len(segs)-1; i < j; i, j = i+1, j-1 {
			segs[i], segs[j] = segs[j], segs[i]
		}
		row[col] = strings.Join(segs, "|")
	}
	g.Types[col] = grid.String
	return g, nil
}

// crackTree replaces a path column with _id (the path, or ALL for the
// root) and _parent (the path without its last segment, or ALL).
func crackTree(g *grid.Grid, arg string, _ *Context) (*grid.Grid, error) {
	key := defaultTreeKey
	if keys := splitNoEmpty(arg, ","); len(keys) > 0 {
		key = keys[0]
	}
	col, err := keyCol(g, key)
	if err != nil {
		return nil, err
	}

	out := &grid.Grid{
		Headers: concat(g.Headers[:col], []string{"_id", "_parent"}, g.Headers[col+1:]),
		Types:   concat(g.Types[:col], []grid.Type{grid.String, grid.String}, g.Types[col+1:]),
		Data:    make([][]any, 0, len(g.Data)),
	}
	for _, row := range g.Data {
		id := grid.CellString(row[col])
		var parent string
		if id == "" {
			id = "ALL"
		} else {
			segs := strings.Split(id, "|")
			parent = strings.Join(segs[:len(segs)-1], "|")
			if parent == "" {
				parent = "ALL"
			}
		}
		out.Data = append(out.Data, concat(row[:col], []any{id, parent}, row[col+1:]))
	}
	return out, nil
}

func concat[T any](parts ...[]T) []T {
	n := 0
	for _, p := range parts {
		n += len(p)
	}
	out := make([]T, 0, n)
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}
