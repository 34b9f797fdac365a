package grid

import (
	"fmt"
	"math"
	"time"
)

// Epoch is the placeholder for DATE and DATETIME cells a merged source lacks.
var Epoch = time.Unix(0, 0).UTC()

// Sentinel returns the placeholder merge uses for a missing cell of type t.
func Sentinel(t Type) any {
	switch t {
	case Number, Boolean:
		return math.NaN()
	case Date, DateTime:
		return Epoch
	case String:
		return ""
	}
	return nil
}

// Merge appends b's rows to a's. A column of b joins the column of a with
// the same header and type; any other column of b is appended. An appended
// column whose header is already taken (same name, other type) is renamed
// name_2, name_3, ... so headers stay unique. Cells a row has no value for
// hold the column type's Sentinel. Neither input is modified.
func Merge(a, b *Grid) *Grid {
	out := a.Clone()

	var newCols []int
	target := make([]int, len(b.Headers))
	for bi, h := range b.Headers {
		ai := a.ColIndex(h)
		if ai < 0 || a.Types[ai] != b.Types[bi] {
			newCols = append(newCols, bi)
			target[bi] = -1
			continue
		}
		target[bi] = ai
	}

	for _, bi := range newCols {
		target[bi] = len(out.Headers)
		out.Headers = append(out.Headers, uniqueHeader(out, b.Headers[bi]))
		out.Types = append(out.Types, b.Types[bi])
		for i := range out.Data {
			out.Data[i] = append(out.Data[i], Sentinel(b.Types[bi]))
		}
	}

	for _, brow := range b.Data {
		row := make([]any, len(out.Headers))
		for i, t := range out.Types {
			row[i] = Sentinel(t)
		}
		for bi, ai := range target {
			if bi < len(brow) {
				row[ai] = brow[bi]
			}
		}
		out.Data = append(out.Data, row)
	}
	return out
}

// MergeAll folds Merge over grids. An empty list yields an empty Grid.
func MergeAll(grids []*Grid) *Grid {
	if len(grids) == 0 {
		return Empty()
	}
	acc := grids[0].Clone()
	for _, g := range grids[1:] {
		acc = Merge(acc, g)
	}
	return acc
}

func uniqueHeader(g *Grid, h string) string {
	if g.ColIndex(h) < 0 {
		return h
	}
	for n := 2; ; n++ {
		name := fmt.Sprintf("%s_%d", h, n)
		if g.ColIndex(name) < 0 {
			return name
		}
	}
}
