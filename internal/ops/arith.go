package ops

import (
	"math"
	"strings"
	"time"

	"condorview/internal/grid"
)

// ── Arithmetic columns ─────────────────────────────────────
// Arguments are a,target (the second operand is a itself) or a,b,target,
// where b is a column name or a numeric literal. The result column takes
// a's type and replaces an existing column called target.

type binaryOp func(a, b float64) float64

func nanToZero(a, _ float64) float64 {
	if math.IsNaN(a) {
		return 0
	}
	return a
}

func ceilOp(a, _ float64) float64 { return math.Ceil(a) }
func addOp(a, b float64) float64  { return a + b }
func subOp(a, b float64) float64  { return a - b }
func multOp(a, b float64) float64 { return a * b }
func divOp(a, b float64) float64  { return a / b }

func arithmetic(op Op, fn binaryOp) Handler {
	return func(g *grid.Grid, arg string, _ *Context) (*grid.Grid, error) {
		names := strings.Split(arg, ",")
		if len(names) < 2 {
			return nil, badArg(op, arg, "expected a,target or a,b,target")
		}
		a, b, target := names[0], names[0], names[1]
		if len(names) >= 3 {
			b, target = names[1], names[2]
		}

		aCol := g.ColIndex(a)
		t := grid.Number
		if aCol >= 0 {
			t = g.Types[aCol]
		}
		bCol := g.ColIndex(b)
		literal := parseFloatStrict(b)
		bIsLiteral := !math.IsNaN(literal)

		results := make([]any, len(g.Data))
		for r, row := range g.Data {
			av := math.NaN()
			if aCol >= 0 {
				av = grid.ToFloat(row[aCol])
			}
			bv := literal
			if !bIsLiteral {
				bv = math.NaN()
				if bCol >= 0 {
					bv = grid.ToFloat(row[bCol])
				}
			}
			results[r] = fromFloat(fn(av, bv), t)
		}

		col := g.ColIndex(target)
		if col < 0 {
			g.Headers = append(g.Headers, target)
			g.Types = append(g.Types, t)
			for r := range g.Data {
				g.Data[r] = append(g.Data[r], results[r])
			}
			return g, nil
		}
		g.Types[col] = t
		for r := range g.Data {
			g.Data[r][col] = results[r]
		}
		return g, nil
	}
}

// fromFloat stores an arithmetic result in the representation of type t.
func fromFloat(f float64, t grid.Type) any {
	switch {
	case t.IsTemporal():
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return nil
		}
		return time.UnixMilli(int64(f)).UTC()
	case t == grid.String:
		return grid.FormatNumber(f)
	}
	return f
}
