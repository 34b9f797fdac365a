package ops

import (
	"math"
	"strconv"

	"condorview/internal/grid"
)

// UndefinedString fills blank STRING cells before charting.
const UndefinedString = "_undefined_"

// FillNulls returns a copy of g with blank NUMBER cells set to 0 and blank
// STRING cells set to UndefinedString, since charts react badly to holes.
func FillNulls(g *grid.Grid) *grid.Grid {
	out := g.Clone()
	for _, row := range out.Data {
		for i, cell := range row {
			if cell != nil {
				continue
			}
			switch out.Types[i] {
			case grid.Number:
				row[i] = 0.0
			case grid.String:
				row[i] = UndefinedString
			}
		}
	}
	return out
}

// LimitPrecision returns a copy of g with every number rounded to 15
// significant digits, hiding float noise such as 0.1+0.2.
func LimitPrecision(g *grid.Grid) *grid.Grid {
	out := g.Clone()
	for _, row := range out.Data {
		for i, cell := range row {
			f, ok := cell.(float64)
			if !ok || math.IsNaN(f) || math.IsInf(f, 0) {
				continue
			}
			r, err := strconv.ParseFloat(strconv.FormatFloat(f, 'g', 15, 64), 64)
			if err == nil {
				row[i] = r
			}
		}
	}
	return out
}
