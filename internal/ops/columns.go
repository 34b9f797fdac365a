package ops

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"condorview/internal/grid"
)

// ── Column transforms ──────────────────────────────────────

// delta replaces each value of the named NUMBER columns with its increase
// over the previous value. A value not strictly greater than the previous
// one (unchanged, or a counter reset) becomes blank. With no argument every
// NUMBER column is processed.
func delta(g *grid.Grid, arg string, _ *Context) (*grid.Grid, error) {
	var cols []int
	if strings.TrimSpace(arg) == "" {
		for i, t := range g.Types {
			if t == grid.Number {
				cols = append(cols, i)
			}
		}
	} else {
		var err error
		if cols, err = keyCols(g, strings.Split(arg, ",")); err != nil {
			return nil, err
		}
	}

	for _, col := range cols {
		if g.Types[col] != grid.Number {
			continue
		}
		var prev float64
		havePrev := false
		for _, row := range g.Data {
			val, ok := row[col].(float64)
			if !ok {
				continue
			}
			if havePrev {
				if val > prev {
					row[col] = val - prev
				} else {
					row[col] = nil
				}
			}
			prev, havePrev = val, true
		}
	}
	return g, nil
}

func extractRegexp(g *grid.Grid, arg string, _ *Context) (*grid.Grid, error) {
	name, pattern, ok := splitOne(arg, "=")
	if !ok {
		return nil, badArg(OpExtractRegexp, arg, "expected col=pattern")
	}
	if !strings.Contains(pattern, "(") {
		return nil, badArg(OpExtractRegexp, arg, "pattern needs at least one (regex group)")
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, badArg(OpExtractRegexp, arg, err.Error())
	}
	col, err := keyCol(g, name)
	if err != nil {
		return nil, err
	}
	t := g.Types[col]
	for _, row := range g.Data {
		m := re.FindStringSubmatch(grid.Stringify(row[col], t))
		if m == nil {
			row[col] = ""
			continue
		}
		row[col] = strings.Join(m[1:], "")
	}
	g.Types[col] = grid.String
	return g, nil
}

// quantize bins a column by a fixed width, or into labelled ranges when
// given several edges.
func quantize(g *grid.Grid, arg string, _ *Context) (*grid.Grid, error) {
	name, rest, ok := splitOne(arg, "=")
	if !ok || rest == "" {
		return nil, badArg(OpQuantize, arg, "needs a bin size or list of edges")
	}
	col, err := keyCol(g, name)
	if err != nil {
		return nil, err
	}
	quants := strings.Split(rest, ",")

	if len(quants) == 1 {
		width := parseFloatStrict(quants[0])
		if math.IsNaN(width) || width <= 0 {
			return nil, badArg(OpQuantize, arg, fmt.Sprintf("bin size %s must be > 0", quants[0]))
		}
		for _, row := range g.Data {
			v := grid.ToFloat(row[col])
			if math.IsNaN(v) {
				row[col] = math.NaN()
				continue
			}
			row[col] = math.Floor(v/width) * width
		}
		g.Types[col] = grid.Number
		return g, nil
	}

	edges := make([]float64, len(quants))
	for i, q := range quants {
		edges[i] = parseFloatStrict(q)
		if math.IsNaN(edges[i]) {
			return nil, badArg(OpQuantize, arg, fmt.Sprintf("bin edge %q is not a number", q))
		}
	}
	for _, row := range g.Data {
		v := 0.0
		if row[col] != nil {
			v = grid.ToFloat(row[col])
		}
		label := quants[len(quants)-1] + "+"
		for i, e := range edges {
			if v < e {
				if i == 0 {
					label = "<" + quants[0]
				} else {
					label = quants[i-1] + "-" + quants[i]
				}
				break
			}
		}
		row[col] = label
	}
	g.Types[col] = grid.String
	return g, nil
}

// rename renames the first column called old; a missing column is a no-op.
func rename(g *grid.Grid, arg string, _ *Context) (*grid.Grid, error) {
	from, to, ok := splitOne(arg, "=")
	if !ok {
		return nil, badArg(OpRename, arg, "expected old=new")
	}
	if i := g.ColIndex(from); i >= 0 {
		g.Headers[i] = to
	}
	return g, nil
}

// ySpread divides each NUMBER cell by the row's sum of absolute NUMBER
// values, turning magnitudes into shares.
func ySpread(g *grid.Grid, arg string, _ *Context) (*grid.Grid, error) {
	if arg != "" {
		return nil, badArg(OpYSpread, arg, "no argument expected")
	}
	for _, row := range g.Data {
		total := 0.0
		for i, cell := range row {
			if f, ok := cell.(float64); ok && g.Types[i] == grid.Number && f != 0 && !math.IsNaN(f) {
				total += math.Abs(f)
			}
		}
		if total == 0 {
			total = 1
		}
		for i, cell := range row {
			if f, ok := cell.(float64); ok && g.Types[i] == grid.Number && f != 0 && !math.IsNaN(f) {
				row[i] = f / total
			}
		}
	}
	return g, nil
}

// transpose turns each input column into a row. The first output column
// holds the old headers; names label the output columns, and any column
// left unnamed gets col<N>.
func transpose(g *grid.Grid, arg string, _ *Context) (*grid.Grid, error) {
	names := strings.Split(arg, ",")
	ncols := len(g.Data) + 1
	out := &grid.Grid{
		Headers: make([]string, ncols),
		Types:   make([]grid.Type, ncols),
		Data:    make([][]any, len(g.Headers)),
	}
	for i := range out.Headers {
		if i < len(names) && names[i] != "" {
			out.Headers[i] = names[i]
		} else {
			out.Headers[i] = fmt.Sprintf("col%d", i)
		}
		out.Types[i] = grid.Number
	}
	out.Types[0] = grid.String

	for c, h := range g.Headers {
		row := make([]any, ncols)
		row[0] = h
		for r, in := range g.Data {
			row[r+1] = grid.CoerceCell(in[c], grid.Number)
		}
		out.Data[c] = row
	}
	return out, nil
}

// cumulativeIntegral integrates every column after the first over the
// hours elapsed in column 0, starting from zero.
func cumulativeIntegral(g *grid.Grid, arg string, _ *Context) (*grid.Grid, error) {
	if g.NumCols() == 0 || !g.Types[0].IsTemporal() {
		return nil, badArg(OpCumulativeIntegral, arg, "column 0 must be a date or datetime")
	}
	for i := 1; i < len(g.Types); i++ {
		g.Types[i] = grid.Number
	}
	if len(g.Data) == 0 {
		return g, nil
	}

	times := make([]time.Time, len(g.Data))
	for r, row := range g.Data {
		tm, ok := row[0].(time.Time)
		if !ok {
			return nil, fmt.Errorf("cumulative_integral: row %d has no time value", r)
		}
		times[r] = tm
	}

	prev := make([]any, g.NumCols())
	prev[0] = times[0]
	for i := 1; i < len(prev); i++ {
		prev[i] = 0.0
	}
	out := [][]any{prev}
	for r := 1; r < len(g.Data); r++ {
		hours := times[r].Sub(times[r-1]).Hours()
		row := make([]any, g.NumCols())
		row[0] = times[r]
		for i := 1; i < len(row); i++ {
			row[i] = prev[i].(float64) + grid.ToFloat(g.Data[r][i])*hours
		}
		out = append(out, row)
		prev = row
	}
	g.Data = out
	return g, nil
}

// makeURL rewrites a column to "template|value" with every * in the
// template replaced by the value.
func makeURL(g *grid.Grid, arg string, _ *Context) (*grid.Grid, error) {
	name, tpl, ok := strings.Cut(arg, "=")
	if !ok {
		return nil, badArg(OpMakeURL, arg, "expected col=template")
	}
	col := g.ColIndex(name)
	if col < 0 {
		return nil, &UnknownColumnError{Column: name}
	}
	t := g.Types[col]
	for _, row := range g.Data {
		v := cellText(row[col], t)
		row[col] = strings.ReplaceAll(tpl, "*", v) + "|" + v
	}
	g.Types[col] = grid.String
	return g, nil
}

func setVal(g *grid.Grid, arg string, _ *Context) (*grid.Grid, error) {
	name, value, ok := strings.Cut(arg, "=")
	if !ok {
		return nil, badArg(OpSetVal, arg, "expected col=value")
	}
	col := g.ColIndex(name)
	if col < 0 {
		return nil, &UnknownColumnError{Column: name}
	}
	for _, row := range g.Data {
		row[col] = value
	}
	g.Types[col] = grid.String
	return g, nil
}

// ── Number parsing ─────────────────────────────────────────

var leadingFloatRE = regexp.MustCompile(`^[+-]?(\d+\.?\d*|\.\d+)([eE][+-]?\d+)?`)

// parseFloatLoose reads the longest numeric prefix of s, or NaN.
func parseFloatLoose(s string) float64 {
	s = strings.TrimSpace(s)
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	m := leadingFloatRE.FindString(s)
	if m == "" {
		return math.NaN()
	}
	f, err := strconv.ParseFloat(m, 64)
	if err != nil {
		return math.NaN()
	}
	return f
}

// parseFloatStrict parses all of s, or returns NaN.
func parseFloatStrict(s string) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return math.NaN()
	}
	return f
}
