// Package render converts a grid into the DataTable JSON a chart library
// draws, and picks the chart class and options for a chart= request.
package render

import (
	"fmt"
	"math"
	"strings"
	"time"

	"condorview/internal/grid"
)

// Column is a DataTable column.
type Column struct {
	ID    string `json:"id"`
	Label string `json:"label"`
	Type  string `json:"type"`
}

// Cell is a DataTable cell: v is the value, f the optional formatted
// text and p per-cell properties such as a style.
type Cell struct {
	V any               `json:"v"`
	F *string           `json:"f,omitempty"`
	P map[string]string `json:"p,omitempty"`
}

// Row is a DataTable row.
type Row struct {
	C []Cell `json:"c"`
}

// DataTable is the JSON literal form of a chart data table.
type DataTable struct {
	Cols []Column `json:"cols"`
	Rows []Row    `json:"rows"`
}

// TableOptions controls the grid to DataTable conversion.
type TableOptions struct {
	// AllowHTML renders url|label cells as links and escapes other strings.
	AllowHTML bool
	// ShowOnlyLastSeg formats a|b|c cells as their last segment.
	ShowOnlyLastSeg bool
	// BoolToNum declares BOOLEAN columns as numbers.
	BoolToNum bool
	// Intensify colors cells: "xy", "y" or "health"; "" disables it.
	Intensify string
}

// ToDataTable converts g. It fails only for an unsupported intensify mode.
func ToDataTable(g *grid.Grid, opts TableOptions) (*DataTable, error) {
	dt := &DataTable{Cols: make([]Column, len(g.Headers)), Rows: make([]Row, len(g.Data))}
	for i, h := range g.Headers {
		t := g.Types[i]
		if t == grid.Boolean && opts.BoolToNum {
			t = grid.Number
		}
		dt.Cols[i] = Column{ID: h, Label: h, Type: string(t)}
	}

	for r, row := range g.Data {
		cells := make([]Cell, len(row))
		for c, v := range row {
			cells[c] = tableCell(v, g.Types[c], opts)
		}
		dt.Rows[r] = Row{C: cells}
	}

	if opts.Intensify != "" {
		if err := intensify(dt, g, opts.Intensify); err != nil {
			return nil, err
		}
	}
	return dt, nil
}

func tableCell(v any, t grid.Type, opts TableOptions) Cell {
	switch t {
	case grid.String:
		s, ok := v.(string)
		if !ok {
			return Cell{V: v}
		}
		if opts.AllowHTML {
			if href, label, ok := looksLikeURL(s); ok {
				s = `<a href="` + encodeURI(href) + `" target="_blank" rel="noopener noreferrer">` + htmlEscape(label) + "</a>"
			} else {
				s = htmlEscape(s)
			}
		}
		cell := Cell{V: s}
		if opts.ShowOnlyLastSeg && s != "" {
			if i := strings.LastIndex(s, "|"); i >= 0 {
				last := s[i+1:]
				cell.F = &last
			}
		}
		return cell
	case grid.Number:
		return Cell{V: finite(v)}
	case grid.Boolean:
		f, ok := v.(float64)
		if !ok || math.IsNaN(f) {
			return Cell{V: nil}
		}
		if opts.BoolToNum {
			return Cell{V: f}
		}
		return Cell{V: f != 0}
	case grid.Date, grid.DateTime:
		tm, ok := v.(time.Time)
		if !ok {
			return Cell{V: nil}
		}
		f := formatDate(tm, t)
		return Cell{V: dateLiteral(tm, t), F: &f}
	}
	return Cell{V: v}
}

func finite(v any) any {
	f, ok := v.(float64)
	if !ok || math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return f
}

// dateLiteral is the Date(y,m,d...) string form chart libraries accept in
// JSON; months are zero based.
func dateLiteral(t time.Time, typ grid.Type) string {
	t = t.UTC()
	if typ == grid.Date {
		return fmt.Sprintf("Date(%d,%d,%d)", t.Year(), int(t.Month())-1, t.Day())
	}
	return fmt.Sprintf("Date(%d,%d,%d,%d,%d,%d,%d)", t.Year(), int(t.Month())-1, t.Day(),
		t.Hour(), t.Minute(), t.Second(), t.Nanosecond()/int(time.Millisecond))
}

func formatDate(t time.Time, typ grid.Type) string {
	if typ == grid.Date {
		return t.UTC().Format("2006-01-02")
	}
	return t.UTC().Format("2006-01-02 15:04")
}

// looksLikeURL splits "url|label" at the last bar. Only http(s) urls count.
func looksLikeURL(s string) (href, label string, ok bool) {
	if !strings.HasPrefix(s, "http://") && !strings.HasPrefix(s, "https://") {
		return "", "", false
	}
	if i := strings.LastIndex(s, "|"); i >= 0 {
		return s[:i], s[i+1:], true
	}
	return s, s, true
}

var htmlReplacer = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", "\n", "<br>\n")

func htmlEscape(s string) string { return htmlReplacer.Replace(s) }

// encodeURI percent-encodes everything except the characters a URI may
// carry literally, leaving existing structure intact.
func encodeURI(s string) string {
	const keep = "-_.!~*'();/?:@&=+$,#"
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9', strings.IndexByte(keep, c) >= 0:
			b.WriteByte(c)
		default:
			fmt.Fprintf(&b, "%%%02X", c)
		}
	}
	return b.String()
}

// ── Intensify ──────────────────────────────────────────────

var healthColors = map[string]string{
	"Good": "#0d0",
	"Fair": "#dd0",
	"Poor": "#d00",
}

func intensify(dt *DataTable, g *grid.Grid, mode string) error {
	if mode == "health" {
		for c, t := range g.Types {
			if t != grid.String {
				continue
			}
			for r, row := range g.Data {
				s, _ := row[c].(string)
				if bg, ok := healthColors[s]; ok {
					dt.Rows[r].C[c].P = map[string]string{"style": "color:#000;background-color:" + bg}
				}
			}
		}
		return nil
	}
	switch mode {
	case "xy", "y":
	case "x":
		return fmt.Errorf("intensify=x not supported")
	default:
		return fmt.Errorf("unknown intensify= mode %q", mode)
	}

	// Ranges always include zero.
	var lo, hi float64
	colLo := make([]float64, len(g.Types))
	colHi := make([]float64, len(g.Types))
	for c, t := range g.Types {
		if t != grid.Number {
			continue
		}
		for _, row := range g.Data {
			f, ok := row[c].(float64)
			if !ok || math.IsNaN(f) {
				continue
			}
			lo, hi = math.Min(lo, f), math.Max(hi, f)
			colLo[c], colHi[c] = math.Min(colLo[c], f), math.Max(colHi[c], f)
		}
	}

	for c, t := range g.Types {
		if t != grid.Number {
			continue
		}
		mn, mx := lo, hi
		if mode == "y" {
			mn, mx = colLo[c], colHi[c]
		}
		for r, row := range g.Data {
			f, ok := row[c].(float64)
			if !ok || math.IsNaN(f) {
				continue
			}
			if bg, ok := gradientColor(f, mn, mx); ok {
				dt.Rows[r].C[c].P = map[string]string{"style": "background-color:" + bg}
			}
		}
	}
	return nil
}

type rgb struct{ r, g, b float64 }

var (
	negColor  = rgb{0xff, 0x88, 0x88}
	zeroColor = rgb{0xff, 0xff, 0xff}
	posColor  = rgb{0x88, 0x88, 0xff}
)

// gradientColor blends red below zero and blue above it over the ranges
// [mn-1, 0) and [0, mx+1).
func gradientColor(v, mn, mx float64) (string, bool) {
	switch {
	case v >= mn-1 && v < 0:
		return blend(negColor, zeroColor, (v-(mn-1))/(0-(mn-1))), true
	case v >= 0 && v < mx+1:
		return blend(zeroColor, posColor, v/(mx+1)), true
	}
	return "", false
}

func blend(a, b rgb, t float64) string {
	mix := func(x, y float64) int { return int(math.Round(x + (y-x)*t)) }
	return fmt.Sprintf("#%02x%02x%02x", mix(a.r, b.r), mix(a.g, b.g), mix(a.b, b.b))
}
