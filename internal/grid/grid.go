package grid

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"
)

// ── Grid ───────────────────────────────────────────────────
// The canonical in-memory table threaded through every pipeline stage.
// Sources produce Grids, operators consume one Grid and return a new one.

// Type is the column type tag of a Grid column.
type Type string

const (
	Number   Type = "number"
	Date     Type = "date"
	DateTime Type = "datetime"
	Boolean  Type = "boolean"
	String   Type = "string"
)

// Valid reports whether t is one of the five known column types.
func (t Type) Valid() bool {
	switch t {
	case Number, Date, DateTime, Boolean, String:
		return true
	}
	return false
}

// IsTemporal reports whether cells of this type hold time.Time values.
func (t Type) IsTemporal() bool { return t == Date || t == DateTime }

// IsNumeric reports whether cells of this type hold float64 values.
func (t Type) IsNumeric() bool { return t == Number || t == Boolean }

// Grid is a typed table: Headers and Types are index-aligned and every row
// in Data has one cell per header.
//
// Cell values are float64 for NUMBER and BOOLEAN columns (NaN allowed),
// time.Time for DATE and DATETIME, string for STRING; nil is a blank cell.
type Grid struct {
	Headers []string `json:"headers"`
	Types   []Type   `json:"types"`
	Data    [][]any  `json:"data"`
}

// New returns an empty Grid with the given columns.
func New(headers []string, types []Type) *Grid {
	return &Grid{
		Headers: append([]string(nil), headers...),
		Types:   append([]Type(nil), types...),
		Data:    [][]any{},
	}
}

// Empty returns a Grid with no columns and no rows.
func Empty() *Grid {
	return &Grid{Headers: []string{}, Types: []Type{}, Data: [][]any{}}
}

// NumCols returns the number of columns.
func (g *Grid) NumCols() int { return len(g.Headers) }

// NumRows returns the number of data rows.
func (g *Grid) NumRows() int { return len(g.Data) }

// ColIndex returns the index of the first column named name, or -1.
func (g *Grid) ColIndex(name string) int {
	for i, h := range g.Headers {
		if h == name {
			return i
		}
	}
	return -1
}

// Clone returns a deep copy of g. Cell values are immutable scalars, so
// copying the row slices is enough to isolate the copy.
func (g *Grid) Clone() *Grid {
	out := &Grid{
		Headers: append([]string{}, g.Headers...),
		Types:   append([]Type{}, g.Types...),
		Data:    make([][]any, len(g.Data)),
	}
	for i, row := range g.Data {
		out.Data[i] = append([]any(nil), row...)
	}
	return out
}

// Shell returns a copy of g's columns with no rows.
func (g *Grid) Shell() *Grid {
	return New(g.Headers, g.Types)
}

// Head returns a copy of g holding at most n rows.
func (g *Grid) Head(n int) *Grid {
	out := g.Shell()
	if n > len(g.Data) {
		n = len(g.Data)
	}
	for _, row := range g.Data[:n] {
		out.Data = append(out.Data, append([]any(nil), row...))
	}
	return out
}

// Validate checks the shape invariants of a Grid.
func (g *Grid) Validate() error {
	if len(g.Headers) != len(g.Types) {
		return fmt.Errorf("grid has %d headers but %d types", len(g.Headers), len(g.Types))
	}
	seen := make(map[string]bool, len(g.Headers))
	for i, h := range g.Headers {
		if seen[h] {
			return fmt.Errorf("duplicate column name %q", h)
		}
		seen[h] = true
		if !g.Types[i].Valid() {
			return fmt.Errorf("column %q has unknown type %q", h, g.Types[i])
		}
	}
	for i, row := range g.Data {
		if len(row) != len(g.Headers) {
			return fmt.Errorf("row %d has %d cells, want %d", i, len(row), len(g.Headers))
		}
	}
	return nil
}

// ── Stringification ────────────────────────────────────────

// Stringify renders a cell the way keys, filters and exports see it.
// Dates render as yyyy-mm-dd, datetimes as yyyy-mm-dd hh:mm:ss[.mmm].
func Stringify(v any, t Type) string {
	switch t {
	case Date:
		if tm, ok := v.(time.Time); ok {
			return DateString(tm)
		}
		return ""
	case DateTime:
		if tm, ok := v.(time.Time); ok {
			return DateTimeString(tm)
		}
		return ""
	}
	s := CellString(v)
	if s == "" {
		return "(none)"
	}
	return s
}

// CellString is the plain string form of a cell; nil becomes "".
func CellString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return FormatNumber(x)
	case bool:
		return strconv.FormatBool(x)
	case time.Time:
		return DateTimeString(x)
	default:
		return fmt.Sprint(x)
	}
}

// FormatNumber renders f the shortest way that round-trips.
func FormatNumber(f float64) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	case math.Abs(f) >= 1e21:
		return strconv.FormatFloat(f, 'g', -1, 64)
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// DateString formats t as yyyy-mm-dd.
func DateString(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format("2006-01-02")
}

// DateTimeString formats t as yyyy-mm-dd hh:mm:ss with milliseconds only when non-zero.
func DateTimeString(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	t = t.UTC()
	s := t.Format("2006-01-02 15:04:05")
	if ms := t.Nanosecond() / int(time.Millisecond); ms != 0 {
		s += fmt.Sprintf(".%03d", ms)
	}
	return s
}

// ── JSON ───────────────────────────────────────────────────

// MarshalJSON encodes the grid with NaN as null and dates in their string form,
// since encoding/json rejects NaN floats.
func (g *Grid) MarshalJSON() ([]byte, error) {
	data := make([][]any, len(g.Data))
	for i, row := range g.Data {
		out := make([]any, len(row))
		for j, cell := range row {
			out[j] = jsonCell(cell, g.typeAt(j))
		}
		data[i] = out
	}
	return json.Marshal(struct {
		Headers []string `json:"headers"`
		Types   []Type   `json:"types"`
		Data    [][]any  `json:"data"`
	}{g.Headers, g.Types, data})
}

func (g *Grid) typeAt(i int) Type {
	if i < len(g.Types) {
		return g.Types[i]
	}
	return String
}

func jsonCell(v any, t Type) any {
	switch x := v.(type) {
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return nil
		}
		return x
	case time.Time:
		if t == Date {
			return DateString(x)
		}
		return DateTimeString(x)
	}
	return v
}
