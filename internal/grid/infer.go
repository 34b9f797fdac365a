package grid

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// ── Type Inference ─────────────────────────────────────────
// Every non-blank cell of a column can rule out candidate types. The
// column gets the first type of BOOLEAN > DATE > DATETIME > NUMBER that
// no cell ruled out, or STRING.

const (
	cantNumber = 1 << iota
	cantBoolean
	cantDate
	cantDateTime
)

// InferTypes returns one type per column of data. ncols is the column count;
// short rows are treated as blank in the missing cells.
func InferTypes(data [][]any, ncols int) []Type {
	impossible := make([]int, ncols)
	for _, row := range data {
		for col := 0; col < ncols && col < len(row); col++ {
			impossible[col] |= impossibility(row[col])
		}
	}
	types := make([]Type, ncols)
	for col, imp := range impossible {
		switch {
		case imp&cantBoolean == 0:
			types[col] = Boolean
		case imp&cantDate == 0:
			types[col] = Date
		case imp&cantDateTime == 0:
			types[col] = DateTime
		case imp&cantNumber == 0:
			types[col] = Number
		default:
			types[col] = String
		}
	}
	return types
}

func impossibility(cell any) int {
	if isBlank(cell) {
		return 0
	}
	imp := 0
	if d, ok := ParseDate(cell); !ok {
		imp |= cantDate | cantDateTime
	} else if d.Hour() != 0 || d.Minute() != 0 || d.Second() != 0 || d.Nanosecond() != 0 {
		imp |= cantDate
	}
	if _, ok := toNumber(cell); !ok {
		imp |= cantNumber
	}
	if !isBooleanLike(cell) {
		imp |= cantBoolean
	}
	return imp
}

func isBlank(cell any) bool {
	if cell == nil {
		return true
	}
	s, ok := cell.(string)
	return ok && s == ""
}

func isBooleanLike(cell any) bool {
	switch x := cell.(type) {
	case bool:
		return true
	case float64:
		return x == 0 || x == 1
	case string:
		switch x {
		case "0", "1", "true", "false", "True", "False":
			return true
		}
	}
	return false
}

// toNumber is numeric coercion of a single cell; ok is false when the
// cell has no numeric reading.
func toNumber(cell any) (float64, bool) {
	switch x := cell.(type) {
	case float64:
		return x, !math.IsNaN(x)
	case bool:
		if x {
			return 1, true
		}
		return 0, true
	case time.Time:
		return float64(x.UnixMilli()), true
	case string:
		s := strings.TrimSpace(x)
		if s == "" {
			return 0, true
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil || math.IsNaN(f) {
			return math.NaN(), false
		}
		return f, true
	}
	return math.NaN(), false
}

// ToFloat converts a cell to float64 for arithmetic; blanks and
// non-numeric values become NaN.
func ToFloat(cell any) float64 {
	if isBlank(cell) {
		return math.NaN()
	}
	switch x := cell.(type) {
	case string:
		switch x {
		case "true", "True":
			return 1
		case "false", "False":
			return 0
		}
	}
	f, ok := toNumber(cell)
	if !ok {
		return math.NaN()
	}
	return f
}

// ── Coercion ───────────────────────────────────────────────

// Coerce returns a copy of data with every cell converted to the
// representation of its column type.
func Coerce(data [][]any, types []Type) [][]any {
	out := make([][]any, len(data))
	for i, row := range data {
		orow := make([]any, len(types))
		for col, t := range types {
			var cell any
			if col < len(row) {
				cell = row[col]
			}
			orow[col] = CoerceCell(cell, t)
		}
		out[i] = orow
	}
	return out
}

// CoerceCell converts one cell to the representation of type t.
func CoerceCell(cell any, t Type) any {
	if isBlank(cell) {
		return nil
	}
	switch t {
	case Date, DateTime:
		if d, ok := ParseDate(cell); ok {
			return d
		}
		return nil
	case Number, Boolean:
		return ToFloat(cell)
	default:
		if s, ok := cell.(string); ok {
			return s
		}
		return CellString(cell)
	}
}

// ── Date Parsing ───────────────────────────────────────────

var (
	dateRE = regexp.MustCompile(
		`^(\d{1,4})[-/](\d{1,2})[-/](\d{1,4})` +
			`(?:[T\s](\d{1,2}):(\d\d)(?::(\d\d)(?:\.(\d+))?)?)?` +
			`(?:Z| \w\w\w)?$`)
	// gviz-style JSON sometimes carries dates as Date(2014,0,1,2,3,4).
	dateLiteralRE = regexp.MustCompile(`^Date\(([\d,]+)\)$`)
)

// ParseDate parses yyyy-mm-dd[ hh:mm[:ss[.fff]]], mm/dd/yyyy[...] and
// Date(y,m,d,...) literals (zero-based month). Results are UTC.
func ParseDate(cell any) (time.Time, bool) {
	switch x := cell.(type) {
	case time.Time:
		return x.UTC(), true
	case string:
		return parseDateString(strings.TrimSpace(x))
	}
	return time.Time{}, false
}

func parseDateString(s string) (time.Time, bool) {
	var g []string
	if m := dateLiteralRE.FindStringSubmatch(s); m != nil {
		g = append([]string{""}, strings.Split(m[1], ",")...)
		if len(g) > 8 || len(g) < 4 {
			return time.Time{}, false
		}
		month, err := strconv.Atoi(g[2])
		if err != nil {
			return time.Time{}, false
		}
		g[2] = strconv.Itoa(month + 1)
		for len(g) < 8 {
			g = append(g, "")
		}
	} else if m := dateRE.FindStringSubmatch(s); m != nil {
		g = m
	} else {
		return time.Time{}, false
	}

	n := func(i int) int {
		v, _ := strconv.Atoi(g[i])
		return v
	}
	var year, month, day int
	switch {
	case n(3) > 1000:
		year, month, day = n(3), n(1), n(2)
	case n(1) > 1000:
		year, month, day = n(1), n(2), n(3)
	default:
		return time.Time{}, false
	}
	hour, minute, sec := n(4), n(5), n(6)
	msec := 0
	if g[7] != "" {
		frac, err := strconv.ParseFloat("0."+g[7], 64)
		if err == nil {
			msec = int(math.Round(frac * 1000))
		}
	}
	if month < 1 || month > 12 || day < 1 || day > 31 || hour > 23 || minute > 59 || sec > 59 {
		return time.Time{}, false
	}
	t := time.Date(year, time.Month(month), day, hour, minute, sec, 0, time.UTC).
		Add(time.Duration(msec) * time.Millisecond)
	if t.Day() != day && msec < 1000 {
		// time.Date normalized an impossible day such as Feb 30.
		return time.Time{}, false
	}
	return t, true
}
