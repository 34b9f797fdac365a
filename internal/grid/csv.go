package grid

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"strings"
	"time"
)

// ── CSV ────────────────────────────────────────────────────

// EncodeCSV writes the header row followed by one line per data row.
func EncodeCSV(w io.Writer, g *Grid) error {
	bw := bufio.NewWriter(w)
	writeLine := func(fields []string) error {
		for i, f := range fields {
			if i > 0 {
				if err := bw.WriteByte(','); err != nil {
					return err
				}
			}
			if _, err := bw.WriteString(EscapeCSV(f)); err != nil {
				return err
			}
		}
		return bw.WriteByte('\n')
	}

	if err := writeLine(g.Headers); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	fields := make([]string, len(g.Headers))
	for i, row := range g.Data {
		for j := range fields {
			var cell any
			if j < len(row) {
				cell = row[j]
			}
			fields[j] = csvField(cell, g.typeAt(j))
		}
		if err := writeLine(fields); err != nil {
			return fmt.Errorf("write csv row %d: %w", i, err)
		}
	}
	return bw.Flush()
}

// EscapeCSV quotes s, doubling inner quotes, when it holds a comma, a
// quote, a line break, or leading or trailing whitespace.
func EscapeCSV(s string) string {
	needs := strings.ContainsAny(s, ",\"\n\r") ||
		strings.HasPrefix(s, " ") || strings.HasPrefix(s, "\t") ||
		strings.HasSuffix(s, " ") || strings.HasSuffix(s, "\t")
	if !needs {
		return s
	}
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

func csvField(cell any, t Type) string {
	switch x := cell.(type) {
	case nil:
		return ""
	case float64:
		if math.IsNaN(x) {
			return ""
		}
		return FormatNumber(x)
	case time.Time:
		if t == Date {
			return DateString(x)
		}
		return DateTimeString(x)
	}
	return CellString(cell)
}

// DecodeCSV reads a header-first CSV document into a typed Grid.
func DecodeCSV(r io.Reader) (*Grid, error) {
	records, err := ReadCSVRecords(r, ',')
	if err != nil {
		return nil, err
	}
	return FromPayload(records)
}

// ReadCSVRecords reads every record of a CSV document, tolerating rows of
// uneven width.
func ReadCSVRecords(r io.Reader, delim rune) ([][]string, error) {
	cr := csv.NewReader(r)
	cr.Comma = delim
	cr.FieldsPerRecord = -1
	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}
	if records == nil {
		records = [][]string{}
	}
	return records, nil
}
