package render

import (
	"math"
	"strconv"
	"strings"
)

// formatPattern renders f with a decimal pattern such as "#,##0.00": a comma
// before the decimal point turns on thousands grouping and the digits after
// it fix the number of decimals.
func formatPattern(f float64, pattern string) string {
	intPart, frac, _ := strings.Cut(pattern, ".")
	decimals := strings.Count(frac, "0") + strings.Count(frac, "#")
	group := strings.Contains(intPart, ",")

	s := strconv.FormatFloat(math.Abs(f), 'f', decimals, 64)
	whole, fraction, _ := strings.Cut(s, ".")
	if group {
		whole = groupThousands(whole)
	}
	if fraction != "" {
		whole += "." + fraction
	}
	if f < 0 && strings.Trim(s, "0.") != "" {
		return "-" + whole
	}
	return whole
}

func groupThousands(digits string) string {
	if len(digits) <= 3 {
		return digits
	}
	var b strings.Builder
	lead := len(digits) % 3
	if lead > 0 {
		b.WriteString(digits[:lead])
	}
	for i := lead; i < len(digits); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(digits[i : i+3])
	}
	return b.String()
}
