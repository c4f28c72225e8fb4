package value

import (
	"math"
	"strconv"
	"strings"
)

func formatNumber(f float64) string {
	switch {
	case math.IsInf(f, 1):
		return "Inf"
	case math.IsInf(f, -1):
		return "-Inf"
	case math.IsNaN(f):
		return "NaN"
	}
	return strconv.FormatFloat(f, 'g', 5, 64)
}

// Format renders v on one line; undefined renders as "<undefined>".
func Format(v Value) string {
	if v == nil {
		return "<undefined>"
	}
	if s, ok := v.(*Str); ok {
		return "'" + s.S + "'"
	}
	return v.String()
}

// Display renders v the way a statement without a trailing semicolon
// shows it.
func Display(name string, v Value) string {
	var sb strings.Builder
	switch t := v.(type) {
	case *Matrix:
		if t.IsScalar() || len(t.Data) == 0 {
			sb.WriteString(name + " = " + t.String() + "\n")
			return sb.String()
		}
		sb.WriteString(name + " =\n\n")
		for r := 0; r < t.Rows; r++ {
			for c := 0; c < t.Cols; c++ {
				sb.WriteString("   " + formatNumber(t.At(r, c)))
			}
			sb.WriteString("\n")
		}
		sb.WriteString("\n")
	case *Str:
		sb.WriteString(name + " = " + t.S + "\n")
	default:
		sb.WriteString(name + " = " + Format(v) + "\n")
	}
	return sb.String()
}
