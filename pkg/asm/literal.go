package asm

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/chbinousamy/octave/pkg/value"
)

// ParseLiteral parses a constant literal: a number, true or false, a
// double- or single-quoted string, a numeric matrix "[1 2; 3 4]", a cell
// "{1, 'a'}", a named handle "@sin" or the magic colon ":".
func ParseLiteral(s string) (value.Value, error) {
	s = strings.TrimSpace(s)
	switch {
	case s == "":
		return nil, fmt.Errorf("empty literal")
	case s == "true":
		return value.Bool(true), nil
	case s == "false":
		return value.Bool(false), nil
	case s == ":":
		return value.Colon{}, nil
	case s[0] == '@':
		if !isIdent(s[1:]) {
			return nil, fmt.Errorf("bad handle %q", s)
		}
		return &value.Handle{Name: s[1:]}, nil
	case s[0] == '"':
		str, err := strconv.Unquote(s)
		if err != nil {
			return nil, fmt.Errorf("bad string %s", s)
		}
		return value.String(str), nil
	case s[0] == '\'':
		if len(s) < 2 || s[len(s)-1] != '\'' {
			return nil, fmt.Errorf("bad string %s", s)
		}
		return value.String(strings.ReplaceAll(s[1:len(s)-1], "''", "'")), nil
	case s[0] == '[':
		return parseMatrix(s)
	case s[0] == '{':
		return parseCell(s)
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, fmt.Errorf("bad literal %q", s)
	}
	return value.Scalar(f), nil
}

func parseMatrix(s string) (value.Value, error) {
	rows, err := literalRows(s, '[', ']')
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return value.Empty(), nil
	}
	cols := len(rows[0])
	data := make([]float64, len(rows)*cols)
	for r, row := range rows {
		if len(row) != cols {
			return nil, fmt.Errorf("vertical dimensions mismatch in %s", s)
		}
		for c, field := range row {
			f, err := strconv.ParseFloat(field, 64)
			if err != nil {
				return nil, fmt.Errorf("bad matrix element %q", field)
			}
			data[c*len(rows)+r] = f
		}
	}
	return value.NewMatrix(len(rows), cols, data), nil
}

func parseCell(s string) (value.Value, error) {
	rows, err := literalRows(s, '{', '}')
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return value.NewCell(0, 0), nil
	}
	cols := len(rows[0])
	c := value.NewCell(len(rows), cols)
	for r, row := range rows {
		if len(row) != cols {
			return nil, fmt.Errorf("vertical dimensions mismatch in %s", s)
		}
		for k, field := range row {
			v, err := ParseLiteral(field)
			if err != nil {
				return nil, err
			}
			c.Elems[k*len(rows)+r] = v
		}
	}
	return c, nil
}

// literalRows splits a bracketed literal into rows of element texts.
func literalRows(s string, open, close byte) ([][]string, error) {
	if len(s) < 2 || s[0] != open || s[len(s)-1] != close {
		return nil, fmt.Errorf("bad literal %s", s)
	}
	var rows [][]string
	for _, part := range splitRows(s[1 : len(s)-1]) {
		fields, err := splitFields(part)
		if err != nil {
			return nil, err
		}
		if len(fields) > 0 {
			rows = append(rows, fields)
		}
	}
	return rows, nil
}

// splitRows splits on ";" outside quotes and nested brackets.
func splitRows(s string) []string {
	var rows []string
	depth, start := 0, 0
	var quote byte
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case quote != 0:
			if c == '\\' && quote == '"' {
				i++
			} else if c == quote {
				quote = 0
			}
		case c == '"' || c == '\'':
			quote = c
		case c == '[' || c == '{':
			depth++
		case c == ']' || c == '}':
			depth--
		case c == ';' && depth == 0:
			rows = append(rows, s[start:i])
			start = i + 1
		}
	}
	return append(rows, s[start:])
}

// FormatLiteral renders v in the form ParseLiteral reads. Values with no
// literal form report false.
func FormatLiteral(v value.Value) (string, bool) {
	switch t := v.(type) {
	case *value.Matrix:
		if t.Logical {
			if !t.IsScalar() {
				return "", false
			}
			return strconv.FormatBool(t.Data[0] != 0), true
		}
		if t.IsScalar() {
			return formatFloat(t.Data[0]), true
		}
		if t.Rows == 0 && t.Cols == 0 {
			return "[]", true
		}
		if t.Rows == 0 || t.Cols == 0 {
			return "", false
		}
		rows := make([]string, t.Rows)
		for r := range rows {
			elems := make([]string, t.Cols)
			for c := range elems {
				elems[c] = formatFloat(t.At(r, c))
			}
			rows[r] = strings.Join(elems, " ")
		}
		return "[" + strings.Join(rows, "; ") + "]", true
	case *value.Str:
		return strconv.Quote(t.S), true
	case *value.Handle:
		if t.Body != nil {
			return "", false
		}
		return "@" + t.Name, true
	case value.Colon:
		return ":", true
	case *value.Cell:
		if t.Rows == 0 && t.Cols == 0 {
			return "{}", true
		}
		if t.Rows == 0 || t.Cols == 0 {
			return "", false
		}
		rows := make([]string, t.Rows)
		for r := range rows {
			elems := make([]string, t.Cols)
			for c := range elems {
				s, ok := FormatLiteral(t.Elems[c*t.Rows+r])
				if !ok {
					return "", false
				}
				elems[c] = s
			}
			rows[r] = strings.Join(elems, ", ")
		}
		return "{" + strings.Join(rows, "; ") + "}", true
	}
	return "", false
}

func formatFloat(f float64) string {
	switch {
	case math.IsInf(f, 1):
		return "Inf"
	case math.IsInf(f, -1):
		return "-Inf"
	case math.IsNaN(f):
		return "NaN"
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}
