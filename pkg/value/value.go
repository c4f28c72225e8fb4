// Package value provides the dynamic values manipulated by the bytecode
// engine: real double matrices (with a logical flag), char rows, cell
// arrays, scalar structs, value objects, function handles and cs-lists.
//
// Values are immutable once built. Every operation that "modifies" an
// aggregate returns a fresh copy, which is what gives aggregates value
// semantics: two variables that shared an aggregate never observe each
// other's sub-assignments.
//
// A nil Value means "undefined".
package value

import (
	"fmt"
	"strings"
)

// Value is a dynamically typed value.
type Value interface {
	// Class returns the class name as reported by class().
	Class() string
	// Dims returns the number of rows and columns.
	Dims() (rows, cols int)
	// String returns a short human-readable rendering.
	String() string
}

// Numel returns the number of elements of v. Undefined values have none.
func Numel(v Value) int {
	if v == nil {
		return 0
	}
	if cs, ok := v.(*CSList); ok {
		return len(cs.Elems)
	}
	r, c := v.Dims()
	return r * c
}

// IsEmpty reports whether v has no elements.
func IsEmpty(v Value) bool {
	return Numel(v) == 0
}

// ClassOf returns the class of v, or "undefined".
func ClassOf(v Value) string {
	if v == nil {
		return "undefined"
	}
	return v.Class()
}

// ---------------------------------------------------------------------------
// Matrix
// ---------------------------------------------------------------------------

// Matrix is a real double (or logical) 2-D array stored column-major.
type Matrix struct {
	Rows, Cols int
	Data       []float64
	Logical    bool
}

// Scalar returns a 1x1 double.
func Scalar(f float64) *Matrix {
	return &Matrix{Rows: 1, Cols: 1, Data: []float64{f}}
}

// Bool returns a 1x1 logical.
func Bool(b bool) *Matrix {
	m := &Matrix{Rows: 1, Cols: 1, Data: []float64{0}, Logical: true}
	if b {
		m.Data[0] = 1
	}
	return m
}

// Empty returns a 0x0 double.
func Empty() *Matrix {
	return &Matrix{}
}

// NewMatrix returns a rows x cols matrix backed by data (column-major).
// A nil data slice allocates zeros.
func NewMatrix(rows, cols int, data []float64) *Matrix {
	if data == nil {
		data = make([]float64, rows*cols)
	}
	return &Matrix{Rows: rows, Cols: cols, Data: data}
}

// Row returns a 1xN double row vector.
func Row(vals ...float64) *Matrix {
	d := make([]float64, len(vals))
	copy(d, vals)
	return &Matrix{Rows: 1, Cols: len(vals), Data: d}
}

func (m *Matrix) Class() string {
	if m.Logical {
		return "logical"
	}
	return "double"
}

func (m *Matrix) Dims() (int, int) { return m.Rows, m.Cols }

// IsScalar reports whether m is 1x1.
func (m *Matrix) IsScalar() bool { return m.Rows == 1 && m.Cols == 1 }

// At returns the element at zero-based row r, column c.
func (m *Matrix) At(r, c int) float64 { return m.Data[c*m.Rows+r] }

func (m *Matrix) clone() *Matrix {
	d := make([]float64, len(m.Data))
	copy(d, m.Data)
	return &Matrix{Rows: m.Rows, Cols: m.Cols, Data: d, Logical: m.Logical}
}

func (m *Matrix) String() string {
	if m.Rows*m.Cols == 0 {
		return fmt.Sprintf("[](%dx%d)", m.Rows, m.Cols)
	}
	if m.IsScalar() {
		return formatNumber(m.Data[0])
	}
	var sb strings.Builder
	sb.WriteString("[")
	for r := 0; r < m.Rows; r++ {
		if r > 0 {
			sb.WriteString("; ")
		}
		for c := 0; c < m.Cols; c++ {
			if c > 0 {
				sb.WriteString(" ")
			}
			sb.WriteString(formatNumber(m.At(r, c)))
		}
	}
	sb.WriteString("]")
	return sb.String()
}

// IsRealScalar reports whether v is a 1x1 double or logical, the
// precondition of the double fast-path instructions.
func IsRealScalar(v Value) bool {
	m, ok := v.(*Matrix)
	return ok && m.IsScalar()
}

// ScalarValue returns the number held by a 1x1 matrix.
func ScalarValue(v Value) (float64, bool) {
	m, ok := v.(*Matrix)
	if !ok || !m.IsScalar() {
		return 0, false
	}
	return m.Data[0], true
}

// ---------------------------------------------------------------------------
// Str
// ---------------------------------------------------------------------------

// Str is a char row vector.
type Str struct {
	S string
}

// String returns a char row.
func String(s string) *Str { return &Str{S: s} }

func (s *Str) Class() string     { return "char" }
func (s *Str) Dims() (int, int)  { return min(1, len(s.S)), len(s.S) }
func (s *Str) String() string    { return s.S }
func (s *Str) codes() *Matrix {
	d := make([]float64, len(s.S))
	for i := 0; i < len(s.S); i++ {
		d[i] = float64(s.S[i])
	}
	return &Matrix{Rows: 1, Cols: len(d), Data: d}
}

// ---------------------------------------------------------------------------
// Cell
// ---------------------------------------------------------------------------

// Cell is a 2-D array of arbitrary values stored column-major.
type Cell struct {
	Rows, Cols int
	Elems      []Value
}

// NewCell returns a rows x cols cell filled with empty matrices.
func NewCell(rows, cols int) *Cell {
	e := make([]Value, rows*cols)
	for i := range e {
		e[i] = Empty()
	}
	return &Cell{Rows: rows, Cols: cols, Elems: e}
}

// CellRow returns a 1xN cell holding vals.
func CellRow(vals ...Value) *Cell {
	e := make([]Value, len(vals))
	copy(e, vals)
	return &Cell{Rows: 1, Cols: len(e), Elems: e}
}

func (c *Cell) Class() string    { return "cell" }
func (c *Cell) Dims() (int, int) { return c.Rows, c.Cols }
func (c *Cell) clone() *Cell {
	e := make([]Value, len(c.Elems))
	copy(e, c.Elems)
	return &Cell{Rows: c.Rows, Cols: c.Cols, Elems: e}
}

func (c *Cell) String() string {
	parts := make([]string, len(c.Elems))
	for i, e := range c.Elems {
		parts[i] = Format(e)
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// ---------------------------------------------------------------------------
// Struct
// ---------------------------------------------------------------------------

// Struct is a scalar struct with ordered fields.
type Struct struct {
	names  []string
	fields map[string]Value
}

// NewStruct returns an empty scalar struct.
func NewStruct() *Struct {
	return &Struct{fields: map[string]Value{}}
}

func (s *Struct) Class() string    { return "struct" }
func (s *Struct) Dims() (int, int) { return 1, 1 }

// Field returns the named field.
func (s *Struct) Field(name string) (Value, bool) {
	v, ok := s.fields[name]
	return v, ok
}

// FieldNames returns field names in insertion order.
func (s *Struct) FieldNames() []string {
	out := make([]string, len(s.names))
	copy(out, s.names)
	return out
}

// With returns a copy of s with name set to v.
func (s *Struct) With(name string, v Value) *Struct {
	n := &Struct{names: make([]string, len(s.names), len(s.names)+1), fields: make(map[string]Value, len(s.fields)+1)}
	copy(n.names, s.names)
	for k, fv := range s.fields {
		n.fields[k] = fv
	}
	if _, ok := n.fields[name]; !ok {
		n.names = append(n.names, name)
	}
	n.fields[name] = v
	return n
}

func (s *Struct) String() string {
	parts := make([]string, len(s.names))
	for i, n := range s.names {
		parts[i] = n + ": " + Format(s.fields[n])
	}
	return "struct(" + strings.Join(parts, ", ") + ")"
}

// ---------------------------------------------------------------------------
// Object
// ---------------------------------------------------------------------------

// Object is a value-class object: a class name plus properties. Property
// assignment copies the object like any other aggregate.
type Object struct {
	ClassName string
	Props     *Struct
}

// NewObject returns an object of the given class with no properties.
func NewObject(class string) *Object {
	return &Object{ClassName: class, Props: NewStruct()}
}

func (o *Object) Class() string    { return o.ClassName }
func (o *Object) Dims() (int, int) { return 1, 1 }
func (o *Object) String() string   { return "<" + o.ClassName + " object>" }

// NewError builds an MException-like error object.
func NewError(identifier, message string) *Object {
	o := NewObject("MException")
	o.Props = o.Props.With("identifier", String(identifier)).With("message", String(message))
	return o
}

// ErrorMessage extracts identifier and message from an error object or
// a plain string.
func ErrorMessage(v Value) (identifier, message string, ok bool) {
	switch t := v.(type) {
	case *Object:
		if t.ClassName != "MException" {
			return "", "", false
		}
		if id, ok := t.Props.Field("identifier"); ok {
			identifier = id.String()
		}
		if msg, ok := t.Props.Field("message"); ok {
			message = msg.String()
		}
		return identifier, message, true
	case *Str:
		return "", t.S, true
	}
	return "", "", false
}

// ---------------------------------------------------------------------------
// Handle
// ---------------------------------------------------------------------------

// Code is an opaque compiled body referenced by an anonymous function
// handle. The engine knows the concrete type.
type Code interface {
	UnitName() string
}

// Handle is a function handle. Named handles carry only Name and are
// resolved when called; anonymous handles carry their compiled body and
// the values captured at creation time, keyed by variable name.
type Handle struct {
	Name     string
	Body     Code
	Captured map[string]Value
}

func (h *Handle) Class() string    { return "function_handle" }
func (h *Handle) Dims() (int, int) { return 1, 1 }
func (h *Handle) String() string {
	if h.Body != nil {
		return "@<anonymous " + h.Body.UnitName() + ">"
	}
	return "@" + h.Name
}

// ---------------------------------------------------------------------------
// CSList
// ---------------------------------------------------------------------------

// CSList is a comma-separated list: the multi-valued result of brace
// indexing or of a call with several outputs.
type CSList struct {
	Elems []Value
}

// List returns a cs-list holding vals.
func List(vals ...Value) *CSList {
	return &CSList{Elems: vals}
}

func (l *CSList) Class() string    { return "cs-list" }
func (l *CSList) Dims() (int, int) { return 1, len(l.Elems) }
func (l *CSList) String() string {
	parts := make([]string, len(l.Elems))
	for i, e := range l.Elems {
		parts[i] = Format(e)
	}
	return strings.Join(parts, ", ")
}

// Flatten expands cs-lists among vals in place, preserving order.
func Flatten(vals []Value) []Value {
	n := 0
	need := false
	for _, v := range vals {
		if cs, ok := v.(*CSList); ok {
			n += len(cs.Elems)
			need = true
		} else {
			n++
		}
	}
	if !need {
		return vals
	}
	out := make([]Value, 0, n)
	for _, v := range vals {
		if cs, ok := v.(*CSList); ok {
			out = append(out, cs.Elems...)
		} else {
			out = append(out, v)
		}
	}
	return out
}

// ---------------------------------------------------------------------------
// Magic colon
// ---------------------------------------------------------------------------

// Colon is the magic ':' index meaning "all elements".
type Colon struct{}

func (Colon) Class() string    { return "magic-colon" }
func (Colon) Dims() (int, int) { return 1, 1 }
func (Colon) String() string   { return ":" }
