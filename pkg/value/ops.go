package value

import (
	"errors"
	"fmt"
	"math"
	"strconv"
)

// BinaryOp identifies a binary operator.
type BinaryOp uint8

const (
	OpAdd BinaryOp = iota
	OpSub
	OpMul
	OpDiv
	OpPow
	OpLDiv
	OpElMul
	OpElDiv
	OpElPow
	OpElLDiv
	OpElAnd
	OpElOr
	OpLt
	OpLe
	OpGt
	OpGe
	OpEq
	OpNe
)

var binaryNames = [...]string{
	OpAdd: "+", OpSub: "-", OpMul: "*", OpDiv: "/", OpPow: "^", OpLDiv: "\\",
	OpElMul: ".*", OpElDiv: "./", OpElPow: ".^", OpElLDiv: ".\\",
	OpElAnd: "&", OpElOr: "|",
	OpLt: "<", OpLe: "<=", OpGt: ">", OpGe: ">=", OpEq: "==", OpNe: "!=",
}

func (op BinaryOp) String() string {
	if int(op) < len(binaryNames) {
		return binaryNames[op]
	}
	return "BinaryOp(" + strconv.Itoa(int(op)) + ")"
}

// LookupBinaryOp finds a binary operator by its symbol.
func LookupBinaryOp(sym string) (BinaryOp, bool) {
	for i, s := range binaryNames {
		if s == sym {
			return BinaryOp(i), true
		}
	}
	return 0, false
}

// UnaryOp identifies a unary operator.
type UnaryOp uint8

const (
	OpNot UnaryOp = iota
	OpUPlus
	OpUMinus
	OpTranspose
	OpHermitian
)

func (op UnaryOp) String() string {
	switch op {
	case OpNot:
		return "!"
	case OpUPlus:
		return "+"
	case OpUMinus:
		return "-"
	case OpTranspose:
		return ".'"
	case OpHermitian:
		return "'"
	}
	return "UnaryOp(" + strconv.Itoa(int(op)) + ")"
}

// OpError reports an operation that cannot be applied to its operands.
type OpError struct {
	Op  string
	Msg string
}

func (e *OpError) Error() string {
	if e.Op == "" {
		return e.Msg
	}
	return fmt.Sprintf("operator %s: %s", e.Op, e.Msg)
}

// ErrUndefined is returned when an undefined value reaches an operation.
var ErrUndefined = errors.New("undefined value")

// ErrOutOfMemory reports a result with more elements than MaxElements.
var ErrOutOfMemory = errors.New("out of memory or dimension too large for Octave's index type")

// MaxElements bounds the element count of any value built by a range or
// grown by assignment.
const MaxElements = math.MaxInt32

func checkElements(n float64) error {
	if math.IsNaN(n) || math.IsInf(n, 0) || n > MaxElements {
		return ErrOutOfMemory
	}
	return nil
}

func numeric(op string, v Value) (*Matrix, error) {
	switch t := v.(type) {
	case nil:
		return nil, fmt.Errorf("operator %s: %w", op, ErrUndefined)
	case *Matrix:
		return t, nil
	case *Str:
		return t.codes(), nil
	}
	return nil, &OpError{Op: op, Msg: fmt.Sprintf("not defined for '%s' operands", v.Class())}
}

// Binary applies op to a and b.
func Binary(op BinaryOp, a, b Value) (Value, error) {
	x, err := numeric(op.String(), a)
	if err != nil {
		return nil, err
	}
	y, err := numeric(op.String(), b)
	if err != nil {
		return nil, err
	}
	switch op {
	case OpMul:
		if x.IsScalar() || y.IsScalar() {
			return elementwise(op, x, y, func(p, q float64) float64 { return p * q })
		}
		return matMul(x, y)
	case OpDiv:
		if !y.IsScalar() {
			return nil, &OpError{Op: "/", Msg: "only scalar divisors are supported"}
		}
		return elementwise(op, x, y, func(p, q float64) float64 { return p / q })
	case OpLDiv:
		if !x.IsScalar() {
			return nil, &OpError{Op: "\\", Msg: "only scalar left divisors are supported"}
		}
		return elementwise(op, x, y, func(p, q float64) float64 { return q / p })
	case OpPow:
		if !x.IsScalar() || !y.IsScalar() {
			return nil, &OpError{Op: "^", Msg: "only scalar operands are supported"}
		}
		return Scalar(math.Pow(x.Data[0], y.Data[0])), nil
	}
	f, logical := binaryKernel(op)
	r, err := elementwise(op, x, y, f)
	if err != nil {
		return nil, err
	}
	r.Logical = logical
	return r, nil
}

func binaryKernel(op BinaryOp) (func(p, q float64) float64, bool) {
	switch op {
	case OpAdd:
		return func(p, q float64) float64 { return p + q }, false
	case OpSub:
		return func(p, q float64) float64 { return p - q }, false
	case OpElMul:
		return func(p, q float64) float64 { return p * q }, false
	case OpElDiv:
		return func(p, q float64) float64 { return p / q }, false
	case OpElLDiv:
		return func(p, q float64) float64 { return q / p }, false
	case OpElPow:
		return math.Pow, false
	case OpElAnd:
		return func(p, q float64) float64 { return b2f(p != 0 && q != 0) }, true
	case OpElOr:
		return func(p, q float64) float64 { return b2f(p != 0 || q != 0) }, true
	case OpLt:
		return func(p, q float64) float64 { return b2f(p < q) }, true
	case OpLe:
		return func(p, q float64) float64 { return b2f(p <= q) }, true
	case OpGt:
		return func(p, q float64) float64 { return b2f(p > q) }, true
	case OpGe:
		return func(p, q float64) float64 { return b2f(p >= q) }, true
	case OpEq:
		return func(p, q float64) float64 { return b2f(p == q) }, true
	case OpNe:
		return func(p, q float64) float64 { return b2f(p != q) }, true
	}
	return func(p, q float64) float64 { return math.NaN() }, false
}

func b2f(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

func elementwise(op BinaryOp, x, y *Matrix, f func(p, q float64) float64) (*Matrix, error) {
	switch {
	case x.IsScalar():
		out := NewMatrix(y.Rows, y.Cols, nil)
		for i, q := range y.Data {
			out.Data[i] = f(x.Data[0], q)
		}
		return out, nil
	case y.IsScalar():
		out := NewMatrix(x.Rows, x.Cols, nil)
		for i, p := range x.Data {
			out.Data[i] = f(p, y.Data[0])
		}
		return out, nil
	case x.Rows == y.Rows && x.Cols == y.Cols:
		out := NewMatrix(x.Rows, x.Cols, nil)
		for i := range x.Data {
			out.Data[i] = f(x.Data[i], y.Data[i])
		}
		return out, nil
	}
	return nil, &OpError{Op: op.String(), Msg: fmt.Sprintf("nonconformant arguments (op1 is %dx%d, op2 is %dx%d)", x.Rows, x.Cols, y.Rows, y.Cols)}
}

func matMul(x, y *Matrix) (*Matrix, error) {
	if x.Cols != y.Rows {
		return nil, &OpError{Op: "*", Msg: fmt.Sprintf("nonconformant arguments (op1 is %dx%d, op2 is %dx%d)", x.Rows, x.Cols, y.Rows, y.Cols)}
	}
	out := NewMatrix(x.Rows, y.Cols, nil)
	for c := 0; c < y.Cols; c++ {
		for r := 0; r < x.Rows; r++ {
			var sum float64
			for k := 0; k < x.Cols; k++ {
				sum += x.At(r, k) * y.At(k, c)
			}
			out.Data[c*out.Rows+r] = sum
		}
	}
	return out, nil
}

// Unary applies op to a.
func Unary(op UnaryOp, a Value) (Value, error) {
	if c, ok := a.(*Cell); ok && (op == OpTranspose || op == OpHermitian) {
		out := &Cell{Rows: c.Cols, Cols: c.Rows, Elems: make([]Value, len(c.Elems))}
		for r := 0; r < c.Rows; r++ {
			for col := 0; col < c.Cols; col++ {
				out.Elems[r*out.Rows+col] = c.Elems[col*c.Rows+r]
			}
		}
		return out, nil
	}
	x, err := numeric(op.String(), a)
	if err != nil {
		return nil, err
	}
	switch op {
	case OpNot:
		out := NewMatrix(x.Rows, x.Cols, nil)
		out.Logical = true
		for i, p := range x.Data {
			out.Data[i] = b2f(p == 0)
		}
		return out, nil
	case OpUPlus:
		return x, nil
	case OpUMinus:
		out := NewMatrix(x.Rows, x.Cols, nil)
		for i, p := range x.Data {
			out.Data[i] = -p
		}
		return out, nil
	case OpTranspose, OpHermitian:
		out := NewMatrix(x.Cols, x.Rows, nil)
		out.Logical = x.Logical
		for r := 0; r < x.Rows; r++ {
			for c := 0; c < x.Cols; c++ {
				out.Data[r*out.Rows+c] = x.At(r, c)
			}
		}
		return out, nil
	}
	return nil, &OpError{Op: op.String(), Msg: "unknown unary operator"}
}

// IsTrue reports the truth of v in a conditional: non-empty with every
// element nonzero.
func IsTrue(v Value) (bool, error) {
	switch t := v.(type) {
	case nil:
		return false, ErrUndefined
	case *Matrix:
		if len(t.Data) == 0 {
			return false, nil
		}
		for _, d := range t.Data {
			if math.IsNaN(d) {
				return false, &OpError{Msg: "NaN converted to logical value"}
			}
			if d == 0 {
				return false, nil
			}
		}
		return true, nil
	case *Str:
		if t.S == "" {
			return false, nil
		}
		for i := 0; i < len(t.S); i++ {
			if t.S[i] == 0 {
				return false, nil
			}
		}
		return true, nil
	}
	return false, &OpError{Msg: fmt.Sprintf("wrong type argument '%s' in conditional", v.Class())}
}

// Range builds base:inc:limit.
func Range(base, inc, limit Value) (Value, error) {
	b, ok1 := ScalarValue(base)
	s, ok2 := ScalarValue(inc)
	l, ok3 := ScalarValue(limit)
	if !ok1 || !ok2 || !ok3 {
		return nil, &OpError{Op: ":", Msg: "range operands must be real scalars"}
	}
	if math.IsNaN(b) || math.IsNaN(s) || math.IsNaN(l) {
		return Scalar(math.NaN()), nil
	}
	if s == 0 || (s > 0 && b > l) || (s < 0 && b < l) {
		return NewMatrix(1, 0, nil), nil
	}
	count := math.Floor((l-b)/s+1e-10) + 1
	if err := checkElements(count); err != nil {
		return nil, fmt.Errorf("range: %w", err)
	}
	n := int(count)
	out := NewMatrix(1, n, nil)
	for i := 0; i < n; i++ {
		out.Data[i] = b + float64(i)*s
	}
	return out, nil
}

// Concat builds a matrix literal from rows of values. Char rows
// concatenate as text when every element of a row is char.
func Concat(rows [][]Value) (Value, error) {
	var blocks []*Matrix
	allStr := true
	var text []string
	for _, row := range rows {
		row = Flatten(row)
		if len(row) == 0 {
			continue
		}
		var line string
		rowStr := true
		for _, v := range row {
			s, ok := v.(*Str)
			if !ok {
				rowStr = false
				break
			}
			line += s.S
		}
		if rowStr {
			text = append(text, line)
		} else {
			allStr = false
		}
		m, err := hcat(row)
		if err != nil {
			return nil, err
		}
		if m.Rows*m.Cols > 0 {
			blocks = append(blocks, m)
		}
	}
	if allStr && len(text) == 1 {
		return String(text[0]), nil
	}
	return vcat(blocks)
}

func hcat(row []Value) (*Matrix, error) {
	var parts []*Matrix
	logical := true
	for _, v := range row {
		m, err := numeric("[]", v)
		if err != nil {
			return nil, err
		}
		if m.Rows*m.Cols == 0 {
			continue
		}
		logical = logical && m.Logical
		parts = append(parts, m)
	}
	if len(parts) == 0 {
		return Empty(), nil
	}
	rows := parts[0].Rows
	out := &Matrix{Rows: rows, Logical: logical}
	for _, p := range parts {
		if p.Rows != rows {
			return nil, &OpError{Op: "[]", Msg: fmt.Sprintf("horizontal dimensions mismatch (%dx%d vs %dx%d)", rows, out.Cols, p.Rows, p.Cols)}
		}
		out.Data = append(out.Data, p.Data...)
		out.Cols += p.Cols
	}
	return out, nil
}

func vcat(blocks []*Matrix) (Value, error) {
	if len(blocks) == 0 {
		return Empty(), nil
	}
	if len(blocks) == 1 {
		return blocks[0], nil
	}
	cols := blocks[0].Cols
	rows := 0
	logical := true
	for _, b := range blocks {
		if b.Cols != cols {
			return nil, &OpError{Op: "[]", Msg: fmt.Sprintf("vertical dimensions mismatch (%d columns vs %d)", cols, b.Cols)}
		}
		rows += b.Rows
		logical = logical && b.Logical
	}
	out := NewMatrix(rows, cols, nil)
	out.Logical = logical
	r0 := 0
	for _, b := range blocks {
		for r := 0; r < b.Rows; r++ {
			for c := 0; c < cols; c++ {
				out.Data[c*rows+r0+r] = b.At(r, c)
			}
		}
		r0 += b.Rows
	}
	return out, nil
}

// CellLiteral builds a cell literal from rows of values, expanding
// cs-lists within each row.
func CellLiteral(rows [][]Value) (Value, error) {
	var flat [][]Value
	cols := -1
	for _, row := range rows {
		row = Flatten(row)
		if len(row) == 0 {
			continue
		}
		if cols >= 0 && len(row) != cols {
			return nil, &OpError{Op: "{}", Msg: "vertical dimensions mismatch"}
		}
		cols = len(row)
		flat = append(flat, row)
	}
	if len(flat) == 0 {
		return &Cell{}, nil
	}
	out := &Cell{Rows: len(flat), Cols: cols, Elems: make([]Value, len(flat)*cols)}
	for r, row := range flat {
		for c, v := range row {
			out.Elems[c*out.Rows+r] = v
		}
	}
	return out, nil
}

// Columns returns the number of for-loop iterations over v.
func Columns(v Value) int {
	switch t := v.(type) {
	case nil:
		return 0
	case *CSList:
		return len(t.Elems)
	case *Struct, *Object, *Handle:
		return 1
	}
	r, c := v.Dims()
	if r*c == 0 {
		return 0
	}
	return c
}

// Column returns the i-th (zero-based) for-loop binding of v.
func Column(v Value, i int) Value {
	switch t := v.(type) {
	case *Matrix:
		d := make([]float64, t.Rows)
		copy(d, t.Data[i*t.Rows:(i+1)*t.Rows])
		return &Matrix{Rows: t.Rows, Cols: 1, Data: d, Logical: t.Logical}
	case *Str:
		return String(t.S[i : i+1])
	case *Cell:
		e := make([]Value, t.Rows)
		copy(e, t.Elems[i*t.Rows:(i+1)*t.Rows])
		return &Cell{Rows: t.Rows, Cols: 1, Elems: e}
	case *CSList:
		return t.Elems[i]
	}
	return v
}

// CaseMatch reports whether a switch value matches a case label. Cell
// labels match if any element matches.
func CaseMatch(val, label Value) bool {
	if c, ok := label.(*Cell); ok {
		for _, e := range c.Elems {
			if CaseMatch(val, e) {
				return true
			}
		}
		return false
	}
	if ls, ok := label.(*Str); ok {
		vs, ok := val.(*Str)
		return ok && vs.S == ls.S
	}
	lv, ok := label.(*Matrix)
	if !ok {
		return false
	}
	vm, ok := val.(*Matrix)
	if !ok {
		return false
	}
	if len(lv.Data) == 0 && len(vm.Data) == 0 {
		return true
	}
	if len(lv.Data) == 0 || len(vm.Data) == 0 {
		return false
	}
	if vm.IsScalar() {
		return lv.Data[0] == vm.Data[0]
	}
	return false
}

// MathFunc identifies a unary elementwise math function with a fast path.
type MathFunc uint8

const (
	MathSin MathFunc = iota
	MathCos
	MathTan
	MathExp
	MathLog
	MathSqrt
	MathAbs
	MathFloor
	MathCeil
	MathRound
	MathFix
)

var mathFuncs = [...]struct {
	name string
	fn   func(float64) float64
}{
	MathSin:   {"sin", math.Sin},
	MathCos:   {"cos", math.Cos},
	MathTan:   {"tan", math.Tan},
	MathExp:   {"exp", math.Exp},
	MathLog:   {"log", math.Log},
	MathSqrt:  {"sqrt", math.Sqrt},
	MathAbs:   {"abs", math.Abs},
	MathFloor: {"floor", math.Floor},
	MathCeil:  {"ceil", math.Ceil},
	MathRound: {"round", roundHalfAway},
	MathFix:   {"fix", math.Trunc},
}

func roundHalfAway(x float64) float64 { return math.Round(x) }

// Name returns the function name.
func (f MathFunc) Name() string {
	if int(f) < len(mathFuncs) {
		return mathFuncs[f].name
	}
	return ""
}

// LookupMathFunc finds a math function by name.
func LookupMathFunc(name string) (MathFunc, bool) {
	for i, m := range mathFuncs {
		if m.name == name {
			return MathFunc(i), true
		}
	}
	return 0, false
}

// ApplyMath applies f elementwise.
func ApplyMath(f MathFunc, v Value) (Value, error) {
	if int(f) >= len(mathFuncs) {
		return nil, &OpError{Msg: fmt.Sprintf("unknown math function %d", f)}
	}
	x, err := numeric(f.Name(), v)
	if err != nil {
		return nil, err
	}
	out := NewMatrix(x.Rows, x.Cols, nil)
	fn := mathFuncs[f].fn
	for i, p := range x.Data {
		out.Data[i] = fn(p)
	}
	return out, nil
}
