package value

import (
	"fmt"
	"math"
)

// IndexKind selects the indexing syntax.
type IndexKind uint8

const (
	IndexParen IndexKind = iota // a(i)
	IndexBrace                  // a{i}
	IndexField                  // a.name
)

func (k IndexKind) String() string {
	switch k {
	case IndexParen:
		return "()"
	case IndexBrace:
		return "{}"
	case IndexField:
		return "."
	}
	return fmt.Sprintf("IndexKind(%d)", uint8(k))
}

// IndexError reports an invalid or out-of-range index.
type IndexError struct {
	Msg string
}

func (e *IndexError) Error() string { return e.Msg }

func indexErrorf(format string, args ...any) error {
	return &IndexError{Msg: fmt.Sprintf(format, args...)}
}

// positions converts one index argument into zero-based positions
// against an extent. grow permits positions beyond the extent.
func positions(arg Value, extent int, grow bool) ([]int, error) {
	switch t := arg.(type) {
	case Colon:
		out := make([]int, extent)
		for i := range out {
			out[i] = i
		}
		return out, nil
	case *Matrix:
		if t.Logical {
			if len(t.Data) > extent && !grow {
				return nil, indexErrorf("index (%d): out of bound %d", len(t.Data), extent)
			}
			var out []int
			for i, d := range t.Data {
				if d != 0 {
					out = append(out, i)
				}
			}
			return out, nil
		}
		out := make([]int, len(t.Data))
		for i, d := range t.Data {
			if d != math.Trunc(d) {
				return nil, indexErrorf("subscript indices must be either positive integers or logicals (%g)", d)
			}
			if d < 1 {
				return nil, indexErrorf("index (%g): out of bound; value %g out of bound %d", d, d, extent)
			}
			if math.IsInf(d, 1) {
				return nil, indexErrorf("index (Inf): out of bound; value Inf out of bound %d", extent)
			}
			if d > float64(extent) {
				if !grow {
					return nil, indexErrorf("index (%.0f): out of bound %d", d, extent)
				}
				if d > MaxElements {
					return nil, fmt.Errorf("index (%.0f): %w", d, ErrOutOfMemory)
				}
			}
			out[i] = int(d) - 1
		}
		return out, nil
	case nil:
		return nil, fmt.Errorf("index: %w", ErrUndefined)
	}
	return nil, indexErrorf("subscript indices must be either positive integers or logicals (got %s)", arg.Class())
}

func argShape(arg Value, n int) (int, int) {
	if _, ok := arg.(Colon); ok {
		return n, 1
	}
	r, c := arg.Dims()
	if r*c != n {
		return 1, n
	}
	return r, c
}

// selection resolves index arguments against a rows x cols source into
// linear positions and the result shape.
func selection(rows, cols int, args []Value, grow bool) (pos []int, outR, outC, newR, newC int, err error) {
	newR, newC = rows, cols
	switch len(args) {
	case 0:
		n := rows * cols
		pos = make([]int, n)
		for i := range pos {
			pos[i] = i
		}
		return pos, rows, cols, rows, cols, nil
	case 1:
		pos, err = positions(args[0], rows*cols, grow)
		if err != nil {
			return
		}
		outR, outC = argShape(args[0], len(pos))
		if rows == 1 && outR*outC == len(pos) {
			outR, outC = 1, len(pos)
		} else if cols == 1 && rows > 1 {
			outR, outC = len(pos), 1
		}
		maxPos := -1
		for _, p := range pos {
			maxPos = max(maxPos, p)
		}
		if maxPos >= rows*cols {
			switch {
			case rows*cols == 0:
				newR, newC = 1, maxPos+1
			case rows == 1:
				newC = maxPos + 1
			case cols == 1:
				newR = maxPos + 1
			default:
				err = indexErrorf("Octave:index-out-of-bounds: A(I) = X: X must have the same size as I")
			}
		}
		if err == nil {
			err = checkElements(float64(newR) * float64(newC))
		}
		return
	case 2:
		var rp, cp []int
		rp, err = positions(args[0], rows, grow)
		if err != nil {
			return
		}
		cp, err = positions(args[1], cols, grow)
		if err != nil {
			return
		}
		for _, r := range rp {
			newR = max(newR, r+1)
		}
		for _, c := range cp {
			newC = max(newC, c+1)
		}
		if err = checkElements(float64(newR) * float64(newC)); err != nil {
			return
		}
		pos = make([]int, 0, len(rp)*len(cp))
		for _, c := range cp {
			for _, r := range rp {
				pos = append(pos, c*newR+r)
			}
		}
		return pos, len(rp), len(cp), newR, newC, nil
	}
	err = indexErrorf("only 1-D and 2-D indexing is supported (got %d subscripts)", len(args))
	return
}

// Index applies one indexing step to v.
func Index(v Value, kind IndexKind, args []Value) (Value, error) {
	args = Flatten(args)
	switch kind {
	case IndexField:
		return fieldOf(v, args)
	case IndexBrace:
		c, ok := v.(*Cell)
		if !ok {
			if v == nil {
				return nil, fmt.Errorf("'{' index: %w", ErrUndefined)
			}
			return nil, indexErrorf("'{' undefined for arguments of type '%s'", v.Class())
		}
		pos, _, _, _, _, err := selection(c.Rows, c.Cols, args, false)
		if err != nil {
			return nil, err
		}
		if len(pos) == 1 {
			return c.Elems[pos[0]], nil
		}
		out := make([]Value, len(pos))
		for i, p := range pos {
			out[i] = c.Elems[p]
		}
		return &CSList{Elems: out}, nil
	}
	switch t := v.(type) {
	case *Matrix:
		pos, r, c, _, _, err := selection(t.Rows, t.Cols, args, false)
		if err != nil {
			return nil, err
		}
		out := NewMatrix(r, c, nil)
		out.Logical = t.Logical
		for i, p := range pos {
			out.Data[i] = t.Data[p]
		}
		return out, nil
	case *Str:
		pos, _, _, _, _, err := selection(min(1, len(t.S)), len(t.S), args, false)
		if err != nil {
			return nil, err
		}
		b := make([]byte, len(pos))
		for i, p := range pos {
			b[i] = t.S[p]
		}
		return String(string(b)), nil
	case *Cell:
		pos, r, c, _, _, err := selection(t.Rows, t.Cols, args, false)
		if err != nil {
			return nil, err
		}
		out := &Cell{Rows: r, Cols: c, Elems: make([]Value, len(pos))}
		for i, p := range pos {
			out.Elems[i] = t.Elems[p]
		}
		return out, nil
	case *Struct, *Object, *Handle:
		if _, _, _, _, _, err := selection(1, 1, args, false); err != nil {
			return nil, err
		}
		return v, nil
	case nil:
		return nil, fmt.Errorf("'(' index: %w", ErrUndefined)
	}
	return nil, indexErrorf("'(' undefined for arguments of type '%s'", v.Class())
}

func fieldName(args []Value) (string, error) {
	if len(args) != 1 {
		return "", indexErrorf("field access needs exactly one name")
	}
	s, ok := args[0].(*Str)
	if !ok {
		return "", indexErrorf("dynamic structure field names must be strings")
	}
	return s.S, nil
}

func fieldOf(v Value, args []Value) (Value, error) {
	name, err := fieldName(args)
	if err != nil {
		return nil, err
	}
	var s *Struct
	switch t := v.(type) {
	case *Struct:
		s = t
	case *Object:
		s = t.Props
	case nil:
		return nil, fmt.Errorf("field '%s': %w", name, ErrUndefined)
	default:
		return nil, indexErrorf("scalar cannot be indexed with .")
	}
	f, ok := s.Field(name)
	if !ok {
		return nil, indexErrorf("invalid use of undefined value (no field '%s')", name)
	}
	return f, nil
}

// IndexForAssign reads an intermediate container during a chained
// sub-assignment. Missing parts read as undefined instead of failing.
func IndexForAssign(v Value, kind IndexKind, args []Value) (Value, error) {
	if v == nil {
		return nil, nil
	}
	switch kind {
	case IndexField:
		name, err := fieldName(Flatten(args))
		if err != nil {
			return nil, err
		}
		switch t := v.(type) {
		case *Struct:
			f, _ := t.Field(name)
			return f, nil
		case *Object:
			f, _ := t.Props.Field(name)
			return f, nil
		}
	case IndexBrace:
		c, ok := v.(*Cell)
		if !ok {
			break
		}
		args = Flatten(args)
		pos, _, _, _, _, err := selection(c.Rows, c.Cols, args, true)
		if err != nil {
			return nil, err
		}
		if len(pos) == 1 && pos[0] < len(c.Elems) {
			return c.Elems[pos[0]], nil
		}
		return nil, nil
	}
	out, err := Index(v, kind, args)
	if _, ok := err.(*IndexError); ok {
		return nil, nil
	}
	return out, err
}

// Assign returns a copy of v with the indexed part replaced by rhs. An
// undefined v starts from the empty value the index kind implies.
func Assign(v Value, kind IndexKind, args []Value, rhs Value) (Value, error) {
	if rhs == nil {
		return nil, fmt.Errorf("assignment: %w", ErrUndefined)
	}
	args = Flatten(args)
	switch kind {
	case IndexField:
		name, err := fieldName(args)
		if err != nil {
			return nil, err
		}
		switch t := v.(type) {
		case nil:
			return NewStruct().With(name, rhs), nil
		case *Struct:
			return t.With(name, rhs), nil
		case *Object:
			return &Object{ClassName: t.ClassName, Props: t.Props.With(name, rhs)}, nil
		case *Matrix:
			if len(t.Data) == 0 {
				return NewStruct().With(name, rhs), nil
			}
		}
		return nil, indexErrorf("invalid use of a N_-D array in indexed assignment")
	case IndexBrace:
		var c *Cell
		switch t := v.(type) {
		case nil:
			c = &Cell{}
		case *Cell:
			c = t
		case *Matrix:
			if len(t.Data) != 0 {
				return nil, indexErrorf("matrix cannot be indexed with {")
			}
			c = &Cell{}
		default:
			return nil, indexErrorf("'{' undefined for arguments of type '%s'", v.Class())
		}
		pos, _, _, nr, nc, err := selection(c.Rows, c.Cols, args, true)
		if err != nil {
			return nil, err
		}
		out := growCell(c, nr, nc)
		for _, p := range pos {
			out.Elems[p] = rhs
		}
		return out, nil
	}
	switch t := v.(type) {
	case nil:
		if rc, ok := rhs.(*Cell); ok {
			return assignCell(&Cell{}, args, rc)
		}
		return assignMatrix(Empty(), args, rhs)
	case *Matrix:
		if rc, ok := rhs.(*Cell); ok && len(t.Data) == 0 {
			return assignCell(&Cell{}, args, rc)
		}
		return assignMatrix(t, args, rhs)
	case *Str:
		m, err := assignMatrix(t.codes(), args, rhs)
		if err != nil {
			return nil, err
		}
		if _, ok := rhs.(*Str); ok && m.(*Matrix).Rows <= 1 {
			mm := m.(*Matrix)
			b := make([]byte, len(mm.Data))
			for i, d := range mm.Data {
				b[i] = byte(d)
			}
			return String(string(b)), nil
		}
		return m, nil
	case *Cell:
		rc, ok := rhs.(*Cell)
		if !ok {
			return nil, indexErrorf("conversion to cell array from %s not possible; use '{' instead of '('", rhs.Class())
		}
		return assignCell(t, args, rc)
	}
	return nil, indexErrorf("'(' assignment undefined for '%s'", v.Class())
}

func assignMatrix(m *Matrix, args []Value, rhs Value) (Value, error) {
	src, err := numeric("=", rhs)
	if err != nil {
		return nil, err
	}
	pos, _, _, nr, nc, err := selection(m.Rows, m.Cols, args, true)
	if err != nil {
		return nil, err
	}
	if !src.IsScalar() && len(src.Data) != len(pos) {
		return nil, &OpError{Op: "=", Msg: fmt.Sprintf("nonconformant arguments (op1 is %d elements, op2 is %dx%d)", len(pos), src.Rows, src.Cols)}
	}
	out := growMatrix(m, nr, nc)
	out.Logical = m.Logical && src.Logical || (len(m.Data) == 0 && src.Logical)
	for i, p := range pos {
		if src.IsScalar() {
			out.Data[p] = src.Data[0]
		} else {
			out.Data[p] = src.Data[i]
		}
	}
	return out, nil
}

func assignCell(c *Cell, args []Value, rhs *Cell) (Value, error) {
	pos, _, _, nr, nc, err := selection(c.Rows, c.Cols, args, true)
	if err != nil {
		return nil, err
	}
	if len(rhs.Elems) != 1 && len(rhs.Elems) != len(pos) {
		return nil, &OpError{Op: "=", Msg: "nonconformant cell assignment"}
	}
	out := growCell(c, nr, nc)
	for i, p := range pos {
		if len(rhs.Elems) == 1 {
			out.Elems[p] = rhs.Elems[0]
		} else {
			out.Elems[p] = rhs.Elems[i]
		}
	}
	return out, nil
}

func growMatrix(m *Matrix, nr, nc int) *Matrix {
	if nr == m.Rows && nc == m.Cols {
		return m.clone()
	}
	out := NewMatrix(nr, nc, nil)
	for c := 0; c < m.Cols; c++ {
		for r := 0; r < m.Rows; r++ {
			out.Data[c*nr+r] = m.At(r, c)
		}
	}
	return out
}

func growCell(c *Cell, nr, nc int) *Cell {
	if nr == c.Rows && nc == c.Cols {
		return c.clone()
	}
	out := NewCell(nr, nc)
	for col := 0; col < c.Cols; col++ {
		for r := 0; r < c.Rows; r++ {
			out.Elems[col*nr+r] = c.Elems[col*c.Rows+r]
		}
	}
	return out
}

// End returns the value of 'end' at subscript position pos of n for v.
func End(v Value, pos, n int) (float64, error) {
	if v == nil {
		return 0, fmt.Errorf("'end': %w", ErrUndefined)
	}
	r, c := v.Dims()
	switch {
	case n == 1:
		return float64(r * c), nil
	case pos == 0:
		return float64(r), nil
	case pos == 1:
		return float64(c), nil
	}
	return 1, nil
}
