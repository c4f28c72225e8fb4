package vm

import (
	"fmt"

	"github.com/chbinousamy/octave/pkg/value"
)

// CellKind is the discriminant of a stack or slot cell.
type CellKind uint8

const (
	// CellValue holds a dynamic value; a nil value is "undefined".
	CellValue CellKind = iota
	// CellInt holds a native integer: loop counts and cursors, stack marks.
	CellInt
	// CellRef binds a slot to global or persistent storage.
	CellRef
	// CellError carries a pending error into an unwind_protect cleanup.
	CellError
	// CellJump carries a pending non-local jump target into a cleanup.
	CellJump
)

func (k CellKind) String() string {
	switch k {
	case CellValue:
		return "value"
	case CellInt:
		return "int"
	case CellRef:
		return "ref"
	case CellError:
		return "error"
	case CellJump:
		return "jump"
	}
	return fmt.Sprintf("CellKind(%d)", uint8(k))
}

// Cell is one element of the value stack. Exactly one payload is active,
// selected by Kind; consumers assert the kind they expect and fault on a
// mismatch instead of reinterpreting the cell.
type Cell struct {
	Kind CellKind
	v    value.Value
	n    int
	ref  *Ref
	err  *Error
}

func valueCell(v value.Value) Cell { return Cell{Kind: CellValue, v: v} }
func intCell(n int) Cell           { return Cell{Kind: CellInt, n: n} }
func refCell(r *Ref) Cell          { return Cell{Kind: CellRef, ref: r} }
func errorCell(e *Error) Cell      { return Cell{Kind: CellError, err: e} }
func jumpCell(target int) Cell     { return Cell{Kind: CellJump, n: target} }

// cellKindError is panicked by accessors and converted to a *Fault with
// the current instruction's location by the dispatch loop.
type cellKindError struct {
	want, got CellKind
}

func (e cellKindError) Error() string {
	return fmt.Sprintf("expected %s cell, found %s", e.want, e.got)
}

func (c Cell) expect(k CellKind) {
	if c.Kind != k {
		panic(cellKindError{want: k, got: c.Kind})
	}
}

// Value returns the dynamic value of a CellValue.
func (c Cell) Value() value.Value {
	c.expect(CellValue)
	return c.v
}

// Int returns the integer of a CellInt.
func (c Cell) Int() int {
	c.expect(CellInt)
	return c.n
}

// Ref returns the storage binding of a CellRef.
func (c Cell) Ref() *Ref {
	c.expect(CellRef)
	return c.ref
}

// Err returns the pending error of a CellError.
func (c Cell) Err() *Error {
	c.expect(CellError)
	return c.err
}

// Target returns the pending jump target of a CellJump.
func (c Cell) Target() int {
	c.expect(CellJump)
	return c.n
}

func (c Cell) String() string {
	switch c.Kind {
	case CellValue:
		return value.Format(c.v)
	case CellInt:
		return fmt.Sprintf("int(%d)", c.n)
	case CellRef:
		return "ref(" + c.ref.name + ")"
	case CellError:
		return "error(" + c.err.Message() + ")"
	case CellJump:
		return fmt.Sprintf("jump(%04X)", c.n)
	}
	return c.Kind.String()
}
