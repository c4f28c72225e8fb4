package vm

import "github.com/chbinousamy/octave/pkg/value"

// DefaultMaxStack is the default limit on stack cells for one execution.
const DefaultMaxStack = 1 << 20

// stack is the single growable array of cells shared by all frames of an
// execution. Each frame owns a contiguous sub-range: its slots followed by
// its operand stack.
type stack struct {
	cells []Cell
	sp    int
	limit int
	// floor is the operand base of the running frame; pops never go
	// below it.
	floor int
}

func newStack(limit int) *stack {
	if limit <= 0 {
		limit = DefaultMaxStack
	}
	return &stack{cells: make([]Cell, min(256, limit)), limit: limit}
}

// ensure makes room for n more cells, panicking with an ErrBadAlloc
// *Error past the limit. The dispatch loop recovers it.
func (s *stack) ensure(n int) {
	need := s.sp + n
	if need <= len(s.cells) {
		return
	}
	if need > s.limit {
		panic(newError(ErrBadAlloc, "", nil))
	}
	size := len(s.cells) * 2
	for size < need {
		size *= 2
	}
	size = min(size, s.limit)
	grown := make([]Cell, size)
	copy(grown, s.cells[:s.sp])
	s.cells = grown
}

func (s *stack) push(c Cell) {
	if s.sp == len(s.cells) {
		s.ensure(1)
	}
	s.cells[s.sp] = c
	s.sp++
}

func (s *stack) pushValue(v value.Value) { s.push(valueCell(v)) }

func (s *stack) pop() Cell {
	if s.sp <= s.floor {
		panic(stackUnderflow{})
	}
	s.sp--
	c := s.cells[s.sp]
	s.cells[s.sp] = Cell{}
	return c
}

func (s *stack) popValue() value.Value { return s.pop().Value() }

// popValues pops n values, returning them in push order.
func (s *stack) popValues(n int) []value.Value {
	if n > s.sp-s.floor {
		panic(stackUnderflow{})
	}
	out := make([]value.Value, n)
	for i := n - 1; i >= 0; i-- {
		out[i] = s.popValue()
	}
	return out
}

// peek returns the cell n below the top (0 is the top).
func (s *stack) peek(n int) *Cell {
	if n >= s.sp-s.floor {
		panic(stackUnderflow{})
	}
	return &s.cells[s.sp-1-n]
}

// truncate drops cells above depth sp.
func (s *stack) truncate(sp int) {
	if sp > s.sp || sp < s.floor {
		panic(stackUnderflow{})
	}
	clear(s.cells[sp:s.sp])
	s.sp = sp
}

// reserve pushes n undefined value cells and returns the index of the
// first.
func (s *stack) reserve(n int) int {
	s.ensure(n)
	base := s.sp
	for i := 0; i < n; i++ {
		s.cells[base+i] = valueCell(nil)
	}
	s.sp += n
	return base
}

type stackUnderflow struct{}

func (stackUnderflow) Error() string { return "operand stack underflow" }
