package bytecode

import (
	"encoding/binary"
	"fmt"
	"slices"

	"github.com/chbinousamy/octave/pkg/value"
)

// Layout declares a unit's slots. Slots are numbered outputs first, then
// inputs, then locals.
type Layout struct {
	Outputs   []string
	Inputs    []string
	Locals    []string
	VarargOut bool
	VarargIn  bool
}

// Builder assembles a Unit instruction by instruction. It is the emit
// side used by the assembler and by tests; it does not know the source
// language.
type Builder struct {
	unit   Unit
	slots  int
	names  map[string]int
	consts []value.Value
	err    error
}

// NewBuilder starts a unit with the given slot layout.
func NewBuilder(name string, l Layout) *Builder {
	b := &Builder{names: map[string]int{}}
	b.unit.Name = name
	b.unit.NumOutputs = len(l.Outputs)
	b.unit.NumInputs = len(l.Inputs)
	b.unit.VarargOut = l.VarargOut
	b.unit.VarargIn = l.VarargIn
	for _, group := range [][]string{l.Outputs, l.Inputs, l.Locals} {
		for _, s := range group {
			b.names[s] = len(b.unit.Names)
			b.unit.Names = append(b.unit.Names, s)
		}
	}
	b.slots = len(b.unit.Names)
	b.unit.NumSlots = b.slots
	return b
}

// SetFile records the source file name.
func (b *Builder) SetFile(file string) { b.unit.File = file }

// Slot returns the slot of a declared variable.
func (b *Builder) Slot(name string) int {
	if i, ok := b.names[name]; ok && i < b.slots {
		return i
	}
	b.fail(fmt.Errorf("builder %s: undeclared slot %q", b.unit.Name, name))
	return 0
}

// Name returns the name-pool index of s, adding it if needed. Slot names
// are reused.
func (b *Builder) Name(s string) int {
	if i, ok := b.names[s]; ok {
		return i
	}
	i := len(b.unit.Names)
	b.names[s] = i
	b.unit.Names = append(b.unit.Names, s)
	return i
}

// AddConstant adds v to the constant pool and returns its index.
func (b *Builder) AddConstant(v value.Value) int {
	b.consts = append(b.consts, v)
	return len(b.consts) - 1
}

// Persistent marks slot s as persistent with storage index idx.
func (b *Builder) Persistent(s, idx int) {
	if b.unit.PersistentSlots == nil {
		b.unit.PersistentSlots = map[int]int{}
	}
	b.unit.PersistentSlots[s] = idx
}

// CurrentOffset returns the ip the next instruction will have.
func (b *Builder) CurrentOffset() int { return len(b.unit.Code) }

// Emit appends an instruction and returns its ip. A WIDE prefix is added
// automatically when a slot, constant or name operand exceeds one byte.
func (b *Builder) Emit(op Opcode, operands ...int) int {
	ip := len(b.unit.Code)
	if len(operands) != len(GetOpcodeInfo(op).Operands) {
		b.fail(fmt.Errorf("builder %s: %s takes %d operands, got %d",
			b.unit.Name, op, len(GetOpcodeInfo(op).Operands), len(operands)))
		return ip
	}
	code, err := Inst(op, operands...).AppendTo(b.unit.Code)
	if err != nil {
		b.fail(fmt.Errorf("builder %s: %w", b.unit.Name, err))
		return ip
	}
	b.unit.Code = code
	return ip
}

// EmitConstant emits LOAD_CST (or LOAD_FAR_CST for large pools) for v.
func (b *Builder) EmitConstant(v value.Value) int {
	c := b.AddConstant(v)
	if c > 0xFFFF {
		return b.Emit(OpLoadFarCst, c)
	}
	return b.Emit(OpLoadCst, c)
}

// EmitJump emits a jump with a placeholder target and returns the offset
// of the target field for PatchJump. Operands other than the target are
// passed in order.
func (b *Builder) EmitJump(op Opcode, operands ...int) int {
	kinds := GetOpcodeInfo(op).Operands
	full := make([]int, 0, len(kinds))
	rest := operands
	tpos := -1
	for i, k := range kinds {
		if k == OperandTarget {
			tpos = i
			full = append(full, 0xFFFF)
			continue
		}
		if len(rest) == 0 {
			b.fail(fmt.Errorf("builder %s: %s missing operand", b.unit.Name, op))
			return 0
		}
		full = append(full, rest[0])
		rest = rest[1:]
	}
	if tpos < 0 {
		b.fail(fmt.Errorf("builder %s: %s is not a jump", b.unit.Name, op))
		return 0
	}
	ip := b.Emit(op, full...)
	in, _, err := Decode(b.unit.Code, ip)
	if err != nil {
		b.fail(err)
		return 0
	}
	off := ip + 1
	if in.Wide {
		off++
	}
	for i := 0; i < tpos; i++ {
		off += kinds[i].Width(in.Wide)
	}
	return off
}

// PatchJump sets the target at field offset to the current offset.
func (b *Builder) PatchJump(field int) {
	b.PatchJumpTo(field, len(b.unit.Code))
}

// PatchJumpTo sets the target at field offset to target.
func (b *Builder) PatchJumpTo(field, target int) {
	if field+2 > len(b.unit.Code) || target > 0xFFFF {
		b.fail(fmt.Errorf("builder %s: bad jump patch at %d -> %d", b.unit.Name, field, target))
		return
	}
	binary.BigEndian.PutUint16(b.unit.Code[field:], uint16(target))
}

// EmitLoop emits an unconditional jump back to loopStart.
func (b *Builder) EmitLoop(loopStart int) int {
	return b.Emit(OpJmp, loopStart)
}

// AddUnwind records an unwind region.
func (b *Builder) AddUnwind(e UnwindEntry) {
	b.unit.Unwind = append(b.unit.Unwind, e)
}

// AddLocation maps [start, end) to a source position.
func (b *Builder) AddLocation(start, end, line, col int) {
	b.unit.Locs = append(b.unit.Locs, LocEntry{Start: start, End: end, Line: line, Col: col})
}

// AddArgNames records argument expression texts for a call range.
func (b *Builder) AddArgNames(start, end int, callee string, args ...string) {
	b.unit.ArgNames = append(b.unit.ArgNames, ArgNameEntry{Start: start, End: end, Callee: callee, ArgNames: args})
}

func (b *Builder) fail(err error) {
	if b.err == nil {
		b.err = err
	}
}

// Err returns the first error recorded while building.
func (b *Builder) Err() error { return b.err }

// Build finishes the unit and validates it.
func (b *Builder) Build() (*Unit, error) {
	if b.err != nil {
		return nil, b.err
	}
	u := b.unit
	u.Code = append([]byte(nil), b.unit.Code...)
	u.Constants = append([]value.Value(nil), b.consts...)
	u.Names = append([]string(nil), b.unit.Names...)
	u.Unwind = append([]UnwindEntry(nil), b.unit.Unwind...)
	SortUnwind(u.Unwind)
	u.Locs = append([]LocEntry(nil), b.unit.Locs...)
	slices.SortFunc(u.Locs, func(a, b LocEntry) int { return a.Start - b.Start })
	u.ArgNames = append([]ArgNameEntry(nil), b.unit.ArgNames...)
	SortArgNames(u.ArgNames)
	if err := u.Validate(); err != nil {
		return nil, err
	}
	return &u, nil
}

// MustBuild is Build for tests and fixed units; it panics on error.
func (b *Builder) MustBuild() *Unit {
	u, err := b.Build()
	if err != nil {
		panic(err)
	}
	return u
}
