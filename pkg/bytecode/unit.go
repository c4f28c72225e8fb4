package bytecode

import (
	"fmt"
	"slices"

	"github.com/chbinousamy/octave/pkg/value"
)

// Unit is a compiled function or script body. It is built once, is never
// mutated afterwards, and may be executed any number of times, possibly
// from several goroutines at once.
//
// Slot layout is fixed: output slots come first, then input slots, then
// locals. With VarargOut the last output slot is varargout; with VarargIn
// the last input slot is varargin.
type Unit struct {
	Name string
	File string

	Code      []byte
	Constants []value.Value
	// Names holds the slot names followed by any other identifiers the
	// code refers to (field names, function names).
	Names    []string
	NumSlots int

	NumOutputs int
	NumInputs  int
	VarargOut  bool
	VarargIn   bool

	Unwind   []UnwindEntry
	Locs     []LocEntry
	ArgNames []ArgNameEntry
	// PersistentSlots maps a slot declared persistent to its index in
	// the unit's persistent storage. Absent slots are plain locals.
	PersistentSlots map[int]int
}

// UnitName implements value.Code so units can back anonymous handles.
func (u *Unit) UnitName() string { return u.Name }

// SlotName returns the declared name of slot s.
func (u *Unit) SlotName(s int) string {
	if s >= 0 && s < u.NumSlots && s < len(u.Names) {
		return u.Names[s]
	}
	return fmt.Sprintf("<slot %d>", s)
}

// NameAt returns name-pool entry i.
func (u *Unit) NameAt(i int) (string, bool) {
	if i < 0 || i >= len(u.Names) {
		return "", false
	}
	return u.Names[i], true
}

// Const returns constant-pool entry i.
func (u *Unit) Const(i int) (value.Value, bool) {
	if i < 0 || i >= len(u.Constants) {
		return nil, false
	}
	return u.Constants[i], true
}

// SlotIndex returns the slot holding the named variable, or -1.
func (u *Unit) SlotIndex(name string) int {
	for i := 0; i < u.NumSlots && i < len(u.Names); i++ {
		if u.Names[i] == name {
			return i
		}
	}
	return -1
}

// InputSlot returns the slot of input i (zero-based).
func (u *Unit) InputSlot(i int) int { return u.NumOutputs + i }

// CodeSize returns the instruction stream length in bytes.
func (u *Unit) CodeSize() int { return len(u.Code) }

// PersistentSlot returns the persistent storage index of slot s.
func (u *Unit) PersistentSlot(s int) (int, bool) {
	i, ok := u.PersistentSlots[s]
	return i, ok
}

// Validate checks the structural invariants a well-formed unit holds:
// every instruction decodes, operands index into the pools, jump targets
// land on instruction boundaries, and metadata ranges are ordered.
func (u *Unit) Validate() error {
	if u.NumSlots < u.NumOutputs+u.NumInputs {
		return fmt.Errorf("unit %s: %d slots cannot hold %d outputs and %d inputs",
			u.Name, u.NumSlots, u.NumOutputs, u.NumInputs)
	}
	if u.NumSlots > len(u.Names) {
		return fmt.Errorf("unit %s: %d slots but only %d names", u.Name, u.NumSlots, len(u.Names))
	}
	starts := map[int]bool{}
	var targets []int
	err := Walk(u.Code, func(ip int, in Instruction) bool {
		starts[ip] = true
		if t, ok := in.Target(); ok {
			targets = append(targets, t)
		}
		return true
	})
	if err != nil {
		return fmt.Errorf("unit %s: %w", u.Name, err)
	}
	starts[len(u.Code)] = true
	var operr error
	_ = Walk(u.Code, func(ip int, in Instruction) bool {
		for i, k := range GetOpcodeInfo(in.Op).Operands {
			v := in.Operands[i]
			switch {
			case k == OperandSlot && v >= u.NumSlots:
				operr = fmt.Errorf("unit %s: %04X %s: slot %d out of range", u.Name, ip, in.Op, v)
			case (k == OperandConst || k == OperandFarConst) && v >= len(u.Constants):
				operr = fmt.Errorf("unit %s: %04X %s: constant %d out of range", u.Name, ip, in.Op, v)
			case k == OperandName && v >= len(u.Names):
				operr = fmt.Errorf("unit %s: %04X %s: name %d out of range", u.Name, ip, in.Op, v)
			}
		}
		return operr == nil
	})
	if operr != nil {
		return operr
	}
	for _, t := range targets {
		if !starts[t] {
			return fmt.Errorf("unit %s: jump target %04X is not an instruction boundary", u.Name, t)
		}
	}
	for _, e := range u.Unwind {
		if e.Start > e.End || e.End > len(u.Code) || !starts[e.Target] {
			return fmt.Errorf("unit %s: bad unwind entry %v", u.Name, e)
		}
	}
	if !slices.IsSortedFunc(u.Locs, func(a, b LocEntry) int { return a.Start - b.Start }) {
		return fmt.Errorf("unit %s: location entries not sorted", u.Name)
	}
	if !slices.IsSortedFunc(u.ArgNames, func(a, b ArgNameEntry) int { return a.End - b.End }) {
		return fmt.Errorf("unit %s: argument name entries not sorted", u.Name)
	}
	return nil
}

// AnonTemplate is the constant-pool form of an anonymous function: its
// compiled body plus the names of the variables it captures from the
// defining frame.
type AnonTemplate struct {
	Unit     *Unit
	Captures []string
}

func (t *AnonTemplate) Class() string    { return "function_handle" }
func (t *AnonTemplate) Dims() (int, int) { return 1, 1 }
func (t *AnonTemplate) String() string   { return "@<template " + t.Unit.Name + ">" }

// GlobalKind selects the storage GLOBAL_INIT binds a slot to.
type GlobalKind uint8

const (
	GlobalShared     GlobalKind = 1 // global: process-wide, keyed by name
	GlobalPersistent GlobalKind = 2 // persistent: keyed by unit and remapped slot
)

func (k GlobalKind) String() string {
	switch k {
	case GlobalShared:
		return "global"
	case GlobalPersistent:
		return "persistent"
	}
	return fmt.Sprintf("GlobalKind(%d)", uint8(k))
}

// Chained sub-assignment step types, as stored in SUBASSIGN_CHAINED
// descriptors and INDEX_OBJ/SUBASSIGN_OBJ type operands.
const (
	ChainParen = 1
	ChainBrace = 2
	ChainField = 3

	// IndexObjMarkFlag in an INDEX_OBJ type operand means the nargs
	// operand names a slot holding a stack mark instead of a count.
	IndexObjMarkFlag = 0x80
)
