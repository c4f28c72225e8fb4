package vm

import (
	"github.com/chbinousamy/octave/pkg/bytecode"
	"github.com/chbinousamy/octave/pkg/value"
)

func (v *VM) slotCell(f *frame, s int) *Cell {
	if s < 0 || s >= f.unit.NumSlots {
		fault("slot %d out of range (%d slots)", s, f.unit.NumSlots)
	}
	return &v.stack.cells[f.base+s]
}

// load reads slot s, following a global or persistent binding. Undefined
// reads as nil.
func (v *VM) load(f *frame, s int) value.Value {
	c := v.slotCell(f, s)
	if c.Kind == CellRef {
		return c.ref.Load()
	}
	return c.Value()
}

// mustLoad reads slot s, failing if it is undefined.
func (v *VM) mustLoad(f *frame, s int) (value.Value, error) {
	x := v.load(f, s)
	if x == nil {
		return nil, newError(ErrIDUndefined, f.unit.SlotName(s), nil)
	}
	return x, nil
}

func (v *VM) store(f *frame, s int, x value.Value) {
	c := v.slotCell(f, s)
	if c.Kind == CellRef {
		c.ref.Store(x)
		return
	}
	*c = valueCell(x)
}

func (v *VM) constant(f *frame, i int) value.Value {
	c, ok := f.unit.Const(i)
	if !ok {
		fault("constant %d out of range (%d constants)", i, len(f.unit.Constants))
	}
	return c
}

func (v *VM) name(f *frame, i int) string {
	n, ok := f.unit.NameAt(i)
	if !ok {
		fault("name %d out of range (%d names)", i, len(f.unit.Names))
	}
	return n
}

// intsConst reads a constant holding a row of integers: ASSIGNN targets,
// chain descriptors, row lengths, ignored outputs.
func (v *VM) intsConst(f *frame, i int) []int {
	m, ok := v.constant(f, i).(*value.Matrix)
	if !ok {
		fault("constant %d is not an integer row", i)
	}
	out := make([]int, len(m.Data))
	for j, d := range m.Data {
		out[j] = int(d)
	}
	return out
}

// globalInit binds slot s to shared storage.
func (v *VM) globalInit(f *frame, kind bytecode.GlobalKind, s int) {
	u := f.unit
	name := u.SlotName(s)
	var r *Ref
	switch kind {
	case bytecode.GlobalShared:
		r = v.opts.Storage.Global(name)
	case bytecode.GlobalPersistent:
		idx, ok := u.PersistentSlot(s)
		if !ok {
			idx = s
		}
		r = v.opts.Storage.Persistent(u.Name, u.File, idx, name)
	default:
		fault("GLOBAL_INIT: bad kind %d", kind)
	}
	*v.slotCell(f, s) = refCell(r)
}

// assignN distributes the cs-list on top of the stack over target slots;
// -1 marks an ignored position.
func (v *VM) assignN(f *frame, targets []int) error {
	x := v.stack.popValue()
	vals := value.Flatten([]value.Value{x})
	need := 0
	for i, t := range targets {
		if t >= 0 {
			need = i + 1
		}
	}
	if len(vals) < need {
		return newError(ErrInvalidNumelRHS, "", nil)
	}
	for i, t := range targets {
		if t >= 0 && vals[i] == nil {
			return newError(ErrIDUndefinedN, f.unit.SlotName(t), nil)
		}
	}
	for i, t := range targets {
		if t >= 0 {
			v.store(f, t, vals[i])
		}
	}
	return nil
}

// subassign replaces part of the variable in slot s. The variable is
// rebuilt and stored back in one step.
func (v *VM) subassign(f *frame, s int, kind value.IndexKind, args []value.Value, x value.Value) error {
	cur := v.load(f, s)
	if h, ok := cur.(*value.Handle); ok && kind == value.IndexParen {
		return errorf("invalid use of a function handle %s in indexed assignment", h)
	}
	r, err := value.Assign(cur, kind, args, x)
	if err != nil {
		return err
	}
	v.store(f, s, r)
	return nil
}

// subassignChained handles id<step><step>... = rhs. desc holds (type,
// nargs) pairs; the stack holds every step's arguments in order, then
// the right-hand side. Intermediate containers are read without
// failing on missing parts, then rebuilt from the innermost outwards.
func (v *VM) subassignChained(f *frame, s int, desc []int) error {
	if len(desc) == 0 || len(desc)%2 != 0 {
		fault("SUBASSIGN_CHAINED: bad descriptor of length %d", len(desc))
	}
	x, err := rhs(v.stack.popValue(), f.unit.SlotName(s))
	if err != nil {
		return err
	}
	steps := len(desc) / 2
	kinds := make([]value.IndexKind, steps)
	total := 0
	for i := 0; i < steps; i++ {
		kinds[i] = chainKind(desc[2*i])
		total += desc[2*i+1]
	}
	all := v.stack.popValues(total)
	args := make([][]value.Value, steps)
	for i := 0; i < steps; i++ {
		n := desc[2*i+1]
		args[i], all = all[:n], all[n:]
	}

	containers := make([]value.Value, steps)
	containers[0] = v.load(f, s)
	for i := 0; i < steps-1; i++ {
		c, err := value.IndexForAssign(containers[i], kinds[i], args[i])
		if err != nil {
			return err
		}
		containers[i+1] = c
	}
	cur := x
	for i := steps - 1; i >= 0; i-- {
		cur, err = value.Assign(containers[i], kinds[i], args[i], cur)
		if err != nil {
			return err
		}
	}
	v.store(f, s, cur)
	return nil
}

// collectOutputs builds the return values of f for RET.
func (v *VM) collectOutputs(f *frame) ([]value.Value, error) {
	u := f.unit
	fixed := u.NumOutputs
	if u.VarargOut {
		fixed--
	}
	outs := make([]value.Value, 0, u.NumOutputs)
	for s := 0; s < fixed; s++ {
		outs = append(outs, v.load(f, s))
	}
	if u.VarargOut {
		switch t := v.load(f, fixed).(type) {
		case nil:
		case *value.Cell:
			outs = append(outs, t.Elems...)
		default:
			return nil, errorf("varargout must be a cell array object")
		}
	}
	if f.nargout <= 1 {
		if len(outs) == 0 || outs[0] == nil {
			return nil, nil
		}
		return outs[:1], nil
	}
	if f.nargout > len(outs) {
		return nil, errorf("%s: function called with too many outputs", u.Name)
	}
	return outs[:f.nargout], nil
}
