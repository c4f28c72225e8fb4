package vm

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/tliron/commonlog"

	"github.com/chbinousamy/octave/pkg/bytecode"
	"github.com/chbinousamy/octave/pkg/value"
)

var log = commonlog.GetLogger("octvm.vm")

// State is the execution state of a VM.
type State uint8

const (
	StateIdle State = iota
	StateRunning
	StateSuspendedOnCall
	StateUnwinding
	StateReturned
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateRunning:
		return "RUNNING"
	case StateSuspendedOnCall:
		return "SUSPENDED_ON_CALL"
	case StateUnwinding:
		return "UNWINDING"
	case StateReturned:
		return "RETURNED"
	case StateFailed:
		return "FAILED"
	}
	return fmt.Sprintf("State(%d)", uint8(s))
}

// VM executes compiled units. One VM runs one execution at a time: nested
// calls are recursive runs on the same stack. Independent executions
// need independent VMs; they may share a Storage.
type VM struct {
	opts   Options
	stack  *stack
	frames []*frame
	state  State

	// RunID identifies the current top-level call in logs.
	RunID uuid.UUID

	steps        int
	interrupted  atomic.Bool
	ctxDelivered bool

	// pendingIgnore holds the outputs ignored by the next call, set by
	// SET_IGNORE_OUTPUTS.
	pendingIgnore []int
}

// frame is one activation. Its slots are stack cells base..opBase-1 and
// its operand stack starts at opBase.
type frame struct {
	unit    *bytecode.Unit
	base    int
	opBase  int
	ip      int
	nargin  int
	nargout int
	// ignored[i] is set when the caller discards output i.
	ignored []bool

	caller *frame
	callIP int
}

// New returns a VM configured by opts.
func New(opts Options) *VM {
	opts = opts.withDefaults()
	return &VM{
		opts:  opts,
		stack: newStack(opts.MaxStack),
	}
}

// Options returns the VM's effective options.
func (v *VM) Options() Options { return v.opts }

// Storage returns the global and persistent storage the VM uses.
func (v *VM) Storage() *Storage { return v.opts.Storage }

// State returns the current execution state.
func (v *VM) State() State { return v.state }

// Depth returns the number of active frames.
func (v *VM) Depth() int { return len(v.frames) }

// Interrupt requests that the running execution stop at its next poll
// point with ErrInterrupt. It is safe to call from any goroutine.
func (v *VM) Interrupt() { v.interrupted.Store(true) }

// Call runs unit u with args, requesting nargout outputs. It is the
// top-level entry point: internal faults surface here as *Fault.
func (v *VM) Call(ctx context.Context, u *bytecode.Unit, args []value.Value, nargout int) (outs []value.Value, err error) {
	if err := v.begin(u.Name); err != nil {
		return nil, err
	}
	defer func() { v.finish(recover(), &err) }()
	return v.callUnit(ctx, u, args, nargout, nil, nil)
}

// CallFunction resolves name and calls it.
func (v *VM) CallFunction(ctx context.Context, name string, args []value.Value, nargout int) (outs []value.Value, err error) {
	fn, ok := v.opts.Resolver.Resolve(name)
	if !ok {
		return nil, newError(ErrIDUndefined, name, nil)
	}
	if fn.Unit != nil {
		return v.Call(ctx, fn.Unit, args, nargout)
	}
	if err := v.begin(name); err != nil {
		return nil, err
	}
	defer func() { v.finish(recover(), &err) }()
	return fn.Builtin(&CallContext{VM: v, Ctx: ctx, Name: name, Nargin: len(args), Nargout: nargout}, args, nargout)
}

// begin starts a top-level run of name.
func (v *VM) begin(name string) error {
	if len(v.frames) > 0 {
		return fmt.Errorf("vm: call to %s while %s is running; use CallContext.Call for nested calls", name, v.frames[0].unit.Name)
	}
	v.reset()
	log.Debugf("run %s: call %s", v.RunID, name)
	return nil
}

// finish ends a top-level run. r is whatever the run panicked with.
func (v *VM) finish(r any, err *error) {
	if r != nil {
		*err = v.recoverTop(r)
	}
	v.frames = v.frames[:0]
	v.stack.floor = 0
	v.stack.truncate(0)
	// An interrupt that arrived after the last poll point belongs to
	// this run, not the next one.
	v.interrupted.Store(false)
	if *err != nil {
		v.state = StateFailed
		log.Debugf("run %s: failed: %s", v.RunID, *err)
	} else {
		v.state = StateReturned
	}
}

func (v *VM) reset() {
	v.RunID = uuid.New()
	v.state = StateRunning
	v.steps = 0
	v.ctxDelivered = false
	v.pendingIgnore = nil
}

// recoverTop converts a panic that escaped every frame into an error.
func (v *VM) recoverTop(r any) error {
	var f *Fault
	switch t := r.(type) {
	case *Error:
		return t
	case *Fault:
		f = t
	case cellKindError:
		f = &Fault{Cause: t}
	case stackUnderflow:
		f = &Fault{Cause: t}
	default:
		panic(r)
	}
	if f.Unit == "" && len(v.frames) > 0 {
		top := v.frames[len(v.frames)-1]
		f.Unit = top.unit.Name
		f.IP = top.ip
		if top.ip < len(top.unit.Code) {
			f.Op = bytecode.Opcode(top.unit.Code[top.ip])
		}
	}
	log.Errorf("run %s: %s", v.RunID, f)
	return f
}

// fault aborts the whole execution with an internal-consistency failure.
func fault(format string, args ...any) {
	panic(&Fault{Msg: fmt.Sprintf(format, args...)})
}

// callUnit pushes a frame for u and runs it to completion.
func (v *VM) callUnit(ctx context.Context, u *bytecode.Unit, args []value.Value, nargout int, captured map[string]value.Value, caller *frame) ([]value.Value, error) {
	ignore := v.takeIgnore()
	if !v.opts.UseVM {
		if v.opts.Fallback == nil {
			return nil, errorf("%s: bytecode execution disabled and no evaluator configured", u.Name)
		}
		return v.opts.Fallback.Call(ctx, &Function{Name: u.Name, Unit: u}, args, nargout)
	}
	if len(v.frames) >= v.opts.MaxDepth {
		return nil, errorf("max_recursion_depth exceeded")
	}
	if len(args) > u.NumInputs && !u.VarargIn {
		return nil, errorf("%s: function called with too many inputs", u.Name)
	}
	if nargout > max(1, u.NumOutputs) && !u.VarargOut {
		return nil, errorf("%s: function called with too many outputs", u.Name)
	}

	base := v.stack.reserve(u.NumSlots)
	f := &frame{
		unit:    u,
		base:    base,
		opBase:  base + u.NumSlots,
		nargin:  len(args),
		nargout: nargout,
		caller:  caller,
	}
	if caller != nil {
		f.callIP = caller.ip
	}
	if len(ignore) > 0 {
		f.ignored = make([]bool, max(nargout, 1))
		for _, k := range ignore {
			if k >= 1 && k <= len(f.ignored) {
				f.ignored[k-1] = true
			}
		}
	}
	v.bindArgs(f, args)
	for name, val := range captured {
		if s := u.SlotIndex(name); s >= 0 {
			v.stack.cells[base+s] = valueCell(val)
		}
	}

	prevFloor := v.stack.floor
	v.frames = append(v.frames, f)
	v.stack.floor = f.opBase
	if caller != nil {
		v.state = StateSuspendedOnCall
	}
	log.Debugf("enter %s depth=%d base=%d", u.Name, len(v.frames), base)

	outs, err := v.run(ctx, f)

	v.frames = v.frames[:len(v.frames)-1]
	v.stack.floor = prevFloor
	v.stack.truncate(base)
	v.state = StateRunning
	log.Debugf("leave %s depth=%d", u.Name, len(v.frames))

	if err != nil {
		if e, ok := err.(*Error); ok && caller != nil {
			line, col, _ := caller.unit.Location(caller.ip)
			e.Stack = append(e.Stack, Frame{Unit: caller.unit.Name, File: caller.unit.File, Line: line, Col: col})
		}
		return nil, err
	}
	return outs, nil
}

func (v *VM) bindArgs(f *frame, args []value.Value) {
	u := f.unit
	fixed := u.NumInputs
	if u.VarargIn {
		fixed--
	}
	for i, a := range args {
		if i >= fixed {
			break
		}
		v.stack.cells[f.base+u.InputSlot(i)] = valueCell(a)
	}
	if u.VarargIn {
		var rest []value.Value
		if len(args) > fixed {
			rest = args[fixed:]
		}
		v.stack.cells[f.base+u.InputSlot(fixed)] = valueCell(value.CellRow(rest...))
	}
}

func (v *VM) takeIgnore() []int {
	ig := v.pendingIgnore
	v.pendingIgnore = nil
	return ig
}

// run executes f until RET or an error no region of f handles.
func (v *VM) run(ctx context.Context, f *frame) ([]value.Value, error) {
	for {
		outs, err := v.exec(ctx, f)
		if err == nil {
			return outs, nil
		}
		e := classify(err)
		if e.Unit == "" {
			e.Unit = f.unit.Name
			e.File = f.unit.File
			e.IP = f.ip
			e.Line, e.Col, _ = f.unit.Location(f.ip)
		}
		if !v.unwind(f, e) {
			return nil, e
		}
		v.state = StateRunning
	}
}

// unwind offers e to the regions enclosing f.ip, innermost first. Loop
// regions are transparent to errors; try/catch regions take catchable
// errors; unwind_protect regions take everything and rethrow it from
// THROW_IFERROBJ at the end of the cleanup.
func (v *VM) unwind(f *frame, e *Error) bool {
	v.state = StateUnwinding
	for _, ent := range f.unit.Enclosing(f.ip) {
		switch ent.Kind {
		case bytecode.UnwindTryCatch:
			if !e.Kind.Catchable() {
				continue
			}
			log.Debugf("%s: %s caught by %s", f.unit.Name, e.Kind, ent)
			v.stack.truncate(f.opBase + ent.Depth)
			v.stack.pushValue(e.Object())
			f.ip = ent.Target
			return true
		case bytecode.UnwindProtect:
			log.Debugf("%s: %s runs cleanup %s", f.unit.Name, e.Kind, ent)
			v.stack.truncate(f.opBase + ent.Depth)
			v.stack.push(errorCell(e))
			f.ip = ent.Target
			return true
		}
	}
	return false
}

// leave performs a non-local jump from -> to and returns where execution
// continues. The first unwind_protect region the jump crosses runs its
// cleanup first, with the jump pending.
func (v *VM) leave(f *frame, from, to int) int {
	exited := f.unit.Exited(from, to)
	for _, ent := range exited {
		if ent.Kind == bytecode.UnwindProtect {
			v.stack.truncate(f.opBase + ent.Depth)
			v.stack.push(jumpCell(to))
			return ent.Target
		}
	}
	if len(exited) > 0 {
		v.stack.truncate(f.opBase + exited[len(exited)-1].Depth)
	}
	return to
}

// poll reports a pending interrupt once.
func (v *VM) poll(ctx context.Context) *Error {
	if v.interrupted.Swap(false) {
		return newError(ErrInterrupt, "", nil)
	}
	if !v.ctxDelivered && ctx.Err() != nil {
		v.ctxDelivered = true
		return newError(ErrInterrupt, "", ctx.Err())
	}
	return nil
}
