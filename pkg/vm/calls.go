package vm

import (
	"context"

	"github.com/chbinousamy/octave/pkg/bytecode"
	"github.com/chbinousamy/octave/pkg/value"
)

// invoke calls fn on behalf of frame f.
func (v *VM) invoke(ctx context.Context, f *frame, fn *Function, args []value.Value, nargout int) ([]value.Value, error) {
	args = value.Flatten(args)
	if fn.Unit != nil {
		return v.callUnit(ctx, fn.Unit, args, nargout, nil, f)
	}
	if fn.Builtin == nil {
		return nil, errorf("%s: function has no body", fn.Name)
	}
	cc := &CallContext{
		VM:      v,
		Ctx:     ctx,
		Name:    fn.Name,
		Nargin:  len(args),
		Nargout: nargout,
		Ignored: v.takeIgnore(),
		frame:   f,
	}
	return fn.Builtin(cc, args, nargout)
}

// callName resolves name and calls it.
func (v *VM) callName(ctx context.Context, f *frame, name string, args []value.Value, nargout int) ([]value.Value, error) {
	fn, ok := v.opts.Resolver.Resolve(name)
	if !ok {
		return nil, newError(ErrIDUndefined, name, nil)
	}
	return v.invoke(ctx, f, fn, args, nargout)
}

// callHandle calls a function handle. Anonymous handles run their body
// with the captured variables bound.
func (v *VM) callHandle(ctx context.Context, f *frame, h *value.Handle, args []value.Value, nargout int) ([]value.Value, error) {
	if h.Body != nil {
		u, ok := h.Body.(*bytecode.Unit)
		if !ok {
			return nil, errorf("%s: handle body is not executable", h)
		}
		return v.callUnit(ctx, u, value.Flatten(args), nargout, h.Captured, f)
	}
	return v.callName(ctx, f, h.Name, args, nargout)
}

// pushSlotOrCall pushes the variable in slot s or, when it is undefined,
// calls the function of the same name without arguments.
func (v *VM) pushSlotOrCall(ctx context.Context, f *frame, s, nargout int) error {
	if x := v.load(f, s); x != nil {
		v.stack.pushValue(x)
		return nil
	}
	outs, err := v.callName(ctx, f, f.unit.SlotName(s), nil, nargout)
	if err != nil {
		return err
	}
	pushResults(v.stack, outs, nargout)
	return nil
}

// indexID indexes the variable in slot s or, when it is undefined, calls
// the function of the same name with args.
func (v *VM) indexID(ctx context.Context, f *frame, s int, kind value.IndexKind, args []value.Value, nargout int) error {
	x := v.load(f, s)
	if x == nil {
		name := f.unit.SlotName(s)
		if kind == value.IndexBrace {
			return newError(ErrIDUndefined, name, nil)
		}
		outs, err := v.callName(ctx, f, name, args, nargout)
		if err != nil {
			return err
		}
		pushResults(v.stack, outs, nargout)
		return nil
	}
	return v.indexValue(ctx, f, x, kind, args, nargout)
}

// indexValue applies one index step to x. Parenthesised arguments on a
// function handle call it.
func (v *VM) indexValue(ctx context.Context, f *frame, x value.Value, kind value.IndexKind, args []value.Value, nargout int) error {
	if h, ok := x.(*value.Handle); ok && kind == value.IndexParen {
		outs, err := v.callHandle(ctx, f, h, args, nargout)
		if err != nil {
			return err
		}
		pushResults(v.stack, outs, nargout)
		return nil
	}
	r, err := value.Index(x, kind, args)
	if err != nil {
		return err
	}
	v.stack.pushValue(r)
	return nil
}

// indexStructCall handles base.name(args): a property holding a handle is
// called, any other property is indexed, and a method of an object is
// called with the object as first argument.
func (v *VM) indexStructCall(ctx context.Context, f *frame, base value.Value, name string, args []value.Value, nargout int) error {
	if o, ok := base.(*value.Object); ok {
		if _, has := o.Props.Field(name); !has {
			outs, err := v.callName(ctx, f, name, append([]value.Value{o}, args...), nargout)
			if err != nil {
				return err
			}
			pushResults(v.stack, outs, nargout)
			return nil
		}
	}
	field, err := value.Index(base, value.IndexField, []value.Value{value.String(name)})
	if err != nil {
		return err
	}
	if _, ok := field.(*value.Handle); ok || len(args) > 0 {
		return v.indexValue(ctx, f, field, value.IndexParen, args, nargout)
	}
	v.stack.pushValue(field)
	return nil
}
