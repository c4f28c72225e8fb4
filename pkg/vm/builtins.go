package vm

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/chbinousamy/octave/pkg/value"
)

// CallContext is what a builtin sees of its caller.
type CallContext struct {
	VM      *VM
	Ctx     context.Context
	Name    string
	Nargin  int
	Nargout int
	// Ignored lists the 1-based outputs the caller discards.
	Ignored []int

	// frame is the calling frame; nil when called from Go.
	frame *frame
}

// Call calls a function value (a handle or a function name) from inside
// a builtin.
func (cc *CallContext) Call(fn value.Value, args []value.Value, nargout int) ([]value.Value, error) {
	switch t := fn.(type) {
	case *value.Handle:
		return cc.VM.callHandle(cc.Ctx, cc.frame, t, args, nargout)
	case *value.Str:
		return cc.VM.callName(cc.Ctx, cc.frame, t.S, args, nargout)
	}
	return nil, errorf("%s: FCN must be a function handle or name, not %s", cc.Name, value.ClassOf(fn))
}

var coreBuiltins = map[string]Builtin{
	"error":     builtinError,
	"rethrow":   builtinRethrow,
	"nargin":    builtinNargin,
	"nargout":   builtinNargout,
	"inputname": builtinInputname,
	"isargout":  builtinIsargout,
	"exit":      builtinExit,
	"numel":     builtinNumel,
	"isempty":   builtinIsempty,
	"class":     builtinClass,
	"feval":     builtinFeval,
}

var identifierPattern = regexp.MustCompile(`^[A-Za-z][\w-]*(:[\w-]+)+$`)

// error(template, ...), error(id, template, ...) or error(struct).
func builtinError(cc *CallContext, args []value.Value, _ int) ([]value.Value, error) {
	if len(args) == 0 {
		return nil, errorf("Invalid call to error")
	}
	if s, ok := args[0].(*value.Struct); ok {
		msg, _ := s.Field("message")
		id, _ := s.Field("identifier")
		return nil, &Error{Kind: ErrExecution, Payload: value.NewError(textOf(id), textOf(msg))}
	}
	tmpl, ok := args[0].(*value.Str)
	if !ok {
		return nil, errorf("error: FMT must be a string")
	}
	id := ""
	rest := args[1:]
	if len(rest) > 0 && identifierPattern.MatchString(tmpl.S) {
		id = tmpl.S
		t, ok := rest[0].(*value.Str)
		if !ok {
			return nil, errorf("error: FMT must be a string")
		}
		tmpl, rest = t, rest[1:]
	}
	return nil, &Error{Kind: ErrExecution, Payload: value.NewError(id, Sprintf(tmpl.S, rest))}
}

// rethrow(err) raises an error object or a struct with message and
// identifier fields again.
func builtinRethrow(cc *CallContext, args []value.Value, _ int) ([]value.Value, error) {
	if len(args) != 1 {
		return nil, errorf("Invalid call to rethrow")
	}
	switch t := args[0].(type) {
	case *value.Object:
		if t.ClassName == "MException" {
			return nil, &Error{Kind: ErrExecution, Payload: t}
		}
	case *value.Struct:
		msg, ok := t.Field("message")
		if !ok {
			return nil, errorf("rethrow: ERR must contain the field 'message'")
		}
		id, _ := t.Field("identifier")
		return nil, &Error{Kind: ErrExecution, Payload: value.NewError(textOf(id), textOf(msg))}
	}
	return nil, errorf("rethrow: ERR must be a struct")
}

func builtinNargin(cc *CallContext, args []value.Value, _ int) ([]value.Value, error) {
	return argCount(cc, args, "nargin", func(f *frame) int { return f.nargin }, func(fn *Function) int {
		n := fn.Unit.NumInputs
		if fn.Unit.VarargIn {
			n = -n
		}
		return n
	})
}

func builtinNargout(cc *CallContext, args []value.Value, _ int) ([]value.Value, error) {
	return argCount(cc, args, "nargout", func(f *frame) int { return f.nargout }, func(fn *Function) int {
		n := fn.Unit.NumOutputs
		if fn.Unit.VarargOut {
			n = -n
		}
		return n
	})
}

// argCount answers nargin/nargout for the calling frame, or for a named
// function's declaration, where a negative count means variable.
func argCount(cc *CallContext, args []value.Value, who string, live func(*frame) int, declared func(*Function) int) ([]value.Value, error) {
	if len(args) == 0 {
		if cc.frame == nil {
			return nil, errorf("%s: invalid use at top level", who)
		}
		return []value.Value{value.Scalar(float64(live(cc.frame)))}, nil
	}
	var name string
	switch t := args[0].(type) {
	case *value.Str:
		name = t.S
	case *value.Handle:
		if u, ok := t.Body.(value.Code); ok {
			name = u.UnitName()
		} else {
			name = t.Name
		}
	default:
		return nil, errorf("%s: FCN must be a string or function handle", who)
	}
	fn, ok := cc.VM.opts.Resolver.Resolve(name)
	if !ok {
		return nil, errorf("%s: invalid function name: %s", who, name)
	}
	if fn.Unit == nil {
		return []value.Value{value.Scalar(-1)}, nil
	}
	return []value.Value{value.Scalar(float64(declared(fn)))}, nil
}

// inputname(n) is the variable name the caller passed as argument n, or
// "" when the argument was not a plain variable.
func builtinInputname(cc *CallContext, args []value.Value, _ int) ([]value.Value, error) {
	if len(args) != 1 {
		return nil, errorf("Invalid call to inputname")
	}
	n, ok := value.ScalarValue(args[0])
	if !ok || n < 1 || n != float64(int(n)) {
		return nil, errorf("inputname: N must be a positive integer")
	}
	if cc.frame == nil || cc.frame.caller == nil {
		return nil, errorf("inputname: must be called from within a function")
	}
	f := cc.frame
	if int(n) > f.nargin {
		return nil, errorf("inputname: N is out of range for the number of function inputs")
	}
	ent, ok := f.caller.unit.ArgNamesAt(f.callIP)
	if !ok || int(n) > len(ent.ArgNames) {
		return []value.Value{value.String("")}, nil
	}
	return []value.Value{value.String(ent.ArgNames[int(n)-1])}, nil
}

// isargout(k) reports whether the caller uses output k.
func builtinIsargout(cc *CallContext, args []value.Value, _ int) ([]value.Value, error) {
	if len(args) != 1 {
		return nil, errorf("Invalid call to isargout")
	}
	if cc.frame == nil {
		return nil, errorf("isargout: invalid use at top level")
	}
	k, ok := value.ScalarValue(args[0])
	if !ok || k < 1 {
		return nil, errorf("isargout: K must be a positive integer")
	}
	f := cc.frame
	i := int(k) - 1
	used := i < max(f.nargout, 1) && (i >= len(f.ignored) || !f.ignored[i])
	return []value.Value{value.Bool(used)}, nil
}

func builtinExit(cc *CallContext, args []value.Value, _ int) ([]value.Value, error) {
	status := 0
	if len(args) > 0 {
		d, ok := value.ScalarValue(args[0])
		if !ok {
			return nil, errorf("exit: STATUS must be an integer")
		}
		status = int(d)
	}
	return nil, &Error{Kind: ErrExit, ExitStatus: status}
}

func builtinNumel(cc *CallContext, args []value.Value, _ int) ([]value.Value, error) {
	if len(args) != 1 {
		return nil, errorf("Invalid call to numel")
	}
	return []value.Value{value.Scalar(float64(value.Numel(args[0])))}, nil
}

func builtinIsempty(cc *CallContext, args []value.Value, _ int) ([]value.Value, error) {
	if len(args) != 1 {
		return nil, errorf("Invalid call to isempty")
	}
	return []value.Value{value.Bool(value.IsEmpty(args[0]))}, nil
}

func builtinClass(cc *CallContext, args []value.Value, _ int) ([]value.Value, error) {
	if len(args) != 1 {
		return nil, errorf("Invalid call to class")
	}
	return []value.Value{value.String(value.ClassOf(args[0]))}, nil
}

func builtinFeval(cc *CallContext, args []value.Value, nargout int) ([]value.Value, error) {
	if len(args) == 0 {
		return nil, errorf("Invalid call to feval")
	}
	return cc.Call(args[0], args[1:], nargout)
}

func textOf(v value.Value) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(*value.Str); ok {
		return s.S
	}
	return v.String()
}

// Sprintf formats a message template the way error() does: %d %i %f %g
// %e %s %% conversions with optional flags, width and precision, and the
// escapes \n \t \\. Extra conversions without arguments print nothing.
func Sprintf(tmpl string, args []value.Value) string {
	var sb strings.Builder
	next := func() (value.Value, bool) {
		if len(args) == 0 {
			return nil, false
		}
		a := args[0]
		args = args[1:]
		return a, true
	}
	for i := 0; i < len(tmpl); i++ {
		c := tmpl[i]
		if c == '\\' && i+1 < len(tmpl) {
			switch tmpl[i+1] {
			case 'n':
				sb.WriteByte('\n')
				i++
				continue
			case 't':
				sb.WriteByte('\t')
				i++
				continue
			case '\\':
				sb.WriteByte('\\')
				i++
				continue
			}
		}
		if c != '%' {
			sb.WriteByte(c)
			continue
		}
		j := i + 1
		for j < len(tmpl) && strings.IndexByte("-+ #0123456789.", tmpl[j]) >= 0 {
			j++
		}
		if j >= len(tmpl) {
			sb.WriteString(tmpl[i:])
			break
		}
		spec := tmpl[i+1 : j]
		verb := tmpl[j]
		i = j
		if verb == '%' {
			sb.WriteByte('%')
			continue
		}
		a, ok := next()
		if !ok {
			continue
		}
		switch verb {
		case 'd', 'i', 'u':
			if d, ok := value.ScalarValue(a); ok && d == float64(int64(d)) {
				sb.WriteString(fmt.Sprintf("%"+spec+"d", int64(d)))
			} else if ok {
				sb.WriteString(fmt.Sprintf("%"+spec+"g", d))
			} else {
				sb.WriteString(textOf(a))
			}
		case 'f', 'g', 'e', 'G', 'E':
			if d, ok := value.ScalarValue(a); ok {
				sb.WriteString(fmt.Sprintf("%"+spec+string(verb), d))
			} else {
				sb.WriteString(textOf(a))
			}
		case 's':
			if d, ok := value.ScalarValue(a); ok {
				sb.WriteString(fmt.Sprintf("%"+spec+"s", strconv.FormatFloat(d, 'g', -1, 64)))
			} else {
				sb.WriteString(fmt.Sprintf("%"+spec+"s", textOf(a)))
			}
		default:
			sb.WriteString(tmpl[i-len(spec)-1 : i+1])
		}
	}
	return sb.String()
}
