package vm

import (
	"errors"
	"fmt"
	"strings"

	"github.com/chbinousamy/octave/pkg/bytecode"
	"github.com/chbinousamy/octave/pkg/value"
)

// ErrorKind classifies why execution stopped abnormally. The set is
// closed; callers switch on it rather than on message text.
//
// An ErrorKind is itself an error, so errors.Is(err, vm.ErrIndex)
// matches any *Error of that kind.
type ErrorKind uint8

const (
	ErrInvalid         ErrorKind = iota // no error; zero value
	ErrIDUndefined                      // undefined identifier
	ErrIDUndefinedN                     // undefined identifier among several targets
	ErrIfUndefined                      // undefined value in a conditional
	ErrIndex                            // indexing failure
	ErrExecution                        // wrapped lower-level execution error, including error()
	ErrInterrupt                        // asynchronous interrupt
	ErrInvalidNumelRHS                  // wrong element count on a multi-assignment right-hand side
	ErrRHSUndefined                     // undefined value used as an assignment source
	ErrBadAlloc                         // allocation failure (stack exhausted)
	ErrExit                             // controlled program exit request
)

var kindNames = [...]string{
	ErrInvalid:         "invalid",
	ErrIDUndefined:     "undefined identifier",
	ErrIDUndefinedN:    "undefined identifier",
	ErrIfUndefined:     "undefined value in conditional",
	ErrIndex:           "index error",
	ErrExecution:       "execution error",
	ErrInterrupt:       "interrupt",
	ErrInvalidNumelRHS: "invalid number of elements on RHS",
	ErrRHSUndefined:    "undefined RHS",
	ErrBadAlloc:        "out of memory",
	ErrExit:            "exit",
}

func (k ErrorKind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("ErrorKind(%d)", uint8(k))
}

func (k ErrorKind) Error() string { return k.String() }

// Catchable reports whether a try/catch region may handle errors of this
// kind. Interrupts and exit requests only run unwind_protect cleanups.
func (k ErrorKind) Catchable() bool {
	return k != ErrInterrupt && k != ErrExit
}

// Identifier returns the message identifier a catch block sees.
func (k ErrorKind) Identifier() string {
	switch k {
	case ErrIDUndefined, ErrIDUndefinedN, ErrIfUndefined:
		return "Octave:undefined-function"
	case ErrIndex:
		return "Octave:index-out-of-bounds"
	case ErrInvalidNumelRHS, ErrRHSUndefined:
		return "Octave:undefined-function"
	case ErrBadAlloc:
		return "Octave:bad-alloc"
	}
	return ""
}

// Frame identifies one call in an error's call stack.
type Frame struct {
	Unit string
	File string
	Line int
	Col  int
}

func (f Frame) String() string {
	if f.Line == 0 {
		return f.Unit
	}
	return fmt.Sprintf("%s at line %d column %d", f.Unit, f.Line, f.Col)
}

// Error is the error record of an abnormal exit. It is built only when
// something actually fails.
type Error struct {
	Kind ErrorKind
	// Name is the offending identifier, if any.
	Name string
	// Cause is the lower-level error, if any.
	Cause error
	// Payload is the error object raised by error() or rethrow(), or
	// caught and rethrown.
	Payload value.Value
	// ExitStatus is set for ErrExit.
	ExitStatus int

	// Where the error was raised, and the calls it propagated through,
	// innermost first.
	Unit  string
	File  string
	IP    int
	Line  int
	Col   int
	Stack []Frame
}

func (e *Error) Error() string {
	return e.Message()
}

// Message returns the diagnostic text without location.
func (e *Error) Message() string {
	switch e.Kind {
	case ErrIDUndefined, ErrIDUndefinedN:
		return fmt.Sprintf("'%s' undefined", e.Name)
	case ErrIfUndefined:
		return "if: undefined value used in conditional expression"
	case ErrInterrupt:
		return "interrupted"
	case ErrInvalidNumelRHS:
		return "invalid number of elements on RHS of multiple assignment"
	case ErrRHSUndefined:
		if e.Name != "" {
			return fmt.Sprintf("value on right hand side of assignment to '%s' is undefined", e.Name)
		}
		return "value on right hand side of assignment is undefined"
	case ErrBadAlloc:
		return "out of memory or dimension too large for Octave's index type"
	case ErrExit:
		return fmt.Sprintf("exit requested with status %d", e.ExitStatus)
	}
	if _, msg, ok := value.ErrorMessage(e.Payload); ok {
		return msg
	}
	if e.Cause != nil {
		return e.Cause.Error()
	}
	return e.Kind.String()
}

// Identifier returns the message identifier of the error.
func (e *Error) Identifier() string {
	if id, _, ok := value.ErrorMessage(e.Payload); ok && id != "" {
		return id
	}
	return e.Kind.Identifier()
}

// Location formats where the error was raised.
func (e *Error) Location() string {
	var sb strings.Builder
	sb.WriteString(e.Unit)
	if e.Line > 0 {
		fmt.Fprintf(&sb, " at line %d column %d", e.Line, e.Col)
	}
	if e.File != "" {
		fmt.Fprintf(&sb, " (%s)", e.File)
	}
	return sb.String()
}

// Is matches the error's kind.
func (e *Error) Is(target error) bool {
	k, ok := target.(ErrorKind)
	return ok && k == e.Kind
}

func (e *Error) Unwrap() error { return e.Cause }

// Object returns the MException value a catch block binds.
func (e *Error) Object() value.Value {
	var err *value.Object
	if o, ok := e.Payload.(*value.Object); ok && o.ClassName == "MException" {
		if _, has := o.Props.Field("stack"); has {
			return o
		}
		// A thrown object gets the stack of the raise point. The payload
		// itself may be shared, so the stack goes on a copy.
		err = &value.Object{ClassName: o.ClassName, Props: o.Props}
	} else {
		err = value.NewError(e.Identifier(), e.Message())
	}
	if len(e.Stack) > 0 || e.Unit != "" {
		var frames []value.Value
		if e.Unit != "" {
			frames = append(frames, frameStruct(Frame{Unit: e.Unit, File: e.File, Line: e.Line, Col: e.Col}))
		}
		for _, f := range e.Stack {
			frames = append(frames, frameStruct(f))
		}
		err.Props = err.Props.With("stack", value.CellRow(frames...))
	}
	return err
}

func frameStruct(f Frame) value.Value {
	return value.NewStruct().
		With("name", value.String(f.Unit)).
		With("file", value.String(f.File)).
		With("line", value.Scalar(float64(f.Line))).
		With("column", value.Scalar(float64(f.Col)))
}

// ErrInternal matches every internal-consistency fault.
var ErrInternal = errors.New("vm: internal consistency failure")

// Fault is an internal-consistency failure: malformed bytecode or a cell
// of the wrong kind. It indicates a compiler/engine mismatch, never a user
// error, and no try/catch or unwind_protect region observes it.
type Fault struct {
	Unit  string
	IP    int
	Op    bytecode.Opcode
	Msg   string
	Cause error
}

func (f *Fault) Error() string {
	msg := f.Msg
	if f.Cause != nil {
		if msg != "" {
			msg += ": "
		}
		msg += f.Cause.Error()
	}
	return fmt.Sprintf("vm: internal error in %s at %04X (%s): %s", f.Unit, f.IP, f.Op, msg)
}

func (f *Fault) Is(target error) bool { return target == ErrInternal }

func (f *Fault) Unwrap() error { return f.Cause }

// newError builds an error of the given kind.
func newError(kind ErrorKind, name string, cause error) *Error {
	return &Error{Kind: kind, Name: name, Cause: cause}
}

// errorf builds an ErrExecution error from a message.
func errorf(format string, args ...any) *Error {
	return &Error{Kind: ErrExecution, Cause: fmt.Errorf(format, args...)}
}

// classify converts an error from the value layer (or a callee) into an
// *Error.
func classify(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	if errors.Is(err, value.ErrOutOfMemory) {
		return newError(ErrBadAlloc, "", err)
	}
	var ie *value.IndexError
	if errors.As(err, &ie) {
		return newError(ErrIndex, "", err)
	}
	return newError(ErrExecution, "", err)
}
