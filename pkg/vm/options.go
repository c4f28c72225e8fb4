package vm

import (
	"context"
	"io"

	"github.com/chbinousamy/octave/pkg/bytecode"
	"github.com/chbinousamy/octave/pkg/value"
)

// Defaults for Options fields left zero.
const (
	DefaultMaxDepth     = 256
	DefaultPollInterval = 1024
)

// TreeEvaluator is the tree-walking evaluator that runs functions when the
// VM is switched off, and that evaluates code strings for EVAL.
type TreeEvaluator interface {
	Call(ctx context.Context, fn *Function, args []value.Value, nargout int) ([]value.Value, error)
	Eval(ctx context.Context, code string, nargout int) ([]value.Value, error)
}

// Resolver finds functions by name.
type Resolver interface {
	Resolve(name string) (*Function, bool)
}

// Tracer receives one call per executed instruction when tracing is on.
type Tracer func(unit *bytecode.Unit, ip int, in bytecode.Instruction, depth int)

// Options configures a VM. The VM never consults process-wide state: the
// VM/tree-walker switch, storage and output all arrive here.
type Options struct {
	// UseVM selects this engine for compiled units. When false, units are
	// handed to Fallback.
	UseVM bool
	// Fallback runs units when UseVM is false and evaluates EVAL strings.
	Fallback TreeEvaluator
	// Resolver finds called functions. Nil uses a registry holding only
	// the core builtins.
	Resolver Resolver
	// Storage holds globals and persistents. Nil allocates private
	// storage.
	Storage *Storage
	// Output receives DISP output. Nil discards it.
	Output io.Writer

	// MaxStack limits stack cells; exceeding it raises ErrBadAlloc.
	MaxStack int
	// MaxDepth limits nested calls.
	MaxDepth int
	// PollInterval is the number of instructions between interrupt polls,
	// in addition to HANDLE_SIGNALS and backward jumps.
	PollInterval int

	// Trace logs every instruction at debug level.
	Trace bool
	// Tracer, if set, is called for every instruction.
	Tracer Tracer
}

func (o Options) withDefaults() Options {
	if o.Resolver == nil {
		o.Resolver = NewRegistry()
	}
	if o.Storage == nil {
		o.Storage = NewStorage()
	}
	if o.Output == nil {
		o.Output = io.Discard
	}
	if o.MaxStack <= 0 {
		o.MaxStack = DefaultMaxStack
	}
	if o.MaxDepth <= 0 {
		o.MaxDepth = DefaultMaxDepth
	}
	if o.PollInterval <= 0 {
		o.PollInterval = DefaultPollInterval
	}
	return o
}
