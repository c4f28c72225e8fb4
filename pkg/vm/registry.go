package vm

import (
	"sort"
	"sync"

	"github.com/chbinousamy/octave/pkg/bytecode"
	"github.com/chbinousamy/octave/pkg/value"
)

// Builtin is a function implemented in Go.
type Builtin func(cc *CallContext, args []value.Value, nargout int) ([]value.Value, error)

// Function is a callable: either a compiled unit or a builtin.
type Function struct {
	Name    string
	Unit    *bytecode.Unit
	Builtin Builtin
}

// Registry is a concurrency-safe Resolver backed by a map.
type Registry struct {
	mu    sync.RWMutex
	funcs map[string]*Function
}

// NewRegistry returns a registry holding the core builtins.
func NewRegistry() *Registry {
	r := &Registry{funcs: make(map[string]*Function)}
	for name, fn := range coreBuiltins {
		r.funcs[name] = &Function{Name: name, Builtin: fn}
	}
	return r
}

// Resolve implements Resolver.
func (r *Registry) Resolve(name string) (*Function, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.funcs[name]
	return fn, ok
}

// RegisterUnit makes a compiled unit callable under its name.
func (r *Registry) RegisterUnit(u *bytecode.Unit) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.funcs[u.Name] = &Function{Name: u.Name, Unit: u}
}

// RegisterBuiltin makes a Go function callable under name.
func (r *Registry) RegisterBuiltin(name string, fn Builtin) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.funcs[name] = &Function{Name: name, Builtin: fn}
}

// Names returns the registered names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.funcs))
	for n := range r.funcs {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
