package vm

import (
	"sort"
	"sync"

	"github.com/chbinousamy/octave/pkg/value"
)

// Storage holds global and persistent variables. It is the only state
// shared between executions, so every access goes through its mutex.
type Storage struct {
	mu         sync.Mutex
	globals    map[string]*Ref
	persistent map[persistentKey]*Ref
}

type persistentKey struct {
	unit, file string
	index      int
}

// Ref is one global or persistent variable. A slot bound to it reads and
// writes through the Ref.
type Ref struct {
	s    *Storage
	name string
	v    value.Value
}

// NewStorage returns empty storage.
func NewStorage() *Storage {
	return &Storage{
		globals:    make(map[string]*Ref),
		persistent: make(map[persistentKey]*Ref),
	}
}

// Global returns the global variable name, creating it as [] if needed.
func (s *Storage) Global(name string) *Ref {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.globals[name]
	if !ok {
		r = &Ref{s: s, name: name, v: value.Empty()}
		s.globals[name] = r
	}
	return r
}

// Persistent returns persistent variable index of the given unit,
// creating it as [] if needed.
func (s *Storage) Persistent(unit, file string, index int, name string) *Ref {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := persistentKey{unit: unit, file: file, index: index}
	r, ok := s.persistent[k]
	if !ok {
		r = &Ref{s: s, name: name, v: value.Empty()}
		s.persistent[k] = r
	}
	return r
}

// GlobalNames returns the names of all globals, sorted.
func (s *Storage) GlobalNames() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.globals))
	for n := range s.globals {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// ClearGlobals removes all globals. Slots already bound keep their Ref.
func (s *Storage) ClearGlobals() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.globals = make(map[string]*Ref)
}

// Load returns the current value.
func (r *Ref) Load() value.Value {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.v
}

// Store replaces the value.
func (r *Ref) Store(v value.Value) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.v = v
}

// Name returns the variable name.
func (r *Ref) Name() string { return r.name }
