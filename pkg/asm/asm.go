// Package asm assembles compiled units from a line-oriented text form or
// a YAML description, and prints units back in the text form.
//
// A text unit looks like:
//
//	.unit add1
//	.inputs x
//	.outputs y
//	.const 1
//	    PUSH_SLOT_NARGOUT1 x
//	    LOAD_CST 0
//	    ADD
//	    ASSIGN y
//	    RET
//
// Operands are written by kind: slots by variable name or number,
// constants by pool index or as an inline literal "=3", names as
// identifiers, jump targets as labels, counts as integers (GLOBAL_INIT,
// ASSIGN_COMPOUND and INDEX_ID1_MATHY_UFUN also accept their symbolic
// forms). A ";" starts a comment.
package asm

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/chbinousamy/octave/pkg/bytecode"
	"github.com/chbinousamy/octave/pkg/value"
)

// Source is the assembly-level description of one unit.
type Source struct {
	Name      string
	File      string
	Outputs   []string
	Inputs    []string
	Locals    []string
	VarargOut bool
	VarargIn  bool

	// Persistent maps slot names to persistent storage indexes.
	Persistent []Persistent
	Constants  []Constant
	Code       []CodeLine
	Unwind     []Region
	Locations  []Location
	ArgNames   []ArgNames

	// Line is where the unit starts in its input, for messages.
	Line int
}

// Persistent binds a slot to a persistent storage index.
type Persistent struct {
	Slot  string `yaml:"slot"`
	Index int    `yaml:"index"`
}

// Constant is a constant-pool entry: a literal value or an anonymous
// function template.
type Constant struct {
	Value value.Value
	Anon  *AnonRef
}

// AnonRef names the body of an anonymous function, either another unit
// of the same input or an inline source, and the variables it captures.
type AnonRef struct {
	Unit     string
	Source   *Source
	Captures []string
}

// CodeLine is one line of instruction text with its input line number.
type CodeLine struct {
	Text string
	Line int
}

// Region is an unwind region. Start, End and Target are labels or
// instruction offsets.
type Region struct {
	Kind   string `yaml:"kind"`
	Start  string `yaml:"start"`
	End    string `yaml:"end"`
	Target string `yaml:"target"`
	Depth  int    `yaml:"depth"`
}

// Location maps the instructions between two labels to a source position.
type Location struct {
	Start string `yaml:"start"`
	End   string `yaml:"end"`
	Line  int    `yaml:"line"`
	Col   int    `yaml:"col"`
}

// ArgNames records the argument texts of the call between two labels.
type ArgNames struct {
	Start  string   `yaml:"start"`
	End    string   `yaml:"end"`
	Callee string   `yaml:"callee"`
	Args   []string `yaml:"args"`
}

// Error is an assembly error at an input line.
type Error struct {
	Unit string
	Line int
	Msg  string
}

func (e *Error) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%s: line %d: %s", e.Unit, e.Line, e.Msg)
	}
	return fmt.Sprintf("%s: %s", e.Unit, e.Msg)
}

var unwindKinds = map[string]bytecode.UnwindKind{
	"loop":           bytecode.UnwindLoop,
	"try":            bytecode.UnwindTryCatch,
	"unwind_protect": bytecode.UnwindProtect,
}

// Assemble builds the unit described by src. Anonymous function bodies
// must be given inline; use AssembleAll to refer to sibling units.
func Assemble(src *Source) (*bytecode.Unit, error) {
	a := &assembler{sources: map[string]*Source{}, done: map[string]*bytecode.Unit{}, busy: map[string]bool{}}
	return a.assemble(src)
}

// AssembleAll builds every unit of one input. Units referenced as
// anonymous function bodies are bound into their templates and left out
// of the result; the others are returned in input order.
func AssembleAll(srcs []*Source) ([]*bytecode.Unit, error) {
	a := &assembler{sources: map[string]*Source{}, done: map[string]*bytecode.Unit{}, busy: map[string]bool{}}
	anon := map[string]bool{}
	for _, s := range srcs {
		if _, dup := a.sources[s.Name]; dup {
			return nil, &Error{Unit: s.Name, Line: s.Line, Msg: "duplicate unit"}
		}
		a.sources[s.Name] = s
		for _, c := range s.Constants {
			if c.Anon != nil && c.Anon.Source == nil {
				anon[c.Anon.Unit] = true
			}
		}
	}
	var units []*bytecode.Unit
	for _, s := range srcs {
		u, err := a.unit(s.Name)
		if err != nil {
			return nil, err
		}
		if !anon[s.Name] {
			units = append(units, u)
		}
	}
	return units, nil
}

type assembler struct {
	sources map[string]*Source
	done    map[string]*bytecode.Unit
	busy    map[string]bool
}

func (a *assembler) unit(name string) (*bytecode.Unit, error) {
	if u, ok := a.done[name]; ok {
		return u, nil
	}
	src, ok := a.sources[name]
	if !ok {
		return nil, fmt.Errorf("asm: unknown unit %q", name)
	}
	if a.busy[name] {
		return nil, fmt.Errorf("asm: unit %q contains itself", name)
	}
	a.busy[name] = true
	defer delete(a.busy, name)
	u, err := a.assemble(src)
	if err != nil {
		return nil, err
	}
	a.done[name] = u
	return u, nil
}

// unitAsm is the state for assembling one unit.
type unitAsm struct {
	src    *Source
	b      *bytecode.Builder
	labels map[string]int
	// fixups are jump target fields waiting for their label.
	fixups []fixup
}

type fixup struct {
	field int
	label string
	line  int
}

func (a *assembler) assemble(src *Source) (*bytecode.Unit, error) {
	ua := &unitAsm{
		src: src,
		b: bytecode.NewBuilder(src.Name, bytecode.Layout{
			Outputs:   src.Outputs,
			Inputs:    src.Inputs,
			Locals:    src.Locals,
			VarargOut: src.VarargOut,
			VarargIn:  src.VarargIn,
		}),
		labels: map[string]int{},
	}
	b := ua.b
	if src.File != "" {
		b.SetFile(src.File)
	}
	for _, p := range src.Persistent {
		s, err := ua.slot(p.Slot)
		if err != nil {
			return nil, ua.errorf(src.Line, "persistent: %v", err)
		}
		b.Persistent(s, p.Index)
	}
	for _, c := range src.Constants {
		if c.Anon == nil {
			b.AddConstant(c.Value)
			continue
		}
		var body *bytecode.Unit
		var err error
		if c.Anon.Source != nil {
			body, err = a.assemble(c.Anon.Source)
		} else {
			body, err = a.unit(c.Anon.Unit)
		}
		if err != nil {
			return nil, err
		}
		b.AddConstant(&bytecode.AnonTemplate{Unit: body, Captures: c.Anon.Captures})
	}

	for _, cl := range src.Code {
		if err := ua.line(cl); err != nil {
			return nil, err
		}
	}
	for _, fx := range ua.fixups {
		ip, err := ua.offset(fx.label)
		if err != nil {
			return nil, ua.errorf(fx.line, "%v", err)
		}
		b.PatchJumpTo(fx.field, ip)
	}

	for _, r := range src.Unwind {
		kind, ok := unwindKinds[r.Kind]
		if !ok {
			return nil, ua.errorf(src.Line, "unknown unwind kind %q", r.Kind)
		}
		start, end, err := ua.span(r.Start, r.End)
		if err != nil {
			return nil, ua.errorf(src.Line, "unwind: %v", err)
		}
		target, err := ua.offset(r.Target)
		if err != nil {
			return nil, ua.errorf(src.Line, "unwind: %v", err)
		}
		b.AddUnwind(bytecode.UnwindEntry{Start: start, End: end, Target: target, Depth: r.Depth, Kind: kind})
	}
	for _, l := range src.Locations {
		start, end, err := ua.span(l.Start, l.End)
		if err != nil {
			return nil, ua.errorf(src.Line, "line: %v", err)
		}
		b.AddLocation(start, end, l.Line, l.Col)
	}
	for _, an := range src.ArgNames {
		start, end, err := ua.span(an.Start, an.End)
		if err != nil {
			return nil, ua.errorf(src.Line, "argnames: %v", err)
		}
		b.AddArgNames(start, end, an.Callee, an.Args...)
	}

	u, err := b.Build()
	if err != nil {
		return nil, &Error{Unit: src.Name, Msg: err.Error()}
	}
	return u, nil
}

func (ua *unitAsm) errorf(line int, format string, args ...any) error {
	return &Error{Unit: ua.src.Name, Line: line, Msg: fmt.Sprintf(format, args...)}
}

// line assembles one code line: an optional "label:" followed by an
// optional instruction.
func (ua *unitAsm) line(cl CodeLine) error {
	fields, err := splitFields(cl.Text)
	if err != nil {
		return ua.errorf(cl.Line, "%v", err)
	}
	for len(fields) > 0 && strings.HasSuffix(fields[0], ":") {
		label := strings.TrimSuffix(fields[0], ":")
		if !isIdent(label) {
			return ua.errorf(cl.Line, "bad label %q", label)
		}
		if _, dup := ua.labels[label]; dup {
			return ua.errorf(cl.Line, "duplicate label %q", label)
		}
		ua.labels[label] = ua.b.CurrentOffset()
		fields = fields[1:]
	}
	if len(fields) == 0 {
		return nil
	}

	mnemonic := strings.ToUpper(fields[0])
	if mnemonic == "WIDE" {
		// Widening is chosen from the operand values.
		fields = fields[1:]
		if len(fields) == 0 {
			return ua.errorf(cl.Line, "WIDE without instruction")
		}
		mnemonic = strings.ToUpper(fields[0])
	}
	op, ok := bytecode.LookupOpcode(mnemonic)
	if !ok || op == bytecode.OpWide {
		return ua.errorf(cl.Line, "unknown instruction %q", fields[0])
	}
	kinds := bytecode.GetOpcodeInfo(op).Operands
	args := fields[1:]
	if len(args) != len(kinds) {
		return ua.errorf(cl.Line, "%s takes %d operands, got %d", op, len(kinds), len(args))
	}

	operands := make([]int, len(kinds))
	var target string
	for i, k := range kinds {
		if k == bytecode.OperandTarget {
			target = args[i]
			continue
		}
		n, err := ua.operand(op, i, k, args[i])
		if err != nil {
			return ua.errorf(cl.Line, "%s operand %d: %v", op, i+1, err)
		}
		operands[i] = n
	}

	if target == "" {
		ua.b.Emit(op, operands...)
	} else {
		var rest []int
		for i, k := range kinds {
			if k != bytecode.OperandTarget {
				rest = append(rest, operands[i])
			}
		}
		field := ua.b.EmitJump(op, rest...)
		ua.fixups = append(ua.fixups, fixup{field: field, label: target, line: cl.Line})
	}
	if err := ua.b.Err(); err != nil {
		return ua.errorf(cl.Line, "%v", err)
	}
	return nil
}

func (ua *unitAsm) operand(op bytecode.Opcode, i int, k bytecode.OperandKind, text string) (int, error) {
	switch k {
	case bytecode.OperandSlot:
		return ua.slot(text)
	case bytecode.OperandConst, bytecode.OperandFarConst:
		if lit, ok := strings.CutPrefix(text, "="); ok {
			v, err := ParseLiteral(lit)
			if err != nil {
				return 0, err
			}
			return ua.b.AddConstant(v), nil
		}
		n, err := strconv.Atoi(text)
		if err != nil || n < 0 {
			return 0, fmt.Errorf("bad constant index %q", text)
		}
		return n, nil
	case bytecode.OperandName:
		if !isIdent(text) {
			return 0, fmt.Errorf("bad name %q", text)
		}
		return ua.b.Name(text), nil
	case bytecode.OperandCount:
		if n, err := strconv.Atoi(text); err == nil {
			if n < 0 || n > 0xFF {
				return 0, fmt.Errorf("count %d out of range", n)
			}
			return n, nil
		}
		return symbolicCount(op, i, text)
	}
	return 0, fmt.Errorf("unexpected operand kind %s", k)
}

// symbolicCount resolves the named forms some count operands accept.
func symbolicCount(op bytecode.Opcode, i int, text string) (int, error) {
	switch {
	case op == bytecode.OpGlobalInit && i == 0:
		switch text {
		case "global":
			return int(bytecode.GlobalShared), nil
		case "persistent":
			return int(bytecode.GlobalPersistent), nil
		}
	case op == bytecode.OpAssignCompound && i == 1:
		if b, ok := value.LookupBinaryOp(text); ok {
			return int(b), nil
		}
	case op == bytecode.OpIndexID1MathyUfun && i == 1:
		if m, ok := value.LookupMathFunc(text); ok {
			return int(m), nil
		}
	}
	return 0, fmt.Errorf("bad count %q", text)
}

func (ua *unitAsm) slot(text string) (int, error) {
	if n, err := strconv.Atoi(text); err == nil {
		if n < 0 || n >= len(ua.src.Outputs)+len(ua.src.Inputs)+len(ua.src.Locals) {
			return 0, fmt.Errorf("slot %d out of range", n)
		}
		return n, nil
	}
	for i, name := range ua.slotNames() {
		if name == text {
			return i, nil
		}
	}
	return 0, fmt.Errorf("undeclared slot %q", text)
}

func (ua *unitAsm) slotNames() []string {
	names := make([]string, 0, len(ua.src.Outputs)+len(ua.src.Inputs)+len(ua.src.Locals))
	names = append(names, ua.src.Outputs...)
	names = append(names, ua.src.Inputs...)
	return append(names, ua.src.Locals...)
}

// offset resolves a label or a literal instruction offset. "$" is the end
// of the code.
func (ua *unitAsm) offset(text string) (int, error) {
	if text == "$" {
		return ua.b.CurrentOffset(), nil
	}
	if ip, ok := ua.labels[text]; ok {
		return ip, nil
	}
	if n, err := strconv.ParseInt(text, 0, 32); err == nil && n >= 0 {
		return int(n), nil
	}
	return 0, fmt.Errorf("undefined label %q", text)
}

func (ua *unitAsm) span(start, end string) (int, int, error) {
	s, err := ua.offset(start)
	if err != nil {
		return 0, 0, err
	}
	e, err := ua.offset(end)
	if err != nil {
		return 0, 0, err
	}
	if e < s {
		return 0, 0, fmt.Errorf("range %s..%s is reversed", start, end)
	}
	return s, e, nil
}

func isIdent(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case i > 0 && (r >= '0' && r <= '9' || r == '.'):
		default:
			return false
		}
	}
	return true
}

// splitFields splits a line on blanks and commas, keeping quoted strings
// and bracketed literals whole, and drops a trailing ";" comment.
func splitFields(line string) ([]string, error) {
	var fields []string
	var cur strings.Builder
	depth := 0
	var quote byte
	flush := func() {
		if cur.Len() > 0 {
			fields = append(fields, cur.String())
			cur.Reset()
		}
	}
	for i := 0; i < len(line); i++ {
		c := line[i]
		switch {
		case quote != 0:
			cur.WriteByte(c)
			if c == '\\' && quote == '"' && i+1 < len(line) {
				i++
				cur.WriteByte(line[i])
			} else if c == quote {
				quote = 0
			}
		case c == '"' || c == '\'':
			quote = c
			cur.WriteByte(c)
		case c == '[' || c == '{':
			depth++
			cur.WriteByte(c)
		case c == ']' || c == '}':
			depth--
			if depth < 0 {
				return nil, fmt.Errorf("unbalanced %q", c)
			}
			cur.WriteByte(c)
		case depth > 0:
			cur.WriteByte(c)
		case c == ';':
			flush()
			return fields, nil
		case c == ' ' || c == '\t' || c == ',':
			flush()
		default:
			cur.WriteByte(c)
		}
	}
	if quote != 0 {
		return nil, fmt.Errorf("unterminated string")
	}
	if depth != 0 {
		return nil, fmt.Errorf("unbalanced brackets")
	}
	flush()
	return fields, nil
}
