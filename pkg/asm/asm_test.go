package asm

import (
	"bytes"
	"context"
	"fmt"
	"reflect"
	"strings"
	"testing"

	"github.com/chbinousamy/octave/pkg/bytecode"
	"github.com/chbinousamy/octave/pkg/value"
	"github.com/chbinousamy/octave/pkg/vm"
)

func assembleOne(t *testing.T, text string) *bytecode.Unit {
	t.Helper()
	srcs, err := ParseString(text)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	units, err := AssembleAll(srcs)
	if err != nil {
		t.Fatalf("AssembleAll failed: %v", err)
	}
	if len(units) != 1 {
		t.Fatalf("got %d units, want 1", len(units))
	}
	return units[0]
}

func run(t *testing.T, u *bytecode.Unit, nargout int, args ...value.Value) []value.Value {
	t.Helper()
	v := vm.New(vm.Options{UseVM: true})
	outs, err := v.Call(context.Background(), u, args, nargout)
	if err != nil {
		t.Fatalf("Call(%s) failed: %v\n%s", u.Name, err, u.Disassemble())
	}
	return outs
}

func scalarOf(t *testing.T, x value.Value) float64 {
	t.Helper()
	d, ok := value.ScalarValue(x)
	if !ok {
		t.Fatalf("got %s, want a real scalar", value.Format(x))
	}
	return d
}

const loopText = `
; sum the elements of a row
.unit loop
.outputs acc
.locals i
.unwind loop top exit exit 3
    PUSH_DBL_0
    ASSIGN acc
    LOAD_CST =[1 2 3]
    FOR_SETUP
top:
    FOR_COND i
    PUSH_SLOT_NARGOUT1 i
    ASSIGN_COMPOUND acc +      ; acc += i
    JMP top
exit:
    POP_N_INTS 2
    POP
    RET
`

func TestAssembleLoop(t *testing.T) {
	u := assembleOne(t, loopText)
	if u.NumSlots != 2 || u.NumOutputs != 1 {
		t.Errorf("slots = %d outputs = %d, want 2 and 1", u.NumSlots, u.NumOutputs)
	}
	if len(u.Unwind) != 1 || u.Unwind[0].Kind != bytecode.UnwindLoop || u.Unwind[0].Depth != 3 {
		t.Fatalf("unwind = %v, want one loop entry of depth 3", u.Unwind)
	}
	outs := run(t, u, 1)
	if got := scalarOf(t, outs[0]); got != 6 {
		t.Errorf("got %v, want 6", got)
	}
}

func TestAssembleNestedTry(t *testing.T) {
	u := assembleOne(t, `
.unit nested
.outputs which err
.locals error
.unwind try start outer_end outer_end 0
.unwind try start inner_end inner_end 0
start:
    LOAD_CST ="inner:id"
    LOAD_CST ="boom %d"
    LOAD_CST =7
    INDEX_ID_NARGOUT0 error 3
    POP
    JMP skip_inner
inner_end:
    ASSIGN err
    LOAD_CST =1
    ASSIGN which
skip_inner:
    JMP done
outer_end:
    POP
    LOAD_CST =2
    ASSIGN which
done:
    RET
`)
	outs := run(t, u, 2)
	if got := scalarOf(t, outs[0]); got != 1 {
		t.Errorf("handled by region %v, want the inner one", got)
	}
	id, msg, ok := value.ErrorMessage(outs[1])
	if !ok || id != "inner:id" || msg != "boom 7" {
		t.Errorf("caught (%q, %q, %v), want (inner:id, boom 7, true)", id, msg, ok)
	}
}

func TestAssembleAnonFromSiblingUnit(t *testing.T) {
	srcs, err := ParseString(`
.unit addk
.outputs r
.inputs x
.locals k
    PUSH_SLOT_NARGOUT1 x
    PUSH_SLOT_NARGOUT1 k
    ADD
    ASSIGN r
    RET

.unit main
.outputs r
.locals k f
.anon addk k
    LOAD_CST =10
    ASSIGN k
    PUSH_ANON_FCN_HANDLE 0
    ASSIGN f
    LOAD_CST =1000
    ASSIGN k
    LOAD_CST =5
    INDEX_ID_NARGOUT1 f 1
    ASSIGN r
    RET
`)
	if err != nil {
		t.Fatal(err)
	}
	units, err := AssembleAll(srcs)
	if err != nil {
		t.Fatal(err)
	}
	if len(units) != 1 || units[0].Name != "main" {
		t.Fatalf("got %d units, want only main", len(units))
	}
	tmpl, ok := units[0].Constants[0].(*bytecode.AnonTemplate)
	if !ok || tmpl.Unit.Name != "addk" || !reflect.DeepEqual(tmpl.Captures, []string{"k"}) {
		t.Fatalf("constant 0 = %v, want the addk template capturing k", units[0].Constants[0])
	}
	if got := scalarOf(t, run(t, units[0], 1)[0]); got != 15 {
		t.Errorf("got %v, want 15", got)
	}
}

func TestAssembleSymbolicCounts(t *testing.T) {
	u := assembleOne(t, `
.unit sym
.outputs r
.locals g
.persistent g 4
    GLOBAL_INIT persistent g
    INDEX_ID1_MATHY_UFUN r sqrt
    PUSH_FCN_HANDLE sin
    POP
`)
	var got []bytecode.Instruction
	if err := bytecode.Walk(u.Code, func(_ int, in bytecode.Instruction) bool {
		got = append(got, in)
		return true
	}); err != nil {
		t.Fatal(err)
	}
	if got[0].Operands[0] != int(bytecode.GlobalPersistent) || got[0].Operands[1] != 1 {
		t.Errorf("GLOBAL_INIT operands = %v, want [2 1]", got[0].Operands[:2])
	}
	if got[1].Operands[1] != int(value.MathSqrt) {
		t.Errorf("math function = %d, want sqrt", got[1].Operands[1])
	}
	if name, _ := u.NameAt(got[2].Operands[0]); name != "sin" {
		t.Errorf("handle name = %q, want sin", name)
	}
	if idx, ok := u.PersistentSlot(1); !ok || idx != 4 {
		t.Errorf("persistent slot = %d, %v, want 4, true", idx, ok)
	}
}

func TestAssembleWideOperands(t *testing.T) {
	var sb strings.Builder
	sb.WriteString(".unit wide\n.outputs r\n.locals")
	for i := 0; i < 300; i++ {
		fmt.Fprintf(&sb, " v%d", i)
	}
	sb.WriteString("\n    LOAD_CST =42\n    ASSIGN v299\n    PUSH_SLOT_NARGOUT1 v299\n    ASSIGN r\n    RET\n")
	u := assembleOne(t, sb.String())
	if !bytes.Contains(u.Code, []byte{byte(bytecode.OpWide)}) {
		t.Fatalf("expected a WIDE prefix in\n%s", u.Disassemble())
	}
	if got := scalarOf(t, run(t, u, 1)[0]); got != 42 {
		t.Errorf("got %v, want 42", got)
	}
}

func TestAssembleErrors(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{"instruction before unit", "RET\n", "instruction before .unit"},
		{"unknown instruction", ".unit u\n    FROB\n", "line 2: unknown instruction"},
		{"operand count", ".unit u\n.locals x\n    ASSIGN\n", "ASSIGN takes 1 operands, got 0"},
		{"undefined label", ".unit u\n    JMP nowhere\n", `undefined label "nowhere"`},
		{"undeclared slot", ".unit u\n    ASSIGN y\n", `undeclared slot "y"`},
		{"duplicate label", ".unit u\na:\na:\n    RET\n", `duplicate label "a"`},
		{"bad count", ".unit u\n    DUPN many\n", `bad count "many"`},
		{"bad literal", ".unit u\n    LOAD_CST =[1 x]\n", `bad matrix element "x"`},
		{"unknown directive", ".unit u\n.frob\n", "unknown directive .frob"},
		{"unknown unwind kind", ".unit u\n.unwind while 0 0 0 0\n    RET\n", `unknown unwind kind "while"`},
		{"bad constant index", ".unit u\n    LOAD_CST 3\n", "constant 3 out of range"},
		{"unbalanced", ".unit u\n    LOAD_CST =[1 2\n", "unbalanced brackets"},
		{"unknown anon unit", ".unit u\n.anon missing\n    RET\n", `unknown unit "missing"`},
		{"duplicate unit", ".unit u\n.unit u\n", "duplicate unit"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srcs, err := ParseString(tt.text)
			if err == nil {
				_, err = AssembleAll(srcs)
			}
			if err == nil {
				t.Fatalf("expected an error containing %q", tt.want)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %q, want it to contain %q", err, tt.want)
			}
		})
	}
}

func TestParseLiteral(t *testing.T) {
	tests := []struct {
		text string
		want string
	}{
		{"3", "3"},
		{"-2.5", "-2.5"},
		{"Inf", "Inf"},
		{"true", "true"},
		{`"a;b c"`, `"a;b c"`},
		{`'it''s'`, `"it's"`},
		{"[]", "[]"},
		{"[1 2; 3 4]", "[1 2; 3 4]"},
		{"[1, 2, 3]", "[1 2 3]"},
		{"{1, 'x'; [1 2], @sin}", `{1, "x"; [1 2], @sin}`},
		{":", ":"},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			v, err := ParseLiteral(tt.text)
			if err != nil {
				t.Fatalf("ParseLiteral(%s): %v", tt.text, err)
			}
			got, ok := FormatLiteral(v)
			if !ok {
				t.Fatalf("FormatLiteral(%s) has no literal form", value.Format(v))
			}
			if got != tt.want {
				t.Errorf("got %s, want %s", got, tt.want)
			}
		})
	}
}

func TestParseLiteralMatrixLayout(t *testing.T) {
	v, err := ParseLiteral("[1 2 3; 4 5 6]")
	if err != nil {
		t.Fatal(err)
	}
	m := v.(*value.Matrix)
	if m.Rows != 2 || m.Cols != 3 {
		t.Fatalf("dims = %dx%d, want 2x3", m.Rows, m.Cols)
	}
	if m.At(1, 0) != 4 || m.At(0, 2) != 3 {
		t.Errorf("At(1,0) = %v, At(0,2) = %v, want 4 and 3", m.At(1, 0), m.At(0, 2))
	}
	if _, err := ParseLiteral("[1 2; 3]"); err == nil {
		t.Error("expected a dimension mismatch error")
	}
}

// roundTripUnit exercises every kind of metadata Print has to carry.
func roundTripUnit() *bytecode.Unit {
	ab := bytecode.NewBuilder("twice", bytecode.Layout{Outputs: []string{"r"}, Inputs: []string{"x"}})
	ab.Emit(bytecode.OpPushSlotNargout1, ab.Slot("x"))
	ab.Emit(bytecode.OpPushDbl2)
	ab.Emit(bytecode.OpMul)
	ab.Emit(bytecode.OpAssign, ab.Slot("r"))
	ab.Emit(bytecode.OpRet)

	b := bytecode.NewBuilder("rt", bytecode.Layout{Outputs: []string{"y"}, Inputs: []string{"x"}, Locals: []string{"n", "f"}, VarargIn: true})
	b.SetFile("/tmp/rt.m")
	n := b.Slot("n")
	b.Persistent(n, 0)
	b.Emit(bytecode.OpGlobalInit, int(bytecode.GlobalPersistent), n)
	start := b.CurrentOffset()
	b.Emit(bytecode.OpPushSlotNargout1, b.Slot("x"))
	skip := b.EmitJump(bytecode.OpJmpIfn)
	b.EmitConstant(value.String("yes"))
	b.Emit(bytecode.OpAssign, b.Slot("y"))
	b.PatchJump(skip)
	b.Emit(bytecode.OpPushAnonFcnHandle, b.AddConstant(&bytecode.AnonTemplate{Unit: ab.MustBuild()}))
	b.Emit(bytecode.OpAssign, b.Slot("f"))
	b.Emit(bytecode.OpPushFcnHandle, b.Name("sin"))
	b.Emit(bytecode.OpPop)
	b.EmitConstant(value.NewMatrix(2, 2, []float64{1, 3, 2, 4}))
	b.Emit(bytecode.OpPop)
	end := b.Emit(bytecode.OpRet)
	b.AddLocation(start, end, 3, 5)
	b.AddLocation(end, b.CurrentOffset(), 4, 1)
	b.AddArgNames(start, start+2, "g", "x", "a + 1")
	b.AddUnwind(bytecode.UnwindEntry{Start: start, End: end, Target: end, Kind: bytecode.UnwindProtect})
	return b.MustBuild()
}

func sameUnit(t *testing.T, got, want *bytecode.Unit) {
	t.Helper()
	if !bytes.Equal(got.Code, want.Code) {
		t.Errorf("code differs:\ngot\n%s\nwant\n%s", got.Disassemble(), want.Disassemble())
	}
	if got.Name != want.Name || got.File != want.File {
		t.Errorf("name/file = %s/%s, want %s/%s", got.Name, got.File, want.Name, want.File)
	}
	if got.NumSlots != want.NumSlots || got.NumInputs != want.NumInputs || got.NumOutputs != want.NumOutputs || got.VarargIn != want.VarargIn {
		t.Errorf("layout differs: got %d/%d/%d/%v, want %d/%d/%d/%v",
			got.NumSlots, got.NumInputs, got.NumOutputs, got.VarargIn,
			want.NumSlots, want.NumInputs, want.NumOutputs, want.VarargIn)
	}
	for name, pair := range map[string][2]any{
		"names":      {got.Names, want.Names},
		"unwind":     {got.Unwind, want.Unwind},
		"locations":  {got.Locs, want.Locs},
		"argnames":   {got.ArgNames, want.ArgNames},
		"persistent": {got.PersistentSlots, want.PersistentSlots},
	} {
		if !reflect.DeepEqual(pair[0], pair[1]) {
			t.Errorf("%s = %v, want %v", name, pair[0], pair[1])
		}
	}
	if len(got.Constants) != len(want.Constants) {
		t.Fatalf("got %d constants, want %d", len(got.Constants), len(want.Constants))
	}
	for i := range want.Constants {
		if g, w := constKey(got.Constants[i]), constKey(want.Constants[i]); g != w {
			t.Errorf("constant %d = %s, want %s", i, g, w)
		}
	}
}

func constKey(v value.Value) string {
	if t, ok := v.(*bytecode.AnonTemplate); ok {
		return fmt.Sprintf("@%s%v", t.Unit.Name, t.Captures)
	}
	s, _ := FormatLiteral(v)
	return s
}

func TestPrintRoundTrip(t *testing.T) {
	want := roundTripUnit()
	text, err := Print(want)
	if err != nil {
		t.Fatal(err)
	}
	got := assembleOne(t, text)
	sameUnit(t, got, want)
	body := got.Constants[1].(*bytecode.AnonTemplate).Unit
	sameUnit(t, body, want.Constants[1].(*bytecode.AnonTemplate).Unit)
}

func TestPrintRejectsValuesWithoutLiterals(t *testing.T) {
	b := bytecode.NewBuilder("s", bytecode.Layout{})
	b.EmitConstant(value.NewStruct().With("a", value.Scalar(1)))
	b.Emit(bytecode.OpPop)
	if _, err := Print(b.MustBuild()); err == nil {
		t.Error("expected an error for a struct constant")
	}
}
