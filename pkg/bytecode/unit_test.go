package bytecode

import (
	"strings"
	"testing"

	"github.com/chbinousamy/octave/pkg/value"
)

func unitWithUnwind(entries ...UnwindEntry) *Unit {
	u := &Unit{Unwind: append([]UnwindEntry(nil), entries...)}
	SortUnwind(u.Unwind)
	return u
}

func TestEnclosingInnermostFirst(t *testing.T) {
	outer := UnwindEntry{Start: 0, End: 100, Target: 100, Kind: UnwindTryCatch}
	loop := UnwindEntry{Start: 10, End: 60, Target: 60, Kind: UnwindLoop}
	inner := UnwindEntry{Start: 20, End: 40, Target: 40, Kind: UnwindTryCatch}
	sibling := UnwindEntry{Start: 70, End: 90, Target: 90, Kind: UnwindProtect}
	u := unitWithUnwind(sibling, inner, outer, loop)

	tests := []struct {
		ip   int
		want []UnwindEntry
	}{
		{5, []UnwindEntry{outer}},
		{25, []UnwindEntry{inner, loop, outer}},
		{40, []UnwindEntry{loop, outer}},
		{75, []UnwindEntry{sibling, outer}},
		{100, nil},
	}
	for _, tt := range tests {
		got := u.Enclosing(tt.ip)
		if len(got) != len(tt.want) {
			t.Errorf("ip %d: got %v, want %v", tt.ip, got, tt.want)
			continue
		}
		for i := range got {
			if got[i] != tt.want[i] {
				t.Errorf("ip %d [%d]: got %v, want %v", tt.ip, i, got[i], tt.want[i])
			}
		}
	}

	if e, ok := u.Innermost(25); !ok || e != inner {
		t.Errorf("Innermost(25) = %v, %v", e, ok)
	}
	if e, ok := u.InnermostLoop(25); !ok || e != loop {
		t.Errorf("InnermostLoop(25) = %v, %v", e, ok)
	}
	if _, ok := u.InnermostLoop(80); ok {
		t.Error("no loop covers 80")
	}
}

func TestEnclosingSameStart(t *testing.T) {
	outer := UnwindEntry{Start: 0, End: 50, Kind: UnwindProtect}
	inner := UnwindEntry{Start: 0, End: 20, Kind: UnwindTryCatch}
	u := unitWithUnwind(inner, outer)

	got := u.Enclosing(0)
	if len(got) != 2 || got[0] != inner || got[1] != outer {
		t.Errorf("got %v", got)
	}
}

func TestExited(t *testing.T) {
	outer := UnwindEntry{Start: 0, End: 100, Kind: UnwindProtect}
	loop := UnwindEntry{Start: 10, End: 60, Kind: UnwindLoop}
	u := unitWithUnwind(outer, loop)

	got := u.Exited(30, 60)
	if len(got) != 1 || got[0] != loop {
		t.Errorf("break out of loop: got %v", got)
	}
	got = u.Exited(30, 200)
	if len(got) != 2 || got[0] != loop || got[1] != outer {
		t.Errorf("return: got %v", got)
	}
	if got := u.Exited(30, 40); len(got) != 0 {
		t.Errorf("jump within loop: got %v", got)
	}
}

func TestLocation(t *testing.T) {
	u := &Unit{Locs: []LocEntry{
		{Start: 0, End: 4, Line: 1, Col: 1},
		{Start: 4, End: 10, Line: 2, Col: 3},
		{Start: 12, End: 14, Line: 4, Col: 1},
	}}
	tests := []struct {
		ip        int
		line, col int
		ok        bool
	}{
		{0, 1, 1, true},
		{3, 1, 1, true},
		{4, 2, 3, true},
		{9, 2, 3, true},
		{10, 0, 0, false},
		{13, 4, 1, true},
		{14, 0, 0, false},
	}
	for _, tt := range tests {
		line, col, ok := u.Location(tt.ip)
		if line != tt.line || col != tt.col || ok != tt.ok {
			t.Errorf("Location(%d) = %d, %d, %v; want %d, %d, %v", tt.ip, line, col, ok, tt.line, tt.col, tt.ok)
		}
	}
}

func TestArgNamesAt(t *testing.T) {
	// f(g(x), y) then h(z): g's range nests inside f's.
	b := NewBuilder("args", Layout{})
	for i := 0; i < 30; i++ {
		b.Emit(OpPop)
	}
	b.AddArgNames(20, 30, "h", "z")
	b.AddArgNames(0, 15, "f", "g(x)", "y")
	b.AddArgNames(3, 8, "g", "x")
	u := b.MustBuild()

	tests := []struct {
		ip     int
		callee string
		ok     bool
	}{
		{0, "f", true},
		{3, "g", true},
		{7, "g", true},
		{8, "f", true},
		{14, "f", true},
		{15, "", false},
		{19, "", false},
		{20, "h", true},
		{29, "h", true},
		{30, "", false},
	}
	for _, tt := range tests {
		e, ok := u.ArgNamesAt(tt.ip)
		if ok != tt.ok || e.Callee != tt.callee {
			t.Errorf("ArgNamesAt(%d) = %q, %v; want %q, %v", tt.ip, e.Callee, ok, tt.callee, tt.ok)
		}
	}
	for i := 1; i < len(u.ArgNames); i++ {
		if u.ArgNames[i-1].End > u.ArgNames[i].End {
			t.Fatalf("ArgNames not sorted by end: %v", u.ArgNames)
		}
	}
}

func TestBuilderSlotLayout(t *testing.T) {
	b := NewBuilder("f", Layout{Outputs: []string{"r"}, Inputs: []string{"a", "b"}, Locals: []string{"t"}})
	if b.Slot("r") != 0 || b.Slot("a") != 1 || b.Slot("b") != 2 || b.Slot("t") != 3 {
		t.Error("slots must be outputs, inputs, locals")
	}
	if n := b.Name("disp"); n != 4 {
		t.Errorf("first extra name = %d, want 4", n)
	}
	if n := b.Name("a"); n != 1 {
		t.Errorf("slot names are reused, got %d", n)
	}
	b.Emit(OpRet)
	u := b.MustBuild()
	if u.NumSlots != 4 || u.InputSlot(1) != 2 || u.SlotIndex("t") != 3 || u.SlotIndex("disp") != -1 {
		t.Errorf("bad unit layout: %+v", u)
	}
}

func TestBuilderAutoWide(t *testing.T) {
	locals := make([]string, 300)
	for i := range locals {
		locals[i] = "v" + strings.Repeat("x", i)
	}
	b := NewBuilder("wide", Layout{Locals: locals})
	b.Emit(OpPushDbl1)
	b.Emit(OpAssign, 299)
	b.Emit(OpRet)
	u := b.MustBuild()

	in, next, err := Decode(u.Code, 1)
	if err != nil {
		t.Fatal(err)
	}
	if !in.Wide || in.Op != OpAssign || in.Operands[0] != 299 || next != 5 {
		t.Errorf("got %+v next=%d", in, next)
	}
}

func TestBuilderErrors(t *testing.T) {
	b := NewBuilder("bad", Layout{})
	b.Slot("nope")
	b.Emit(OpRet)
	if _, err := b.Build(); err == nil {
		t.Error("undeclared slot should fail")
	}

	b = NewBuilder("unpatched", Layout{})
	b.EmitJump(OpJmp)
	b.Emit(OpRet)
	if _, err := b.Build(); err == nil {
		t.Error("unpatched jump should fail validation")
	}

	b = NewBuilder("arity", Layout{})
	b.Emit(OpMatrix, 1)
	if b.Err() == nil {
		t.Error("wrong operand count should fail")
	}
}

func TestValidateRejectsBadOperands(t *testing.T) {
	u := &Unit{Name: "x", Code: []byte{byte(OpLoadCst), 3}, Constants: []value.Value{value.Scalar(1)}}
	if err := u.Validate(); err == nil || !strings.Contains(err.Error(), "constant 3") {
		t.Errorf("got %v", err)
	}
	u = &Unit{Name: "y", Code: []byte{byte(OpAssign), 0}}
	if err := u.Validate(); err == nil || !strings.Contains(err.Error(), "slot 0") {
		t.Errorf("got %v", err)
	}
	u = &Unit{Name: "z", Code: []byte{byte(OpJmp), 0, 1, byte(OpRet)}}
	if err := u.Validate(); err == nil || !strings.Contains(err.Error(), "boundary") {
		t.Errorf("got %v", err)
	}
}

func TestPersistentSlots(t *testing.T) {
	b := NewBuilder("p", Layout{Locals: []string{"count"}})
	b.Persistent(b.Slot("count"), 0)
	b.Emit(OpRet)
	u := b.MustBuild()
	if idx, ok := u.PersistentSlot(0); !ok || idx != 0 {
		t.Errorf("PersistentSlot(0) = %d, %v", idx, ok)
	}
	if _, ok := u.PersistentSlot(1); ok {
		t.Error("slot 1 is not persistent")
	}
}
