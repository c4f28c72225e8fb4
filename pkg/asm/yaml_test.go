package asm

import (
	"strings"
	"testing"

	"github.com/chbinousamy/octave/pkg/bytecode"
	"github.com/chbinousamy/octave/pkg/value"
)

const yamlUnits = `
name: pick
file: pick.m
outputs: [r]
inputs: [which]
locals: [k, f]
constants:
  - 10
  - "ten"
  - [1, 2, 3]
  - [[1, 2], [3, 4]]
  - {a: 1, b: two}
  - {cell: [1, x]}
  - {handle: sin}
  - {literal: "[5 6; 7 8]"}
  - ~
  - anon:
      name: addk
      outputs: [r]
      inputs: [x]
      locals: [k]
      code: |
        PUSH_SLOT_NARGOUT1 x
        PUSH_SLOT_NARGOUT1 k
        ADD
        ASSIGN r
        RET
    captures: [k]
code: |
  LOAD_CST 0
  ASSIGN k
  PUSH_ANON_FCN_HANDLE 9
  ASSIGN f
  LOAD_CST =5
  INDEX_ID_NARGOUT1 f 1
  ASSIGN r
  RET
lines:
  - {start: 0, end: $, line: 1, col: 1}
---
name: second
code: |
  RET
`

func TestParseYAML(t *testing.T) {
	srcs, err := ParseYAML([]byte(yamlUnits))
	if err != nil {
		t.Fatal(err)
	}
	if len(srcs) != 2 || srcs[0].Name != "pick" || srcs[1].Name != "second" {
		t.Fatalf("got %d units, want pick and second", len(srcs))
	}
	units, err := AssembleAll(srcs)
	if err != nil {
		t.Fatal(err)
	}
	u := units[0]
	if u.File != "pick.m" {
		t.Errorf("file = %q, want pick.m", u.File)
	}

	want := []string{"10", `"ten"`, "[1 2 3]", "[1 2; 3 4]", "", "{1, \"x\"}", "@sin", "[5 6; 7 8]", "[]"}
	for i, w := range want {
		if w == "" {
			continue
		}
		if got, _ := FormatLiteral(u.Constants[i]); got != w {
			t.Errorf("constant %d = %s, want %s", i, got, w)
		}
	}
	s, ok := u.Constants[4].(*value.Struct)
	if !ok {
		t.Fatalf("constant 4 = %s, want a struct", value.Format(u.Constants[4]))
	}
	if got := strings.Join(s.FieldNames(), ","); got != "a,b" {
		t.Errorf("fields = %s, want a,b", got)
	}
	if b, _ := s.Field("b"); value.Format(b) != "'two'" {
		t.Errorf("field b = %s, want 'two'", value.Format(b))
	}
	if _, ok := u.Constants[9].(*bytecode.AnonTemplate); !ok {
		t.Fatalf("constant 9 = %v, want an anonymous template", u.Constants[9])
	}
	if line, col, ok := u.Location(len(u.Code) - 1); !ok || line != 1 || col != 1 {
		t.Errorf("location = %d:%d %v, want 1:1", line, col, ok)
	}

	if got := scalarOf(t, run(t, u, 1)[0]); got != 15 {
		t.Errorf("got %v, want 15", got)
	}
}

func TestParseYAMLConstantsAndCode(t *testing.T) {
	srcs, err := ParseYAML([]byte("name: u\nconstants: [4, {cell: [1]}]\ncode: |\n  LOAD_CST 0\n\n  RET\n"))
	if err != nil {
		t.Fatal(err)
	}
	src := srcs[0]
	if len(src.Constants) != 2 {
		t.Fatalf("got %d constants, want 2", len(src.Constants))
	}
	if got := value.Format(src.Constants[0].Value); got != "4" {
		t.Errorf("constant 0 = %s, want 4", got)
	}
	if len(src.Code) != 2 {
		t.Fatalf("got %d code lines, want 2", len(src.Code))
	}
	if src.Code[0].Text != "LOAD_CST 0" || src.Code[0].Line != 4 {
		t.Errorf("line 0 = %q at %d, want LOAD_CST 0 at 4", src.Code[0].Text, src.Code[0].Line)
	}
	if src.Code[1].Text != "RET" || src.Code[1].Line != 6 {
		t.Errorf("line 1 = %q at %d, want RET at 6", src.Code[1].Text, src.Code[1].Line)
	}

	if _, err := ParseYAML([]byte("name: u\nconstants: 3\ncode: RET\n")); err == nil || !strings.Contains(err.Error(), "constants must be a sequence") {
		t.Errorf("error = %v, want constants must be a sequence", err)
	}
	if _, err := ParseYAML([]byte("name: u\ncode: [RET]\n")); err == nil || !strings.Contains(err.Error(), "code must be a text block") {
		t.Errorf("error = %v, want code must be a text block", err)
	}
}

func TestMarshalYAMLKeyOrder(t *testing.T) {
	src := &Source{
		Name:      "u",
		Constants: []Constant{{Value: value.Scalar(2)}},
		Code:      []CodeLine{{Text: "LOAD_CST 0"}, {Text: "RET"}},
		Locations: []Location{{Start: "0", End: "$", Line: 1, Col: 1}},
	}
	data, err := MarshalYAML(src)
	if err != nil {
		t.Fatal(err)
	}
	text := string(data)
	c, k, l := strings.Index(text, "constants:"), strings.Index(text, "code:"), strings.Index(text, "lines:")
	if c < 0 || k < 0 || l < 0 || !(c < k && k < l) {
		t.Errorf("got keys at constants=%d code=%d lines=%d, want them in that order:\n%s", c, k, l, text)
	}
}

func TestParseYAMLErrorLines(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{"bad instruction", "name: u\ncode: |\n  RET\n  FROB\n", "line 4: unknown instruction"},
		{"bad name", "name: 1x\ncode: RET\n", `bad unit name "1x"`},
		{"mixed sequence", "name: u\nconstants:\n  - [1, a]\ncode: RET\n", "use {cell: [...]}"},
		{"ragged matrix", "name: u\nconstants:\n  - [[1, 2], [3]]\ncode: RET\n", "vertical dimensions mismatch"},
		{"empty", "", "no units"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srcs, err := ParseYAML([]byte(tt.text))
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

func TestMarshalYAMLRoundTrip(t *testing.T) {
	want := roundTripUnit()
	src, err := Decompile(want)
	if err != nil {
		t.Fatal(err)
	}
	data, err := MarshalYAML(src)
	if err != nil {
		t.Fatal(err)
	}
	srcs, err := ParseYAML(data)
	if err != nil {
		t.Fatalf("ParseYAML failed: %v\n%s", err, data)
	}
	got, err := Assemble(srcs[0])
	if err != nil {
		t.Fatalf("Assemble failed: %v\n%s", err, data)
	}
	sameUnit(t, got, want)
}
