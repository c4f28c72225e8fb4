package bytecode

import (
	"bytes"
	"errors"
	"testing"
)

func TestDecodeEncodeRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		code []byte
	}{
		{"no operands", []byte{byte(OpAdd)}},
		{"slot", []byte{byte(OpAssign), 7}},
		{"wide slot", []byte{byte(OpWide), byte(OpAssign), 0x01, 0x02}},
		{"jump", []byte{byte(OpJmp), 0x12, 0x34}},
		{"slot and target", []byte{byte(OpPushFoldedCst), 3, 0x00, 0x10}},
		{"wide slot and target", []byte{byte(OpWide), byte(OpPushFoldedCst), 0x01, 0x00, 0x00, 0x10}},
		{"far const", []byte{byte(OpLoadFarCst), 0x00, 0x01, 0x00, 0x00}},
		{"counts", []byte{byte(OpIndexIDN), 4, 2, 3}},
		{"wide with counts", []byte{byte(OpWide), byte(OpIndexIDN), 0x01, 0x00, 2, 3}},
		{"name", []byte{byte(OpWide), byte(OpIndexStructCall), 0x02, 0x00, 1, 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in, next, err := Decode(tt.code, 0)
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if next != len(tt.code) {
				t.Errorf("next = %d, want %d", next, len(tt.code))
			}
			if in.Len() != len(tt.code) {
				t.Errorf("Len() = %d, want %d", in.Len(), len(tt.code))
			}
			out, err := in.AppendTo(nil)
			if err != nil {
				t.Fatalf("AppendTo: %v", err)
			}
			if !bytes.Equal(out, tt.code) {
				t.Errorf("re-encoded % X, want % X", out, tt.code)
			}
		})
	}
}

func TestDecodeWideOperands(t *testing.T) {
	code := []byte{byte(OpWide), byte(OpIndexIDN), 0x01, 0x00, 2, 3}
	in, _, err := Decode(code, 0)
	if err != nil {
		t.Fatal(err)
	}
	if !in.Wide || in.Operands[0] != 256 || in.Operands[1] != 2 || in.Operands[2] != 3 {
		t.Errorf("got %+v", in)
	}
}

func TestDecodeErrors(t *testing.T) {
	tests := []struct {
		name string
		code []byte
		want error
	}{
		{"wide without widenable operand", []byte{byte(OpWide), byte(OpAdd)}, ErrWideUnsupported},
		{"wide jump", []byte{byte(OpWide), byte(OpJmp), 0, 0}, ErrWideUnsupported},
		{"double wide", []byte{byte(OpWide), byte(OpWide), byte(OpAssign), 0, 0}, ErrWideUnsupported},
		{"unknown opcode", []byte{0xEE}, ErrUnknownOpcode},
		{"truncated operand", []byte{byte(OpJmp), 0}, ErrTruncated},
		{"truncated wide", []byte{byte(OpWide)}, ErrTruncated},
		{"wide truncated operand", []byte{byte(OpWide), byte(OpAssign), 0}, ErrTruncated},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := Decode(tt.code, 0)
			if !errors.Is(err, tt.want) {
				t.Errorf("got %v, want %v", err, tt.want)
			}
			var de *DecodeError
			if !errors.As(err, &de) || de.IP != 0 {
				t.Errorf("expected DecodeError at 0, got %v", err)
			}
		})
	}
}

func TestAppendToRejectsBadInstructions(t *testing.T) {
	if _, err := (Instruction{Op: OpAdd, Wide: true}).AppendTo(nil); !errors.Is(err, ErrWideUnsupported) {
		t.Errorf("WIDE ADD: got %v", err)
	}
	if _, err := (Instruction{Op: OpAssign, Operands: [MaxOperands]int{256}}).AppendTo(nil); !errors.Is(err, ErrOperandRange) {
		t.Errorf("narrow slot 256: got %v", err)
	}
	if _, err := (Instruction{Op: OpMatrix, Operands: [MaxOperands]int{300, 1}}).AppendTo(nil); !errors.Is(err, ErrOperandRange) {
		t.Errorf("count 300: got %v", err)
	}
}

func TestInstSetsWide(t *testing.T) {
	if in := Inst(OpAssign, 10); in.Wide {
		t.Error("slot 10 should not need WIDE")
	}
	if in := Inst(OpAssign, 300); !in.Wide {
		t.Error("slot 300 needs WIDE")
	}
	if in := Inst(OpJmp, 0x1234); in.Wide {
		t.Error("jump targets are never widened")
	}
}

func TestWalk(t *testing.T) {
	var code []byte
	var err error
	for _, in := range []Instruction{Inst(OpPushDbl1), Inst(OpAssign, 500), Inst(OpJmp, 0), Inst(OpRet)} {
		code, err = in.AppendTo(code)
		if err != nil {
			t.Fatal(err)
		}
	}
	var ips []int
	var ops []Opcode
	if err := Walk(code, func(ip int, in Instruction) bool {
		ips = append(ips, ip)
		ops = append(ops, in.Op)
		return true
	}); err != nil {
		t.Fatal(err)
	}
	wantIPs := []int{0, 1, 5, 8}
	if len(ips) != len(wantIPs) {
		t.Fatalf("got ips %v, want %v", ips, wantIPs)
	}
	for i := range ips {
		if ips[i] != wantIPs[i] {
			t.Errorf("ip[%d] = %d, want %d", i, ips[i], wantIPs[i])
		}
	}
	if ops[3] != OpRet {
		t.Errorf("last op = %s, want RET", ops[3])
	}
}

func TestInstructionString(t *testing.T) {
	if got := Inst(OpAssign, 300).String(); got != "WIDE ASSIGN 300" {
		t.Errorf("got %q", got)
	}
	if got := Inst(OpMatrix, 2, 3).String(); got != "MATRIX 2 3" {
		t.Errorf("got %q", got)
	}
}
