package bytecode

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
)

// Decoding errors. The engine treats all of them as internal faults: a
// well-formed unit never produces them.
var (
	ErrTruncated       = errors.New("bytecode: truncated instruction")
	ErrUnknownOpcode   = errors.New("bytecode: unknown opcode")
	ErrWideUnsupported = errors.New("bytecode: WIDE prefix on opcode without widenable operand")
	ErrOperandRange    = errors.New("bytecode: operand out of range")
)

// DecodeError records where decoding failed.
type DecodeError struct {
	IP  int
	Op  Opcode
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("%v at %04X (%s)", e.Err, e.IP, e.Op)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Instruction is one decoded instruction. Operands are listed in the order
// of the opcode's OpcodeInfo.Operands.
type Instruction struct {
	Op       Opcode
	Wide     bool
	Operands [MaxOperands]int
}

// Inst builds an instruction, setting Wide when an operand needs it.
func Inst(op Opcode, operands ...int) Instruction {
	in := Instruction{Op: op}
	copy(in.Operands[:], operands)
	kinds := GetOpcodeInfo(op).Operands
	for i, k := range kinds {
		if k.Widenable() && in.Operands[i] > 0xFF {
			in.Wide = true
		}
	}
	return in
}

// Len returns the encoded length of the instruction.
func (in Instruction) Len() int {
	return in.Op.InstructionLen(in.Wide)
}

// Decode reads the instruction at ip, consuming a WIDE prefix if present.
// It returns the instruction and the ip of the next one.
func Decode(code []byte, ip int) (Instruction, int, error) {
	start := ip
	if ip < 0 || ip >= len(code) {
		return Instruction{}, ip, &DecodeError{IP: start, Err: ErrTruncated}
	}
	in := Instruction{Op: Opcode(code[ip])}
	ip++
	if in.Op == OpWide {
		if ip >= len(code) {
			return Instruction{}, ip, &DecodeError{IP: start, Op: OpWide, Err: ErrTruncated}
		}
		in.Wide = true
		in.Op = Opcode(code[ip])
		ip++
		if in.Op == OpWide || (in.Op.Valid() && !in.Op.CanWiden()) {
			return Instruction{}, ip, &DecodeError{IP: start, Op: in.Op, Err: ErrWideUnsupported}
		}
	}
	if !in.Op.Valid() {
		return Instruction{}, ip, &DecodeError{IP: start, Op: in.Op, Err: ErrUnknownOpcode}
	}
	for i, k := range opcodeInfoArray[in.Op].Operands {
		w := k.Width(in.Wide)
		if ip+w > len(code) {
			return Instruction{}, ip, &DecodeError{IP: start, Op: in.Op, Err: ErrTruncated}
		}
		switch w {
		case 1:
			in.Operands[i] = int(code[ip])
		case 2:
			in.Operands[i] = int(binary.BigEndian.Uint16(code[ip:]))
		case 4:
			in.Operands[i] = int(binary.BigEndian.Uint32(code[ip:]))
		}
		ip += w
	}
	return in, ip, nil
}

// AppendTo encodes the instruction onto buf.
func (in Instruction) AppendTo(buf []byte) ([]byte, error) {
	if !in.Op.Valid() || in.Op == OpWide {
		return buf, &DecodeError{IP: len(buf), Op: in.Op, Err: ErrUnknownOpcode}
	}
	if in.Wide {
		if !in.Op.CanWiden() {
			return buf, &DecodeError{IP: len(buf), Op: in.Op, Err: ErrWideUnsupported}
		}
		buf = append(buf, byte(OpWide))
	}
	buf = append(buf, byte(in.Op))
	for i, k := range opcodeInfoArray[in.Op].Operands {
		v := in.Operands[i]
		w := k.Width(in.Wide)
		if v < 0 || (w < 4 && v >= 1<<(8*w)) || (w == 4 && uint64(v) > 0xFFFFFFFF) {
			return buf, &DecodeError{IP: len(buf), Op: in.Op, Err: ErrOperandRange}
		}
		switch w {
		case 1:
			buf = append(buf, byte(v))
		case 2:
			buf = binary.BigEndian.AppendUint16(buf, uint16(v))
		case 4:
			buf = binary.BigEndian.AppendUint32(buf, uint32(v))
		}
	}
	return buf, nil
}

// Target returns the jump target of a jump instruction.
func (in Instruction) Target() (int, bool) {
	for i, k := range opcodeInfoArray[in.Op].Operands {
		if k == OperandTarget {
			return in.Operands[i], true
		}
	}
	return 0, false
}

// String formats the instruction as "[WIDE ]NAME op op".
func (in Instruction) String() string {
	var sb strings.Builder
	if in.Wide {
		sb.WriteString("WIDE ")
	}
	sb.WriteString(in.Op.String())
	for i := range opcodeInfoArray[in.Op].Operands {
		fmt.Fprintf(&sb, " %d", in.Operands[i])
	}
	return sb.String()
}

// Walk decodes every instruction of code in order, calling fn with each
// instruction's ip. It stops at the first decoding error or when fn
// returns false.
func Walk(code []byte, fn func(ip int, in Instruction) bool) error {
	for ip := 0; ip < len(code); {
		in, next, err := Decode(code, ip)
		if err != nil {
			return err
		}
		if !fn(ip, in) {
			return nil
		}
		ip = next
	}
	return nil
}
