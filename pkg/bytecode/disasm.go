package bytecode

import (
	"fmt"
	"strings"

	"github.com/chbinousamy/octave/pkg/value"
)

// Disassemble returns a human-readable bytecode listing for the unit.
func (u *Unit) Disassemble() string {
	var sb strings.Builder

	// Header
	sb.WriteString(fmt.Sprintf("; === %s ===\n", u.Name))
	if u.File != "" {
		sb.WriteString(fmt.Sprintf("; File: %s\n", u.File))
	}
	sb.WriteString(fmt.Sprintf("; Code: %d bytes, Slots: %d, Outputs: %d, Inputs: %d", len(u.Code), u.NumSlots, u.NumOutputs, u.NumInputs))
	if u.VarargOut {
		sb.WriteString(" [VARARGOUT]")
	}
	if u.VarargIn {
		sb.WriteString(" [VARARGIN]")
	}
	sb.WriteString("\n\n")

	// Slots
	if u.NumSlots > 0 {
		sb.WriteString("; Slots:\n")
		for i := 0; i < u.NumSlots; i++ {
			role := "local"
			switch {
			case i < u.NumOutputs:
				role = "out"
			case i < u.NumOutputs+u.NumInputs:
				role = "in"
			}
			if p, ok := u.PersistentSlots[i]; ok {
				role += fmt.Sprintf(", persistent %d", p)
			}
			sb.WriteString(fmt.Sprintf(";   [%3d] %s (%s)\n", i, u.SlotName(i), role))
		}
		sb.WriteString("\n")
	}

	// Constants
	if len(u.Constants) > 0 {
		sb.WriteString("; Constants:\n")
		for i, c := range u.Constants {
			sb.WriteString(fmt.Sprintf(";   [%3d] %s\n", i, constText(c, 40)))
		}
		sb.WriteString("\n")
	}

	// Other names
	if len(u.Names) > u.NumSlots {
		sb.WriteString("; Names:\n")
		for i := u.NumSlots; i < len(u.Names); i++ {
			sb.WriteString(fmt.Sprintf(";   [%3d] %s\n", i, u.Names[i]))
		}
		sb.WriteString("\n")
	}

	// Unwind table
	if len(u.Unwind) > 0 {
		sb.WriteString("; Unwind:\n")
		for _, e := range u.Unwind {
			sb.WriteString(fmt.Sprintf(";   %s\n", e))
		}
		sb.WriteString("\n")
	}

	// Code section
	sb.WriteString("; Code:\n")
	for _, line := range u.DisassembleToLines() {
		sb.WriteString(line)
		sb.WriteString("\n")
	}
	return sb.String()
}

// DisassembleInstruction returns a human-readable representation of the
// instruction at ip, with operands annotated from the pools.
func (u *Unit) DisassembleInstruction(ip int) string {
	line, _ := u.disassembleInstruction(ip)
	return line
}

func (u *Unit) disassembleInstruction(ip int) (string, int) {
	in, next, err := Decode(u.Code, ip)
	if err != nil {
		return fmt.Sprintf("<%v>", err), 0
	}
	text := in.String()
	var notes []string
	for i, k := range GetOpcodeInfo(in.Op).Operands {
		v := in.Operands[i]
		switch k {
		case OperandSlot:
			notes = append(notes, u.SlotName(v))
		case OperandConst, OperandFarConst:
			if c, ok := u.Const(v); ok {
				notes = append(notes, constText(c, 20))
			}
		case OperandName:
			if n, ok := u.NameAt(v); ok {
				notes = append(notes, n)
			}
		case OperandTarget:
			notes = append(notes, fmt.Sprintf("-> %04X", v))
		}
	}
	switch in.Op {
	case OpGlobalInit:
		notes = append([]string{GlobalKind(in.Operands[0]).String()}, notes...)
	case OpAssignCompound:
		notes = append(notes, value.BinaryOp(in.Operands[1]).String())
	case OpIndexID1MathyUfun:
		notes = append(notes, value.MathFunc(in.Operands[1]).Name())
	}
	if len(notes) > 0 {
		text = fmt.Sprintf("%-34s ; %s", text, strings.Join(notes, " "))
	}
	return text, next - ip
}

// DisassembleToLines returns the code listing as a slice of lines,
// each prefixed by its ip and suffixed by its source position.
func (u *Unit) DisassembleToLines() []string {
	var lines []string
	for ip := 0; ip < len(u.Code); {
		text, n := u.disassembleInstruction(ip)
		if line, col, ok := u.Location(ip); ok {
			text = fmt.Sprintf("%-60s ; line %d:%d", text, line, col)
		}
		lines = append(lines, fmt.Sprintf("%04X  %s", ip, text))
		if n == 0 {
			break
		}
		ip += n
	}
	return lines
}

// InstructionCount returns the number of instructions in the unit.
// Note: This iterates through all code, so it's O(n).
func (u *Unit) InstructionCount() int {
	count := 0
	_ = Walk(u.Code, func(int, Instruction) bool {
		count++
		return true
	})
	return count
}

func constText(v value.Value, max int) string {
	var s string
	switch t := v.(type) {
	case *value.Str:
		s = fmt.Sprintf("%q", t.S)
	case *AnonTemplate:
		s = fmt.Sprintf("@%s captures=%v", t.Unit.Name, t.Captures)
	default:
		s = value.Format(v)
	}
	s = strings.ReplaceAll(s, "\n", "\\n")
	if len(s) > max {
		s = s[:max-3] + "..."
	}
	return s
}
