package asm

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/chbinousamy/octave/pkg/bytecode"
)

// Decompile turns a unit back into its assembly description. Jump
// targets become labels; anonymous function bodies become inline
// sources.
func Decompile(u *bytecode.Unit) (*Source, error) {
	src := &Source{
		Name:      u.Name,
		File:      u.File,
		Outputs:   append([]string(nil), u.Names[:u.NumOutputs]...),
		Inputs:    append([]string(nil), u.Names[u.NumOutputs:u.NumOutputs+u.NumInputs]...),
		Locals:    append([]string(nil), u.Names[u.NumOutputs+u.NumInputs:u.NumSlots]...),
		VarargOut: u.VarargOut,
		VarargIn:  u.VarargIn,
	}
	slots := make([]int, 0, len(u.PersistentSlots))
	for s := range u.PersistentSlots {
		slots = append(slots, s)
	}
	sort.Ints(slots)
	for _, s := range slots {
		src.Persistent = append(src.Persistent, Persistent{Slot: slotRef(u, s), Index: u.PersistentSlots[s]})
	}

	for _, c := range u.Constants {
		t, ok := c.(*bytecode.AnonTemplate)
		if !ok {
			if _, ok := FormatLiteral(c); !ok {
				return nil, fmt.Errorf("asm: %s: constant %s has no literal form", u.Name, c)
			}
			src.Constants = append(src.Constants, Constant{Value: c})
			continue
		}
		body, err := Decompile(t.Unit)
		if err != nil {
			return nil, err
		}
		src.Constants = append(src.Constants, Constant{Anon: &AnonRef{Unit: t.Unit.Name, Source: body, Captures: t.Captures}})
	}

	labels := map[int]string{}
	err := bytecode.Walk(u.Code, func(_ int, in bytecode.Instruction) bool {
		if t, ok := in.Target(); ok {
			labels[t] = fmt.Sprintf("L%04X", t)
		}
		return true
	})
	if err != nil {
		return nil, fmt.Errorf("asm: %s: %w", u.Name, err)
	}
	ref := func(ip int) string {
		if l, ok := labels[ip]; ok {
			return l
		}
		if ip == len(u.Code) {
			return "$"
		}
		return fmt.Sprintf("0x%04X", ip)
	}

	err = bytecode.Walk(u.Code, func(ip int, in bytecode.Instruction) bool {
		text := instructionText(u, in, labels)
		if l, ok := labels[ip]; ok {
			text = l + ": " + text
		}
		src.Code = append(src.Code, CodeLine{Text: text})
		return true
	})
	if err != nil {
		return nil, fmt.Errorf("asm: %s: %w", u.Name, err)
	}
	if l, ok := labels[len(u.Code)]; ok {
		src.Code = append(src.Code, CodeLine{Text: l + ":"})
	}

	for _, e := range u.Unwind {
		src.Unwind = append(src.Unwind, Region{Kind: unwindKindName(e.Kind), Start: ref(e.Start), End: ref(e.End), Target: ref(e.Target), Depth: e.Depth})
	}
	for _, l := range u.Locs {
		src.Locations = append(src.Locations, Location{Start: ref(l.Start), End: ref(l.End), Line: l.Line, Col: l.Col})
	}
	for _, a := range u.ArgNames {
		src.ArgNames = append(src.ArgNames, ArgNames{Start: ref(a.Start), End: ref(a.End), Callee: a.Callee, Args: a.ArgNames})
	}
	return src, nil
}

func unwindKindName(k bytecode.UnwindKind) string {
	for name, kind := range unwindKinds {
		if kind == k {
			return name
		}
	}
	return k.String()
}

// slotRef names slot s by its variable when that name is unambiguous.
func slotRef(u *bytecode.Unit, s int) string {
	name := u.SlotName(s)
	if isIdent(name) && u.SlotIndex(name) == s {
		return name
	}
	return strconv.Itoa(s)
}

func instructionText(u *bytecode.Unit, in bytecode.Instruction, labels map[int]string) string {
	parts := []string{in.Op.String()}
	for i, k := range bytecode.GetOpcodeInfo(in.Op).Operands {
		n := in.Operands[i]
		switch {
		case k == bytecode.OperandSlot:
			parts = append(parts, slotRef(u, n))
		case k == bytecode.OperandName:
			if name, ok := u.NameAt(n); ok && isIdent(name) {
				parts = append(parts, name)
			} else {
				parts = append(parts, strconv.Itoa(n))
			}
		case k == bytecode.OperandTarget:
			parts = append(parts, labels[n])
		case in.Op == bytecode.OpGlobalInit && i == 0:
			parts = append(parts, bytecode.GlobalKind(n).String())
		default:
			parts = append(parts, strconv.Itoa(n))
		}
	}
	return strings.Join(parts, " ")
}

// Print renders a unit in the text form. Anonymous function bodies are
// printed as units of their own ahead of the unit that uses them.
func Print(u *bytecode.Unit) (string, error) {
	src, err := Decompile(u)
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	writeSource(&sb, src)
	return sb.String(), nil
}

func writeSource(sb *strings.Builder, src *Source) {
	for _, c := range src.Constants {
		if c.Anon != nil && c.Anon.Source != nil {
			writeSource(sb, c.Anon.Source)
			sb.WriteString("\n")
		}
	}

	fmt.Fprintf(sb, ".unit %s\n", src.Name)
	if src.File != "" {
		fmt.Fprintf(sb, ".file %s\n", strconv.Quote(src.File))
	}
	for _, group := range []struct {
		directive string
		names     []string
	}{{".outputs", src.Outputs}, {".inputs", src.Inputs}, {".locals", src.Locals}} {
		if len(group.names) > 0 {
			fmt.Fprintf(sb, "%s %s\n", group.directive, strings.Join(group.names, " "))
		}
	}
	if src.VarargOut {
		sb.WriteString(".varargout\n")
	}
	if src.VarargIn {
		sb.WriteString(".varargin\n")
	}
	for _, p := range src.Persistent {
		fmt.Fprintf(sb, ".persistent %s %d\n", p.Slot, p.Index)
	}
	for _, c := range src.Constants {
		if c.Anon != nil {
			fmt.Fprintf(sb, ".anon %s\n", strings.Join(append([]string{c.Anon.Unit}, c.Anon.Captures...), " "))
			continue
		}
		lit, _ := FormatLiteral(c.Value)
		fmt.Fprintf(sb, ".const %s\n", lit)
	}
	for _, r := range src.Unwind {
		fmt.Fprintf(sb, ".unwind %s %s %s %s %d\n", r.Kind, r.Start, r.End, r.Target, r.Depth)
	}
	for _, l := range src.Locations {
		fmt.Fprintf(sb, ".line %s %s %d %d\n", l.Start, l.End, l.Line, l.Col)
	}
	for _, a := range src.ArgNames {
		args := make([]string, len(a.Args))
		for i, s := range a.Args {
			args[i] = strconv.Quote(s)
		}
		fmt.Fprintf(sb, ".argnames %s %s %s %s\n", a.Start, a.End, strconv.Quote(a.Callee), strings.Join(args, " "))
	}
	for _, cl := range src.Code {
		if strings.HasSuffix(cl.Text, ":") {
			sb.WriteString(cl.Text + "\n")
			continue
		}
		if label, rest, ok := strings.Cut(cl.Text, ": "); ok {
			fmt.Fprintf(sb, "%s:\n", label)
			cl.Text = rest
		}
		fmt.Fprintf(sb, "    %s\n", cl.Text)
	}
}
