package asm

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Parse reads units in the text form. Each unit starts with a ".unit"
// directive; the other directives and the instruction lines that follow
// belong to it.
func Parse(r io.Reader) ([]*Source, error) {
	p := &textParser{}
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		p.line++
		if err := p.parseLine(sc.Text()); err != nil {
			return nil, err
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if len(p.units) == 0 {
		return nil, fmt.Errorf("asm: no .unit directive")
	}
	return p.units, nil
}

// ParseString is Parse over a string.
func ParseString(s string) ([]*Source, error) {
	return Parse(strings.NewReader(s))
}

type textParser struct {
	units []*Source
	cur   *Source
	line  int
}

func (p *textParser) errorf(format string, args ...any) error {
	name := "asm"
	if p.cur != nil {
		name = p.cur.Name
	}
	return &Error{Unit: name, Line: p.line, Msg: fmt.Sprintf(format, args...)}
}

func (p *textParser) parseLine(text string) error {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" || trimmed[0] == ';' || trimmed[0] == '#' {
		return nil
	}
	if trimmed[0] != '.' {
		if p.cur == nil {
			return p.errorf("instruction before .unit")
		}
		p.cur.Code = append(p.cur.Code, CodeLine{Text: trimmed, Line: p.line})
		return nil
	}

	directive, rest, _ := strings.Cut(trimmed, " ")
	rest = strings.TrimSpace(rest)
	if directive == ".unit" {
		fields, err := splitFields(rest)
		if err != nil || len(fields) != 1 || !isIdent(fields[0]) {
			return p.errorf(".unit takes a name")
		}
		p.cur = &Source{Name: fields[0], Line: p.line}
		p.units = append(p.units, p.cur)
		return nil
	}
	if p.cur == nil {
		return p.errorf("%s before .unit", directive)
	}
	fields, err := splitFields(rest)
	if err != nil {
		return p.errorf("%v", err)
	}
	src := p.cur

	switch directive {
	case ".file":
		if len(fields) != 1 {
			return p.errorf(".file takes a path")
		}
		src.File = unquote(fields[0])
	case ".outputs":
		src.Outputs = append(src.Outputs, fields...)
	case ".inputs":
		src.Inputs = append(src.Inputs, fields...)
	case ".locals":
		src.Locals = append(src.Locals, fields...)
	case ".varargout":
		src.VarargOut = true
	case ".varargin":
		src.VarargIn = true
	case ".persistent":
		if len(fields) != 2 {
			return p.errorf(".persistent takes a slot and an index")
		}
		idx, err := p.ints(fields[1:], 1, directive)
		if err != nil {
			return err
		}
		src.Persistent = append(src.Persistent, Persistent{Slot: fields[0], Index: idx[0]})
	case ".const":
		if len(fields) != 1 {
			return p.errorf(".const takes one literal")
		}
		v, err := ParseLiteral(fields[0])
		if err != nil {
			return p.errorf("%v", err)
		}
		src.Constants = append(src.Constants, Constant{Value: v})
	case ".anon":
		if len(fields) == 0 {
			return p.errorf(".anon takes a unit name and captures")
		}
		src.Constants = append(src.Constants, Constant{Anon: &AnonRef{Unit: fields[0], Captures: fields[1:]}})
	case ".unwind":
		if len(fields) != 5 {
			return p.errorf(".unwind takes kind, start, end, target and depth")
		}
		depth, err := p.ints(fields[4:], 1, directive)
		if err != nil {
			return err
		}
		src.Unwind = append(src.Unwind, Region{Kind: fields[0], Start: fields[1], End: fields[2], Target: fields[3], Depth: depth[0]})
	case ".line":
		if len(fields) != 4 {
			return p.errorf(".line takes start, end, line and column")
		}
		pos, err := p.ints(fields[2:], 2, directive)
		if err != nil {
			return err
		}
		src.Locations = append(src.Locations, Location{Start: fields[0], End: fields[1], Line: pos[0], Col: pos[1]})
	case ".argnames":
		if len(fields) < 3 {
			return p.errorf(".argnames takes start, end, callee and argument texts")
		}
		args := make([]string, len(fields)-3)
		for i, f := range fields[3:] {
			args[i] = unquote(f)
		}
		src.ArgNames = append(src.ArgNames, ArgNames{Start: fields[0], End: fields[1], Callee: unquote(fields[2]), Args: args})
	default:
		return p.errorf("unknown directive %s", directive)
	}
	return nil
}

func (p *textParser) ints(fields []string, n int, directive string) ([]int, error) {
	if len(fields) != n {
		return nil, p.errorf("%s: want %d numbers", directive, n)
	}
	out := make([]int, n)
	for i, f := range fields {
		v, err := strconv.Atoi(f)
		if err != nil {
			return nil, p.errorf("%s: bad number %q", directive, f)
		}
		out[i] = v
	}
	return out, nil
}

func unquote(s string) string {
	if strings.HasPrefix(s, `"`) {
		if u, err := strconv.Unquote(s); err == nil {
			return u
		}
	}
	return s
}
