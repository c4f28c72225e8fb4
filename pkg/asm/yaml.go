package asm

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/chbinousamy/octave/pkg/value"
)

// yamlUnit is one YAML document without its constants and code
// entries, which are read and written as raw nodes. The code block uses
// the text instruction syntax.
type yamlUnit struct {
	Name       string       `yaml:"name"`
	File       string       `yaml:"file,omitempty"`
	Outputs    []string     `yaml:"outputs,flow,omitempty"`
	Inputs     []string     `yaml:"inputs,flow,omitempty"`
	Locals     []string     `yaml:"locals,flow,omitempty"`
	VarargOut  bool         `yaml:"varargout,omitempty"`
	VarargIn   bool         `yaml:"varargin,omitempty"`
	Persistent []Persistent `yaml:"persistent,omitempty"`
	Unwind     []Region     `yaml:"unwind,omitempty"`
	Lines      []Location   `yaml:"lines,omitempty"`
	ArgNames   []ArgNames   `yaml:"argnames,omitempty"`
}

// ParseYAML reads units from a YAML stream, one unit per document.
//
// Constants are YAML scalars (numbers, booleans, strings, null for []),
// sequences (a row vector, or a matrix as a sequence of rows), or
// mappings: {cell: [...]}, {handle: name}, {literal: text} in the text
// literal syntax, {anon: unit-or-mapping, captures: [...]}; any other
// mapping is a struct.
func ParseYAML(data []byte) ([]*Source, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	var units []*Source
	for {
		var doc yaml.Node
		err := dec.Decode(&doc)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("asm: %w", err)
		}
		if len(doc.Content) == 0 {
			continue
		}
		src, err := sourceFromYAML(doc.Content[0])
		if err != nil {
			return nil, err
		}
		units = append(units, src)
	}
	if len(units) == 0 {
		return nil, fmt.Errorf("asm: no units in YAML input")
	}
	return units, nil
}

func sourceFromYAML(n *yaml.Node) (*Source, error) {
	var y yamlUnit
	if err := n.Decode(&y); err != nil {
		return nil, fmt.Errorf("asm: line %d: %w", n.Line, err)
	}
	if !isIdent(y.Name) {
		return nil, &Error{Unit: "asm", Line: n.Line, Msg: fmt.Sprintf("bad unit name %q", y.Name)}
	}
	src := &Source{
		Name:       y.Name,
		File:       y.File,
		Outputs:    y.Outputs,
		Inputs:     y.Inputs,
		Locals:     y.Locals,
		VarargOut:  y.VarargOut,
		VarargIn:   y.VarargIn,
		Persistent: y.Persistent,
		Unwind:     y.Unwind,
		Locations:  y.Lines,
		ArgNames:   y.ArgNames,
		Line:       n.Line,
	}
	if cs, ok := mappingValue(n, "constants"); ok && cs.ShortTag() != "!!null" {
		if cs.Kind != yaml.SequenceNode {
			return nil, &Error{Unit: y.Name, Line: cs.Line, Msg: "constants must be a sequence"}
		}
		for _, cn := range cs.Content {
			c, err := constantFromYAML(cn)
			if err != nil {
				return nil, &Error{Unit: y.Name, Line: cn.Line, Msg: err.Error()}
			}
			src.Constants = append(src.Constants, c)
		}
	}

	code, ok := mappingValue(n, "code")
	if !ok || code.ShortTag() == "!!null" {
		return src, nil
	}
	if code.Kind != yaml.ScalarNode {
		return nil, &Error{Unit: y.Name, Line: code.Line, Msg: "code must be a text block"}
	}
	first := code.Line
	if code.Style&(yaml.LiteralStyle|yaml.FoldedStyle) != 0 {
		first++
	}
	for i, text := range strings.Split(code.Value, "\n") {
		text = strings.TrimSpace(text)
		if text == "" || text[0] == ';' || text[0] == '#' {
			continue
		}
		src.Code = append(src.Code, CodeLine{Text: text, Line: first + i})
	}
	return src, nil
}

func constantFromYAML(n *yaml.Node) (Constant, error) {
	if n.Kind == yaml.MappingNode {
		if anon, ok := mappingValue(n, "anon"); ok {
			ref := &AnonRef{}
			if caps, ok := mappingValue(n, "captures"); ok {
				if err := caps.Decode(&ref.Captures); err != nil {
					return Constant{}, err
				}
			}
			switch anon.Kind {
			case yaml.ScalarNode:
				ref.Unit = anon.Value
			case yaml.MappingNode:
				body, err := sourceFromYAML(anon)
				if err != nil {
					return Constant{}, err
				}
				ref.Source = body
			default:
				return Constant{}, fmt.Errorf("anon must name a unit or describe one")
			}
			return Constant{Anon: ref}, nil
		}
	}
	v, err := valueFromYAML(n)
	if err != nil {
		return Constant{}, err
	}
	return Constant{Value: v}, nil
}

func valueFromYAML(n *yaml.Node) (value.Value, error) {
	switch n.Kind {
	case yaml.AliasNode:
		return valueFromYAML(n.Alias)
	case yaml.ScalarNode:
		return scalarFromYAML(n)
	case yaml.SequenceNode:
		return matrixFromYAML(n)
	case yaml.MappingNode:
		if len(n.Content) == 2 {
			key, val := n.Content[0].Value, n.Content[1]
			switch key {
			case "cell":
				return cellFromYAML(val)
			case "handle":
				if val.Kind != yaml.ScalarNode || !isIdent(val.Value) {
					return nil, fmt.Errorf("handle must be a function name")
				}
				return &value.Handle{Name: val.Value}, nil
			case "literal":
				return ParseLiteral(val.Value)
			}
		}
		s := value.NewStruct()
		for i := 0; i+1 < len(n.Content); i += 2 {
			fv, err := valueFromYAML(n.Content[i+1])
			if err != nil {
				return nil, err
			}
			s = s.With(n.Content[i].Value, fv)
		}
		return s, nil
	}
	return nil, fmt.Errorf("unsupported YAML constant")
}

func scalarFromYAML(n *yaml.Node) (value.Value, error) {
	switch n.ShortTag() {
	case "!!null":
		return value.Empty(), nil
	case "!!bool":
		var b bool
		if err := n.Decode(&b); err != nil {
			return nil, err
		}
		return value.Bool(b), nil
	case "!!int", "!!float":
		var f float64
		if err := n.Decode(&f); err != nil {
			return nil, err
		}
		return value.Scalar(f), nil
	}
	return value.String(n.Value), nil
}

// matrixFromYAML reads a row of numbers or a sequence of equal-length
// rows.
func matrixFromYAML(n *yaml.Node) (value.Value, error) {
	if len(n.Content) == 0 {
		return value.Empty(), nil
	}
	var rows [][]float64
	if n.Content[0].Kind == yaml.SequenceNode {
		if err := n.Decode(&rows); err != nil {
			return nil, fmt.Errorf("matrix rows must be numbers: %w", err)
		}
	} else {
		var row []float64
		if err := n.Decode(&row); err != nil {
			return nil, fmt.Errorf("sequence constants must be numeric, use {cell: [...]}: %w", err)
		}
		rows = [][]float64{row}
	}
	cols := len(rows[0])
	data := make([]float64, len(rows)*cols)
	for r, row := range rows {
		if len(row) != cols {
			return nil, fmt.Errorf("vertical dimensions mismatch (%dx%d vs 1x%d)", r, cols, len(row))
		}
		for c, f := range row {
			data[c*len(rows)+r] = f
		}
	}
	return value.NewMatrix(len(rows), cols, data), nil
}

func cellFromYAML(n *yaml.Node) (value.Value, error) {
	if n.Kind != yaml.SequenceNode {
		return nil, fmt.Errorf("cell must be a sequence")
	}
	elems := make([]value.Value, len(n.Content))
	for i, e := range n.Content {
		v, err := valueFromYAML(e)
		if err != nil {
			return nil, err
		}
		elems[i] = v
	}
	return value.CellRow(elems...), nil
}

func mappingValue(n *yaml.Node, key string) (*yaml.Node, bool) {
	for i := 0; i+1 < len(n.Content); i += 2 {
		if n.Content[i].Value == key {
			return n.Content[i+1], true
		}
	}
	return nil, false
}

// MarshalYAML renders src as a YAML document ParseYAML reads back.
// Constants without a literal form are rejected.
func MarshalYAML(src *Source) ([]byte, error) {
	doc, err := sourceToYAML(src)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func sourceToYAML(src *Source) (*yaml.Node, error) {
	y := yamlUnit{
		Name:       src.Name,
		File:       src.File,
		Outputs:    src.Outputs,
		Inputs:     src.Inputs,
		Locals:     src.Locals,
		VarargOut:  src.VarargOut,
		VarargIn:   src.VarargIn,
		Persistent: src.Persistent,
		Unwind:     src.Unwind,
		Lines:      src.Locations,
		ArgNames:   src.ArgNames,
	}
	var constants []*yaml.Node
	for _, c := range src.Constants {
		n := &yaml.Node{Kind: yaml.MappingNode}
		switch {
		case c.Anon != nil && c.Anon.Source != nil:
			body, err := sourceToYAML(c.Anon.Source)
			if err != nil {
				return nil, err
			}
			n.Content = append(n.Content, strNode("anon"), body)
		case c.Anon != nil:
			n.Content = append(n.Content, strNode("anon"), strNode(c.Anon.Unit))
		default:
			lit, ok := FormatLiteral(c.Value)
			if !ok {
				return nil, fmt.Errorf("asm: %s: constant %s has no literal form", src.Name, value.Format(c.Value))
			}
			n.Content = append(n.Content, strNode("literal"), strNode(lit))
		}
		if c.Anon != nil && len(c.Anon.Captures) > 0 {
			caps := &yaml.Node{Kind: yaml.SequenceNode, Style: yaml.FlowStyle}
			for _, name := range c.Anon.Captures {
				caps.Content = append(caps.Content, strNode(name))
			}
			n.Content = append(n.Content, strNode("captures"), caps)
		}
		constants = append(constants, n)
	}
	lines := make([]string, len(src.Code))
	for i, cl := range src.Code {
		lines[i] = cl.Text
	}
	code := &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Style: yaml.LiteralStyle, Value: strings.Join(lines, "\n") + "\n"}

	var n yaml.Node
	if err := n.Encode(&y); err != nil {
		return nil, err
	}
	// constants and code go ahead of the tables that refer to them.
	at := len(n.Content)
	for i := 0; i+1 < len(n.Content); i += 2 {
		if k := n.Content[i].Value; k == "unwind" || k == "lines" || k == "argnames" {
			at = i
			break
		}
	}
	var body []*yaml.Node
	if len(constants) > 0 {
		body = append(body, strNode("constants"), &yaml.Node{Kind: yaml.SequenceNode, Content: constants})
	}
	body = append(body, strNode("code"), code)
	n.Content = append(n.Content[:at], append(body, n.Content[at:]...)...)
	return &n, nil
}

func strNode(s string) *yaml.Node {
	n := &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: s}
	if _, err := strconv.ParseFloat(s, 64); err == nil || s == "true" || s == "false" || s == "" {
		n.Style = yaml.DoubleQuotedStyle
	}
	return n
}
