package bytecode

import (
	"crypto/sha256"
	"fmt"

	"github.com/chbinousamy/octave/pkg/value"
	"github.com/fxamacker/cbor/v2"
)

// WireVersion is the version of the serialized unit format.
const WireVersion uint16 = 1

var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("bytecode: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

type wireUnit struct {
	Version    uint16         `cbor:"1,keyasint"`
	Name       string         `cbor:"2,keyasint"`
	File       string         `cbor:"3,keyasint,omitempty"`
	Code       []byte         `cbor:"4,keyasint"`
	Constants  []wireValue    `cbor:"5,keyasint,omitempty"`
	Names      []string       `cbor:"6,keyasint,omitempty"`
	NumSlots   int            `cbor:"7,keyasint"`
	NumOutputs int            `cbor:"8,keyasint"`
	NumInputs  int            `cbor:"9,keyasint"`
	VarargOut  bool           `cbor:"10,keyasint,omitempty"`
	VarargIn   bool           `cbor:"11,keyasint,omitempty"`
	Unwind     []UnwindEntry  `cbor:"12,keyasint,omitempty"`
	Locs       []LocEntry     `cbor:"13,keyasint,omitempty"`
	ArgNames   []ArgNameEntry `cbor:"14,keyasint,omitempty"`
	Persistent map[int]int    `cbor:"15,keyasint,omitempty"`
}

type wireKind uint8

const (
	wireMatrix wireKind = iota + 1
	wireString
	wireCell
	wireStruct
	wireObject
	wireHandle
	wireTemplate
	wireColon
	wireList
	wireUndefined
)

// wireValue is a tagged encoding of a value.Value. Only the fields of the
// active kind are set.
type wireValue struct {
	Kind     wireKind    `cbor:"1,keyasint"`
	Rows     int         `cbor:"2,keyasint,omitempty"`
	Cols     int         `cbor:"3,keyasint,omitempty"`
	Data     []float64   `cbor:"4,keyasint,omitempty"`
	Logical  bool        `cbor:"5,keyasint,omitempty"`
	Str      string      `cbor:"6,keyasint,omitempty"`
	Elems    []wireValue `cbor:"7,keyasint,omitempty"`
	Fields   []string    `cbor:"8,keyasint,omitempty"`
	Unit     *wireUnit   `cbor:"9,keyasint,omitempty"`
	Captures []string    `cbor:"10,keyasint,omitempty"`
}

// MarshalUnit serializes a Unit to canonical CBOR bytes.
func MarshalUnit(u *Unit) ([]byte, error) {
	w, err := toWireUnit(u)
	if err != nil {
		return nil, err
	}
	return cborEncMode.Marshal(w)
}

// UnmarshalUnit deserializes a Unit from CBOR bytes.
func UnmarshalUnit(data []byte) (*Unit, error) {
	var w wireUnit
	if err := cbor.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("bytecode: unmarshal unit: %w", err)
	}
	return fromWireUnit(&w)
}

// ContentHash returns the SHA-256 of the unit's canonical encoding. Two
// units with the same hash are interchangeable.
func ContentHash(u *Unit) ([32]byte, error) {
	data, err := MarshalUnit(u)
	if err != nil {
		return [32]byte{}, err
	}
	return sha256.Sum256(data), nil
}

func toWireUnit(u *Unit) (*wireUnit, error) {
	w := &wireUnit{
		Version:    WireVersion,
		Name:       u.Name,
		File:       u.File,
		Code:       u.Code,
		Names:      u.Names,
		NumSlots:   u.NumSlots,
		NumOutputs: u.NumOutputs,
		NumInputs:  u.NumInputs,
		VarargOut:  u.VarargOut,
		VarargIn:   u.VarargIn,
		Unwind:     u.Unwind,
		Locs:       u.Locs,
		ArgNames:   u.ArgNames,
		Persistent: u.PersistentSlots,
	}
	for i, c := range u.Constants {
		wv, err := toWireValue(c)
		if err != nil {
			return nil, fmt.Errorf("bytecode: unit %s constant %d: %w", u.Name, i, err)
		}
		w.Constants = append(w.Constants, wv)
	}
	return w, nil
}

func fromWireUnit(w *wireUnit) (*Unit, error) {
	if w.Version > WireVersion {
		return nil, fmt.Errorf("bytecode: unit version %d is newer than supported version %d", w.Version, WireVersion)
	}
	u := &Unit{
		Name:            w.Name,
		File:            w.File,
		Code:            w.Code,
		Names:           w.Names,
		NumSlots:        w.NumSlots,
		NumOutputs:      w.NumOutputs,
		NumInputs:       w.NumInputs,
		VarargOut:       w.VarargOut,
		VarargIn:        w.VarargIn,
		Unwind:          w.Unwind,
		Locs:            w.Locs,
		ArgNames:        w.ArgNames,
		PersistentSlots: w.Persistent,
	}
	for i := range w.Constants {
		v, err := fromWireValue(&w.Constants[i])
		if err != nil {
			return nil, fmt.Errorf("bytecode: unit %s constant %d: %w", w.Name, i, err)
		}
		u.Constants = append(u.Constants, v)
	}
	SortUnwind(u.Unwind)
	SortArgNames(u.ArgNames)
	return u, nil
}

func toWireValues(vals []value.Value) ([]wireValue, error) {
	out := make([]wireValue, len(vals))
	for i, v := range vals {
		wv, err := toWireValue(v)
		if err != nil {
			return nil, err
		}
		out[i] = wv
	}
	return out, nil
}

func toWireValue(v value.Value) (wireValue, error) {
	switch t := v.(type) {
	case nil:
		return wireValue{Kind: wireUndefined}, nil
	case *value.Matrix:
		return wireValue{Kind: wireMatrix, Rows: t.Rows, Cols: t.Cols, Data: t.Data, Logical: t.Logical}, nil
	case *value.Str:
		return wireValue{Kind: wireString, Str: t.S}, nil
	case *value.Cell:
		elems, err := toWireValues(t.Elems)
		return wireValue{Kind: wireCell, Rows: t.Rows, Cols: t.Cols, Elems: elems}, err
	case *value.CSList:
		elems, err := toWireValues(t.Elems)
		return wireValue{Kind: wireList, Elems: elems}, err
	case *value.Struct:
		names := t.FieldNames()
		vals := make([]value.Value, len(names))
		for i, n := range names {
			vals[i], _ = t.Field(n)
		}
		elems, err := toWireValues(vals)
		return wireValue{Kind: wireStruct, Fields: names, Elems: elems}, err
	case *value.Object:
		props, err := toWireValue(t.Props)
		return wireValue{Kind: wireObject, Str: t.ClassName, Elems: []wireValue{props}}, err
	case *value.Handle:
		if t.Body != nil {
			return wireValue{}, fmt.Errorf("anonymous handle %s cannot be serialized", t)
		}
		return wireValue{Kind: wireHandle, Str: t.Name}, nil
	case *AnonTemplate:
		wu, err := toWireUnit(t.Unit)
		return wireValue{Kind: wireTemplate, Unit: wu, Captures: t.Captures}, err
	case value.Colon:
		return wireValue{Kind: wireColon}, nil
	}
	return wireValue{}, fmt.Errorf("unsupported constant type %T", v)
}

func fromWireValues(ws []wireValue) ([]value.Value, error) {
	out := make([]value.Value, len(ws))
	for i := range ws {
		v, err := fromWireValue(&ws[i])
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func fromWireValue(w *wireValue) (value.Value, error) {
	switch w.Kind {
	case wireUndefined:
		return nil, nil
	case wireMatrix:
		if len(w.Data) != w.Rows*w.Cols {
			return nil, fmt.Errorf("matrix %dx%d has %d elements", w.Rows, w.Cols, len(w.Data))
		}
		m := value.NewMatrix(w.Rows, w.Cols, w.Data)
		if m.Data == nil {
			m.Data = []float64{}
		}
		m.Logical = w.Logical
		return m, nil
	case wireString:
		return value.String(w.Str), nil
	case wireCell:
		elems, err := fromWireValues(w.Elems)
		if err != nil {
			return nil, err
		}
		if len(elems) != w.Rows*w.Cols {
			return nil, fmt.Errorf("cell %dx%d has %d elements", w.Rows, w.Cols, len(elems))
		}
		return &value.Cell{Rows: w.Rows, Cols: w.Cols, Elems: elems}, nil
	case wireList:
		elems, err := fromWireValues(w.Elems)
		if err != nil {
			return nil, err
		}
		return value.List(elems...), nil
	case wireStruct:
		elems, err := fromWireValues(w.Elems)
		if err != nil {
			return nil, err
		}
		if len(elems) != len(w.Fields) {
			return nil, fmt.Errorf("struct has %d fields and %d values", len(w.Fields), len(elems))
		}
		s := value.NewStruct()
		for i, n := range w.Fields {
			s = s.With(n, elems[i])
		}
		return s, nil
	case wireObject:
		if len(w.Elems) != 1 {
			return nil, fmt.Errorf("object %s without properties", w.Str)
		}
		props, err := fromWireValue(&w.Elems[0])
		if err != nil {
			return nil, err
		}
		ps, ok := props.(*value.Struct)
		if !ok {
			return nil, fmt.Errorf("object %s properties are %T", w.Str, props)
		}
		return &value.Object{ClassName: w.Str, Props: ps}, nil
	case wireHandle:
		return &value.Handle{Name: w.Str}, nil
	case wireTemplate:
		if w.Unit == nil {
			return nil, fmt.Errorf("anonymous function template without body")
		}
		u, err := fromWireUnit(w.Unit)
		if err != nil {
			return nil, err
		}
		return &AnonTemplate{Unit: u, Captures: w.Captures}, nil
	case wireColon:
		return value.Colon{}, nil
	}
	return nil, fmt.Errorf("unknown value kind %d", w.Kind)
}
