package record

import (
	"fmt"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.Config{
	EscapeHTML:             false,
	SortMapKeys:            true,
	ValidateJsonRawMessage: true,
}.Froze()

// valueEnvelope is the wire form of a [Value]. The type tag makes the
// encoding unambiguous and deterministic, which is required for both cache
// persistence and argument fingerprinting.
type valueEnvelope struct {
	Type  string  `json:"type"`
	Bool  bool    `json:"bool,omitempty"`
	Int   int64   `json:"int,omitempty"`
	Float float64 `json:"float,omitempty"`
	Str   string  `json:"str,omitempty"`
	Bytes []byte  `json:"bytes,omitempty"`
	List  []Value `json:"list,omitempty"`
}

// MarshalJSON implements [encoding/json.Marshaler].
func (v Value) MarshalJSON() ([]byte, error) {
	env := valueEnvelope{Type: v.ty.String()}
	switch v.ty {
	case ValueTypeNull:
	case ValueTypeBool:
		env.Bool = v.Bool()
	case ValueTypeInt:
		env.Int = v.num
	case ValueTypeFloat:
		env.Float = v.fnum
	case ValueTypeStr:
		env.Str = v.str
	case ValueTypeBytes:
		env.Bytes = v.raw
	case ValueTypeList:
		env.List = v.list
	default:
		return nil, fmt.Errorf("cannot marshal value of type %s", v.ty)
	}
	return json.Marshal(env)
}

// UnmarshalJSON implements [encoding/json.Unmarshaler].
func (v *Value) UnmarshalJSON(data []byte) error {
	var env valueEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return err
	}

	switch env.Type {
	case "null":
		*v = Null()
	case "bool":
		*v = Bool(env.Bool)
	case "int":
		*v = Int(env.Int)
	case "float":
		*v = Float(env.Float)
	case "string":
		*v = Str(env.Str)
	case "[]byte":
		*v = Bytes(env.Bytes)
	case "list":
		*v = List(env.List...)
	default:
		return fmt.Errorf("cannot unmarshal value of type %q", env.Type)
	}
	return nil
}
