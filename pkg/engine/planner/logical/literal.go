package logical

import (
	"github.com/muninndb/muninn/pkg/record"
)

// A Literal represents a constant value within a plan. Literal only
// implements [Value].
type Literal struct {
	val record.Value
}

var (
	_ Value = (*Literal)(nil)
)

// LiteralType is the set of Go types that can be lifted into a [Literal].
type LiteralType interface {
	bool | int64 | float64 | string | []byte
}

// NewLiteral creates a new Literal from the given Go value.
func NewLiteral[T LiteralType](value T) *Literal {
	switch value := any(value).(type) {
	case bool:
		return &Literal{val: record.Bool(value)}
	case int64:
		return &Literal{val: record.Int(value)}
	case float64:
		return &Literal{val: record.Float(value)}
	case string:
		return &Literal{val: record.Str(value)}
	case []byte:
		return &Literal{val: record.Bytes(value)}
	}
	panic("unreachable")
}

// NewLiteralValue creates a new Literal from the given [record.Value]. It
// covers values without a Go equivalent in [LiteralType], such as NULL and
// lists.
func NewLiteralValue(value record.Value) *Literal {
	return &Literal{val: value}
}

// Name returns the string representation of the literal value.
func (l *Literal) Name() string {
	return l.val.String()
}

// String returns [Literal.Name].
func (l *Literal) String() string {
	return l.Name()
}

// Value returns the wrapped [record.Value].
func (l *Literal) Value() record.Value {
	return l.val
}

func (l *Literal) isValue() {}
