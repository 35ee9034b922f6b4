package record

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
)

const (
	typeInvalid = "invalid"
)

// ValueType represents the type of a single value inside a row.
type ValueType uint32

const (
	ValueTypeInvalid ValueType = iota // zero-value is an invalid type

	ValueTypeNull  // NULL value.
	ValueTypeBool  // Boolean value
	ValueTypeInt   // Signed 64bit integer value
	ValueTypeFloat // 64bit floating point value
	ValueTypeStr   // String value
	ValueTypeBytes // Byte-slice value
	ValueTypeList  // Ordered list of values
)

// String returns the string representation of the ValueType.
func (t ValueType) String() string {
	switch t {
	case ValueTypeInvalid:
		return typeInvalid
	case ValueTypeNull:
		return "null"
	case ValueTypeBool:
		return "bool"
	case ValueTypeInt:
		return "int"
	case ValueTypeFloat:
		return "float"
	case ValueTypeStr:
		return "string"
	case ValueTypeBytes:
		return "[]byte"
	case ValueTypeList:
		return "list"
	default:
		return typeInvalid
	}
}

// Value is a single immutable value of one of the supported [ValueType]s.
// The zero Value is invalid; use [Null] for an explicit NULL.
type Value struct {
	ty   ValueType
	num  int64
	fnum float64
	str  string
	raw  []byte
	list []Value
}

// Null returns the NULL value.
func Null() Value { return Value{ty: ValueTypeNull} }

// Bool returns a boolean value.
func Bool(v bool) Value {
	var num int64
	if v {
		num = 1
	}
	return Value{ty: ValueTypeBool, num: num}
}

// Int returns a signed 64bit integer value.
func Int(v int64) Value { return Value{ty: ValueTypeInt, num: v} }

// Float returns a 64bit floating point value.
func Float(v float64) Value { return Value{ty: ValueTypeFloat, fnum: v} }

// Str returns a string value.
func Str(v string) Value { return Value{ty: ValueTypeStr, str: v} }

// Bytes returns a byte-slice value. The slice is not copied; callers must not
// modify it afterwards.
func Bytes(v []byte) Value { return Value{ty: ValueTypeBytes, raw: v} }

// List returns an ordered list of values. The slice is not copied; callers
// must not modify it afterwards.
func List(vs ...Value) Value { return Value{ty: ValueTypeList, list: vs} }

// Type returns the type of the value.
func (v Value) Type() ValueType { return v.ty }

// IsNull reports whether the value is NULL.
func (v Value) IsNull() bool { return v.ty == ValueTypeNull }

// Bool returns the boolean value. It returns false if the value is not a
// boolean.
func (v Value) Bool() bool { return v.ty == ValueTypeBool && v.num != 0 }

// Int returns the integer value. It returns 0 if the value is not an integer.
func (v Value) Int() int64 {
	if v.ty != ValueTypeInt {
		return 0
	}
	return v.num
}

// Float returns the floating point value. It returns 0 if the value is not a
// float.
func (v Value) Float() float64 {
	if v.ty != ValueTypeFloat {
		return 0
	}
	return v.fnum
}

// Str returns the string value. It returns the empty string if the value is
// not a string.
func (v Value) Str() string {
	if v.ty != ValueTypeStr {
		return ""
	}
	return v.str
}

// Bytes returns the byte-slice value. It returns nil if the value is not a
// byte slice.
func (v Value) Bytes() []byte {
	if v.ty != ValueTypeBytes {
		return nil
	}
	return v.raw
}

// List returns the list elements. It returns nil if the value is not a list.
func (v Value) List() []Value {
	if v.ty != ValueTypeList {
		return nil
	}
	return v.list
}

// String returns a human-readable representation of the value.
func (v Value) String() string {
	switch v.ty {
	case ValueTypeNull:
		return "null"
	case ValueTypeBool:
		return strconv.FormatBool(v.Bool())
	case ValueTypeInt:
		return strconv.FormatInt(v.num, 10)
	case ValueTypeFloat:
		return strconv.FormatFloat(v.fnum, 'g', -1, 64)
	case ValueTypeStr:
		return strconv.Quote(v.str)
	case ValueTypeBytes:
		return fmt.Sprintf("0x%x", v.raw)
	case ValueTypeList:
		parts := make([]string, len(v.list))
		for i := range v.list {
			parts[i] = v.list[i].String()
		}
		return "[" + strings.Join(parts, ", ") + "]"
	default:
		return typeInvalid
	}
}

// Equal reports whether two values have the same type and contents. Numeric
// values of different types are never equal; use [Compare] for cross-type
// numeric comparisons.
func (v Value) Equal(other Value) bool {
	if v.ty != other.ty {
		return false
	}
	switch v.ty {
	case ValueTypeNull:
		return true
	case ValueTypeBool, ValueTypeInt:
		return v.num == other.num
	case ValueTypeFloat:
		return v.fnum == other.fnum
	case ValueTypeStr:
		return v.str == other.str
	case ValueTypeBytes:
		return bytes.Equal(v.raw, other.raw)
	case ValueTypeList:
		if len(v.list) != len(other.list) {
			return false
		}
		for i := range v.list {
			if !v.list[i].Equal(other.list[i]) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// isNumeric reports whether the value is an integer or a float.
func (v Value) isNumeric() bool {
	return v.ty == ValueTypeInt || v.ty == ValueTypeFloat
}

// asFloat widens a numeric value to float64.
func (v Value) asFloat() float64 {
	if v.ty == ValueTypeInt {
		return float64(v.num)
	}
	return v.fnum
}

// Compare orders two values. It returns a negative number if a sorts before b,
// zero if they are equal, and a positive number if a sorts after b. Integers
// and floats are compared numerically against each other. Comparing values of
// any other type combination, NULLs, or lists returns an error.
func Compare(a, b Value) (int, error) {
	if a.isNumeric() && b.isNumeric() {
		if a.ty == ValueTypeInt && b.ty == ValueTypeInt {
			return compareOrdered(a.num, b.num), nil
		}
		return compareOrdered(a.asFloat(), b.asFloat()), nil
	}

	if a.ty != b.ty {
		return 0, fmt.Errorf("cannot compare %s to %s", a.ty, b.ty)
	}

	switch a.ty {
	case ValueTypeBool:
		return compareOrdered(a.num, b.num), nil
	case ValueTypeStr:
		return strings.Compare(a.str, b.str), nil
	case ValueTypeBytes:
		return bytes.Compare(a.raw, b.raw), nil
	default:
		return 0, fmt.Errorf("cannot compare values of type %s", a.ty)
	}
}

func compareOrdered[T int64 | float64](a, b T) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// Size returns an estimate of the memory footprint of the value in bytes. It
// is used for cache accounting, not for exact allocation tracking.
func (v Value) Size() uint64 {
	const overhead = 24

	size := uint64(overhead)
	switch v.ty {
	case ValueTypeStr:
		size += uint64(len(v.str))
	case ValueTypeBytes:
		size += uint64(len(v.raw))
	case ValueTypeList:
		for i := range v.list {
			size += v.list[i].Size()
		}
	}
	return size
}
