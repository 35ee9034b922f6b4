// Package types holds types that are shared between the logical and the
// physical representation of a query plan.
package types

import "fmt"

// ColumnType denotes where a referenced column originates from.
type ColumnType int

// Recognized values of [ColumnType].
const (
	// ColumnTypeInvalid indicates an invalid column type.
	ColumnTypeInvalid ColumnType = iota

	// ColumnTypeTable refers to a column defined by the schema of the scanned
	// table.
	ColumnTypeTable
	// ColumnTypeBinding refers to a column produced by the output binding of
	// an Apply node or by an Unnest node.
	ColumnTypeBinding
	// ColumnTypeAmbiguous refers to a column whose origin is not known at plan
	// construction time. It is resolved against the available columns during
	// physical planning.
	ColumnTypeAmbiguous
)

var columnTypeStrings = map[ColumnType]string{
	ColumnTypeInvalid:   "invalid",
	ColumnTypeTable:     "table",
	ColumnTypeBinding:   "binding",
	ColumnTypeAmbiguous: "ambiguous",
}

// String returns the string representation of the ColumnType.
func (t ColumnType) String() string {
	if s, ok := columnTypeStrings[t]; ok {
		return s
	}
	return fmt.Sprintf("ColumnType(%d)", t)
}

// ColumnRef references a column of a given [ColumnType] by name.
type ColumnRef struct {
	Column string     // Name of the column.
	Type   ColumnType // Origin of the column.
}

// String returns the string representation of the column reference, which is
// the column type and the column name joined by a dot (`.`).
func (r ColumnRef) String() string {
	return fmt.Sprintf("%s.%s", r.Type, r.Column)
}
