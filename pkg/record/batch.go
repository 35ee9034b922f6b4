package record

import "fmt"

// ColumnSchema describes a single column of a batch.
type ColumnSchema struct {
	Name string
	Type ValueType
}

// Schema describes the ordered set of columns of a batch.
type Schema struct {
	Columns []ColumnSchema
}

// NewSchema creates a schema from the given columns.
func NewSchema(columns ...ColumnSchema) Schema {
	return Schema{Columns: columns}
}

// ColumnIndex returns the position of the named column, or false if the
// schema has no column with that name.
func (s Schema) ColumnIndex(name string) (int, bool) {
	for i := range s.Columns {
		if s.Columns[i].Name == name {
			return i, true
		}
	}
	return 0, false
}

// HasColumn reports whether the schema contains the named column.
func (s Schema) HasColumn(name string) bool {
	_, ok := s.ColumnIndex(name)
	return ok
}

// WithColumn returns a copy of the schema with an additional column appended.
func (s Schema) WithColumn(col ColumnSchema) Schema {
	columns := make([]ColumnSchema, 0, len(s.Columns)+1)
	columns = append(columns, s.Columns...)
	columns = append(columns, col)
	return Schema{Columns: columns}
}

// Equal reports whether two schemas have the same columns in the same order.
func (s Schema) Equal(other Schema) bool {
	if len(s.Columns) != len(other.Columns) {
		return false
	}
	for i := range s.Columns {
		if s.Columns[i] != other.Columns[i] {
			return false
		}
	}
	return true
}

// Row is a single row of values, ordered by the columns of the schema it
// belongs to.
type Row []Value

// Batch is a row-major set of rows sharing a common schema. Batches are the
// unit of data exchange between pipelines.
type Batch struct {
	Schema Schema
	Rows   []Row
}

// NewBatch creates an empty batch with the given schema and row capacity.
func NewBatch(schema Schema, capacity int) *Batch {
	return &Batch{
		Schema: schema,
		Rows:   make([]Row, 0, capacity),
	}
}

// NumRows returns the number of rows in the batch.
func (b *Batch) NumRows() int {
	if b == nil {
		return 0
	}
	return len(b.Rows)
}

// Append adds a row to the batch. It returns an error if the row width does
// not match the schema.
func (b *Batch) Append(row Row) error {
	if len(row) != len(b.Schema.Columns) {
		return fmt.Errorf("row has %d values, schema has %d columns", len(row), len(b.Schema.Columns))
	}
	b.Rows = append(b.Rows, row)
	return nil
}

// ColumnValue returns the value of the named column in the given row.
func (b *Batch) ColumnValue(row int, column string) (Value, error) {
	idx, ok := b.Schema.ColumnIndex(column)
	if !ok {
		return Value{}, fmt.Errorf("unknown column %q", column)
	}
	return b.Rows[row][idx], nil
}
