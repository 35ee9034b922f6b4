package logical

// A Builder composes plan instructions into a tree of [Value]s. Each method
// wraps the current value in a new instruction and returns a new Builder for
// the result, so intermediate builders remain valid and can be reused as
// shared inputs.
type Builder struct {
	val Value
}

// NewBuilder creates a new Builder holding the given value.
func NewBuilder(value Value) *Builder {
	return &Builder{val: value}
}

// Value returns the value the builder currently holds.
func (b *Builder) Value() Value {
	return b.val
}

// Select wraps the current value in a [Select] instruction with the given
// predicate.
func (b *Builder) Select(predicate Value) *Builder {
	return &Builder{
		val: &Select{
			Table:     b.val,
			Predicate: predicate,
		},
	}
}

// Project wraps the current value in a [Project] instruction retaining the
// given columns.
func (b *Builder) Project(columns []ProjectedColumn) *Builder {
	return &Builder{
		val: &Project{
			Table:   b.val,
			Columns: columns,
		},
	}
}

// Apply wraps the current value in an [Apply] instruction evaluating call
// per row and binding its result to the named output column.
func (b *Builder) Apply(call *FuncCall, binding string) *Builder {
	return &Builder{
		val: &Apply{
			Table:   b.val,
			Call:    call,
			Binding: binding,
		},
	}
}

// Join wraps the current value in a [Join] instruction combining it with
// right. A nil on yields the cross product.
func (b *Builder) Join(right Value, on Value) *Builder {
	return &Builder{
		val: &Join{
			Left:  b.val,
			Right: right,
			On:    on,
		},
	}
}

// Unnest wraps the current value in an [Unnest] instruction expanding the
// given list column into one row per element.
func (b *Builder) Unnest(column *ColumnRef, as string) *Builder {
	return &Builder{
		val: &Unnest{
			Table:  b.val,
			Column: column,
			As:     as,
		},
	}
}

// Limit wraps the current value in a [Limit] instruction.
func (b *Builder) Limit(skip, fetch uint32) *Builder {
	return &Builder{
		val: &Limit{
			Table: b.val,
			Skip:  skip,
			Fetch: fetch,
		},
	}
}

// ToPlan converts the value the builder holds into a [Plan].
func (b *Builder) ToPlan() (*Plan, error) {
	return convertToPlan(b.val)
}
