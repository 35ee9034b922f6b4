package executor

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/muninndb/muninn/pkg/engine/planner/physical"
	"github.com/muninndb/muninn/pkg/record"
)

func tagsSchema() record.Schema {
	return record.NewSchema(
		record.ColumnSchema{Name: "id", Type: record.ValueTypeInt},
		record.ColumnSchema{Name: "tags", Type: record.ValueTypeList},
	)
}

func tagsBatch(rows ...record.Row) *record.Batch {
	batch := record.NewBatch(tagsSchema(), len(rows))
	batch.Rows = append(batch.Rows, rows...)
	return batch
}

func tagsRow(id int64, tags record.Value) record.Row {
	return record.Row{record.Int(id), tags}
}

func unnestNode(column, as string) *physical.Unnest {
	return &physical.Unnest{Column: colExpr(column), As: as}
}

func TestUnnestPipeline(t *testing.T) {
	t.Run("one row per element", func(t *testing.T) {
		input := newBufferPipeline(tagsBatch(
			tagsRow(1, record.List(record.Str("a"), record.Str("b"))),
			tagsRow(2, record.List(record.Str("c"))),
		))
		p := NewUnnestPipeline(unnestNode("tags", "tag"), input)
		defer p.Close()

		batch, err := p.Read(t.Context())
		require.NoError(t, err)

		// The list column is replaced in place by the element column.
		require.Equal(t, []record.ColumnSchema{
			{Name: "id", Type: record.ValueTypeInt},
			{Name: "tag", Type: record.ValueTypeStr},
		}, batch.Schema.Columns)

		require.Equal(t, []record.Row{
			{record.Int(1), record.Str("a")},
			{record.Int(1), record.Str("b")},
			{record.Int(2), record.Str("c")},
		}, batch.Rows)
	})

	t.Run("empty and NULL lists drop their rows", func(t *testing.T) {
		input := newBufferPipeline(tagsBatch(
			tagsRow(1, record.List()),
			tagsRow(2, record.Null()),
			tagsRow(3, record.List(record.Str("x"))),
		))
		p := NewUnnestPipeline(unnestNode("tags", "tag"), input)
		defer p.Close()

		rows := drain(t, p)
		require.Equal(t, []record.Row{{record.Int(3), record.Str("x")}}, rows)
	})

	t.Run("scalars expand to themselves", func(t *testing.T) {
		input := newBufferPipeline(tagsBatch(tagsRow(1, record.Str("solo"))))
		p := NewUnnestPipeline(unnestNode("tags", "tag"), input)
		defer p.Close()

		rows := drain(t, p)
		require.Equal(t, []record.Row{{record.Int(1), record.Str("solo")}}, rows)
	})

	t.Run("skips batches that expand to nothing", func(t *testing.T) {
		input := newBufferPipeline(
			tagsBatch(tagsRow(1, record.List()), tagsRow(2, record.List())),
			tagsBatch(tagsRow(3, record.List(record.Str("y")))),
		)
		p := NewUnnestPipeline(unnestNode("tags", "tag"), input)
		defer p.Close()

		batch, err := p.Read(t.Context())
		require.NoError(t, err)
		require.Equal(t, 1, batch.NumRows())

		_, err = p.Read(t.Context())
		require.ErrorIs(t, err, EOF)
	})

	t.Run("element type follows first non-null element", func(t *testing.T) {
		input := newBufferPipeline(tagsBatch(tagsRow(1, record.List(record.Null(), record.Int(7)))))
		p := NewUnnestPipeline(unnestNode("tags", "tag"), input)
		defer p.Close()

		batch, err := p.Read(t.Context())
		require.NoError(t, err)
		require.Equal(t, record.ColumnSchema{Name: "tag", Type: record.ValueTypeInt}, batch.Schema.Columns[1])
		require.Equal(t, 2, batch.NumRows())
		require.True(t, batch.Rows[0][1].IsNull())
	})

	t.Run("unknown column", func(t *testing.T) {
		input := newBufferPipeline(tagsBatch(tagsRow(1, record.List())))
		p := NewUnnestPipeline(unnestNode("missing", "tag"), input)
		defer p.Close()

		_, err := p.Read(t.Context())
		require.EqualError(t, err, `unnest references unknown column "missing"`)
	})
}
