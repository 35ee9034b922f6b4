package storage

import (
	"context"
	"fmt"
	"io"

	"github.com/muninndb/muninn/pkg/record"
)

// DefaultBatchSize is the number of rows per batch yielded by a [MemSource]
// unless configured otherwise.
const DefaultBatchSize = 1024

// MemSource is an in-memory [Source]. It is primarily meant for tests and
// small embedded datasets.
type MemSource struct {
	// BatchSize caps the rows per yielded batch. Zero means
	// [DefaultBatchSize].
	BatchSize int

	name   string
	schema record.Schema
	rows   []record.Row
}

var _ Source = (*MemSource)(nil)

// NewMemSource builds a source named name over the given rows. Every row must
// match the width of schema.
func NewMemSource(name string, schema record.Schema, rows []record.Row) (*MemSource, error) {
	for i, row := range rows {
		if len(row) != len(schema.Columns) {
			return nil, fmt.Errorf("row %d has %d values, schema has %d columns", i, len(row), len(schema.Columns))
		}
	}
	return &MemSource{name: name, schema: schema, rows: rows}, nil
}

func (s *MemSource) Name() string { return s.name }

func (s *MemSource) Schema() record.Schema { return s.schema }

func (s *MemSource) Open(_ context.Context) (Iterator, error) {
	return &memIterator{src: s}, nil
}

func (s *MemSource) batchSize() int {
	if s.BatchSize > 0 {
		return s.BatchSize
	}
	return DefaultBatchSize
}

type memIterator struct {
	src  *MemSource
	next int
}

// Next returns the next batch as a zero-copy slice of the source rows.
func (it *memIterator) Next(ctx context.Context) (*record.Batch, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if it.next >= len(it.src.rows) {
		return nil, io.EOF
	}

	end := min(it.next+it.src.batchSize(), len(it.src.rows))
	batch := &record.Batch{
		Schema: it.src.schema,
		Rows:   it.src.rows[it.next:end],
	}
	it.next = end
	return batch, nil
}

func (it *memIterator) Close() error { return nil }
