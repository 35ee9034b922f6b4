// Package storage defines the contract between the query engine and the
// tables it scans. Sources hand out lazy batch iterators; the engine never
// materializes a table in full.
package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/muninndb/muninn/pkg/record"
)

// Source describes a named table the engine can scan. Open may be called any
// number of times; every call returns an independent iterator positioned at
// the start of the data.
type Source interface {
	// Name returns the table name scans refer to.
	Name() string
	// Schema returns the schema of the batches the source yields.
	Schema() record.Schema
	// Open starts a new scan over the source.
	Open(ctx context.Context) (Iterator, error)
}

// Iterator yields batches of rows. Next returns io.EOF once the source is
// exhausted. Iterators are not safe for concurrent use.
type Iterator interface {
	Next(ctx context.Context) (*record.Batch, error)
	Close() error
}

// Catalog resolves table names to sources. It is safe for concurrent use.
type Catalog struct {
	mtx     sync.RWMutex
	sources map[string]Source
}

func NewCatalog() *Catalog {
	return &Catalog{sources: make(map[string]Source)}
}

// Register adds src to the catalog. Registering a name twice is an error.
func (c *Catalog) Register(src Source) error {
	name := src.Name()
	if name == "" {
		return fmt.Errorf("source has no name")
	}

	c.mtx.Lock()
	defer c.mtx.Unlock()
	if _, ok := c.sources[name]; ok {
		return fmt.Errorf("source %q already registered", name)
	}
	c.sources[name] = src
	return nil
}

// Lookup returns the source registered under name.
func (c *Catalog) Lookup(name string) (Source, bool) {
	c.mtx.RLock()
	defer c.mtx.RUnlock()
	src, ok := c.sources[name]
	return src, ok
}

// TableSchema returns the schema of the source registered under name. It
// satisfies the planner's catalog interface.
func (c *Catalog) TableSchema(name string) (record.Schema, error) {
	src, ok := c.Lookup(name)
	if !ok {
		return record.Schema{}, fmt.Errorf("unknown table %q", name)
	}
	return src.Schema(), nil
}

// Names returns the registered table names in sorted order.
func (c *Catalog) Names() []string {
	c.mtx.RLock()
	defer c.mtx.RUnlock()

	names := make([]string, 0, len(c.sources))
	for name := range c.sources {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
