// Package strategy selects the per-engine behavior of a connection: its
// dialect descriptor, upsert generation and schema maintenance.
//
//	disp := strategy.NewDispatcher(cache, 5*time.Minute)
//	s, err := disp.ForConnection(drv)
//	if err != nil {
//		return err
//	}
//	pks, err := s.Schema.PrimaryKeys(ctx, drv, "users")
package strategy

import (
	"context"
	"fmt"
	"time"

	"github.com/syssam/dbx"
	"github.com/syssam/dbx/dialect"
	"github.com/syssam/dbx/upsert"
)

// DefaultTTL is how long strategies and catalog lookups stay cached.
const DefaultTTL = 5 * time.Minute

// Strategy is the engine-specific behavior bound to one dialect.
type Strategy struct {
	Dialect dialect.Descriptor
	Upsert  Upserter
	Schema  Schema
}

// Upserter generates and runs upserts for one dialect, taking primary
// keys and table columns from the dialect's schema.
type Upserter struct {
	d      dialect.Descriptor
	schema Schema
}

// Generate builds the one-row upsert template for table.
func (u Upserter) Generate(table string, columns []string, p upsert.Policy) (*upsert.Statement, error) {
	return upsert.Generate(u.d, table, columns, p)
}

// Run upserts rows into table in one transaction. The schema is consulted
// unless opts already names one.
func (u Upserter) Run(ctx context.Context, conn upsert.Conn, table string, rows []map[string]any, p upsert.Policy, opts upsert.Options) (int64, error) {
	if opts.Schema == nil {
		opts.Schema = u.schema
	}
	return upsert.Run(ctx, conn, u.d, table, rows, p, opts)
}

// Dispatcher resolves connections to strategies. Strategies are built
// once per dialect and shared.
type Dispatcher struct {
	cache *dbx.Cache
	ttl   time.Duration
}

// NewDispatcher returns a dispatcher that keeps strategies and catalog
// lookups in cache for ttl. A nil cache disables caching; a non-positive
// ttl selects DefaultTTL.
func NewDispatcher(cache *dbx.Cache, ttl time.Duration) *Dispatcher {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Dispatcher{cache: cache, ttl: ttl}
}

// ForConnection returns the strategy for the dialect of conn.
func (d *Dispatcher) ForConnection(conn interface{ Dialect() string }) (*Strategy, error) {
	return d.ForDialect(conn.Dialect())
}

// ForDialect returns the strategy for a dialect or driver name.
func (d *Dispatcher) ForDialect(name string) (*Strategy, error) {
	desc, ok := dialect.Lookup(name)
	if !ok {
		return nil, dbx.NewUnsupportedOperationError("strategy", name)
	}
	if d.cache == nil {
		return d.build(desc)
	}
	return dbx.GetOrCompute(d.cache, "strategy:"+desc.Name(), d.ttl, func() (*Strategy, error) {
		return d.build(desc)
	})
}

// Clear drops every cached strategy and catalog lookup.
func (d *Dispatcher) Clear() {
	if d.cache != nil {
		d.cache.Clear()
	}
}

func (d *Dispatcher) build(desc dialect.Descriptor) (*Strategy, error) {
	eng, err := engineFor(desc)
	if err != nil {
		return nil, fmt.Errorf("strategy: %w", err)
	}
	schema := &catalog{d: desc, eng: eng, cache: d.cache, ttl: d.ttl}
	return &Strategy{
		Dialect: desc,
		Upsert:  Upserter{d: desc, schema: schema},
		Schema:  schema,
	}, nil
}
