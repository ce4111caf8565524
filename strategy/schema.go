package strategy

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/samber/lo"
	"golang.org/x/text/cases"

	"github.com/syssam/dbx"
	"github.com/syssam/dbx/dialect"
	dsql "github.com/syssam/dbx/dialect/sql"
	"github.com/syssam/dbx/param"
)

// Schema reads catalog metadata and runs maintenance statements for one
// engine. Methods receive the connection or transaction to run on.
type Schema interface {
	// PrimaryKeys returns the primary key columns of table in key order.
	PrimaryKeys(ctx context.Context, q dialect.ExecQuerier, table string) ([]string, error)
	// Columns returns the columns of table in declaration order.
	Columns(ctx context.Context, q dialect.ExecQuerier, table string) ([]string, error)
	// SequenceColumns returns the columns of table fed by a sequence or
	// identity generator.
	SequenceColumns(ctx context.Context, q dialect.ExecQuerier, table string) ([]string, error)
	// FindSequenceColumn picks the column whose sequence ResetSequence
	// should move.
	FindSequenceColumn(ctx context.Context, q dialect.ExecQuerier, table string) (string, error)
	// ResetSequence moves the generator of column past the largest stored
	// value.
	ResetSequence(ctx context.Context, q dialect.ExecQuerier, table, column string) error
	Vacuum(ctx context.Context, q dialect.ExecQuerier, table string) error
	Reindex(ctx context.Context, q dialect.ExecQuerier, table string) error
	// Cluster physically reorders table by index, or by the previously
	// clustered index when index is empty.
	Cluster(ctx context.Context, q dialect.ExecQuerier, table, index string) error
}

// engine is the catalog and maintenance SQL of one dialect. Catalog
// queries bind the table name to each of their placeholders.
type engine interface {
	primaryKeysQuery() string
	columnsQuery() string
	sequenceColumnsQuery() (query string, nargs int)
	resetSequence(table, column string) (query string, args []any)
	vacuum(table string) (string, error)
	reindex(table string) (string, error)
	cluster(table, index string) (string, error)
}

// catalog implements Schema over an engine, caching catalog lookups.
type catalog struct {
	d     dialect.Descriptor
	eng   engine
	cache *dbx.Cache
	ttl   time.Duration
}

var _ Schema = (*catalog)(nil)

func (c *catalog) PrimaryKeys(ctx context.Context, q dialect.ExecQuerier, table string) ([]string, error) {
	return c.lookup("pk", table, func() ([]string, error) {
		return c.list(ctx, q, c.eng.primaryKeysQuery(), table)
	})
}

func (c *catalog) Columns(ctx context.Context, q dialect.ExecQuerier, table string) ([]string, error) {
	return c.lookup("columns", table, func() ([]string, error) {
		return c.list(ctx, q, c.eng.columnsQuery(), table)
	})
}

func (c *catalog) SequenceColumns(ctx context.Context, q dialect.ExecQuerier, table string) ([]string, error) {
	return c.lookup("sequence", table, func() ([]string, error) {
		query, n := c.eng.sequenceColumnsQuery()
		return c.list(ctx, q, query, lo.RepeatBy(n, func(int) any { return table })...)
	})
}

// FindSequenceColumn prefers a primary key fed by a sequence, then any
// sequence column, then any primary key. Within each group a column whose
// name contains "id" wins. The fallback is "id".
func (c *catalog) FindSequenceColumn(ctx context.Context, q dialect.ExecQuerier, table string) (string, error) {
	seq, err := c.SequenceColumns(ctx, q, table)
	if err != nil {
		return "", err
	}
	pks, err := c.PrimaryKeys(ctx, q, table)
	if err != nil {
		return "", err
	}
	both := lo.Filter(seq, func(n string, _ int) bool { return lo.Contains(pks, n) })
	for _, group := range [][]string{both, seq, pks} {
		if len(group) == 0 {
			continue
		}
		if col, ok := lo.Find(group, func(n string) bool {
			return strings.Contains(strings.ToLower(n), "id")
		}); ok {
			return col, nil
		}
		return group[0], nil
	}
	return "id", nil
}

func (c *catalog) ResetSequence(ctx context.Context, q dialect.ExecQuerier, table, column string) error {
	query, args := c.eng.resetSequence(table, column)
	if query == "" {
		return nil
	}
	return c.exec(ctx, q, "reset sequence", query, args...)
}

func (c *catalog) Vacuum(ctx context.Context, q dialect.ExecQuerier, table string) error {
	query, err := c.eng.vacuum(table)
	if err != nil {
		return err
	}
	return c.exec(ctx, q, "vacuum", query)
}

func (c *catalog) Reindex(ctx context.Context, q dialect.ExecQuerier, table string) error {
	query, err := c.eng.reindex(table)
	if err != nil {
		return err
	}
	return c.exec(ctx, q, "reindex", query)
}

func (c *catalog) Cluster(ctx context.Context, q dialect.ExecQuerier, table, index string) error {
	query, err := c.eng.cluster(table, index)
	if err != nil {
		return err
	}
	return c.exec(ctx, q, "cluster", query)
}

// lookup serves a catalog list from the cache. Callers get their own copy.
func (c *catalog) lookup(kind, table string, fetch func() ([]string, error)) ([]string, error) {
	if c.cache == nil {
		return fetch()
	}
	key := fmt.Sprintf("strategy:%s:%s:%s", c.d.Name(), kind, cases.Fold().String(table))
	names, err := dbx.GetOrCompute(c.cache, key, c.ttl, fetch)
	if err != nil {
		return nil, err
	}
	return slices.Clone(names), nil
}

// list runs a catalog query and returns its first column.
func (c *catalog) list(ctx context.Context, q dialect.ExecQuerier, query string, args ...any) (_ []string, rerr error) {
	b, err := param.Process(query, c.d, args...)
	if err != nil {
		return nil, err
	}
	var rows dsql.Rows
	if err := q.Query(ctx, b.SQL, b.Args, &rows); err != nil {
		return nil, fmt.Errorf("strategy: %s catalog: %w", c.d.Name(), err)
	}
	defer func() {
		if err := rows.Close(); err != nil && rerr == nil {
			rerr = err
		}
	}()
	names := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("strategy: scan catalog row: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("strategy: read catalog rows: %w", err)
	}
	return names, nil
}

func (c *catalog) exec(ctx context.Context, q dialect.ExecQuerier, op, query string, args ...any) error {
	b, err := param.Process(query, c.d, args...)
	if err != nil {
		return err
	}
	if err := q.Exec(ctx, b.SQL, b.Args, nil); err != nil {
		return fmt.Errorf("strategy: %s %s: %w", c.d.Name(), op, err)
	}
	return nil
}
