package client

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	dsql "github.com/syssam/dbx/dialect/sql"
	"github.com/syssam/dbx/param"
	"github.com/syssam/dbx/result"
)

// ErrMultipleRows is returned by SelectRow when the query matched more
// than one row.
var ErrMultipleRows = errors.New("client: query returned more than one row")

// SelectAll runs query and returns every result set it produced. Each set
// carries its own column descriptions, also when it has no rows.
func (c *Client) SelectAll(ctx context.Context, query string, args ...any) ([]result.Set, error) {
	b, err := c.proc.Process(query, c.desc, args...)
	if err != nil {
		return nil, err
	}
	q, inTx, err := c.conn(ctx)
	if err != nil {
		return nil, err
	}
	var raw []dsql.RawResult
	err = c.do(ctx, inTx, func(ctx context.Context) error {
		var rows dsql.Rows
		if err := q.Query(ctx, b.SQL, b.Args, &rows); err != nil {
			return err
		}
		var err error
		raw, err = dsql.ScanAll(rows)
		return err
	})
	if err != nil {
		return nil, dsql.Classify(err)
	}
	return result.FromRaw(c.registry, c.desc.ID, raw, c.infer), nil
}

// Select runs query and returns the result set chosen by the client's
// result policy.
func (c *Client) Select(ctx context.Context, query string, args ...any) (result.Set, error) {
	sets, err := c.SelectAll(ctx, query, args...)
	if err != nil {
		return result.Set{}, err
	}
	set, _ := result.Pick(sets, c.policy)
	return set, nil
}

// Load runs query and shapes the selected result set with the client's
// loader.
func (c *Client) Load(ctx context.Context, query string, args ...any) (any, error) {
	set, err := c.Select(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return c.loader.Load(set)
}

// SelectColumn returns the first column of every row.
func (c *Client) SelectColumn(ctx context.Context, query string, args ...any) ([]any, error) {
	set, err := c.Select(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	values := make([]any, 0, set.Len())
	for _, row := range set.Rows {
		if len(row) > 0 {
			values = append(values, row[0])
		}
	}
	return values, nil
}

// SelectRow returns the only row of the result keyed by column name. It
// fails with sql.ErrNoRows when there is none and with ErrMultipleRows
// when there are several.
func (c *Client) SelectRow(ctx context.Context, query string, args ...any) (map[string]any, error) {
	set, err := c.Select(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	switch set.Len() {
	case 0:
		return nil, sql.ErrNoRows
	case 1:
		return set.Maps()[0], nil
	default:
		return nil, fmt.Errorf("%w: got %d", ErrMultipleRows, set.Len())
	}
}

// SelectScalar returns the first column of the first row, or
// sql.ErrNoRows.
func (c *Client) SelectScalar(ctx context.Context, query string, args ...any) (any, error) {
	set, err := c.Select(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	v, ok := set.Scalar()
	if !ok {
		return nil, sql.ErrNoRows
	}
	return v, nil
}

// Execute runs a statement and returns the number of affected rows.
func (c *Client) Execute(ctx context.Context, query string, args ...any) (int64, error) {
	b, err := c.proc.Process(query, c.desc, args...)
	if err != nil {
		return 0, err
	}
	q, inTx, err := c.conn(ctx)
	if err != nil {
		return 0, err
	}
	var res sql.Result
	err = c.do(ctx, inTx, func(ctx context.Context) error {
		return q.Exec(ctx, b.SQL, b.Args, &res)
	})
	if err != nil {
		return 0, dsql.Classify(err)
	}
	return affected(res), nil
}

// ExecuteMany runs query once per argument list in one transaction and
// returns the total of affected rows. Every statement is rewritten before
// the transaction starts. Argument lists run in batches sized to the
// parameter limit of the dialect.
func (c *Client) ExecuteMany(ctx context.Context, query string, argsList [][]any) (int64, error) {
	if len(argsList) == 0 {
		c.log.WarnContext(ctx, "client: execute many called without argument lists")
		return 0, nil
	}
	bound := make([]*param.Bound, len(argsList))
	for i, args := range argsList {
		b, err := c.proc.Process(query, c.desc, args...)
		if err != nil {
			return 0, fmt.Errorf("client: argument list %d: %w", i, err)
		}
		bound[i] = b
	}
	batches := param.Chunk(bound, c.desc.BatchSize(max(1, len(bound[0].Args))))
	if len(batches) > 1 {
		c.log.DebugContext(ctx, "client: batching argument lists",
			"dialect", c.desc.Name(), "lists", len(bound), "batches", len(batches))
	}
	var n int64
	err := c.Tx(ctx, func(ctx context.Context) error {
		q, _, err := c.conn(ctx)
		if err != nil {
			return err
		}
		for i, batch := range batches {
			if err := ctx.Err(); err != nil {
				return fmt.Errorf("client: batch %d: %w", i, err)
			}
			for _, b := range batch {
				var res sql.Result
				if err := q.Exec(ctx, b.SQL, b.Args, &res); err != nil {
					return dsql.Classify(err)
				}
				n += affected(res)
			}
		}
		return nil
	}, Nested())
	if err != nil {
		return 0, err
	}
	return n, nil
}

// affected returns the affected row count, or 0 when the driver does not
// report one.
func affected(res sql.Result) int64 {
	if res == nil {
		return 0
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0
	}
	return n
}
