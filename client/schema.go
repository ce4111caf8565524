package client

import (
	"context"

	"github.com/syssam/dbx/upsert"
)

// Upsert inserts rows into table, resolving conflicts as p describes, and
// returns the number of affected rows. Empty keys fall back to the
// table's primary key and row columns the table lacks are ignored. Inside
// Tx the rows join the open transaction and a requested sequence reset
// runs after that transaction commits.
func (c *Client) Upsert(ctx context.Context, table string, rows []map[string]any, p upsert.Policy, opts upsert.Options) (int64, error) {
	s, err := c.dispatch()
	if err != nil {
		return 0, err
	}
	q, inTx, err := c.conn(ctx)
	if err != nil {
		return 0, err
	}
	if opts.Processor == nil {
		opts.Processor = c.proc
	}
	if opts.Logger == nil {
		opts.Logger = c.log
	}
	reset := opts.ResetSequence && inTx
	if reset {
		opts.ResetSequence = false
	}
	n, err := s.Upsert.Run(ctx, q, table, rows, p, opts)
	if err != nil || !reset || len(rows) == 0 {
		return n, err
	}
	c.txFromContext(ctx).afterCommit(func(ctx context.Context) error {
		return c.ResetSequence(ctx, table, "")
	})
	return n, nil
}

// ResetSequence moves the identity sequence of table past its largest
// key. An empty column selects the sequence column from the catalog.
func (c *Client) ResetSequence(ctx context.Context, table, column string) error {
	s, err := c.dispatch()
	if err != nil {
		return err
	}
	q, _, err := c.conn(ctx)
	if err != nil {
		return err
	}
	if column == "" {
		if column, err = s.Schema.FindSequenceColumn(ctx, q, table); err != nil {
			return err
		}
	}
	return s.Schema.ResetSequence(ctx, q, table, column)
}

// Vacuum reclaims storage of table, outside any transaction in ctx.
// SQLite vacuums the whole database.
func (c *Client) Vacuum(ctx context.Context, table string) error {
	s, err := c.dispatch()
	if err != nil {
		return err
	}
	return s.Schema.Vacuum(ctx, c.drv, table)
}

// Reindex rebuilds the indexes of table.
func (c *Client) Reindex(ctx context.Context, table string) error {
	s, err := c.dispatch()
	if err != nil {
		return err
	}
	q, _, err := c.conn(ctx)
	if err != nil {
		return err
	}
	return s.Schema.Reindex(ctx, q, table)
}

// Cluster reorders table by index. Only Postgres supports it.
func (c *Client) Cluster(ctx context.Context, table, index string) error {
	s, err := c.dispatch()
	if err != nil {
		return err
	}
	q, _, err := c.conn(ctx)
	if err != nil {
		return err
	}
	return s.Schema.Cluster(ctx, q, table, index)
}

// PrimaryKeys returns the primary key columns of table.
func (c *Client) PrimaryKeys(ctx context.Context, table string) ([]string, error) {
	s, err := c.dispatch()
	if err != nil {
		return nil, err
	}
	q, _, err := c.conn(ctx)
	if err != nil {
		return nil, err
	}
	return s.Schema.PrimaryKeys(ctx, q, table)
}

// Columns returns the columns of table.
func (c *Client) Columns(ctx context.Context, table string) ([]string, error) {
	s, err := c.dispatch()
	if err != nil {
		return nil, err
	}
	q, _, err := c.conn(ctx)
	if err != nil {
		return nil, err
	}
	return s.Schema.Columns(ctx, q, table)
}

// ClearCache drops cached strategies and catalog lookups, e.g. after a
// schema change.
func (c *Client) ClearCache() {
	c.disp.Clear()
}
