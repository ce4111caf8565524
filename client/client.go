// Package client runs queries against Postgres, SQLite and SQL Server
// through one API. Query text is written once with %s, ? or %(name)s
// placeholders and rewritten for the connected engine.
//
//	c, err := client.Open(client.Config{DriverName: "postgres", DSN: dsn, UsePool: true})
//	if err != nil {
//		return err
//	}
//	defer c.Close()
//	set, err := c.Select(ctx, "SELECT id, name FROM users WHERE id IN %s", []int{1, 2})
package client

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	_ "github.com/lib/pq"
	_ "github.com/microsoft/go-mssqldb"
	_ "modernc.org/sqlite"

	"github.com/syssam/dbx"
	"github.com/syssam/dbx/dialect"
	dsql "github.com/syssam/dbx/dialect/sql"
	"github.com/syssam/dbx/param"
	"github.com/syssam/dbx/result"
	"github.com/syssam/dbx/retry"
	"github.com/syssam/dbx/sqltype"
	"github.com/syssam/dbx/strategy"
)

// Client executes queries on one database.
type Client struct {
	drv      dialect.Driver
	base     *dsql.Driver
	stats    *dsql.StatsDriver
	desc     dialect.Descriptor
	proc     *param.Processor
	registry *sqltype.Registry
	infer    bool
	policy   result.Policy
	loader   result.Loader
	disp     *strategy.Dispatcher
	cache    *dbx.Cache
	// ownCache is set when the client created its cache.
	ownCache    bool
	log         *slog.Logger
	retryPolicy *retry.Policy
	retryOpts   []retry.Option
}

// Open connects using cfg. Options apply after the ones derived from cfg.
func Open(cfg Config, opts ...Option) (*Client, error) {
	desc, ok := dialect.Lookup(cfg.DriverName)
	if !ok {
		return nil, dbx.NewUnsupportedOperationError("open", cfg.DriverName)
	}
	name := cfg.DriverName
	if !slices.Contains(sql.Drivers(), name) {
		name = desc.Name()
	}
	db, err := sql.Open(name, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("client: open %s: %w", name, err)
	}
	if !cfg.UsePool {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	}
	var base []Option
	if cfg.Loader != nil {
		base = append(base, WithLoader(cfg.Loader))
	}
	if cfg.CheckConnection {
		p := cfg.Retry
		if p == (retry.Policy{}) {
			p = retry.DefaultPolicy
		}
		base = append(base, WithRetry(p), withRevalidate())
	}
	c, err := New(dsql.OpenDB(desc.Name(), db), append(base, opts...)...)
	if err != nil {
		return nil, errors.Join(err, db.Close())
	}
	if cfg.CheckConnection {
		if err := c.do(context.Background(), false, c.Ping); err != nil {
			return nil, errors.Join(err, c.Close())
		}
	}
	return c, nil
}

// New returns a client over drv. Statistics and debug logging require
// drv to be a *sql.Driver of the dialect/sql package.
func New(drv dialect.Driver, opts ...Option) (*Client, error) {
	o := options{log: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	desc, ok := dialect.Lookup(drv.Dialect())
	if !ok {
		return nil, dbx.NewUnsupportedOperationError("client", drv.Dialect())
	}
	c := &Client{
		drv:      drv,
		desc:     desc,
		proc:     &param.Processor{Converter: o.converter},
		registry: o.registry,
		infer:    o.infer,
		policy:   o.policy,
		loader:   o.loader,
		cache:    o.cache,
		log:      o.log,
	}
	c.base, _ = drv.(*dsql.Driver)
	if o.stats {
		if c.base == nil {
			return nil, fmt.Errorf("client: statistics need a *sql.Driver, got %T", drv)
		}
		c.stats = dsql.NewStatsDriver(c.base, o.statsOpts...)
		c.drv = c.stats
	}
	if o.debug {
		c.drv = dsql.NewDebugDriver(c.drv, c.log)
	}
	if c.registry == nil {
		c.registry = sqltype.Default
	}
	if c.loader == nil {
		c.loader = result.Maps
	}
	if c.cache == nil {
		cache, err := dbx.NewCache()
		if err != nil {
			return nil, err
		}
		c.cache, c.ownCache = cache, true
	}
	c.disp = strategy.NewDispatcher(c.cache, strategy.DefaultTTL)
	c.retryPolicy = o.retry
	c.retryOpts = []retry.Option{retry.WithLogger(c.log)}
	if o.revalidate && c.base != nil {
		c.retryOpts = append(c.retryOpts, retry.WithRevalidate(c.Ping))
	}
	return c, nil
}

// Dialect returns the descriptor of the connected engine.
func (c *Client) Dialect() dialect.Descriptor { return c.desc }

// Driver returns the driver statements run on.
func (c *Client) Driver() dialect.Driver { return c.drv }

// Stats returns the query statistics collected since the client was
// created, or false when statistics are disabled.
func (c *Client) Stats() (dsql.StatsSnapshot, bool) {
	if c.stats == nil {
		return dsql.StatsSnapshot{}, false
	}
	return c.stats.QueryStats().Stats(), true
}

// Ping verifies the connection is alive.
func (c *Client) Ping(ctx context.Context) error {
	if c.base == nil {
		return nil
	}
	return c.base.Ping(ctx)
}

// Close closes the connection and the cache the client created.
func (c *Client) Close() error {
	err := c.drv.Close()
	if c.ownCache {
		c.cache.Close()
	}
	return err
}

// do runs fn, retrying transient failures outside transactions.
func (c *Client) do(ctx context.Context, inTx bool, fn func(context.Context) error) error {
	if c.retryPolicy == nil || inTx {
		return fn(ctx)
	}
	return retry.Do(ctx, *c.retryPolicy, fn, c.retryOpts...)
}

func (c *Client) dispatch() (*strategy.Strategy, error) {
	return c.disp.ForConnection(c.drv)
}
