package client

import (
	"log/slog"

	"github.com/syssam/dbx"
	dsql "github.com/syssam/dbx/dialect/sql"
	"github.com/syssam/dbx/result"
	"github.com/syssam/dbx/retry"
	"github.com/syssam/dbx/sqltype"
)

// Config is the connection configuration accepted by Open.
type Config struct {
	// DriverName is a dialect or database/sql driver name, e.g. "postgres",
	// "sqlite" or "sqlserver".
	DriverName string
	DSN        string
	// UsePool keeps a pool of connections. When false the client holds a
	// single connection, which also keeps SQLite in-memory databases alive
	// across calls.
	UsePool bool
	// CheckConnection pings on open and retries transient failures,
	// pinging before every retry.
	CheckConnection bool
	// Loader shapes the result of Load. Defaults to result.Maps.
	Loader result.Loader
	// Retry bounds the retries enabled by CheckConnection. The zero value
	// selects retry.DefaultPolicy.
	Retry retry.Policy
}

type options struct {
	debug      bool
	stats      bool
	statsOpts  []dsql.StatsOption
	registry   *sqltype.Registry
	converter  *sqltype.Converter
	infer      bool
	policy     result.Policy
	loader     result.Loader
	cache      *dbx.Cache
	log        *slog.Logger
	retry      *retry.Policy
	revalidate bool
}

// Option configures a Client.
type Option func(*options)

// WithDebug logs every statement at debug level.
func WithDebug() Option {
	return func(o *options) {
		o.debug = true
	}
}

// WithStats collects query statistics, readable through Client.Stats.
func WithStats(opts ...dsql.StatsOption) Option {
	return func(o *options) {
		o.stats = true
		o.statsOpts = append(o.statsOpts, opts...)
	}
}

// WithRegistry sets the type registry used to describe result columns.
func WithRegistry(r *sqltype.Registry) Option {
	return func(o *options) {
		o.registry = r
	}
}

// WithConverter sets the converter applied to bound values.
func WithConverter(c *sqltype.Converter) Option {
	return func(o *options) {
		o.converter = c
	}
}

// WithInference enables column-name type inference for weakly typed
// result columns.
func WithInference() Option {
	return func(o *options) {
		o.infer = true
	}
}

// WithResultPolicy selects which result set Select returns when a query
// produces several.
func WithResultPolicy(p result.Policy) Option {
	return func(o *options) {
		o.policy = p
	}
}

// WithLoader sets the loader used by Load.
func WithLoader(l result.Loader) Option {
	return func(o *options) {
		o.loader = l
	}
}

// WithCache shares a cache for strategies and catalog lookups. The
// caller keeps ownership of c.
func WithCache(c *dbx.Cache) Option {
	return func(o *options) {
		o.cache = c
	}
}

// WithLogger sets the client logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.log = l
	}
}

// WithRetry retries statements that fail with transient connection
// errors. Statements inside a transaction are never retried.
func WithRetry(p retry.Policy) Option {
	return func(o *options) {
		o.retry = &p
	}
}

// withRevalidate pings the connection before every retry.
func withRevalidate() Option {
	return func(o *options) {
		o.revalidate = true
	}
}
