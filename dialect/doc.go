// Package dialect describes the database engines supported by dbx.
//
// Each engine is one variant of the closed ID enum and one immutable
// Descriptor holding its capabilities:
//
//   - Postgres: $1 placeholders, RETURNING, ON CONFLICT, array parameters
//   - SQLite: ? placeholders, RETURNING, ON CONFLICT, @name arguments
//   - SQLServer: @p1 placeholders, MERGE, [bracket] quoting, @name arguments
//
// Code that needs engine-specific behavior branches on a Descriptor field,
// never on the dialect name:
//
//	d, ok := dialect.Lookup("postgresql")
//	if ok && d.HasOnConflict {
//	    // ...
//	}
//
// Adding an engine means adding one ID and one Descriptor.
//
// # Driver Interface
//
// The package also defines the Driver and Tx interfaces implemented by
// dialect/sql and its statistics and debug wrappers:
//
//	type Driver interface {
//	    Exec(ctx context.Context, query string, args, v any) error
//	    Query(ctx context.Context, query string, args, v any) error
//	    Tx(ctx context.Context) (Tx, error)
//	    Close() error
//	    Dialect() string
//	}
package dialect
