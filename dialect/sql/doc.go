// Package sql adapts database/sql to the dialect.Driver interface and
// holds the engine-facing helpers shared by the higher layers.
//
// # Drivers
//
// Open and OpenDB return a Driver bound to one dialect. Exec and Query
// take the rewritten statement text and its arguments; Query scans into
// a *Rows:
//
//	drv := sql.OpenDB(dialect.Postgres, db)
//	var rows sql.Rows
//	if err := drv.Query(ctx, "SELECT id FROM users WHERE id = $1", []any{1}, &rows); err != nil {
//		return err
//	}
//	sets, err := sql.ScanAll(rows)
//
// ScanAll reads every result set of a statement together with the
// engine's column descriptions, also for sets without rows.
//
// # Errors
//
// Classify wraps constraint violations into the dbx integrity errors and
// IsTransient reports whether a failure is worth retrying on a fresh
// connection. Both inspect typed driver errors first and fall back to the
// driver message.
//
// # Instrumentation
//
// NewStatsDriver counts statements and reports slow ones. NewDebugDriver
// logs every statement through slog. The two can be stacked.
package sql
