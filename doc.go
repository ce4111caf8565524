// Package dbx is a database access layer that runs one query text against
// Postgres, SQLite and SQL Server.
//
// The root package holds the error taxonomy shared by every layer and a
// small TTL cache. The work happens in the subpackages:
//
//   - dialect describes the supported engines and their capabilities.
//   - dialect/sql adapts database/sql drivers and classifies their errors.
//   - param rewrites %s, ? and %(name)s placeholders for the target engine.
//   - sqltype maps engine column types onto canonical types.
//   - result turns driver rows into typed result sets.
//   - upsert builds and runs insert-or-update statements.
//   - strategy resolves the per-engine catalog and maintenance queries.
//   - retry retries transient connection failures.
//   - client ties them together behind one API.
package dbx
