package strategy

import (
	"github.com/syssam/dbx"
	"github.com/syssam/dbx/dialect"
)

type postgres struct{ d dialect.Descriptor }

func (postgres) primaryKeysQuery() string {
	return "SELECT a.attname FROM pg_index i " +
		"JOIN pg_attribute a ON a.attrelid = i.indrelid AND a.attnum = ANY(i.indkey) " +
		"WHERE i.indrelid = %s::regclass AND i.indisprimary " +
		"ORDER BY array_position(i.indkey::int2[], a.attnum)"
}

func (postgres) columnsQuery() string {
	return "SELECT attname FROM pg_attribute " +
		"WHERE attrelid = %s::regclass AND attnum > 0 AND NOT attisdropped ORDER BY attnum"
}

func (postgres) sequenceColumnsQuery() (string, int) {
	return "SELECT attname FROM pg_attribute " +
		"WHERE attrelid = %s::regclass AND attnum > 0 AND NOT attisdropped " +
		"AND (attidentity <> '' OR pg_get_serial_sequence(%s, attname) IS NOT NULL) ORDER BY attnum", 2
}

// resetSequence sets the next value to one past the largest stored key.
// setval ignores tables without a serial sequence.
func (p postgres) resetSequence(table, column string) (string, []any) {
	return "SELECT setval(pg_get_serial_sequence(%s, %s), COALESCE(MAX(" + p.d.Quote(column) + "), 0) + 1, false) " +
		"FROM " + p.d.Quote(table), []any{table, column}
}

func (p postgres) vacuum(table string) (string, error) {
	if table == "" {
		return "VACUUM (FULL, ANALYZE)", nil
	}
	return "VACUUM (FULL, ANALYZE) " + p.d.Quote(table), nil
}

func (p postgres) reindex(table string) (string, error) {
	if table == "" {
		return "", dbx.NewParameterError("reindex needs a table")
	}
	return "REINDEX TABLE " + p.d.Quote(table), nil
}

func (p postgres) cluster(table, index string) (string, error) {
	if table == "" {
		return "", dbx.NewParameterError("cluster needs a table")
	}
	if index == "" {
		return "CLUSTER " + p.d.Quote(table), nil
	}
	return "CLUSTER " + p.d.Quote(table) + " USING " + p.d.Quote(index), nil
}

type sqlite struct{ d dialect.Descriptor }

func (sqlite) primaryKeysQuery() string {
	return "SELECT name FROM pragma_table_info(%s) WHERE pk > 0 ORDER BY pk"
}

func (sqlite) columnsQuery() string {
	return "SELECT name FROM pragma_table_info(%s) ORDER BY cid"
}

// sequenceColumnsQuery matches the INTEGER PRIMARY KEY column that aliases
// the rowid.
func (sqlite) sequenceColumnsQuery() (string, int) {
	return "SELECT name FROM pragma_table_info(%s) WHERE pk = 1 AND upper(type) = 'INTEGER' " +
		"AND (SELECT count(*) FROM pragma_table_info(%s) WHERE pk > 0) = 1", 2
}

// resetSequence is a no-op: SQLite keeps rowid and AUTOINCREMENT counters
// above explicitly inserted keys.
func (sqlite) resetSequence(string, string) (string, []any) { return "", nil }

// vacuum rebuilds the whole database file; SQLite has no per-table form.
func (sqlite) vacuum(string) (string, error) { return "VACUUM", nil }

func (s sqlite) reindex(table string) (string, error) {
	if table == "" {
		return "REINDEX", nil
	}
	return "REINDEX " + s.d.Quote(table), nil
}

func (s sqlite) cluster(string, string) (string, error) {
	return "", dbx.NewUnsupportedOperationError("cluster", s.d.Name())
}

type sqlServer struct{ d dialect.Descriptor }

func (sqlServer) primaryKeysQuery() string {
	return "SELECT c.name FROM sys.indexes i " +
		"JOIN sys.index_columns ic ON ic.object_id = i.object_id AND ic.index_id = i.index_id " +
		"JOIN sys.columns c ON c.object_id = ic.object_id AND c.column_id = ic.column_id " +
		"WHERE i.is_primary_key = 1 AND i.object_id = OBJECT_ID(%s) ORDER BY ic.key_ordinal"
}

func (sqlServer) columnsQuery() string {
	return "SELECT name FROM sys.columns WHERE object_id = OBJECT_ID(%s) ORDER BY column_id"
}

func (sqlServer) sequenceColumnsQuery() (string, int) {
	return "SELECT name FROM sys.columns WHERE object_id = OBJECT_ID(%s) AND is_identity = 1 ORDER BY column_id", 1
}

func (s sqlServer) resetSequence(table, column string) (string, []any) {
	return "DECLARE @max bigint; " +
		"SELECT @max = ISNULL(MAX(" + s.d.Quote(column) + "), 0) FROM " + s.d.Quote(table) + "; " +
		"DBCC CHECKIDENT (%s, RESEED, @max);", []any{table}
}

// vacuum rebuilds the table's indexes, the closest SQL Server has to a
// storage compaction.
func (s sqlServer) vacuum(table string) (string, error) {
	return s.reindex(table)
}

func (s sqlServer) reindex(table string) (string, error) {
	if table == "" {
		return "", dbx.NewParameterError("%s index rebuild needs a table", s.d.Name())
	}
	return "ALTER INDEX ALL ON " + s.d.Quote(table) + " REBUILD", nil
}

func (s sqlServer) cluster(string, string) (string, error) {
	return "", dbx.NewUnsupportedOperationError("cluster", s.d.Name())
}

// engineFor returns the engine of d.
func engineFor(d dialect.Descriptor) (engine, error) {
	switch d.ID {
	case dialect.PostgresID:
		return postgres{d}, nil
	case dialect.SQLiteID:
		return sqlite{d}, nil
	case dialect.SQLServerID:
		return sqlServer{d}, nil
	default:
		return nil, dbx.NewUnsupportedOperationError("schema strategy", d.Name())
	}
}
