package strategy

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/syssam/dbx"
	"github.com/syssam/dbx/dialect"
	dsql "github.com/syssam/dbx/dialect/sql"
	"github.com/syssam/dbx/upsert"
)

func newCache(t *testing.T) *dbx.Cache {
	t.Helper()
	c, err := dbx.NewCache()
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c
}

func newMock(t *testing.T, name string) (*dsql.Driver, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return dsql.OpenDB(name, db), mock
}

func newSQLite(t *testing.T, stmts ...string) *dsql.Driver {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	for _, s := range stmts {
		_, err := db.Exec(s)
		require.NoError(t, err, s)
	}
	return dsql.OpenDB(dialect.SQLite, db)
}

func TestForConnection(t *testing.T) {
	disp := NewDispatcher(newCache(t), time.Minute)
	tests := []struct {
		driver string
		want   dialect.ID
	}{
		{"postgres", dialect.PostgresID},
		{"pgx", dialect.PostgresID},
		{"sqlite3", dialect.SQLiteID},
		{"sqlserver", dialect.SQLServerID},
		{"azuresql", dialect.SQLServerID},
	}
	for _, tt := range tests {
		t.Run(tt.driver, func(t *testing.T) {
			drv, _ := newMock(t, tt.driver)
			s, err := disp.ForConnection(drv)
			require.NoError(t, err)
			assert.Equal(t, tt.want, s.Dialect.ID)
			assert.NotNil(t, s.Schema)
		})
	}

	t.Run("unknown", func(t *testing.T) {
		_, err := disp.ForDialect("oracle")
		require.Error(t, err)
		assert.True(t, dbx.IsUnsupported(err))
	})
}

func TestDispatcherCaching(t *testing.T) {
	disp := NewDispatcher(newCache(t), time.Minute)
	var (
		wg  sync.WaitGroup
		got = make([]*Strategy, 8)
	)
	for i := range got {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s, err := disp.ForDialect(dialect.Postgres)
			assert.NoError(t, err)
			got[i] = s
		}()
	}
	wg.Wait()
	for _, s := range got[1:] {
		assert.Same(t, got[0], s)
	}

	disp.Clear()
	s, err := disp.ForDialect(dialect.Postgres)
	require.NoError(t, err)
	assert.NotSame(t, got[0], s)

	uncached := NewDispatcher(nil, 0)
	a, err := uncached.ForDialect(dialect.SQLite)
	require.NoError(t, err)
	b, err := uncached.ForDialect(dialect.SQLite)
	require.NoError(t, err)
	assert.NotSame(t, a, b)
}

func TestPostgresSchema(t *testing.T) {
	ctx := context.Background()
	const (
		pkSQL = `SELECT a.attname FROM pg_index i JOIN pg_attribute a ON a.attrelid = i.indrelid AND a.attnum = ANY(i.indkey) ` +
			`WHERE i.indrelid = $1::regclass AND i.indisprimary ORDER BY array_position(i.indkey::int2[], a.attnum)`
		colSQL = `SELECT attname FROM pg_attribute WHERE attrelid = $1::regclass AND attnum > 0 AND NOT attisdropped ORDER BY attnum`
		seqSQL = `SELECT attname FROM pg_attribute WHERE attrelid = $1::regclass AND attnum > 0 AND NOT attisdropped ` +
			`AND (attidentity <> '' OR pg_get_serial_sequence($2, attname) IS NOT NULL) ORDER BY attnum`
	)

	t.Run("catalog_cached", func(t *testing.T) {
		drv, mock := newMock(t, dialect.Postgres)
		s, err := NewDispatcher(newCache(t), time.Minute).ForConnection(drv)
		require.NoError(t, err)
		mock.ExpectQuery(pkSQL).WithArgs("users").
			WillReturnRows(sqlmock.NewRows([]string{"attname"}).AddRow("id"))
		mock.ExpectQuery(colSQL).WithArgs("Users").
			WillReturnRows(sqlmock.NewRows([]string{"attname"}).AddRow("id").AddRow("name"))
		for range 3 {
			pks, err := s.Schema.PrimaryKeys(ctx, drv, "users")
			require.NoError(t, err)
			assert.Equal(t, []string{"id"}, pks)
			cols, err := s.Schema.Columns(ctx, drv, "Users")
			require.NoError(t, err)
			assert.Equal(t, []string{"id", "name"}, cols)
			cols, err = s.Schema.Columns(ctx, drv, "USERS")
			require.NoError(t, err)
			assert.Equal(t, []string{"id", "name"}, cols)
		}
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("lookup_copies", func(t *testing.T) {
		drv, mock := newMock(t, dialect.Postgres)
		s, err := NewDispatcher(newCache(t), time.Minute).ForConnection(drv)
		require.NoError(t, err)
		mock.ExpectQuery(pkSQL).WithArgs("users").
			WillReturnRows(sqlmock.NewRows([]string{"attname"}).AddRow("id"))
		pks, err := s.Schema.PrimaryKeys(ctx, drv, "users")
		require.NoError(t, err)
		pks[0] = "changed"
		pks, err = s.Schema.PrimaryKeys(ctx, drv, "users")
		require.NoError(t, err)
		assert.Equal(t, []string{"id"}, pks)
	})

	t.Run("reset_sequence", func(t *testing.T) {
		drv, mock := newMock(t, dialect.Postgres)
		s, err := NewDispatcher(nil, 0).ForConnection(drv)
		require.NoError(t, err)
		mock.ExpectQuery(seqSQL).WithArgs("users", "users").
			WillReturnRows(sqlmock.NewRows([]string{"attname"}).AddRow("user_id"))
		mock.ExpectQuery(pkSQL).WithArgs("users").
			WillReturnRows(sqlmock.NewRows([]string{"attname"}).AddRow("tenant").AddRow("user_id"))
		mock.ExpectExec(`SELECT setval(pg_get_serial_sequence($1, $2), COALESCE(MAX("user_id"), 0) + 1, false) FROM "users"`).
			WithArgs("users", "user_id").
			WillReturnResult(sqlmock.NewResult(0, 1))
		col, err := s.Schema.FindSequenceColumn(ctx, drv, "users")
		require.NoError(t, err)
		assert.Equal(t, "user_id", col)
		require.NoError(t, s.Schema.ResetSequence(ctx, drv, "users", col))
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("maintenance", func(t *testing.T) {
		drv, mock := newMock(t, dialect.Postgres)
		s, err := NewDispatcher(nil, 0).ForConnection(drv)
		require.NoError(t, err)
		mock.ExpectExec(`VACUUM (FULL, ANALYZE) "users"`).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectExec(`VACUUM (FULL, ANALYZE)`).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectExec(`REINDEX TABLE "users"`).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectExec(`CLUSTER "users"`).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectExec(`CLUSTER "users" USING "users_pkey"`).WillReturnResult(sqlmock.NewResult(0, 0))
		require.NoError(t, s.Schema.Vacuum(ctx, drv, "users"))
		require.NoError(t, s.Schema.Vacuum(ctx, drv, ""))
		require.NoError(t, s.Schema.Reindex(ctx, drv, "users"))
		require.NoError(t, s.Schema.Cluster(ctx, drv, "users", ""))
		require.NoError(t, s.Schema.Cluster(ctx, drv, "users", "users_pkey"))
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("catalog_error", func(t *testing.T) {
		drv, mock := newMock(t, dialect.Postgres)
		s, err := NewDispatcher(newCache(t), time.Minute).ForConnection(drv)
		require.NoError(t, err)
		mock.ExpectQuery(pkSQL).WithArgs("missing").WillReturnError(sql.ErrConnDone)
		mock.ExpectQuery(pkSQL).WithArgs("missing").
			WillReturnRows(sqlmock.NewRows([]string{"attname"}))
		_, err = s.Schema.PrimaryKeys(ctx, drv, "missing")
		require.ErrorIs(t, err, sql.ErrConnDone)
		pks, err := s.Schema.PrimaryKeys(ctx, drv, "missing")
		require.NoError(t, err)
		assert.Empty(t, pks)
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestSQLServerSchema(t *testing.T) {
	ctx := context.Background()
	drv, mock := newMock(t, dialect.SQLServer)
	s, err := NewDispatcher(nil, 0).ForConnection(drv)
	require.NoError(t, err)

	mock.ExpectQuery(`SELECT name FROM sys.columns WHERE object_id = OBJECT_ID(@p1) ORDER BY column_id`).
		WithArgs("orders").
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("OrderId").AddRow("Total"))
	mock.ExpectExec(`DECLARE @max bigint; SELECT @max = ISNULL(MAX([OrderId]), 0) FROM [orders]; DBCC CHECKIDENT (@p1, RESEED, @max);`).
		WithArgs("orders").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`ALTER INDEX ALL ON [orders] REBUILD`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`ALTER INDEX ALL ON [orders] REBUILD`).WillReturnResult(sqlmock.NewResult(0, 0))

	cols, err := s.Schema.Columns(ctx, drv, "orders")
	require.NoError(t, err)
	assert.Equal(t, []string{"OrderId", "Total"}, cols)
	require.NoError(t, s.Schema.ResetSequence(ctx, drv, "orders", "OrderId"))
	require.NoError(t, s.Schema.Vacuum(ctx, drv, "orders"))
	require.NoError(t, s.Schema.Reindex(ctx, drv, "orders"))

	err = s.Schema.Cluster(ctx, drv, "orders", "")
	assert.True(t, dbx.IsUnsupported(err))
	err = s.Schema.Reindex(ctx, drv, "")
	assert.True(t, dbx.IsParameterError(err))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLiteSchema(t *testing.T) {
	ctx := context.Background()
	drv := newSQLite(t,
		`CREATE TABLE plain (id INTEGER PRIMARY KEY, name TEXT)`,
		`CREATE TABLE composite (code TEXT, region TEXT, note TEXT, PRIMARY KEY (code, region))`,
		`CREATE TABLE nokey (note TEXT)`,
		`CREATE TABLE counter (k INTEGER PRIMARY KEY, v INTEGER)`,
		`CREATE TABLE tagged (name TEXT, uid TEXT, PRIMARY KEY (name, uid))`,
	)
	s, err := NewDispatcher(newCache(t), time.Minute).ForConnection(drv)
	require.NoError(t, err)

	pks, err := s.Schema.PrimaryKeys(ctx, drv, "composite")
	require.NoError(t, err)
	assert.Equal(t, []string{"code", "region"}, pks)
	cols, err := s.Schema.Columns(ctx, drv, "composite")
	require.NoError(t, err)
	assert.Equal(t, []string{"code", "region", "note"}, cols)
	seq, err := s.Schema.SequenceColumns(ctx, drv, "plain")
	require.NoError(t, err)
	assert.Equal(t, []string{"id"}, seq)
	seq, err = s.Schema.SequenceColumns(ctx, drv, "composite")
	require.NoError(t, err)
	assert.Empty(t, seq)

	tests := []struct {
		table, want string
	}{
		{"plain", "id"},
		{"composite", "code"},
		{"nokey", "id"},
		{"counter", "k"},
		{"tagged", "uid"},
	}
	for _, tt := range tests {
		t.Run("sequence_column_"+tt.table, func(t *testing.T) {
			col, err := s.Schema.FindSequenceColumn(ctx, drv, tt.table)
			require.NoError(t, err)
			assert.Equal(t, tt.want, col)
		})
	}

	require.NoError(t, s.Schema.ResetSequence(ctx, drv, "plain", "id"))
	require.NoError(t, s.Schema.Vacuum(ctx, drv, "plain"))
	require.NoError(t, s.Schema.Reindex(ctx, drv, "plain"))
	err = s.Schema.Cluster(ctx, drv, "plain", "")
	assert.True(t, dbx.IsUnsupported(err))
}

func TestUpserterRun(t *testing.T) {
	ctx := context.Background()
	drv := newSQLite(t, `CREATE TABLE users (id INTEGER PRIMARY KEY, name TEXT, email TEXT)`)
	s, err := NewDispatcher(newCache(t), time.Minute).ForConnection(drv)
	require.NoError(t, err)

	rows := []map[string]any{
		{"ID": 1, "Name": "ann", "extra": "dropped"},
		{"ID": 2, "Name": "bob", "extra": "dropped"},
	}
	p := upsert.Policy{AlwaysUpdate: []string{"name"}}
	n, err := s.Upsert.Run(ctx, drv, "users", rows, p, upsert.Options{ResetSequence: true})
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	rows = []map[string]any{{"ID": 1, "Name": "anne", "extra": nil}}
	_, err = s.Upsert.Run(ctx, drv, "users", rows, p, upsert.Options{})
	require.NoError(t, err)

	var name string
	require.NoError(t, drv.DB().QueryRowContext(ctx, `SELECT name FROM users WHERE id = 1`).Scan(&name))
	assert.Equal(t, "anne", name)

	stmt, err := s.Upsert.Generate("users", []string{"id", "name"}, upsert.Policy{Keys: []string{"id"}})
	require.NoError(t, err)
	assert.Equal(t, `INSERT INTO "users" ("id", "name") VALUES (%s, %s) ON CONFLICT ("id") DO NOTHING`, stmt.SQL)
}
