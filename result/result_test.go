package result

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/dbx/dialect"
	dsql "github.com/syssam/dbx/dialect/sql"
	"github.com/syssam/dbx/sqltype"
)

func TestFromDriver(t *testing.T) {
	raw := []dsql.RawColumn{
		{Name: "id", DatabaseType: "INT8", NullableKnown: true},
		{Name: "name", DatabaseType: "TEXT", Nullable: true, NullableKnown: true},
		{Name: "created_at", DatabaseType: "TEXT"},
		{Name: "total", DatabaseType: ""},
	}
	cols := FromDriver(nil, dialect.SQLiteID, raw, true)
	require.Len(t, cols, 4)
	assert.Equal(t, Column{Name: "id", Type: sqltype.Integer, Ordinal: 0, DatabaseType: "INT8"}, cols[0])
	assert.Equal(t, sqltype.Text, cols[1].Type)
	assert.True(t, cols[1].Nullable)
	assert.Equal(t, sqltype.DateTime, cols[2].Type)
	assert.True(t, cols[2].Nullable, "unknown nullability is nullable")
	assert.Equal(t, sqltype.Unknown, cols[3].Type)
	assert.Equal(t, 3, cols[3].Ordinal)

	plain := FromDriver(sqltype.NewRegistry(), dialect.SQLiteID, raw, false)
	assert.Equal(t, sqltype.Text, plain[2].Type)
}

func TestHelpers(t *testing.T) {
	cols := []Column{
		{Name: "ID", Type: sqltype.Integer, Ordinal: 0},
		{Name: "id", Type: sqltype.Text, Ordinal: 1},
		{Name: "Name", Type: sqltype.Text, Ordinal: 2},
	}
	assert.Equal(t, []string{"ID", "id", "Name"}, Names(cols))

	c, ok := Find(cols, "id")
	require.True(t, ok)
	assert.Equal(t, 1, c.Ordinal)
	c, ok = Find(cols, "name")
	require.True(t, ok)
	assert.Equal(t, "Name", c.Name)
	_, ok = Find(cols, "missing")
	assert.False(t, ok)

	assert.Equal(t, map[string]sqltype.Type{"ID": sqltype.Integer, "id": sqltype.Text, "Name": sqltype.Text}, ToTypeMap(cols))

	syn := Synthesize("a", "b")
	assert.Equal(t, []Column{
		{Name: "a", Type: sqltype.Unknown, Nullable: true, Ordinal: 0},
		{Name: "b", Type: sqltype.Unknown, Nullable: true, Ordinal: 1},
	}, syn)
	assert.Empty(t, Synthesize())
}

func TestEmptyResultKeepsColumns(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	drv := dsql.OpenDB(dialect.Postgres, db)

	columns := func() *sqlmock.Rows {
		return mock.NewRowsWithColumnDefinition(
			mock.NewColumn("id").OfType("INT8", int64(0)).Nullable(false),
			mock.NewColumn("email").OfType("TEXT", "").Nullable(true),
			mock.NewColumn("created_at").OfType("TIMESTAMPTZ", "").Nullable(true),
		)
	}
	mock.ExpectQuery("SELECT").WillReturnRows(columns().AddRow(1, "a@b.c", nil))
	mock.ExpectQuery("SELECT").WillReturnRows(columns())

	load := func() []Set {
		rows := &dsql.Rows{}
		require.NoError(t, drv.Query(context.Background(), "SELECT id, email, created_at FROM users", []any{}, rows))
		raw, err := dsql.ScanAll(rows)
		require.NoError(t, err)
		return FromRaw(nil, dialect.PostgresID, raw, false)
	}
	full, empty := load(), load()
	require.Len(t, full, 1)
	require.Len(t, empty, 1)
	assert.Equal(t, 1, full[0].Len())
	assert.Equal(t, 0, empty[0].Len())
	assert.NotNil(t, empty[0].Rows)
	assert.Equal(t, full[0].Columns, empty[0].Columns)
	assert.Equal(t, []string{"id", "email", "created_at"}, Names(empty[0].Columns))
	assert.Equal(t, sqltype.DateTimeTZ, empty[0].Columns[2].Type)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFromRawMultipleSets(t *testing.T) {
	raw := []dsql.RawResult{
		{Columns: []dsql.RawColumn{{Name: "n", DatabaseType: "INT"}}, Rows: [][]any{{int64(1)}}},
		{Columns: []dsql.RawColumn{{Name: "a", DatabaseType: "NVARCHAR"}, {Name: "b", DatabaseType: "BIT"}}},
	}
	sets := FromRaw(nil, dialect.SQLServerID, raw, false)
	require.Len(t, sets, 2)
	assert.Equal(t, []string{"n"}, Names(sets[0].Columns))
	assert.Equal(t, []string{"a", "b"}, Names(sets[1].Columns))
	assert.Equal(t, sqltype.Boolean, sets[1].Columns[1].Type)
	assert.NotNil(t, sets[1].Rows)
}

func TestPick(t *testing.T) {
	set := func(name string, n int) Set {
		s := Set{Columns: Synthesize(name), Rows: [][]any{}}
		for i := 0; i < n; i++ {
			s.Rows = append(s.Rows, []any{i})
		}
		return s
	}
	sets := []Set{set("a", 1), set("b", 3), set("c", 3), set("d", 0)}
	tests := []struct {
		policy Policy
		want   string
	}{
		{Largest, "b"},
		{First, "a"},
		{Last, "d"},
	}
	for _, tt := range tests {
		t.Run(tt.policy.String(), func(t *testing.T) {
			got, ok := Pick(sets, tt.policy)
			require.True(t, ok)
			assert.Equal(t, tt.want, got.Columns[0].Name)
		})
	}
	_, ok := Pick(nil, Largest)
	assert.False(t, ok)
	got, ok := Pick([]Set{set("x", 0), set("y", 0)}, Largest)
	require.True(t, ok)
	assert.Equal(t, "x", got.Columns[0].Name)
	assert.Equal(t, "Policy(9)", Policy(9).String())
}

func TestLoaders(t *testing.T) {
	s := Set{
		Columns: Synthesize("id", "name"),
		Rows:    [][]any{{int64(1), "a"}, {int64(2), nil}},
	}
	maps, err := Maps.Load(s)
	require.NoError(t, err)
	assert.Equal(t, []map[string]any{{"id": int64(1), "name": "a"}, {"id": int64(2), "name": nil}}, maps)

	tuples, err := Tuples.Load(s)
	require.NoError(t, err)
	assert.Equal(t, s.Rows, tuples)

	got, err := Sets.Load(s)
	require.NoError(t, err)
	assert.Equal(t, s, got)

	v, ok := s.Scalar()
	require.True(t, ok)
	assert.Equal(t, int64(1), v)
	_, ok = Set{}.Scalar()
	assert.False(t, ok)

	count := LoaderFunc(func(s Set) (any, error) { return s.Len(), nil })
	n, err := count.Load(s)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}
