package sqltype

import (
	"regexp"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/dbx/dialect"
)

func TestResolveBuiltin(t *testing.T) {
	r := NewRegistry()
	tests := []struct {
		id   dialect.ID
		code string
		want Type
	}{
		{dialect.PostgresID, "INT4", Integer},
		{dialect.PostgresID, "int8", Integer},
		{dialect.PostgresID, "TIMESTAMPTZ", DateTimeTZ},
		{dialect.PostgresID, "JSONB", JSON},
		{dialect.PostgresID, "_INT4", Array},
		{dialect.PostgresID, "NUMERIC(10,2)", Decimal},
		{dialect.PostgresID, "TSVECTOR", Unknown},
		{dialect.SQLiteID, "INTEGER", Integer},
		{dialect.SQLiteID, "varchar(64)", Text},
		{dialect.SQLiteID, "UNSIGNED BIG INT", Integer},
		{dialect.SQLiteID, "NATIVE CHARACTER", Text},
		{dialect.SQLiteID, "DOUBLE PRECISION", Float},
		{dialect.SQLiteID, "", Unknown},
		{dialect.SQLServerID, "NVARCHAR", Text},
		{dialect.SQLServerID, "BIT", Boolean},
		{dialect.SQLServerID, "DATETIMEOFFSET", DateTimeTZ},
		{dialect.SQLServerID, "GEOGRAPHY", Unknown},
		{dialect.Unknown, "INT", Unknown},
	}
	for _, tt := range tests {
		t.Run(tt.id.String()+"/"+tt.code, func(t *testing.T) {
			got := r.Resolve(tt.id, tt.code, Context{})
			assert.Equal(t, tt.want, got)
			// Same input, same answer.
			assert.Equal(t, got, r.Resolve(tt.id, tt.code, Context{}))
		})
	}
}

func TestResolveInference(t *testing.T) {
	r := NewRegistry()
	t.Run("disabled", func(t *testing.T) {
		got := r.Resolve(dialect.SQLiteID, "TEXT", Context{Column: "created_at"})
		assert.Equal(t, Text, got)
	})
	t.Run("sqlite_text_timestamp", func(t *testing.T) {
		got := r.Resolve(dialect.SQLiteID, "TEXT", Context{Column: "created_at", Infer: true})
		assert.Equal(t, DateTime, got)
	})
	t.Run("sqlite_integer_flag", func(t *testing.T) {
		got := r.Resolve(dialect.SQLiteID, "INTEGER", Context{Column: "is_active", Infer: true})
		assert.Equal(t, Boolean, got)
	})
	t.Run("incompatible_storage", func(t *testing.T) {
		got := r.Resolve(dialect.SQLiteID, "TEXT", Context{Column: "user_id", Infer: true})
		assert.Equal(t, Text, got)
	})
	t.Run("postgres_is_strong", func(t *testing.T) {
		got := r.Resolve(dialect.PostgresID, "TEXT", Context{Column: "created_at", Infer: true})
		assert.Equal(t, Text, got)
	})
	t.Run("unknown_code", func(t *testing.T) {
		got := r.Resolve(dialect.PostgresID, "", Context{Column: "order_date", Infer: true})
		assert.Equal(t, Date, got)
	})
	t.Run("custom_pattern_first", func(t *testing.T) {
		r := NewRegistry()
		r.RegisterPattern(dialect.SQLiteID, Pattern{Match: regexp.MustCompile(`_at$`), Type: Date})
		got := r.Resolve(dialect.SQLiteID, "TEXT", Context{Column: "Created_At", Infer: true})
		assert.Equal(t, Date, got)
	})
}

func TestRegisterOverrides(t *testing.T) {
	r := NewRegistry()
	r.Register(dialect.SQLServerID, "geography", Bytes)
	assert.Equal(t, Bytes, r.Resolve(dialect.SQLServerID, "GEOGRAPHY", Context{}))

	r.RegisterColumn(dialect.PostgresID, "orders.total", Float)
	r.RegisterColumn(dialect.PostgresID, "deleted", Boolean)
	assert.Equal(t, Float, r.Resolve(dialect.PostgresID, "NUMERIC", Context{Table: "Orders", Column: "TOTAL"}))
	assert.Equal(t, Decimal, r.Resolve(dialect.PostgresID, "NUMERIC", Context{Table: "items", Column: "total"}))
	assert.Equal(t, Boolean, r.Resolve(dialect.PostgresID, "INT2", Context{Table: "items", Column: "deleted"}))
	// Column overrides apply without inference.
	assert.Equal(t, Boolean, r.Resolve(dialect.PostgresID, "INT2", Context{Column: "deleted"}))
}

func TestRegistryClone(t *testing.T) {
	r := NewRegistry()
	c := r.Clone()
	c.Register(dialect.PostgresID, "TSVECTOR", Text)
	assert.Equal(t, Text, c.Resolve(dialect.PostgresID, "TSVECTOR", Context{}))
	assert.Equal(t, Unknown, r.Resolve(dialect.PostgresID, "TSVECTOR", Context{}))
	if diff := cmp.Diff(r.types[dialect.SQLiteID], c.types[dialect.SQLiteID]); diff != "" {
		t.Errorf("clone mismatch (-want +got):\n%s", diff)
	}
}

func TestRegistryConcurrent(t *testing.T) {
	r := NewRegistry()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				require.Equal(t, Integer, r.Resolve(dialect.PostgresID, "INT4", Context{}))
			}
		}()
	}
	r.Register(dialect.PostgresID, "CUSTOM", JSON)
	wg.Wait()
	assert.Equal(t, JSON, r.Resolve(dialect.PostgresID, "custom", Context{}))
}

func TestNormalizeCode(t *testing.T) {
	got := []string{
		normalizeCode("varchar(255)"),
		normalizeCode(" double   precision "),
		normalizeCode("numeric(10, 2) unsigned"),
		normalizeCode("_int4"),
	}
	want := []string{"VARCHAR", "DOUBLE PRECISION", "NUMERIC UNSIGNED", "_INT4"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("normalizeCode mismatch (-want +got):\n%s", diff)
	}
}

func TestParseType(t *testing.T) {
	for i := Unknown; i <= Null; i++ {
		got, err := ParseType(i.String())
		require.NoError(t, err)
		assert.Equal(t, i, got)
	}
	got, err := ParseType(" Timestamp ")
	require.NoError(t, err)
	assert.Equal(t, DateTime, got)
	_, err = ParseType("geometry")
	require.Error(t, err)
	assert.Equal(t, "Type(200)", Type(200).String())

	var typ Type
	require.NoError(t, typ.UnmarshalText([]byte("bool")))
	assert.Equal(t, Boolean, typ)
	b, err := DateTimeTZ.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "datetimetz", string(b))
}
