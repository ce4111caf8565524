package sqltype

import "github.com/syssam/dbx/dialect"

// builtin holds the engine type names reported by each driver's
// ColumnType.DatabaseTypeName, already normalized.
var builtin = map[dialect.ID]map[string]Type{
	dialect.PostgresID: {
		"INT2":        Integer,
		"INT4":        Integer,
		"INT8":        Integer,
		"SMALLINT":    Integer,
		"INTEGER":     Integer,
		"BIGINT":      Integer,
		"OID":         Integer,
		"FLOAT4":      Float,
		"FLOAT8":      Float,
		"REAL":        Float,
		"NUMERIC":     Decimal,
		"MONEY":       Decimal,
		"BOOL":        Boolean,
		"TEXT":        Text,
		"VARCHAR":     Text,
		"BPCHAR":      Text,
		"CHAR":        Text,
		"NAME":        Text,
		"CITEXT":      Text,
		"UUID":        Text,
		"INET":        Text,
		"CIDR":        Text,
		"MACADDR":     Text,
		"XML":         Text,
		"INTERVAL":    Text,
		"BYTEA":       Bytes,
		"DATE":        Date,
		"TIME":        Time,
		"TIMETZ":      Time,
		"TIMESTAMP":   DateTime,
		"TIMESTAMPTZ": DateTimeTZ,
		"JSON":        JSON,
		"JSONB":       JSON,
		"VOID":        Null,
		"UNKNOWN":     Unknown,
	},
	dialect.SQLiteID: {
		"INTEGER":   Integer,
		"INT":       Integer,
		"BIGINT":    Integer,
		"REAL":      Float,
		"FLOAT":     Float,
		"DOUBLE":    Float,
		"NUMERIC":   Decimal,
		"DECIMAL":   Decimal,
		"BOOLEAN":   Boolean,
		"BOOL":      Boolean,
		"TEXT":      Text,
		"VARCHAR":   Text,
		"BLOB":      Bytes,
		"DATE":      Date,
		"TIME":      Time,
		"DATETIME":  DateTime,
		"TIMESTAMP": DateTime,
		"JSON":      JSON,
	},
	dialect.SQLServerID: {
		"TINYINT":          Integer,
		"SMALLINT":         Integer,
		"INT":              Integer,
		"BIGINT":           Integer,
		"BIT":              Boolean,
		"REAL":             Float,
		"FLOAT":            Float,
		"DECIMAL":          Decimal,
		"NUMERIC":          Decimal,
		"MONEY":            Decimal,
		"SMALLMONEY":       Decimal,
		"CHAR":             Text,
		"VARCHAR":          Text,
		"TEXT":             Text,
		"NCHAR":            Text,
		"NVARCHAR":         Text,
		"NTEXT":            Text,
		"XML":              Text,
		"UNIQUEIDENTIFIER": Text,
		"BINARY":           Bytes,
		"VARBINARY":        Bytes,
		"IMAGE":            Bytes,
		"DATE":             Date,
		"TIME":             Time,
		"DATETIME":         DateTime,
		"DATETIME2":        DateTime,
		"SMALLDATETIME":    DateTime,
		"DATETIMEOFFSET":   DateTimeTZ,
		"SQL_VARIANT":      Unknown,
	},
}
