package sql

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// RawColumn is a result column as described by the driver, before any
// type resolution.
type RawColumn struct {
	Name string
	// DatabaseType is the engine type name, upper-cased, as reported by
	// sql.ColumnType.DatabaseTypeName. Empty when the driver has no type
	// information, e.g. for SQLite expressions.
	DatabaseType string
	Nullable     bool
	// NullableKnown is false when the driver does not report nullability.
	NullableKnown bool
	Length        int64
	Precision     int64
	Scale         int64
}

// RawResult is one result set: its column descriptions and the
// driver-native row values.
type RawResult struct {
	Columns []RawColumn
	Rows    [][]any
}

// DescribeColumns converts sql.ColumnTypes into raw column descriptions.
func DescribeColumns(cts []*sql.ColumnType) []RawColumn {
	cols := make([]RawColumn, len(cts))
	for i, ct := range cts {
		c := RawColumn{
			Name:         ct.Name(),
			DatabaseType: strings.ToUpper(ct.DatabaseTypeName()),
		}
		c.Nullable, c.NullableKnown = ct.Nullable()
		if n, ok := ct.Length(); ok {
			c.Length = n
		}
		if p, s, ok := ct.DecimalSize(); ok {
			c.Precision, c.Scale = p, s
		}
		cols[i] = c
	}
	return cols
}

// ScanAll reads every result set from rows and closes it. Column
// descriptions are captured before the first row is read, so result sets
// with zero rows keep their columns.
func ScanAll(rows ColumnScanner) (results []RawResult, err error) {
	defer func() {
		err = errors.Join(err, rows.Close())
	}()
	for {
		res, err := scanSet(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, res)
		if !rows.NextResultSet() {
			break
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("dialect/sql: read rows: %w", err)
	}
	return results, nil
}

func scanSet(rows ColumnScanner) (RawResult, error) {
	cts, err := rows.ColumnTypes()
	if err != nil {
		return RawResult{}, fmt.Errorf("dialect/sql: column types: %w", err)
	}
	res := RawResult{Columns: DescribeColumns(cts), Rows: [][]any{}}
	for rows.Next() {
		values := make([]any, len(cts))
		dest := make([]any, len(cts))
		for i := range values {
			dest[i] = &values[i]
		}
		if err := rows.Scan(dest...); err != nil {
			return RawResult{}, fmt.Errorf("dialect/sql: scan: %w", err)
		}
		res.Rows = append(res.Rows, values)
	}
	if err := rows.Err(); err != nil {
		return RawResult{}, fmt.Errorf("dialect/sql: read rows: %w", err)
	}
	return res, nil
}
