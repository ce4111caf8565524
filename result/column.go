// Package result carries result sets and their column metadata.
//
// Column descriptors come from the driver's column descriptions, never
// from row values, so a result with zero rows reports the same columns,
// in the same order, as a non-empty execution of the same query.
package result

import (
	"strings"

	"github.com/syssam/dbx/dialect"
	dsql "github.com/syssam/dbx/dialect/sql"
	"github.com/syssam/dbx/sqltype"
)

// Column describes one result column.
type Column struct {
	Name     string
	Type     sqltype.Type
	Nullable bool
	// Ordinal is the 0-based position in the SELECT list.
	Ordinal int
	// DatabaseType is the engine type name the type was resolved from.
	DatabaseType string
}

// Resolver maps engine type names to canonical types.
type Resolver interface {
	Resolve(id dialect.ID, code string, ctx sqltype.Context) sqltype.Type
}

// FromDriver builds column descriptors from raw driver descriptions.
// Columns whose nullability is not reported are assumed nullable.
func FromDriver(r Resolver, id dialect.ID, raw []dsql.RawColumn, infer bool) []Column {
	if r == nil {
		r = sqltype.Default
	}
	cols := make([]Column, len(raw))
	for i, rc := range raw {
		cols[i] = Column{
			Name:         rc.Name,
			Type:         r.Resolve(id, rc.DatabaseType, sqltype.Context{Column: rc.Name, Infer: infer}),
			Nullable:     rc.Nullable || !rc.NullableKnown,
			Ordinal:      i,
			DatabaseType: rc.DatabaseType,
		}
	}
	return cols
}

// Names returns the column names in order.
func Names(cols []Column) []string {
	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = c.Name
	}
	return names
}

// Find returns the column with the given name. An exact match wins over a
// case-insensitive one.
func Find(cols []Column, name string) (Column, bool) {
	for _, c := range cols {
		if c.Name == name {
			return c, true
		}
	}
	for _, c := range cols {
		if strings.EqualFold(c.Name, name) {
			return c, true
		}
	}
	return Column{}, false
}

// ToTypeMap returns the canonical type of every column by name.
func ToTypeMap(cols []Column) map[string]sqltype.Type {
	m := make(map[string]sqltype.Type, len(cols))
	for _, c := range cols {
		m[c.Name] = c.Type
	}
	return m
}

// Synthesize builds nullable descriptors of unknown type for names, for
// loaders that need a shape without a live query.
func Synthesize(names ...string) []Column {
	cols := make([]Column, len(names))
	for i, name := range names {
		cols[i] = Column{Name: name, Type: sqltype.Unknown, Nullable: true, Ordinal: i}
	}
	return cols
}
