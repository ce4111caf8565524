package dialect

import (
	"context"
	"database/sql/driver"
	"strconv"
	"strings"
)

// Dialect names for the supported engines. They double as the
// database/sql driver names registered by the bundled drivers.
const (
	Postgres  = "postgres"
	SQLite    = "sqlite"
	SQLServer = "sqlserver"
)

// ExecQuerier wraps the two query execution methods.
type ExecQuerier interface {
	// Exec executes a statement that returns no rows. v, when non-nil, is
	// a *sql.Result that receives the statement result.
	Exec(ctx context.Context, query string, args, v any) error
	// Query executes a query that returns rows into v.
	Query(ctx context.Context, query string, args, v any) error
}

// Driver is the connection collaborator used by the access layer.
type Driver interface {
	ExecQuerier
	// Tx starts and returns a new transaction.
	Tx(context.Context) (Tx, error)
	// Close closes the underlying connection.
	Close() error
	// Dialect returns the dialect name of the driver.
	Dialect() string
}

// Tx wraps the Exec and Query operations in a transaction.
type Tx interface {
	ExecQuerier
	driver.Tx
}

// ID identifies one of the closed set of supported engines.
type ID uint8

// Supported engines.
const (
	Unknown ID = iota
	PostgresID
	SQLiteID
	SQLServerID
)

// String returns the dialect name of the id.
func (id ID) String() string {
	switch id {
	case PostgresID:
		return Postgres
	case SQLiteID:
		return SQLite
	case SQLServerID:
		return SQLServer
	default:
		return "unknown"
	}
}

// PlaceholderKind describes how a driver expects bind parameters to be written.
type PlaceholderKind uint8

// Placeholder kinds.
const (
	// Format is the positional %s style of format-interpolating drivers.
	Format PlaceholderKind = iota
	// Question is the positional ? style.
	Question
	// Dollar is the numbered $1 style.
	Dollar
	// AtP is the numbered @p1 style.
	AtP
	// NamedFormat is the %(name)s style of format-interpolating drivers.
	NamedFormat
)

// IsFormat reports whether the driver interpolates with printf-like
// conversions, in which case a literal % must be doubled.
func (k PlaceholderKind) IsFormat() bool {
	return k == Format || k == NamedFormat
}

// Descriptor is the static capability table of an engine.
// Descriptors are values and are never mutated after construction.
type Descriptor struct {
	ID          ID
	Placeholder PlaceholderKind
	// HasReturning reports support for INSERT ... RETURNING.
	HasReturning bool
	// HasOnConflict reports support for INSERT ... ON CONFLICT.
	HasOnConflict bool
	// HasMerge reports support for MERGE INTO.
	HasMerge bool
	// SupportsArrayInClause reports whether a sequence can be bound as one
	// native array parameter.
	SupportsArrayInClause bool
	// SupportsNamedParams reports whether named arguments can be bound
	// with sql.Named, written with NamedPrefix.
	SupportsNamedParams bool
	NamedPrefix         byte
	// NativeJSON reports whether JSON documents bind as raw bytes.
	NativeJSON bool
	// ParamLimit is the maximum number of bind parameters per statement.
	ParamLimit int
	// QuoteOpen and QuoteClose delimit quoted identifiers.
	QuoteOpen, QuoteClose byte
}

// Built-in descriptors.
var (
	PostgresDescriptor = Descriptor{
		ID:                    PostgresID,
		Placeholder:           Dollar,
		HasReturning:          true,
		HasOnConflict:         true,
		SupportsArrayInClause: true,
		ParamLimit:            65535,
		QuoteOpen:             '"',
		QuoteClose:            '"',
	}
	SQLiteDescriptor = Descriptor{
		ID:                  SQLiteID,
		Placeholder:         Question,
		HasReturning:        true,
		HasOnConflict:       true,
		SupportsNamedParams: true,
		NamedPrefix:         '@',
		ParamLimit:          32766,
		QuoteOpen:           '"',
		QuoteClose:          '"',
	}
	SQLServerDescriptor = Descriptor{
		ID:                  SQLServerID,
		Placeholder:         AtP,
		HasMerge:            true,
		SupportsNamedParams: true,
		NamedPrefix:         '@',
		ParamLimit:          2100,
		QuoteOpen:           '[',
		QuoteClose:          ']',
	}
)

var descriptors = map[ID]Descriptor{
	PostgresID:  PostgresDescriptor,
	SQLiteID:    SQLiteDescriptor,
	SQLServerID: SQLServerDescriptor,
}

// aliases maps driver and URL scheme names to dialect ids.
var aliases = map[string]ID{
	Postgres:     PostgresID,
	"postgresql": PostgresID,
	"pgx":        PostgresID,
	"pq":         PostgresID,
	SQLite:       SQLiteID,
	"sqlite3":    SQLiteID,
	SQLServer:    SQLServerID,
	"mssql":      SQLServerID,
	"azuresql":   SQLServerID,
}

// Name returns the dialect name of the descriptor.
func (d Descriptor) Name() string { return d.ID.String() }

// Quote quotes an identifier. Dotted identifiers are quoted per part.
func (d Descriptor) Quote(ident string) string {
	if ident == "*" {
		return ident
	}
	parts := strings.Split(ident, ".")
	for i, p := range parts {
		if p == "*" {
			continue
		}
		closing := string(d.QuoteClose)
		p = strings.ReplaceAll(p, closing, closing+closing)
		parts[i] = string(d.QuoteOpen) + p + closing
	}
	return strings.Join(parts, ".")
}

// Bind writes the native positional placeholder for the 1-based index n.
func (d Descriptor) Bind(b *strings.Builder, n int) {
	switch d.Placeholder {
	case Dollar:
		b.WriteByte('$')
		b.WriteString(strconv.Itoa(n))
	case AtP:
		b.WriteString("@p")
		b.WriteString(strconv.Itoa(n))
	case Question:
		b.WriteByte('?')
	default:
		b.WriteString("%s")
	}
}

// BindNamed writes the native placeholder for a named argument.
func (d Descriptor) BindNamed(b *strings.Builder, name string) {
	if d.Placeholder == NamedFormat {
		b.WriteString("%(")
		b.WriteString(name)
		b.WriteString(")s")
		return
	}
	b.WriteByte(d.NamedPrefix)
	b.WriteString(name)
}

// Numbered reports whether positional placeholders carry an index, which
// lets a repeated named argument reuse one bind slot.
func (d Descriptor) Numbered() bool {
	return d.Placeholder == Dollar || d.Placeholder == AtP
}

// BatchSize returns how many rows of ncols parameters fit in one statement.
func (d Descriptor) BatchSize(ncols int) int {
	if ncols <= 0 || d.ParamLimit <= 0 {
		return 1
	}
	return max(1, d.ParamLimit/ncols)
}

// Lookup returns the descriptor for a dialect or driver name.
func Lookup(name string) (Descriptor, bool) {
	id := Normalize(name)
	d, ok := descriptors[id]
	return d, ok
}

// Normalize maps a dialect, driver or wrapped driver name to its id.
// Wrapped names such as "postgres-otel" match by prefix.
func Normalize(name string) ID {
	name = strings.ToLower(strings.TrimSpace(name))
	if id, ok := aliases[name]; ok {
		return id
	}
	for alias, id := range aliases {
		if strings.HasPrefix(name, alias) {
			return id
		}
	}
	return Unknown
}
