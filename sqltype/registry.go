package sqltype

import (
	"regexp"
	"strings"
	"sync"

	"github.com/syssam/dbx/dialect"
)

// Context carries the hints used to disambiguate weakly typed engines.
type Context struct {
	// Table and Column name the column being resolved, when known.
	Table  string
	Column string
	// Infer enables column-name inference for columns whose engine type
	// is missing or too weak to be useful, such as SQLite TEXT columns
	// holding timestamps.
	Infer bool
}

// Pattern maps column names matching Match to a type.
type Pattern struct {
	Match *regexp.Regexp
	Type  Type
}

// DefaultPatterns are the column-name conventions applied when inference
// is enabled and no configured pattern matched.
var DefaultPatterns = []Pattern{
	{regexp.MustCompile(`(^|_)id$`), Integer},
	{regexp.MustCompile(`(_datetime|_at|_timestamp|^timestamp)$`), DateTime},
	{regexp.MustCompile(`(_date|^date)$`), Date},
	{regexp.MustCompile(`(_time|^time)$`), Time},
	{regexp.MustCompile(`^(is_|has_)|_flag$|^(active|enabled|disabled)$`), Boolean},
	{regexp.MustCompile(`(_price|_cost|_amount)$|^(price|cost|amount)_`), Float},
}

// Registry maps engine type names to canonical types, per dialect.
// It is safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	types    map[dialect.ID]map[string]Type
	columns  map[dialect.ID]map[string]Type
	patterns map[dialect.ID][]Pattern
}

// NewRegistry returns a registry populated with the built-in tables.
func NewRegistry() *Registry {
	r := &Registry{
		types:    make(map[dialect.ID]map[string]Type),
		columns:  make(map[dialect.ID]map[string]Type),
		patterns: make(map[dialect.ID][]Pattern),
	}
	for id, table := range builtin {
		m := make(map[string]Type, len(table))
		for code, t := range table {
			m[code] = t
		}
		r.types[id] = m
	}
	return r
}

// Default is the process-wide registry used when none is configured.
var Default = NewRegistry()

// Register maps an engine type name to a canonical type.
func (r *Registry) Register(id dialect.ID, code string, t Type) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.types[id]
	if !ok {
		m = make(map[string]Type)
		r.types[id] = m
	}
	m[normalizeCode(code)] = t
}

// RegisterColumn pins the type of a column. The key is "table.column" or
// a bare column name matching every table.
func (r *Registry) RegisterColumn(id dialect.ID, key string, t Type) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.columns[id]
	if !ok {
		m = make(map[string]Type)
		r.columns[id] = m
	}
	m[strings.ToLower(key)] = t
}

// RegisterPattern adds a column-name pattern, consulted before DefaultPatterns.
func (r *Registry) RegisterPattern(id dialect.ID, p Pattern) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.patterns[id] = append(r.patterns[id], p)
}

// Clone returns an independent copy of the registry.
func (r *Registry) Clone() *Registry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c := &Registry{
		types:    make(map[dialect.ID]map[string]Type, len(r.types)),
		columns:  make(map[dialect.ID]map[string]Type, len(r.columns)),
		patterns: make(map[dialect.ID][]Pattern, len(r.patterns)),
	}
	for id, m := range r.types {
		c.types[id] = copyMap(m)
	}
	for id, m := range r.columns {
		c.columns[id] = copyMap(m)
	}
	for id, ps := range r.patterns {
		c.patterns[id] = append([]Pattern(nil), ps...)
	}
	return c
}

// Resolve maps an engine type name to its canonical type. Unknown names
// resolve to Unknown. The result depends only on the arguments and the
// registry contents, never on row values.
func (r *Registry) Resolve(id dialect.ID, code string, ctx Context) Type {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if t, ok := r.column(id, ctx); ok {
		return t
	}
	norm := normalizeCode(code)
	t, ok := r.types[id][norm]
	if !ok {
		t = fallback(id, norm)
	}
	if ctx.Infer && ctx.Column != "" && inferable(id, t) {
		if it, ok := r.infer(id, ctx.Column); ok && compatible(t, it) {
			return it
		}
	}
	return t
}

func (r *Registry) column(id dialect.ID, ctx Context) (Type, bool) {
	if ctx.Column == "" {
		return Unknown, false
	}
	m := r.columns[id]
	if len(m) == 0 {
		return Unknown, false
	}
	col := strings.ToLower(ctx.Column)
	if ctx.Table != "" {
		if t, ok := m[strings.ToLower(ctx.Table)+"."+col]; ok {
			return t, true
		}
	}
	t, ok := m[col]
	return t, ok
}

func (r *Registry) infer(id dialect.ID, column string) (Type, bool) {
	name := strings.ToLower(column)
	for _, p := range r.patterns[id] {
		if p.Match.MatchString(name) {
			return p.Type, true
		}
	}
	for _, p := range DefaultPatterns {
		if p.Match.MatchString(name) {
			return p.Type, true
		}
	}
	return Unknown, false
}

// inferable reports whether a resolved type is weak enough for name
// inference to refine it.
func inferable(id dialect.ID, t Type) bool {
	switch {
	case t == Unknown:
		return true
	case id == dialect.SQLiteID:
		return t == Text || t == Integer || t == Decimal
	case id == dialect.SQLServerID:
		// Boolean flags are often stored as TINYINT or CHAR(1).
		return t == Integer || t == Text
	}
	return false
}

// compatible reports whether a storage type can hold values of the inferred type.
func compatible(storage, inferred Type) bool {
	switch storage {
	case Unknown:
		return true
	case Text:
		return inferred == Date || inferred == Time || inferred == DateTime || inferred == Boolean
	case Integer:
		return inferred == Boolean || inferred == DateTime
	case Decimal:
		return inferred == Float || inferred == Integer || inferred == Boolean
	}
	return false
}

// normalizeCode upper-cases a type name and strips length or precision
// suffixes: "varchar(255)" becomes "VARCHAR".
func normalizeCode(code string) string {
	code = strings.TrimSpace(code)
	if i := strings.IndexByte(code, '('); i >= 0 {
		rest := ""
		if j := strings.IndexByte(code[i:], ')'); j >= 0 {
			rest = code[i+j+1:]
		}
		code = code[:i] + rest
	}
	return strings.ToUpper(strings.Join(strings.Fields(code), " "))
}

// fallback resolves names absent from the tables: Postgres array types
// start with an underscore, and SQLite derives an affinity from any
// declared type name.
func fallback(id dialect.ID, code string) Type {
	switch id {
	case dialect.PostgresID:
		if strings.HasPrefix(code, "_") || strings.HasSuffix(code, "[]") {
			return Array
		}
	case dialect.SQLiteID:
		return sqliteAffinity(code)
	}
	return Unknown
}

// sqliteAffinity applies the SQLite column affinity rules.
func sqliteAffinity(code string) Type {
	switch {
	case code == "":
		return Unknown
	case strings.Contains(code, "INT"):
		return Integer
	case strings.Contains(code, "CHAR"), strings.Contains(code, "CLOB"), strings.Contains(code, "TEXT"):
		return Text
	case strings.Contains(code, "BLOB"):
		return Bytes
	case strings.Contains(code, "REAL"), strings.Contains(code, "FLOA"), strings.Contains(code, "DOUB"):
		return Float
	default:
		return Decimal
	}
}

func copyMap(m map[string]Type) map[string]Type {
	c := make(map[string]Type, len(m))
	for k, v := range m {
		c[k] = v
	}
	return c
}
