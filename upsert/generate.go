package upsert

import (
	"strings"

	"github.com/syssam/dbx"
	"github.com/syssam/dbx/dialect"
)

// Statement is a one-row statement template. Values bind to its %s
// placeholders in Columns order.
type Statement struct {
	SQL     string
	Columns []string
}

// Generate builds the upsert statement for table on dialect d. Dialects
// with neither ON CONFLICT nor MERGE are rejected; no emulation with
// separate UPDATE and INSERT statements is attempted.
func Generate(d dialect.Descriptor, table string, columns []string, p Policy) (*Statement, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if len(columns) == 0 {
		return nil, dbx.NewParameterError("upsert into %s has no columns", table)
	}
	set := newColumnSet(columns)
	if miss := set.missing(p.updates()); len(miss) > 0 {
		return nil, dbx.NewParameterError("update columns %v are not among the inserted columns", miss)
	}
	if p.Constraint == "" {
		if len(p.Keys) == 0 {
			return nil, dbx.NewParameterError("upsert into %s needs key columns or a constraint", table)
		}
		if miss := set.missing(p.Keys); len(miss) > 0 {
			return nil, dbx.NewParameterError("key columns %v are not among the inserted columns", miss)
		}
	} else if d.ID != dialect.PostgresID {
		return nil, dbx.NewUnsupportedOperationError("upsert on named constraint", d.Name())
	}
	switch {
	case d.HasOnConflict:
		return onConflict(d, table, columns, p), nil
	case d.HasMerge:
		if p.Constraint != "" {
			return nil, dbx.NewUnsupportedOperationError("merge on named constraint", d.Name())
		}
		return merge(d, table, columns, p), nil
	default:
		return nil, dbx.NewUnsupportedOperationError("upsert", d.Name())
	}
}

func onConflict(d dialect.Descriptor, table string, columns []string, p Policy) *Statement {
	var b strings.Builder
	qt := d.Quote(table)
	b.WriteString(Insert(d, table, columns, 1))
	b.WriteString(" ON CONFLICT ")
	if p.Constraint != "" {
		b.WriteString("ON CONSTRAINT ")
		b.WriteString(d.Quote(p.Constraint))
	} else {
		b.WriteByte('(')
		b.WriteString(quoteAll(d, p.Keys, ""))
		b.WriteByte(')')
	}
	if len(p.AlwaysUpdate)+len(p.UpdateIfNull) == 0 {
		b.WriteString(" DO NOTHING")
	} else {
		b.WriteString(" DO UPDATE SET ")
		sets := make([]string, 0, len(p.AlwaysUpdate)+len(p.UpdateIfNull))
		for _, c := range p.AlwaysUpdate {
			qc := d.Quote(c)
			sets = append(sets, qc+" = excluded."+qc)
		}
		for _, c := range p.UpdateIfNull {
			qc := d.Quote(c)
			sets = append(sets, qc+" = COALESCE("+qt+"."+qc+", excluded."+qc+")")
		}
		b.WriteString(strings.Join(sets, ", "))
	}
	if len(p.Returning) > 0 && d.HasReturning {
		b.WriteString(" RETURNING ")
		b.WriteString(quoteAll(d, p.Returning, ""))
	}
	return &Statement{SQL: b.String(), Columns: columns}
}

// merge expresses update-if-null as a CASE, since MERGE has no
// conflict shortcut for it.
func merge(d dialect.Descriptor, table string, columns []string, p Policy) *Statement {
	var b strings.Builder
	b.WriteString("MERGE INTO ")
	b.WriteString(d.Quote(table))
	b.WriteString(" AS target USING (SELECT ")
	for i, c := range columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("%s AS ")
		b.WriteString(d.Quote(c))
	}
	b.WriteString(") AS src ON ")
	for i, k := range p.Keys {
		if i > 0 {
			b.WriteString(" AND ")
		}
		qk := d.Quote(k)
		b.WriteString("target." + qk + " = src." + qk)
	}
	if len(p.AlwaysUpdate)+len(p.UpdateIfNull) > 0 {
		b.WriteString(" WHEN MATCHED THEN UPDATE SET ")
		sets := make([]string, 0, len(p.AlwaysUpdate)+len(p.UpdateIfNull))
		for _, c := range p.AlwaysUpdate {
			qc := d.Quote(c)
			sets = append(sets, "target."+qc+" = src."+qc)
		}
		for _, c := range p.UpdateIfNull {
			qc := d.Quote(c)
			sets = append(sets, "target."+qc+" = CASE WHEN target."+qc+" IS NULL THEN src."+qc+" ELSE target."+qc+" END")
		}
		b.WriteString(strings.Join(sets, ", "))
	}
	b.WriteString(" WHEN NOT MATCHED THEN INSERT (")
	b.WriteString(quoteAll(d, columns, ""))
	b.WriteString(") VALUES (")
	b.WriteString(quoteAll(d, columns, "src."))
	b.WriteByte(')')
	if len(p.Returning) > 0 {
		b.WriteString(" OUTPUT ")
		b.WriteString(quoteAll(d, p.Returning, "inserted."))
	}
	b.WriteByte(';')
	return &Statement{SQL: b.String(), Columns: columns}
}

// Insert builds a plain INSERT template for nrows rows.
func Insert(d dialect.Descriptor, table string, columns []string, nrows int) string {
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(d.Quote(table))
	b.WriteString(" (")
	b.WriteString(quoteAll(d, columns, ""))
	b.WriteString(") VALUES ")
	row := "(" + strings.TrimSuffix(strings.Repeat("%s, ", len(columns)), ", ") + ")"
	for i := 0; i < nrows; i++ {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(row)
	}
	return b.String()
}

func quoteAll(d dialect.Descriptor, names []string, prefix string) string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = prefix + d.Quote(n)
	}
	return strings.Join(quoted, ", ")
}
