package upsert

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"slices"

	"github.com/samber/lo"

	"github.com/syssam/dbx"
	"github.com/syssam/dbx/dialect"
	"github.com/syssam/dbx/param"
)

// Conn executes statements and starts transactions.
type Conn interface {
	dialect.ExecQuerier
	Tx(context.Context) (dialect.Tx, error)
}

// Schema is the schema-maintenance collaborator consumed by Run.
type Schema interface {
	PrimaryKeys(ctx context.Context, q dialect.ExecQuerier, table string) ([]string, error)
	Columns(ctx context.Context, q dialect.ExecQuerier, table string) ([]string, error)
	FindSequenceColumn(ctx context.Context, q dialect.ExecQuerier, table string) (string, error)
	ResetSequence(ctx context.Context, q dialect.ExecQuerier, table, column string) error
}

// Options configure Run.
type Options struct {
	// Schema, when set, supplies primary keys for an empty key set and
	// drops row columns the table does not have.
	Schema Schema
	// ResetSequence resets the table's identity sequence after the
	// transaction begun on Conn commits. When Conn joins an enclosing
	// transaction that commit is a no-op, so the caller must defer the
	// reset itself.
	ResetSequence bool
	Processor     *param.Processor
	Logger        *slog.Logger
}

// Run upserts rows into table and returns the number of affected rows.
// All rows must share one column set. Every statement is rewritten before
// the first one reaches the driver, and all of them run in a single
// transaction.
func Run(ctx context.Context, conn Conn, d dialect.Descriptor, table string, rows []map[string]any, p Policy, opts Options) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	if err := p.Validate(); err != nil {
		return 0, err
	}
	keys, err := columnsOf(rows)
	if err != nil {
		return 0, err
	}
	set := newColumnSet(keys)
	if miss := set.missing(p.updates()); len(miss) > 0 {
		return 0, dbx.NewParameterError("update columns %v are not present in the rows", miss)
	}
	// columns maps the statement column to the row key it reads.
	columns, source := keys, lo.SliceToMap(keys, func(k string) (string, string) { return k, k })
	if opts.Schema != nil {
		tableCols, err := opts.Schema.Columns(ctx, conn, table)
		if err != nil {
			return 0, fmt.Errorf("upsert: columns of %s: %w", table, err)
		}
		if len(tableCols) > 0 {
			columns, source, p = restrict(keys, newColumnSet(tableCols), p)
			if dropped := len(keys) - len(columns); dropped > 0 {
				log.WarnContext(ctx, "upsert: ignoring columns not present in table",
					"table", table, "columns", newColumnSet(columns).missing(keys))
			}
			if len(columns) == 0 {
				return 0, nil
			}
		}
	}
	if len(p.Keys) == 0 && p.Constraint == "" && opts.Schema != nil {
		pks, err := opts.Schema.PrimaryKeys(ctx, conn, table)
		if err != nil {
			return 0, fmt.Errorf("upsert: primary keys of %s: %w", table, err)
		}
		present := newColumnSet(columns)
		p.Keys = lo.FilterMap(pks, func(k string, _ int) (string, bool) { return present.canonical(k) })
		if len(p.Keys) < len(pks) {
			p.Keys = nil
		}
		p.AlwaysUpdate = lo.Without(p.AlwaysUpdate, p.Keys...)
		p.UpdateIfNull = lo.Without(p.UpdateIfNull, p.Keys...)
	}

	var stmts []*param.Bound
	if len(p.Keys) == 0 && p.Constraint == "" {
		log.DebugContext(ctx, "upsert: no conflict keys, inserting", "table", table)
		stmts, err = inserts(d, table, columns, source, rows, opts.Processor)
	} else {
		stmts, err = upserts(d, table, columns, source, rows, p, opts.Processor)
	}
	if err != nil {
		return 0, err
	}
	n, err := execAll(ctx, conn, stmts)
	if err != nil {
		return 0, err
	}
	if opts.ResetSequence && opts.Schema != nil {
		col, err := opts.Schema.FindSequenceColumn(ctx, conn, table)
		if err != nil {
			return n, fmt.Errorf("upsert: sequence column of %s: %w", table, err)
		}
		if err := opts.Schema.ResetSequence(ctx, conn, table, col); err != nil {
			return n, err
		}
	}
	return n, nil
}

// columnsOf returns the sorted column set shared by all rows.
func columnsOf(rows []map[string]any) ([]string, error) {
	keys := lo.Keys(rows[0])
	slices.Sort(keys)
	for i, row := range rows[1:] {
		if len(row) != len(keys) {
			return nil, dbx.NewParameterError("row %d has %d columns, want %d", i+1, len(row), len(keys))
		}
		for _, k := range keys {
			if _, ok := row[k]; !ok {
				return nil, dbx.NewParameterError("row %d is missing column %q", i+1, k)
			}
		}
	}
	return keys, nil
}

// restrict keeps the row keys that name table columns, spelled as the
// table spells them, and drops the rest from the policy.
func restrict(keys []string, table columnSet, p Policy) ([]string, map[string]string, Policy) {
	var columns []string
	source := make(map[string]string, len(keys))
	for _, k := range keys {
		if c, ok := table.canonical(k); ok {
			columns = append(columns, c)
			source[c] = k
		}
	}
	kept := newColumnSet(columns)
	keep := func(names []string) []string {
		return lo.FilterMap(names, func(n string, _ int) (string, bool) { return kept.canonical(n) })
	}
	p.Keys, p.AlwaysUpdate, p.UpdateIfNull = keep(p.Keys), keep(p.AlwaysUpdate), keep(p.UpdateIfNull)
	return columns, source, p
}

func upserts(d dialect.Descriptor, table string, columns []string, source map[string]string, rows []map[string]any, p Policy, proc *param.Processor) ([]*param.Bound, error) {
	stmt, err := Generate(d, table, columns, p)
	if err != nil {
		return nil, err
	}
	stmts := make([]*param.Bound, len(rows))
	for i, row := range rows {
		args := make([]any, len(stmt.Columns))
		for j, c := range stmt.Columns {
			args[j] = row[source[c]]
		}
		if stmts[i], err = proc.Process(stmt.SQL, d, args...); err != nil {
			return nil, err
		}
	}
	return stmts, nil
}

// inserts batches rows into multi-row INSERT statements within the
// dialect's parameter limit.
func inserts(d dialect.Descriptor, table string, columns []string, source map[string]string, rows []map[string]any, proc *param.Processor) ([]*param.Bound, error) {
	var stmts []*param.Bound
	for _, r := range param.Batches(d, len(columns), len(rows)) {
		args := make([]any, 0, (r.End-r.Start)*len(columns))
		for _, row := range rows[r.Start:r.End] {
			for _, c := range columns {
				args = append(args, row[source[c]])
			}
		}
		b, err := proc.Process(Insert(d, table, columns, r.End-r.Start), d, args...)
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, b)
	}
	return stmts, nil
}

func execAll(ctx context.Context, conn Conn, stmts []*param.Bound) (int64, error) {
	tx, err := conn.Tx(ctx)
	if err != nil {
		return 0, err
	}
	var n int64
	for _, b := range stmts {
		var res sql.Result
		if err := tx.Exec(ctx, b.SQL, b.Args, &res); err != nil {
			return 0, dbx.Rollback(err, tx.Rollback())
		}
		if affected, err := res.RowsAffected(); err == nil {
			n += affected
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("upsert: commit: %w", err)
	}
	return n, nil
}
