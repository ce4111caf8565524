// Package upsert generates and runs dialect-specific insert-or-update
// statements.
package upsert

import (
	"github.com/samber/lo"
	"golang.org/x/text/cases"

	"github.com/syssam/dbx"
)

// Policy describes how conflicting rows are resolved.
type Policy struct {
	// Keys are the conflict columns. When empty, Run falls back to the
	// table's primary keys.
	Keys []string
	// AlwaysUpdate columns take the incoming value on conflict.
	AlwaysUpdate []string
	// UpdateIfNull columns keep the existing value unless it is NULL.
	UpdateIfNull []string
	// Constraint names the conflict constraint instead of Keys.
	// Postgres only.
	Constraint string
	// Returning columns are returned by the statement when the dialect
	// supports it.
	Returning []string
}

// Validate checks that the key, always-update and update-if-null column
// sets are pairwise disjoint. Column names compare case-insensitively.
func (p Policy) Validate() error {
	keys, always, ifNull := folded(p.Keys), folded(p.AlwaysUpdate), folded(p.UpdateIfNull)
	if both := lo.Intersect(always, ifNull); len(both) > 0 {
		return dbx.NewParameterError("columns %v are both always-update and update-if-null", both)
	}
	if both := lo.Intersect(keys, append(always, ifNull...)); len(both) > 0 {
		return dbx.NewParameterError("key columns %v cannot be updated on conflict", both)
	}
	return nil
}

// updates returns the policy columns that are rewritten on conflict.
func (p Policy) updates() []string {
	return append(append([]string(nil), p.AlwaysUpdate...), p.UpdateIfNull...)
}

func folded(names []string) []string {
	fold := cases.Fold()
	return lo.Map(names, func(s string, _ int) string { return fold.String(s) })
}

// columnSet indexes column names case-insensitively.
type columnSet map[string]string

func newColumnSet(names []string) columnSet {
	fold := cases.Fold()
	set := make(columnSet, len(names))
	for _, n := range names {
		set[fold.String(n)] = n
	}
	return set
}

// missing returns the names not present in the set.
func (s columnSet) missing(names []string) []string {
	fold := cases.Fold()
	return lo.Filter(names, func(n string, _ int) bool {
		_, ok := s[fold.String(n)]
		return !ok
	})
}

// canonical returns the set's spelling of name.
func (s columnSet) canonical(name string) (string, bool) {
	c, ok := s[cases.Fold().String(name)]
	return c, ok
}
