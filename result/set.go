package result

import (
	"fmt"

	"github.com/syssam/dbx/dialect"
	dsql "github.com/syssam/dbx/dialect/sql"
)

// Set is one result set.
type Set struct {
	Columns []Column
	Rows    [][]any
}

// FromRaw converts every raw result set, each with its own descriptors.
func FromRaw(r Resolver, id dialect.ID, raw []dsql.RawResult, infer bool) []Set {
	sets := make([]Set, len(raw))
	for i, rr := range raw {
		rows := rr.Rows
		if rows == nil {
			rows = [][]any{}
		}
		sets[i] = Set{Columns: FromDriver(r, id, rr.Columns, infer), Rows: rows}
	}
	return sets
}

// Len returns the number of rows.
func (s Set) Len() int { return len(s.Rows) }

// Maps returns every row keyed by column name.
func (s Set) Maps() []map[string]any {
	out := make([]map[string]any, len(s.Rows))
	for i, row := range s.Rows {
		m := make(map[string]any, len(s.Columns))
		for j, c := range s.Columns {
			if j < len(row) {
				m[c.Name] = row[j]
			}
		}
		out[i] = m
	}
	return out
}

// Scalar returns the first column of the first row.
func (s Set) Scalar() (any, bool) {
	if len(s.Rows) == 0 || len(s.Rows[0]) == 0 {
		return nil, false
	}
	return s.Rows[0][0], true
}

// Policy selects one result set out of a multi-statement result.
type Policy uint8

// Selection policies.
const (
	// Largest picks the set with the most rows. On a tie the set that came
	// first wins.
	Largest Policy = iota
	First
	Last
)

func (p Policy) String() string {
	switch p {
	case Largest:
		return "largest"
	case First:
		return "first"
	case Last:
		return "last"
	default:
		return fmt.Sprintf("Policy(%d)", uint8(p))
	}
}

// Pick returns the set chosen by p, and false when there are no sets.
func Pick(sets []Set, p Policy) (Set, bool) {
	if len(sets) == 0 {
		return Set{}, false
	}
	switch p {
	case First:
		return sets[0], true
	case Last:
		return sets[len(sets)-1], true
	}
	best := 0
	for i := 1; i < len(sets); i++ {
		if sets[i].Len() > sets[best].Len() {
			best = i
		}
	}
	return sets[best], true
}
