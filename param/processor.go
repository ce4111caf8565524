// Package param rewrites query text and arguments for a target dialect.
//
// Queries are written once with %s or ? positional placeholders, or with
// %(name)s placeholders bound from a single map[string]any argument:
//
//	b, err := param.Process("SELECT * FROM users WHERE id IN %s AND deleted_at IS %s",
//		dialect.PostgresDescriptor, []int{1, 2, 3}, nil)
//	// b.SQL:  SELECT * FROM users WHERE id IN ($1, $2, $3) AND deleted_at IS NULL
//	// b.Args: [1 2 3]
//
// Every bound value passes through the outbound converter exactly once.
package param

import (
	"database/sql"
	"database/sql/driver"
	"reflect"
	"strconv"
	"strings"

	"github.com/syssam/dbx"
	"github.com/syssam/dbx/dialect"
	"github.com/syssam/dbx/sqltype"
)

// Bound is a rewritten query with its converted arguments, ready for
// database/sql.
type Bound struct {
	SQL  string
	Args []any
	// Names holds, for named input, the parameter name of each entry in
	// Args. Expanded list elements are named name_0, name_1 and so on,
	// numbered above any name_N key the input already holds.
	Names []string
}

// Processor rewrites queries using a configured converter.
type Processor struct {
	Converter *sqltype.Converter
}

var std = &Processor{}

// Process rewrites query for d using the default converter.
func Process(query string, d dialect.Descriptor, args ...any) (*Bound, error) {
	return std.Process(query, d, args...)
}

// Process rewrites query and args for d. Nothing is returned unless the
// whole query was rewritten.
func (p *Processor) Process(query string, d dialect.Descriptor, args ...any) (*Bound, error) {
	toks, err := lex(query, d)
	if err != nil {
		return nil, err
	}
	var positional, question, named int
	for _, t := range toks {
		switch t.kind {
		case formatToken:
			positional++
		case questionToken:
			question++
		case namedToken:
			named++
		}
	}
	// ? is an operator, not a placeholder, once %-style placeholders appear.
	for i, t := range toks {
		if t.kind != questionToken {
			continue
		}
		if positional+named > 0 {
			toks[i].kind = textToken
		} else {
			toks[i].kind = formatToken
		}
	}
	if positional+named == 0 {
		positional = question
	}
	if positional > 0 && named > 0 {
		return nil, dbx.NewParameterError("query mixes positional and named placeholders")
	}
	r := &renderer{
		d:    d,
		conv: p.converter(),
		toks: toks,
	}
	// A lone map fills named placeholders; with positional ones it is a value.
	if values, ok := namedArgs(args); ok && positional == 0 {
		r.named = values
		err = r.renderNamed()
	} else {
		if named > 0 {
			return nil, dbx.NewParameterError("query uses named placeholders but arguments are positional")
		}
		err = r.renderPositional(spread(toks, unwrap(args, positional)))
	}
	if err != nil {
		return nil, err
	}
	if d.ParamLimit > 0 && len(r.args) > d.ParamLimit {
		return nil, dbx.NewParameterError("%d parameters exceed the %s limit of %d", len(r.args), d.Name(), d.ParamLimit)
	}
	return &Bound{SQL: r.b.String(), Args: r.args, Names: r.names}, nil
}

func (p *Processor) converter() *sqltype.Converter {
	if p == nil || p.Converter == nil {
		return sqltype.DefaultConverter
	}
	return p.Converter
}

// namedArgs reports whether args select named mode.
func namedArgs(args []any) (map[string]any, bool) {
	if len(args) != 1 {
		return nil, false
	}
	m, ok := args[0].(map[string]any)
	return m, ok
}

// unwrap accepts a single []any argument holding the whole argument list
// when its length matches the placeholder count.
func unwrap(args []any, n int) []any {
	if len(args) != 1 {
		return args
	}
	if list, ok := args[0].([]any); ok && len(list) == n {
		return list
	}
	return args
}

// spread gathers scalar arguments given one by one into the list of a
// query whose only placeholder is in IN position, as in
// Process("... WHERE x IN %s", d, 1, 2, 3).
func spread(toks []token, args []any) []any {
	if len(args) < 2 {
		return args
	}
	at := -1
	for i, t := range toks {
		if t.kind != formatToken {
			continue
		}
		if at >= 0 {
			return args
		}
		at = i
	}
	if at < 0 {
		return args
	}
	if pos := positionAt(toks, at); pos != inPos && pos != inParenPos {
		return args
	}
	for _, a := range args {
		if _, ok := sequence(a); ok {
			return args
		}
	}
	return []any{args}
}

func positionAt(toks []token, i int) position {
	var before, after string
	if i > 0 && toks[i-1].kind == textToken {
		before = toks[i-1].text
	}
	if i+1 < len(toks) && toks[i+1].kind == textToken {
		after = toks[i+1].text
	}
	return positionOf(before, after)
}

type renderer struct {
	d     dialect.Descriptor
	conv  *sqltype.Converter
	toks  []token
	named map[string]any
	b     strings.Builder
	args  []any
	names []string
	// slots maps a named parameter to its bound positions, so numbered
	// dialects can reuse them.
	slots map[string][]int
	// first holds the first suffix of the expanded names of a list
	// parameter.
	first map[string]int
}

func (r *renderer) renderPositional(args []any) error {
	var n int
	for _, t := range r.toks {
		if t.kind == formatToken {
			n++
		}
	}
	if n != len(args) {
		return dbx.NewParameterError("query has %d placeholders but %d arguments were given", n, len(args))
	}
	k := 0
	for i, t := range r.toks {
		if t.kind == textToken {
			r.b.WriteString(t.text)
			continue
		}
		v := args[k]
		k++
		if err := r.placeholder(positionAt(r.toks, i), v, func(v any) error {
			cv, err := r.conv.Convert(r.d, v)
			if err != nil {
				return err
			}
			r.args = append(r.args, cv)
			r.d.Bind(&r.b, len(r.args))
			return nil
		}); err != nil {
			return err
		}
	}
	return nil
}

func (r *renderer) renderNamed() error {
	r.slots = make(map[string][]int)
	for i, t := range r.toks {
		if t.kind == textToken {
			r.b.WriteString(t.text)
			continue
		}
		v, ok := r.named[t.name]
		if !ok {
			return dbx.NewParameterError("missing value for named parameter %q", t.name)
		}
		pos := positionAt(r.toks, i)
		_, isList := sequence(v)
		expand := isList && (pos == inPos || pos == inParenPos)
		var elem int
		if expand {
			elem = r.firstSuffix(t.name)
		}
		if err := r.placeholder(pos, v, func(v any) error {
			name := t.name
			if expand {
				name += "_" + strconv.Itoa(elem)
				elem++
			}
			return r.bindNamed(name, v)
		}); err != nil {
			return err
		}
	}
	return nil
}

// firstSuffix returns the suffix the expanded names of list parameter
// name start at. It is above every name_N key of the input, so expansion
// never shadows a value the caller passed.
func (r *renderer) firstSuffix(name string) int {
	if n, ok := r.first[name]; ok {
		return n
	}
	next := 0
	prefix := name + "_"
	for key := range r.named {
		rest, ok := strings.CutPrefix(key, prefix)
		if !ok {
			continue
		}
		if n, err := strconv.Atoi(rest); err == nil && n >= 0 && strconv.Itoa(n) == rest {
			next = max(next, n+1)
		}
	}
	if r.first == nil {
		r.first = make(map[string]int)
	}
	r.first[name] = next
	return next
}

func (r *renderer) bindNamed(name string, v any) error {
	if r.d.SupportsNamedParams || r.d.Placeholder == dialect.NamedFormat {
		if _, ok := r.slots[name]; !ok {
			cv, err := r.conv.Convert(r.d, v)
			if err != nil {
				return err
			}
			r.args = append(r.args, sql.Named(name, cv))
			r.names = append(r.names, name)
			r.slots[name] = []int{len(r.args)}
		}
		r.d.BindNamed(&r.b, name)
		return nil
	}
	if slot, ok := r.slots[name]; ok && r.d.Numbered() {
		r.d.Bind(&r.b, slot[0])
		return nil
	}
	cv, err := r.conv.Convert(r.d, v)
	if err != nil {
		return err
	}
	r.args = append(r.args, cv)
	r.names = append(r.names, name)
	r.slots[name] = append(r.slots[name], len(r.args))
	r.d.Bind(&r.b, len(r.args))
	return nil
}

// placeholder writes one input placeholder at pos, calling bind for each
// value that needs a bind slot.
func (r *renderer) placeholder(pos position, v any, bind func(any) error) error {
	switch pos {
	case isPos:
		if r.isNull(v) {
			r.b.WriteString("NULL")
			return nil
		}
	case inPos, inParenPos:
		if pos == inPos {
			r.b.WriteByte('(')
		}
		elems, ok := sequence(v)
		if !ok {
			elems = []any{v}
		}
		// A list wrapped in a one-element list is the list itself.
		if len(elems) == 1 {
			if inner, ok := sequence(elems[0]); ok {
				elems = inner
			}
		}
		if len(elems) == 0 {
			// Matches no rows.
			r.b.WriteString("NULL")
		}
		for i, e := range elems {
			if i > 0 {
				r.b.WriteString(", ")
			}
			if err := bind(e); err != nil {
				return err
			}
		}
		if pos == inPos {
			r.b.WriteByte(')')
		}
		return nil
	}
	return bind(v)
}

// isNull reports whether v binds as NULL. The value is not converted here,
// so it is still converted exactly once when bound.
func (r *renderer) isNull(v any) bool {
	return r.conv.BindsNull(v)
}

// sequence returns the elements of a list value. Byte slices, driver
// values and strings are scalars.
func sequence(v any) ([]any, bool) {
	switch v := v.(type) {
	case nil, []byte, string, driver.Valuer:
		return nil, false
	case []any:
		return v, true
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	if rv.Type().Elem().Kind() == reflect.Uint8 {
		return nil, false
	}
	elems := make([]any, rv.Len())
	for i := range elems {
		elems[i] = rv.Index(i).Interface()
	}
	return elems, true
}
