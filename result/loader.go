package result

// Loader materializes a result set into the caller's preferred shape.
type Loader interface {
	Load(Set) (any, error)
}

// LoaderFunc adapts a function to Loader.
type LoaderFunc func(Set) (any, error)

// Load calls f(s).
func (f LoaderFunc) Load(s Set) (any, error) { return f(s) }

// Built-in loaders.
var (
	// Maps loads []map[string]any, one map per row.
	Maps Loader = LoaderFunc(func(s Set) (any, error) { return s.Maps(), nil })
	// Tuples loads the rows as [][]any in column order.
	Tuples Loader = LoaderFunc(func(s Set) (any, error) { return s.Rows, nil })
	// Sets loads the Set itself, columns included.
	Sets Loader = LoaderFunc(func(s Set) (any, error) { return s, nil })
)
