package param

import (
	"github.com/samber/lo"

	"github.com/syssam/dbx/dialect"
)

// Chunk splits values into consecutive slices of at most size elements.
// A non-positive size yields one chunk.
func Chunk[T any](values []T, size int) [][]T {
	if len(values) == 0 {
		return nil
	}
	if size <= 0 {
		return [][]T{values}
	}
	return lo.Chunk(values, size)
}

// Range is a half-open interval of row indexes.
type Range struct {
	Start, End int
}

// Batches splits nrows rows of ncols parameters each into ranges that fit
// within the parameter limit of d.
func Batches(d dialect.Descriptor, ncols, nrows int) []Range {
	size := d.BatchSize(ncols)
	var batches []Range
	for start := 0; start < nrows; start += size {
		batches = append(batches, Range{Start: start, End: min(start+size, nrows)})
	}
	return batches
}
