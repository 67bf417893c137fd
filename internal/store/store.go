// Package store defines the narrow CRUD and filter contract every record
// service persists through, together with an in-memory implementation.
//
// Rows are column→value maps keyed by camelCase names. Timestamps are
// epoch seconds (int64) at this layer; adapters may translate.
package store

import (
	"context"
	"sort"
)

// Filters maps a column to the value it must equal. A slice value means
// IN, a nil value means the column is NULL or absent.
type Filters map[string]any

// Keys returns the filter columns in a stable order.
func (f Filters) Keys() []string {
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Store is implemented by storage adapters.
//
// Select returns a nil Row when nothing matches. Exists returns the sub of
// the first matching row, or "" when nothing matches. Remove returns the
// number of rows it deleted, so a caller racing another delete can tell
// that it lost.
type Store interface {
	Exists(ctx context.Context, table string, filters Filters) (string, error)
	Select(ctx context.Context, table string, filters Filters, fields ...string) (Row, error)
	SelectList(ctx context.Context, table string, filters Filters, fields ...string) ([]Row, error)
	Insert(ctx context.Context, table string, row Row) (string, error)
	InsertList(ctx context.Context, table string, rows []Row) ([]string, error)
	Update(ctx context.Context, table string, filters Filters, patch Row) error
	Remove(ctx context.Context, table string, filters Filters) (int64, error)
}

// Values expands a filter value into the list it matches against.
// The second result is false for scalar values.
func Values(v any) ([]any, bool) {
	switch x := v.(type) {
	case []any:
		return x, true
	case []string:
		out := make([]any, len(x))
		for i, s := range x {
			out[i] = s
		}
		return out, true
	case []int64:
		out := make([]any, len(x))
		for i, n := range x {
			out[i] = n
		}
		return out, true
	case []int:
		out := make([]any, len(x))
		for i, n := range x {
			out[i] = int64(n)
		}
		return out, true
	}
	return nil, false
}

// RowID is the key an adapter reports for an inserted row: its id, or its
// sub for tables keyed by subject.
func RowID(row Row) string {
	if id := row.String("id"); id != "" {
		return id
	}
	return row.String("sub")
}
