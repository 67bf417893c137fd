package store

// Row is a single record. Treat it as immutable: Merge and Clone return
// new rows and never touch the receiver.
type Row map[string]any

func (r Row) Clone() Row {
	if r == nil {
		return nil
	}
	out := make(Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Merge returns a copy of r with every column of patch applied over it.
func (r Row) Merge(patch Row) Row {
	out := make(Row, len(r)+len(patch))
	for k, v := range r {
		out[k] = v
	}
	for k, v := range patch {
		out[k] = v
	}
	return out
}

// Without returns a copy of r without the named columns.
func (r Row) Without(keys ...string) Row {
	out := r.Clone()
	if out == nil {
		return nil
	}
	for _, k := range keys {
		delete(out, k)
	}
	return out
}

func (r Row) Has(key string) bool {
	v, ok := r[key]
	return ok && v != nil
}

func (r Row) String(key string) string {
	switch v := r[key].(type) {
	case string:
		return v
	case []byte:
		return string(v)
	}
	return ""
}

func (r Row) Int64(key string) int64 {
	switch v := r[key].(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case int32:
		return int64(v)
	case uint32:
		return int64(v)
	case float64:
		return int64(v)
	}
	return 0
}

// Bool accepts native booleans and the integer form SQLite returns.
func (r Row) Bool(key string) bool {
	switch v := r[key].(type) {
	case bool:
		return v
	case int64:
		return v != 0
	case int:
		return v != 0
	}
	return false
}

// Normalize converts a column value to the canonical form used for
// comparisons: integers become int64, byte slices become strings.
func Normalize(v any) any {
	switch x := v.(type) {
	case int:
		return int64(x)
	case int32:
		return int64(x)
	case uint32:
		return int64(x)
	case []byte:
		return string(x)
	}
	return v
}
