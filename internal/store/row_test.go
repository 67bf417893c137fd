package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRow_MergeDoesNotMutate(t *testing.T) {
	r := Row{"a": 1, "b": "x"}
	m := r.Merge(Row{"b": "y", "c": true})

	assert.Equal(t, Row{"a": 1, "b": "x"}, r)
	assert.Equal(t, Row{"a": 1, "b": "y", "c": true}, m)
}

func TestRow_Without(t *testing.T) {
	r := Row{"a": 1, "b": 2}
	assert.Equal(t, Row{"b": 2}, r.Without("a", "missing"))
	assert.Len(t, r, 2)
	assert.Nil(t, Row(nil).Without("a"))
}

func TestRow_Getters(t *testing.T) {
	r := Row{
		"s":   "text",
		"raw": []byte("bytes"),
		"i":   7,
		"i64": int64(8),
		"f":   float64(9),
		"b":   true,
		"bi":  int64(1),
		"nil": nil,
	}
	assert.Equal(t, "text", r.String("s"))
	assert.Equal(t, "bytes", r.String("raw"))
	assert.Equal(t, "", r.String("i"))
	assert.Equal(t, int64(7), r.Int64("i"))
	assert.Equal(t, int64(8), r.Int64("i64"))
	assert.Equal(t, int64(9), r.Int64("f"))
	assert.True(t, r.Bool("b"))
	assert.True(t, r.Bool("bi"))
	assert.False(t, r.Bool("missing"))
	assert.False(t, r.Has("nil"))
	assert.True(t, r.Has("s"))
}

func TestFilters_KeysSorted(t *testing.T) {
	f := Filters{"sub": "s", "id": "i", "type": "t"}
	assert.Equal(t, []string{"id", "sub", "type"}, f.Keys())
}

func TestValues(t *testing.T) {
	v, ok := Values([]string{"a", "b"})
	assert.True(t, ok)
	assert.Equal(t, []any{"a", "b"}, v)

	v, ok = Values([]int{1})
	assert.True(t, ok)
	assert.Equal(t, []any{int64(1)}, v)

	_, ok = Values("a")
	assert.False(t, ok)
}

func TestRowID(t *testing.T) {
	assert.Equal(t, "i", RowID(Row{"id": "i", "sub": "s"}))
	assert.Equal(t, "s", RowID(Row{"sub": "s"}))
}
