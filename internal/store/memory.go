package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/dmitrijs2005/gophauth/internal/common"
)

// Memory is a Store held in process memory. Rows keep insertion order.
type Memory struct {
	mu     sync.RWMutex
	tables map[string][]Row
}

func NewMemory() *Memory {
	return &Memory{tables: make(map[string][]Row)}
}

var _ Store = (*Memory)(nil)

func (m *Memory) Exists(ctx context.Context, table string, filters Filters) (string, error) {
	row, err := m.Select(ctx, table, filters, "sub")
	if err != nil || row == nil {
		return "", err
	}
	return row.String("sub"), nil
}

func (m *Memory) Select(ctx context.Context, table string, filters Filters, fields ...string) (Row, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, r := range m.tables[table] {
		if matches(r, filters) {
			return project(r, fields), nil
		}
	}
	return nil, nil
}

func (m *Memory) SelectList(ctx context.Context, table string, filters Filters, fields ...string) ([]Row, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []Row
	for _, r := range m.tables[table] {
		if matches(r, filters) {
			out = append(out, project(r, fields))
		}
	}
	return out, nil
}

func (m *Memory) Insert(ctx context.Context, table string, row Row) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.insert(table, row)
}

// InsertList inserts every row or none.
func (m *Memory) InsertList(ctx context.Context, table string, rows []Row) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	before := m.tables[table]
	ids := make([]string, 0, len(rows))
	for _, r := range rows {
		id, err := m.insert(table, r)
		if err != nil {
			m.tables[table] = before
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (m *Memory) Update(ctx context.Context, table string, filters Filters, patch Row) error {
	if len(filters) == 0 {
		return fmt.Errorf("%w: update without filters", common.ErrorInvalidInput)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	rows := m.tables[table]
	for i, r := range rows {
		if matches(r, filters) {
			rows[i] = r.Merge(patch)
		}
	}
	return nil
}

func (m *Memory) Remove(ctx context.Context, table string, filters Filters) (int64, error) {
	if len(filters) == 0 {
		return 0, fmt.Errorf("%w: remove without filters", common.ErrorInvalidInput)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	rows := m.tables[table]
	kept := make([]Row, 0, len(rows))
	var n int64
	for _, r := range rows {
		if matches(r, filters) {
			n++
			continue
		}
		kept = append(kept, r)
	}
	m.tables[table] = kept
	return n, nil
}

// Len returns the number of rows in table.
func (m *Memory) Len(table string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.tables[table])
}

func (m *Memory) insert(table string, row Row) (string, error) {
	key := "id"
	if !row.Has("id") {
		key = "sub"
	}
	id := row.String(key)
	for _, r := range m.tables[table] {
		if id != "" && r.String(key) == id {
			return "", fmt.Errorf("%w: duplicate %s in %s", common.ErrorConflict, key, table)
		}
	}
	m.tables[table] = append(m.tables[table], row.Clone())
	return id, nil
}

func matches(r Row, filters Filters) bool {
	for col, want := range filters {
		got, ok := r[col]
		if want == nil {
			if ok && got != nil {
				return false
			}
			continue
		}
		got = Normalize(got)
		if list, isList := Values(want); isList {
			found := false
			for _, v := range list {
				if Normalize(v) == got {
					found = true
					break
				}
			}
			if !found {
				return false
			}
			continue
		}
		if !ok || Normalize(want) != got {
			return false
		}
	}
	return true
}

func project(r Row, fields []string) Row {
	if len(fields) == 0 {
		return r.Clone()
	}
	out := make(Row, len(fields))
	for _, f := range fields {
		if v, ok := r[f]; ok {
			out[f] = v
		}
	}
	return out
}
