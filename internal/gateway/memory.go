package gateway

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// MemoryStore is an in-memory Gateway used by tests and by sessions run
// without a durable store. It mirrors the SQLite store's semantics,
// including the (tenant, fitId) uniqueness guard on reconciliation records.
type MemoryStore struct {
	mu     sync.RWMutex
	tables map[string][]Row
}

// NewMemoryStore creates an empty in-memory store with the known tables
// present.
func NewMemoryStore() *MemoryStore {
	tables := make(map[string][]Row, len(knownTables))
	for table := range knownTables {
		tables[table] = nil
	}
	return &MemoryStore{tables: tables}
}

// NewMemoryStoreWithoutTables creates a store where every call fails with
// ErrTableNotFound, for exercising degraded mode.
func NewMemoryStoreWithoutTables() *MemoryStore {
	return &MemoryStore{tables: map[string][]Row{}}
}

// List returns the rows of table matching opts.
func (m *MemoryStore) List(ctx context.Context, table string, opts ListOptions) ([]Row, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rows, ok := m.tables[table]
	if !ok {
		return nil, ErrTableNotFound
	}

	var result []Row
	for _, row := range rows {
		if !opts.IncludeDeleted && row.String("deleted_at") != "" {
			continue
		}
		if matchesFilters(row, opts.Filters) {
			result = append(result, clone(row))
		}
	}

	if opts.SortField != "" {
		field := opts.SortField
		sort.SliceStable(result, func(i, j int) bool {
			if opts.SortDesc {
				return result[i].String(field) > result[j].String(field)
			}
			return result[i].String(field) < result[j].String(field)
		})
	}
	if opts.Limit > 0 && len(result) > opts.Limit {
		result = result[:opts.Limit]
	}
	return result, nil
}

// Create inserts a new row, generating an id when the payload has none.
func (m *MemoryStore) Create(ctx context.Context, table string, payload Row) (Row, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rows, ok := m.tables[table]
	if !ok {
		return nil, ErrTableNotFound
	}

	stored := clone(payload)
	if stored.String("id") == "" {
		stored["id"] = NewID()
	}

	if table == "reconciliation_records" {
		tenant, fitID := stored.String("tenant_id"), stored.String("fit_id")
		for _, row := range rows {
			if row.String("deleted_at") == "" &&
				row.String("tenant_id") == tenant && row.String("fit_id") == fitID {
				return nil, ErrConflict
			}
		}
	}

	m.tables[table] = append(rows, stored)
	return clone(stored), nil
}

// Update merges the payload into the existing row identified by payload["id"].
func (m *MemoryStore) Update(ctx context.Context, table string, payload Row) (Row, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rows, ok := m.tables[table]
	if !ok {
		return nil, ErrTableNotFound
	}

	id := payload.String("id")
	for i, row := range rows {
		if row.String("id") != id || row.String("deleted_at") != "" {
			continue
		}
		merged := clone(row)
		for k, v := range payload {
			merged[k] = v
		}
		m.tables[table][i] = merged
		return clone(merged), nil
	}
	return nil, ErrNotFound
}

// Count returns the number of live rows in table, for tests.
func (m *MemoryStore) Count(table string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	count := 0
	for _, row := range m.tables[table] {
		if row.String("deleted_at") == "" {
			count++
		}
	}
	return count
}

func matchesFilters(row Row, filters []Filter) bool {
	for _, f := range filters {
		if !matchesFilter(row, f) {
			return false
		}
	}
	return true
}

func matchesFilter(row Row, f Filter) bool {
	actual := row.String(f.Field)
	switch f.Op {
	case OpEqual:
		return actual == stringValue(f.Value)
	case OpGTE:
		return actual >= stringValue(f.Value)
	case OpLTE:
		return actual <= stringValue(f.Value)
	case OpIn:
		values, ok := f.Value.([]string)
		if !ok {
			return false
		}
		for _, v := range values {
			if actual == v {
				return true
			}
		}
		return false
	default:
		return false
	}
}

func stringValue(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}
