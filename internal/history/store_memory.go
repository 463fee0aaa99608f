package history

import (
	"context"
	"slices"
	"sync"
)

// InMemory keeps history rows per (tenant, type, id). Unit-test double for
// the Postgres store.
type InMemory struct {
	mu   sync.RWMutex
	rows map[string][]Row
}

func NewInMemory() *InMemory {
	return &InMemory{rows: make(map[string][]Row)}
}

func key(tenantID, recordType, recordID string) string {
	return tenantID + "\x00" + recordType + "\x00" + recordID
}

func (s *InMemory) Append(_ context.Context, row Row) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := key(row.TenantID, row.RecordType, row.RecordID)
	s.rows[k] = append(s.rows[k], row)
	return nil
}

func (s *InMemory) Search(_ context.Context, tenantID, recordType, recordID string, limit, offset int) ([]Row, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := slices.Clone(s.rows[key(tenantID, recordType, recordID)])
	// Newest first; rows append in mutation order.
	slices.Reverse(all)

	total := len(all)
	if offset >= total {
		return nil, total, nil
	}
	all = all[offset:]
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	return all, total, nil
}

// All returns every row in the store, for test assertions.
func (s *InMemory) All() []Row {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Row
	for _, rows := range s.rows {
		out = append(out, rows...)
	}
	return out
}
