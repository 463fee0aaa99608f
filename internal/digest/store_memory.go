package digest

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"
)

// InMemory digest store. Unit-test double for the Postgres store.
type InMemory struct {
	mu      sync.RWMutex
	batches map[string]Batch
}

func NewInMemory() *InMemory {
	return &InMemory{batches: make(map[string]Batch)}
}

func batchKey(tenantID, userID string) string {
	return tenantID + "\x00" + userID
}

func (s *InMemory) Append(_ context.Context, tenantID, userID, notificationID string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := batchKey(tenantID, userID)
	batch, ok := s.batches[key]
	if !ok {
		batch = Batch{TenantID: tenantID, UserID: userID, CreatedAt: now}
	}
	batch.NotificationIDs = append(batch.NotificationIDs, notificationID)
	s.batches[key] = batch
	return nil
}

func (s *InMemory) List(_ context.Context, limit int) ([]Batch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Batch, 0, len(s.batches))
	for _, batch := range s.batches {
		clone := batch
		clone.NotificationIDs = append([]string(nil), batch.NotificationIDs...)
		out = append(out, clone)
	}
	slices.SortFunc(out, func(a, b Batch) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(batchKey(a.TenantID, a.UserID), batchKey(b.TenantID, b.UserID))
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *InMemory) Delete(_ context.Context, tenantID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.batches, batchKey(tenantID, userID))
	return nil
}
