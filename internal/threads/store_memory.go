package threads

import (
	"context"
	"slices"
	"sync"

	"github.com/L-Inventaire/linventaire.app-sub000/pkg/platform/sentinel"
)

type InMemory struct {
	mu      sync.RWMutex
	threads map[string]*Thread
}

func NewInMemory() *InMemory {
	return &InMemory{threads: make(map[string]*Thread)}
}

func key(tenantID, recordType, recordID string) string {
	return tenantID + "\x00" + recordType + "\x00" + recordID
}

func (s *InMemory) Get(_ context.Context, tenantID, recordType, recordID string) (*Thread, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	thread, ok := s.threads[key(tenantID, recordType, recordID)]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	clone := *thread
	clone.Subscribers = slices.Clone(thread.Subscribers)
	return &clone, nil
}

func (s *InMemory) Upsert(_ context.Context, thread *Thread) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *thread
	clone.Subscribers = slices.Clone(thread.Subscribers)
	s.threads[key(thread.TenantID, thread.RecordType, thread.RecordID)] = &clone
	return nil
}
