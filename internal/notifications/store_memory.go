package notifications

import (
	"context"
	"slices"
	"strings"
	"sync"

	"github.com/L-Inventaire/linventaire.app-sub000/pkg/platform/sentinel"
)

// InMemory notification store. Unit-test double for the Postgres store.
type InMemory struct {
	mu   sync.RWMutex
	rows []Notification
}

func NewInMemory() *InMemory {
	return &InMemory{}
}

func cloneNotification(n Notification) Notification {
	n.Also = slices.Clone(n.Also)
	if n.Metadata != nil {
		m := make(map[string]string, len(n.Metadata))
		for k, v := range n.Metadata {
			m[k] = v
		}
		n.Metadata = m
	}
	return n
}

func (s *InMemory) Insert(_ context.Context, n *Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows = append(s.rows, cloneNotification(*n))
	return nil
}

func (s *InMemory) Update(_ context.Context, n *Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.rows {
		if s.rows[i].ID == n.ID {
			s.rows[i] = cloneNotification(*n)
			return nil
		}
	}
	return sentinel.ErrNotFound
}

func (s *InMemory) FindUnread(_ context.Context, tenantID, userID, entity, entityID string) (*Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := range s.rows {
		row := s.rows[i]
		if !row.Read && row.TenantID == tenantID && row.UserID == userID &&
			row.Entity == entity && row.EntityID == entityID {
			clone := cloneNotification(row)
			return &clone, nil
		}
	}
	return nil, sentinel.ErrNotFound
}

func (s *InMemory) GetByIDs(_ context.Context, tenantID string, ids []string) ([]Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Notification
	for _, id := range ids {
		for i := range s.rows {
			if s.rows[i].ID == id && s.rows[i].TenantID == tenantID {
				out = append(out, cloneNotification(s.rows[i]))
			}
		}
	}
	return out, nil
}

func (s *InMemory) ListByUser(_ context.Context, tenantID, userID string, limit, offset int) ([]Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Notification
	for i := range s.rows {
		if s.rows[i].TenantID == tenantID && s.rows[i].UserID == userID {
			out = append(out, cloneNotification(s.rows[i]))
		}
	}
	slices.SortStableFunc(out, func(a, b Notification) int {
		return b.LastNotifiedAt.Compare(a.LastNotifiedAt)
	})
	if offset > 0 {
		if offset >= len(out) {
			return nil, nil
		}
		out = out[offset:]
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *InMemory) CountUnread(_ context.Context, tenantID, userID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for i := range s.rows {
		if !s.rows[i].Read && s.rows[i].TenantID == tenantID && s.rows[i].UserID == userID {
			count++
		}
	}
	return count, nil
}

func (s *InMemory) MarkRead(_ context.Context, tenantID, userID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.rows {
		if s.rows[i].ID == id && s.rows[i].TenantID == tenantID && s.rows[i].UserID == userID {
			s.rows[i].Read = true
			return nil
		}
	}
	return sentinel.ErrNotFound
}

func (s *InMemory) MarkAllRead(_ context.Context, tenantID, userID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for i := range s.rows {
		if !s.rows[i].Read && s.rows[i].TenantID == tenantID && s.rows[i].UserID == userID {
			s.rows[i].Read = true
			count++
		}
	}
	return count, nil
}

// InMemoryPreferences is the in-memory PreferenceStore.
type InMemoryPreferences struct {
	mu    sync.RWMutex
	prefs map[string]Preference
}

func NewInMemoryPreferences() *InMemoryPreferences {
	return &InMemoryPreferences{prefs: make(map[string]Preference)}
}

func prefKey(tenantID, userID string) string {
	return tenantID + "\x00" + userID
}

func (s *InMemoryPreferences) Get(_ context.Context, tenantID, userID string) (*Preference, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pref, ok := s.prefs[prefKey(tenantID, userID)]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	clone := pref
	clone.AlwaysNotified = append([]string(nil), pref.AlwaysNotified...)
	return &clone, nil
}

func (s *InMemoryPreferences) Upsert(_ context.Context, pref *Preference) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *pref
	clone.AlwaysNotified = append([]string(nil), pref.AlwaysNotified...)
	s.prefs[prefKey(pref.TenantID, pref.UserID)] = clone
	return nil
}

func (s *InMemoryPreferences) ListByTenant(_ context.Context, tenantID string) ([]Preference, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Preference
	for _, pref := range s.prefs {
		if pref.TenantID == tenantID {
			clone := pref
			clone.AlwaysNotified = append([]string(nil), pref.AlwaysNotified...)
			out = append(out, clone)
		}
	}
	slices.SortFunc(out, func(a, b Preference) int { return strings.Compare(a.UserID, b.UserID) })
	return out, nil
}
