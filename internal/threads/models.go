// Package threads maintains the lazily-created subscriber list attached to
// every record instance: who gets notified when the record changes.
package threads

import "time"

// Thread is the subscriber set for one record. Membership is a set:
// add/remove are idempotent. A thread is cleared, never deleted, when its
// owning record is deleted.
type Thread struct {
	TenantID    string    `json:"client_id"`
	RecordType  string    `json:"record_type"`
	RecordID    string    `json:"record_id"`
	Subscribers []string  `json:"subscribers"`
	Cleared     bool      `json:"cleared"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Has reports whether the user subscribes to the thread.
func (t *Thread) Has(userID string) bool {
	for _, sub := range t.Subscribers {
		if sub == userID {
			return true
		}
	}
	return false
}
