// Package notifications resolves who should hear about a mutation and
// maintains the per-recipient notification rows the digest sweep drains.
package notifications

import "time"

// Event types emitted by the pipeline's propagators.
const (
	TypeMentioned      = "mentioned"
	TypeCommented      = "commented"
	TypeAssigned       = "assigned"
	TypeModified       = "modified"
	TypeDocumentSigned = "document_signed"
)

// Event is one notifiable fact about one record.
type Event struct {
	TenantID    string            `json:"client_id"`
	RecordType  string            `json:"entity"`
	RecordID    string            `json:"entity_id"`
	DisplayName string            `json:"entity_display_name"`
	Type        string            `json:"type"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// Entry is a superseded event kept on an unread notification.
type Entry struct {
	Type     string            `json:"type"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// AlsoCap bounds the superseded-event history kept while a notification
// stays unread.
const AlsoCap = 10

// Notification is the per-recipient row. While unread, repeated events for
// the same (tenant, user, entity, entity id) merge into the same row; once
// read, the next event starts a fresh row.
type Notification struct {
	ID                string            `json:"id"`
	TenantID          string            `json:"client_id"`
	UserID            string            `json:"user_id"`
	Entity            string            `json:"entity"`
	EntityID          string            `json:"entity_id"`
	EntityDisplayName string            `json:"entity_display_name"`
	Type              string            `json:"type"`
	Metadata          map[string]string `json:"metadata,omitempty"`
	Also              []Entry           `json:"also,omitempty"`
	LastNotifiedAt    time.Time         `json:"last_notified_at"`
	Read              bool              `json:"read"`
}

// Preference is one user's notification settings within a tenant.
// AlwaysNotified lists event types delivered regardless of thread
// subscription.
type Preference struct {
	TenantID       string    `json:"client_id"`
	UserID         string    `json:"user_id"`
	AlwaysNotified []string  `json:"always_notified"`
	Email          string    `json:"email"`
	Locale         string    `json:"locale"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Wants reports whether the preference opts the user into the event type.
func (p Preference) Wants(eventType string) bool {
	for _, t := range p.AlwaysNotified {
		if t == eventType {
			return true
		}
	}
	return false
}
