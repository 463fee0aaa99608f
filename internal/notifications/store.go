package notifications

import (
	"context"
	"time"
)

// Store persists notification rows. FindUnread only matches unread rows:
// a read row is left intact and the next event starts a fresh one.
type Store interface {
	Insert(ctx context.Context, n *Notification) error
	Update(ctx context.Context, n *Notification) error
	FindUnread(ctx context.Context, tenantID, userID, entity, entityID string) (*Notification, error)
	GetByIDs(ctx context.Context, tenantID string, ids []string) ([]Notification, error)
	ListByUser(ctx context.Context, tenantID, userID string, limit, offset int) ([]Notification, error)
	CountUnread(ctx context.Context, tenantID, userID string) (int, error)
	MarkRead(ctx context.Context, tenantID, userID, id string) error
	MarkAllRead(ctx context.Context, tenantID, userID string) (int, error)
}

// PreferenceStore persists per-(tenant, user) notification preferences.
type PreferenceStore interface {
	Get(ctx context.Context, tenantID, userID string) (*Preference, error)
	Upsert(ctx context.Context, pref *Preference) error
	ListByTenant(ctx context.Context, tenantID string) ([]Preference, error)
}

// DigestQueue is the slice of the digest store the fan-out needs: append a
// freshly unread notification, and drop a user's pending batch once
// everything is read. Implemented by internal/digest.
type DigestQueue interface {
	Append(ctx context.Context, tenantID, userID, notificationID string, now time.Time) error
	Delete(ctx context.Context, tenantID, userID string) error
}
