// Package digest drains pending notification batches into periodic
// e-mails, one per (tenant, user).
package digest

import "time"

// Batch accumulates the notification ids a user has not yet been e-mailed
// about. A batch is deleted as soon as a sweep attempts it, whether or not
// delivery succeeded, and when the user reads all their notifications.
type Batch struct {
	TenantID        string
	UserID          string
	NotificationIDs []string
	CreatedAt       time.Time
}
