package digest

import (
	"context"
	"time"
)

// Store persists digest batches. Append and Delete satisfy the queue
// interface the notification fan-out consumes; List feeds the sweep.
type Store interface {
	Append(ctx context.Context, tenantID, userID, notificationID string, now time.Time) error
	List(ctx context.Context, limit int) ([]Batch, error)
	Delete(ctx context.Context, tenantID, userID string) error
}
