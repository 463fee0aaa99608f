package threads

import "context"

// Store persists threads keyed by (tenant, record type, record id).
// Get returns sentinel.ErrNotFound when the thread was never touched.
type Store interface {
	Get(ctx context.Context, tenantID, recordType, recordID string) (*Thread, error)
	Upsert(ctx context.Context, thread *Thread) error
}
