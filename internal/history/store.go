package history

import "context"

// Store persists history rows. Append-only: there is no update or delete.
type Store interface {
	Append(ctx context.Context, row Row) error
	// Search returns rows for one record, newest first, plus the total count
	// before pagination.
	Search(ctx context.Context, tenantID, recordType, recordID string, limit, offset int) ([]Row, int, error)
}
