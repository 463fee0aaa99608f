// Package history persists an immutable snapshot of every top-level
// mutation performed against an audited record type.
package history

import (
	"time"

	"github.com/L-Inventaire/linventaire.app-sub000/internal/records"
	"github.com/L-Inventaire/linventaire.app-sub000/internal/triggers"
)

// Row is one audited mutation. Append-only; never mutated or deleted.
type Row struct {
	ID                 string             `json:"id"`
	TenantID           string             `json:"client_id"`
	RecordType         string             `json:"record_type"`
	RecordID           string             `json:"record_id"`
	Operation          triggers.Operation `json:"operation"`
	OperationTimestamp time.Time          `json:"operation_timestamp"`

	// Snapshot is the audited record projected onto its own schema columns,
	// transient search fields dropped.
	Snapshot records.State `json:"snapshot"`
}

// SearchResult is a page of history rows, newest first.
type SearchResult struct {
	Total   int   `json:"total"`
	List    []Row `json:"list"`
	HasMore bool  `json:"has_more"`
}
