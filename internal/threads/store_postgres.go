package threads

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/L-Inventaire/linventaire.app-sub000/pkg/platform/sentinel"
	txcontext "github.com/L-Inventaire/linventaire.app-sub000/pkg/platform/tx"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const Schema = `
CREATE TABLE IF NOT EXISTS threads (
    client_id   TEXT        NOT NULL,
    record_type TEXT        NOT NULL,
    record_id   TEXT        NOT NULL,
    subscribers TEXT[]      NOT NULL DEFAULT '{}',
    cleared     BOOLEAN     NOT NULL DEFAULT FALSE,
    created_at  TIMESTAMPTZ NOT NULL,
    updated_at  TIMESTAMPTZ NOT NULL,
    PRIMARY KEY (client_id, record_type, record_id)
);
`

func EnsureSchema(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, Schema)
	return err
}

func (s *PostgresStore) Get(ctx context.Context, tenantID, recordType, recordID string) (*Thread, error) {
	thread := &Thread{}
	err := txcontext.Resolve(ctx, s.db).QueryRowContext(ctx, `
		SELECT client_id, record_type, record_id, subscribers, cleared, created_at, updated_at
		FROM threads
		WHERE client_id = $1 AND record_type = $2 AND record_id = $3`,
		tenantID, recordType, recordID).Scan(
		&thread.TenantID, &thread.RecordType, &thread.RecordID,
		pq.Array(&thread.Subscribers), &thread.Cleared, &thread.CreatedAt, &thread.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get thread: %w", err)
	}
	return thread, nil
}

func (s *PostgresStore) Upsert(ctx context.Context, thread *Thread) error {
	_, err := txcontext.Resolve(ctx, s.db).ExecContext(ctx, `
		INSERT INTO threads (client_id, record_type, record_id, subscribers, cleared, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (client_id, record_type, record_id) DO UPDATE
		SET subscribers = EXCLUDED.subscribers,
		    cleared     = EXCLUDED.cleared,
		    updated_at  = EXCLUDED.updated_at`,
		thread.TenantID, thread.RecordType, thread.RecordID,
		pq.Array(thread.Subscribers), thread.Cleared, thread.CreatedAt, thread.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert thread: %w", err)
	}
	return nil
}
