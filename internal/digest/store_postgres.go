package digest

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	txcontext "github.com/L-Inventaire/linventaire.app-sub000/pkg/platform/tx"
)

// PostgresStore persists digest batches, one row per (tenant, user).
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const Schema = `
CREATE TABLE IF NOT EXISTS digests (
    client_id        TEXT        NOT NULL,
    user_id          TEXT        NOT NULL,
    notification_ids TEXT[]      NOT NULL,
    created_at       TIMESTAMPTZ NOT NULL,
    PRIMARY KEY (client_id, user_id)
);
`

func EnsureSchema(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, Schema)
	return err
}

func (s *PostgresStore) Append(ctx context.Context, tenantID, userID, notificationID string, now time.Time) error {
	_, err := txcontext.Resolve(ctx, s.db).ExecContext(ctx, `
		INSERT INTO digests (client_id, user_id, notification_ids, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (client_id, user_id) DO UPDATE
		SET notification_ids = digests.notification_ids || EXCLUDED.notification_ids`,
		tenantID, userID, pq.Array([]string{notificationID}), now)
	if err != nil {
		return fmt.Errorf("append digest batch: %w", err)
	}
	return nil
}

func (s *PostgresStore) List(ctx context.Context, limit int) ([]Batch, error) {
	query := `
		SELECT client_id, user_id, notification_ids, created_at
		FROM digests
		ORDER BY created_at, client_id, user_id`
	args := []any{}
	if limit > 0 {
		args = append(args, limit)
		query += ` LIMIT $1`
	}

	rows, err := txcontext.Resolve(ctx, s.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list digest batches: %w", err)
	}
	defer rows.Close()

	var out []Batch
	for rows.Next() {
		var batch Batch
		if err := rows.Scan(&batch.TenantID, &batch.UserID,
			pq.Array(&batch.NotificationIDs), &batch.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, batch)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Delete(ctx context.Context, tenantID, userID string) error {
	_, err := txcontext.Resolve(ctx, s.db).ExecContext(ctx, `
		DELETE FROM digests WHERE client_id = $1 AND user_id = $2`,
		tenantID, userID)
	if err != nil {
		return fmt.Errorf("delete digest batch: %w", err)
	}
	return nil
}
