package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/L-Inventaire/linventaire.app-sub000/internal/records"
	txcontext "github.com/L-Inventaire/linventaire.app-sub000/pkg/platform/tx"
)

// PostgresStore persists history rows. Participates in the ambient write
// transaction so a vetoed mutation takes its snapshot down with it.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const Schema = `
CREATE TABLE IF NOT EXISTS history (
    id                  TEXT        PRIMARY KEY,
    client_id           TEXT        NOT NULL,
    record_type         TEXT        NOT NULL,
    record_id           TEXT        NOT NULL,
    operation           TEXT        NOT NULL,
    operation_timestamp TIMESTAMPTZ NOT NULL,
    snapshot            JSONB       NOT NULL
);
CREATE INDEX IF NOT EXISTS history_record_idx
    ON history (client_id, record_type, record_id, operation_timestamp DESC);
`

func EnsureSchema(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, Schema)
	return err
}

func (s *PostgresStore) Append(ctx context.Context, row Row) error {
	snapshot, err := json.Marshal(row.Snapshot)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	_, err = txcontext.Resolve(ctx, s.db).ExecContext(ctx, `
		INSERT INTO history (id, client_id, record_type, record_id, operation, operation_timestamp, snapshot)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		row.ID, row.TenantID, row.RecordType, row.RecordID, row.Operation, row.OperationTimestamp, snapshot)
	if err != nil {
		return fmt.Errorf("append history: %w", err)
	}
	return nil
}

func (s *PostgresStore) Search(ctx context.Context, tenantID, recordType, recordID string, limit, offset int) ([]Row, int, error) {
	exec := txcontext.Resolve(ctx, s.db)

	var total int
	err := exec.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM history
		WHERE client_id = $1 AND record_type = $2 AND record_id = $3`,
		tenantID, recordType, recordID).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("count history: %w", err)
	}

	query := `
		SELECT id, client_id, record_type, record_id, operation, operation_timestamp, snapshot
		FROM history
		WHERE client_id = $1 AND record_type = $2 AND record_id = $3
		ORDER BY operation_timestamp DESC, id DESC`
	args := []any{tenantID, recordType, recordID}
	if limit > 0 {
		args = append(args, limit)
		query += fmt.Sprintf(` LIMIT $%d`, len(args))
	}
	if offset > 0 {
		args = append(args, offset)
		query += fmt.Sprintf(` OFFSET $%d`, len(args))
	}

	rows, err := exec.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("search history: %w", err)
	}
	defer rows.Close()

	var list []Row
	for rows.Next() {
		var row Row
		var snapshot []byte
		if err := rows.Scan(&row.ID, &row.TenantID, &row.RecordType, &row.RecordID,
			&row.Operation, &row.OperationTimestamp, &snapshot); err != nil {
			return nil, 0, err
		}
		row.Snapshot = records.State{}
		if err := json.Unmarshal(snapshot, &row.Snapshot); err != nil {
			return nil, 0, fmt.Errorf("unmarshal snapshot: %w", err)
		}
		list = append(list, row)
	}
	return list, total, rows.Err()
}
