package notifications

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/lib/pq"

	"github.com/L-Inventaire/linventaire.app-sub000/pkg/platform/sentinel"
	txcontext "github.com/L-Inventaire/linventaire.app-sub000/pkg/platform/tx"
)

// PostgresStore persists notification rows and preferences.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const Schema = `
CREATE TABLE IF NOT EXISTS notifications (
    id                  TEXT        PRIMARY KEY,
    client_id           TEXT        NOT NULL,
    user_id             TEXT        NOT NULL,
    entity              TEXT        NOT NULL,
    entity_id           TEXT        NOT NULL,
    entity_display_name TEXT        NOT NULL DEFAULT '',
    type                TEXT        NOT NULL,
    metadata            JSONB       NOT NULL DEFAULT '{}',
    also                JSONB       NOT NULL DEFAULT '[]',
    last_notified_at    TIMESTAMPTZ NOT NULL,
    read                BOOLEAN     NOT NULL DEFAULT FALSE
);
CREATE INDEX IF NOT EXISTS notifications_unread_idx
    ON notifications (client_id, user_id, entity, entity_id) WHERE NOT read;

CREATE TABLE IF NOT EXISTS notification_preferences (
    client_id       TEXT        NOT NULL,
    user_id         TEXT        NOT NULL,
    always_notified TEXT[]      NOT NULL DEFAULT '{}',
    email           TEXT        NOT NULL DEFAULT '',
    locale          TEXT        NOT NULL DEFAULT 'en',
    updated_at      TIMESTAMPTZ NOT NULL,
    PRIMARY KEY (client_id, user_id)
);
`

func EnsureSchema(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, Schema)
	return err
}

func (s *PostgresStore) Insert(ctx context.Context, n *Notification) error {
	metadata, also, err := marshalPayload(n)
	if err != nil {
		return err
	}
	_, err = txcontext.Resolve(ctx, s.db).ExecContext(ctx, `
		INSERT INTO notifications
		    (id, client_id, user_id, entity, entity_id, entity_display_name, type, metadata, also, last_notified_at, read)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		n.ID, n.TenantID, n.UserID, n.Entity, n.EntityID, n.EntityDisplayName,
		n.Type, metadata, also, n.LastNotifiedAt, n.Read)
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

func (s *PostgresStore) Update(ctx context.Context, n *Notification) error {
	metadata, also, err := marshalPayload(n)
	if err != nil {
		return err
	}
	res, err := txcontext.Resolve(ctx, s.db).ExecContext(ctx, `
		UPDATE notifications
		SET type = $1, metadata = $2, also = $3, last_notified_at = $4, read = $5, entity_display_name = $6
		WHERE id = $7`,
		n.Type, metadata, also, n.LastNotifiedAt, n.Read, n.EntityDisplayName, n.ID)
	if err != nil {
		return fmt.Errorf("update notification: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) FindUnread(ctx context.Context, tenantID, userID, entity, entityID string) (*Notification, error) {
	row := txcontext.Resolve(ctx, s.db).QueryRowContext(ctx, `
		SELECT id, client_id, user_id, entity, entity_id, entity_display_name, type, metadata, also, last_notified_at, read
		FROM notifications
		WHERE client_id = $1 AND user_id = $2 AND entity = $3 AND entity_id = $4 AND NOT read
		LIMIT 1`,
		tenantID, userID, entity, entityID)
	return scanNotification(row)
}

func (s *PostgresStore) GetByIDs(ctx context.Context, tenantID string, ids []string) ([]Notification, error) {
	rows, err := txcontext.Resolve(ctx, s.db).QueryContext(ctx, `
		SELECT id, client_id, user_id, entity, entity_id, entity_display_name, type, metadata, also, last_notified_at, read
		FROM notifications
		WHERE client_id = $1 AND id = ANY($2)`,
		tenantID, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("get notifications: %w", err)
	}
	defer rows.Close()
	return scanNotifications(rows)
}

func (s *PostgresStore) ListByUser(ctx context.Context, tenantID, userID string, limit, offset int) ([]Notification, error) {
	query := `
		SELECT id, client_id, user_id, entity, entity_id, entity_display_name, type, metadata, also, last_notified_at, read
		FROM notifications
		WHERE client_id = $1 AND user_id = $2
		ORDER BY last_notified_at DESC`
	args := []any{tenantID, userID}
	if limit > 0 {
		args = append(args, limit)
		query += fmt.Sprintf(` LIMIT $%d`, len(args))
	}
	if offset > 0 {
		args = append(args, offset)
		query += fmt.Sprintf(` OFFSET $%d`, len(args))
	}

	rows, err := txcontext.Resolve(ctx, s.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()
	return scanNotifications(rows)
}

func (s *PostgresStore) CountUnread(ctx context.Context, tenantID, userID string) (int, error) {
	var count int
	err := txcontext.Resolve(ctx, s.db).QueryRowContext(ctx, `
		SELECT COUNT(*) FROM notifications
		WHERE client_id = $1 AND user_id = $2 AND NOT read`,
		tenantID, userID).Scan(&count)
	return count, err
}

func (s *PostgresStore) MarkRead(ctx context.Context, tenantID, userID, id string) error {
	res, err := txcontext.Resolve(ctx, s.db).ExecContext(ctx, `
		UPDATE notifications SET read = TRUE
		WHERE client_id = $1 AND user_id = $2 AND id = $3`,
		tenantID, userID, id)
	if err != nil {
		return fmt.Errorf("mark read: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) MarkAllRead(ctx context.Context, tenantID, userID string) (int, error) {
	res, err := txcontext.Resolve(ctx, s.db).ExecContext(ctx, `
		UPDATE notifications SET read = TRUE
		WHERE client_id = $1 AND user_id = $2 AND NOT read`,
		tenantID, userID)
	if err != nil {
		return 0, fmt.Errorf("mark all read: %w", err)
	}
	affected, _ := res.RowsAffected()
	return int(affected), nil
}

func (s *PostgresStore) Get(ctx context.Context, tenantID, userID string) (*Preference, error) {
	pref := &Preference{}
	err := txcontext.Resolve(ctx, s.db).QueryRowContext(ctx, `
		SELECT client_id, user_id, always_notified, email, locale, updated_at
		FROM notification_preferences
		WHERE client_id = $1 AND user_id = $2`,
		tenantID, userID).Scan(
		&pref.TenantID, &pref.UserID, pq.Array(&pref.AlwaysNotified),
		&pref.Email, &pref.Locale, &pref.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get preference: %w", err)
	}
	return pref, nil
}

func (s *PostgresStore) Upsert(ctx context.Context, pref *Preference) error {
	_, err := txcontext.Resolve(ctx, s.db).ExecContext(ctx, `
		INSERT INTO notification_preferences (client_id, user_id, always_notified, email, locale, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (client_id, user_id) DO UPDATE
		SET always_notified = EXCLUDED.always_notified,
		    email           = EXCLUDED.email,
		    locale          = EXCLUDED.locale,
		    updated_at      = EXCLUDED.updated_at`,
		pref.TenantID, pref.UserID, pq.Array(pref.AlwaysNotified), pref.Email, pref.Locale, pref.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert preference: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListByTenant(ctx context.Context, tenantID string) ([]Preference, error) {
	rows, err := txcontext.Resolve(ctx, s.db).QueryContext(ctx, `
		SELECT client_id, user_id, always_notified, email, locale, updated_at
		FROM notification_preferences
		WHERE client_id = $1`,
		tenantID)
	if err != nil {
		return nil, fmt.Errorf("list preferences: %w", err)
	}
	defer rows.Close()

	var prefs []Preference
	for rows.Next() {
		var pref Preference
		if err := rows.Scan(&pref.TenantID, &pref.UserID, pq.Array(&pref.AlwaysNotified),
			&pref.Email, &pref.Locale, &pref.UpdatedAt); err != nil {
			return nil, err
		}
		prefs = append(prefs, pref)
	}
	return prefs, rows.Err()
}

func marshalPayload(n *Notification) ([]byte, []byte, error) {
	metadata, err := json.Marshal(orEmptyMap(n.Metadata))
	if err != nil {
		return nil, nil, fmt.Errorf("marshal metadata: %w", err)
	}
	also := n.Also
	if also == nil {
		also = []Entry{}
	}
	alsoRaw, err := json.Marshal(also)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal also: %w", err)
	}
	return metadata, alsoRaw, nil
}

func orEmptyMap(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanNotification(row rowScanner) (*Notification, error) {
	n := &Notification{}
	var metadata, also []byte
	err := row.Scan(&n.ID, &n.TenantID, &n.UserID, &n.Entity, &n.EntityID,
		&n.EntityDisplayName, &n.Type, &metadata, &also, &n.LastNotifiedAt, &n.Read)
	if err == sql.ErrNoRows {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan notification: %w", err)
	}
	if err := json.Unmarshal(metadata, &n.Metadata); err != nil {
		return nil, fmt.Errorf("unmarshal metadata: %w", err)
	}
	if err := json.Unmarshal(also, &n.Also); err != nil {
		return nil, fmt.Errorf("unmarshal also: %w", err)
	}
	return n, nil
}

func scanNotifications(rows *sql.Rows) ([]Notification, error) {
	var out []Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *n)
	}
	return out, rows.Err()
}
