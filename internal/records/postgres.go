package records

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/L-Inventaire/linventaire.app-sub000/internal/triggers"
	"github.com/L-Inventaire/linventaire.app-sub000/pkg/platform/sentinel"
	txcontext "github.com/L-Inventaire/linventaire.app-sub000/pkg/platform/tx"
	"github.com/L-Inventaire/linventaire.app-sub000/pkg/requestcontext"
)

// Postgres stores every registered record type in one JSONB-backed table.
// A triggering write and its whole dispatch chain run inside one
// transaction, so a handler veto rolls the write back.
type Postgres struct {
	db     *sql.DB
	engine *triggers.Engine
}

func NewPostgres(db *sql.DB, engine *triggers.Engine) *Postgres {
	return &Postgres{db: db, engine: engine}
}

// Schema creates the records table. Applied at start-up.
const Schema = `
CREATE TABLE IF NOT EXISTS records (
    record_type TEXT        NOT NULL,
    pk          TEXT        NOT NULL,
    client_id   TEXT        NOT NULL DEFAULT '',
    data        JSONB       NOT NULL,
    is_deleted  BOOLEAN     NOT NULL DEFAULT FALSE,
    created_at  TIMESTAMPTZ NOT NULL,
    updated_at  TIMESTAMPTZ NOT NULL,
    PRIMARY KEY (record_type, pk)
);
CREATE INDEX IF NOT EXISTS records_client_idx ON records (record_type, client_id);
`

func EnsureSchema(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, Schema)
	return err
}

func (s *Postgres) Insert(ctx context.Context, recordType string, state State, opts ...WriteOption) (State, error) {
	cfg := applyWriteOptions(opts)
	def, ok := s.engine.Registry().Entity(recordType)
	if !ok {
		return nil, fmt.Errorf("unknown record type %q", recordType)
	}

	state = CloneState(state)
	if def.HasColumn("id") && state["id"] == nil {
		state["id"] = uuid.NewString()
	}
	pk, err := PrimaryKeyOf(def, state)
	if err != nil {
		return nil, err
	}

	err = s.inTx(ctx, func(ctx context.Context) error {
		data, err := json.Marshal(state)
		if err != nil {
			return fmt.Errorf("marshal state: %w", err)
		}
		now := requestcontext.Now(ctx)
		_, err = txcontext.Resolve(ctx, s.db).ExecContext(ctx, `
			INSERT INTO records (record_type, pk, client_id, data, is_deleted, created_at, updated_at)
			VALUES ($1, $2, $3, $4, FALSE, $5, $5)`,
			recordType, pk, tenantOf(state), data, now)
		if err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("insert %s %q: %w", recordType, pk, sentinel.ErrConflict)
			}
			return fmt.Errorf("insert %s: %w", recordType, err)
		}
		if cfg.suppressTriggers {
			return nil
		}
		return s.engine.Dispatch(ctx, buildEvent(ctx, recordType, CloneState(state), nil))
	})
	if err != nil {
		return nil, err
	}
	return state, nil
}

func (s *Postgres) Update(ctx context.Context, recordType string, conds Conditions, patch State, opts ...WriteOption) ([]State, error) {
	cfg := applyWriteOptions(opts)
	var updated []State
	err := s.inTx(ctx, func(ctx context.Context) error {
		matched, err := s.lockRows(ctx, recordType, conds)
		if err != nil {
			return err
		}
		for pk, old := range matched {
			next := CloneState(old)
			for col, v := range patch {
				next[col] = v
			}
			if err := s.writeRow(ctx, recordType, pk, next, false); err != nil {
				return err
			}
			if !cfg.suppressTriggers {
				if err := s.engine.Dispatch(ctx, buildEvent(ctx, recordType, CloneState(next), old)); err != nil {
					return err
				}
			}
			updated = append(updated, next)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *Postgres) Delete(ctx context.Context, recordType string, conds Conditions, opts ...WriteOption) (int, error) {
	cfg := applyWriteOptions(opts)
	var deleted int
	err := s.inTx(ctx, func(ctx context.Context) error {
		matched, err := s.lockRows(ctx, recordType, conds)
		if err != nil {
			return err
		}
		for pk, old := range matched {
			flagged := CloneState(old)
			flagged[deletedColumn] = true
			if err := s.writeRow(ctx, recordType, pk, flagged, true); err != nil {
				return err
			}
			if !cfg.suppressTriggers {
				if err := s.engine.Dispatch(ctx, buildEvent(ctx, recordType, nil, old)); err != nil {
					return err
				}
			}
			deleted++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return deleted, nil
}

func (s *Postgres) Select(ctx context.Context, recordType string, conds Conditions, options ListOptions) ([]State, error) {
	def, ok := s.engine.Registry().Entity(recordType)
	if !ok {
		return nil, fmt.Errorf("unknown record type %q", recordType)
	}

	query := `SELECT data FROM records WHERE record_type = $1`
	args := []any{recordType}
	if !options.IncludeDeleted {
		query += ` AND NOT is_deleted`
	}
	for col, v := range conds {
		safe, err := sanitizeColumn(def, col)
		if err != nil {
			return nil, err
		}
		args = append(args, fmt.Sprint(v))
		query += fmt.Sprintf(` AND data->>'%s' = $%d`, safe, len(args))
	}
	if options.OrderBy != "" {
		orderBy, err := sanitizeColumn(def, options.OrderBy)
		if err != nil {
			return nil, err
		}
		query += fmt.Sprintf(` ORDER BY data->>'%s'`, orderBy)
		if options.Desc {
			query += ` DESC`
		}
	} else {
		query += ` ORDER BY created_at`
	}
	if options.Limit > 0 {
		args = append(args, options.Limit)
		query += fmt.Sprintf(` LIMIT $%d`, len(args))
	}
	if options.Offset > 0 {
		args = append(args, options.Offset)
		query += fmt.Sprintf(` OFFSET $%d`, len(args))
	}

	rows, err := txcontext.Resolve(ctx, s.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select %s: %w", recordType, err)
	}
	defer rows.Close()

	var results []State
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var state State
		if err := json.Unmarshal(raw, &state); err != nil {
			return nil, fmt.Errorf("unmarshal %s row: %w", recordType, err)
		}
		results = append(results, state)
	}
	return results, rows.Err()
}

func (s *Postgres) SelectOne(ctx context.Context, recordType string, conds Conditions) (State, error) {
	results, err := s.Select(ctx, recordType, conds, ListOptions{Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, sentinel.ErrNotFound
	}
	return results[0], nil
}

func (s *Postgres) Count(ctx context.Context, recordType string, conds Conditions) (int, error) {
	def, ok := s.engine.Registry().Entity(recordType)
	if !ok {
		return 0, fmt.Errorf("unknown record type %q", recordType)
	}

	query := `SELECT COUNT(*) FROM records WHERE record_type = $1 AND NOT is_deleted`
	args := []any{recordType}
	for col, v := range conds {
		safe, err := sanitizeColumn(def, col)
		if err != nil {
			return 0, err
		}
		args = append(args, fmt.Sprint(v))
		query += fmt.Sprintf(` AND data->>'%s' = $%d`, safe, len(args))
	}

	var count int
	err := txcontext.Resolve(ctx, s.db).QueryRowContext(ctx, query, args...).Scan(&count)
	return count, err
}

// Transaction runs fn inside one SQL transaction, reusing an ambient one if
// the caller already opened it.
func (s *Postgres) Transaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := txcontext.From(ctx); ok {
		return fn(ctx)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(txcontext.WithTx(ctx, tx)); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func (s *Postgres) inTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return s.Transaction(ctx, fn)
}

func (s *Postgres) lockRows(ctx context.Context, recordType string, conds Conditions) (map[string]State, error) {
	def, ok := s.engine.Registry().Entity(recordType)
	if !ok {
		return nil, fmt.Errorf("unknown record type %q", recordType)
	}

	query := `SELECT pk, data FROM records WHERE record_type = $1 AND NOT is_deleted`
	args := []any{recordType}
	for col, v := range conds {
		safe, err := sanitizeColumn(def, col)
		if err != nil {
			return nil, err
		}
		args = append(args, fmt.Sprint(v))
		query += fmt.Sprintf(` AND data->>'%s' = $%d`, safe, len(args))
	}
	query += ` ORDER BY pk FOR UPDATE`

	rows, err := txcontext.Resolve(ctx, s.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("lock %s rows: %w", recordType, err)
	}
	defer rows.Close()

	matched := make(map[string]State)
	for rows.Next() {
		var pk string
		var raw []byte
		if err := rows.Scan(&pk, &raw); err != nil {
			return nil, err
		}
		var state State
		if err := json.Unmarshal(raw, &state); err != nil {
			return nil, fmt.Errorf("unmarshal %s row: %w", recordType, err)
		}
		matched[pk] = state
	}
	return matched, rows.Err()
}

func (s *Postgres) writeRow(ctx context.Context, recordType, pk string, state State, deleted bool) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	_, err = txcontext.Resolve(ctx, s.db).ExecContext(ctx, `
		UPDATE records SET data = $1, is_deleted = $2, updated_at = $3
		WHERE record_type = $4 AND pk = $5`,
		data, deleted, requestcontext.Now(ctx), recordType, pk)
	if err != nil {
		return fmt.Errorf("update %s %q: %w", recordType, pk, err)
	}
	return nil
}

func tenantOf(state State) string {
	if v, ok := state["client_id"].(string); ok {
		return v
	}
	return ""
}

// sanitizeColumn guards the JSONB path against injection: only columns the
// schema declares are allowed into the query text.
func sanitizeColumn(def registryDefinition, col string) (string, error) {
	if !def.HasColumn(col) {
		return "", fmt.Errorf("undeclared column %q", col)
	}
	return col, nil
}

type registryDefinition interface {
	HasColumn(string) bool
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
