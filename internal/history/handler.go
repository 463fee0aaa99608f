package history

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/L-Inventaire/linventaire.app-sub000/internal/platform/metrics"
	"github.com/L-Inventaire/linventaire.app-sub000/internal/records"
	"github.com/L-Inventaire/linventaire.app-sub000/internal/registry"
	"github.com/L-Inventaire/linventaire.app-sub000/internal/triggers"
	"github.com/L-Inventaire/linventaire.app-sub000/pkg/requestcontext"
)

// PriorityLast places the audit handler after every other handler for the
// same mutation, so the snapshot reflects side effects (backfilled
// cross-references included) performed by lower-priority handlers.
const PriorityLast = 1000

// SearchColumn is recomputed by the search indexer on every write; history
// snapshots drop it.
const SearchColumn = "searchable"

// CrossRefColumn is kept in the snapshot only when the mutation changed it.
const CrossRefColumn = "external_ref"

// counterCarveOut suppresses history for record types whose only change is
// an internal counter that other handlers bump constantly.
var counterCarveOut = map[string]string{
	"comments": "reactions_count",
}

// Handler writes history rows from mutation events.
type Handler struct {
	store    Store
	registry *registry.Registry
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

type HandlerOption func(*Handler)

func WithLogger(logger *slog.Logger) HandlerOption {
	return func(h *Handler) { h.logger = logger }
}

func WithMetrics(m *metrics.Metrics) HandlerOption {
	return func(h *Handler) { h.metrics = m }
}

// RegisterTrigger attaches the audit handler to the engine: wildcard scope,
// runs last, top-level mutations of audited non-system types only.
func RegisterTrigger(engine *triggers.Engine, store Store, opts ...HandlerOption) error {
	h := &Handler{store: store, registry: engine.Registry(), logger: slog.New(slog.DiscardHandler)}
	for _, opt := range opts {
		opt(h)
	}

	return engine.Register(triggers.Wildcard, triggers.Registration{
		Name:     "audit-history",
		Priority: PriorityLast,
		Test: func(ctx context.Context, ev triggers.Event) bool {
			return shouldAudit(engine.Registry(), ev)
		},
		Effect: h.record,
	})
}

func shouldAudit(reg *registry.Registry, ev triggers.Event) bool {
	if ev.Depth != 0 {
		return false
	}
	if registry.IsSystemType(ev.RecordType) {
		return false
	}
	def, ok := reg.Entity(ev.RecordType)
	if !ok || !def.Audited {
		return false
	}
	if counter, ok := counterCarveOut[ev.RecordType]; ok && ev.Operation() == triggers.OpUpdate {
		if counterOnlyChange(def, ev.OldState, ev.NewState, counter) {
			return false
		}
	}
	return true
}

// counterOnlyChange reports whether the update touched nothing but the
// carve-out counter (bookkeeping columns aside).
func counterOnlyChange(def registry.Definition, old, next records.State, counter string) bool {
	changed := false
	for _, col := range def.Columns {
		if records.Equal(old[col], next[col]) {
			continue
		}
		switch col {
		case counter, SearchColumn, "updated_at":
			changed = true
		default:
			return false
		}
	}
	return changed
}

func (h *Handler) record(ctx context.Context, ev triggers.Event) error {
	def, ok := h.registry.Entity(ev.RecordType)
	if !ok {
		return nil
	}

	snapshot := project(def, ev)
	recordID := fmt.Sprint(snapshot["id"])

	row := Row{
		ID:                 uuid.NewString(),
		TenantID:           ev.TenantID,
		RecordType:         ev.RecordType,
		RecordID:           recordID,
		Operation:          ev.Operation(),
		OperationTimestamp: requestcontext.Now(ctx),
		Snapshot:           snapshot,
	}
	if err := h.store.Append(ctx, row); err != nil {
		return fmt.Errorf("append history for %s/%s: %w", ev.RecordType, recordID, err)
	}
	if h.metrics != nil {
		h.metrics.HistoryRowsWritten.Inc()
	}
	h.logger.Debug("history row written",
		"record_type", ev.RecordType,
		"record_id", recordID,
		"operation", string(ev.Operation()),
	)
	return nil
}

// project maps the (new ?? old) state onto the record's own schema columns,
// dropping the transient search field and including the cross-reference id
// only when the mutation changed it.
func project(def registry.Definition, ev triggers.Event) records.State {
	base := ev.Current()
	snapshot := make(records.State, len(def.Columns))
	for _, col := range def.Columns {
		switch col {
		case SearchColumn:
			continue
		case CrossRefColumn:
			if records.Equal(ev.OldState[CrossRefColumn], ev.NewState[CrossRefColumn]) {
				continue
			}
		}
		if v, ok := base[col]; ok {
			snapshot[col] = v
		}
	}
	return snapshot
}
