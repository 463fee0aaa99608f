// Package propagation turns record mutations into thread membership
// changes and notification events: mention markers, assignment changes,
// and workflow state changes.
package propagation

import (
	"log/slog"

	"github.com/L-Inventaire/linventaire.app-sub000/internal/notifications"
	"github.com/L-Inventaire/linventaire.app-sub000/internal/records"
	"github.com/L-Inventaire/linventaire.app-sub000/internal/registry"
	"github.com/L-Inventaire/linventaire.app-sub000/internal/threads"
	"github.com/L-Inventaire/linventaire.app-sub000/internal/triggers"
)

// Propagator holds the collaborators shared by all propagation handlers.
type Propagator struct {
	threads  *threads.Service
	notify   *notifications.Service
	registry *registry.Registry
	logger   *slog.Logger
}

type Option func(*Propagator)

func WithLogger(logger *slog.Logger) Option {
	return func(p *Propagator) { p.logger = logger }
}

func New(threadSvc *threads.Service, notify *notifications.Service, reg *registry.Registry, opts ...Option) *Propagator {
	p := &Propagator{
		threads:  threadSvc,
		notify:   notify,
		registry: reg,
		logger:   slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// recordRef resolves the (type, id, display name) triple the thread and
// notification layers key on. ok is false for unregistered types.
func (p *Propagator) recordRef(ev triggers.Event) (recordID, displayName string, ok bool) {
	def, found := p.registry.Entity(ev.RecordType)
	if !found {
		return "", "", false
	}
	id, err := records.PrimaryKeyOf(def, ev.Current())
	if err != nil {
		return "", "", false
	}
	return id, displayNameOf(ev.Current(), ev.RecordType, id), true
}

// displayNameOf picks a human label for notification subjects.
func displayNameOf(state records.State, recordType, recordID string) string {
	for _, col := range []string{"display_name", "title", "name"} {
		if v, ok := state[col].(string); ok && v != "" {
			return v
		}
	}
	return recordType + " " + recordID
}
