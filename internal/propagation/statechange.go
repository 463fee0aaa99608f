package propagation

import (
	"context"
	"fmt"

	"github.com/L-Inventaire/linventaire.app-sub000/internal/notifications"
	"github.com/L-Inventaire/linventaire.app-sub000/internal/records"
	"github.com/L-Inventaire/linventaire.app-sub000/internal/registry"
	"github.com/L-Inventaire/linventaire.app-sub000/internal/triggers"
	"github.com/L-Inventaire/linventaire.app-sub000/pkg/requestcontext"
)

// RegisterStateChangeTrigger notifies a record's audience when its workflow
// state moves. Only attributable changes notify: system-driven writes carry
// no actor and stay silent.
func (p *Propagator) RegisterStateChangeTrigger(engine *triggers.Engine) error {
	return engine.Register(triggers.Wildcard, triggers.Registration{
		Name: "state-change-propagation",
		Test: func(ctx context.Context, ev triggers.Event) bool {
			if registry.IsSystemType(ev.RecordType) || ev.NewState == nil {
				return false
			}
			if requestcontext.Actor(ctx) == "" {
				return false
			}
			return !records.Equal(ev.NewState[StateColumn], ev.OldState[StateColumn])
		},
		Effect: p.propagateStateChange,
	})
}

func (p *Propagator) propagateStateChange(ctx context.Context, ev triggers.Event) error {
	recordID, displayName, ok := p.recordRef(ev)
	if !ok {
		return nil
	}

	metadata := map[string]string{
		"by":    requestcontext.Actor(ctx),
		"field": StateColumn,
	}
	if next, ok := ev.Current()[StateColumn].(string); ok {
		metadata["to"] = next
	}

	err := p.notify.NotifyUsers(ctx, notifications.Event{
		TenantID:    ev.TenantID,
		RecordType:  ev.RecordType,
		RecordID:    recordID,
		DisplayName: displayName,
		Type:        notifications.TypeModified,
		Metadata:    metadata,
	}, nil, false)
	if err != nil {
		return fmt.Errorf("notify state change on %s/%s: %w", ev.RecordType, recordID, err)
	}
	return nil
}
