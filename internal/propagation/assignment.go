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

// AssignedColumn holds the user ids a record is assigned to.
const AssignedColumn = "assigned"

// StateColumn holds a record's workflow state.
const StateColumn = "state"

// RegisterAssignmentTrigger subscribes newly assigned users to the record's
// thread and notifies exactly those users, bypassing subscriber resolution.
func (p *Propagator) RegisterAssignmentTrigger(engine *triggers.Engine) error {
	return engine.Register(triggers.Wildcard, triggers.Registration{
		Name: "assignment-propagation",
		Test: func(_ context.Context, ev triggers.Event) bool {
			if registry.IsSystemType(ev.RecordType) || ev.NewState == nil {
				return false
			}
			return !records.Equal(ev.NewState[AssignedColumn], ev.OldState[AssignedColumn])
		},
		Effect: p.propagateAssignment,
	})
}

func (p *Propagator) propagateAssignment(ctx context.Context, ev triggers.Event) error {
	recordID, displayName, ok := p.recordRef(ev)
	if !ok {
		return nil
	}

	newlyAssigned := diffAssigned(ev.NewState, ev.OldState)
	if len(newlyAssigned) == 0 {
		return nil
	}

	if _, err := p.threads.Ensure(ctx, ev.TenantID, ev.RecordType, recordID, newlyAssigned); err != nil {
		return fmt.Errorf("subscribe assigned users: %w", err)
	}
	err := p.notify.NotifyUsers(ctx, notifications.Event{
		TenantID:    ev.TenantID,
		RecordType:  ev.RecordType,
		RecordID:    recordID,
		DisplayName: displayName,
		Type:        notifications.TypeAssigned,
		Metadata:    map[string]string{"by": requestcontext.Actor(ctx)},
	}, newlyAssigned, true)
	if err != nil {
		return fmt.Errorf("notify assigned users: %w", err)
	}
	return nil
}

// diffAssigned returns the user ids assigned in next but not in prev.
func diffAssigned(next, prev records.State) []string {
	old := make(map[string]bool)
	for _, id := range assignedUsers(prev) {
		old[id] = true
	}
	var added []string
	for _, id := range assignedUsers(next) {
		if !old[id] {
			old[id] = true
			added = append(added, id)
		}
	}
	return added
}

// assignedUsers normalizes the assigned column, which arrives as []string
// in memory and as []any after a JSONB round trip.
func assignedUsers(state records.State) []string {
	if state == nil {
		return nil
	}
	switch v := state[AssignedColumn].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	case string:
		if v == "" {
			return nil
		}
		return []string{v}
	default:
		return nil
	}
}
