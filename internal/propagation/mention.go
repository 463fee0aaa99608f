package propagation

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"

	"github.com/L-Inventaire/linventaire.app-sub000/internal/notifications"
	"github.com/L-Inventaire/linventaire.app-sub000/internal/records"
	"github.com/L-Inventaire/linventaire.app-sub000/internal/registry"
	"github.com/L-Inventaire/linventaire.app-sub000/internal/triggers"
	"github.com/L-Inventaire/linventaire.app-sub000/pkg/requestcontext"
)

// mentionPattern matches mention markers embedded anywhere in a record's
// serialized state.
var mentionPattern = regexp.MustCompile(`mention:([A-Za-z0-9_-]+)`)

// RegisterMentionTrigger promotes newly mentioned users to thread
// subscribers. Deleting a record clears its thread. Mentions already
// present in the old state are never re-notified.
func (p *Propagator) RegisterMentionTrigger(engine *triggers.Engine) error {
	return engine.Register(triggers.Wildcard, triggers.Registration{
		Name: "mention-propagation",
		Test: func(_ context.Context, ev triggers.Event) bool {
			if registry.IsSystemType(ev.RecordType) {
				return false
			}
			if ev.Operation() == triggers.OpDelete {
				return true
			}
			return len(extractMentions(ev.NewState)) > 0 || len(extractMentions(ev.OldState)) > 0
		},
		Effect: p.propagateMentions,
	})
}

func (p *Propagator) propagateMentions(ctx context.Context, ev triggers.Event) error {
	recordID, displayName, ok := p.recordRef(ev)
	if !ok {
		return nil
	}

	if ev.Operation() == triggers.OpDelete {
		if err := p.threads.Clear(ctx, ev.TenantID, ev.RecordType, recordID); err != nil {
			return fmt.Errorf("clear thread for deleted %s/%s: %w", ev.RecordType, recordID, err)
		}
		return nil
	}

	newlyMentioned := diffMentions(ev.NewState, ev.OldState)
	actor := requestcontext.Actor(ctx)
	for _, userID := range newlyMentioned {
		if userID == actor {
			continue
		}
		if _, err := p.threads.Ensure(ctx, ev.TenantID, ev.RecordType, recordID, []string{userID}); err != nil {
			return fmt.Errorf("subscribe mentioned user %s: %w", userID, err)
		}
		err := p.notify.NotifyUsers(ctx, notifications.Event{
			TenantID:    ev.TenantID,
			RecordType:  ev.RecordType,
			RecordID:    recordID,
			DisplayName: displayName,
			Type:        notifications.TypeMentioned,
			Metadata:    map[string]string{"by": actor},
		}, []string{userID}, true)
		if err != nil {
			return fmt.Errorf("notify mentioned user %s: %w", userID, err)
		}
	}
	return nil
}

// diffMentions returns the mentions present in next but not in prev,
// in first-seen order.
func diffMentions(next, prev records.State) []string {
	old := make(map[string]bool)
	for _, id := range extractMentions(prev) {
		old[id] = true
	}
	var added []string
	for _, id := range extractMentions(next) {
		if !old[id] {
			old[id] = true
			added = append(added, id)
		}
	}
	return added
}

// extractMentions scans the serialized state for mention markers. Marker
// position does not matter; any string field may carry one.
func extractMentions(state records.State) []string {
	if state == nil {
		return nil
	}
	raw, err := json.Marshal(state)
	if err != nil {
		return nil
	}
	var ids []string
	seen := make(map[string]bool)
	for _, match := range mentionPattern.FindAllSubmatch(raw, -1) {
		id := string(match[1])
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	return ids
}
