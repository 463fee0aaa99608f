// Package comments holds the comment record type and its write rules:
// only the owner may edit or delete a comment, reactions belong to the
// user who placed them, and a comment must reference an existing parent
// record. Creation notifies the parent record's thread.
package comments

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/L-Inventaire/linventaire.app-sub000/internal/notifications"
	"github.com/L-Inventaire/linventaire.app-sub000/internal/records"
	"github.com/L-Inventaire/linventaire.app-sub000/internal/registry"
	"github.com/L-Inventaire/linventaire.app-sub000/internal/threads"
	"github.com/L-Inventaire/linventaire.app-sub000/internal/triggers"
	"github.com/L-Inventaire/linventaire.app-sub000/pkg/apperror"
	"github.com/L-Inventaire/linventaire.app-sub000/pkg/platform/sentinel"
	"github.com/L-Inventaire/linventaire.app-sub000/pkg/requestcontext"
)

// RecordType is the registered name of the comment record type.
const RecordType = "comments"

// CountColumn is the denormalized comment counter maintained on parent
// records that declare it.
const CountColumn = "comments_count"

// PriorityGuard runs the ownership and prerequisite checks before any
// side-effect handler touches the mutation.
const PriorityGuard = -100

// Definition describes the comment schema. Parent linkage lives in
// record_type / record_id; reactions maps user id to emoji list.
func Definition() registry.Definition {
	return registry.Definition{
		Name: RecordType,
		Columns: []string{
			"id", "client_id", "record_type", "record_id",
			"content", "owner", "documents",
			"reactions", "reactions_count",
			"created_at", "updated_at",
		},
		PrimaryKey: []string{"id"},
		Audited:    true,
	}
}

// Handlers wires the comment triggers.
type Handlers struct {
	store    records.Store
	threads  *threads.Service
	notify   *notifications.Service
	registry *registry.Registry
	logger   *slog.Logger
}

type Option func(*Handlers)

func WithLogger(logger *slog.Logger) Option {
	return func(h *Handlers) { h.logger = logger }
}

func New(store records.Store, threadSvc *threads.Service, notify *notifications.Service, opts ...Option) *Handlers {
	h := &Handlers{
		store:   store,
		threads: threadSvc,
		notify:  notify,
		logger:  slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register attaches all comment triggers to the engine. The guard runs
// first so an unauthorized or dangling write is vetoed before any other
// handler produces side effects.
func (h *Handlers) Register(engine *triggers.Engine) error {
	h.registry = engine.Registry()
	registrations := []triggers.Registration{
		{Name: "comment-guard", Priority: PriorityGuard, Effect: h.guard},
		{Name: "comment-reaction-count", Effect: h.syncReactionCount,
			Test: func(_ context.Context, ev triggers.Event) bool {
				return ev.Operation() == triggers.OpUpdate &&
					!records.Equal(ev.NewState["reactions"], ev.OldState["reactions"])
			}},
		{Name: "comment-parent-counter", Effect: h.syncParentCounter,
			Test: func(_ context.Context, ev triggers.Event) bool {
				return ev.Operation() != triggers.OpUpdate
			}},
		{Name: "comment-created-notification", Effect: h.notifyCreated,
			Test: func(_ context.Context, ev triggers.Event) bool {
				return ev.Operation() == triggers.OpInsert && ev.Depth == 0
			}},
	}
	for _, reg := range registrations {
		if err := engine.Register(RecordType, reg); err != nil {
			return err
		}
	}
	return nil
}

// guard enforces ownership and the parent-record prerequisite. Raising
// aborts the dispatch and fails the triggering write.
func (h *Handlers) guard(ctx context.Context, ev triggers.Event) error {
	actor := requestcontext.Actor(ctx)

	switch ev.Operation() {
	case triggers.OpInsert:
		return h.requireParent(ctx, ev)
	case triggers.OpDelete:
		if owner, _ := ev.OldState["owner"].(string); owner != "" && owner != actor {
			return apperror.Newf(apperror.CodeForbidden, "comment belongs to %s", owner)
		}
	case triggers.OpUpdate:
		owner, _ := ev.OldState["owner"].(string)
		if contentChanged(ev) && owner != "" && owner != actor {
			return apperror.Newf(apperror.CodeForbidden, "comment belongs to %s", owner)
		}
		if user, ok := foreignReactionChange(ev, actor); ok {
			return apperror.Newf(apperror.CodeForbidden, "reaction belongs to %s", user)
		}
	}
	return nil
}

func (h *Handlers) requireParent(ctx context.Context, ev triggers.Event) error {
	parentType, _ := ev.NewState["record_type"].(string)
	parentID, _ := ev.NewState["record_id"].(string)
	if parentType == "" || parentID == "" {
		return apperror.New(apperror.CodeBadRequest, "comment requires a parent record reference")
	}

	_, err := h.store.SelectOne(ctx, parentType, records.Conditions{"id": parentID})
	if errors.Is(err, sentinel.ErrNotFound) {
		return apperror.Newf(apperror.CodeNotFound, "comment parent %s/%s does not exist", parentType, parentID)
	}
	if err != nil {
		return fmt.Errorf("resolve comment parent: %w", err)
	}
	return nil
}

// contentChanged ignores the columns other handlers maintain.
func contentChanged(ev triggers.Event) bool {
	for _, col := range []string{"content", "documents", "record_type", "record_id", "owner"} {
		if !records.Equal(ev.NewState[col], ev.OldState[col]) {
			return true
		}
	}
	return false
}

// foreignReactionChange reports the first user whose reaction entry the
// update touched without being that user.
func foreignReactionChange(ev triggers.Event, actor string) (string, bool) {
	oldReactions := reactionsOf(ev.OldState)
	newReactions := reactionsOf(ev.NewState)
	for user := range oldReactions {
		if user != actor && !records.Equal(oldReactions[user], newReactions[user]) {
			return user, true
		}
	}
	for user := range newReactions {
		if _, existed := oldReactions[user]; !existed && user != actor {
			return user, true
		}
	}
	return "", false
}

func reactionsOf(state records.State) map[string]any {
	switch v := state["reactions"].(type) {
	case map[string]any:
		return v
	case records.State:
		return v
	default:
		return nil
	}
}

// syncReactionCount keeps reactions_count in step with the reactions map.
// The write bypasses dispatch; history's counter carve-out keeps pure
// counter updates out of the audit trail.
func (h *Handlers) syncReactionCount(ctx context.Context, ev triggers.Event) error {
	count := 0
	for _, entries := range reactionsOf(ev.NewState) {
		if list, ok := entries.([]any); ok {
			count += len(list)
		} else if list, ok := entries.([]string); ok {
			count += len(list)
		}
	}
	ev.NewState["reactions_count"] = count

	id := fmt.Sprint(ev.NewState["id"])
	_, err := h.store.Update(ctx, RecordType,
		records.Conditions{"id": id},
		records.State{"reactions_count": count},
		records.WithoutTriggers())
	if err != nil {
		return fmt.Errorf("sync reaction count on comment %s: %w", id, err)
	}
	return nil
}

// syncParentCounter maintains comments_count on parents that carry the
// column, counting live comments after the insert or delete.
func (h *Handlers) syncParentCounter(ctx context.Context, ev triggers.Event) error {
	state := ev.Current()
	parentType, _ := state["record_type"].(string)
	parentID, _ := state["record_id"].(string)
	if parentType == "" || parentID == "" {
		return nil
	}
	if def, ok := h.registry.Entity(parentType); !ok || !def.HasColumn(CountColumn) {
		return nil
	}

	count, err := h.store.Count(ctx, RecordType, records.Conditions{
		"record_type": parentType,
		"record_id":   parentID,
	})
	if err != nil {
		return fmt.Errorf("count comments under %s/%s: %w", parentType, parentID, err)
	}

	_, err = h.store.Update(ctx, parentType,
		records.Conditions{"id": parentID},
		records.State{CountColumn: count},
		records.WithoutTriggers())
	if err != nil {
		return fmt.Errorf("sync comment counter on %s/%s: %w", parentType, parentID, err)
	}
	return nil
}

// notifyCreated tells the parent record's thread about a new comment.
// Edits stay silent.
func (h *Handlers) notifyCreated(ctx context.Context, ev triggers.Event) error {
	parentType, _ := ev.NewState["record_type"].(string)
	parentID, _ := ev.NewState["record_id"].(string)
	if parentType == "" || parentID == "" {
		return nil
	}

	owner, _ := ev.NewState["owner"].(string)
	if owner != "" {
		if _, err := h.threads.Ensure(ctx, ev.TenantID, parentType, parentID, []string{owner}); err != nil {
			return fmt.Errorf("subscribe comment owner: %w", err)
		}
	}

	parent, err := h.store.SelectOne(ctx, parentType, records.Conditions{"id": parentID})
	if err != nil {
		return fmt.Errorf("load comment parent: %w", err)
	}

	commentID := fmt.Sprint(ev.NewState["id"])
	err = h.notify.NotifyUsers(ctx, notifications.Event{
		TenantID:    ev.TenantID,
		RecordType:  parentType,
		RecordID:    parentID,
		DisplayName: displayNameOf(parent, parentType, parentID),
		Type:        notifications.TypeCommented,
		Metadata:    map[string]string{"by": requestcontext.Actor(ctx), "comment": commentID},
	}, nil, false)
	if err != nil {
		return fmt.Errorf("notify comment on %s/%s: %w", parentType, parentID, err)
	}
	return nil
}

func displayNameOf(state records.State, recordType, recordID string) string {
	for _, col := range []string{"display_name", "title", "name"} {
		if v, ok := state[col].(string); ok && v != "" {
			return v
		}
	}
	return recordType + " " + recordID
}
