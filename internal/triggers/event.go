package triggers

import "context"

// State holds one record's column values, as read from or written to the
// record store.
type State map[string]any

// Operation classifies a mutation.
type Operation string

const (
	OpInsert Operation = "insert"
	OpUpdate Operation = "update"
	OpDelete Operation = "delete"
)

// Event is the unit the engine operates on: one logical mutation against one
// record. NewState is absent on delete, OldState absent on insert. Depth
// distinguishes a top-level mutation (0) from one issued by a handler's own
// side effect.
type Event struct {
	Actor      string
	TenantID   string
	RecordType string
	NewState   State
	OldState   State
	Depth      int
}

// Operation derives the mutation kind from which states are present.
func (e Event) Operation() Operation {
	switch {
	case e.OldState == nil:
		return OpInsert
	case e.NewState == nil:
		return OpDelete
	default:
		return OpUpdate
	}
}

// Current returns the state a handler should treat as the record's value:
// the new state, or the old one for deletions.
func (e Event) Current() State {
	if e.NewState != nil {
		return e.NewState
	}
	return e.OldState
}

type depthKey struct{}

// DepthFromContext returns the recursion depth the next store write should
// carry. Zero outside any dispatch.
func DepthFromContext(ctx context.Context) int {
	if d, ok := ctx.Value(depthKey{}).(int); ok {
		return d
	}
	return 0
}

func withDepth(ctx context.Context, depth int) context.Context {
	return context.WithValue(ctx, depthKey{}, depth)
}
