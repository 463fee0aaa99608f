// Package records is the generic record store surface the pipeline wraps.
// Every triggering write builds a mutation event and hands it to the trigger
// engine; handler-issued writes re-enter dispatch with an incremented depth.
package records

import (
	"context"

	"github.com/L-Inventaire/linventaire.app-sub000/internal/triggers"
)

// State is one record's column values.
type State = triggers.State

// Conditions narrow a select, update or delete to matching records. An empty
// map matches everything of the type (scoped writes should always condition
// on tenant).
type Conditions map[string]any

// ListOptions paginate and order selects.
type ListOptions struct {
	Limit          int
	Offset         int
	OrderBy        string
	Desc           bool
	IncludeDeleted bool
}

type writeConfig struct {
	suppressTriggers bool
}

// WriteOption tunes one write call.
type WriteOption func(*writeConfig)

// WithoutTriggers suppresses trigger dispatch for this write. Used by
// handler backfills whose side effects must not re-enter the pipeline.
func WithoutTriggers() WriteOption {
	return func(c *writeConfig) { c.suppressTriggers = true }
}

func applyWriteOptions(opts []WriteOption) writeConfig {
	var cfg writeConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// Store is the CRUD surface record-type modules and the pipeline's handlers
// write through. Deletes are soft: the row is flagged, kept for history, and
// filtered from selects unless IncludeDeleted is set.
type Store interface {
	Insert(ctx context.Context, recordType string, state State, opts ...WriteOption) (State, error)
	Update(ctx context.Context, recordType string, conds Conditions, patch State, opts ...WriteOption) ([]State, error)
	Delete(ctx context.Context, recordType string, conds Conditions, opts ...WriteOption) (int, error)

	Select(ctx context.Context, recordType string, conds Conditions, options ListOptions) ([]State, error)
	SelectOne(ctx context.Context, recordType string, conds Conditions) (State, error)
	Count(ctx context.Context, recordType string, conds Conditions) (int, error)

	Transaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// CloneState deep-copies the first map level, enough to keep handler-visible
// old states stable across in-place edits. Nested values are shared.
func CloneState(s State) State {
	if s == nil {
		return nil
	}
	out := make(State, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// Matches reports whether a state satisfies every condition by loose
// equality (fmt-style comparison of scalars).
func Matches(state State, conds Conditions) bool {
	for col, want := range conds {
		if !looseEqual(state[col], want) {
			return false
		}
	}
	return true
}
