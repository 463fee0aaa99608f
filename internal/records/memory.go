package records

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/L-Inventaire/linventaire.app-sub000/internal/registry"
	"github.com/L-Inventaire/linventaire.app-sub000/internal/triggers"
	"github.com/L-Inventaire/linventaire.app-sub000/pkg/platform/sentinel"
	"github.com/L-Inventaire/linventaire.app-sub000/pkg/requestcontext"
)

// InMemory is the in-process record store used by unit tests and local
// development. Writes dispatch through the trigger engine exactly like the
// Postgres store; a handler error reverts the triggering write.
type InMemory struct {
	mu     sync.RWMutex
	tables map[string]map[string]State

	engine *triggers.Engine
}

func NewInMemory(engine *triggers.Engine) *InMemory {
	return &InMemory{
		tables: make(map[string]map[string]State),
		engine: engine,
	}
}

const deletedColumn = "is_deleted"

func (s *InMemory) definition(recordType string) (registry.Definition, error) {
	def, ok := s.engine.Registry().Entity(recordType)
	if !ok {
		return registry.Definition{}, fmt.Errorf("unknown record type %q", recordType)
	}
	return def, nil
}

// PrimaryKeyOf joins a record's primary key column values into the store key.
func PrimaryKeyOf(def registry.Definition, state State) (string, error) {
	parts := make([]string, 0, len(def.PrimaryKey))
	for _, col := range def.PrimaryKey {
		v, ok := state[col]
		if !ok || v == nil || v == "" {
			return "", fmt.Errorf("record type %q: primary key column %q missing", def.Name, col)
		}
		parts = append(parts, fmt.Sprint(v))
	}
	return strings.Join(parts, "/"), nil
}

// validateConditions rejects condition columns the schema does not declare.
func validateConditions(def registry.Definition, conds Conditions) error {
	for col := range conds {
		if !def.HasColumn(col) {
			return fmt.Errorf("undeclared column %q", col)
		}
	}
	return nil
}

func (s *InMemory) Insert(ctx context.Context, recordType string, state State, opts ...WriteOption) (State, error) {
	cfg := applyWriteOptions(opts)
	def, err := s.definition(recordType)
	if err != nil {
		return nil, err
	}

	state = CloneState(state)
	if def.HasColumn("id") && state["id"] == nil {
		state["id"] = uuid.NewString()
	}
	pk, err := PrimaryKeyOf(def, state)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	table := s.tables[recordType]
	if table == nil {
		table = make(map[string]State)
		s.tables[recordType] = table
	}
	if _, exists := table[pk]; exists {
		s.mu.Unlock()
		return nil, fmt.Errorf("insert %s %q: %w", recordType, pk, sentinel.ErrConflict)
	}
	table[pk] = CloneState(state)
	s.mu.Unlock()

	if !cfg.suppressTriggers {
		if err := s.dispatch(ctx, recordType, CloneState(state), nil); err != nil {
			s.mu.Lock()
			delete(s.tables[recordType], pk)
			s.mu.Unlock()
			return nil, err
		}
	}
	return state, nil
}

func (s *InMemory) Update(ctx context.Context, recordType string, conds Conditions, patch State, opts ...WriteOption) ([]State, error) {
	cfg := applyWriteOptions(opts)
	def, err := s.definition(recordType)
	if err != nil {
		return nil, err
	}
	if err := validateConditions(def, conds); err != nil {
		return nil, err
	}

	matched := s.matchingKeys(recordType, conds, false)
	updated := make([]State, 0, len(matched))
	for _, pk := range matched {
		s.mu.Lock()
		old := CloneState(s.tables[recordType][pk])
		next := CloneState(old)
		for col, v := range patch {
			next[col] = v
		}
		s.tables[recordType][pk] = CloneState(next)
		s.mu.Unlock()

		if !cfg.suppressTriggers {
			if err := s.dispatch(ctx, recordType, CloneState(next), old); err != nil {
				s.mu.Lock()
				s.tables[recordType][pk] = old
				s.mu.Unlock()
				return nil, err
			}
		}
		updated = append(updated, next)
	}
	return updated, nil
}

func (s *InMemory) Delete(ctx context.Context, recordType string, conds Conditions, opts ...WriteOption) (int, error) {
	cfg := applyWriteOptions(opts)
	def, err := s.definition(recordType)
	if err != nil {
		return 0, err
	}
	if err := validateConditions(def, conds); err != nil {
		return 0, err
	}

	matched := s.matchingKeys(recordType, conds, false)
	for i, pk := range matched {
		s.mu.Lock()
		old := CloneState(s.tables[recordType][pk])
		flagged := CloneState(old)
		flagged[deletedColumn] = true
		s.tables[recordType][pk] = flagged
		s.mu.Unlock()

		if !cfg.suppressTriggers {
			if err := s.dispatch(ctx, recordType, nil, old); err != nil {
				s.mu.Lock()
				s.tables[recordType][pk] = old
				s.mu.Unlock()
				return i, err
			}
		}
	}
	return len(matched), nil
}

func (s *InMemory) Select(ctx context.Context, recordType string, conds Conditions, options ListOptions) ([]State, error) {
	def, err := s.definition(recordType)
	if err != nil {
		return nil, err
	}
	if err := validateConditions(def, conds); err != nil {
		return nil, err
	}
	if options.OrderBy != "" && !def.HasColumn(options.OrderBy) {
		return nil, fmt.Errorf("undeclared column %q", options.OrderBy)
	}

	s.mu.RLock()
	var results []State
	for _, state := range s.tables[recordType] {
		if !options.IncludeDeleted && state[deletedColumn] == true {
			continue
		}
		if Matches(state, conds) {
			results = append(results, CloneState(state))
		}
	}
	s.mu.RUnlock()

	if options.OrderBy != "" {
		slices.SortStableFunc(results, func(a, b State) int {
			c := compareValues(a[options.OrderBy], b[options.OrderBy])
			if options.Desc {
				return -c
			}
			return c
		})
	}
	if options.Offset > 0 {
		if options.Offset >= len(results) {
			return nil, nil
		}
		results = results[options.Offset:]
	}
	if options.Limit > 0 && len(results) > options.Limit {
		results = results[:options.Limit]
	}
	return results, nil
}

func (s *InMemory) SelectOne(ctx context.Context, recordType string, conds Conditions) (State, error) {
	results, err := s.Select(ctx, recordType, conds, ListOptions{Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, sentinel.ErrNotFound
	}
	return results[0], nil
}

func (s *InMemory) Count(ctx context.Context, recordType string, conds Conditions) (int, error) {
	results, err := s.Select(ctx, recordType, conds, ListOptions{})
	if err != nil {
		return 0, err
	}
	return len(results), nil
}

// Transaction runs fn directly. The in-memory store offers no isolation;
// the Postgres store provides the real thing.
func (s *InMemory) Transaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func (s *InMemory) matchingKeys(recordType string, conds Conditions, includeDeleted bool) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var keys []string
	for pk, state := range s.tables[recordType] {
		if !includeDeleted && state[deletedColumn] == true {
			continue
		}
		if Matches(state, conds) {
			keys = append(keys, pk)
		}
	}
	slices.Sort(keys)
	return keys
}

func (s *InMemory) dispatch(ctx context.Context, recordType string, newState, oldState State) error {
	return s.engine.Dispatch(ctx, buildEvent(ctx, recordType, newState, oldState))
}

// buildEvent assembles the mutation event for one write: actor and tenant
// from the call chain, recursion depth from the dispatch context.
func buildEvent(ctx context.Context, recordType string, newState, oldState State) triggers.Event {
	tenant := requestcontext.TenantID(ctx)
	current := newState
	if current == nil {
		current = oldState
	}
	if v, ok := current["client_id"].(string); ok && v != "" {
		tenant = v
	}
	return triggers.Event{
		Actor:      requestcontext.Actor(ctx),
		TenantID:   tenant,
		RecordType: recordType,
		NewState:   newState,
		OldState:   oldState,
		Depth:      triggers.DepthFromContext(ctx),
	}
}
