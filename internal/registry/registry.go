// Package registry holds the static description of every record type the
// mutation pipeline operates on: column schema, primary key, auditability and
// access control.
//
// Registration happens once during process start-up, before the record store
// accepts writes. After that the registry is read-only for the process
// lifetime; there is no runtime deregistration.
package registry

import (
	"context"
	"fmt"
	"slices"
	"sync"
)

// RoleAccess is a fixed role mapping for a record type.
type RoleAccess struct {
	Read   []string
	Write  []string
	Manage []string
}

// VisibilityFunc is a custom access predicate for record types whose
// visibility cannot be expressed as a role mapping. state is the record's
// current column values.
type VisibilityFunc func(ctx context.Context, userID string, state map[string]any) bool

// Access describes who can see and mutate a record type. Exactly one of
// Roles or Visibility should be set.
type Access struct {
	Roles      *RoleAccess
	Visibility VisibilityFunc
}

// Definition describes one record type. Immutable after registration.
type Definition struct {
	Name       string
	Columns    []string
	PrimaryKey []string
	Audited    bool
	Access     Access
}

// HasColumn reports whether the schema declares the column.
func (d Definition) HasColumn(name string) bool {
	return slices.Contains(d.Columns, name)
}

// Registry is the process-wide record-type catalog. It is populated during
// start-up and read-only afterwards; the mutex only exists so concurrent
// readers during tests are race-free.
type Registry struct {
	mu   sync.RWMutex
	defs map[string]Definition
}

func New() *Registry {
	return &Registry{defs: make(map[string]Definition)}
}

// RegisterEntities adds record-type definitions with a shared access
// descriptor. It fails on duplicate names, missing primary keys, or primary
// key columns absent from the schema.
func (r *Registry) RegisterEntities(access Access, defs ...Definition) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, def := range defs {
		if def.Name == "" {
			return fmt.Errorf("record definition missing name")
		}
		if _, ok := r.defs[def.Name]; ok {
			return fmt.Errorf("record type %q already registered", def.Name)
		}
		if len(def.PrimaryKey) == 0 {
			return fmt.Errorf("record type %q has no primary key", def.Name)
		}
		for _, pk := range def.PrimaryKey {
			if !def.HasColumn(pk) {
				return fmt.Errorf("record type %q: primary key column %q not in schema", def.Name, pk)
			}
		}
		def.Access = access
		r.defs[def.Name] = def
	}
	return nil
}

// Entity returns the definition for a record type.
func (r *Registry) Entity(name string) (Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.defs[name]
	return def, ok
}

// Entities returns a snapshot of all registered definitions, sorted by name.
func (r *Registry) Entities() []Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	defs := make([]Definition, 0, len(r.defs))
	for _, def := range r.defs {
		defs = append(defs, def)
	}
	slices.SortFunc(defs, func(a, b Definition) int {
		switch {
		case a.Name < b.Name:
			return -1
		case a.Name > b.Name:
			return 1
		default:
			return 0
		}
	})
	return defs
}
