package triggers

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/L-Inventaire/linventaire.app-sub000/internal/registry"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	reg := registry.New()
	require.NoError(t, reg.RegisterEntities(registry.Access{},
		registry.Definition{Name: "invoices", Columns: []string{"id"}, PrimaryKey: []string{"id"}, Audited: true},
		registry.Definition{Name: "contacts", Columns: []string{"id"}, PrimaryKey: []string{"id"}},
	))
	return NewEngine(reg)
}

func record(name string, order *[]string) Registration {
	return Registration{
		Name: name,
		Effect: func(ctx context.Context, ev Event) error {
			*order = append(*order, name)
			return nil
		},
	}
}

func TestRegisterValidation(t *testing.T) {
	e := newTestEngine(t)

	assert.Error(t, e.Register("invoices", Registration{Name: "no-effect"}))
	assert.Error(t, e.Register("", Registration{Name: "no-scope", Effect: func(context.Context, Event) error { return nil }}))
	assert.NoError(t, e.Register("invoices", Registration{Effect: func(context.Context, Event) error { return nil }}))
}

func TestDispatchOrdering(t *testing.T) {
	t.Run("ascending priority across wildcard and typed handlers", func(t *testing.T) {
		e := newTestEngine(t)
		var order []string

		last := record("audit", &order)
		last.Priority = 1000
		require.NoError(t, e.Register(Wildcard, last))

		typed := record("typed", &order)
		require.NoError(t, e.Register("invoices", typed))

		early := record("early", &order)
		early.Priority = -10
		require.NoError(t, e.Register(Wildcard, early))

		require.NoError(t, e.Dispatch(context.Background(), Event{RecordType: "invoices", NewState: State{"id": "1"}}))
		assert.Equal(t, []string{"early", "typed", "audit"}, order)
	})

	t.Run("priority ties break by registration order", func(t *testing.T) {
		e := newTestEngine(t)
		var order []string
		require.NoError(t, e.Register("invoices", record("first", &order)))
		require.NoError(t, e.Register(Wildcard, record("second", &order)))
		require.NoError(t, e.Register("invoices", record("third", &order)))

		require.NoError(t, e.Dispatch(context.Background(), Event{RecordType: "invoices", NewState: State{"id": "1"}}))
		assert.Equal(t, []string{"first", "second", "third"}, order)
	})

	t.Run("typed handlers only run for their scope", func(t *testing.T) {
		e := newTestEngine(t)
		var order []string
		require.NoError(t, e.Register("invoices", record("invoices-only", &order)))
		require.NoError(t, e.Register(Wildcard, record("everything", &order)))

		require.NoError(t, e.Dispatch(context.Background(), Event{RecordType: "contacts", NewState: State{"id": "1"}}))
		assert.Equal(t, []string{"everything"}, order)
	})
}

func TestDispatchTest(t *testing.T) {
	e := newTestEngine(t)
	var ran []string

	require.NoError(t, e.Register("invoices", Registration{
		Name: "inserts-only",
		Test: func(ctx context.Context, ev Event) bool { return ev.Operation() == OpInsert },
		Effect: func(ctx context.Context, ev Event) error {
			ran = append(ran, "inserts-only")
			return nil
		},
	}))

	require.NoError(t, e.Dispatch(context.Background(), Event{RecordType: "invoices", NewState: State{"id": "1"}, OldState: State{"id": "1"}}))
	assert.Empty(t, ran)

	require.NoError(t, e.Dispatch(context.Background(), Event{RecordType: "invoices", NewState: State{"id": "1"}}))
	assert.Equal(t, []string{"inserts-only"}, ran)
}

func TestDispatchFailureAbortsRemaining(t *testing.T) {
	e := newTestEngine(t)
	var order []string
	boom := errors.New("veto")

	require.NoError(t, e.Register("invoices", record("before", &order)))
	require.NoError(t, e.Register("invoices", Registration{
		Name:   "vetoer",
		Effect: func(context.Context, Event) error { return boom },
	}))
	require.NoError(t, e.Register("invoices", record("after", &order)))

	err := e.Dispatch(context.Background(), Event{RecordType: "invoices", NewState: State{"id": "1"}})
	require.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"before"}, order)
}

func TestDispatchDepthPropagation(t *testing.T) {
	e := newTestEngine(t)
	var depths []int

	require.NoError(t, e.Register("invoices", Registration{
		Name: "nested-writer",
		Effect: func(ctx context.Context, ev Event) error {
			// A handler-issued write would pick this up from the context.
			depths = append(depths, DepthFromContext(ctx))
			if ev.Depth == 0 {
				return e.Dispatch(ctx, Event{
					RecordType: "invoices",
					NewState:   State{"id": "2"},
					Depth:      DepthFromContext(ctx),
				})
			}
			return nil
		},
	}))

	require.NoError(t, e.Dispatch(context.Background(), Event{RecordType: "invoices", NewState: State{"id": "1"}}))
	assert.Equal(t, []int{1, 2}, depths)
}

func TestEventOperation(t *testing.T) {
	assert.Equal(t, OpInsert, Event{NewState: State{}}.Operation())
	assert.Equal(t, OpDelete, Event{OldState: State{}}.Operation())
	assert.Equal(t, OpUpdate, Event{NewState: State{}, OldState: State{}}.Operation())
}
