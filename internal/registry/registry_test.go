package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterEntities(t *testing.T) {
	access := Access{Roles: &RoleAccess{Read: []string{"member"}, Write: []string{"member"}, Manage: []string{"admin"}}}

	t.Run("registers and retrieves definitions", func(t *testing.T) {
		r := New()
		err := r.RegisterEntities(access,
			Definition{Name: "invoices", Columns: []string{"id", "client_id", "state"}, PrimaryKey: []string{"id"}, Audited: true},
			Definition{Name: "contacts", Columns: []string{"id", "client_id"}, PrimaryKey: []string{"id"}},
		)
		require.NoError(t, err)

		def, ok := r.Entity("invoices")
		require.True(t, ok)
		assert.True(t, def.Audited)
		assert.Equal(t, []string{"member"}, def.Access.Roles.Read)

		names := []string{}
		for _, d := range r.Entities() {
			names = append(names, d.Name)
		}
		assert.Equal(t, []string{"contacts", "invoices"}, names)
	})

	t.Run("rejects duplicate registration", func(t *testing.T) {
		r := New()
		def := Definition{Name: "invoices", Columns: []string{"id"}, PrimaryKey: []string{"id"}}
		require.NoError(t, r.RegisterEntities(access, def))
		assert.Error(t, r.RegisterEntities(access, def))
	})

	t.Run("rejects primary key outside schema", func(t *testing.T) {
		r := New()
		err := r.RegisterEntities(access, Definition{Name: "quotes", Columns: []string{"id"}, PrimaryKey: []string{"uuid"}})
		assert.Error(t, err)
	})

	t.Run("rejects missing primary key", func(t *testing.T) {
		r := New()
		err := r.RegisterEntities(access, Definition{Name: "quotes", Columns: []string{"id"}})
		assert.Error(t, err)
	})
}

func TestIsSystemType(t *testing.T) {
	assert.True(t, IsSystemType("history"))
	assert.True(t, IsSystemType("notifications"))
	assert.False(t, IsSystemType("invoices"))
}
