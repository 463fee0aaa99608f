// Package entities declares the business record types flowing through the
// mutation pipeline. Schemas are registered once at process start.
package entities

import "github.com/L-Inventaire/linventaire.app-sub000/internal/registry"

// Invoices covers both invoices and credit notes.
func Invoices() registry.Definition {
	return registry.Definition{
		Name: "invoices",
		Columns: []string{
			"id", "client_id", "title", "state", "assigned",
			"external_ref", "reference", "total", "currency", "notes",
			"comments_count", "searchable", "created_at", "updated_at",
		},
		PrimaryKey: []string{"id"},
		Audited:    true,
	}
}

func Quotes() registry.Definition {
	return registry.Definition{
		Name: "quotes",
		Columns: []string{
			"id", "client_id", "title", "state", "assigned",
			"external_ref", "reference", "total", "currency", "notes",
			"comments_count", "searchable", "created_at", "updated_at",
		},
		PrimaryKey: []string{"id"},
		Audited:    true,
	}
}

// Contacts are reference data. They keep a subscriber thread and a comment
// trail but their mutations are not audited.
func Contacts() registry.Definition {
	return registry.Definition{
		Name: "contacts",
		Columns: []string{
			"id", "client_id", "name", "email", "phone", "assigned",
			"comments_count", "searchable", "created_at", "updated_at",
		},
		PrimaryKey: []string{"id"},
		Audited:    false,
	}
}

// Documents store uploaded binaries, signed quotes and invoices included.
// Payloads are held base64-encoded in the data column.
func Documents() registry.Definition {
	return registry.Definition{
		Name: "documents",
		Columns: []string{
			"id", "client_id", "filename", "content_type", "data",
			"record_type", "record_id", "created_at",
		},
		PrimaryKey: []string{"id"},
		Audited:    false,
	}
}

// RegisterAll registers every business record type with the shared access
// descriptor.
func RegisterAll(reg *registry.Registry, access registry.Access) error {
	return reg.RegisterEntities(access, Invoices(), Quotes(), Contacts(), Documents())
}
