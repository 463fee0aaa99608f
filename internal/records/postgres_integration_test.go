//go:build integration

package records_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/L-Inventaire/linventaire.app-sub000/internal/records"
	"github.com/L-Inventaire/linventaire.app-sub000/internal/registry"
	"github.com/L-Inventaire/linventaire.app-sub000/internal/triggers"
	"github.com/L-Inventaire/linventaire.app-sub000/pkg/platform/sentinel"
	"github.com/L-Inventaire/linventaire.app-sub000/pkg/requestcontext"
	"github.com/L-Inventaire/linventaire.app-sub000/pkg/testutil/containers"
)

type PostgresRecordsSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	engine   *triggers.Engine
	store    *records.Postgres
	ctx      context.Context

	vetoNext bool
	seen     []triggers.Event
}

func TestPostgresRecordsSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresRecordsSuite))
}

func (s *PostgresRecordsSuite) SetupSuite() {
	s.postgres = containers.GetManager().GetPostgres(s.T())
	s.Require().NoError(records.EnsureSchema(context.Background(), s.postgres.DB))

	reg := registry.New()
	s.Require().NoError(reg.RegisterEntities(registry.Access{},
		registry.Definition{
			Name:       "invoices",
			Columns:    []string{"id", "client_id", "title", "state", "total"},
			PrimaryKey: []string{"id"},
			Audited:    true,
		},
	))
	s.engine = triggers.NewEngine(reg)
	s.Require().NoError(s.engine.Register(triggers.Wildcard, triggers.Registration{
		Name: "recorder",
		Effect: func(_ context.Context, ev triggers.Event) error {
			s.seen = append(s.seen, ev)
			if s.vetoNext {
				s.vetoNext = false
				return errors.New("vetoed")
			}
			return nil
		},
	}))
	s.store = records.NewPostgres(s.postgres.DB, s.engine)
}

func (s *PostgresRecordsSuite) SetupTest() {
	s.vetoNext = false
	s.seen = nil
	s.Require().NoError(s.postgres.TruncateTables(context.Background(), "records"))

	s.ctx = requestcontext.WithTenantID(context.Background(), "acme")
	s.ctx = requestcontext.WithActor(s.ctx, "alice")
	s.ctx = requestcontext.WithTime(s.ctx, time.Now().UTC())
}

func (s *PostgresRecordsSuite) TestWriteReadRoundTrip() {
	_, err := s.store.Insert(s.ctx, "invoices", records.State{
		"id": "inv-1", "client_id": "acme", "title": "Invoice #1", "total": 120.5,
	})
	s.Require().NoError(err)

	state, err := s.store.SelectOne(s.ctx, "invoices", records.Conditions{"id": "inv-1"})
	s.Require().NoError(err)
	s.Equal("Invoice #1", state["title"])
	s.Require().Len(s.seen, 1)
	s.Equal(triggers.OpInsert, s.seen[0].Operation())
	s.Equal("acme", s.seen[0].TenantID)
}

func (s *PostgresRecordsSuite) TestVetoRollsBackWrite() {
	_, err := s.store.Insert(s.ctx, "invoices", records.State{
		"id": "inv-1", "client_id": "acme", "title": "before",
	})
	s.Require().NoError(err)

	s.vetoNext = true
	_, err = s.store.Update(s.ctx, "invoices",
		records.Conditions{"id": "inv-1"},
		records.State{"title": "after"})
	s.Require().Error(err)

	state, err := s.store.SelectOne(s.ctx, "invoices", records.Conditions{"id": "inv-1"})
	s.Require().NoError(err)
	s.Equal("before", state["title"])
}

func (s *PostgresRecordsSuite) TestSoftDeleteHidesRow() {
	_, err := s.store.Insert(s.ctx, "invoices", records.State{
		"id": "inv-1", "client_id": "acme",
	})
	s.Require().NoError(err)

	deleted, err := s.store.Delete(s.ctx, "invoices", records.Conditions{"id": "inv-1"})
	s.Require().NoError(err)
	s.Equal(1, deleted)

	_, err = s.store.SelectOne(s.ctx, "invoices", records.Conditions{"id": "inv-1"})
	s.Require().ErrorIs(err, sentinel.ErrNotFound)

	list, err := s.store.Select(s.ctx, "invoices", nil, records.ListOptions{IncludeDeleted: true})
	s.Require().NoError(err)
	s.Len(list, 1)
}

func (s *PostgresRecordsSuite) TestDuplicateKeyConflicts() {
	_, err := s.store.Insert(s.ctx, "invoices", records.State{"id": "inv-1", "client_id": "acme"})
	s.Require().NoError(err)

	_, err = s.store.Insert(s.ctx, "invoices", records.State{"id": "inv-1", "client_id": "acme"})
	s.Require().ErrorIs(err, sentinel.ErrConflict)
}

func (s *PostgresRecordsSuite) TestWithoutTriggersSkipsDispatch() {
	_, err := s.store.Insert(s.ctx, "invoices", records.State{
		"id": "inv-1", "client_id": "acme",
	}, records.WithoutTriggers())
	s.Require().NoError(err)
	s.Empty(s.seen)
}

func (s *PostgresRecordsSuite) TestUndeclaredConditionColumnErrors() {
	_, err := s.store.Insert(s.ctx, "invoices", records.State{
		"id": "inv-1", "client_id": "acme", "title": "Invoice #1",
	})
	s.Require().NoError(err)

	_, err = s.store.Select(s.ctx, "invoices",
		records.Conditions{"titel": "Invoice #1"}, records.ListOptions{})
	s.Require().ErrorContains(err, "undeclared column")

	_, err = s.store.Count(s.ctx, "invoices", records.Conditions{"titel": "Invoice #1"})
	s.Require().ErrorContains(err, "undeclared column")

	_, err = s.store.Select(s.ctx, "invoices", nil,
		records.ListOptions{OrderBy: "titel"})
	s.Require().ErrorContains(err, "undeclared column")
}

func (s *PostgresRecordsSuite) TestUpdateStampsRequestClock() {
	_, err := s.store.Insert(s.ctx, "invoices", records.State{
		"id": "inv-1", "client_id": "acme", "title": "Invoice #1",
	})
	s.Require().NoError(err)

	at := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	ctx := requestcontext.WithTime(s.ctx, at)
	_, err = s.store.Update(ctx, "invoices",
		records.Conditions{"id": "inv-1"}, records.State{"title": "Invoice #1 (rev)"})
	s.Require().NoError(err)

	var updatedAt time.Time
	s.Require().NoError(s.postgres.DB.QueryRowContext(ctx,
		`SELECT updated_at FROM records WHERE record_type = 'invoices'`).Scan(&updatedAt))
	s.True(updatedAt.Equal(at))
}
