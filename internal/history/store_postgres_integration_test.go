//go:build integration

package history_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/L-Inventaire/linventaire.app-sub000/internal/history"
	"github.com/L-Inventaire/linventaire.app-sub000/internal/records"
	"github.com/L-Inventaire/linventaire.app-sub000/internal/triggers"
	"github.com/L-Inventaire/linventaire.app-sub000/pkg/testutil/containers"
)

type PostgresHistorySuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *history.PostgresStore
	ctx      context.Context
}

func TestPostgresHistorySuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresHistorySuite))
}

func (s *PostgresHistorySuite) SetupSuite() {
	s.postgres = containers.GetManager().GetPostgres(s.T())
	s.Require().NoError(history.EnsureSchema(context.Background(), s.postgres.DB))
	s.store = history.NewPostgres(s.postgres.DB)
}

func (s *PostgresHistorySuite) SetupTest() {
	s.ctx = context.Background()
	s.Require().NoError(s.postgres.TruncateTables(s.ctx, "history"))
}

func (s *PostgresHistorySuite) appendRows(n int) {
	base := time.Now().UTC().Truncate(time.Microsecond)
	for i := 0; i < n; i++ {
		s.Require().NoError(s.store.Append(s.ctx, history.Row{
			ID:                 fmt.Sprintf("h%d", i),
			TenantID:           "acme",
			RecordType:         "invoices",
			RecordID:           "inv-1",
			Operation:          triggers.OpUpdate,
			OperationTimestamp: base.Add(time.Duration(i) * time.Second),
			Snapshot:           records.State{"id": "inv-1", "revision": float64(i)},
		}))
	}
}

func (s *PostgresHistorySuite) TestNewestFirstPagination() {
	s.appendRows(5)

	list, total, err := s.store.Search(s.ctx, "acme", "invoices", "inv-1", 2, 0)
	s.Require().NoError(err)
	s.Equal(5, total)
	s.Require().Len(list, 2)
	s.Equal("h4", list[0].ID)
	s.Equal("h3", list[1].ID)

	list, _, err = s.store.Search(s.ctx, "acme", "invoices", "inv-1", 2, 4)
	s.Require().NoError(err)
	s.Require().Len(list, 1)
	s.Equal("h0", list[0].ID)
}

func (s *PostgresHistorySuite) TestSnapshotRoundTrip() {
	s.appendRows(1)

	list, _, err := s.store.Search(s.ctx, "acme", "invoices", "inv-1", 1, 0)
	s.Require().NoError(err)
	s.Require().Len(list, 1)
	s.Equal(records.State{"id": "inv-1", "revision": float64(0)}, list[0].Snapshot)
}

func (s *PostgresHistorySuite) TestTenantIsolation() {
	s.appendRows(1)

	_, total, err := s.store.Search(s.ctx, "other", "invoices", "inv-1", 10, 0)
	s.Require().NoError(err)
	s.Zero(total)
}
