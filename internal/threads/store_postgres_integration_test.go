//go:build integration

package threads_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/L-Inventaire/linventaire.app-sub000/internal/threads"
	"github.com/L-Inventaire/linventaire.app-sub000/pkg/platform/sentinel"
	"github.com/L-Inventaire/linventaire.app-sub000/pkg/testutil/containers"
)

type PostgresThreadsSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *threads.PostgresStore
	ctx      context.Context
}

func TestPostgresThreadsSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresThreadsSuite))
}

func (s *PostgresThreadsSuite) SetupSuite() {
	s.postgres = containers.GetManager().GetPostgres(s.T())
	s.Require().NoError(threads.EnsureSchema(context.Background(), s.postgres.DB))
	s.store = threads.NewPostgres(s.postgres.DB)
}

func (s *PostgresThreadsSuite) SetupTest() {
	s.ctx = context.Background()
	s.Require().NoError(s.postgres.TruncateTables(s.ctx, "threads"))
}

func (s *PostgresThreadsSuite) TestUpsertAndGet() {
	now := time.Now().UTC().Truncate(time.Microsecond)
	thread := &threads.Thread{
		TenantID:    "acme",
		RecordType:  "invoices",
		RecordID:    "inv-1",
		Subscribers: []string{"alice", "bob"},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	s.Require().NoError(s.store.Upsert(s.ctx, thread))

	got, err := s.store.Get(s.ctx, "acme", "invoices", "inv-1")
	s.Require().NoError(err)
	s.Equal([]string{"alice", "bob"}, got.Subscribers)
	s.False(got.Cleared)

	thread.Subscribers = nil
	thread.Cleared = true
	s.Require().NoError(s.store.Upsert(s.ctx, thread))

	got, err = s.store.Get(s.ctx, "acme", "invoices", "inv-1")
	s.Require().NoError(err)
	s.Empty(got.Subscribers)
	s.True(got.Cleared)
}

func (s *PostgresThreadsSuite) TestGetAbsentThread() {
	_, err := s.store.Get(s.ctx, "acme", "invoices", "missing")
	s.Require().ErrorIs(err, sentinel.ErrNotFound)
}
