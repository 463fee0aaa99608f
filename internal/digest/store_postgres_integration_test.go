//go:build integration

package digest_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/L-Inventaire/linventaire.app-sub000/internal/digest"
	"github.com/L-Inventaire/linventaire.app-sub000/pkg/testutil/containers"
)

type PostgresDigestSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *digest.PostgresStore
	ctx      context.Context
}

func TestPostgresDigestSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresDigestSuite))
}

func (s *PostgresDigestSuite) SetupSuite() {
	s.postgres = containers.GetManager().GetPostgres(s.T())
	s.Require().NoError(digest.EnsureSchema(context.Background(), s.postgres.DB))
	s.store = digest.NewPostgres(s.postgres.DB)
}

func (s *PostgresDigestSuite) SetupTest() {
	s.ctx = context.Background()
	s.Require().NoError(s.postgres.TruncateTables(s.ctx, "digests"))
}

func (s *PostgresDigestSuite) TestAppendConcatenates() {
	now := time.Now().UTC()
	s.Require().NoError(s.store.Append(s.ctx, "acme", "alice", "n-1", now))
	s.Require().NoError(s.store.Append(s.ctx, "acme", "alice", "n-2", now.Add(time.Second)))

	batches, err := s.store.List(s.ctx, 10)
	s.Require().NoError(err)
	s.Require().Len(batches, 1)
	s.Equal("acme", batches[0].TenantID)
	s.Equal("alice", batches[0].UserID)
	s.Equal([]string{"n-1", "n-2"}, batches[0].NotificationIDs)
}

func (s *PostgresDigestSuite) TestListOrdersByAgeAndHonorsLimit() {
	base := time.Now().UTC().Add(-time.Hour)
	s.Require().NoError(s.store.Append(s.ctx, "acme", "carol", "n-3", base.Add(2*time.Minute)))
	s.Require().NoError(s.store.Append(s.ctx, "acme", "alice", "n-1", base))
	s.Require().NoError(s.store.Append(s.ctx, "acme", "bob", "n-2", base.Add(time.Minute)))

	batches, err := s.store.List(s.ctx, 2)
	s.Require().NoError(err)
	s.Require().Len(batches, 2)
	s.Equal("alice", batches[0].UserID)
	s.Equal("bob", batches[1].UserID)
}

func (s *PostgresDigestSuite) TestDeleteIsIdempotent() {
	now := time.Now().UTC()
	s.Require().NoError(s.store.Append(s.ctx, "acme", "alice", "n-1", now))

	s.Require().NoError(s.store.Delete(s.ctx, "acme", "alice"))
	s.Require().NoError(s.store.Delete(s.ctx, "acme", "alice"))

	batches, err := s.store.List(s.ctx, 10)
	s.Require().NoError(err)
	s.Empty(batches)
}
