package threads

import (
	"context"
	"testing"

	"github.com/stretchr/testify/suite"
)

type ThreadServiceSuite struct {
	suite.Suite
	svc *Service
	ctx context.Context
}

func TestThreadServiceSuite(t *testing.T) {
	suite.Run(t, new(ThreadServiceSuite))
}

func (s *ThreadServiceSuite) SetupTest() {
	s.svc = NewService(NewInMemory())
	s.ctx = context.Background()
}

func (s *ThreadServiceSuite) TestEnsureCreatesLazily() {
	thread, err := s.svc.Ensure(s.ctx, "t1", "invoices", "inv-1", nil)
	s.Require().NoError(err)
	s.Empty(thread.Subscribers)

	got, err := s.svc.Get(s.ctx, "t1", "invoices", "inv-1")
	s.Require().NoError(err)
	s.Require().NotNil(got)
	s.False(got.Cleared)
}

func (s *ThreadServiceSuite) TestEnsureUnionsMembership() {
	_, err := s.svc.Ensure(s.ctx, "t1", "invoices", "inv-1", []string{"a", "b"})
	s.Require().NoError(err)

	thread, err := s.svc.Ensure(s.ctx, "t1", "invoices", "inv-1", []string{"b", "c", "c"})
	s.Require().NoError(err)
	s.Equal([]string{"a", "b", "c"}, thread.Subscribers)
}

func (s *ThreadServiceSuite) TestRemoveUsers() {
	_, err := s.svc.Ensure(s.ctx, "t1", "invoices", "inv-1", []string{"a", "b"})
	s.Require().NoError(err)

	s.Require().NoError(s.svc.RemoveUsers(s.ctx, "t1", "invoices", "inv-1", []string{"a", "x"}))

	subs, err := s.svc.Subscribers(s.ctx, "t1", "invoices", "inv-1")
	s.Require().NoError(err)
	s.Equal([]string{"b"}, subs)

	// Absent thread: no-op, no error.
	s.NoError(s.svc.RemoveUsers(s.ctx, "t1", "invoices", "missing", []string{"a"}))
}

func (s *ThreadServiceSuite) TestClearEmptiesButKeepsThread() {
	_, err := s.svc.Ensure(s.ctx, "t1", "invoices", "inv-1", []string{"a", "b"})
	s.Require().NoError(err)

	s.Require().NoError(s.svc.Clear(s.ctx, "t1", "invoices", "inv-1"))

	thread, err := s.svc.Get(s.ctx, "t1", "invoices", "inv-1")
	s.Require().NoError(err)
	s.Require().NotNil(thread)
	s.Empty(thread.Subscribers)
	s.True(thread.Cleared)

	// Clearing an already-empty thread is a no-op.
	s.NoError(s.svc.Clear(s.ctx, "t1", "invoices", "inv-1"))
	// Clearing an absent thread is a no-op.
	s.NoError(s.svc.Clear(s.ctx, "t1", "invoices", "missing"))
}

func (s *ThreadServiceSuite) TestEnsureRevivesClearedThread() {
	_, err := s.svc.Ensure(s.ctx, "t1", "invoices", "inv-1", []string{"a"})
	s.Require().NoError(err)
	s.Require().NoError(s.svc.Clear(s.ctx, "t1", "invoices", "inv-1"))

	thread, err := s.svc.Ensure(s.ctx, "t1", "invoices", "inv-1", []string{"b"})
	s.Require().NoError(err)
	s.False(thread.Cleared)
	s.Equal([]string{"b"}, thread.Subscribers)
}

func (s *ThreadServiceSuite) TestGetAbsentReturnsNil() {
	thread, err := s.svc.Get(s.ctx, "t1", "invoices", "nope")
	s.Require().NoError(err)
	s.Nil(thread)
}
