package propagation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/L-Inventaire/linventaire.app-sub000/internal/notifications"
	"github.com/L-Inventaire/linventaire.app-sub000/internal/records"
	"github.com/L-Inventaire/linventaire.app-sub000/internal/registry"
	"github.com/L-Inventaire/linventaire.app-sub000/internal/threads"
	"github.com/L-Inventaire/linventaire.app-sub000/internal/triggers"
	"github.com/L-Inventaire/linventaire.app-sub000/pkg/requestcontext"
)

type PropagationSuite struct {
	suite.Suite

	ctx     context.Context
	engine  *triggers.Engine
	store   *records.InMemory
	threads *threads.Service
	notifs  *notifications.InMemory
	prefs   *notifications.InMemoryPreferences
}

func TestPropagationSuite(t *testing.T) {
	suite.Run(t, new(PropagationSuite))
}

func (s *PropagationSuite) SetupTest() {
	reg := registry.New()
	s.Require().NoError(reg.RegisterEntities(registry.Access{},
		registry.Definition{
			Name:       "invoices",
			Columns:    []string{"id", "client_id", "title", "state", "assigned", "notes"},
			PrimaryKey: []string{"id"},
			Audited:    true,
		},
	))

	s.engine = triggers.NewEngine(reg)
	s.store = records.NewInMemory(s.engine)
	s.threads = threads.NewService(threads.NewInMemory())
	s.notifs = notifications.NewInMemory()
	s.prefs = notifications.NewInMemoryPreferences()
	notify := notifications.NewService(s.notifs, s.prefs,
		notifications.NewTTLCache(time.Minute), s.threads)

	p := New(s.threads, notify, reg)
	s.Require().NoError(p.RegisterMentionTrigger(s.engine))
	s.Require().NoError(p.RegisterAssignmentTrigger(s.engine))
	s.Require().NoError(p.RegisterStateChangeTrigger(s.engine))

	s.ctx = requestcontext.WithTenantID(context.Background(), "acme")
	s.ctx = requestcontext.WithTime(s.ctx, time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC))
}

func (s *PropagationSuite) asActor(userID string) context.Context {
	return requestcontext.WithActor(s.ctx, userID)
}

func (s *PropagationSuite) subscribers(recordID string) []string {
	users, err := s.threads.Subscribers(s.ctx, "acme", "invoices", recordID)
	s.Require().NoError(err)
	return users
}

func (s *PropagationSuite) unreadFor(userID, recordID string) *notifications.Notification {
	n, _ := s.notifs.FindUnread(s.ctx, "acme", userID, "invoices", recordID)
	return n
}

func (s *PropagationSuite) TestNewMentionSubscribesAndNotifies() {
	_, err := s.store.Insert(s.asActor("alice"), "invoices", records.State{
		"id": "inv-1", "client_id": "acme", "title": "Invoice #1",
		"notes": "ping mention:bob about the total",
	})
	s.Require().NoError(err)

	s.Equal([]string{"bob"}, s.subscribers("inv-1"))

	n := s.unreadFor("bob", "inv-1")
	s.Require().NotNil(n)
	s.Equal(notifications.TypeMentioned, n.Type)
	s.Equal("Invoice #1", n.EntityDisplayName)
	s.Equal("alice", n.Metadata["by"])
}

func (s *PropagationSuite) TestExistingMentionNotReNotified() {
	ctx := s.asActor("alice")
	_, err := s.store.Insert(ctx, "invoices", records.State{
		"id": "inv-1", "client_id": "acme", "notes": "mention:bob",
	})
	s.Require().NoError(err)
	s.Require().NoError(s.notifs.MarkRead(ctx, "acme", "bob", s.unreadFor("bob", "inv-1").ID))

	// Content changes around the surviving marker must stay silent.
	_, err = s.store.Update(ctx, "invoices",
		records.Conditions{"id": "inv-1"},
		records.State{"notes": "updated text, still mention:bob"})
	s.Require().NoError(err)

	s.Nil(s.unreadFor("bob", "inv-1"))
}

func (s *PropagationSuite) TestSelfMentionStaysSilent() {
	_, err := s.store.Insert(s.asActor("alice"), "invoices", records.State{
		"id": "inv-1", "client_id": "acme", "notes": "note to self mention:alice",
	})
	s.Require().NoError(err)

	s.Nil(s.unreadFor("alice", "inv-1"))
	s.Empty(s.subscribers("inv-1"))
}

func (s *PropagationSuite) TestDeleteClearsThread() {
	ctx := s.asActor("alice")
	_, err := s.store.Insert(ctx, "invoices", records.State{
		"id": "inv-1", "client_id": "acme", "notes": "mention:bob",
	})
	s.Require().NoError(err)
	s.Require().NotEmpty(s.subscribers("inv-1"))

	deleted, err := s.store.Delete(ctx, "invoices", records.Conditions{"id": "inv-1"})
	s.Require().NoError(err)
	s.Require().Equal(1, deleted)

	s.Empty(s.subscribers("inv-1"))
	thread, err := s.threads.Get(s.ctx, "acme", "invoices", "inv-1")
	s.Require().NoError(err)
	s.Require().NotNil(thread)
	s.True(thread.Cleared)
}

func (s *PropagationSuite) TestAssignmentNotifiesExactlyNewAssignees() {
	ctx := s.asActor("alice")
	_, err := s.store.Insert(ctx, "invoices", records.State{
		"id": "inv-1", "client_id": "acme", "assigned": []string{"bob"},
	})
	s.Require().NoError(err)

	_, err = s.store.Update(ctx, "invoices",
		records.Conditions{"id": "inv-1"},
		records.State{"assigned": []string{"bob", "carol"}})
	s.Require().NoError(err)

	s.Equal([]string{"bob", "carol"}, s.subscribers("inv-1"))

	// bob was already assigned before the update; only carol hears about it.
	carol := s.unreadFor("carol", "inv-1")
	s.Require().NotNil(carol)
	s.Equal(notifications.TypeAssigned, carol.Type)

	bob := s.unreadFor("bob", "inv-1")
	s.Require().NotNil(bob)
	s.Equal(notifications.TypeAssigned, bob.Type)
	s.Empty(bob.Also)
}

func (s *PropagationSuite) TestUnassignDoesNotNotify() {
	ctx := s.asActor("alice")
	_, err := s.store.Insert(ctx, "invoices", records.State{
		"id": "inv-1", "client_id": "acme", "assigned": []string{"bob", "carol"},
	})
	s.Require().NoError(err)
	_, err = s.notifs.MarkAllRead(ctx, "acme", "carol")
	s.Require().NoError(err)

	_, err = s.store.Update(ctx, "invoices",
		records.Conditions{"id": "inv-1"},
		records.State{"assigned": []string{"bob"}})
	s.Require().NoError(err)

	s.Nil(s.unreadFor("carol", "inv-1"))
}

func (s *PropagationSuite) TestStateChangeNotifiesThreadAndOptIns() {
	s.Require().NoError(s.prefs.Upsert(s.ctx, &notifications.Preference{
		TenantID: "acme", UserID: "dave", AlwaysNotified: []string{notifications.TypeModified},
	}))

	ctx := s.asActor("alice")
	_, err := s.store.Insert(ctx, "invoices", records.State{
		"id": "inv-1", "client_id": "acme", "state": "draft", "notes": "mention:bob",
	})
	s.Require().NoError(err)

	_, err = s.store.Update(ctx, "invoices",
		records.Conditions{"id": "inv-1"},
		records.State{"state": "sent"})
	s.Require().NoError(err)

	for _, userID := range []string{"bob", "dave"} {
		n := s.unreadFor(userID, "inv-1")
		s.Require().NotNil(n, userID)
		s.Equal(notifications.TypeModified, n.Type)
		s.Equal("sent", n.Metadata["to"])
	}
	s.Nil(s.unreadFor("alice", "inv-1"))
}

func (s *PropagationSuite) TestStateChangeWithoutActorStaysSilent() {
	ctx := s.asActor("alice")
	_, err := s.store.Insert(ctx, "invoices", records.State{
		"id": "inv-1", "client_id": "acme", "state": "draft", "notes": "mention:bob",
	})
	s.Require().NoError(err)
	_, err = s.notifs.MarkAllRead(ctx, "acme", "bob")
	s.Require().NoError(err)

	_, err = s.store.Update(s.ctx, "invoices",
		records.Conditions{"id": "inv-1"},
		records.State{"state": "sent"})
	s.Require().NoError(err)

	s.Nil(s.unreadFor("bob", "inv-1"))
}
