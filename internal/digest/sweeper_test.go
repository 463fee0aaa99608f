package digest

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"github.com/L-Inventaire/linventaire.app-sub000/internal/digest/mocks"
	"github.com/L-Inventaire/linventaire.app-sub000/internal/notifications"
)

type SweeperSuite struct {
	suite.Suite

	ctx       context.Context
	ctrl      *gomock.Controller
	store     *InMemory
	notifs    *notifications.InMemory
	prefs     *notifications.InMemoryPreferences
	sender    *mocks.MockSender
	sweeper   *Sweeper
	baseTime  time.Time
}

func TestSweeperSuite(t *testing.T) {
	suite.Run(t, new(SweeperSuite))
}

func (s *SweeperSuite) SetupTest() {
	s.ctx = context.Background()
	s.ctrl = gomock.NewController(s.T())
	s.store = NewInMemory()
	s.notifs = notifications.NewInMemory()
	s.prefs = notifications.NewInMemoryPreferences()
	s.sender = mocks.NewMockSender(s.ctrl)
	s.baseTime = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	s.sweeper = NewSweeper(s.store, s.notifs, s.prefs,
		NewComposer("noreply@linventaire.app", nil), s.sender)
}

func (s *SweeperSuite) seedUser(userID, email string, notificationIDs ...string) {
	s.Require().NoError(s.prefs.Upsert(s.ctx, &notifications.Preference{
		TenantID: "acme", UserID: userID, Email: email, Locale: "en",
	}))
	for _, id := range notificationIDs {
		s.Require().NoError(s.notifs.Insert(s.ctx, &notifications.Notification{
			ID:                id,
			TenantID:          "acme",
			UserID:            userID,
			Entity:            "invoices",
			EntityID:          "inv-" + id,
			EntityDisplayName: "Invoice " + id,
			Type:              notifications.TypeModified,
			LastNotifiedAt:    s.baseTime,
		}))
		s.Require().NoError(s.store.Append(s.ctx, "acme", userID, id, s.baseTime))
	}
}

func (s *SweeperSuite) remainingBatches() []Batch {
	batches, err := s.store.List(s.ctx, 0)
	s.Require().NoError(err)
	return batches
}

func (s *SweeperSuite) TestDeliversAndClearsBatch() {
	s.seedUser("bob", "bob@example.com", "n1", "n2")

	var sent []byte
	s.sender.EXPECT().
		Send(gomock.Any(), "bob@example.com", gomock.Any()).
		DoAndReturn(func(_ context.Context, _ string, raw []byte) error {
			sent = raw
			return nil
		})

	s.sweeper.Sweep(s.ctx)

	s.Empty(s.remainingBatches())
	s.Contains(string(sent), "2 notifications")
	s.Contains(string(sent), "Invoice n1")
	s.Contains(string(sent), "Invoice n2")
}

func (s *SweeperSuite) TestSingleNotificationUsesEventSubject() {
	s.seedUser("bob", "bob@example.com", "n1")

	var sent []byte
	s.sender.EXPECT().
		Send(gomock.Any(), "bob@example.com", gomock.Any()).
		DoAndReturn(func(_ context.Context, _ string, raw []byte) error {
			sent = raw
			return nil
		})

	s.sweeper.Sweep(s.ctx)

	s.Contains(string(sent), "Activity on Invoice n1")
	s.NotContains(string(sent), "notifications")
}

func (s *SweeperSuite) TestMergedNotificationDigestsOnce() {
	s.seedUser("bob", "bob@example.com", "n1")
	// A later event merging into the unread row queues the same ID again.
	s.Require().NoError(s.store.Append(s.ctx, "acme", "bob", "n1", s.baseTime.Add(time.Minute)))

	var sent []byte
	s.sender.EXPECT().
		Send(gomock.Any(), "bob@example.com", gomock.Any()).
		DoAndReturn(func(_ context.Context, _ string, raw []byte) error {
			sent = raw
			return nil
		})

	s.sweeper.Sweep(s.ctx)

	body := string(sent)
	s.Contains(body, "Activity on Invoice n1")
	s.NotContains(body, "notifications")
	s.Equal(1, strings.Count(body, "Invoice n1: modified"))
}

func (s *SweeperSuite) TestFailedBatchIsClearedAndOthersStillDeliver() {
	s.seedUser("bob", "bob@example.com", "n1")
	s.seedUser("carol", "carol@example.com", "n2")

	s.sender.EXPECT().
		Send(gomock.Any(), "bob@example.com", gomock.Any()).
		Return(errors.New("mailbox unavailable"))
	s.sender.EXPECT().
		Send(gomock.Any(), "carol@example.com", gomock.Any()).
		Return(nil)

	s.sweeper.Sweep(s.ctx)

	// The poison batch is gone too, so the next sweep does not retry it.
	s.Empty(s.remainingBatches())
}

func (s *SweeperSuite) TestUserWithoutEmailIsSkippedAndCleared() {
	s.seedUser("bob", "", "n1")

	s.sweeper.Sweep(s.ctx)

	s.Empty(s.remainingBatches())
}

func (s *SweeperSuite) TestBatchLimitBoundsOneRound() {
	s.seedUser("bob", "bob@example.com", "n1")
	s.seedUser("carol", "carol@example.com", "n2")
	sweeper := NewSweeper(s.store, s.notifs, s.prefs,
		NewComposer("noreply@linventaire.app", nil), s.sender, WithBatchLimit(1))

	s.sender.EXPECT().Send(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil)

	sweeper.Sweep(s.ctx)

	s.Len(s.remainingBatches(), 1)
}

func (s *SweeperSuite) TestMergedEventTypesListedOnce() {
	s.Require().NoError(s.prefs.Upsert(s.ctx, &notifications.Preference{
		TenantID: "acme", UserID: "bob", Email: "bob@example.com", Locale: "fr",
	}))
	s.Require().NoError(s.notifs.Insert(s.ctx, &notifications.Notification{
		ID:                "n1",
		TenantID:          "acme",
		UserID:            "bob",
		Entity:            "invoices",
		EntityID:          "inv-1",
		EntityDisplayName: "Invoice #1",
		Type:              notifications.TypeCommented,
		Also: []notifications.Entry{
			{Type: notifications.TypeCommented},
			{Type: notifications.TypeMentioned},
		},
		LastNotifiedAt: s.baseTime,
	}))
	s.Require().NoError(s.store.Append(s.ctx, "acme", "bob", "n1", s.baseTime))

	var sent []byte
	s.sender.EXPECT().
		Send(gomock.Any(), "bob@example.com", gomock.Any()).
		DoAndReturn(func(_ context.Context, _ string, raw []byte) error {
			sent = raw
			return nil
		})

	s.sweeper.Sweep(s.ctx)

	body := string(sent)
	s.Equal(1, strings.Count(body, notifications.TypeCommented+", "+notifications.TypeMentioned))
}

func (s *SweeperSuite) TestRunStopsOnContextCancel() {
	ctx, cancel := context.WithCancel(s.ctx)
	done := make(chan struct{})
	sweeper := NewSweeper(s.store, s.notifs, s.prefs,
		NewComposer("noreply@linventaire.app", nil), s.sender, WithInterval(time.Hour))
	go func() {
		sweeper.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		s.Fail("sweeper did not stop")
	}
}
