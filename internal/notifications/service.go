package notifications

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/L-Inventaire/linventaire.app-sub000/internal/platform/metrics"
	"github.com/L-Inventaire/linventaire.app-sub000/internal/threads"
	"github.com/L-Inventaire/linventaire.app-sub000/pkg/apperror"
	"github.com/L-Inventaire/linventaire.app-sub000/pkg/platform/sentinel"
	setstrings "github.com/L-Inventaire/linventaire.app-sub000/pkg/platform/strings"
	"github.com/L-Inventaire/linventaire.app-sub000/pkg/requestcontext"
)

// Service fans a notifiable event out to its audience and maintains the
// read/unread lifecycle.
type Service struct {
	store       Store
	preferences PreferenceStore
	cache       PreferenceCache
	threads     *threads.Service
	digests     DigestQueue
	logger      *slog.Logger
	metrics     *metrics.Metrics
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithDigestQueue wires the digest batch store. Without it, notifications
// are still written but nothing is queued for e-mail delivery.
func WithDigestQueue(q DigestQueue) Option {
	return func(s *Service) { s.digests = q }
}

func NewService(store Store, prefs PreferenceStore, cache PreferenceCache, threadSvc *threads.Service, opts ...Option) *Service {
	s := &Service{
		store:       store,
		preferences: prefs,
		cache:       cache,
		threads:     threadSvc,
		logger:      slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NotifyUsers delivers one event to its resolved audience.
//
// The audience is the explicit recipient list plus, unless onlyThem is set,
// the record's thread subscribers and every tenant user whose preferences
// opt into the event type. The acting user never notifies themselves. For
// each recipient, an existing unread row for the same record absorbs the
// event: the row's previous type and metadata are pushed onto its Also
// history (capped at AlsoCap) and the row is re-dated. Otherwise a fresh
// unread row is created. Every delivery is appended to the recipient's
// digest batch.
func (s *Service) NotifyUsers(ctx context.Context, ev Event, explicit []string, onlyThem bool) error {
	if ev.TenantID == "" {
		return apperror.New(apperror.CodeInvariantViolation, "notifications: event without tenant")
	}
	if ev.RecordType == "" || ev.RecordID == "" {
		return apperror.New(apperror.CodeInvariantViolation, "notifications: event without record reference")
	}

	recipients := setstrings.DedupeAndTrim(explicit)
	if !onlyThem {
		subscribers, err := s.threads.Subscribers(ctx, ev.TenantID, ev.RecordType, ev.RecordID)
		if err != nil {
			return fmt.Errorf("resolve thread subscribers: %w", err)
		}
		optIns, err := s.optedInUsers(ctx, ev.TenantID, ev.Type)
		if err != nil {
			return fmt.Errorf("resolve preference opt-ins: %w", err)
		}
		recipients = setstrings.Union(recipients, subscribers, optIns)
	}
	if actor := requestcontext.Actor(ctx); actor != "" {
		recipients = setstrings.Difference(recipients, []string{actor})
	}
	if len(recipients) == 0 {
		return nil
	}

	now := requestcontext.Now(ctx)
	for _, userID := range recipients {
		existing, err := s.store.FindUnread(ctx, ev.TenantID, userID, ev.RecordType, ev.RecordID)
		if err != nil && !errors.Is(err, sentinel.ErrNotFound) {
			return fmt.Errorf("find unread notification: %w", err)
		}

		var notificationID string
		if existing != nil {
			existing.Also = append([]Entry{{Type: existing.Type, Metadata: existing.Metadata}}, existing.Also...)
			if len(existing.Also) > AlsoCap {
				existing.Also = existing.Also[:AlsoCap]
			}
			existing.Type = ev.Type
			existing.Metadata = ev.Metadata
			existing.EntityDisplayName = ev.DisplayName
			existing.LastNotifiedAt = now
			if err := s.store.Update(ctx, existing); err != nil {
				return fmt.Errorf("merge notification: %w", err)
			}
			notificationID = existing.ID
			if s.metrics != nil {
				s.metrics.NotificationsMerged.Inc()
			}
		} else {
			n := &Notification{
				ID:                uuid.NewString(),
				TenantID:          ev.TenantID,
				UserID:            userID,
				Entity:            ev.RecordType,
				EntityID:          ev.RecordID,
				EntityDisplayName: ev.DisplayName,
				Type:              ev.Type,
				Metadata:          ev.Metadata,
				LastNotifiedAt:    now,
			}
			if err := s.store.Insert(ctx, n); err != nil {
				return fmt.Errorf("insert notification: %w", err)
			}
			notificationID = n.ID
			if s.metrics != nil {
				s.metrics.NotificationsCreated.Inc()
			}
		}

		if s.digests != nil {
			if err := s.digests.Append(ctx, ev.TenantID, userID, notificationID, now); err != nil {
				return fmt.Errorf("queue digest entry: %w", err)
			}
		}
	}

	s.logger.DebugContext(ctx, "notifications delivered",
		slog.String("entity", ev.RecordType),
		slog.String("entity_id", ev.RecordID),
		slog.String("type", ev.Type),
		slog.Int("recipients", len(recipients)))
	return nil
}

// optedInUsers resolves tenant users whose preferences list the event type,
// rebuilding the preference cache from the store when stale.
func (s *Service) optedInUsers(ctx context.Context, tenantID, eventType string) ([]string, error) {
	prefs, ok := s.cache.Get(ctx, tenantID)
	if !ok {
		var err error
		prefs, err = s.preferences.ListByTenant(ctx, tenantID)
		if err != nil {
			return nil, err
		}
		s.cache.Set(ctx, tenantID, prefs)
	}
	var users []string
	for _, p := range prefs {
		if p.Wants(eventType) {
			users = append(users, p.UserID)
		}
	}
	return users, nil
}

// List returns a user's notifications, newest first.
func (s *Service) List(ctx context.Context, tenantID, userID string, limit, offset int) ([]Notification, error) {
	if tenantID == "" || userID == "" {
		return nil, apperror.New(apperror.CodeBadRequest, "notifications: tenant and user are required")
	}
	if limit <= 0 {
		limit = 50
	}
	return s.store.ListByUser(ctx, tenantID, userID, limit, offset)
}

// MarkRead marks one notification read. When it was the user's last unread
// notification, the pending digest batch is dropped as well.
func (s *Service) MarkRead(ctx context.Context, tenantID, userID, id string) error {
	if err := s.store.MarkRead(ctx, tenantID, userID, id); err != nil {
		return err
	}
	remaining, err := s.store.CountUnread(ctx, tenantID, userID)
	if err != nil {
		return err
	}
	if remaining == 0 && s.digests != nil {
		return s.digests.Delete(ctx, tenantID, userID)
	}
	return nil
}

// MarkAllRead marks every unread notification read and drops the user's
// pending digest batch: a batch delivered after the user caught up in-app
// would only repeat what they already saw.
func (s *Service) MarkAllRead(ctx context.Context, tenantID, userID string) (int, error) {
	count, err := s.store.MarkAllRead(ctx, tenantID, userID)
	if err != nil {
		return 0, err
	}
	if s.digests != nil {
		if err := s.digests.Delete(ctx, tenantID, userID); err != nil {
			return count, err
		}
	}
	return count, nil
}

// GetPreference returns a user's preference, defaulting to an empty one.
func (s *Service) GetPreference(ctx context.Context, tenantID, userID string) (*Preference, error) {
	pref, err := s.preferences.Get(ctx, tenantID, userID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return &Preference{TenantID: tenantID, UserID: userID}, nil
	}
	if err != nil {
		return nil, err
	}
	return pref, nil
}

// SetPreference stores a user's preference. Cached audiences pick the
// change up after the cache entry expires.
func (s *Service) SetPreference(ctx context.Context, pref *Preference) error {
	if pref.TenantID == "" || pref.UserID == "" {
		return apperror.New(apperror.CodeBadRequest, "notifications: tenant and user are required")
	}
	pref.AlwaysNotified = setstrings.DedupeAndTrim(pref.AlwaysNotified)
	pref.UpdatedAt = requestcontext.Now(ctx)
	return s.preferences.Upsert(ctx, pref)
}
