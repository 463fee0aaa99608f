package threads

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/L-Inventaire/linventaire.app-sub000/pkg/platform/sentinel"
	platstrings "github.com/L-Inventaire/linventaire.app-sub000/pkg/platform/strings"
	"github.com/L-Inventaire/linventaire.app-sub000/pkg/requestcontext"
)

// Service owns thread membership. All operations are idempotent.
type Service struct {
	store  Store
	logger *slog.Logger
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func NewService(store Store, opts ...Option) *Service {
	s := &Service{store: store, logger: slog.New(slog.DiscardHandler)}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Ensure creates the thread on first touch (even with no initial members)
// and unions in users. It also resets the cleared flag: a record touched
// after deletion-cleanup gets a live thread again.
func (s *Service) Ensure(ctx context.Context, tenantID, recordType, recordID string, users []string) (*Thread, error) {
	if tenantID == "" || recordType == "" || recordID == "" {
		return nil, fmt.Errorf("thread key requires tenant, record type and record id")
	}

	thread, err := s.store.Get(ctx, tenantID, recordType, recordID)
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		now := requestcontext.Now(ctx)
		thread = &Thread{
			TenantID:    tenantID,
			RecordType:  recordType,
			RecordID:    recordID,
			Subscribers: platstrings.DedupeAndTrim(users),
			CreatedAt:   now,
			UpdatedAt:   now,
		}
	case err != nil:
		return nil, fmt.Errorf("ensure thread: %w", err)
	default:
		thread.Subscribers = platstrings.Union(thread.Subscribers, platstrings.DedupeAndTrim(users))
		thread.Cleared = false
		thread.UpdatedAt = requestcontext.Now(ctx)
	}

	if err := s.store.Upsert(ctx, thread); err != nil {
		return nil, fmt.Errorf("ensure thread: %w", err)
	}
	return thread, nil
}

// RemoveUsers drops users from the thread's membership. No-op when the
// thread does not exist.
func (s *Service) RemoveUsers(ctx context.Context, tenantID, recordType, recordID string, users []string) error {
	thread, err := s.store.Get(ctx, tenantID, recordType, recordID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("remove thread users: %w", err)
	}

	thread.Subscribers = platstrings.Difference(thread.Subscribers, users)
	thread.UpdatedAt = requestcontext.Now(ctx)
	return s.store.Upsert(ctx, thread)
}

// Clear empties the membership when the owning record is deleted. The thread
// row survives so history and late notifications keep a stable key.
func (s *Service) Clear(ctx context.Context, tenantID, recordType, recordID string) error {
	thread, err := s.store.Get(ctx, tenantID, recordType, recordID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("clear thread: %w", err)
	}
	if len(thread.Subscribers) == 0 && thread.Cleared {
		return nil
	}

	thread.Subscribers = nil
	thread.Cleared = true
	thread.UpdatedAt = requestcontext.Now(ctx)
	if err := s.store.Upsert(ctx, thread); err != nil {
		return fmt.Errorf("clear thread: %w", err)
	}
	s.logger.Debug("thread cleared", "record_type", recordType, "record_id", recordID)
	return nil
}

// Get returns the thread, or nil when the record was never touched.
func (s *Service) Get(ctx context.Context, tenantID, recordType, recordID string) (*Thread, error) {
	thread, err := s.store.Get(ctx, tenantID, recordType, recordID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get thread: %w", err)
	}
	return thread, nil
}

// Subscribers returns the current membership, empty when the thread is
// absent or cleared.
func (s *Service) Subscribers(ctx context.Context, tenantID, recordType, recordID string) ([]string, error) {
	thread, err := s.Get(ctx, tenantID, recordType, recordID)
	if err != nil || thread == nil {
		return nil, err
	}
	return thread.Subscribers, nil
}
