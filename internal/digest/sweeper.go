package digest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/L-Inventaire/linventaire.app-sub000/internal/notifications"
	"github.com/L-Inventaire/linventaire.app-sub000/internal/platform/metrics"
	"github.com/L-Inventaire/linventaire.app-sub000/pkg/platform/sentinel"
	setstrings "github.com/L-Inventaire/linventaire.app-sub000/pkg/platform/strings"
)

const sweepConcurrency = 4

// Sweeper periodically drains digest batches into e-mails. Batches are
// isolated from each other: one recipient's failure is logged and their
// batch is still deleted, so a poison batch can never wedge the sweep.
type Sweeper struct {
	store         Store
	notifications notifications.Store
	preferences   notifications.PreferenceStore
	composer      *Composer
	sender        Sender
	interval      time.Duration
	batchLimit    int
	logger        *slog.Logger
	metrics       *metrics.Metrics
}

type SweeperOption func(*Sweeper)

func WithLogger(logger *slog.Logger) SweeperOption {
	return func(s *Sweeper) { s.logger = logger }
}

func WithMetrics(m *metrics.Metrics) SweeperOption {
	return func(s *Sweeper) { s.metrics = m }
}

func WithInterval(d time.Duration) SweeperOption {
	return func(s *Sweeper) { s.interval = d }
}

func WithBatchLimit(n int) SweeperOption {
	return func(s *Sweeper) { s.batchLimit = n }
}

func NewSweeper(store Store, notificationStore notifications.Store, prefs notifications.PreferenceStore, composer *Composer, sender Sender, opts ...SweeperOption) *Sweeper {
	s := &Sweeper{
		store:         store,
		notifications: notificationStore,
		preferences:   prefs,
		composer:      composer,
		sender:        sender,
		interval:      5 * time.Minute,
		batchLimit:    100,
		logger:        slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run sweeps on the configured interval until the context is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep drains one round of pending batches. Per-batch errors are logged
// and counted, never returned; only listing failures abort the round.
func (s *Sweeper) Sweep(ctx context.Context) {
	batches, err := s.store.List(ctx, s.batchLimit)
	if err != nil {
		s.logger.ErrorContext(ctx, "list digest batches", slog.String("error", err.Error()))
		return
	}
	if len(batches) == 0 {
		return
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(sweepConcurrency)
	for _, batch := range batches {
		group.Go(func() error {
			if err := s.deliver(groupCtx, batch); err != nil {
				s.logger.WarnContext(groupCtx, "digest delivery failed",
					slog.String("client_id", batch.TenantID),
					slog.String("user_id", batch.UserID),
					slog.String("error", err.Error()))
				if s.metrics != nil {
					s.metrics.DigestFailures.Inc()
				}
			}
			return nil
		})
	}
	_ = group.Wait()
}

// deliver composes and sends one batch's e-mail. The batch row is deleted
// no matter how delivery goes.
func (s *Sweeper) deliver(ctx context.Context, batch Batch) (err error) {
	defer func() {
		if deleteErr := s.store.Delete(ctx, batch.TenantID, batch.UserID); deleteErr != nil {
			err = errors.Join(err, fmt.Errorf("delete digest batch: %w", deleteErr))
		}
	}()

	pref, err := s.preferences.Get(ctx, batch.TenantID, batch.UserID)
	if errors.Is(err, sentinel.ErrNotFound) || (err == nil && pref.Email == "") {
		return fmt.Errorf("user %s has no digest e-mail address", batch.UserID)
	}
	if err != nil {
		return fmt.Errorf("load preference: %w", err)
	}

	// A notification that merged more than once appears in the batch under
	// the same ID each time; each notification gets one body line.
	list, err := s.notifications.GetByIDs(ctx, batch.TenantID, setstrings.DedupeAndTrim(batch.NotificationIDs))
	if err != nil {
		return fmt.Errorf("load notifications: %w", err)
	}
	if len(list) == 0 {
		return nil
	}

	raw, err := s.composer.Compose(ctx, pref.Email, pref.Locale, list, batch.CreatedAt)
	if err != nil {
		return err
	}
	if err := s.sender.Send(ctx, pref.Email, raw); err != nil {
		return err
	}

	if s.metrics != nil {
		s.metrics.DigestEmailsSent.Inc()
	}
	s.logger.DebugContext(ctx, "digest sent",
		slog.String("client_id", batch.TenantID),
		slog.String("user_id", batch.UserID),
		slog.Int("notifications", len(list)))
	return nil
}
