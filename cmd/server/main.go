// Command server runs the mutation pipeline behind the records API:
// trigger dispatch on every write, audit history, subscription threads,
// notification fan-out, and the periodic e-mail digest sweep.
package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"

	"github.com/L-Inventaire/linventaire.app-sub000/internal/comments"
	"github.com/L-Inventaire/linventaire.app-sub000/internal/digest"
	"github.com/L-Inventaire/linventaire.app-sub000/internal/entities"
	"github.com/L-Inventaire/linventaire.app-sub000/internal/history"
	"github.com/L-Inventaire/linventaire.app-sub000/internal/notifications"
	"github.com/L-Inventaire/linventaire.app-sub000/internal/platform/config"
	"github.com/L-Inventaire/linventaire.app-sub000/internal/platform/httpserver"
	"github.com/L-Inventaire/linventaire.app-sub000/internal/platform/logger"
	"github.com/L-Inventaire/linventaire.app-sub000/internal/platform/metrics"
	"github.com/L-Inventaire/linventaire.app-sub000/internal/platform/middleware"
	platformredis "github.com/L-Inventaire/linventaire.app-sub000/internal/platform/redis"
	"github.com/L-Inventaire/linventaire.app-sub000/internal/propagation"
	"github.com/L-Inventaire/linventaire.app-sub000/internal/records"
	"github.com/L-Inventaire/linventaire.app-sub000/internal/registry"
	"github.com/L-Inventaire/linventaire.app-sub000/internal/threads"
	httptransport "github.com/L-Inventaire/linventaire.app-sub000/internal/transport/http"
	"github.com/L-Inventaire/linventaire.app-sub000/internal/triggers"
)

func main() {
	cfg := config.FromEnv()
	log := logger.New(slog.LevelInfo)

	if err := run(cfg, log); err != nil {
		log.Error("server exited", "error", err.Error())
		os.Exit(1)
	}
}

func run(cfg config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := registry.New()
	if err := entities.RegisterAll(reg, registry.Access{}); err != nil {
		return err
	}
	if err := reg.RegisterEntities(registry.Access{}, comments.Definition()); err != nil {
		return err
	}

	m := metrics.New()
	engine := triggers.NewEngine(reg, triggers.WithLogger(log), triggers.WithMetrics(m))

	// Storage. Postgres when configured, in-memory otherwise.
	var (
		recordStore       records.Store
		historyStore      history.Store
		threadStore       threads.Store
		notificationStore notifications.Store
		preferenceStore   notifications.PreferenceStore
		digestStore       digest.Store
	)
	if cfg.PostgresURL != "" {
		db, err := sql.Open("postgres", cfg.PostgresURL)
		if err != nil {
			return err
		}
		defer db.Close()
		if err := ensureSchemas(ctx, db); err != nil {
			return err
		}
		pg := notifications.NewPostgres(db)
		recordStore = records.NewPostgres(db, engine)
		historyStore = history.NewPostgres(db)
		threadStore = threads.NewPostgres(db)
		notificationStore = pg
		preferenceStore = pg
		digestStore = digest.NewPostgres(db)
		log.Info("using postgres storage")
	} else {
		mem := notifications.NewInMemory()
		recordStore = records.NewInMemory(engine)
		historyStore = history.NewInMemory()
		threadStore = threads.NewInMemory()
		notificationStore = mem
		preferenceStore = notifications.NewInMemoryPreferences()
		digestStore = digest.NewInMemory()
		log.Warn("POSTGRES_URL not set, using in-memory storage")
	}

	// Preference cache. Redis shares it across replicas when configured.
	var preferenceCache notifications.PreferenceCache
	if cfg.Redis.URL != "" {
		redisClient, err := platformredis.New(cfg.Redis)
		if err != nil {
			return err
		}
		defer redisClient.Close()
		preferenceCache = notifications.NewRedisCache(redisClient.Client, cfg.PreferenceCacheTTL)
		log.Info("using redis preference cache")
	} else {
		preferenceCache = notifications.NewTTLCache(cfg.PreferenceCacheTTL)
	}

	threadSvc := threads.NewService(threadStore, threads.WithLogger(log))
	notifySvc := notifications.NewService(notificationStore, preferenceStore, preferenceCache, threadSvc,
		notifications.WithLogger(log),
		notifications.WithMetrics(m),
		notifications.WithDigestQueue(digestStore),
	)

	// Trigger registrations. Order matters only within equal priorities;
	// audit history pins itself after everything with PriorityLast.
	prop := propagation.New(threadSvc, notifySvc, reg, propagation.WithLogger(log))
	if err := prop.RegisterMentionTrigger(engine); err != nil {
		return err
	}
	if err := prop.RegisterAssignmentTrigger(engine); err != nil {
		return err
	}
	if err := prop.RegisterStateChangeTrigger(engine); err != nil {
		return err
	}
	commentHandlers := comments.New(recordStore, threadSvc, notifySvc, comments.WithLogger(log))
	if err := commentHandlers.Register(engine); err != nil {
		return err
	}
	if err := history.RegisterTrigger(engine, historyStore,
		history.WithLogger(log), history.WithMetrics(m)); err != nil {
		return err
	}

	// Digest sweep.
	var sender digest.Sender
	if cfg.SMTP.Addr != "" {
		sender = digest.NewSMTPSender(cfg.SMTP.Addr, cfg.SMTP.From, cfg.SMTP.Username, cfg.SMTP.Password)
	} else {
		sender = digest.NewLogSender(log)
		log.Warn("SMTP_ADDR not set, digests are logged instead of sent")
	}
	composer := digest.NewComposer(cfg.SMTP.From, digest.NewRecordAttachmentLoader(recordStore))
	sweeper := digest.NewSweeper(digestStore, notificationStore, preferenceStore, composer, sender,
		digest.WithLogger(log),
		digest.WithMetrics(m),
		digest.WithInterval(cfg.DigestInterval),
		digest.WithBatchLimit(cfg.DigestBatchLimit),
	)
	go sweeper.Run(ctx)

	handler := httptransport.NewHandler(notifySvc, history.NewService(historyStore), log)
	router := httptransport.NewRouter(handler, middleware.NewJWTValidator(cfg.JWTSigningKey), log)
	srv := httpserver.New(cfg.Addr, router)

	errCh := make(chan error, 1)
	go func() {
		log.Info("server listening", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func ensureSchemas(ctx context.Context, db *sql.DB) error {
	for _, ensure := range []func(context.Context, *sql.DB) error{
		records.EnsureSchema,
		history.EnsureSchema,
		threads.EnsureSchema,
		notifications.EnsureSchema,
		digest.EnsureSchema,
	} {
		if err := ensure(ctx, db); err != nil {
			return err
		}
	}
	return nil
}
