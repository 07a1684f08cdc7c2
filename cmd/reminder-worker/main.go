package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/clinicore/clinic-backend/internal/appointment"
	"github.com/clinicore/clinic-backend/internal/bus"
	"github.com/clinicore/clinic-backend/internal/config"
	"github.com/clinicore/clinic-backend/internal/db"
	"github.com/clinicore/clinic-backend/internal/eventsourcing"
	"github.com/clinicore/clinic-backend/internal/eventstore"
	"github.com/clinicore/clinic-backend/internal/logger"
	redisclient "github.com/clinicore/clinic-backend/internal/redis"
)

// reminderChannel is what we record on the appointment stream. Actual
// delivery is a concern of the notification system consuming the bus.
const reminderChannel = "email"

func main() {
	cfg, err := config.Load()
	if err != nil {
		os.Stderr.WriteString("config load error: " + err.Error() + "\n")
		os.Exit(1)
	}

	log, err := logger.New(cfg.Env)
	if err != nil {
		os.Stderr.WriteString("logger init error: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("reminder-worker starting",
		zap.String("env", cfg.Env),
		zap.Duration("interval", cfg.WorkerInterval),
		zap.Duration("window", cfg.ReminderWindow))

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
	cancelPg()
	if err != nil {
		log.Fatal("postgres connection error", zap.Error(err))
	}
	defer pgPool.Close()

	rdb, err := redisclient.NewRedisClient(cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
	if err != nil {
		log.Fatal("redis connection error", zap.Error(err))
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			log.Warn("error closing redis", zap.Error(err))
		}
	}()

	store := eventstore.NewPgStore(pgPool)
	snaps := eventstore.NewCachedSnapshotStore(store, rdb, cfg.SnapshotTTL)
	publisher := bus.NewRedisPublisher(rdb, cfg.BusMaxLen)
	locker := redisclient.NewRedisAggregateLocker(rdb, cfg.LockTTL)
	svc := appointment.NewService(store, snaps, publisher, locker, log, cfg.SnapshotEvery)

	w := &worker{store: store, svc: svc, window: cfg.ReminderWindow, log: log}

	// run once at startup, then on the ticker
	w.runOnce(rootCtx)

	ticker := time.NewTicker(cfg.WorkerInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rootCtx.Done():
			log.Info("shutdown signal received, stopping reminder worker")
			return
		case <-ticker.C:
			w.runOnce(rootCtx)
		}
	}
}

type worker struct {
	store  *eventstore.PgStore
	svc    *appointment.Service
	window time.Duration
	log    *zap.Logger
}

// runOnce scans the snapshot projection for appointments due within the
// window and records a reminder on each stream that has none yet. The
// aggregate itself re-checks terminal state, so a stale projection row is a
// skipped iteration rather than a wrong event.
func (w *worker) runOnce(ctx context.Context) {
	runCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	start := time.Now()
	correlationID := "reminder-run-" + uuid.New().String()

	ids, err := w.store.DueReminders(runCtx, start.UTC(), w.window)
	if err != nil {
		w.log.Error("due reminder scan failed", zap.Error(err))
		return
	}

	sent := 0
	for _, id := range ids {
		a, err := w.svc.Get(runCtx, id)
		if err != nil {
			w.log.Error("load appointment failed", zap.String("appointment_id", id.String()), zap.Error(err))
			continue
		}
		if len(a.Reminders()) > 0 {
			continue
		}

		_, err = w.svc.RecordReminderSent(runCtx, id, reminderChannel, time.Now().UTC(), "sent", correlationID)
		if err != nil {
			// a concurrent command may have moved the visit to a terminal
			// state between the scan and the append
			var de *eventsourcing.DomainError
			if errors.As(err, &de) {
				w.log.Debug("skipping reminder", zap.String("appointment_id", id.String()), zap.String("kind", string(de.Kind)))
				continue
			}
			w.log.Error("record reminder failed", zap.String("appointment_id", id.String()), zap.Error(err))
			continue
		}
		sent++
	}

	w.log.Info("reminder run complete",
		zap.Int("due", len(ids)),
		zap.Int("sent", sent),
		zap.Duration("took", time.Since(start)))
}
