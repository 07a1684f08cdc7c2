package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/clinicore/clinic-backend/internal/api"
	"github.com/clinicore/clinic-backend/internal/appointment"
	"github.com/clinicore/clinic-backend/internal/bus"
	"github.com/clinicore/clinic-backend/internal/casefile"
	"github.com/clinicore/clinic-backend/internal/config"
	"github.com/clinicore/clinic-backend/internal/db"
	"github.com/clinicore/clinic-backend/internal/eventstore"
	"github.com/clinicore/clinic-backend/internal/logger"
	redisclient "github.com/clinicore/clinic-backend/internal/redis"
)

var version = "dev"

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

	log.Info("api-server starting",
		zap.String("env", cfg.Env),
		zap.String("http_port", cfg.HTTPPort),
		zap.String("version", version))

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
	cancelPg()
	if err != nil {
		log.Fatal("postgres connection error", zap.Error(err))
	}
	defer pgPool.Close()
	log.Info("connected to postgres")

	rdb, err := redisclient.NewRedisClient(cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
	if err != nil {
		log.Fatal("redis connection error", zap.Error(err))
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			log.Warn("error closing redis", zap.Error(err))
		}
	}()
	log.Info("connected to redis")

	store := eventstore.NewPgStore(pgPool)
	snaps := eventstore.NewCachedSnapshotStore(store, rdb, cfg.SnapshotTTL)
	publisher := bus.NewRedisPublisher(rdb, cfg.BusMaxLen)
	locker := redisclient.NewRedisAggregateLocker(rdb, cfg.LockTTL)

	caseSvc := casefile.NewService(store, snaps, publisher, locker, log, cfg.SnapshotEvery)
	apptSvc := appointment.NewService(store, snaps, publisher, locker, log, cfg.SnapshotEvery)

	router := api.NewRouter(api.RouterConfig{
		Cases:        caseSvc,
		Appointments: apptSvc,
		PgPool:       pgPool,
		Redis:        rdb,
		Logger:       log,
		Env:          cfg.Env,
		Version:      version,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info("http server listening", zap.String("addr", srv.Addr))
		serverErr <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("http server error", zap.Error(err))
		}
	case <-rootCtx.Done():
		log.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", zap.Error(err))
	}
	log.Info("api-server stopped")
}
