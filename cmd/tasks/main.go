package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"taskmanager/internal/logging"
	"taskmanager/internal/server"
	"taskmanager/internal/service"
	db "taskmanager/repository/db"
	inmemory "taskmanager/repository/inmemory"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const shutdownTimeout = 30 * time.Second

// store is the backend the API is built on; both storages satisfy it.
type store interface {
	service.UserRepository
	service.TaskRepository
}

func main() {
	cfg, err := server.ReadConfig(os.Args[1:])
	if err != nil {
		logrus.WithError(err).Fatal("failed to read configuration")
	}
	log := logging.New(cfg.LogLevel, cfg.LogFormat, os.Stdout)
	log.Info("starting task service")

	if cfg.JWTSecret == "" {
		cfg.JWTSecret = uuid.NewString()
		log.Warn("JWT_SECRET is not set, using a random secret; tokens will not survive a restart")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, closeStore := openStore(ctx, cfg, log)
	defer closeStore()

	api := server.NewTaskAPI(st, st, cfg, log)
	if api == nil {
		log.Fatal("failed to initialise API")
	}

	if err := serve(ctx, api, log); err != nil {
		log.WithError(err).Error("server stopped with error")
		closeStore()
		os.Exit(1)
	}
	log.Info("task service stopped")
}

// openStore applies migrations and connects to PostgreSQL, falling back to
// the in-memory store when either step fails.
func openStore(ctx context.Context, cfg *server.Config, log logrus.FieldLogger) (store, func()) {
	if err := db.Migration(cfg.DBStr, cfg.MigratePath); err != nil {
		log.WithError(err).Warn("failed to apply migrations, using in-memory storage")
		return inmemory.NewStorage(), func() {}
	}
	log.Info("migrations applied")

	pg, err := db.NewStorage(ctx, cfg.DBStr, log)
	if err != nil {
		log.WithError(err).Warn("failed to connect to database, using in-memory storage")
		return inmemory.NewStorage(), func() {}
	}
	return pg, pg.Close
}

type lifecycle interface {
	Start() error
	Shutdown(ctx context.Context) error
}

// serve runs api until ctx is cancelled or the server fails, then shuts it
// down within shutdownTimeout.
func serve(ctx context.Context, api lifecycle, log logrus.FieldLogger) error {
	serverErr := make(chan error, 1)
	go func() {
		serverErr <- api.Start()
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-serverErr:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := api.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("graceful shutdown failed")
		return err
	}
	log.Info("graceful shutdown complete")
	return nil
}
