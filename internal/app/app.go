// Package app wires configuration into the shared runtime pieces every
// command needs: logger, store, event publisher and lifecycle manager.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/redis/go-redis/v9"

	"github.com/smukkama/solar-watch/internal/alerting"
	"github.com/smukkama/solar-watch/internal/database"
	"github.com/smukkama/solar-watch/internal/events"
	"github.com/smukkama/solar-watch/internal/logging"
	"github.com/smukkama/solar-watch/internal/metrics"
	"github.com/smukkama/solar-watch/pkg/config"
)

// App holds the runtime built from a Config
type App struct {
	Config    *config.Config
	Logger    *slog.Logger
	DB        *database.DB
	Publisher events.Publisher
	Metrics   *metrics.Metrics

	closers []io.Closer
}

// Load reads the environment and opens the app
func Load(ctx context.Context) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	logger, closer := logging.New(cfg.Log.Level, cfg.Log.File)
	a, err := Open(ctx, cfg, logger)
	if err != nil {
		closer.Close()
		return nil, err
	}
	a.closers = append(a.closers, closer)
	return a, nil
}

// Open connects the store, applies migrations and starts the event
// publisher when Kafka is configured
func Open(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	if cfg.Database.Driver == config.DriverSQLite {
		if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := database.Connect(cfg.Database.Driver, cfg.Database.ConnectionString())
	if err != nil {
		return nil, err
	}

	applied, err := db.RunMigrations(ctx)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	for _, name := range applied {
		logger.Debug("migration executed", "name", name)
	}

	a := &App{
		Config:    cfg,
		Logger:    logger,
		DB:        db,
		Publisher: events.NopPublisher{},
		Metrics:   metrics.New(),
	}
	a.closers = append(a.closers, db)

	if cfg.Kafka.Enabled() {
		producer := events.NewProducer(cfg.Kafka)
		a.Publisher = producer
		a.closers = append(a.closers, producer)
		logger.Info("publishing lifecycle events", "brokers", cfg.Kafka.Brokers, "topic", cfg.Kafka.TopicAlerts)
	}

	return a, nil
}

// Manager builds the lifecycle manager. notifier may be nil for surfaces
// that never dispatch.
func (a *App) Manager(notifier alerting.Notifier) *alerting.Manager {
	return alerting.NewManager(a.DB, notifier, a.Publisher, a.Logger).WithMetrics(a.Metrics)
}

// Redis returns a client when REDIS_ADDR is set, nil otherwise
func (a *App) Redis(ctx context.Context) (*redis.Client, error) {
	if !a.Config.Redis.Enabled() {
		return nil, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     a.Config.Redis.Addr,
		Password: a.Config.Redis.Password,
		DB:       a.Config.Redis.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", a.Config.Redis.Addr, err)
	}
	a.closers = append(a.closers, client)
	return client, nil
}

// Close releases everything in reverse order of acquisition
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
