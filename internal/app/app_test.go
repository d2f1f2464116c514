package app

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smukkama/solar-watch/internal/database"
	"github.com/smukkama/solar-watch/internal/events"
	"github.com/smukkama/solar-watch/internal/logging"
	"github.com/smukkama/solar-watch/pkg/config"
)

func sqliteConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Database: config.DatabaseConfig{
			Driver: config.DriverSQLite,
			Path:   filepath.Join(t.TempDir(), "nested", "solar.db"),
		},
	}
}

func TestOpen_SQLite(t *testing.T) {
	ctx := context.Background()
	a, err := Open(ctx, sqliteConfig(t), logging.Discard())
	require.NoError(t, err)
	defer a.Close()

	assert.Equal(t, database.DriverSQLite, a.DB.Driver())
	assert.IsType(t, events.NopPublisher{}, a.Publisher)

	counts, err := a.Manager(nil).Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, database.Counts{}, *counts)

	client, err := a.Redis(ctx)
	require.NoError(t, err)
	assert.Nil(t, client)
}

func TestOpen_MigrationsAreIdempotent(t *testing.T) {
	ctx := context.Background()
	cfg := sqliteConfig(t)

	a, err := Open(ctx, cfg, logging.Discard())
	require.NoError(t, err)
	require.NoError(t, a.Close())

	a, err = Open(ctx, cfg, logging.Discard())
	require.NoError(t, err)
	assert.NoError(t, a.Close())
}

func TestOpen_KafkaPublisher(t *testing.T) {
	cfg := sqliteConfig(t)
	cfg.Kafka = config.KafkaConfig{Brokers: []string{"localhost:9092"}, TopicAlerts: "solar.alerts"}

	a, err := Open(context.Background(), cfg, logging.Discard())
	require.NoError(t, err)
	defer a.Close()

	assert.IsType(t, &events.Producer{}, a.Publisher)
}
