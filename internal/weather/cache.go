package weather

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/smukkama/solar-watch/internal/metrics"
	"github.com/smukkama/solar-watch/internal/performance"
)

// Cache is the subset of the Redis client used for weather lookups
type Cache interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

// CachedSource memoizes another Source in Redis. Archive values for a past
// day do not change, so entries live for the configured TTL.
type CachedSource struct {
	source  Source
	cache   Cache
	ttl     time.Duration
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewCachedSource wraps source with a Redis cache
func NewCachedSource(source Source, cache Cache, ttl time.Duration, logger *slog.Logger, m *metrics.Metrics) *CachedSource {
	return &CachedSource{source: source, cache: cache, ttl: ttl, logger: logger, metrics: m}
}

func cacheKey(lat, lon float64, date string) string {
	return fmt.Sprintf("weather:%.4f:%.4f:%s", lat, lon, date)
}

// Daily serves from the cache when possible. Cache failures fall back to the
// wrapped source.
func (s *CachedSource) Daily(ctx context.Context, lat, lon float64, date string) (*performance.Weather, error) {
	key := cacheKey(lat, lon, date)

	data, err := s.cache.Get(ctx, key).Result()
	switch {
	case err == nil:
		var w performance.Weather
		if jsonErr := json.Unmarshal([]byte(data), &w); jsonErr == nil {
			s.metrics.CacheHit()
			return &w, nil
		}
		s.logger.Warn("discarding unreadable weather cache entry", "key", key)
	case errors.Is(err, redis.Nil):
	default:
		s.logger.Warn("weather cache unavailable", "key", key, "error", err)
	}
	s.metrics.CacheMiss()

	w, err := s.source.Daily(ctx, lat, lon, date)
	if err != nil {
		return nil, err
	}

	encoded, err := json.Marshal(w)
	if err != nil {
		return w, nil
	}
	if err := s.cache.Set(ctx, key, encoded, s.ttl).Err(); err != nil {
		s.logger.Warn("failed to store weather in cache", "key", key, "error", err)
	}
	return w, nil
}
