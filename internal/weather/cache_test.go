package weather

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/smukkama/solar-watch/internal/performance"
)

type memoryCache struct {
	data    map[string]string
	ttls    map[string]time.Duration
	failGet error
	failSet error
}

func newMemoryCache() *memoryCache {
	return &memoryCache{data: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (m *memoryCache) Get(ctx context.Context, key string) *redis.StringCmd {
	if m.failGet != nil {
		return redis.NewStringResult("", m.failGet)
	}
	v, ok := m.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (m *memoryCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd {
	if m.failSet != nil {
		return redis.NewStatusResult("", m.failSet)
	}
	m.data[key] = string(value.([]byte))
	m.ttls[key] = expiration
	return redis.NewStatusResult("OK", nil)
}

type countingSource struct {
	calls int
	w     *performance.Weather
	err   error
}

func (s *countingSource) Daily(ctx context.Context, lat, lon float64, date string) (*performance.Weather, error) {
	s.calls++
	return s.w, s.err
}

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestCachedSource_MissThenHit(t *testing.T) {
	cache := newMemoryCache()
	src := &countingSource{w: &performance.Weather{SunHours: 8, IrradianceKWhM2: 4.2}}
	cs := NewCachedSource(src, cache, time.Hour, discard(), nil)

	for i := 0; i < 3; i++ {
		w, err := cs.Daily(context.Background(), 49.6, 6.1, "2024-06-01")
		if err != nil {
			t.Fatalf("Daily failed: %v", err)
		}
		if w.SunHours != 8 || w.IrradianceKWhM2 != 4.2 {
			t.Errorf("Unexpected weather %+v", w)
		}
	}

	if src.calls != 1 {
		t.Errorf("Expected 1 upstream call, got %d", src.calls)
	}
	if ttl := cache.ttls["weather:49.6000:6.1000:2024-06-01"]; ttl != time.Hour {
		t.Errorf("Expected 1h TTL on cached entry, got %v", ttl)
	}
}

func TestCachedSource_CacheDownFallsBack(t *testing.T) {
	cache := newMemoryCache()
	cache.failGet = errors.New("connection refused")
	cache.failSet = errors.New("connection refused")
	src := &countingSource{w: &performance.Weather{SunHours: 1}}
	cs := NewCachedSource(src, cache, time.Hour, discard(), nil)

	w, err := cs.Daily(context.Background(), 1, 2, "2024-06-01")
	if err != nil {
		t.Fatalf("Expected fallback to source, got %v", err)
	}
	if w.SunHours != 1 {
		t.Errorf("Unexpected weather %+v", w)
	}
}

func TestCachedSource_SourceErrorNotCached(t *testing.T) {
	cache := newMemoryCache()
	src := &countingSource{err: ErrNoData}
	cs := NewCachedSource(src, cache, time.Hour, discard(), nil)

	if _, err := cs.Daily(context.Background(), 1, 2, "2024-06-01"); !errors.Is(err, ErrNoData) {
		t.Errorf("Expected ErrNoData, got %v", err)
	}
	if len(cache.data) != 0 {
		t.Error("Errors must not be cached")
	}
}

func TestCachedSource_CorruptEntry(t *testing.T) {
	cache := newMemoryCache()
	cache.data[cacheKey(1, 2, "2024-06-01")] = "{broken"
	src := &countingSource{w: &performance.Weather{SunHours: 3}}
	cs := NewCachedSource(src, cache, time.Hour, discard(), nil)

	w, err := cs.Daily(context.Background(), 1, 2, "2024-06-01")
	if err != nil {
		t.Fatalf("Daily failed: %v", err)
	}
	if w.SunHours != 3 || src.calls != 1 {
		t.Errorf("Corrupt entry should be refetched, got %+v after %d calls", w, src.calls)
	}
}
