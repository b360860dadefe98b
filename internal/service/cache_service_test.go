package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/tutorlink-api/internal/repository"
	appErrors "github.com/noah-isme/tutorlink-api/pkg/errors"
)

var _ CacheRepository = (*repository.CacheRepository)(nil)

type memoryCacheRepo struct {
	values  map[string][]byte
	getErr  error
	deleted []string
	ttls    map[string]time.Duration
}

func newMemoryCacheRepo() *memoryCacheRepo {
	return &memoryCacheRepo{values: map[string][]byte{}, ttls: map[string]time.Duration{}}
}

func (m *memoryCacheRepo) Get(ctx context.Context, key string, dest interface{}) error {
	if m.getErr != nil {
		return m.getErr
	}
	raw, ok := m.values[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (m *memoryCacheRepo) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.values[key] = raw
	m.ttls[key] = ttl
	return nil
}

func (m *memoryCacheRepo) Delete(ctx context.Context, keys ...string) error {
	for _, key := range keys {
		delete(m.values, key)
		m.deleted = append(m.deleted, key)
	}
	return nil
}

func TestCacheServiceRoundTripAndMetrics(t *testing.T) {
	repo := newMemoryCacheRepo()
	metrics := NewMetricsService()
	svc := NewCacheService(repo, metrics, time.Minute, nil, true)

	var out map[string]int
	assert.False(t, svc.Get(context.Background(), "k", &out))

	svc.Set(context.Background(), "k", map[string]int{"a": 1}, 0)
	assert.Equal(t, time.Minute, repo.ttls["k"])
	require.True(t, svc.Get(context.Background(), "k", &out))
	assert.Equal(t, 1, out["a"])

	snapshot := metrics.Snapshot()
	assert.Equal(t, uint64(1), snapshot.CacheHits)
	assert.Equal(t, uint64(1), snapshot.CacheMisses)

	svc.Invalidate(context.Background(), "k")
	assert.False(t, svc.Get(context.Background(), "k", &out))
}

func TestCacheServiceDisabledAndErrors(t *testing.T) {
	repo := newMemoryCacheRepo()
	disabled := NewCacheService(repo, nil, 0, nil, false)
	disabled.Set(context.Background(), "k", 1, 0)
	assert.Empty(t, repo.values)

	repo.getErr = errors.New("connection refused")
	svc := NewCacheService(repo, nil, 0, nil, true)
	var out int
	assert.False(t, svc.Get(context.Background(), "k", &out))

	var nilSvc *CacheService
	assert.False(t, nilSvc.Enabled())
	assert.Equal(t, "availability:t1", AvailabilityKey("t1"))
}

func TestCacheServiceOverRedisRepositoryWithoutClient(t *testing.T) {
	metrics := NewMetricsService()
	svc := NewCacheService(repository.NewCacheRepository(nil, nil), metrics, time.Minute, nil, true)

	svc.Set(context.Background(), AvailabilityKey("t1"), map[string]int{"a": 1}, 0)
	var out map[string]int
	assert.False(t, svc.Get(context.Background(), AvailabilityKey("t1"), &out))
	svc.Invalidate(context.Background(), AvailabilityKey("t1"))

	assert.Equal(t, uint64(1), metrics.Snapshot().CacheMisses)
}
