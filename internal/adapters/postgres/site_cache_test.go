package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kevin07696/purchase-service/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type countingSites struct {
	sites map[string]*domain.Site
	calls int
}

func (c *countingSites) GetSite(_ context.Context, siteID string) (*domain.Site, error) {
	c.calls++
	s, ok := c.sites[siteID]
	if !ok {
		return nil, ErrSiteNotFound
	}
	cp := *s
	return &cp, nil
}

func newCountingSites(ids ...string) *countingSites {
	c := &countingSites{sites: make(map[string]*domain.Site)}
	for _, id := range ids {
		c.sites[id] = &domain.Site{ID: id, Billers: []domain.Biller{{Name: "rocketgate"}}}
	}
	return c
}

func TestCachedSiteRepository_HitsWithinTTL(t *testing.T) {
	next := newCountingSites("a")
	cache := NewCachedSiteRepository(next, zap.NewNop(), time.Minute, 10)

	first, err := cache.GetSite(context.Background(), "a")
	require.NoError(t, err)
	first.Billers[0].Name = "mutated"

	second, err := cache.GetSite(context.Background(), "a")
	require.NoError(t, err)

	assert.Equal(t, 1, next.calls)
	assert.Equal(t, "rocketgate", second.Billers[0].Name)
}

func TestCachedSiteRepository_ExpiredEntryReloads(t *testing.T) {
	next := newCountingSites("a")
	cache := NewCachedSiteRepository(next, zap.NewNop(), time.Minute, 10)
	now := time.Now()
	cache.now = func() time.Time { return now }

	_, err := cache.GetSite(context.Background(), "a")
	require.NoError(t, err)

	now = now.Add(2 * time.Minute)
	_, err = cache.GetSite(context.Background(), "a")
	require.NoError(t, err)

	assert.Equal(t, 2, next.calls)
}

func TestCachedSiteRepository_ErrorsAreNotCached(t *testing.T) {
	next := newCountingSites()
	cache := NewCachedSiteRepository(next, zap.NewNop(), time.Minute, 10)

	for i := 0; i < 2; i++ {
		_, err := cache.GetSite(context.Background(), "missing")
		assert.True(t, errors.Is(err, ErrSiteNotFound))
	}
	assert.Equal(t, 2, next.calls)
	assert.Equal(t, 0, cache.Len())
}

func TestCachedSiteRepository_EvictsOldest(t *testing.T) {
	next := newCountingSites("a", "b", "c")
	cache := NewCachedSiteRepository(next, zap.NewNop(), time.Minute, 2)
	now := time.Now()
	cache.now = func() time.Time { return now }

	for _, id := range []string{"a", "b", "c"} {
		now = now.Add(time.Second)
		_, err := cache.GetSite(context.Background(), id)
		require.NoError(t, err)
	}

	assert.Equal(t, 2, cache.Len())
	_, stillCached := cache.cache.Load("a")
	assert.False(t, stillCached)
}

func TestCachedSiteRepository_Invalidate(t *testing.T) {
	next := newCountingSites("a")
	cache := NewCachedSiteRepository(next, zap.NewNop(), time.Minute, 10)

	_, _ = cache.GetSite(context.Background(), "a")
	cache.Invalidate("a")
	_, _ = cache.GetSite(context.Background(), "a")
	cache.InvalidateAll()

	assert.Equal(t, 2, next.calls)
	assert.Equal(t, 0, cache.Len())
}
