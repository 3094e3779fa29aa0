package postgres

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/kevin07696/purchase-service/internal/domain"
	"github.com/kevin07696/purchase-service/internal/domain/ports"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

var (
	// siteCacheHits uses no labels to avoid per-hit allocations
	siteCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "site_cache_hits_total",
		Help: "Total number of site configuration cache hits",
	})

	siteCacheMisses = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "site_cache_misses_total",
		Help: "Total number of site configuration cache misses",
	}, []string{"reason"}) // expired, not_found, error, cancelled

	siteCacheSize = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "site_cache_size",
		Help: "Current number of sites in cache",
	})

	siteCacheEvictions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "site_cache_evictions_total",
		Help: "Total number of cache evictions due to size limit",
	})
)

// CachedSiteRepository caches site configuration in front of another
// SiteRepository. Entries expire after ttl.
//
// Eviction is approximate LRU: sync.Map.Range does not guarantee a consistent
// snapshot, so the evicted entries are old but not necessarily the oldest.
type CachedSiteRepository struct {
	cache  sync.Map // map[string]*cachedSite
	next   ports.SiteRepository
	logger *zap.Logger

	ttl     time.Duration
	maxSize int

	accessTimes sync.Map // map[string]time.Time
	mu          sync.Mutex
	now         func() time.Time
}

type cachedSite struct {
	expiresAt time.Time
	site      domain.Site
}

// NewCachedSiteRepository wraps next with a TTL cache
func NewCachedSiteRepository(next ports.SiteRepository, logger *zap.Logger, ttl time.Duration, maxSize int) *CachedSiteRepository {
	return &CachedSiteRepository{
		next:    next,
		logger:  logger,
		ttl:     ttl,
		maxSize: maxSize,
		now:     time.Now,
	}
}

// GetSite returns a copy of the cached site, loading it on a miss.
// Safe for concurrent use.
func (c *CachedSiteRepository) GetSite(ctx context.Context, siteID string) (*domain.Site, error) {
	if val, ok := c.cache.Load(siteID); ok {
		cached := val.(*cachedSite)
		if c.now().Before(cached.expiresAt) {
			c.accessTimes.Store(siteID, c.now())
			siteCacheHits.Inc()
			return copySite(&cached.site), nil
		}
		siteCacheMisses.WithLabelValues("expired").Inc()
	} else {
		siteCacheMisses.WithLabelValues("not_found").Inc()
	}

	return c.fetchAndCache(ctx, siteID)
}

func (c *CachedSiteRepository) fetchAndCache(ctx context.Context, siteID string) (*domain.Site, error) {
	site, err := c.next.GetSite(ctx, siteID)
	if err != nil {
		siteCacheMisses.WithLabelValues("error").Inc()
		return nil, err
	}

	select {
	case <-ctx.Done():
		siteCacheMisses.WithLabelValues("cancelled").Inc()
		return nil, ctx.Err()
	default:
	}

	now := c.now()
	c.cache.Store(siteID, &cachedSite{site: *copySite(site), expiresAt: now.Add(c.ttl)})
	c.accessTimes.Store(siteID, now)
	c.evictIfNeeded()

	c.logger.Debug("Cached site configuration",
		zap.String("site_id", siteID),
		zap.Duration("ttl", c.ttl),
	)
	return site, nil
}

// Invalidate removes a site from the cache
func (c *CachedSiteRepository) Invalidate(siteID string) {
	c.cache.Delete(siteID)
	c.accessTimes.Delete(siteID)
	c.updateCacheSize()
}

// InvalidateAll clears the entire cache
func (c *CachedSiteRepository) InvalidateAll() {
	c.cache.Range(func(key, _ interface{}) bool {
		c.cache.Delete(key)
		c.accessTimes.Delete(key)
		return true
	})
	c.updateCacheSize()
	c.logger.Info("Invalidated entire site cache")
}

// Len returns the number of cached sites
func (c *CachedSiteRepository) Len() int {
	size := 0
	c.cache.Range(func(_, _ interface{}) bool {
		size++
		return true
	})
	return size
}

func (c *CachedSiteRepository) evictIfNeeded() {
	c.mu.Lock()
	defer c.mu.Unlock()

	size := c.Len()
	if c.maxSize <= 0 || size <= c.maxSize {
		siteCacheSize.Set(float64(size))
		return
	}

	type entry struct {
		accessTime time.Time
		id         string
	}
	var entries []entry
	c.accessTimes.Range(func(key, value interface{}) bool {
		entries = append(entries, entry{id: key.(string), accessTime: value.(time.Time)})
		return true
	})
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].accessTime.Before(entries[j].accessTime)
	})

	// Evict an extra 10% to reduce churn
	evictCount := (size - c.maxSize) + (c.maxSize / 10)
	for i := 0; i < evictCount && i < len(entries); i++ {
		c.cache.Delete(entries[i].id)
		c.accessTimes.Delete(entries[i].id)
		siteCacheEvictions.Inc()
	}

	c.updateCacheSize()
}

func (c *CachedSiteRepository) updateCacheSize() {
	siteCacheSize.Set(float64(c.Len()))
}

// copySite detaches the biller slice so callers cannot mutate cached state
func copySite(s *domain.Site) *domain.Site {
	cp := *s
	cp.Billers = append([]domain.Biller(nil), s.Billers...)
	return &cp
}
