package secrets

import (
	"sync"
	"time"

	"github.com/kevin07696/purchase-service/internal/domain/ports"
)

// secretCache is an in-memory TTL cache shared by the remote backends
type secretCache struct {
	entries map[string]cacheEntry
	now     func() time.Time
	ttl     time.Duration
	mu      sync.RWMutex
	enabled bool
}

type cacheEntry struct {
	expiresAt time.Time
	secret    ports.Secret
}

func newSecretCache(enabled bool, ttl time.Duration) *secretCache {
	return &secretCache{
		entries: make(map[string]cacheEntry),
		now:     time.Now,
		ttl:     ttl,
		enabled: enabled && ttl > 0,
	}
}

func (c *secretCache) get(key string) (*ports.Secret, bool) {
	if !c.enabled {
		return nil, false
	}

	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if c.now().After(entry.expiresAt) {
		c.invalidate(key)
		return nil, false
	}
	s := entry.secret
	return &s, true
}

func (c *secretCache) set(key string, secret *ports.Secret) {
	if !c.enabled {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = cacheEntry{secret: *secret, expiresAt: c.now().Add(c.ttl)}
}

func (c *secretCache) invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}
