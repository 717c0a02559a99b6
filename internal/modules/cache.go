// Package modules answers "is this module active" on the request hot path,
// trading bounded staleness for bounded query volume.
package modules

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/promanage/promanage/internal/permstore"
)

// Store is the module lookup the cache wraps.
type Store interface {
	ModuleActive(ctx context.Context, key string) (bool, error)
}

// ActivationCache reports module activity with a freshness budget. A
// single-instance deployment uses the in-memory implementation; multi-instance
// deployments swap in the redis-backed one without touching the gate.
type ActivationCache interface {
	IsActive(ctx context.Context, key string) bool
}

// conventional prefix stripped when the exact key misses.
const legacyKeyPrefix = "module:"

type entry struct {
	active    bool
	expiresAt time.Time
}

// Cache is the in-memory ActivationCache.
type Cache struct {
	store  Store
	ttl    time.Duration
	logger *slog.Logger

	mu      sync.Mutex
	entries map[string]entry

	// now is swapped in tests.
	now func() time.Time
}

// NewCache constructs an in-memory cache with the given TTL.
func NewCache(store Store, ttl time.Duration, logger *slog.Logger) *Cache {
	return &Cache{
		store:   store,
		ttl:     ttl,
		logger:  logger,
		entries: make(map[string]entry),
		now:     time.Now,
	}
}

// IsActive returns the cached activity flag, querying the store on a miss.
// Negative results are cached too, so a missing module cannot turn into a
// per-request query storm.
func (c *Cache) IsActive(ctx context.Context, key string) bool {
	now := c.now()

	c.mu.Lock()
	if e, ok := c.entries[key]; ok && now.Before(e.expiresAt) {
		c.mu.Unlock()
		return e.active
	}
	c.mu.Unlock()

	active := c.lookup(ctx, key)

	c.mu.Lock()
	c.entries[key] = entry{active: active, expiresAt: now.Add(c.ttl)}
	c.mu.Unlock()
	return active
}

// lookup queries the exact key, then retries once with the conventional
// prefix stripped before concluding inactive.
func (c *Cache) lookup(ctx context.Context, key string) bool {
	active, err := c.store.ModuleActive(ctx, key)
	if err == nil {
		return active
	}
	if !errors.Is(err, permstore.ErrNotFound) {
		if c.logger != nil {
			c.logger.Warn("module lookup failed", slog.String("module", key), slog.Any("error", err))
		}
		return false
	}
	if alt := strings.TrimPrefix(key, legacyKeyPrefix); alt != key {
		active, err = c.store.ModuleActive(ctx, alt)
		if err == nil {
			return active
		}
	}
	return false
}
