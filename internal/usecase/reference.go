package usecase

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/polkiloo/dispatchdesk/internal/domain/model"
	"github.com/polkiloo/dispatchdesk/internal/domain/repository"
)

const (
	keyServiceTypes = "service_types"
	keyDistricts    = "districts"
	keyDispatchers  = "dispatchers"
)

type cacheEntry struct {
	value    any
	loadedAt time.Time
}

// ReferenceCache serves read-mostly reference data, possibly stale within its TTL.
// Concurrent misses for the same key share one store load.
type ReferenceCache struct {
	directory repository.DirectoryRepository
	ttl       map[string]time.Duration
	retry     retrier
	logger    *slog.Logger
	now       func() time.Time

	group   singleflight.Group
	mu      sync.RWMutex
	entries map[string]cacheEntry
}

// NewReferenceCache constructs ReferenceCache.
func NewReferenceCache(directory repository.DirectoryRepository, settings Settings, logger *slog.Logger) *ReferenceCache {
	return &ReferenceCache{
		directory: directory,
		ttl: map[string]time.Duration{
			keyServiceTypes: settings.ReferenceCacheTTL,
			keyDistricts:    settings.ReferenceCacheTTL,
			keyDispatchers:  settings.RosterCacheTTL,
		},
		retry:   newRetrier(settings, logger),
		logger:  logger,
		now:     time.Now,
		entries: make(map[string]cacheEntry),
	}
}

// ServiceTypes lists service types.
func (c *ReferenceCache) ServiceTypes(ctx context.Context) ([]model.ServiceType, error) {
	return cached(ctx, c, keyServiceTypes, c.directory.ServiceTypes)
}

// Districts lists districts.
func (c *ReferenceCache) Districts(ctx context.Context) ([]model.District, error) {
	return cached(ctx, c, keyDistricts, c.directory.Districts)
}

// Dispatchers lists the active dispatcher roster.
func (c *ReferenceCache) Dispatchers(ctx context.Context) ([]model.Profile, error) {
	return cached(ctx, c, keyDispatchers, func(ctx context.Context) ([]model.Profile, error) {
		return c.directory.ListProfiles(ctx, model.RoleDispatcher)
	})
}

// Invalidate drops every cached entry.
func (c *ReferenceCache) Invalidate() {
	c.mu.Lock()
	c.entries = make(map[string]cacheEntry)
	c.mu.Unlock()
}

func (c *ReferenceCache) lookup(key string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.entries[key]
	if !ok || c.now().Sub(entry.loadedAt) >= c.ttl[key] {
		return nil, false
	}
	return entry.value, true
}

func (c *ReferenceCache) store(key string, value any) {
	c.mu.Lock()
	c.entries[key] = cacheEntry{value: value, loadedAt: c.now()}
	c.mu.Unlock()
}

func cached[T any](ctx context.Context, c *ReferenceCache, key string, load func(context.Context) ([]T, error)) ([]T, error) {
	if value, ok := c.lookup(key); ok {
		return value.([]T), nil
	}
	value, err, _ := c.group.Do(key, func() (any, error) {
		if value, ok := c.lookup(key); ok {
			return value, nil
		}
		items, err := readWithRetry(context.WithoutCancel(ctx), c.retry, "load "+key, load)
		if err != nil {
			return nil, err
		}
		c.store(key, items)
		c.logger.Debug("reference data loaded", slog.String("key", key), slog.Int("items", len(items)))
		return items, nil
	})
	if err != nil {
		return nil, err
	}
	return value.([]T), nil
}
