package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prajwalbharadwajbm/mailbeacon/internal/models"
)

// Cache defines the interface for list lookups caching
type Cache interface {
	GetList(ctx context.Context, id int) (models.ListRef, error)
	SetList(ctx context.Context, list models.ListRef, ttl time.Duration) error

	// Invalidate drops one list from every cache layer and tells other
	// instances to do the same
	Invalidate(ctx context.Context, id int) error
	InvalidateAll(ctx context.Context) error
	GetStats() CacheStats
	Ping(ctx context.Context) error
}

// CacheStats holds cache performance statistics
type CacheStats struct {
	Hits        int64     `json:"hits"`
	Misses      int64     `json:"misses"`
	Errors      int64     `json:"errors"`
	HitRatio    float64   `json:"hit_ratio"`
	TotalOps    int64     `json:"total_ops"`
	LastUpdated time.Time `json:"last_updated"`
}

// HybridCache keeps lists in process memory and optionally in Redis so
// several instances share lookups
type HybridCache struct {
	memoryCache *memoryCache
	redisCache  *redisCache
	config      CacheConfig
	stats       CacheStats
	mu          sync.RWMutex
}

// CacheConfig holds cache configuration
type CacheConfig struct {
	DefaultTTL      time.Duration
	MemoryCacheSize int
	RedisAddr       string
	RedisPassword   string
	RedisDB         int
	EnableMemory    bool
	EnableRedis     bool
	KeyPrefix       string
}

// NewHybridCache creates a new hybrid cache
func NewHybridCache(config CacheConfig) (*HybridCache, error) {
	hc := &HybridCache{
		config: config,
		stats: CacheStats{
			LastUpdated: time.Now(),
		},
	}

	if config.EnableMemory {
		hc.memoryCache = newMemoryCache(config.MemoryCacheSize)
	}

	if config.EnableRedis {
		var err error
		hc.redisCache, err = newRedisCache(config)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize Redis cache: %w", err)
		}
	}

	return hc, nil
}

func listKey(id int) string {
	return "list:" + strconv.Itoa(id)
}

// GetList looks in memory first, then Redis
func (hc *HybridCache) GetList(ctx context.Context, id int) (models.ListRef, error) {
	key := listKey(id)

	if hc.memoryCache != nil {
		if l, found := hc.memoryCache.getList(key); found {
			hc.recordHit()
			return l, nil
		}
	}

	if hc.redisCache != nil {
		l, err := hc.redisCache.getList(ctx, key)
		if err == nil {
			hc.recordHit()
			// warm memory
			if hc.memoryCache != nil {
				hc.memoryCache.setList(key, l, hc.config.DefaultTTL)
			}
			return l, nil
		}
		if !errors.Is(err, ErrCacheMiss) {
			hc.recordError()
		}
	}

	hc.recordMiss()
	return models.ListRef{}, ErrCacheMiss
}

// SetList stores the list in every enabled layer
func (hc *HybridCache) SetList(ctx context.Context, list models.ListRef, ttl time.Duration) error {
	key := listKey(list.ID)

	if hc.memoryCache != nil {
		hc.memoryCache.setList(key, list, ttl)
	}

	if hc.redisCache != nil {
		if err := hc.redisCache.setList(ctx, key, list, ttl); err != nil {
			hc.recordError()
			return fmt.Errorf("cache store error: %w", err)
		}
	}

	return nil
}

// Invalidate implements Cache
func (hc *HybridCache) Invalidate(ctx context.Context, id int) error {
	key := listKey(id)

	if hc.memoryCache != nil {
		hc.memoryCache.delete(key)
	}

	if hc.redisCache != nil {
		if err := hc.redisCache.delete(ctx, key); err != nil {
			return err
		}
		return hc.redisCache.publishInvalidation(ctx, key)
	}
	return nil
}

// InvalidateAll clears all caches
func (hc *HybridCache) InvalidateAll(ctx context.Context) error {
	if hc.memoryCache != nil {
		hc.memoryCache.clear()
	}

	if hc.redisCache != nil {
		if err := hc.redisCache.clear(ctx); err != nil {
			return fmt.Errorf("cache invalidation error: %w", err)
		}
		return hc.redisCache.publishInvalidation(ctx, "*")
	}

	return nil
}

// WatchInvalidations drops memory entries invalidated by other instances
// until ctx is done. It returns immediately when Redis is disabled.
func (hc *HybridCache) WatchInvalidations(ctx context.Context) error {
	if hc.redisCache == nil || hc.memoryCache == nil {
		return nil
	}

	return hc.redisCache.subscribeInvalidation(ctx, func(key string) {
		if key == "*" {
			hc.memoryCache.clear()
			return
		}
		if strings.HasPrefix(key, "list:") {
			hc.memoryCache.delete(key)
		}
	})
}

// Ping reports whether the shared layer is reachable
func (hc *HybridCache) Ping(ctx context.Context) error {
	if hc.redisCache == nil {
		return nil
	}
	return hc.redisCache.healthCheck(ctx)
}

// Close stops background work and closes the Redis client
func (hc *HybridCache) Close() error {
	if hc.memoryCache != nil {
		hc.memoryCache.close()
	}
	if hc.redisCache != nil {
		return hc.redisCache.close()
	}
	return nil
}

// GetStats returns cache statistics
func (hc *HybridCache) GetStats() CacheStats {
	hc.mu.RLock()
	defer hc.mu.RUnlock()

	stats := hc.stats
	if stats.TotalOps > 0 {
		stats.HitRatio = float64(stats.Hits) / float64(stats.TotalOps)
	}
	return stats
}

// Helper methods for statistics
func (hc *HybridCache) recordHit() {
	hc.mu.Lock()
	hc.stats.Hits++
	hc.stats.TotalOps++
	hc.stats.LastUpdated = time.Now()
	hc.mu.Unlock()
}

func (hc *HybridCache) recordMiss() {
	hc.mu.Lock()
	hc.stats.Misses++
	hc.stats.TotalOps++
	hc.stats.LastUpdated = time.Now()
	hc.mu.Unlock()
}

func (hc *HybridCache) recordError() {
	hc.mu.Lock()
	hc.stats.Errors++
	hc.mu.Unlock()
}

// Custom errors
var (
	ErrCacheMiss = errors.New("cache miss")
)
