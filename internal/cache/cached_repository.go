package cache

import (
	"context"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/prajwalbharadwajbm/mailbeacon/internal/models"
	"github.com/prajwalbharadwajbm/mailbeacon/internal/service"
)

// CachedListRepository wraps a list repository with caching capabilities
type CachedListRepository struct {
	repo   service.ListRepository
	cache  Cache
	ttl    time.Duration
	logger log.Logger
}

// NewCachedListRepository creates a new cached list repository
func NewCachedListRepository(repo service.ListRepository, cache Cache, ttl time.Duration, logger log.Logger) *CachedListRepository {
	return &CachedListRepository{
		repo:   repo,
		cache:  cache,
		ttl:    ttl,
		logger: logger,
	}
}

// GetLists serves what it can from cache and loads the rest in one call
func (cr *CachedListRepository) GetLists(ctx context.Context, ids []int) ([]models.ListRef, error) {
	found := make(map[int]models.ListRef, len(ids))
	var missing []int
	for _, id := range ids {
		if l, err := cr.cache.GetList(ctx, id); err == nil {
			found[id] = l
			continue
		}
		missing = append(missing, id)
	}

	if len(missing) > 0 {
		loaded, err := cr.repo.GetLists(ctx, missing)
		if err != nil {
			return nil, err
		}
		for _, l := range loaded {
			found[l.ID] = l
			if err := cr.cache.SetList(ctx, l, cr.ttl); err != nil {
				// a failed cache write never fails the lookup
				level.Warn(cr.logger).Log("msg", "failed to cache list", "list_id", l.ID, "err", err)
			}
		}
	}

	out := make([]models.ListRef, 0, len(ids))
	for _, id := range ids {
		out = append(out, found[id])
	}
	return out, nil
}

// InvalidateCache clears all cached data
func (cr *CachedListRepository) InvalidateCache(ctx context.Context) error {
	return cr.cache.InvalidateAll(ctx)
}

// GetCacheStats returns cache performance statistics
func (cr *CachedListRepository) GetCacheStats() CacheStats {
	return cr.cache.GetStats()
}
