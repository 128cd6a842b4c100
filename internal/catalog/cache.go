package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

const (
	CatalogCachePrefix  = "catalog:"
	RecommendedCacheTTL = 30 * time.Minute
)

// RecommendedCache caches the recommended-ingredient id list per product.
// It replaces the process-wide static map the original app used: the cache
// owns its TTL and exposes an explicit invalidation call, and is injected
// wherever it is needed.
type RecommendedCache struct {
	redis  *redis.Client
	source Source
	ttl    time.Duration
}

func NewRecommendedCache(redisClient *redis.Client, source Source) *RecommendedCache {
	return &RecommendedCache{
		redis:  redisClient,
		source: source,
		ttl:    RecommendedCacheTTL,
	}
}

func (c *RecommendedCache) key(orgID uuid.UUID, productID int64) string {
	return fmt.Sprintf("%s%s:recommended:%d", CatalogCachePrefix, orgID, productID)
}

func (c *RecommendedCache) Recommended(ctx context.Context, orgID uuid.UUID, productID int64) ([]int64, error) {
	key := c.key(orgID, productID)

	if cached, err := c.redis.Get(ctx, key).Result(); err == nil {
		var ids []int64
		if err := json.Unmarshal([]byte(cached), &ids); err == nil {
			return ids, nil
		}
		// corrupted entry, fall through to a fresh fetch
		c.redis.Del(ctx, key)
	}

	ids, err := c.source.FetchRecommendedIngredients(ctx, orgID, productID)
	if err != nil {
		return nil, fmt.Errorf("source.FetchRecommendedIngredients: %w", err)
	}

	if payload, err := json.Marshal(ids); err == nil {
		c.redis.Set(ctx, key, payload, c.ttl)
	}
	return ids, nil
}

func (c *RecommendedCache) Invalidate(ctx context.Context, orgID uuid.UUID, productIDs ...int64) {
	for _, id := range productIDs {
		_ = c.redis.Del(ctx, c.key(orgID, id))
	}
}
