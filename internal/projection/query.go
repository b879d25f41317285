package projection

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"

	"github.com/Merodami/book-library-tool-ddd-sub001/internal/apperr"
)

// Page is the pagination envelope every query-projection endpoint returns.
type Page struct {
	Data       interface{} `json:"data"`
	Pagination PageInfo    `json:"pagination"`
}

// PageInfo describes where Data sits within the full result set.
type PageInfo struct {
	Total   int  `json:"total"`
	Page    int  `json:"page"`
	Limit   int  `json:"limit"`
	Pages   int  `json:"pages"`
	HasNext bool `json:"hasNext"`
	HasPrev bool `json:"hasPrev"`
}

// NewPageInfo computes the pagination envelope from a result count.
func NewPageInfo(total, page, limit int) PageInfo {
	pages := 0
	if limit > 0 {
		pages = (total + limit - 1) / limit
	}
	return PageInfo{
		Total:   total,
		Page:    page,
		Limit:   limit,
		Pages:   pages,
		HasNext: page < pages,
		HasPrev: page > 1,
	}
}

// ClampPage normalizes caller-supplied page/limit against the configured
// bounds, defaulting an unset or invalid value.
func ClampPage(page, limit, defaultLimit, maxLimit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	return page, limit
}

// Cache is a read-through cache-aside layer in front of the projection
// store. Cache misses fall through to the database; cache writes are
// best-effort and never block or fail correctness.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCache builds a Cache from a REDIS_URL-style connection string.
func NewCache(redisURL string, ttl time.Duration) (*Cache, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, err, "invalid REDIS_URL")
	}
	return &Cache{client: redis.NewClient(opt), ttl: ttl}, nil
}

// GetOrLoad returns the cached value for key if present, otherwise calls
// load, caches its result, and returns it. A cache error (including a
// connection failure) is swallowed and treated as a miss — the cache is an
// optimization, never a dependency for correctness.
func (c *Cache) GetOrLoad(ctx context.Context, key string, dst interface{}, load func(ctx context.Context) (interface{}, error)) error {
	if c != nil {
		if raw, err := c.client.Get(ctx, key).Bytes(); err == nil {
			if jerr := json.Unmarshal(raw, dst); jerr == nil {
				return nil
			}
		}
	}

	result, err := load(ctx)
	if err != nil {
		return err
	}

	if raw, err := json.Marshal(result); err == nil {
		if marshalErr := json.Unmarshal(raw, dst); marshalErr != nil {
			return apperr.Wrap(apperr.KindInternal, marshalErr, "decode loaded value")
		}
		if c != nil {
			c.client.Set(ctx, key, raw, c.ttl)
		}
	}
	return nil
}

// Invalidate drops a cached key after a write, so the next read observes
// fresh projection state instead of a stale cached one.
func (c *Cache) Invalidate(ctx context.Context, key string) {
	if c == nil {
		return
	}
	c.client.Del(ctx, key)
}

// CacheKey builds a deterministic cache key for a read model query.
func CacheKey(resource string, id string) string {
	return fmt.Sprintf("library:%s:%s", resource, id)
}

// Store bundles the read-model database with the cache-aside layer for
// query handlers.
type Store struct {
	DB    *sqlx.DB
	Cache *Cache
}
