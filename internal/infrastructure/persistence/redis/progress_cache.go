package redis

import (
	"context"
	"errors"
	"time"

	"github.com/habitloop/habitloop-core/internal/application/query"
)

// ProgressCache implements query.ProgressCache on Redis.
// Cached views are eventually consistent with the log history; writes
// invalidate them through the streak-changed event handler.
type ProgressCache struct {
	cache *Cache
}

// NewProgressCache creates a ProgressCache.
func NewProgressCache(cache *Cache) *ProgressCache {
	return &ProgressCache{cache: cache}
}

// Get returns the cached view or (nil, nil) on a miss.
func (p *ProgressCache) Get(ctx context.Context, habitID string) (*query.ProgressView, error) {
	var view query.ProgressView
	err := p.cache.Get(ctx, PrefixProgress+habitID, &view)
	if err != nil {
		if errors.Is(err, ErrCacheMiss) {
			return nil, nil
		}
		return nil, err
	}
	return &view, nil
}

// Set stores the view with the given TTL.
func (p *ProgressCache) Set(ctx context.Context, habitID string, view *query.ProgressView, ttl time.Duration) error {
	return p.cache.Set(ctx, PrefixProgress+habitID, view, ttl)
}

// Invalidate drops the cached view.
func (p *ProgressCache) Invalidate(ctx context.Context, habitID string) error {
	return p.cache.Delete(ctx, PrefixProgress+habitID)
}
