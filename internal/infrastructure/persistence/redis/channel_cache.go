package redis

import (
	"context"
	"errors"

	"github.com/alem-hub/palms-core/internal/domain/notification"
)

// ChannelCache caches conversation ids so the gateway does not look up
// the chat store for every message.
type ChannelCache struct {
	cache *Cache
}

var _ notification.ChannelCache = (*ChannelCache)(nil)

// NewChannelCache creates a ChannelCache.
func NewChannelCache(cache *Cache) *ChannelCache {
	return &ChannelCache{cache: cache}
}

// Get returns ok=false on a miss.
func (c *ChannelCache) Get(ctx context.Context, name string) (string, bool, error) {
	id, err := c.cache.GetString(ctx, ChannelKey(name))
	if errors.Is(err, ErrCacheMiss) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return id, true, nil
}

func (c *ChannelCache) Set(ctx context.Context, name, channelID string) error {
	return c.cache.SetString(ctx, ChannelKey(name), channelID, TTLChannelCache)
}
