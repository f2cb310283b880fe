package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	fiberlog "github.com/gofiber/fiber/v2/log"
	"github.com/redis/go-redis/v9"

	"github.com/streamvault/streamvault/internal/models"
)

const streamKeyPrefix = "stream:"

// StreamCache is a read-through cache for stream lookups. Reads are the hot
// path for dashboards polling accrual, so hits skip the database entirely;
// every mutating operation must invalidate its stream's entry.
type StreamCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewStreamCache(client *redis.Client, ttl time.Duration) *StreamCache {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &StreamCache{client: client, ttl: ttl}
}

func (c *StreamCache) Get(ctx context.Context, streamID string) (*models.Stream, bool) {
	if c == nil || c.client == nil {
		return nil, false
	}

	data, err := c.client.Get(ctx, streamKeyPrefix+streamID).Bytes()
	if err != nil {
		if err != redis.Nil {
			fiberlog.Warnf("stream cache read failed for %s: %v", streamID, err)
		}
		return nil, false
	}

	var st models.Stream
	if err := json.Unmarshal(data, &st); err != nil {
		fiberlog.Warnf("stream cache entry for %s is corrupt, dropping: %v", streamID, err)
		c.Invalidate(ctx, streamID)
		return nil, false
	}

	return &st, true
}

func (c *StreamCache) Set(ctx context.Context, st *models.Stream) {
	if c == nil || c.client == nil || st == nil {
		return
	}

	data, err := json.Marshal(st)
	if err != nil {
		fiberlog.Warnf("failed to marshal stream %s for cache: %v", st.ID, err)
		return
	}

	if err := c.client.Set(ctx, streamKeyPrefix+st.ID, data, c.ttl).Err(); err != nil {
		fiberlog.Warnf("stream cache write failed for %s: %v", st.ID, err)
	}
}

func (c *StreamCache) Invalidate(ctx context.Context, streamID string) {
	if c == nil || c.client == nil {
		return
	}

	if err := c.client.Del(ctx, streamKeyPrefix+streamID).Err(); err != nil {
		fiberlog.Warnf("stream cache invalidation failed for %s: %v", streamID, err)
	}
}

func (c *StreamCache) HealthCheck(ctx context.Context) error {
	if c == nil || c.client == nil {
		return fmt.Errorf("cache not configured")
	}
	return c.client.Ping(ctx).Err()
}
