package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// SnapshotCache keeps short-lived JSON snapshots of hot read endpoints in
// redis so polling clients do not hammer the engines. A cache failure is
// never an error to the caller, just a miss.
type SnapshotCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewSnapshotCache connects to redis. ttl bounds snapshot staleness.
func NewSnapshotCache(addr string, ttl time.Duration) *SnapshotCache {
	return &SnapshotCache{
		client: redis.NewClient(&redis.Options{Addr: addr}),
		ttl:    ttl,
	}
}

// Get loads a cached snapshot into dst, reporting whether it was present
func (c *SnapshotCache) Get(ctx context.Context, key string, dst interface{}) bool {
	if c == nil {
		return false
	}
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		return false
	}
	return json.Unmarshal(data, dst) == nil
}

// Set stores a snapshot, best-effort
func (c *SnapshotCache) Set(ctx context.Context, key string, v interface{}) {
	if c == nil {
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	c.client.Set(ctx, key, data, c.ttl)
}

// Invalidate drops a snapshot, best-effort
func (c *SnapshotCache) Invalidate(ctx context.Context, keys ...string) {
	if c == nil || len(keys) == 0 {
		return
	}
	c.client.Del(ctx, keys...)
}

// Ping verifies the redis connection
func (c *SnapshotCache) Ping(ctx context.Context) error {
	if c == nil {
		return nil
	}
	return c.client.Ping(ctx).Err()
}

// Close releases the redis connection
func (c *SnapshotCache) Close() error {
	if c == nil {
		return nil
	}
	return c.client.Close()
}

func currentGameKey(bet string) string {
	return fmt.Sprintf("gamecore:current:%s", bet)
}

const liquidityStatsKey = "gamecore:liquidity:stats"
