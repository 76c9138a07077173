package quota

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisTokenCounter backs the daily token quota with Redis INCRBY, so
// counters are correct across multiple HTTP Facade processes sharing one
// tenant. Grounded on manifold's internal/workspaces/redis_cache.go
// construction pattern (single client, Ping at startup).
type RedisTokenCounter struct {
	client redis.UniversalClient
}

func NewRedisTokenCounter(addr, password string, db int) (*RedisTokenCounter, error) {
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("quota: connect redis: %w", err)
	}
	return &RedisTokenCounter{client: client}, nil
}

func (r *RedisTokenCounter) key(tenantID string) string {
	return "quota:tokens:" + tenantID + ":" + time.Now().UTC().Format("2006-01-02")
}

// Consume atomically increments the tenant's counter for today and
// refreshes its 48h expiry on every write, so a stale key from a quiet
// tenant never lingers past two day-boundaries.
func (r *RedisTokenCounter) Consume(ctx context.Context, tenantID string, n, _ int) (int, error) {
	key := r.key(tenantID)
	pipe := r.client.TxPipeline()
	incr := pipe.IncrBy(ctx, key, int64(n))
	pipe.Expire(ctx, key, 48*time.Hour)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("quota: incr tokens: %w", err)
	}
	return int(incr.Val()), nil
}

var _ TokenCounter = (*RedisTokenCounter)(nil)
