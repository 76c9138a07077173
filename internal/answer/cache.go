package answer

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"ragcore/internal/llmprovider"
	"ragcore/internal/retriever"
)

// Match and Usage are the orchestrator's public vocabulary for citations
// and token accounting; both are the same shapes the Retriever and LLM
// Provider already produce, kept as aliases so callers never juggle two
// near-identical structs for one value.
type Match = retriever.Match
type Usage = llmprovider.Usage

// Cached is the full result of an answer call, keyed by fingerprint and
// replayed verbatim on a cache hit — a streamed replay emits it as a single
// chunk followed by done, per spec.md §4.11 step 2.
type Cached struct {
	Answer    string    `json:"answer"`
	Citations []Match   `json:"citations"`
	Usage     Usage     `json:"usage"`
	CachedAt  time.Time `json:"cached_at"`
}

// Cache stores Cached answers by fingerprint. Grounded on manifold's
// internal/workspaces.RedisGenerationCache (Redis-backed, tenant-scoped
// keys, Ping at construction) generalized from generation counters to
// arbitrary TTL'd JSON payloads.
type Cache interface {
	Get(ctx context.Context, fingerprint string) (Cached, bool, error)
	Set(ctx context.Context, fingerprint string, v Cached, ttl time.Duration) error
}

// MemoryCache is an in-process fallback used when no Redis URL is
// configured (tests, single-process deployments).
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
}

type memoryEntry struct {
	value   Cached
	expires time.Time
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]memoryEntry)}
}

func (c *MemoryCache) Get(_ context.Context, fingerprint string) (Cached, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[fingerprint]
	if !ok {
		return Cached{}, false, nil
	}
	if time.Now().After(e.expires) {
		delete(c.entries, fingerprint)
		return Cached{}, false, nil
	}
	return e.value, true, nil
}

func (c *MemoryCache) Set(_ context.Context, fingerprint string, v Cached, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[fingerprint] = memoryEntry{value: v, expires: time.Now().Add(ttl)}
	return nil
}

// RedisCache backs the answer cache with Redis, keying each fingerprint
// under an "answer:" namespace so it never collides with C8's event bus
// pub/sub channels or C12's quota counters on the same Redis instance.
type RedisCache struct {
	client redis.UniversalClient
}

func NewRedisCache(addr, password string, db int) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("answer: connect redis: %w", err)
	}
	return &RedisCache{client: client}, nil
}

func (c *RedisCache) key(fingerprint string) string { return "answer:" + fingerprint }

func (c *RedisCache) Get(ctx context.Context, fingerprint string) (Cached, bool, error) {
	raw, err := c.client.Get(ctx, c.key(fingerprint)).Bytes()
	if err == redis.Nil {
		return Cached{}, false, nil
	}
	if err != nil {
		return Cached{}, false, fmt.Errorf("answer: get cache entry: %w", err)
	}
	var v Cached
	if err := json.Unmarshal(raw, &v); err != nil {
		return Cached{}, false, fmt.Errorf("answer: decode cache entry: %w", err)
	}
	return v, true, nil
}

func (c *RedisCache) Set(ctx context.Context, fingerprint string, v Cached, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("answer: encode cache entry: %w", err)
	}
	return c.client.Set(ctx, c.key(fingerprint), data, ttl).Err()
}
