// Package quota enforces the per-tenant limits the HTTP Facade (C12) is
// responsible for per spec.md §4.12 and §5: a per-minute request rate
// limit and a daily token quota, both keyed by tenant_id. Grounded on
// WessleyAI-wessley-mvp's youtube.go (golang.org/x/time/rate.Limiter
// construction) for the rate-limiting half, and manifold's
// internal/workspaces/redis_cache.go (Redis-backed, TTL'd atomic
// counters) for the daily-quota half — matching spec.md §5's "atomic
// counters with per-minute/per-day buckets" description of the two
// limits as separate mechanisms rather than one.
package quota

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"ragcore/internal/config"
)

// ErrRateLimited is returned when a tenant exceeds RATE_LIMIT_PER_MIN.
var ErrRateLimited = errors.New("quota: rate limit exceeded")

// ErrQuotaExceeded is returned when a tenant exceeds DAILY_TOKEN_QUOTA.
var ErrQuotaExceeded = errors.New("quota: daily token quota exceeded")

// TokenCounter tracks daily token consumption per tenant. Counters reset
// on a rolling day boundary via TTL (Redis) or wall-clock comparison
// (in-memory).
type TokenCounter interface {
	// Consume adds n tokens to tenant's counter for the current day and
	// returns the new total. If the new total exceeds limit, the
	// increment is NOT rolled back (Limiter.ConsumeTokens rejects the
	// request that pushed over the edge and every later one that day) —
	// matching an atomic INCR-then-check pattern that avoids a
	// read-check-write race.
	Consume(ctx context.Context, tenantID string, n, limit int) (total int, err error)
}

// Limiter enforces both limits for the HTTP Facade. One Limiter is
// shared across all requests; per-tenant state is created lazily.
type Limiter struct {
	mu       sync.Mutex
	buckets  map[string]*rate.Limiter
	perMin   int
	tokens   TokenCounter
	dailyCap int
}

func New(cfg config.QuotaConfig, tokens TokenCounter) *Limiter {
	if tokens == nil {
		tokens = NewMemoryTokenCounter()
	}
	return &Limiter{
		buckets:  make(map[string]*rate.Limiter),
		perMin:   cfg.RateLimitPerMin,
		tokens:   tokens,
		dailyCap: cfg.DailyTokenQuota,
	}
}

func (l *Limiter) bucketFor(tenantID string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.buckets[tenantID]
	if !ok {
		// perMin requests per minute, burst of perMin so a tenant can
		// use its whole minute's budget in one burst rather than being
		// forced to trickle requests evenly.
		limit := rate.Limit(float64(l.perMin) / 60.0)
		b = rate.NewLimiter(limit, maxInt(l.perMin, 1))
		l.buckets[tenantID] = b
	}
	return b
}

// Allow checks the per-minute rate limit for tenantID, consuming one
// token from its bucket on success.
func (l *Limiter) Allow(tenantID string) error {
	if l.perMin <= 0 {
		return nil
	}
	if !l.bucketFor(tenantID).Allow() {
		return fmt.Errorf("%w: tenant %s", ErrRateLimited, tenantID)
	}
	return nil
}

// ConsumeTokens records n tokens of usage against tenantID's daily
// quota, rejecting the call (after recording it) once the quota is
// exceeded.
func (l *Limiter) ConsumeTokens(ctx context.Context, tenantID string, n int) error {
	if l.dailyCap <= 0 {
		return nil
	}
	total, err := l.tokens.Consume(ctx, tenantID, n, l.dailyCap)
	if err != nil {
		return fmt.Errorf("quota: consume tokens: %w", err)
	}
	if total > l.dailyCap {
		return fmt.Errorf("%w: tenant %s used %d/%d", ErrQuotaExceeded, tenantID, total, l.dailyCap)
	}
	return nil
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// MemoryTokenCounter is an in-process TokenCounter for tests and
// single-process deployments, resetting each tenant's counter when the
// calendar day (UTC) rolls over.
type MemoryTokenCounter struct {
	mu    sync.Mutex
	state map[string]dayCount
}

type dayCount struct {
	day   string
	total int
}

func NewMemoryTokenCounter() *MemoryTokenCounter {
	return &MemoryTokenCounter{state: make(map[string]dayCount)}
}

func (m *MemoryTokenCounter) Consume(_ context.Context, tenantID string, n, _ int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	today := time.Now().UTC().Format("2006-01-02")
	c := m.state[tenantID]
	if c.day != today {
		c = dayCount{day: today}
	}
	c.total += n
	m.state[tenantID] = c
	return c.total, nil
}

var _ TokenCounter = (*MemoryTokenCounter)(nil)
