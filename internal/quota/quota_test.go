package quota

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"ragcore/internal/config"
)

func TestAllowPermitsBurstUpToPerMinuteLimit(t *testing.T) {
	l := New(config.QuotaConfig{RateLimitPerMin: 3}, nil)
	for i := 0; i < 3; i++ {
		require.NoError(t, l.Allow("tenant-a"))
	}
	err := l.Allow("tenant-a")
	require.ErrorIs(t, err, ErrRateLimited)
}

func TestAllowTracksTenantsIndependently(t *testing.T) {
	l := New(config.QuotaConfig{RateLimitPerMin: 1}, nil)
	require.NoError(t, l.Allow("tenant-a"))
	require.Error(t, l.Allow("tenant-a"))
	require.NoError(t, l.Allow("tenant-b"))
}

func TestAllowIsUnlimitedWhenConfiguredZero(t *testing.T) {
	l := New(config.QuotaConfig{RateLimitPerMin: 0}, nil)
	for i := 0; i < 100; i++ {
		require.NoError(t, l.Allow("tenant-a"))
	}
}

func TestConsumeTokensRejectsOnceOverDailyCap(t *testing.T) {
	l := New(config.QuotaConfig{DailyTokenQuota: 100}, NewMemoryTokenCounter())
	ctx := context.Background()
	require.NoError(t, l.ConsumeTokens(ctx, "tenant-a", 60))
	require.NoError(t, l.ConsumeTokens(ctx, "tenant-a", 40))
	err := l.ConsumeTokens(ctx, "tenant-a", 1)
	require.ErrorIs(t, err, ErrQuotaExceeded)
}

func TestConsumeTokensTracksTenantsIndependently(t *testing.T) {
	l := New(config.QuotaConfig{DailyTokenQuota: 10}, NewMemoryTokenCounter())
	ctx := context.Background()
	require.NoError(t, l.ConsumeTokens(ctx, "tenant-a", 10))
	require.ErrorIs(t, l.ConsumeTokens(ctx, "tenant-a", 1), ErrQuotaExceeded)
	require.NoError(t, l.ConsumeTokens(ctx, "tenant-b", 10))
}

func TestConsumeTokensIsUnlimitedWhenConfiguredZero(t *testing.T) {
	l := New(config.QuotaConfig{DailyTokenQuota: 0}, NewMemoryTokenCounter())
	require.NoError(t, l.ConsumeTokens(context.Background(), "tenant-a", 1_000_000))
}

func TestMemoryTokenCounterConsumeAccumulates(t *testing.T) {
	c := NewMemoryTokenCounter()
	total, err := c.Consume(context.Background(), "tenant-a", 5, 0)
	require.NoError(t, err)
	require.Equal(t, 5, total)
	total, err = c.Consume(context.Background(), "tenant-a", 5, 0)
	require.NoError(t, err)
	require.Equal(t, 10, total)
}
