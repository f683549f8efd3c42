package requestmanager

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentineltrade/futuresbot/internal/domain"
	"github.com/sentineltrade/futuresbot/internal/ratelimit"
)

func testManager(t *testing.T, class ratelimit.BudgetClass) *Manager {
	t.Helper()
	cfg := ratelimit.DefaultConfig()
	cfg.MarketDataRate = 1000
	cfg.MarketDataBurst = 1000
	cfg.TradingRate = 1000
	cfg.TradingBurst = 1000
	cfg.Spacing = ratelimit.EndpointSpacing{}
	gov := ratelimit.New(cfg, zerolog.Nop())
	m := New(gov, class, zerolog.Nop())
	t.Cleanup(m.Stop)
	return m
}

func TestDo_CachesResultWithinTTL(t *testing.T) {
	m := testManager(t, ratelimit.BudgetMarketData)

	var calls int32
	fetch := func(ctx context.Context) (any, error) {
		atomic.AddInt32(&calls, 1)
		return "value", nil
	}

	v1, err := m.Do(context.Background(), MethodTicker, "BTCUSDT", "market_data", domain.PriorityMedium, fetch)
	require.NoError(t, err)
	v2, err := m.Do(context.Background(), MethodTicker, "BTCUSDT", "market_data", domain.PriorityMedium, fetch)
	require.NoError(t, err)

	assert.Equal(t, "value", v1)
	assert.Equal(t, "value", v2)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls), "second call within the TTL should hit the cache, not fetch again")
}

func TestDo_DifferentArgsBypassCache(t *testing.T) {
	m := testManager(t, ratelimit.BudgetMarketData)

	var calls int32
	fetch := func(ctx context.Context) (any, error) {
		atomic.AddInt32(&calls, 1)
		return "value", nil
	}

	_, err := m.Do(context.Background(), MethodTicker, "BTCUSDT", "market_data", domain.PriorityMedium, fetch)
	require.NoError(t, err)
	_, err = m.Do(context.Background(), MethodTicker, "ETHUSDT", "market_data", domain.PriorityMedium, fetch)
	require.NoError(t, err)

	assert.Equal(t, int32(2), atomic.LoadInt32(&calls), "distinct cache keys must each fetch independently")
}

func TestDo_PropagatesFetchError(t *testing.T) {
	m := testManager(t, ratelimit.BudgetMarketData)

	wantErr := errors.New("exchange unavailable")
	_, err := m.Do(context.Background(), MethodTicker, "BTCUSDT", "market_data", domain.PriorityMedium, func(ctx context.Context) (any, error) {
		return nil, wantErr
	})
	assert.ErrorIs(t, err, wantErr)
}

func TestDo_DedupsConcurrentInFlightCalls(t *testing.T) {
	m := testManager(t, ratelimit.BudgetMarketData)

	var calls int32
	release := make(chan struct{})
	fetch := func(ctx context.Context) (any, error) {
		atomic.AddInt32(&calls, 1)
		<-release
		return "value", nil
	}

	results := make(chan any, 2)
	for i := 0; i < 2; i++ {
		go func() {
			v, err := m.Do(context.Background(), MethodBalance, "USDT", "trading", domain.PriorityMedium, fetch)
			require.NoError(t, err)
			results <- v
		}()
	}

	time.Sleep(20 * time.Millisecond)
	close(release)

	for i := 0; i < 2; i++ {
		<-results
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls), "concurrent calls for the same key should share one in-flight fetch")
}

func TestSweep_EvictsStuckPendingEntries(t *testing.T) {
	m := testManager(t, ratelimit.BudgetMarketData)

	key := cacheKey(MethodBalance, "USDT")
	m.mu.Lock()
	m.pending[key] = &pendingRequest{startedAt: time.Now().Add(-2 * time.Minute), done: make(chan struct{})}
	m.mu.Unlock()

	m.sweep()

	m.mu.Lock()
	_, ok := m.pending[key]
	m.mu.Unlock()
	assert.False(t, ok, "a pending entry older than stuckAfter must be evicted by sweep")
}
