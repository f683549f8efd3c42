package workerpool

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentineltrade/futuresbot/internal/domain"
	"github.com/sentineltrade/futuresbot/internal/events"
	"github.com/sentineltrade/futuresbot/internal/indicators"
)

func newTestPool(cfg Config) *Pool {
	bus := events.New(zerolog.Nop())
	return New(cfg, bus, nil, nil, nil, nil, indicators.DefaultConfig(), zerolog.Nop())
}

func TestBreaker_TripsAtThreshold(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BreakerThreshold = 3
	p := newTestPool(cfg)

	assert.False(t, p.BreakerOpen())

	p.recordFailure("BTCUSDT", assertErr)
	p.recordFailure("BTCUSDT", assertErr)
	assert.False(t, p.BreakerOpen(), "breaker should stay closed below threshold")

	p.recordFailure("BTCUSDT", assertErr)
	assert.True(t, p.BreakerOpen(), "breaker should open once consecutive failures reach the threshold")
}

func TestBreaker_SuccessResetsConsecutiveCount(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BreakerThreshold = 3
	p := newTestPool(cfg)

	p.recordFailure("BTCUSDT", assertErr)
	p.recordFailure("BTCUSDT", assertErr)
	p.recordSuccess()
	p.recordFailure("BTCUSDT", assertErr)
	p.recordFailure("BTCUSDT", assertErr)

	assert.False(t, p.BreakerOpen(), "a success between failures should reset the consecutive counter")
}

func TestBreaker_AutoResumesAfterResumeAt(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BreakerThreshold = 1
	cfg.BreakerResumeAfter = 10 * time.Millisecond
	p := newTestPool(cfg)

	p.recordFailure("BTCUSDT", assertErr)
	require.True(t, p.BreakerOpen())

	time.Sleep(20 * time.Millisecond)
	assert.False(t, p.BreakerOpen(), "breaker should auto-resume once ResumeAt has passed")
}

func TestBreaker_ManualReset(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BreakerThreshold = 1
	p := newTestPool(cfg)

	p.recordFailure("BTCUSDT", assertErr)
	require.True(t, p.BreakerOpen())

	p.ResetBreaker()
	assert.False(t, p.BreakerOpen())
	assert.Equal(t, int32(0), p.consecutive.Load())
}

var assertErr = domain.ErrNotFound
