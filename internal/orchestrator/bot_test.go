package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentineltrade/futuresbot/internal/domain"
	"github.com/sentineltrade/futuresbot/internal/events"
	"github.com/sentineltrade/futuresbot/internal/exchange"
	"github.com/sentineltrade/futuresbot/internal/executor"
	"github.com/sentineltrade/futuresbot/internal/indicators"
	"github.com/sentineltrade/futuresbot/internal/marketdata"
	"github.com/sentineltrade/futuresbot/internal/position"
	"github.com/sentineltrade/futuresbot/internal/ratelimit"
	"github.com/sentineltrade/futuresbot/internal/requestmanager"
	"github.com/sentineltrade/futuresbot/internal/risk"
	"github.com/sentineltrade/futuresbot/internal/signalqueue"
	"github.com/sentineltrade/futuresbot/internal/workerpool"
)

type orchExchange struct {
	ticker      domain.Ticker
	tickerErr   error
	orderResult exchange.OrderResult
	orderErr    error
}

func (e *orchExchange) GetSymbols(ctx context.Context) ([]exchange.SymbolInfo, error) { return nil, nil }
func (e *orchExchange) GetTicker(ctx context.Context, symbol domain.Symbol) (domain.Ticker, error) {
	return e.ticker, e.tickerErr
}
func (e *orchExchange) GetKlines(ctx context.Context, symbol domain.Symbol, interval string, limit int) ([]domain.Kline, error) {
	return nil, nil
}
func (e *orchExchange) GetBalance(ctx context.Context, asset string) (exchange.Balance, error) {
	return exchange.Balance{Asset: asset, Available: decimal.NewFromInt(10000)}, nil
}
func (e *orchExchange) GetPositions(ctx context.Context, symbol domain.Symbol) ([]exchange.Position, error) {
	return nil, nil
}
func (e *orchExchange) PlaceOrder(ctx context.Context, req exchange.OrderRequest) (exchange.OrderResult, error) {
	return e.orderResult, e.orderErr
}
func (e *orchExchange) ClosePosition(ctx context.Context, symbol domain.Symbol, pct decimal.Decimal) (exchange.OrderResult, error) {
	return exchange.OrderResult{}, nil
}
func (e *orchExchange) SetMarginType(ctx context.Context, symbol domain.Symbol, isolated bool) error {
	return nil
}
func (e *orchExchange) SetLeverage(ctx context.Context, symbol domain.Symbol, leverage int) error {
	return nil
}
func (e *orchExchange) SetPositionMode(ctx context.Context, hedgeMode bool) error { return nil }
func (e *orchExchange) CancelAllOpenOrders(ctx context.Context, symbol domain.Symbol) error {
	return nil
}

func testBot(t *testing.T, ex *orchExchange) (*Bot, *signalqueue.Queue) {
	t.Helper()
	bus := events.New(zerolog.Nop())

	govCfg := ratelimit.DefaultConfig()
	govCfg.MarketDataRate = 1000
	govCfg.MarketDataBurst = 1000
	govCfg.TradingRate = 1000
	govCfg.TradingBurst = 1000
	govCfg.Spacing = ratelimit.EndpointSpacing{}
	gov := ratelimit.New(govCfg, zerolog.Nop())
	marketRM := requestmanager.New(gov, ratelimit.BudgetMarketData, zerolog.Nop())
	tradingRM := requestmanager.New(gov, ratelimit.BudgetTrading, zerolog.Nop())

	mdc := marketdata.New(marketdata.DefaultConfig(), marketRM, ex, bus, zerolog.Nop())
	pool := workerpool.New(workerpool.DefaultConfig(), bus, mdc, ex, nil, nil, indicators.DefaultConfig(), zerolog.Nop())
	q := signalqueue.New(signalqueue.DefaultConfig(), bus, zerolog.Nop())
	rv := risk.New(risk.DefaultConfig())
	execPool := executor.New(executor.DefaultConfig(), bus, tradingRM, ex, rv, &noopRegistrar{}, nil, zerolog.Nop())
	pm := position.New(position.DefaultConfig(), bus, ex, execPool, nil, zerolog.Nop())

	cfg := DefaultConfig()
	cfg.MinSignalStrength = 55
	cfg.ImmediateExecutionBonus = 10
	bot := New(cfg, bus, mdc, pool, q, rv, execPool, pm, zerolog.Nop())
	return bot, q
}

type noopRegistrar struct{}

func (noopRegistrar) Register(pos domain.ManagedPosition) {}

func TestHandleSignal_IgnoresHoldAction(t *testing.T) {
	bot, q := testBot(t, &orchExchange{})
	bot.handleSignal(domain.Signal{Symbol: "BTCUSDT", Action: domain.ActionHold, Strength: 90, CreatedAt: time.Now()})
	assert.Equal(t, 0, q.Len())
}

func TestHandleSignal_IgnoresWeakSignal(t *testing.T) {
	bot, q := testBot(t, &orchExchange{})
	bot.handleSignal(domain.Signal{Symbol: "BTCUSDT", Action: domain.ActionBuy, Strength: 10, CreatedAt: time.Now()})
	assert.Equal(t, 0, q.Len())
}

func TestHandleSignal_QueuesModerateSignalBelowImmediateThreshold(t *testing.T) {
	ex := &orchExchange{ticker: domain.Ticker{Symbol: "BTCUSDT", LastPrice: decimal.NewFromInt(50000)}}
	bot, q := testBot(t, ex)
	bot.handleSignal(domain.Signal{ID: "s1", Symbol: "BTCUSDT", Action: domain.ActionBuy, Strength: 60, CreatedAt: time.Now()})
	assert.Equal(t, 1, q.Len(), "a signal below the immediate-execution bonus threshold should be queued, not executed")
}

func TestHandleSignal_ExecutesImmediatelyAboveBonusThreshold(t *testing.T) {
	ex := &orchExchange{
		ticker:      domain.Ticker{Symbol: "BTCUSDT", LastPrice: decimal.NewFromInt(50000)},
		orderResult: exchange.OrderResult{OrderID: "order-1"},
	}
	bot, q := testBot(t, ex)
	bot.handleSignal(domain.Signal{ID: "s1", Symbol: "BTCUSDT", Action: domain.ActionBuy, Strength: 80, CreatedAt: time.Now()})
	assert.Equal(t, 0, q.Len(), "a strong signal that executes immediately should not also be queued")
}

func TestHandleSignal_FallsBackToQueueWhenImmediateExecutionFails(t *testing.T) {
	ex := &orchExchange{
		ticker:   domain.Ticker{Symbol: "BTCUSDT", LastPrice: decimal.NewFromInt(50000)},
		orderErr: assertOrchErr,
	}
	bot, q := testBot(t, ex)
	bot.handleSignal(domain.Signal{ID: "s1", Symbol: "BTCUSDT", Action: domain.ActionBuy, Strength: 80, CreatedAt: time.Now()})
	assert.Equal(t, 1, q.Len(), "a failed immediate execution should fall back to enqueueing the signal")
}

func TestSymbolsDue_ExcludesBlacklistedSymbolsWithinBackoff(t *testing.T) {
	bot, _ := testBot(t, &orchExchange{})
	bot.universe = []domain.Symbol{"BTCUSDT", "ETHUSDT"}
	bot.blacklist["ETHUSDT"] = &domain.BlacklistEntry{Symbol: "ETHUSDT", BackoffUntil: time.Now().Add(time.Hour)}

	due := bot.symbolsDue()
	require.Len(t, due, 1)
	assert.Equal(t, domain.Symbol("BTCUSDT"), due[0])
}

func TestSymbolsDue_ReincludesSymbolAfterBackoffExpires(t *testing.T) {
	bot, _ := testBot(t, &orchExchange{})
	bot.universe = []domain.Symbol{"BTCUSDT"}
	bot.blacklist["BTCUSDT"] = &domain.BlacklistEntry{Symbol: "BTCUSDT", BackoffUntil: time.Now().Add(-time.Minute)}

	due := bot.symbolsDue()
	require.Len(t, due, 1)
}

func TestBlacklistFailure_GrowsBackoffWithRepeatedFailures(t *testing.T) {
	bot, _ := testBot(t, &orchExchange{})

	bot.blacklistFailure("BTCUSDT")
	first := bot.blacklist["BTCUSDT"].BackoffUntil

	bot.blacklistFailure("BTCUSDT")
	second := bot.blacklist["BTCUSDT"].BackoffUntil

	assert.Equal(t, 2, bot.blacklist["BTCUSDT"].FailureCount)
	assert.True(t, second.After(first), "backoff window should grow with repeated failures")
}

func TestSuspendAndResume_TogglesSuspendedState(t *testing.T) {
	bot, _ := testBot(t, &orchExchange{})
	assert.False(t, bot.isSuspended())

	bot.suspend()
	assert.True(t, bot.isSuspended())

	bot.resume()
	assert.False(t, bot.isSuspended())
}

type orchError string

func (e orchError) Error() string { return string(e) }

var assertOrchErr = orchError("order placement failed")
