package risk

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentineltrade/futuresbot/internal/domain"
)

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func baseAccount() domain.AccountState {
	return domain.AccountState{
		Equity:           d("10000"),
		DailyRealizedPnl: decimal.Zero,
		PeakEquity:       d("10000"),
	}
}

func TestValidate_AcceptsSoundTrade(t *testing.T) {
	v := New(DefaultConfig())
	result := v.Validate("BTCUSDT", domain.SideBuy, d("0.01"), d("50000"), d("49000"), d("52000"), baseAccount())
	require.True(t, result.IsValid, result.Errors)
	assert.True(t, d("500").Equal(result.Notional), "notional = %s", result.Notional)
}

func TestValidate_RejectsNonPositiveQuantity(t *testing.T) {
	v := New(DefaultConfig())
	result := v.Validate("BTCUSDT", domain.SideBuy, decimal.Zero, d("50000"), d("49000"), d("52000"), baseAccount())
	assert.False(t, result.IsValid)
	require.Len(t, result.Errors, 1)
}

func TestValidate_RejectsOversizedNotional(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxPositionSizePercent = d("0.10")
	v := New(cfg)
	// 10000 * 0.10 = 1000 max notional; 0.1 * 50000 = 5000 notional.
	result := v.Validate("BTCUSDT", domain.SideBuy, d("0.1"), d("50000"), d("49000"), d("52000"), baseAccount())
	assert.False(t, result.IsValid)
}

func TestValidate_RejectsWhenDailyLossCapBreached(t *testing.T) {
	v := New(DefaultConfig())
	account := baseAccount()
	account.DailyRealizedPnl = d("-600") // exceeds default 500 cap
	result := v.Validate("BTCUSDT", domain.SideBuy, d("0.01"), d("50000"), d("49000"), d("52000"), account)
	assert.False(t, result.IsValid)
}

func TestValidate_RejectsWhenDrawdownExceedsMax(t *testing.T) {
	v := New(DefaultConfig())
	account := baseAccount()
	account.PeakEquity = d("20000")
	account.Equity = d("10000") // 50% drawdown vs default 20% max
	result := v.Validate("BTCUSDT", domain.SideBuy, d("0.01"), d("50000"), d("49000"), d("52000"), account)
	assert.False(t, result.IsValid)
}

func TestValidate_BelowMinRiskRewardWarnsButStillPasses(t *testing.T) {
	v := New(DefaultConfig())
	// risk = 500, reward = 500 -> ratio 1.0, below default min 2.0.
	result := v.Validate("BTCUSDT", domain.SideBuy, d("0.01"), d("50000"), d("49500"), d("50500"), baseAccount())
	require.True(t, result.IsValid, result.Errors)
	require.Len(t, result.Warnings, 1)
	assert.Contains(t, result.Warnings[0], "risk/reward")
}

func TestValidate_HappyPathDefaultsComputeAndValidateTogether(t *testing.T) {
	// Mirrors the documented happy-path scenario: default 2%/3% SL/TP
	// (ratio 1.5) must clear Validate even though it sits below the
	// default 2.0 preferred minimum.
	v := New(DefaultConfig())
	price := d("30000")
	stopLoss, takeProfit := v.ComputeStopLossAndTakeProfit(domain.SideBuy, price)

	result := v.Validate("BTCUSDT", domain.SideBuy, d("0.00333"), price, stopLoss, takeProfit, baseAccount())
	require.True(t, result.IsValid, result.Errors)
	assert.Len(t, result.Warnings, 1)
}

func TestValidate_RejectsZeroRisk(t *testing.T) {
	v := New(DefaultConfig())
	result := v.Validate("BTCUSDT", domain.SideBuy, d("0.01"), d("50000"), d("50000"), d("52000"), baseAccount())
	assert.False(t, result.IsValid)
}

func TestComputeStopLossAndTakeProfit_Directional(t *testing.T) {
	v := New(DefaultConfig())

	slBuy, tpBuy := v.ComputeStopLossAndTakeProfit(domain.SideBuy, d("100"))
	assert.True(t, slBuy.LessThan(d("100")), "buy stop loss should sit below entry")
	assert.True(t, tpBuy.GreaterThan(d("100")), "buy take profit should sit above entry")

	slSell, tpSell := v.ComputeStopLossAndTakeProfit(domain.SideSell, d("100"))
	assert.True(t, slSell.GreaterThan(d("100")), "sell stop loss should sit above entry")
	assert.True(t, tpSell.LessThan(d("100")), "sell take profit should sit below entry")
}
