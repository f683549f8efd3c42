// Package risk implements the RiskValidator (C6): a pure, synchronous,
// short-circuiting validation chain run before any order reaches the
// exchange. The ordered-checks-with-early-return shape is grounded on
// signal_filter.go's Validate; the drawdown/daily-loss thresholds are
// grounded on execution_service.go's SafetyConfig checks.
package risk

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/sentineltrade/futuresbot/internal/domain"
)

// Config holds the account-protection thresholds (spec §6).
type Config struct {
	MaxPositionSizePercent decimal.Decimal
	MaxDailyLossUSDT       decimal.Decimal
	MaxDrawdownPercent     decimal.Decimal
	MinRiskRewardRatio     decimal.Decimal
	StopLossPercent        decimal.Decimal
	TakeProfitPercent      decimal.Decimal
}

func DefaultConfig() Config {
	return Config{
		MaxPositionSizePercent: decimal.NewFromFloat(0.10),
		MaxDailyLossUSDT:       decimal.NewFromInt(500),
		MaxDrawdownPercent:     decimal.NewFromFloat(0.20),
		MinRiskRewardRatio:     decimal.NewFromFloat(2.0),
		StopLossPercent:        decimal.NewFromFloat(0.02),
		TakeProfitPercent:      decimal.NewFromFloat(0.03),
	}
}

// Assessment is the outcome of Validate.
type Assessment struct {
	IsValid  bool
	Errors   []string
	Warnings []string
	Notional decimal.Decimal
}

// Validator is the concrete RiskValidator. It holds no mutable state and is
// safe for concurrent use by every worker/executor that calls it.
type Validator struct {
	cfg Config
}

func New(cfg Config) *Validator {
	return &Validator{cfg: cfg}
}

// Validate runs the ordered checks, short-circuiting on the first hard
// failure. A risk/reward ratio below MinRiskRewardRatio is reported as a
// warning rather than a rejection: the shipped SL/TP defaults (2%/3%, ratio
// 1.5) sit below the preferred 2.0 minimum, and the spec's own happy-path
// scenario expects that combination to trade, not to be rejected outright.
// entryPrice, stopLoss, and takeProfit are all pre-ticker prices; the caller
// is responsible for having fetched a fresh ticker.
func (v *Validator) Validate(symbol domain.Symbol, side domain.Side, quantity, entryPrice, stopLoss, takeProfit decimal.Decimal, account domain.AccountState) Assessment {
	if quantity.LessThanOrEqual(decimal.Zero) || entryPrice.LessThanOrEqual(decimal.Zero) {
		return reject("quantity and entryPrice must be positive")
	}

	notional := quantity.Mul(entryPrice)
	maxNotional := v.cfg.MaxPositionSizePercent.Mul(account.Equity)
	if notional.GreaterThan(maxNotional) {
		return reject(fmt.Sprintf("notional %s exceeds max position size %s", notional, maxNotional))
	}

	if account.DailyRealizedPnl.IsNegative() && account.DailyRealizedPnl.Abs().GreaterThan(v.cfg.MaxDailyLossUSDT) {
		return reject(fmt.Sprintf("daily realized loss %s exceeds limit %s", account.DailyRealizedPnl.Abs(), v.cfg.MaxDailyLossUSDT))
	}

	if account.PeakEquity.GreaterThan(decimal.Zero) {
		drawdown := account.PeakEquity.Sub(account.Equity).Div(account.PeakEquity)
		if drawdown.GreaterThan(v.cfg.MaxDrawdownPercent) {
			return reject(fmt.Sprintf("drawdown %s exceeds max %s", drawdown, v.cfg.MaxDrawdownPercent))
		}
	}

	risk := entryPrice.Sub(stopLoss).Abs()
	reward := takeProfit.Sub(entryPrice).Abs()
	if risk.IsZero() {
		return reject("stop loss equals entry price")
	}
	rr := reward.Div(risk)

	var warnings []string
	if rr.LessThan(v.cfg.MinRiskRewardRatio) {
		warnings = append(warnings, fmt.Sprintf("risk/reward %s below preferred minimum %s", rr, v.cfg.MinRiskRewardRatio))
	}

	return Assessment{IsValid: true, Notional: notional, Warnings: warnings}
}

// ComputeStopLossAndTakeProfit derives SL/TP from the configured percents
// around a reference price, matching execution_service.go's fixed-percent
// bracket (no partial-fill resizing — see SPEC_FULL.md §9 Open Questions).
func (v *Validator) ComputeStopLossAndTakeProfit(side domain.Side, price decimal.Decimal) (stopLoss, takeProfit decimal.Decimal) {
	one := decimal.NewFromInt(1)
	if side == domain.SideBuy {
		stopLoss = price.Mul(one.Sub(v.cfg.StopLossPercent))
		takeProfit = price.Mul(one.Add(v.cfg.TakeProfitPercent))
		return
	}
	stopLoss = price.Mul(one.Add(v.cfg.StopLossPercent))
	takeProfit = price.Mul(one.Sub(v.cfg.TakeProfitPercent))
	return
}

func reject(msg string) Assessment {
	return Assessment{IsValid: false, Errors: []string{msg}}
}
