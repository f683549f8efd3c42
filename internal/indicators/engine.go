// Package indicators provides the reference EvaluateIndicators engine the
// core pipeline treats as a pure black box. The EMA/RSI math is grounded
// directly on trend_analyzer.go's analyzeTimeframe/calculateRSI/
// calculateEMA; the trend-gate and liquidation-pressure folding is the
// supplemental auxiliary-feed behavior from SPEC_FULL.md §2.2/§10.
package indicators

import (
	"github.com/shopspring/decimal"

	"github.com/sentineltrade/futuresbot/internal/domain"
)

// Config holds the tunables EvaluateIndicators reads (spec §6).
type Config struct {
	MA1Period            int
	MA2Period             int
	RSIOversold           float64
	RSIOverbought         float64
	VolumeSpikeThreshold  float64
	TrendCounterPenalty   int
	LiquidationBoostCap   int
}

func DefaultConfig() Config {
	return Config{
		MA1Period:           9,
		MA2Period:           21,
		RSIOversold:         30,
		RSIOverbought:       70,
		VolumeSpikeThreshold: 1.5,
		TrendCounterPenalty: 15,
		LiquidationBoostCap: 10,
	}
}

// Inputs carries the auxiliary feeds folded into the base score. Both are
// optional; a nil Trend or a zero volume means "no input".
type Inputs struct {
	Trend             *domain.TrendSnapshot
	LiquidationVolume decimal.Decimal // in the signal's own direction
}

// EvaluateIndicators computes a Signal from a time-ascending kline series.
// It never panics on short input: fewer than MA2Period+1 candles yields a
// HOLD signal with strength 0.
func EvaluateIndicators(symbol domain.Symbol, klines []domain.Kline, cfg Config, aux Inputs) domain.Signal {
	sig := domain.Signal{
		Symbol:     symbol,
		Action:     domain.ActionHold,
		Strength:   0,
		Indicators: map[string]any{},
	}

	if len(klines) < cfg.MA2Period+1 {
		sig.Reason = "insufficient kline history"
		return sig
	}

	closes := make([]float64, len(klines))
	volumes := make([]float64, len(klines))
	for i, k := range klines {
		closes[i], _ = k.Close.Float64()
		volumes[i], _ = k.Volume.Float64()
	}

	ma1 := ema(closes, cfg.MA1Period)
	ma2 := ema(closes, cfg.MA2Period)
	rsi := rsi14(closes)
	volRatio := volumeRatio(volumes)

	sig.Indicators["ma1"] = ma1
	sig.Indicators["ma2"] = ma2
	sig.Indicators["rsi"] = rsi
	sig.Indicators["volumeRatio"] = volRatio

	crossoverDir, crossoverScore := crossoverSignal(ma1, ma2)
	rsiDir, rsiScore := rsiSignal(rsi, cfg)

	dir, base := combine(crossoverDir, crossoverScore, rsiDir, rsiScore)

	if volRatio >= cfg.VolumeSpikeThreshold && dir != domain.ActionHold {
		base += 20
	}

	if base <= 0 || dir == domain.ActionHold {
		sig.Reason = "no clear direction"
		return sig
	}

	base = applyTrendGate(base, dir, aux.Trend, cfg, sig.Indicators)
	base = applyLiquidationBoost(base, aux.LiquidationVolume, cfg, sig.Indicators)

	if base > 100 {
		base = 100
	}
	if base < 0 {
		base = 0
	}

	sig.Action = dir
	sig.Strength = base
	sig.Reason = reasonFor(dir, rsi, volRatio)
	return sig
}

func crossoverSignal(ma1, ma2 float64) (domain.Action, int) {
	if ma1 == 0 || ma2 == 0 {
		return domain.ActionHold, 0
	}
	if ma1 > ma2 {
		return domain.ActionBuy, 45
	}
	return domain.ActionSell, 45
}

func rsiSignal(rsi float64, cfg Config) (domain.Action, int) {
	if rsi <= cfg.RSIOversold {
		return domain.ActionBuy, 35
	}
	if rsi >= cfg.RSIOverbought {
		return domain.ActionSell, 35
	}
	return domain.ActionHold, 0
}

// combine sums both scores when the indicators point the same way, returns
// the non-neutral indicator's full score when the other is neutral, and
// holds when they conflict.
func combine(crossDir domain.Action, crossScore int, rsiDir domain.Action, rsiScore int) (domain.Action, int) {
	switch {
	case crossDir == domain.ActionHold && rsiDir == domain.ActionHold:
		return domain.ActionHold, 0
	case crossDir == domain.ActionHold:
		return rsiDir, rsiScore
	case rsiDir == domain.ActionHold:
		return crossDir, crossScore
	case crossDir == rsiDir:
		return crossDir, crossScore + rsiScore
	default:
		return domain.ActionHold, 0
	}
}

func applyTrendGate(strength int, dir domain.Action, trend *domain.TrendSnapshot, cfg Config, indicators map[string]any) int {
	if trend == nil {
		return strength
	}

	counter := (dir == domain.ActionBuy && trend.Trend1h == domain.TrendBearish && trend.Trend15m == domain.TrendBearish) ||
		(dir == domain.ActionSell && trend.Trend1h == domain.TrendBullish && trend.Trend15m == domain.TrendBullish)

	indicators["counterTrend"] = counter
	if counter {
		strength -= cfg.TrendCounterPenalty
	}
	return strength
}

func applyLiquidationBoost(strength int, liqVolume decimal.Decimal, cfg Config, indicators map[string]any) int {
	if liqVolume.IsZero() || liqVolume.IsNegative() {
		return strength
	}

	// Linear boost: +1 per whole $100k of supporting liquidation volume,
	// capped at LiquidationBoostCap.
	hundredK := decimal.NewFromInt(100000)
	boost := int(liqVolume.Div(hundredK).IntPart())
	if boost > cfg.LiquidationBoostCap {
		boost = cfg.LiquidationBoostCap
	}
	indicators["liquidationBoost"] = boost
	return strength + boost
}

func reasonFor(dir domain.Action, rsi, volRatio float64) string {
	switch dir {
	case domain.ActionBuy:
		return "bullish MA crossover / RSI / volume confluence"
	case domain.ActionSell:
		return "bearish MA crossover / RSI / volume confluence"
	default:
		return "no clear direction"
	}
}

// ema computes the exponential moving average over the trailing period
// candles, SMA-seeded, matching the reference material's approximation.
func ema(prices []float64, period int) float64 {
	if len(prices) < period {
		return 0
	}

	k := 2.0 / float64(period+1)

	sum := 0.0
	for i := 0; i < period; i++ {
		sum += prices[i]
	}
	e := sum / float64(period)

	for i := period; i < len(prices); i++ {
		e = (prices[i] * k) + (e * (1 - k))
	}
	return e
}

// rsi14 computes the standard 14-period RSI over the trailing window.
func rsi14(prices []float64) float64 {
	const period = 14
	if len(prices) < period+1 {
		return 50.0
	}

	start := len(prices) - period - 1
	var gains, losses float64
	for i := start + 1; i < len(prices); i++ {
		change := prices[i] - prices[i-1]
		if change > 0 {
			gains += change
		} else {
			losses -= change
		}
	}

	avgGain := gains / period
	avgLoss := losses / period
	if avgLoss == 0 {
		if avgGain == 0 {
			return 50.0
		}
		return 100.0
	}

	rs := avgGain / avgLoss
	return 100 - (100 / (1 + rs))
}

// volumeRatio compares the most recent candle's volume to the trailing
// average (excluding the most recent candle itself).
func volumeRatio(volumes []float64) float64 {
	if len(volumes) < 2 {
		return 1.0
	}
	last := volumes[len(volumes)-1]
	rest := volumes[:len(volumes)-1]

	sum := 0.0
	for _, v := range rest {
		sum += v
	}
	avg := sum / float64(len(rest))
	if avg == 0 {
		return 1.0
	}
	return last / avg
}
