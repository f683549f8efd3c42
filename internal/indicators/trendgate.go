package indicators

import (
	"context"

	"github.com/sentineltrade/futuresbot/internal/domain"
)

// KlineSource is the narrow dependency TrendGate needs; satisfied by
// *marketdata.Cache without this package importing it directly.
type KlineSource interface {
	GetKlines(ctx context.Context, symbol domain.Symbol, interval string, limit int) ([]domain.Kline, error)
}

// TrendGate computes a multi-timeframe EMA9/EMA21 crossover snapshot,
// grounded on trend_analyzer.go's GetMarketTrend/analyzeTimeframe.
type TrendGate struct {
	source KlineSource
}

func NewTrendGate(source KlineSource) *TrendGate {
	return &TrendGate{source: source}
}

// Snapshot fetches 1h/15m/5m/1m klines and returns the combined trend
// picture plus 15m RSI. Any timeframe that fails to fetch is reported
// NEUTRAL rather than failing the whole snapshot.
func (g *TrendGate) Snapshot(ctx context.Context, symbol domain.Symbol) domain.TrendSnapshot {
	snap := domain.TrendSnapshot{
		Symbol:   symbol,
		Trend1h:  domain.TrendNeutral,
		Trend15m: domain.TrendNeutral,
		Trend5m:  domain.TrendNeutral,
		Trend1m:  domain.TrendNeutral,
		RSI:      50.0,
	}

	snap.Trend1h = g.timeframeTrend(ctx, symbol, "1h")
	snap.Trend15m = g.timeframeTrend(ctx, symbol, "15m")
	snap.Trend5m = g.timeframeTrend(ctx, symbol, "5m")
	snap.Trend1m = g.timeframeTrend(ctx, symbol, "1m")

	if klines, err := g.source.GetKlines(ctx, symbol, "15m", 30); err == nil {
		closes := make([]float64, len(klines))
		for i, k := range klines {
			closes[i], _ = k.Close.Float64()
		}
		snap.RSI = rsi14(closes)
	}

	return snap
}

func (g *TrendGate) timeframeTrend(ctx context.Context, symbol domain.Symbol, interval string) domain.TrendDirection {
	klines, err := g.source.GetKlines(ctx, symbol, interval, 30)
	if err != nil || len(klines) < 25 {
		return domain.TrendNeutral
	}

	closes := make([]float64, len(klines))
	for i, k := range klines {
		closes[i], _ = k.Close.Float64()
	}

	ma9 := ema(closes, 9)
	ma21 := ema(closes, 21)
	if ma9 == 0 || ma21 == 0 {
		return domain.TrendNeutral
	}
	if ma9 > ma21 {
		return domain.TrendBullish
	}
	return domain.TrendBearish
}
