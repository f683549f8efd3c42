package exchange

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/adshao/go-binance/v2/futures"

	"github.com/sentineltrade/futuresbot/internal/domain"
)

// normalizeKlines accepts go-binance's typed *futures.Kline slice. The
// library itself already normalizes the exchange's wire format (which
// spec §6 notes may be object or positional-array), so this function's job
// is strictly the adaptation from the client library's type to the
// pipeline's own domain.Kline — the one place that schema variance (per
// spec §9) is absorbed, isolated from the rest of the codebase.
func normalizeKlines(raw []*futures.Kline) ([]domain.Kline, error) {
	out := make([]domain.Kline, 0, len(raw))
	for _, k := range raw {
		out = append(out, domain.Kline{
			OpenTime: time.UnixMilli(k.OpenTime),
			Open:     parseDecimal(k.Open),
			High:     parseDecimal(k.High),
			Low:      parseDecimal(k.Low),
			Close:    parseDecimal(k.Close),
			Volume:   parseDecimal(k.Volume),
		})
	}
	return out, nil
}

// normalizeTickerPrices builds a partial Ticker from a price-only response;
// callers overlay bid/ask from the book-ticker endpoint separately.
func normalizeTickerPrices(symbol domain.Symbol, prices []*futures.SymbolPrice) (domain.Ticker, error) {
	for _, p := range prices {
		if p.Symbol == string(symbol) {
			return domain.Ticker{
				Symbol:     symbol,
				LastPrice:  parseDecimal(p.Price),
				LastUpdate: time.Now(),
			}, nil
		}
	}
	return domain.Ticker{}, &domain.TransportError{Reason: "schema", Err: fmt.Errorf("symbol %s not present in price list response", symbol)}
}

// normalizeBalance picks the entry for asset out of the typed balance list
// the futures client returns; an absent asset is a schema TransportError.
func normalizeBalance(raw []*futures.Balance, asset string) (Balance, error) {
	for _, b := range raw {
		if b.Asset == asset {
			return Balance{
				Asset:     b.Asset,
				Available: parseDecimal(b.AvailableBalance),
				Total:     parseDecimal(b.Balance),
			}, nil
		}
	}
	return Balance{}, &domain.TransportError{Reason: "schema", Err: fmt.Errorf("asset %s not present in balance response", asset)}
}

// normalizeBalanceFromAny handles the degenerate case described in spec §6
// where an upstream wrapper hands back raw JSON instead of the typed
// go-binance response (e.g. a cached/replayed payload). It accepts object,
// array, and nested-array shapes and extracts the requested asset.
func normalizeBalanceFromAny(raw json.RawMessage, asset string) (Balance, error) {
	var asArray []map[string]any
	if err := json.Unmarshal(raw, &asArray); err == nil {
		for _, entry := range asArray {
			if s, _ := entry["asset"].(string); s == asset {
				return balanceFromMap(entry), nil
			}
		}
	}

	var nested [][]map[string]any
	if err := json.Unmarshal(raw, &nested); err == nil {
		for _, group := range nested {
			for _, entry := range group {
				if s, _ := entry["asset"].(string); s == asset {
					return balanceFromMap(entry), nil
				}
			}
		}
	}

	var single map[string]any
	if err := json.Unmarshal(raw, &single); err == nil {
		if s, _ := single["asset"].(string); s == asset {
			return balanceFromMap(single), nil
		}
	}

	return Balance{}, &domain.TransportError{Reason: "schema", Err: fmt.Errorf("unrecognized balance payload shape for asset %s", asset)}
}

func balanceFromMap(m map[string]any) Balance {
	b := Balance{}
	if s, ok := m["asset"].(string); ok {
		b.Asset = s
	}
	if s, ok := m["availableBalance"].(string); ok {
		b.Available = parseDecimal(s)
	}
	if s, ok := m["balance"].(string); ok {
		b.Total = parseDecimal(s)
	}
	return b
}
