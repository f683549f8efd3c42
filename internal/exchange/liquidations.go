package exchange

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/sentineltrade/futuresbot/internal/domain"
)

// LiquidationMonitor aggregates forced-liquidation volume per symbol/side
// over a trailing window. Directly grounded on the reference material's
// liquidation tracker: lazy cleanup on write, time-windowed sum on read.
type LiquidationMonitor struct {
	mu     sync.RWMutex
	events map[domain.Symbol][]domain.LiquidationEvent
	window time.Duration
}

// NewLiquidationMonitor builds a monitor retaining events for window.
func NewLiquidationMonitor(window time.Duration) *LiquidationMonitor {
	return &LiquidationMonitor{
		events: make(map[domain.Symbol][]domain.LiquidationEvent),
		window: window,
	}
}

// Add records a new liquidation print and lazily evicts stale entries for
// that symbol.
func (m *LiquidationMonitor) Add(symbol domain.Symbol, side domain.Side, amountUSD decimal.Decimal) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.events[symbol] = append(m.events[symbol], domain.LiquidationEvent{
		Symbol:    symbol,
		Side:      side,
		AmountUSD: amountUSD,
		Timestamp: time.Now(),
	})
	m.cleanupLocked(symbol)
}

// Volume returns the total liquidation volume for symbol/side within the
// trailing window. side=BUY means shorts were liquidated (bullish fuel);
// side=SELL means longs were liquidated (bearish fuel).
func (m *LiquidationMonitor) Volume(symbol domain.Symbol, side domain.Side) decimal.Decimal {
	m.mu.RLock()
	defer m.mu.RUnlock()

	total := decimal.Zero
	cutoff := time.Now().Add(-m.window)
	for _, ev := range m.events[symbol] {
		if ev.Timestamp.After(cutoff) && ev.Side == side {
			total = total.Add(ev.AmountUSD)
		}
	}
	return total
}

func (m *LiquidationMonitor) cleanupLocked(symbol domain.Symbol) {
	cutoff := time.Now().Add(-m.window)
	events := m.events[symbol]

	valid := events[:0]
	for _, ev := range events {
		if ev.Timestamp.After(cutoff) {
			valid = append(valid, ev)
		}
	}
	m.events[symbol] = valid
}
