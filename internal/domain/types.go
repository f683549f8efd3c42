// Package domain holds the types shared across every component of the
// trading pipeline: symbols, klines, tickers, signals, tasks, positions,
// and the small supporting structures (blacklist, circuit breaker, cache
// entries) that more than one package needs to agree on.
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side is a directional trade action.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// PositionSide is the futures position direction.
type PositionSide string

const (
	PositionLong  PositionSide = "LONG"
	PositionShort PositionSide = "SHORT"
)

// Action is the output of the indicator engine before it becomes a trade.
type Action string

const (
	ActionBuy  Action = "BUY"
	ActionSell Action = "SELL"
	ActionHold Action = "HOLD"
)

// Symbol is the primary key for a tradeable contract, e.g. "BTCUSDT".
type Symbol string

// Kline is one OHLCV candle.
type Kline struct {
	OpenTime time.Time
	Open     decimal.Decimal
	High     decimal.Decimal
	Low      decimal.Decimal
	Close    decimal.Decimal
	Volume   decimal.Decimal
}

// Ticker is a point-in-time market snapshot for a symbol.
type Ticker struct {
	Symbol          Symbol
	LastPrice       decimal.Decimal
	BidPrice        decimal.Decimal
	AskPrice        decimal.Decimal
	HighPrice24h    decimal.Decimal
	LowPrice24h     decimal.Decimal
	QuoteVolume24h  decimal.Decimal
	ChangePercent24 decimal.Decimal
	LastUpdate      time.Time
}

// Signal is the recommendation emitted by the worker pool for one symbol.
type Signal struct {
	ID         string
	Symbol     Symbol
	Action     Action
	Strength   int
	Reason     string
	Indicators map[string]any
	CreatedAt  time.Time
}

// QueuedSignal wraps a Signal with queue bookkeeping.
//
// Invariants: ExpiresAt > QueuedAt; Attempts <= MaxAttempts; Processed=true
// implies the signal has been dispatched to exactly one executor.
type QueuedSignal struct {
	Signal      Signal
	Priority    float64
	QueuedAt    time.Time
	ExpiresAt   time.Time
	Attempts    int
	MaxAttempts int
	Processed   bool

	// seq breaks ties between equal priorities in FIFO order; it is set by
	// the queue on Enqueue and is not meaningful outside it.
	seq uint64
}

// Seq returns the monotonic enqueue sequence number used for FIFO tiebreak.
func (q *QueuedSignal) Seq() uint64 { return q.seq }

// SetSeq is called only by PrioritySignalQueue.
func (q *QueuedSignal) SetSeq(n uint64) { q.seq = n }

// TradeTask is a unit of executor work derived from a validated signal.
// HOLD signals never become a TradeTask.
type TradeTask struct {
	ID            string
	QueuedSignal  *QueuedSignal
	Symbol        Symbol
	Action        Side
	PositionSize  decimal.Decimal
	MaxSlippage   decimal.Decimal
	Priority      float64
	Attempts      int
	MaxAttempts   int
	CreatedAt     time.Time
}

// PositionStatus is the lifecycle state of a ManagedPosition.
type PositionStatus string

const (
	PositionActive  PositionStatus = "ACTIVE"
	PositionClosing PositionStatus = "CLOSING"
	PositionClosed  PositionStatus = "CLOSED"
)

// CloseReason explains why a position was closed.
type CloseReason string

const (
	CloseReasonStopLoss   CloseReason = "STOP_LOSS"
	CloseReasonTakeProfit CloseReason = "TAKE_PROFIT"
	CloseReasonExpired    CloseReason = "EXPIRED"
	CloseReasonEmergency  CloseReason = "EMERGENCY"
	CloseReasonExternal   CloseReason = "EXTERNAL"
	CloseReasonManual     CloseReason = "MANUAL"
)

// ManagedPosition is a live, tracked futures position.
//
// Invariants: for LONG, StopLossPrice < EntryPrice < TakeProfitPrice; for
// SHORT, TakeProfitPrice < EntryPrice < StopLossPrice; at most one ACTIVE
// position per symbol exists across the whole process; Quantity > 0.
type ManagedPosition struct {
	ID              string
	Symbol          Symbol
	Side            PositionSide
	EntryPrice      decimal.Decimal
	Quantity        decimal.Decimal
	StopLossPrice   decimal.Decimal
	TakeProfitPrice decimal.Decimal
	OrderID         string
	UnrealizedPnl   decimal.Decimal
	Status          PositionStatus
	CreatedAt       time.Time
	LastUpdate      time.Time

	// HighWaterMark tracks the most favorable price seen since entry, used
	// by the trailing-stop state machine.
	HighWaterMark decimal.Decimal
	TrailingArmed bool
}

// BlacklistEntry temporarily excludes a symbol from the scan universe after
// repeated worker failures.
//
// Invariant: BackoffUntil = LastFailedAt + min(2^FailureCount * 30s, 4h).
type BlacklistEntry struct {
	Symbol       Symbol
	FailureCount int
	LastFailedAt time.Time
	BackoffUntil time.Time
}

// CircuitBreakerState is the shared failure counter the worker pool trips.
type CircuitBreakerState struct {
	ConsecutiveErrors int
	IsOpen            bool
	OpenedAt          time.Time
	ResumeAt          time.Time
}

// CacheEntry is a generic TTL-guarded cache slot.
type CacheEntry[T any] struct {
	Value     T
	ExpiresAt time.Time
}

// Expired reports whether the entry is stale as of now.
func (c CacheEntry[T]) Expired(now time.Time) bool {
	return now.After(c.ExpiresAt)
}

// Priority is the APIRequestManager request priority; lower value = served
// first.
type Priority int

const (
	PriorityCritical Priority = 1
	PriorityHigh     Priority = 2
	PriorityMedium   Priority = 3
	PriorityLow      Priority = 4
)

// AccountState is the subset of account data RiskValidator needs.
type AccountState struct {
	Equity          decimal.Decimal
	DailyRealizedPnl decimal.Decimal
	PeakEquity      decimal.Decimal
}

// LiquidationEvent is one forced-liquidation print from the exchange feed.
type LiquidationEvent struct {
	Symbol    Symbol
	Side      Side
	AmountUSD decimal.Decimal
	Timestamp time.Time
}

// TrendDirection is the outcome of a single-timeframe EMA crossover check.
type TrendDirection string

const (
	TrendBullish TrendDirection = "BULLISH"
	TrendBearish TrendDirection = "BEARISH"
	TrendNeutral TrendDirection = "NEUTRAL"
)

// TrendSnapshot is the multi-timeframe trend-gate result for one symbol.
type TrendSnapshot struct {
	Symbol         Symbol
	Trend1h        TrendDirection
	Trend15m       TrendDirection
	Trend5m        TrendDirection
	Trend1m        TrendDirection
	RSI            float64
	IsCounterTrend bool
}
