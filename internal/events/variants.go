package events

import (
	"time"

	"github.com/sentineltrade/futuresbot/internal/domain"
)

// SignalGeneratedEvent is emitted by the worker pool for every evaluated
// symbol, including HOLD.
type SignalGeneratedEvent struct {
	baseEvent
	Signal domain.Signal
}

// SymbolsProcessedEvent reports the final sorted symbol universe.
type SymbolsProcessedEvent struct {
	baseEvent
	Symbols []domain.Symbol
}

// SymbolWaveAddedEvent reports one progressive-loading wave.
type SymbolWaveAddedEvent struct {
	baseEvent
	Wave   int
	Symbols []domain.Symbol
}

// CircuitBreakerOpenedEvent fires when the worker pool trips its breaker.
type CircuitBreakerOpenedEvent struct {
	baseEvent
	ConsecutiveErrors int
	ResumeAt          time.Time
}

// CircuitBreakerResetEvent fires when dispatch resumes.
type CircuitBreakerResetEvent struct {
	baseEvent
}

// TaskFailedEvent fires when a SymbolTask exhausts its retries in C4.
type TaskFailedEvent struct {
	baseEvent
	Symbol domain.Symbol
	Err    error
}

// SignalExpiredEvent fires when C5's sweep evicts a stale entry.
type SignalExpiredEvent struct {
	baseEvent
	SignalID string
}

// SignalFailedEvent fires when C5 drops a signal after MaxAttempts.
type SignalFailedEvent struct {
	baseEvent
	SignalID string
	Err      error
}

// TradeRejectedEvent is the stable, UI-facing rejection surface every
// rejection path (C6, C7, C9) is required to emit.
type TradeRejectedEvent struct {
	baseEvent
	Code    string
	Message string
	Details map[string]any
}

// TradeExecutedEvent fires once a C7 order placement succeeds.
type TradeExecutedEvent struct {
	baseEvent
	Position domain.ManagedPosition
	OrderID  string
}

// TaskRetryEvent fires when an executor task is requeued after failure.
type TaskRetryEvent struct {
	baseEvent
	TaskID   string
	Symbol   domain.Symbol
	Attempt  int
}

// PositionRemovedEvent fires when C8 closes/forgets a position.
type PositionRemovedEvent struct {
	baseEvent
	Position domain.ManagedPosition
	Reason   domain.CloseReason
}

// PositionCloseErrorEvent fires when a close attempt fails and the position
// reverts to ACTIVE.
type PositionCloseErrorEvent struct {
	baseEvent
	Symbol domain.Symbol
	Err    error
}

// ActivityEvent is a generic, loggable lifecycle/status line surfaced to
// observers (status broadcaster, Telegram notifier) that don't need a more
// specific typed event.
type ActivityEvent struct {
	baseEvent
	Level   string
	Message string
}

// TickerUpdateEvent is emitted by MarketDataCache on every refreshed
// ticker, for logging/UI only — never a trading trigger.
type TickerUpdateEvent struct {
	baseEvent
	Ticker domain.Ticker
}

// SignificantPriceChangeEvent is emitted when a ticker moves by at least the
// configured threshold since the previous cached value.
type SignificantPriceChangeEvent struct {
	baseEvent
	Symbol        domain.Symbol
	ChangePercent float64
}

// DailyLimitExceededEvent fires when RiskValidator's monitoring path
// detects the daily loss cap has been breached.
type DailyLimitExceededEvent struct {
	baseEvent
	DailyRealizedPnl string
}

// EmergencyStopEvent fires when a position must be force-closed regardless
// of its scheduled SL/TP due to risk-policy breach.
type EmergencyStopEvent struct {
	baseEvent
	Symbol domain.Symbol
	Reason string
}
