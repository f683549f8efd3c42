// Package orchestrator implements the TradingBot (C9): lifecycle,
// scan-loop, and event wiring that tie C1-C8 together into a single running
// process. The channel-fan-in construction style and blacklist-with-backoff
// bookkeeping are grounded on main.go's CoinManager.Start wiring.
package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/jpillora/backoff"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/sentineltrade/futuresbot/internal/domain"
	"github.com/sentineltrade/futuresbot/internal/events"
	"github.com/sentineltrade/futuresbot/internal/executor"
	"github.com/sentineltrade/futuresbot/internal/marketdata"
	"github.com/sentineltrade/futuresbot/internal/position"
	"github.com/sentineltrade/futuresbot/internal/risk"
	"github.com/sentineltrade/futuresbot/internal/signalqueue"
	"github.com/sentineltrade/futuresbot/internal/workerpool"
)

// Config controls scan cadence and signal-admission thresholds.
type Config struct {
	ScanInterval         time.Duration
	MinSignalStrength    int
	ImmediateExecutionBonus int
	ImmediateExecution   bool
	DefaultPositionSize  decimal.Decimal
	BlacklistBaseDelay   time.Duration
	BlacklistMaxDelay    time.Duration
	UniverseBatchSize    int
}

func DefaultConfig() Config {
	return Config{
		ScanInterval:            20 * time.Second,
		MinSignalStrength:       55,
		ImmediateExecutionBonus: 10,
		ImmediateExecution:      true,
		DefaultPositionSize:     decimal.NewFromInt(50),
		BlacklistBaseDelay:      30 * time.Second,
		BlacklistMaxDelay:       4 * time.Hour,
		UniverseBatchSize:       20,
	}
}

// Bot is the concrete TradingBot orchestrator.
type Bot struct {
	cfg  Config
	log  zerolog.Logger
	bus  *events.Bus
	mdc  *marketdata.Cache
	pool *workerpool.Pool
	q    *signalqueue.Queue
	rv   *risk.Validator
	ex   *executor.Pool
	pm   *position.Manager

	mu        sync.Mutex
	blacklist map[domain.Symbol]*domain.BlacklistEntry
	universe  []domain.Symbol

	suspended bool

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(cfg Config, bus *events.Bus, mdc *marketdata.Cache, pool *workerpool.Pool, q *signalqueue.Queue, rv *risk.Validator, ex *executor.Pool, pm *position.Manager, log zerolog.Logger) *Bot {
	b := &Bot{
		cfg:       cfg,
		log:       log.With().Str("component", "orchestrator").Logger(),
		bus:       bus,
		mdc:       mdc,
		pool:      pool,
		q:         q,
		rv:        rv,
		ex:        ex,
		pm:        pm,
		blacklist: make(map[domain.Symbol]*domain.BlacklistEntry),
	}
	b.subscribe()
	return b
}

func (b *Bot) subscribe() {
	events.Subscribe(b.bus, func(e events.SignalGeneratedEvent) {
		b.handleSignal(e.Signal)
	})
	events.Subscribe(b.bus, func(e events.TaskFailedEvent) {
		b.blacklistFailure(e.Symbol)
	})
	events.Subscribe(b.bus, func(e events.CircuitBreakerOpenedEvent) {
		b.suspend()
	})
	events.Subscribe(b.bus, func(e events.CircuitBreakerResetEvent) {
		b.resume()
	})
}

// Start launches every sub-component and the scan loop, blocking only long
// enough to kick off the first symbol wave.
func (b *Bot) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	b.cancel = cancel

	b.pool.Start(runCtx)
	b.ex.Start(runCtx)
	b.pm.Start(runCtx)

	if err := b.pm.LoadOnStart(runCtx, decimal.NewFromFloat(0.02), decimal.NewFromFloat(0.03)); err != nil {
		b.log.Warn().Err(err).Msg("position reconstruction on start failed")
	}

	universe, err := b.pool.LoadUniverse(runCtx, b.cfg.UniverseBatchSize)
	if err != nil {
		cancel()
		return err
	}
	b.mu.Lock()
	b.universe = universe
	b.mu.Unlock()

	b.wg.Add(1)
	go b.scanLoop(runCtx)

	return nil
}

// Stop cancels the scan loop and every sub-component, waiting for a bounded
// grace period for in-flight work to drain.
func (b *Bot) Stop() {
	if b.cancel != nil {
		b.cancel()
	}
	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		b.log.Warn().Msg("shutdown grace period expired before scan loop exited")
	}
	b.pool.Stop()
	b.ex.Stop()
	b.pm.Stop()
	b.q.Stop()
}

func (b *Bot) scanLoop(ctx context.Context) {
	defer b.wg.Done()
	ticker := time.NewTicker(b.cfg.ScanInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.scan()
		}
	}
}

// scan submits one task per eligible (non-blacklisted, non-suspended) symbol
// and drains a queued signal into the executor pool (spec §4.9).
func (b *Bot) scan() {
	if b.isSuspended() {
		return
	}

	for _, symbol := range b.symbolsDue() {
		b.pool.Submit(workerpool.SymbolTask{Symbol: symbol, Priority: domain.PriorityMedium})
	}

	if qs, ok := b.q.Dequeue(); ok {
		positionSize := b.cfg.DefaultPositionSize
		if _, err := b.ex.AddSignal(qs, positionSize); err != nil {
			events.Publish(b.bus, events.TradeRejectedEvent{
				Code:    "DISPATCH_FAILED",
				Message: err.Error(),
				Details: map[string]any{"symbol": string(qs.Signal.Symbol)},
			})
		}
	}
}

func (b *Bot) symbolsDue() []domain.Symbol {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	due := make([]domain.Symbol, 0, len(b.universe))
	for _, sym := range b.universe {
		if entry, blocked := b.blacklist[sym]; blocked && now.Before(entry.BackoffUntil) {
			continue
		}
		due = append(due, sym)
	}
	return due
}

// handleSignal implements the orchestrator's signal-generated pipeline
// (spec §4.9 step 2-5): drop HOLD/weak signals, validate, then either
// execute immediately or enqueue.
func (b *Bot) handleSignal(sig domain.Signal) {
	if sig.Action == domain.ActionHold || sig.Strength < b.cfg.MinSignalStrength {
		return
	}

	side := domain.SideBuy
	if sig.Action == domain.ActionSell {
		side = domain.SideSell
	}

	ticker, err := b.mdc.GetTicker(context.Background(), sig.Symbol)
	if err != nil {
		return
	}

	positionSize := b.cfg.DefaultPositionSize
	quantity := positionSize.Div(ticker.LastPrice)
	stopLoss, takeProfit := b.rv.ComputeStopLossAndTakeProfit(side, ticker.LastPrice)

	account := domain.AccountState{Equity: decimal.NewFromInt(10000), PeakEquity: decimal.NewFromInt(10000)}
	assessment := b.rv.Validate(sig.Symbol, side, quantity, ticker.LastPrice, stopLoss, takeProfit, account)
	if !assessment.IsValid {
		events.Publish(b.bus, events.TradeRejectedEvent{
			Code:    "RISK_REJECTED",
			Message: "signal failed risk validation",
			Details: map[string]any{"symbol": string(sig.Symbol), "errors": assessment.Errors},
		})
		return
	}
	if len(assessment.Warnings) > 0 {
		b.log.Debug().Str("symbol", string(sig.Symbol)).Strs("warnings", assessment.Warnings).Msg("signal validated with warnings")
	}

	qs := &domain.QueuedSignal{
		Signal:      sig,
		QueuedAt:    time.Now(),
		ExpiresAt:   time.Now().Add(3 * time.Minute),
		MaxAttempts: 3,
	}

	if sig.Strength >= b.cfg.MinSignalStrength+b.cfg.ImmediateExecutionBonus && b.cfg.ImmediateExecution {
		if err := b.ex.ExecuteImmediately(context.Background(), qs, positionSize); err != nil {
			b.queueSignal(sig)
		}
		return
	}

	b.queueSignal(sig)
}

func (b *Bot) queueSignal(sig domain.Signal) {
	b.q.Enqueue(sig, 0)
}

// blacklistFailure records a worker failure against symbol and computes the
// next backoff window (spec's BlacklistEntry invariant, jpillora/backoff).
func (b *Bot) blacklistFailure(symbol domain.Symbol) {
	b.mu.Lock()
	defer b.mu.Unlock()

	entry, ok := b.blacklist[symbol]
	if !ok {
		entry = &domain.BlacklistEntry{Symbol: symbol}
		b.blacklist[symbol] = entry
	}
	entry.FailureCount++
	entry.LastFailedAt = time.Now()

	bo := &backoff.Backoff{
		Min:    b.cfg.BlacklistBaseDelay,
		Max:    b.cfg.BlacklistMaxDelay,
		Factor: 2,
	}
	var delay time.Duration
	for i := 0; i <= entry.FailureCount; i++ {
		delay = bo.Duration()
	}
	entry.BackoffUntil = entry.LastFailedAt.Add(delay)
}

func (b *Bot) suspend() {
	b.mu.Lock()
	b.suspended = true
	b.mu.Unlock()
	b.mdc.EmergencyStop()
	b.log.Warn().Msg("circuit breaker opened: scanning suspended")
}

func (b *Bot) resume() {
	b.mu.Lock()
	b.suspended = false
	b.mu.Unlock()
	b.log.Info().Msg("circuit breaker reset: scanning resumed")
}

func (b *Bot) isSuspended() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.suspended
}
