// Package executor implements the TradeExecutorPool (C7): a fixed pool of
// executor goroutines that turn validated TradeTasks into live orders. The
// per-task pipeline (balance check, duplicate-position re-check, order
// placement, retry-or-fail) is grounded on execution_service.go's
// ExecuteTrade/CheckBalance.
package executor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"github.com/sentineltrade/futuresbot/internal/domain"
	"github.com/sentineltrade/futuresbot/internal/events"
	"github.com/sentineltrade/futuresbot/internal/exchange"
	"github.com/sentineltrade/futuresbot/internal/requestmanager"
	"github.com/sentineltrade/futuresbot/internal/risk"
)

// Config controls pool sizing and limits (spec §4.7, §6).
type Config struct {
	MaxExecutors        int
	MaxConcurrentTrades int
	ExecutionTimeout    time.Duration
	MaxSignalAge        time.Duration
	MaxAttempts         int
	QuoteAsset          string
	RateLimit           rate.Limit
}

func DefaultConfig() Config {
	return Config{
		MaxExecutors:        5,
		MaxConcurrentTrades: 8,
		ExecutionTimeout:    15 * time.Second,
		MaxSignalAge:        60 * time.Second,
		MaxAttempts:         3,
		QuoteAsset:          "USDT",
		RateLimit:           0.8,
	}
}

// PositionRegistrar is the narrow dependency the pool needs on C8, avoiding
// a direct import cycle with internal/position.
type PositionRegistrar interface {
	Register(pos domain.ManagedPosition)
}

// Ledger is the narrow persistence dependency; satisfied by internal/ledger.
type Ledger interface {
	RecordOpen(ctx context.Context, pos domain.ManagedPosition, indicators map[string]any) error
}

// Pool is the concrete TradeExecutorPool.
type Pool struct {
	cfg  Config
	log  zerolog.Logger
	bus  *events.Bus
	rm   *requestmanager.Manager
	ex   exchange.Client
	risk *risk.Validator
	pm   PositionRegistrar
	led  Ledger

	tasks chan *domain.TradeTask

	// admit is the local 1-second rate-limit window layered on top of C1's
	// global budget (spec's tradeExecutors.rateLimit knob). It gates how
	// often this pool itself accepts new work into AddSignal, independent
	// of whatever C1/C2 later decide about the outbound exchange call.
	admit *rate.Limiter

	mu             sync.Mutex
	activePositions map[domain.Symbol]struct{}

	wg     sync.WaitGroup
	stopCh chan struct{}
}

func New(cfg Config, bus *events.Bus, rm *requestmanager.Manager, ex exchange.Client, rv *risk.Validator, pm PositionRegistrar, led Ledger, log zerolog.Logger) *Pool {
	return &Pool{
		cfg:             cfg,
		log:             log.With().Str("component", "executor").Logger(),
		bus:             bus,
		rm:              rm,
		ex:              ex,
		risk:            rv,
		pm:              pm,
		led:             led,
		tasks:           make(chan *domain.TradeTask, cfg.MaxConcurrentTrades*4),
		admit:           rate.NewLimiter(cfg.RateLimit, 1),
		activePositions: make(map[domain.Symbol]struct{}),
		stopCh:          make(chan struct{}),
	}
}

func (p *Pool) Start(ctx context.Context) {
	for i := 0; i < p.cfg.MaxExecutors; i++ {
		p.wg.Add(1)
		go p.worker(ctx)
	}
}

func (p *Pool) Stop() {
	close(p.stopCh)
	p.wg.Wait()
}

// AddSignal enqueues a task derived from qs, refusing on the local
// rate-limit window, concurrency cap, or duplicate-position limits (spec
// §4.7).
func (p *Pool) AddSignal(qs *domain.QueuedSignal, positionSize decimal.Decimal) (string, error) {
	if !p.admit.Allow() {
		events.Publish(p.bus, events.TradeRejectedEvent{
			Code:    "RATE_LIMITED",
			Message: "local executor rate-limit window exceeded",
			Details: map[string]any{"symbol": string(qs.Signal.Symbol)},
		})
		return "", fmt.Errorf("local rate limit exceeded: %w", domain.ErrRateTimeout)
	}

	p.mu.Lock()
	if len(p.activePositions) >= p.cfg.MaxConcurrentTrades {
		p.mu.Unlock()
		return "", fmt.Errorf("max concurrent trades reached: %w", domain.ErrMaxConcurrentTrades)
	}
	if _, exists := p.activePositions[qs.Signal.Symbol]; exists {
		p.mu.Unlock()
		return "", fmt.Errorf("position already open for %s: %w", qs.Signal.Symbol, domain.ErrPositionExists)
	}
	p.mu.Unlock()

	task := p.buildTask(qs, positionSize)

	select {
	case p.tasks <- task:
		return task.ID, nil
	default:
		return "", fmt.Errorf("executor queue full: %w", domain.ErrQueueFull)
	}
}

// ExecuteImmediately runs a task synchronously against a free executor slot
// if available, else delegates to AddSignal.
func (p *Pool) ExecuteImmediately(ctx context.Context, qs *domain.QueuedSignal, positionSize decimal.Decimal) error {
	p.mu.Lock()
	full := len(p.activePositions) >= p.cfg.MaxConcurrentTrades
	_, exists := p.activePositions[qs.Signal.Symbol]
	p.mu.Unlock()
	if full || exists {
		_, err := p.AddSignal(qs, positionSize)
		return err
	}

	task := p.buildTask(qs, positionSize)
	return p.execute(ctx, task)
}

func (p *Pool) buildTask(qs *domain.QueuedSignal, positionSize decimal.Decimal) *domain.TradeTask {
	side := domain.SideBuy
	if qs.Signal.Action == domain.ActionSell {
		side = domain.SideSell
	}
	return &domain.TradeTask{
		ID:           uuid.NewString(),
		QueuedSignal: qs,
		Symbol:       qs.Signal.Symbol,
		Action:       side,
		PositionSize: positionSize,
		Priority:     qs.Priority,
		MaxAttempts:  p.cfg.MaxAttempts,
		CreatedAt:    time.Now(),
	}
}

func (p *Pool) worker(ctx context.Context) {
	defer p.wg.Done()
	for {
		select {
		case <-p.stopCh:
			return
		case <-ctx.Done():
			return
		case task := <-p.tasks:
			p.executeWithRetry(ctx, task)
		}
	}
}

func (p *Pool) executeWithRetry(ctx context.Context, task *domain.TradeTask) {
	if err := p.execute(ctx, task); err != nil {
		task.Attempts++
		var exErr *domain.ExchangeError
		if errors.As(err, &exErr) && !exErr.Retryable() {
			events.Publish(p.bus, events.TaskFailedEvent{Symbol: task.Symbol, Err: err})
			return
		}
		if task.Attempts < task.MaxAttempts {
			events.Publish(p.bus, events.TaskRetryEvent{TaskID: task.ID, Symbol: task.Symbol, Attempt: task.Attempts})
			select {
			case p.tasks <- task:
			default:
				events.Publish(p.bus, events.TaskFailedEvent{Symbol: task.Symbol, Err: err})
			}
			return
		}
		events.Publish(p.bus, events.TaskFailedEvent{Symbol: task.Symbol, Err: err})
	}
}

// execute runs the full 8-step per-task pipeline from spec §4.7.
func (p *Pool) execute(ctx context.Context, task *domain.TradeTask) error {
	execCtx, cancel := context.WithTimeout(ctx, p.cfg.ExecutionTimeout)
	defer cancel()

	if age := time.Since(task.QueuedSignal.Signal.CreatedAt); age > p.cfg.MaxSignalAge {
		p.reject("SIGNAL_STALE", fmt.Sprintf("signal age %s exceeds max %s", age, p.cfg.MaxSignalAge), task)
		return domain.ErrSignalStale
	}

	balV, err := p.rm.Do(execCtx, requestmanager.MethodBalance, task.Symbol, "trading", domain.PriorityHigh, func(ctx context.Context) (any, error) {
		return p.ex.GetBalance(ctx, p.cfg.QuoteAsset)
	})
	if err != nil {
		p.reject("BALANCE_FETCH_FAILED", err.Error(), task)
		return err
	}
	bal := balV.(exchange.Balance)
	if bal.Available.LessThan(task.PositionSize) {
		p.reject("INSUFFICIENT_BALANCE", fmt.Sprintf("available %s < required %s", bal.Available, task.PositionSize), task)
		return domain.ErrInsufficientBalance
	}

	p.mu.Lock()
	if _, exists := p.activePositions[task.Symbol]; exists {
		p.mu.Unlock()
		p.reject("POSITION_EXISTS", fmt.Sprintf("position already open for %s", task.Symbol), task)
		return domain.ErrPositionExists
	}
	p.mu.Unlock()

	posV, err := p.rm.Do(execCtx, requestmanager.MethodPositions, task.Symbol, "trading", domain.PriorityHigh, func(ctx context.Context) (any, error) {
		return p.ex.GetPositions(ctx, task.Symbol)
	})
	if err != nil {
		p.reject("POSITION_CHECK_FAILED", err.Error(), task)
		return err
	}
	if positions := posV.([]exchange.Position); len(positions) > 0 {
		for _, pos := range positions {
			if !pos.PositionAmt.IsZero() {
				p.reject("POSITION_EXISTS", fmt.Sprintf("exchange reports open position for %s", task.Symbol), task)
				return domain.ErrPositionExists
			}
		}
	}

	tickerV, err := p.rm.Do(execCtx, requestmanager.MethodTicker, task.Symbol, "trading", domain.PriorityHigh, func(ctx context.Context) (any, error) {
		return p.ex.GetTicker(ctx, task.Symbol)
	})
	if err != nil {
		p.reject("PRICE_FETCH_FAILED", err.Error(), task)
		return err
	}
	ticker := tickerV.(domain.Ticker)

	stopLoss, takeProfit := p.risk.ComputeStopLossAndTakeProfit(task.Action, ticker.LastPrice)

	quantity := task.PositionSize.Div(ticker.LastPrice)

	positionSide := domain.PositionLong
	if task.Action == domain.SideSell {
		positionSide = domain.PositionShort
	}

	result, err := p.ex.PlaceOrder(execCtx, exchange.OrderRequest{
		Symbol:          task.Symbol,
		Side:            task.Action,
		PositionSide:    positionSide,
		Quantity:        quantity,
		StopLossPrice:   stopLoss,
		TakeProfitPrice: takeProfit,
	})
	if err != nil {
		p.reject("ORDER_PLACEMENT_FAILED", err.Error(), task)
		return err
	}

	pos := domain.ManagedPosition{
		ID:              uuid.NewString(),
		Symbol:          task.Symbol,
		Side:            positionSide,
		EntryPrice:      ticker.LastPrice,
		Quantity:        quantity,
		StopLossPrice:   stopLoss,
		TakeProfitPrice: takeProfit,
		OrderID:         result.OrderID,
		Status:          domain.PositionActive,
		CreatedAt:       time.Now(),
		LastUpdate:      time.Now(),
		HighWaterMark:   ticker.LastPrice,
	}

	if p.led != nil {
		if err := p.led.RecordOpen(execCtx, pos, task.QueuedSignal.Signal.Indicators); err != nil {
			p.log.Error().Err(err).Str("symbol", string(task.Symbol)).Msg("ledger write failed after order placement")
		}
	}

	p.mu.Lock()
	p.activePositions[task.Symbol] = struct{}{}
	p.mu.Unlock()

	p.pm.Register(pos)

	events.Publish(p.bus, events.TradeExecutedEvent{Position: pos, OrderID: result.OrderID})
	return nil
}

// Release frees a symbol's active-position slot; called by C8 on close.
func (p *Pool) Release(symbol domain.Symbol) {
	p.mu.Lock()
	delete(p.activePositions, symbol)
	p.mu.Unlock()
}

func (p *Pool) reject(code, message string, task *domain.TradeTask) {
	events.Publish(p.bus, events.TradeRejectedEvent{
		Code:    code,
		Message: message,
		Details: map[string]any{"symbol": string(task.Symbol), "taskId": task.ID},
	})
}
