// Package workerpool implements the SignalWorkerPool (C4): a fixed pool of
// workers that score symbols into Signals, with a shared circuit breaker
// and progressive symbol-universe loading. The per-task worker shape is
// grounded on predator_engine.go's PredatorWorker goroutine-per-symbol
// model; the circuit breaker counter is grounded on the consecutive-loss
// kill-switch idiom in execution_service.go's ExecuteTrade.
package workerpool

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/sentineltrade/futuresbot/internal/domain"
	"github.com/sentineltrade/futuresbot/internal/events"
	"github.com/sentineltrade/futuresbot/internal/exchange"
	"github.com/sentineltrade/futuresbot/internal/indicators"
	"github.com/sentineltrade/futuresbot/internal/marketdata"
)

// SymbolTask is one unit of work submitted to the pool.
type SymbolTask struct {
	Symbol   domain.Symbol
	Priority domain.Priority
}

// Config controls pool sizing and thresholds (spec §4.4, §6).
type Config struct {
	MaxWorkers           int
	MaxQueueDepth        int
	TaskTimeout          time.Duration
	MinVolumeUSDT        float64
	BreakerThreshold     int
	BreakerResumeAfter   time.Duration
	KlineInterval        string
	UniverseMaxSymbols   int
	UniverseMinRelaxed   int
	WaveSize             int
}

func DefaultConfig() Config {
	return Config{
		MaxWorkers:         5,
		MaxQueueDepth:      200,
		TaskTimeout:        6 * time.Second,
		MinVolumeUSDT:      10000,
		BreakerThreshold:   10,
		BreakerResumeAfter: 5 * time.Minute,
		KlineInterval:      "15m",
		UniverseMaxSymbols: 500,
		UniverseMinRelaxed: 50,
		WaveSize:           50,
	}
}

// Pool is the concrete SignalWorkerPool.
type Pool struct {
	cfg  Config
	log  zerolog.Logger
	bus  *events.Bus
	mdc  *marketdata.Cache
	ex   exchange.Client
	gate *indicators.TrendGate
	liqs *exchange.LiquidationMonitor
	icfg indicators.Config

	tasks chan SymbolTask

	breakerMu sync.Mutex
	breaker   domain.CircuitBreakerState

	consecutive atomic.Int32

	wg     sync.WaitGroup
	stopCh chan struct{}
}

// New builds a Pool. mdc/ex/gate/liqs are the collaborators workers call
// into; bus receives every emitted event.
func New(cfg Config, bus *events.Bus, mdc *marketdata.Cache, ex exchange.Client, gate *indicators.TrendGate, liqs *exchange.LiquidationMonitor, icfg indicators.Config, log zerolog.Logger) *Pool {
	return &Pool{
		cfg:    cfg,
		log:    log.With().Str("component", "workerpool").Logger(),
		bus:    bus,
		mdc:    mdc,
		ex:     ex,
		gate:   gate,
		liqs:   liqs,
		icfg:   icfg,
		tasks:  make(chan SymbolTask, cfg.MaxQueueDepth),
		stopCh: make(chan struct{}),
	}
}

// Start launches MaxWorkers worker goroutines.
func (p *Pool) Start(ctx context.Context) {
	for i := 0; i < p.cfg.MaxWorkers; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i)
	}
}

// Stop signals all workers to exit and waits for them.
func (p *Pool) Stop() {
	close(p.stopCh)
	p.wg.Wait()
}

// Submit enqueues a task, non-blocking; returns false if the queue is full.
func (p *Pool) Submit(task SymbolTask) bool {
	select {
	case p.tasks <- task:
		return true
	default:
		return false
	}
}

// BreakerOpen reports whether the circuit breaker currently refuses work.
func (p *Pool) BreakerOpen() bool {
	p.breakerMu.Lock()
	defer p.breakerMu.Unlock()
	if p.breaker.IsOpen && time.Now().After(p.breaker.ResumeAt) {
		return false
	}
	return p.breaker.IsOpen
}

func (p *Pool) worker(ctx context.Context, id int) {
	defer p.wg.Done()
	for {
		select {
		case <-p.stopCh:
			return
		case <-ctx.Done():
			return
		case task := <-p.tasks:
			if p.BreakerOpen() {
				continue
			}
			p.runTask(ctx, task)
		}
	}
}

func (p *Pool) runTask(ctx context.Context, task SymbolTask) {
	taskCtx, cancel := context.WithTimeout(ctx, p.cfg.TaskTimeout)
	defer cancel()

	sig, err := p.evaluate(taskCtx, task.Symbol)
	if err != nil {
		p.recordFailure(task.Symbol, err)
		return
	}
	p.recordSuccess()

	events.Publish(p.bus, events.SignalGeneratedEvent{Signal: sig})
}

func (p *Pool) evaluate(ctx context.Context, symbol domain.Symbol) (domain.Signal, error) {
	ticker, err := p.mdc.GetTicker(ctx, symbol)
	if err != nil {
		return domain.Signal{}, err
	}

	quoteVol, _ := ticker.QuoteVolume24h.Float64()
	if quoteVol < p.cfg.MinVolumeUSDT {
		return domain.Signal{Symbol: symbol, Action: domain.ActionHold, Reason: "below minimum volume"}, nil
	}

	klines, err := p.mdc.GetKlines(ctx, symbol, p.cfg.KlineInterval, 60)
	if err != nil {
		return domain.Signal{}, err
	}

	aux := indicators.Inputs{}
	if p.gate != nil {
		snap := p.gate.Snapshot(ctx, symbol)
		aux.Trend = &snap
	}
	if p.liqs != nil {
		aux.LiquidationVolume = p.liqs.Volume(symbol, domain.SideBuy)
	}

	sig := indicators.EvaluateIndicators(symbol, klines, p.icfg, aux)
	sig.ID = uuid.NewString()
	sig.CreatedAt = time.Now()
	return sig, nil
}

func (p *Pool) recordSuccess() {
	p.consecutive.Store(0)
}

func (p *Pool) recordFailure(symbol domain.Symbol, err error) {
	n := p.consecutive.Add(1)
	events.Publish(p.bus, events.TaskFailedEvent{Symbol: symbol, Err: err})

	if int(n) >= p.cfg.BreakerThreshold {
		p.tripBreaker()
	}
}

func (p *Pool) tripBreaker() {
	p.breakerMu.Lock()
	already := p.breaker.IsOpen
	now := time.Now()
	p.breaker = domain.CircuitBreakerState{
		ConsecutiveErrors: int(p.consecutive.Load()),
		IsOpen:            true,
		OpenedAt:          now,
		ResumeAt:          now.Add(p.cfg.BreakerResumeAfter),
	}
	p.breakerMu.Unlock()

	if !already {
		events.Publish(p.bus, events.CircuitBreakerOpenedEvent{
			ConsecutiveErrors: int(p.consecutive.Load()),
			ResumeAt:          now.Add(p.cfg.BreakerResumeAfter),
		})
	}
}

// ResetBreaker manually clears the breaker (spec §4.4: "on manual reset").
func (p *Pool) ResetBreaker() {
	p.breakerMu.Lock()
	p.breaker = domain.CircuitBreakerState{}
	p.breakerMu.Unlock()
	p.consecutive.Store(0)
	events.Publish(p.bus, events.CircuitBreakerResetEvent{})
}

// LoadUniverse fetches the full contract list, batches 24h-volume fetches,
// sorts by volume, and emits progressive waves. Grounded on main.go's
// startup sequence (fetch exchange info, then volume per symbol).
func (p *Pool) LoadUniverse(ctx context.Context, batchSize int) ([]domain.Symbol, error) {
	infos, err := p.ex.GetSymbols(ctx)
	if err != nil {
		return nil, err
	}

	type candidate struct {
		symbol domain.Symbol
		volume float64
	}

	candidates := make([]candidate, 0, len(infos))
	var mu sync.Mutex
	var wg sync.WaitGroup
	sem := make(chan struct{}, batchSize)

	for _, info := range infos {
		if info.Status != "TRADING" || info.QuoteAsset != "USDT" {
			continue
		}

		wg.Add(1)
		sem <- struct{}{}
		go func(sym domain.Symbol) {
			defer wg.Done()
			defer func() { <-sem }()

			t, err := p.mdc.GetTicker(ctx, sym)
			if err != nil {
				return
			}
			vol, _ := t.QuoteVolume24h.Float64()

			mu.Lock()
			candidates = append(candidates, candidate{symbol: sym, volume: vol})
			mu.Unlock()
		}(info.Symbol)
	}
	wg.Wait()

	sort.Slice(candidates, func(i, j int) bool { return candidates[i].volume > candidates[j].volume })

	qualifying := make([]candidate, 0, len(candidates))
	for _, c := range candidates {
		if c.volume >= p.cfg.MinVolumeUSDT {
			qualifying = append(qualifying, c)
		}
	}
	if len(qualifying) < p.cfg.UniverseMinRelaxed {
		limit := p.cfg.UniverseMinRelaxed
		if limit > len(candidates) {
			limit = len(candidates)
		}
		qualifying = candidates[:limit]
	}
	if len(qualifying) > p.cfg.UniverseMaxSymbols {
		qualifying = qualifying[:p.cfg.UniverseMaxSymbols]
	}

	universe := make([]domain.Symbol, len(qualifying))
	for i, c := range qualifying {
		universe[i] = c.symbol
	}

	events.Publish(p.bus, events.SymbolsProcessedEvent{Symbols: universe})
	p.emitWaves(universe)

	return universe, nil
}

func (p *Pool) emitWaves(universe []domain.Symbol) {
	wave := 0
	for i := 0; i < len(universe); i += p.cfg.WaveSize {
		end := i + p.cfg.WaveSize
		if end > len(universe) {
			end = len(universe)
		}
		events.Publish(p.bus, events.SymbolWaveAddedEvent{Wave: wave, Symbols: universe[i:end]})
		wave++
	}
}
