// Package ratelimit implements the RateGovernor (C1): a process-wide
// coordinator combining per-endpoint minimum spacing with a global token
// bucket, so every exchange call funnels through one place that can make
// both guarantees at once.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/sentineltrade/futuresbot/internal/domain"
)

// BudgetClass groups endpoints that share a token-bucket budget.
type BudgetClass string

const (
	BudgetMarketData BudgetClass = "market_data"
	BudgetTrading    BudgetClass = "trading"
)

// EndpointSpacing is the minimum interval enforced between consecutive
// calls to the same endpoint, independent of the token bucket.
type EndpointSpacing map[string]time.Duration

// Config configures the two budget classes and the per-endpoint spacing
// table. Defaults match spec §4.1 (25 tokens/sec market data, 2/sec
// trading; 300ms/500ms spacing).
type Config struct {
	MarketDataRate  rate.Limit
	MarketDataBurst int
	TradingRate     rate.Limit
	TradingBurst    int
	Spacing         EndpointSpacing
}

func DefaultConfig() Config {
	return Config{
		MarketDataRate:  25,
		MarketDataBurst: 25,
		TradingRate:     2,
		TradingBurst:    2,
		Spacing: EndpointSpacing{
			"market_data": 300 * time.Millisecond,
			"trading":     500 * time.Millisecond,
		},
	}
}

// waiter is one pending Acquire call queued for a contended budget class.
type waiter struct {
	priority domain.Priority
	seq      uint64
	ready    chan struct{}
}

// Governor is the concrete RateGovernor. It holds one rate.Limiter per
// budget class and a mutex-guarded last-call map for spacing.
type Governor struct {
	cfg Config
	log zerolog.Logger

	marketData *rate.Limiter
	trading    *rate.Limiter

	mu       sync.Mutex
	lastCall map[string]time.Time

	waitMu  sync.Mutex
	waiters map[BudgetClass][]*waiter
	busy    map[BudgetClass]bool
	seq     uint64
}

// New builds a Governor from cfg.
func New(cfg Config, log zerolog.Logger) *Governor {
	return &Governor{
		cfg:        cfg,
		log:        log.With().Str("component", "rategovernor").Logger(),
		marketData: rate.NewLimiter(cfg.MarketDataRate, cfg.MarketDataBurst),
		trading:    rate.NewLimiter(cfg.TradingRate, cfg.TradingBurst),
		lastCall:   make(map[string]time.Time),
		waiters:    make(map[BudgetClass][]*waiter),
		busy:       make(map[BudgetClass]bool),
	}
}

// ReleaseToken is returned by Acquire; callers invoke it once the guarded
// call has completed. The current implementation has nothing to release
// (the limiter itself already accounted for the token) but the handle
// keeps the call site symmetric and leaves room for future bookkeeping
// (e.g. returning a token on a transport failure) without an API change.
type ReleaseToken func()

// Acquire blocks the caller until it may proceed against endpoint, honoring
// both the spacing floor and the token bucket for cls, in strict priority
// order (lower domain.Priority value served first, FIFO within a
// priority). The turn granted by waitTurn is held for the full duration of
// the spacing and token waits below, so a higher-priority caller that
// arrives while this one is still waiting on a contended token overtakes it
// at the next admission instead of racing it on the underlying
// rate.Limiter's own FIFO reservation order. Returns domain.ErrRateTimeout
// if ctx is done first.
func (g *Governor) Acquire(ctx context.Context, cls BudgetClass, endpoint string, priority domain.Priority) (ReleaseToken, error) {
	if err := g.waitTurn(ctx, cls, priority); err != nil {
		return nil, err
	}
	defer g.endTurn(cls)

	if err := g.waitSpacing(ctx, endpoint); err != nil {
		return nil, err
	}

	limiter := g.limiterFor(cls)
	if err := limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrRateTimeout, err)
	}

	g.mu.Lock()
	g.lastCall[endpoint] = time.Now()
	g.mu.Unlock()

	return func() {}, nil
}

func (g *Governor) limiterFor(cls BudgetClass) *rate.Limiter {
	if cls == BudgetTrading {
		return g.trading
	}
	return g.marketData
}

// waitSpacing blocks until endpoint's minimum interval has elapsed.
func (g *Governor) waitSpacing(ctx context.Context, endpoint string) error {
	spacing, ok := g.cfg.Spacing[endpoint]
	if !ok || spacing <= 0 {
		return nil
	}

	g.mu.Lock()
	last, seen := g.lastCall[endpoint]
	g.mu.Unlock()
	if !seen {
		return nil
	}

	wait := time.Until(last.Add(spacing))
	if wait <= 0 {
		return nil
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w: %v", domain.ErrRateTimeout, ctx.Err())
	}
}

// waitTurn admits the caller into a FIFO-within-priority queue for cls,
// unblocking it once it is at the head. Token/spacing waits happen after
// this, outside the queue lock, so contention on one budget class never
// blocks admission checks for another.
func (g *Governor) waitTurn(ctx context.Context, cls BudgetClass, priority domain.Priority) error {
	g.waitMu.Lock()
	g.seq++
	w := &waiter{priority: priority, seq: g.seq, ready: make(chan struct{})}
	g.waiters[cls] = append(g.waiters[cls], w)
	g.sortAndMaybeAdmit(cls)
	g.waitMu.Unlock()

	select {
	case <-w.ready:
		return nil
	case <-ctx.Done():
		if !g.removeWaiter(cls, w) {
			// Lost the race: w was already admitted (busy[cls] set) by the time
			// ctx fired. The caller is bailing out without doing the guarded
			// work, so release the turn on its behalf or the class wedges.
			g.endTurn(cls)
		}
		return fmt.Errorf("%w: %v", domain.ErrRateTimeout, ctx.Err())
	}
}

// sortAndMaybeAdmit must be called with waitMu held. It admits the
// highest-priority (lowest value), earliest-seq waiter only if no waiter is
// currently holding the turn for this class; otherwise it leaves the queue
// sorted-by-arrival for the next call to endTurn to pick up. This is what
// makes priority ordering actually bite: a class can have many waiters
// queued while only one of them ever holds a live token/spacing wait at a
// time, so a CRITICAL caller that arrives mid-wait is admitted ahead of an
// already-queued LOW caller the moment the current turn ends.
func (g *Governor) sortAndMaybeAdmit(cls BudgetClass) {
	if g.busy[cls] {
		return
	}
	ws := g.waiters[cls]
	if len(ws) == 0 {
		return
	}
	best := 0
	for i := 1; i < len(ws); i++ {
		if ws[i].priority < ws[best].priority ||
			(ws[i].priority == ws[best].priority && ws[i].seq < ws[best].seq) {
			best = i
		}
	}
	w := ws[best]
	g.waiters[cls] = append(ws[:best], ws[best+1:]...)
	g.busy[cls] = true
	close(w.ready)
}

// endTurn releases the turn held for cls and admits the next
// highest-priority waiter, if any.
func (g *Governor) endTurn(cls BudgetClass) {
	g.waitMu.Lock()
	defer g.waitMu.Unlock()
	g.busy[cls] = false
	g.sortAndMaybeAdmit(cls)
}

// removeWaiter drops target from cls's queue and reports whether it was
// still queued (false means it had already been admitted elsewhere).
func (g *Governor) removeWaiter(cls BudgetClass, target *waiter) bool {
	g.waitMu.Lock()
	defer g.waitMu.Unlock()
	ws := g.waiters[cls]
	for i, w := range ws {
		if w == target {
			g.waiters[cls] = append(ws[:i], ws[i+1:]...)
			return true
		}
	}
	return false
}
