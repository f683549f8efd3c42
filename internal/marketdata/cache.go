// Package marketdata implements MarketDataCache (C3): TTL-bounded ticker
// and kline stores with LRU eviction, a REST pull path through C2, and a
// streaming overlay that keeps hot symbols fresh without polling. The
// snapshot-then-broadcast discipline is grounded on hub.go's
// PriceThrottler; the streaming subscription lifecycle is grounded on
// main.go's per-symbol BinanceFutures.Start goroutines.
package marketdata

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/sentineltrade/futuresbot/internal/domain"
	"github.com/sentineltrade/futuresbot/internal/events"
	"github.com/sentineltrade/futuresbot/internal/exchange"
	"github.com/sentineltrade/futuresbot/internal/requestmanager"
)

// Config controls TTLs, capacity, and the significant-change threshold.
type Config struct {
	TickerTTL            time.Duration
	KlineTTL             time.Duration
	MaxCacheSize         int
	PriceChangeThreshold decimal.Decimal
	StreamBaseURL        string
	KlineInterval        string
}

func DefaultConfig() Config {
	return Config{
		TickerTTL:            60 * time.Second,
		KlineTTL:             120 * time.Second,
		MaxCacheSize:         500,
		PriceChangeThreshold: decimal.NewFromFloat(0.001),
		KlineInterval:        "15m",
	}
}

type tickerEntry struct {
	ticker     domain.Ticker
	expiresAt  time.Time
	lastUpdate time.Time
	lruElem    *list.Element
	cancelSub  context.CancelFunc
}

type klineKey struct {
	symbol   domain.Symbol
	interval string
}

type klineEntry struct {
	klines    []domain.Kline
	expiresAt time.Time
}

// Cache is the concrete MarketDataCache.
type Cache struct {
	cfg Config
	log zerolog.Logger
	rm  *requestmanager.Manager
	ex  exchange.Client
	bus *events.Bus

	mu      sync.Mutex
	tickers map[domain.Symbol]*tickerEntry
	lru     *list.List // front = most recently used

	klineMu sync.Mutex
	klines  map[klineKey]klineEntry

	streamCtx context.Context
	streamCancel context.CancelFunc
}

// New builds a Cache backed by rm/ex and publishing events onto bus.
func New(cfg Config, rm *requestmanager.Manager, ex exchange.Client, bus *events.Bus, log zerolog.Logger) *Cache {
	ctx, cancel := context.WithCancel(context.Background())
	return &Cache{
		cfg:          cfg,
		log:          log.With().Str("component", "marketdata").Logger(),
		rm:           rm,
		ex:           ex,
		bus:          bus,
		tickers:      make(map[domain.Symbol]*tickerEntry),
		lru:          list.New(),
		klines:       make(map[klineKey]klineEntry),
		streamCtx:    ctx,
		streamCancel: cancel,
	}
}

// GetTicker returns the cached ticker if fresh, else fetches via C2 and
// opens a streaming subscription for subsequent updates.
func (c *Cache) GetTicker(ctx context.Context, symbol domain.Symbol) (domain.Ticker, error) {
	c.mu.Lock()
	entry, ok := c.tickers[symbol]
	if ok && time.Now().Before(entry.expiresAt) {
		c.lru.MoveToFront(entry.lruElem)
		t := entry.ticker
		c.mu.Unlock()
		return t, nil
	}
	c.mu.Unlock()

	v, err := c.rm.Do(ctx, requestmanager.MethodTicker, symbol, "market_data", domain.PriorityMedium, func(ctx context.Context) (any, error) {
		return c.ex.GetTicker(ctx, symbol)
	})
	if err != nil {
		return domain.Ticker{}, err
	}
	ticker := v.(domain.Ticker)

	c.store(symbol, ticker)
	c.ensureStream(symbol)
	return ticker, nil
}

// GetKlines returns the cached kline series if fresh, else fetches via C2.
func (c *Cache) GetKlines(ctx context.Context, symbol domain.Symbol, interval string, limit int) ([]domain.Kline, error) {
	key := klineKey{symbol: symbol, interval: interval}

	c.klineMu.Lock()
	entry, ok := c.klines[key]
	c.klineMu.Unlock()
	if ok && time.Now().Before(entry.expiresAt) {
		return entry.klines, nil
	}

	cacheArgs := [2]string{string(symbol), interval}
	v, err := c.rm.Do(ctx, requestmanager.MethodKlines, cacheArgs, "market_data", domain.PriorityMedium, func(ctx context.Context) (any, error) {
		return c.ex.GetKlines(ctx, symbol, interval, limit)
	})
	if err != nil {
		return nil, err
	}
	klines := v.([]domain.Kline)

	c.klineMu.Lock()
	c.klines[key] = klineEntry{klines: klines, expiresAt: time.Now().Add(c.cfg.KlineTTL)}
	c.klineMu.Unlock()

	return klines, nil
}

// store writes a fresh ticker into the cache, evicting the LRU victim if
// the cache is at capacity, and emits tickerUpdate/significantPriceChange.
func (c *Cache) store(symbol domain.Symbol, t domain.Ticker) {
	c.mu.Lock()
	defer c.mu.Unlock()

	prev, existed := c.tickers[symbol]
	var prevPrice decimal.Decimal
	if existed {
		prevPrice = prev.ticker.LastPrice
		prev.ticker = t
		prev.expiresAt = time.Now().Add(c.cfg.TickerTTL)
		prev.lastUpdate = time.Now()
		c.lru.MoveToFront(prev.lruElem)
	} else {
		if c.lru.Len() >= c.cfg.MaxCacheSize {
			c.evictOldestLocked()
		}
		elem := c.lru.PushFront(symbol)
		c.tickers[symbol] = &tickerEntry{
			ticker:     t,
			expiresAt:  time.Now().Add(c.cfg.TickerTTL),
			lastUpdate: time.Now(),
			lruElem:    elem,
		}
	}

	if c.bus != nil {
		events.Publish(c.bus, events.TickerUpdateEvent{Ticker: t})
		if existed && !prevPrice.IsZero() {
			change := t.LastPrice.Sub(prevPrice).Div(prevPrice).Abs()
			if change.GreaterThanOrEqual(c.cfg.PriceChangeThreshold) {
				cp, _ := change.Float64()
				events.Publish(c.bus, events.SignificantPriceChangeEvent{Symbol: symbol, ChangePercent: cp})
			}
		}
	}
}

// evictOldestLocked must be called with c.mu held. It evicts the least
// recently used ticker and tears down its streaming subscription.
func (c *Cache) evictOldestLocked() {
	back := c.lru.Back()
	if back == nil {
		return
	}
	symbol := back.Value.(domain.Symbol)
	if entry, ok := c.tickers[symbol]; ok {
		if entry.cancelSub != nil {
			entry.cancelSub()
		}
		delete(c.tickers, symbol)
	}
	c.lru.Remove(back)
}

// ensureStream opens a persistent streaming subscription for symbol if one
// isn't already running.
func (c *Cache) ensureStream(symbol domain.Symbol) {
	if c.cfg.StreamBaseURL == "" {
		return
	}

	c.mu.Lock()
	entry, ok := c.tickers[symbol]
	if !ok || entry.cancelSub != nil {
		c.mu.Unlock()
		return
	}
	subCtx, cancel := context.WithCancel(c.streamCtx)
	entry.cancelSub = cancel
	c.mu.Unlock()

	stream := exchange.NewTickerStream(c.cfg.StreamBaseURL, symbol, c.log, func(frame exchange.TickerFrame) {
		c.applyFrame(symbol, frame)
	})
	go stream.Run(subCtx)
}

func (c *Cache) applyFrame(symbol domain.Symbol, frame exchange.TickerFrame) {
	last, err := decimal.NewFromString(frame.LastPrice)
	if err != nil {
		return
	}

	t := domain.Ticker{
		Symbol:          symbol,
		LastPrice:       last,
		BidPrice:        parseOrZero(frame.BidPrice),
		AskPrice:        parseOrZero(frame.AskPrice),
		HighPrice24h:    parseOrZero(frame.HighPrice),
		LowPrice24h:     parseOrZero(frame.LowPrice),
		QuoteVolume24h:  parseOrZero(frame.QuoteVolume),
		ChangePercent24: parseOrZero(frame.ChangePercent),
		LastUpdate:      time.Now(),
	}
	c.store(symbol, t)
}

func parseOrZero(s string) decimal.Decimal {
	if s == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// Preload issues parallel ticker fetches in batches of size, tolerating
// per-symbol failures.
func (c *Cache) Preload(ctx context.Context, symbols []domain.Symbol, batch int) {
	for i := 0; i < len(symbols); i += batch {
		end := i + batch
		if end > len(symbols) {
			end = len(symbols)
		}

		var wg sync.WaitGroup
		for _, sym := range symbols[i:end] {
			wg.Add(1)
			go func(s domain.Symbol) {
				defer wg.Done()
				if _, err := c.GetTicker(ctx, s); err != nil {
					c.log.Debug().Err(err).Str("symbol", string(s)).Msg("preload failed")
				}
			}(sym)
		}
		wg.Wait()
	}
}

// EmergencyStop tears down every streaming subscription and clears both
// stores. Used by the worker pool's circuit breaker.
func (c *Cache) EmergencyStop() {
	c.mu.Lock()
	for _, entry := range c.tickers {
		if entry.cancelSub != nil {
			entry.cancelSub()
		}
	}
	c.tickers = make(map[domain.Symbol]*tickerEntry)
	c.lru = list.New()
	c.mu.Unlock()

	c.klineMu.Lock()
	c.klines = make(map[klineKey]klineEntry)
	c.klineMu.Unlock()
}
