// Package requestmanager implements the APIRequestManager (C2): a cached,
// deduplicated, priority-queued facade in front of the exchange REST
// client. The periodic sweep is grounded on signal_aggregator.go's
// flushLoop ticker pattern; the pending-request bookkeeping is grounded on
// the general "stuck record" cleanup idiom used across the reference
// material's map-based trackers.
package requestmanager

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/sentineltrade/futuresbot/internal/domain"
	"github.com/sentineltrade/futuresbot/internal/ratelimit"
)

// Method identifies a cacheable exchange call; TTLs are keyed on it.
type Method string

const (
	MethodBalance    Method = "balance"
	MethodPositions  Method = "positions"
	MethodKlines     Method = "klines"
	MethodTicker     Method = "ticker"
	MethodSymbols    Method = "symbols"
	MethodOpenOrders Method = "open_orders"
	MethodDepth      Method = "depth"
)

// TTLs is the per-method cache lifetime table (spec §4.2 defaults).
var TTLs = map[Method]time.Duration{
	MethodBalance:    45 * time.Second,
	MethodPositions:  20 * time.Second,
	MethodKlines:     90 * time.Second,
	MethodTicker:     15 * time.Second,
	MethodSymbols:    300 * time.Second,
	MethodOpenOrders: 10 * time.Second,
	MethodDepth:      8 * time.Second,
}

const (
	queueTimeout  = 8 * time.Second
	sweepInterval = 5 * time.Minute
	stuckAfter    = 60 * time.Second
)

type cacheEntry struct {
	value     any
	expiresAt time.Time
}

type pendingRequest struct {
	startedAt time.Time
	done      chan struct{}
	value     any
	err       error
}

// Fetcher performs the actual REST call once C2 decides to issue one. args
// is whatever the caller passed to Do; it is JSON-marshaled only to build
// the dedup/cache key, never to perform the call itself.
type Fetcher func(ctx context.Context) (any, error)

// Manager is the concrete APIRequestManager.
type Manager struct {
	log   zerolog.Logger
	gov   *ratelimit.Governor
	class ratelimit.BudgetClass

	mu      sync.Mutex
	cache   map[string]cacheEntry
	pending map[string]*pendingRequest

	stopOnce sync.Once
	stopCh   chan struct{}
}

// New builds a Manager that acquires from gov under class for every call
// that actually reaches the network.
func New(gov *ratelimit.Governor, class ratelimit.BudgetClass, log zerolog.Logger) *Manager {
	m := &Manager{
		log:     log.With().Str("component", "requestmanager").Logger(),
		gov:     gov,
		class:   class,
		cache:   make(map[string]cacheEntry),
		pending: make(map[string]*pendingRequest),
		stopCh:  make(chan struct{}),
	}
	go m.sweepLoop()
	return m
}

// Stop halts the periodic sweep goroutine.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() { close(m.stopCh) })
}

// Do executes method(args) with caching, in-flight dedup, and priority
// admission via the rate governor, honoring ctx's deadline as the
// queueTimeout bound.
func (m *Manager) Do(ctx context.Context, method Method, args any, endpoint string, priority domain.Priority, fetch Fetcher) (any, error) {
	key := cacheKey(method, args)

	if v, ok := m.getCached(key); ok {
		return v, nil
	}

	m.mu.Lock()
	if p, ok := m.pending[key]; ok {
		m.mu.Unlock()
		return m.awaitPending(ctx, p)
	}

	p := &pendingRequest{startedAt: time.Now(), done: make(chan struct{})}
	m.pending[key] = p
	m.mu.Unlock()

	qCtx, cancel := context.WithTimeout(ctx, queueTimeout)
	defer cancel()

	release, err := m.gov.Acquire(qCtx, m.class, endpoint, priority)
	if err != nil {
		m.failPending(key, p, domain.ErrEnqueueTimeout)
		return nil, domain.ErrEnqueueTimeout
	}
	defer release()

	value, err := fetch(ctx)
	if err != nil {
		m.failPending(key, p, err)
		return nil, err
	}

	ttl := TTLs[method]
	m.mu.Lock()
	m.cache[key] = cacheEntry{value: value, expiresAt: time.Now().Add(ttl)}
	delete(m.pending, key)
	m.mu.Unlock()

	p.value = value
	close(p.done)
	return value, nil
}

func (m *Manager) getCached(key string) (any, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.cache[key]
	if !ok || time.Now().After(entry.expiresAt) {
		return nil, false
	}
	return entry.value, true
}

func (m *Manager) awaitPending(ctx context.Context, p *pendingRequest) (any, error) {
	select {
	case <-p.done:
		return p.value, p.err
	case <-ctx.Done():
		return nil, domain.ErrEnqueueTimeout
	}
}

func (m *Manager) failPending(key string, p *pendingRequest, err error) {
	m.mu.Lock()
	delete(m.pending, key)
	m.mu.Unlock()
	p.err = err
	close(p.done)
}

func (m *Manager) sweepLoop() {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.sweep()
		case <-m.stopCh:
			return
		}
	}
}

func (m *Manager) sweep() {
	now := time.Now()
	m.mu.Lock()
	defer m.mu.Unlock()

	for k, v := range m.cache {
		if now.After(v.expiresAt) {
			delete(m.cache, k)
		}
	}
	for k, p := range m.pending {
		if now.Sub(p.startedAt) > stuckAfter {
			m.log.Warn().Str("key", k).Msg("evicting stuck pending request")
			delete(m.pending, k)
		}
	}
}

func cacheKey(method Method, args any) string {
	payload, err := json.Marshal(args)
	if err != nil {
		payload = []byte(time.Now().String())
	}
	sum := sha256.Sum256(append([]byte(method+":"), payload...))
	return hex.EncodeToString(sum[:])
}
