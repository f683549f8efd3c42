// Package position implements the PositionManager (C8): a periodic
// monitoring loop over every ACTIVE position enforcing stop-loss,
// take-profit, max-age expiry, emergency close, and an optional trailing
// stop. The tracked-position-with-live-PnL shape is grounded on
// execution_service.go's GhostSession; the close/revert-on-failure path is
// grounded on the same file's ExecuteTrade close branch.
package position

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/sentineltrade/futuresbot/internal/domain"
	"github.com/sentineltrade/futuresbot/internal/events"
	"github.com/sentineltrade/futuresbot/internal/exchange"
)

// Config controls the monitoring cadence and protective thresholds.
type Config struct {
	MonitoringInterval      time.Duration
	MaxPositionAge          time.Duration
	EmergencyCloseThreshold decimal.Decimal
	TrailingStopEnabled     bool
	TrailingStopPercent     decimal.Decimal
}

func DefaultConfig() Config {
	return Config{
		MonitoringInterval:      3 * time.Second,
		MaxPositionAge:          18 * time.Hour,
		EmergencyCloseThreshold: decimal.NewFromFloat(0.05),
		TrailingStopEnabled:     true,
		TrailingStopPercent:     decimal.NewFromFloat(0.015),
	}
}

// Releaser is the narrow dependency on C7 needed to free a symbol slot once
// a position closes; avoids an import cycle with internal/executor.
type Releaser interface {
	Release(symbol domain.Symbol)
}

// Ledger is the narrow persistence dependency for closing a trade row.
type Ledger interface {
	RecordClose(ctx context.Context, symbol domain.Symbol, closedAt time.Time, realizedPnl decimal.Decimal, status string) error
}

// Manager is the concrete PositionManager.
type Manager struct {
	cfg Config
	log zerolog.Logger
	bus *events.Bus
	ex  exchange.Client
	rel Releaser
	led Ledger

	mu        sync.Mutex
	positions map[domain.Symbol]*domain.ManagedPosition

	stopCh chan struct{}
	doneCh chan struct{}
}

func New(cfg Config, bus *events.Bus, ex exchange.Client, rel Releaser, led Ledger, log zerolog.Logger) *Manager {
	return &Manager{
		cfg:       cfg,
		log:       log.With().Str("component", "position").Logger(),
		bus:       bus,
		ex:        ex,
		rel:       rel,
		led:       led,
		positions: make(map[domain.Symbol]*domain.ManagedPosition),
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
}

// SetReleaser wires the releaser after construction, for callers that must
// build the Manager before its corresponding executor pool exists.
func (m *Manager) SetReleaser(rel Releaser) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rel = rel
}

// Register adds a freshly opened position under management (satisfies
// executor.PositionRegistrar).
func (m *Manager) Register(pos domain.ManagedPosition) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := pos
	m.positions[p.Symbol] = &p
}

// LoadOnStart fetches all open exchange positions and reconstructs
// ManagedPositions with default SL/TP brackets around entry (spec §4.8).
func (m *Manager) LoadOnStart(ctx context.Context, defaultSLPercent, defaultTPPercent decimal.Decimal) error {
	positions, err := m.ex.GetPositions(ctx, "")
	if err != nil {
		return err
	}

	one := decimal.NewFromInt(1)
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range positions {
		if p.PositionAmt.IsZero() {
			continue
		}
		side := domain.PositionLong
		sl := p.EntryPrice.Mul(one.Sub(defaultSLPercent))
		tp := p.EntryPrice.Mul(one.Add(defaultTPPercent))
		if p.PositionAmt.IsNegative() {
			side = domain.PositionShort
			sl = p.EntryPrice.Mul(one.Add(defaultSLPercent))
			tp = p.EntryPrice.Mul(one.Sub(defaultTPPercent))
		}
		m.positions[p.Symbol] = &domain.ManagedPosition{
			ID:              string(p.Symbol) + "-reconstructed",
			Symbol:          p.Symbol,
			Side:            side,
			EntryPrice:      p.EntryPrice,
			Quantity:        p.PositionAmt.Abs(),
			StopLossPrice:   sl,
			TakeProfitPrice: tp,
			UnrealizedPnl:   p.UnrealizedProfit,
			Status:          domain.PositionActive,
			CreatedAt:       time.Now(),
			LastUpdate:      time.Now(),
			HighWaterMark:   p.EntryPrice,
		}
	}
	return nil
}

func (m *Manager) Start(ctx context.Context) {
	go m.loop(ctx)
}

func (m *Manager) Stop() {
	close(m.stopCh)
	<-m.doneCh
}

func (m *Manager) loop(ctx context.Context) {
	defer close(m.doneCh)
	ticker := time.NewTicker(m.cfg.MonitoringInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.tick(ctx)
		}
	}
}

func (m *Manager) snapshot() []*domain.ManagedPosition {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*domain.ManagedPosition, 0, len(m.positions))
	for _, p := range m.positions {
		if p.Status == domain.PositionActive {
			out = append(out, p)
		}
	}
	return out
}

func (m *Manager) tick(ctx context.Context) {
	for _, pos := range m.snapshot() {
		m.evaluate(ctx, pos)
	}
}

func (m *Manager) evaluate(ctx context.Context, pos *domain.ManagedPosition) {
	ticker, err := m.ex.GetTicker(ctx, pos.Symbol)
	if err != nil {
		m.log.Warn().Err(err).Str("symbol", string(pos.Symbol)).Msg("mark price fetch failed")
		return
	}
	mark := ticker.LastPrice

	m.mu.Lock()
	sign := decimal.NewFromInt(1)
	if pos.Side == domain.PositionShort {
		sign = decimal.NewFromInt(-1)
	}
	pos.UnrealizedPnl = mark.Sub(pos.EntryPrice).Mul(sign).Mul(pos.Quantity)
	pos.LastUpdate = time.Now()

	if pos.Side == domain.PositionLong && mark.GreaterThan(pos.HighWaterMark) {
		pos.HighWaterMark = mark
	}
	if pos.Side == domain.PositionShort && (pos.HighWaterMark.IsZero() || mark.LessThan(pos.HighWaterMark)) {
		pos.HighWaterMark = mark
	}

	if m.cfg.TrailingStopEnabled {
		m.applyTrailingStop(pos, mark)
	}
	m.mu.Unlock()

	reason, shouldClose := m.checkCloseConditions(pos, mark)
	if shouldClose {
		m.closePosition(ctx, pos, reason)
	}
}

// applyTrailingStop must be called with m.mu held.
func (m *Manager) applyTrailingStop(pos *domain.ManagedPosition, mark decimal.Decimal) {
	one := decimal.NewFromInt(1)
	if pos.Side == domain.PositionLong {
		favorable := pos.HighWaterMark.Sub(pos.EntryPrice).Div(pos.EntryPrice)
		if favorable.GreaterThanOrEqual(m.cfg.TrailingStopPercent) {
			pos.TrailingArmed = true
			newSL := pos.HighWaterMark.Mul(one.Sub(m.cfg.TrailingStopPercent))
			if newSL.GreaterThan(pos.StopLossPrice) {
				pos.StopLossPrice = newSL
			}
		}
		return
	}

	favorable := pos.EntryPrice.Sub(pos.HighWaterMark).Div(pos.EntryPrice)
	if favorable.GreaterThanOrEqual(m.cfg.TrailingStopPercent) {
		pos.TrailingArmed = true
		newSL := pos.HighWaterMark.Mul(one.Add(m.cfg.TrailingStopPercent))
		if newSL.LessThan(pos.StopLossPrice) {
			pos.StopLossPrice = newSL
		}
	}
}

func (m *Manager) checkCloseConditions(pos *domain.ManagedPosition, mark decimal.Decimal) (domain.CloseReason, bool) {
	if time.Since(pos.CreatedAt) > m.cfg.MaxPositionAge {
		return domain.CloseReasonExpired, true
	}

	if pos.Side == domain.PositionLong {
		if mark.LessThanOrEqual(pos.StopLossPrice) {
			return domain.CloseReasonStopLoss, true
		}
		if mark.GreaterThanOrEqual(pos.TakeProfitPrice) {
			return domain.CloseReasonTakeProfit, true
		}
	} else {
		if mark.GreaterThanOrEqual(pos.StopLossPrice) {
			return domain.CloseReasonStopLoss, true
		}
		if mark.LessThanOrEqual(pos.TakeProfitPrice) {
			return domain.CloseReasonTakeProfit, true
		}
	}

	if !pos.EntryPrice.IsZero() {
		pnlPct := pos.UnrealizedPnl.Div(pos.EntryPrice.Mul(pos.Quantity)).Abs()
		if pnlPct.GreaterThan(m.cfg.EmergencyCloseThreshold) {
			return domain.CloseReasonEmergency, true
		}
	}

	return "", false
}

func (m *Manager) closePosition(ctx context.Context, pos *domain.ManagedPosition, reason domain.CloseReason) {
	m.mu.Lock()
	pos.Status = domain.PositionClosing
	m.mu.Unlock()

	result, err := m.ex.ClosePosition(ctx, pos.Symbol, decimal.NewFromInt(100))
	if err != nil {
		m.mu.Lock()
		pos.Status = domain.PositionActive
		m.mu.Unlock()
		events.Publish(m.bus, events.PositionCloseErrorEvent{Symbol: pos.Symbol, Err: err})
		return
	}
	_ = result

	m.mu.Lock()
	pos.Status = domain.PositionClosed
	delete(m.positions, pos.Symbol)
	closed := *pos
	m.mu.Unlock()

	status := "FILLED"
	if m.led != nil {
		if err := m.led.RecordClose(ctx, pos.Symbol, time.Now(), pos.UnrealizedPnl, status); err != nil {
			m.log.Error().Err(err).Str("symbol", string(pos.Symbol)).Msg("ledger close write failed")
		}
	}
	if m.rel != nil {
		m.rel.Release(pos.Symbol)
	}

	events.Publish(m.bus, events.PositionRemovedEvent{Position: closed, Reason: reason})
}

// ReconcileExternal applies an externally observed positionAmt=0 for symbol,
// treating it as a silent close (spec §4.8's streaming reconciliation path).
func (m *Manager) ReconcileExternal(symbol domain.Symbol, positionAmt decimal.Decimal) {
	if !positionAmt.IsZero() {
		return
	}

	m.mu.Lock()
	pos, ok := m.positions[symbol]
	if !ok {
		m.mu.Unlock()
		return
	}
	delete(m.positions, symbol)
	closed := *pos
	m.mu.Unlock()

	if m.rel != nil {
		m.rel.Release(symbol)
	}
	events.Publish(m.bus, events.PositionRemovedEvent{Position: closed, Reason: domain.CloseReasonExternal})
}

// Get returns a copy of the tracked position for symbol, if any.
func (m *Manager) Get(symbol domain.Symbol) (domain.ManagedPosition, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.positions[symbol]
	if !ok {
		return domain.ManagedPosition{}, false
	}
	return *p, true
}

// All returns a snapshot of every tracked position, for status reporting.
func (m *Manager) All() []domain.ManagedPosition {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.ManagedPosition, 0, len(m.positions))
	for _, p := range m.positions {
		out = append(out, *p)
	}
	return out
}
