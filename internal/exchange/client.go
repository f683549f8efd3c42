// Package exchange defines the ExchangeClient contract the core pipeline
// depends on, and backs it with a github.com/adshao/go-binance/v2/futures
// implementation. This is the one swappable adapter boundary per spec §9's
// design note on isolating schema variance.
package exchange

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/sentineltrade/futuresbot/internal/domain"
)

// SymbolInfo is the exchange-info record for one contract.
type SymbolInfo struct {
	Symbol     domain.Symbol
	Status     string
	QuoteAsset string
	TickSize   decimal.Decimal
	StepSize   decimal.Decimal
}

// Balance is the free/locked quote-currency balance used for margin checks.
type Balance struct {
	Asset     string
	Available decimal.Decimal
	Total     decimal.Decimal
}

// Position is the exchange's view of an open position, used for
// reconciliation against domain.ManagedPosition.
type Position struct {
	Symbol            domain.Symbol
	PositionAmt       decimal.Decimal
	EntryPrice        decimal.Decimal
	MarkPrice         decimal.Decimal
	UnrealizedProfit  decimal.Decimal
	LiquidationPrice  decimal.Decimal
	UpdateTime        int64
}

// OrderRequest is the normalized order-placement input.
type OrderRequest struct {
	Symbol          domain.Symbol
	Side            domain.Side
	PositionSide    domain.PositionSide
	Quantity        decimal.Decimal
	StopLossPrice   decimal.Decimal
	TakeProfitPrice decimal.Decimal
}

// OrderResult is the normalized order-placement output.
type OrderResult struct {
	OrderID string
	Status  string
}

// Client is the full surface the pipeline needs from the exchange. Every
// method may return *domain.TransportError or *domain.ExchangeError; no
// other error types cross this boundary.
type Client interface {
	GetSymbols(ctx context.Context) ([]SymbolInfo, error)
	GetTicker(ctx context.Context, symbol domain.Symbol) (domain.Ticker, error)
	GetKlines(ctx context.Context, symbol domain.Symbol, interval string, limit int) ([]domain.Kline, error)
	GetBalance(ctx context.Context, asset string) (Balance, error)
	GetPositions(ctx context.Context, symbol domain.Symbol) ([]Position, error)
	PlaceOrder(ctx context.Context, req OrderRequest) (OrderResult, error)
	ClosePosition(ctx context.Context, symbol domain.Symbol, percentage decimal.Decimal) (OrderResult, error)
	SetMarginType(ctx context.Context, symbol domain.Symbol, isolated bool) error
	SetLeverage(ctx context.Context, symbol domain.Symbol, leverage int) error
	SetPositionMode(ctx context.Context, hedgeMode bool) error
	CancelAllOpenOrders(ctx context.Context, symbol domain.Symbol) error
}
