package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/adshao/go-binance/v2/futures"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/sentineltrade/futuresbot/internal/domain"
)

// BinanceClient adapts github.com/adshao/go-binance/v2/futures to Client.
// It is grounded directly on execution_service.go's Start/ExecuteTrade
// service calls and trend_analyzer.go's kline fetches.
type BinanceClient struct {
	api *futures.Client
	log zerolog.Logger
}

// NewBinanceClient wraps an already-constructed futures.Client.
func NewBinanceClient(api *futures.Client, log zerolog.Logger) *BinanceClient {
	return &BinanceClient{api: api, log: log.With().Str("component", "exchange.binance").Logger()}
}

func (c *BinanceClient) GetSymbols(ctx context.Context) ([]SymbolInfo, error) {
	info, err := c.api.NewExchangeInfoService().Do(ctx)
	if err != nil {
		return nil, classifyError(err)
	}

	out := make([]SymbolInfo, 0, len(info.Symbols))
	for _, s := range info.Symbols {
		si := SymbolInfo{
			Symbol:     domain.Symbol(s.Symbol),
			Status:     s.Status,
			QuoteAsset: s.QuoteAsset,
		}
		for _, f := range s.Filters {
			switch f["filterType"] {
			case "PRICE_FILTER":
				si.TickSize = parseDecimal(f["tickSize"])
			case "LOT_SIZE":
				si.StepSize = parseDecimal(f["stepSize"])
			}
		}
		out = append(out, si)
	}
	return out, nil
}

func (c *BinanceClient) GetTicker(ctx context.Context, symbol domain.Symbol) (domain.Ticker, error) {
	prices, err := c.api.NewListPricesService().Symbol(string(symbol)).Do(ctx)
	if err != nil {
		return domain.Ticker{}, classifyError(err)
	}
	t, err := normalizeTickerPrices(symbol, prices)
	if err != nil {
		return domain.Ticker{}, err
	}

	book, err := c.api.NewListBookTickersService().Symbol(string(symbol)).Do(ctx)
	if err == nil && len(book) > 0 {
		t.BidPrice = parseDecimal(book[0].BidPrice)
		t.AskPrice = parseDecimal(book[0].AskPrice)
	}
	return t, nil
}

func (c *BinanceClient) GetKlines(ctx context.Context, symbol domain.Symbol, interval string, limit int) ([]domain.Kline, error) {
	raw, err := c.api.NewKlinesService().
		Symbol(string(symbol)).
		Interval(interval).
		Limit(limit).
		Do(ctx)
	if err != nil {
		return nil, classifyError(err)
	}
	return normalizeKlines(raw)
}

// GetBalance runs the request through normalizeBalanceFromAny rather than
// the typed normalizeBalance directly: Binance's own account-wrapper
// endpoints are known to hand back the balance list nested under
// aggregator responses (spec §6's array/nested-array/single-object note),
// a shape the any-form adapter absorbs uniformly. normalizeBalance remains
// as a fallback for the plain-array case should re-marshaling ever produce
// something the any-form adapter doesn't recognize.
func (c *BinanceClient) GetBalance(ctx context.Context, asset string) (Balance, error) {
	raw, err := c.api.NewGetBalanceService().Do(ctx)
	if err != nil {
		return Balance{}, classifyError(err)
	}

	if payload, marshalErr := json.Marshal(raw); marshalErr == nil {
		if bal, anyErr := normalizeBalanceFromAny(payload, asset); anyErr == nil {
			return bal, nil
		}
	}
	return normalizeBalance(raw, asset)
}

func (c *BinanceClient) GetPositions(ctx context.Context, symbol domain.Symbol) ([]Position, error) {
	svc := c.api.NewGetPositionRiskService()
	if symbol != "" {
		svc = svc.Symbol(string(symbol))
	}
	raw, err := svc.Do(ctx)
	if err != nil {
		return nil, classifyError(err)
	}

	out := make([]Position, 0, len(raw))
	for _, p := range raw {
		amt := parseDecimal(p.PositionAmt)
		if amt.IsZero() {
			continue
		}
		out = append(out, Position{
			Symbol:           domain.Symbol(p.Symbol),
			PositionAmt:      amt,
			EntryPrice:       parseDecimal(p.EntryPrice),
			MarkPrice:        parseDecimal(p.MarkPrice),
			UnrealizedProfit: parseDecimal(p.UnRealizedProfit),
			LiquidationPrice: parseDecimal(p.LiquidationPrice),
			UpdateTime:       p.UpdateTime,
		})
	}
	return out, nil
}

func (c *BinanceClient) PlaceOrder(ctx context.Context, req OrderRequest) (OrderResult, error) {
	side := futures.SideTypeBuy
	if req.Side == domain.SideSell {
		side = futures.SideTypeSell
	}
	positionSide := futures.PositionSideTypeLong
	if req.PositionSide == domain.PositionShort {
		positionSide = futures.PositionSideTypeShort
	}

	order, err := c.api.NewCreateOrderService().
		Symbol(string(req.Symbol)).
		Side(side).
		PositionSide(positionSide).
		Type(futures.OrderTypeMarket).
		Quantity(req.Quantity.String()).
		Do(ctx)
	if err != nil {
		return OrderResult{}, classifyError(err)
	}

	return OrderResult{OrderID: strconv.FormatInt(order.OrderID, 10), Status: string(order.Status)}, nil
}

func (c *BinanceClient) ClosePosition(ctx context.Context, symbol domain.Symbol, percentage decimal.Decimal) (OrderResult, error) {
	positions, err := c.GetPositions(ctx, symbol)
	if err != nil {
		return OrderResult{}, err
	}
	if len(positions) == 0 {
		return OrderResult{}, fmt.Errorf("%w: no open position for %s", domain.ErrNotFound, symbol)
	}
	pos := positions[0]

	closeSide := futures.SideTypeSell
	positionSide := futures.PositionSideTypeLong
	if pos.PositionAmt.IsNegative() {
		closeSide = futures.SideTypeBuy
		positionSide = futures.PositionSideTypeShort
	}

	qty := pos.PositionAmt.Abs().Mul(percentage).Div(decimal.NewFromInt(100))

	order, err := c.api.NewCreateOrderService().
		Symbol(string(symbol)).
		Side(closeSide).
		PositionSide(positionSide).
		Type(futures.OrderTypeMarket).
		Quantity(qty.String()).
		ReduceOnly(true).
		Do(ctx)
	if err != nil {
		return OrderResult{}, classifyError(err)
	}
	return OrderResult{OrderID: strconv.FormatInt(order.OrderID, 10), Status: string(order.Status)}, nil
}

func (c *BinanceClient) SetMarginType(ctx context.Context, symbol domain.Symbol, isolated bool) error {
	marginType := futures.MarginTypeCrossed
	if isolated {
		marginType = futures.MarginTypeIsolated
	}
	err := c.api.NewChangeMarginTypeService().Symbol(string(symbol)).MarginType(marginType).Do(ctx)
	if err != nil && !alreadySet(err) {
		return classifyError(err)
	}
	return nil
}

func (c *BinanceClient) SetLeverage(ctx context.Context, symbol domain.Symbol, leverage int) error {
	_, err := c.api.NewChangeLeverageService().Symbol(string(symbol)).Leverage(leverage).Do(ctx)
	if err != nil {
		return classifyError(err)
	}
	return nil
}

func (c *BinanceClient) SetPositionMode(ctx context.Context, hedgeMode bool) error {
	err := c.api.NewChangePositionModeService().DualSide(hedgeMode).Do(ctx)
	if err != nil && !alreadySet(err) {
		return classifyError(err)
	}
	return nil
}

func (c *BinanceClient) CancelAllOpenOrders(ctx context.Context, symbol domain.Symbol) error {
	err := c.api.NewCancelAllOpenOrdersService().Symbol(string(symbol)).Do(ctx)
	if err != nil {
		return classifyError(err)
	}
	return nil
}

// alreadySet swallows the "no need to change margin type/position mode"
// class of error the exchange returns when the requested state already
// holds, mirroring main.go's forced one-way-mode setup at startup.
func alreadySet(err error) bool {
	apiErr, ok := err.(*futures.APIError)
	return ok && apiErr.Code == -4046
}

func parseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}
