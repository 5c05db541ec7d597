package gateway

import (
	"context"
	"fmt"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
	"github.com/shopspring/decimal"

	"ballast/internal/domain"
	"ballast/internal/util"
)

// Compile-time interface check.
var _ Gateway = (*AlpacaGateway)(nil)

// AlpacaGateway implements the Gateway interface using the Alpaca trading
// API. All calls pass through a shared rate limiter to stay under the API
// request budget.
type AlpacaGateway struct {
	client  *alpaca.Client
	limiter *util.RateLimiter
}

// NewAlpacaGateway creates an AlpacaGateway configured with the given
// credentials and API endpoint. ratePerMinute bounds outbound API calls.
func NewAlpacaGateway(apiKey, apiSecret, baseURL string, ratePerMinute int) *AlpacaGateway {
	opts := alpaca.ClientOpts{
		APIKey:    apiKey,
		APISecret: apiSecret,
	}
	if baseURL != "" {
		opts.BaseURL = baseURL
	}

	return &AlpacaGateway{
		client:  alpaca.NewClient(opts),
		limiter: util.NewRateLimiter(ratePerMinute),
	}
}

// Name returns "alpaca".
func (g *AlpacaGateway) Name() string { return "alpaca" }

// GetAccount returns the current funding snapshot from the Alpaca account.
// Alpaca does not expose margin_available directly; it is derived as
// equity - initial_margin, clamped at zero.
func (g *AlpacaGateway) GetAccount(ctx context.Context) (*domain.AccountSnapshot, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	acct, err := g.client.GetAccount()
	if err != nil {
		return nil, fmt.Errorf("alpaca: get account: %w", err)
	}

	equity := acct.Equity.InexactFloat64()
	marginUsed := acct.InitialMargin.InexactFloat64()
	marginAvail := equity - marginUsed
	if marginAvail < 0 {
		marginAvail = 0
	}

	return &domain.AccountSnapshot{
		Cash:            acct.Cash.InexactFloat64(),
		BuyingPower:     acct.BuyingPower.InexactFloat64(),
		TotalValue:      equity,
		MarginUsed:      marginUsed,
		MarginAvailable: marginAvail,
		Timestamp:       time.Now(),
	}, nil
}

// GetPositions returns all open positions from the Alpaca account keyed by
// symbol. Quantities keep Alpaca's sign convention (negative for shorts).
func (g *AlpacaGateway) GetPositions(ctx context.Context) (map[string]domain.PositionSnapshot, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	positions, err := g.client.GetPositions()
	if err != nil {
		return nil, fmt.Errorf("alpaca: get positions: %w", err)
	}

	out := make(map[string]domain.PositionSnapshot, len(positions))
	for _, p := range positions {
		snap := domain.PositionSnapshot{
			Symbol:   p.Symbol,
			Quantity: p.Qty.InexactFloat64(),
			AvgPrice: p.AvgEntryPrice.InexactFloat64(),
		}
		// Market-data derived fields are pointers in the SDK and may be
		// missing outside market hours.
		if p.CurrentPrice != nil {
			snap.CurrentPrice = p.CurrentPrice.InexactFloat64()
		}
		if p.MarketValue != nil {
			snap.MarketValue = p.MarketValue.InexactFloat64()
		}
		if p.UnrealizedPL != nil {
			snap.UnrealizedPnL = p.UnrealizedPL.InexactFloat64()
		}
		out[p.Symbol] = snap
	}
	return out, nil
}

// GetOpenOrders returns the IDs of all open orders on the Alpaca account.
func (g *AlpacaGateway) GetOpenOrders(ctx context.Context) ([]string, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	orders, err := g.client.GetOrders(alpaca.GetOrdersRequest{Status: "open"})
	if err != nil {
		return nil, fmt.Errorf("alpaca: get orders: %w", err)
	}

	ids := make([]string, 0, len(orders))
	for _, o := range orders {
		ids = append(ids, o.ID)
	}
	return ids, nil
}

// PlaceOrder submits an order via the Alpaca API and returns its ID.
func (g *AlpacaGateway) PlaceOrder(ctx context.Context, req OrderRequest) (string, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return "", err
	}

	qty := decimal.NewFromFloat(req.Qty)
	side := alpaca.Buy
	if req.Side == domain.SideSell {
		side = alpaca.Sell
	}

	placeReq := alpaca.PlaceOrderRequest{
		Symbol:      req.Symbol,
		Qty:         &qty,
		Side:        side,
		Type:        alpaca.Market,
		TimeInForce: alpaca.Day,
	}
	if req.Kind == OrderLimit {
		limit := decimal.NewFromFloat(req.LimitPrice)
		placeReq.Type = alpaca.Limit
		placeReq.LimitPrice = &limit
	}

	order, err := g.client.PlaceOrder(placeReq)
	if err != nil {
		return "", fmt.Errorf("alpaca: place order %s %v %s: %w", req.Side, req.Qty, req.Symbol, err)
	}
	return order.ID, nil
}

// CancelOrder requests cancellation of an open order via the Alpaca API.
func (g *AlpacaGateway) CancelOrder(ctx context.Context, orderID string) error {
	if err := g.limiter.Wait(ctx); err != nil {
		return err
	}
	if err := g.client.CancelOrder(orderID); err != nil {
		return fmt.Errorf("alpaca: cancel order %s: %w", orderID, err)
	}
	return nil
}
