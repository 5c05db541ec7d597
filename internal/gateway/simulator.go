package gateway

import (
	"context"
	"fmt"
	"sync"
	"time"

	"ballast/internal/domain"
)

// Compile-time interface check.
var _ Gateway = (*SimulatorGateway)(nil)

// SimulatedOrder records an order placed against the simulator.
type SimulatedOrder struct {
	ID        string
	Symbol    string
	Qty       float64
	Side      domain.Side
	Price     float64
	Cancelled bool
}

// SimulatorGateway implements the Gateway interface in memory for paper mode
// and tests. Account state and positions are seeded by the caller; orders
// fill immediately at the position's current price.
type SimulatorGateway struct {
	mu        sync.Mutex
	account   domain.AccountSnapshot
	positions map[string]domain.PositionSnapshot
	orders    []*SimulatedOrder
	nextID    int
	err       error // when set, all gateway calls fail with it
}

// NewSimulatorGateway creates a SimulatorGateway with an empty account and
// no positions.
func NewSimulatorGateway() *SimulatorGateway {
	return &SimulatorGateway{
		positions: make(map[string]domain.PositionSnapshot),
	}
}

// Name returns "simulator".
func (g *SimulatorGateway) Name() string { return "simulator" }

// SetAccount replaces the simulated funding snapshot.
func (g *SimulatorGateway) SetAccount(acct domain.AccountSnapshot) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.account = acct
}

// SetPosition creates or replaces a simulated position. Derived fields
// (market value, unrealized P&L) are recomputed from the given prices.
func (g *SimulatorGateway) SetPosition(symbol string, qty, avgPrice, currentPrice float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.positions[symbol] = domain.PositionSnapshot{
		Symbol:        symbol,
		Quantity:      qty,
		AvgPrice:      avgPrice,
		CurrentPrice:  currentPrice,
		MarketValue:   qty * currentPrice,
		UnrealizedPnL: qty * (currentPrice - avgPrice),
	}
}

// SetPrice moves the current price of an existing position and recomputes
// its derived fields. Unknown symbols are ignored.
func (g *SimulatorGateway) SetPrice(symbol string, price float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	p, ok := g.positions[symbol]
	if !ok {
		return
	}
	p.CurrentPrice = price
	p.MarketValue = p.Quantity * price
	p.UnrealizedPnL = p.Quantity * (price - p.AvgPrice)
	g.positions[symbol] = p
}

// Fail makes every subsequent gateway call return err. Pass nil to restore
// normal operation. Used to exercise fail-closed behaviour in tests.
func (g *SimulatorGateway) Fail(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.err = err
}

// Orders returns copies of all orders placed so far.
func (g *SimulatorGateway) Orders() []SimulatedOrder {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]SimulatedOrder, len(g.orders))
	for i, o := range g.orders {
		out[i] = *o
	}
	return out
}

// GetAccount returns the simulated funding snapshot.
func (g *SimulatorGateway) GetAccount(_ context.Context) (*domain.AccountSnapshot, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return nil, g.err
	}
	acct := g.account
	acct.Timestamp = time.Now()
	return &acct, nil
}

// GetPositions returns copies of all simulated positions keyed by symbol.
func (g *SimulatorGateway) GetPositions(_ context.Context) (map[string]domain.PositionSnapshot, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return nil, g.err
	}
	out := make(map[string]domain.PositionSnapshot, len(g.positions))
	for sym, p := range g.positions {
		out[sym] = p
	}
	return out, nil
}

// GetOpenOrders returns the IDs of all orders not yet cancelled.
func (g *SimulatorGateway) GetOpenOrders(_ context.Context) ([]string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return nil, g.err
	}
	var ids []string
	for _, o := range g.orders {
		if !o.Cancelled {
			ids = append(ids, o.ID)
		}
	}
	return ids, nil
}

// PlaceOrder fills the order immediately at the position's current price (or
// the limit price when no position exists) and adjusts the simulated state.
func (g *SimulatorGateway) PlaceOrder(_ context.Context, req OrderRequest) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return "", g.err
	}

	price := req.LimitPrice
	if p, ok := g.positions[req.Symbol]; ok {
		price = p.CurrentPrice
	}

	g.nextID++
	order := &SimulatedOrder{
		ID:     fmt.Sprintf("sim-%d", g.nextID),
		Symbol: req.Symbol,
		Qty:    req.Qty,
		Side:   req.Side,
		Price:  price,
	}
	g.orders = append(g.orders, order)

	delta := req.Qty
	if req.Side == domain.SideSell {
		delta = -req.Qty
	}

	p := g.positions[req.Symbol]
	p.Symbol = req.Symbol
	p.Quantity += delta
	if p.Quantity == 0 {
		delete(g.positions, req.Symbol)
	} else {
		if p.AvgPrice == 0 {
			p.AvgPrice = price
		}
		p.CurrentPrice = price
		p.MarketValue = p.Quantity * price
		p.UnrealizedPnL = p.Quantity * (price - p.AvgPrice)
		g.positions[req.Symbol] = p
	}

	g.account.Cash -= delta * price

	return order.ID, nil
}

// CancelOrder marks the specified order as cancelled.
func (g *SimulatorGateway) CancelOrder(_ context.Context, orderID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return g.err
	}
	for _, o := range g.orders {
		if o.ID == orderID {
			o.Cancelled = true
			return nil
		}
	}
	return fmt.Errorf("simulator: order %s not found", orderID)
}
