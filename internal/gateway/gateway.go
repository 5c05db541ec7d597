// Package gateway defines the broker gateway interface the risk core pulls
// account and position snapshots from, and provides implementations for the
// Alpaca brokerage and an in-memory simulator.
package gateway

import (
	"context"

	"ballast/internal/domain"
)

// OrderKind identifies the execution style of an emergency order.
type OrderKind string

const (
	OrderMarket OrderKind = "market"
	OrderLimit  OrderKind = "limit"
)

// OrderRequest describes an order submitted through the gateway. The risk
// core only places orders as an emergency-action side effect (forced
// reduction or liquidation), never for ordinary trading.
type OrderRequest struct {
	Symbol     string
	Qty        float64
	Side       domain.Side
	Kind       OrderKind
	LimitPrice float64 // used only when Kind == OrderLimit
}

// Gateway abstracts the broker account interface consumed on every tick.
type Gateway interface {
	// Name returns the gateway identifier (e.g. "alpaca", "simulator").
	Name() string

	// GetAccount returns the current funding snapshot.
	GetAccount(ctx context.Context) (*domain.AccountSnapshot, error)

	// GetPositions returns all open positions keyed by symbol.
	GetPositions(ctx context.Context) (map[string]domain.PositionSnapshot, error)

	// GetOpenOrders returns the IDs of all orders still open at the broker.
	GetOpenOrders(ctx context.Context) ([]string, error)

	// PlaceOrder submits an order and returns the broker-assigned order ID.
	PlaceOrder(ctx context.Context, req OrderRequest) (string, error)

	// CancelOrder requests cancellation of an open order by its ID.
	CancelOrder(ctx context.Context, orderID string) error
}
