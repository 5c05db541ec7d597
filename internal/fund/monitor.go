package fund

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"ballast/internal/domain"
	"ballast/internal/gateway"
	"ballast/internal/ring"
	"ballast/internal/util"
)

// Options tunes the monitor's refresh and history behaviour.
type Options struct {
	HistorySize   int           // bounded fund-status history capacity
	StaleAfter    time.Duration // age beyond which the status counts as stale
	RetryAttempts int           // gateway pull attempts per refresh
	RetryDelay    time.Duration // initial backoff between attempts
}

// DefaultOptions returns the monitor defaults used when a field is zero.
func DefaultOptions() Options {
	return Options{
		HistorySize:   256,
		StaleAfter:    30 * time.Second,
		RetryAttempts: 3,
		RetryDelay:    200 * time.Millisecond,
	}
}

func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.HistorySize <= 0 {
		o.HistorySize = def.HistorySize
	}
	if o.StaleAfter <= 0 {
		o.StaleAfter = def.StaleAfter
	}
	if o.RetryAttempts <= 0 {
		o.RetryAttempts = def.RetryAttempts
	}
	if o.RetryDelay <= 0 {
		o.RetryDelay = def.RetryDelay
	}
	return o
}

// Monitor owns the live fund status. It refreshes from the broker gateway,
// derives metrics via the calculator functions, validates trade feasibility,
// and keeps a bounded history. All other components receive copies only.
type Monitor struct {
	gw   gateway.Gateway
	opts Options
	log  *slog.Logger

	mu        sync.RWMutex
	params    domain.RiskParameters
	status    domain.FundStatus
	positions map[string]domain.PositionSnapshot
	history   *ring.Buffer[domain.FundStatus]
}

// NewMonitor creates a fund monitor pulling from gw.
func NewMonitor(gw gateway.Gateway, params domain.RiskParameters, opts Options, log *slog.Logger) *Monitor {
	opts = opts.withDefaults()
	if log == nil {
		log = slog.Default()
	}
	return &Monitor{
		gw:        gw,
		opts:      opts,
		log:       log.With("component", "fund-monitor"),
		params:    params,
		positions: make(map[string]domain.PositionSnapshot),
		history:   ring.New[domain.FundStatus](opts.HistorySize),
	}
}

// SetParameters swaps in a new parameter set. Called by the controller on
// atomic parameter updates.
func (m *Monitor) SetParameters(params domain.RiskParameters) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.params = params
}

// Refresh pulls fresh account and position snapshots from the gateway and
// recomputes the fund status. On failure the status is marked stale rather
// than silently kept current, so downstream validation fails closed.
func (m *Monitor) Refresh(ctx context.Context) error {
	var acct *domain.AccountSnapshot
	var positions map[string]domain.PositionSnapshot

	err := util.Retry(ctx, m.opts.RetryAttempts, m.opts.RetryDelay, func() error {
		var err error
		acct, err = m.gw.GetAccount(ctx)
		if err != nil {
			return err
		}
		positions, err = m.gw.GetPositions(ctx)
		return err
	})
	if err != nil {
		m.mu.Lock()
		m.status.Stale = true
		m.mu.Unlock()
		m.log.Warn("fund refresh failed, status marked stale", "error", err)
		return fmt.Errorf("fund refresh: %w", err)
	}

	status := deriveStatus(acct, positions)

	m.mu.Lock()
	m.status = status
	m.positions = positions
	m.history.Append(status)
	m.mu.Unlock()

	m.log.Debug("fund status refreshed",
		"total_value", status.TotalValue,
		"cash", status.Cash,
		"leverage", status.LeverageRatio,
		"positions", status.PositionCount)
	return nil
}

// deriveStatus folds an account snapshot and its positions into a FundStatus.
func deriveStatus(acct *domain.AccountSnapshot, positions map[string]domain.PositionSnapshot) domain.FundStatus {
	status := domain.FundStatus{
		Cash:            acct.Cash,
		BuyingPower:     acct.BuyingPower,
		TotalValue:      acct.TotalValue,
		MarginUsed:      acct.MarginUsed,
		MarginAvailable: acct.MarginAvailable,
		LeverageRatio:   LeverageRatio(acct.TotalValue, acct.Cash),
		PositionCount:   len(positions),
		LastUpdate:      acct.Timestamp,
	}
	if status.LastUpdate.IsZero() {
		status.LastUpdate = time.Now()
	}
	if capacity := acct.MarginUsed + acct.MarginAvailable; capacity > 0 {
		status.MarginUsageRate = acct.MarginUsed / capacity
	}
	for _, p := range positions {
		status.PositionsValue += p.MarketValue
		status.UnrealizedPnL += p.UnrealizedPnL
	}
	return status
}

// Status returns a copy of the current fund status. The Stale flag reflects
// both failed refreshes and age beyond the configured bound.
func (m *Monitor) Status() domain.FundStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.staleAdjusted()
}

// staleAdjusted must be called with at least a read lock held.
func (m *Monitor) staleAdjusted() domain.FundStatus {
	status := m.status
	if status.LastUpdate.IsZero() || time.Since(status.LastUpdate) > m.opts.StaleAfter {
		status.Stale = true
	}
	return status
}

// Snapshot returns the fund status and position map from one consistent
// instant. Trade validation reads through here so a decision never mixes
// fund state from two different refreshes.
func (m *Monitor) Snapshot() (domain.FundStatus, map[string]domain.PositionSnapshot) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	status := m.staleAdjusted()
	positions := make(map[string]domain.PositionSnapshot, len(m.positions))
	for sym, p := range m.positions {
		positions[sym] = p
	}
	return status, positions
}

// Positions returns a copy of the latest position map.
func (m *Monitor) Positions() map[string]domain.PositionSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]domain.PositionSnapshot, len(m.positions))
	for sym, p := range m.positions {
		out[sym] = p
	}
	return out
}

// History returns the bounded fund-status history, oldest first.
func (m *Monitor) History() []domain.FundStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.history.Items()
}

// CheckMarginRequirements checks whether `required` additional margin fits
// the current capacity, using the configured critical threshold.
func (m *Monitor) CheckMarginRequirements(required float64) MarginCheck {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return CheckMarginRequirement(m.status.MarginUsed, m.status.MarginAvailable, required, m.params.MarginCriticalLevel)
}

// LeverageCheck is the result of comparing current leverage against a limit.
type LeverageCheck struct {
	ExceedsLimit          bool
	CurrentLeverage       float64
	LeverageBuffer        float64 // limit - current, negative when exceeded
	AdditionalBuyingPower float64 // clamped at zero
}

// CheckLeverageLimits compares the current leverage ratio against
// maxLeverage and reports how much additional exposure remains.
func (m *Monitor) CheckLeverageLimits(maxLeverage float64) LeverageCheck {
	m.mu.RLock()
	defer m.mu.RUnlock()

	leverage := LeverageRatio(m.status.TotalValue, m.status.Cash)
	check := LeverageCheck{
		CurrentLeverage: leverage,
		LeverageBuffer:  maxLeverage - leverage,
		ExceedsLimit:    leverage > maxLeverage,
	}
	if extra := maxLeverage*m.status.Cash - m.status.TotalValue; extra > 0 {
		check.AdditionalBuyingPower = extra
	}
	return check
}

// Feasibility is the funding verdict for a proposed trade.
type Feasibility struct {
	Feasible              bool
	TradeValue            float64
	CashSufficient        bool
	BuyingPowerSufficient bool
	CashAfterTrade        float64
	Warnings              []string
}

// ValidateTradeFeasibility checks a proposed trade against the current
// funding snapshot. See CheckFeasibility for the rules.
func (m *Monitor) ValidateTradeFeasibility(symbol string, qty, price float64, side domain.Side) (Feasibility, error) {
	m.mu.RLock()
	status := m.staleAdjusted()
	m.mu.RUnlock()
	return CheckFeasibility(status, symbol, qty, price, side)
}

// CheckFeasibility checks a proposed trade against a funding snapshot. Buys
// require non-negative cash after the trade and a trade value within buying
// power; sells are funding-feasible by construction. A stale fund status
// fails closed: the trade is reported infeasible. Malformed inputs are the
// only error condition.
func CheckFeasibility(status domain.FundStatus, symbol string, qty, price float64, side domain.Side) (Feasibility, error) {
	if symbol == "" {
		return Feasibility{}, fmt.Errorf("validate trade: empty symbol")
	}
	if qty <= 0 {
		return Feasibility{}, fmt.Errorf("validate trade %s: quantity must be positive, got %v", symbol, qty)
	}
	if price <= 0 {
		return Feasibility{}, fmt.Errorf("validate trade %s: price must be positive, got %v", symbol, price)
	}
	if side != domain.SideBuy && side != domain.SideSell {
		return Feasibility{}, fmt.Errorf("validate trade %s: unknown side %q", symbol, side)
	}

	f := Feasibility{TradeValue: qty * price}

	if status.Stale {
		f.CashAfterTrade = status.Cash
		f.Warnings = append(f.Warnings, "fund status is stale; trade rejected until the next successful refresh")
		return f, nil
	}

	if side == domain.SideSell {
		f.Feasible = true
		f.CashSufficient = true
		f.BuyingPowerSufficient = true
		f.CashAfterTrade = status.Cash + f.TradeValue
		return f, nil
	}

	f.CashAfterTrade = status.Cash - f.TradeValue
	f.CashSufficient = f.CashAfterTrade >= 0
	f.BuyingPowerSufficient = f.TradeValue <= status.BuyingPower
	f.Feasible = f.CashSufficient && f.BuyingPowerSufficient

	if !f.CashSufficient {
		f.Warnings = append(f.Warnings,
			fmt.Sprintf("insufficient cash: trade value %.2f exceeds cash %.2f", f.TradeValue, status.Cash))
	}
	if !f.BuyingPowerSufficient {
		f.Warnings = append(f.Warnings,
			fmt.Sprintf("insufficient buying power: trade value %.2f exceeds buying power %.2f", f.TradeValue, status.BuyingPower))
	}
	return f, nil
}

// Analysis is the full funding picture composed from the current status.
type Analysis struct {
	Status    domain.FundStatus
	Metrics   RiskMetrics
	Breakdown PositionBreakdown
	Leverage  LeverageCheck
}

// DetailedAnalysis composes the current status, composite metrics, position
// breakdown, and leverage check into one read-only report.
func (m *Monitor) DetailedAnalysis() Analysis {
	m.mu.RLock()
	status := m.staleAdjusted()
	positions := make(map[string]domain.PositionSnapshot, len(m.positions))
	for sym, p := range m.positions {
		positions[sym] = p
	}
	maxLeverage := m.params.MaxLeverage
	m.mu.RUnlock()

	a := Analysis{
		Status:    status,
		Metrics:   ComputeRiskMetrics(status, positions),
		Breakdown: BreakdownPositions(positions),
	}

	leverage := LeverageRatio(status.TotalValue, status.Cash)
	a.Leverage = LeverageCheck{
		CurrentLeverage: leverage,
		LeverageBuffer:  maxLeverage - leverage,
		ExceedsLimit:    leverage > maxLeverage,
	}
	if extra := maxLeverage*status.Cash - status.TotalValue; extra > 0 {
		a.Leverage.AdditionalBuyingPower = extra
	}
	return a
}
