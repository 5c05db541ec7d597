// Package risk composes the fund, stop-loss, and emergency components into
// the unified controller: the mandatory pre-order gate, the aggregate risk
// level, and the polling loop driven by the daemon.
package risk

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"ballast/internal/domain"
	"ballast/internal/emergency"
	"ballast/internal/fund"
	"ballast/internal/gateway"
	"ballast/internal/metrics"
	"ballast/internal/stoploss"
)

// Options tunes the controller.
type Options struct {
	PollInterval         time.Duration // background tick cadence, default 5s
	Fund                 fund.Options
	StopHistorySize      int
	EmergencyHistorySize int
}

func (o Options) withDefaults() Options {
	if o.PollInterval <= 0 {
		o.PollInterval = 5 * time.Second
	}
	return o
}

// Decision is the verdict of the pre-order gate. Rejections are values, not
// errors; errors are reserved for malformed input.
type Decision struct {
	Approved    bool
	Reason      string // empty when approved
	RiskLevel   domain.RiskLevel
	Feasibility fund.Feasibility
	Leverage    fund.LeverageCheck
}

// OverallStatus is the aggregate risk picture across all components.
type OverallStatus struct {
	Level          domain.OverallRiskLevel
	Reasons        []string
	Fund           domain.FundStatus
	Metrics        fund.RiskMetrics
	EmergencyLevel emergency.Level
	Suspended      bool
}

// DashboardData is the read-only export for presentation layers. It is never
// consulted by control logic.
type DashboardData struct {
	Timestamp       time.Time
	Overall         OverallStatus
	Positions       map[string]domain.PositionSnapshot
	Breakdown       fund.PositionBreakdown
	Stops           map[string]stoploss.Record
	StopPerformance stoploss.Performance
	RecentEvents    []emergency.Event
	Parameters      domain.RiskParameters
}

// Controller is the unified risk controller. It owns the risk parameters and
// delegates all other state to the component that exclusively owns it.
//
// Callbacks are plain function fields, set before Start. They fire
// synchronously, at most once per triggering call, and outside internal
// locks; consumers must not block in them.
type Controller struct {
	OnRiskLevelChanged   func(old, new domain.OverallRiskLevel)
	OnEmergencyTriggered func(event emergency.Event)

	funds       *fund.Monitor
	stops       *stoploss.Monitor
	emergencies *emergency.Controller
	opts        Options
	log         *slog.Logger

	// gate serializes suspension-state changes with the pre-order gate's
	// reads, so a validation verdict never mixes the suspension flag from
	// one instant with the fund snapshot from another.
	gate sync.Mutex

	mu        sync.Mutex
	params    domain.RiskParameters
	lastLevel domain.OverallRiskLevel
	running   bool
	cancel    context.CancelFunc
	done      chan struct{}
}

// NewController builds the controller and its three components over the
// given gateway.
func NewController(gw gateway.Gateway, params domain.RiskParameters, opts Options, log *slog.Logger) (*Controller, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	opts = opts.withDefaults()
	if log == nil {
		log = slog.Default()
	}

	c := &Controller{
		opts:      opts,
		log:       log.With("component", "risk-controller"),
		params:    params,
		lastLevel: domain.OverallNormal,
	}
	c.funds = fund.NewMonitor(gw, params, opts.Fund, log)
	c.stops = stoploss.NewMonitor(opts.StopHistorySize, log)
	c.emergencies = emergency.NewController(gw, c.funds.Positions, opts.EmergencyHistorySize, log)
	return c, nil
}

// ---------------------------------------------------------------------------
// Lifecycle. Start/Stop gate the background polling loop only; every
// validation and query method works without it.
// ---------------------------------------------------------------------------

// Start launches the background polling loop.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return fmt.Errorf("risk: controller already started")
	}

	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.done = make(chan struct{})
	c.running = true

	go c.loop(runCtx)
	c.log.Info("risk control started", "poll_interval", c.opts.PollInterval)
	return nil
}

// Stop halts the polling loop and waits for the in-flight tick to finish.
// Idempotent.
func (c *Controller) Stop() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	c.running = false
	cancel, done := c.cancel, c.done
	c.mu.Unlock()

	cancel()
	<-done
	c.log.Info("risk control stopped")
}

func (c *Controller) loop(ctx context.Context) {
	defer close(c.done)

	ticker := time.NewTicker(c.opts.PollInterval)
	defer ticker.Stop()

	c.Tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Tick(ctx)
		}
	}
}

// Tick runs one monitoring cycle: refresh the fund status, re-evaluate every
// stop, and re-derive the overall level. Refresh failures mark the status
// stale and the cycle continues; the loop never dies on a gateway fault.
func (c *Controller) Tick(ctx context.Context) {
	if err := c.funds.Refresh(ctx); err != nil {
		metrics.RefreshFailures.Inc()
		c.log.Warn("tick: fund refresh failed", "error", err)
	}

	for _, pos := range c.funds.Positions() {
		stop, ok := c.stops.Evaluate(pos)
		if !ok {
			continue
		}
		if stopBreached(pos, stop) {
			metrics.StopBreaches.Inc()
			c.log.Warn("stop loss breached",
				"symbol", pos.Symbol, "price", pos.CurrentPrice, "stop", stop)
		}
	}

	status := c.OverallRiskStatus()
	metrics.ObserveFundStatus(status.Fund)
	c.noteLevel(status.Level)
}

// stopBreached reports whether the position trades at or through its stop.
func stopBreached(pos domain.PositionSnapshot, stop float64) bool {
	if pos.Quantity > 0 {
		return pos.CurrentPrice <= stop
	}
	return pos.CurrentPrice >= stop
}

// noteLevel records a level transition and fires OnRiskLevelChanged at most
// once, outside any lock.
func (c *Controller) noteLevel(level domain.OverallRiskLevel) {
	c.mu.Lock()
	old := c.lastLevel
	changed := level != old
	if changed {
		c.lastLevel = level
	}
	cb := c.OnRiskLevelChanged
	c.mu.Unlock()

	metrics.SetOverallLevel(level)
	if !changed {
		return
	}
	c.log.Info("overall risk level changed", "from", string(old), "to", string(level))
	if cb != nil {
		cb(old, level)
	}
}

// ---------------------------------------------------------------------------
// Aggregate status
// ---------------------------------------------------------------------------

// OverallRiskStatus aggregates the fund status, composite metrics, and
// emergency state into one level: emergency > critical > warning > normal.
// The warning and critical bands are fractions of each configured limit.
func (c *Controller) OverallRiskStatus() OverallStatus {
	status, positions := c.funds.Snapshot()
	params := c.Parameters()

	s := OverallStatus{
		Fund:           status,
		Metrics:        fund.ComputeRiskMetrics(status, positions),
		EmergencyLevel: c.emergencies.ActiveLevel(),
		Suspended:      c.emergencies.Suspended(),
	}

	if c.emergencies.Active() || s.Suspended {
		s.Level = domain.OverallEmergency
		s.Reasons = append(s.Reasons, fmt.Sprintf("emergency level %s active", s.EmergencyLevel))
		return s
	}

	level := domain.OverallNormal
	raise := func(to domain.OverallRiskLevel, reason string) {
		s.Reasons = append(s.Reasons, reason)
		if severity(to) > severity(level) {
			level = to
		}
	}

	m := s.Metrics
	switch {
	case m.LeverageRatio >= params.CriticalBand*params.MaxLeverage:
		raise(domain.OverallCritical, fmt.Sprintf("leverage %.2f near limit %.2f", m.LeverageRatio, params.MaxLeverage))
	case m.LeverageRatio >= params.WarningBand*params.MaxLeverage:
		raise(domain.OverallWarning, fmt.Sprintf("leverage %.2f approaching limit %.2f", m.LeverageRatio, params.MaxLeverage))
	}

	switch {
	case m.MarginUtilization >= params.MarginCriticalLevel:
		raise(domain.OverallCritical, fmt.Sprintf("margin utilization %.0f%% at critical level", m.MarginUtilization*100))
	case m.MarginUtilization >= params.MarginWarningLevel:
		raise(domain.OverallWarning, fmt.Sprintf("margin utilization %.0f%% at warning level", m.MarginUtilization*100))
	}

	switch {
	case m.MaxPositionWeight >= params.CriticalBand*params.MaxPositionWeight:
		raise(domain.OverallCritical, fmt.Sprintf("position concentration %.0f%% near limit %.0f%%",
			m.MaxPositionWeight*100, params.MaxPositionWeight*100))
	case m.MaxPositionWeight >= params.WarningBand*params.MaxPositionWeight:
		raise(domain.OverallWarning, fmt.Sprintf("position concentration %.0f%% approaching limit %.0f%%",
			m.MaxPositionWeight*100, params.MaxPositionWeight*100))
	}

	if params.MaxUnrealizedLossRatio > 0 && m.UnrealizedPnLRatio < 0 {
		loss := -m.UnrealizedPnLRatio
		switch {
		case loss >= params.MaxUnrealizedLossRatio:
			raise(domain.OverallCritical, fmt.Sprintf("unrealized loss %.1f%% at limit", loss*100))
		case loss >= params.WarningBand*params.MaxUnrealizedLossRatio:
			raise(domain.OverallWarning, fmt.Sprintf("unrealized loss %.1f%% approaching limit", loss*100))
		}
	}

	if status.Stale {
		raise(domain.OverallWarning, "fund status is stale")
	}

	s.Level = level
	return s
}

func severity(level domain.OverallRiskLevel) int {
	switch level {
	case domain.OverallWarning:
		return 1
	case domain.OverallCritical:
		return 2
	case domain.OverallEmergency:
		return 3
	default:
		return 0
	}
}

// ---------------------------------------------------------------------------
// Pre-order gate
// ---------------------------------------------------------------------------

// ValidateNewTrade is the mandatory pre-order gate. Checks run in strict
// short-circuit order: suspension, funding feasibility, position
// concentration, leverage. The first failing check decides the rejection.
// All inputs to the decision are read under the gate mutex, which every
// suspension-changing path (TriggerEmergencyAction, ResumeTrading) also
// holds: the suspension flag cannot change between its read and the fund
// snapshot, so the verdict reflects one consistent instant. Errors are
// reserved for malformed input.
func (c *Controller) ValidateNewTrade(symbol string, qty, price float64, side domain.Side) (Decision, error) {
	c.gate.Lock()
	suspended := c.emergencies.Suspended()
	status, positions := c.funds.Snapshot()
	params := c.Parameters()
	c.gate.Unlock()

	feasibility, err := fund.CheckFeasibility(status, symbol, qty, price, side)
	if err != nil {
		metrics.TradeValidations.WithLabelValues("error", "input").Inc()
		return Decision{}, err
	}

	d := Decision{Feasibility: feasibility, Leverage: leverageCheck(status, params.MaxLeverage)}

	if suspended {
		return c.reject(d, "suspension", "trading is suspended; resume required"), nil
	}

	if !feasibility.Feasible {
		reason := "trade is not funding-feasible"
		if len(feasibility.Warnings) > 0 {
			reason = feasibility.Warnings[0]
		}
		return c.reject(d, "feasibility", reason), nil
	}

	nearBoundary := false

	if side == domain.SideBuy && status.TotalValue > 0 {
		existing := math.Abs(positions[symbol].MarketValue)
		weight := (existing + feasibility.TradeValue) / status.TotalValue
		if weight > params.MaxPositionWeight {
			return c.reject(d, "concentration", fmt.Sprintf(
				"position weight %.1f%% would exceed limit %.1f%%",
				weight*100, params.MaxPositionWeight*100)), nil
		}
		if weight >= params.WarningBand*params.MaxPositionWeight {
			nearBoundary = true
		}
	}

	if d.Leverage.ExceedsLimit {
		return c.reject(d, "leverage", fmt.Sprintf(
			"leverage %.2f exceeds limit %.2f", d.Leverage.CurrentLeverage, params.MaxLeverage)), nil
	}
	if d.Leverage.CurrentLeverage >= params.WarningBand*params.MaxLeverage {
		nearBoundary = true
	}
	if status.MarginUsageRate >= params.MarginWarningLevel {
		nearBoundary = true
	}

	d.Approved = true
	d.RiskLevel = domain.RiskLow
	if nearBoundary {
		d.RiskLevel = domain.RiskMedium
	}

	metrics.TradeValidations.WithLabelValues("approved", "none").Inc()
	c.log.Info("trade approved",
		"symbol", symbol, "qty", qty, "price", price, "side", string(side),
		"risk_level", string(d.RiskLevel))
	return d, nil
}

func (c *Controller) reject(d Decision, check, reason string) Decision {
	d.Approved = false
	d.Reason = reason
	d.RiskLevel = domain.RiskHigh
	metrics.TradeValidations.WithLabelValues("rejected", check).Inc()
	c.log.Warn("trade rejected", "check", check, "reason", reason)
	return d
}

// leverageCheck derives the leverage verdict from a status copy.
func leverageCheck(status domain.FundStatus, maxLeverage float64) fund.LeverageCheck {
	leverage := fund.LeverageRatio(status.TotalValue, status.Cash)
	check := fund.LeverageCheck{
		CurrentLeverage: leverage,
		LeverageBuffer:  maxLeverage - leverage,
		ExceedsLimit:    leverage > maxLeverage,
	}
	if extra := maxLeverage*status.Cash - status.TotalValue; extra > 0 {
		check.AdditionalBuyingPower = extra
	}
	return check
}

// ---------------------------------------------------------------------------
// Parameters
// ---------------------------------------------------------------------------

// Parameters returns a copy of the active risk parameters.
func (c *Controller) Parameters() domain.RiskParameters {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.params
}

// UpdateRiskParameters merges the patch, validates the result as a whole,
// and on success adopts it and propagates to the sub-monitors immediately.
// A failed validation leaves the previous configuration fully in effect.
func (c *Controller) UpdateRiskParameters(patch domain.RiskParameterPatch) error {
	c.mu.Lock()
	merged := patch.Apply(c.params)
	if err := merged.Validate(); err != nil {
		c.mu.Unlock()
		return err
	}
	c.params = merged
	c.mu.Unlock()

	c.funds.SetParameters(merged)
	c.log.Info("risk parameters updated",
		"max_leverage", merged.MaxLeverage,
		"max_position_weight", merged.MaxPositionWeight,
		"margin_warning", merged.MarginWarningLevel,
		"margin_critical", merged.MarginCriticalLevel)
	return nil
}

// ---------------------------------------------------------------------------
// Emergency delegation
// ---------------------------------------------------------------------------

// TriggerEmergencyAction delegates to the emergency controller and fires
// OnEmergencyTriggered once on success. It holds the gate mutex across the
// trigger, so trades are never approved against a half-applied emergency.
func (c *Controller) TriggerEmergencyAction(ctx context.Context, level emergency.Level, reason string, actions ...emergency.Action) (emergency.Result, error) {
	c.gate.Lock()
	res, err := c.emergencies.Trigger(ctx, level, reason, actions...)
	c.gate.Unlock()
	if err != nil {
		return res, err
	}

	metrics.EmergencyEvents.WithLabelValues(string(level)).Inc()

	c.mu.Lock()
	cb := c.OnEmergencyTriggered
	c.mu.Unlock()
	if cb != nil {
		if event, ok := c.emergencies.LatestEvent(); ok {
			cb(event)
		}
	}

	c.noteLevel(c.OverallRiskStatus().Level)
	return res, nil
}

// ResumeTrading lifts an active suspension and re-derives the overall level.
func (c *Controller) ResumeTrading(reason string) {
	c.gate.Lock()
	c.emergencies.Resume(reason)
	c.gate.Unlock()
	c.noteLevel(c.OverallRiskStatus().Level)
}

// ---------------------------------------------------------------------------
// Component pass-throughs exposed to the orchestration layer
// ---------------------------------------------------------------------------

// SetPositionStopLoss configures a stop for a symbol.
func (c *Controller) SetPositionStopLoss(symbol string, strategy stoploss.Strategy, params stoploss.Params, entryPrice float64) error {
	return c.stops.SetPositionStop(symbol, strategy, params, entryPrice)
}

// RemovePositionStopLoss drops the stop record for a closed position.
func (c *Controller) RemovePositionStopLoss(symbol string) {
	c.stops.RemoveStop(symbol)
}

// UpdateMarketConditions forwards the latest feed inputs for a symbol.
func (c *Controller) UpdateMarketConditions(symbol string, cond domain.MarketConditions) {
	c.stops.UpdateMarketConditions(symbol, cond)
}

// StopLossPerformance reports adjustment statistics, optionally per symbol.
func (c *Controller) StopLossPerformance(symbol string) stoploss.Performance {
	return c.stops.Performance(symbol)
}

// AdjustmentHistory returns chronological stop adjustments for a symbol
// (empty symbol = all).
func (c *Controller) AdjustmentHistory(symbol string) []stoploss.AdjustmentEvent {
	return c.stops.AdjustmentHistory(symbol)
}

// FundAnalysis exposes the fund monitor's detailed report.
func (c *Controller) FundAnalysis() fund.Analysis {
	return c.funds.DetailedAnalysis()
}

// DashboardData exports the full risk picture for presentation. Pure read;
// control logic never consumes it.
func (c *Controller) DashboardData() DashboardData {
	positions := c.funds.Positions()
	return DashboardData{
		Timestamp:       time.Now(),
		Overall:         c.OverallRiskStatus(),
		Positions:       positions,
		Breakdown:       fund.BreakdownPositions(positions),
		Stops:           c.stops.Records(),
		StopPerformance: c.stops.Performance(""),
		RecentEvents:    c.emergencies.Events(),
		Parameters:      c.Parameters(),
	}
}
