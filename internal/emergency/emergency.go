// Package emergency implements the escalation engine: discrete severity
// levels, remedial actions up to forced liquidation, a global trading
// suspension flag, and an append-only event log.
package emergency

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"ballast/internal/domain"
	"ballast/internal/gateway"
	"ballast/internal/ring"
)

// Level is a discrete emergency severity tier.
type Level string

const (
	LevelNone     Level = "none"
	LevelLow      Level = "low"
	LevelWarning  Level = "warning"
	LevelHigh     Level = "high"
	LevelCritical Level = "critical"
)

// rank orders levels for one-directional escalation. Unknown levels rank
// negative.
func (l Level) rank() int {
	switch l {
	case LevelNone:
		return 0
	case LevelLow:
		return 1
	case LevelWarning:
		return 2
	case LevelHigh:
		return 3
	case LevelCritical:
		return 4
	default:
		return -1
	}
}

// Action is a remedial measure taken when an emergency triggers.
type Action string

const (
	ActionAlertOnly        Action = "alert_only"
	ActionSuspendTrading   Action = "suspend_trading"
	ActionReducePositions  Action = "reduce_position_size"
	ActionCancelOpenOrders Action = "cancel_open_orders"
	ActionForceLiquidate   Action = "force_liquidate"
)

// DefaultActions maps each level to its stock remedial actions when the
// caller does not specify any. Forced liquidation is never a default; it
// must be requested explicitly.
func DefaultActions(level Level) []Action {
	switch level {
	case LevelLow, LevelWarning:
		return []Action{ActionAlertOnly}
	case LevelHigh:
		return []Action{ActionAlertOnly, ActionSuspendTrading}
	case LevelCritical:
		return []Action{ActionAlertOnly, ActionSuspendTrading, ActionCancelOpenOrders}
	default:
		return nil
	}
}

// Event is one append-only entry in the emergency log.
type Event struct {
	Timestamp    time.Time
	Level        Level
	Reason       string
	ActionsTaken []Action
}

// Result reports the outcome of a trigger call. ActionsTaken lists only the
// actions that actually applied; a requested action that could not run (no
// gateway, no position source) is omitted, never reported as taken.
type Result struct {
	Success      bool
	Level        Level // the active level after the trigger
	ActionsTaken []Action
}

// Controller owns the suspension flag and the emergency event log. Order
// placement through the gateway happens only here, as an emergency-action
// side effect, never for ordinary trading.
type Controller struct {
	gw        gateway.Gateway
	positions func() map[string]domain.PositionSnapshot // nil disables reduction/liquidation
	log       *slog.Logger

	mu        sync.Mutex
	suspended bool
	level     Level
	events    *ring.Buffer[Event]
}

// NewController creates an emergency controller. positions supplies the
// snapshot used for forced reduction/liquidation and may be nil, disabling
// those actions; open orders for cancellation are listed from the gateway.
func NewController(gw gateway.Gateway, positions func() map[string]domain.PositionSnapshot, historySize int, log *slog.Logger) *Controller {
	if historySize <= 0 {
		historySize = 256
	}
	if log == nil {
		log = slog.Default()
	}
	return &Controller{
		gw:        gw,
		positions: positions,
		log:       log.With("component", "emergency"),
		level:     LevelNone,
		events:    ring.New[Event](historySize),
	}
}

// Trigger escalates to the given level, executes the remedial actions
// (defaults for the level when none are given), and appends an event.
// Escalation is one-directional: a trigger below the active level logs its
// event but never lowers the level, and re-triggering an already-applied
// side effect (an active suspension) does not duplicate it. The level update
// and the event append happen in one critical section, so concurrent
// triggers log their events in the same order their levels took effect.
// Only a malformed level or an empty reason fail with an error; callers
// must treat that as a rejection.
func (c *Controller) Trigger(ctx context.Context, level Level, reason string, actions ...Action) (Result, error) {
	if level.rank() <= 0 {
		return Result{}, fmt.Errorf("emergency: invalid trigger level %q", level)
	}
	if reason == "" {
		return Result{}, fmt.Errorf("emergency: reason is required")
	}
	if len(actions) == 0 {
		actions = DefaultActions(level)
	}

	taken := make([]Action, 0, len(actions))
	for _, action := range actions {
		if c.execute(ctx, action, reason) {
			taken = append(taken, action)
		}
	}

	c.mu.Lock()
	if level.rank() > c.level.rank() {
		c.level = level
	}
	active := c.level
	c.events.Append(Event{
		Timestamp:    time.Now(),
		Level:        level,
		Reason:       reason,
		ActionsTaken: taken,
	})
	c.mu.Unlock()

	c.log.Warn("emergency action triggered",
		"level", string(level), "reason", reason, "actions", len(taken))

	return Result{Success: true, Level: active, ActionsTaken: taken}, nil
}

// execute performs one remedial action and reports whether it applied.
// Failures are logged and never abort the trigger; the control loop stays
// alive.
func (c *Controller) execute(ctx context.Context, action Action, reason string) bool {
	switch action {
	case ActionAlertOnly:
		// The event log and the caller's callback are the alert.
		return true

	case ActionSuspendTrading:
		c.mu.Lock()
		already := c.suspended
		c.suspended = true
		c.mu.Unlock()
		if !already {
			c.log.Warn("trading suspended", "reason", reason)
		}
		return true

	case ActionCancelOpenOrders:
		if c.gw == nil {
			return false
		}
		ids, err := c.gw.GetOpenOrders(ctx)
		if err != nil {
			c.log.Error("emergency open-order listing failed", "error", err)
			return false
		}
		for _, id := range ids {
			if err := c.gw.CancelOrder(ctx, id); err != nil {
				c.log.Error("emergency order cancel failed", "order_id", id, "error", err)
			}
		}
		return true

	case ActionReducePositions:
		return c.flatten(ctx, 0.5)

	case ActionForceLiquidate:
		return c.flatten(ctx, 1.0)

	default:
		c.log.Error("unknown emergency action", "action", string(action))
		return false
	}
}

// flatten closes the given fraction of every open position with market
// orders through the gateway. It reports false when it has no gateway or
// position source to act through.
func (c *Controller) flatten(ctx context.Context, fraction float64) bool {
	if c.positions == nil || c.gw == nil {
		return false
	}
	for sym, p := range c.positions() {
		qty := math.Abs(p.Quantity) * fraction
		if qty <= 0 {
			continue
		}
		side := domain.SideSell
		if p.Quantity < 0 {
			side = domain.SideBuy
		}
		req := gateway.OrderRequest{Symbol: sym, Qty: qty, Side: side, Kind: gateway.OrderMarket}
		if _, err := c.gw.PlaceOrder(ctx, req); err != nil {
			c.log.Error("emergency close failed", "symbol", sym, "error", err)
			continue
		}
		c.log.Warn("emergency position reduction", "symbol", sym, "qty", qty, "side", string(side))
	}
	return true
}

// Resume lifts the suspension and resets the active level. It is the only
// de-escalation path; there is no automatic timeout back to normal.
func (c *Controller) Resume(reason string) {
	if reason == "" {
		reason = "manual resume"
	}

	c.mu.Lock()
	c.suspended = false
	c.level = LevelNone
	c.events.Append(Event{
		Timestamp: time.Now(),
		Level:     LevelNone,
		Reason:    reason,
	})
	c.mu.Unlock()

	c.log.Info("trading resumed", "reason", reason)
}

// Suspended reports whether the global suspension flag is set.
func (c *Controller) Suspended() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.suspended
}

// ActiveLevel returns the current escalation level.
func (c *Controller) ActiveLevel() Level {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.level
}

// Active reports whether any emergency is in effect.
func (c *Controller) Active() bool {
	return c.ActiveLevel() != LevelNone
}

// Events returns the bounded emergency log, oldest first.
func (c *Controller) Events() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.events.Items()
}

// LatestEvent returns the most recent log entry, if any.
func (c *Controller) LatestEvent() (Event, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.events.Last()
}
