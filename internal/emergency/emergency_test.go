package emergency

import (
	"context"
	"testing"

	"ballast/internal/domain"
	"ballast/internal/gateway"
)

func newTestController(gw *gateway.SimulatorGateway) *Controller {
	if gw == nil {
		return NewController(nil, nil, 0, nil)
	}
	positions := func() map[string]domain.PositionSnapshot {
		m, _ := gw.GetPositions(context.Background())
		return m
	}
	return NewController(gw, positions, 0, nil)
}

func TestTriggerSetsSuspension(t *testing.T) {
	c := newTestController(nil)

	res, err := c.Trigger(context.Background(), LevelHigh, "margin critical", ActionSuspendTrading)
	if err != nil {
		t.Fatalf("Trigger() error: %v", err)
	}
	if !res.Success {
		t.Error("Success = false, want true")
	}
	if res.Level != LevelHigh {
		t.Errorf("Level = %q, want %q", res.Level, LevelHigh)
	}
	if !c.Suspended() {
		t.Error("Suspended() = false, want true after suspend_trading")
	}
	if !c.Active() {
		t.Error("Active() = false, want true")
	}
}

func TestRetriggerSameLevelLogsWithoutDuplicating(t *testing.T) {
	c := newTestController(nil)

	if _, err := c.Trigger(context.Background(), LevelHigh, "first", ActionSuspendTrading); err != nil {
		t.Fatalf("Trigger() error: %v", err)
	}
	if _, err := c.Trigger(context.Background(), LevelHigh, "second", ActionSuspendTrading); err != nil {
		t.Fatalf("Trigger() error: %v", err)
	}

	if !c.Suspended() {
		t.Error("Suspended() = false, want true")
	}
	// Both triggers appear in the log even though the side effect applies once.
	if got := len(c.Events()); got != 2 {
		t.Errorf("len(Events()) = %d, want 2", got)
	}
}

func TestEscalationIsOneDirectional(t *testing.T) {
	c := newTestController(nil)

	c.Trigger(context.Background(), LevelCritical, "drawdown breach")
	res, err := c.Trigger(context.Background(), LevelLow, "minor follow-up", ActionAlertOnly)
	if err != nil {
		t.Fatalf("Trigger() error: %v", err)
	}
	if res.Level != LevelCritical {
		t.Errorf("Level = %q, want %q (lower trigger must not de-escalate)", res.Level, LevelCritical)
	}
	if c.ActiveLevel() != LevelCritical {
		t.Errorf("ActiveLevel() = %q, want %q", c.ActiveLevel(), LevelCritical)
	}
}

func TestResumeIsTheOnlyDeescalation(t *testing.T) {
	c := newTestController(nil)

	c.Trigger(context.Background(), LevelCritical, "drawdown breach")
	if !c.Suspended() {
		t.Fatal("expected suspension after critical trigger")
	}

	c.Resume("operator confirmed recovery")
	if c.Suspended() {
		t.Error("Suspended() = true after Resume()")
	}
	if c.ActiveLevel() != LevelNone {
		t.Errorf("ActiveLevel() = %q, want %q", c.ActiveLevel(), LevelNone)
	}

	last, ok := c.LatestEvent()
	if !ok || last.Level != LevelNone {
		t.Errorf("latest event = %+v, %v, want a resume entry", last, ok)
	}
}

func TestForceLiquidateClosesPositions(t *testing.T) {
	gw := gateway.NewSimulatorGateway()
	gw.SetAccount(domain.AccountSnapshot{Cash: 10000})
	gw.SetPosition("NVDA", 100, 300, 310)
	gw.SetPosition("TSLA", -50, 200, 190)

	c := newTestController(gw)
	res, err := c.Trigger(context.Background(), LevelCritical, "flash crash", ActionSuspendTrading, ActionForceLiquidate)
	if err != nil {
		t.Fatalf("Trigger() error: %v", err)
	}
	if len(res.ActionsTaken) != 2 {
		t.Fatalf("ActionsTaken = %v, want 2 actions", res.ActionsTaken)
	}

	positions, _ := gw.GetPositions(context.Background())
	if len(positions) != 0 {
		t.Errorf("positions remaining after liquidation: %v", positions)
	}

	// Long closed with a sell, short closed with a buy.
	sides := map[string]domain.Side{}
	for _, o := range gw.Orders() {
		sides[o.Symbol] = o.Side
	}
	if sides["NVDA"] != domain.SideSell {
		t.Errorf("NVDA closed with %q, want %q", sides["NVDA"], domain.SideSell)
	}
	if sides["TSLA"] != domain.SideBuy {
		t.Errorf("TSLA closed with %q, want %q", sides["TSLA"], domain.SideBuy)
	}
}

func TestReducePositionsHalvesExposure(t *testing.T) {
	gw := gateway.NewSimulatorGateway()
	gw.SetAccount(domain.AccountSnapshot{Cash: 10000})
	gw.SetPosition("NVDA", 100, 300, 310)

	c := newTestController(gw)
	if _, err := c.Trigger(context.Background(), LevelWarning, "concentration breach", ActionReducePositions); err != nil {
		t.Fatalf("Trigger() error: %v", err)
	}

	positions, _ := gw.GetPositions(context.Background())
	if got := positions["NVDA"].Quantity; got != 50 {
		t.Errorf("NVDA quantity = %v, want 50 after reduction", got)
	}
}

func TestCancelOpenOrders(t *testing.T) {
	gw := gateway.NewSimulatorGateway()
	gw.SetAccount(domain.AccountSnapshot{Cash: 100000})
	id, err := gw.PlaceOrder(context.Background(), gateway.OrderRequest{
		Symbol: "AAPL", Qty: 10, Side: domain.SideBuy, Kind: gateway.OrderLimit, LimitPrice: 150,
	})
	if err != nil {
		t.Fatalf("PlaceOrder() error: %v", err)
	}

	c := NewController(gw, nil, 0, nil)
	res, err := c.Trigger(context.Background(), LevelHigh, "stale feed", ActionCancelOpenOrders)
	if err != nil {
		t.Fatalf("Trigger() error: %v", err)
	}
	if len(res.ActionsTaken) != 1 || res.ActionsTaken[0] != ActionCancelOpenOrders {
		t.Errorf("ActionsTaken = %v, want [%s]", res.ActionsTaken, ActionCancelOpenOrders)
	}

	orders := gw.Orders()
	if len(orders) != 1 || !orders[0].Cancelled {
		t.Errorf("orders = %+v, want order %s cancelled", orders, id)
	}
}

func TestUnappliedActionsExcludedFromResult(t *testing.T) {
	// No gateway and no position source: cancellation and liquidation have
	// nothing to act through and must not be reported as taken.
	c := NewController(nil, nil, 0, nil)

	res, err := c.Trigger(context.Background(), LevelCritical, "feed outage",
		ActionSuspendTrading, ActionCancelOpenOrders, ActionForceLiquidate)
	if err != nil {
		t.Fatalf("Trigger() error: %v", err)
	}
	if len(res.ActionsTaken) != 1 || res.ActionsTaken[0] != ActionSuspendTrading {
		t.Errorf("ActionsTaken = %v, want [%s]", res.ActionsTaken, ActionSuspendTrading)
	}

	last, ok := c.LatestEvent()
	if !ok {
		t.Fatal("expected a logged event")
	}
	if len(last.ActionsTaken) != 1 || last.ActionsTaken[0] != ActionSuspendTrading {
		t.Errorf("event ActionsTaken = %v, want [%s]", last.ActionsTaken, ActionSuspendTrading)
	}
}

func TestTriggerRejectsMalformedInput(t *testing.T) {
	c := newTestController(nil)

	if _, err := c.Trigger(context.Background(), Level("catastrophic"), "typo level"); err == nil {
		t.Error("unknown level should be rejected")
	}
	if _, err := c.Trigger(context.Background(), LevelNone, "no-op level"); err == nil {
		t.Error("level none should be rejected as a trigger")
	}
	if _, err := c.Trigger(context.Background(), LevelHigh, ""); err == nil {
		t.Error("empty reason should be rejected")
	}
	if c.Active() || c.Suspended() {
		t.Error("rejected triggers must not change state")
	}
	if got := len(c.Events()); got != 0 {
		t.Errorf("len(Events()) = %d, want 0 after rejected triggers", got)
	}
}

func TestDefaultActionsNeverLiquidate(t *testing.T) {
	for _, level := range []Level{LevelLow, LevelWarning, LevelHigh, LevelCritical} {
		for _, a := range DefaultActions(level) {
			if a == ActionForceLiquidate {
				t.Errorf("DefaultActions(%q) includes force_liquidate", level)
			}
		}
	}
}

func TestEventLogBounded(t *testing.T) {
	c := NewController(nil, nil, 4, nil)
	for i := 0; i < 10; i++ {
		c.Trigger(context.Background(), LevelLow, "drill", ActionAlertOnly)
	}
	if got := len(c.Events()); got != 4 {
		t.Errorf("len(Events()) = %d, want 4 (bounded ring)", got)
	}
}
