package fund

import (
	"math"
	"testing"

	"ballast/internal/domain"
)

func TestLeverageRatio(t *testing.T) {
	cases := []struct {
		name       string
		totalValue float64
		cash       float64
		want       float64
	}{
		{"unlevered", 100000, 100000, 1.0},
		{"moderate", 150000, 100000, 1.5},
		{"high", 400000, 100000, 4.0},
		{"empty account", 0, 0, 0},
	}
	for _, tc := range cases {
		if got := LeverageRatio(tc.totalValue, tc.cash); got != tc.want {
			t.Errorf("%s: LeverageRatio(%v, %v) = %v, want %v", tc.name, tc.totalValue, tc.cash, got, tc.want)
		}
	}

	if got := LeverageRatio(50000, 0); !math.IsInf(got, 1) {
		t.Errorf("LeverageRatio with zero cash = %v, want +Inf", got)
	}
}

func TestAvailableBuyingPower(t *testing.T) {
	if got := AvailableBuyingPower(100000, 70000); got != 170000 {
		t.Errorf("AvailableBuyingPower(100000, 70000) = %v, want %v", got, 170000.0)
	}
}

func TestCheckMarginRequirement(t *testing.T) {
	// used=30000, available=70000, required=80000 => insufficient,
	// shortage 10000, and (30000+80000)/100000 = 1.1 >= 0.9 critical.
	check := CheckMarginRequirement(30000, 70000, 80000, 0.9)
	if check.Sufficient {
		t.Error("Sufficient = true, want false")
	}
	if check.Shortage != 10000 {
		t.Errorf("Shortage = %v, want %v", check.Shortage, 10000.0)
	}
	if !check.ExceedsCritical {
		t.Error("ExceedsCritical = false, want true")
	}

	// A comfortable requirement is sufficient with zero shortage.
	check = CheckMarginRequirement(30000, 70000, 20000, 0.9)
	if !check.Sufficient {
		t.Error("Sufficient = false, want true")
	}
	if check.Shortage != 0 {
		t.Errorf("Shortage = %v, want %v", check.Shortage, 0.0)
	}
	if check.ExceedsCritical {
		t.Error("ExceedsCritical = true, want false")
	}
}

func TestBreakdownWeightsSumToOne(t *testing.T) {
	cases := []struct {
		name      string
		positions map[string]domain.PositionSnapshot
	}{
		{
			"mixed long short",
			map[string]domain.PositionSnapshot{
				"NVDA": {Symbol: "NVDA", MarketValue: 30000, UnrealizedPnL: 1200},
				"AAPL": {Symbol: "AAPL", MarketValue: 20000, UnrealizedPnL: -300},
				"TSLA": {Symbol: "TSLA", MarketValue: -10000, UnrealizedPnL: 450},
			},
		},
		{
			"single position",
			map[string]domain.PositionSnapshot{
				"MSFT": {Symbol: "MSFT", MarketValue: 40000},
			},
		},
	}

	const eps = 1e-9
	for _, tc := range cases {
		b := BreakdownPositions(tc.positions)
		sum := 0.0
		for _, w := range b.Weights {
			sum += w
		}
		if math.Abs(sum-1.0) > eps {
			t.Errorf("%s: weights sum = %v, want 1", tc.name, sum)
		}
		if b.Count != len(tc.positions) {
			t.Errorf("%s: Count = %d, want %d", tc.name, b.Count, len(tc.positions))
		}
	}
}

func TestBreakdownLongShortSplit(t *testing.T) {
	positions := map[string]domain.PositionSnapshot{
		"NVDA": {Symbol: "NVDA", MarketValue: 30000, UnrealizedPnL: 1000},
		"TSLA": {Symbol: "TSLA", MarketValue: -10000, UnrealizedPnL: -500},
	}
	b := BreakdownPositions(positions)
	if b.LongValue != 30000 {
		t.Errorf("LongValue = %v, want %v", b.LongValue, 30000.0)
	}
	if b.ShortValue != 10000 {
		t.Errorf("ShortValue = %v, want %v", b.ShortValue, 10000.0)
	}
	if b.UnrealizedPnL != 500 {
		t.Errorf("UnrealizedPnL = %v, want %v", b.UnrealizedPnL, 500.0)
	}
}

func TestBreakdownEmpty(t *testing.T) {
	b := BreakdownPositions(nil)
	if b.Count != 0 || b.LongValue != 0 || b.ShortValue != 0 {
		t.Error("empty breakdown should be zeroed")
	}
	if len(b.Weights) != 0 {
		t.Errorf("len(Weights) = %d, want 0", len(b.Weights))
	}
}

func TestComputeRiskMetrics(t *testing.T) {
	status := domain.FundStatus{
		Cash:            100000,
		TotalValue:      150000,
		MarginUsed:      30000,
		MarginAvailable: 70000,
		UnrealizedPnL:   3000,
	}
	positions := map[string]domain.PositionSnapshot{
		"NVDA": {Symbol: "NVDA", MarketValue: 30000},
		"AAPL": {Symbol: "AAPL", MarketValue: 15000},
	}

	m := ComputeRiskMetrics(status, positions)
	if got, want := m.LeverageRatio, 1.5; got != want {
		t.Errorf("LeverageRatio = %v, want %v", got, want)
	}
	if got, want := m.CashRatio, 100000.0/150000.0; math.Abs(got-want) > 1e-12 {
		t.Errorf("CashRatio = %v, want %v", got, want)
	}
	if got, want := m.MarginUtilization, 0.3; math.Abs(got-want) > 1e-12 {
		t.Errorf("MarginUtilization = %v, want %v", got, want)
	}
	if got, want := m.MarginBuffer, 0.7; math.Abs(got-want) > 1e-12 {
		t.Errorf("MarginBuffer = %v, want %v", got, want)
	}
	if got, want := m.MaxPositionWeight, 0.2; math.Abs(got-want) > 1e-12 {
		t.Errorf("MaxPositionWeight = %v, want %v", got, want)
	}
	if got, want := m.UnrealizedPnLRatio, 0.02; math.Abs(got-want) > 1e-12 {
		t.Errorf("UnrealizedPnLRatio = %v, want %v", got, want)
	}
}
