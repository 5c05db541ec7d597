package stoploss

import (
	"math"
	"testing"

	"ballast/internal/domain"
)

const eps = 1e-9

func TestFixedPercentStop(t *testing.T) {
	if got := FixedPercentStop(100, 0.05, true); math.Abs(got-95) > eps {
		t.Errorf("FixedPercentStop(100, 0.05, long) = %v, want %v", got, 95.0)
	}
	if got := FixedPercentStop(100, 0.05, false); math.Abs(got-105) > eps {
		t.Errorf("FixedPercentStop(100, 0.05, short) = %v, want %v", got, 105.0)
	}
}

func TestTrailingStop(t *testing.T) {
	if got := TrailingStop(120, 0.03, true); math.Abs(got-116.4) > eps {
		t.Errorf("TrailingStop(120, 0.03, long) = %v, want %v", got, 116.4)
	}
	if got := TrailingStop(80, 0.03, false); math.Abs(got-82.4) > eps {
		t.Errorf("TrailingStop(80, 0.03, short) = %v, want %v", got, 82.4)
	}
}

func TestBreakevenStop(t *testing.T) {
	// entry 150.0, trigger 2%, buffer 0.5%, current 155.0:
	// profit 3.33% >= 2% => stop = 150 * 1.005 = 150.75.
	stop, ok := BreakevenStop(150.0, 155.0, 0.02, 0.005, true)
	if !ok {
		t.Fatal("BreakevenStop should be armed at 3.33% profit")
	}
	if math.Abs(stop-150.75) > eps {
		t.Errorf("stop = %v, want %v", stop, 150.75)
	}

	// current 152.0: profit 1.33% < 2% => no stop, and that is not an error.
	if _, ok := BreakevenStop(150.0, 152.0, 0.02, 0.005, true); ok {
		t.Error("BreakevenStop should not be armed below the trigger")
	}

	// Short side: entry 150, current 145 => profit 3.33%, stop = 150 * 0.995.
	stop, ok = BreakevenStop(150.0, 145.0, 0.02, 0.005, false)
	if !ok {
		t.Fatal("short BreakevenStop should be armed at 3.33% profit")
	}
	if math.Abs(stop-149.25) > eps {
		t.Errorf("short stop = %v, want %v", stop, 149.25)
	}
}

func TestAdaptiveStopClamping(t *testing.T) {
	p := Params{
		BaseOffset:       0.02,
		VolatilityFactor: 1.0,
		TrendFactor:      0.5,
		VolumeFactor:     0.01,
		MinOffset:        0.01,
		MaxOffset:        0.05,
	}

	// Huge volatility pushes the raw offset far above the clamp.
	cond := domain.MarketConditions{Volatility: 10, VolumeRatio: 1}
	if got := AdaptiveStop(100, p, cond, true); math.Abs(got-95) > eps {
		t.Errorf("clamped high: AdaptiveStop = %v, want %v (offset capped at 0.05)", got, 95.0)
	}

	// A strong favorable trend pulls the offset below the floor.
	cond = domain.MarketConditions{Trend: 1, VolumeRatio: 1}
	if got := AdaptiveStop(100, p, cond, true); math.Abs(got-99) > eps {
		t.Errorf("clamped low: AdaptiveStop = %v, want %v (offset floored at 0.01)", got, 99.0)
	}

	// Short stops sit above the current price.
	cond = domain.MarketConditions{VolumeRatio: 1}
	if got := AdaptiveStop(100, p, cond, false); math.Abs(got-102) > eps {
		t.Errorf("short: AdaptiveStop = %v, want %v", got, 102.0)
	}
}

func TestComputeDispatch(t *testing.T) {
	cond := domain.MarketConditions{VolumeRatio: 1}

	stop, ok := Compute(StrategyFixed, Params{Percent: 0.1}, 200, 210, 210, true, cond)
	if !ok || math.Abs(stop-180) > eps {
		t.Errorf("fixed: Compute = %v, %v, want %v, true", stop, ok, 180.0)
	}

	stop, ok = Compute(StrategyTrailing, Params{TrailPercent: 0.05}, 200, 220, 220, true, cond)
	if !ok || math.Abs(stop-209) > eps {
		t.Errorf("trailing: Compute = %v, %v, want %v, true", stop, ok, 209.0)
	}

	// Untriggered breakeven yields no stop, not an error.
	if _, ok := Compute(StrategyBreakeven, Params{ProfitTrigger: 0.02, Buffer: 0.005}, 200, 201, 201, true, cond); ok {
		t.Error("breakeven below trigger should produce no stop")
	}

	if _, ok := Compute(Strategy("unknown"), Params{}, 200, 210, 210, true, cond); ok {
		t.Error("unknown strategy should produce no stop")
	}
}

func TestParamsValidate(t *testing.T) {
	cases := []struct {
		name     string
		strategy Strategy
		params   Params
		wantErr  bool
	}{
		{"valid fixed", StrategyFixed, Params{Percent: 0.05}, false},
		{"fixed pct zero", StrategyFixed, Params{}, true},
		{"fixed pct one", StrategyFixed, Params{Percent: 1}, true},
		{"valid trailing", StrategyTrailing, Params{TrailPercent: 0.03}, false},
		{"trailing pct negative", StrategyTrailing, Params{TrailPercent: -0.1}, true},
		{"valid volatility", StrategyVolatility, Params{MinOffset: 0.01, MaxOffset: 0.05}, false},
		{"inverted clamp", StrategyVolatility, Params{MinOffset: 0.05, MaxOffset: 0.01}, true},
		{"valid breakeven", StrategyBreakeven, Params{ProfitTrigger: 0.02, Buffer: 0.005}, false},
		{"breakeven no trigger", StrategyBreakeven, Params{Buffer: 0.005}, true},
		{"unknown strategy", Strategy("martingale"), Params{}, true},
	}
	for _, tc := range cases {
		err := tc.params.Validate(tc.strategy)
		if (err != nil) != tc.wantErr {
			t.Errorf("%s: Validate() = %v, wantErr %v", tc.name, err, tc.wantErr)
		}
	}
}
