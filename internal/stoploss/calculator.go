// Package stoploss implements the dynamic stop-loss engine: pure strategy
// calculators plus a monitor that owns per-symbol stop records and enforces
// the one-directional ratchet.
package stoploss

import (
	"fmt"

	"ballast/internal/domain"
)

// Strategy tags the stop-loss variant configured for a position.
type Strategy string

const (
	StrategyFixed      Strategy = "fixed_percent"
	StrategyTrailing   Strategy = "trailing"
	StrategyVolatility Strategy = "volatility_adaptive"
	StrategyBreakeven  Strategy = "breakeven"
)

// Params carries the tuning knobs for all strategy variants. Only the fields
// relevant to the configured strategy are consulted; ProfitTrigger > 0
// additionally enables the breakeven overlay for any strategy.
type Params struct {
	// fixed_percent
	Percent float64

	// trailing
	TrailPercent float64

	// volatility_adaptive
	BaseOffset       float64
	VolatilityFactor float64
	TrendFactor      float64
	VolumeFactor     float64
	MinOffset        float64
	MaxOffset        float64

	// breakeven
	ProfitTrigger float64 // unrealized-profit ratio that arms the breakeven stop
	Buffer        float64 // locked-in profit ratio once armed
}

// Validate rejects parameter sets that cannot produce a meaningful stop for
// the given strategy.
func (p Params) Validate(strategy Strategy) error {
	switch strategy {
	case StrategyFixed:
		if p.Percent <= 0 || p.Percent >= 1 {
			return fmt.Errorf("stoploss: fixed percent must be in (0, 1), got %v", p.Percent)
		}
	case StrategyTrailing:
		if p.TrailPercent <= 0 || p.TrailPercent >= 1 {
			return fmt.Errorf("stoploss: trail percent must be in (0, 1), got %v", p.TrailPercent)
		}
	case StrategyVolatility:
		if p.MinOffset < 0 || p.MaxOffset <= 0 || p.MinOffset > p.MaxOffset {
			return fmt.Errorf("stoploss: offset clamp [%v, %v] is invalid", p.MinOffset, p.MaxOffset)
		}
	case StrategyBreakeven:
		if p.ProfitTrigger <= 0 {
			return fmt.Errorf("stoploss: breakeven trigger must be positive, got %v", p.ProfitTrigger)
		}
		if p.Buffer < 0 {
			return fmt.Errorf("stoploss: breakeven buffer must be non-negative, got %v", p.Buffer)
		}
	default:
		return fmt.Errorf("stoploss: unknown strategy %q", strategy)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Pure strategy functions. Each takes the position direction (long = true)
// and returns the raw candidate stop; ratchet enforcement lives in the
// monitor, not here.
// ---------------------------------------------------------------------------

// FixedPercentStop places the stop a fixed fraction away from the entry
// price, against the position.
func FixedPercentStop(entry, pct float64, long bool) float64 {
	if long {
		return entry * (1 - pct)
	}
	return entry * (1 + pct)
}

// TrailingStop places the stop a fixed fraction behind the best favorable
// price seen so far.
func TrailingStop(bestFavorable, trailPct float64, long bool) float64 {
	if long {
		return bestFavorable * (1 - trailPct)
	}
	return bestFavorable * (1 + trailPct)
}

// AdaptiveStop derives the stop offset from current market conditions:
// higher volatility widens the stop, a trend moving in the holder's favor
// tightens it, and above-average volume widens it. The offset is clamped to
// [MinOffset, MaxOffset] and applied against the current price.
func AdaptiveStop(current float64, p Params, cond domain.MarketConditions, long bool) float64 {
	favorableTrend := cond.Trend
	if !long {
		favorableTrend = -cond.Trend
	}

	offset := p.BaseOffset +
		p.VolatilityFactor*cond.Volatility -
		p.TrendFactor*favorableTrend +
		p.VolumeFactor*(cond.VolumeRatio-1)

	if offset < p.MinOffset {
		offset = p.MinOffset
	}
	if offset > p.MaxOffset {
		offset = p.MaxOffset
	}

	if long {
		return current * (1 - offset)
	}
	return current * (1 + offset)
}

// BreakevenStop arms once the unrealized-profit ratio reaches the trigger
// and then locks a small buffer of profit relative to the entry price. The
// second return is false while untriggered; that is an expected state, not
// an error.
func BreakevenStop(entry, current, trigger, buffer float64, long bool) (float64, bool) {
	if entry <= 0 {
		return 0, false
	}

	var profit float64
	if long {
		profit = (current - entry) / entry
	} else {
		profit = (entry - current) / entry
	}
	if profit < trigger {
		return 0, false
	}

	if long {
		return entry * (1 + buffer), true
	}
	return entry * (1 - buffer), true
}

// Compute dispatches to the pure function for the configured strategy and
// returns the candidate stop. ok is false when the strategy produces no stop
// in the current state (an untriggered breakeven).
func Compute(strategy Strategy, p Params, entry, current, bestFavorable float64, long bool, cond domain.MarketConditions) (stop float64, ok bool) {
	switch strategy {
	case StrategyFixed:
		return FixedPercentStop(entry, p.Percent, long), true
	case StrategyTrailing:
		return TrailingStop(bestFavorable, p.TrailPercent, long), true
	case StrategyVolatility:
		return AdaptiveStop(current, p, cond, long), true
	case StrategyBreakeven:
		return BreakevenStop(entry, current, p.ProfitTrigger, p.Buffer, long)
	default:
		return 0, false
	}
}
