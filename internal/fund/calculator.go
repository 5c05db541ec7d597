// Package fund derives funding metrics from broker account snapshots and
// owns the live fund status used to gate every trade.
package fund

import (
	"math"

	"ballast/internal/domain"
)

// ---------------------------------------------------------------------------
// Pure calculator — stateless derivations over snapshots.
// ---------------------------------------------------------------------------

// LeverageRatio returns total account value divided by cash. A non-positive
// cash balance with exposure on the book reads as infinite leverage.
func LeverageRatio(totalValue, cash float64) float64 {
	if cash <= 0 {
		if totalValue <= 0 {
			return 0
		}
		return math.Inf(1)
	}
	return totalValue / cash
}

// AvailableBuyingPower returns the capital deployable right now: free cash
// plus unused margin capacity.
func AvailableBuyingPower(cash, marginAvailable float64) float64 {
	return cash + marginAvailable
}

// MarginCheck is the result of comparing a margin requirement against the
// account's committed and free margin capacity.
type MarginCheck struct {
	Sufficient      bool
	Shortage        float64 // max(0, required - available)
	ExceedsCritical bool    // committed capacity after the trade crosses criticalLevel
}

// CheckMarginRequirement reports whether `required` additional margin fits
// within the available capacity. criticalLevel is the fraction of total
// margin capacity (used + available) beyond which usage counts as critical.
func CheckMarginRequirement(used, available, required, criticalLevel float64) MarginCheck {
	check := MarginCheck{Sufficient: required <= available}
	if !check.Sufficient {
		check.Shortage = required - available
	}

	capacity := used + available
	if capacity > 0 && (used+required)/capacity >= criticalLevel {
		check.ExceedsCritical = true
	}
	return check
}

// PositionBreakdown aggregates a position map into long/short exposure and
// per-symbol weights.
type PositionBreakdown struct {
	LongValue     float64
	ShortValue    float64 // absolute short exposure
	UnrealizedPnL float64
	Count         int
	Weights       map[string]float64 // |market value| / gross exposure, sums to 1
}

// BreakdownPositions computes the exposure breakdown for a set of positions.
// Weights are relative to gross exposure and sum to 1 for any non-empty set.
func BreakdownPositions(positions map[string]domain.PositionSnapshot) PositionBreakdown {
	b := PositionBreakdown{Weights: make(map[string]float64, len(positions))}

	gross := 0.0
	for _, p := range positions {
		b.Count++
		b.UnrealizedPnL += p.UnrealizedPnL
		if p.MarketValue >= 0 {
			b.LongValue += p.MarketValue
		} else {
			b.ShortValue += -p.MarketValue
		}
		gross += math.Abs(p.MarketValue)
	}

	if gross > 0 {
		for sym, p := range positions {
			b.Weights[sym] = math.Abs(p.MarketValue) / gross
		}
	}
	return b
}

// RiskMetrics is the composite funding risk picture derived from a fund
// status and its positions.
type RiskMetrics struct {
	CashRatio          float64
	LeverageRatio      float64
	MarginUtilization  float64 // committed fraction of total margin capacity
	MarginBuffer       float64 // free fraction of total margin capacity
	MaxPositionWeight  float64 // largest single-symbol fraction of total value
	UnrealizedPnLRatio float64
}

// ComputeRiskMetrics derives the composite metrics for a fund status and the
// positions it was built from.
func ComputeRiskMetrics(status domain.FundStatus, positions map[string]domain.PositionSnapshot) RiskMetrics {
	m := RiskMetrics{
		LeverageRatio: LeverageRatio(status.TotalValue, status.Cash),
	}

	if status.TotalValue > 0 {
		m.CashRatio = status.Cash / status.TotalValue
		m.UnrealizedPnLRatio = status.UnrealizedPnL / status.TotalValue
		for _, p := range positions {
			if w := math.Abs(p.MarketValue) / status.TotalValue; w > m.MaxPositionWeight {
				m.MaxPositionWeight = w
			}
		}
	}

	capacity := status.MarginUsed + status.MarginAvailable
	if capacity > 0 {
		m.MarginUtilization = status.MarginUsed / capacity
		m.MarginBuffer = status.MarginAvailable / capacity
	}
	return m
}
