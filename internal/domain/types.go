// Package domain defines the core value types shared across the ballast
// risk-control system: account and position snapshots, derived fund status,
// market conditions, and the process-wide risk parameters.
package domain

import (
	"fmt"
	"time"
)

// ---------------------------------------------------------------------------
// Sides and risk levels
// ---------------------------------------------------------------------------

// Side identifies the direction of a proposed trade.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// RiskLevel classifies a single check or trade decision.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// OverallRiskLevel classifies the aggregate state of the whole account.
type OverallRiskLevel string

const (
	OverallNormal    OverallRiskLevel = "normal"
	OverallWarning   OverallRiskLevel = "warning"
	OverallCritical  OverallRiskLevel = "critical"
	OverallEmergency OverallRiskLevel = "emergency"
)

// ---------------------------------------------------------------------------
// Gateway snapshots
// ---------------------------------------------------------------------------

// AccountSnapshot is the funding state pulled from the broker gateway.
// It is immutable per tick and superseded on each refresh.
type AccountSnapshot struct {
	Cash            float64
	BuyingPower     float64
	TotalValue      float64
	MarginUsed      float64
	MarginAvailable float64
	Timestamp       time.Time
}

// PositionSnapshot is one open position as reported by the broker gateway.
// Quantity is signed: negative for short positions.
type PositionSnapshot struct {
	Symbol        string
	Quantity      float64
	AvgPrice      float64
	CurrentPrice  float64
	MarketValue   float64
	UnrealizedPnL float64
}

// MarketConditions holds the per-symbol inputs pushed by the market data
// feed and consumed by the adaptive stop-loss strategies.
type MarketConditions struct {
	Volatility  float64 // e.g. ATR / price, annualised sigma — feed-defined
	Trend       float64 // signed trend strength, positive = up
	VolumeRatio float64 // current volume / average volume
}

// ---------------------------------------------------------------------------
// Derived fund status
// ---------------------------------------------------------------------------

// FundStatus is the aggregate derived from the latest account and position
// snapshots. It is exclusively owned by the fund monitor; everyone else
// receives copies.
type FundStatus struct {
	Cash              float64
	BuyingPower       float64
	TotalValue        float64
	MarginUsed        float64
	MarginAvailable   float64
	MarginUsageRate   float64
	PositionsValue    float64
	UnrealizedPnL     float64
	LeverageRatio     float64
	PositionCount     int
	LastUpdate        time.Time
	Stale             bool
}

// ---------------------------------------------------------------------------
// Risk parameters
// ---------------------------------------------------------------------------

// RiskParameters is the process-wide risk configuration. It is owned by the
// unified controller and propagated atomically to the monitors on update.
type RiskParameters struct {
	MaxLeverage            float64 `yaml:"max_leverage"`
	MaxPositionWeight      float64 `yaml:"max_position_weight"`
	MarginWarningLevel     float64 `yaml:"margin_warning_level"`
	MarginCriticalLevel    float64 `yaml:"margin_critical_level"`
	MaxUnrealizedLossRatio float64 `yaml:"max_unrealized_loss_ratio"`

	// Fractions of a limit at which the overall level turns warning or
	// critical. Tunable rather than hard-coded; see DefaultRiskParameters.
	WarningBand  float64 `yaml:"warning_band"`
	CriticalBand float64 `yaml:"critical_band"`
}

// DefaultRiskParameters returns the stock configuration used when none is
// supplied.
func DefaultRiskParameters() RiskParameters {
	return RiskParameters{
		MaxLeverage:            3.0,
		MaxPositionWeight:      0.30,
		MarginWarningLevel:     0.70,
		MarginCriticalLevel:    0.90,
		MaxUnrealizedLossRatio: 0.10,
		WarningBand:            0.70,
		CriticalBand:           0.90,
	}
}

// Validate rejects malformed parameter sets. A failed validation leaves the
// previously active configuration in place.
func (p RiskParameters) Validate() error {
	if p.MaxLeverage <= 0 {
		return fmt.Errorf("risk parameters: max_leverage must be positive, got %v", p.MaxLeverage)
	}
	if p.MaxPositionWeight <= 0 || p.MaxPositionWeight > 1 {
		return fmt.Errorf("risk parameters: max_position_weight must be in (0, 1], got %v", p.MaxPositionWeight)
	}
	if p.MarginWarningLevel <= 0 || p.MarginWarningLevel > 1 {
		return fmt.Errorf("risk parameters: margin_warning_level must be in (0, 1], got %v", p.MarginWarningLevel)
	}
	if p.MarginCriticalLevel <= 0 || p.MarginCriticalLevel > 1 {
		return fmt.Errorf("risk parameters: margin_critical_level must be in (0, 1], got %v", p.MarginCriticalLevel)
	}
	if p.MarginCriticalLevel < p.MarginWarningLevel {
		return fmt.Errorf("risk parameters: margin_critical_level %v below margin_warning_level %v",
			p.MarginCriticalLevel, p.MarginWarningLevel)
	}
	if p.MaxUnrealizedLossRatio < 0 || p.MaxUnrealizedLossRatio > 1 {
		return fmt.Errorf("risk parameters: max_unrealized_loss_ratio must be in [0, 1], got %v", p.MaxUnrealizedLossRatio)
	}
	if p.WarningBand <= 0 || p.WarningBand >= 1 {
		return fmt.Errorf("risk parameters: warning_band must be in (0, 1), got %v", p.WarningBand)
	}
	if p.CriticalBand <= p.WarningBand || p.CriticalBand > 1 {
		return fmt.Errorf("risk parameters: critical_band must be in (warning_band, 1], got %v", p.CriticalBand)
	}
	return nil
}

// RiskParameterPatch is a partial update to RiskParameters. Nil fields are
// left untouched. Patches are validated as a whole and applied all-or-nothing.
type RiskParameterPatch struct {
	MaxLeverage            *float64
	MaxPositionWeight      *float64
	MarginWarningLevel     *float64
	MarginCriticalLevel    *float64
	MaxUnrealizedLossRatio *float64
	WarningBand            *float64
	CriticalBand           *float64
}

// Apply merges the patch into a copy of p and returns it. The caller is
// responsible for validating the result before adopting it.
func (patch RiskParameterPatch) Apply(p RiskParameters) RiskParameters {
	if patch.MaxLeverage != nil {
		p.MaxLeverage = *patch.MaxLeverage
	}
	if patch.MaxPositionWeight != nil {
		p.MaxPositionWeight = *patch.MaxPositionWeight
	}
	if patch.MarginWarningLevel != nil {
		p.MarginWarningLevel = *patch.MarginWarningLevel
	}
	if patch.MarginCriticalLevel != nil {
		p.MarginCriticalLevel = *patch.MarginCriticalLevel
	}
	if patch.MaxUnrealizedLossRatio != nil {
		p.MaxUnrealizedLossRatio = *patch.MaxUnrealizedLossRatio
	}
	if patch.WarningBand != nil {
		p.WarningBand = *patch.WarningBand
	}
	if patch.CriticalBand != nil {
		p.CriticalBand = *patch.CriticalBand
	}
	return p
}
