// Package metrics exposes the Prometheus collectors for the risk-control
// core. Collectors are package-level and registered via promauto; the daemon
// serves them on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"ballast/internal/domain"
)

// OverallRiskLevel is the aggregate account risk level as a number:
// 0 normal, 1 warning, 2 critical, 3 emergency.
var OverallRiskLevel = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "ballast",
	Subsystem: "risk",
	Name:      "overall_level",
	Help:      "Aggregate account risk level (0=normal, 1=warning, 2=critical, 3=emergency)",
})

// MarginUtilization is the fraction of margin capacity currently committed.
var MarginUtilization = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "ballast",
	Subsystem: "fund",
	Name:      "margin_utilization",
	Help:      "Fraction of total margin capacity currently in use",
})

// LeverageRatio is total account value divided by cash.
var LeverageRatio = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "ballast",
	Subsystem: "fund",
	Name:      "leverage_ratio",
	Help:      "Total account value divided by cash",
})

// UnrealizedPnL is the aggregate unrealized profit and loss in dollars.
var UnrealizedPnL = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "ballast",
	Subsystem: "fund",
	Name:      "unrealized_pnl_dollars",
	Help:      "Aggregate unrealized P&L across open positions",
})

// PositionCount is the number of open positions.
var PositionCount = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "ballast",
	Subsystem: "fund",
	Name:      "position_count",
	Help:      "Number of open positions",
})

// RefreshFailures counts fund refreshes that failed and marked the status
// stale.
var RefreshFailures = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "ballast",
	Subsystem: "fund",
	Name:      "refresh_failures_total",
	Help:      "Fund status refreshes that failed against the gateway",
})

// TradeValidations counts validate-new-trade decisions by result
// (approved/rejected/error) and the check that decided them.
var TradeValidations = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "ballast",
	Subsystem: "risk",
	Name:      "trade_validations_total",
	Help:      "Trade validation decisions by result and deciding check",
}, []string{"result", "check"})

// StopAdjustments counts accepted stop-loss moves.
var StopAdjustments = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "ballast",
	Subsystem: "stoploss",
	Name:      "adjustments_total",
	Help:      "Accepted stop-loss adjustments",
})

// StopBreaches counts observed crossings of an active stop price.
var StopBreaches = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "ballast",
	Subsystem: "stoploss",
	Name:      "breaches_total",
	Help:      "Positions observed trading through their active stop",
})

// EmergencyEvents counts emergency triggers by level.
var EmergencyEvents = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "ballast",
	Subsystem: "emergency",
	Name:      "events_total",
	Help:      "Emergency triggers by level",
}, []string{"level"})

// SetOverallLevel records the aggregate risk level on the gauge.
func SetOverallLevel(level domain.OverallRiskLevel) {
	var v float64
	switch level {
	case domain.OverallWarning:
		v = 1
	case domain.OverallCritical:
		v = 2
	case domain.OverallEmergency:
		v = 3
	}
	OverallRiskLevel.Set(v)
}

// ObserveFundStatus records the fund gauges from a status snapshot.
func ObserveFundStatus(status domain.FundStatus) {
	MarginUtilization.Set(status.MarginUsageRate)
	LeverageRatio.Set(status.LeverageRatio)
	UnrealizedPnL.Set(status.UnrealizedPnL)
	PositionCount.Set(float64(status.PositionCount))
}
