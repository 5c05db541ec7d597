package dashboard

import (
	"fmt"
	"sort"
	"strings"

	"ballast/internal/risk"
)

// Render formats the full risk export as a multi-line console block.
func Render(data risk.DashboardData) string {
	var b strings.Builder

	fmt.Fprintf(&b, "=== Risk Dashboard  %s ===\n", data.Timestamp.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&b, "Overall level: %s", strings.ToUpper(string(data.Overall.Level)))
	if data.Overall.Suspended {
		b.WriteString("  [TRADING SUSPENDED]")
	}
	b.WriteByte('\n')
	for _, reason := range data.Overall.Reasons {
		fmt.Fprintf(&b, "  - %s\n", reason)
	}

	f := data.Overall.Fund
	b.WriteString("\nFunds\n")
	fmt.Fprintf(&b, "  total value     %s\n", FormatMoney(f.TotalValue))
	fmt.Fprintf(&b, "  cash            %s\n", FormatMoney(f.Cash))
	fmt.Fprintf(&b, "  buying power    %s\n", FormatMoney(f.BuyingPower))
	fmt.Fprintf(&b, "  unrealized pnl  %s\n", FormatSignedMoney(f.UnrealizedPnL))
	fmt.Fprintf(&b, "  leverage        %s (limit %s)\n",
		FormatLeverage(data.Overall.Metrics.LeverageRatio), FormatLeverage(data.Parameters.MaxLeverage))
	fmt.Fprintf(&b, "  margin usage    %s (warn %s / crit %s)\n",
		FormatPercent(f.MarginUsageRate),
		FormatPercent(data.Parameters.MarginWarningLevel),
		FormatPercent(data.Parameters.MarginCriticalLevel))
	if f.Stale {
		b.WriteString("  !! fund status is STALE; trades fail closed\n")
	}

	if len(data.Positions) > 0 {
		b.WriteString("\nPositions\n")
		symbols := make([]string, 0, len(data.Positions))
		for sym := range data.Positions {
			symbols = append(symbols, sym)
		}
		sort.Strings(symbols)
		for _, sym := range symbols {
			p := data.Positions[sym]
			line := fmt.Sprintf("  %-6s qty %8.0f  @ %s  value %s  pnl %s  weight %s",
				sym, p.Quantity, FormatPrice(p.CurrentPrice),
				FormatMoney(p.MarketValue), FormatSignedMoney(p.UnrealizedPnL),
				FormatPercent(data.Breakdown.Weights[sym]))
			if r, ok := data.Stops[sym]; ok && r.HasStop {
				line += fmt.Sprintf("  stop %s", FormatPrice(r.CurrentStop))
			}
			b.WriteString(line)
			b.WriteByte('\n')
		}
	}

	perf := data.StopPerformance
	if perf.TotalAdjustments > 0 {
		b.WriteString("\nStop-loss activity\n")
		fmt.Fprintf(&b, "  adjustments %s  avg size %s  per hour %.2f\n",
			FormatInt(perf.TotalAdjustments), FormatPrice(perf.AvgAdjustmentSize), perf.AdjustmentFrequency)
	}

	if n := len(data.RecentEvents); n > 0 {
		b.WriteString("\nEmergency log\n")
		start := n - 5
		if start < 0 {
			start = 0
		}
		for _, e := range data.RecentEvents[start:] {
			fmt.Fprintf(&b, "  %s  %-8s  %s\n",
				e.Timestamp.Format("15:04:05"), e.Level, e.Reason)
		}
	}

	return b.String()
}
