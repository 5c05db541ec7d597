// Package dashboard renders the controller's risk export as console text.
// Pure formatting; control logic never reads anything from here.
package dashboard

import (
	"fmt"
	"math"
	"strings"
)

// FormatInt formats an integer with comma separators.
func FormatInt(n int) string {
	s := fmt.Sprintf("%d", n)
	neg := false
	if strings.HasPrefix(s, "-") {
		neg = true
		s = s[1:]
	}
	if len(s) > 3 {
		var b strings.Builder
		start := len(s) % 3
		if start > 0 {
			b.WriteString(s[:start])
		}
		for i := start; i < len(s); i += 3 {
			if b.Len() > 0 {
				b.WriteByte(',')
			}
			b.WriteString(s[i : i+3])
		}
		s = b.String()
	}
	if neg {
		return "-" + s
	}
	return s
}

// FormatMoney formats a dollar amount as $X,XXX.XX with a sign for negative
// values.
func FormatMoney(v float64) string {
	sign := ""
	if v < 0 {
		sign = "-"
		v = -v
	}
	whole := int(v)
	cents := math.Round((v - float64(whole)) * 100)
	if cents >= 100 {
		whole++
		cents = 0
	}
	return fmt.Sprintf("%s$%s.%02d", sign, FormatInt(whole), int(cents))
}

// FormatPercent formats a ratio as a percentage with one decimal.
func FormatPercent(r float64) string {
	return fmt.Sprintf("%.1f%%", r*100)
}

// FormatSignedMoney is FormatMoney with an explicit plus on gains, used for
// P&L columns.
func FormatSignedMoney(v float64) string {
	if v > 0 {
		return "+" + FormatMoney(v)
	}
	return FormatMoney(v)
}

// FormatPrice formats a price as X.XX, or "-" when there is none.
func FormatPrice(p float64) string {
	if p == 0 || math.IsInf(p, 0) || math.IsNaN(p) {
		return "-"
	}
	return fmt.Sprintf("%.2f", p)
}

// FormatLeverage formats a leverage ratio as X.XXx; infinite leverage (no
// cash backing the book) renders as "inf".
func FormatLeverage(l float64) string {
	if math.IsInf(l, 1) {
		return "inf"
	}
	return fmt.Sprintf("%.2fx", l)
}
