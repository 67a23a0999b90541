// Package report renders batch backtest results as human-readable text for
// the command line.
package report

import (
	"fmt"
	"sort"
	"strings"

	"marlin/internal/batch"
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

// FormatPnL formats a P&L value with sign and two decimals, using K/M
// suffixes for large magnitudes to keep column width compact.
func FormatPnL(v float64) string {
	sign := "+"
	if v < 0 {
		sign = "-"
		v = -v
	}
	switch {
	case v >= 1e6:
		return fmt.Sprintf("%s%.2fM", sign, v/1e6)
	case v >= 1e4:
		return fmt.Sprintf("%s%.1fK", sign, v/1e3)
	default:
		return fmt.Sprintf("%s%.2f", sign, v)
	}
}

// RenderBatch renders the per-ticker outcome table for a finished batch,
// sorted by ticker, followed by a totals line.
func RenderBatch(runID string, rep batch.Report) string {
	tickers := make([]string, 0, len(rep.Outcomes))
	for t := range rep.Outcomes {
		tickers = append(tickers, t)
	}
	sort.Strings(tickers)

	var b strings.Builder
	fmt.Fprintf(&b, "run %s\n", runID)
	fmt.Fprintf(&b, "%-10s %-8s %8s %12s  %s\n", "TICKER", "STATUS", "TRADES", "NET P&L", "ERROR")

	var netPnL float64
	var totalTrades int
	for _, t := range tickers {
		o := rep.Outcomes[t]
		status := "ok"
		if !o.Success {
			status = "failed"
		}
		fmt.Fprintf(&b, "%-10s %-8s %8s %12s  %s\n",
			t, status, FormatInt(o.Trades), FormatPnL(o.NetPnL), o.Err)
		netPnL += o.NetPnL
		totalTrades += o.Trades
	}

	fmt.Fprintf(&b, "total: %d ok, %d failed of %d tickers, %s trades, net P&L %s\n",
		rep.Summary.Successful, rep.Summary.Failed, rep.Summary.Total,
		FormatInt(totalTrades), FormatPnL(netPnL))
	return b.String()
}
