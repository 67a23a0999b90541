// Package journal matches entry and exit executions into completed trades
// and computes aggregate performance metrics over the trade set.
package journal

import (
	"log/slog"
	"sort"

	"marlin/internal/domain"
)

// MatchTrades pairs entry executions with exit executions per ticker using
// strict FIFO order: each exit closes the oldest unmatched entry for its
// ticker. Entries with no matching exit remain open and are excluded from
// the result; their count is logged, not treated as an error.
//
// Gross P&L fields are computed from the execution prices here; the
// execution simulator later replaces them with fill-adjusted values.
func MatchTrades(execs []domain.Execution, log *slog.Logger) []domain.Trade {
	if log == nil {
		log = slog.Default()
	}
	if len(execs) == 0 {
		log.Warn("no executions to match")
		return nil
	}

	sorted := make([]domain.Execution, len(execs))
	copy(sorted, execs)
	sort.SliceStable(sorted, func(i, j int) bool {
		if !sorted[i].SignalTime.Equal(sorted[j].SignalTime) {
			return sorted[i].SignalTime.Before(sorted[j].SignalTime)
		}
		return sorted[i].Ticker < sorted[j].Ticker
	})

	open := make(map[string][]domain.Execution)
	var trades []domain.Trade

	for _, e := range sorted {
		switch {
		case e.Action.IsOpen():
			open[e.Ticker] = append(open[e.Ticker], e)

		case e.Action.IsClose():
			queue := open[e.Ticker]
			if len(queue) == 0 {
				// Exit with nothing to close.
				continue
			}
			entry := queue[0]
			open[e.Ticker] = queue[1:]
			trades = append(trades, makeTrade(entry, e))
		}
	}

	unmatched := 0
	for _, queue := range open {
		unmatched += len(queue)
	}
	if unmatched > 0 {
		log.Debug("open entries remain unmatched", "count", unmatched)
	}
	if len(trades) == 0 {
		log.Warn("no trades could be matched")
	}
	return trades
}

func makeTrade(entry, exit domain.Execution) domain.Trade {
	t := domain.Trade{
		Ticker:     entry.Ticker,
		EntryTime:  entry.SignalTime,
		EntryPrice: entry.Price,
		ExitTime:   exit.SignalTime,
		ExitPrice:  exit.Price,
		Shares:     entry.Shares,
		Side:       entry.Side,
	}
	t.GrossPnL = grossPnL(t.Shares, t.EntryPrice, t.ExitPrice, t.Side)
	if cost := t.Shares * t.EntryPrice; cost > 0 {
		t.GrossPnLPct = t.GrossPnL / cost * 100
	}
	return t
}

// grossPnL returns the pre-commission P&L for a position of the given side.
func grossPnL(shares, entry, exit float64, side domain.Side) float64 {
	if side == domain.SideShort {
		return shares * (entry - exit)
	}
	return shares * (exit - entry)
}
