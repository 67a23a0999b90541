package backtest

import (
	"math"
	"sort"
	"time"

	"marlin/internal/domain"
)

// ExecutionConfig tunes the fill model.
type ExecutionConfig struct {
	SlippageBps        float64
	CommissionPerShare float64
	UseLimitOrders     bool
	FillDelayMinutes   int
}

// DefaultExecutionConfig returns the standard fill model: 5 bps slippage
// and half a cent per share each way.
func DefaultExecutionConfig() ExecutionConfig {
	return ExecutionConfig{
		SlippageBps:        5.0,
		CommissionPerShare: 0.005,
	}
}

// ExecutionSimulator converts matched trades' signal prices into realistic
// fills with slippage and commission.
type ExecutionSimulator struct {
	cfg ExecutionConfig
}

// NewExecutionSimulator creates an ExecutionSimulator with the given config.
func NewExecutionSimulator(cfg ExecutionConfig) *ExecutionSimulator {
	return &ExecutionSimulator{cfg: cfg}
}

// ApplyFills replaces each trade's entry and exit prices with simulated
// fills and recomputes its P&L fields. The fill never comes from the bar
// the signal was detected on: it is taken from the next bar strictly after
// the signal bar, falling back to the signal bar only at the end of the
// data. With no bar data at all for a ticker the raw signal price is kept
// unchanged.
func (s *ExecutionSimulator) ApplyFills(trades []domain.Trade, barsByTicker map[string][]domain.Bar) []domain.Trade {
	out := make([]domain.Trade, len(trades))
	copy(out, trades)

	for i := range out {
		t := &out[i]
		bars := barsByTicker[t.Ticker]
		if len(bars) == 0 {
			continue
		}

		t.EntryPrice = s.fillPrice(t.EntryPrice, t.EntryTime, bars, true)
		t.ExitPrice = s.fillPrice(t.ExitPrice, t.ExitTime, bars, false)

		if t.Side == domain.SideShort {
			t.GrossPnL = t.Shares * (t.EntryPrice - t.ExitPrice)
		} else {
			t.GrossPnL = t.Shares * (t.ExitPrice - t.EntryPrice)
		}
		t.Commission = t.Shares * s.cfg.CommissionPerShare * 2
		t.NetPnL = t.GrossPnL - t.Commission
		if cost := t.Shares * t.EntryPrice; cost > 0 {
			t.GrossPnLPct = t.GrossPnL / cost * 100
		}
	}
	return out
}

// fillPrice computes the slippage-adjusted fill for one trade leg, rounded
// to four decimals before any P&L math.
func (s *ExecutionSimulator) fillPrice(signalPrice float64, ts time.Time, bars []domain.Bar, entry bool) float64 {
	bar, ok := s.executionBar(ts.UTC(), bars)
	if !ok {
		return signalPrice
	}

	price := bar.Close
	if s.cfg.UseLimitOrders {
		price = bar.Open
	}

	slip := s.cfg.SlippageBps / 10000
	if entry {
		price *= 1 + slip
	} else {
		price *= 1 - slip
	}
	return round4(price)
}

// executionBar picks the bar a signal at ts actually fills on: the first
// bar strictly after the signal's bar, or the signal bar itself when no
// later bar exists.
func (s *ExecutionSimulator) executionBar(ts time.Time, bars []domain.Bar) (domain.Bar, bool) {
	if len(bars) == 0 {
		return domain.Bar{}, false
	}

	// Index of the signal bar: the latest bar at or before ts.
	n := sort.Search(len(bars), func(i int) bool {
		return bars[i].Timestamp.UTC().After(ts)
	})

	if n < len(bars) {
		// bars[n] is strictly after the signal bar (or after ts when no
		// bar at or before ts exists).
		return bars[n], true
	}
	if n > 0 {
		// End of data: fall back to the signal bar.
		return bars[n-1], true
	}
	return domain.Bar{}, false
}

func round4(x float64) float64 {
	return math.Round(x*10000) / 10000
}
