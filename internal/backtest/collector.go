package backtest

import (
	"log/slog"
	"sort"
	"time"

	"marlin/internal/domain"
	"marlin/internal/strategy"
)

// Collector walks the time grid and gathers strategy signals while
// enforcing the anti-lookahead boundary: at grid time t the strategy sees
// only bars with timestamp <= t. A per-ticker watermark and a dedup key set
// guarantee that no signal is collected twice.
type Collector struct {
	strat    strategy.Strategy
	lookback int
	log      *slog.Logger
}

// NewCollector creates a Collector for the given strategy. lookback bounds
// the visible window in bars; zero means the strategy's own declared window,
// or all visible history if it declares none.
func NewCollector(strat strategy.Strategy, lookback int, log *slog.Logger) *Collector {
	if log == nil {
		log = slog.Default()
	}
	return &Collector{
		strat:    strat,
		lookback: lookback,
		log:      log.With("component", "collector"),
	}
}

// collectState carries the watermark and dedup bookkeeping for one run.
type collectState struct {
	watermarks map[string]time.Time
	stepped    map[string]bool
	seen       map[domain.DedupKey]struct{}
	signals    []domain.Signal
}

func newCollectState() *collectState {
	return &collectState{
		watermarks: make(map[string]time.Time),
		stepped:    make(map[string]bool),
		seen:       make(map[domain.DedupKey]struct{}),
	}
}

// CollectTicker runs the strategy over the grid for a single ticker. Bars
// must be sorted by timestamp ascending. Step errors are logged and skipped;
// the grid always completes.
func (c *Collector) CollectTicker(ticker string, grid []time.Time, bars []domain.Bar) []domain.Signal {
	if len(bars) == 0 {
		return nil
	}

	st := newCollectState()
	for _, t := range grid {
		c.step(st, ticker, t, bars)
	}
	return st.signals
}

// CollectAll runs the strategy over the grid for every ticker, evaluating
// all tickers at each step before advancing. The combined signal set is
// returned sorted by signal time for downstream chronological processing.
func (c *Collector) CollectAll(grid []time.Time, tickers []string, barsByTicker map[string][]domain.Bar) []domain.Signal {
	st := newCollectState()

	logEvery := len(grid) / 10
	if logEvery < 1 {
		logEvery = 1
	}

	for i, t := range grid {
		for _, ticker := range tickers {
			bars := barsByTicker[ticker]
			if len(bars) == 0 {
				continue
			}
			c.step(st, ticker, t, bars)
		}

		if (i+1)%logEvery == 0 || i == len(grid)-1 {
			c.log.Info("backtest progress",
				"steps", i+1,
				"total_steps", len(grid),
				"signals", len(st.signals))
		}
	}

	sort.SliceStable(st.signals, func(i, j int) bool {
		return st.signals[i].SignalTime.Before(st.signals[j].SignalTime)
	})
	return st.signals
}

// step evaluates the strategy for one ticker at one grid time and folds any
// surviving signals into the run state.
func (c *Collector) step(st *collectState, ticker string, t time.Time, bars []domain.Bar) {
	window := c.window(bars, t)
	if len(window) == 0 {
		return
	}

	buys, err := c.strat.Buy(window, ticker)
	if err != nil {
		c.log.Error("strategy error", "ticker", ticker, "step", t, "op", "buy", "error", err)
		return
	}
	sells, err := c.strat.Sell(window, ticker)
	if err != nil {
		c.log.Error("strategy error", "ticker", ticker, "step", t, "op", "sell", "error", err)
		return
	}

	firstStep := !st.stepped[ticker]
	st.stepped[ticker] = true

	maxSeen := time.Time{}
	for _, sig := range append(buys, sells...) {
		sigTime := sig.SignalTime.UTC()

		// The watermark only admits signals newer than everything already
		// collected for this ticker; nothing later than t is visible yet.
		if sigTime.After(t) {
			continue
		}
		if wm, ok := st.watermarks[ticker]; ok && !sigTime.After(wm) {
			continue
		}
		if sigTime.After(maxSeen) {
			maxSeen = sigTime
		}

		sig.SignalTime = sigTime
		key := sig.Key()
		if _, dup := st.seen[key]; dup {
			continue
		}
		st.seen[key] = struct{}{}
		st.signals = append(st.signals, sig)
	}

	if !maxSeen.IsZero() {
		st.watermarks[ticker] = maxSeen
	} else if firstStep {
		st.watermarks[ticker] = t.UTC()
	}
}

// window slices the bars visible at grid time t, optionally truncated to
// the trailing lookback the strategy requires.
func (c *Collector) window(bars []domain.Bar, t time.Time) []domain.Bar {
	n := sort.Search(len(bars), func(i int) bool {
		return bars[i].Timestamp.UTC().After(t)
	})
	visible := bars[:n]

	lookback := 0
	if w, ok := c.strat.(strategy.Windowed); ok && w.Window() > 0 {
		lookback = w.Window()
	} else if c.lookback > 0 {
		lookback = c.lookback
	}
	if lookback > 0 && len(visible) > lookback {
		visible = visible[len(visible)-lookback:]
	}
	return visible
}
