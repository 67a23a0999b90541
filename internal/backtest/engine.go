package backtest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"marlin/internal/domain"
	"marlin/internal/journal"
	"marlin/internal/portfolio"
	"marlin/internal/store"
	"marlin/internal/strategy"
)

// Options configures one simulation run.
type Options struct {
	// StepFrequency selects the grid spacing; FreqAuto detects it from the
	// bar data.
	StepFrequency string
	// CapitalPerTrade is the notional allocated to each entry signal.
	CapitalPerTrade float64
	// RiskFreeRate is the annual risk-free rate for the Sharpe ratio.
	RiskFreeRate float64
	// Lookback bounds the strategy's visible window in bars when the
	// strategy declares no window of its own. Zero means full history.
	Lookback int
	// Execution tunes the fill model.
	Execution ExecutionConfig
	// Portfolio, when non-nil, gates the execution stream through capital
	// and sizing constraints before trade matching.
	Portfolio *portfolio.Manager
}

// Engine loads bars, derives the time grid, drives the signal collector,
// and runs the downstream trade construction pipeline. Each Engine instance
// is built for one run and holds no shared mutable state.
type Engine struct {
	bars  store.BarStore
	strat strategy.Strategy
	opts  Options
	log   *slog.Logger
}

// New creates an Engine over the given bar store and strategy.
func New(bars store.BarStore, strat strategy.Strategy, opts Options, log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	if opts.StepFrequency == "" {
		opts.StepFrequency = FreqAuto
	}
	if opts.CapitalPerTrade <= 0 {
		opts.CapitalPerTrade = 10000
	}
	return &Engine{
		bars:  bars,
		strat: strat,
		opts:  opts,
		log:   log.With("component", "engine"),
	}
}

// RunTicker simulates a single ticker over [start, end].
func (e *Engine) RunTicker(ctx context.Context, ticker string, start, end time.Time) (*domain.BacktestResults, error) {
	return e.Run(ctx, []string{ticker}, start, end)
}

// Run simulates a group of tickers over [start, end] against a shared time
// grid and, when a portfolio manager is configured, a shared capital pool.
func (e *Engine) Run(ctx context.Context, tickers []string, start, end time.Time) (*domain.BacktestResults, error) {
	barsByTicker := make(map[string][]domain.Bar, len(tickers))
	var allBars []domain.Bar
	for _, ticker := range tickers {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		bars, err := e.bars.ReadBars(ctx, ticker, start, end)
		if err != nil {
			return nil, fmt.Errorf("loading bars for %s: %w", ticker, err)
		}
		if len(bars) == 0 {
			e.log.Warn("no bar data", "ticker", ticker)
			continue
		}
		barsByTicker[ticker] = bars
		allBars = append(allBars, bars...)
	}
	if len(allBars) == 0 {
		return &domain.BacktestResults{StrategyName: e.strat.Name()}, nil
	}

	grid := Steps(e.opts.StepFrequency, start, end, allBars, e.log)
	e.log.Info("time grid derived",
		"steps", len(grid),
		"tickers", len(barsByTicker),
		"frequency", e.opts.StepFrequency)

	collector := NewCollector(e.strat, e.opts.Lookback, e.log)
	signals := collector.CollectAll(grid, tickers, barsByTicker)
	e.log.Info("signals collected", "count", len(signals))

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	execs := buildExecutions(signals, e.opts.CapitalPerTrade)
	if e.opts.Portfolio != nil {
		before := len(execs)
		execs = e.opts.Portfolio.Apply(execs, barsByTicker)
		e.log.Info("portfolio constraints applied", "in", before, "approved", len(execs))
	}

	trades := journal.MatchTrades(execs, e.log)

	sim := NewExecutionSimulator(e.opts.Execution)
	trades = sim.ApplyFills(trades, barsByTicker)
	for i := range trades {
		t := &trades[i]
		t.Efficiency = journal.Efficiency(t.EntryTime, t.ExitTime, t.EntryPrice, t.ExitPrice, barsByTicker[t.Ticker])
	}

	metrics := journal.ComputeMetrics(trades, e.opts.CapitalPerTrade, e.opts.RiskFreeRate)
	e.log.Info("run complete",
		"trades", metrics.TotalTrades,
		"total_profit", metrics.TotalProfit,
		"win_rate", metrics.WinRate)

	return &domain.BacktestResults{
		Signals:      signals,
		Trades:       trades,
		Metrics:      metrics,
		StrategyName: e.strat.Name(),
	}, nil
}

// buildExecutions converts raw signals into the execution stream the
// portfolio manager and trade journal consume. The requested share count is
// the per-trade capital divided by the signal price; downstream constraints
// may shrink it.
func buildExecutions(signals []domain.Signal, capitalPerTrade float64) []domain.Execution {
	execs := make([]domain.Execution, 0, len(signals))
	for _, sig := range signals {
		if sig.Price <= 0 {
			continue
		}
		execs = append(execs, domain.Execution{
			Ticker:     sig.Ticker,
			SignalTime: sig.SignalTime,
			Type:       sig.Type,
			Side:       sig.Side,
			Action:     actionFor(sig),
			Price:      sig.Price,
			Shares:     capitalPerTrade / sig.Price,
		})
	}
	return execs
}

// actionFor maps a signal's type and side onto the portfolio action it
// implies: buys open LONG positions and close SHORT ones, sells do the
// opposite.
func actionFor(sig domain.Signal) domain.Action {
	if sig.Side == domain.SideShort {
		if sig.Type == domain.SignalSell {
			return domain.SellToOpen
		}
		return domain.BuyToClose
	}
	if sig.Type == domain.SignalBuy {
		return domain.BuyToOpen
	}
	return domain.SellToClose
}
