// Package batch admits per-ticker backtest runs into a bounded worker pool
// and collects a per-run report once the whole batch has drained.
package batch

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"marlin/internal/pool"
)

// Outcome is the structured result of one ticker's run. It feeds the pool's
// results summary through its Succeeded method.
type Outcome struct {
	Ticker  string  `json:"ticker"`
	Success bool    `json:"success"`
	Trades  int     `json:"trades"`
	NetPnL  float64 `json:"net_pnl"`
	Err     string  `json:"error,omitempty"`
}

var _ pool.Outcome = Outcome{}

// Succeeded reports whether the run completed without error.
func (o Outcome) Succeeded() bool { return o.Success }

// Runner executes a backtest for a single ticker. Implementations should
// honor ctx cancellation between pipeline stages.
type Runner func(ctx context.Context, ticker string) Outcome

// Config tunes the admission loop.
type Config struct {
	// MaxConcurrency bounds how many tickers run at once.
	MaxConcurrency int
	// PollInterval is how often the admission loop re-checks capacity.
	PollInterval time.Duration
	// LogInterval is how often batch progress is logged.
	LogInterval time.Duration
	// WaitTimeout bounds the per-task drain wait at the end of the batch.
	WaitTimeout time.Duration
}

// Report is what a finished batch hands back to the caller.
type Report struct {
	Summary  pool.Summary
	Outcomes map[string]Outcome
}

// Scheduler feeds a ticker queue through a worker pool, re-queueing tickers
// the pool refuses and never admitting more than the configured concurrency.
type Scheduler struct {
	cfg  Config
	run  Runner
	pool *pool.Pool
	log  *slog.Logger
}

// New builds a Scheduler around its own worker pool.
func New(cfg Config, run Runner, log *slog.Logger) *Scheduler {
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = 4
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 500 * time.Millisecond
	}
	if cfg.LogInterval <= 0 {
		cfg.LogInterval = 10 * time.Second
	}
	if cfg.WaitTimeout <= 0 {
		cfg.WaitTimeout = 5 * time.Minute
	}
	if log == nil {
		log = slog.Default()
	}
	log = log.With("component", "batch")
	return &Scheduler{
		cfg:  cfg,
		run:  run,
		pool: pool.New(pool.Config{MaxTasks: cfg.MaxConcurrency, Timeout: cfg.WaitTimeout}, log),
		log:  log,
	}
}

// Run drains the ticker list through the pool and returns the collected
// report. On context cancellation it stops admitting new tickers, waits for
// the in-flight ones, and returns the partial report alongside ctx.Err().
func (s *Scheduler) Run(ctx context.Context, tickers []string) (Report, error) {
	queue := make([]string, len(tickers))
	copy(queue, tickers)
	total := len(queue)

	s.log.Info("batch starting", "tickers", total, "max_concurrency", s.cfg.MaxConcurrency)

	lastLog := time.Now()
	var admitErr error

admission:
	for {
		if err := ctx.Err(); err != nil {
			s.log.Warn("batch cancelled, draining in-flight runs", "remaining", len(queue))
			admitErr = err
			break
		}

		available := s.cfg.MaxConcurrency - s.pool.ActiveCount()
		for available > 0 && len(queue) > 0 {
			ticker := queue[0]
			queue = queue[1:]
			if err := s.start(ctx, ticker); err != nil {
				// The pool refused the task; put the ticker back and try
				// again next cycle.
				s.log.Warn("admission refused, re-queueing", "ticker", ticker, "error", err)
				queue = append(queue, ticker)
				break
			}
			available--
		}

		active := s.pool.ActiveCount()
		if len(queue) == 0 && active == 0 {
			break
		}

		if time.Since(lastLog) >= s.cfg.LogInterval {
			s.log.Info("batch progress",
				"done", total-len(queue)-active,
				"active", active,
				"queued", len(queue),
				"total", total)
			lastLog = time.Now()
		}

		select {
		case <-ctx.Done():
			continue admission
		case <-time.After(s.cfg.PollInterval):
		}
	}

	s.pool.WaitAll(s.cfg.WaitTimeout)

	// Summarize before cleanup so terminal records are still visible.
	report := Report{
		Summary:  s.pool.ResultsSummary(),
		Outcomes: make(map[string]Outcome, total),
	}
	for name, res := range s.pool.Results() {
		if o, ok := res.(Outcome); ok {
			report.Outcomes[o.Ticker] = o
		} else {
			s.log.Warn("run produced no structured outcome", "task", name)
		}
	}
	s.pool.Cleanup()

	s.log.Info("batch finished",
		"successful", report.Summary.Successful,
		"failed", report.Summary.Failed,
		"total", report.Summary.Total)
	return report, admitErr
}

func (s *Scheduler) start(ctx context.Context, ticker string) error {
	name := fmt.Sprintf("backtest-%s", ticker)
	return s.pool.Start(name, func() (any, error) {
		return s.run(ctx, ticker), nil
	})
}
