package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"marlin/internal/backtest"
	"marlin/internal/batch"
	"marlin/internal/config"
	"marlin/internal/portfolio"
	"marlin/internal/report"
	"marlin/internal/results"
	"marlin/internal/store"
	"marlin/internal/strategy"
	"marlin/internal/strategy/builtins"
	"marlin/internal/util"
)

func main() {
	var (
		cfgPath   = flag.String("config", "config/marlin.yaml", "path to configuration file")
		stratName = flag.String("strategy", "sma-cross", "registered strategy to run")
		tickers   = flag.String("tickers", "", "comma-separated tickers (default: all stored tickers)")
		startStr  = flag.String("start", "2020-01-01", "backtest start date (YYYY-MM-DD)")
		endStr    = flag.String("end", "", "backtest end date (YYYY-MM-DD, default today)")
		runID     = flag.String("run-id", "", "backtest run identifier (default derived from time)")
		smaShort  = flag.Int("sma-short", 20, "short period for the sma-cross strategy")
		smaLong   = flag.Int("sma-long", 50, "long period for the sma-cross strategy")
	)
	flag.Parse()

	if p := os.Getenv("MARLIN_CONFIG"); p != "" {
		*cfgPath = p
	}

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	// Dual logger: stdout + /tmp log file.
	logFileName := fmt.Sprintf("/tmp/marlin-backtest-%s.log", time.Now().Format("2006-01-02"))
	logFile, err := os.Create(logFileName)
	if err != nil {
		log.Fatalf("failed to create log file: %v", err)
	}
	defer logFile.Close()

	logger := util.NewLoggerTo(io.MultiWriter(os.Stdout, logFile), cfg.Logging.Level, cfg.Logging.Format)
	util.SetDefault(logger)

	start, err := time.Parse("2006-01-02", *startStr)
	if err != nil {
		log.Fatalf("invalid -start: %v", err)
	}
	end := time.Now().UTC()
	if *endStr != "" {
		end, err = time.Parse("2006-01-02", *endStr)
		if err != nil {
			log.Fatalf("invalid -end: %v", err)
		}
	}

	if *runID == "" {
		*runID = fmt.Sprintf("run-%s", time.Now().UTC().Format("20060102-150405"))
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	registry := strategy.NewRegistry()
	registry.Register(builtins.NewSMACross(*smaShort, *smaLong))

	strat, ok := registry.Get(*stratName)
	if !ok {
		log.Fatalf("unknown strategy %q, registered: %v", *stratName, registry.List())
	}

	barStore := store.NewParquetStore(cfg.Storage.DataDir)

	tickerList := splitTickers(*tickers)
	if len(tickerList) == 0 {
		tickerList, err = barStore.ListTickers(ctx)
		if err != nil {
			log.Fatalf("listing tickers: %v", err)
		}
	}
	if len(tickerList) == 0 {
		log.Fatal("no tickers to backtest; run marlin-gather first or pass -tickers")
	}

	writer, closeWriter, err := newResultsWriter(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("opening results backend: %v", err)
	}
	defer closeWriter()

	opts := backtest.Options{
		StepFrequency:   cfg.Backtest.StepFrequency,
		CapitalPerTrade: cfg.Backtest.CapitalPerTrade,
		RiskFreeRate:    cfg.Backtest.RiskFreeRate,
		Execution: backtest.ExecutionConfig{
			SlippageBps:        cfg.Execution.SlippageBps,
			CommissionPerShare: cfg.Execution.CommissionPerShare,
			UseLimitOrders:     cfg.Execution.UseLimitOrders,
			FillDelayMinutes:   cfg.Execution.FillDelayMinutes,
		},
	}

	runner := func(ctx context.Context, ticker string) batch.Outcome {
		runOpts := opts
		if cfg.Portfolio.Enabled {
			// Each ticker runs against its own capital pool so batch results
			// stay independent of admission order.
			runOpts.Portfolio = newPortfolioManager(cfg, logger)
		}
		engine := backtest.New(barStore, strat, runOpts, logger)

		res, err := engine.RunTicker(ctx, ticker, start, end)
		if err != nil {
			return batch.Outcome{Ticker: ticker, Err: err.Error()}
		}

		if !writer.WriteTrades(ctx, *runID, strat.Name(), res.Trades) {
			return batch.Outcome{Ticker: ticker, Trades: len(res.Trades), Err: "writing trades failed"}
		}
		if !writer.WriteMetrics(ctx, *runID, strat.Name(), ticker, res.Metrics) {
			return batch.Outcome{Ticker: ticker, Trades: len(res.Trades), Err: "writing metrics failed"}
		}

		return batch.Outcome{
			Ticker:  ticker,
			Success: true,
			Trades:  len(res.Trades),
			NetPnL:  res.Metrics.TotalProfit,
		}
	}

	sched := batch.New(batch.Config{
		MaxConcurrency: cfg.Pool.MaxConcurrency,
		WaitTimeout:    time.Duration(cfg.Pool.TaskTimeoutSecs) * time.Second,
	}, runner, logger)

	logger.Info("backtest batch starting",
		"run_id", *runID,
		"strategy", strat.Name(),
		"tickers", len(tickerList),
		"start", start.Format("2006-01-02"),
		"end", end.Format("2006-01-02"),
		"log_file", logFileName,
	)

	rep, err := sched.Run(ctx, tickerList)
	if err != nil {
		logger.Error("batch aborted", "err", err)
	}

	fmt.Print("\n" + report.RenderBatch(*runID, rep))

	if err != nil || rep.Summary.Failed > 0 {
		os.Exit(1)
	}
}

// newResultsWriter opens the configured results backend and returns it with
// its close function.
func newResultsWriter(ctx context.Context, cfg *config.Config, logger *slog.Logger) (results.Writer, func(), error) {
	switch cfg.Results.Backend {
	case "clickhouse":
		w, err := results.NewClickHouseWriter(ctx, results.ClickHouseOptions{
			Addr:     []string{cfg.Results.ClickHouse.Addr},
			Database: cfg.Results.ClickHouse.Database,
			Username: cfg.Results.ClickHouse.Username,
			Password: cfg.Results.ClickHouse.Password,
		}, logger)
		if err != nil {
			return nil, nil, err
		}
		return w, func() { w.Close() }, nil
	case "sqlite", "":
		w, err := results.NewSQLiteWriter(cfg.Storage.SQLitePath, logger)
		if err != nil {
			return nil, nil, err
		}
		return w, func() { w.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown results backend %q", cfg.Results.Backend)
	}
}

// newPortfolioManager assembles the rule pipeline from configuration.
func newPortfolioManager(cfg *config.Config, logger *slog.Logger) *portfolio.Manager {
	var rules []portfolio.Rule
	if cfg.Portfolio.FractionOfEquity > 0 {
		rules = append(rules, &portfolio.FractionalPositionSize{FractionOfEquity: cfg.Portfolio.FractionOfEquity})
	}
	if cfg.Portfolio.MaxDeployedPct > 0 {
		rules = append(rules, &portfolio.MaxCapitalDeployed{MaxDeployedPct: cfg.Portfolio.MaxDeployedPct})
	}
	pipeline := portfolio.NewPipeline(rules, logger)
	return portfolio.NewManager(pipeline, cfg.Backtest.InitialAccountValue, cfg.Portfolio.SettlementLagTradingDays, logger)
}

// splitTickers parses a comma-separated ticker list, dropping empties.
func splitTickers(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, t := range strings.Split(s, ",") {
		t = strings.ToUpper(strings.TrimSpace(t))
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}
