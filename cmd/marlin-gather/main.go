package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"marlin/internal/config"
	"marlin/internal/gather/us"
	"marlin/internal/store"
	"marlin/internal/util"
)

func main() {
	cfgPath := flag.String("config", "config/marlin.yaml", "path to configuration file")
	flag.Parse()

	if p := os.Getenv("MARLIN_CONFIG"); p != "" {
		*cfgPath = p
	}

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	// Dual logger: stdout + /tmp log file.
	logFileName := fmt.Sprintf("/tmp/marlin-gather-%s.log", time.Now().Format("2006-01-02"))
	logFile, err := os.Create(logFileName)
	if err != nil {
		log.Fatalf("failed to create log file: %v", err)
	}
	defer logFile.Close()

	logger := util.NewLoggerTo(io.MultiWriter(os.Stdout, logFile), cfg.Logging.Level, cfg.Logging.Format)
	util.SetDefault(logger)

	barStore := store.NewParquetStore(cfg.Storage.DataDir)

	gatherer := us.NewDailyBarGatherer(
		cfg.Alpaca.APIKey,
		cfg.Alpaca.APISecret,
		cfg.Alpaca.DataURL,
		cfg.Alpaca.BaseURL,
		barStore,
		cfg.Gather.Symbols,
		cfg.Gather.BatchSize,
		cfg.Gather.RateLimitPerMin,
		cfg.Gather.StartDate,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger.Info("starting marlin-gather", "gatherer", gatherer.Name(), "log_file", logFileName)
	if err := gatherer.Run(ctx); err != nil {
		log.Fatalf("gather error: %v", err)
	}
}
