package us

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"

	"marlin/internal/domain"
	"marlin/internal/gather"
	"marlin/internal/store"
	"marlin/internal/util"
)

var _ gather.Gatherer = (*DailyBarGatherer)(nil)

// defaultBatchSize is the number of symbols sent per multi-bar API call.
const defaultBatchSize = 200

// DailyBarGatherer fetches daily OHLCV bars for a configured list of US
// equity symbols from the Alpaca market-data API and persists them to the
// bar store. Re-running it refreshes already stored symbols in place.
type DailyBarGatherer struct {
	client    *marketdata.Client
	store     store.BarStore
	symbols   []string
	batchSize int
	startDate string
	apiKey    string
	apiSecret string
	baseURL   string // live trading API, used for the calendar
	limiter   *util.RateLimiter
	log       *slog.Logger
}

// NewDailyBarGatherer creates a DailyBarGatherer configured with the given
// Alpaca credentials, target store, symbol list, and rate limit.
func NewDailyBarGatherer(apiKey, apiSecret, dataURL, baseURL string, s store.BarStore, symbols []string, batchSize, rateLimitPerMin int, startDate string) *DailyBarGatherer {
	opts := marketdata.ClientOpts{
		APIKey:    apiKey,
		APISecret: apiSecret,
	}
	if dataURL != "" {
		opts.BaseURL = dataURL
	}
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	if rateLimitPerMin <= 0 {
		rateLimitPerMin = 200
	}

	return &DailyBarGatherer{
		client:    marketdata.NewClient(opts),
		store:     s,
		symbols:   normalizeSymbols(symbols),
		batchSize: batchSize,
		startDate: startDate,
		apiKey:    apiKey,
		apiSecret: apiSecret,
		baseURL:   baseURL,
		limiter:   util.NewRateLimiter(rateLimitPerMin, 5),
		log:       slog.Default().With("gatherer", "us-daily"),
	}
}

// Name returns the gatherer identifier.
func (g *DailyBarGatherer) Name() string { return "us-daily" }

// Run fetches daily bars for every configured symbol from the start date
// through the latest finished trading day and writes them to the store.
func (g *DailyBarGatherer) Run(ctx context.Context) error {
	if len(g.symbols) == 0 {
		return fmt.Errorf("no symbols configured")
	}

	start, err := time.Parse("2006-01-02", g.startDate)
	if err != nil {
		return fmt.Errorf("parsing start date %q: %w", g.startDate, err)
	}

	endDate, err := LatestFinishedTradingDay(g.apiKey, g.apiSecret, g.baseURL)
	if err != nil {
		return fmt.Errorf("determining end date: %w", err)
	}

	batches := batchSymbols(g.symbols, g.batchSize)
	g.log.Info("starting us-daily",
		"symbols", len(g.symbols),
		"batches", len(batches),
		"start", start.Format("2006-01-02"),
		"end", endDate.Format("2006-01-02"),
	)

	runStart := time.Now()
	var totalBars, totalHits int

	for i, batch := range batches {
		if err := g.limiter.Wait(ctx); err != nil {
			return err
		}

		var bars []domain.Bar
		err := util.Retry(ctx, 3, time.Second, 10*time.Second, func() error {
			var fetchErr error
			bars, fetchErr = g.fetchMultiBars(ctx, batch, start, endDate)
			return fetchErr
		})
		if err != nil {
			return fmt.Errorf("fetching batch %d/%d: %w", i+1, len(batches), err)
		}

		if len(bars) > 0 {
			if err := g.store.WriteBars(ctx, bars); err != nil {
				return fmt.Errorf("writing batch %d/%d: %w", i+1, len(batches), err)
			}
		}

		hits := countTickers(bars)
		totalBars += len(bars)
		totalHits += hits
		g.log.Info("batch done",
			"batch", fmt.Sprintf("%d/%d", i+1, len(batches)),
			"hits", hits,
			"empty", len(batch)-hits,
			"bars", len(bars),
			"elapsed", time.Since(runStart).Round(time.Second),
		)
	}

	g.log.Info("complete",
		"symbols", totalHits,
		"bars", totalBars,
		"elapsed", time.Since(runStart).Round(time.Second),
	)
	return nil
}

// fetchMultiBars fetches daily bars for multiple symbols in a single API call.
func (g *DailyBarGatherer) fetchMultiBars(ctx context.Context, symbols []string, start, end time.Time) ([]domain.Bar, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	multiBars, err := g.client.GetMultiBars(symbols, marketdata.GetBarsRequest{
		TimeFrame: marketdata.OneDay,
		Start:     start,
		End:       end,
		Feed:      "sip",
	})
	if err != nil {
		return nil, fmt.Errorf("GetMultiBars: %w", err)
	}

	var bars []domain.Bar
	for symbol, alpacaBars := range multiBars {
		for _, ab := range alpacaBars {
			bars = append(bars, domain.Bar{
				Ticker:     strings.ToUpper(symbol),
				Timestamp:  ab.Timestamp.UTC(),
				Open:       ab.Open,
				High:       ab.High,
				Low:        ab.Low,
				Close:      ab.Close,
				Volume:     int64(ab.Volume),
				TradeCount: int64(ab.TradeCount),
				VWAP:       ab.VWAP,
			})
		}
	}
	return bars, nil
}

// normalizeSymbols upper-cases, trims, and deduplicates the configured
// symbol list while preserving order.
func normalizeSymbols(symbols []string) []string {
	seen := make(map[string]struct{}, len(symbols))
	out := make([]string, 0, len(symbols))
	for _, sym := range symbols {
		sym = strings.ToUpper(strings.TrimSpace(sym))
		if sym == "" {
			continue
		}
		if _, dup := seen[sym]; dup {
			continue
		}
		seen[sym] = struct{}{}
		out = append(out, sym)
	}
	return out
}

// batchSymbols splits symbols into chunks of at most size.
func batchSymbols(symbols []string, size int) [][]string {
	var batches [][]string
	for i := 0; i < len(symbols); i += size {
		end := min(i+size, len(symbols))
		batches = append(batches, symbols[i:end])
	}
	return batches
}

// countTickers returns the number of distinct tickers in bars.
func countTickers(bars []domain.Bar) int {
	seen := make(map[string]struct{})
	for _, b := range bars {
		seen[b.Ticker] = struct{}{}
	}
	return len(seen)
}
