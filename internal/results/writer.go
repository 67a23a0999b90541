// Package results persists completed backtest output (trades and metrics)
// to an external store.
package results

import (
	"context"

	"marlin/internal/domain"
)

// Writer persists the output of one backtest run. Both methods report
// success as a boolean: a failed write marks the enclosing per-ticker task
// as failed, and retry policy belongs to the caller.
type Writer interface {
	// WriteTrades persists the trade set for a run identified by backtestID.
	WriteTrades(ctx context.Context, backtestID string, strategyName string, trades []domain.Trade) bool

	// WriteMetrics persists the aggregate metrics for a run.
	WriteMetrics(ctx context.Context, backtestID string, strategyName string, ticker string, m domain.Metrics) bool
}
