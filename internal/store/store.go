// Package store defines storage interfaces for persisting and retrieving
// historical bar data consumed by the backtest engine.
package store

import (
	"context"
	"time"

	"marlin/internal/domain"
)

// BarStore persists and retrieves OHLCV bar data.
type BarStore interface {
	// WriteBars persists a batch of bars to storage. Re-writing a bar for an
	// already stored (ticker, timestamp) replaces the stored bar.
	WriteBars(ctx context.Context, bars []domain.Bar) error

	// ReadBars returns bars for the given ticker within [start, end],
	// sorted by timestamp ascending.
	ReadBars(ctx context.Context, ticker string, start, end time.Time) ([]domain.Bar, error)

	// ListTickers returns all distinct tickers with stored bar data.
	ListTickers(ctx context.Context) ([]string, error)
}
