package results

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	clickhouse "github.com/ClickHouse/clickhouse-go/v2"
	"github.com/shopspring/decimal"

	"marlin/internal/domain"
)

// Compile-time interface check.
var _ Writer = (*ClickHouseWriter)(nil)

// ClickHouseOptions configures the ClickHouse connection.
type ClickHouseOptions struct {
	Addr     []string
	Database string
	Username string
	Password string
}

// ClickHouseWriter persists backtest results to ClickHouse for analytical
// queries across many runs. Price and P&L columns use Decimal to avoid
// float drift when aggregating in SQL.
type ClickHouseWriter struct {
	conn clickhouse.Conn
	db   string
	log  *slog.Logger
}

// NewClickHouseWriter connects to ClickHouse and ensures the results tables
// exist.
func NewClickHouseWriter(ctx context.Context, opts ClickHouseOptions, log *slog.Logger) (*ClickHouseWriter, error) {
	if log == nil {
		log = slog.Default()
	}
	if opts.Database == "" {
		opts.Database = "backtest"
	}

	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: opts.Addr,
		Auth: clickhouse.Auth{
			Database: opts.Database,
			Username: opts.Username,
			Password: opts.Password,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("opening clickhouse connection: %w", err)
	}
	if err := conn.Ping(ctx); err != nil {
		return nil, fmt.Errorf("clickhouse ping: %w", err)
	}

	w := &ClickHouseWriter{conn: conn, db: opts.Database, log: log.With("component", "results")}
	if err := w.ensureSchema(ctx); err != nil {
		return nil, err
	}
	return w, nil
}

// Close closes the underlying connection.
func (w *ClickHouseWriter) Close() error {
	return w.conn.Close()
}

func (w *ClickHouseWriter) ensureSchema(ctx context.Context) error {
	tradesDDL := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s.backtest_trades (
			backtest_id   LowCardinality(String),
			strategy      LowCardinality(String),
			ticker        LowCardinality(String),
			entry_time    DateTime64(3, 'UTC'),
			entry_price   Decimal(18, 6),
			exit_time     DateTime64(3, 'UTC'),
			exit_price    Decimal(18, 6),
			shares        Float64,
			side          LowCardinality(String),
			gross_pnl     Decimal(18, 6),
			gross_pnl_pct Float64,
			commission    Decimal(18, 6),
			net_pnl       Decimal(18, 6),
			efficiency    Float64,
			written_at    DateTime64(3),
			version       UInt64
		)
		ENGINE = ReplacingMergeTree(version)
		ORDER BY (backtest_id, ticker, entry_time, exit_time)
	`, w.db)
	if err := w.conn.Exec(ctx, tradesDDL); err != nil {
		return fmt.Errorf("creating backtest_trades: %w", err)
	}

	metricsDDL := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s.backtest_metrics (
			backtest_id      LowCardinality(String),
			strategy         LowCardinality(String),
			ticker           LowCardinality(String),
			total_trades     UInt64,
			total_profit     Decimal(18, 6),
			total_profit_pct Float64,
			max_drawdown     Float64,
			sharpe_ratio     Float64,
			avg_efficiency   Float64,
			avg_return_pct   Float64,
			avg_time_held    Float64,
			win_rate         Float64,
			written_at       DateTime64(3),
			version          UInt64
		)
		ENGINE = ReplacingMergeTree(version)
		ORDER BY (backtest_id, strategy, ticker)
	`, w.db)
	if err := w.conn.Exec(ctx, metricsDDL); err != nil {
		return fmt.Errorf("creating backtest_metrics: %w", err)
	}
	return nil
}

// WriteTrades streams the trade set as one batch insert.
func (w *ClickHouseWriter) WriteTrades(ctx context.Context, backtestID, strategyName string, trades []domain.Trade) bool {
	if len(trades) == 0 {
		return true
	}

	batch, err := w.conn.PrepareBatch(ctx, fmt.Sprintf("INSERT INTO %s.backtest_trades", w.db))
	if err != nil {
		w.log.Error("preparing trades batch", "error", err)
		return false
	}

	now := time.Now().UTC()
	ver := uint64(now.UnixNano())
	for _, t := range trades {
		err := batch.Append(
			backtestID, strategyName, t.Ticker,
			t.EntryTime.UTC(), decimal.NewFromFloat(t.EntryPrice),
			t.ExitTime.UTC(), decimal.NewFromFloat(t.ExitPrice),
			t.Shares, string(t.Side),
			decimal.NewFromFloat(t.GrossPnL), t.GrossPnLPct,
			decimal.NewFromFloat(t.Commission), decimal.NewFromFloat(t.NetPnL),
			t.Efficiency,
			now, ver,
		)
		if err != nil {
			w.log.Error("appending trade row", "ticker", t.Ticker, "error", err)
			return false
		}
	}

	if err := batch.Send(); err != nil {
		w.log.Error("sending trades batch", "error", err)
		return false
	}
	return true
}

// WriteMetrics inserts one metrics row; ReplacingMergeTree keeps the latest
// version per (run, strategy, ticker).
func (w *ClickHouseWriter) WriteMetrics(ctx context.Context, backtestID, strategyName, ticker string, m domain.Metrics) bool {
	now := time.Now().UTC()
	err := w.conn.Exec(ctx, fmt.Sprintf(`
		INSERT INTO %s.backtest_metrics (
			backtest_id, strategy, ticker,
			total_trades, total_profit, total_profit_pct,
			max_drawdown, sharpe_ratio, avg_efficiency,
			avg_return_pct, avg_time_held, win_rate,
			written_at, version
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, w.db),
		backtestID, strategyName, ticker,
		uint64(m.TotalTrades), decimal.NewFromFloat(m.TotalProfit), m.TotalProfitPct,
		m.MaxDrawdown, m.SharpeRatio, m.AvgEfficiency,
		m.AvgReturnPct, m.AvgTimeHeld, m.WinRate,
		now, uint64(now.UnixNano()))
	if err != nil {
		w.log.Error("writing metrics", "ticker", ticker, "error", err)
		return false
	}
	return true
}
