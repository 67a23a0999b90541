package results

import (
	"context"
	"database/sql"
	"log/slog"

	"marlin/internal/domain"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

// Compile-time interface check.
var _ Writer = (*SQLiteWriter)(nil)

// SQLiteWriter persists backtest results to a local SQLite database.
type SQLiteWriter struct {
	db  *sql.DB
	log *slog.Logger
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS backtest_trades (
	backtest_id   TEXT NOT NULL,
	strategy      TEXT NOT NULL,
	ticker        TEXT NOT NULL,
	entry_time    TEXT NOT NULL,
	entry_price   REAL NOT NULL,
	exit_time     TEXT NOT NULL,
	exit_price    REAL NOT NULL,
	shares        REAL NOT NULL,
	side          TEXT NOT NULL,
	gross_pnl     REAL NOT NULL,
	gross_pnl_pct REAL NOT NULL,
	commission    REAL NOT NULL,
	net_pnl       REAL NOT NULL,
	efficiency    REAL NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_backtest_trades_id ON backtest_trades (backtest_id);

CREATE TABLE IF NOT EXISTS backtest_metrics (
	backtest_id      TEXT NOT NULL,
	strategy         TEXT NOT NULL,
	ticker           TEXT NOT NULL,
	total_trades     INTEGER NOT NULL,
	total_profit     REAL NOT NULL,
	total_profit_pct REAL NOT NULL,
	max_drawdown     REAL NOT NULL,
	sharpe_ratio     REAL NOT NULL,
	avg_efficiency   REAL NOT NULL,
	avg_return_pct   REAL NOT NULL,
	avg_time_held    REAL NOT NULL,
	win_rate         REAL NOT NULL,
	PRIMARY KEY (backtest_id, strategy, ticker)
);
`

// NewSQLiteWriter opens (or creates) a SQLite database at dbPath and ensures
// the results schema exists.
func NewSQLiteWriter(dbPath string, log *slog.Logger) (*SQLiteWriter, error) {
	if log == nil {
		log = slog.Default()
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLiteWriter{db: db, log: log.With("component", "results")}, nil
}

// Close closes the underlying database connection.
func (w *SQLiteWriter) Close() error {
	return w.db.Close()
}

// WriteTrades inserts the trade set inside one transaction.
func (w *SQLiteWriter) WriteTrades(ctx context.Context, backtestID, strategyName string, trades []domain.Trade) bool {
	if len(trades) == 0 {
		return true
	}

	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		w.log.Error("beginning trades transaction", "error", err)
		return false
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO backtest_trades (
			backtest_id, strategy, ticker,
			entry_time, entry_price, exit_time, exit_price,
			shares, side, gross_pnl, gross_pnl_pct, commission, net_pnl, efficiency
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		w.log.Error("preparing trades insert", "error", err)
		return false
	}
	defer stmt.Close()

	for _, t := range trades {
		_, err := stmt.ExecContext(ctx,
			backtestID, strategyName, t.Ticker,
			t.EntryTime.UTC().Format("2006-01-02T15:04:05Z"), t.EntryPrice,
			t.ExitTime.UTC().Format("2006-01-02T15:04:05Z"), t.ExitPrice,
			t.Shares, string(t.Side), t.GrossPnL, t.GrossPnLPct, t.Commission, t.NetPnL, t.Efficiency)
		if err != nil {
			w.log.Error("inserting trade", "ticker", t.Ticker, "error", err)
			return false
		}
	}

	if err := tx.Commit(); err != nil {
		w.log.Error("committing trades", "error", err)
		return false
	}
	return true
}

// WriteMetrics upserts one metrics row per (run, strategy, ticker).
func (w *SQLiteWriter) WriteMetrics(ctx context.Context, backtestID, strategyName, ticker string, m domain.Metrics) bool {
	_, err := w.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO backtest_metrics (
			backtest_id, strategy, ticker,
			total_trades, total_profit, total_profit_pct,
			max_drawdown, sharpe_ratio, avg_efficiency,
			avg_return_pct, avg_time_held, win_rate
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		backtestID, strategyName, ticker,
		m.TotalTrades, m.TotalProfit, m.TotalProfitPct,
		m.MaxDrawdown, m.SharpeRatio, m.AvgEfficiency,
		m.AvgReturnPct, m.AvgTimeHeld, m.WinRate)
	if err != nil {
		w.log.Error("writing metrics", "ticker", ticker, "error", err)
		return false
	}
	return true
}
