package journal

import (
	"math"
	"testing"
	"time"

	"marlin/internal/domain"
)

func ts(day, hour int) time.Time {
	return time.Date(2024, 4, day, hour, 0, 0, 0, time.UTC)
}

func openExec(ticker string, t time.Time, price, shares float64) domain.Execution {
	return domain.Execution{
		Ticker:     ticker,
		SignalTime: t,
		Type:       domain.SignalBuy,
		Side:       domain.SideLong,
		Action:     domain.BuyToOpen,
		Price:      price,
		Shares:     shares,
	}
}

func closeExec(ticker string, t time.Time, price, shares float64) domain.Execution {
	return domain.Execution{
		Ticker:     ticker,
		SignalTime: t,
		Type:       domain.SignalSell,
		Side:       domain.SideLong,
		Action:     domain.SellToClose,
		Price:      price,
		Shares:     shares,
	}
}

func TestMatchTradesFIFO(t *testing.T) {
	e1 := openExec("AAPL", ts(1, 10), 100, 10)
	e2 := openExec("AAPL", ts(2, 10), 110, 10)
	x1 := closeExec("AAPL", ts(3, 10), 120, 10)
	x2 := closeExec("AAPL", ts(4, 10), 130, 10)

	trades := MatchTrades([]domain.Execution{e1, e2, x1, x2}, nil)
	if len(trades) != 2 {
		t.Fatalf("MatchTrades returned %d trades, want 2", len(trades))
	}

	// Oldest entry matches the first exit.
	if trades[0].EntryPrice != 100 || trades[0].ExitPrice != 120 {
		t.Errorf("trade 1 = entry %v exit %v, want entry 100 exit 120",
			trades[0].EntryPrice, trades[0].ExitPrice)
	}
	if trades[1].EntryPrice != 110 || trades[1].ExitPrice != 130 {
		t.Errorf("trade 2 = entry %v exit %v, want entry 110 exit 130",
			trades[1].EntryPrice, trades[1].ExitPrice)
	}
	if trades[0].GrossPnL != 200 {
		t.Errorf("trade 1 GrossPnL = %v, want 200", trades[0].GrossPnL)
	}
	if trades[0].GrossPnLPct != 20 {
		t.Errorf("trade 1 GrossPnLPct = %v, want 20", trades[0].GrossPnLPct)
	}
}

func TestMatchTradesUnmatched(t *testing.T) {
	execs := []domain.Execution{
		closeExec("AAPL", ts(1, 10), 100, 10), // exit with no open entry
		openExec("AAPL", ts(2, 10), 100, 10),  // entry never closed
	}
	trades := MatchTrades(execs, nil)
	if len(trades) != 0 {
		t.Errorf("MatchTrades returned %d trades, want 0", len(trades))
	}
}

func TestMatchTradesPerTickerIsolation(t *testing.T) {
	execs := []domain.Execution{
		openExec("AAPL", ts(1, 10), 100, 10),
		openExec("MSFT", ts(1, 11), 400, 5),
		closeExec("MSFT", ts(2, 10), 410, 5),
		closeExec("AAPL", ts(3, 10), 90, 10),
	}
	trades := MatchTrades(execs, nil)
	if len(trades) != 2 {
		t.Fatalf("MatchTrades returned %d trades, want 2", len(trades))
	}
	byTicker := map[string]domain.Trade{}
	for _, tr := range trades {
		byTicker[tr.Ticker] = tr
	}
	if byTicker["MSFT"].GrossPnL != 50 {
		t.Errorf("MSFT GrossPnL = %v, want 50", byTicker["MSFT"].GrossPnL)
	}
	if byTicker["AAPL"].GrossPnL != -100 {
		t.Errorf("AAPL GrossPnL = %v, want -100", byTicker["AAPL"].GrossPnL)
	}
}

func TestMatchTradesShortSide(t *testing.T) {
	entry := domain.Execution{
		Ticker: "TSLA", SignalTime: ts(1, 10), Type: domain.SignalSell,
		Side: domain.SideShort, Action: domain.SellToOpen, Price: 200, Shares: 10,
	}
	exit := domain.Execution{
		Ticker: "TSLA", SignalTime: ts(2, 10), Type: domain.SignalBuy,
		Side: domain.SideShort, Action: domain.BuyToClose, Price: 180, Shares: 10,
	}
	trades := MatchTrades([]domain.Execution{entry, exit}, nil)
	if len(trades) != 1 {
		t.Fatalf("MatchTrades returned %d trades, want 1", len(trades))
	}
	if trades[0].GrossPnL != 200 {
		t.Errorf("short GrossPnL = %v, want 200", trades[0].GrossPnL)
	}
	if trades[0].Side != domain.SideShort {
		t.Errorf("side = %q, want SHORT", trades[0].Side)
	}
}

func TestEfficiency(t *testing.T) {
	bars := []domain.Bar{
		{Ticker: "AAPL", Timestamp: ts(1, 0), High: 105},
		{Ticker: "AAPL", Timestamp: ts(2, 0), High: 120},
		{Ticker: "AAPL", Timestamp: ts(3, 0), High: 110},
		{Ticker: "AAPL", Timestamp: ts(9, 0), High: 500}, // outside window
	}

	// Entry 100, exit 110, best high in window 120 → 10/20 = 50%.
	got := Efficiency(ts(1, 0), ts(3, 0), 100, 110, bars)
	if math.Abs(got-50) > 1e-9 {
		t.Errorf("Efficiency = %v, want 50", got)
	}

	// Losing trade clamps to 0.
	if got := Efficiency(ts(1, 0), ts(3, 0), 100, 90, bars); got != 0 {
		t.Errorf("Efficiency for losing trade = %v, want 0", got)
	}

	// Exit above the window high clamps to 100.
	if got := Efficiency(ts(1, 0), ts(3, 0), 100, 130, bars); got != 100 {
		t.Errorf("Efficiency above potential = %v, want 100", got)
	}

	// No bars in the window.
	if got := Efficiency(ts(5, 0), ts(6, 0), 100, 110, bars); got != 0 {
		t.Errorf("Efficiency with no window data = %v, want 0", got)
	}

	// No upside over entry price.
	if got := Efficiency(ts(1, 0), ts(1, 0), 200, 210, bars); got != 0 {
		t.Errorf("Efficiency with no potential = %v, want 0", got)
	}
}

func TestComputeMetricsEmpty(t *testing.T) {
	m := ComputeMetrics(nil, 10000, 0.04)
	if m.TotalTrades != 0 || m.TotalProfit != 0 || m.SharpeRatio != 0 || m.MaxDrawdown != 0 {
		t.Errorf("metrics for empty trade set = %+v, want zeros", m)
	}
}

func TestComputeMetricsTotals(t *testing.T) {
	trades := []domain.Trade{
		{Ticker: "A", EntryTime: ts(1, 0), ExitTime: ts(2, 0), GrossPnL: 500, GrossPnLPct: 5, Efficiency: 80},
		{Ticker: "A", EntryTime: ts(3, 0), ExitTime: ts(4, 0), GrossPnL: -200, GrossPnLPct: -2, Efficiency: 0},
	}
	m := ComputeMetrics(trades, 10000, 0.0)

	if m.TotalTrades != 2 {
		t.Errorf("TotalTrades = %d, want 2", m.TotalTrades)
	}
	if m.TotalProfit != 300 {
		t.Errorf("TotalProfit = %v, want 300", m.TotalProfit)
	}
	// 300 / (2 × 10000) × 100
	if math.Abs(m.TotalProfitPct-1.5) > 1e-9 {
		t.Errorf("TotalProfitPct = %v, want 1.5", m.TotalProfitPct)
	}
	if m.WinRate != 50 {
		t.Errorf("WinRate = %v, want 50", m.WinRate)
	}
	if math.Abs(m.AvgReturnPct-1.5) > 1e-9 {
		t.Errorf("AvgReturnPct = %v, want 1.5", m.AvgReturnPct)
	}
	if math.Abs(m.AvgTimeHeld-24) > 1e-9 {
		t.Errorf("AvgTimeHeld = %v hours, want 24", m.AvgTimeHeld)
	}
	if m.AvgEfficiency != 40 {
		t.Errorf("AvgEfficiency = %v, want 40", m.AvgEfficiency)
	}

	// Equity path: 10000 → 10500 → 10300; drawdown = -200/10500.
	wantDD := (10300.0 - 10500.0) / 10500.0 * 100
	if math.Abs(m.MaxDrawdown-wantDD) > 1e-9 {
		t.Errorf("MaxDrawdown = %v, want %v", m.MaxDrawdown, wantDD)
	}
}

func TestSharpeRatioDegenerateCases(t *testing.T) {
	one := []domain.Trade{{GrossPnLPct: 5, ExitTime: ts(1, 0)}}
	if got := ComputeMetrics(one, 10000, 0.04).SharpeRatio; got != 0 {
		t.Errorf("Sharpe with one trade = %v, want 0", got)
	}

	flat := []domain.Trade{
		{GrossPnLPct: 3, ExitTime: ts(1, 0)},
		{GrossPnLPct: 3, ExitTime: ts(2, 0)},
	}
	if got := ComputeMetrics(flat, 10000, 0.04).SharpeRatio; got != 0 {
		t.Errorf("Sharpe with zero volatility = %v, want 0", got)
	}

	varied := []domain.Trade{
		{GrossPnLPct: 10, ExitTime: ts(1, 0)},
		{GrossPnLPct: -5, ExitTime: ts(2, 0)},
		{GrossPnLPct: 7, ExitTime: ts(3, 0)},
	}
	if got := ComputeMetrics(varied, 10000, 0.0).SharpeRatio; got == 0 {
		t.Error("Sharpe with varied returns = 0, want nonzero")
	}
}
