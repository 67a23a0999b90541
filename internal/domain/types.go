// Package domain defines the core data types shared across the marlin
// backtesting platform: bars, signals, executions, trades, and results.
package domain

import "time"

// ---------------------------------------------------------------------------
// Market data
// ---------------------------------------------------------------------------

// Bar is a single OHLCV record for a fixed time interval.
type Bar struct {
	Ticker     string
	Timestamp  time.Time // always UTC
	Open       float64
	High       float64
	Low        float64
	Close      float64
	Volume     int64
	TradeCount int64
	VWAP       float64
}

// ---------------------------------------------------------------------------
// Signals
// ---------------------------------------------------------------------------

// SignalType identifies the direction of a strategy signal.
type SignalType string

const (
	SignalBuy  SignalType = "buy"
	SignalSell SignalType = "sell"
)

// Side identifies the direction of a position.
type Side string

const (
	SideLong  Side = "LONG"
	SideShort Side = "SHORT"
)

// Signal is a strategy-emitted intent to buy or sell at a time and price.
// Signals are immutable once emitted.
type Signal struct {
	Ticker     string
	SignalTime time.Time // always UTC
	Type       SignalType
	Price      float64
	Confidence float64 // optional, 0 when the strategy does not score signals
	Side       Side
}

// DedupKey identifies a signal for deduplication purposes. Two signals with
// the same key are considered the same signal.
type DedupKey struct {
	Ticker     string
	SignalTime int64 // UnixNano
	Type       SignalType
	Price      float64
}

// Key returns the deduplication key for the signal.
func (s Signal) Key() DedupKey {
	return DedupKey{
		Ticker:     s.Ticker,
		SignalTime: s.SignalTime.UnixNano(),
		Type:       s.Type,
		Price:      s.Price,
	}
}

// ---------------------------------------------------------------------------
// Executions
// ---------------------------------------------------------------------------

// Action identifies what an execution does to a position.
type Action string

const (
	BuyToOpen   Action = "buy_to_open"
	SellToClose Action = "sell_to_close"
	SellToOpen  Action = "sell_to_open"
	BuyToClose  Action = "buy_to_close"
)

// IsOpen reports whether the action opens (or adds to) a position.
func (a Action) IsOpen() bool { return a == BuyToOpen || a == SellToOpen }

// IsClose reports whether the action closes (or reduces) a position.
func (a Action) IsClose() bool { return a == SellToClose || a == BuyToClose }

// Execution is a signal carrying an explicit position action and a requested
// share count, forming the time-ordered stream the portfolio manager gates.
type Execution struct {
	Ticker     string
	SignalTime time.Time // always UTC
	Type       SignalType
	Side       Side
	Action     Action
	Price      float64
	Shares     float64
	// Reason records why a rule capped the size, when one did.
	Reason string
}

// ---------------------------------------------------------------------------
// Trades and metrics
// ---------------------------------------------------------------------------

// Trade is one matched entry/exit pair. Trades are immutable once created by
// FIFO matching; the execution simulator produces a new slice with fills
// applied rather than mutating in place.
type Trade struct {
	Ticker      string
	EntryTime   time.Time
	EntryPrice  float64
	ExitTime    time.Time
	ExitPrice   float64
	Shares      float64
	Side        Side
	GrossPnL    float64
	GrossPnLPct float64
	Commission  float64
	NetPnL      float64
	Efficiency  float64
}

// TimeHeld returns the holding period of the trade.
func (t Trade) TimeHeld() time.Duration { return t.ExitTime.Sub(t.EntryTime) }

// Metrics aggregates performance over a trade set.
type Metrics struct {
	TotalTrades    int
	TotalProfit    float64
	TotalProfitPct float64
	MaxDrawdown    float64
	SharpeRatio    float64
	AvgEfficiency  float64
	AvgReturnPct   float64
	AvgTimeHeld    float64 // hours
	WinRate        float64
}

// BacktestResults is the output of one simulation run.
type BacktestResults struct {
	Signals      []Signal
	Trades       []Trade
	Metrics      Metrics
	StrategyName string
}
