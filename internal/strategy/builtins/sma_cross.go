// Package builtins provides built-in strategy implementations that ship with
// the marlin platform.
package builtins

import (
	"marlin/internal/domain"
	"marlin/internal/strategy"
)

// Compile-time interface checks.
var _ strategy.Strategy = (*SMACross)(nil)
var _ strategy.Windowed = (*SMACross)(nil)

// SMACross implements a simple moving average crossover strategy. It generates
// a buy signal when the short-period SMA crosses above the long-period SMA on
// the most recent bar, and a sell signal when it crosses below.
type SMACross struct {
	shortPeriod int
	longPeriod  int
}

// NewSMACross creates a new SMACross strategy with the specified short and
// long moving average periods.
func NewSMACross(short, long int) *SMACross {
	return &SMACross{
		shortPeriod: short,
		longPeriod:  long,
	}
}

// Name returns "sma-cross".
func (s *SMACross) Name() string {
	return "sma-cross"
}

// Window returns the number of trailing bars needed to detect a crossover:
// one long SMA plus the preceding bar.
func (s *SMACross) Window() int {
	return s.longPeriod + 1
}

// Buy returns an entry signal when the short SMA crosses above the long SMA
// at the latest bar in the window.
func (s *SMACross) Buy(bars []domain.Bar, ticker string) ([]domain.Signal, error) {
	if crossed, last := s.crossover(bars, true); crossed {
		return []domain.Signal{{
			Ticker:     ticker,
			SignalTime: last.Timestamp,
			Type:       domain.SignalBuy,
			Price:      last.Close,
			Confidence: 1.0,
			Side:       domain.SideLong,
		}}, nil
	}
	return nil, nil
}

// Sell returns an exit signal when the short SMA crosses below the long SMA
// at the latest bar in the window.
func (s *SMACross) Sell(bars []domain.Bar, ticker string) ([]domain.Signal, error) {
	if crossed, last := s.crossover(bars, false); crossed {
		return []domain.Signal{{
			Ticker:     ticker,
			SignalTime: last.Timestamp,
			Type:       domain.SignalSell,
			Price:      last.Close,
			Confidence: 1.0,
			Side:       domain.SideLong,
		}}, nil
	}
	return nil, nil
}

// crossover reports whether the short SMA crosses the long SMA at the final
// bar of the window. With above=true it detects an upward cross, otherwise a
// downward cross. It also returns the final bar for signal stamping.
func (s *SMACross) crossover(bars []domain.Bar, above bool) (bool, domain.Bar) {
	if len(bars) < s.longPeriod+1 {
		return false, domain.Bar{}
	}

	// SMAs at the final bar and at the bar before it.
	currShort := sma(bars, len(bars), s.shortPeriod)
	currLong := sma(bars, len(bars), s.longPeriod)
	prevShort := sma(bars, len(bars)-1, s.shortPeriod)
	prevLong := sma(bars, len(bars)-1, s.longPeriod)

	last := bars[len(bars)-1]
	if above {
		return prevShort <= prevLong && currShort > currLong, last
	}
	return prevShort >= prevLong && currShort < currLong, last
}

// sma computes the simple moving average of closing prices over the period
// ending at index end (exclusive).
func sma(bars []domain.Bar, end, period int) float64 {
	sum := 0.0
	for i := end - period; i < end; i++ {
		sum += bars[i].Close
	}
	return sum / float64(period)
}
