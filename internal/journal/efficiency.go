package journal

import (
	"time"

	"marlin/internal/domain"
)

// Efficiency measures how much of the maximum potential profit during the
// holding period a trade actually captured, as a percentage clamped to
// [0, 100]. With no bar data in the window, or no upside over the entry
// price, it is 0.
func Efficiency(entryTime, exitTime time.Time, entryPrice, exitPrice float64, bars []domain.Bar) float64 {
	maxHigh := 0.0
	found := false
	for _, b := range bars {
		ts := b.Timestamp.UTC()
		if ts.Before(entryTime) || ts.After(exitTime) {
			continue
		}
		if !found || b.High > maxHigh {
			maxHigh = b.High
			found = true
		}
	}
	if !found {
		return 0.0
	}

	potential := maxHigh - entryPrice
	if potential <= 0 {
		return 0.0
	}

	actual := exitPrice - entryPrice
	eff := actual / potential * 100
	if eff < 0 {
		return 0.0
	}
	if eff > 100 {
		return 100.0
	}
	return eff
}
