// Package backtest implements the causal time-stepping simulator: time grid
// derivation, anti-lookahead signal collection, and realistic execution
// fills over historical bars.
package backtest

import (
	"log/slog"
	"sort"
	"time"

	"marlin/internal/domain"
)

// Step frequencies understood by the grid builder. Any other value falls
// back to daily.
const (
	FreqAuto   = "auto"
	FreqDaily  = "daily"
	FreqHourly = "hourly"
	FreqMinute = "minute"
	FreqSecond = "second"
)

// Steps builds the ascending UTC time grid the simulator walks. With
// FreqAuto the spacing is detected as the modal gap between the observed
// bar timestamps, mapped to the nearest supported frequency.
func Steps(freq string, start, end time.Time, bars []domain.Bar, log *slog.Logger) []time.Time {
	if log == nil {
		log = slog.Default()
	}

	var step time.Duration
	switch freq {
	case FreqAuto:
		d, ok := detectSpacing(bars)
		if !ok {
			return nil
		}
		step = d
		log.Info("auto-detected step frequency", "step", step)
	case FreqDaily:
		step = 24 * time.Hour
	case FreqHourly:
		step = time.Hour
	case FreqMinute:
		step = time.Minute
	case FreqSecond:
		step = time.Second
	default:
		log.Error("invalid step frequency, falling back to daily", "frequency", freq)
		step = 24 * time.Hour
	}

	start = start.UTC()
	end = end.UTC()
	var grid []time.Time
	for t := start; !t.After(end); t = t.Add(step) {
		grid = append(grid, t)
	}
	return grid
}

// detectSpacing returns the most common gap between consecutive bar
// timestamps across all bars, snapped to the nearest supported frequency.
func detectSpacing(bars []domain.Bar) (time.Duration, bool) {
	if len(bars) < 2 {
		if len(bars) == 1 {
			return 24 * time.Hour, true
		}
		return 0, false
	}

	stamps := make([]time.Time, len(bars))
	for i, b := range bars {
		stamps[i] = b.Timestamp.UTC()
	}
	sort.Slice(stamps, func(i, j int) bool { return stamps[i].Before(stamps[j]) })

	counts := make(map[time.Duration]int)
	for i := 1; i < len(stamps); i++ {
		d := stamps[i].Sub(stamps[i-1])
		if d > 0 {
			counts[d]++
		}
	}
	if len(counts) == 0 {
		return 24 * time.Hour, true
	}

	var modal time.Duration
	best := -1
	for d, n := range counts {
		if n > best || (n == best && d < modal) {
			modal = d
			best = n
		}
	}

	switch {
	case modal >= 24*time.Hour:
		return 24 * time.Hour, true
	case modal >= time.Hour:
		return time.Hour, true
	case modal >= time.Minute:
		return time.Minute, true
	default:
		return time.Second, true
	}
}
