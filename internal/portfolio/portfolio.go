package portfolio

import (
	"log/slog"
	"math"
	"sort"
	"time"

	"marlin/internal/domain"
)

// Manager walks a time-ordered execution stream, releasing settled cash on
// trading-day boundaries and running the rule pipeline on every entry.
type Manager struct {
	pipeline      *Pipeline
	initialValue  float64
	settlementLag int
	log           *slog.Logger
}

// NewManager creates a Manager with the given rule pipeline, starting cash,
// and settlement lag in trading days.
func NewManager(pipeline *Pipeline, initialValue float64, settlementLag int, log *slog.Logger) *Manager {
	if log == nil {
		log = slog.Default()
	}
	return &Manager{
		pipeline:      pipeline,
		initialValue:  initialValue,
		settlementLag: settlementLag,
		log:           log.With("component", "portfolio"),
	}
}

// Apply filters and sizes executions against portfolio constraints. The
// stream is processed strictly ordered by (signal_time, ticker); the
// returned slice contains only the approved executions with their share
// counts adjusted.
func (m *Manager) Apply(execs []domain.Execution, barsByTicker map[string][]domain.Bar) []domain.Execution {
	if len(execs) == 0 {
		return nil
	}

	calendar := tradingCalendar(barsByTicker)

	sorted := make([]domain.Execution, len(execs))
	copy(sorted, execs)
	sort.SliceStable(sorted, func(i, j int) bool {
		if !sorted[i].SignalTime.Equal(sorted[j].SignalTime) {
			return sorted[i].SignalTime.Before(sorted[j].SignalTime)
		}
		return sorted[i].Ticker < sorted[j].Ticker
	})

	state := NewState(m.initialValue)
	var approved []domain.Execution
	var currentDay time.Time

	for _, e := range sorted {
		day := e.SignalTime.UTC().Truncate(24 * time.Hour)
		if currentDay.IsZero() || day.After(currentDay) {
			currentDay = day
			m.releaseSettlements(state, currentDay)
		}

		switch {
		case e.Action.IsClose():
			if out, ok := m.applyClose(state, e, calendar, day); ok {
				approved = append(approved, out)
			}

		case e.Action.IsOpen():
			if out, ok := m.applyOpen(state, e, barsByTicker); ok {
				approved = append(approved, out)
			}
		}
	}

	m.log.Debug("portfolio pass complete",
		"in", len(sorted),
		"approved", len(approved),
		"cash_available", state.CashAvailable)
	return approved
}

// releaseSettlements moves every pending settlement due on or before day
// back into available cash.
func (m *Manager) releaseSettlements(state *State, day time.Time) {
	for d, amount := range state.PendingSettlements {
		if !d.After(day) {
			state.CashAvailable += amount
			delete(state.PendingSettlements, d)
		}
	}
}

// applyClose liquidates the full position for the execution's ticker. The
// proceeds settle after the configured lag in trading days, clamped to the
// last known trading day.
func (m *Manager) applyClose(state *State, e domain.Execution, calendar []time.Time, day time.Time) (domain.Execution, bool) {
	pos := state.position(e.Ticker)
	if pos.Shares <= 0 {
		return domain.Execution{}, false
	}

	closeShares := pos.Shares
	proceeds := closeShares * e.Price

	settleDay, ok := m.settleDay(calendar, day)
	if !ok {
		return domain.Execution{}, false
	}
	state.PendingSettlements[settleDay] += proceeds

	pos.Shares = 0
	pos.AvgEntryPrice = 0
	pos.Side = ""

	e.Shares = closeShares
	return e, true
}

// settleDay finds the trading day settlementLag days after the trade day.
// The trade day maps onto the first calendar day at or after it, and the
// settlement index is clamped to the end of the calendar.
func (m *Manager) settleDay(calendar []time.Time, day time.Time) (time.Time, bool) {
	if len(calendar) == 0 {
		return time.Time{}, false
	}
	i := sort.Search(len(calendar), func(k int) bool {
		return !calendar[k].Before(day)
	})
	if i == len(calendar) {
		return time.Time{}, false
	}
	j := i + m.settlementLag
	if j >= len(calendar) {
		j = len(calendar) - 1
	}
	return calendar[j], true
}

// applyOpen runs the rule pipeline and affordability check on an entry,
// mutating cash and the position on acceptance.
func (m *Manager) applyOpen(state *State, e domain.Execution, barsByTicker map[string][]domain.Bar) (domain.Execution, bool) {
	allow, maxShares, reason := m.pipeline.DecideEntry(Context{
		Exec:  e,
		State: state,
		Bars:  barsByTicker,
	})
	if !allow {
		return domain.Execution{}, false
	}

	shares := e.Shares
	if maxShares > 0 && maxShares < shares {
		shares = maxShares
	}
	shares = math.Floor(shares)
	if shares <= 0 {
		return domain.Execution{}, false
	}

	cost := shares * e.Price
	if cost <= 0 || cost > state.CashAvailable {
		return domain.Execution{}, false
	}

	state.CashAvailable -= cost
	pos := state.position(e.Ticker)
	oldShares := pos.Shares
	pos.Shares += shares
	pos.Side = e.Side
	if pos.AvgEntryPrice == 0 {
		pos.AvgEntryPrice = e.Price
	} else {
		pos.AvgEntryPrice = (oldShares*pos.AvgEntryPrice + shares*e.Price) / pos.Shares
	}

	e.Shares = shares
	if reason != "" {
		e.Reason = reason
	}
	return e, true
}

// tradingCalendar builds the sorted unique set of trading days from the
// union of all tickers' bar timestamps, normalized to day granularity.
func tradingCalendar(barsByTicker map[string][]domain.Bar) []time.Time {
	seen := make(map[time.Time]struct{})
	for _, bars := range barsByTicker {
		for _, b := range bars {
			day := b.Timestamp.UTC().Truncate(24 * time.Hour)
			seen[day] = struct{}{}
		}
	}
	days := make([]time.Time, 0, len(seen))
	for d := range seen {
		days = append(days, d)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })
	return days
}
