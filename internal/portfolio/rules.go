// Package portfolio applies capital, settlement-timing, and position-sizing
// constraints to a time-ordered execution stream.
package portfolio

import (
	"fmt"
	"log/slog"
	"math"
	"time"

	"marlin/internal/domain"
)

// Position is the held state for a single ticker.
type Position struct {
	Shares        float64
	AvgEntryPrice float64
	Side          domain.Side
}

// State is the mutable portfolio snapshot threaded through a run. Cash
// decreases on accepted opens and increases, after the settlement lag, on
// closes.
type State struct {
	CashAvailable      float64
	Positions          map[string]*Position
	PendingSettlements map[time.Time]float64
}

// NewState creates a State with the given starting cash.
func NewState(cash float64) *State {
	return &State{
		CashAvailable:      cash,
		Positions:          make(map[string]*Position),
		PendingSettlements: make(map[time.Time]float64),
	}
}

// position returns the tracked position for a ticker, creating it if needed.
func (s *State) position(ticker string) *Position {
	pos, ok := s.Positions[ticker]
	if !ok {
		pos = &Position{}
		s.Positions[ticker] = pos
	}
	return pos
}

// DeployedCapital is the total cost basis of all open positions.
func (s *State) DeployedCapital() float64 {
	total := 0.0
	for _, pos := range s.Positions {
		if pos.Shares > 0 && pos.AvgEntryPrice > 0 {
			total += pos.Shares * pos.AvgEntryPrice
		}
	}
	return total
}

// Decision is a rule's verdict on an entry. MaxShares <= 0 means the rule
// imposes no share cap.
type Decision struct {
	Allow     bool
	MaxShares float64
	Reason    string
}

// Context carries everything a rule may inspect when evaluating an entry.
type Context struct {
	Exec  domain.Execution
	State *State
	Bars  map[string][]domain.Bar
}

// Rule evaluates a proposed entry against portfolio state. A returned error
// rejects the entry (fail-closed) without aborting the run.
type Rule interface {
	Name() string
	Evaluate(ctx Context) (Decision, error)
}

// Pipeline applies rules in order. The first rejection wins; otherwise the
// effective cap is the minimum of all caps the rules impose.
type Pipeline struct {
	rules []Rule
	log   *slog.Logger
}

// NewPipeline creates a Pipeline over the given rules.
func NewPipeline(rules []Rule, log *slog.Logger) *Pipeline {
	if log == nil {
		log = slog.Default()
	}
	return &Pipeline{rules: rules, log: log.With("component", "portfolio")}
}

// DecideEntry runs every rule against the entry. It returns whether the
// entry is allowed, the share cap (0 = unbounded), and the first sizing
// reason any rule supplied. A rule error or panic rejects the entry.
func (p *Pipeline) DecideEntry(ctx Context) (allow bool, maxShares float64, reason string) {
	for _, rule := range p.rules {
		decision, err := p.evaluate(rule, ctx)
		if err != nil {
			p.log.Warn("rule failed, rejecting entry",
				"rule", rule.Name(),
				"ticker", ctx.Exec.Ticker,
				"signal_time", ctx.Exec.SignalTime,
				"error", err)
			return false, 0, ""
		}
		if !decision.Allow {
			p.log.Debug("rule rejected entry",
				"rule", rule.Name(),
				"ticker", ctx.Exec.Ticker,
				"signal_time", ctx.Exec.SignalTime,
				"reason", decision.Reason)
			return false, 0, decision.Reason
		}
		if decision.MaxShares > 0 {
			if maxShares <= 0 || decision.MaxShares < maxShares {
				maxShares = decision.MaxShares
			}
			if reason == "" && decision.Reason != "" {
				reason = decision.Reason
			}
		}
	}
	return true, maxShares, reason
}

// evaluate invokes one rule, converting a panic into an error so a broken
// rule fails only the entry under evaluation.
func (p *Pipeline) evaluate(rule Rule, ctx Context) (d Decision, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("rule panicked: %v", r)
		}
	}()
	return rule.Evaluate(ctx)
}

// ---------------------------------------------------------------------------
// Reference rules
// ---------------------------------------------------------------------------

// Compile-time interface checks.
var _ Rule = (*FractionalPositionSize)(nil)
var _ Rule = (*MaxCapitalDeployed)(nil)

// FractionalPositionSize caps each entry at a fraction of current portfolio
// equity, where equity is cash plus the mark-to-market value of all open
// positions at the signal time.
type FractionalPositionSize struct {
	FractionOfEquity float64
}

// Name returns "fractional-position-size".
func (r *FractionalPositionSize) Name() string { return "fractional-position-size" }

// Evaluate computes the target share count floor(fraction × equity / price).
// A target of zero shares rejects the entry.
func (r *FractionalPositionSize) Evaluate(ctx Context) (Decision, error) {
	e := ctx.Exec
	if !e.Action.IsOpen() || e.Price <= 0 {
		return Decision{Allow: true}, nil
	}

	equity := r.equity(ctx)
	if equity <= 0 {
		return Decision{Allow: false, Reason: "no equity for position"}, nil
	}

	shares := math.Floor(r.FractionOfEquity * equity / e.Price)
	if shares <= 0 {
		return Decision{Allow: false, Reason: "target size below one share"}, nil
	}

	return Decision{
		Allow:     true,
		MaxShares: shares,
		Reason:    fmt.Sprintf("fractional size %.2f%% of equity", r.FractionOfEquity*100),
	}, nil
}

// equity marks every open position to the latest bar close at or before the
// signal time, falling back to the position's average entry price.
func (r *FractionalPositionSize) equity(ctx Context) float64 {
	equity := ctx.State.CashAvailable
	for ticker, pos := range ctx.State.Positions {
		if pos.Shares <= 0 {
			continue
		}
		mark := markPrice(ctx.Bars[ticker], ctx.Exec.SignalTime)
		if mark <= 0 {
			mark = pos.AvgEntryPrice
		}
		if mark > 0 {
			equity += pos.Shares * mark
		}
	}
	return equity
}

// markPrice returns the close of the latest bar at or before ts, or 0.
func markPrice(bars []domain.Bar, ts time.Time) float64 {
	price := 0.0
	for _, b := range bars {
		if b.Timestamp.After(ts) {
			break
		}
		price = b.Close
	}
	return price
}

// MaxCapitalDeployed blocks new entries once the deployed share of total
// realized capital reaches a ceiling.
type MaxCapitalDeployed struct {
	MaxDeployedPct float64
}

// Name returns "max-capital-deployed".
func (r *MaxCapitalDeployed) Name() string { return "max-capital-deployed" }

// Evaluate rejects the entry when deployed / (cash + deployed) is already at
// or above the configured ceiling.
func (r *MaxCapitalDeployed) Evaluate(ctx Context) (Decision, error) {
	if !ctx.Exec.Action.IsOpen() {
		return Decision{Allow: true}, nil
	}

	deployed := ctx.State.DeployedCapital()
	realized := ctx.State.CashAvailable + deployed
	if realized <= 0 {
		return Decision{Allow: true}, nil
	}

	pct := deployed / realized
	if pct >= r.MaxDeployedPct {
		return Decision{
			Allow:  false,
			Reason: fmt.Sprintf("capital deployed %.1f%% >= limit %.1f%%", pct*100, r.MaxDeployedPct*100),
		}, nil
	}
	return Decision{Allow: true}, nil
}
