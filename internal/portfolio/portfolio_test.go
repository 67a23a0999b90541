package portfolio

import (
	"errors"
	"math"
	"testing"
	"time"

	"marlin/internal/domain"
)

func day(d int) time.Time {
	return time.Date(2024, 7, d, 0, 0, 0, 0, time.UTC)
}

func dailyBars(ticker string, days ...int) []domain.Bar {
	var bars []domain.Bar
	for _, d := range days {
		bars = append(bars, domain.Bar{
			Ticker:    ticker,
			Timestamp: day(d),
			Open:      100, High: 101, Low: 99, Close: 100,
			Volume: 1000,
		})
	}
	return bars
}

func open(ticker string, t time.Time, price, shares float64) domain.Execution {
	return domain.Execution{
		Ticker: ticker, SignalTime: t, Type: domain.SignalBuy,
		Side: domain.SideLong, Action: domain.BuyToOpen,
		Price: price, Shares: shares,
	}
}

func sell(ticker string, t time.Time, price, shares float64) domain.Execution {
	return domain.Execution{
		Ticker: ticker, SignalTime: t, Type: domain.SignalSell,
		Side: domain.SideLong, Action: domain.SellToClose,
		Price: price, Shares: shares,
	}
}

func TestApplyOpenAndClose(t *testing.T) {
	bars := map[string][]domain.Bar{"AAPL": dailyBars("AAPL", 1, 2, 3, 4, 5)}
	m := NewManager(NewPipeline(nil, nil), 10000, 2, nil)

	approved := m.Apply([]domain.Execution{
		open("AAPL", day(1), 100, 50),
		sell("AAPL", day(3), 110, 50),
	}, bars)

	if len(approved) != 2 {
		t.Fatalf("Apply approved %d executions, want 2", len(approved))
	}
	if approved[0].Shares != 50 {
		t.Errorf("open shares = %v, want 50", approved[0].Shares)
	}
	// Close liquidates the whole position.
	if approved[1].Shares != 50 {
		t.Errorf("close shares = %v, want 50", approved[1].Shares)
	}
}

func TestSettlementLagGatesCash(t *testing.T) {
	bars := map[string][]domain.Bar{"AAPL": dailyBars("AAPL", 1, 2, 3, 4, 5)}
	m := NewManager(NewPipeline(nil, nil), 1000, 2, nil)

	approved := m.Apply([]domain.Execution{
		open("AAPL", day(1), 100, 10), // uses all cash
		sell("AAPL", day(2), 110, 10), // proceeds settle on day 4
		open("AAPL", day(3), 50, 2),   // no settled cash yet, dropped
		open("AAPL", day(4), 50, 2),   // settlement released, accepted
	}, bars)

	if len(approved) != 3 {
		t.Fatalf("Apply approved %d executions, want 3", len(approved))
	}
	last := approved[len(approved)-1]
	if !last.SignalTime.Equal(day(4)) {
		t.Errorf("last approved execution at %v, want day 4", last.SignalTime)
	}
}

func TestSettlementClampsToLastTradingDay(t *testing.T) {
	// Only three trading days exist; a close on the last day still settles.
	bars := map[string][]domain.Bar{"AAPL": dailyBars("AAPL", 1, 2, 3)}
	m := NewManager(NewPipeline(nil, nil), 1000, 2, nil)

	approved := m.Apply([]domain.Execution{
		open("AAPL", day(1), 100, 10),
		sell("AAPL", day(3), 110, 10),
	}, bars)

	if len(approved) != 2 {
		t.Fatalf("Apply approved %d executions, want 2", len(approved))
	}
}

func TestCloseWithoutPositionDropped(t *testing.T) {
	bars := map[string][]domain.Bar{"AAPL": dailyBars("AAPL", 1, 2)}
	m := NewManager(NewPipeline(nil, nil), 1000, 2, nil)

	approved := m.Apply([]domain.Execution{
		sell("AAPL", day(1), 110, 10),
	}, bars)
	if len(approved) != 0 {
		t.Errorf("Apply approved %d executions for naked close, want 0", len(approved))
	}
}

func TestUnaffordableEntryDropped(t *testing.T) {
	bars := map[string][]domain.Bar{"AAPL": dailyBars("AAPL", 1)}
	m := NewManager(NewPipeline(nil, nil), 500, 2, nil)

	approved := m.Apply([]domain.Execution{
		open("AAPL", day(1), 100, 10), // costs 1000 > 500
	}, bars)
	if len(approved) != 0 {
		t.Errorf("Apply approved %d unaffordable executions, want 0", len(approved))
	}
}

func TestAverageEntryPriceUpdates(t *testing.T) {
	bars := map[string][]domain.Bar{"AAPL": dailyBars("AAPL", 1, 2, 3, 4, 5)}
	m := NewManager(NewPipeline(nil, nil), 100000, 2, nil)

	// Scale in at 100 then 110; the second close price reflects the blend
	// only through the position, so verify via state behavior: both opens
	// accepted, one close liquidates the combined 20 shares.
	approved := m.Apply([]domain.Execution{
		open("AAPL", day(1), 100, 10),
		open("AAPL", day(2), 110, 10),
		sell("AAPL", day(3), 120, 10),
	}, bars)

	if len(approved) != 3 {
		t.Fatalf("Apply approved %d executions, want 3", len(approved))
	}
	if approved[2].Shares != 20 {
		t.Errorf("close shares = %v, want full position of 20", approved[2].Shares)
	}
}

// failingRule always errors; the pipeline must fail closed.
type failingRule struct{}

func (failingRule) Name() string                       { return "failing" }
func (failingRule) Evaluate(Context) (Decision, error) { return Decision{}, errors.New("boom") }

// panickingRule panics; the pipeline must convert that into a rejection.
type panickingRule struct{}

func (panickingRule) Name() string                       { return "panicking" }
func (panickingRule) Evaluate(Context) (Decision, error) { panic("broken rule") }

// cappingRule caps entries at a fixed share count.
type cappingRule struct {
	cap float64
}

func (r cappingRule) Name() string { return "capping" }
func (r cappingRule) Evaluate(Context) (Decision, error) {
	return Decision{Allow: true, MaxShares: r.cap}, nil
}

func TestPipelineFailClosed(t *testing.T) {
	for _, rule := range []Rule{failingRule{}, panickingRule{}} {
		p := NewPipeline([]Rule{rule}, nil)
		allow, _, _ := p.DecideEntry(Context{
			Exec:  open("AAPL", day(1), 100, 10),
			State: NewState(10000),
		})
		if allow {
			t.Errorf("rule %s: DecideEntry allowed entry, want fail-closed rejection", rule.Name())
		}
	}
}

func TestPipelineMinimumOfCaps(t *testing.T) {
	p := NewPipeline([]Rule{cappingRule{cap: 30}, cappingRule{cap: 12}, cappingRule{cap: 20}}, nil)
	allow, maxShares, _ := p.DecideEntry(Context{
		Exec:  open("AAPL", day(1), 100, 50),
		State: NewState(10000),
	})
	if !allow {
		t.Fatal("DecideEntry rejected entry, want allow")
	}
	if maxShares != 12 {
		t.Errorf("maxShares = %v, want 12 (minimum of all caps)", maxShares)
	}
}

func TestFractionalPositionSize(t *testing.T) {
	rule := &FractionalPositionSize{FractionOfEquity: 0.10}
	state := NewState(10000)

	d, err := rule.Evaluate(Context{Exec: open("AAPL", day(1), 100, 50), State: state})
	if err != nil {
		t.Fatalf("Evaluate returned error: %v", err)
	}
	if !d.Allow {
		t.Fatalf("Evaluate rejected entry: %s", d.Reason)
	}
	// floor(0.10 × 10000 / 100) = 10
	if d.MaxShares != 10 {
		t.Errorf("MaxShares = %v, want 10", d.MaxShares)
	}

	// Open positions count toward equity at their mark price.
	state.Positions["MSFT"] = &Position{Shares: 100, AvgEntryPrice: 50, Side: domain.SideLong}
	bars := map[string][]domain.Bar{"MSFT": {
		{Ticker: "MSFT", Timestamp: day(1), Close: 60},
	}}
	d, err = rule.Evaluate(Context{Exec: open("AAPL", day(2), 100, 50), State: state, Bars: bars})
	if err != nil {
		t.Fatalf("Evaluate returned error: %v", err)
	}
	// equity = 10000 + 100×60 = 16000; floor(0.10 × 16000 / 100) = 16
	if d.MaxShares != 16 {
		t.Errorf("MaxShares with marked position = %v, want 16", d.MaxShares)
	}

	// A price too high for even one share rejects.
	d, _ = rule.Evaluate(Context{Exec: open("BRK", day(1), 1e7, 1), State: NewState(10000)})
	if d.Allow {
		t.Error("Evaluate allowed entry with zero target shares, want rejection")
	}
}

func TestMaxCapitalDeployed(t *testing.T) {
	rule := &MaxCapitalDeployed{MaxDeployedPct: 0.5}

	state := NewState(6000)
	state.Positions["MSFT"] = &Position{Shares: 40, AvgEntryPrice: 100, Side: domain.SideLong}

	// deployed 4000 / realized 10000 = 40% < 50% → allow.
	d, err := rule.Evaluate(Context{Exec: open("AAPL", day(1), 100, 10), State: state})
	if err != nil || !d.Allow {
		t.Errorf("Evaluate = (%+v, %v), want allow below ceiling", d, err)
	}

	state.Positions["NVDA"] = &Position{Shares: 20, AvgEntryPrice: 100, Side: domain.SideLong}
	// deployed 6000 / realized 12000 = 50% → reject.
	d, err = rule.Evaluate(Context{Exec: open("AAPL", day(1), 100, 10), State: state})
	if err != nil {
		t.Fatalf("Evaluate returned error: %v", err)
	}
	if d.Allow {
		t.Error("Evaluate allowed entry at deployment ceiling, want rejection")
	}
}

func TestCashConservation(t *testing.T) {
	bars := map[string][]domain.Bar{"AAPL": dailyBars("AAPL", 1, 2, 3, 4, 5, 8, 9)}
	initial := 10000.0
	m := NewManager(NewPipeline(nil, nil), initial, 2, nil)

	execs := []domain.Execution{
		open("AAPL", day(1), 100, 30),
		sell("AAPL", day(2), 105, 30),
		open("AAPL", day(4), 95, 40),
		sell("AAPL", day(8), 100, 40),
	}
	approved := m.Apply(execs, bars)

	// Replay approved executions to check that total value only moves by
	// realized P&L.
	cash := initial
	shares := 0.0
	basis := 0.0
	realized := 0.0
	for _, e := range approved {
		if e.Action.IsOpen() {
			cash -= e.Shares * e.Price
			shares += e.Shares
			basis = e.Price
		} else {
			cash += e.Shares * e.Price
			realized += e.Shares * (e.Price - basis)
			shares -= e.Shares
		}
		if cash < -1e-9 {
			t.Fatalf("cash went negative: %v", cash)
		}
	}
	if shares != 0 {
		t.Fatalf("unclosed shares after replay: %v", shares)
	}
	if math.Abs((cash-initial)-realized) > 1e-6 {
		t.Errorf("cash moved by %v, want realized P&L %v", cash-initial, realized)
	}
}
