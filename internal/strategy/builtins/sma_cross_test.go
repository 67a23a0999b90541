package builtins

import (
	"testing"
	"time"

	"marlin/internal/domain"
)

func barsFromCloses(ticker string, closes []float64) []domain.Bar {
	base := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	bars := make([]domain.Bar, len(closes))
	for i, c := range closes {
		bars[i] = domain.Bar{
			Ticker:    ticker,
			Timestamp: base.AddDate(0, 0, i),
			Open:      c,
			High:      c + 1,
			Low:       c - 1,
			Close:     c,
			Volume:    1000,
		}
	}
	return bars
}

func TestSMACrossBuyOnUpwardCross(t *testing.T) {
	s := NewSMACross(2, 3)
	bars := barsFromCloses("AAPL", []float64{10, 10, 10, 20})

	signals, err := s.Buy(bars, "AAPL")
	if err != nil {
		t.Fatalf("Buy returned error: %v", err)
	}
	if len(signals) != 1 {
		t.Fatalf("Buy returned %d signals, want 1", len(signals))
	}
	sig := signals[0]
	if sig.Type != domain.SignalBuy {
		t.Errorf("signal type = %q, want %q", sig.Type, domain.SignalBuy)
	}
	if sig.Ticker != "AAPL" {
		t.Errorf("signal ticker = %q, want AAPL", sig.Ticker)
	}
	if sig.Price != 20 {
		t.Errorf("signal price = %v, want 20 (last close)", sig.Price)
	}
	if !sig.SignalTime.Equal(bars[len(bars)-1].Timestamp) {
		t.Errorf("signal time = %v, want last bar timestamp %v", sig.SignalTime, bars[len(bars)-1].Timestamp)
	}
}

func TestSMACrossSellOnDownwardCross(t *testing.T) {
	s := NewSMACross(2, 3)
	bars := barsFromCloses("AAPL", []float64{20, 20, 20, 10})

	signals, err := s.Sell(bars, "AAPL")
	if err != nil {
		t.Fatalf("Sell returned error: %v", err)
	}
	if len(signals) != 1 {
		t.Fatalf("Sell returned %d signals, want 1", len(signals))
	}
	if signals[0].Type != domain.SignalSell {
		t.Errorf("signal type = %q, want %q", signals[0].Type, domain.SignalSell)
	}
}

func TestSMACrossNoSignalWithoutCross(t *testing.T) {
	s := NewSMACross(2, 3)

	flat := barsFromCloses("AAPL", []float64{10, 10, 10, 10})
	if sigs, _ := s.Buy(flat, "AAPL"); len(sigs) != 0 {
		t.Errorf("Buy on flat closes returned %d signals, want 0", len(sigs))
	}
	if sigs, _ := s.Sell(flat, "AAPL"); len(sigs) != 0 {
		t.Errorf("Sell on flat closes returned %d signals, want 0", len(sigs))
	}

	// A sustained uptrend without a fresh cross is not a signal either.
	rising := barsFromCloses("AAPL", []float64{10, 20, 30, 40})
	if sigs, _ := s.Buy(rising, "AAPL"); len(sigs) != 0 {
		t.Errorf("Buy on already-crossed trend returned %d signals, want 0", len(sigs))
	}
}

func TestSMACrossShortWindow(t *testing.T) {
	s := NewSMACross(2, 3)
	if got := s.Window(); got != 4 {
		t.Errorf("Window = %d, want 4", got)
	}

	bars := barsFromCloses("AAPL", []float64{10, 20})
	sigs, err := s.Buy(bars, "AAPL")
	if err != nil {
		t.Fatalf("Buy returned error: %v", err)
	}
	if len(sigs) != 0 {
		t.Errorf("Buy with too few bars returned %d signals, want 0", len(sigs))
	}
}
