package report

import (
	"strings"
	"testing"

	"marlin/internal/batch"
	"marlin/internal/pool"
)

func TestFormatInt(t *testing.T) {
	cases := []struct {
		in   int
		want string
	}{
		{0, "0"},
		{999, "999"},
		{1000, "1,000"},
		{1234567, "1,234,567"},
		{-45678, "-45,678"},
	}
	for _, c := range cases {
		if got := FormatInt(c.in); got != c.want {
			t.Errorf("FormatInt(%d) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestFormatPnL(t *testing.T) {
	cases := []struct {
		in   float64
		want string
	}{
		{0, "+0.00"},
		{123.456, "+123.46"},
		{-987.5, "-987.50"},
		{25000, "+25.0K"},
		{-2500000, "-2.50M"},
	}
	for _, c := range cases {
		if got := FormatPnL(c.in); got != c.want {
			t.Errorf("FormatPnL(%v) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestRenderBatch(t *testing.T) {
	rep := batch.Report{
		Summary: pool.Summary{Successful: 1, Failed: 1, Total: 2},
		Outcomes: map[string]batch.Outcome{
			"MSFT": {Ticker: "MSFT", Success: true, Trades: 3, NetPnL: 150.25},
			"AAPL": {Ticker: "AAPL", Err: "no bar data"},
		},
	}

	out := RenderBatch("run-1", rep)

	if !strings.Contains(out, "run run-1") {
		t.Errorf("missing run header in:\n%s", out)
	}
	aapl := strings.Index(out, "AAPL")
	msft := strings.Index(out, "MSFT")
	if aapl < 0 || msft < 0 || aapl > msft {
		t.Errorf("tickers missing or unsorted in:\n%s", out)
	}
	if !strings.Contains(out, "no bar data") {
		t.Errorf("missing error column in:\n%s", out)
	}
	if !strings.Contains(out, "1 ok, 1 failed of 2 tickers") {
		t.Errorf("missing totals line in:\n%s", out)
	}
	if !strings.Contains(out, "net P&L +150.25") {
		t.Errorf("missing net P&L in:\n%s", out)
	}
}
