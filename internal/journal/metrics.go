package journal

import (
	"math"
	"sort"

	"marlin/internal/domain"
)

const tradingDaysPerYear = 252

// ComputeMetrics calculates aggregate performance metrics over a trade set.
// capitalPerTrade is the notional allocated per trade and riskFreeRate the
// annual risk-free rate used for the Sharpe ratio. An empty trade set yields
// zero-valued metrics.
func ComputeMetrics(trades []domain.Trade, capitalPerTrade, riskFreeRate float64) domain.Metrics {
	m := domain.Metrics{TotalTrades: len(trades)}
	if len(trades) == 0 {
		return m
	}

	var wins int
	var sumPct, sumEff, sumHeldHours float64
	for _, t := range trades {
		m.TotalProfit += t.GrossPnL
		sumPct += t.GrossPnLPct
		sumEff += t.Efficiency
		sumHeldHours += t.TimeHeld().Hours()
		if t.GrossPnL > 0 {
			wins++
		}
	}

	n := float64(len(trades))
	if totalCapital := n * capitalPerTrade; totalCapital > 0 {
		m.TotalProfitPct = m.TotalProfit / totalCapital * 100
	}
	m.AvgReturnPct = sumPct / n
	m.AvgEfficiency = sumEff / n
	m.AvgTimeHeld = sumHeldHours / n
	m.WinRate = float64(wins) / n * 100

	m.MaxDrawdown = maxDrawdown(trades, capitalPerTrade)
	m.SharpeRatio = sharpeRatio(trades, riskFreeRate)
	return m
}

// maxDrawdown computes the largest peak-to-trough decline in cumulative
// equity, ordered by trade exit time. The result is a percentage, negative
// or zero.
func maxDrawdown(trades []domain.Trade, capitalPerTrade float64) float64 {
	if len(trades) == 0 {
		return 0.0
	}

	sorted := make([]domain.Trade, len(trades))
	copy(sorted, trades)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].ExitTime.Before(sorted[j].ExitTime)
	})

	equity := capitalPerTrade
	runningMax := math.Inf(-1)
	worst := 0.0
	for _, t := range sorted {
		equity += t.GrossPnL
		if equity > runningMax {
			runningMax = equity
		}
		dd := (equity - runningMax) / runningMax * 100
		if dd < worst {
			worst = dd
		}
	}
	return worst
}

// sharpeRatio computes the annualized Sharpe ratio of per-trade returns in
// excess of a per-trade risk-free rate. It is 0 with fewer than two trades
// or zero volatility.
func sharpeRatio(trades []domain.Trade, riskFreeRate float64) float64 {
	if len(trades) < 2 {
		return 0.0
	}

	perTradeRF := riskFreeRate / tradingDaysPerYear
	excess := make([]float64, len(trades))
	mean := 0.0
	for i, t := range trades {
		excess[i] = t.GrossPnLPct/100 - perTradeRF
		mean += excess[i]
	}
	mean /= float64(len(excess))

	variance := 0.0
	for _, e := range excess {
		d := e - mean
		variance += d * d
	}
	// Sample standard deviation.
	variance /= float64(len(excess) - 1)
	std := math.Sqrt(variance)
	if std == 0 || math.IsNaN(std) {
		return 0.0
	}

	return mean / std * math.Sqrt(tradingDaysPerYear)
}
