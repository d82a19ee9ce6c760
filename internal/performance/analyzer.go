package performance

import (
	"fmt"
	"math"

	"github.com/montanaflynn/stats"

	"mtf-simulator/internal/position"
)

// ProfitFactorCap is the sentinel reported when there are profits and zero
// losses. A finite value keeps downstream consumers (JSON, CSV) sane.
const ProfitFactorCap = 999.0

// annualizationFactor converts per-step Sharpe to annualized, assuming
// daily-equivalent steps.
var annualizationFactor = math.Sqrt(252)

type Summary struct {
	TotalTrades        int
	WinningTrades      int
	LosingTrades       int
	HitRate            float64
	TotalReturn        float64
	TotalReturnPercent float64
	GrossProfit        float64
	GrossLoss          float64
	ProfitFactor       float64
	SharpeRatio        float64
	MaxDrawdown        float64
	AvgWin             float64
	AvgLoss            float64
	Expectancy         float64
	AvgHoldingHours    float64
	FinalCapital       float64
}

// Analyze derives the run summary from the closed-trade list and the per-step
// equity curve. Every statistic is well-defined for a zero-trade run.
func Analyze(trades []position.Trade, equityCurve []float64, initialCapital float64) Summary {
	s := Summary{
		TotalTrades:  len(trades),
		FinalCapital: initialCapital,
	}
	if len(equityCurve) > 0 {
		s.FinalCapital = equityCurve[len(equityCurve)-1]
	}

	var totalWin, totalLoss, totalHours float64
	for _, trade := range trades {
		if trade.PnL > 0 {
			s.WinningTrades++
			totalWin += trade.PnL
		} else if trade.PnL < 0 {
			s.LosingTrades++
			totalLoss += -trade.PnL
		}
		totalHours += trade.HoldingPeriodHours
	}

	s.GrossProfit = totalWin
	s.GrossLoss = totalLoss
	s.TotalReturn = s.FinalCapital - initialCapital
	if initialCapital > 0 {
		s.TotalReturnPercent = s.TotalReturn / initialCapital * 100
	}

	if s.TotalTrades > 0 {
		s.HitRate = float64(s.WinningTrades) / float64(s.TotalTrades)
		s.Expectancy = s.TotalReturn / float64(s.TotalTrades)
		s.AvgHoldingHours = totalHours / float64(s.TotalTrades)
	}
	if s.WinningTrades > 0 {
		s.AvgWin = totalWin / float64(s.WinningTrades)
	}
	if s.LosingTrades > 0 {
		s.AvgLoss = -totalLoss / float64(s.LosingTrades)
	}

	switch {
	case totalLoss > 0:
		s.ProfitFactor = totalWin / totalLoss
	case totalWin > 0:
		s.ProfitFactor = ProfitFactorCap
	default:
		s.ProfitFactor = 0
	}

	s.MaxDrawdown = MaxDrawdown(equityCurve)
	s.SharpeRatio = SharpeRatio(equityCurve)

	return s
}

// MaxDrawdown is the largest peak-to-trough equity decline as a percentage of
// the peak. 0 for monotonically non-decreasing curves, always within [0, 100].
func MaxDrawdown(equityCurve []float64) float64 {
	var peak, maxDD float64
	for _, equity := range equityCurve {
		if equity > peak {
			peak = equity
		}
		if peak > 0 {
			dd := (peak - equity) / peak * 100
			if dd > maxDD {
				maxDD = dd
			}
		}
	}
	// Equity below zero would read as more than a 100% decline.
	if maxDD > 100 {
		return 100
	}
	return maxDD
}

// SharpeRatio is the mean step return over its standard deviation, annualized.
// 0 when the curve is too short or has no variance.
func SharpeRatio(equityCurve []float64) float64 {
	if len(equityCurve) < 2 {
		return 0
	}

	returns := make([]float64, 0, len(equityCurve)-1)
	for i := 1; i < len(equityCurve); i++ {
		if equityCurve[i-1] == 0 {
			return 0
		}
		returns = append(returns, (equityCurve[i]-equityCurve[i-1])/equityCurve[i-1])
	}

	mean, err := stats.Mean(returns)
	if err != nil {
		return 0
	}
	stddev, err := stats.StandardDeviation(returns)
	if err != nil || stddev == 0 {
		return 0
	}

	return mean / stddev * annualizationFactor
}

func (s Summary) Print() {
	fmt.Println("\n=== Simulation Results ===")
	fmt.Printf("Total Trades:     %d\n", s.TotalTrades)
	fmt.Printf("Winning Trades:   %d (%.2f%%)\n", s.WinningTrades, s.HitRate*100)
	fmt.Printf("Losing Trades:    %d\n\n", s.LosingTrades)

	fmt.Printf("Total Return:     %.2f (%.2f%%)\n", s.TotalReturn, s.TotalReturnPercent)
	fmt.Printf("Gross Profit:     %.2f\n", s.GrossProfit)
	fmt.Printf("Gross Loss:       %.2f\n", s.GrossLoss)
	fmt.Printf("Profit Factor:    %.2f\n\n", s.ProfitFactor)

	fmt.Printf("Avg Win:          %.2f\n", s.AvgWin)
	fmt.Printf("Avg Loss:         %.2f\n", s.AvgLoss)
	fmt.Printf("Expectancy:       %.2f per trade\n", s.Expectancy)
	fmt.Printf("Avg Holding:      %.1f hours\n\n", s.AvgHoldingHours)

	fmt.Printf("Max Drawdown:     %.2f%%\n", s.MaxDrawdown)
	fmt.Printf("Sharpe Ratio:     %.2f\n", s.SharpeRatio)
	fmt.Printf("Final Capital:    %.2f\n", s.FinalCapital)
}
