package scorer

import (
	"fmt"

	"mtf-simulator/internal/indicator"
	"mtf-simulator/internal/logging"
	"mtf-simulator/internal/market"
)

var scoreLog = logging.New("scorer")

type Trend string

const (
	TrendBullish Trend = "bullish"
	TrendBearish Trend = "bearish"
	TrendNeutral Trend = "neutral"
)

const (
	bullishThreshold = 0.3
	bearishThreshold = -0.3
)

// Rule weights. Mirrors the historical trend-strength blend: EMA alignment
// carries the most, MACD and RSI next, proximity rules the least.
const (
	weightTrendEMAFar   = 0.15
	weightTrendEMANear  = 0.08
	weightEMAAlignment  = 0.30
	weightMACDCross     = 0.20
	weightMACDAccel     = 0.05
	weightRSIZone       = 0.15
	weightMomentumShort = 0.10
	weightMomentumLong  = 0.10
	weightBollingerEdge = 0.10
	weightVolumeSpike   = 0.10
)

const (
	trendEMAFarBand    = 0.02 // 2% from the slow trend EMA
	momentumShortBars  = 3
	momentumLongBars   = 10
	momentumShortLevel = 0.01
	momentumLongLevel  = 0.02
	volumeSpikeRatio   = 1.5
)

// Analysis is the scored snapshot of one timeframe at one index. Produced
// fresh every step and never mutated afterwards.
type Analysis struct {
	Timeframe  market.Timeframe
	Score      float64
	Trend      Trend
	Confidence float64
	Signals    []string
}

func insufficientData(tf market.Timeframe) Analysis {
	return Analysis{
		Timeframe:  tf,
		Score:      0,
		Trend:      TrendNeutral,
		Confidence: 0,
		Signals:    []string{"insufficient data for analysis"},
	}
}

// ScoreAt combines the indicator snapshot at index i into a bounded composite
// score. Each rule adds or subtracts its fixed weight and appends a reason.
// The warm-up check runs first and short-circuits every rule.
func ScoreAt(series *market.Series, set *indicator.Set, i int) Analysis {
	tf := series.Timeframe
	if i < set.Params.Warmup() || i >= series.Len() {
		return insufficientData(tf)
	}

	var score float64
	var signals []string
	add := func(delta float64, reason string) {
		score += delta
		signals = append(signals, reason)
	}

	candle := series.Candles[i]
	closePrice := candle.Close

	// Price vs slow trend EMA, banded by distance
	trendEMA := set.TrendEMA[i]
	if trendEMA > 0 {
		dist := (closePrice - trendEMA) / trendEMA
		switch {
		case dist > trendEMAFarBand:
			add(weightTrendEMAFar, fmt.Sprintf("price %.1f%% above trend EMA", dist*100))
		case dist > 0:
			add(weightTrendEMANear, "price above trend EMA")
		case dist < -trendEMAFarBand:
			add(-weightTrendEMAFar, fmt.Sprintf("price %.1f%% below trend EMA", -dist*100))
		case dist < 0:
			add(-weightTrendEMANear, "price below trend EMA")
		}
	}

	// EMA fast/slow alignment
	if set.EMAFast[i] > set.EMASlow[i] {
		add(weightEMAAlignment, "fast EMA above slow EMA")
	} else if set.EMAFast[i] < set.EMASlow[i] {
		add(-weightEMAAlignment, "fast EMA below slow EMA")
	}

	// Multi-period momentum
	if mom := percentChange(series, i, momentumShortBars); mom > momentumShortLevel {
		add(weightMomentumShort, fmt.Sprintf("short momentum +%.1f%%", mom*100))
	} else if mom < -momentumShortLevel {
		add(-weightMomentumShort, fmt.Sprintf("short momentum %.1f%%", mom*100))
	}
	if mom := percentChange(series, i, momentumLongBars); mom > momentumLongLevel {
		add(weightMomentumLong, fmt.Sprintf("long momentum +%.1f%%", mom*100))
	} else if mom < -momentumLongLevel {
		add(-weightMomentumLong, fmt.Sprintf("long momentum %.1f%%", mom*100))
	}

	// RSI zones
	rsi := set.RSI[i]
	switch {
	case rsi >= 70:
		add(-weightRSIZone, fmt.Sprintf("RSI overbought at %.1f", rsi))
	case rsi >= 55:
		add(weightRSIZone, fmt.Sprintf("RSI bullish at %.1f", rsi))
	case rsi <= 30:
		add(weightRSIZone, fmt.Sprintf("RSI oversold at %.1f", rsi))
	case rsi <= 45:
		add(-weightRSIZone, fmt.Sprintf("RSI bearish at %.1f", rsi))
	}

	// MACD cross and histogram acceleration
	macd := set.MACD
	if macd.Line[i] > macd.Signal[i] {
		add(weightMACDCross, "MACD above signal")
		if i > 0 && macd.Histogram[i] > macd.Histogram[i-1] {
			add(weightMACDAccel, "MACD histogram rising")
		}
	} else if macd.Line[i] < macd.Signal[i] {
		add(-weightMACDCross, "MACD below signal")
		if i > 0 && macd.Histogram[i] < macd.Histogram[i-1] {
			add(-weightMACDAccel, "MACD histogram falling")
		}
	}

	// Bollinger band proximity. A flat window collapses the bands; skip then.
	if width := set.Bollinger.Upper[i] - set.Bollinger.Lower[i]; width > 0 {
		percentB := (closePrice - set.Bollinger.Lower[i]) / width
		if percentB > 1 {
			add(-weightBollingerEdge, "price above upper Bollinger band")
		} else if percentB < 0 {
			add(weightBollingerEdge, "price below lower Bollinger band")
		}
	}

	// Volume spike in the direction of the candle
	if set.VolumeRatio[i] > volumeSpikeRatio {
		if candle.Close > candle.Open {
			add(weightVolumeSpike, fmt.Sprintf("bullish volume spike %.1fx", set.VolumeRatio[i]))
		} else if candle.Close < candle.Open {
			add(-weightVolumeSpike, fmt.Sprintf("bearish volume spike %.1fx", set.VolumeRatio[i]))
		}
	}

	score = clamp(score, -1, 1)

	trend := TrendNeutral
	if score > bullishThreshold {
		trend = TrendBullish
	} else if score < bearishThreshold {
		trend = TrendBearish
	}

	confidence := score
	if confidence < 0 {
		confidence = -confidence
	}

	scoreLog.Debug("Scored timeframe", "timeframe", tf, "index", i, "score", score, "trend", trend, "signals", len(signals))

	return Analysis{
		Timeframe:  tf,
		Score:      score,
		Trend:      trend,
		Confidence: confidence,
		Signals:    signals,
	}
}

// percentChange over lookback bars, 0 when out of range or undefined.
func percentChange(series *market.Series, i, lookback int) float64 {
	j := i - lookback
	if j < 0 {
		return 0
	}
	prev := series.Candles[j].Close
	if prev == 0 {
		return 0
	}
	return (series.Candles[i].Close - prev) / prev
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
