package indicator

import (
	"fmt"
	"math"

	"github.com/montanaflynn/stats"

	"mtf-simulator/internal/market"
)

// Params holds the per-timeframe indicator periods. All periods must be
// positive and no larger than the series being analyzed.
type Params struct {
	RSIPeriod        int     `yaml:"rsi_period"`
	EMAFastPeriod    int     `yaml:"ema_fast_period"`
	EMASlowPeriod    int     `yaml:"ema_slow_period"`
	MACDSignalPeriod int     `yaml:"macd_signal_period"`
	BollingerPeriod  int     `yaml:"bollinger_period"`
	BollingerStdDev  float64 `yaml:"bollinger_std_dev"`
	ATRPeriod        int     `yaml:"atr_period"`
	TrendEMAPeriod   int     `yaml:"trend_ema_period"`
	VolumeSMAPeriod  int     `yaml:"volume_sma_period"`
}

func DefaultParams() Params {
	return Params{
		RSIPeriod:        14,
		EMAFastPeriod:    12,
		EMASlowPeriod:    26,
		MACDSignalPeriod: 9,
		BollingerPeriod:  20,
		BollingerStdDev:  2.0,
		ATRPeriod:        14,
		TrendEMAPeriod:   200,
		VolumeSMAPeriod:  20,
	}
}

func (p Params) Validate(seriesLen int) error {
	periods := map[string]int{
		"rsi_period":         p.RSIPeriod,
		"ema_fast_period":    p.EMAFastPeriod,
		"ema_slow_period":    p.EMASlowPeriod,
		"macd_signal_period": p.MACDSignalPeriod,
		"bollinger_period":   p.BollingerPeriod,
		"atr_period":         p.ATRPeriod,
		"trend_ema_period":   p.TrendEMAPeriod,
		"volume_sma_period":  p.VolumeSMAPeriod,
	}
	for name, period := range periods {
		if period <= 0 {
			return fmt.Errorf("%w: %s must be positive, got %d", market.ErrInvalidInput, name, period)
		}
	}
	// Seeded EMAs are defined from the first bar, so only windowed indicators
	// bound the usable series length.
	for _, check := range []struct {
		name   string
		period int
	}{
		{"rsi_period", p.RSIPeriod},
		{"bollinger_period", p.BollingerPeriod},
		{"atr_period", p.ATRPeriod},
		{"volume_sma_period", p.VolumeSMAPeriod},
	} {
		if check.period > seriesLen {
			return fmt.Errorf("%w: %s %d exceeds series length %d",
				market.ErrInvalidInput, check.name, check.period, seriesLen)
		}
	}
	if p.BollingerStdDev <= 0 {
		return fmt.Errorf("%w: bollinger_std_dev must be positive", market.ErrInvalidInput)
	}
	return nil
}

// Warmup is the largest windowed lookback. Indices below this must be treated
// as "insufficient data" by callers; the arrays themselves stay densely
// indexed with neutral defaults so parallel iteration never bounds-checks.
func (p Params) Warmup() int {
	warmup := p.RSIPeriod
	for _, period := range []int{p.BollingerPeriod, p.ATRPeriod, p.VolumeSMAPeriod} {
		if period > warmup {
			warmup = period
		}
	}
	return warmup
}

type MACDSeries struct {
	Line      []float64
	Signal    []float64
	Histogram []float64
}

type BollingerSeries struct {
	Upper  []float64
	Middle []float64
	Lower  []float64
}

// Set holds all indicator arrays for one series, index-aligned to its candles.
type Set struct {
	Params      Params
	RSI         []float64
	EMAFast     []float64
	EMASlow     []float64
	TrendEMA    []float64
	MACD        MACDSeries
	Bollinger   BollingerSeries
	ATR         []float64
	VolumeRatio []float64
}

// Compute calculates the full indicator set for a series. Pure: no state is
// shared between calls and the input series is never mutated.
func Compute(series *market.Series, params Params) (*Set, error) {
	if err := params.Validate(series.Len()); err != nil {
		return nil, err
	}

	closes := series.Closes()
	volumes := make([]float64, series.Len())
	for i, c := range series.Candles {
		volumes[i] = c.Volume
	}

	bollinger, err := BollingerBands(closes, params.BollingerPeriod, params.BollingerStdDev)
	if err != nil {
		return nil, err
	}

	return &Set{
		Params:      params,
		RSI:         RSI(closes, params.RSIPeriod),
		EMAFast:     EMA(closes, params.EMAFastPeriod),
		EMASlow:     EMA(closes, params.EMASlowPeriod),
		TrendEMA:    EMA(closes, params.TrendEMAPeriod),
		MACD:        MACD(closes, params.EMAFastPeriod, params.EMASlowPeriod, params.MACDSignalPeriod),
		Bollinger:   bollinger,
		ATR:         ATR(series.Candles, params.ATRPeriod),
		VolumeRatio: VolumeRatio(volumes, params.VolumeSMAPeriod),
	}, nil
}

// EMA computes an exponential moving average seeded with the first raw value.
// The seed choice is deliberate and must not change: historical results were
// produced with it, and a simple-average seed shifts every downstream score.
func EMA(values []float64, period int) []float64 {
	out := make([]float64, len(values))
	if len(values) == 0 {
		return out
	}
	alpha := 2.0 / float64(period+1)
	out[0] = values[0]
	for i := 1; i < len(values); i++ {
		out[i] = values[i]*alpha + out[i-1]*(1-alpha)
	}
	return out
}

// RSI computes a Wilder-style relative strength index. Indices before the
// first full period default to the neutral 50 so the array stays dense.
// When the average loss is zero the value is 100, never NaN.
func RSI(closes []float64, period int) []float64 {
	out := make([]float64, len(closes))
	for i := range out {
		out[i] = 50
	}
	if len(closes) <= period {
		return out
	}

	var avgGain, avgLoss float64
	for i := 1; i <= period; i++ {
		delta := closes[i] - closes[i-1]
		if delta > 0 {
			avgGain += delta
		} else {
			avgLoss += -delta
		}
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)
	out[period] = rsiValue(avgGain, avgLoss)

	for i := period + 1; i < len(closes); i++ {
		delta := closes[i] - closes[i-1]
		var gain, loss float64
		if delta > 0 {
			gain = delta
		} else {
			loss = -delta
		}
		// Wilder smoothing
		avgGain = (avgGain*float64(period-1) + gain) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + loss) / float64(period)
		out[i] = rsiValue(avgGain, avgLoss)
	}
	return out
}

func rsiValue(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		// No movement at all stays neutral; pure gains saturate at 100.
		if avgGain == 0 {
			return 50
		}
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - (100 / (1 + rs))
}

// MACD computes line, signal and histogram arrays.
func MACD(closes []float64, fastPeriod, slowPeriod, signalPeriod int) MACDSeries {
	fast := EMA(closes, fastPeriod)
	slow := EMA(closes, slowPeriod)

	line := make([]float64, len(closes))
	for i := range line {
		line[i] = fast[i] - slow[i]
	}

	signal := EMA(line, signalPeriod)

	histogram := make([]float64, len(closes))
	for i := range histogram {
		histogram[i] = line[i] - signal[i]
	}

	return MACDSeries{Line: line, Signal: signal, Histogram: histogram}
}

// BollingerBands computes rolling mean and population standard deviation bands.
// Pre-warmup indices use the partial window so the arrays stay dense.
func BollingerBands(closes []float64, period int, stdDev float64) (BollingerSeries, error) {
	upper := make([]float64, len(closes))
	middle := make([]float64, len(closes))
	lower := make([]float64, len(closes))

	for i := range closes {
		start := i - period + 1
		if start < 0 {
			start = 0
		}
		window := closes[start : i+1]

		mean, err := stats.Mean(window)
		if err != nil {
			return BollingerSeries{}, fmt.Errorf("bollinger mean at index %d: %w", i, err)
		}
		sd, err := stats.StandardDeviationPopulation(window)
		if err != nil {
			return BollingerSeries{}, fmt.Errorf("bollinger stddev at index %d: %w", i, err)
		}

		middle[i] = mean
		upper[i] = mean + stdDev*sd
		lower[i] = mean - stdDev*sd
	}

	return BollingerSeries{Upper: upper, Middle: middle, Lower: lower}, nil
}

// ATR computes the average true range as a simple rolling mean of true
// ranges. Wilder smoothing is a known variant; the rolling mean is used here
// to match the historical batch results.
func ATR(candles []market.Candle, period int) []float64 {
	tr := make([]float64, len(candles))
	for i, c := range candles {
		if i == 0 {
			tr[i] = c.High - c.Low
			continue
		}
		prevClose := candles[i-1].Close
		tr[i] = math.Max(c.High-c.Low, math.Max(math.Abs(c.High-prevClose), math.Abs(c.Low-prevClose)))
	}

	out := make([]float64, len(candles))
	var sum float64
	for i := range tr {
		sum += tr[i]
		if i >= period {
			sum -= tr[i-period]
			out[i] = sum / float64(period)
		} else {
			out[i] = sum / float64(i+1)
		}
	}
	return out
}

// VolumeRatio is volume divided by its rolling SMA, 1.0 where undefined.
func VolumeRatio(volumes []float64, period int) []float64 {
	out := make([]float64, len(volumes))
	var sum float64
	for i, v := range volumes {
		sum += v
		windowLen := period
		if i >= period {
			sum -= volumes[i-period]
		} else {
			windowLen = i + 1
		}
		avg := sum / float64(windowLen)
		if avg == 0 {
			out[i] = 1.0
			continue
		}
		out[i] = v / avg
	}
	return out
}
