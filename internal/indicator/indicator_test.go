package indicator

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mtf-simulator/internal/market"
)

const equalityThreshold = 1e-2

func seriesFromCloses(t *testing.T, closes []float64) *market.Series {
	t.Helper()
	candles := make([]market.Candle, len(closes))
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, c := range closes {
		candles[i] = market.Candle{
			Timestamp: base.Add(time.Duration(i) * time.Hour),
			Open:      c, High: c, Low: c, Close: c,
			Volume: 1000,
		}
	}
	series, err := market.NewSeries("TEST", market.TF1h, candles)
	require.NoError(t, err)
	return series
}

func TestRSI_ReferenceSequence(t *testing.T) {
	// example taken from https://blog.quantinsti.com/rsi-indicator/
	closes := []float64{
		283.46, 280.69, 285.48, 294.08, 293.90, 299.92, 301.15, 284.45,
		294.09, 302.77, 301.97, 306.85, 305.02, 301.06, 291.97,
	}

	rsi := RSI(closes, 14)
	assert.InDelta(t, 55.37, rsi[14], equalityThreshold)

	rsi = RSI(append(closes, 284.18), 14)
	assert.InDelta(t, 50.07, rsi[15], equalityThreshold)

	rsi = RSI(append(closes, 284.18, 286.48), 14)
	assert.InDelta(t, 51.55, rsi[16], equalityThreshold)
}

func TestRSI_FlatSeriesStaysNeutral(t *testing.T) {
	closes := make([]float64, 40)
	for i := range closes {
		closes[i] = 1.0
	}

	for i, v := range RSI(closes, 14) {
		assert.Equal(t, 50.0, v, "flat series RSI should be 50 at index %d", i)
	}
}

func TestRSI_MonotonicRiseApproaches100(t *testing.T) {
	closes := make([]float64, 60)
	for i := range closes {
		closes[i] = 1.0 + float64(i)*0.01
	}

	rsi := RSI(closes, 14)
	for i, v := range rsi {
		assert.GreaterOrEqual(t, v, 0.0, "RSI below 0 at index %d", i)
		assert.LessOrEqual(t, v, 100.0, "RSI above 100 at index %d", i)
	}
	// Pure gains, no losses: saturates at 100 once warm
	assert.Equal(t, 100.0, rsi[len(rsi)-1])
}

func TestEMA_SeededWithFirstValue(t *testing.T) {
	values := []float64{10, 11, 12}
	ema := EMA(values, 5)

	require.Len(t, ema, 3)
	assert.Equal(t, 10.0, ema[0], "EMA must seed with the first raw value")

	alpha := 2.0 / 6.0
	assert.InDelta(t, 11*alpha+10*(1-alpha), ema[1], 1e-12)
}

func TestMACD_FlatSeriesHistogramZero(t *testing.T) {
	closes := make([]float64, 50)
	for i := range closes {
		closes[i] = 2.5
	}

	macd := MACD(closes, 12, 26, 9)
	for i := range closes {
		assert.InDelta(t, 0.0, macd.Line[i], 1e-12)
		assert.InDelta(t, 0.0, macd.Histogram[i], 1e-12)
	}
}

func TestBollingerBands_KnownWindow(t *testing.T) {
	// 5-period window over a small ramp: mean 3, population stddev sqrt(2)
	closes := []float64{1, 2, 3, 4, 5}
	bands, err := BollingerBands(closes, 5, 2.0)
	require.NoError(t, err)

	sd := math.Sqrt(2.0)
	assert.InDelta(t, 3.0, bands.Middle[4], 1e-12)
	assert.InDelta(t, 3.0+2*sd, bands.Upper[4], 1e-12)
	assert.InDelta(t, 3.0-2*sd, bands.Lower[4], 1e-12)
}

func TestATR_TrueRangeUsesPreviousClose(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	candles := []market.Candle{
		{Timestamp: base, Open: 100, High: 102, Low: 99, Close: 101, Volume: 1},
		// Gap up: TR should be high - prevClose = 110 - 101 = 9, not high - low = 4
		{Timestamp: base.Add(time.Hour), Open: 108, High: 110, Low: 106, Close: 109, Volume: 1},
	}

	atr := ATR(candles, 2)
	assert.InDelta(t, 3.0, atr[0], 1e-12, "first TR falls back to high - low")
	assert.InDelta(t, (3.0+9.0)/2, atr[1], 1e-12)
}

func TestVolumeRatio(t *testing.T) {
	volumes := []float64{100, 100, 100, 300}
	ratios := VolumeRatio(volumes, 3)

	assert.InDelta(t, 1.0, ratios[0], 1e-12)
	// Window {100, 100, 300}: avg 166.67, ratio 1.8
	assert.InDelta(t, 300.0/((100+100+300)/3.0), ratios[3], 1e-12)
}

func TestParams_Validate(t *testing.T) {
	params := DefaultParams()
	assert.NoError(t, params.Validate(500))

	bad := params
	bad.RSIPeriod = 0
	assert.ErrorIs(t, bad.Validate(500), market.ErrInvalidInput)

	bad = params
	bad.BollingerPeriod = -3
	assert.ErrorIs(t, bad.Validate(500), market.ErrInvalidInput)

	// Windowed periods longer than the series fail fast
	assert.ErrorIs(t, params.Validate(10), market.ErrInvalidInput)
}

func TestCompute_AlignedArrays(t *testing.T) {
	closes := make([]float64, 120)
	for i := range closes {
		closes[i] = 1.0 + 0.05*math.Sin(float64(i)/7)
	}
	series := seriesFromCloses(t, closes)

	set, err := Compute(series, DefaultParams())
	require.NoError(t, err)

	assert.Len(t, set.RSI, series.Len())
	assert.Len(t, set.EMAFast, series.Len())
	assert.Len(t, set.EMASlow, series.Len())
	assert.Len(t, set.TrendEMA, series.Len())
	assert.Len(t, set.MACD.Histogram, series.Len())
	assert.Len(t, set.Bollinger.Upper, series.Len())
	assert.Len(t, set.ATR, series.Len())
	assert.Len(t, set.VolumeRatio, series.Len())

	for i := range closes {
		assert.False(t, math.IsNaN(set.RSI[i]), "RSI NaN at %d", i)
		assert.False(t, math.IsNaN(set.ATR[i]), "ATR NaN at %d", i)
	}
}
